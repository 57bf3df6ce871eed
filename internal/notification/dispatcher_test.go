package notification

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

type fakeSink struct {
	name string
	err  error
	seen []Event
}

func (s *fakeSink) Name() string { return s.name }

func (s *fakeSink) Send(_ context.Context, e Event) error {
	s.seen = append(s.seen, e)
	return s.err
}

func TestDispatcherFansOutToAllSinks(t *testing.T) {
	good := &fakeSink{name: "good"}
	bad := &fakeSink{name: "bad", err: errors.New("boom")}
	d := NewDispatcher(good, bad)

	results := d.Dispatch(context.Background(), Event{
		DealID:  "deal-1",
		Kind:    KindBuyerResponse,
		Message: "buyer responded",
	})

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Err != nil {
		t.Errorf("good sink reported error: %v", results[0].Err)
	}
	if results[1].Err == nil {
		t.Error("bad sink error not reported")
	}
	// The failing sink must not block the others.
	if len(good.seen) != 1 || len(bad.seen) != 1 {
		t.Errorf("delivery counts: good=%d bad=%d", len(good.seen), len(bad.seen))
	}
	if good.seen[0].OccurredAt.IsZero() {
		t.Error("OccurredAt not stamped")
	}
}

func TestWebhookSinkRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL)
	err := sink.Send(context.Background(), Event{DealID: "deal-1", Kind: KindNDASigned})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if calls.Load() < 2 {
		t.Errorf("expected a retry, got %d calls", calls.Load())
	}
}

func TestWebhookSinkDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL)
	if err := sink.Send(context.Background(), Event{DealID: "deal-1"}); err == nil {
		t.Fatal("expected error for 400 response")
	}
	if calls.Load() != 1 {
		t.Errorf("client error retried: %d calls", calls.Load())
	}
}
