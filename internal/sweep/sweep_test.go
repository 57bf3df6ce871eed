package sweep

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dealflowhq/dealflow/internal/claims"
	"github.com/dealflowhq/dealflow/internal/escalation"
	"github.com/dealflowhq/dealflow/internal/notification"
	"github.com/dealflowhq/dealflow/internal/storage/sqlite"
	"github.com/dealflowhq/dealflow/internal/types"
)

type captureNotifier struct {
	mu     sync.Mutex
	events []notification.Event
}

func (c *captureNotifier) Dispatch(_ context.Context, e notification.Event) []notification.DispatchResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func (c *captureNotifier) all() []notification.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]notification.Event(nil), c.events...)
}

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	ctx := context.Background()
	store, err := sqlite.New(ctx, t.TempDir()+"/test.db")
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if cerr := store.Close(); cerr != nil {
			t.Fatalf("Failed to close test database: %v", cerr)
		}
	})

	deal := &types.DealDraft{ID: "deal-sweep1", Title: "Gateway Logistics Center", SellerID: "seller-1"}
	if err := store.CreateDeal(ctx, deal, "broker-1"); err != nil {
		t.Fatalf("CreateDeal failed: %v", err)
	}
	for _, brokerID := range []string{"broker-1", "broker-2"} {
		if err := store.AddDealBroker(ctx, &types.DealBroker{DealID: deal.ID, BrokerID: brokerID}); err != nil {
			t.Fatalf("AddDealBroker failed: %v", err)
		}
	}
	return store
}

func addTask(t *testing.T, store *sqlite.Store, id string, startedAt time.Time, assignee string) {
	t.Helper()
	err := store.CreateWorkItem(context.Background(), &types.WorkItem{
		ID:        id,
		DealID:    "deal-sweep1",
		Type:      types.ItemTask,
		Title:     "collect rent roll",
		Creator:   "broker-1",
		Assignee:  assignee,
		StartedAt: startedAt,
	}, "broker-1")
	if err != nil {
		t.Fatalf("CreateWorkItem failed: %v", err)
	}
}

func TestSweepEscalatesOverdueTask(t *testing.T) {
	store := newTestStore(t)
	notify := &captureNotifier{}
	ctx := context.Background()

	addTask(t, store, "task-1", time.Now().UTC().Add(-3*24*time.Hour), "broker-2")
	sweeper := New(store, notify, escalation.DefaultPolicy())

	summary, err := sweeper.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("SweepOnce failed: %v", err)
	}
	if summary.Escalated != 1 || summary.Errors != 0 {
		t.Fatalf("summary = %+v", summary)
	}

	item, err := store.GetWorkItem(ctx, "task-1")
	if err != nil {
		t.Fatalf("GetWorkItem failed: %v", err)
	}
	if item.EscalatedAt == nil {
		t.Error("escalated_at not stamped")
	}

	events := notify.all()
	if len(events) != 1 {
		t.Fatalf("got %d notifications, want 1", len(events))
	}
	if events[0].Kind != notification.KindEscalation {
		t.Errorf("kind = %s", events[0].Kind)
	}
	// 3 days overdue: CREATOR level, creator only.
	if len(events[0].Recipients) != 1 || events[0].Recipients[0] != "broker-1" {
		t.Errorf("recipients = %v", events[0].Recipients)
	}
}

func TestSweepCoolOffAcrossPasses(t *testing.T) {
	store := newTestStore(t)
	notify := &captureNotifier{}
	ctx := context.Background()

	addTask(t, store, "task-1", time.Now().UTC().Add(-6*24*time.Hour), "")
	sweeper := New(store, notify, escalation.DefaultPolicy())

	if _, err := sweeper.SweepOnce(ctx); err != nil {
		t.Fatalf("first pass failed: %v", err)
	}
	summary, err := sweeper.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("second pass failed: %v", err)
	}
	if summary.Escalated != 0 || summary.Suppressed != 1 {
		t.Errorf("second pass summary = %+v", summary)
	}
	if got := len(notify.all()); got != 1 {
		t.Errorf("got %d notifications, want 1", got)
	}
}

func TestSweepSkipsNotDueAndClosed(t *testing.T) {
	store := newTestStore(t)
	notify := &captureNotifier{}
	ctx := context.Background()

	addTask(t, store, "task-fresh", time.Now().UTC().Add(-6*time.Hour), "")
	addTask(t, store, "task-closed", time.Now().UTC().Add(-6*24*time.Hour), "")
	if err := store.CloseWorkItem(ctx, "task-closed", "broker-1"); err != nil {
		t.Fatalf("CloseWorkItem failed: %v", err)
	}

	sweeper := New(store, notify, escalation.DefaultPolicy())
	summary, err := sweeper.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("SweepOnce failed: %v", err)
	}
	if summary.Escalated != 0 {
		t.Errorf("summary = %+v", summary)
	}
	if got := len(notify.all()); got != 0 {
		t.Errorf("got %d notifications, want 0", got)
	}
}

func TestSweepPicksUpOpenConflicts(t *testing.T) {
	store := newTestStore(t)
	notify := &captureNotifier{}
	ctx := context.Background()

	// Two claims far enough apart to open a conflict. Synthesized review
	// requests carry no creator, so only the DEAL_TEAM threshold (3 days)
	// produces recipients.
	resolver := claims.NewResolver(store, claims.WithClock(func() time.Time {
		return time.Now().UTC().Add(-4 * 24 * time.Hour)
	}))
	submit := func(value string) {
		_, err := resolver.SubmitClaim(ctx, claims.SubmitClaimInput{
			DealID: "deal-sweep1", Field: "asking_price", Value: value, Confidence: 0.9,
		})
		if err != nil {
			t.Fatalf("SubmitClaim failed: %v", err)
		}
	}
	submit("1000000")
	submit("1500000")

	sweeper := New(store, notify, escalation.DefaultPolicy())
	summary, err := sweeper.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("SweepOnce failed: %v", err)
	}
	if summary.Escalated != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	events := notify.all()
	if len(events) != 1 || events[0].DealID != "deal-sweep1" {
		t.Fatalf("events = %+v", events)
	}
}

func TestSweepManagerRecipients(t *testing.T) {
	store := newTestStore(t)
	notify := &captureNotifier{}
	ctx := context.Background()

	addTask(t, store, "task-1", time.Now().UTC().Add(-11*24*time.Hour), "broker-2")
	sweeper := New(store, notify, escalation.DefaultPolicy(), WithManagers([]string{"manager-1"}))

	if _, err := sweeper.SweepOnce(ctx); err != nil {
		t.Fatalf("SweepOnce failed: %v", err)
	}
	events := notify.all()
	if len(events) != 1 {
		t.Fatalf("got %d notifications, want 1", len(events))
	}
	want := []string{"broker-1", "manager-1"}
	got := events[0].Recipients
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("recipients = %v, want %v", got, want)
	}
}

func TestSweepQuietHoursHoldEscalation(t *testing.T) {
	store := newTestStore(t)
	notify := &captureNotifier{}
	ctx := context.Background()

	at := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	addTask(t, store, "task-1", at.Add(-3*24*time.Hour), "broker-2")

	quiet, err := ParseQuietHours(map[string]string{"*": "09:00-11:00"})
	if err != nil {
		t.Fatalf("ParseQuietHours failed: %v", err)
	}

	sweeper := New(store, notify, escalation.DefaultPolicy(),
		WithQuietHours(quiet),
		WithClock(func() time.Time { return at }),
	)
	summary, err := sweeper.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("SweepOnce failed: %v", err)
	}
	if summary.Escalated != 0 || summary.Suppressed != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	item, err := store.GetWorkItem(ctx, "task-1")
	if err != nil {
		t.Fatalf("GetWorkItem failed: %v", err)
	}
	if item.EscalatedAt != nil {
		t.Error("item stamped during quiet hours")
	}
	if got := len(notify.all()); got != 0 {
		t.Errorf("got %d notifications, want 0", got)
	}

	// Once the window closes the held item escalates.
	later := at.Add(2 * time.Hour)
	sweeper = New(store, notify, escalation.DefaultPolicy(),
		WithQuietHours(quiet),
		WithClock(func() time.Time { return later }),
	)
	summary, err = sweeper.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("second pass failed: %v", err)
	}
	if summary.Escalated != 1 {
		t.Fatalf("second pass summary = %+v", summary)
	}
	if got := len(notify.all()); got != 1 {
		t.Errorf("got %d notifications, want 1", got)
	}
}

func TestSweepQuietHoursFilterPerRecipient(t *testing.T) {
	store := newTestStore(t)
	notify := &captureNotifier{}
	ctx := context.Background()

	at := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	addTask(t, store, "task-1", at.Add(-6*24*time.Hour), "")

	// DEAL_TEAM level reaches broker-1 and broker-2; only broker-2 is quiet.
	quiet, err := ParseQuietHours(map[string]string{"broker-2": "09:00-11:00"})
	if err != nil {
		t.Fatalf("ParseQuietHours failed: %v", err)
	}

	sweeper := New(store, notify, escalation.DefaultPolicy(),
		WithQuietHours(quiet),
		WithClock(func() time.Time { return at }),
	)
	summary, err := sweeper.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("SweepOnce failed: %v", err)
	}
	if summary.Escalated != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	events := notify.all()
	if len(events) != 1 {
		t.Fatalf("got %d notifications, want 1", len(events))
	}
	if len(events[0].Recipients) != 1 || events[0].Recipients[0] != "broker-1" {
		t.Errorf("recipients = %v, want [broker-1]", events[0].Recipients)
	}

	item, err := store.GetWorkItem(ctx, "task-1")
	if err != nil {
		t.Fatalf("GetWorkItem failed: %v", err)
	}
	if item.EscalatedAt == nil {
		t.Error("escalated_at not stamped")
	}
}

func TestParseQuietHoursRejectsBadSpans(t *testing.T) {
	if _, err := ParseQuietHours(map[string]string{"broker-1": "22:00"}); !errors.Is(err, types.ErrValidation) {
		t.Errorf("missing end accepted: %v", err)
	}
	if _, err := ParseQuietHours(map[string]string{"broker-1": "25:00-08:00"}); !errors.Is(err, types.ErrValidation) {
		t.Errorf("out-of-range hour accepted: %v", err)
	}
}

func TestPolicySwap(t *testing.T) {
	store := newTestStore(t)
	sweeper := New(store, nil, escalation.DefaultPolicy())

	replacement, err := escalation.NewPolicy(escalation.PolicyConfig{
		CoolOffHours: 6,
		ItemTypes: map[string][]escalation.ThresholdConfig{
			"task": {{Days: 1, Level: "CREATOR"}},
		},
	})
	if err != nil {
		t.Fatalf("NewPolicy failed: %v", err)
	}
	sweeper.SetPolicy(replacement)
	if got := sweeper.Policy().CoolOffHours(); got != 6 {
		t.Errorf("CoolOffHours = %d, want 6", got)
	}
}
