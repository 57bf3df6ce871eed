package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/dealflowhq/dealflow/internal/storage"
	"github.com/dealflowhq/dealflow/internal/types"
)

const storageScopeName = "github.com/dealflowhq/dealflow/storage"

// InstrumentedStorage wraps storage.Storage with OTel tracing and metrics.
// Every method gets a span and is counted in dfl.storage.* metrics.
// Use WrapStorage to create one; it returns the original store unchanged when
// telemetry is disabled.
type InstrumentedStorage struct {
	inner  storage.Storage
	tracer trace.Tracer
	ops    metric.Int64Counter
	dur    metric.Float64Histogram
	errs   metric.Int64Counter
}

// WrapStorage returns s decorated with OTel instrumentation.
// When telemetry is disabled, s is returned as-is with zero overhead.
func WrapStorage(s storage.Storage) storage.Storage {
	if !Enabled() {
		return s
	}
	m := Meter(storageScopeName)
	ops, _ := m.Int64Counter("dfl.storage.operations",
		metric.WithDescription("Total storage operations executed"),
	)
	dur, _ := m.Float64Histogram("dfl.storage.operation.duration",
		metric.WithDescription("Storage operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("dfl.storage.errors",
		metric.WithDescription("Total storage operation errors"),
	)
	return &InstrumentedStorage{
		inner:  s,
		tracer: Tracer(storageScopeName),
		ops:    ops,
		dur:    dur,
		errs:   errs,
	}
}

// op starts a span and records a metric for the named storage operation.
func (s *InstrumentedStorage) op(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	all := append([]attribute.KeyValue{attribute.String("db.operation", name)}, attrs...)
	ctx, span := s.tracer.Start(ctx, "storage."+name,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	s.ops.Add(ctx, 1, metric.WithAttributes(all...))
	return ctx, span, time.Now()
}

// done ends the span, records duration and optional error.
func (s *InstrumentedStorage) done(ctx context.Context, span trace.Span, start time.Time, err error, attrs ...attribute.KeyValue) {
	ms := float64(time.Since(start).Milliseconds())
	s.dur.Record(ctx, ms, metric.WithAttributes(attrs...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.errs.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	span.End()
}

func (s *InstrumentedStorage) CreateDeal(ctx context.Context, deal *types.DealDraft, actor string) error {
	opAttr := attribute.String("db.operation", "CreateDeal")
	ctx, span, start := s.op(ctx, "CreateDeal", attribute.String("dfl.deal.id", deal.ID))
	err := s.inner.CreateDeal(ctx, deal, actor)
	s.done(ctx, span, start, err, opAttr)
	return err
}

func (s *InstrumentedStorage) GetDeal(ctx context.Context, id string) (*types.DealDraft, error) {
	opAttr := attribute.String("db.operation", "GetDeal")
	ctx, span, start := s.op(ctx, "GetDeal", attribute.String("dfl.deal.id", id))
	deal, err := s.inner.GetDeal(ctx, id)
	s.done(ctx, span, start, err, opAttr)
	return deal, err
}

func (s *InstrumentedStorage) ListDeals(ctx context.Context) ([]*types.DealDraft, error) {
	opAttr := attribute.String("db.operation", "ListDeals")
	ctx, span, start := s.op(ctx, "ListDeals")
	deals, err := s.inner.ListDeals(ctx)
	s.done(ctx, span, start, err, opAttr)
	return deals, err
}

func (s *InstrumentedStorage) AddDealBroker(ctx context.Context, edge *types.DealBroker) error {
	opAttr := attribute.String("db.operation", "AddDealBroker")
	ctx, span, start := s.op(ctx, "AddDealBroker", attribute.String("dfl.deal.id", edge.DealID))
	err := s.inner.AddDealBroker(ctx, edge)
	s.done(ctx, span, start, err, opAttr)
	return err
}

func (s *InstrumentedStorage) GetDealBroker(ctx context.Context, dealID, brokerID string) (*types.DealBroker, error) {
	opAttr := attribute.String("db.operation", "GetDealBroker")
	ctx, span, start := s.op(ctx, "GetDealBroker", attribute.String("dfl.deal.id", dealID))
	edge, err := s.inner.GetDealBroker(ctx, dealID, brokerID)
	s.done(ctx, span, start, err, opAttr)
	return edge, err
}

func (s *InstrumentedStorage) ListDealBrokers(ctx context.Context, dealID string) ([]*types.DealBroker, error) {
	opAttr := attribute.String("db.operation", "ListDealBrokers")
	ctx, span, start := s.op(ctx, "ListDealBrokers", attribute.String("dfl.deal.id", dealID))
	edges, err := s.inner.ListDealBrokers(ctx, dealID)
	s.done(ctx, span, start, err, opAttr)
	return edges, err
}

func (s *InstrumentedStorage) GetClaim(ctx context.Context, id string) (*types.Claim, error) {
	opAttr := attribute.String("db.operation", "GetClaim")
	ctx, span, start := s.op(ctx, "GetClaim")
	claim, err := s.inner.GetClaim(ctx, id)
	s.done(ctx, span, start, err, opAttr)
	return claim, err
}

func (s *InstrumentedStorage) ListClaims(ctx context.Context, dealID, field string) ([]*types.Claim, error) {
	opAttr := attribute.String("db.operation", "ListClaims")
	ctx, span, start := s.op(ctx, "ListClaims", attribute.String("dfl.deal.id", dealID))
	claims, err := s.inner.ListClaims(ctx, dealID, field)
	s.done(ctx, span, start, err, opAttr)
	return claims, err
}

func (s *InstrumentedStorage) GetConflict(ctx context.Context, id string) (*types.Conflict, error) {
	opAttr := attribute.String("db.operation", "GetConflict")
	ctx, span, start := s.op(ctx, "GetConflict")
	conflict, err := s.inner.GetConflict(ctx, id)
	s.done(ctx, span, start, err, opAttr)
	return conflict, err
}

func (s *InstrumentedStorage) ListConflicts(ctx context.Context, dealID string, status types.ConflictStatus) ([]*types.Conflict, error) {
	opAttr := attribute.String("db.operation", "ListConflicts")
	ctx, span, start := s.op(ctx, "ListConflicts", attribute.String("dfl.deal.id", dealID))
	conflicts, err := s.inner.ListConflicts(ctx, dealID, status)
	s.done(ctx, span, start, err, opAttr)
	return conflicts, err
}

func (s *InstrumentedStorage) GetOMVersion(ctx context.Context, id string) (*types.OMVersion, error) {
	opAttr := attribute.String("db.operation", "GetOMVersion")
	ctx, span, start := s.op(ctx, "GetOMVersion")
	v, err := s.inner.GetOMVersion(ctx, id)
	s.done(ctx, span, start, err, opAttr)
	return v, err
}

func (s *InstrumentedStorage) LatestOMVersion(ctx context.Context, dealID string) (*types.OMVersion, error) {
	opAttr := attribute.String("db.operation", "LatestOMVersion")
	ctx, span, start := s.op(ctx, "LatestOMVersion", attribute.String("dfl.deal.id", dealID))
	v, err := s.inner.LatestOMVersion(ctx, dealID)
	s.done(ctx, span, start, err, opAttr)
	return v, err
}

func (s *InstrumentedStorage) ListOMVersions(ctx context.Context, dealID string) ([]*types.OMVersion, error) {
	opAttr := attribute.String("db.operation", "ListOMVersions")
	ctx, span, start := s.op(ctx, "ListOMVersions", attribute.String("dfl.deal.id", dealID))
	versions, err := s.inner.ListOMVersions(ctx, dealID)
	s.done(ctx, span, start, err, opAttr)
	return versions, err
}

func (s *InstrumentedStorage) GetDistribution(ctx context.Context, id string) (*types.Distribution, error) {
	opAttr := attribute.String("db.operation", "GetDistribution")
	ctx, span, start := s.op(ctx, "GetDistribution")
	d, err := s.inner.GetDistribution(ctx, id)
	s.done(ctx, span, start, err, opAttr)
	return d, err
}

func (s *InstrumentedStorage) LatestDistribution(ctx context.Context, dealID string) (*types.Distribution, error) {
	opAttr := attribute.String("db.operation", "LatestDistribution")
	ctx, span, start := s.op(ctx, "LatestDistribution", attribute.String("dfl.deal.id", dealID))
	d, err := s.inner.LatestDistribution(ctx, dealID)
	s.done(ctx, span, start, err, opAttr)
	return d, err
}

func (s *InstrumentedStorage) GetRecipient(ctx context.Context, id string) (*types.DistributionRecipient, error) {
	opAttr := attribute.String("db.operation", "GetRecipient")
	ctx, span, start := s.op(ctx, "GetRecipient")
	r, err := s.inner.GetRecipient(ctx, id)
	s.done(ctx, span, start, err, opAttr)
	return r, err
}

func (s *InstrumentedStorage) GetActiveResponse(ctx context.Context, recipientID string) (*types.BuyerResponse, error) {
	opAttr := attribute.String("db.operation", "GetActiveResponse")
	ctx, span, start := s.op(ctx, "GetActiveResponse")
	resp, err := s.inner.GetActiveResponse(ctx, recipientID)
	s.done(ctx, span, start, err, opAttr)
	return resp, err
}

func (s *InstrumentedStorage) GetAuthorizationByRecipient(ctx context.Context, recipientID string) (*types.BuyerAuthorization, error) {
	opAttr := attribute.String("db.operation", "GetAuthorizationByRecipient")
	ctx, span, start := s.op(ctx, "GetAuthorizationByRecipient")
	auth, err := s.inner.GetAuthorizationByRecipient(ctx, recipientID)
	s.done(ctx, span, start, err, opAttr)
	return auth, err
}

func (s *InstrumentedStorage) GateProgress(ctx context.Context, dealID string) (*types.GateProgress, error) {
	opAttr := attribute.String("db.operation", "GateProgress")
	ctx, span, start := s.op(ctx, "GateProgress", attribute.String("dfl.deal.id", dealID))
	p, err := s.inner.GateProgress(ctx, dealID)
	s.done(ctx, span, start, err, opAttr)
	return p, err
}

func (s *InstrumentedStorage) CreateWorkItem(ctx context.Context, item *types.WorkItem, actor string) error {
	opAttr := attribute.String("db.operation", "CreateWorkItem")
	ctx, span, start := s.op(ctx, "CreateWorkItem", attribute.String("dfl.deal.id", item.DealID))
	err := s.inner.CreateWorkItem(ctx, item, actor)
	s.done(ctx, span, start, err, opAttr)
	return err
}

func (s *InstrumentedStorage) GetWorkItem(ctx context.Context, id string) (*types.WorkItem, error) {
	opAttr := attribute.String("db.operation", "GetWorkItem")
	ctx, span, start := s.op(ctx, "GetWorkItem")
	item, err := s.inner.GetWorkItem(ctx, id)
	s.done(ctx, span, start, err, opAttr)
	return item, err
}

func (s *InstrumentedStorage) CloseWorkItem(ctx context.Context, id, actor string) error {
	opAttr := attribute.String("db.operation", "CloseWorkItem")
	ctx, span, start := s.op(ctx, "CloseWorkItem")
	err := s.inner.CloseWorkItem(ctx, id, actor)
	s.done(ctx, span, start, err, opAttr)
	return err
}

func (s *InstrumentedStorage) ListOverdueItems(ctx context.Context, now time.Time) ([]*types.WorkItem, error) {
	opAttr := attribute.String("db.operation", "ListOverdueItems")
	ctx, span, start := s.op(ctx, "ListOverdueItems")
	items, err := s.inner.ListOverdueItems(ctx, now)
	s.done(ctx, span, start, err, opAttr)
	return items, err
}

func (s *InstrumentedStorage) MarkEscalated(ctx context.Context, item *types.WorkItem, level types.EscalationLevel, at time.Time) error {
	opAttr := attribute.String("db.operation", "MarkEscalated")
	ctx, span, start := s.op(ctx, "MarkEscalated",
		attribute.String("dfl.item.type", string(item.Type)),
		attribute.String("dfl.escalation.level", level.String()),
	)
	err := s.inner.MarkEscalated(ctx, item, level, at)
	s.done(ctx, span, start, err, opAttr)
	return err
}

func (s *InstrumentedStorage) GetEvents(ctx context.Context, entityID string, limit int) ([]*types.Event, error) {
	opAttr := attribute.String("db.operation", "GetEvents")
	ctx, span, start := s.op(ctx, "GetEvents")
	events, err := s.inner.GetEvents(ctx, entityID, limit)
	s.done(ctx, span, start, err, opAttr)
	return events, err
}

// RunInTransaction traces the whole transaction as one span; the individual
// writes inside it are not separately instrumented.
func (s *InstrumentedStorage) RunInTransaction(ctx context.Context, fn func(tx storage.Transaction) error) error {
	opAttr := attribute.String("db.operation", "RunInTransaction")
	ctx, span, start := s.op(ctx, "RunInTransaction")
	err := s.inner.RunInTransaction(ctx, fn)
	s.done(ctx, span, start, err, opAttr)
	return err
}

func (s *InstrumentedStorage) Close() error {
	return s.inner.Close()
}
