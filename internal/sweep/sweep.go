// Package sweep runs the periodic escalation pass: list overdue work items,
// evaluate each against the policy, stamp and notify the ones that escalate.
// A single sweeper owns the loop; evaluations fan out across items but one
// item is never evaluated by two passes at once.
package sweep

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dealflowhq/dealflow/internal/escalation"
	"github.com/dealflowhq/dealflow/internal/notification"
	"github.com/dealflowhq/dealflow/internal/storage"
	"github.com/dealflowhq/dealflow/internal/types"
)

const (
	defaultInterval    = 15 * time.Minute
	defaultConcurrency = 8
)

// Sweeper periodically evaluates overdue work items and escalates them.
type Sweeper struct {
	store  storage.Storage
	notify notification.Notifier

	mu       sync.RWMutex
	policy   escalation.Policy
	managers []string
	quiet    map[string]escalation.QuietWindow

	interval    time.Duration
	concurrency int
	now         func() time.Time

	inflight sync.Map // item id -> struct{}
	running  sync.Mutex
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithInterval sets the sweep period.
func WithInterval(d time.Duration) Option {
	return func(s *Sweeper) { s.interval = d }
}

// WithManagers sets the recipients added at the MANAGER level.
func WithManagers(ids []string) Option {
	return func(s *Sweeper) { s.managers = ids }
}

// WithConcurrency caps parallel item evaluations per pass.
func WithConcurrency(n int) Option {
	return func(s *Sweeper) { s.concurrency = n }
}

// WithQuietHours sets per-recipient quiet windows. The "*" key is the default
// for recipients without their own entry.
func WithQuietHours(windows map[string]escalation.QuietWindow) Option {
	return func(s *Sweeper) { s.quiet = windows }
}

// ParseQuietHours converts recipient -> "HH:MM-HH:MM" config entries into
// quiet windows for WithQuietHours.
func ParseQuietHours(entries map[string]string) (map[string]escalation.QuietWindow, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	windows := make(map[string]escalation.QuietWindow, len(entries))
	for recipient, span := range entries {
		start, end, ok := strings.Cut(span, "-")
		if !ok {
			return nil, fmt.Errorf("%w: quiet hours %q for %s (want HH:MM-HH:MM)",
				types.ErrValidation, span, recipient)
		}
		w, err := escalation.NewQuietWindow(strings.TrimSpace(start), strings.TrimSpace(end))
		if err != nil {
			return nil, err
		}
		windows[recipient] = w
	}
	return windows, nil
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

// New creates a sweeper. notify may be nil.
func New(store storage.Storage, notify notification.Notifier, policy escalation.Policy, opts ...Option) *Sweeper {
	if notify == nil {
		notify = notification.NopNotifier{}
	}
	s := &Sweeper{
		store:       store,
		notify:      notify,
		policy:      policy,
		interval:    defaultInterval,
		concurrency: defaultConcurrency,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Policy returns the active policy.
func (s *Sweeper) Policy() escalation.Policy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.policy
}

// SetPolicy swaps the active policy for subsequent passes.
func (s *Sweeper) SetPolicy(p escalation.Policy) {
	s.mu.Lock()
	s.policy = p
	s.mu.Unlock()
}

// Summary reports one sweep pass.
type Summary struct {
	Evaluated  int
	Escalated  int
	Suppressed int
	Errors     int
}

// Run loops until the context is cancelled, sweeping once per interval. An
// immediate first pass runs on start.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		summary, err := s.SweepOnce(ctx)
		if err != nil {
			log.Printf("sweep: pass failed: %v", err)
		} else if summary.Escalated > 0 || summary.Errors > 0 {
			log.Printf("sweep: evaluated=%d escalated=%d suppressed=%d errors=%d",
				summary.Evaluated, summary.Escalated, summary.Suppressed, summary.Errors)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// SweepOnce runs a single pass. Passes are serialized: a pass that starts
// while another is running waits for it.
func (s *Sweeper) SweepOnce(ctx context.Context) (Summary, error) {
	s.running.Lock()
	defer s.running.Unlock()

	now := s.now().UTC()
	items, err := s.store.ListOverdueItems(ctx, now)
	if err != nil {
		return Summary{}, fmt.Errorf("list overdue items: %w", err)
	}

	policy := s.Policy()

	var mu sync.Mutex
	summary := Summary{Evaluated: len(items)}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, item := range items {
		g.Go(func() error {
			if _, busy := s.inflight.LoadOrStore(item.ID, struct{}{}); busy {
				return nil
			}
			defer s.inflight.Delete(item.ID)

			escalated, err := s.evaluateItem(gctx, policy, item, now)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				summary.Errors++
				log.Printf("sweep: item %s: %v", item.ID, err)
			case escalated:
				summary.Escalated++
			default:
				summary.Suppressed++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}
	return summary, nil
}

// evaluateItem evaluates one item and, when due, stamps it and dispatches
// the escalation notification. Notification failures are logged by the sinks
// and never undo the stamp.
func (s *Sweeper) evaluateItem(ctx context.Context, policy escalation.Policy, item *types.WorkItem, now time.Time) (bool, error) {
	team, err := s.teamFor(ctx, item.DealID)
	if err != nil {
		return false, err
	}

	eval := escalation.Evaluate(policy, item, team, now)
	if !eval.ShouldEscalate {
		return false, nil
	}

	recipients := s.deliverable(eval.Recipients, now)
	if len(recipients) == 0 {
		// Everyone is inside quiet hours. The item stays unstamped so the
		// next pass retries once a window opens.
		return false, nil
	}

	if err := s.store.MarkEscalated(ctx, item, eval.Level, now); err != nil {
		return false, err
	}

	s.notify.Dispatch(ctx, notification.Event{
		DealID:     item.DealID,
		EntityID:   item.ID,
		Kind:       notification.KindEscalation,
		Message:    fmt.Sprintf("%s escalated to %s (%d days overdue)", item.Title, eval.Level, eval.DaysOverdue),
		Recipients: recipients,
	})
	return true, nil
}

// deliverable drops recipients whose quiet window covers now.
func (s *Sweeper) deliverable(recipients []string, now time.Time) []string {
	if len(s.quiet) == 0 {
		return recipients
	}
	out := make([]string, 0, len(recipients))
	for _, r := range recipients {
		w, ok := s.quiet[r]
		if !ok {
			w, ok = s.quiet["*"]
		}
		if ok && w.Suppressed(now) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// teamFor derives the deal-team broadcast list from the deal's broker edges.
// Items without a deal get the configured managers only.
func (s *Sweeper) teamFor(ctx context.Context, dealID string) (escalation.Team, error) {
	team := escalation.Team{Managers: s.managers}
	if dealID == "" {
		return team, nil
	}
	brokers, err := s.store.ListDealBrokers(ctx, dealID)
	if err != nil {
		return escalation.Team{}, fmt.Errorf("deal team for %s: %w", dealID, err)
	}
	for _, b := range brokers {
		team.DealTeam = append(team.DealTeam, b.BrokerID)
	}
	return team, nil
}
