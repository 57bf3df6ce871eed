package escalation

import (
	"time"

	"github.com/dealflowhq/dealflow/internal/types"
)

// Reason codes for a no-op evaluation.
const (
	ReasonNotDue       = "not_due"
	ReasonCoolingOff   = "cooling_off"
	ReasonNoRecipients = "no_recipients"
	ReasonClosed       = "closed"
)

// Team lists the people reachable at the broader escalation levels for a
// work item's deal.
type Team struct {
	DealTeam []string
	Managers []string
}

// Evaluation is the outcome of one policy check. Ephemeral: computed, acted
// on, and discarded; never stored.
type Evaluation struct {
	ShouldEscalate bool
	Level          types.EscalationLevel
	Recipients     []string
	DaysOverdue    int
	Reason         string // set when ShouldEscalate is false
}

// Evaluate runs the policy against one work item. Elapsed whole days are the
// floor of the absolute millisecond difference over a day length, so clock
// skew between the item's timestamp source and now is tolerated. Thresholds
// are walked ascending and the highest met level wins. An item escalated
// within the cool-off window is suppressed regardless of level.
func Evaluate(policy Policy, item *types.WorkItem, team Team, now time.Time) Evaluation {
	if item.Closed {
		return Evaluation{Reason: ReasonClosed}
	}

	days := wholeDaysBetween(item.StartedAt, now)
	level := types.LevelNone
	for _, t := range policy.Thresholds(item.Type) {
		if days >= t.Days && t.Level > level {
			level = t.Level
		}
	}
	if level == types.LevelNone {
		return Evaluation{DaysOverdue: days, Reason: ReasonNotDue}
	}

	if item.EscalatedAt != nil {
		// Absolute difference, same skew tolerance as the day arithmetic.
		elapsed := now.Sub(*item.EscalatedAt)
		if elapsed < 0 {
			elapsed = -elapsed
		}
		if elapsed < time.Duration(policy.CoolOffHours())*time.Hour {
			return Evaluation{Level: level, DaysOverdue: days, Reason: ReasonCoolingOff}
		}
	}

	recipients := recipientsFor(level, item, team)
	if len(recipients) == 0 {
		return Evaluation{Level: level, DaysOverdue: days, Reason: ReasonNoRecipients}
	}

	return Evaluation{
		ShouldEscalate: true,
		Level:          level,
		Recipients:     recipients,
		DaysOverdue:    days,
	}
}

// recipientsFor derives the recipient set: the creator alone at CREATOR, the
// creator plus the deal-team broadcast at DEAL_TEAM, managers added on top at
// MANAGER. The set is deduplicated and the current assignee is excluded.
func recipientsFor(level types.EscalationLevel, item *types.WorkItem, team Team) []string {
	var candidates []string
	candidates = append(candidates, item.Creator)
	if level >= types.LevelDealTeam {
		candidates = append(candidates, team.DealTeam...)
	}
	if level >= types.LevelManager {
		candidates = append(candidates, team.Managers...)
	}

	seen := make(map[string]bool, len(candidates))
	var out []string
	for _, c := range candidates {
		if c == "" || c == item.Assignee || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

func wholeDaysBetween(a, b time.Time) int {
	ms := b.UnixMilli() - a.UnixMilli()
	if ms < 0 {
		ms = -ms
	}
	return int(ms / (24 * time.Hour).Milliseconds())
}
