package escalation

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealflowhq/dealflow/internal/types"
)

func taskPolicy(t *testing.T, coolOffHours int) Policy {
	t.Helper()
	p, err := NewPolicy(PolicyConfig{
		CoolOffHours: coolOffHours,
		ItemTypes: map[string][]ThresholdConfig{
			"task": {
				{Days: 2, Level: "CREATOR"},
				{Days: 5, Level: "DEAL_TEAM"},
			},
		},
	})
	require.NoError(t, err)
	return p
}

var clock = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func overdueTask(daysAgo int) *types.WorkItem {
	return &types.WorkItem{
		ID:        "task-1",
		Type:      types.ItemTask,
		Title:     "follow up with lender",
		Creator:   "alice",
		StartedAt: clock.Add(-time.Duration(daysAgo) * 24 * time.Hour),
	}
}

func TestEvaluateThresholdWalk(t *testing.T) {
	policy := taskPolicy(t, 24)
	now := clock
	team := Team{DealTeam: []string{"bob", "carol"}}

	// 3 days overdue meets the 2-day threshold only.
	eval := Evaluate(policy, overdueTask(3), team, now)
	assert.True(t, eval.ShouldEscalate)
	assert.Equal(t, types.LevelCreator, eval.Level)
	assert.Equal(t, 3, eval.DaysOverdue)
	assert.Equal(t, []string{"alice"}, eval.Recipients)

	// 6 days overdue: the larger threshold overrides.
	eval = Evaluate(policy, overdueTask(6), team, now)
	assert.True(t, eval.ShouldEscalate)
	assert.Equal(t, types.LevelDealTeam, eval.Level)
	assert.Equal(t, []string{"alice", "bob", "carol"}, eval.Recipients)

	// 1 day overdue meets nothing.
	eval = Evaluate(policy, overdueTask(1), team, now)
	assert.False(t, eval.ShouldEscalate)
	assert.Equal(t, ReasonNotDue, eval.Reason)
}

func TestEvaluateCoolOffSuppresses(t *testing.T) {
	policy := taskPolicy(t, 24)
	now := clock

	item := overdueTask(6)
	escalated := now.Add(-10 * time.Hour)
	item.EscalatedAt = &escalated

	eval := Evaluate(policy, item, Team{DealTeam: []string{"bob"}}, now)
	assert.False(t, eval.ShouldEscalate)
	assert.Equal(t, ReasonCoolingOff, eval.Reason)

	// Past the cool-off the same item escalates again.
	escalated = now.Add(-25 * time.Hour)
	item.EscalatedAt = &escalated
	eval = Evaluate(policy, item, Team{DealTeam: []string{"bob"}}, now)
	assert.True(t, eval.ShouldEscalate)

	// A stamp slightly ahead of now (writer clock skew) still cools off.
	escalated = now.Add(2 * time.Hour)
	item.EscalatedAt = &escalated
	eval = Evaluate(policy, item, Team{DealTeam: []string{"bob"}}, now)
	assert.False(t, eval.ShouldEscalate)
	assert.Equal(t, ReasonCoolingOff, eval.Reason)
}

func TestEvaluateRecipientDerivation(t *testing.T) {
	policy := taskPolicy(t, 24)
	now := clock

	// The assignee is excluded and duplicates collapse.
	item := overdueTask(6)
	item.Assignee = "bob"
	eval := Evaluate(policy, item, Team{DealTeam: []string{"bob", "alice", "carol"}}, now)
	require.True(t, eval.ShouldEscalate)
	assert.Equal(t, []string{"alice", "carol"}, eval.Recipients)

	// Everyone excluded: no-op with no_recipients.
	item = overdueTask(3)
	item.Creator = ""
	eval = Evaluate(policy, item, Team{}, now)
	assert.False(t, eval.ShouldEscalate)
	assert.Equal(t, ReasonNoRecipients, eval.Reason)
}

func TestEvaluateClosedItem(t *testing.T) {
	item := overdueTask(6)
	item.Closed = true
	eval := Evaluate(taskPolicy(t, 24), item, Team{}, clock)
	assert.False(t, eval.ShouldEscalate)
	assert.Equal(t, ReasonClosed, eval.Reason)
}

func TestEvaluateManagerLevel(t *testing.T) {
	policy := DefaultPolicy()
	team := Team{DealTeam: []string{"bob"}, Managers: []string{"dana"}}

	eval := Evaluate(policy, overdueTask(11), team, clock)
	require.True(t, eval.ShouldEscalate)
	assert.Equal(t, types.LevelManager, eval.Level)
	assert.Equal(t, []string{"alice", "bob", "dana"}, eval.Recipients)
}

func TestEvaluateToleratesClockSkew(t *testing.T) {
	policy := taskPolicy(t, 24)
	// StartedAt in the future: absolute difference is used.
	item := overdueTask(-3)
	eval := Evaluate(policy, item, Team{}, clock)
	assert.Equal(t, 3, eval.DaysOverdue)
}

func TestQuietWindowSpansMidnight(t *testing.T) {
	w, err := NewQuietWindow("22:00", "08:00")
	require.NoError(t, err)

	at := func(hour, min int) time.Time {
		return time.Date(2026, 3, 10, hour, min, 0, 0, time.UTC)
	}
	assert.True(t, w.Suppressed(at(23, 30)))
	assert.True(t, w.Suppressed(at(5, 0)))
	assert.False(t, w.Suppressed(at(12, 0)))

	// End is exclusive.
	assert.False(t, w.Suppressed(at(8, 0)))
	assert.True(t, w.Suppressed(at(22, 0)))
}

func TestQuietWindowSameDay(t *testing.T) {
	w, err := NewQuietWindow("12:00", "13:30")
	require.NoError(t, err)

	at := func(hour, min int) time.Time {
		return time.Date(2026, 3, 10, hour, min, 0, 0, time.UTC)
	}
	assert.True(t, w.Suppressed(at(12, 45)))
	assert.False(t, w.Suppressed(at(13, 30)))
	assert.False(t, w.Suppressed(at(11, 59)))
}

func TestQuietWindowValidation(t *testing.T) {
	_, err := NewQuietWindow("25:00", "08:00")
	assert.ErrorIs(t, err, types.ErrValidation)
	_, err = NewQuietWindow("bogus", "08:00")
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestLoadPolicyFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "escalation.yaml")
	content := `coolOffHours: 12
itemTypes:
  task:
    - days: 5
      level: DEAL_TEAM
    - days: 2
      level: CREATOR
  reviewRequest:
    - days: 1
      level: CREATOR
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	policy, err := LoadPolicy(path)
	require.NoError(t, err)
	assert.Equal(t, 12, policy.CoolOffHours())

	// Out-of-order entries are sorted ascending.
	table := policy.Thresholds(types.ItemTask)
	require.Len(t, table, 2)
	assert.Equal(t, 2, table[0].Days)
	assert.Equal(t, types.LevelCreator, table[0].Level)
	assert.Equal(t, 5, table[1].Days)
}

func TestNewPolicyRejectsBadConfig(t *testing.T) {
	_, err := NewPolicy(PolicyConfig{ItemTypes: map[string][]ThresholdConfig{
		"task": {{Days: 2, Level: "VP_OF_DEALS"}},
	}})
	assert.ErrorIs(t, err, types.ErrValidation)

	_, err = NewPolicy(PolicyConfig{ItemTypes: map[string][]ThresholdConfig{
		"meeting": {{Days: 2, Level: "CREATOR"}},
	}})
	assert.ErrorIs(t, err, types.ErrValidation)

	_, err = NewPolicy(PolicyConfig{CoolOffHours: -1})
	assert.ErrorIs(t, err, types.ErrValidation)
}
