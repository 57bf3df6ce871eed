// Package escalation decides whether a stalled work item should be escalated,
// to whom, and at what level. Evaluation is a pure function of the item, the
// policy, and the clock; the only persisted state is the item's escalated_at
// stamp, written by the sweep after a successful dispatch.
package escalation

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/dealflowhq/dealflow/internal/types"
)

// Threshold maps a whole-day overdue count to an escalation level.
type Threshold struct {
	Days  int
	Level types.EscalationLevel
}

// Policy is an immutable escalation configuration. Construct one with
// NewPolicy or LoadPolicy and pass it into Evaluate explicitly; there is no
// process-wide threshold table.
type Policy struct {
	coolOffHours int
	thresholds   map[types.WorkItemType][]Threshold
}

// PolicyConfig is the serialized form of a Policy.
type PolicyConfig struct {
	CoolOffHours int `yaml:"coolOffHours"`
	ItemTypes    map[string][]ThresholdConfig `yaml:"itemTypes"`
}

// ThresholdConfig is one serialized threshold entry.
type ThresholdConfig struct {
	Days  int    `yaml:"days"`
	Level string `yaml:"level"`
}

// DefaultPolicy returns the built-in threshold table, used when no policy
// file is configured.
func DefaultPolicy() Policy {
	p, err := NewPolicy(PolicyConfig{
		CoolOffHours: 24,
		ItemTypes: map[string][]ThresholdConfig{
			string(types.ItemTask): {
				{Days: 2, Level: "CREATOR"},
				{Days: 5, Level: "DEAL_TEAM"},
				{Days: 10, Level: "MANAGER"},
			},
			string(types.ItemReviewRequest): {
				{Days: 1, Level: "CREATOR"},
				{Days: 3, Level: "DEAL_TEAM"},
			},
			string(types.ItemDealSubmission): {
				{Days: 3, Level: "CREATOR"},
				{Days: 7, Level: "DEAL_TEAM"},
			},
		},
	})
	if err != nil {
		panic(err) // the built-in table is statically valid
	}
	return p
}

// NewPolicy validates a config and freezes it into a Policy. Thresholds are
// stored sorted ascending by day count.
func NewPolicy(cfg PolicyConfig) (Policy, error) {
	if cfg.CoolOffHours < 0 {
		return Policy{}, fmt.Errorf("%w: coolOffHours must be >= 0 (got %d)", types.ErrValidation, cfg.CoolOffHours)
	}

	thresholds := make(map[types.WorkItemType][]Threshold, len(cfg.ItemTypes))
	for name, entries := range cfg.ItemTypes {
		itemType := types.WorkItemType(name)
		if !itemType.IsValid() {
			return Policy{}, fmt.Errorf("%w: unknown item type %q", types.ErrValidation, name)
		}
		table := make([]Threshold, 0, len(entries))
		for _, e := range entries {
			if e.Days < 0 {
				return Policy{}, fmt.Errorf("%w: %s threshold days must be >= 0 (got %d)", types.ErrValidation, name, e.Days)
			}
			level, err := parseLevel(e.Level)
			if err != nil {
				return Policy{}, err
			}
			table = append(table, Threshold{Days: e.Days, Level: level})
		}
		sort.Slice(table, func(i, j int) bool { return table[i].Days < table[j].Days })
		thresholds[itemType] = table
	}

	return Policy{coolOffHours: cfg.CoolOffHours, thresholds: thresholds}, nil
}

// LoadPolicy reads a YAML policy file.
func LoadPolicy(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy %s: %w", path, err)
	}
	var cfg PolicyConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Policy{}, fmt.Errorf("parse policy %s: %w", path, err)
	}
	return NewPolicy(cfg)
}

// CoolOffHours returns the minimum gap between escalations of one item.
func (p Policy) CoolOffHours() int {
	return p.coolOffHours
}

// Thresholds returns a copy of the threshold table for the item type.
func (p Policy) Thresholds(t types.WorkItemType) []Threshold {
	table := p.thresholds[t]
	out := make([]Threshold, len(table))
	copy(out, table)
	return out
}

func parseLevel(s string) (types.EscalationLevel, error) {
	switch s {
	case "NONE":
		return types.LevelNone, nil
	case "CREATOR":
		return types.LevelCreator, nil
	case "DEAL_TEAM":
		return types.LevelDealTeam, nil
	case "MANAGER":
		return types.LevelManager, nil
	}
	return types.LevelNone, fmt.Errorf("%w: unknown escalation level %q", types.ErrValidation, s)
}
