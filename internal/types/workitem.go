package types

import (
	"fmt"
	"time"
)

// WorkItemType categorizes escalatable work items. Tasks are explicit rows;
// review requests and deal submissions are synthesized from open conflicts
// and unanswered distribution recipients when the sweeper runs.
type WorkItemType string

// Work item type constants
const (
	ItemTask           WorkItemType = "task"
	ItemReviewRequest  WorkItemType = "reviewRequest"
	ItemDealSubmission WorkItemType = "dealSubmission"
)

// IsValid checks if the work item type value is valid.
func (t WorkItemType) IsValid() bool {
	switch t {
	case ItemTask, ItemReviewRequest, ItemDealSubmission:
		return true
	}
	return false
}

// EscalationLevel is the target audience of an escalation, in ascending
// breadth.
type EscalationLevel int

// Escalation levels, ordered
const (
	LevelNone EscalationLevel = iota
	LevelCreator
	LevelDealTeam
	LevelManager
)

// String renders the level for logs and audit events.
func (l EscalationLevel) String() string {
	switch l {
	case LevelNone:
		return "NONE"
	case LevelCreator:
		return "CREATOR"
	case LevelDealTeam:
		return "DEAL_TEAM"
	case LevelManager:
		return "MANAGER"
	}
	return fmt.Sprintf("EscalationLevel(%d)", int(l))
}

// WorkItem is a unit of stalled-able work fed to the escalation engine.
// StartedAt is the timestamp elapsed time is measured from: the due date for
// tasks, the opened/pushed time for synthesized items.
type WorkItem struct {
	ID       string       `json:"id"`
	DealID   string       `json:"deal_id,omitempty"`
	Type     WorkItemType `json:"type"`
	Title    string       `json:"title,omitempty"`
	Creator  string       `json:"creator,omitempty"`
	Assignee string       `json:"assignee,omitempty"`

	StartedAt   time.Time  `json:"started_at"`
	EscalatedAt *time.Time `json:"escalated_at,omitempty"`
	Closed      bool       `json:"closed,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Validate checks that the work item has valid field values.
func (w *WorkItem) Validate() error {
	if w.Title == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if !w.Type.IsValid() {
		return fmt.Errorf("%w: invalid work item type: %s", ErrValidation, w.Type)
	}
	if w.StartedAt.IsZero() {
		return fmt.Errorf("%w: started_at is required", ErrValidation)
	}
	return nil
}
