package escalation

import (
	"fmt"
	"time"

	"github.com/dealflowhq/dealflow/internal/types"
)

// QuietWindow is a per-user daily window during which escalation deliveries
// are suppressed. The window is [start, end) in minutes of the day and may
// span midnight. Composable: callers apply it per recipient after Evaluate,
// it is not part of the core evaluation.
type QuietWindow struct {
	start int // minute of day
	end   int
}

// NewQuietWindow parses "HH:MM" start and end times.
func NewQuietWindow(start, end string) (QuietWindow, error) {
	s, err := minuteOfDay(start)
	if err != nil {
		return QuietWindow{}, err
	}
	e, err := minuteOfDay(end)
	if err != nil {
		return QuietWindow{}, err
	}
	return QuietWindow{start: s, end: e}, nil
}

// Suppressed reports whether a delivery at t falls inside the window.
func (w QuietWindow) Suppressed(t time.Time) bool {
	if w.start == w.end {
		return false
	}
	m := t.Hour()*60 + t.Minute()
	if w.start < w.end {
		return m >= w.start && m < w.end
	}
	// Spans midnight.
	return m >= w.start || m < w.end
}

func minuteOfDay(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("%w: invalid time %q (want HH:MM)", types.ErrValidation, s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("%w: time %q out of range", types.ErrValidation, s)
	}
	return h*60 + m, nil
}
