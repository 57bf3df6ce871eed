// Package timeparsing turns command-line due expressions into timestamps.
//
// Accepted forms, tried in order:
//
//	+2d, 6h, 1w       forward offset from now (hours, days, weeks)
//	2026-09-15        date in now's zone, midnight
//	RFC3339           exact timestamp
//	"in 3 days"       natural language via the when rules
package timeparsing

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"github.com/dealflowhq/dealflow/internal/types"
)

// ParseDue resolves a due expression relative to now.
func ParseDue(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty due expression", types.ErrValidation)
	}
	if t, ok := parseOffset(s, now); ok {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", s, now.Location()); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return parseNatural(s, now)
}

// parseOffset handles the compact offset forms. The leading "+" is optional;
// due offsets always point forward.
func parseOffset(s string, now time.Time) (time.Time, bool) {
	rest := strings.TrimPrefix(s, "+")
	if len(rest) < 2 {
		return time.Time{}, false
	}
	n, err := strconv.Atoi(rest[:len(rest)-1])
	if err != nil || n < 0 {
		return time.Time{}, false
	}
	switch rest[len(rest)-1] {
	case 'h':
		return now.Add(time.Duration(n) * time.Hour), true
	case 'd':
		return now.AddDate(0, 0, n), true
	case 'w':
		return now.AddDate(0, 0, 7*n), true
	}
	return time.Time{}, false
}

func parseNatural(s string, now time.Time) (time.Time, error) {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	r, err := w.Parse(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: due expression %q: %v", types.ErrValidation, s, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("%w: unrecognized due expression %q", types.ErrValidation, s)
	}
	return r.Time, nil
}
