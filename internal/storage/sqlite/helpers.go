package sqlite

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/dealflowhq/dealflow/internal/types"
)

// nullableTime converts sql.NullTime to *time.Time.
func nullableTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

// nullableString converts sql.NullString to *string.
func nullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// nullableFloat converts sql.NullFloat64 to *float64.
func nullableFloat(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	f := nf.Float64
	return &f
}

// marshalSections encodes the section map for the sections TEXT column.
func marshalSections(sections map[string]*types.OMSection) (string, error) {
	if len(sections) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(sections)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// unmarshalSections decodes the sections TEXT column.
func unmarshalSections(s string) (map[string]*types.OMSection, error) {
	sections := make(map[string]*types.OMSection)
	if s == "" {
		return sections, nil
	}
	if err := json.Unmarshal([]byte(s), &sections); err != nil {
		return nil, err
	}
	return sections, nil
}

// marshalStringArray formats a string slice as JSON for TEXT storage.
func marshalStringArray(arr []string) string {
	if len(arr) == 0 {
		return "[]"
	}
	data, err := json.Marshal(arr)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// unmarshalStringArray parses a JSON string array from a TEXT column.
func unmarshalStringArray(s string) []string {
	if s == "" {
		return nil
	}
	var result []string
	if err := json.Unmarshal([]byte(s), &result); err != nil {
		return nil
	}
	return result
}
