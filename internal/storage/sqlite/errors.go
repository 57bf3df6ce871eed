package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dealflowhq/dealflow/internal/types"
)

// wrapDBError wraps a database error with operation context.
// It converts sql.ErrNoRows to types.ErrNotFound for consistent handling.
func wrapDBError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, types.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// isUniqueConstraintError checks if an error is a UNIQUE constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
