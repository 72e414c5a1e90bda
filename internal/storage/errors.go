package storage

import (
	"errors"
	"fmt"

	"github.com/healthtax/taxcore/internal/types"
	"github.com/jackc/pgx/v5"
)

// WrapDBError wraps a database error with operation context, mapping
// pgx.ErrNoRows to types.ErrNotFound for callers to match with
// errors.Is regardless of backend. Grounded directly on the teacher's
// internal/storage/sqlite/errors.go wrapDBError.
func WrapDBError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, types.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsNotFound reports whether err is or wraps types.ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, types.ErrNotFound)
}
