package database

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"identity-reconciliation/internal/models"
)

// Sentinel errors shared by the SQL and in-memory stores.
var (
	ErrNotFound    = models.ErrContactNotFound
	ErrEmptyFilter = errors.New("contact filter has no criteria")
	ErrConstraint  = errors.New("constraint violation")
	ErrConflict    = errors.New("concurrent write conflict")
)

// classify tags driver errors with a sentinel so callers can match on them
// without importing a driver package.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code.Class() == "23":
			return fmt.Errorf("%w: %w", ErrConstraint, err)
		case pqErr.Code == "40001" || pqErr.Code == "40P01":
			return fmt.Errorf("%w: %w", ErrConflict, err)
		}
		return err
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code {
		case sqlite3.ErrConstraint:
			return fmt.Errorf("%w: %w", ErrConstraint, err)
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return fmt.Errorf("%w: %w", ErrConflict, err)
		}
	}
	return err
}
