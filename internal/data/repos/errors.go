package repos

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrConflict     = errors.New("conflict")
	ErrPrecondition = errors.New("precondition failed")
	ErrRetryable    = errors.New("retryable")
)

// MapError tags infrastructure failures with one of the sentinel errors above
// so callers can branch with errors.Is. Unknown errors are only wrapped with op.
func MapError(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrConflict),
		errors.Is(err, ErrPrecondition), errors.Is(err, ErrRetryable):
		return fmt.Errorf("%s: %w", op, err)
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", op, errors.Join(ErrNotFound, err))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", op, errors.Join(ErrRetryable, err))
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch strings.TrimSpace(pgErr.Code) {
		case "23505":
			return fmt.Errorf("%s: %w", op, errors.Join(ErrConflict, err)) // unique_violation
		case "23503":
			return fmt.Errorf("%s: %w", op, errors.Join(ErrPrecondition, err)) // foreign_key_violation
		case "40001", "40P01", "55P03":
			return fmt.Errorf("%s: %w", op, errors.Join(ErrRetryable, err))
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "duplicate key"), strings.Contains(msg, "unique constraint"):
		return fmt.Errorf("%s: %w", op, errors.Join(ErrConflict, err))
	case strings.Contains(msg, "deadlock"),
		strings.Contains(msg, "serialization"),
		strings.Contains(msg, "database is locked"),
		strings.Contains(msg, "timeout"):
		return fmt.Errorf("%s: %w", op, errors.Join(ErrRetryable, err))
	}
	return fmt.Errorf("%s: %w", op, err)
}
