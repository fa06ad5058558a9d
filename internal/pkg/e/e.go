// Package e classifies gateway errors into a small set of sentinels so
// callers can branch with errors.Is regardless of the driver underneath.
package e

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrInternal        = errors.New("internal error")
	ErrDeadline        = errors.New("deadline exceeded")
	ErrCanceled        = errors.New("context canceled")
	ErrUniqueViolation = errors.New("unique violation")
)

func Wrap(message string, err error) error {
	return fmt.Errorf("%s: %w", message, err)
}

// WrapError tags err with op and the matching sentinel. The original error
// stays in the chain.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w", op, ErrDeadline, err)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w: %w", op, ErrCanceled, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%s: %w: %w", op, ErrUniqueViolation, err)
		case "23503", "23514":
			return fmt.Errorf("%s: %w: %w", op, ErrInvalidInput, err)
		default:
			return fmt.Errorf("%s: pg error %s: %w: %w", op, pgErr.Code, ErrInternal, err)
		}
	}
	if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}
