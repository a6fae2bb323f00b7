package service

import (
	"errors"

	"github.com/nholding/lifting-book/internal/plan/domain"
)

// classifyRemoteError passes the typed domain errors through untouched and
// wraps everything else (driver errors, timeouts, broken connections) as a
// *domain.TransientError. The engine never retries these on its own; the
// user re-triggers the action.
func classifyRemoteError(op string, err error) error {
	if err == nil {
		return nil
	}

	var (
		validation *domain.ValidationError
		conflict   *domain.ConflictError
		locked     *domain.LockedError
	)
	if errors.As(err, &validation) || errors.As(err, &conflict) || errors.As(err, &locked) {
		return err
	}

	return &domain.TransientError{Op: op, Err: err}
}
