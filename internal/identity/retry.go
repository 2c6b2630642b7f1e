package identity

import (
	"context"
	"errors"
	"fmt"
)

var ErrAttemptsExhausted = errors.New("retry attempts exhausted")

// RetryOnConflict calls fn until it succeeds, returns an error isConflict
// rejects, or attempts run out. fn receives the zero-based attempt number.
func RetryOnConflict(ctx context.Context, attempts int, isConflict func(error) bool, fn func(attempt int) error) error {
	var last error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn(attempt)
		if err == nil {
			return nil
		}
		if !isConflict(err) {
			return err
		}
		last = err
	}
	if last == nil {
		return ErrAttemptsExhausted
	}
	return fmt.Errorf("%w after %d attempts: %v", ErrAttemptsExhausted, attempts, last)
}
