package util

import (
	"context"
	"fmt"
	"time"
)

// maxBackoff caps the delay between retry attempts.
const maxBackoff = 30 * time.Second

// Retry runs fn until it succeeds, making up to maxAttempts calls. The delay
// between attempts doubles from baseDelay up to a 30s ceiling. Cancelling ctx
// aborts the wait between attempts.
func Retry(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	delay := baseDelay
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn()
		if err == nil {
			return nil
		}
		if attempt == maxAttempts {
			return fmt.Errorf("after %d attempts: %w", maxAttempts, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxBackoff {
			delay = maxBackoff
		}
	}
}
