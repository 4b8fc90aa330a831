package common

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/ahrav/taskfarm/pkg/common/logger"
)

// RetryConfig bounds an exponential backoff. A zero MaxElapsedTime retries
// until the context ends.
type RetryConfig struct {
	InitialInterval time.Duration
	MaxElapsedTime  time.Duration
}

// DefaultRetryConfig starts at one second and gives up after two minutes,
// which covers a dispatcher that is still starting when workers launch.
var DefaultRetryConfig = RetryConfig{
	InitialInterval: time.Second,
	MaxElapsedTime:  2 * time.Minute,
}

// RetryWithBackoff runs op until it succeeds, the backoff gives up, or ctx is
// cancelled. Each failed attempt is logged with the delay before the next one.
func RetryWithBackoff(
	ctx context.Context,
	log *logger.Logger,
	what string,
	cfg RetryConfig,
	op func() error,
) error {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.MaxElapsedTime = cfg.MaxElapsedTime
	if cfg.InitialInterval > 0 {
		expBackoff.InitialInterval = cfg.InitialInterval
	}
	expBackoff.Reset()

	notify := func(err error, next time.Duration) {
		log.Warn(ctx, "attempt failed, will retry",
			"operation", what,
			"error", err,
			"next_attempt_in", next.String(),
		)
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(expBackoff, ctx), notify); err != nil {
		return fmt.Errorf("%s failed after retries: %w", what, err)
	}
	return nil
}
