package infodoc

import (
	"context"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/rs/zerolog/log"
)

// newBackOff returns the policy for waiting between attempts that hit version conflicts.
// It stops once the configured number of retries is used up or ctx is done.
func (e *Engine) newBackOff(ctx context.Context) backoff.BackOff {
	exponential := backoff.NewExponentialBackOff()
	exponential.InitialInterval = e.settings.RetryMinWait
	exponential.MaxInterval = e.settings.RetryMaxWait
	exponential.MaxElapsedTime = 0
	exponential.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(exponential, uint64(e.settings.VersionConflictRetryTimes)), ctx)
}

// waitToRetry blocks for the next backoff interval, or returns an error if there
// shouldn't be another attempt.
func waitToRetry(ctx context.Context, b backoff.BackOff, id Id, attempts uint) error {
	wait := b.NextBackOff()
	if wait == backoff.Stop {
		if err := ctx.Err(); err != nil {
			return err
		}
		return RetryExhausted{ID: id, Attempts: attempts}
	}
	log.Debug().
		Str("info_doc_id", string(id)).
		Uint("attempts", attempts).
		Dur("wait", wait).
		Msg("Version conflict, retrying")
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retryOnConflict runs attempt until it returns anything other than InvalidVersion.
//
// attempt must start from a fresh read every time so that whatever the winning writer
// stored is carried forward.
func (e *Engine) retryOnConflict(ctx context.Context, id Id, attempt func() error) error {
	b := e.newBackOff(ctx)
	for attempts := uint(1); ; attempts++ {
		err := attempt()
		if _, isConflict := err.(InvalidVersion); !isConflict {
			return err
		}
		if err := waitToRetry(ctx, b, id, attempts); err != nil {
			return err
		}
	}
}
