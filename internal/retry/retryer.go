// Package retry runs operations repeatedly until they succeed or fail
// permanently.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff"
	"go.uber.org/zap"

	"github.com/simplesurance/cascader/internal/cascaderr"
	"github.com/simplesurance/cascader/internal/logfields"
)

const (
	defTimeout                = 20 * time.Minute
	defBackoffInitialInterval = 5 * time.Second
)

// Retryer executes a function repeatedly until it was successful or a cancel
// condition happened.
type Retryer struct {
	logger                 *zap.Logger
	defTimeout             time.Duration
	backoffInitialInterval time.Duration
	shutdownChan           chan struct{}
}

func NewRetryer() *Retryer {
	return &Retryer{
		logger:                 zap.L().Named("retryer"),
		defTimeout:             defTimeout,
		backoffInitialInterval: defBackoffInitialInterval,
		shutdownChan:           make(chan struct{}),
	}
}

// Run executes fn until it succeeds, it returns an error that does not wrap
// cascaderr.RetryableError, the retry timeout expired or the execution was
// aborted via the context.
// The pause between retries increases exponentially, when the wrapped
// RetryableError specifies an earliest retry time, it is honored instead.
func (r *Retryer) Run(ctx context.Context, fn func(context.Context) error, logF []zap.Field) error {
	var tryCnt uint

	ctx, cancelFunc := context.WithTimeout(ctx, r.defTimeout)
	defer cancelFunc()

	retryTimer := time.NewTimer(0)
	defer retryTimer.Stop()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.backoffInitialInterval

	for {
		tryCnt++
		logger := r.logger.With(logF...).With(zap.Uint("try_count", tryCnt))

		select {
		case <-ctx.Done():
			logger.Debug(
				"operation cancelled",
				logfields.Event("operation_cancelled"),
			)

			return ctx.Err()

		case <-retryTimer.C:
			err := fn(ctx)
			if err == nil {
				return nil
			}

			logger = logger.With(zap.Error(err))

			if errors.Is(err, context.Canceled) {
				logger.Debug(
					"operation cancelled",
					logfields.Event("operation_cancelled"),
				)

				return err
			}

			var retryError *cascaderr.RetryableError
			if !errors.As(err, &retryError) {
				logger.Debug(
					"operation failed, not retryable",
					logfields.Event("operation_failed"),
				)

				return err
			}

			var retryIn time.Duration
			if retryError.After.IsZero() {
				retryIn = bo.NextBackOff()
			} else {
				retryIn = time.Until(retryError.After)
				if retryIn < r.backoffInitialInterval {
					retryIn = bo.NextBackOff()
				}
			}

			retryTimer.Reset(retryIn)
			logger.Info(
				"operation failed, retry scheduled",
				logfields.Event("operation_retry_scheduled"),
				zap.Duration("retry_in", retryIn),
				zap.Duration("age", bo.GetElapsedTime()),
			)

		case <-r.shutdownChan:
			logger.Info(
				"retryer terminated, operation not executed",
				logfields.Event("operation_cancelled_retryer_terminated"),
			)

			return errors.New("retryer terminated")
		}
	}
}

// Stop notifies all Run() methods to terminate.
// It does not wait for their termination.
func (r *Retryer) Stop() {
	r.logger.Debug("retryer terminating", logfields.Event("retryer_terminating"))

	select {
	case <-r.shutdownChan:
		return // already closed
	default:
		close(r.shutdownChan)
	}
}
