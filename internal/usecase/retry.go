package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/qrave1/PairCall/internal/application/constant"
	"github.com/qrave1/PairCall/internal/domain/signaling"
)

const maxRetryDelay = 5 * time.Second

// definitive - ответы хранилища, которые повтор не изменит
func definitive(err error) bool {
	return errors.Is(err, signaling.ErrRoomNotFound) ||
		errors.Is(err, signaling.ErrRoomConflict) ||
		errors.Is(err, signaling.ErrAnswerAlreadySet) ||
		errors.Is(err, signaling.ErrInvalidKey) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// withRetry повторяет операцию хранилища с экспоненциальной задержкой.
// Исчерпанные попытки превращаются в ErrSignalingUnavailable.
func withRetry(
	ctx context.Context,
	cfg SessionConfig,
	op string,
	fn func(ctx context.Context) error,
	onRetry func(attempt int, err error),
) error {
	backoff := retry.WithCappedDuration(
		maxRetryDelay,
		retry.WithMaxRetries(cfg.RetryAttempts, retry.NewExponential(cfg.RetryBase)),
	)

	attempt := 0

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil || definitive(err) {
			return err
		}

		attempt++

		slog.Debug("store operation failed, retrying", "op", op, "attempt", attempt, slog.Any(constant.Error, err))

		if onRetry != nil {
			onRetry(attempt, err)
		}

		return retry.RetryableError(err)
	})

	if err == nil || definitive(err) || ctx.Err() != nil {
		return err
	}

	return fmt.Errorf("%w: %s: %w", ErrSignalingUnavailable, op, err)
}
