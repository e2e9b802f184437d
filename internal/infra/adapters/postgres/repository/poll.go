package repository

import (
	"context"
	"log/slog"
	"time"

	"github.com/qrave1/PairCall/internal/application/constant"
	"github.com/qrave1/PairCall/internal/domain/signaling"
)

// poll запускает tick сразу и затем раз в pollEvery, пока не отменят ctx или подписку.
// tick вызывается из одной горутины, поэтому его состояние не требует синхронизации.
func (r *rendezvousRepo) poll(ctx context.Context, topic, key string, tick func(ctx context.Context) error) signaling.Subscription {
	ctx, cancel := context.WithCancel(ctx)

	go func() {
		ticker := time.NewTicker(r.pollEvery)
		defer ticker.Stop()

		for {
			if err := tick(ctx); err != nil && ctx.Err() == nil {
				slog.Warn(
					"poll rendezvous store",
					slog.String("topic", topic),
					slog.String(constant.RoomKey, key),
					slog.Any(constant.Error, err),
				)
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return signaling.SubscriptionFunc(cancel)
}
