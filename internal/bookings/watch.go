package bookings

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/mwestberg/physiobook/pkg/logging"
)

const changeChannelPrefix = "bookings:changed:"

// Watcher fans booking-change fires out across sessions over Redis
// pub/sub. The fire carries no payload; subscribers refetch the full list.
type Watcher struct {
	client *redis.Client
	logger *logging.Logger
}

// NewWatcher creates a watcher on the given Redis client.
func NewWatcher(client *redis.Client, logger *logging.Logger) *Watcher {
	if client == nil {
		panic("bookings: redis client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Watcher{client: client, logger: logger}
}

// BookingsChanged publishes a change fire for the user. Publish failures
// are logged, never propagated: a missed fire degrades freshness, not
// correctness, because every mutation path also refetches locally.
func (w *Watcher) BookingsChanged(ctx context.Context, userID string) {
	if userID == "" {
		return
	}
	if err := w.client.Publish(ctx, changeChannelPrefix+userID, "").Err(); err != nil {
		w.logger.Error("failed to publish booking change", "error", err, "user_id", userID)
	}
}

// Watch subscribes to change fires for one user. The returned channel
// receives a token per fire (coalesced when the consumer lags) and closes
// when stop is called or ctx ends.
func (w *Watcher) Watch(ctx context.Context, userID string) (<-chan struct{}, func()) {
	sub := w.client.Subscribe(ctx, changeChannelPrefix+userID)
	out := make(chan struct{}, 1)

	go func() {
		defer close(out)
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()

	stop := func() {
		if err := sub.Close(); err != nil {
			w.logger.Debug("watcher close", "error", err)
		}
	}
	return out, stop
}
