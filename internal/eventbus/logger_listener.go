package eventbus

import (
	"context"

	"github.com/annel0/voxel-creatures/internal/logging"
)

// StartLoggingListener подписывается на события и пишет их в лог компонента "events".
// Функция неблокирующая.
func StartLoggingListener(ctx context.Context, bus EventBus, f Filter) (Subscription, error) {
	log := logging.GetComponentLogger("events")
	sub, err := bus.Subscribe(ctx, f, func(ctx context.Context, ev *Envelope) {
		log.Debug("%s %s src=%s prio=%d %s", ev.ID, ev.EventType, ev.Source, ev.Priority, ev.Payload)
	})
	if err != nil {
		return nil, err
	}
	log.Info("🪵 LoggingListener: подписка на события активирована")
	return sub, nil
}
