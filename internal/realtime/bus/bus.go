package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/yungbote/coursegen-backend/internal/platform/logger"
	"github.com/yungbote/coursegen-backend/internal/realtime"
)

type Bus interface {
	Publish(ctx context.Context, ev realtime.ProgressEvent) error
	StartForwarder(ctx context.Context, onMsg func(ev realtime.ProgressEvent)) error
	Close() error
}

// localBus delivers events in process. It is used when REDIS_ADDR is unset,
// which limits fan-out to the current instance.
type localBus struct {
	log       *logger.Logger
	mu        sync.RWMutex
	listeners []func(realtime.ProgressEvent)
}

func NewLocalBus(log *logger.Logger) Bus {
	return &localBus{log: log.With("service", "LocalProgressBus")}
}

func (b *localBus) Publish(ctx context.Context, ev realtime.ProgressEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, fn := range b.listeners {
		fn(ev)
	}
	return nil
}

func (b *localBus) StartForwarder(ctx context.Context, onMsg func(ev realtime.ProgressEvent)) error {
	if onMsg == nil {
		return fmt.Errorf("onMsg callback required")
	}
	b.mu.Lock()
	b.listeners = append(b.listeners, onMsg)
	b.mu.Unlock()
	return nil
}

func (b *localBus) Close() error { return nil }

// New picks the Redis bus when REDIS_ADDR is set and the local bus otherwise.
func New(log *logger.Logger, cfg RedisConfig) (Bus, error) {
	if cfg.Addr == "" {
		log.Info("REDIS_ADDR not set; progress events stay in process")
		return NewLocalBus(log), nil
	}
	return NewRedisBus(log, cfg)
}
