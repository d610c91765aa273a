package updater

import (
	"context"
	"fmt"
	"sync"

	"muniapi/pkg/domain"
)

// Bus delivers update requests to the scheduler of their target's type.
type Bus interface {
	Publish(ctx context.Context, req Request) error
}

// ChannelBus routes requests in-process, one inbox channel per entity type.
type ChannelBus struct {
	mu      sync.RWMutex
	inboxes map[domain.EntityType]chan<- Request
}

func NewChannelBus() *ChannelBus {
	return &ChannelBus{inboxes: make(map[domain.EntityType]chan<- Request)}
}

// Register binds t to inbox, replacing any earlier binding.
func (b *ChannelBus) Register(t domain.EntityType, inbox chan<- Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inboxes[t] = inbox
}

// RegisterScheduler binds the scheduler's own inbox under its entity type.
func (b *ChannelBus) RegisterScheduler(s *Scheduler) {
	b.Register(s.EntityType(), s.Inbox())
}

// Publish blocks until the inbox accepts req or ctx is done.
func (b *ChannelBus) Publish(ctx context.Context, req Request) error {
	b.mu.RLock()
	inbox, ok := b.inboxes[req.Target.Type]
	b.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoScheduler, req.Target.Type)
	}
	select {
	case inbox <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
