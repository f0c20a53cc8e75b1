package fanout

import (
	"context"
	"sync"
)

// LocalBus delivers straight into the in-process hub. It only suits a single
// instance.
type LocalBus struct {
	mu sync.RWMutex
	d  Deliverer
}

func NewLocalBus() *LocalBus {
	return &LocalBus{}
}

func (b *LocalBus) Publish(_ context.Context, ev Event) error {
	b.mu.RLock()
	d := b.d
	b.mu.RUnlock()

	if d != nil {
		d.Deliver(ev.Channel, ev.Name, ev.Payload)
	}
	return nil
}

func (b *LocalBus) Run(ctx context.Context, d Deliverer) error {
	b.mu.Lock()
	b.d = d
	b.mu.Unlock()

	<-ctx.Done()

	b.mu.Lock()
	b.d = nil
	b.mu.Unlock()
	return nil
}
