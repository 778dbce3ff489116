package replay

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jask/navi/internal/finance"
	"github.com/jask/navi/internal/remote"
)

// Watch keeps the ledger live until ctx ends. It subscribes to every
// finance collection, resyncs after each (re)subscription and on every
// tick retries a non-empty queue. A failed subscription is retried on the
// next tick; a stream the store drops is re-established at once.
func (e *Engine) Watch(ctx context.Context) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	var (
		subs []*remote.Subscription
		lost <-chan struct{}
	)
	unsubscribe := func() {
		for _, sub := range subs {
			sub.Cancel()
		}
		subs, lost = nil, nil
	}
	defer unsubscribe()

	for {
		if subs == nil {
			var err error
			if subs, err = e.subscribe(ctx); err != nil {
				e.logger.Warn("subscribe failed, will retry", zap.Error(err))
			} else {
				lost = firstDone(subs)
				if _, err := e.Resync(ctx); err != nil {
					e.logger.Warn("resync after subscribe failed", zap.Error(err))
				}
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-lost:
			e.logger.Warn("realtime subscription lost, resubscribing")
			unsubscribe()
			continue
		case <-ticker.C:
		}
		e.tick(ctx)
	}
}

func (e *Engine) subscribe(ctx context.Context) ([]*remote.Subscription, error) {
	var subs []*remote.Subscription
	for _, collection := range finance.Collections {
		sub, err := e.remote.Subscribe(ctx, collection, e.onEvent)
		if err != nil {
			for _, s := range subs {
				s.Cancel()
			}
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

// firstDone closes once any of subs ends.
func firstDone(subs []*remote.Subscription) <-chan struct{} {
	out := make(chan struct{})
	var once sync.Once
	for _, sub := range subs {
		go func() {
			<-sub.Done()
			once.Do(func() { close(out) })
		}()
	}
	return out
}

func (e *Engine) onEvent(ev remote.Event) {
	if err := e.ledger.Apply(ev); err != nil {
		e.logger.Warn("ignoring event", zap.String("collection", ev.Collection), zap.Error(err))
		return
	}
	e.dirty.Store(true)
}

func (e *Engine) tick(ctx context.Context) {
	queued, err := e.cache.PendingCount(ctx)
	if err != nil {
		e.logger.Error("read queue", zap.Error(err))
		return
	}
	if queued > 0 {
		if _, err := e.Resync(ctx); err != nil {
			e.logger.Info("queue still pending", zap.Int("operations", queued), zap.Error(err))
		}
		return
	}
	if e.dirty.Swap(false) {
		if err := e.ledger.Persist(ctx); err != nil {
			e.logger.Error("persist snapshot", zap.Error(err))
			e.dirty.Store(true)
		}
	}
}
