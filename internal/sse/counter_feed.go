// Package sse fans live counter updates out to connected point-of-sale
// screens so concurrent sellers see each other's sales.
package sse

import (
	"context"
	"sync"

	"ms-salesreport/internal/models"
)

const clientBuffer = 16

// CounterFeed broadcasts counter updates to subscribers grouped by service
// day. Slow clients miss updates instead of blocking the sale path.
type CounterFeed struct {
	mu      sync.RWMutex
	clients map[string][]chan models.Count
}

func NewCounterFeed() *CounterFeed {
	return &CounterFeed{clients: make(map[string][]chan models.Count)}
}

// Subscribe registers a client for one service day. The channel is closed
// once ctx is done.
func (f *CounterFeed) Subscribe(ctx context.Context, serviceDay string) <-chan models.Count {
	ch := make(chan models.Count, clientBuffer)

	f.mu.Lock()
	f.clients[serviceDay] = append(f.clients[serviceDay], ch)
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		f.remove(serviceDay, ch)
	}()
	return ch
}

// Emit delivers count to every subscriber of its service day.
func (f *CounterFeed) Emit(count models.Count) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, ch := range f.clients[count.ServiceDay] {
		select {
		case ch <- count:
		default:
		}
	}
}

func (f *CounterFeed) ClientCount(serviceDay string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.clients[serviceDay])
}

func (f *CounterFeed) remove(serviceDay string, ch chan models.Count) {
	f.mu.Lock()
	defer f.mu.Unlock()

	clients := f.clients[serviceDay]
	for i, c := range clients {
		if c == ch {
			f.clients[serviceDay] = append(clients[:i], clients[i+1:]...)
			close(ch)
			break
		}
	}
	if len(f.clients[serviceDay]) == 0 {
		delete(f.clients, serviceDay)
	}
}
