package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryBackend keeps sessions in process memory. Sessions do not survive
// a restart and are not shared between instances.
type MemoryBackend struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]Data
	now      func() time.Time
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		sessions: make(map[uuid.UUID]Data),
		now:      time.Now,
	}
}

func (b *MemoryBackend) Put(_ context.Context, d Data) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sessions[d.SessionID] = d
	return nil
}

func (b *MemoryBackend) Get(_ context.Context, id uuid.UUID) (Data, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	d, ok := b.sessions[id]
	if !ok {
		return Data{}, ErrNotFound
	}
	return d, nil
}

func (b *MemoryBackend) Delete(_ context.Context, id uuid.UUID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sessions, id)
	return nil
}

func (b *MemoryBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sessions)
}

// Sweep removes expired sessions and returns how many were removed.
func (b *MemoryBackend) Sweep() int {
	now := b.now()
	b.mu.Lock()
	defer b.mu.Unlock()
	removed := 0
	for id, d := range b.sessions {
		if d.Expired(now) {
			delete(b.sessions, id)
			removed++
		}
	}
	return removed
}

// Run sweeps every interval until ctx is done.
func (b *MemoryBackend) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.Sweep()
		}
	}
}

// Close drops every session.
func (b *MemoryBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.sessions)
	return nil
}
