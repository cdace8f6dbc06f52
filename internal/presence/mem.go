package presence

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memEntry struct {
	info     StreamInfo
	expireAt time.Time
}

// MemRegistry is the in-process registry used when no Redis is configured.
type MemRegistry struct {
	lock    sync.RWMutex
	entries map[string]memEntry
}

func NewMemRegistry() *MemRegistry {
	r := &MemRegistry{
		entries: make(map[string]memEntry),
	}
	go r.watcher()
	return r
}

func (r *MemRegistry) watcher() {
	for {
		now := time.Now()
		r.lock.Lock()
		for id, e := range r.entries {
			if e.expireAt.Before(now) {
				delete(r.entries, id)
			}
		}
		r.lock.Unlock()
		time.Sleep(time.Second)
	}
}

func (r *MemRegistry) Add(_ context.Context, info StreamInfo, ttl time.Duration) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.entries[info.ClientID] = memEntry{info: info, expireAt: time.Now().Add(ttl)}
	return nil
}

func (r *MemRegistry) Touch(_ context.Context, clientID string, ttl time.Duration) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if e, ok := r.entries[clientID]; ok {
		e.expireAt = time.Now().Add(ttl)
		r.entries[clientID] = e
	}
	return nil
}

func (r *MemRegistry) Remove(_ context.Context, clientID string) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	delete(r.entries, clientID)
	return nil
}

func (r *MemRegistry) List(_ context.Context) ([]StreamInfo, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	now := time.Now()
	infos := make([]StreamInfo, 0, len(r.entries))
	for _, e := range r.entries {
		if e.expireAt.Before(now) {
			continue
		}
		infos = append(infos, e.info)
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].StartedAt.Before(infos[j].StartedAt)
	})
	return infos, nil
}

func (r *MemRegistry) HealthCheck() error {
	return nil
}
