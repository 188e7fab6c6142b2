package store

import (
	"context"
	"sync"
)

// Memory is an in-process Store with the same revision and watch
// semantics as the JetStream bucket. It backs the test suite and
// single-machine play.
type Memory struct {
	mu       sync.Mutex
	entries  map[string]Entry
	watchers map[string][]*memWatcher
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		entries:  make(map[string]Entry),
		watchers: make(map[string][]*memWatcher),
	}
}

func (m *Memory) Create(ctx context.Context, key string, value []byte) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.entries[key]; ok && !e.Deleted {
		return 0, ErrExists
	}
	rev := m.nextRevisionLocked(key)
	e := Entry{Value: append([]byte(nil), value...), Revision: rev}
	m.entries[key] = e
	m.notifyLocked(key, e)
	return rev, nil
}

func (m *Memory) Get(ctx context.Context, key string) ([]byte, uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok || e.Deleted {
		return nil, 0, ErrNotFound
	}
	return append([]byte(nil), e.Value...), e.Revision, nil
}

func (m *Memory) Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok || e.Deleted {
		return 0, ErrNotFound
	}
	if e.Revision != revision {
		return 0, ErrConflict
	}
	rev := m.nextRevisionLocked(key)
	next := Entry{Value: append([]byte(nil), value...), Revision: rev}
	m.entries[key] = next
	m.notifyLocked(key, next)
	return rev, nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok || e.Deleted {
		return nil
	}
	rev := m.nextRevisionLocked(key)
	tomb := Entry{Revision: rev, Deleted: true}
	m.entries[key] = tomb
	m.notifyLocked(key, tomb)
	return nil
}

func (m *Memory) Watch(ctx context.Context, key string) (Watcher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w := &memWatcher{store: m, key: key, ch: make(chan Entry, 32)}
	m.watchers[key] = append(m.watchers[key], w)
	if e, ok := m.entries[key]; ok && !e.Deleted {
		w.send(e)
	}
	return w, nil
}

// nextRevisionLocked advances the key's revision counter. Deleted keys
// keep their counter so a recreate cannot reuse an observed revision.
func (m *Memory) nextRevisionLocked(key string) uint64 {
	if e, ok := m.entries[key]; ok {
		return e.Revision + 1
	}
	return 1
}

func (m *Memory) notifyLocked(key string, e Entry) {
	for _, w := range m.watchers[key] {
		w.send(e)
	}
}

func (m *Memory) removeWatcher(key string, target *memWatcher) {
	m.mu.Lock()
	defer m.mu.Unlock()

	watchers := m.watchers[key]
	for i, w := range watchers {
		if w == target {
			m.watchers[key] = append(watchers[:i], watchers[i+1:]...)
			break
		}
	}
	if len(m.watchers[key]) == 0 {
		delete(m.watchers, key)
	}
}

type memWatcher struct {
	store   *Memory
	key     string
	ch      chan Entry
	stopped sync.Once
}

func (w *memWatcher) send(e Entry) {
	select {
	case w.ch <- e:
	default:
		// Slow consumer: keep only the latest entry.
		select {
		case <-w.ch:
		default:
		}
		select {
		case w.ch <- e:
		default:
		}
	}
}

func (w *memWatcher) Updates() <-chan Entry {
	return w.ch
}

func (w *memWatcher) Stop() {
	w.stopped.Do(func() {
		w.store.removeWatcher(w.key, w)
		close(w.ch)
	})
}
