package storage

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nexusai/auditoria/internal/model"
)

// MemoryStore is the process-local DocumentCache. Entries written here are
// invisible to other instances and lost on restart; use RedisStore when more
// than one instance serves traffic.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]memoryEntry
	ttl  time.Duration
	now  func() time.Time
}

type memoryEntry struct {
	doc      model.PendingDocument
	storedAt time.Time
}

// NewMemoryStore constructs a MemoryStore. A zero ttl keeps entries until
// they are deleted.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]memoryEntry),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Put inserts or replaces a document.
func (m *MemoryStore) Put(_ context.Context, orderID string, doc *model.PendingDocument) error {
	m.mu.Lock()
	// defer guarantees the unlock even if the function exits early.
	defer m.mu.Unlock()
	now := m.now().UTC()
	stored := *doc
	stored.OrderID = orderID
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	m.docs[orderID] = memoryEntry{doc: stored, storedAt: now}
	return nil
}

// Get returns a copy of the stored document.
func (m *MemoryStore) Get(_ context.Context, orderID string) (*model.PendingDocument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.docs[orderID]
	if !ok || m.expired(entry) {
		return nil, ErrNotFound
	}
	// Returning a copy prevents callers from mutating internal state.
	doc := entry.doc
	return &doc, nil
}

// Delete removes a document if present.
func (m *MemoryStore) Delete(_ context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, orderID)
	return nil
}

// Take removes and returns a document under a single write lock.
func (m *MemoryStore) Take(_ context.Context, orderID string) (*model.PendingDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.docs[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	delete(m.docs, orderID)
	if m.expired(entry) {
		return nil, ErrNotFound
	}
	doc := entry.doc
	return &doc, nil
}

// Len returns the number of stored entries, expired ones included until the
// next sweep.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

// StartSweeper evicts expired entries every interval until ctx is done. It
// does nothing when the store has no ttl.
func (m *MemoryStore) StartSweeper(ctx context.Context, interval time.Duration) {
	if m.ttl <= 0 || interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.sweep()
			}
		}
	}()
}

func (m *MemoryStore) sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	evicted := 0
	for id, entry := range m.docs {
		if m.expired(entry) {
			delete(m.docs, id)
			evicted++
		}
	}
	if evicted > 0 {
		slog.Info("evicted abandoned documents", "count", evicted)
	}
	return evicted
}

// expired must be called with the lock held.
func (m *MemoryStore) expired(entry memoryEntry) bool {
	return m.ttl > 0 && m.now().Sub(entry.storedAt) > m.ttl
}
