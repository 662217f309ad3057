package intents

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nimazeighami/dust-zap-engine/internal/types"
	"github.com/nimazeighami/dust-zap-engine/internal/zaperr"
)

// Manager keeps in-flight execution contexts between intent creation and
// stream consumption. Take is atomic remove-on-read, which is what enforces
// single-consumer streaming per intent id. A background task evicts entries
// older than the connection timeout.
type Manager struct {
	mu      sync.Mutex
	entries map[string]managedEntry

	connectionTimeout time.Duration
	cleanupInterval   time.Duration
	maxContexts       int

	stop     chan struct{}
	stopOnce sync.Once
	log      *logrus.Entry
}

type managedEntry struct {
	ctx       *types.ExecutionContext
	createdAt time.Time
}

func NewManager(connectionTimeout, cleanupInterval time.Duration, maxContexts int, log *logrus.Logger) *Manager {
	m := &Manager{
		entries:           make(map[string]managedEntry),
		connectionTimeout: connectionTimeout,
		cleanupInterval:   cleanupInterval,
		maxContexts:       maxContexts,
		stop:              make(chan struct{}),
		log:               log.WithField("component", "context-manager"),
	}
	go m.cleanupLoop()
	return m
}

// Put stores a context under its intent id. New intents are rejected when
// the store is full rather than evicting in-flight ones.
func (m *Manager) Put(id string, ctx *types.ExecutionContext) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.maxContexts > 0 && len(m.entries) >= m.maxContexts {
		return zaperr.Newf(zaperr.KindCapacity, "context store full (%d entries)", len(m.entries))
	}
	m.entries[id] = managedEntry{ctx: ctx, createdAt: time.Now()}
	return nil
}

// Take removes and returns the context for id. A context returned here will
// never be handed to another caller.
func (m *Manager) Take(id string) (*types.ExecutionContext, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[id]
	if !ok {
		return nil, false
	}
	delete(m.entries, id)
	return entry.ctx, true
}

// Len returns the number of stored contexts.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// EvictExpired removes every entry older than the connection timeout and
// returns how many were dropped.
func (m *Manager) EvictExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-m.connectionTimeout)
	evicted := 0
	for id, entry := range m.entries {
		if entry.createdAt.Before(cutoff) {
			delete(m.entries, id)
			evicted++
		}
	}
	return evicted
}

// Close stops the eviction task. Safe to call more than once.
func (m *Manager) Close() {
	m.stopOnce.Do(func() { close(m.stop) })
}

func (m *Manager) cleanupLoop() {
	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			if n := m.EvictExpired(); n > 0 {
				m.log.WithField("evicted", n).Info("evicted expired execution contexts")
			}
		}
	}
}
