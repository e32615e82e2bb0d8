package datasets

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vinodismyname/mcpconc/config"
	"github.com/vinodismyname/mcpconc/internal/concentration"
	"github.com/vinodismyname/mcpconc/internal/ingest"
)

// maxCachedReports bounds the per-handle report cache; the cache is reset when full.
const maxCachedReports = 8

// Handle is a loaded input table paired with metadata for TTL eviction.
type Handle struct {
	ID        string
	Path      string
	Table     *ingest.Table
	LoadedAt  time.Time
	ExpiresAt time.Time

	key     string
	mu      sync.RWMutex
	reports map[string]*concentration.Report
}

// Gate coordinates capacity for open datasets (backed by runtime.Controller).
type Gate interface {
	AcquireDataset(ctx context.Context) error
	ReleaseDataset()
}

// PathValidator abstracts filesystem path validation. Implementations should
// return a canonical absolute path if allowed, or an error when denied.
type PathValidator interface {
	ValidateOpenPath(path string) (string, error)
}

// Manager caches decoded tables behind opaque IDs with idle-timeout eviction.
type Manager struct {
	mu           sync.RWMutex
	handles      map[string]*Handle
	byKey        map[string]string
	ttl          time.Duration
	cleanupEvery time.Duration
	clock        func() time.Time
	gate         Gate
	stopCh       chan struct{}
	stopOnce     sync.Once
	cleanupWG    sync.WaitGroup
	validator    PathValidator
	maxRows      int
}

// ErrHandleNotFound indicates an unknown or expired dataset ID.
var ErrHandleNotFound = errors.New("datasets: handle not found")

// NewManager constructs a dataset cache. Pass ttl or cleanupEvery <= 0 to use
// defaults from config. Gate can be nil for tests; clock defaults to time.Now.
func NewManager(ttl, cleanupEvery time.Duration, gate Gate, clock func() time.Time) *Manager {
	if ttl <= 0 {
		ttl = config.DefaultDatasetIdleTTL
	}
	if cleanupEvery <= 0 {
		cleanupEvery = config.DefaultDatasetCleanupPeriod
	}
	if clock == nil {
		clock = time.Now
	}
	return &Manager{
		handles:      make(map[string]*Handle),
		byKey:        make(map[string]string),
		ttl:          ttl,
		cleanupEvery: cleanupEvery,
		clock:        clock,
		gate:         gate,
		stopCh:       make(chan struct{}),
	}
}

// SetPathValidator installs the allow-list check applied before every open.
func (m *Manager) SetPathValidator(v PathValidator) { m.validator = v }

// SetMaxRows caps rows decoded per dataset; 0 means unlimited.
func (m *Manager) SetMaxRows(n int) { m.maxRows = n }

// Start launches periodic eviction of expired handles.
func (m *Manager) Start() {
	m.cleanupWG.Add(1)
	ticker := time.NewTicker(m.cleanupEvery)
	go func() {
		defer m.cleanupWG.Done()
		defer ticker.Stop()
		for {
			select {
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.EvictExpired()
			}
		}
	}()
}

// Close stops background cleanup and drops all handles.
func (m *Manager) Close(ctx context.Context) error {
	m.stopOnce.Do(func() { close(m.stopCh) })
	done := make(chan struct{})
	go func() { m.cleanupWG.Wait(); close(done) }()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for id := range m.handles {
		delete(m.handles, id)
		m.release()
	}
	clear(m.byKey)
	return nil
}

func sourceKey(path string, opts ingest.ReadOptions) string {
	return strings.Join([]string{path, opts.Sheet, opts.Range}, "\x00")
}

// Open validates and decodes path, registers a TTL-bearing handle and returns it.
// The manager enforces open-dataset capacity via the gate when provided.
func (m *Manager) Open(ctx context.Context, path string, opts ingest.ReadOptions) (*Handle, error) {
	if err := m.acquire(ctx); err != nil {
		return nil, err
	}
	h, err := m.load(ctx, path, opts)
	if err != nil {
		m.release()
		return nil, err
	}
	m.mu.Lock()
	m.handles[h.ID] = h
	m.byKey[h.key] = h.ID
	m.mu.Unlock()
	return h, nil
}

// GetOrOpen returns the live handle for path (same sheet and range) or opens one.
// The boolean reports whether an existing handle was reused.
func (m *Manager) GetOrOpen(ctx context.Context, path string, opts ingest.ReadOptions) (*Handle, bool, error) {
	canonical, err := m.canonical(path)
	if err != nil {
		return nil, false, err
	}
	m.mu.RLock()
	id, ok := m.byKey[sourceKey(canonical, opts)]
	m.mu.RUnlock()
	if ok {
		if h, ok := m.Get(id); ok {
			return h, true, nil
		}
	}

	if err := m.acquire(ctx); err != nil {
		return nil, false, err
	}
	h, err := m.load(ctx, canonical, opts)
	if err != nil {
		m.release()
		return nil, false, err
	}
	m.mu.Lock()
	if id, ok := m.byKey[h.key]; ok {
		if existing, ok := m.handles[id]; ok {
			// lost a race with a concurrent open of the same source
			m.mu.Unlock()
			m.release()
			m.touch(existing)
			return existing, true, nil
		}
	}
	m.handles[h.ID] = h
	m.byKey[h.key] = h.ID
	m.mu.Unlock()
	return h, false, nil
}

func (m *Manager) canonical(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("datasets: empty path")
	}
	if m.validator != nil {
		return m.validator.ValidateOpenPath(path)
	}
	return filepath.Abs(path)
}

func (m *Manager) load(ctx context.Context, path string, opts ingest.ReadOptions) (*Handle, error) {
	if _, err := ingest.FormatOf(path); err != nil {
		return nil, err
	}
	canonical, err := m.canonical(path)
	if err != nil {
		return nil, err
	}
	if m.maxRows > 0 && (opts.MaxRows <= 0 || opts.MaxRows > m.maxRows) {
		opts.MaxRows = m.maxRows
	}
	table, err := ingest.ReadFile(ctx, canonical, opts)
	if err != nil {
		return nil, err
	}
	h := m.newHandle(table)
	h.Path = canonical
	h.key = sourceKey(canonical, ingest.ReadOptions{Sheet: opts.Sheet, Range: opts.Range})
	return h, nil
}

func (m *Manager) newHandle(table *ingest.Table) *Handle {
	loadedAt := m.clock()
	return &Handle{
		ID:        uuid.NewString(),
		Path:      table.Source,
		Table:     table,
		LoadedAt:  loadedAt,
		ExpiresAt: loadedAt.Add(m.ttl),
		reports:   make(map[string]*concentration.Report),
	}
}

// Adopt registers an already decoded table. Intended for tests and inline data.
func (m *Manager) Adopt(ctx context.Context, table *ingest.Table) (string, error) {
	if table == nil {
		return "", fmt.Errorf("datasets: nil table")
	}
	if err := m.acquire(ctx); err != nil {
		return "", err
	}
	h := m.newHandle(table)
	m.mu.Lock()
	m.handles[h.ID] = h
	m.mu.Unlock()
	return h.ID, nil
}

// Get returns the handle when present and refreshes its TTL.
func (m *Manager) Get(id string) (*Handle, bool) {
	m.mu.RLock()
	h, ok := m.handles[id]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	m.touch(h)
	return h, true
}

// touch refreshes idle expiry on access.
func (m *Manager) touch(h *Handle) {
	now := m.clock()
	h.mu.Lock()
	h.ExpiresAt = now.Add(m.ttl)
	h.mu.Unlock()
}

// WithRead obtains a shared read lock for the handle and executes fn.
func (m *Manager) WithRead(id string, fn func(*ingest.Table) error) error {
	h, ok := m.Get(id)
	if !ok {
		return ErrHandleNotFound
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return fn(h.Table)
}

// Report returns the report cached under key or computes it with an exclusive
// lock so concurrent callers with the same key compute once.
func (m *Manager) Report(id, key string, compute func(*ingest.Table) (*concentration.Report, error)) (*concentration.Report, error) {
	h, ok := m.Get(id)
	if !ok {
		return nil, ErrHandleNotFound
	}
	h.mu.RLock()
	rep := h.reports[key]
	h.mu.RUnlock()
	if rep != nil {
		return rep, nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if rep := h.reports[key]; rep != nil {
		return rep, nil
	}
	rep, err := compute(h.Table)
	if err != nil {
		return nil, err
	}
	if len(h.reports) >= maxCachedReports {
		clear(h.reports)
	}
	h.reports[key] = rep
	return rep, nil
}

// CloseHandle removes a handle by ID, releasing capacity via the gate.
func (m *Manager) CloseHandle(ctx context.Context, id string) error {
	m.mu.Lock()
	h, ok := m.handles[id]
	if ok {
		delete(m.handles, id)
		m.dropKey(h)
	}
	m.mu.Unlock()
	if !ok {
		return ErrHandleNotFound
	}
	// wait for in-flight readers
	h.mu.Lock()
	h.reports = nil
	h.mu.Unlock()
	m.release()
	return nil
}

// dropKey must be called with m.mu held.
func (m *Manager) dropKey(h *Handle) {
	if h.key != "" && m.byKey[h.key] == h.ID {
		delete(m.byKey, h.key)
	}
}

// EvictExpired scans for expired handles and drops them.
func (m *Manager) EvictExpired() {
	now := m.clock()
	var expired []*Handle

	m.mu.RLock()
	for _, h := range m.handles {
		if h.Expired(now) {
			expired = append(expired, h)
		}
	}
	m.mu.RUnlock()

	for _, h := range expired {
		m.mu.Lock()
		_, still := m.handles[h.ID]
		if still {
			delete(m.handles, h.ID)
			m.dropKey(h)
		}
		m.mu.Unlock()
		if still {
			m.release()
		}
	}
}

// Count returns the current number of cached handles.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.handles)
}

func (m *Manager) acquire(ctx context.Context) error {
	if m.gate == nil {
		return nil
	}
	return m.gate.AcquireDataset(ctx)
}

func (m *Manager) release() {
	if m.gate == nil {
		return
	}
	m.gate.ReleaseDataset()
}

// Expired reports whether the handle has reached its TTL.
func (h *Handle) Expired(now time.Time) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return now.After(h.ExpiresAt)
}
