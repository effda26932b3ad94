package stubs

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"catalogbot/internal/models"
)

// MockStore is an in-memory document and blob store used by tests and USE_MOCK_STORE
type MockStore struct {
	mu       sync.RWMutex
	items    []models.Product
	version  int
	blobs    map[string][]byte
	blobRevs int
	commits  []string
	writeErr error
}

// NewMockStore creates an empty store; the document does not exist until the first write
func NewMockStore() *MockStore {
	return &MockStore{
		blobs: make(map[string][]byte),
	}
}

// ReadDocument returns a copy of the items and the current revision
func (m *MockStore) ReadDocument(ctx context.Context) ([]models.Product, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	items := make([]models.Product, len(m.items))
	copy(items, m.items)
	return items, m.revision(), nil
}

// WriteDocument replaces the items when revision is still current
func (m *MockStore) WriteDocument(ctx context.Context, items []models.Product, revision, message string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.writeErr != nil {
		return "", m.writeErr
	}
	if revision != m.revision() {
		return "", models.ConflictError("catalog document changed since it was read")
	}

	m.items = make([]models.Product, len(items))
	copy(m.items, items)
	m.version++
	m.commits = append(m.commits, message)
	return m.revision(), nil
}

// FailWrites makes every following WriteDocument return err; nil restores normal behavior
func (m *MockStore) FailWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

// Commits returns the commit messages in order
func (m *MockStore) Commits() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.commits...)
}

// PutBlob stores data at path
func (m *MockStore) PutBlob(ctx context.Context, path string, data []byte, message string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.blobs[path] = append([]byte(nil), data...)
	m.blobRevs++
	return "blob-" + strconv.Itoa(m.blobRevs), nil
}

// DeleteBlob removes path; missing paths are ignored
func (m *MockStore) DeleteBlob(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.blobs, path)
	return nil
}

// Blob returns the stored bytes for path
func (m *MockStore) Blob(path string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.blobs[path]
	return data, ok
}

// BlobPaths returns the stored paths sorted by name
func (m *MockStore) BlobPaths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	paths := make([]string, 0, len(m.blobs))
	for p := range m.blobs {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// revision must be called with the lock held
func (m *MockStore) revision() string {
	if m.version == 0 {
		return ""
	}
	return "rev-" + strconv.Itoa(m.version)
}

// MockJournal is an in-memory implementation of the Journal interface
type MockJournal struct {
	mu     sync.RWMutex
	events []models.CatalogEvent
}

// NewMockJournal creates an empty journal
func NewMockJournal() *MockJournal {
	return &MockJournal{
		events: make([]models.CatalogEvent, 0),
	}
}

// Initialize does nothing for the mock journal
func (m *MockJournal) Initialize(ctx context.Context) error {
	return nil
}

// Record appends an event
func (m *MockJournal) Record(ctx context.Context, event models.CatalogEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events = append(m.events, event)
	return nil
}

// LastEvents returns the last N events, newest first
func (m *MockJournal) LastEvents(ctx context.Context, limit int) ([]models.CatalogEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Sort events by date descending, later records first on ties
	sorted := make([]models.CatalogEvent, 0, len(m.events))
	for i := len(m.events) - 1; i >= 0; i-- {
		sorted = append(sorted, m.events[i])
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].At.After(sorted[j].At)
	})

	if limit > len(sorted) {
		limit = len(sorted)
	}

	return sorted[:limit], nil
}

// Close does nothing for the mock journal
func (m *MockJournal) Close() error {
	return nil
}
