package remote

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store used by tests and dry runs. It is
// safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
	mimes   map[string]string

	// Fail, when set, is returned by every operation. Lets tests
	// simulate remote failures of a specific kind.
	Fail error

	// FailPut, when set, is returned by writes only; reads still work.
	FailPut error

	// FailGet, when set, is returned by reads of the named objects only,
	// keyed folder/name. Everything else still works.
	FailGet map[string]error
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string][]byte),
		mimes:   make(map[string]string),
	}
}

func memKey(folder, name string) string {
	if folder == "" {
		return name
	}
	return folder + "/" + name
}

// GetJSON implements Store.
func (m *MemoryStore) GetJSON(_ context.Context, folder, name string) ([]byte, error) {
	return m.get(folder, name)
}

// PutJSON implements Store.
func (m *MemoryStore) PutJSON(_ context.Context, folder, name string, data []byte) error {
	return m.put(folder, name, data, "application/json")
}

// GetBinary implements Store.
func (m *MemoryStore) GetBinary(_ context.Context, folder, name string) ([]byte, error) {
	return m.get(folder, name)
}

// PutBinary implements Store.
func (m *MemoryStore) PutBinary(_ context.Context, folder, name string, data []byte, mimeType string) error {
	return m.put(folder, name, data, mimeType)
}

// Delete implements Store. Absence is not an error.
func (m *MemoryStore) Delete(_ context.Context, folder, name string) error {
	if m.Fail != nil {
		return m.Fail
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := memKey(folder, name)
	delete(m.objects, key)
	delete(m.mimes, key)
	return nil
}

func (m *MemoryStore) get(folder, name string) ([]byte, error) {
	if m.Fail != nil {
		return nil, m.Fail
	}
	if err := m.FailGet[memKey(folder, name)]; err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[memKey(folder, name)]
	if !ok {
		return nil, ErrNotExist
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *MemoryStore) put(folder, name string, data []byte, mimeType string) error {
	if m.Fail != nil {
		return m.Fail
	}
	if m.FailPut != nil {
		return m.FailPut
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := memKey(folder, name)
	stored := make([]byte, len(data))
	copy(stored, data)
	m.objects[key] = stored
	m.mimes[key] = mimeType
	return nil
}

// Len returns the number of stored objects.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

// Has reports whether a named blob exists.
func (m *MemoryStore) Has(folder, name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[memKey(folder, name)]
	return ok
}

// MimeType returns the stored MIME type for a blob, if present.
func (m *MemoryStore) MimeType(folder, name string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mimes[memKey(folder, name)]
}
