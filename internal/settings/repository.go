package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrNotFound is returned by Repository.Load when no record exists.
	ErrNotFound = errors.New("settings not found")

	// ErrCorrupt is returned by Repository.Load when the stored record cannot be decoded.
	ErrCorrupt = errors.New("settings record is corrupt")
)

// Repository persists the settings record.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Load reads the record. Returns ErrNotFound if absent, ErrCorrupt if undecodable.
	Load(ctx context.Context) (*Settings, error)

	// Save replaces the record.
	Save(ctx context.Context, s *Settings) error

	// Close releases resources.
	Close() error
}

// decode parses a stored record.
func decode(raw []byte) (*Settings, error) {
	var s Settings
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return &s, nil
}

// encode serializes a record for storage.
func encode(s *Settings) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode settings: %w", err)
	}
	return data, nil
}

// MemoryRepository keeps serialized records in memory.
// Records are stored encoded so every Load returns an independent copy.
type MemoryRepository struct {
	data    map[string][]byte
	mu      sync.RWMutex
	stopped bool
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{data: make(map[string][]byte)}
}

// Load reads the record.
func (r *MemoryRepository) Load(_ context.Context) (*Settings, error) {
	r.mu.RLock()
	raw, ok := r.data[StorageKey]
	r.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	return decode(raw)
}

// Save replaces the record.
func (r *MemoryRepository) Save(_ context.Context, s *Settings) error {
	data, err := encode(s)
	if err != nil {
		return err
	}
	return r.PutRaw(data)
}

// PutRaw stores an already-serialized record as-is.
func (r *MemoryRepository) PutRaw(raw []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return fmt.Errorf("repository closed")
	}
	r.data[StorageKey] = append([]byte(nil), raw...)
	return nil
}

// Close clears data.
func (r *MemoryRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stopped = true
	r.data = map[string][]byte{}
	return nil
}

// Ensure MemoryRepository implements Repository
var _ Repository = (*MemoryRepository)(nil)
