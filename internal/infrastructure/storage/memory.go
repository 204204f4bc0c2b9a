package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	salesapp "github.com/retail/ledger/internal/application/sales"
)

var _ salesapp.ReceiptArchive = (*MemoryReceiptStore)(nil)

// MemoryReceiptStore keeps receipts in process memory.
// It backs local development and tests where no bucket is available.
type MemoryReceiptStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
}

type memoryObject struct {
	body        []byte
	contentType string
}

// NewMemoryReceiptStore creates an empty MemoryReceiptStore
func NewMemoryReceiptStore() *MemoryReceiptStore {
	return &MemoryReceiptStore{objects: make(map[string]memoryObject)}
}

// Put stores a copy of body under key
func (s *MemoryReceiptStore) Put(_ context.Context, key string, body []byte, contentType string) error {
	if key == "" {
		return errors.New("storage key is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = memoryObject{body: append([]byte(nil), body...), contentType: contentType}
	return nil
}

// Exists reports whether key has been stored
func (s *MemoryReceiptStore) Exists(_ context.Context, key string) (bool, error) {
	if key == "" {
		return false, errors.New("storage key is required")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[key]
	return ok, nil
}

// Get returns the stored body and content type of key
func (s *MemoryReceiptStore) Get(key string) ([]byte, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil, "", false
	}
	return append([]byte(nil), obj.body...), obj.contentType, true
}

// Keys lists stored keys in lexical order
func (s *MemoryReceiptStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
