package store

import (
	"sync"
	"time"
)

// MemoryStore is a mutex-guarded in-memory Store implementation.
type MemoryStore struct {
	mu      sync.RWMutex
	items   []Item
	byID    map[string]int
	records []TaskRecord
	recIdx  map[string]int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[string]int),
		recIdx: make(map[string]int),
	}
}

// Items returns all non-deleted items, optionally filtered by category.
func (s *MemoryStore) Items(category string) []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Item, 0, len(s.items))
	for _, it := range s.items {
		if it.Deleted {
			continue
		}
		if category != "" && it.Category != category {
			continue
		}
		out = append(out, it)
	}
	return out
}

// CountByCategory returns the number of non-deleted items in a category.
func (s *MemoryStore) CountByCategory(category string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, it := range s.items {
		if !it.Deleted && it.Category == category {
			count++
		}
	}
	return count
}

// AppendItem stores a new item. A zero CreatedAt is stamped with now.
func (s *MemoryStore) AppendItem(item Item) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}
	s.byID[item.ID] = len(s.items)
	s.items = append(s.items, item)
}

// MarkDeleted soft-deletes an item by id.
func (s *MemoryStore) MarkDeleted(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.byID[id]
	if !ok {
		return ErrItemNotFound
	}
	s.items[idx].Deleted = true
	return nil
}

// AppendRecord adds a new task record to the audit trail.
func (s *MemoryStore) AppendRecord(rec TaskRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	s.recIdx[rec.TaskID] = len(s.records)
	s.records = append(s.records, rec)
}

// UpdateRecord mutates an existing record in place.
func (s *MemoryStore) UpdateRecord(taskID string, update func(*TaskRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.recIdx[taskID]
	if !ok {
		return ErrRecordNotFound
	}
	update(&s.records[idx])
	s.records[idx].UpdatedAt = time.Now()
	return nil
}

// Record returns the record for a task id.
func (s *MemoryStore) Record(taskID string) (TaskRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.recIdx[taskID]
	if !ok {
		return TaskRecord{}, false
	}
	return s.records[idx], true
}

// Records returns a copy of all task records in insertion order.
func (s *MemoryStore) Records() []TaskRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]TaskRecord, len(s.records))
	copy(out, s.records)
	return out
}
