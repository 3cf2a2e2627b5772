// Package store defines the content and task-record storage consumed by the
// dispatch engine. The engine treats it as a document store with synchronous
// reads and fire-and-forget writes; the in-memory implementation here backs
// tests and single-process deployments, with optional JSONL persistence.
package store

import (
	"errors"
	"time"
)

var (
	// ErrItemNotFound is returned when an item id is unknown.
	ErrItemNotFound = errors.New("item not found")
	// ErrRecordNotFound is returned when a task record id is unknown.
	ErrRecordNotFound = errors.New("task record not found")
)

// Item is a single board card produced by an agent or imported externally.
type Item struct {
	ID        string    `json:"id"`
	Category  string    `json:"category"`
	Content   string    `json:"content"`
	AgentID   string    `json:"agent_id,omitempty"`
	Deleted   bool      `json:"deleted,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// TaskStatus is the externally observable lifecycle state of a task.
type TaskStatus string

const (
	TaskQueued    TaskStatus = "queued"
	TaskRunning   TaskStatus = "running"
	TaskPaused    TaskStatus = "paused"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// TaskRecord is the append-only audit entry for one task. It is created at
// submission and mutated only by the worker pool; records are never deleted.
type TaskRecord struct {
	TaskID       string        `json:"task_id"`
	AgentID      string        `json:"agent_id"`
	Status       TaskStatus    `json:"status"`
	Priority     int           `json:"priority"`
	Preview      string        `json:"preview,omitempty"`
	Error        string        `json:"error,omitempty"`
	Duration     time.Duration `json:"duration,omitempty"`
	CardsCreated int           `json:"cards_created"`
	RetryCount   int           `json:"retry_count"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// ContentStore is the read side consumed by the dedup gate and second-pass
// scheduler, plus the append side used when tasks produce cards.
type ContentStore interface {
	// Items returns all current non-deleted items. Category "" means all.
	Items(category string) []Item
	// CountByCategory returns the number of non-deleted items in a category.
	CountByCategory(category string) int
	// AppendItem stores a new item.
	AppendItem(item Item)
	// MarkDeleted soft-deletes an item by id.
	MarkDeleted(id string) error
}

// TaskLog is the task lifecycle record store.
type TaskLog interface {
	AppendRecord(rec TaskRecord)
	UpdateRecord(taskID string, update func(*TaskRecord)) error
	Record(taskID string) (TaskRecord, bool)
	Records() []TaskRecord
}

// Store combines content and task-record storage.
type Store interface {
	ContentStore
	TaskLog
}
