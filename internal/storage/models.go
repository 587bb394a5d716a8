package storage

import "time"

// Entry is a single journal entry. Entries are immutable once written; the
// embedding pipeline treats them as read-only input.
type Entry struct {
	ID      int64     `json:"id"`
	Date    time.Time `json:"date"`
	Content string    `json:"content"`
	Tags    string    `json:"tags,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
