package domain

import "time"

// FileHash tracks the content digest of an indexed file. A non-nil
// DeletedAt marks a tombstone.
type FileHash struct {
	Collection  string
	FilePath    string
	ContentHash string
	IndexedAt   time.Time
	DeletedAt   *time.Time
}

// Tombstoned reports whether the file was deleted.
func (h FileHash) Tombstoned() bool { return h.DeletedAt != nil }
