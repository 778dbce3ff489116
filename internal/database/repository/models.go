package repository

import "time"

// Snapshot is a cached domain materialisation row.
type Snapshot struct {
	Domain  string
	Payload []byte
	SavedAt time.Time
}

// PendingOperation is a queued remote write row.
type PendingOperation struct {
	Seq        int64
	ID         string
	Collection string
	Operation  string
	Payload    []byte
	EnqueuedAt int64 // unix nanoseconds
	LocalID    *string
	Attempts   int
	LastError  *string
}
