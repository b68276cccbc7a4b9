package entities

import (
	"time"
)

// DLQEntry is a log that failed decoding or persistence, retained for
// retry or manual inspection. Entries are never silently dropped.
type DLQEntry struct {
	ID          int64     `db:"id" json:"id"`
	RawLog      []byte    `db:"raw_log" json:"raw_log"`
	Reason      string    `db:"reason" json:"reason"`
	FirstSeenAt time.Time `db:"first_seen_at" json:"first_seen_at"`
	RetryCount  int       `db:"retry_count" json:"retry_count"`
}
