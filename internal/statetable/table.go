// Package statetable provides the shared key-value table in which each
// worker process publishes its own id, pid and state name. The
// supervisor reads the aggregate table for quorum decisions and writes
// only its own seed record.
package statetable

import "time"

// Record is one worker process's self-published entry. Server marks the
// record as a participant in the startup ack quorum; auxiliary workers
// and the supervisor's own seed record leave it unset.
type Record struct {
	Pid       int       `json:"pid"`
	State     string    `json:"state"`
	Server    bool      `json:"server"`
	StartedAt time.Time `json:"startedAt,omitzero"`
	Restarts  int       `json:"restarts"`
	RunID     string    `json:"runId,omitempty"`
}

// Table is the cross-process state table contract. Implementations must
// provide atomic per-key reads and writes; readers tolerate transient
// staleness because workers mutate their own records concurrently.
type Table interface {
	Put(ident string, rec Record)
	Get(ident string) (Record, bool)
	Snapshot() map[string]Record
}
