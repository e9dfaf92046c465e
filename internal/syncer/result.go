package syncer

import "time"

// Status discriminates what a sync request actually did, so callers can tell
// "nothing to do" from "just finished work" from "someone else is on it".
type Status string

const (
	// StatusAlreadySynced means the drift check found source and index
	// consistent; no writes were issued.
	StatusAlreadySynced Status = "already_synced"

	// StatusSyncedNow means a full resync ran to completion.
	StatusSyncedNow Status = "synced_now"

	// StatusAlreadyRunning means another full resync held the guard; the
	// request was skipped. This is a legitimate outcome, not an error.
	StatusAlreadyRunning Status = "already_in_progress"
)

// Result is the outcome of a sync or drift-check request.
type Result struct {
	Status Status `json:"status"`
	Synced int    `json:"synced"`
}

// RunInfo is the recorded outcome of the most recent full resync for one
// entity kind.
type RunInfo struct {
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Synced     int       `json:"synced"`
	Pruned     int       `json:"pruned"`
	Error      string    `json:"error,omitempty"`
}
