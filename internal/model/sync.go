package model

import "time"

// ConflictType classifies an EventConflict.
type ConflictType string

const (
	ConflictTimeOverlap  ConflictType = "time_overlap"
	ConflictDataMismatch ConflictType = "data_mismatch"
	ConflictDeletion     ConflictType = "deletion_conflict"
)

// ConflictStatus is the lifecycle state of an EventConflict.
type ConflictStatus string

const (
	ConflictPending  ConflictStatus = "pending"
	ConflictResolved ConflictStatus = "resolved"
	ConflictIgnored  ConflictStatus = "ignored"
)

// Field names reported in EventConflict.ConflictFields, in check order.
const (
	FieldTitle       = "title"
	FieldStart       = "start"
	FieldEnd         = "end"
	FieldDescription = "description"
	FieldLocation    = "location"
)

// EventConflict is a detected disagreement between a local event and its
// external counterpart. ExternalEvent is nil for deletion conflicts.
type EventConflict struct {
	ID             string         `json:"id"`
	EventID        string         `json:"eventId"`
	ConflictType   ConflictType   `json:"conflictType"`
	LocalEvent     Event          `json:"localEvent"`
	ExternalEvent  *Event         `json:"externalEvent,omitempty"`
	ConflictFields []string       `json:"conflictFields"`
	DetectedAt     time.Time      `json:"detectedAt"`
	Status         ConflictStatus `json:"status"`
}

// HasField reports whether name is one of the conflicting fields.
func (c EventConflict) HasField(name string) bool {
	for _, f := range c.ConflictFields {
		if f == name {
			return true
		}
	}
	return false
}

// SyncAction is the kind of a SyncHistoryEntry.
type SyncAction string

const (
	ActionExport           SyncAction = "export"
	ActionImport           SyncAction = "import"
	ActionConflictResolved SyncAction = "conflict_resolved"
	ActionSyncStarted      SyncAction = "sync_started"
	ActionSyncCompleted    SyncAction = "sync_completed"
)

// SyncHistoryEntry is one append-only audit record.
type SyncHistoryEntry struct {
	ID        string     `json:"id"`
	Timestamp time.Time  `json:"timestamp"`
	Action    SyncAction `json:"action"`
	EventID   string     `json:"eventId,omitempty"`
	Details   string     `json:"details"`
	Success   bool       `json:"success"`
	Error     string     `json:"error,omitempty"`
}

// Strategy selects how a conflict is resolved.
type Strategy string

const (
	KeepLocal    Strategy = "keep_local"
	KeepExternal Strategy = "keep_external"
	Merge        Strategy = "merge"
	Ignore       Strategy = "ignore"
)

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	switch s {
	case KeepLocal, KeepExternal, Merge, Ignore:
		return true
	}
	return false
}
