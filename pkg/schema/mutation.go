package schema

import "time"

// Operation names a queued mutation.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Valid reports whether op is one of the three known operations.
func (op Operation) Valid() bool {
	switch op {
	case OpCreate, OpUpdate, OpDelete:
		return true
	}
	return false
}

// PendingMutation is a mutation performed while offline, waiting to be replayed
// against the remote store. The log of these is append-only; its order is the
// replay order.
type PendingMutation struct {
	Table     string    `json:"table"`
	Operation Operation `json:"operation"`
	Data      Record    `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// ReplayReport summarizes one replay pass.
type ReplayReport struct {
	Attempted int      `json:"attempted"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

// ChangeType is the kind of row change pushed over a realtime subscription.
type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// ChangeEvent is a single change notification for a table.
type ChangeEvent struct {
	Type      ChangeType `json:"type"`
	Table     string     `json:"table"`
	Record    Record     `json:"record,omitempty"`
	OldRecord Record     `json:"old_record,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}
