package app

import "github.com/google/uuid"

// Operation tracks one CLI invocation. Operations start in memory with
// JournalID 0; only commands that change the index or the remote side are
// persisted to the journal.
type Operation struct {
	ID         string // uuid, tags every log line
	JournalID  int64
	Name       string
	Parameters string
	Status     string // "success" or "error"
}

// NewOperation creates an in-memory operation with a fresh id.
func NewOperation(name, parameters string) *Operation {
	return &Operation{
		ID:         uuid.New().String(),
		Name:       name,
		Parameters: parameters,
		Status:     "success",
	}
}

// Persisted returns true if this operation has been saved to the journal.
func (op *Operation) Persisted() bool {
	return op.JournalID != 0
}

// Fail marks the operation as failed.
func (op *Operation) Fail() {
	op.Status = "error"
}
