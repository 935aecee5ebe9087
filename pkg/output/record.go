// Package output provides JSONL output for conversion runs, for callers
// that pipe --json output into another tool instead of reading the
// step-by-step progress lines meant for a terminal.
//
// Output is structured as typed record envelopes containing step
// transitions, warnings, and a final summary. Each line is a
// self-contained JSON object that can be parsed independently.
package output

import (
	"encoding/json"
	"errors"
	"time"
)

// Record type constants define the envelope types for JSONL output.
// These follow the pattern: ec2spotconverter.<type>.v<version>
const (
	// TypeStep identifies a single step's outcome.
	TypeStep = "ec2spotconverter.step.v1"

	// TypeWarning identifies a warning accumulated during the run.
	TypeWarning = "ec2spotconverter.warning.v1"

	// TypeSummary identifies the final run summary.
	TypeSummary = "ec2spotconverter.summary.v1"

	// TypeError identifies a terminal error.
	TypeError = "ec2spotconverter.error.v1"
)

// Record is the envelope for all JSONL output.
//
// Each line of JSONL output contains a Record with a type-specific
// payload in the Data field. The type field determines how to
// interpret the Data payload.
type Record struct {
	// Type identifies the record type (e.g., "ec2spotconverter.step.v1").
	Type string `json:"type"`

	// TS is the timestamp when the record was created (RFC3339Nano).
	TS time.Time `json:"ts"`

	// InstanceID is the original instance id this run converts.
	InstanceID string `json:"instance_id"`

	// Data contains the type-specific payload as raw JSON.
	Data json.RawMessage `json:"data"`
}

// StepOutcome enumerates the record-level encoding of a step's Outcome.
type StepOutcome string

const (
	StepOutcomeSuccess   StepOutcome = "success"
	StepOutcomeSkipped   StepOutcome = "skipped"
	StepOutcomeFatal     StepOutcome = "fatal"
	StepOutcomeIncomplete StepOutcome = "incomplete"
	StepOutcomeRecovered StepOutcome = "recovered"
)

// StepRecord is the data payload for a single step transition.
type StepRecord struct {
	Index       int         `json:"index"`
	Total       int         `json:"total"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Outcome     StepOutcome `json:"outcome"`
	Message     string      `json:"message,omitempty"`
}

// WarningRecord is the data payload for a single accumulated warning.
type WarningRecord struct {
	Message string `json:"message"`
}

// SummaryRecord is the data payload for the final run summary.
type SummaryRecord struct {
	Status        string `json:"status"`
	NewInstanceID string `json:"new_instance_id,omitempty"`
	AMIID         string `json:"ami_id,omitempty"`
	StepCount     int    `json:"step_count"`

	Duration      time.Duration `json:"duration_ns"`
	DurationHuman string        `json:"duration"`

	WarningCount int `json:"warning_count"`
}

// ErrorRecord is the data payload for a terminal, non-recovered failure.
type ErrorRecord struct {
	// Kind is the classified internal/errors.Kind string, or empty if the
	// error never passed through that package.
	Kind    string `json:"kind,omitempty"`
	Op      string `json:"op,omitempty"`
	Message string `json:"message"`
}

// Writer errors.
var (
	// ErrWriterClosed is returned when writing to a closed writer.
	ErrWriterClosed = errors.New("writer is closed")
)

// WriteError wraps errors that occur during write operations.
type WriteError struct {
	Op  string // Operation that failed (e.g., "marshal_data", "write")
	Err error  // Underlying error
}

func (e *WriteError) Error() string {
	return "output: " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
