package trace

import "github.com/google/uuid"

// TraceLevel controls the verbosity of training traces.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelSteps records admitted steps only.
	TraceLevelSteps TraceLevel = "steps"
	// TraceLevelDecisions records every admission decision as well as steps.
	TraceLevelDecisions TraceLevel = "decisions"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:      true,
	TraceLevelSteps:     true,
	TraceLevelDecisions: true,
	"":                  true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TrainingTrace collects records during a training session.
// Thread-safety: NOT thread-safe.
type TrainingTrace struct {
	RunID      string            `json:"run_id"`
	Level      TraceLevel        `json:"level"`
	Admissions []AdmissionRecord `json:"admissions"`
	Steps      []StepRecord      `json:"steps"`
}

// NewTrainingTrace creates a trace with a fresh run ID.
func NewTrainingTrace(level TraceLevel) *TrainingTrace {
	return &TrainingTrace{
		RunID:      uuid.NewString(),
		Level:      level,
		Admissions: make([]AdmissionRecord, 0),
		Steps:      make([]StepRecord, 0),
	}
}

// RecordAdmission appends an admission record when decisions are traced.
// Safe to call on a nil trace.
func (tt *TrainingTrace) RecordAdmission(record AdmissionRecord) {
	if tt == nil || tt.Level != TraceLevelDecisions {
		return
	}
	tt.Admissions = append(tt.Admissions, record)
}

// RecordStep appends a step record unless tracing is off.
// Safe to call on a nil trace.
func (tt *TrainingTrace) RecordStep(record StepRecord) {
	if tt == nil || tt.Level == TraceLevelNone || tt.Level == "" {
		return
	}
	tt.Steps = append(tt.Steps, record)
}
