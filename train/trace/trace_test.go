package trace

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrainingTrace_RecordAdmission_AppendsRecord(t *testing.T) {
	// GIVEN a trace configured for decisions
	tt := NewTrainingTrace(TraceLevelDecisions)

	// WHEN an admission record is recorded
	tt.RecordAdmission(AdmissionRecord{StepID: "s1", Clock: 1000, Admitted: true, Mode: "nominal"})

	// THEN the trace contains one admission record with correct data
	if len(tt.Admissions) != 1 {
		t.Fatalf("expected 1 admission, got %d", len(tt.Admissions))
	}
	if tt.Admissions[0].StepID != "s1" {
		t.Errorf("expected step ID s1, got %s", tt.Admissions[0].StepID)
	}
	if !tt.Admissions[0].Admitted {
		t.Error("expected admitted=true")
	}
}

func TestTrainingTrace_StepsLevelSkipsAdmissions(t *testing.T) {
	tt := NewTrainingTrace(TraceLevelSteps)
	tt.RecordAdmission(AdmissionRecord{StepID: "s1"})
	tt.RecordStep(StepRecord{StepID: "s1"})
	assert.Empty(t, tt.Admissions)
	assert.Len(t, tt.Steps, 1)
}

func TestTrainingTrace_NoneLevelRecordsNothing(t *testing.T) {
	tt := NewTrainingTrace(TraceLevelNone)
	tt.RecordAdmission(AdmissionRecord{StepID: "s1"})
	tt.RecordStep(StepRecord{StepID: "s1"})
	assert.Empty(t, tt.Admissions)
	assert.Empty(t, tt.Steps)
}

func TestTrainingTrace_NilIsSafe(t *testing.T) {
	var tt *TrainingTrace
	tt.RecordAdmission(AdmissionRecord{})
	tt.RecordStep(StepRecord{})
}

func TestTrainingTrace_MultipleRecords_PreservesOrder(t *testing.T) {
	tt := NewTrainingTrace(TraceLevelDecisions)
	tt.RecordAdmission(AdmissionRecord{StepID: "s1", Clock: 100, Admitted: true})
	tt.RecordAdmission(AdmissionRecord{StepID: "s2", Clock: 200, Admitted: false, Reason: "cooling down"})

	assert.Equal(t, "s1", tt.Admissions[0].StepID)
	assert.Equal(t, "s2", tt.Admissions[1].StepID)
}

func TestNewTrainingTrace_UniqueRunIDs(t *testing.T) {
	a := NewTrainingTrace(TraceLevelSteps)
	b := NewTrainingTrace(TraceLevelSteps)
	assert.NotEmpty(t, a.RunID)
	assert.NotEqual(t, a.RunID, b.RunID)
}

func TestIsValidTraceLevel(t *testing.T) {
	for _, lvl := range []string{"", "none", "steps", "decisions"} {
		assert.True(t, IsValidTraceLevel(lvl), lvl)
	}
	assert.False(t, IsValidTraceLevel("verbose"))
}
