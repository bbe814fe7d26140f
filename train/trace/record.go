// Package trace provides step-by-step recording of admission decisions and
// training outcomes for offline analysis.
// This package has no dependencies on train/; it stores pure data types.
package trace

// AdmissionRecord captures a single admission decision.
type AdmissionRecord struct {
	StepID         string  `json:"step_id"`
	Clock          uint64  `json:"clock"`
	TempC          float32 `json:"temp_c"`
	BatteryPercent float32 `json:"battery_percent"`
	Admitted       bool    `json:"admitted"`
	Reason         string  `json:"reason,omitempty"`
	Mode           string  `json:"mode"` // policy mode after the decision
}

// StepRecord captures the result of an admitted step.
type StepRecord struct {
	StepID    string  `json:"step_id"`
	Clock     uint64  `json:"clock"`
	Seed      uint64  `json:"seed"`
	Epsilon   float32 `json:"epsilon"`
	Loss      float32 `json:"loss"`
	LossPlus  float32 `json:"loss_plus"`
	LossMinus float32 `json:"loss_minus"`
	RawRho    float32 `json:"raw_rho"`
	Baseline  float32 `json:"baseline"`
	Update    float32 `json:"update"`
	Failed    bool    `json:"failed"`
	Error     string  `json:"error,omitempty"`
}
