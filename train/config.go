package train

import (
	"bytes"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/fwdtrain/fwdtrain/train/admission"
)

// EnvPrefix prefixes every environment override, e.g. FWDTRAIN_EPSILON.
const EnvPrefix = "FWDTRAIN_"

// Config holds training and admission configuration, loadable from YAML and
// overridable from the environment.
type Config struct {
	Epsilon      float32  `yaml:"epsilon" env:"EPSILON" validate:"gt=0"`
	EpsilonDecay float32  `yaml:"epsilon_decay" env:"EPSILON_DECAY" validate:"gte=0,lte=1"`
	EpsilonFloor float32  `yaml:"epsilon_floor" env:"EPSILON_FLOOR" validate:"gte=0"`
	Cap          float32  `yaml:"cap" env:"CAP" validate:"gt=0"`
	BaselineBeta float64  `yaml:"baseline_beta" env:"BASELINE_BETA" validate:"gte=0,lt=1"`
	MasterSeed   uint64   `yaml:"master_seed" env:"MASTER_SEED"`
	Seeds        []uint64 `yaml:"seeds" env:"SEEDS"`
	RoundID      uint64   `yaml:"round_id" env:"ROUND_ID"`

	// DeriveMinus obtains the minus loss as 2*loss0 - lossPlus instead of a
	// third executor call. Exact only for locally linear losses.
	DeriveMinus bool `yaml:"derive_minus" env:"DERIVE_MINUS"`
	// FailOnCancel reports a cancelled in-flight step as a failure.
	FailOnCancel bool `yaml:"fail_on_cancel" env:"FAIL_ON_CANCEL"`

	Admission AdmissionConfig `yaml:"admission" envPrefix:"ADMISSION_"`
}

// AdmissionConfig overrides admission thresholds.
// Nil pointer fields mean "not set" and keep admission.DefaultThresholds.
type AdmissionConfig struct {
	BatteryFloor *float32 `yaml:"battery_floor" env:"BATTERY_FLOOR" validate:"omitempty,gte=0,lte=100"`
	HighTempC    *float32 `yaml:"high_temp_c" env:"HIGH_TEMP_C"`
	LowTempC     *float32 `yaml:"low_temp_c" env:"LOW_TEMP_C"`
	BaseBackoff  *uint64  `yaml:"base_backoff_seconds" env:"BASE_BACKOFF_SECONDS" validate:"omitempty,gt=0"`
	MaxBackoff   *uint64  `yaml:"max_backoff_seconds" env:"MAX_BACKOFF_SECONDS"`
}

// DefaultConfig returns the stock client configuration.
func DefaultConfig() Config {
	return Config{
		Epsilon:      1e-3,
		EpsilonDecay: 1,
		Cap:          5,
		BaselineBeta: 0.9,
	}
}

// LoadConfig reads a YAML file on top of DefaultConfig.
// Unknown keys are rejected so typos surface as errors.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading training config: %w", err)
	}
	cfg := DefaultConfig()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing training config: %w", err)
	}
	return &cfg, nil
}

// ApplyEnv overrides cfg from FWDTRAIN_* environment variables.
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field ranges and cross-field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid training config: %w", err)
	}
	if c.EpsilonDecay > 0 && c.EpsilonDecay < 1 && c.EpsilonFloor <= 0 {
		return fmt.Errorf("epsilon_floor must be positive when epsilon_decay (%g) is below 1", c.EpsilonDecay)
	}
	th := c.Admission.Thresholds()
	if th.LowTempC >= th.HighTempC {
		return fmt.Errorf("low_temp_c (%.1f) must be below high_temp_c (%.1f)", th.LowTempC, th.HighTempC)
	}
	if th.MaxBackoff != 0 && th.MaxBackoff < th.BaseBackoff {
		return fmt.Errorf("max_backoff_seconds (%d) must be at least base_backoff_seconds (%d)", th.MaxBackoff, th.BaseBackoff)
	}
	return nil
}

// Thresholds merges the set fields over admission.DefaultThresholds.
func (a AdmissionConfig) Thresholds() admission.Thresholds {
	th := admission.DefaultThresholds()
	if a.BatteryFloor != nil {
		th.BatteryFloor = *a.BatteryFloor
	}
	if a.HighTempC != nil {
		th.HighTempC = *a.HighTempC
	}
	if a.LowTempC != nil {
		th.LowTempC = *a.LowTempC
	}
	if a.BaseBackoff != nil {
		th.BaseBackoff = *a.BaseBackoff
	}
	if a.MaxBackoff != nil {
		th.MaxBackoff = *a.MaxBackoff
	}
	return th
}

// EpsilonSchedule builds the schedule described by the config.
func (c *Config) EpsilonSchedule() EpsilonSchedule {
	return EpsilonSchedule{Initial: c.Epsilon, Decay: c.EpsilonDecay, Floor: c.EpsilonFloor}
}

// SeedList converts the configured seeds.
func (c *Config) SeedList() []Seed {
	seeds := make([]Seed, len(c.Seeds))
	for i, s := range c.Seeds {
		seeds[i] = Seed(s)
	}
	return seeds
}
