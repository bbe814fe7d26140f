package train

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fwdtrain/fwdtrain/train/admission"
)

func writeTempYAML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func float32Ptr(v float32) *float32 { return &v }

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, admission.DefaultThresholds(), cfg.Admission.Thresholds())
}

func TestLoadConfig_ValidYAML(t *testing.T) {
	path := writeTempYAML(t, `
epsilon: 0.01
epsilon_decay: 0.99
epsilon_floor: 0.001
cap: 2.5
baseline_beta: 0.8
master_seed: 42
seeds: [10, 20, 30]
round_id: 7
derive_minus: true
admission:
  battery_floor: 30
  high_temp_c: 40
  low_temp_c: 36
  max_backoff_seconds: 7200
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, float32(0.01), cfg.Epsilon)
	assert.Equal(t, float32(2.5), cfg.Cap)
	assert.Equal(t, 0.8, cfg.BaselineBeta)
	assert.Equal(t, []Seed{10, 20, 30}, cfg.SeedList())
	assert.Equal(t, uint64(7), cfg.RoundID)
	assert.True(t, cfg.DeriveMinus)
	assert.False(t, cfg.FailOnCancel)

	th := cfg.Admission.Thresholds()
	assert.Equal(t, float32(30), th.BatteryFloor)
	assert.Equal(t, float32(40), th.HighTempC)
	assert.Equal(t, float32(36), th.LowTempC)
	assert.Equal(t, uint64(600), th.BaseBackoff, "unset fields keep defaults")
	assert.Equal(t, uint64(7200), th.MaxBackoff)

	sched := cfg.EpsilonSchedule()
	assert.Equal(t, EpsilonSchedule{Initial: 0.01, Decay: 0.99, Floor: 0.001}, sched)
}

func TestLoadConfig_MissingKeysKeepDefaults(t *testing.T) {
	path := writeTempYAML(t, "cap: 1\n")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, float32(1e-3), cfg.Epsilon)
	assert.Equal(t, 0.9, cfg.BaselineBeta)
	assert.Equal(t, float32(1), cfg.Cap)
}

func TestLoadConfig_UnknownFieldRejected(t *testing.T) {
	path := writeTempYAML(t, "epsilon: 0.1\nepsilonn: 0.2\n")
	_, err := LoadConfig(path)
	assert.ErrorContains(t, err, "parsing training config")
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "reading training config")
}

func TestConfig_Validate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"zero epsilon", func(c *Config) { c.Epsilon = 0 }, "Epsilon"},
		{"negative cap", func(c *Config) { c.Cap = -1 }, "Cap"},
		{"decay above one", func(c *Config) { c.EpsilonDecay = 1.5 }, "EpsilonDecay"},
		{"decay without floor", func(c *Config) { c.EpsilonDecay = 0.5 }, "epsilon_floor"},
		{"decay with negative floor", func(c *Config) {
			c.EpsilonDecay = 0.5
			c.EpsilonFloor = -1
		}, "EpsilonFloor"},
		{"beta of one", func(c *Config) { c.BaselineBeta = 1 }, "BaselineBeta"},
		{"battery above 100", func(c *Config) { c.Admission.BatteryFloor = float32Ptr(120) }, "BatteryFloor"},
		{"inverted hysteresis", func(c *Config) { c.Admission.LowTempC = float32Ptr(39) }, "low_temp_c"},
		{"ceiling below base", func(c *Config) {
			v := uint64(100)
			c.Admission.MaxBackoff = &v
		}, "max_backoff_seconds"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestConfig_Validate_DecayWithFloorOrConstant(t *testing.T) {
	tests := []struct {
		name  string
		decay float32
		floor float32
	}{
		{"constant via zero decay", 0, 0},
		{"constant via unit decay", 1, 0},
		{"decay with floor", 0.5, 1e-4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.EpsilonDecay = tt.decay
			cfg.EpsilonFloor = tt.floor
			assert.NoError(t, cfg.Validate())
		})
	}
}

func TestApplyEnv_OverridesFields(t *testing.T) {
	// GIVEN environment overrides
	t.Setenv("FWDTRAIN_EPSILON", "0.05")
	t.Setenv("FWDTRAIN_SEEDS", "1,2,3")
	t.Setenv("FWDTRAIN_DERIVE_MINUS", "true")
	t.Setenv("FWDTRAIN_ADMISSION_HIGH_TEMP_C", "41.5")

	// WHEN applied over the defaults
	cfg := DefaultConfig()
	require.NoError(t, ApplyEnv(&cfg))

	// THEN set variables win and unset ones keep defaults
	assert.Equal(t, float32(0.05), cfg.Epsilon)
	assert.Equal(t, []uint64{1, 2, 3}, cfg.Seeds)
	assert.True(t, cfg.DeriveMinus)
	require.NotNil(t, cfg.Admission.HighTempC)
	assert.Equal(t, float32(41.5), *cfg.Admission.HighTempC)
	assert.Nil(t, cfg.Admission.LowTempC)
	assert.Equal(t, float32(5), cfg.Cap)
}

func TestApplyEnv_BadValue(t *testing.T) {
	t.Setenv("FWDTRAIN_CAP", "not-a-number")
	cfg := DefaultConfig()
	assert.ErrorContains(t, ApplyEnv(&cfg), "parse env")
}
