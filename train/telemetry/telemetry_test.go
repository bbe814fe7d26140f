package telemetry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempYAML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "telemetry.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadScript_ReplaysInOrder(t *testing.T) {
	path := writeTempYAML(t, `
samples:
  - {temp_c: 30.0, battery_percent: 80, charging: true, now: 1000}
  - {temp_c: 39.5, battery_percent: 79, now: 1060}
`)
	script, err := LoadScript(path)
	require.NoError(t, err)
	assert.Equal(t, 2, script.Remaining())

	ctx := context.Background()
	first, err := script.Sample(ctx)
	require.NoError(t, err)
	assert.Equal(t, Sample{TempC: 30, BatteryPercent: 80, Charging: true, Now: 1000}, first)

	second, err := script.Sample(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1060), second.Now)
	assert.False(t, second.Charging)

	_, err = script.Sample(ctx)
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestLoadScript_RejectsUnknownFields(t *testing.T) {
	path := writeTempYAML(t, `
samples:
  - {temperature: 30.0, battery_percent: 80, now: 1000}
`)
	_, err := LoadScript(path)
	assert.Error(t, err)
}

func TestLoadScript_RejectsBackwardsClock(t *testing.T) {
	path := writeTempYAML(t, `
samples:
  - {temp_c: 30.0, battery_percent: 80, now: 1000}
  - {temp_c: 30.0, battery_percent: 80, now: 999}
`)
	_, err := LoadScript(path)
	assert.ErrorContains(t, err, "before previous sample")
}

func TestLoadScript_RejectsBatteryOutOfRange(t *testing.T) {
	path := writeTempYAML(t, `
samples:
  - {temp_c: 30.0, battery_percent: 120, now: 1000}
`)
	_, err := LoadScript(path)
	assert.ErrorContains(t, err, "battery_percent")
}

func TestLoadScript_MissingFile(t *testing.T) {
	_, err := LoadScript(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "reading telemetry script")
}

func TestStatic_Sample(t *testing.T) {
	s := Static{TempC: 25, BatteryPercent: 90, Now: 5}
	got, err := s.Sample(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Sample{TempC: 25, BatteryPercent: 90, Now: 5}, got)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Sample(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClocked_AdvancesClock(t *testing.T) {
	// GIVEN a fixed reading advancing 60s per sample
	c := &Clocked{Base: Sample{TempC: 30, BatteryPercent: 90, Now: 1000}, Interval: 60}
	ctx := context.Background()

	// WHEN sampled three times
	var nows []uint64
	for i := 0; i < 3; i++ {
		sm, err := c.Sample(ctx)
		require.NoError(t, err)
		assert.Equal(t, float32(30), sm.TempC)
		nows = append(nows, sm.Now)
	}

	// THEN only the clock moves
	assert.Equal(t, []uint64{1000, 1060, 1120}, nows)
}
