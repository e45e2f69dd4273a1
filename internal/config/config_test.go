package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	goconfig "github.com/TheCacophonyProject/go-config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	conf, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, TransportDirect, conf.Sensor.Transport)
	assert.Equal(t, 0x40, conf.Sensor.Address)
	assert.Equal(t, 0.1, conf.Calibration.ShuntOhms)
	assert.Equal(t, 2.0, conf.Calibration.MaxExpectedAmps)
	assert.Equal(t, uint32(1), conf.Accumulator.CutoffMA)
	assert.Equal(t, int64(100_000), conf.Accumulator.MaxAbsCurrentMA)
	assert.Equal(t, int64(3_200_000), conf.Accumulator.MaxAbsPowerMW)
	assert.Equal(t, int64(32_000), conf.Accumulator.MaxAbsVoltageMV)
	assert.Equal(t, 500*time.Millisecond, conf.Loop.Interval)
	assert.Equal(t, 4, conf.Loop.SummaryEvery)
	assert.Equal(t, 2.5, conf.Cells.AAWh)
	assert.Equal(t, 1.1, conf.Cells.AAAWh)
	assert.Equal(t, 2*time.Hour, conf.Events.Interval)
	assert.True(t, conf.DBus.Enable)
	assert.Equal(t, 2000.0, conf.IMaxMA())
	assert.Equal(t, 11000.0, conf.PMaxMW())
	assert.Equal(t, Default(), conf)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, goconfig.ConfigFileName, `
[windows]
power-on = "12:00"

[powermon.sensor]
transport = "dbus"
address = 0x41

[powermon.calibration]
shunt-ohms = 0.05
max-expected-amps = 3.2
rounding = "up"

[powermon.loop]
interval = "250ms"

[powermon.accumulator]
cutoff-ma = 0
max-gap = "10s"
max-abs-voltage-mv = 16000
`)
	conf, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, TransportDBus, conf.Sensor.Transport)
	assert.Equal(t, 0x41, conf.Sensor.Address)
	assert.Equal(t, 0.05, conf.Calibration.ShuntOhms)
	assert.Equal(t, 3.2, conf.Calibration.MaxExpectedAmps)
	assert.Equal(t, "up", conf.Calibration.Rounding)
	assert.Equal(t, 250*time.Millisecond, conf.Loop.Interval)
	assert.Equal(t, uint32(0), conf.Accumulator.CutoffMA)
	assert.Equal(t, 10*time.Second, conf.Accumulator.MaxGap)
	assert.Equal(t, int64(16_000), conf.Accumulator.MaxAbsVoltageMV)
	// Untouched values keep their defaults.
	assert.Equal(t, 4, conf.Loop.SummaryEvery)
}

func TestLoadEnvFileOverrides(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, EnvFileName, "POWERMON_LOOP_SUMMARY_EVERY=8\nPOWERMON_MQTT_BROKER=broker.local\n")
	t.Cleanup(func() {
		os.Unsetenv("POWERMON_LOOP_SUMMARY_EVERY")
		os.Unsetenv("POWERMON_MQTT_BROKER")
	})

	conf, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 8, conf.Loop.SummaryEvery)
	assert.Equal(t, "broker.local", conf.MQTT.Broker)
}

func TestLoadInvalid(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, goconfig.ConfigFileName, `
[powermon.sensor]
transport = "spi"

[powermon.calibration]
shunt-ohms = 0
rounding = "sideways"

[powermon.accumulator]
max-abs-power-mw = -1
`)
	_, err := Load(dir)
	require.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "unknown sensor transport 'spi'")
	assert.Contains(t, err.Error(), "shunt-ohms must be positive")
	assert.Contains(t, err.Error(), "sideways")
	assert.Contains(t, err.Error(), "accumulator limits can not be negative")
}

func TestLoadBadToml(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, goconfig.ConfigFileName, "[powermon\n")
	_, err := Load(dir)
	assert.Error(t, err)
}

func TestDiff(t *testing.T) {
	a := Default()
	b := Default()
	assert.Empty(t, Diff(a, b))
	b.Calibration.ShuntOhms = 0.2
	assert.NotEmpty(t, Diff(a, b))
}
