package powermon

import (
	"testing"
	"time"

	"github.com/TheCacophonyProject/tc2-hat-powermon/accumulator"
	"github.com/TheCacophonyProject/tc2-hat-powermon/calibration"
	"github.com/TheCacophonyProject/tc2-hat-powermon/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcArgsSubcommands(t *testing.T) {
	args, err := procArgs([]string{"monitor"})
	require.NoError(t, err)
	assert.NotNil(t, args.Monitor)

	args, err = procArgs([]string{"calibrate", "--shunt-ohms", "0.05", "--max-amps", "3.2"})
	require.NoError(t, err)
	require.NotNil(t, args.Calibrate)
	assert.Equal(t, 0.05, args.Calibrate.ShuntOhms)
	assert.Equal(t, 3.2, args.Calibrate.MaxAmps)

	args, err = procArgs([]string{"read"})
	require.NoError(t, err)
	require.NotNil(t, args.Read)
	assert.Equal(t, 10, args.Read.Count)
}

func TestProcArgsNoSubcommand(t *testing.T) {
	_, err := procArgs([]string{})
	assert.ErrorIs(t, err, errNoSubcommand)
}

func TestDeriveCalibration(t *testing.T) {
	params, err := deriveCalibration(config.Default().Calibration)
	require.NoError(t, err)
	assert.Equal(t, 61.0, params.CurrentLSBuA)
	assert.Equal(t, uint16(0x1A3A), params.Register)

	conf := config.Default().Calibration
	conf.Rounding = "up"
	params, err = deriveCalibration(conf)
	require.NoError(t, err)
	assert.Equal(t, 62.0, params.CurrentLSBuA)

	conf.Rounding = "sideways"
	_, err = deriveCalibration(conf)
	assert.Error(t, err)

	conf = config.Default().Calibration
	conf.ShuntOhms = 0
	_, err = deriveCalibration(conf)
	assert.ErrorIs(t, err, calibration.ErrInvalidShunt)
}

func TestNewAccumulatorLimits(t *testing.T) {
	acc := newAccumulator(config.Accumulator{CutoffMA: 5, MaxAbsCurrentMA: 10})
	assert.Equal(t, uint32(5), acc.CutoffMA())
	assert.Equal(t, "rejected, out of range", acc.Update(oneAmp, time.Second).String())

	acc = newAccumulator(config.Accumulator{MaxAbsPowerMW: 4000})
	assert.Equal(t, accumulator.Rejected, acc.Update(oneAmp, time.Second))

	acc = newAccumulator(config.Accumulator{MaxAbsVoltageMV: 3300})
	assert.Equal(t, accumulator.Rejected, acc.Update(oneAmp, time.Second))

	acc = newAccumulator(config.Default().Accumulator)
	assert.Equal(t, accumulator.Integrated, acc.Update(oneAmp, time.Second))
}
