package ina219

import (
	"errors"
	"testing"

	"github.com/TheCacophonyProject/tc2-hat-powermon/accumulator"
	"github.com/TheCacophonyProject/tc2-hat-powermon/calibration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2ctest"
)

func newTestDevice(t *testing.T, ops ...i2ctest.IO) (*Device, *i2ctest.Playback) {
	bus := &i2ctest.Playback{Ops: ops}
	params := calibration.MustDerive(0.1, 2.0)
	return New(&i2c.Dev{Bus: bus, Addr: Address}, params), bus
}

func TestDefaultConfigurationValue(t *testing.T) {
	assert.Equal(t, uint16(0x399F), DefaultConfiguration.Value())
	assert.Equal(t, 320, DefaultConfiguration.ShuntFullScaleMV())

	c := Configuration{
		BusRange: BusRange16V,
		Gain:     Gain40mV,
		BusADC:   ADC128Samples,
		ShuntADC: ADC9Bit,
		Mode:     ModeBusTriggered,
	}
	assert.Equal(t, uint16(0x0782), c.Value())
	assert.Equal(t, 40, c.ShuntFullScaleMV())
}

func TestInit(t *testing.T) {
	d, bus := newTestDevice(t,
		i2ctest.IO{Addr: Address, W: []byte{0x00, 0x80, 0x00}},
		i2ctest.IO{Addr: Address, W: []byte{0x00}, R: []byte{0x39, 0x9F}},
		i2ctest.IO{Addr: Address, W: []byte{0x05, 0x1A, 0x3A}},
		i2ctest.IO{Addr: Address, W: []byte{0x05}, R: []byte{0x1A, 0x3A}},
		i2ctest.IO{Addr: Address, W: []byte{0x00, 0x39, 0x9F}},
		i2ctest.IO{Addr: Address, W: []byte{0x00}, R: []byte{0x39, 0x9F}},
	)
	require.NoError(t, d.Init(DefaultConfiguration))
	require.NoError(t, bus.Close())
	assert.Equal(t, uint16(6714), d.Calibration().Register)
}

func TestInitNotDefaultAfterReset(t *testing.T) {
	d, bus := newTestDevice(t,
		i2ctest.IO{Addr: Address, W: []byte{0x00, 0x80, 0x00}},
		i2ctest.IO{Addr: Address, W: []byte{0x00}, R: []byte{0x00, 0x00}},
	)
	err := d.Init(DefaultConfiguration)
	assert.ErrorIs(t, err, ErrNotDefaultAfterReset)
	require.NoError(t, bus.Close())
}

func TestInitCalibrationMismatch(t *testing.T) {
	d, bus := newTestDevice(t,
		i2ctest.IO{Addr: Address, W: []byte{0x00, 0x80, 0x00}},
		i2ctest.IO{Addr: Address, W: []byte{0x00}, R: []byte{0x39, 0x9F}},
		i2ctest.IO{Addr: Address, W: []byte{0x05, 0x1A, 0x3A}},
		i2ctest.IO{Addr: Address, W: []byte{0x05}, R: []byte{0x00, 0x00}},
	)
	err := d.Init(DefaultConfiguration)
	assert.ErrorIs(t, err, ErrCalibrationMismatch)
	require.NoError(t, bus.Close())
}

func TestNextNotReady(t *testing.T) {
	d, bus := newTestDevice(t,
		i2ctest.IO{Addr: Address, W: []byte{0x02}, R: []byte{0x27, 0x10}},
	)
	_, ok, err := d.Next()
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, bus.Close())
}

func TestNextReading(t *testing.T) {
	// 5000mV with the conversion ready flag, 1000 current bits, 100 power bits.
	d, bus := newTestDevice(t,
		i2ctest.IO{Addr: Address, W: []byte{0x02}, R: []byte{0x27, 0x12}},
		i2ctest.IO{Addr: Address, W: []byte{0x04}, R: []byte{0x03, 0xE8}},
		i2ctest.IO{Addr: Address, W: []byte{0x03}, R: []byte{0x00, 0x64}},
	)
	s, ok, err := d.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, accumulator.Sample{BusVoltageMV: 5000, CurrentUA: 61_000, PowerUW: 122_000}, s)
	require.NoError(t, bus.Close())
}

func TestNextNegativeCurrent(t *testing.T) {
	d, bus := newTestDevice(t,
		i2ctest.IO{Addr: Address, W: []byte{0x02}, R: []byte{0x27, 0x12}},
		i2ctest.IO{Addr: Address, W: []byte{0x04}, R: []byte{0xFC, 0x18}},
		i2ctest.IO{Addr: Address, W: []byte{0x03}, R: []byte{0x00, 0x64}},
	)
	s, ok, err := d.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(-61_000), s.CurrentUA)
	require.NoError(t, bus.Close())
}

func TestNextOverflow(t *testing.T) {
	d, bus := newTestDevice(t,
		i2ctest.IO{Addr: Address, W: []byte{0x02}, R: []byte{0x27, 0x13}},
		i2ctest.IO{Addr: Address, W: []byte{0x04}, R: []byte{0x7F, 0xFF}},
		i2ctest.IO{Addr: Address, W: []byte{0x03}, R: []byte{0xFF, 0xFF}},
	)
	_, ok, err := d.Next()
	assert.ErrorIs(t, err, ErrOverflow)
	assert.False(t, ok)
	require.NoError(t, bus.Close())
}

func TestShuntVoltage(t *testing.T) {
	d, bus := newTestDevice(t,
		i2ctest.IO{Addr: Address, W: []byte{0x01}, R: []byte{0xFF, 0x38}},
	)
	uv, err := d.ShuntVoltage()
	require.NoError(t, err)
	assert.Equal(t, int64(-2000), uv)
	require.NoError(t, bus.Close())
}

type failingConn struct{ err error }

func (f failingConn) Tx(w, r []byte) error { return f.err }

func TestBusErrorsArePropagated(t *testing.T) {
	busErr := errors.New("bus error")
	d := New(failingConn{err: busErr}, calibration.MustDerive(0.1, 2.0))
	_, _, err := d.Next()
	assert.ErrorIs(t, err, busErr)
	assert.ErrorIs(t, d.Init(DefaultConfiguration), busErr)
}
