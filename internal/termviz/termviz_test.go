package termviz

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/TheCacophonyProject/tc2-hat-powermon/accumulator"
	"github.com/stretchr/testify/assert"
)

func TestPercent(t *testing.T) {
	assert.Equal(t, uint8(0), Percent(-1, 10))
	assert.Equal(t, uint8(0), Percent(1, 0))
	assert.Equal(t, uint8(0), Percent(math.NaN(), 10))
	assert.Equal(t, uint8(0), Percent(math.Inf(1), 10))
	assert.Equal(t, uint8(50), Percent(2.75, 5.5))
	assert.Equal(t, uint8(100), Percent(10, 5.5))
	assert.Equal(t, uint8(99), Percent(9.999, 10))
}

func TestBar(t *testing.T) {
	assert.Equal(t, ">"+strings.Repeat(".", 31), Bar(0))
	assert.Equal(t, strings.Repeat("=", 15)+">"+strings.Repeat(".", 16), Bar(50))
	assert.Equal(t, strings.Repeat("=", 31)+">", Bar(100))
	assert.Equal(t, Bar(100), Bar(200))
	for p := 0; p <= 100; p++ {
		assert.Len(t, Bar(uint8(p)), BarWidth)
	}
}

func TestCycleLines(t *testing.T) {
	lines := CycleLines(accumulator.Sample{BusVoltageMV: 2750, CurrentUA: 1_000_000, PowerUW: -5}, Scales{
		VMax:   5.5,
		IMaxMA: 2000,
		PMaxMW: 11000,
	})
	assert.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "V 2.750 V ["))
	assert.True(t, strings.HasSuffix(lines[0], "] 50%"))
	assert.Contains(t, lines[1], "I 1000.000 mA")
	assert.Contains(t, lines[1], "P -0.005 mW [>")
}

func TestSummaryLines(t *testing.T) {
	a := accumulator.New(1)
	a.Update(accumulator.Sample{BusVoltageMV: 5000, CurrentUA: 1_000_000, PowerUW: 5_000_000}, time.Hour+2*time.Minute+3*time.Second)
	snap := a.Snapshot()
	lines := SummaryLines(snap, accumulator.BatteryEquivalent(snap.EnergyMWh, accumulator.DefaultCells))
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[0], "up=1:02:03")
	assert.Contains(t, lines[1], "1000.000/1000.000/1000.000/0.000 mA")
}

func TestFormatUptime(t *testing.T) {
	assert.Equal(t, "0:00:00", FormatUptime(0))
	assert.Equal(t, "0:00:00", FormatUptime(-time.Second))
	assert.Equal(t, "27:46:40", FormatUptime(100000*time.Second))
}
