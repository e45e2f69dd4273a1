/*
tc2-hat-powermon - Text rendering of power readings
Copyright (C) 2024, The Cacophony Project

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

// Package termviz renders readings and summaries as short text lines with
// ASCII bars, for logs and serial consoles.
package termviz

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/TheCacophonyProject/tc2-hat-powermon/accumulator"
)

// BarWidth is the number of characters in a bar.
const BarWidth = 32

// Scales are the full scale values used to draw the bars.
type Scales struct {
	VMax   float64
	IMaxMA float64
	PMaxMW float64
}

// Percent normalises x to 0..100 of max, saturating at both ends.
func Percent(x, max float64) uint8 {
	if math.IsNaN(x) || math.IsInf(x, 0) || max <= 0 {
		return 0
	}
	p := x / max * 100
	switch {
	case p <= 0:
		return 0
	case p >= 100:
		return 100
	default:
		return uint8(p)
	}
}

// Bar draws a bar like "=====>.........". The last column is kept for the head.
func Bar(percent uint8) string {
	if percent > 100 {
		percent = 100
	}
	buf := []byte(strings.Repeat(".", BarWidth))
	filled := int(percent) * (BarWidth - 1) / 100
	for i := 0; i < filled; i++ {
		buf[i] = '='
	}
	buf[filled] = '>'
	return string(buf)
}

// Line is one labelled value with its bar.
type Line struct {
	Label   string
	Value   float64
	Unit    string
	Percent uint8
	Bar     string
}

func NewLine(label string, value float64, unit string, max float64) Line {
	p := Percent(value, max)
	return Line{
		Label:   label,
		Value:   value,
		Unit:    unit,
		Percent: p,
		Bar:     Bar(p),
	}
}

func (l Line) String() string {
	return fmt.Sprintf("%s %.3f %s [%s] %d%%", l.Label, l.Value, l.Unit, l.Bar, l.Percent)
}

// CycleLines renders one sample. Negative current and power show an empty bar.
func CycleLines(s accumulator.Sample, scales Scales) []string {
	v := NewLine("V", s.VoltageV(), "V", scales.VMax)
	i := NewLine("I", s.CurrentMA(), "mA", scales.IMaxMA)
	p := NewLine("P", s.PowerMW(), "mW", scales.PMaxMW)
	return []string{
		v.String(),
		i.String() + "   " + p.String(),
	}
}

// SummaryLines renders the session totals and the current statistics.
func SummaryLines(snap accumulator.Snapshot, eq accumulator.Equivalent) []string {
	return []string{
		fmt.Sprintf("Q=%.3f mAh  E=%.3f mWh (%.4f Wh) (AA≈%.3f / AAA≈%.3f)  up=%s",
			snap.ChargeMAh, snap.EnergyMWh, snap.EnergyWh(), eq.AA, eq.AAA, FormatUptime(snap.Uptime)),
		fmt.Sprintf("I(avg/min/max/std)=%.3f/%.3f/%.3f/%.3f mA",
			snap.Current.Mean, snap.Current.Min, snap.Current.Max, snap.Current.StdDev),
	}
}

// FormatUptime formats a duration as h:mm:ss.
func FormatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	s := int64(d / time.Second)
	return fmt.Sprintf("%d:%02d:%02d", s/3600, (s%3600)/60, s%60)
}
