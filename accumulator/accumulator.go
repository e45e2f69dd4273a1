/*
tc2-hat-powermon - Integrates power readings from the TC2 hat
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

// Package accumulator integrates sensor samples into charge and energy totals
// and keeps online statistics for the session.
//
// An Accumulator has a single owner. It is not safe for concurrent use, share
// copies of Snapshot instead.
package accumulator

import (
	"math"
	"time"
)

const (
	microAmpSecondsPerMAh  = 3_600_000
	microWattSecondsPerMWh = 3_600_000
)

// Result reports what Update did with a sample.
type Result uint8

const (
	// Integrated means the sample was added to the statistics and the totals.
	Integrated Result = iota
	// BelowCutoff means the sample was added to the statistics only.
	BelowCutoff
	// SkippedNoTime means no time elapsed and nothing changed.
	SkippedNoTime
	// Rejected means the sample was out of range, only uptime advanced.
	Rejected
)

func (r Result) String() string {
	switch r {
	case Integrated:
		return "integrated"
	case BelowCutoff:
		return "below cutoff"
	case SkippedNoTime:
		return "skipped, no time elapsed"
	case Rejected:
		return "rejected, out of range"
	default:
		return "unknown"
	}
}

// Limits bounds a plausible sample. Zero fields are not checked.
type Limits struct {
	MaxAbsCurrentUA int64
	MaxAbsPowerUW   int64
	MaxAbsVoltageMV int64
}

func (l Limits) allows(s Sample) bool {
	if l.MaxAbsCurrentUA > 0 && abs(s.CurrentUA) > l.MaxAbsCurrentUA {
		return false
	}
	if l.MaxAbsPowerUW > 0 && abs(s.PowerUW) > l.MaxAbsPowerUW {
		return false
	}
	if l.MaxAbsVoltageMV > 0 && abs(s.BusVoltageMV) > l.MaxAbsVoltageMV {
		return false
	}
	return true
}

// Accumulator holds the running totals and statistics for a session.
type Accumulator struct {
	cutoffUA int64
	limits   Limits

	charge integral
	energy integral
	uptime time.Duration

	current RunningStats
	voltage RunningStats
	power   RunningStats
}

// Snapshot is a copy of the accumulator state.
type Snapshot struct {
	ChargeMAh float64       `json:"charge_mah"`
	EnergyMWh float64       `json:"energy_mwh"`
	ChargeUAs int64         `json:"charge_uas"`
	EnergyUWs int64         `json:"energy_uws"`
	Uptime    time.Duration `json:"uptime_ns"`

	// Current is in mA, Voltage in V and Power in mW.
	Current Stats `json:"current"`
	Voltage Stats `json:"voltage"`
	Power   Stats `json:"power"`

	// Saturated is set once a total has reached the int64 limit.
	Saturated bool `json:"saturated"`
}

func (s Snapshot) EnergyWh() float64 {
	return s.EnergyMWh / 1000
}

// New returns an Accumulator that ignores currents below cutoffMA for integration.
func New(cutoffMA uint32) *Accumulator {
	return NewWithLimits(cutoffMA, Limits{})
}

func NewWithLimits(cutoffMA uint32, limits Limits) *Accumulator {
	return &Accumulator{
		cutoffUA: int64(cutoffMA) * 1000,
		limits:   limits,
	}
}

// Update folds one sample held for elapsed into the accumulator.
func (a *Accumulator) Update(s Sample, elapsed time.Duration) Result {
	if elapsed <= 0 {
		return SkippedNoTime
	}
	a.uptime = addDuration(a.uptime, elapsed)
	if !a.limits.allows(s) {
		return Rejected
	}

	a.current.Add(s.CurrentMA())
	a.voltage.Add(s.VoltageV())
	a.power.Add(s.PowerMW())

	if abs(s.CurrentUA) < a.cutoffUA {
		return BelowCutoff
	}
	ns := elapsed.Nanoseconds()
	a.charge.add(s.CurrentUA, ns)
	a.energy.add(s.PowerUW, ns)
	return Integrated
}

func (a *Accumulator) Snapshot() Snapshot {
	return Snapshot{
		ChargeMAh: a.charge.seconds() / microAmpSecondsPerMAh,
		EnergyMWh: a.energy.seconds() / microWattSecondsPerMWh,
		ChargeUAs: a.charge.whole,
		EnergyUWs: a.energy.whole,
		Uptime:    a.uptime,
		Current:   a.current.Summary(),
		Voltage:   a.voltage.Summary(),
		Power:     a.power.Summary(),
		Saturated: a.charge.saturated || a.energy.saturated,
	}
}

// CutoffMA returns the configured integration cutoff.
func (a *Accumulator) CutoffMA() uint32 {
	return uint32(a.cutoffUA / 1000)
}

func addDuration(a, b time.Duration) time.Duration {
	if a > math.MaxInt64-b {
		return math.MaxInt64
	}
	return a + b
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
