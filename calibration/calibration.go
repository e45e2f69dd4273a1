/*
tc2-hat-powermon - Calibration values for the INA219
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

package calibration

import (
	"errors"
	"fmt"
	"math"
)

const (
	// ScalingConstant is the fixed internal scaling value of the INA219.
	ScalingConstant = 0.04096

	// The signed current register has 15 bits of positive range.
	currentSteps = 32768
	maxRegister  = 0xFFFF
	// Bit 0 of the calibration register always reads as zero.
	registerMask = 0xFFFE

	// Power LSB is fixed at 20 times the current LSB.
	powerLSBMultiplier = 20

	// Full scale shunt voltage with the /8 gain.
	shuntFullScaleVolts = 0.32
)

var (
	ErrInvalidShunt      = errors.New("shunt resistance must be a positive, finite value")
	ErrInvalidMaxCurrent = errors.New("max expected current must be a positive, finite value")
)

// Rounding selects how the minimum current LSB is rounded to a convenient step.
type Rounding uint8

const (
	// RoundDown picks the largest step not above maxAmps/32768.
	RoundDown Rounding = iota
	// RoundUp picks the smallest step not below maxAmps/32768.
	RoundUp
)

func (r Rounding) String() string {
	switch r {
	case RoundDown:
		return "down"
	case RoundUp:
		return "up"
	default:
		return "unknown"
	}
}

// ParseRounding converts a config value into a Rounding.
func ParseRounding(s string) (Rounding, error) {
	switch s {
	case "", "down":
		return RoundDown, nil
	case "up":
		return RoundUp, nil
	default:
		return RoundDown, fmt.Errorf("unknown calibration rounding '%s'", s)
	}
}

// Params holds the values programmed into the sensor.
type Params struct {
	ShuntOhms       float64
	MaxExpectedAmps float64
	Rounding        Rounding

	// CurrentLSBuA is the current represented by one bit of the current register.
	CurrentLSBuA float64
	PowerLSBuW   float64
	Register     uint16

	// Clamped is set when the computed register value did not fit in 16 bits,
	// or when the range is so small the LSB had to be raised above max/32768.
	Clamped bool
	// MaxCurrentA is the largest positive current the current register can hold.
	MaxCurrentA float64
	// ShuntLimitA is the current that saturates the shunt ADC at the /8 gain.
	ShuntLimitA float64
}

// CurrentLSBAmps returns the current LSB in amps.
func (p Params) CurrentLSBAmps() float64 {
	return p.CurrentLSBuA / 1e6
}

func (p Params) String() string {
	return fmt.Sprintf("shunt %gΩ, max %gA, current LSB %guA/bit, power LSB %guW/bit, register %d (0x%04X)",
		p.ShuntOhms, p.MaxExpectedAmps, p.CurrentLSBuA, p.PowerLSBuW, p.Register, p.Register)
}

// Derive calculates calibration values using RoundDown.
func Derive(shuntOhms, maxExpectedAmps float64) (Params, error) {
	return DeriveWith(shuntOhms, maxExpectedAmps, RoundDown)
}

// MustDerive is like Derive but panics on invalid input. Use it with vetted constants only.
func MustDerive(shuntOhms, maxExpectedAmps float64) Params {
	p, err := Derive(shuntOhms, maxExpectedAmps)
	if err != nil {
		panic(err)
	}
	return p
}

// DeriveWith calculates calibration values for the given shunt and expected current.
// The result only depends on the inputs.
func DeriveWith(shuntOhms, maxExpectedAmps float64, rounding Rounding) (Params, error) {
	if !positiveFinite(shuntOhms) {
		return Params{}, fmt.Errorf("%w: %v", ErrInvalidShunt, shuntOhms)
	}
	if !positiveFinite(maxExpectedAmps) {
		return Params{}, fmt.Errorf("%w: %v", ErrInvalidMaxCurrent, maxExpectedAmps)
	}

	minLSBuA := maxExpectedAmps * 1e6 / currentSteps
	lsbuA, raised := roundLSB(minLSBuA, rounding)

	register := math.Floor(ScalingConstant / (lsbuA / 1e6 * shuntOhms))
	clamped := raised
	if register > maxRegister {
		register = maxRegister
		clamped = true
	}
	if register < 0 {
		register = 0
		clamped = true
	}

	return Params{
		ShuntOhms:       shuntOhms,
		MaxExpectedAmps: maxExpectedAmps,
		Rounding:        rounding,
		CurrentLSBuA:    lsbuA,
		PowerLSBuW:      lsbuA * powerLSBMultiplier,
		Register:        uint16(register) & registerMask,
		Clamped:         clamped,
		MaxCurrentA:     lsbuA / 1e6 * (currentSteps - 1),
		ShuntLimitA:     shuntFullScaleVolts / shuntOhms,
	}, nil
}

// roundLSB rounds to whole µA, or to whole nA for ranges below 1 µA/bit.
// RoundDown never returns zero, the smallest step is used instead and raised
// reports that the result is above minLSBuA.
func roundLSB(minLSBuA float64, rounding Rounding) (lsbuA float64, raised bool) {
	step := 1.0
	if minLSBuA < 1 {
		step = 0.001
	}
	steps := minLSBuA / step
	switch rounding {
	case RoundUp:
		steps = math.Ceil(steps)
	default:
		steps = math.Floor(steps)
	}
	if steps < 1 {
		steps = 1
		raised = rounding == RoundDown
	}
	return steps * step, raised
}

func positiveFinite(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
