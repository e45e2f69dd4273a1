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

package accumulator

import (
	"math"
	"math/bits"
)

const nanosPerSecond = 1_000_000_000

// integral is a time integral of a value given in micro units (µA or µW).
// The represented value is whole + rem/1e9 micro-unit seconds, rem carries
// the part below one micro-unit second, in micro-unit nanoseconds.
type integral struct {
	whole     int64
	rem       int64
	saturated bool
}

// add integrates value (micro units) held for ns nanoseconds.
func (i *integral) add(value, ns int64) {
	if i.saturated || value == 0 || ns <= 0 {
		return
	}
	neg := value < 0
	mag := uint64(value)
	if neg {
		mag = uint64(-value)
	}

	hi, lo := bits.Mul64(mag, uint64(ns))
	if hi >= nanosPerSecond {
		i.saturate(neg)
		return
	}
	q, r := bits.Div64(hi, lo, nanosPerSecond)
	if q > math.MaxInt64 {
		i.saturate(neg)
		return
	}
	whole, rem := int64(q), int64(r)
	if neg {
		whole, rem = -whole, -rem
	}

	i.rem += rem
	whole += i.rem / nanosPerSecond
	i.rem %= nanosPerSecond

	sum, ok := addInt64(i.whole, whole)
	if !ok {
		i.saturate(whole < 0)
		return
	}
	i.whole = sum
}

func (i *integral) saturate(neg bool) {
	i.saturated = true
	i.rem = 0
	if neg {
		i.whole = math.MinInt64
	} else {
		i.whole = math.MaxInt64
	}
}

// seconds returns the integral in micro-unit seconds.
func (i *integral) seconds() float64 {
	return float64(i.whole) + float64(i.rem)/nanosPerSecond
}

func addInt64(a, b int64) (int64, bool) {
	c := a + b
	if (b > 0 && c < a) || (b < 0 && c > a) {
		return 0, false
	}
	return c, true
}
