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

import "math"

// RunningStats is a single pass (Welford) aggregate. No history is kept.
type RunningStats struct {
	n    uint64
	mean float64
	m2   float64
	min  float64
	max  float64
}

// Stats is a read only summary of a RunningStats.
type Stats struct {
	Count  uint64  `json:"count"`
	Mean   float64 `json:"mean"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	StdDev float64 `json:"stddev"`
}

func (s *RunningStats) Add(x float64) {
	s.n++
	delta := x - s.mean
	s.mean += delta / float64(s.n)
	delta2 := x - s.mean
	s.m2 += delta * delta2
	if s.n == 1 || x < s.min {
		s.min = x
	}
	if s.n == 1 || x > s.max {
		s.max = x
	}
}

func (s *RunningStats) Count() uint64 {
	return s.n
}

// Mean returns the running mean, kept within [Min, Max] against rounding.
func (s *RunningStats) Mean() float64 {
	if s.n == 0 {
		return 0
	}
	return math.Min(math.Max(s.mean, s.min), s.max)
}

// Min returns 0 until a value has been added.
func (s *RunningStats) Min() float64 {
	return s.min
}

// Max returns 0 until a value has been added.
func (s *RunningStats) Max() float64 {
	return s.max
}

// Variance is the population variance, M2/n.
func (s *RunningStats) Variance() float64 {
	if s.n == 0 {
		return 0
	}
	return s.m2 / float64(s.n)
}

// SampleVariance is M2/(n-1), 0 with fewer than two values.
func (s *RunningStats) SampleVariance() float64 {
	if s.n < 2 {
		return 0
	}
	return s.m2 / float64(s.n-1)
}

func (s *RunningStats) StdDev() float64 {
	v := s.Variance()
	if v <= 0 {
		return 0
	}
	return math.Sqrt(v)
}

func (s *RunningStats) Summary() Stats {
	return Stats{
		Count:  s.n,
		Mean:   s.Mean(),
		Min:    s.min,
		Max:    s.max,
		StdDev: s.StdDev(),
	}
}
