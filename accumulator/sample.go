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

// Sample is one reading from the sensor, in fixed-point millivolts, microamps and microwatts.
type Sample struct {
	BusVoltageMV int64 `json:"bus_voltage_mv"`
	CurrentUA    int64 `json:"current_ua"`
	PowerUW      int64 `json:"power_uw"`
}

func (s Sample) VoltageV() float64 {
	return float64(s.BusVoltageMV) / 1000
}

func (s Sample) CurrentMA() float64 {
	return float64(s.CurrentUA) / 1000
}

func (s Sample) PowerMW() float64 {
	return float64(s.PowerUW) / 1000
}
