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

// Cells holds the nominal usable energy of single cells, in Wh.
type Cells struct {
	AAWh  float64 `json:"aa_wh"`
	AAAWh float64 `json:"aaa_wh"`
}

// DefaultCells are typical alkaline values.
var DefaultCells = Cells{
	AAWh:  2.5,
	AAAWh: 1.1,
}

// Equivalent is an energy expressed as a number of cells.
type Equivalent struct {
	AA  float64 `json:"aa"`
	AAA float64 `json:"aaa"`
}

// BatteryEquivalent converts energy in mWh into cell counts.
// A non positive cell energy gives a count of 0.
func BatteryEquivalent(energyMWh float64, cells Cells) Equivalent {
	return Equivalent{
		AA:  cellCount(energyMWh, cells.AAWh),
		AAA: cellCount(energyMWh, cells.AAAWh),
	}
}

func cellCount(energyMWh, cellWh float64) float64 {
	if cellWh <= 0 {
		return 0
	}
	return energyMWh / 1000 / cellWh
}
