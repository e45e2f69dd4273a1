/*
INA219 - Reading current and power from the TI INA219
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

package ina219

import "fmt"

type BusRange uint8

const (
	BusRange16V BusRange = iota
	BusRange32V
)

// Gain is the shunt voltage PGA setting, named by its full scale range.
type Gain uint8

const (
	Gain40mV Gain = iota
	Gain80mV
	Gain160mV
	Gain320mV
)

// ADC resolution and averaging settings for the bus and shunt ADCs.
type ADC uint8

const (
	ADC9Bit  ADC = 0x0
	ADC10Bit ADC = 0x1
	ADC11Bit ADC = 0x2
	ADC12Bit ADC = 0x3

	ADC2Samples   ADC = 0x9
	ADC4Samples   ADC = 0xA
	ADC8Samples   ADC = 0xB
	ADC16Samples  ADC = 0xC
	ADC32Samples  ADC = 0xD
	ADC64Samples  ADC = 0xE
	ADC128Samples ADC = 0xF
)

type Mode uint8

const (
	ModePowerDown Mode = iota
	ModeShuntTriggered
	ModeBusTriggered
	ModeShuntBusTriggered
	ModeADCOff
	ModeShuntContinuous
	ModeBusContinuous
	ModeShuntBusContinuous
)

// Configuration is the content of the configuration register.
type Configuration struct {
	BusRange BusRange
	Gain     Gain
	BusADC   ADC
	ShuntADC ADC
	Mode     Mode
}

// DefaultConfiguration is the power on state: 32V, 320mV, 12 bit, continuous.
var DefaultConfiguration = Configuration{
	BusRange: BusRange32V,
	Gain:     Gain320mV,
	BusADC:   ADC12Bit,
	ShuntADC: ADC12Bit,
	Mode:     ModeShuntBusContinuous,
}

func (c Configuration) Value() uint16 {
	return uint16(c.BusRange&0x1)<<13 |
		uint16(c.Gain&0x3)<<11 |
		uint16(c.BusADC&0xF)<<7 |
		uint16(c.ShuntADC&0xF)<<3 |
		uint16(c.Mode&0x7)
}

// ShuntFullScaleMV returns the shunt voltage range for the gain.
func (c Configuration) ShuntFullScaleMV() int {
	return 40 << c.Gain
}

func (c Configuration) String() string {
	busV := 16
	if c.BusRange == BusRange32V {
		busV = 32
	}
	return fmt.Sprintf("bus %dV, shunt %dmV, bus adc 0x%X, shunt adc 0x%X, mode %d (0x%04X)",
		busV, c.ShuntFullScaleMV(), c.BusADC, c.ShuntADC, c.Mode, c.Value())
}
