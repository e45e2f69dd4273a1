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

// Package ina219 is a driver for the TI INA219 current and power monitor.
//
// Datasheet: https://www.ti.com/lit/gpn/ina219
package ina219

import (
	"errors"
	"fmt"
	"math"

	"github.com/TheCacophonyProject/tc2-hat-powermon/accumulator"
	"github.com/TheCacophonyProject/tc2-hat-powermon/calibration"
)

// Address is the default I2C address (A0 and A1 tied to GND).
const Address = 0x40

type Register uint8

const (
	configReg Register = iota
	shuntVoltageReg
	busVoltageReg
	powerReg
	currentReg
	calibrationReg
)

const (
	resetBit = 1 << 15

	// Bus voltage register flags.
	conversionReadyFlag = 1 << 1
	mathOverflowFlag    = 1 << 0

	busVoltageLSBmV   = 4
	shuntVoltageLSBuV = 10

	// Bit 0 of the calibration register is not writable.
	calibrationMask = 0xFFFE
)

var (
	ErrOverflow              = errors.New("ina219 math overflow, current or power is out of range")
	ErrNotDefaultAfterReset  = errors.New("ina219 configuration was not the default after reset")
	ErrCalibrationMismatch   = errors.New("ina219 calibration register did not read back as written")
	ErrConfigurationMismatch = errors.New("ina219 configuration register did not read back as written")
)

// Conn is a connection to a device on an I2C bus. *i2c.Dev from periph satisfies it.
type Conn interface {
	Tx(w, r []byte) error
}

// Device is an INA219 on an I2C connection.
type Device struct {
	conn   Conn
	params calibration.Params
	config Configuration
}

// New returns a Device that will use the given calibration. Call Init before reading.
func New(conn Conn, params calibration.Params) *Device {
	return &Device{
		conn:   conn,
		params: params,
		config: DefaultConfiguration,
	}
}

func (d *Device) Calibration() calibration.Params {
	return d.params
}

func (d *Device) Configuration() Configuration {
	return d.config
}

// Init resets the device, programs the calibration and then the configuration.
func (d *Device) Init(config Configuration) error {
	if err := d.writeRegister(configReg, resetBit); err != nil {
		return fmt.Errorf("resetting ina219: %w", err)
	}
	val, err := d.readRegister(configReg)
	if err != nil {
		return fmt.Errorf("reading ina219 configuration: %w", err)
	}
	if val != DefaultConfiguration.Value() {
		return fmt.Errorf("%w: read 0x%04X", ErrNotDefaultAfterReset, val)
	}

	if err := d.writeRegister(calibrationReg, d.params.Register); err != nil {
		return fmt.Errorf("writing ina219 calibration: %w", err)
	}
	val, err = d.readRegister(calibrationReg)
	if err != nil {
		return fmt.Errorf("reading ina219 calibration: %w", err)
	}
	if val != d.params.Register&calibrationMask {
		return fmt.Errorf("%w: wrote 0x%04X, read 0x%04X", ErrCalibrationMismatch, d.params.Register, val)
	}

	if err := d.SetConfiguration(config); err != nil {
		return err
	}
	return nil
}

// SetConfiguration writes and verifies the configuration register.
func (d *Device) SetConfiguration(config Configuration) error {
	if err := d.writeRegister(configReg, config.Value()); err != nil {
		return fmt.Errorf("writing ina219 configuration: %w", err)
	}
	val, err := d.readRegister(configReg)
	if err != nil {
		return fmt.Errorf("reading ina219 configuration: %w", err)
	}
	if val != config.Value() {
		return fmt.Errorf("%w: wrote 0x%04X, read 0x%04X", ErrConfigurationMismatch, config.Value(), val)
	}
	d.config = config
	return nil
}

// Next returns a new measurement. It returns false when no new conversion
// has completed since the last one was read.
func (d *Device) Next() (accumulator.Sample, bool, error) {
	bus, err := d.readRegister(busVoltageReg)
	if err != nil {
		return accumulator.Sample{}, false, err
	}
	if bus&conversionReadyFlag == 0 {
		return accumulator.Sample{}, false, nil
	}

	current, err := d.readRegister(currentReg)
	if err != nil {
		return accumulator.Sample{}, false, err
	}
	// Reading the power register clears the conversion ready flag.
	power, err := d.readRegister(powerReg)
	if err != nil {
		return accumulator.Sample{}, false, err
	}
	if bus&mathOverflowFlag != 0 {
		return accumulator.Sample{}, false, ErrOverflow
	}

	return accumulator.Sample{
		BusVoltageMV: int64(bus>>3) * busVoltageLSBmV,
		CurrentUA:    int64(math.Round(float64(int16(current)) * d.params.CurrentLSBuA)),
		PowerUW:      int64(math.Round(float64(power) * d.params.PowerLSBuW)),
	}, true, nil
}

// ShuntVoltage returns the voltage across the shunt in µV.
func (d *Device) ShuntVoltage() (int64, error) {
	val, err := d.readRegister(shuntVoltageReg)
	if err != nil {
		return 0, err
	}
	return int64(int16(val)) * shuntVoltageLSBuV, nil
}

func (d *Device) readRegister(reg Register) (uint16, error) {
	read := make([]byte, 2)
	if err := d.conn.Tx([]byte{byte(reg)}, read); err != nil {
		return 0, err
	}
	return uint16(read[0])<<8 | uint16(read[1]), nil
}

func (d *Device) writeRegister(reg Register, val uint16) error {
	return d.conn.Tx([]byte{byte(reg), byte(val >> 8), byte(val)}, nil)
}
