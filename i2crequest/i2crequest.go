/*
tc2-hat-powermon - I2C requests through the org.cacophony.i2c service
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

// Package i2crequest sends I2C transactions through the org.cacophony.i2c
// dbus service, which arbitrates the bus shared with the hat microcontrollers.
package i2crequest

import (
	"errors"
	"fmt"

	"github.com/godbus/dbus"
)

const (
	dbusName = "org.cacophony.i2c"
	dbusPath = "/org/cacophony/i2c"
)

// Tx writes write to the device at address and reads readLen bytes back.
// timeout is in milliseconds.
func Tx(address byte, write []byte, readLen, timeout int) ([]byte, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, err
	}
	obj := conn.Object(dbusName, dbusPath)

	var response []byte
	if err := obj.Call(dbusName+".Tx", 0, address, write, readLen, timeout).Store(&response); err != nil {
		return nil, err
	}

	return response, nil
}

// CheckAddress reports whether a device acknowledges at address.
func CheckAddress(address byte, timeout int) (bool, error) {
	_, err := Tx(address, []byte{0x00}, 1, timeout)
	if err == nil {
		return true, nil
	}
	var dbusErr dbus.Error
	if errors.As(err, &dbusErr) && dbusErr.Name == dbusName+".ErrorUsingI2CBus" {
		return false, nil
	}
	return false, err
}

// Conn is a device on the brokered bus. It satisfies ina219.Conn.
type Conn struct {
	Address byte
	// Timeout in milliseconds for the broker to get access to the bus.
	Timeout int
}

func (c Conn) Tx(w, r []byte) error {
	response, err := Tx(c.Address, w, len(r), c.Timeout)
	if err != nil {
		return fmt.Errorf("i2c tx to 0x%02X: %w", c.Address, err)
	}
	if len(response) != len(r) {
		return fmt.Errorf("i2c tx to 0x%02X: expected %d bytes, got %d", c.Address, len(r), len(response))
	}
	copy(r, response)
	return nil
}

func (c Conn) String() string {
	return fmt.Sprintf("%s@0x%02X", dbusName, c.Address)
}
