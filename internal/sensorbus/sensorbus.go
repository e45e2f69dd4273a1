/*
tc2-hat-powermon - Opening the I2C bus to the power sensor
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

// Package sensorbus opens the I2C connection to the power sensor, either
// directly through periph or through the org.cacophony.i2c dbus broker.
package sensorbus

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/TheCacophonyProject/tc2-hat-powermon/i2crequest"
	"github.com/TheCacophonyProject/tc2-hat-powermon/ina219"
	"github.com/TheCacophonyProject/tc2-hat-powermon/internal/config"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

const (
	txRetries     = 2
	retryInterval = 20 * time.Millisecond
	pollInterval  = 2 * time.Millisecond
)

var (
	ErrBusBusy  = errors.New("timed out waiting for the i2c busy pin to go low")
	ErrNoDevice = errors.New("no device responded at the sensor address")
)

var (
	sleepFn        = time.Sleep
	checkAddressFn = i2crequest.CheckAddress
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Open returns a connection to the sensor described by conf and a closer
// releasing the bus.
func Open(conf config.Sensor) (ina219.Conn, io.Closer, error) {
	switch conf.Transport {
	case config.TransportDBus:
		timeout := int(conf.BusyTimeout / time.Millisecond)
		found, err := checkAddressFn(byte(conf.Address), timeout)
		if err != nil {
			return nil, nil, fmt.Errorf("checking 0x%02X through the i2c service: %w", conf.Address, err)
		}
		if !found {
			return nil, nil, fmt.Errorf("%w: 0x%02X", ErrNoDevice, conf.Address)
		}
		return i2crequest.Conn{Address: byte(conf.Address), Timeout: timeout}, nopCloser{}, nil
	case config.TransportDirect:
		return openDirect(conf)
	default:
		return nil, nil, fmt.Errorf("unknown sensor transport '%s'", conf.Transport)
	}
}

func openDirect(conf config.Sensor) (ina219.Conn, io.Closer, error) {
	if _, err := host.Init(); err != nil {
		return nil, nil, err
	}
	bus, err := i2creg.Open(conf.Bus)
	if err != nil {
		return nil, nil, err
	}
	dev := &i2c.Dev{Bus: bus, Addr: uint16(conf.Address)}
	if conf.BusyPin == "" {
		return dev, bus, nil
	}

	pin := gpioreg.ByName(conf.BusyPin)
	if pin == nil {
		bus.Close()
		return nil, nil, fmt.Errorf("GPIO pin %s not found", conf.BusyPin)
	}
	if err := pin.In(gpio.Float, gpio.NoEdge); err != nil {
		bus.Close()
		return nil, nil, err
	}
	return NewBusyPinConn(dev, pin, conf.BusyTimeout), bus, nil
}

// BusyPinConn shares the bus with the hat microcontrollers. A transaction waits
// for the busy pin to be low, drives it high for its duration, then floats it.
type BusyPinConn struct {
	mu      sync.Mutex
	conn    ina219.Conn
	pin     gpio.PinIO
	timeout time.Duration
}

func NewBusyPinConn(conn ina219.Conn, pin gpio.PinIO, timeout time.Duration) *BusyPinConn {
	return &BusyPinConn{
		conn:    conn,
		pin:     pin,
		timeout: timeout,
	}
}

func (b *BusyPinConn) Tx(w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.claim(); err != nil {
		return err
	}
	defer b.pin.In(gpio.Float, gpio.NoEdge)

	var err error
	for i := 0; i <= txRetries; i++ {
		if err = b.conn.Tx(w, r); err == nil {
			return nil
		}
		if i < txRetries {
			sleepFn(retryInterval)
		}
	}
	return err
}

func (b *BusyPinConn) claim() error {
	start := time.Now()
	for {
		if b.pin.Read() == gpio.Low {
			return b.pin.Out(gpio.High)
		}
		if time.Since(start) > b.timeout {
			return ErrBusBusy
		}
		sleepFn(pollInterval)
	}
}
