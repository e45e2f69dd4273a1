/*
tc2-hat-powermon - Publishing power summaries
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

// Package publish sends summaries of the power monitor to files, brokers,
// serial consoles and the event reporter.
package publish

import (
	"errors"
	"time"

	"github.com/TheCacophonyProject/go-utils/logging"
	"github.com/TheCacophonyProject/tc2-hat-powermon/accumulator"
	"github.com/shopspring/decimal"
)

var log = logging.NewLogger("info")

// SetLogger sets the logger used by the sinks.
func SetLogger(l *logging.Logger) {
	log = l
}

// Record is what is published at each summary.
type Record struct {
	Time       time.Time              `json:"time"`
	Sample     accumulator.Sample     `json:"sample"`
	Snapshot   accumulator.Snapshot   `json:"snapshot"`
	Equivalent accumulator.Equivalent `json:"battery_equivalent"`
}

type Sink interface {
	Publish(Record) error
	Close() error
}

// Multi publishes to every sink, an error from one sink does not stop the others.
type Multi []Sink

func (m Multi) Publish(r Record) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	microsPerMilli = decimal.NewFromInt(1000)
	secondsPerHour = decimal.NewFromInt(3600)
)

// MilliHours converts a fixed-point µA·s or µW·s total to mAh or mWh,
// rounded to places decimals without going through a float.
func MilliHours(microSeconds int64, places int32) string {
	return decimal.NewFromInt(microSeconds).
		Div(microsPerMilli).
		Div(secondsPerHour).
		StringFixed(places)
}
