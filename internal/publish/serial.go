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

package publish

import (
	"io"
	"strings"
	"time"

	"github.com/TheCacophonyProject/tc2-hat-powermon/internal/termviz"
	"github.com/tarm/serial"
)

// SerialSink writes the summary lines to a serial console.
type SerialSink struct {
	w io.WriteCloser
}

func NewSerialSink(port string, baud int) (*SerialSink, error) {
	p, err := serial.OpenPort(&serial.Config{
		Name:        port,
		Baud:        baud,
		ReadTimeout: time.Second,
	})
	if err != nil {
		return nil, err
	}
	return &SerialSink{w: p}, nil
}

func (s *SerialSink) Publish(r Record) error {
	lines := termviz.SummaryLines(r.Snapshot, r.Equivalent)
	_, err := io.WriteString(s.w, strings.Join(lines, "\r\n")+"\r\n")
	return err
}

func (s *SerialSink) Close() error {
	return s.w.Close()
}
