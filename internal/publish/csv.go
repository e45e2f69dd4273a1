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
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const (
	csvTimeFormat = "2006-01-02 15:04:05"
	trimInterval  = 24 * time.Hour
)

// CSVSink appends one line per summary to a file, keeping the last maxLines lines.
//
// Columns: time, charge mAh, energy mWh, uptime seconds, current mean, min, max, stddev (mA),
// voltage mean (V), power mean (mW), AA equivalent, AAA equivalent.
type CSVSink struct {
	path     string
	maxLines int
	lastTrim time.Time
}

func NewCSVSink(path string, maxLines int) (*CSVSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	s := &CSVSink{path: path, maxLines: maxLines}
	if err := s.trim(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *CSVSink) Publish(r Record) error {
	if time.Since(s.lastTrim) > trimInterval {
		if err := s.trim(); err != nil {
			return err
		}
	}

	file, err := os.OpenFile(s.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		return err
	}
	if _, err := file.WriteString(csvLine(r) + "\n"); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func (s *CSVSink) Close() error {
	return nil
}

func (s *CSVSink) trim() error {
	s.lastTrim = time.Now()
	if s.maxLines <= 0 {
		return nil
	}
	return keepLastLines(s.path, s.maxLines)
}

func csvLine(r Record) string {
	snap := r.Snapshot
	return fmt.Sprintf("%s, %s, %s, %d, %.3f, %.3f, %.3f, %.3f, %.3f, %.3f, %.4f, %.4f",
		r.Time.Format(csvTimeFormat),
		MilliHours(snap.ChargeUAs, 3),
		MilliHours(snap.EnergyUWs, 3),
		int64(snap.Uptime/time.Second),
		snap.Current.Mean, snap.Current.Min, snap.Current.Max, snap.Current.StdDev,
		snap.Voltage.Mean,
		snap.Power.Mean,
		r.Equivalent.AA, r.Equivalent.AAA,
	)
}

// keepLastLines keeps the last `maxLines` lines of the specified file.
func keepLastLines(filePath string, maxLines int) error {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return nil
	}
	tmpFile := filepath.Join(os.TempDir(), filepath.Base(filePath)+".tmp")
	err := os.Remove(tmpFile)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	commands := []string{"sh", "-c", fmt.Sprintf("tail -n %d %s > %s", maxLines, filePath, tmpFile)}
	cmd := exec.Command(commands[0], commands[1:]...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("err running '%s', %v, %v", strings.Join(commands, " "), string(out), err)
	}
	return moveFile(tmpFile, filePath)
}

// moveFile renames, falling back to a copy when the temp dir is on another filesystem.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.WriteFile(dst, data, 0644); err != nil {
		return err
	}
	return os.Remove(src)
}
