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

package powermon

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/TheCacophonyProject/tc2-hat-powermon/accumulator"
	"github.com/TheCacophonyProject/tc2-hat-powermon/internal/config"
	"github.com/TheCacophonyProject/tc2-hat-powermon/internal/publish"
	"github.com/TheCacophonyProject/tc2-hat-powermon/internal/termviz"
)

// Sensor yields a sample once a new conversion has completed.
type Sensor interface {
	Next() (accumulator.Sample, bool, error)
}

// monitor owns the accumulator. Only copies of its state leave the loop,
// through the snapshot store and the sinks.
type monitor struct {
	sensor Sensor
	acc    *accumulator.Accumulator
	sink   publish.Sink
	store  *snapshotStore

	cells        accumulator.Cells
	scales       termviz.Scales
	maxGap       time.Duration
	summaryEvery int

	last    time.Time
	samples int
	results map[accumulator.Result]uint64
}

func newMonitor(conf *config.Config, sensor Sensor, sink publish.Sink, store *snapshotStore) *monitor {
	return &monitor{
		sensor: sensor,
		acc:    newAccumulator(conf.Accumulator),
		sink:   sink,
		store:  store,
		cells: accumulator.Cells{
			AAWh:  conf.Cells.AAWh,
			AAAWh: conf.Cells.AAAWh,
		},
		scales: termviz.Scales{
			VMax:   conf.Display.MaxVolts,
			IMaxMA: conf.IMaxMA(),
			PMaxMW: conf.PMaxMW(),
		},
		maxGap:       conf.Accumulator.MaxGap,
		summaryEvery: conf.Loop.SummaryEvery,
		results:      map[accumulator.Result]uint64{},
	}
}

// start sets the time the first sample is measured from.
func (m *monitor) start(now time.Time) {
	m.last = now
}

// step runs one cycle. When no sample is ready the last timestamp is kept so
// the next sample covers the time in between.
func (m *monitor) step(now time.Time) {
	sample, ready, err := m.sensor.Next()
	if err != nil {
		log.Warn("Failed to read sensor: ", err)
		return
	}
	if !ready {
		return
	}

	elapsed := now.Sub(m.last)
	m.last = now
	if m.maxGap > 0 && elapsed > m.maxGap {
		log.Warnf("%s since the last sample, only counting %s", elapsed, m.maxGap)
		elapsed = m.maxGap
	}

	result := m.acc.Update(sample, elapsed)
	m.results[result]++
	if result == accumulator.Rejected {
		log.Warnf("Rejected out of range sample: %+v", sample)
	}
	log.Debug(strings.Join(termviz.CycleLines(sample, m.scales), "  "))

	record := m.record(now, sample)
	m.store.set(record)

	m.samples++
	if m.samples%m.summaryEvery != 0 {
		return
	}
	m.summary(record)
}

func (m *monitor) record(now time.Time, sample accumulator.Sample) publish.Record {
	snap := m.acc.Snapshot()
	return publish.Record{
		Time:       now,
		Sample:     sample,
		Snapshot:   snap,
		Equivalent: accumulator.BatteryEquivalent(snap.EnergyMWh, m.cells),
	}
}

func (m *monitor) summary(record publish.Record) {
	for _, line := range termviz.SummaryLines(record.Snapshot, record.Equivalent) {
		log.Info(line)
	}
	if err := m.sink.Publish(record); err != nil {
		log.Warn("Failed to publish summary: ", err)
	}
}

func (m *monitor) run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.start(time.Now())
	for {
		select {
		case <-ctx.Done():
			log.Infof("Stopping after %d samples (integrated %d, below cutoff %d, rejected %d)",
				m.samples, m.results[accumulator.Integrated], m.results[accumulator.BelowCutoff], m.results[accumulator.Rejected])
			if m.samples > 0 {
				m.summary(m.store.get())
			}
			return
		case <-ticker.C:
			m.step(time.Now())
		}
	}
}

func runMonitor(configDir string) error {
	conf, err := config.Load(configDir)
	if err != nil {
		return err
	}
	dev, params, release, err := openSensor(conf)
	if err != nil {
		return err
	}
	defer release()

	store := &snapshotStore{}
	if conf.DBus.Enable {
		log.Info("Starting dbus service")
		if err := startService(store, params); err != nil {
			return err
		}
	}

	sinks, err := buildSinks(conf)
	if err != nil {
		return err
	}
	defer func() {
		if err := sinks.Close(); err != nil {
			log.Warn("Failed to close sinks: ", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		err := config.WatchForChanges(ctx, configDir, conf,
			func(diff string) {
				log.Debug("Config diff:", diff)
				log.Info("Config changed. Exiting to allow systemctl to restart service.")
				cancel()
			},
			func(err error) {
				log.Error("error reloading config:", err)
			})
		if err != nil {
			log.Error("Failed to watch config: ", err)
		}
	}()

	log.Infof("Monitoring every %s, cutoff %dmA", conf.Loop.Interval, conf.Accumulator.CutoffMA)
	newMonitor(conf, dev, sinks, store).run(ctx, conf.Loop.Interval)
	return nil
}
