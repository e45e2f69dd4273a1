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
	"time"

	"github.com/TheCacophonyProject/event-reporter/v3/eventclient"
)

const (
	summaryEventType   = "powerMonitorSummary"
	saturatedEventType = "powerMonitorSaturated"
)

var addEventFn = eventclient.AddEvent

// EventSink reports a summary event at most once per interval, and a single
// event the first time a total saturates.
type EventSink struct {
	interval      time.Duration
	lastReport    time.Time
	saturatedSent bool
}

func NewEventSink(interval time.Duration) *EventSink {
	return &EventSink{interval: interval}
}

func (s *EventSink) Publish(r Record) error {
	if r.Snapshot.Saturated && !s.saturatedSent {
		err := addEventFn(eventclient.Event{
			Timestamp: r.Time,
			Type:      saturatedEventType,
			Details: map[string]interface{}{
				"uptimeSeconds": int64(r.Snapshot.Uptime / time.Second),
			},
		})
		if err != nil {
			return err
		}
		s.saturatedSent = true
	}

	if !s.lastReport.IsZero() && r.Time.Sub(s.lastReport) < s.interval {
		return nil
	}
	log.Println("Reporting", summaryEventType)
	err := addEventFn(eventclient.Event{
		Timestamp: r.Time,
		Type:      summaryEventType,
		Details: map[string]interface{}{
			"chargeMAh":     MilliHours(r.Snapshot.ChargeUAs, 3),
			"energyMWh":     MilliHours(r.Snapshot.EnergyUWs, 3),
			"uptimeSeconds": int64(r.Snapshot.Uptime / time.Second),
			"currentMeanMA": r.Snapshot.Current.Mean,
			"currentMinMA":  r.Snapshot.Current.Min,
			"currentMaxMA":  r.Snapshot.Current.Max,
			"voltageMeanV":  r.Snapshot.Voltage.Mean,
			"aaEquivalent":  r.Equivalent.AA,
			"aaaEquivalent": r.Equivalent.AAA,
		},
	})
	if err != nil {
		return err
	}
	s.lastReport = r.Time
	return nil
}

func (s *EventSink) Close() error {
	return nil
}
