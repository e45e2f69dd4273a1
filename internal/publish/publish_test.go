package publish

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/TheCacophonyProject/event-reporter/v3/eventclient"
	"github.com/TheCacophonyProject/tc2-hat-powermon/accumulator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord(t time.Time) Record {
	a := accumulator.New(1)
	a.Update(accumulator.Sample{BusVoltageMV: 5000, CurrentUA: 1_000_000, PowerUW: 5_000_000}, time.Hour)
	snap := a.Snapshot()
	return Record{
		Time:       t,
		Sample:     accumulator.Sample{BusVoltageMV: 5000, CurrentUA: 1_000_000, PowerUW: 5_000_000},
		Snapshot:   snap,
		Equivalent: accumulator.BatteryEquivalent(snap.EnergyMWh, accumulator.DefaultCells),
	}
}

func TestMilliHours(t *testing.T) {
	assert.Equal(t, "1000.000", MilliHours(3_600_000_000, 3))
	assert.Equal(t, "0.000", MilliHours(0, 3))
	assert.Equal(t, "0.0003", MilliHours(1000, 4))
	assert.Equal(t, "-1.500", MilliHours(-5_400_000, 3))
}

func TestCSVSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "powermon.csv")
	sink, err := NewCSVSink(path, 0)
	require.NoError(t, err)

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, sink.Publish(testRecord(now)))
	require.NoError(t, sink.Publish(testRecord(now.Add(time.Minute))))
	require.NoError(t, sink.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "2024-05-01 12:00:00, 1000.000, 5000.000, 3600, 1000.000,"))
	assert.True(t, strings.HasSuffix(lines[1], "2.0000, 4.5455"))
}

func TestCSVSinkTrimsOnOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "powermon.csv")
	var content strings.Builder
	for i := range 10 {
		fmt.Fprintf(&content, "line %d\n", i)
	}
	require.NoError(t, os.WriteFile(path, []byte(content.String()), 0644))

	_, err := NewCSVSink(path, 3)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "line 7\nline 8\nline 9\n", string(data))
}

func TestMQTTPayload(t *testing.T) {
	payload, err := mqttPayload(testRecord(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)))
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, "1000.000", decoded["charge_mah_exact"])
	assert.Equal(t, "5000.000", decoded["energy_mwh_exact"])
	assert.Equal(t, 3600.0, decoded["uptime_s"])
	assert.Contains(t, decoded, "snapshot")
	assert.Contains(t, decoded, "battery_equivalent")
}

func TestBrokerURL(t *testing.T) {
	assert.Equal(t, "tcp://broker:1883", brokerURL("broker"))
	assert.Equal(t, "tcp://broker:8883", brokerURL("broker:8883"))
	assert.Equal(t, "ssl://broker:8883", brokerURL("ssl://broker:8883"))
}

func TestEventSinkRateLimits(t *testing.T) {
	var events []eventclient.Event
	addEventFn = func(e eventclient.Event) error {
		events = append(events, e)
		return nil
	}
	defer func() { addEventFn = eventclient.AddEvent }()

	sink := NewEventSink(time.Hour)
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := range 10 {
		require.NoError(t, sink.Publish(testRecord(start.Add(time.Duration(i)*10*time.Minute))))
	}
	require.Len(t, events, 2)
	assert.Equal(t, summaryEventType, events[0].Type)
	assert.Equal(t, "1000.000", events[0].Details["chargeMAh"])
	assert.Equal(t, start.Add(time.Hour), events[1].Timestamp)
}

func TestEventSinkSaturatedOnce(t *testing.T) {
	var types []string
	addEventFn = func(e eventclient.Event) error {
		types = append(types, e.Type)
		return nil
	}
	defer func() { addEventFn = eventclient.AddEvent }()

	sink := NewEventSink(time.Hour)
	r := testRecord(time.Now())
	r.Snapshot.Saturated = true
	require.NoError(t, sink.Publish(r))
	r.Time = r.Time.Add(time.Minute)
	require.NoError(t, sink.Publish(r))
	assert.Equal(t, []string{saturatedEventType, summaryEventType}, types)
}

type recordingSink struct {
	records []Record
	err     error
	closed  bool
}

func (s *recordingSink) Publish(r Record) error {
	s.records = append(s.records, r)
	return s.err
}

func (s *recordingSink) Close() error {
	s.closed = true
	return nil
}

func TestMultiKeepsPublishingAfterError(t *testing.T) {
	failing := &recordingSink{err: errors.New("broker down")}
	ok := &recordingSink{}
	m := Multi{failing, ok}

	err := m.Publish(testRecord(time.Now()))
	assert.ErrorContains(t, err, "broker down")
	assert.Len(t, ok.records, 1)

	require.NoError(t, m.Close())
	assert.True(t, failing.closed)
	assert.True(t, ok.closed)
}
