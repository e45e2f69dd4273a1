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
	"encoding/json"
	"errors"

	"github.com/TheCacophonyProject/tc2-hat-powermon/calibration"
	"github.com/TheCacophonyProject/tc2-hat-powermon/internal/publish"
	"github.com/godbus/dbus"
	"github.com/godbus/dbus/introspect"
)

const (
	dbusName = "org.cacophony.PowerMonitor"
	dbusPath = "/org/cacophony/PowerMonitor"
)

type service struct {
	store  *snapshotStore
	params calibration.Params
}

func startService(store *snapshotStore, params calibration.Params) error {
	conn, err := dbus.SystemBus()
	if err != nil {
		return err
	}
	reply, err := conn.RequestName(dbusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return err
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return errors.New("name already taken")
	}

	s := &service{
		store:  store,
		params: params,
	}
	conn.Export(s, dbusPath, dbusName)
	conn.Export(genIntrospectable(s), dbusPath, "org.freedesktop.DBus.Introspectable")
	return nil
}

// Snapshot returns the latest totals and statistics as JSON.
func (s service) Snapshot() (string, *dbus.Error) {
	data, err := json.Marshal(s.store.get())
	if err != nil {
		return "", dbusErr("Snapshot", err)
	}
	return string(data), nil
}

// Calibration returns the values programmed into the sensor as JSON.
func (s service) Calibration() (string, *dbus.Error) {
	data, err := json.Marshal(s.params)
	if err != nil {
		return "", dbusErr("Calibration", err)
	}
	return string(data), nil
}

func getSnapshot() (publish.Record, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return publish.Record{}, err
	}
	obj := conn.Object(dbusName, dbusPath)

	var data string
	if err := obj.Call(dbusName+".Snapshot", 0).Store(&data); err != nil {
		return publish.Record{}, err
	}
	var record publish.Record
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return publish.Record{}, err
	}
	return record, nil
}

func genIntrospectable(v interface{}) introspect.Introspectable {
	node := &introspect.Node{
		Interfaces: []introspect.Interface{{
			Name:    dbusName,
			Methods: introspect.Methods(v),
		}},
	}
	return introspect.NewIntrospectable(node)
}

// dbusErr names the error after the method that failed, e.g. org.cacophony.PowerMonitor.Snapshot.
func dbusErr(method string, err error) *dbus.Error {
	if err == nil {
		return nil
	}
	return &dbus.Error{
		Name: dbusName + "." + method,
		Body: []interface{}{err.Error()},
	}
}
