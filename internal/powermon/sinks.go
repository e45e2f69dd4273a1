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
	"github.com/TheCacophonyProject/tc2-hat-powermon/internal/config"
	"github.com/TheCacophonyProject/tc2-hat-powermon/internal/publish"
)

// buildSinks opens every sink enabled in conf. A sink that fails to open
// closes the ones already opened.
func buildSinks(conf *config.Config) (publish.Multi, error) {
	var sinks publish.Multi
	fail := func(err error) (publish.Multi, error) {
		if closeErr := sinks.Close(); closeErr != nil {
			log.Warn("Failed to close sinks: ", closeErr)
		}
		return nil, err
	}

	if conf.CSV.File != "" {
		log.Infof("Writing summaries to %s", conf.CSV.File)
		s, err := publish.NewCSVSink(conf.CSV.File, conf.CSV.MaxLines)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, s)
	}
	if conf.MQTT.Broker != "" {
		log.Infof("Publishing summaries to %s on %s", conf.MQTT.Topic, conf.MQTT.Broker)
		s, err := publish.NewMQTTSink(publish.MQTTConfig{
			Broker:   conf.MQTT.Broker,
			Topic:    conf.MQTT.Topic,
			ClientID: conf.MQTT.ClientID,
			Username: conf.MQTT.Username,
			Password: conf.MQTT.Password,
			Retain:   conf.MQTT.Retain,
		})
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, s)
	}
	if conf.Serial.Port != "" {
		log.Infof("Writing summaries to %s at %d baud", conf.Serial.Port, conf.Serial.Baud)
		s, err := publish.NewSerialSink(conf.Serial.Port, conf.Serial.Baud)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, s)
	}
	if conf.Events.Enable {
		sinks = append(sinks, publish.NewEventSink(conf.Events.Interval))
	}
	return sinks, nil
}
