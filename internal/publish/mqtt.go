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
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	mqttConnectTimeout = 10 * time.Second
	mqttPublishTimeout = 5 * time.Second
	mqttQoS            = 0
)

type MQTTConfig struct {
	Broker   string
	Topic    string
	ClientID string
	Username string
	Password string
	Retain   bool
}

// MQTTSink publishes a JSON summary to <topic>/summary.
type MQTTSink struct {
	client mqtt.Client
	topic  string
	retain bool
}

func NewMQTTSink(conf MQTTConfig) (*MQTTSink, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL(conf.Broker))
	opts.SetClientID(conf.ClientID)
	opts.SetUsername(conf.Username)
	opts.SetPassword(conf.Password)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Warnf("MQTT connection lost: %v", err)
	})
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Infof("Connected to MQTT broker at %s", conf.Broker)
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return nil, fmt.Errorf("timed out connecting to MQTT broker %s", conf.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connecting to MQTT broker %s: %w", conf.Broker, err)
	}

	return &MQTTSink{
		client: client,
		topic:  strings.TrimSuffix(conf.Topic, "/") + "/summary",
		retain: conf.Retain,
	}, nil
}

func (s *MQTTSink) Publish(r Record) error {
	payload, err := mqttPayload(r)
	if err != nil {
		return err
	}
	token := s.client.Publish(s.topic, mqttQoS, s.retain, payload)
	if !token.WaitTimeout(mqttPublishTimeout) {
		return fmt.Errorf("timed out publishing to %s", s.topic)
	}
	return token.Error()
}

func (s *MQTTSink) Close() error {
	if s.client.IsConnected() {
		s.client.Disconnect(250)
	}
	return nil
}

type mqttSummary struct {
	Record
	ChargeMAh string `json:"charge_mah_exact"`
	EnergyMWh string `json:"energy_mwh_exact"`
	UptimeS   int64  `json:"uptime_s"`
}

func mqttPayload(r Record) ([]byte, error) {
	return json.Marshal(mqttSummary{
		Record:    r,
		ChargeMAh: MilliHours(r.Snapshot.ChargeUAs, 3),
		EnergyMWh: MilliHours(r.Snapshot.EnergyUWs, 3),
		UptimeS:   int64(r.Snapshot.Uptime / time.Second),
	})
}

// brokerURL accepts a bare host, host:port or a full URL.
func brokerURL(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	if !strings.Contains(broker, ":") {
		broker += ":1883"
	}
	return "tcp://" + broker
}
