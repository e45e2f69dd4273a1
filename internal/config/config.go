/*
tc2-hat-powermon - Power monitor configuration
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

// Package config loads the [powermon] section of the device config file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	goconfig "github.com/TheCacophonyProject/go-config"
	"github.com/TheCacophonyProject/tc2-hat-powermon/calibration"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// Section is the key of the power monitor settings in the config file.
	Section = "powermon"
	// EnvFileName is an optional file of environment overrides in the config folder.
	EnvFileName = "powermon.env"

	TransportDirect = "direct"
	TransportDBus   = "dbus"
)

var ErrInvalid = errors.New("invalid power monitor config")

type Config struct {
	Sensor      Sensor      `mapstructure:"sensor"`
	Calibration Calibration `mapstructure:"calibration"`
	Display     Display     `mapstructure:"display"`
	Accumulator Accumulator `mapstructure:"accumulator"`
	Cells       Cells       `mapstructure:"cells"`
	Loop        Loop        `mapstructure:"loop"`
	CSV         CSV         `mapstructure:"csv"`
	MQTT        MQTT        `mapstructure:"mqtt"`
	Serial      Serial      `mapstructure:"serial"`
	Events      Events      `mapstructure:"events"`
	DBus        DBus        `mapstructure:"dbus"`
}

type Sensor struct {
	Transport string `mapstructure:"transport"`
	Bus       string `mapstructure:"bus"`
	Address   int    `mapstructure:"address"`
	// BusyPin is the GPIO used to claim the shared bus, empty to not use one.
	BusyPin     string        `mapstructure:"busy-pin"`
	BusyTimeout time.Duration `mapstructure:"busy-timeout"`
}

type Calibration struct {
	ShuntOhms       float64 `mapstructure:"shunt-ohms"`
	MaxExpectedAmps float64 `mapstructure:"max-expected-amps"`
	Rounding        string  `mapstructure:"rounding"`
}

type Display struct {
	MaxVolts float64 `mapstructure:"max-volts"`
}

type Accumulator struct {
	CutoffMA        uint32        `mapstructure:"cutoff-ma"`
	MaxAbsCurrentMA int64         `mapstructure:"max-abs-current-ma"`
	MaxAbsPowerMW   int64         `mapstructure:"max-abs-power-mw"`
	MaxAbsVoltageMV int64         `mapstructure:"max-abs-voltage-mv"`
	MaxGap          time.Duration `mapstructure:"max-gap"`
}

type Cells struct {
	AAWh  float64 `mapstructure:"aa-wh"`
	AAAWh float64 `mapstructure:"aaa-wh"`
}

type Loop struct {
	Interval     time.Duration `mapstructure:"interval"`
	SummaryEvery int           `mapstructure:"summary-every"`
}

type CSV struct {
	File     string `mapstructure:"file"`
	MaxLines int    `mapstructure:"max-lines"`
}

type MQTT struct {
	Broker   string `mapstructure:"broker"`
	Topic    string `mapstructure:"topic"`
	ClientID string `mapstructure:"client-id"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Retain   bool   `mapstructure:"retain"`
}

type Serial struct {
	Port string `mapstructure:"port"`
	Baud int    `mapstructure:"baud"`
}

type Events struct {
	Enable   bool          `mapstructure:"enable"`
	Interval time.Duration `mapstructure:"interval"`
}

type DBus struct {
	Enable bool `mapstructure:"enable"`
}

var defaults = map[string]interface{}{
	"sensor.transport":               TransportDirect,
	"sensor.bus":                     "",
	"sensor.address":                 0x40,
	"sensor.busy-pin":                "",
	"sensor.busy-timeout":            time.Second,
	"calibration.shunt-ohms":         0.1,
	"calibration.max-expected-amps":  2.0,
	"calibration.rounding":           "down",
	"display.max-volts":              5.5,
	"accumulator.cutoff-ma":          1,
	"accumulator.max-abs-current-ma": 100_000,
	"accumulator.max-abs-power-mw":   3_200_000,
	"accumulator.max-abs-voltage-mv": 32_000,
	"accumulator.max-gap":            5 * time.Second,
	"cells.aa-wh":                    2.5,
	"cells.aaa-wh":                   1.1,
	"loop.interval":                  500 * time.Millisecond,
	"loop.summary-every":             4,
	"csv.file":                       "/var/log/powermon.csv",
	"csv.max-lines":                  2000,
	"mqtt.broker":                    "",
	"mqtt.topic":                     "tc2/powermon",
	"mqtt.client-id":                 "tc2-hat-powermon",
	"mqtt.username":                  "",
	"mqtt.password":                  "",
	"mqtt.retain":                    true,
	"serial.port":                    "",
	"serial.baud":                    115200,
	"events.enable":                  true,
	"events.interval":                2 * time.Hour,
	"dbus.enable":                    true,
}

// Default returns the config used when the file has no [powermon] section.
func Default() *Config {
	conf, err := load(viper.New())
	if err != nil {
		panic(err)
	}
	return conf
}

// FilePath returns the path of the config file in configDir.
func FilePath(configDir string) string {
	if configDir == "" {
		configDir = goconfig.DefaultConfigDir
	}
	return filepath.Join(configDir, goconfig.ConfigFileName)
}

// Load reads the config from configDir. A missing config file is not an error.
// Environment variables such as POWERMON_CALIBRATION_SHUNT_OHMS override the file,
// they can also be set in powermon.env in configDir.
func Load(configDir string) (*Config, error) {
	path := FilePath(configDir)
	envFile := filepath.Join(filepath.Dir(path), EnvFileName)
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading %s: %w", envFile, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	conf, err := load(v)
	if err != nil {
		return nil, err
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

func load(v *viper.Viper) (*Config, error) {
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for key, val := range defaults {
		v.SetDefault(Section+"."+key, val)
	}

	var root struct {
		Powermon Config `mapstructure:"powermon"`
	}
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("parsing %s config: %w", Section, err)
	}
	return &root.Powermon, nil
}

// Validate checks the values that can not be corrected at runtime.
func (c *Config) Validate() error {
	var problems []string
	switch c.Sensor.Transport {
	case TransportDirect, TransportDBus:
	default:
		problems = append(problems, fmt.Sprintf("unknown sensor transport '%s'", c.Sensor.Transport))
	}
	if c.Sensor.Address < 0x03 || c.Sensor.Address > 0x77 {
		problems = append(problems, fmt.Sprintf("sensor address 0x%X is not a 7 bit I2C address", c.Sensor.Address))
	}
	if c.Calibration.ShuntOhms <= 0 {
		problems = append(problems, "calibration shunt-ohms must be positive")
	}
	if c.Calibration.MaxExpectedAmps <= 0 {
		problems = append(problems, "calibration max-expected-amps must be positive")
	}
	if _, err := calibration.ParseRounding(c.Calibration.Rounding); err != nil {
		problems = append(problems, err.Error())
	}
	if c.Display.MaxVolts <= 0 {
		problems = append(problems, "display max-volts must be positive")
	}
	if c.Loop.Interval <= 0 {
		problems = append(problems, "loop interval must be positive")
	}
	if c.Loop.SummaryEvery < 1 {
		problems = append(problems, "loop summary-every must be at least 1")
	}
	if c.Accumulator.MaxAbsCurrentMA < 0 || c.Accumulator.MaxAbsPowerMW < 0 || c.Accumulator.MaxAbsVoltageMV < 0 {
		problems = append(problems, "accumulator limits can not be negative")
	}
	if c.Accumulator.MaxGap < 0 {
		problems = append(problems, "accumulator max-gap can not be negative")
	}
	if c.Serial.Port != "" && c.Serial.Baud <= 0 {
		problems = append(problems, "serial baud must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, ", "))
	}
	return nil
}

// IMaxMA is the full scale current for display, from the expected maximum.
func (c *Config) IMaxMA() float64 {
	return c.Calibration.MaxExpectedAmps * 1000
}

// PMaxMW is the approximate full scale power for display.
func (c *Config) PMaxMW() float64 {
	return c.Display.MaxVolts * c.IMaxMA()
}
