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
	"fmt"
	"os"
	"time"

	goconfig "github.com/TheCacophonyProject/go-config"
	"github.com/TheCacophonyProject/go-utils/logging"
	"github.com/TheCacophonyProject/tc2-hat-powermon/accumulator"
	"github.com/TheCacophonyProject/tc2-hat-powermon/calibration"
	"github.com/TheCacophonyProject/tc2-hat-powermon/ina219"
	"github.com/TheCacophonyProject/tc2-hat-powermon/internal/config"
	"github.com/TheCacophonyProject/tc2-hat-powermon/internal/publish"
	"github.com/TheCacophonyProject/tc2-hat-powermon/internal/sensorbus"
	"github.com/TheCacophonyProject/tc2-hat-powermon/internal/termviz"
	"github.com/alexflint/go-arg"
)

var (
	log     = logging.NewLogger("info")
	version = "<not set>"
)

var errNoSubcommand = errors.New("no subcommand given")

type Args struct {
	Monitor   *subcommand   `arg:"subcommand:monitor" help:"Read the sensor and integrate charge and energy until stopped."`
	Calibrate *CalibrateCmd `arg:"subcommand:calibrate" help:"Print the calibration values for a shunt and expected current."`
	Read      *ReadCmd      `arg:"subcommand:read" help:"Print a few readings from the sensor."`
	Snapshot  *subcommand   `arg:"subcommand:snapshot" help:"Print the totals from the running monitor."`
	goconfig.ConfigArgs
	logging.LogArgs
}

type subcommand struct {
}

// CalibrateCmd overrides the configured calibration inputs when set.
type CalibrateCmd struct {
	ShuntOhms float64 `arg:"--shunt-ohms" help:"Shunt resistance in ohms."`
	MaxAmps   float64 `arg:"--max-amps" help:"Maximum expected current in amps."`
	Rounding  string  `arg:"--rounding" help:"How to round the current LSB, 'down' or 'up'."`
}

type ReadCmd struct {
	Count int `arg:"-n, --count" default:"10" help:"Number of readings."`
}

var defaultArgs = Args{}

func procArgs(input []string) (Args, error) {
	args := defaultArgs

	parser, err := arg.NewParser(arg.Config{}, &args)
	if err != nil {
		return Args{}, err
	}
	err = parser.Parse(input)
	if errors.Is(err, arg.ErrHelp) {
		parser.WriteHelp(os.Stdout)
		os.Exit(0)
	}
	if errors.Is(err, arg.ErrVersion) {
		fmt.Println(version)
		os.Exit(0)
	}
	if err == nil && parser.Subcommand() == nil {
		parser.WriteHelp(os.Stdout)
		return args, errNoSubcommand
	}
	return args, err
}

func Run(inputArgs []string, ver string) error {
	version = ver
	args, err := procArgs(inputArgs)
	if err != nil {
		return fmt.Errorf("failed to parse args: %v", err)
	}

	log = logging.NewLogger(args.LogLevel)
	publish.SetLogger(log)

	log.Infof("Running version: %s", version)

	switch {
	case args.Monitor != nil:
		return runMonitor(args.ConfigDir)
	case args.Calibrate != nil:
		return runCalibrate(args.ConfigDir, *args.Calibrate)
	case args.Read != nil:
		return runRead(args.ConfigDir, args.Read.Count)
	case args.Snapshot != nil:
		return runSnapshot()
	}
	return errNoSubcommand
}

func deriveCalibration(conf config.Calibration) (calibration.Params, error) {
	rounding, err := calibration.ParseRounding(conf.Rounding)
	if err != nil {
		return calibration.Params{}, err
	}
	params, err := calibration.DeriveWith(conf.ShuntOhms, conf.MaxExpectedAmps, rounding)
	if err != nil {
		return calibration.Params{}, err
	}
	if params.Clamped {
		log.Warnf("Calibration clamped (register %d, LSB %guA), currents will read wrong", params.Register, params.CurrentLSBuA)
	}
	if params.MaxExpectedAmps > params.ShuntLimitA {
		log.Warnf("Expected current %.3fA is above the %.3fA the shunt ADC can measure", params.MaxExpectedAmps, params.ShuntLimitA)
	}
	return params, nil
}

func runCalibrate(configDir string, cmd CalibrateCmd) error {
	conf, err := config.Load(configDir)
	if err != nil {
		return err
	}
	if cmd.ShuntOhms != 0 {
		conf.Calibration.ShuntOhms = cmd.ShuntOhms
	}
	if cmd.MaxAmps != 0 {
		conf.Calibration.MaxExpectedAmps = cmd.MaxAmps
	}
	if cmd.Rounding != "" {
		conf.Calibration.Rounding = cmd.Rounding
	}
	params, err := deriveCalibration(conf.Calibration)
	if err != nil {
		return err
	}
	fmt.Println(params)
	fmt.Printf("max current %.4fA, shunt limit %.4fA\n", params.MaxCurrentA, params.ShuntLimitA)
	return nil
}

// openSensor opens the bus and initialises the sensor with conf.
// The returned func releases the bus.
func openSensor(conf *config.Config) (*ina219.Device, calibration.Params, func(), error) {
	params, err := deriveCalibration(conf.Calibration)
	if err != nil {
		return nil, calibration.Params{}, nil, err
	}
	conn, closer, err := sensorbus.Open(conf.Sensor)
	if err != nil {
		return nil, calibration.Params{}, nil, err
	}
	release := func() {
		if err := closer.Close(); err != nil {
			log.Warn("Failed to close sensor bus: ", err)
		}
	}

	dev := ina219.New(conn, params)
	if err := dev.Init(ina219.DefaultConfiguration); err != nil {
		release()
		return nil, calibration.Params{}, nil, fmt.Errorf("initialising sensor: %w", err)
	}
	log.Info("Sensor calibration: ", params)
	return dev, params, release, nil
}

func runRead(configDir string, count int) error {
	conf, err := config.Load(configDir)
	if err != nil {
		return err
	}
	dev, _, release, err := openSensor(conf)
	if err != nil {
		return err
	}
	defer release()

	scales := termviz.Scales{VMax: conf.Display.MaxVolts, IMaxMA: conf.IMaxMA(), PMaxMW: conf.PMaxMW()}
	for read := 0; read < count; {
		s, ready, err := dev.Next()
		if err != nil {
			return err
		}
		if !ready {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		for _, line := range termviz.CycleLines(s, scales) {
			fmt.Println(line)
		}
		read++
	}
	return nil
}

func runSnapshot() error {
	record, err := getSnapshot()
	if err != nil {
		return err
	}
	for _, line := range termviz.SummaryLines(record.Snapshot, record.Equivalent) {
		fmt.Println(line)
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func newAccumulator(conf config.Accumulator) *accumulator.Accumulator {
	return accumulator.NewWithLimits(conf.CutoffMA, accumulator.Limits{
		MaxAbsCurrentUA: conf.MaxAbsCurrentMA * 1000,
		MaxAbsPowerUW:   conf.MaxAbsPowerMW * 1000,
		MaxAbsVoltageMV: conf.MaxAbsVoltageMV,
	})
}
