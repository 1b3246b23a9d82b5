/*
ups-hat-controller - Battery state of charge daemon for an INA219 UPS HAT
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
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package soc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	goconfig "github.com/TheCacophonyProject/go-config"
	"github.com/TheCacophonyProject/ups-hat-controller/ina219"
	"github.com/TheCacophonyProject/ups-hat-controller/internal/battery"
	"github.com/TheCacophonyProject/ups-hat-controller/internal/logging"
	"github.com/TheCacophonyProject/ups-hat-controller/socstore"
	arg "github.com/alexflint/go-arg"
)

const (
	defaultMessageLog     = "/var/lib/battery.log"
	defaultDataLog        = "/var/lib/battery_data.csv"
	defaultLockFile       = "/run/ups-hat-soc.lock"
	defaultBuzzerPin      = "GPIO21"
	defaultMaxDataRecords = 100000
)

var (
	version = "<not set>"
	log     = logging.NewLogger("info")
)

type Args struct {
	CapacityAh      float64       `arg:"--capacity" help:"Battery capacity in amp hours"`
	PollInterval    time.Duration `arg:"--poll-interval" help:"Time between samples while charging or discharging"`
	CutoffVoltage   float64       `arg:"--cutoff-voltage" help:"Battery voltage below which the battery is depleted"`
	EmptyVoltage    float64       `arg:"--empty-voltage" help:"Resting voltage of an empty battery, used for calibration"`
	FullVoltage     float64       `arg:"--full-voltage" help:"Resting voltage of a full battery, used for calibration"`
	MaxChargePower  float64       `arg:"--max-charge-power" help:"Charging power of an empty battery in watts, used for calibration"`
	Divergence      float64       `arg:"--divergence" help:"Largest difference between the saved and calibrated SoC that is trusted"`
	LowBattery      float64       `arg:"--low-battery" help:"SoC at or below which the low battery alarm sounds"`
	StoreFile       string        `arg:"--soc-file" help:"Memory mapped file holding the SoC"`
	MessageLog      string        `arg:"--message-log" help:"File the log is copied to, empty to disable"`
	DataLog         string        `arg:"--data-log" help:"CSV file for sample data, empty to disable"`
	MaxDataRecords  int           `arg:"--max-data-records" help:"Records kept in the data log at startup"`
	LockFile        string        `arg:"--lock-file" help:"Lock file preventing a second instance"`
	BuzzerPin       string        `arg:"--buzzer-pin" help:"GPIO pin of the alarm buzzer, empty to disable"`
	Bus             string        `arg:"--bus" help:"i2c bus the INA219 is on"`
	Address         string        `arg:"--address" help:"Address of the INA219, in hex (0xnn)"`
	I2CService      bool          `arg:"--i2c-service" help:"Use the i2c dbus service instead of opening the bus"`
	SkipShutdown    bool          `arg:"--skip-system-shutdown" help:"Don't power off the system when the battery is empty"`
	ConfigDir       string        `arg:"-c,--config" help:"configuration folder"`
	logging.LogArgs
}

var defaultCfg = battery.DefaultConfig()

var defaultArgs = Args{
	CapacityAh:     defaultCfg.CapacityAh,
	PollInterval:   defaultCfg.PollInterval,
	CutoffVoltage:  defaultCfg.DepletedCutoff,
	EmptyVoltage:   defaultCfg.EmptyVoltage,
	FullVoltage:    defaultCfg.FullVoltage,
	MaxChargePower: defaultCfg.MaxChargePower,
	Divergence:     defaultCfg.DivergenceThreshold,
	LowBattery:     defaultCfg.LowBatteryThreshold,
	StoreFile:      socstore.DefaultPath,
	MessageLog:     defaultMessageLog,
	DataLog:        defaultDataLog,
	MaxDataRecords: defaultMaxDataRecords,
	LockFile:       defaultLockFile,
	BuzzerPin:      defaultBuzzerPin,
	Bus:            ina219.DefaultBus,
	Address:        fmt.Sprintf("0x%02x", ina219.DefaultAddress),
	ConfigDir:      goconfig.DefaultConfigDir,
}

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
	return args, err
}

// batteryConfig applies the flags to the default policy.
func (a Args) batteryConfig() (battery.Config, error) {
	cfg := battery.DefaultConfig()
	cfg.CapacityAh = a.CapacityAh
	cfg.PollInterval = a.PollInterval
	cfg.DepletedCutoff = a.CutoffVoltage
	cfg.EmptyVoltage = a.EmptyVoltage
	cfg.FullVoltage = a.FullVoltage
	cfg.MaxChargePower = a.MaxChargePower
	cfg.DivergenceThreshold = a.Divergence
	cfg.LowBatteryThreshold = a.LowBattery
	if err := cfg.Validate(); err != nil {
		return battery.Config{}, err
	}
	return cfg, nil
}

// SetupError is returned when the daemon could not acquire what it needs to
// start. Anything acquired before the failure has been released.
type SetupError struct {
	Err error
}

func (e *SetupError) Error() string {
	return "setup failed: " + e.Err.Error()
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

func Run(inputArgs []string, ver string) error {
	version = ver
	args, err := procArgs(inputArgs)
	if err != nil {
		return fmt.Errorf("failed to parse args: %v", err)
	}
	log = logging.NewLogger(args.LogLevel)

	log.Infof("Running version: %s", version)

	cfg, err := args.batteryConfig()
	if err != nil {
		log.Error(err)
		return &SetupError{Err: err}
	}

	hw, err := acquire(args)
	if err != nil {
		return &SetupError{Err: err}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)
		watchConfig(ctx, args.ConfigDir, hw.batteryConfig, cancel)
	}()

	monitor := battery.NewMonitor(cfg, hw.gauge, hw.store, log)
	if hw.buzzer != nil {
		monitor.Alert = hw.buzzer
	}
	if hw.data != nil {
		monitor.Data = hw.data
	}
	monitor.Events = eventSink{}

	log.Info("Starting battery monitor")
	outcome, err := monitor.Run(ctx)
	cause := context.Cause(ctx)
	// The watcher logs, so it has to be gone before the message log closes.
	cancel(nil)
	<-watcherDone
	return finish(hw, outcome, err, cause, args.SkipShutdown)
}
