package soc

import (
	"context"
	"errors"
	"path/filepath"

	goconfig "github.com/TheCacophonyProject/go-config"
	"github.com/google/go-cmp/cmp"
	"github.com/rjeczalik/notify"
)

var (
	errVoltageReadingsDisabled = errors.New("battery voltage readings disabled")
	errConfigChanged           = errors.New("battery config changed")
)

// loadBatteryConfig reads the battery section of the device config. An
// unreadable config is logged and the defaults used.
func loadBatteryConfig(configDir string) goconfig.Battery {
	if configDir == "" {
		configDir = goconfig.DefaultConfigDir
	}
	batteryConfig := goconfig.DefaultBattery()
	conf, err := goconfig.New(configDir)
	if err != nil {
		log.Errorf("Failed to load config from %s, using defaults: %v", configDir, err)
		return batteryConfig
	}
	if err := conf.Unmarshal(goconfig.BatteryKey, &batteryConfig); err != nil {
		log.Errorf("Failed to load battery config, using defaults: %v", err)
		return goconfig.DefaultBattery()
	}
	return batteryConfig
}

// checkBatteryConfig refuses to run when battery readings are turned off.
func checkBatteryConfig(batteryConfig goconfig.Battery) error {
	if !batteryConfig.EnableVoltageReadings {
		return errVoltageReadingsDisabled
	}
	return nil
}

// watchConfig stops the daemon with errConfigChanged when the battery section
// of the config file changes, so systemd restarts it with the new config.
func watchConfig(ctx context.Context, configDir string, conf goconfig.Battery, stop context.CancelCauseFunc) {
	if configDir == "" {
		configDir = goconfig.DefaultConfigDir
	}
	configFilePath := filepath.Join(configDir, goconfig.ConfigFileName)
	fsEvents := make(chan notify.EventInfo, 1)
	if err := notify.Watch(configFilePath, fsEvents, notify.InCloseWrite, notify.InMovedTo); err != nil {
		log.Errorf("Failed to watch %s: %v", configFilePath, err)
		return
	}
	defer notify.Stop(fsEvents)

	for {
		select {
		case <-ctx.Done():
			return
		case <-fsEvents:
		}
		if configChanged(conf, loadBatteryConfig(configDir)) {
			log.Info("Battery config changed. Exiting to allow systemctl to restart service.")
			stop(errConfigChanged)
			return
		}
		log.Info("No relevant changes detected in config file.")
	}
}

func configChanged(prev, next goconfig.Battery) bool {
	diff := cmp.Diff(prev, next)
	log.Debug("Config diff:", diff)
	return diff != ""
}
