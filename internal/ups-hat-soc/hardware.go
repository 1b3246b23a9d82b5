package soc

import (
	"fmt"
	"strconv"

	goconfig "github.com/TheCacophonyProject/go-config"
	"github.com/TheCacophonyProject/ups-hat-controller/i2crequest"
	"github.com/TheCacophonyProject/ups-hat-controller/ina219"
	"github.com/TheCacophonyProject/ups-hat-controller/socstore"
	"github.com/gofrs/flock"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// hardware is everything the daemon holds while running.
type hardware struct {
	batteryConfig goconfig.Battery

	lock   *flock.Flock
	bus    i2c.BusCloser
	gauge  *ina219.Gauge
	buzzer *Buzzer
	data   *DataLog
	store  *socstore.Store
}

// acquire takes the instance lock and opens the devices and files in order.
// On failure the error is logged and everything already acquired is released.
func acquire(args Args) (_ *hardware, err error) {
	hw := &hardware{}
	defer func() {
		if err != nil {
			log.Error(err)
			hw.closeStore()
			hw.release()
			closeLog()
		}
	}()

	hw.lock = flock.New(args.LockFile)
	locked, err := hw.lock.TryLock()
	if err != nil {
		hw.lock = nil
		return nil, fmt.Errorf("failed to take lock %s: %w", args.LockFile, err)
	}
	if !locked {
		hw.lock = nil
		return nil, fmt.Errorf("another instance holds %s", args.LockFile)
	}

	hw.batteryConfig = loadBatteryConfig(args.ConfigDir)
	if err := checkBatteryConfig(hw.batteryConfig); err != nil {
		return nil, err
	}

	if args.MessageLog != "" {
		if err := log.AddFile(args.MessageLog); err != nil {
			return nil, fmt.Errorf("failed to open message log: %w", err)
		}
	}

	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to init periph host: %w", err)
	}

	address, err := parseAddress(args.Address)
	if err != nil {
		return nil, err
	}
	var conn ina219.Conn
	if args.I2CService {
		log.Infof("Using i2c service for INA219 at 0x%02X", address)
		conn = &i2crequest.Conn{Address: address}
	} else {
		bus, err := i2creg.Open(args.Bus)
		if err != nil {
			return nil, fmt.Errorf("failed to open i2c bus %q: %w", args.Bus, err)
		}
		hw.bus = bus
		conn = &i2c.Dev{Bus: bus, Addr: uint16(address)}
	}

	hw.gauge = ina219.New(conn)
	log.Info("Writing INA219 calibration")
	if err := hw.gauge.Calibrate(); err != nil {
		return nil, fmt.Errorf("failed to calibrate INA219: %w", err)
	}

	if args.BuzzerPin != "" {
		hw.buzzer, err = OpenBuzzer(args.BuzzerPin)
		if err != nil {
			return nil, err
		}
	}

	if args.DataLog != "" {
		hw.data, err = OpenDataLog(args.DataLog, args.MaxDataRecords)
		if err != nil {
			return nil, err
		}
	}

	hw.store, err = socstore.Open(args.StoreFile, socstore.DefaultPerm)
	if err != nil {
		return nil, err
	}
	if hw.store.Fresh() {
		log.Infof("No saved SoC in %s", hw.store.Path())
	} else {
		log.Infof("Saved SoC: %.3f", hw.store.SoC())
	}

	return hw, nil
}

func parseAddress(s string) (byte, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid i2c address %q: %w", s, err)
	}
	return byte(v), nil
}

func (hw *hardware) closeStore() {
	if hw.store == nil {
		return
	}
	if err := hw.store.Close(); err != nil {
		log.Errorf("Failed to close SoC store: %v", err)
	}
	hw.store = nil
}

func (hw *hardware) disposeStore() {
	if hw.store == nil {
		return
	}
	if err := hw.store.Dispose(); err != nil {
		log.Errorf("Failed to remove SoC store: %v", err)
	}
	hw.store = nil
}

// release frees everything except the store and the message log, newest
// first.
func (hw *hardware) release() {
	if hw.data != nil {
		if err := hw.data.Close(); err != nil {
			log.Errorf("Failed to close data log: %v", err)
		}
		hw.data = nil
	}
	if hw.buzzer != nil {
		if err := hw.buzzer.Close(); err != nil {
			log.Errorf("Failed to release buzzer: %v", err)
		}
		hw.buzzer = nil
	}
	if hw.bus != nil {
		if err := hw.bus.Close(); err != nil {
			log.Errorf("Failed to close i2c bus: %v", err)
		}
		hw.bus = nil
	}
	if hw.lock != nil {
		if err := hw.lock.Unlock(); err != nil {
			log.Errorf("Failed to release lock: %v", err)
		}
		hw.lock = nil
	}
}

// closeLog stops copying the log to the message log file. It runs after
// everything else so the file gets the last records.
func closeLog() {
	if err := log.Close(); err != nil {
		log.Errorf("Failed to close message log: %v", err)
	}
}
