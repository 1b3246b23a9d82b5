package battery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/TheCacophonyProject/ups-hat-controller/internal/logging"
)

var (
	// ErrSensorRead is returned when the sensor failed a read after its own retries.
	ErrSensorRead = errors.New("sensor read failed")
	// ErrCalibration is returned when a calibration pass could not get its samples.
	ErrCalibration = errors.New("calibration failed")
)

// Event types sent to the EventReporter.
const (
	EventSoCCalibrated   = "socCalibrated"
	EventBatteryLow      = "batteryLow"
	EventBatteryDepleted = "batteryDepleted"
)

// Sensor is the measurement port. Each read retries internally and any
// error it returns is final.
type Sensor interface {
	ReadVoltage() (float64, error)
	ReadCurrent() (float64, error)
	ReadPower() (float64, error)
}

// Store holds the persisted SoC.
type Store interface {
	SoC() float32
	SetSoC(float32)
	Persist() error
	Fresh() bool
}

type Alerter interface {
	Alert()
}

// Sample is one telemetry record taken during a session.
type Sample struct {
	Elapsed time.Duration
	Voltage float64
	Current float64
	Power   float64
	SoC     float64
}

type DataLogger interface {
	Record(Sample) error
}

type EventReporter interface {
	Report(eventType string, details map[string]interface{})
}

// Outcome is how Run finished.
type Outcome uint8

const (
	// OutcomeStopped means the context was cancelled.
	OutcomeStopped Outcome = iota
	// OutcomeShutdown means the battery is empty and the system should power off.
	OutcomeShutdown
	// OutcomeFailed means the sensor could not be classified.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeStopped:
		return "stopped"
	case OutcomeShutdown:
		return "shutdown requested"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("Outcome(%d)", uint8(o))
	}
}

// Monitor runs the charge/discharge state machine. Alert, Data and Events
// are optional.
type Monitor struct {
	cfg    Config
	sensor Sensor
	store  Store
	log    *logging.Logger

	Alert  Alerter
	Data   DataLogger
	Events EventReporter

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewMonitor(cfg Config, sensor Sensor, store Store, log *logging.Logger) *Monitor {
	if log == nil {
		log = logging.NewDiscardLogger()
	}
	return &Monitor{
		cfg:    cfg,
		sensor: sensor,
		store:  store,
		log:    log,
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run classifies the battery and runs sessions until the battery is empty,
// the sensor fails or ctx is cancelled. It never powers the system off
// itself, OutcomeShutdown is returned instead.
func (m *Monitor) Run(ctx context.Context) (Outcome, error) {
	lastState := State(255)
	for {
		if err := ctx.Err(); err != nil {
			return OutcomeStopped, err
		}

		state, err := m.Classify()
		if state != lastState {
			m.log.Infof("Entered state %s", state)
			lastState = state
		}

		switch state {
		case StateError:
			return OutcomeFailed, err

		case StateACPower:
			if err := m.sleep(ctx, m.cfg.IdleInterval); err != nil {
				return OutcomeStopped, err
			}

		case StateDepleted:
			m.log.Info("Battery depleted, requesting shutdown")
			m.alert()
			m.report(EventBatteryDepleted, map[string]interface{}{
				"soc": m.store.SoC(),
			})
			return OutcomeShutdown, nil

		case StateCharging:
			end, err := m.ChargeSession(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return OutcomeStopped, ctx.Err()
				}
				m.log.Errorf("Charging session aborted: %v", err)
				if err := m.sleep(ctx, m.cfg.IdleInterval); err != nil {
					return OutcomeStopped, err
				}
				continue
			}
			m.log.Infof("Charging session ended: %s", end)

		case StateDischarging:
			end, err := m.DischargeSession(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return OutcomeStopped, ctx.Err()
				}
				m.log.Errorf("Discharging session aborted: %v", err)
				if err := m.sleep(ctx, m.cfg.IdleInterval); err != nil {
					return OutcomeStopped, err
				}
				continue
			}
			m.log.Infof("Discharging session ended: %s", end)
			if end == EndBatteryEmpty {
				m.alert()
				m.report(EventBatteryDepleted, map[string]interface{}{
					"soc": m.store.SoC(),
				})
				return OutcomeShutdown, nil
			}
		}
	}
}

func (m *Monitor) readVoltage() (float64, error) {
	v, err := m.sensor.ReadVoltage()
	if err != nil {
		m.log.Errorf("Failed to get valid voltage measurement: %v", err)
		return 0, fmt.Errorf("%w: voltage: %w", ErrSensorRead, err)
	}
	return v, nil
}

func (m *Monitor) readCurrent() (float64, error) {
	c, err := m.sensor.ReadCurrent()
	if err != nil {
		m.log.Errorf("Failed to get valid current measurement: %v", err)
		return 0, fmt.Errorf("%w: current: %w", ErrSensorRead, err)
	}
	return c, nil
}

func (m *Monitor) readPower() (float64, error) {
	p, err := m.sensor.ReadPower()
	if err != nil {
		m.log.Errorf("Failed to get valid power measurement: %v", err)
		return 0, fmt.Errorf("%w: power: %w", ErrSensorRead, err)
	}
	return p, nil
}

// setSoC clamps, stores and flushes soc.
func (m *Monitor) setSoC(soc float64) (float64, error) {
	soc = Clamp(soc)
	m.store.SetSoC(float32(soc))
	if err := m.store.Persist(); err != nil {
		m.log.Errorf("Failed to persist SoC: %v", err)
		return soc, err
	}
	return soc, nil
}

func (m *Monitor) alert() {
	if m.Alert != nil {
		m.Alert.Alert()
	}
}

func (m *Monitor) report(eventType string, details map[string]interface{}) {
	if m.Events != nil {
		m.Events.Report(eventType, details)
	}
}

// recording reports whether a data log is attached. Sessions only take the
// extra reading a Sample needs when it is.
func (m *Monitor) recording() bool {
	return m.Data != nil
}

func (m *Monitor) record(s Sample) {
	if m.Data == nil {
		return
	}
	m.log.Debugf("Elapsed: %s, voltage: %.3fV, current: %.3fA, power: %.3fW, SoC: %.3f",
		s.Elapsed, s.Voltage, s.Current, s.Power, s.SoC)
	if err := m.Data.Record(s); err != nil {
		m.log.Errorf("Failed to write data log record: %v", err)
	}
}
