package battery

import (
	"context"
	"fmt"
	"math"
	"time"
)

// SessionEnd says why a session loop returned.
type SessionEnd uint8

const (
	EndChargerRemoved SessionEnd = iota
	EndChargeComplete
	EndChargerConnected
	EndBatteryEmpty
)

func (e SessionEnd) String() string {
	switch e {
	case EndChargerRemoved:
		return "charger removed"
	case EndChargeComplete:
		return "charge complete"
	case EndChargerConnected:
		return "charger connected"
	case EndBatteryEmpty:
		return "battery empty"
	default:
		return fmt.Sprintf("SessionEnd(%d)", uint8(e))
	}
}

// chargeComplete is the taper band: almost no power and a tiny positive current.
func (c Config) chargeComplete(power, current float64) bool {
	return power <= c.TaperPower && current >= 0 && current <= c.TaperCurrent
}

// ChargeSession integrates charging current until the charge tapers off or
// the charger is removed. On a completed charge SoC is walked up to 1.
func (m *Monitor) ChargeSession(ctx context.Context) (SessionEnd, error) {
	calibration, err := m.CalibrateCharge(ctx)
	if err != nil {
		return EndChargerRemoved, err
	}
	m.log.Infof("Calibration SoC: %.3f", calibration)
	if err := m.reconcile(calibration); err != nil {
		return EndChargerRemoved, err
	}

	prev := m.now()
	for {
		power, err := m.readPower()
		if err != nil {
			return EndChargerRemoved, err
		}
		current, err := m.readCurrent()
		if err != nil {
			return EndChargerRemoved, err
		}

		if m.cfg.chargeComplete(power, current) {
			m.log.Infof("Charge complete (power %.3fW, current %.4fA)", power, current)
			break
		}
		if current <= m.cfg.ChargerRemovedCurrent {
			m.log.Infof("Charger removed (current %.4fA)", current)
			return EndChargerRemoved, nil
		}

		elapsed := m.elapsed(&prev)
		soc := m.cfg.Integrate(float64(m.store.SoC()), current, stepHours(elapsed, m.cfg.ChargeOverhead))
		if soc, err = m.setSoC(soc); err != nil {
			return EndChargerRemoved, err
		}

		if m.recording() {
			voltage, err := m.readVoltage()
			if err == nil {
				m.record(Sample{Elapsed: elapsed, Voltage: voltage, Current: current, Power: power, SoC: soc})
			}
		}

		if err := m.sleep(ctx, m.cfg.PollInterval); err != nil {
			return EndChargerRemoved, err
		}
	}

	if err := m.ramp(ctx, 1); err != nil {
		return EndChargeComplete, err
	}
	return EndChargeComplete, nil
}

// DischargeSession integrates discharge current until a charger is connected
// or the voltage drops below the cutoff. When the battery is empty SoC is
// walked down to 0.
func (m *Monitor) DischargeSession(ctx context.Context) (SessionEnd, error) {
	calibration, err := m.CalibrateDischarge(ctx)
	if err != nil {
		return EndChargerConnected, err
	}
	m.log.Infof("Calibration SoC: %.3f", calibration)
	if err := m.reconcile(calibration); err != nil {
		return EndChargerConnected, err
	}

	reportedLow := false
	prev := m.now()
	for {
		current, err := m.readCurrent()
		if err != nil {
			return EndChargerConnected, err
		}
		if current > 0 {
			m.log.Infof("Charger connected (current %.4fA)", current)
			return EndChargerConnected, nil
		}

		voltage, err := m.readVoltage()
		if err != nil {
			return EndChargerConnected, err
		}
		if voltage < m.cfg.DepletedCutoff {
			m.log.Infof("Voltage %.3fV below cutoff %.3fV", voltage, m.cfg.DepletedCutoff)
			break
		}

		elapsed := m.elapsed(&prev)
		soc := m.cfg.Integrate(float64(m.store.SoC()), current, stepHours(elapsed, m.cfg.DischargeOverhead))
		if soc, err = m.setSoC(soc); err != nil {
			return EndChargerConnected, err
		}

		if m.recording() {
			power, err := m.readPower()
			if err == nil {
				m.record(Sample{Elapsed: elapsed, Voltage: voltage, Current: current, Power: power, SoC: soc})
			}
		}

		if soc <= m.cfg.LowBatteryThreshold {
			m.log.Infof("Low battery: SoC %.3f", soc)
			m.alert()
			if !reportedLow {
				m.report(EventBatteryLow, map[string]interface{}{
					"soc":     soc,
					"voltage": voltage,
				})
				reportedLow = true
			}
		}

		if err := m.sleep(ctx, m.cfg.PollInterval); err != nil {
			return EndChargerConnected, err
		}
	}

	if err := m.ramp(ctx, 0); err != nil {
		return EndBatteryEmpty, err
	}
	return EndBatteryEmpty, nil
}

func (m *Monitor) elapsed(prev *time.Time) time.Duration {
	d, clamped := Elapsed(prev, m.now(), m.cfg.DriftCeiling, m.cfg.DriftNominal)
	if clamped {
		m.log.Infof("Time step dilation: using %s instead of the measured step", m.cfg.DriftNominal)
	}
	return d
}

// ramp walks the persisted SoC to target in fixed steps, persisting each one,
// so readers of the file never see a jump.
func (m *Monitor) ramp(ctx context.Context, target float64) error {
	soc := Clamp(float64(m.store.SoC()))
	for soc != target {
		if soc < target {
			soc = math.Min(target, soc+m.cfg.RampStep)
			m.log.Infof("Gracefully increasing SoC: %.3f", soc)
		} else {
			soc = math.Max(target, soc-m.cfg.RampStep)
			m.log.Infof("Gracefully decreasing SoC: %.3f", soc)
		}
		var err error
		if soc, err = m.setSoC(soc); err != nil {
			return err
		}
		if err := m.sleep(ctx, m.cfg.RampInterval); err != nil {
			return err
		}
	}
	return nil
}
