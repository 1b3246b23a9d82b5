package battery

import (
	"context"
	"fmt"
	"math"
)

// CalibrateDischarge estimates SoC from the battery voltage. Several samples
// are taken with a settle delay between them and the last one is used, so a
// sag from a load spike has time to recover.
func (m *Monitor) CalibrateDischarge(ctx context.Context) (float64, error) {
	var voltage float64
	for i := 0; i < m.cfg.CalibrationSamples; i++ {
		if i > 0 {
			if err := m.sleep(ctx, m.cfg.DischargeSettle); err != nil {
				return 0, err
			}
		}
		v, err := m.sensor.ReadVoltage()
		if err != nil {
			m.log.Errorf("Failed to get valid discharge calibration: %v", err)
			return 0, fmt.Errorf("%w: voltage: %w", ErrCalibration, err)
		}
		voltage = v
	}
	return m.cfg.VoltageSoC(voltage), nil
}

// CalibrateCharge estimates SoC from how much power the charger is pushing in.
func (m *Monitor) CalibrateCharge(ctx context.Context) (float64, error) {
	var power float64
	for i := 0; i < m.cfg.CalibrationSamples; i++ {
		if i > 0 {
			if err := m.sleep(ctx, m.cfg.ChargeSettle); err != nil {
				return 0, err
			}
		}
		p, err := m.sensor.ReadPower()
		if err != nil {
			m.log.Errorf("Failed to get valid charge calibration: %v", err)
			return 0, fmt.Errorf("%w: power: %w", ErrCalibration, err)
		}
		power = p
	}
	return m.cfg.PowerSoC(power), nil
}

// reconcile replaces the persisted SoC with calibrated when the persisted
// value can't be trusted or is too far from it.
func (m *Monitor) reconcile(calibrated float64) error {
	persisted := float64(m.store.SoC())
	var reason string
	switch {
	case m.store.Fresh():
		reason = "no persisted SoC"
	case math.IsNaN(persisted) || persisted < 0 || persisted > 1:
		reason = fmt.Sprintf("persisted SoC %v out of range", persisted)
	case math.Abs(persisted-calibrated) > m.cfg.DivergenceThreshold:
		reason = fmt.Sprintf("persisted SoC %.3f diverged from calibration", persisted)
	default:
		m.log.Infof("Keeping persisted SoC %.3f (calibration %.3f)", persisted, calibrated)
		return nil
	}

	m.log.Infof("Using calibration SoC %.3f: %s", calibrated, reason)
	if _, err := m.setSoC(calibrated); err != nil {
		return err
	}
	m.report(EventSoCCalibrated, map[string]interface{}{
		"soc":       calibrated,
		"persisted": persisted,
		"reason":    reason,
	})
	return nil
}
