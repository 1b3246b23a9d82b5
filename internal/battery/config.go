package battery

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the policy values for one battery and sensor profile.
// SoC values are unit fractions.
type Config struct {
	CapacityAh float64

	// Classification thresholds.
	ACPowerThreshold float64 // W, below this the load is on external power
	DepletedCutoff   float64 // V

	// Calibration.
	EmptyVoltage        float64 // V mapped to SoC 0
	FullVoltage         float64 // V mapped to SoC 1
	MaxChargePower      float64 // W drawn by an empty battery while charging
	CalibrationSamples  int
	DischargeSettle     time.Duration
	ChargeSettle        time.Duration
	DivergenceThreshold float64

	// Integration.
	PollInterval      time.Duration
	IdleInterval      time.Duration
	DriftCeiling      time.Duration
	DriftNominal      time.Duration
	ChargeOverhead    time.Duration // measurement round trip subtracted from each charging step
	DischargeOverhead time.Duration // same for discharging

	// Charging session exits.
	TaperPower            float64 // W
	TaperCurrent          float64 // A
	ChargerRemovedCurrent float64 // A, at or below this the charger is gone

	LowBatteryThreshold float64

	// Walk to 0 or 1 once a session ends naturally.
	RampStep     float64
	RampInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		CapacityAh: 1,

		ACPowerThreshold: 0.1,
		DepletedCutoff:   3.30,

		EmptyVoltage:        3.42,
		FullVoltage:         4.0,
		MaxChargePower:      9.0,
		CalibrationSamples:  3,
		DischargeSettle:     2 * time.Second,
		ChargeSettle:        time.Second,
		DivergenceThreshold: 0.4,

		PollInterval:      5 * time.Second,
		IdleInterval:      time.Second,
		DriftCeiling:      7 * time.Second,
		DriftNominal:      5005 * time.Millisecond,
		ChargeOverhead:    600 * time.Millisecond,
		DischargeOverhead: 700 * time.Millisecond,

		TaperPower:            0.05,
		TaperCurrent:          0.01,
		ChargerRemovedCurrent: 0,

		LowBatteryThreshold: 0.05,

		RampStep:     0.005,
		RampInterval: time.Second,
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.CapacityAh <= 0 {
		errs = append(errs, fmt.Errorf("capacity must be positive, got %v", c.CapacityAh))
	}
	if c.FullVoltage <= c.EmptyVoltage {
		errs = append(errs, fmt.Errorf("full voltage %v must be above empty voltage %v", c.FullVoltage, c.EmptyVoltage))
	}
	if c.MaxChargePower <= 0 {
		errs = append(errs, fmt.Errorf("max charge power must be positive, got %v", c.MaxChargePower))
	}
	if c.CalibrationSamples < 1 {
		errs = append(errs, fmt.Errorf("need at least one calibration sample, got %d", c.CalibrationSamples))
	}
	if c.DriftNominal > c.DriftCeiling {
		errs = append(errs, fmt.Errorf("drift nominal %s is above drift ceiling %s", c.DriftNominal, c.DriftCeiling))
	}
	if c.RampStep <= 0 {
		errs = append(errs, fmt.Errorf("ramp step must be positive, got %v", c.RampStep))
	}
	if c.PollInterval <= 0 || c.IdleInterval <= 0 {
		errs = append(errs, errors.New("poll and idle intervals must be positive"))
	}
	return errors.Join(errs...)
}
