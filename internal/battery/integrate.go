package battery

import (
	"math"
	"time"
)

// Clamp limits soc to [0, 1]. NaN becomes 0.
func Clamp(soc float64) float64 {
	if math.IsNaN(soc) {
		return 0
	}
	return math.Max(0, math.Min(1, soc))
}

// Integrate adds the charge moved by current over hours to soc. The result
// is not clamped.
func (c Config) Integrate(soc, current, hours float64) float64 {
	return soc + (current/c.CapacityAh)*hours
}

// Elapsed returns the time since *prev and moves *prev to now. A step longer
// than ceiling is replaced by nominal and reported as clamped.
func Elapsed(prev *time.Time, now time.Time, ceiling, nominal time.Duration) (time.Duration, bool) {
	d := now.Sub(*prev)
	*prev = now
	if d > ceiling {
		return nominal, true
	}
	return d, false
}

// stepHours removes the fixed measurement overhead from an elapsed step.
func stepHours(elapsed, overhead time.Duration) float64 {
	d := elapsed - overhead
	if d < 0 {
		return 0
	}
	return d.Hours()
}

// VoltageSoC maps a resting voltage linearly between the empty and full
// voltages.
func (c Config) VoltageSoC(voltage float64) float64 {
	return Clamp((voltage - c.EmptyVoltage) / (c.FullVoltage - c.EmptyVoltage))
}

// PowerSoC maps charging power to SoC. The battery draws less as it fills.
func (c Config) PowerSoC(power float64) float64 {
	return Clamp(1 - power/c.MaxChargePower)
}
