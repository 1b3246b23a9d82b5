package battery

import "fmt"

type State uint8

const (
	StateError State = iota
	StateCharging
	StateDischarging
	StateACPower
	StateDepleted
)

func (s State) String() string {
	switch s {
	case StateError:
		return "Error"
	case StateCharging:
		return "Charging"
	case StateDischarging:
		return "Discharging"
	case StateACPower:
		return "AC Power"
	case StateDepleted:
		return "Depleted"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(s))
	}
}

// Classify reads the sensor and works out the current regime. Readings are
// only taken as far as needed: power first, then voltage, then current.
func (m *Monitor) Classify() (State, error) {
	power, err := m.readPower()
	if err != nil {
		return StateError, err
	}
	if power < m.cfg.ACPowerThreshold {
		return StateACPower, nil
	}

	voltage, err := m.readVoltage()
	if err != nil {
		return StateError, err
	}
	if voltage < m.cfg.DepletedCutoff {
		return StateDepleted, nil
	}

	current, err := m.readCurrent()
	if err != nil {
		return StateError, err
	}
	if current > 0 {
		return StateCharging, nil
	}
	return StateDischarging, nil
}
