package soc

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
)

const buzzDuration = time.Second

var sleepFn = time.Sleep

type pinOut interface {
	Out(l gpio.Level) error
}

// Buzzer drives an active buzzer on a GPIO line.
type Buzzer struct {
	pin pinOut
}

// OpenBuzzer finds the pin by name and drives it low. host.Init must have
// been called.
func OpenBuzzer(name string) (*Buzzer, error) {
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("failed to find buzzer pin %s", name)
	}
	if err := pin.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("failed to set buzzer pin %s as output: %w", name, err)
	}
	return &Buzzer{pin: pin}, nil
}

// Alert sounds the buzzer for one second.
func (b *Buzzer) Alert() {
	if err := b.pin.Out(gpio.High); err != nil {
		log.Errorf("Failed to turn buzzer on: %v", err)
		return
	}
	sleepFn(buzzDuration)
	if err := b.pin.Out(gpio.Low); err != nil {
		log.Errorf("Failed to turn buzzer off: %v", err)
	}
}

// Close leaves the buzzer off.
func (b *Buzzer) Close() error {
	return b.pin.Out(gpio.Low)
}
