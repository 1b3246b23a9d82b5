// Package ina219 reads bus voltage, current and power from an INA219
// current/power monitor.
package ina219

import (
	"fmt"
	"time"
)

type Register uint8

const (
	ConfigReg Register = iota
	ShuntVoltageReg
	BusVoltageReg
	PowerReg
	CurrentReg
	CalibrationReg
)

func (r Register) String() string {
	switch r {
	case ConfigReg:
		return "config"
	case ShuntVoltageReg:
		return "shunt voltage"
	case BusVoltageReg:
		return "bus voltage"
	case PowerReg:
		return "power"
	case CurrentReg:
		return "current"
	case CalibrationReg:
		return "calibration"
	default:
		return fmt.Sprintf("0x%02X", uint8(r))
	}
}

const (
	DefaultAddress = 0x43
	DefaultBus     = "1"

	// Calibration value for the 0.1 ohm shunt on the HAT. Must be rewritten
	// after the chip loses power.
	CalibrationValue = 26868

	// Scale factors converting raw register values into SI units.
	VoltageLSB = 0.004
	CurrentLSB = 0.0001524
	PowerLSB   = 0.003048

	// Parameters for transaction retries.
	maxTxAttempts   = 3
	txRetryInterval = time.Second
)

var sleepFn = time.Sleep

// Conn is a register-level connection to the chip. *i2c.Dev satisfies it.
type Conn interface {
	Tx(w, r []byte) error
}

// TxError is returned once every attempt at a transaction has failed.
type TxError struct {
	Reg      Register
	Attempts int
	Err      error
}

func (e *TxError) Error() string {
	return fmt.Sprintf("%s register: failed after %d attempts: %v", e.Reg, e.Attempts, e.Err)
}

func (e *TxError) Unwrap() error {
	return e.Err
}

type Gauge struct {
	conn          Conn
	attempts      int
	retryInterval time.Duration
}

func New(conn Conn) *Gauge {
	return &Gauge{
		conn:          conn,
		attempts:      maxTxAttempts,
		retryInterval: txRetryInterval,
	}
}

// SetRetries changes how many attempts a transaction gets and the wait
// between them.
func (g *Gauge) SetRetries(attempts int, interval time.Duration) {
	if attempts < 1 {
		attempts = 1
	}
	g.attempts = attempts
	g.retryInterval = interval
}

// Calibrate writes the calibration register. Current and power read as zero
// until this has been done.
func (g *Gauge) Calibrate() error {
	return g.WriteRegister(CalibrationReg, CalibrationValue)
}

func (g *Gauge) ReadVoltage() (float64, error) {
	raw, err := g.ReadRegister(BusVoltageReg)
	if err != nil {
		return 0, err
	}
	// The low 3 bits hold status flags.
	return float64(raw>>3) * VoltageLSB, nil
}

// ReadCurrent returns the current in amps, positive while charging.
func (g *Gauge) ReadCurrent() (float64, error) {
	raw, err := g.ReadRegister(CurrentReg)
	if err != nil {
		return 0, err
	}
	return float64(raw) * CurrentLSB, nil
}

func (g *Gauge) ReadPower() (float64, error) {
	raw, err := g.ReadRegister(PowerReg)
	if err != nil {
		return 0, err
	}
	return float64(raw) * PowerLSB, nil
}

// ReadRegister reads a big-endian 16 bit register as a signed value.
func (g *Gauge) ReadRegister(reg Register) (int16, error) {
	read := make([]byte, 2)
	if err := g.tx(reg, []byte{byte(reg)}, read); err != nil {
		return 0, err
	}
	return int16(uint16(read[0])<<8 | uint16(read[1])), nil
}

func (g *Gauge) WriteRegister(reg Register, val uint16) error {
	return g.tx(reg, []byte{byte(reg), byte(val >> 8), byte(val)}, nil)
}

func (g *Gauge) tx(reg Register, write, read []byte) error {
	attempts := 0
	for {
		err := g.conn.Tx(write, read)
		if err == nil {
			return nil
		}

		attempts++
		if attempts >= g.attempts {
			return &TxError{Reg: reg, Attempts: attempts, Err: err}
		}
		sleepFn(g.retryInterval)
	}
}
