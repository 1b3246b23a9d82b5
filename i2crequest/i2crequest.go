// Package i2crequest makes i2c transactions through the i2c dbus service
// instead of opening the bus directly. The service serialises access when
// several daemons share the bus.
package i2crequest

import (
	"fmt"
	"sync"
	"time"

	"github.com/godbus/dbus"
)

const (
	dbusName = "org.cacophony.i2c"
	dbusPath = "/org/cacophony/i2c"

	defaultTimeoutMs = 1000
)

// TxResponse is a canned response used by MockTxResponses.
type TxResponse struct {
	Response []byte
	Err      error
}

var (
	mu   sync.Mutex
	txFn = dbusTx
)

// Tx writes write to the device at address then reads readLen bytes back.
// timeout is in milliseconds.
func Tx(address byte, write []byte, readLen, timeout int) ([]byte, error) {
	mu.Lock()
	fn := txFn
	mu.Unlock()
	return fn(address, write, readLen, timeout)
}

func dbusTx(address byte, write []byte, readLen, timeout int) ([]byte, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, err
	}
	obj := conn.Object(dbusName, dbusPath)

	var response []byte
	if err := obj.Call(dbusName+".Tx", 0, address, write, readLen, timeout).Store(&response); err != nil {
		return nil, err
	}
	if len(response) != readLen {
		return nil, fmt.Errorf("expected %d bytes from 0x%X, got %d", readLen, address, len(response))
	}
	return response, nil
}

// CheckAddress reports whether a device acknowledges a register read at address.
func CheckAddress(address byte, timeout int) (bool, error) {
	if _, err := Tx(address, []byte{0x00}, 1, timeout); err != nil {
		return false, err
	}
	return true, nil
}

// Conn binds an address so it can be used as a register-level connection,
// matching the Tx(w, r) shape of periph's i2c.Dev.
type Conn struct {
	Address byte
	Timeout time.Duration
}

func (c *Conn) Tx(w, r []byte) error {
	timeout := defaultTimeoutMs
	if c.Timeout > 0 {
		timeout = int(c.Timeout / time.Millisecond)
	}
	res, err := Tx(c.Address, w, len(r), timeout)
	if err != nil {
		return err
	}
	copy(r, res)
	return nil
}

func (c *Conn) String() string {
	return fmt.Sprintf("%s@0x%X", dbusName, c.Address)
}

// MockTxResponses replaces the dbus transport with the given responses,
// returned in order. Once they run out every call errors.
func MockTxResponses(responses []TxResponse) {
	mu.Lock()
	defer mu.Unlock()
	queue := append([]TxResponse(nil), responses...)
	txFn = func(address byte, write []byte, readLen, timeout int) ([]byte, error) {
		mu.Lock()
		defer mu.Unlock()
		if len(queue) == 0 {
			return nil, fmt.Errorf("no mocked response left for 0x%X", address)
		}
		res := queue[0]
		queue = queue[1:]
		return res.Response, res.Err
	}
}

// ResetMock restores the dbus transport.
func ResetMock() {
	mu.Lock()
	txFn = dbusTx
	mu.Unlock()
}
