package battery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunDepleted(t *testing.T) {
	sensor := &fakeSensor{power: vals(1.5), voltage: vals(3.25), current: vals(0.05)}
	h := newHarness(sensor, &fakeStore{soc: 0.2})

	outcome, err := h.m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeShutdown, outcome)
	assert.Equal(t, 1, h.alert.alerts)
	assert.Equal(t, []string{EventBatteryDepleted}, h.events.types)
}

func TestRunSensorFailure(t *testing.T) {
	ioErr := errors.New("remote I/O error")
	sensor := &fakeSensor{power: []reading{{err: ioErr}}}
	h := newHarness(sensor, &fakeStore{soc: 0.2})

	outcome, err := h.m.Run(context.Background())
	assert.Equal(t, OutcomeFailed, outcome)
	require.ErrorIs(t, err, ErrSensorRead)
	require.ErrorIs(t, err, ioErr)
	assert.Equal(t, []string{"power"}, sensor.reads)
	assert.Empty(t, h.store.persisted)
}

func TestRunIdlesOnACPower(t *testing.T) {
	sensor := &fakeSensor{power: vals(0.05, 0.05, 2.0), voltage: vals(3.2)}
	h := newHarness(sensor, &fakeStore{soc: 0.2})

	outcome, err := h.m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeShutdown, outcome)
	assert.Equal(t, 2, h.clock.count(DefaultConfig().IdleInterval))
}

func TestRunDischargeToEmpty(t *testing.T) {
	v := voltageFor(0.5)
	sensor := &fakeSensor{
		power:   vals(1.0),
		voltage: vals(v, v, v, v, v, 3.2),
		current: vals(-0.1),
	}
	store := &fakeStore{soc: 0.5}
	h := newHarness(sensor, store)

	outcome, err := h.m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeShutdown, outcome)
	assert.Equal(t, float32(0), store.soc)
	assert.Equal(t, 1, h.events.count(EventBatteryDepleted))
	assert.Equal(t, 1, h.alert.alerts)
}

func TestRunChargeThenDepleted(t *testing.T) {
	sensor := &fakeSensor{
		power:   vals(1.0, 4.5, 4.5, 4.5, 0.5, 1.0),
		voltage: vals(4.0, 3.2),
		current: vals(0.3, -0.05),
	}
	store := &fakeStore{soc: 0.5}
	h := newHarness(sensor, store)

	outcome, err := h.m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeShutdown, outcome)
	assert.Equal(t, float32(0.5), store.soc)
	assert.Equal(t, 1, h.alert.alerts)
}

func TestRunSessionFailureReclassifies(t *testing.T) {
	ioErr := errors.New("remote I/O error")
	sensor := &fakeSensor{
		power:   vals(2.0),
		voltage: []reading{{val: 3.8}, {err: ioErr}},
		current: vals(-0.1),
	}
	h := newHarness(sensor, &fakeStore{soc: 0.5})

	outcome, err := h.m.Run(context.Background())
	assert.Equal(t, OutcomeFailed, outcome)
	require.ErrorIs(t, err, ErrSensorRead)
	assert.Equal(t, 1, h.clock.count(DefaultConfig().IdleInterval))
	assert.Equal(t, []string{"power", "voltage", "current", "voltage", "power", "voltage"}, sensor.reads)
}

func TestRunStopped(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sensor := &fakeSensor{power: vals(0.01)}
	h := newHarness(sensor, &fakeStore{soc: 0.5})

	outcome, err := h.m.Run(ctx)
	assert.Equal(t, OutcomeStopped, outcome)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, sensor.reads)
}

func TestRunStoppedWhileIdle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sensor := &fakeSensor{power: vals(0.01)}
	h := newHarness(sensor, &fakeStore{soc: 0.5})
	h.m.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	outcome, err := h.m.Run(ctx)
	assert.Equal(t, OutcomeStopped, outcome)
	require.ErrorIs(t, err, context.Canceled)
}
