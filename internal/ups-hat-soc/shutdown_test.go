package soc

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/TheCacophonyProject/event-reporter/v3/eventclient"
	"github.com/TheCacophonyProject/ups-hat-controller/internal/battery"
	"github.com/TheCacophonyProject/ups-hat-controller/socstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mockCommands(t *testing.T, err error) *[][]string {
	var ran [][]string
	orig := runCommand
	runCommand = func(command []string) ([]byte, error) {
		ran = append(ran, command)
		return nil, err
	}
	t.Cleanup(func() { runCommand = orig })
	return &ran
}

func testHardware(t *testing.T) (*hardware, string) {
	path := filepath.Join(t.TempDir(), "battery_shm")
	store, err := socstore.Open(path, socstore.DefaultPerm)
	require.NoError(t, err)
	store.SetSoC(0.42)
	require.NoError(t, store.Persist())
	return &hardware{store: store}, path
}

func TestFinishShutdown(t *testing.T) {
	ran := mockCommands(t, nil)
	hw, path := testHardware(t)

	require.NoError(t, finish(hw, battery.OutcomeShutdown, nil, nil, false))
	assert.Equal(t, [][]string{{"/sbin/poweroff"}}, *ran)
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	assert.Nil(t, hw.store)
}

func TestFinishShutdownSkipped(t *testing.T) {
	ran := mockCommands(t, nil)
	hw, path := testHardware(t)

	require.NoError(t, finish(hw, battery.OutcomeShutdown, nil, nil, true))
	assert.Empty(t, *ran)
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestFinishPoweroffFails(t *testing.T) {
	mockCommands(t, errors.New("exit status 1"))
	hw, _ := testHardware(t)

	err := finish(hw, battery.OutcomeShutdown, nil, nil, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/sbin/poweroff")
}

func TestFinishStopped(t *testing.T) {
	ran := mockCommands(t, nil)
	hw, path := testHardware(t)

	require.NoError(t, finish(hw, battery.OutcomeStopped, nil, nil, false))
	assert.Empty(t, *ran)
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestFinishFailedKeepsStore(t *testing.T) {
	ran := mockCommands(t, nil)
	hw, path := testHardware(t)
	readErr := errors.New("sensor read failed")

	err := finish(hw, battery.OutcomeFailed, readErr, nil, false)
	require.ErrorIs(t, err, readErr)
	assert.Empty(t, *ran)

	soc, err := socstore.Read(path)
	require.NoError(t, err)
	assert.Equal(t, float32(0.42), soc)
}

func TestEventSink(t *testing.T) {
	var events []eventclient.Event
	addEvent = func(e eventclient.Event) error {
		events = append(events, e)
		return nil
	}
	defer func() { addEvent = eventclient.AddEvent }()

	eventSink{}.Report(battery.EventBatteryLow, map[string]interface{}{"soc": 0.04})
	require.Len(t, events, 1)
	assert.Equal(t, "batteryLow", events[0].Type)
	assert.Equal(t, 0.04, events[0].Details["soc"])
	assert.False(t, events[0].Timestamp.IsZero())

	addEvent = func(e eventclient.Event) error { return errors.New("no event reporter") }
	eventSink{}.Report(battery.EventBatteryDepleted, nil)
}

func TestFinishConfigChangedKeepsStore(t *testing.T) {
	ran := mockCommands(t, nil)
	hw, path := testHardware(t)

	require.NoError(t, finish(hw, battery.OutcomeStopped, context.Canceled, errConfigChanged, false))
	assert.Empty(t, *ran)
	soc, err := socstore.Read(path)
	require.NoError(t, err)
	assert.Equal(t, float32(0.42), soc)
}
