package soc

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/TheCacophonyProject/ups-hat-controller/internal/battery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSuffix(string(b), "\n"), "\n")
}

func TestDataLogRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "battery_data.csv")

	d, err := OpenDataLog(path, 10)
	require.NoError(t, err)
	require.NoError(t, d.Record(battery.Sample{
		Elapsed: 5005 * time.Millisecond,
		Voltage: 3.9123,
		Current: -0.1234,
		Power:   0.4814,
		SoC:     0.65432,
	}))
	require.NoError(t, d.Close())

	// reopening must not add a second header
	d, err = OpenDataLog(path, 10)
	require.NoError(t, err)
	require.NoError(t, d.Record(battery.Sample{Elapsed: time.Second, Voltage: 4, SoC: 1}))
	require.NoError(t, d.Close())

	assert.Equal(t, []string{
		"Time(s),Voltage(V),Current(A),Power(W),SoC",
		"5.005000,3.912,-0.123,0.481,0.654",
		"1.000000,4.000,0.000,0.000,1.000",
	}, readLines(t, path))
}

func TestKeepLastRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "battery_data.csv")
	lines := []string{dataLogHeader}
	for i := 0; i < 50; i++ {
		lines = append(lines, fmt.Sprintf("%d", i))
	}
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644))

	require.NoError(t, keepLastRecords(path, 5))
	assert.Equal(t, []string{dataLogHeader, "45", "46", "47", "48", "49"}, readLines(t, path))

	// already short enough
	require.NoError(t, keepLastRecords(path, 5))
	assert.Len(t, readLines(t, path), 6)
}

func TestKeepLastRecordsWithoutHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "battery_data.csv")
	require.NoError(t, os.WriteFile(path, []byte("a\nb\nc\n"), 0644))

	require.NoError(t, keepLastRecords(path, 2))
	assert.Equal(t, []string{"b", "c"}, readLines(t, path))
}

func TestKeepLastRecordsMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.csv")
	require.NoError(t, keepLastRecords(path, 2))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
