package market

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bars.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestReadBarsCSV(t *testing.T) {
	path := writeTempCSV(t, "open_time_ms,open,high,low,close,volume\n"+
		"1748736000000,100.0,101.0,99.0,100.5,12.5\n"+
		"1748736300000,100.5,102.0,100.0,101.5,8.0\n")

	bars, err := ReadBarsCSV(path)
	require.NoError(t, err)
	require.Len(t, bars, 2)

	assert.Equal(t, time.UnixMilli(1748736000000), bars[0].OpenTime)
	assert.InDelta(t, 100.0, bars[0].Open, 1e-9)
	assert.InDelta(t, 101.0, bars[0].High, 1e-9)
	assert.InDelta(t, 99.0, bars[0].Low, 1e-9)
	assert.InDelta(t, 100.5, bars[0].Close, 1e-9)
	assert.InDelta(t, 12.5, bars[0].Volume, 1e-9)
	assert.InDelta(t, 101.5, bars[1].Close, 1e-9)
}

func TestReadBarsCSVHeaderOnly(t *testing.T) {
	path := writeTempCSV(t, "open_time_ms,open,high,low,close,volume\n")
	_, err := ReadBarsCSV(path)
	assert.Error(t, err)
}

func TestReadBarsCSVBadRow(t *testing.T) {
	path := writeTempCSV(t, "open_time_ms,open,high,low,close,volume\n"+
		"not-a-number,100,101,99,100.5,1\n")
	_, err := ReadBarsCSV(path)
	assert.Error(t, err)
}

func TestReadBarsCSVMissingFile(t *testing.T) {
	_, err := ReadBarsCSV(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}
