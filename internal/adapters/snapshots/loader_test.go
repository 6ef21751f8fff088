package snapshots_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alejandrodnm/edgebot/internal/adapters/snapshots"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const line1 = `{"timestamp":"2025-03-01T12:00:00Z","quotes":[{"ticker":"A","yes_price":0.30,"no_price":0.72}],"signals":{"A":{"fair_yes_probability":0.5,"confidence":0.9,"expiry":"2025-03-01T13:00:00Z"}}}`
const line2 = `{"timestamp":"2025-03-01T12:05:00Z","quotes":[{"ticker":"A","yes_price":0.39,"no_price":0.63}]}`

func TestDecodeJSONL(t *testing.T) {
	snaps, err := snapshots.DecodeJSONL(strings.NewReader(line1 + "\n\n" + line2 + "\n"))
	require.NoError(t, err)
	require.Len(t, snaps, 2)

	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, at, snaps[0].Timestamp)
	assert.Equal(t, int64(1), snaps[1].Sequence)

	sig := snaps[0].Signals["A"]
	assert.Equal(t, "A", sig.Ticker, "ticker inherited from map key")
	assert.Equal(t, at, sig.ObservedAt, "observed_at defaults to snapshot time")
	assert.Equal(t, at, snaps[0].Quotes[0].Timestamp)
}

func TestDecodeJSON_Array(t *testing.T) {
	snaps, err := snapshots.DecodeJSON(strings.NewReader("[" + line1 + "," + line2 + "]"))
	require.NoError(t, err)
	assert.Len(t, snaps, 2)
}

func TestDecode_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"not increasing", line2 + "\n" + line1},
		{"duplicate timestamp", line1 + "\n" + line1},
		{"bad quote", `{"timestamp":"2025-03-01T12:00:00Z","quotes":[{"ticker":"A","yes_price":1.2,"no_price":0.72}]}`},
		{"missing timestamp", `{"quotes":[]}`},
		{"bad json", `{"timestamp":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := snapshots.DecodeJSONL(strings.NewReader(tt.input))
			assert.Error(t, err)
		})
	}
}

func TestLoadFile_ByExtension(t *testing.T) {
	dir := t.TempDir()

	jsonl := filepath.Join(dir, "snaps.jsonl")
	require.NoError(t, os.WriteFile(jsonl, []byte(line1+"\n"+line2), 0o644))
	snaps, err := snapshots.LoadFile(jsonl)
	require.NoError(t, err)
	assert.Len(t, snaps, 2)

	arr := filepath.Join(dir, "snaps.json")
	require.NoError(t, os.WriteFile(arr, []byte("["+line1+","+line2+"]"), 0o644))
	snaps, err = snapshots.LoadFile(arr)
	require.NoError(t, err)
	assert.Len(t, snaps, 2)

	// Un .json con JSONL no es un array
	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(line1+"\n"+line2), 0o644))
	_, err = snapshots.LoadFile(bad)
	assert.Error(t, err)

	_, err = snapshots.LoadFile(filepath.Join(dir, "missing.jsonl"))
	assert.Error(t, err)
}
