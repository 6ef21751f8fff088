package main

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/alejandrodnm/edgebot/config"
	"github.com/alejandrodnm/edgebot/internal/application/engine/replay"
	"github.com/alejandrodnm/edgebot/internal/application/gate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorageFor(t *testing.T) {
	tests := []struct {
		path   string
		driver string
	}{
		{"data/state.json", config.DriverJSON},
		{"data/state.db", config.DriverSQLite},
		{"data/STATE.SQLITE", config.DriverSQLite},
		{"state.sqlite3", config.DriverSQLite},
		{"state", config.DriverJSON},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			sc := storageFor(tt.path)
			assert.Equal(t, tt.driver, sc.Driver)
			assert.Equal(t, tt.path, sc.Path)
		})
	}
}

func TestSweepSummary(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	res := &replay.SweepResult{
		Runs:             4,
		TrainSnapshots:   30,
		HoldoutSnapshots: 20,
		Top: []replay.RunResult{
			{RunID: 3, Holdout: gate.Metrics{Trades: 9, Expectancy: 0.4, MaxDrawdown: 1.5}},
			{RunID: 1, Holdout: gate.Metrics{Trades: 7, Expectancy: 0.1, MaxDrawdown: 3}},
		},
	}

	sum, err := sweepSummary(res, now)
	require.NoError(t, err)
	assert.Equal(t, now, sum.CreatedAt)
	assert.Equal(t, 4, sum.Runs)
	require.Len(t, sum.Top, 2)

	assert.Equal(t, 1, sum.Top[0].Rank)
	assert.Equal(t, 3, sum.Top[0].RunID)
	assert.InDelta(t, 0.4, sum.Top[0].HoldoutExpectancy, 1e-12)
	assert.InDelta(t, 1.5, sum.Top[0].HoldoutDrawdown, 1e-12)
	assert.Equal(t, 2, sum.Top[1].Rank)

	var decoded replay.RunResult
	require.NoError(t, json.Unmarshal(sum.Top[1].Data, &decoded))
	assert.Equal(t, 1, decoded.RunID)
	assert.Equal(t, 7, decoded.Holdout.Trades)
}

func TestExitCodeError(t *testing.T) {
	err := error(exitCodeError{code: 1})
	assert.Equal(t, "exit code 1", err.Error())
}
