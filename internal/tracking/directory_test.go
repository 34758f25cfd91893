package tracking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectory_RegisterAndLookup(t *testing.T) {
	directory := NewDirectory()

	eth := newSimulatedTracker(t, func(cfg *Config) {
		cfg.Symbol = "ETHUSDT"
		cfg.Directory = directory
	})
	btc := newSimulatedTracker(t, func(cfg *Config) {
		cfg.Symbol = "BTCUSDT"
		cfg.Directory = directory
	})

	got, ok := directory.Lookup("ETHUSDT")
	require.True(t, ok)
	assert.Same(t, eth.tracker, got)

	got, ok = directory.Lookup("BTCUSDT")
	require.True(t, ok)
	assert.Same(t, btc.tracker, got)

	_, ok = directory.Lookup("XRPUSDT")
	assert.False(t, ok)

	assert.ElementsMatch(t, []string{"ETHUSDT", "BTCUSDT"}, directory.Symbols())
}

func TestDirectory_RegisterReplacesSameSymbol(t *testing.T) {
	directory := NewDirectory()

	newSimulatedTracker(t, func(cfg *Config) {
		cfg.Symbol = "ETHUSDT"
		cfg.Directory = directory
	})
	second := newSimulatedTracker(t, func(cfg *Config) {
		cfg.Symbol = "ETHUSDT"
		cfg.Directory = directory
	})

	got, ok := directory.Lookup("ETHUSDT")
	require.True(t, ok)
	assert.Same(t, second.tracker, got)
	assert.Len(t, directory.Symbols(), 1)
}

func TestDirectory_ForEachVisitsAll(t *testing.T) {
	directory := NewDirectory()
	for _, symbol := range []string{"ETHUSDT", "BTCUSDT", "ADAUSDT"} {
		s := symbol
		newSimulatedTracker(t, func(cfg *Config) {
			cfg.Symbol = s
			cfg.Directory = directory
		})
	}

	var visited []string
	directory.ForEach(func(tr *OrderTracker) {
		visited = append(visited, tr.Symbol())
		// Callbacks may call back into the directory.
		_, ok := directory.Lookup(tr.Symbol())
		assert.True(t, ok)
	})
	assert.ElementsMatch(t, []string{"ETHUSDT", "BTCUSDT", "ADAUSDT"}, visited)
}
