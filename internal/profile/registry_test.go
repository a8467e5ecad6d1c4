package profile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const presetsYAML = `presets:
  classic:
    description: original ladder
    default: true
    take_profit_percentage: 0.30
    trailing_stop_thresholds: [0.06, 0.10, 0.15, 0.20, 0.25]
  tight:
    take_profit_percentage: 0.12
    trailing_stop_thresholds: [0.03, 0.05]
    first_stop_percentage: 0.01
    assets: [btc-usd, eth-usd]
    trade_volumes:
      btc-usd: 0.001
  hold:
    disable_trailing_stop: true
    initial_cash_balance: 1000
`

func writePresets(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "presets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestRegistryLoadsPresets(t *testing.T) {
	reg, err := NewRegistry(writePresets(t, presetsYAML))
	require.NoError(t, err)

	list := reg.List()
	require.Len(t, list, 3)
	assert.Equal(t, []string{"classic", "hold", "tight"}, []string{list[0].Name, list[1].Name, list[2].Name})

	def, ok := reg.Default()
	require.True(t, ok)
	assert.Equal(t, "classic", def.Name)

	tight, ok := reg.Get("tight")
	require.True(t, ok)
	assert.Equal(t, []string{"BTC-USD", "ETH-USD"}, tight.Assets)
	assert.InDelta(t, 0.001, tight.TradeVolumes["BTC-USD"], 1e-12)
	require.NotNil(t, tight.FirstStopPercentage)
	assert.InDelta(t, 0.01, *tight.FirstStopPercentage, 1e-12)
	assert.Equal(t, []float64{0.03, 0.05}, tight.Thresholds())

	hold, _ := reg.Get("hold")
	assert.NotNil(t, hold.Thresholds())
	assert.Empty(t, hold.Thresholds())
	assert.Nil(t, Preset{}.Thresholds())

	_, ok = reg.Get("missing")
	assert.False(t, ok)
}

func TestRegistryRejectsInvalidFiles(t *testing.T) {
	cases := map[string]string{
		"unknown field":   "presets:\n  a:\n    take_profit: 0.3\n",
		"negative tp":     "presets:\n  a:\n    take_profit_percentage: -0.3\n",
		"descending":      "presets:\n  a:\n    trailing_stop_thresholds: [0.2, 0.1]\n",
		"two defaults":    "presets:\n  a:\n    default: true\n  b:\n    default: true\n",
		"zero threshold":  "presets:\n  a:\n    trailing_stop_thresholds: [0, 0.1]\n",
		"string volume":   "presets:\n  a:\n    trade_volumes:\n      BTC-USD: lots\n",
		"disable clashes": "presets:\n  a:\n    disable_trailing_stop: true\n    trailing_stop_thresholds: [0.1]\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewRegistry(writePresets(t, body))
			assert.Error(t, err)
		})
	}
	_, err := NewRegistry("")
	assert.Error(t, err)
}

func TestPresetSchemaValidation(t *testing.T) {
	schema, err := compileSchema(presetSchema)
	require.NoError(t, err)
	reg := &Registry{schema: schema}

	assert.NoError(t, reg.validate("ok", map[string]any{
		"take_profit_percentage":   0.3,
		"trailing_stop_thresholds": []any{0.06, 0.1},
		"trade_volumes":            map[string]any{"BTC-USD": 0.001},
	}))
	err = reg.validate("bad", map[string]any{"initial_cash_balance": -1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "preset bad")
	assert.Error(t, reg.validate("extra", map[string]any{"take_profit": 0.3}))
}

func TestRegistryHotReload(t *testing.T) {
	path := writePresets(t, presetsYAML)
	reg, err := NewRegistry(path)
	require.NoError(t, err)

	changed := make(chan Snapshot, 16)
	reg.Subscribe(func(s Snapshot) { changed <- s })

	require.NoError(t, os.WriteFile(path, []byte("presets:\n  only:\n    take_profit_percentage: 0.5\n"), 0o644))

	// a write may surface as several events; wait for the one with the new content
	deadline := time.After(5 * time.Second)
	for done := false; !done; {
		select {
		case snap := <-changed:
			if _, ok := snap.Presets["only"]; ok {
				assert.Greater(t, snap.Version, int64(1))
				done = true
			}
		case <-deadline:
			t.Fatal("no reload notification")
		}
	}
	_, ok := reg.Get("classic")
	assert.False(t, ok)
}

func TestStaticRegistry(t *testing.T) {
	reg, err := NewStatic(Preset{Name: "x", TakeProfitPercentage: 0.2, Default: true})
	require.NoError(t, err)
	p, ok := reg.Default()
	require.True(t, ok)
	assert.Equal(t, "x", p.Name)

	_, err = NewStatic(Preset{Name: " "})
	assert.Error(t, err)
}
