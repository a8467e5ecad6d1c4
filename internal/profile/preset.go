package profile

import (
	"fmt"
	"sort"
	"strings"
)

// Preset is a named bundle of strategy parameters. Zero values inherit the
// configured defaults when a run is resolved.
type Preset struct {
	Name                   string             `yaml:"-" json:"name"`
	Description            string             `yaml:"description" json:"description,omitempty"`
	Default                bool               `yaml:"default" json:"default,omitempty"`
	TakeProfitPercentage   float64            `yaml:"take_profit_percentage" json:"take_profit_percentage,omitempty"`
	TrailingStopThresholds []float64          `yaml:"trailing_stop_thresholds" json:"trailing_stop_thresholds,omitempty"`
	DisableTrailingStop    bool               `yaml:"disable_trailing_stop" json:"disable_trailing_stop,omitempty"`
	FirstStopPercentage    *float64           `yaml:"first_stop_percentage" json:"first_stop_percentage,omitempty"`
	Assets                 []string           `yaml:"assets" json:"assets,omitempty"`
	TradeVolumes           map[string]float64 `yaml:"trade_volumes" json:"trade_volumes,omitempty"`
	InitialCashBalance     float64            `yaml:"initial_cash_balance" json:"initial_cash_balance,omitempty"`
}

// FileConfig maps the presets file.
type FileConfig struct {
	Presets map[string]Preset `yaml:"presets"`
}

// presetSchema guards every preset before it replaces the live set.
const presetSchema = `{
  "type": "object",
  "properties": {
    "description": {"type": "string"},
    "default": {"type": "boolean"},
    "take_profit_percentage": {"type": "number", "exclusiveMinimum": 0},
    "trailing_stop_thresholds": {
      "type": "array",
      "items": {"type": "number", "exclusiveMinimum": 0}
    },
    "disable_trailing_stop": {"type": "boolean"},
    "first_stop_percentage": {"type": "number", "minimum": 0},
    "assets": {"type": "array", "items": {"type": "string", "minLength": 1}, "uniqueItems": true},
    "trade_volumes": {
      "type": "object",
      "additionalProperties": {"type": "number", "exclusiveMinimum": 0}
    },
    "initial_cash_balance": {"type": "number", "minimum": 0}
  },
  "additionalProperties": false
}`

func normalizePreset(name string, p Preset) (Preset, error) {
	p.Name = strings.TrimSpace(name)
	if p.Name == "" {
		return Preset{}, fmt.Errorf("preset with empty name")
	}
	p.Description = strings.TrimSpace(p.Description)
	for i := 1; i < len(p.TrailingStopThresholds); i++ {
		if p.TrailingStopThresholds[i] <= p.TrailingStopThresholds[i-1] {
			return Preset{}, fmt.Errorf("preset %s: trailing_stop_thresholds must be strictly ascending", p.Name)
		}
	}
	if p.DisableTrailingStop && len(p.TrailingStopThresholds) > 0 {
		return Preset{}, fmt.Errorf("preset %s: disable_trailing_stop conflicts with trailing_stop_thresholds", p.Name)
	}
	for i, sym := range p.Assets {
		p.Assets[i] = strings.ToUpper(strings.TrimSpace(sym))
	}
	if len(p.TradeVolumes) > 0 {
		vols := make(map[string]float64, len(p.TradeVolumes))
		for sym, v := range p.TradeVolumes {
			vols[strings.ToUpper(strings.TrimSpace(sym))] = v
		}
		p.TradeVolumes = vols
	}
	return p, nil
}

// Thresholds resolves the ladder override: nil inherits, an empty slice
// disables the trailing stop.
func (p Preset) Thresholds() []float64 {
	if p.DisableTrailingStop {
		return []float64{}
	}
	if len(p.TrailingStopThresholds) == 0 {
		return nil
	}
	return append([]float64(nil), p.TrailingStopThresholds...)
}

func sortedPresets(m map[string]Preset) []Preset {
	out := make([]Preset, 0, len(m))
	for _, p := range m {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
