package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// SymbolOverride holds the strategy constants a deployment wants to tune for
// one symbol without touching the shared environment defaults — e.g. a
// synthetic index that needs a tighter ADX gate than the FX majors. Fields
// left nil keep the global default.
type SymbolOverride struct {
	Symbol               string   `yaml:"symbol"`
	PipValue             *float64 `yaml:"pip_value"`
	DefaultBufferPips    *float64 `yaml:"default_buffer_pips"`
	RewardToRiskRatio    *float64 `yaml:"reward_to_risk_ratio"`
	ATRPeriod            *int     `yaml:"atr_period"`
	ADXThreshold         *float64 `yaml:"adx_threshold"`
	MovingAveragePeriods []int    `yaml:"moving_average_periods"`
}

// overridesFile is the top-level shape of STRATEGY_PARAMS_FILE.
type overridesFile struct {
	Symbols []SymbolOverride `yaml:"symbols"`
}

// LoadSymbolOverrides reads the optional per-symbol strategy tuning file.
// A missing path is not an error — callers treat it as "no overrides".
func LoadSymbolOverrides(path string) ([]SymbolOverride, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file overridesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	return file.Symbols, nil
}
