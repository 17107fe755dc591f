// Package config loads the engine's environment-driven settings.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// SymbolTable binds a broker symbol to its candle table name in Store.
type SymbolTable struct {
	Symbol string
	Table  string
}

// Config holds every environment-driven setting the engine reads at startup.
type Config struct {
	BrokerWSURL string
	BrokerAppID string

	StoreDSN string
	Timezone string

	SymbolsToTables []SymbolTable
	Strategies      []string // subset of {Malaysian, MovingAverage}

	// StrategyParamsFile points at an optional YAML file of per-symbol
	// strategy constant overrides (see SymbolOverride); empty means every
	// symbol uses the global defaults below.
	StrategyParamsFile string

	SleepIntervalSeconds   int
	MonitorIntervalSeconds int
	BalanceIntervalSeconds int
	MonitorPollSeconds     int
	MonitorRetrySeconds    int

	DispatchTPMultiplier float64
	DispatchSLOffset     float64
	DispatchMultiplier   float64

	PipValue             float64
	RiskPercentage       float64
	RewardToRiskRatio    float64
	DefaultBufferPips    float64
	HighRiskRatio        float64
	LowRiskRatio         float64
	ATRPeriod            int
	ADXThreshold         float64
	MovingAveragePeriods []int

	CandleFetchRetries           int
	CandleFetchRetryDelaySeconds int
	ShutdownDrainSeconds         int
	BrokerRequestTimeoutSeconds  int
	BrokerConnectTimeoutSeconds  int
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	brokerWSURL := getEnv("BROKER_WS_URL", "")
	if brokerWSURL == "" {
		return nil, fmt.Errorf("config: BROKER_WS_URL is required")
	}
	brokerAppID := getEnv("BROKER_APP_ID", "")
	if brokerAppID == "" {
		return nil, fmt.Errorf("config: BROKER_APP_ID is required")
	}

	symbolsToTables, err := parseSymbolsToTables(getEnv("SYMBOLS_TO_TABLES", ""))
	if err != nil {
		return nil, fmt.Errorf("config: SYMBOLS_TO_TABLES: %w", err)
	}
	if len(symbolsToTables) == 0 {
		return nil, fmt.Errorf("config: SYMBOLS_TO_TABLES is required")
	}

	strategies := splitAndTrim(getEnv("STRATEGIES", "Malaysian,MovingAverage"))
	for _, s := range strategies {
		if s != "Malaysian" && s != "MovingAverage" {
			return nil, fmt.Errorf("config: unknown strategy %q", s)
		}
	}

	periods, err := parseIntList(getEnv("MOVING_AVERAGE_PERIODS", "7,14,89,200"))
	if err != nil {
		return nil, fmt.Errorf("config: MOVING_AVERAGE_PERIODS: %w", err)
	}

	return &Config{
		BrokerWSURL: brokerWSURL,
		BrokerAppID: brokerAppID,

		StoreDSN: getEnv("STORE_DSN", "./data/engine.db"),
		Timezone: getEnv("TIMEZONE", "Africa/Harare"),

		SymbolsToTables:    symbolsToTables,
		Strategies:         strategies,
		StrategyParamsFile: getEnv("STRATEGY_PARAMS_FILE", ""),

		SleepIntervalSeconds:   getEnvInt("SLEEP_INTERVAL_SECONDS", 14400),
		MonitorIntervalSeconds: getEnvInt("MONITOR_INTERVAL_SECONDS", 300),
		BalanceIntervalSeconds: getEnvInt("BALANCE_INTERVAL_SECONDS", 7200),
		MonitorPollSeconds:     getEnvInt("MONITOR_POLL_SECONDS", 2),
		MonitorRetrySeconds:    getEnvInt("MONITOR_RETRY_SECONDS", 5),

		DispatchTPMultiplier: getEnvFloat("DISPATCH_TP_MULTIPLIER", 3.0),
		DispatchSLOffset:     getEnvFloat("DISPATCH_SL_OFFSET", 2.49),
		DispatchMultiplier:   getEnvFloat("DISPATCH_MULTIPLIER", 30),

		PipValue:             getEnvFloat("PIP_VALUE", 0.0001),
		RiskPercentage:       getEnvFloat("RISK_PERCENTAGE", 1),
		RewardToRiskRatio:    getEnvFloat("REWARD_TO_RISK_RATIO", 2),
		DefaultBufferPips:    getEnvFloat("DEFAULT_BUFFER_PIPS", 10),
		HighRiskRatio:        getEnvFloat("HIGH_RISK_RATIO", 3),
		LowRiskRatio:         getEnvFloat("LOW_RISK_RATIO", 2),
		ATRPeriod:            getEnvInt("ATR_PERIOD", 14),
		ADXThreshold:         getEnvFloat("ADX_THRESHOLD", 20),
		MovingAveragePeriods: periods,

		CandleFetchRetries:           getEnvInt("CANDLE_FETCH_RETRIES", 3),
		CandleFetchRetryDelaySeconds: getEnvInt("CANDLE_FETCH_RETRY_DELAY_SECONDS", 2),
		ShutdownDrainSeconds:         getEnvInt("SHUTDOWN_DRAIN_SECONDS", 5),
		BrokerRequestTimeoutSeconds:  getEnvInt("BROKER_REQUEST_TIMEOUT_SECONDS", 10),
		BrokerConnectTimeoutSeconds:  getEnvInt("BROKER_CONNECT_TIMEOUT_SECONDS", 30),
	}, nil
}

// HasStrategy reports whether a named strategy is enabled.
func (c *Config) HasStrategy(name string) bool {
	for _, s := range c.Strategies {
		if s == name {
			return true
		}
	}
	return false
}

func parseSymbolsToTables(raw string) ([]SymbolTable, error) {
	var out []SymbolTable
	for _, pair := range splitAndTrim(raw) {
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("malformed symbol:table pair %q", pair)
		}
		out = append(out, SymbolTable{Symbol: parts[0], Table: parts[1]})
	}
	return out, nil
}

func parseIntList(raw string) ([]int, error) {
	var out []int
	for _, s := range splitAndTrim(raw) {
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q", s)
		}
		out = append(out, n)
	}
	return out, nil
}

func splitAndTrim(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
