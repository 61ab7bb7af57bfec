// Package config loads exchange-wide settings from environment variables
// and an optional .env file, in the same override-chain order the
// teacher's own params package uses: ENV > .env file > defaults.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds every knob the wiring binary needs to stand up the core.
type Config struct {
	Market  Market
	Store   Store
	Admin   Admin
	Gateway Gateway
	LogFile string
}

// Market names the single trading pair this core runs and its fee rate.
type Market struct {
	Symbol     string
	BaseAsset  string
	QuoteAsset string
	FeeRate    decimal.Decimal
}

// Store selects the persistence backend and, for Pebble, its data directory.
type Store struct {
	Backend string // "memory" or "pebble"
	Path    string
}

// Admin sets the admin-ID ceiling the admin service gates on.
type Admin struct {
	MaxID int64
}

// Gateway configures the REST/WS demonstrator's listen address.
type Gateway struct {
	Addr string
}

// Default returns the devnet defaults every field falls back to before
// environment overrides are applied.
func Default() Config {
	return Config{
		Market: Market{
			Symbol:     "ALT/USDT",
			BaseAsset:  "ALT",
			QuoteAsset: "USDT",
			FeeRate:    decimal.RequireFromString("0.001"),
		},
		Store: Store{
			Backend: "memory",
			Path:    "./data/spotcore",
		},
		Admin: Admin{
			MaxID: 99,
		},
		Gateway: Gateway{
			Addr: ":8080",
		},
		LogFile: "",
	}
}

// LoadFromEnv loads .env (if present at envPath, or the cwd's .env when
// envPath is empty) and then applies environment variable overrides on
// top of Default().
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("MARKET_SYMBOL"); v != "" {
		cfg.Market.Symbol = v
	}
	if v := os.Getenv("MARKET_BASE_ASSET"); v != "" {
		cfg.Market.BaseAsset = v
	}
	if v := os.Getenv("MARKET_QUOTE_ASSET"); v != "" {
		cfg.Market.QuoteAsset = v
	}
	if v := os.Getenv("FEE_RATE"); v != "" {
		if rate, err := decimal.NewFromString(v); err == nil {
			cfg.Market.FeeRate = rate
		}
	}

	if v := os.Getenv("STORE_BACKEND"); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv("STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}

	if v := os.Getenv("ADMIN_MAX_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Admin.MaxID = id
		}
	}

	if v := os.Getenv("GATEWAY_ADDR"); v != "" {
		cfg.Gateway.Addr = v
	}

	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.LogFile = v
	}

	return cfg
}
