package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"cycle-trader-go/infrastructure/logger"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env     string        `yaml:"env"`
	Gateway GatewayConfig `yaml:"gateway"`
	Files   FilesConfig   `yaml:"files"`
	Trading TradingConfig `yaml:"trading"`
	Logger  logger.Config `yaml:"logger"`
}

type GatewayConfig struct {
	APIKey    string `yaml:"apiKey"`
	BaseURL   string `yaml:"baseURL"`
	TimeoutMs int    `yaml:"timeoutMs"`
}

// FilesConfig names the on-disk state: the open-order store, the append-only
// trade history, and the rendered report.
type FilesConfig struct {
	Orders  string `yaml:"orders"`
	History string `yaml:"history"`
	Report  string `yaml:"report"`
}

type TradingConfig struct {
	Quantity        float64   `yaml:"quantity"`        // units bought per opening order
	PriceCeiling    float64   `yaml:"priceCeiling"`    // symbols above this last price are not offered
	DiscountOptions []float64 `yaml:"discountOptions"` // buy discount percents offered to the operator
	RepriceStepPct  float64   `yaml:"repriceStepPct"`  // percent a replacement order moves by
	ScanIntervalSec int       `yaml:"scanIntervalSec"` // daemon scan period
}

// QuantityDec returns the order quantity as a decimal for price math.
func (t TradingConfig) QuantityDec() decimal.Decimal {
	return decimal.NewFromFloat(t.Quantity)
}

// PriceCeilingDec returns the price ceiling as a decimal.
func (t TradingConfig) PriceCeilingDec() decimal.Decimal {
	return decimal.NewFromFloat(t.PriceCeiling)
}

// RepriceStepDec returns the reprice step percent as a decimal.
func (t TradingConfig) RepriceStepDec() decimal.Decimal {
	return decimal.NewFromFloat(t.RepriceStepPct)
}

// Load reads YAML config from path and applies basic validation.
func Load(path string) (AppConfig, error) {
	cfg := defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config then overrides sensitive fields from env vars if present.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv("CT_GATEWAY_API_KEY"); v != "" {
		cfg.Gateway.APIKey = v
	}
	return cfg, Validate(cfg)
}

func defaults() AppConfig {
	return AppConfig{
		Env: "prod",
		Gateway: GatewayConfig{
			BaseURL:   "https://api.ataix.kz",
			TimeoutMs: 20000,
		},
		Files: FilesConfig{
			Orders:  "orders.json",
			History: "history.txt",
			Report:  "report.html",
		},
		Trading: TradingConfig{
			Quantity:        1,
			PriceCeiling:    0.6,
			DiscountOptions: []float64{2, 5, 8},
			RepriceStepPct:  1,
			ScanIntervalSec: 60,
		},
		Logger: logger.DefaultConfig(),
	}
}

// Validate ensures required fields are present.
func Validate(cfg AppConfig) error {
	if cfg.Env == "" {
		return errors.New("env is required")
	}
	if cfg.Gateway.APIKey == "" {
		return errors.New("gateway.apiKey is required (or CT_GATEWAY_API_KEY)")
	}
	if cfg.Gateway.BaseURL == "" {
		return errors.New("gateway.baseURL is required")
	}
	if cfg.Gateway.TimeoutMs < 0 {
		return errors.New("gateway.timeoutMs must be >= 0")
	}
	if cfg.Files.Orders == "" || cfg.Files.History == "" {
		return errors.New("files.orders and files.history are required")
	}
	if cfg.Trading.Quantity <= 0 {
		return fmt.Errorf("trading.quantity must be > 0, got %v", cfg.Trading.Quantity)
	}
	if cfg.Trading.PriceCeiling <= 0 {
		return fmt.Errorf("trading.priceCeiling must be > 0, got %v", cfg.Trading.PriceCeiling)
	}
	if len(cfg.Trading.DiscountOptions) == 0 {
		return errors.New("trading.discountOptions is required")
	}
	for _, d := range cfg.Trading.DiscountOptions {
		if d <= 0 {
			return fmt.Errorf("trading.discountOptions entries must be > 0, got %v", d)
		}
	}
	if cfg.Trading.RepriceStepPct <= 0 {
		return fmt.Errorf("trading.repriceStepPct must be > 0, got %v", cfg.Trading.RepriceStepPct)
	}
	if cfg.Trading.ScanIntervalSec <= 0 {
		return errors.New("trading.scanIntervalSec must be > 0")
	}
	return nil
}
