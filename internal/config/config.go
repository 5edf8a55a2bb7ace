package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"PensionSentinel/internal/asset"
	"PensionSentinel/internal/model"
)

// Duration is a time.Duration written as "30s", "5m" in YAML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	d.Duration = v
	return nil
}

// AssetConfig overrides or adds a settlement asset.
type AssetConfig struct {
	Symbol   string `yaml:"symbol"`
	Address  string `yaml:"address"`
	Decimals int32  `yaml:"decimals"`
}

// FundConfig seeds a fund record into a local database.
type FundConfig struct {
	ID                 string `yaml:"id"`
	Name               string `yaml:"name"`
	ContractAddress    string `yaml:"contract_address"`
	ReserveAmount      string `yaml:"reserve_amount"`
	RiskAppetite       string `yaml:"risk_appetite"`
	Stablecoin         string `yaml:"stablecoin"`
	InvestmentDuration string `yaml:"investment_duration"`
}

// Config holds all application configuration.
type Config struct {
	Scheduler struct {
		Schedule   string `yaml:"schedule"`
		Timezone   string `yaml:"timezone"`
		RunOnStart bool   `yaml:"run_on_start"`
	} `yaml:"scheduler"`
	Chain struct {
		RPCURL         string   `yaml:"rpc_url"`
		PrivateKey     string   `yaml:"private_key"`
		CallTimeout    Duration `yaml:"call_timeout"`
		PollInterval   Duration `yaml:"poll_interval"`
		ConfirmTimeout Duration `yaml:"confirm_timeout"`
	} `yaml:"chain"`
	Opportunities struct {
		BaseURL string   `yaml:"base_url"`
		APIKey  string   `yaml:"api_key"`
		Timeout Duration `yaml:"timeout"`
	} `yaml:"opportunities"`
	LLM struct {
		APIKey      string   `yaml:"api_key"`
		BaseURL     string   `yaml:"base_url"`
		Model       string   `yaml:"model"`
		Temperature float32  `yaml:"temperature"`
		Timeout     Duration `yaml:"timeout"`
	} `yaml:"llm"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	API struct {
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"api"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Assets    []AssetConfig `yaml:"assets"`
	SeedFunds []FundConfig  `yaml:"seed_funds"`
	Proxy     string        `yaml:"proxy"`
}

// LoadDotEnv loads KEY=VALUE files into the environment. Missing files
// are ignored and variables already set are kept.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads config from a YAML file, then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"INVESTMENT_JOB_SCHEDULE": &c.Scheduler.Schedule,
		"SCHEDULER_TIMEZONE":      &c.Scheduler.Timezone,
		"SEPOLIA_RPC_URL":         &c.Chain.RPCURL,
		"SIGNER_PRIVATE_KEY":      &c.Chain.PrivateKey,
		"CONTRACTS_API_URL":       &c.Opportunities.BaseURL,
		"CONTRACTS_API_KEY":       &c.Opportunities.APIKey,
		"OPENAI_API_KEY":          &c.LLM.APIKey,
		"OPENAI_BASE_URL":         &c.LLM.BaseURL,
		"OPENAI_MODEL":            &c.LLM.Model,
		"SQLITE_PATH":             &c.Database.SQLitePath,
		"TELEGRAM_BOT_TOKEN":      &c.Telegram.BotToken,
		"TELEGRAM_CHAT_ID":        &c.Telegram.ChatID,
		"API_LISTEN_ADDR":         &c.API.ListenAddr,
		"LOG_LEVEL":               &c.Log.Level,
		"LOG_FORMAT":              &c.Log.Format,
		"HTTPS_PROXY":             &c.Proxy,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	if v := os.Getenv("RUN_ON_START"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("RUN_ON_START: %w", err)
		}
		c.Scheduler.RunOnStart = b
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Scheduler.Schedule == "" {
		c.Scheduler.Schedule = "0 2 * * *"
	}
	if c.Scheduler.Timezone == "" {
		c.Scheduler.Timezone = "America/New_York"
	}
	if c.Chain.CallTimeout.Duration == 0 {
		c.Chain.CallTimeout.Duration = 30 * time.Second
	}
	if c.Chain.PollInterval.Duration == 0 {
		c.Chain.PollInterval.Duration = 3 * time.Second
	}
	if c.Chain.ConfirmTimeout.Duration == 0 {
		c.Chain.ConfirmTimeout.Duration = 5 * time.Minute
	}
	if c.Opportunities.Timeout.Duration == 0 {
		c.Opportunities.Timeout.Duration = 30 * time.Second
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "gpt-4"
	}
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = 0.7
	}
	if c.LLM.Timeout.Duration == 0 {
		c.LLM.Timeout.Duration = 60 * time.Second
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "data/pension_sentinel.db"
	}
	if c.API.ListenAddr == "" {
		c.API.ListenAddr = ":8080"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	if c.Chain.RPCURL == "" {
		return fmt.Errorf("chain.rpc_url is required")
	}
	if c.Opportunities.BaseURL == "" {
		return fmt.Errorf("opportunities.base_url is required")
	}
	if c.Telegram.BotToken != "" && c.Telegram.ChatID == "" {
		return fmt.Errorf("telegram.chat_id is required when telegram.bot_token is set")
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if f := strings.ToLower(c.Log.Format); f != "text" && f != "json" {
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be within [0, 2]")
	}
	for name, d := range map[string]time.Duration{
		"chain.call_timeout":    c.Chain.CallTimeout.Duration,
		"chain.poll_interval":   c.Chain.PollInterval.Duration,
		"chain.confirm_timeout": c.Chain.ConfirmTimeout.Duration,
		"opportunities.timeout": c.Opportunities.Timeout.Duration,
		"llm.timeout":           c.LLM.Timeout.Duration,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	if _, err := c.AssetOverrides(); err != nil {
		return err
	}
	if _, err := c.Funds(); err != nil {
		return err
	}
	return nil
}

// AssetOverrides converts the assets section for asset.NewRegistry.
func (c *Config) AssetOverrides() ([]asset.Asset, error) {
	out := make([]asset.Asset, 0, len(c.Assets))
	for i, a := range c.Assets {
		if !common.IsHexAddress(a.Address) {
			return nil, fmt.Errorf("assets[%d]: invalid address %q", i, a.Address)
		}
		out = append(out, asset.Asset{
			Symbol:   strings.ToUpper(strings.TrimSpace(a.Symbol)),
			Address:  common.HexToAddress(a.Address),
			Decimals: a.Decimals,
		})
	}
	return out, nil
}

// Funds converts the seed_funds section.
func (c *Config) Funds() ([]model.Fund, error) {
	out := make([]model.Fund, 0, len(c.SeedFunds))
	for i, f := range c.SeedFunds {
		if f.ID == "" {
			return nil, fmt.Errorf("seed_funds[%d]: id is required", i)
		}
		fund := model.Fund{
			ID:                 f.ID,
			Name:               f.Name,
			ContractAddress:    f.ContractAddress,
			ReserveAmount:      f.ReserveAmount,
			Stablecoin:         f.Stablecoin,
			InvestmentDuration: f.InvestmentDuration,
		}
		if f.RiskAppetite != "" {
			risk, err := model.ParseRiskLevel(f.RiskAppetite)
			if err != nil {
				return nil, fmt.Errorf("seed_funds[%d]: %w", i, err)
			}
			fund.RiskAppetite = risk
		}
		out = append(out, fund)
	}
	return out, nil
}
