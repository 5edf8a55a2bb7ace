package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PensionSentinel/internal/model"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "0 2 * * *", cfg.Scheduler.Schedule)
	assert.Equal(t, "America/New_York", cfg.Scheduler.Timezone)
	assert.Equal(t, 30*time.Second, cfg.Opportunities.Timeout.Duration)
	assert.Equal(t, 5*time.Minute, cfg.Chain.ConfirmTimeout.Duration)
	assert.Equal(t, ":8080", cfg.API.ListenAddr)
	assert.Equal(t, "gpt-4", cfg.LLM.Model)
	assert.Empty(t, cfg.Chain.PrivateKey)
}

func TestLoad_YAMLAndEnvOverrides(t *testing.T) {
	path := writeFile(t, "config.yaml", `
scheduler:
  schedule: "0 */6 * * *"
  timezone: UTC
chain:
  rpc_url: https://rpc.example
  confirm_timeout: 90s
opportunities:
  base_url: https://contracts.example/api
  timeout: 10s
llm:
  temperature: 0.2
assets:
  - symbol: dai
    address: "0x00000000000000000000000000000000000000da"
    decimals: 18
seed_funds:
  - id: f1
    name: Johnson
    contract_address: "0x00000000000000000000000000000000000000f1"
    reserve_amount: "100000"
    risk_appetite: low
    stablecoin: USDC
`)
	t.Setenv("SEPOLIA_RPC_URL", "https://sepolia.example")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("RUN_ON_START", "true")
	t.Setenv("SIGNER_PRIVATE_KEY", "0xabc")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "0 */6 * * *", cfg.Scheduler.Schedule)
	assert.Equal(t, "UTC", cfg.Scheduler.Timezone)
	assert.True(t, cfg.Scheduler.RunOnStart)
	assert.Equal(t, "https://sepolia.example", cfg.Chain.RPCURL)
	assert.Equal(t, 90*time.Second, cfg.Chain.ConfirmTimeout.Duration)
	assert.Equal(t, 10*time.Second, cfg.Opportunities.Timeout.Duration)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.InDelta(t, 0.2, cfg.LLM.Temperature, 1e-6)
	assert.NotEmpty(t, cfg.Chain.PrivateKey)

	assets, err := cfg.AssetOverrides()
	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.Equal(t, "DAI", assets[0].Symbol)
	assert.Equal(t, int32(18), assets[0].Decimals)

	funds, err := cfg.Funds()
	require.NoError(t, err)
	require.Len(t, funds, 1)
	assert.Equal(t, model.RiskLow, funds[0].RiskAppetite)
	assert.Equal(t, "100000", funds[0].ReserveAmount)
}

func TestLoad_BadInput(t *testing.T) {
	_, err := Load(writeFile(t, "bad.yaml", "chain:\n  call_timeout: soon\n"))
	assert.Error(t, err)

	t.Setenv("RUN_ON_START", "maybe")
	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		require.NoError(t, err)
		cfg.Chain.RPCURL = "https://rpc.example"
		cfg.Opportunities.BaseURL = "https://contracts.example"
		return cfg
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"rpc url", func(c *Config) { c.Chain.RPCURL = "" }, "chain.rpc_url"},
		{"contracts api", func(c *Config) { c.Opportunities.BaseURL = "" }, "opportunities.base_url"},
		{"chat id", func(c *Config) { c.Telegram.BotToken = "t" }, "telegram.chat_id"},
		{"log level", func(c *Config) { c.Log.Level = "chatty" }, "log.level"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"temperature", func(c *Config) { c.LLM.Temperature = 3 }, "llm.temperature"},
		{"asset address", func(c *Config) { c.Assets = []AssetConfig{{Symbol: "X", Address: "nope"}} }, "assets[0]"},
		{"seed risk", func(c *Config) { c.SeedFunds = []FundConfig{{ID: "f", RiskAppetite: "wild"}} }, "seed_funds[0]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := writeFile(t, ".env", "PENSION_SENTINEL_TEST_VAR=from-file\n")
	t.Setenv("PENSION_SENTINEL_TEST_VAR", "")
	os.Unsetenv("PENSION_SENTINEL_TEST_VAR")

	require.NoError(t, LoadDotEnv(path, filepath.Join(t.TempDir(), "absent.env")))
	assert.Equal(t, "from-file", os.Getenv("PENSION_SENTINEL_TEST_VAR"))
}
