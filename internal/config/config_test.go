package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/0xmhha/pns-indexer/abi"
)

const (
	registrarAddr = "0x1000000000000000000000000000000000000001"
	registryAddr  = "0x1000000000000000000000000000000000000002"
	resolverAddr  = "0x1000000000000000000000000000000000000004"
)

func validConfig() *Config {
	cfg := &Config{
		RPC: RPCConfig{Endpoint: "http://localhost:8545"},
		Contracts: []ContractConfig{
			{Name: "registrar", Role: "registrar", Address: registrarAddr},
			{Name: "registry", Role: "registry", Address: registryAddr},
		},
	}
	cfg.SetDefaults()
	return cfg
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

// TestNewConfig tests creating a config with defaults
func TestNewConfig(t *testing.T) {
	cfg := NewConfig()
	if cfg == nil {
		t.Fatal("NewConfig() returned nil")
	}

	if cfg.Log.Level != "info" {
		t.Errorf("Expected default log level 'info', got %q", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Expected default log format 'json', got %q", cfg.Log.Format)
	}
	if cfg.Indexer.Interval != 15*time.Second {
		t.Errorf("Expected default interval 15s, got %v", cfg.Indexer.Interval)
	}
	if cfg.Indexer.BatchSize != 1000 {
		t.Errorf("Expected default batch size 1000, got %d", cfg.Indexer.BatchSize)
	}
	if cfg.Indexer.LogChunkSize != 2000 {
		t.Errorf("Expected default log chunk size 2000, got %d", cfg.Indexer.LogChunkSize)
	}
	if cfg.Checkpoint.Backend != "pebble" {
		t.Errorf("Expected default checkpoint backend 'pebble', got %q", cfg.Checkpoint.Backend)
	}
	if cfg.Database.Dialect != "sqlite" || cfg.Database.DSN == "" {
		t.Errorf("Expected sqlite default with a dsn, got %q %q", cfg.Database.Dialect, cfg.Database.DSN)
	}
	if cfg.Notifier.Type != "none" {
		t.Errorf("Expected default notifier 'none', got %q", cfg.Notifier.Type)
	}
	if cfg.Notifier.Kafka.RequiredAcks != -1 {
		t.Errorf("Expected required acks -1, got %d", cfg.Notifier.Kafka.RequiredAcks)
	}
}

// TestConfigValidation tests configuration validation
func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid config", func(c *Config) {}, ""},
		{"missing endpoint", func(c *Config) { c.RPC.Endpoint = "" }, "RPC endpoint is required"},
		{"bad dialect", func(c *Config) { c.Database.Dialect = "postgres" }, "invalid database dialect"},
		{"mysql without dsn", func(c *Config) { c.Database.Dialect = "mysql"; c.Database.DSN = "" }, "dsn is required"},
		{"bad checkpoint backend", func(c *Config) { c.Checkpoint.Backend = "redis" }, "invalid checkpoint backend"},
		{"sql checkpoint", func(c *Config) { c.Checkpoint.Backend = "sql"; c.Checkpoint.Path = "" }, ""},
		{"bad log level", func(c *Config) { c.Log.Level = "trace" }, "invalid log level"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "invalid log format"},
		{"zero batch size", func(c *Config) { c.Indexer.BatchSize = 0 }, "batch size must be positive"},
		{"negative retries", func(c *Config) { c.Indexer.MaxRetries = -1 }, "max retries cannot be negative"},
		{"no contracts", func(c *Config) { c.Contracts = nil }, "at least one contract"},
		{"unknown role", func(c *Config) { c.Contracts[0].Role = "oracle" }, "unknown contract role"},
		{"bad address", func(c *Config) { c.Contracts[0].Address = "0x12" }, "invalid address"},
		{"duplicate address", func(c *Config) { c.Contracts[1].Address = registrarAddr }, "listed twice"},
		{"redis cache without address", func(c *Config) { c.Cache.Backend = "redis" }, "redis cache selected"},
		{"bad cache backend", func(c *Config) { c.Cache.Backend = "memcached" }, "invalid cache backend"},
		{"kafka without brokers", func(c *Config) { c.Notifier.Type = "kafka" }, "no brokers"},
		{"redis notifier without address", func(c *Config) { c.Notifier.Type = "redis" }, "redis notifier selected"},
		{"bad notifier", func(c *Config) { c.Notifier.Type = "nats" }, "invalid notifier type"},
		{"api bad port", func(c *Config) { c.API.Enabled = true; c.API.Port = 70000 }, "api port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want substring %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestMonitoredContracts(t *testing.T) {
	cfg := validConfig()
	cfg.Contracts = append(cfg.Contracts, ContractConfig{Role: "Resolver", Address: resolverAddr})

	contracts, err := cfg.MonitoredContracts()
	if err != nil {
		t.Fatalf("MonitoredContracts() error = %v", err)
	}
	if len(contracts) != 3 {
		t.Fatalf("Expected 3 contracts, got %d", len(contracts))
	}
	if contracts[2].Role != abi.RoleResolver {
		t.Errorf("Expected resolver role, got %q", contracts[2].Role)
	}
	if contracts[2].Name != "resolver" {
		t.Errorf("Expected name to default to the role, got %q", contracts[2].Name)
	}
	if _, err := abi.NewDecoder(contracts); err != nil {
		t.Errorf("NewDecoder() rejected configured contracts: %v", err)
	}
}

// TestLoadFromEnv tests loading configuration from environment variables
func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PNS_RPC_ENDPOINT", "http://env:8545")
	t.Setenv("PNS_RPC_TIMEOUT", "5s")
	t.Setenv("PNS_LOG_LEVEL", "debug")
	t.Setenv("PNS_BATCH_SIZE", "250")
	t.Setenv("PNS_DEPLOYMENT_BLOCK", "12345")
	t.Setenv("PNS_RPC_RATE_LIMIT", "2.5")
	t.Setenv("PNS_AUTO_START", "true")
	t.Setenv("PNS_REGISTRY_ADDRESS", registryAddr)
	t.Setenv("PNS_KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("PNS_ADMIN_KEYS", "a,b")

	cfg := &Config{}
	if err := cfg.LoadFromEnv(); err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}

	if cfg.RPC.Endpoint != "http://env:8545" {
		t.Errorf("Expected endpoint from env, got %q", cfg.RPC.Endpoint)
	}
	if cfg.RPC.Timeout != 5*time.Second {
		t.Errorf("Expected timeout 5s, got %v", cfg.RPC.Timeout)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Expected log level debug, got %q", cfg.Log.Level)
	}
	if cfg.Indexer.BatchSize != 250 {
		t.Errorf("Expected batch size 250, got %d", cfg.Indexer.BatchSize)
	}
	if cfg.Indexer.DeploymentBlock != 12345 {
		t.Errorf("Expected deployment block 12345, got %d", cfg.Indexer.DeploymentBlock)
	}
	if cfg.Indexer.RateLimit != 2.5 {
		t.Errorf("Expected rate limit 2.5, got %v", cfg.Indexer.RateLimit)
	}
	if !cfg.Indexer.AutoStart {
		t.Error("Expected auto start from env")
	}
	if len(cfg.Contracts) != 1 || cfg.Contracts[0].Role != "registry" || cfg.Contracts[0].Address != registryAddr {
		t.Errorf("Expected registry contract from env, got %+v", cfg.Contracts)
	}
	if len(cfg.Notifier.Kafka.Brokers) != 2 || cfg.Notifier.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("Expected two trimmed brokers, got %v", cfg.Notifier.Kafka.Brokers)
	}
	if len(cfg.API.AdminKeys) != 2 {
		t.Errorf("Expected two admin keys, got %v", cfg.API.AdminKeys)
	}
}

func TestLoadFromEnvReplacesContractAddress(t *testing.T) {
	t.Setenv("PNS_REGISTRAR_ADDRESS", resolverAddr)

	cfg := validConfig()
	if err := cfg.LoadFromEnv(); err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if len(cfg.Contracts) != 2 {
		t.Fatalf("Expected contract to be replaced not added, got %d", len(cfg.Contracts))
	}
	if cfg.Contracts[0].Address != resolverAddr {
		t.Errorf("Expected registrar address override, got %q", cfg.Contracts[0].Address)
	}
}

// TestLoadFromEnvInvalid tests error handling for invalid environment values
func TestLoadFromEnvInvalid(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"PNS_RPC_TIMEOUT", "soon"},
		{"PNS_BATCH_SIZE", "-1"},
		{"PNS_MAX_RETRIES", "many"},
		{"PNS_RPC_RATE_LIMIT", "fast"},
		{"PNS_AUTO_START", "maybe"},
		{"PNS_API_PORT", "http"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			cfg := &Config{}
			err := cfg.LoadFromEnv()
			if err == nil {
				t.Fatalf("Expected error for %s=%q", tt.key, tt.value)
			}
			if !strings.Contains(err.Error(), tt.key) {
				t.Errorf("Expected error to name %s, got %q", tt.key, err.Error())
			}
		})
	}
}

// TestConfigPriority tests configuration priority (env > file > defaults)
func TestConfigPriority(t *testing.T) {
	configFile := writeConfig(t, `
rpc:
  endpoint: http://file:8545
  timeout: 10s

log:
  level: warn

indexer:
  batch_size: 500
  deployment_block: 100

contracts:
  - name: registrar
    role: registrar
    address: `+registrarAddr+`
`)

	t.Setenv("PNS_RPC_ENDPOINT", "http://env:8545")

	cfg, err := Load(configFile)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.RPC.Endpoint != "http://env:8545" {
		t.Errorf("Expected RPC endpoint from env, got %q", cfg.RPC.Endpoint)
	}
	if cfg.RPC.Timeout != 10*time.Second {
		t.Errorf("Expected timeout from file, got %v", cfg.RPC.Timeout)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Expected log level from file, got %q", cfg.Log.Level)
	}
	if cfg.Indexer.BatchSize != 500 {
		t.Errorf("Expected batch size from file, got %d", cfg.Indexer.BatchSize)
	}
	if cfg.Indexer.LogChunkSize != 2000 {
		t.Errorf("Expected default log chunk size, got %d", cfg.Indexer.LogChunkSize)
	}
}

func TestLoadOverrides(t *testing.T) {
	configFile := writeConfig(t, `
rpc:
  endpoint: http://file:8545
contracts:
  - role: registry
    address: `+registryAddr+`
`)
	t.Setenv("PNS_BATCH_SIZE", "10")

	cfg, err := Load(configFile, func(c *Config) {
		c.RPC.Endpoint = "http://flag:8545"
		c.Indexer.BatchSize = 20
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RPC.Endpoint != "http://flag:8545" {
		t.Errorf("Expected endpoint from override, got %q", cfg.RPC.Endpoint)
	}
	if cfg.Indexer.BatchSize != 20 {
		t.Errorf("Expected batch size from override, got %d", cfg.Indexer.BatchSize)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}

	bad := writeConfig(t, "rpc: [not a map")
	if _, err := Load(bad); err == nil {
		t.Error("Expected error for malformed YAML")
	}

	noContracts := writeConfig(t, "rpc:\n  endpoint: http://localhost:8545\n")
	if _, err := Load(noContracts); err == nil {
		t.Error("Expected validation error without contracts")
	}
}
