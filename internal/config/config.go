package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/0xmhha/pns-indexer/abi"
	"github.com/0xmhha/pns-indexer/internal/constants"
)

// Config holds all configuration for the indexer
type Config struct {
	RPC        RPCConfig        `yaml:"rpc"`
	Database   DatabaseConfig   `yaml:"database"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Log        LogConfig        `yaml:"log"`
	Indexer    IndexerConfig    `yaml:"indexer"`
	Contracts  []ContractConfig `yaml:"contracts"`
	Cache      CacheConfig      `yaml:"cache"`
	Notifier   NotifierConfig   `yaml:"notifier"`
	API        APIConfig        `yaml:"api"`
}

// RPCConfig holds RPC client configuration
type RPCConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
}

// DatabaseConfig holds the projection database configuration
type DatabaseConfig struct {
	// Dialect is "sqlite" or "mysql"
	Dialect      string `yaml:"dialect"`
	DSN          string `yaml:"dsn"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// CheckpointConfig selects where the last processed block is kept
type CheckpointConfig struct {
	// Backend is "pebble" or "sql"
	Backend string `yaml:"backend"`
	// Path is the pebble directory
	Path         string `yaml:"path"`
	CacheMB      int    `yaml:"cache_mb"`
	MaxOpenFiles int    `yaml:"max_open_files"`
	// ID names the checkpoint row when the sql backend is used
	ID string `yaml:"id"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// IndexerConfig holds scanning configuration
type IndexerConfig struct {
	Interval          time.Duration `yaml:"interval"`
	BatchSize         uint64        `yaml:"batch_size"`
	LogChunkSize      uint64        `yaml:"log_chunk_size"`
	MaxRetries        int           `yaml:"max_retries"`
	RetryDelay        time.Duration `yaml:"retry_delay"`
	ContractDelay     time.Duration `yaml:"contract_delay"`
	RateLimit         float64       `yaml:"rate_limit"`
	RateBurst         int           `yaml:"rate_burst"`
	DeploymentBlock   uint64        `yaml:"deployment_block"`
	MaxBatchesPerTick int           `yaml:"max_batches_per_tick"`
	// RootName is the TLD registered names live under, e.g. "pns"
	RootName string `yaml:"root_name"`
	// AutoStart starts the periodic scan at boot
	AutoStart bool `yaml:"auto_start"`
}

// ContractConfig is one monitored contract
type ContractConfig struct {
	Name    string `yaml:"name"`
	Role    string `yaml:"role"`
	Address string `yaml:"address"`
}

// CacheConfig holds read-model cache configuration
type CacheConfig struct {
	// Backend is "lru", "redis" or "none"
	Backend   string        `yaml:"backend"`
	Size      int           `yaml:"size"`
	Redis     RedisConfig   `yaml:"redis"`
	KeyPrefix string        `yaml:"key_prefix"`
	TTL       time.Duration `yaml:"ttl"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addresses []string `yaml:"addresses"`
	Password  string   `yaml:"password,omitempty"`
	DB        int      `yaml:"db"`
}

// NotifierConfig holds the post-commit notification sink configuration
type NotifierConfig struct {
	// Type is "none", "local", "redis" or "kafka"
	Type       string      `yaml:"type"`
	BufferSize int         `yaml:"buffer_size"`
	Redis      RedisConfig `yaml:"redis"`
	Channel    string      `yaml:"channel"`
	Kafka      KafkaConfig `yaml:"kafka"`
}

// KafkaConfig holds Kafka producer settings
type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	Compression  string        `yaml:"compression"`
	RequiredAcks int           `yaml:"required_acks"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
}

// APIConfig holds admin server configuration
type APIConfig struct {
	Enabled            bool     `yaml:"enabled"`
	Host               string   `yaml:"host"`
	Port               int      `yaml:"port"`
	AdminKeys          []string `yaml:"admin_keys"`
	EnableRateLimit    bool     `yaml:"enable_rate_limit"`
	RateLimitPerSecond float64  `yaml:"rate_limit_per_second"`
	RateLimitBurst     int      `yaml:"rate_limit_burst"`
}

// NewConfig creates a new configuration with default values
func NewConfig() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults fills every unset value
func (c *Config) SetDefaults() {
	if c.RPC.Timeout == 0 {
		c.RPC.Timeout = constants.DefaultRPCTimeout
	}

	if c.Database.Dialect == "" {
		c.Database.Dialect = "sqlite"
	}
	if c.Database.DSN == "" && c.Database.Dialect == "sqlite" {
		c.Database.DSN = constants.DefaultSQLitePath
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = constants.DefaultMaxIdleConns
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = constants.DefaultMaxOpenConns
	}

	if c.Checkpoint.Backend == "" {
		c.Checkpoint.Backend = "pebble"
	}
	if c.Checkpoint.Path == "" {
		c.Checkpoint.Path = constants.DefaultCheckpointPath
	}
	if c.Checkpoint.CacheMB == 0 {
		c.Checkpoint.CacheMB = constants.DefaultCheckpointCacheMB
	}
	if c.Checkpoint.MaxOpenFiles == 0 {
		c.Checkpoint.MaxOpenFiles = constants.DefaultCheckpointMaxOpenFiles
	}
	if c.Checkpoint.ID == "" {
		c.Checkpoint.ID = "pns"
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}

	if c.Indexer.Interval == 0 {
		c.Indexer.Interval = constants.DefaultScanInterval
	}
	if c.Indexer.BatchSize == 0 {
		c.Indexer.BatchSize = constants.DefaultBatchSize
	}
	if c.Indexer.LogChunkSize == 0 {
		c.Indexer.LogChunkSize = constants.DefaultLogChunkSize
	}
	if c.Indexer.MaxRetries == 0 {
		c.Indexer.MaxRetries = constants.DefaultMaxRetries
	}
	if c.Indexer.RetryDelay == 0 {
		c.Indexer.RetryDelay = constants.DefaultRetryDelay
	}
	if c.Indexer.ContractDelay == 0 {
		c.Indexer.ContractDelay = constants.DefaultContractDelay
	}
	if c.Indexer.RateLimit == 0 {
		c.Indexer.RateLimit = constants.DefaultRPCRateLimit
	}
	if c.Indexer.RateBurst == 0 {
		c.Indexer.RateBurst = constants.DefaultRPCRateBurst
	}
	if c.Indexer.RootName == "" {
		c.Indexer.RootName = "pns"
	}

	if c.Cache.Backend == "" {
		c.Cache.Backend = "lru"
	}
	if c.Cache.Size == 0 {
		c.Cache.Size = constants.DefaultCacheSize
	}
	if c.Cache.KeyPrefix == "" {
		c.Cache.KeyPrefix = constants.DefaultCacheKeyPrefix
	}

	if c.Notifier.Type == "" {
		c.Notifier.Type = "none"
	}
	if c.Notifier.BufferSize == 0 {
		c.Notifier.BufferSize = constants.DefaultNotifierBuffer
	}
	if c.Notifier.Channel == "" {
		c.Notifier.Channel = constants.DefaultNotifierChannel
	}
	if c.Notifier.Kafka.Topic == "" {
		c.Notifier.Kafka.Topic = constants.DefaultNotifierTopic
	}
	if c.Notifier.Kafka.Compression == "" {
		c.Notifier.Kafka.Compression = "snappy"
	}
	if c.Notifier.Kafka.RequiredAcks == 0 {
		c.Notifier.Kafka.RequiredAcks = -1 // All replicas
	}

	if c.API.Host == "" {
		c.API.Host = constants.DefaultAPIHost
	}
	if c.API.Port == 0 {
		c.API.Port = constants.DefaultAPIPort
	}
	if c.API.RateLimitPerSecond == 0 {
		c.API.RateLimitPerSecond = constants.DefaultRateLimitPerSecond
	}
	if c.API.RateLimitBurst == 0 {
		c.API.RateLimitBurst = constants.DefaultRateLimitBurst
	}
}

// roleEnv maps a contract role to the variable overriding its address
var roleEnv = map[abi.Role]string{
	abi.RoleRegistrar: "PNS_REGISTRAR_ADDRESS",
	abi.RoleRegistry:  "PNS_REGISTRY_ADDRESS",
	abi.RoleToken:     "PNS_TOKEN_ADDRESS",
	abi.RoleResolver:  "PNS_RESOLVER_ADDRESS",
}

// LoadFromEnv loads configuration from PNS_* environment variables
func (c *Config) LoadFromEnv() error {
	envString("PNS_RPC_ENDPOINT", &c.RPC.Endpoint)
	if err := envDuration("PNS_RPC_TIMEOUT", &c.RPC.Timeout); err != nil {
		return err
	}

	envString("PNS_DB_DIALECT", &c.Database.Dialect)
	envString("PNS_DB_DSN", &c.Database.DSN)

	envString("PNS_CHECKPOINT_BACKEND", &c.Checkpoint.Backend)
	envString("PNS_CHECKPOINT_PATH", &c.Checkpoint.Path)

	envString("PNS_LOG_LEVEL", &c.Log.Level)
	envString("PNS_LOG_FORMAT", &c.Log.Format)

	if err := envDuration("PNS_SCAN_INTERVAL", &c.Indexer.Interval); err != nil {
		return err
	}
	if err := envUint64("PNS_BATCH_SIZE", &c.Indexer.BatchSize); err != nil {
		return err
	}
	if err := envUint64("PNS_LOG_CHUNK_SIZE", &c.Indexer.LogChunkSize); err != nil {
		return err
	}
	if err := envInt("PNS_MAX_RETRIES", &c.Indexer.MaxRetries); err != nil {
		return err
	}
	if err := envDuration("PNS_RETRY_DELAY", &c.Indexer.RetryDelay); err != nil {
		return err
	}
	if err := envDuration("PNS_CONTRACT_DELAY", &c.Indexer.ContractDelay); err != nil {
		return err
	}
	if v := os.Getenv("PNS_RPC_RATE_LIMIT"); v != "" {
		val, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid PNS_RPC_RATE_LIMIT: %w", err)
		}
		c.Indexer.RateLimit = val
	}
	if err := envUint64("PNS_DEPLOYMENT_BLOCK", &c.Indexer.DeploymentBlock); err != nil {
		return err
	}
	if err := envInt("PNS_MAX_BATCHES_PER_TICK", &c.Indexer.MaxBatchesPerTick); err != nil {
		return err
	}
	envString("PNS_ROOT_NAME", &c.Indexer.RootName)
	if err := envBool("PNS_AUTO_START", &c.Indexer.AutoStart); err != nil {
		return err
	}

	for _, role := range []abi.Role{abi.RoleRegistrar, abi.RoleRegistry, abi.RoleToken, abi.RoleResolver} {
		if addr := os.Getenv(roleEnv[role]); addr != "" {
			c.setContract(role, addr)
		}
	}

	envString("PNS_CACHE_BACKEND", &c.Cache.Backend)
	if err := envInt("PNS_CACHE_SIZE", &c.Cache.Size); err != nil {
		return err
	}
	envList("PNS_CACHE_REDIS_ADDRESSES", &c.Cache.Redis.Addresses)

	envString("PNS_NOTIFIER_TYPE", &c.Notifier.Type)
	envList("PNS_NOTIFIER_REDIS_ADDRESSES", &c.Notifier.Redis.Addresses)
	envString("PNS_NOTIFIER_CHANNEL", &c.Notifier.Channel)
	envList("PNS_KAFKA_BROKERS", &c.Notifier.Kafka.Brokers)
	envString("PNS_KAFKA_TOPIC", &c.Notifier.Kafka.Topic)

	if err := envBool("PNS_API_ENABLED", &c.API.Enabled); err != nil {
		return err
	}
	envString("PNS_API_HOST", &c.API.Host)
	if err := envInt("PNS_API_PORT", &c.API.Port); err != nil {
		return err
	}
	envList("PNS_ADMIN_KEYS", &c.API.AdminKeys)

	return nil
}

// setContract replaces the address of the contract playing role, or adds one
func (c *Config) setContract(role abi.Role, address string) {
	for i := range c.Contracts {
		if r, err := abi.ParseRole(c.Contracts[i].Role); err == nil && r == role {
			c.Contracts[i].Address = address
			return
		}
	}
	c.Contracts = append(c.Contracts, ContractConfig{
		Name:    string(role),
		Role:    string(role),
		Address: address,
	})
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envList(key string, dst *[]string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	items := make([]string, 0)
	for _, item := range strings.Split(v, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			items = append(items, item)
		}
	}
	*dst = items
}

func envDuration(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func envUint64(key string, dst *uint64) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func envBool(key string, dst *bool) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = b
	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.RPC.Endpoint == "" {
		return fmt.Errorf("RPC endpoint is required")
	}
	if c.RPC.Timeout <= 0 {
		return fmt.Errorf("RPC timeout must be positive")
	}

	switch c.Database.Dialect {
	case "sqlite", "mysql":
	default:
		return fmt.Errorf("invalid database dialect %q, must be one of: sqlite, mysql", c.Database.Dialect)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database dsn is required")
	}

	switch c.Checkpoint.Backend {
	case "pebble":
		if c.Checkpoint.Path == "" {
			return fmt.Errorf("checkpoint path is required for the pebble backend")
		}
	case "sql":
	default:
		return fmt.Errorf("invalid checkpoint backend %q, must be one of: pebble, sql", c.Checkpoint.Backend)
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level %q, must be one of: debug, info, warn, error", c.Log.Level)
	}
	validLogFormats := map[string]bool{
		"json":    true,
		"console": true,
	}
	if !validLogFormats[c.Log.Format] {
		return fmt.Errorf("invalid log format %q, must be one of: json, console", c.Log.Format)
	}

	if c.Indexer.Interval <= 0 {
		return fmt.Errorf("scan interval must be positive")
	}
	if c.Indexer.BatchSize == 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.Indexer.LogChunkSize == 0 {
		return fmt.Errorf("log chunk size must be positive")
	}
	if c.Indexer.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.Indexer.RateLimit < 0 {
		return fmt.Errorf("rate limit cannot be negative")
	}
	if c.Indexer.MaxBatchesPerTick < 0 {
		return fmt.Errorf("max batches per tick cannot be negative")
	}

	if _, err := c.MonitoredContracts(); err != nil {
		return err
	}

	switch c.Cache.Backend {
	case "lru":
		if c.Cache.Size <= 0 {
			return fmt.Errorf("cache size must be positive")
		}
	case "redis":
		if len(c.Cache.Redis.Addresses) == 0 {
			return fmt.Errorf("redis cache selected but no addresses configured")
		}
	case "none":
	default:
		return fmt.Errorf("invalid cache backend %q, must be one of: lru, redis, none", c.Cache.Backend)
	}

	switch c.Notifier.Type {
	case "none", "local":
	case "redis":
		if len(c.Notifier.Redis.Addresses) == 0 {
			return fmt.Errorf("redis notifier selected but no addresses configured")
		}
	case "kafka":
		if len(c.Notifier.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka notifier selected but no brokers configured")
		}
		if c.Notifier.Kafka.Topic == "" {
			return fmt.Errorf("kafka topic is required when kafka is enabled")
		}
	default:
		return fmt.Errorf("invalid notifier type %q, must be one of: none, local, redis, kafka", c.Notifier.Type)
	}

	if c.API.Enabled && (c.API.Port < constants.MinPort || c.API.Port > constants.MaxPort) {
		return fmt.Errorf("api port must be between %d and %d", constants.MinPort, constants.MaxPort)
	}

	return nil
}

// MonitoredContracts converts the contracts section into decoder input
func (c *Config) MonitoredContracts() ([]abi.Contract, error) {
	if len(c.Contracts) == 0 {
		return nil, fmt.Errorf("at least one contract must be configured")
	}
	out := make([]abi.Contract, 0, len(c.Contracts))
	seen := make(map[common.Address]bool, len(c.Contracts))
	for i, cc := range c.Contracts {
		role, err := abi.ParseRole(cc.Role)
		if err != nil {
			return nil, fmt.Errorf("contract %d: %w", i, err)
		}
		if !common.IsHexAddress(cc.Address) {
			return nil, fmt.Errorf("contract %d: invalid address %q", i, cc.Address)
		}
		addr := common.HexToAddress(cc.Address)
		if seen[addr] {
			return nil, fmt.Errorf("contract %d: address %s listed twice", i, addr.Hex())
		}
		seen[addr] = true

		name := cc.Name
		if name == "" {
			name = string(role)
		}
		out = append(out, abi.Contract{Name: name, Address: addr, Role: role})
	}
	return out, nil
}

// Load loads configuration from file and environment variables, then
// applies overrides such as command-line flags.
// Priority: overrides > env > file > defaults
func Load(configFile string, overrides ...func(*Config)) (*Config, error) {
	cfg := &Config{}

	if configFile != "" {
		if err := cfg.LoadFromFile(configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	for _, override := range overrides {
		override(cfg)
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
