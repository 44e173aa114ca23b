package constants

import "time"

// API Server Constants
const (
	// DefaultAPIHost is the default admin server host
	DefaultAPIHost = "localhost"

	// DefaultAPIPort is the default admin server port
	DefaultAPIPort = 8080

	// MinPort is the minimum valid port number
	MinPort = 1

	// MaxPort is the maximum valid port number
	MaxPort = 65535

	// DefaultReadTimeout is the default HTTP read timeout
	DefaultReadTimeout = 15 * time.Second

	// DefaultWriteTimeout is the default HTTP write timeout
	DefaultWriteTimeout = 15 * time.Second

	// DefaultIdleTimeout is the default HTTP idle timeout
	DefaultIdleTimeout = 60 * time.Second

	// DefaultShutdownTimeout is the default graceful shutdown timeout
	DefaultShutdownTimeout = 30 * time.Second

	// DefaultMaxHeaderBytes is the default maximum request header size (1 MB)
	DefaultMaxHeaderBytes = 1 << 20

	// DefaultRateLimitPerSecond is the default admin request rate per client IP
	DefaultRateLimitPerSecond = 20

	// DefaultRateLimitBurst is the default admin request burst per client IP
	DefaultRateLimitBurst = 40

	// DefaultRateLimitClients bounds the number of tracked client IPs
	DefaultRateLimitClients = 4096
)

// Indexer Constants
const (
	// DefaultScanInterval is the default time between periodic scans
	DefaultScanInterval = 15 * time.Second

	// DefaultBatchSize is the default number of blocks per window
	DefaultBatchSize = 1000

	// DefaultLogChunkSize is the default block span of one eth_getLogs call
	DefaultLogChunkSize = 2000

	// DefaultMaxRetries is the default maximum number of retries for failed RPC calls
	DefaultMaxRetries = 3

	// DefaultRetryDelay is the default delay between retries
	DefaultRetryDelay = 1 * time.Second

	// DefaultContractDelay is the default pause between per-contract fetches
	DefaultContractDelay = 200 * time.Millisecond

	// DefaultRPCRateLimit is the default eth_getLogs calls per second
	DefaultRPCRateLimit = 10

	// DefaultRPCRateBurst is the default limiter burst
	DefaultRPCRateBurst = 5

	// DefaultRPCTimeout is the default per-call RPC timeout
	DefaultRPCTimeout = 30 * time.Second
)

// Storage Constants
const (
	// DefaultCheckpointPath is the default pebble checkpoint directory
	DefaultCheckpointPath = "./data/checkpoint"

	// DefaultCheckpointCacheMB is the default pebble cache size in MB
	DefaultCheckpointCacheMB = 8

	// DefaultCheckpointMaxOpenFiles is the default pebble open file limit
	DefaultCheckpointMaxOpenFiles = 64

	// DefaultSQLitePath is the default projection database for the sqlite dialect
	DefaultSQLitePath = "./data/pns.db"

	// DefaultMaxIdleConns is the default idle connection pool size
	DefaultMaxIdleConns = 5

	// DefaultMaxOpenConns is the default open connection pool size
	DefaultMaxOpenConns = 20
)

// Cache and Notifier Constants
const (
	// DefaultCacheSize is the default number of entries in the in-process cache
	DefaultCacheSize = 1024

	// DefaultCacheKeyPrefix is the default Redis cache key prefix
	DefaultCacheKeyPrefix = "pns:domain:"

	// DefaultNotifierChannel is the default Redis pub/sub channel
	DefaultNotifierChannel = "pns:domain-changed"

	// DefaultNotifierTopic is the default Kafka topic
	DefaultNotifierTopic = "pns.domain-changed"

	// DefaultNotifierBuffer is the default in-process notification buffer
	DefaultNotifierBuffer = 256
)
