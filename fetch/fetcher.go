package fetch

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/0xmhha/pns-indexer/abi"
)

// Chain defines the RPC operations the fetcher needs
type Chain interface {
	GetLatestBlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]ethtypes.Log, error)
}

// Config holds fetcher configuration
type Config struct {
	// LogChunkSize is the largest block span requested in a single eth_getLogs call
	LogChunkSize uint64

	// MaxRetries is the maximum number of retry attempts for a failed call
	MaxRetries int

	// RetryDelay is the delay between retry attempts
	RetryDelay time.Duration

	// ContractDelay is the pause between two contracts of the same window
	ContractDelay time.Duration

	// RateLimit is the number of RPC calls per second; 0 disables limiting
	RateLimit float64

	// RateBurst is the limiter bucket size
	RateBurst int
}

// DefaultConfig returns the fetcher defaults
func DefaultConfig() *Config {
	return &Config{
		LogChunkSize:  2000,
		MaxRetries:    3,
		RetryDelay:    time.Second,
		ContractDelay: 200 * time.Millisecond,
		RateLimit:     10,
		RateBurst:     5,
	}
}

// Validate validates the fetcher configuration
func (c *Config) Validate() error {
	if c.LogChunkSize == 0 {
		return fmt.Errorf("log chunk size must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("retry delay cannot be negative")
	}
	if c.ContractDelay < 0 {
		return fmt.Errorf("contract delay cannot be negative")
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate limit cannot be negative")
	}
	if c.RateLimit > 0 && c.RateBurst <= 0 {
		return fmt.Errorf("rate burst must be positive when rate limit is set")
	}
	return nil
}

// LogFetcher pulls the logs of monitored contracts for a block window
type LogFetcher struct {
	chain   Chain
	config  *Config
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewLogFetcher creates a new LogFetcher
func NewLogFetcher(chain Chain, config *Config, logger *zap.Logger) (*LogFetcher, error) {
	if chain == nil {
		return nil, fmt.Errorf("chain cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid fetcher config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if config.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RateLimit), config.RateBurst)
	}

	return &LogFetcher{
		chain:   chain,
		config:  config,
		limiter: limiter,
		logger:  logger,
	}, nil
}

// LatestBlock returns the current chain head, retrying transient failures
func (f *LogFetcher) LatestBlock(ctx context.Context) (uint64, error) {
	var lastErr error
	for attempt := 0; attempt <= f.config.MaxRetries; attempt++ {
		if attempt > 0 {
			f.logger.Warn("Retrying head lookup",
				zap.Int("attempt", attempt),
				zap.Error(lastErr))
			if err := sleepContext(ctx, f.config.RetryDelay); err != nil {
				return 0, err
			}
		}

		if err := f.wait(ctx); err != nil {
			return 0, err
		}
		head, err := f.chain.GetLatestBlockNumber(ctx)
		if err == nil {
			return head, nil
		}
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		lastErr = err
	}
	return 0, fmt.Errorf("failed to get chain head after %d attempts: %w", f.config.MaxRetries+1, lastErr)
}

// FetchWindow fetches the logs of every contract for the window.
// Contracts are queried one after another in the given order with the
// configured delay between them; any exhausted retry aborts the window.
func (f *LogFetcher) FetchWindow(ctx context.Context, contracts []abi.Contract, w Window) ([]ethtypes.Log, error) {
	var logs []ethtypes.Log
	for i, c := range contracts {
		if i > 0 && f.config.ContractDelay > 0 {
			if err := sleepContext(ctx, f.config.ContractDelay); err != nil {
				return nil, err
			}
		}

		contractLogs, err := f.FetchContract(ctx, c, w)
		if err != nil {
			return nil, err
		}
		logs = append(logs, contractLogs...)
	}
	return logs, nil
}

// FetchContract fetches one contract's logs for the window, split into
// chunks of at most LogChunkSize blocks and filtered to the role's events
func (f *LogFetcher) FetchContract(ctx context.Context, c abi.Contract, w Window) ([]ethtypes.Log, error) {
	topics := abi.Topics(c.Role)

	var logs []ethtypes.Log
	for _, chunk := range Split(w, f.config.LogChunkSize) {
		q := ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(chunk.From),
			ToBlock:   new(big.Int).SetUint64(chunk.To),
			Addresses: []common.Address{c.Address},
			Topics:    [][]common.Hash{topics},
		}

		chunkLogs, err := f.filterWithRetry(ctx, c, chunk, q)
		if err != nil {
			return nil, err
		}
		logs = append(logs, chunkLogs...)
	}

	logsFetchedTotal.WithLabelValues(string(c.Role)).Add(float64(len(logs)))
	f.logger.Debug("fetched contract logs",
		zap.String("contract", c.Name),
		zap.String("role", string(c.Role)),
		zap.Uint64("from_block", w.From),
		zap.Uint64("to_block", w.To),
		zap.Int("logs", len(logs)))

	return logs, nil
}

func (f *LogFetcher) filterWithRetry(ctx context.Context, c abi.Contract, chunk Window, q ethereum.FilterQuery) ([]ethtypes.Log, error) {
	role := string(c.Role)

	var lastErr error
	for attempt := 0; attempt <= f.config.MaxRetries; attempt++ {
		if attempt > 0 {
			rpcRetriesTotal.WithLabelValues(role).Inc()
			f.logger.Warn("Retrying log fetch",
				zap.String("contract", c.Name),
				zap.Uint64("from_block", chunk.From),
				zap.Uint64("to_block", chunk.To),
				zap.Int("attempt", attempt))
			if err := sleepContext(ctx, f.config.RetryDelay); err != nil {
				return nil, err
			}
		}

		if err := f.wait(ctx); err != nil {
			return nil, err
		}

		start := time.Now()
		logs, err := f.chain.FilterLogs(ctx, q)
		rpcRequestDuration.WithLabelValues(role).Observe(time.Since(start).Seconds())
		if err == nil {
			rpcRequestsTotal.WithLabelValues(role, "success").Inc()
			return logs, nil
		}

		rpcRequestsTotal.WithLabelValues(role, "error").Inc()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		f.logger.Error("Failed to fetch logs",
			zap.String("contract", c.Name),
			zap.Uint64("from_block", chunk.From),
			zap.Uint64("to_block", chunk.To),
			zap.Int("attempt", attempt),
			zap.Error(err))
	}

	return nil, fmt.Errorf("failed to fetch %s logs for blocks %d-%d after %d attempts: %w",
		c.Name, chunk.From, chunk.To, f.config.MaxRetries+1, lastErr)
}

func (f *LogFetcher) wait(ctx context.Context) error {
	start := time.Now()
	if err := f.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	rateLimitWaitSeconds.Observe(time.Since(start).Seconds())
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
