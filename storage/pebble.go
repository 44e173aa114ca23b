package storage

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"
)

// Config holds pebble checkpoint store configuration
type Config struct {
	// Path to the database directory
	Path string

	// Cache size in MB (default: 8)
	Cache int

	// MaxOpenFiles is the maximum number of open files (default: 64)
	MaxOpenFiles int
}

// DefaultConfig returns a default configuration
func DefaultConfig(path string) *Config {
	return &Config{
		Path:         path,
		Cache:        8,
		MaxOpenFiles: 64,
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Path == "" {
		return errors.New("path cannot be empty")
	}
	if c.Cache < 0 {
		return errors.New("cache size cannot be negative")
	}
	if c.MaxOpenFiles < 0 {
		return errors.New("max open files cannot be negative")
	}
	return nil
}

// PebbleCheckpointStore keeps the checkpoint in an embedded pebble database
type PebbleCheckpointStore struct {
	db     *pebble.DB
	logger *zap.Logger
	closed atomic.Bool
}

var _ CheckpointStore = (*PebbleCheckpointStore)(nil)

// NewPebbleCheckpointStore opens or creates the database at cfg.Path
func NewPebbleCheckpointStore(cfg *Config) (*PebbleCheckpointStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	opts := &pebble.Options{
		Cache:        pebble.NewCache(int64(cfg.Cache) << 20),
		MaxOpenFiles: cfg.MaxOpenFiles,
	}

	db, err := pebble.Open(cfg.Path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &PebbleCheckpointStore{
		db:     db,
		logger: zap.NewNop(),
	}, nil
}

// SetLogger sets the logger for the storage
func (s *PebbleCheckpointStore) SetLogger(logger *zap.Logger) {
	s.logger = logger
}

func (s *PebbleCheckpointStore) ensureNotClosed() error {
	if s.closed.Load() {
		return ErrClosed
	}
	return nil
}

// GetCheckpoint returns the last processed block
func (s *PebbleCheckpointStore) GetCheckpoint(ctx context.Context) (uint64, error) {
	if err := s.ensureNotClosed(); err != nil {
		return 0, err
	}

	value, closer, err := s.db.Get(CheckpointKey())
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("failed to get checkpoint: %w", err)
	}
	defer closer.Close()

	block, err := DecodeUint64(value)
	if err != nil {
		return 0, fmt.Errorf("failed to decode checkpoint: %w", err)
	}

	return block, nil
}

// SetCheckpoint stores the block with a synced write
func (s *PebbleCheckpointStore) SetCheckpoint(ctx context.Context, block uint64) error {
	if err := s.ensureNotClosed(); err != nil {
		return err
	}

	if err := s.db.Set(CheckpointKey(), EncodeUint64(block), pebble.Sync); err != nil {
		return fmt.Errorf("failed to set checkpoint: %w", err)
	}

	s.logger.Debug("checkpoint stored", zap.Uint64("block", block))
	return nil
}

// Close closes the storage and releases resources
func (s *PebbleCheckpointStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}

	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
