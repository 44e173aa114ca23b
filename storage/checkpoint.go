package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultCheckpointID names the checkpoint row of a single indexer
const DefaultCheckpointID = "pns-indexer"

// SQLCheckpointStore keeps the checkpoint in the projection database
type SQLCheckpointStore struct {
	db *gorm.DB
	id string
}

var _ CheckpointStore = (*SQLCheckpointStore)(nil)

// NewSQLCheckpointStore uses the row identified by id
func NewSQLCheckpointStore(db *gorm.DB, id string) *SQLCheckpointStore {
	if id == "" {
		id = DefaultCheckpointID
	}
	return &SQLCheckpointStore{db: db, id: id}
}

// GetCheckpoint returns the stored block or ErrNotFound
func (s *SQLCheckpointStore) GetCheckpoint(ctx context.Context) (uint64, error) {
	var cp Checkpoint
	err := s.db.WithContext(ctx).Where("id = ?", s.id).Take(&cp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get checkpoint: %w", err)
	}
	return cp.Block, nil
}

// SetCheckpoint upserts the checkpoint row
func (s *SQLCheckpointStore) SetCheckpoint(ctx context.Context, block uint64) error {
	cp := Checkpoint{ID: s.id, Block: block, UpdatedAt: time.Now()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"block", "updated_at"}),
	}).Create(&cp).Error
	if err != nil {
		return fmt.Errorf("failed to set checkpoint: %w", err)
	}
	return nil
}

// Close is a no-op; the database handle is owned by the caller
func (s *SQLCheckpointStore) Close() error {
	return nil
}

// CheckpointTracker resolves the scan start over a CheckpointStore.
// Reads fail open to the deployment default so a broken store never blocks scanning.
type CheckpointTracker struct {
	store           CheckpointStore
	deploymentBlock uint64
	logger          *zap.Logger
}

// NewCheckpointTracker wraps store with a deployment-block default
func NewCheckpointTracker(store CheckpointStore, deploymentBlock uint64, logger *zap.Logger) *CheckpointTracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CheckpointTracker{
		store:           store,
		deploymentBlock: deploymentBlock,
		logger:          logger,
	}
}

// Default is the checkpoint used before anything has been processed.
// It sits one block before deployment so the deployment block itself is scanned.
func (c *CheckpointTracker) Default() uint64 {
	if c.deploymentBlock == 0 {
		return 0
	}
	return c.deploymentBlock - 1
}

// Get returns the stored checkpoint, or the default when absent or unreadable
func (c *CheckpointTracker) Get(ctx context.Context) uint64 {
	block, err := c.store.GetCheckpoint(ctx)
	if err == nil {
		return block
	}
	if errors.Is(err, ErrNotFound) {
		c.logger.Info("no checkpoint stored, starting from deployment block",
			zap.Uint64("deployment_block", c.deploymentBlock))
		return c.Default()
	}
	c.logger.Warn("failed to read checkpoint, falling back to deployment block",
		zap.Uint64("deployment_block", c.deploymentBlock),
		zap.Error(err))
	return c.Default()
}

// Set durably stores block
func (c *CheckpointTracker) Set(ctx context.Context, block uint64) error {
	return c.store.SetCheckpoint(ctx, block)
}
