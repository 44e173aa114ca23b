// Package indexer drives the scan loop: it plans block windows from the
// checkpoint to the chain head, fetches and decodes contract logs, applies
// them to the projection in chain order and advances the checkpoint.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/0xmhha/pns-indexer/abi"
	"github.com/0xmhha/pns-indexer/fetch"
	"github.com/0xmhha/pns-indexer/types"
)

var (
	// ErrRunning is returned by operations that require a stopped scheduler
	ErrRunning = errors.New("indexer is running")

	// ErrTickInProgress is returned when a scan is already executing
	ErrTickInProgress = errors.New("tick already in progress")
)

// Checkpointer reads and advances the processed-block checkpoint
type Checkpointer interface {
	Get(ctx context.Context) uint64
	Set(ctx context.Context, block uint64) error
}

// LogSource provides the chain head and contract logs per window
type LogSource interface {
	LatestBlock(ctx context.Context) (uint64, error)
	FetchWindow(ctx context.Context, contracts []abi.Contract, w fetch.Window) ([]ethtypes.Log, error)
}

// Decoder maps raw logs to registry events
type Decoder interface {
	Decode(log *ethtypes.Log) (types.Event, error)
	Contracts() []abi.Contract
}

// Applier writes ordered events to the projection
type Applier interface {
	ApplyAll(ctx context.Context, events []types.Event) (int, error)
}

// Config holds scheduler configuration
type Config struct {
	// Interval is the time between periodic scans
	Interval time.Duration

	// BatchSize is the number of blocks per window
	BatchSize uint64

	// MaxBatchesPerTick caps the windows handled by one periodic scan; 0 is unlimited
	MaxBatchesPerTick int
}

// DefaultConfig returns the scheduler defaults
func DefaultConfig() *Config {
	return &Config{
		Interval:  15 * time.Second,
		BatchSize: 1000,
	}
}

// Validate validates the scheduler configuration
func (c *Config) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}
	if c.BatchSize == 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.MaxBatchesPerTick < 0 {
		return fmt.Errorf("max batches per tick cannot be negative")
	}
	return nil
}

// Status is a snapshot of the scheduler state
type Status struct {
	LastProcessedBlock   uint64    `json:"lastProcessedBlock"`
	IsRunning            bool      `json:"isRunning"`
	TotalEventsProcessed uint64    `json:"totalEventsProcessed"`
	TickInProgress       bool      `json:"tickInProgress"`
	LastError            string    `json:"lastError,omitempty"`
	LastTickAt           time.Time `json:"lastTickAt,omitempty"`
}

// Scheduler owns all indexer state. Ticks never overlap and the
// checkpoint is written only after every event of a window is applied.
type Scheduler struct {
	checkpoint Checkpointer
	source     LogSource
	decoder    Decoder
	applier    Applier
	config     *Config
	logger     *zap.Logger

	// mu serialises Start, Stop and Resync
	mu      sync.Mutex
	stopCh  chan struct{}
	doneCh  chan struct{}
	running atomic.Bool
	ticking atomic.Bool

	// cursor is the last checkpoint this scheduler committed. The store is
	// consulted only when cursor is unset or a reload was requested by Start.
	cursor    atomic.Uint64
	cursorSet atomic.Bool
	reload    atomic.Bool

	statusMu sync.RWMutex
	status   Status
}

// NewScheduler creates a stopped scheduler
func NewScheduler(checkpoint Checkpointer, source LogSource, decoder Decoder, applier Applier, config *Config, logger *zap.Logger) (*Scheduler, error) {
	if checkpoint == nil || source == nil || decoder == nil || applier == nil {
		return nil, fmt.Errorf("checkpoint, source, decoder and applier are required")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scheduler config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scheduler{
		checkpoint: checkpoint,
		source:     source,
		decoder:    decoder,
		applier:    applier,
		config:     config,
		logger:     logger,
	}, nil
}

// Start begins periodic scanning with an immediate first scan.
// Calling Start on a running scheduler does nothing.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		s.logger.Debug("indexer already running")
		return
	}

	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.running.Store(true)
	s.reload.Store(true)
	isRunning.Set(1)

	s.logger.Info("Starting indexer",
		zap.Duration("interval", s.config.Interval),
		zap.Uint64("batch_size", s.config.BatchSize),
		zap.Int("max_batches_per_tick", s.config.MaxBatchesPerTick))

	go s.loop(ctx, s.stopCh, s.doneCh)
}

// Stop ends periodic scanning and waits for an in-flight tick to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running.Load() {
		s.mu.Unlock()
		return
	}
	s.running.Store(false)
	isRunning.Set(0)
	close(s.stopCh)
	done := s.doneCh
	s.mu.Unlock()

	<-done
	s.logger.Info("Indexer stopped")
}

// Resync rewinds the checkpoint so that fromBlock is scanned next and
// runs one synchronous scan to the chain head. It is only allowed while stopped.
func (s *Scheduler) Resync(ctx context.Context, fromBlock uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return ErrRunning
	}
	if !s.ticking.CompareAndSwap(false, true) {
		return ErrTickInProgress
	}
	defer s.ticking.Store(false)

	checkpoint := uint64(0)
	if fromBlock > 0 {
		checkpoint = fromBlock - 1
	}

	s.logger.Info("Resyncing",
		zap.Uint64("from_block", fromBlock),
		zap.Uint64("checkpoint", checkpoint))

	if err := s.checkpoint.Set(ctx, checkpoint); err != nil {
		s.recordTick(err)
		return fmt.Errorf("failed to rewind checkpoint to %d: %w", checkpoint, err)
	}
	s.commit(checkpoint)
	checkpointBlock.Set(float64(checkpoint))
	s.setLastProcessed(checkpoint)

	return s.scan(ctx, 0)
}

// RunOnce performs one scan bounded by MaxBatchesPerTick. It returns
// ErrTickInProgress when another scan is executing.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if !s.ticking.CompareAndSwap(false, true) {
		ticksSkippedTotal.Inc()
		return ErrTickInProgress
	}
	defer s.ticking.Store(false)

	return s.scan(ctx, s.config.MaxBatchesPerTick)
}

// Status returns a copy of the current state
func (s *Scheduler) Status() Status {
	s.statusMu.RLock()
	st := s.status
	s.statusMu.RUnlock()

	st.IsRunning = s.running.Load()
	st.TickInProgress = s.ticking.Load()
	return st
}

func (s *Scheduler) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			if s.stopCh == stop {
				s.running.Store(false)
				isRunning.Set(0)
			}
			s.mu.Unlock()
			s.logger.Info("Indexer loop exited", zap.Error(ctx.Err()))
			return
		case <-stop:
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs one periodic scan; errors are logged, never returned
func (s *Scheduler) tick(ctx context.Context) {
	err := s.RunOnce(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrTickInProgress):
		s.logger.Debug("Skipping tick, previous tick still running")
	case errors.Is(err, context.Canceled):
		s.logger.Info("Tick cancelled")
	default:
		s.logger.Error("Tick failed", zap.Error(err))
	}
}

// scan processes windows from the checkpoint to the head; maxWindows 0 means all
func (s *Scheduler) scan(ctx context.Context, maxWindows int) (err error) {
	start := time.Now()
	defer func() {
		tickDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			ticksTotal.WithLabelValues("error").Inc()
		} else {
			ticksTotal.WithLabelValues("success").Inc()
		}
		s.recordTick(err)
	}()

	checkpoint := s.resolveCheckpoint(ctx)
	s.setLastProcessed(checkpoint)
	checkpointBlock.Set(float64(checkpoint))

	head, err := s.source.LatestBlock(ctx)
	if err != nil {
		return fmt.Errorf("failed to get chain head: %w", err)
	}
	chainHeadBlock.Set(float64(head))

	windows := fetch.Plan(checkpoint, head, s.config.BatchSize)
	if len(windows) == 0 {
		s.logger.Debug("Caught up with chain",
			zap.Uint64("checkpoint", checkpoint),
			zap.Uint64("head", head))
		return nil
	}
	if maxWindows > 0 && len(windows) > maxWindows {
		windows = windows[:maxWindows]
	}

	s.logger.Info("Scanning",
		zap.Uint64("from_block", windows[0].From),
		zap.Uint64("to_block", windows[len(windows)-1].To),
		zap.Uint64("head", head),
		zap.Int("windows", len(windows)))

	contracts := s.decoder.Contracts()
	for _, w := range windows {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.processWindow(ctx, contracts, w); err != nil {
			s.logger.Error("Failed to process window",
				zap.Uint64("from_block", w.From),
				zap.Uint64("to_block", w.To),
				zap.Error(err))
			return err
		}
	}
	return nil
}

func (s *Scheduler) processWindow(ctx context.Context, contracts []abi.Contract, w fetch.Window) error {
	logs, err := s.source.FetchWindow(ctx, contracts, w)
	if err != nil {
		return err
	}

	events := s.decodeAll(logs)
	events = fetch.Merge(events)

	applied, err := s.applier.ApplyAll(ctx, events)
	if err != nil {
		return fmt.Errorf("failed to apply window %s after %d events: %w", w, applied, err)
	}

	if err := s.checkpoint.Set(ctx, w.To); err != nil {
		return fmt.Errorf("failed to advance checkpoint to %d: %w", w.To, err)
	}
	s.commit(w.To)

	windowsProcessedTotal.Inc()
	eventsProcessedTotal.Add(float64(applied))
	checkpointBlock.Set(float64(w.To))

	s.statusMu.Lock()
	s.status.LastProcessedBlock = w.To
	s.status.TotalEventsProcessed += uint64(applied)
	s.statusMu.Unlock()

	s.logger.Info("Processed window",
		zap.Uint64("from_block", w.From),
		zap.Uint64("to_block", w.To),
		zap.Int("logs", len(logs)),
		zap.Int("events", applied))
	return nil
}

// resolveCheckpoint returns the block the next window starts after. A stored
// value below the committed cursor is ignored; only Resync moves it backwards.
func (s *Scheduler) resolveCheckpoint(ctx context.Context) uint64 {
	reload := s.reload.Swap(false)
	if s.cursorSet.Load() && !reload {
		return s.cursor.Load()
	}

	stored := s.checkpoint.Get(ctx)
	if s.cursorSet.Load() && stored < s.cursor.Load() {
		s.logger.Warn("Stored checkpoint behind committed block, keeping committed block",
			zap.Uint64("stored", stored),
			zap.Uint64("committed", s.cursor.Load()))
		return s.cursor.Load()
	}
	s.commit(stored)
	return stored
}

func (s *Scheduler) commit(block uint64) {
	s.cursor.Store(block)
	s.cursorSet.Store(true)
}

func (s *Scheduler) decodeAll(logs []ethtypes.Log) []types.Event {
	events := make([]types.Event, 0, len(logs))
	for i := range logs {
		l := &logs[i]
		ev, err := s.decoder.Decode(l)
		if err != nil {
			decodeErrorsTotal.Inc()
			s.logger.Warn("Skipping malformed log",
				zap.String("tx_hash", l.TxHash.Hex()),
				zap.Uint64("block", l.BlockNumber),
				zap.Uint("log_index", l.Index),
				zap.Error(err))
			continue
		}
		if ev == nil {
			s.logger.Debug("Ignoring unrecognised log",
				zap.String("address", l.Address.Hex()),
				zap.String("tx_hash", l.TxHash.Hex()))
			continue
		}
		events = append(events, ev)
	}
	return events
}

func (s *Scheduler) setLastProcessed(block uint64) {
	s.statusMu.Lock()
	s.status.LastProcessedBlock = block
	s.statusMu.Unlock()
}

func (s *Scheduler) recordTick(err error) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	s.status.LastTickAt = time.Now()
	if err != nil {
		s.status.LastError = err.Error()
	} else {
		s.status.LastError = ""
	}
}
