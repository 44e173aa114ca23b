// Package projection applies decoded registry events to the relational
// projection, keeping the raw audit log, the cache and downstream consumers
// in step with each write.
package projection

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/0xmhha/pns-indexer/cache"
	"github.com/0xmhha/pns-indexer/eventbus"
	"github.com/0xmhha/pns-indexer/storage"
	"github.com/0xmhha/pns-indexer/types"
)

// Outcome reports what applying one event did to the projection
type Outcome string

const (
	// OutcomeApplied means a projection row was created or changed
	OutcomeApplied Outcome = "applied"

	// OutcomeSkipped means the event carries nothing to project (mint, blank name)
	OutcomeSkipped Outcome = "skipped"

	// OutcomeMissing means the event targets a name with no projection row
	OutcomeMissing Outcome = "missing"

	// OutcomeStale means the row already reflects a later event
	OutcomeStale Outcome = "stale"
)

func outcomeOf(r storage.WriteResult) Outcome {
	switch r {
	case storage.Missing:
		return OutcomeMissing
	case storage.Stale:
		return OutcomeStale
	}
	return OutcomeApplied
}

// Config holds applier configuration
type Config struct {
	// RootName is the parent domain registrar labels live under, e.g. "pns".
	// When set, registrations are checked against namehash(label.root).
	RootName string
}

// Applier writes events to the projection store in the order given
type Applier struct {
	writer    storage.ProjectionWriter
	cache     cache.Invalidator
	publisher eventbus.Publisher
	rootName  string
	logger    *zap.Logger
	now       func() time.Time
}

// NewApplier creates a new Applier. A nil invalidator or publisher disables that side effect.
func NewApplier(writer storage.ProjectionWriter, invalidator cache.Invalidator, publisher eventbus.Publisher, config *Config, logger *zap.Logger) *Applier {
	if invalidator == nil {
		invalidator = cache.Noop{}
	}
	if publisher == nil {
		publisher = eventbus.Noop{}
	}
	if config == nil {
		config = &Config{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Applier{
		writer:    writer,
		cache:     invalidator,
		publisher: publisher,
		rootName:  storage.NormalizeName(config.RootName),
		logger:    logger,
		now:       time.Now,
	}
}

// ApplyAll applies events in order and returns how many reached the store.
// The first store error aborts the batch.
func (a *Applier) ApplyAll(ctx context.Context, events []types.Event) (int, error) {
	for i, ev := range events {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if _, err := a.Apply(ctx, ev); err != nil {
			return i, err
		}
	}
	return len(events), nil
}

// Apply records ev in the audit log and then mutates the projection
func (a *Applier) Apply(ctx context.Context, ev types.Event) (Outcome, error) {
	h := ev.Base()
	log := a.logger.With(
		zap.String("kind", string(ev.Kind())),
		zap.String("tx_hash", h.TxHash.Hex()),
		zap.Uint64("block", h.BlockNumber),
		zap.Uint("log_index", h.LogIndex))

	inserted, err := a.writer.InsertRawEvent(ctx, newRawEvent(ev))
	if err != nil {
		log.Error("raw event insert failed", zap.Error(err))
		return "", err
	}
	if !inserted {
		rawEventDuplicatesTotal.Inc()
		log.Debug("raw event already recorded")
	}

	var (
		outcome Outcome
		msg     *eventbus.DomainChanged
	)

	switch e := ev.(type) {
	case *types.Registered:
		outcome, msg, err = a.applyRegistered(ctx, e, log)
	case *types.Renewed:
		expiration := e.Expiration
		outcome, err = a.updateDomain(ctx, e.Header, storage.DomainUpdate{Expiration: &expiration})
		msg = &eventbus.DomainChanged{Expiration: e.Expiration}
	case *types.OwnershipTransferred:
		outcome, msg, err = a.applyOwnerChange(ctx, e.Header, e.To, e.Mint, e.Burn)
	case *types.Transferred:
		outcome, msg, err = a.applyOwnerChange(ctx, e.Header, e.To, e.Mint, e.Burn)
	case *types.ResolverUpdated:
		resolver := e.Resolver
		outcome, err = a.updateDomain(ctx, e.Header, storage.DomainUpdate{Resolver: &resolver})
		msg = &eventbus.DomainChanged{Resolver: e.Resolver.Hex()}
	case *types.TextChanged:
		var res storage.WriteResult
		res, err = a.writer.UpsertText(ctx, storage.NewTextRecord(e))
		outcome = outcomeOf(res)
		msg = &eventbus.DomainChanged{Key: e.Key, Value: e.Value}
	case *types.AddressChanged:
		var res storage.WriteResult
		res, err = a.writer.UpsertAddress(ctx, storage.NewAddressRecord(e))
		outcome = outcomeOf(res)
		coinType := e.CoinType
		msg = &eventbus.DomainChanged{CoinType: &coinType, Address: storage.EncodeAddressBytes(e.Address)}
	default:
		log.Warn("no projection handler for event")
		outcome = OutcomeSkipped
	}
	if err != nil {
		log.Error("projection write failed", zap.Error(err))
		return "", fmt.Errorf("failed to apply %s at %s: %w", ev.Kind(), h.Position(), err)
	}

	eventsAppliedTotal.WithLabelValues(string(ev.Kind()), string(outcome)).Inc()

	switch outcome {
	case OutcomeApplied:
		a.afterCommit(ctx, ev, msg, log)
	case OutcomeMissing:
		log.Debug("no domain row for event", zap.String("name_hash", h.NameHash.Hex()))
	case OutcomeStale:
		log.Info("ignored event older than stored row", zap.String("name_hash", h.NameHash.Hex()))
	}
	return outcome, nil
}

func (a *Applier) applyRegistered(ctx context.Context, e *types.Registered, log *zap.Logger) (Outcome, *eventbus.DomainChanged, error) {
	name := storage.NormalizeName(e.Name)
	if name == "" {
		log.Warn("dropping registration with blank name", zap.String("name_hash", e.NameHash.Hex()))
		return OutcomeSkipped, nil, nil
	}

	if a.rootName != "" {
		if expected := types.NameHash(name + "." + a.rootName); expected != e.NameHash {
			nameHashMismatchTotal.Inc()
			log.Warn("registered name does not hash to node",
				zap.String("name", name),
				zap.String("name_hash", e.NameHash.Hex()),
				zap.String("expected", expected.Hex()))
		}
	}

	pos := e.Position()
	res, err := a.writer.UpsertDomain(ctx, &storage.Domain{
		NameHash:            e.NameHash.Hex(),
		Name:                e.Name,
		Owner:               e.Owner.Hex(),
		Expiration:          e.Expiration,
		LastUpdatedBlock:    pos.Block,
		LastUpdatedTx:       e.TxHash.Hex(),
		LastUpdatedTxIndex:  pos.TxIndex,
		LastUpdatedLogIndex: pos.LogIndex,
	})
	if err != nil {
		return "", nil, err
	}
	return outcomeOf(res), &eventbus.DomainChanged{
		Name:       e.Name,
		Owner:      e.Owner.Hex(),
		Expiration: e.Expiration,
	}, nil
}

func (a *Applier) applyOwnerChange(ctx context.Context, h types.Header, to common.Address, mint, burn bool) (Outcome, *eventbus.DomainChanged, error) {
	// registration writes the owner for a freshly minted name
	if mint {
		return OutcomeSkipped, nil, nil
	}
	owner := to
	if burn {
		owner = types.ZeroAddress
	}
	outcome, err := a.updateDomain(ctx, h, storage.DomainUpdate{Owner: &owner})
	return outcome, &eventbus.DomainChanged{Owner: owner.Hex()}, err
}

func (a *Applier) updateDomain(ctx context.Context, h types.Header, update storage.DomainUpdate) (Outcome, error) {
	update.Position = h.Position()
	update.TxHash = h.TxHash
	res, err := a.writer.UpdateDomain(ctx, h.NameHash, update)
	if err != nil {
		return "", err
	}
	return outcomeOf(res), nil
}

// afterCommit runs the side effects of a committed write; their failures are only logged
func (a *Applier) afterCommit(ctx context.Context, ev types.Event, msg *eventbus.DomainChanged, log *zap.Logger) {
	h := ev.Base()

	if err := a.cache.Invalidate(ctx, h.NameHash); err != nil {
		sideEffectFailuresTotal.WithLabelValues("cache").Inc()
		log.Warn("cache invalidation failed", zap.Error(err))
	}

	if msg == nil {
		return
	}
	msg.Kind = ev.Kind()
	msg.NameHash = h.NameHash.Hex()
	msg.BlockNumber = h.BlockNumber
	msg.TxHash = h.TxHash.Hex()
	msg.LogIndex = h.LogIndex
	msg.Timestamp = a.now().UTC()

	if err := a.publisher.Publish(ctx, msg); err != nil {
		sideEffectFailuresTotal.WithLabelValues("notifier").Inc()
		log.Warn("domain change notification failed", zap.Error(err))
	}
}

func newRawEvent(ev types.Event) *storage.RawEvent {
	h := ev.Base()
	rec := &storage.RawEvent{
		TxHash:      h.TxHash.Hex(),
		LogIndex:    h.LogIndex,
		EventName:   string(ev.Kind()),
		NameHash:    h.NameHash.Hex(),
		BlockNumber: h.BlockNumber,
		BlockHash:   h.BlockHash.Hex(),
		TxIndex:     h.TxIndex,
		Contract:    h.Contract.Hex(),
	}

	switch e := ev.(type) {
	case *types.Registered:
		rec.Name = e.Name
		rec.Owner = e.Owner.Hex()
		expiration := e.Expiration
		rec.Expiration = &expiration
	case *types.Renewed:
		expiration := e.Expiration
		rec.Expiration = &expiration
	case *types.OwnershipTransferred:
		rec.Owner = e.To.Hex()
	case *types.Transferred:
		rec.Owner = e.To.Hex()
	case *types.ResolverUpdated:
		rec.Resolver = e.Resolver.Hex()
	}

	if h.Log != nil {
		if payload, err := json.Marshal(h.Log); err == nil {
			rec.Payload = string(payload)
		}
	}
	return rec
}
