package storage

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

// Common errors
var (
	// ErrNotFound is returned when a key or row does not exist
	ErrNotFound = errors.New("not found")

	// ErrInvalidData is returned when stored data cannot be decoded
	ErrInvalidData = errors.New("invalid data")

	// ErrClosed is returned when operating on a closed storage
	ErrClosed = errors.New("storage closed")
)

// CheckpointStore persists the highest fully processed block
type CheckpointStore interface {
	// GetCheckpoint returns the stored block or ErrNotFound
	GetCheckpoint(ctx context.Context) (uint64, error)

	// SetCheckpoint durably stores the block before returning
	SetCheckpoint(ctx context.Context, block uint64) error

	Close() error
}

// ProjectionWriter is the write side of the relational projection
type ProjectionWriter interface {
	// InsertRawEvent appends to the audit log; it reports false when
	// (tx hash, log index) was already recorded
	InsertRawEvent(ctx context.Context, ev *RawEvent) (bool, error)

	// UpsertDomain creates or replaces the domain row for a registration
	UpsertDomain(ctx context.Context, d *Domain) (WriteResult, error)

	// UpdateDomain applies fields to an existing domain row only
	UpdateDomain(ctx context.Context, nameHash common.Hash, update DomainUpdate) (WriteResult, error)

	// UpsertText sets the latest value of a text record
	UpsertText(ctx context.Context, rec *TextRecord) (WriteResult, error)

	// UpsertAddress sets the latest value of a coin address record
	UpsertAddress(ctx context.Context, rec *AddressRecord) (WriteResult, error)
}

// ProjectionReader is the query surface over the projection
type ProjectionReader interface {
	GetDomain(ctx context.Context, nameHash common.Hash) (*Domain, error)
	GetDomainByName(ctx context.Context, name string) (*Domain, error)
	DomainsByOwner(ctx context.Context, owner common.Address, limit, offset int) ([]*Domain, error)
	SearchDomains(ctx context.Context, prefix string, limit int) ([]*Domain, error)
	TextRecords(ctx context.Context, nameHash common.Hash) ([]*TextRecord, error)
	AddressRecords(ctx context.Context, nameHash common.Hash) ([]*AddressRecord, error)
	RawEvents(ctx context.Context, nameHash common.Hash, limit int) ([]*RawEvent, error)
	CountRawEvents(ctx context.Context) (int64, error)
}

// WriteResult reports what a projection write did
type WriteResult int

const (
	// Applied means the row was created or changed
	Applied WriteResult = iota

	// Missing means the target row does not exist and nothing was written
	Missing

	// Stale means the stored row is already at a later chain position
	Stale
)

func (r WriteResult) String() string {
	switch r {
	case Applied:
		return "applied"
	case Missing:
		return "missing"
	case Stale:
		return "stale"
	}
	return "unknown"
}
