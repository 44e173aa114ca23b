package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/0xmhha/pns-indexer/types"
)

// ProjectionStore is the gorm-backed projection of registry state
type ProjectionStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

var (
	_ ProjectionWriter = (*ProjectionStore)(nil)
	_ ProjectionReader = (*ProjectionStore)(nil)
)

// NewProjectionStore wraps an opened and migrated database
func NewProjectionStore(db *gorm.DB, logger *zap.Logger) *ProjectionStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProjectionStore{db: db, logger: logger}
}

// InsertRawEvent appends to the audit log, ignoring duplicate (tx hash, log index) keys
func (s *ProjectionStore) InsertRawEvent(ctx context.Context, ev *RawEvent) (bool, error) {
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tx_hash"}, {Name: "log_index"}},
			DoNothing: true,
		}).
		Create(ev)
	if res.Error != nil {
		return false, fmt.Errorf("failed to insert raw event %s/%d: %w", ev.TxHash, ev.LogIndex, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// UpsertDomain creates the row or overwrites it when d is not older than the stored write
func (s *ProjectionStore) UpsertDomain(ctx context.Context, d *Domain) (WriteResult, error) {
	result := Applied
	d.NameKey = NormalizeName(d.Name)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Domain
		err := tx.Where("name_hash = ?", d.NameHash).Take(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(d).Error
		}
		if err != nil {
			return err
		}
		if d.Position().Less(existing.Position()) {
			result = Stale
			return nil
		}
		fields := map[string]interface{}{
			"name":                   d.Name,
			"name_key":               d.NameKey,
			"owner":                  d.Owner,
			"expiration":             d.Expiration,
			"last_updated_block":     d.LastUpdatedBlock,
			"last_updated_tx":        d.LastUpdatedTx,
			"last_updated_tx_index":  d.LastUpdatedTxIndex,
			"last_updated_log_index": d.LastUpdatedLogIndex,
		}
		// a registration carries no resolver; keep the one already set
		if d.Resolver != "" {
			fields["resolver"] = d.Resolver
		}
		return tx.Model(&Domain{}).Where("name_hash = ?", d.NameHash).Updates(fields).Error
	})
	if err != nil {
		return result, fmt.Errorf("failed to upsert domain %s: %w", d.NameHash, err)
	}
	return result, nil
}

// UpdateDomain changes an existing row; it never creates one
func (s *ProjectionStore) UpdateDomain(ctx context.Context, nameHash common.Hash, update DomainUpdate) (WriteResult, error) {
	result := Applied
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Domain
		err := tx.Where("name_hash = ?", nameHash.Hex()).Take(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			result = Missing
			return nil
		}
		if err != nil {
			return err
		}
		if update.Position.Less(existing.Position()) {
			result = Stale
			return nil
		}

		fields := map[string]interface{}{
			"last_updated_block":     update.Position.Block,
			"last_updated_tx":        update.TxHash.Hex(),
			"last_updated_tx_index":  update.Position.TxIndex,
			"last_updated_log_index": update.Position.LogIndex,
		}
		if update.Owner != nil {
			fields["owner"] = update.Owner.Hex()
		}
		if update.Resolver != nil {
			fields["resolver"] = update.Resolver.Hex()
		}
		if update.Expiration != nil {
			fields["expiration"] = *update.Expiration
		}
		return tx.Model(&Domain{}).Where("name_hash = ?", nameHash.Hex()).Updates(fields).Error
	})
	if err != nil {
		return result, fmt.Errorf("failed to update domain %s: %w", nameHash.Hex(), err)
	}
	return result, nil
}

// UpsertText sets a text record unless a later write is stored
func (s *ProjectionStore) UpsertText(ctx context.Context, rec *TextRecord) (WriteResult, error) {
	result := Applied
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing TextRecord
		err := tx.Where("name_hash = ? AND `key` = ?", rec.NameHash, rec.Key).Take(&existing).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err == nil && rec.Position().Less(existing.Position()) {
			result = Stale
			return nil
		}
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "name_hash"}, {Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"value", "last_updated_block", "last_updated_tx",
				"last_updated_tx_index", "last_updated_log_index", "updated_at",
			}),
		}).Create(rec).Error
	})
	if err != nil {
		return result, fmt.Errorf("failed to upsert text record %s/%s: %w", rec.NameHash, rec.Key, err)
	}
	return result, nil
}

// UpsertAddress sets a coin address record unless a later write is stored
func (s *ProjectionStore) UpsertAddress(ctx context.Context, rec *AddressRecord) (WriteResult, error) {
	result := Applied
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing AddressRecord
		err := tx.Where("name_hash = ? AND coin_type = ?", rec.NameHash, rec.CoinType).Take(&existing).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err == nil && rec.Position().Less(existing.Position()) {
			result = Stale
			return nil
		}
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "name_hash"}, {Name: "coin_type"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"address", "last_updated_block", "last_updated_tx",
				"last_updated_tx_index", "last_updated_log_index", "updated_at",
			}),
		}).Create(rec).Error
	})
	if err != nil {
		return result, fmt.Errorf("failed to upsert address record %s/%d: %w", rec.NameHash, rec.CoinType, err)
	}
	return result, nil
}

// GetDomain returns the domain row or ErrNotFound
func (s *ProjectionStore) GetDomain(ctx context.Context, nameHash common.Hash) (*Domain, error) {
	var d Domain
	err := s.db.WithContext(ctx).Where("name_hash = ?", nameHash.Hex()).Take(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get domain %s: %w", nameHash.Hex(), err)
	}
	return &d, nil
}

// GetDomainByName looks a domain up by its plaintext name
func (s *ProjectionStore) GetDomainByName(ctx context.Context, name string) (*Domain, error) {
	var d Domain
	err := s.db.WithContext(ctx).Where("name_key = ?", NormalizeName(name)).Take(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get domain %q: %w", name, err)
	}
	return &d, nil
}

// DomainsByOwner pages through the names currently held by owner
func (s *ProjectionStore) DomainsByOwner(ctx context.Context, owner common.Address, limit, offset int) ([]*Domain, error) {
	domains := make([]*Domain, 0)
	err := s.db.WithContext(ctx).
		Where("owner = ?", owner.Hex()).
		Order("name asc").
		Limit(limit).
		Offset(offset).
		Find(&domains).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list domains of %s: %w", owner.Hex(), err)
	}
	return domains, nil
}

// SearchDomains returns names starting with prefix
func (s *ProjectionStore) SearchDomains(ctx context.Context, prefix string, limit int) ([]*Domain, error) {
	prefix = NormalizeName(prefix)
	escaped := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_").Replace(prefix)

	domains := make([]*Domain, 0)
	err := s.db.WithContext(ctx).
		Where("name_key LIKE ? ESCAPE '!'", escaped+"%").
		Order("name_key asc").
		Limit(limit).
		Find(&domains).Error
	if err != nil {
		return nil, fmt.Errorf("failed to search domains %q: %w", prefix, err)
	}
	return domains, nil
}

// TextRecords returns every text record of a name
func (s *ProjectionStore) TextRecords(ctx context.Context, nameHash common.Hash) ([]*TextRecord, error) {
	records := make([]*TextRecord, 0)
	if err := s.db.WithContext(ctx).Where("name_hash = ?", nameHash.Hex()).Order("`key` asc").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to get text records of %s: %w", nameHash.Hex(), err)
	}
	return records, nil
}

// AddressRecords returns every coin address record of a name
func (s *ProjectionStore) AddressRecords(ctx context.Context, nameHash common.Hash) ([]*AddressRecord, error) {
	records := make([]*AddressRecord, 0)
	if err := s.db.WithContext(ctx).Where("name_hash = ?", nameHash.Hex()).Order("coin_type asc").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to get address records of %s: %w", nameHash.Hex(), err)
	}
	return records, nil
}

// RawEvents returns the most recent audit rows of a name, newest first
func (s *ProjectionStore) RawEvents(ctx context.Context, nameHash common.Hash, limit int) ([]*RawEvent, error) {
	events := make([]*RawEvent, 0)
	err := s.db.WithContext(ctx).
		Where("name_hash = ?", nameHash.Hex()).
		Order("block_number desc, tx_index desc, log_index desc").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get raw events of %s: %w", nameHash.Hex(), err)
	}
	return events, nil
}

// CountRawEvents returns the size of the audit log
func (s *ProjectionStore) CountRawEvents(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&RawEvent{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count raw events: %w", err)
	}
	return count, nil
}

// NormalizeName is the lookup form of a plaintext name
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// EncodeAddressBytes renders resolver address bytes for storage
func EncodeAddressBytes(b []byte) string {
	return hexutil.Encode(b)
}

// NewTextRecord builds the row for a TextChanged event
func NewTextRecord(ev *types.TextChanged) *TextRecord {
	pos := ev.Position()
	return &TextRecord{
		NameHash:            ev.NameHash.Hex(),
		Key:                 ev.Key,
		Value:               ev.Value,
		LastUpdatedBlock:    pos.Block,
		LastUpdatedTx:       ev.TxHash.Hex(),
		LastUpdatedTxIndex:  pos.TxIndex,
		LastUpdatedLogIndex: pos.LogIndex,
	}
}

// NewAddressRecord builds the row for an AddressChanged event
func NewAddressRecord(ev *types.AddressChanged) *AddressRecord {
	pos := ev.Position()
	return &AddressRecord{
		NameHash:            ev.NameHash.Hex(),
		CoinType:            ev.CoinType,
		Address:             EncodeAddressBytes(ev.Address),
		LastUpdatedBlock:    pos.Block,
		LastUpdatedTx:       ev.TxHash.Hex(),
		LastUpdatedTxIndex:  pos.TxIndex,
		LastUpdatedLogIndex: pos.LogIndex,
	}
}
