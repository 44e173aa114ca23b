package storage

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/0xmhha/pns-indexer/types"
)

// RawEvent is one decoded log in the append-only audit table
type RawEvent struct {
	ID          uint64  `gorm:"primaryKey;autoIncrement"`
	TxHash      string  `gorm:"NOT NULL;size:66;uniqueIndex:idx_raw_event_tx_log"`
	LogIndex    uint    `gorm:"NOT NULL;uniqueIndex:idx_raw_event_tx_log"`
	EventName   string  `gorm:"NOT NULL;size:32;index:idx_raw_event_name"`
	NameHash    string  `gorm:"NOT NULL;size:66;index:idx_raw_event_name_hash"`
	Name        string  `gorm:"size:255"`
	Owner       string  `gorm:"size:42"`
	Resolver    string  `gorm:"size:42"`
	Expiration  *uint64 `gorm:"default:null"`
	BlockNumber uint64  `gorm:"NOT NULL;index:idx_raw_event_block"`
	BlockHash   string  `gorm:"size:66"`
	TxIndex     uint
	Contract    string `gorm:"size:42"`
	Payload     string `gorm:"type:text"`
	CreatedAt   time.Time
}

func (*RawEvent) TableName() string {
	return "raw_events"
}

// Domain is the current state of one registered name
type Domain struct {
	NameHash            string `gorm:"primaryKey;size:66"`
	Name                string `gorm:"size:255"`
	NameKey             string `gorm:"size:255;index:idx_domain_name_key"`
	Owner               string `gorm:"size:42;index:idx_domain_owner"`
	Resolver            string `gorm:"size:42"`
	Expiration          uint64
	LastUpdatedBlock    uint64 `gorm:"index:idx_domain_block"`
	LastUpdatedTx       string `gorm:"size:66"`
	LastUpdatedTxIndex  uint
	LastUpdatedLogIndex uint
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (*Domain) TableName() string {
	return "domains"
}

// Position returns the chain position of the last write to the row
func (d *Domain) Position() types.Position {
	return types.Position{Block: d.LastUpdatedBlock, TxIndex: d.LastUpdatedTxIndex, LogIndex: d.LastUpdatedLogIndex}
}

// DomainUpdate lists the fields a lifecycle event changes; nil fields are left alone
type DomainUpdate struct {
	Owner      *common.Address
	Resolver   *common.Address
	Expiration *uint64
	Position   types.Position
	TxHash     common.Hash
}

// TextRecord is the latest value of a (name, key) text record
type TextRecord struct {
	NameHash            string `gorm:"primaryKey;size:66"`
	Key                 string `gorm:"primaryKey;size:255"`
	Value               string `gorm:"type:text"`
	LastUpdatedBlock    uint64
	LastUpdatedTx       string `gorm:"size:66"`
	LastUpdatedTxIndex  uint
	LastUpdatedLogIndex uint
	UpdatedAt           time.Time
}

func (*TextRecord) TableName() string {
	return "text_records"
}

// Position returns the chain position of the last write to the row
func (r *TextRecord) Position() types.Position {
	return types.Position{Block: r.LastUpdatedBlock, TxIndex: r.LastUpdatedTxIndex, LogIndex: r.LastUpdatedLogIndex}
}

// AddressRecord is the latest value of a (name, coin type) address record
type AddressRecord struct {
	NameHash            string `gorm:"primaryKey;size:66"`
	CoinType            uint64 `gorm:"primaryKey;autoIncrement:false"`
	Address             string `gorm:"size:255"`
	LastUpdatedBlock    uint64
	LastUpdatedTx       string `gorm:"size:66"`
	LastUpdatedTxIndex  uint
	LastUpdatedLogIndex uint
	UpdatedAt           time.Time
}

func (*AddressRecord) TableName() string {
	return "address_records"
}

// Position returns the chain position of the last write to the row
func (r *AddressRecord) Position() types.Position {
	return types.Position{Block: r.LastUpdatedBlock, TxIndex: r.LastUpdatedTxIndex, LogIndex: r.LastUpdatedLogIndex}
}

// Checkpoint is the SQL-backed checkpoint row
type Checkpoint struct {
	ID        string `gorm:"primaryKey;size:64"`
	Block     uint64
	UpdatedAt time.Time
}

func (*Checkpoint) TableName() string {
	return "indexer_checkpoints"
}
