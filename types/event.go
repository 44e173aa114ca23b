package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

// Kind identifies the variant of a decoded registry event
type Kind string

// Event kinds
const (
	KindRegistered           Kind = "Registered"
	KindRenewed              Kind = "Renewed"
	KindOwnershipTransferred Kind = "OwnershipTransferred"
	KindTransferred          Kind = "Transferred"
	KindResolverUpdated      Kind = "ResolverUpdated"
	KindTextChanged          Kind = "TextChanged"
	KindAddressChanged       Kind = "AddressChanged"
)

// ZeroAddress is the mint source and burn destination
var ZeroAddress = common.Address{}

// Header carries the chain metadata shared by every event variant
type Header struct {
	Contract    common.Address
	NameHash    common.Hash
	BlockNumber uint64
	BlockHash   common.Hash
	TxHash      common.Hash
	TxIndex     uint
	LogIndex    uint

	// Log is the raw log the event was decoded from
	Log *ethtypes.Log
}

// Position returns the causal position of the event on chain
func (h Header) Position() Position {
	return Position{Block: h.BlockNumber, TxIndex: h.TxIndex, LogIndex: h.LogIndex}
}

// Event is the closed set of decoded registry events.
// Only types in this package implement it.
type Event interface {
	Kind() Kind
	Base() Header
	sealed()
}

// Registered is emitted when a name is first registered
type Registered struct {
	Header
	Name       string
	Owner      common.Address
	Expiration uint64
}

// Renewed is emitted when a registration is extended
type Renewed struct {
	Header
	Expiration uint64
}

// OwnershipTransferred is emitted by the registry when a node changes owner
type OwnershipTransferred struct {
	Header
	From common.Address
	To   common.Address
	Mint bool
	Burn bool
}

// Transferred is emitted by the token contract when the name token moves
type Transferred struct {
	Header
	From    common.Address
	To      common.Address
	TokenID *big.Int
	Mint    bool
	Burn    bool
}

// ResolverUpdated is emitted when a node points to a new resolver
type ResolverUpdated struct {
	Header
	Resolver common.Address
}

// TextChanged is emitted by the resolver when a text record is set
type TextChanged struct {
	Header
	Key   string
	Value string
}

// AddressChanged is emitted by the resolver when a coin address is set
type AddressChanged struct {
	Header
	CoinType uint64
	Address  []byte
}

func (e *Registered) Kind() Kind           { return KindRegistered }
func (e *Renewed) Kind() Kind              { return KindRenewed }
func (e *OwnershipTransferred) Kind() Kind { return KindOwnershipTransferred }
func (e *Transferred) Kind() Kind          { return KindTransferred }
func (e *ResolverUpdated) Kind() Kind      { return KindResolverUpdated }
func (e *TextChanged) Kind() Kind          { return KindTextChanged }
func (e *AddressChanged) Kind() Kind       { return KindAddressChanged }

func (e *Registered) Base() Header           { return e.Header }
func (e *Renewed) Base() Header              { return e.Header }
func (e *OwnershipTransferred) Base() Header { return e.Header }
func (e *Transferred) Base() Header          { return e.Header }
func (e *ResolverUpdated) Base() Header      { return e.Header }
func (e *TextChanged) Base() Header          { return e.Header }
func (e *AddressChanged) Base() Header       { return e.Header }

func (*Registered) sealed()           {}
func (*Renewed) sealed()              {}
func (*OwnershipTransferred) sealed() {}
func (*Transferred) sealed()          {}
func (*ResolverUpdated) sealed()      {}
func (*TextChanged) sealed()          {}
func (*AddressChanged) sealed()       {}

// IsMint reports whether a transfer originates from the zero address
func IsMint(from common.Address) bool {
	return from == ZeroAddress
}

// IsBurn reports whether a transfer ends at the zero address
func IsBurn(to common.Address) bool {
	return to == ZeroAddress
}
