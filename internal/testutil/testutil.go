package testutil

import (
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/0xmhha/pns-indexer/abi"
)

// NewTestLogger creates a logger that writes through the test's log
func NewTestLogger(t *testing.T) *zap.Logger {
	t.Helper()
	return zaptest.NewLogger(t, zaptest.Level(zap.WarnLevel))
}

// Contracts holds one address per monitored role
type Contracts struct {
	Registrar common.Address
	Registry  common.Address
	Token     common.Address
	Resolver  common.Address
}

// DefaultContracts is the contract set used across package tests
var DefaultContracts = Contracts{
	Registrar: common.HexToAddress("0x00000000000000000000000000000000000000a1"),
	Registry:  common.HexToAddress("0x00000000000000000000000000000000000000a2"),
	Token:     common.HexToAddress("0x00000000000000000000000000000000000000a3"),
	Resolver:  common.HexToAddress("0x00000000000000000000000000000000000000a4"),
}

// List returns the set in the form the decoder and fetcher consume
func (c Contracts) List() []abi.Contract {
	return []abi.Contract{
		{Name: "resolver", Address: c.Resolver, Role: abi.RoleResolver},
		{Name: "token", Address: c.Token, Role: abi.RoleToken},
		{Name: "registry", Address: c.Registry, Role: abi.RoleRegistry},
		{Name: "registrar", Address: c.Registrar, Role: abi.RoleRegistrar},
	}
}

// Addr returns a deterministic address for test actors
func Addr(n int) common.Address {
	return common.BigToAddress(big.NewInt(int64(0x1000 + n)))
}

// TxHash returns a deterministic transaction hash for a (block, txIndex) pair
func TxHash(block uint64, txIndex uint) common.Hash {
	return crypto.Keccak256Hash([]byte(fmt.Sprintf("tx-%d-%d", block, txIndex)))
}

// BlockHash returns a deterministic block hash
func BlockHash(block uint64) common.Hash {
	return crypto.Keccak256Hash([]byte(fmt.Sprintf("block-%d", block)))
}
