package testutil

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTestLogger(t *testing.T) {
	logger := NewTestLogger(t)
	if logger == nil {
		t.Fatal("NewTestLogger() returned nil")
	}
}

func TestDeterministicHashes(t *testing.T) {
	assert.Equal(t, TxHash(10, 1), TxHash(10, 1))
	assert.NotEqual(t, TxHash(10, 1), TxHash(10, 2))
	assert.NotEqual(t, Addr(1), Addr(2))
	assert.NotEqual(t, common.Address{}, Addr(0))
}

func TestFakeChainFilterLogs(t *testing.T) {
	node := common.HexToHash("0x01")
	chain := NewFakeChain(200)
	chain.AddLogs(
		TextChangedLog(At{Block: 150, TxIndex: 0}, node, "url", "x"),
		NameRegisteredLog(At{Block: 120, TxIndex: 1}, node, "alice", Addr(1), 1000),
		NameRegisteredLog(At{Block: 300, TxIndex: 0}, node, "late", Addr(1), 1000),
	)

	logs, err := chain.FilterLogs(context.Background(), ethereum.FilterQuery{
		FromBlock: big.NewInt(100),
		ToBlock:   big.NewInt(200),
		Addresses: []common.Address{DefaultContracts.Registrar},
	})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, uint64(120), logs[0].BlockNumber)
	assert.Len(t, chain.Queries(), 1)
}

func TestFakeChainFailures(t *testing.T) {
	chain := NewFakeChain(10)
	q := ethereum.FilterQuery{FromBlock: big.NewInt(1), ToBlock: big.NewInt(10)}

	chain.FailNext(1)
	_, err := chain.FilterLogs(context.Background(), q)
	assert.ErrorIs(t, err, ErrInjected)
	_, err = chain.FilterLogs(context.Background(), q)
	assert.NoError(t, err)

	chain.FailBlock(5)
	_, err = chain.FilterLogs(context.Background(), q)
	assert.ErrorIs(t, err, ErrInjected)
	_, err = chain.FilterLogs(context.Background(), ethereum.FilterQuery{FromBlock: big.NewInt(6), ToBlock: big.NewInt(10)})
	assert.NoError(t, err)

	chain.ClearFailures()
	_, err = chain.FilterLogs(context.Background(), q)
	assert.NoError(t, err)
}
