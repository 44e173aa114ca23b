package fetch_test

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/pns-indexer/abi"
	"github.com/0xmhha/pns-indexer/fetch"
	"github.com/0xmhha/pns-indexer/internal/testutil"
	"github.com/0xmhha/pns-indexer/types"
)

func testConfig() *fetch.Config {
	return &fetch.Config{
		LogChunkSize: 10,
		MaxRetries:   3,
	}
}

func orderedContracts(t *testing.T) []abi.Contract {
	t.Helper()
	dec, err := abi.NewDecoder(testutil.DefaultContracts.List())
	require.NoError(t, err)
	return dec.Contracts()
}

func newTestFetcher(t *testing.T, chain fetch.Chain, cfg *fetch.Config) *fetch.LogFetcher {
	t.Helper()
	f, err := fetch.NewLogFetcher(chain, cfg, testutil.NewTestLogger(t))
	require.NoError(t, err)
	return f
}

func TestPlan(t *testing.T) {
	tests := []struct {
		name       string
		checkpoint uint64
		head       uint64
		batch      uint64
		want       []fetch.Window
	}{
		{name: "caught up", checkpoint: 100, head: 100, batch: 10, want: nil},
		{name: "ahead of head", checkpoint: 120, head: 100, batch: 10, want: nil},
		{name: "single block", checkpoint: 99, head: 100, batch: 10, want: []fetch.Window{{From: 100, To: 100}}},
		{
			name: "several windows", checkpoint: 0, head: 25, batch: 10,
			want: []fetch.Window{{From: 1, To: 10}, {From: 11, To: 20}, {From: 21, To: 25}},
		},
		{
			name: "exact multiple", checkpoint: 10, head: 30, batch: 10,
			want: []fetch.Window{{From: 11, To: 20}, {From: 21, To: 30}},
		},
		{
			name: "zero batch size", checkpoint: 5, head: 7, batch: 0,
			want: []fetch.Window{{From: 6, To: 6}, {From: 7, To: 7}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, fetch.Plan(tt.checkpoint, tt.head, tt.batch))
		})
	}
}

func TestPlanCoversRangeWithoutGaps(t *testing.T) {
	windows := fetch.Plan(1000, 5321, 250)
	require.NotEmpty(t, windows)

	next := uint64(1001)
	for _, w := range windows {
		assert.Equal(t, next, w.From)
		assert.LessOrEqual(t, w.Size(), uint64(250))
		next = w.To + 1
	}
	assert.Equal(t, uint64(5322), next)
}

func TestSplitNearMaxUint64(t *testing.T) {
	top := ^uint64(0)
	windows := fetch.Split(fetch.Window{From: top - 4, To: top}, 2)
	assert.Equal(t, []fetch.Window{
		{From: top - 4, To: top - 3},
		{From: top - 2, To: top - 1},
		{From: top, To: top},
	}, windows)

	assert.Nil(t, fetch.Split(fetch.Window{From: 5, To: 4}, 2))
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, fetch.DefaultConfig().Validate())

	tests := []struct {
		name   string
		mutate func(c *fetch.Config)
	}{
		{"zero chunk", func(c *fetch.Config) { c.LogChunkSize = 0 }},
		{"negative retries", func(c *fetch.Config) { c.MaxRetries = -1 }},
		{"negative retry delay", func(c *fetch.Config) { c.RetryDelay = -1 }},
		{"negative contract delay", func(c *fetch.Config) { c.ContractDelay = -1 }},
		{"negative rate", func(c *fetch.Config) { c.RateLimit = -1 }},
		{"rate without burst", func(c *fetch.Config) { c.RateLimit = 5; c.RateBurst = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := fetch.DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	_, err := fetch.NewLogFetcher(nil, nil, nil)
	assert.Error(t, err)
}

func TestFetchContractChunksRange(t *testing.T) {
	chain := testutil.NewFakeChain(100)
	node := types.NameHash("alice.pns")
	chain.AddLogs(
		testutil.NameRegisteredLog(testutil.At{Block: 5}, node, "alice", testutil.Addr(1), 1000),
		testutil.NameRenewedLog(testutil.At{Block: 15}, node, 2000),
		testutil.NameRenewedLog(testutil.At{Block: 25}, node, 3000),
		// different contract, must not be returned
		testutil.ResolverUpdatedLog(testutil.At{Block: 6}, node, testutil.Addr(9)),
	)

	f := newTestFetcher(t, chain, testConfig())
	registrar := abi.Contract{Name: "registrar", Address: testutil.DefaultContracts.Registrar, Role: abi.RoleRegistrar}

	logs, err := f.FetchContract(context.Background(), registrar, fetch.Window{From: 1, To: 30})
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.Equal(t, uint64(5), logs[0].BlockNumber)
	assert.Equal(t, uint64(25), logs[2].BlockNumber)

	queries := chain.Queries()
	require.Len(t, queries, 3)
	for i, q := range queries {
		assert.Equal(t, uint64(1+10*i), q.FromBlock.Uint64())
		assert.Equal(t, uint64(10+10*i), q.ToBlock.Uint64())
		assert.Equal(t, []common.Address{registrar.Address}, q.Addresses)
		require.Len(t, q.Topics, 1)
		assert.ElementsMatch(t, abi.Topics(abi.RoleRegistrar), q.Topics[0])
	}
}

func TestFetchWindowContractOrder(t *testing.T) {
	chain := testutil.NewFakeChain(100)
	node := types.NameHash("bob.pns")
	chain.AddLogs(
		testutil.TextChangedLog(testutil.At{Block: 3, TxIndex: 0}, node, "url", "https://bob"),
		testutil.NameRegisteredLog(testutil.At{Block: 3, TxIndex: 1}, node, "bob", testutil.Addr(2), 1000),
	)

	f := newTestFetcher(t, chain, testConfig())
	logs, err := f.FetchWindow(context.Background(), orderedContracts(t), fetch.Window{From: 1, To: 5})
	require.NoError(t, err)
	require.Len(t, logs, 2)

	// registrar logs come back first regardless of chain position
	assert.Equal(t, testutil.DefaultContracts.Registrar, logs[0].Address)
	assert.Equal(t, testutil.DefaultContracts.Resolver, logs[1].Address)

	queries := chain.Queries()
	require.Len(t, queries, 4)
	assert.Equal(t, testutil.DefaultContracts.Registrar, queries[0].Addresses[0])
	assert.Equal(t, testutil.DefaultContracts.Registry, queries[1].Addresses[0])
	assert.Equal(t, testutil.DefaultContracts.Token, queries[2].Addresses[0])
	assert.Equal(t, testutil.DefaultContracts.Resolver, queries[3].Addresses[0])
}

func TestFetchRetriesTransientFailures(t *testing.T) {
	chain := testutil.NewFakeChain(100)
	node := types.NameHash("carol.pns")
	chain.AddLogs(testutil.NameRenewedLog(testutil.At{Block: 8}, node, 5000))
	chain.FailNext(2)

	f := newTestFetcher(t, chain, testConfig())
	registrar := orderedContracts(t)[0]

	logs, err := f.FetchContract(context.Background(), registrar, fetch.Window{From: 1, To: 10})
	require.NoError(t, err)
	assert.Len(t, logs, 1)
	assert.Len(t, chain.Queries(), 3)
}

func TestFetchRetriesExhausted(t *testing.T) {
	chain := testutil.NewFakeChain(100)
	chain.FailBlock(15)

	cfg := testConfig()
	cfg.MaxRetries = 2
	f := newTestFetcher(t, chain, cfg)

	_, err := f.FetchWindow(context.Background(), orderedContracts(t), fetch.Window{From: 1, To: 20})
	require.Error(t, err)
	assert.ErrorIs(t, err, testutil.ErrInjected)

	// first chunk succeeds once, second chunk is tried MaxRetries+1 times,
	// later contracts are never queried
	assert.Len(t, chain.Queries(), 1+3)
}

func TestFetchHonoursCancellation(t *testing.T) {
	chain := testutil.NewFakeChain(100)
	f := newTestFetcher(t, chain, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.FetchWindow(ctx, orderedContracts(t), fetch.Window{From: 1, To: 5})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLatestBlock(t *testing.T) {
	chain := testutil.NewFakeChain(321)
	f := newTestFetcher(t, chain, testConfig())

	head, err := f.LatestBlock(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(321), head)

	chain.FailHead(testutil.ErrInjected)
	_, err = f.LatestBlock(context.Background())
	assert.ErrorIs(t, err, testutil.ErrInjected)
}

func TestMergeOrdersByPosition(t *testing.T) {
	at := func(block uint64, tx, idx uint) types.Header {
		return types.Header{BlockNumber: block, TxIndex: tx, LogIndex: idx}
	}

	registrar := []types.Event{
		&types.Registered{Header: at(100, 2, 0), Name: "late"},
		&types.Registered{Header: at(99, 0, 5), Name: "early"},
	}
	resolver := []types.Event{
		&types.TextChanged{Header: at(100, 1, 7), Key: "a"},
		&types.TextChanged{Header: at(100, 2, 0), Key: "tie"},
	}
	registry := []types.Event{
		&types.ResolverUpdated{Header: at(100, 1, 3)},
	}

	merged := fetch.Merge(registrar, registry, resolver)
	require.Len(t, merged, 5)

	var positions []types.Position
	for _, ev := range merged {
		positions = append(positions, ev.Base().Position())
	}
	assert.Equal(t, []types.Position{
		{Block: 99, TxIndex: 0, LogIndex: 5},
		{Block: 100, TxIndex: 1, LogIndex: 3},
		{Block: 100, TxIndex: 1, LogIndex: 7},
		{Block: 100, TxIndex: 2, LogIndex: 0},
		{Block: 100, TxIndex: 2, LogIndex: 0},
	}, positions)

	// equal positions keep input order
	assert.Equal(t, types.KindRegistered, merged[3].Kind())
	assert.Equal(t, types.KindTextChanged, merged[4].Kind())

	assert.Empty(t, fetch.Merge())
}
