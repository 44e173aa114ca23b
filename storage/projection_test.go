package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/0xmhha/pns-indexer/types"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := OpenSQL(&SQLConfig{
		Dialect:      DialectSQLite,
		DSN:          filepath.Join(t.TempDir(), "projection.db"),
		MaxOpenConns: 1,
	})
	require.NoError(t, err)
	require.NoError(t, InitTables(db))
	t.Cleanup(func() { _ = CloseSQL(db) })
	return db
}

func testDomain(nameHash common.Hash, name string, owner common.Address, pos types.Position) *Domain {
	return &Domain{
		NameHash:            nameHash.Hex(),
		Name:                name,
		Owner:               owner.Hex(),
		Expiration:          1000,
		LastUpdatedBlock:    pos.Block,
		LastUpdatedTx:       common.BytesToHash([]byte{byte(pos.Block)}).Hex(),
		LastUpdatedTxIndex:  pos.TxIndex,
		LastUpdatedLogIndex: pos.LogIndex,
	}
}

func TestOpenSQLValidation(t *testing.T) {
	_, err := OpenSQL(nil)
	assert.Error(t, err)
	_, err = OpenSQL(&SQLConfig{Dialect: DialectSQLite})
	assert.Error(t, err)
	_, err = OpenSQL(&SQLConfig{Dialect: "postgres", DSN: "x"})
	assert.Error(t, err)
}

func TestInsertRawEventIgnoresDuplicates(t *testing.T) {
	store := NewProjectionStore(setupTestDB(t), nil)
	ctx := context.Background()

	ev := &RawEvent{
		TxHash:      common.HexToHash("0xaa").Hex(),
		LogIndex:    3,
		EventName:   string(types.KindRegistered),
		NameHash:    types.NameHash("alice.pns").Hex(),
		BlockNumber: 100,
	}
	inserted, err := store.InsertRawEvent(ctx, ev)
	require.NoError(t, err)
	assert.True(t, inserted)

	dup := *ev
	dup.ID = 0
	dup.EventName = string(types.KindRenewed)
	inserted, err = store.InsertRawEvent(ctx, &dup)
	require.NoError(t, err)
	assert.False(t, inserted)

	other := *ev
	other.ID = 0
	other.LogIndex = 4
	inserted, err = store.InsertRawEvent(ctx, &other)
	require.NoError(t, err)
	assert.True(t, inserted)

	count, err := store.CountRawEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestUpsertDomain(t *testing.T) {
	store := NewProjectionStore(setupTestDB(t), nil)
	ctx := context.Background()
	node := types.NameHash("alice.pns")
	alice := common.HexToAddress("0x01")
	bob := common.HexToAddress("0x02")

	res, err := store.UpsertDomain(ctx, testDomain(node, "alice", alice, types.Position{Block: 10}))
	require.NoError(t, err)
	assert.Equal(t, Applied, res)

	// replaying the same position is accepted
	res, err = store.UpsertDomain(ctx, testDomain(node, "alice", alice, types.Position{Block: 10}))
	require.NoError(t, err)
	assert.Equal(t, Applied, res)

	res, err = store.UpsertDomain(ctx, testDomain(node, "alice", bob, types.Position{Block: 20}))
	require.NoError(t, err)
	assert.Equal(t, Applied, res)

	res, err = store.UpsertDomain(ctx, testDomain(node, "alice", alice, types.Position{Block: 15}))
	require.NoError(t, err)
	assert.Equal(t, Stale, res)

	d, err := store.GetDomain(ctx, node)
	require.NoError(t, err)
	assert.Equal(t, bob.Hex(), d.Owner)
	assert.Equal(t, uint64(20), d.LastUpdatedBlock)
}

func TestUpdateDomain(t *testing.T) {
	store := NewProjectionStore(setupTestDB(t), nil)
	ctx := context.Background()
	node := types.NameHash("bob.pns")
	owner := common.HexToAddress("0x01")

	expiration := uint64(5000)
	res, err := store.UpdateDomain(ctx, node, DomainUpdate{
		Expiration: &expiration,
		Position:   types.Position{Block: 5},
	})
	require.NoError(t, err)
	assert.Equal(t, Missing, res)
	_, err = store.GetDomain(ctx, node)
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = store.UpsertDomain(ctx, testDomain(node, "bob", owner, types.Position{Block: 10, TxIndex: 2}))
	require.NoError(t, err)

	resolver := common.HexToAddress("0xbeef")
	txHash := common.HexToHash("0xcafe")
	res, err = store.UpdateDomain(ctx, node, DomainUpdate{
		Resolver: &resolver,
		Position: types.Position{Block: 10, TxIndex: 3},
		TxHash:   txHash,
	})
	require.NoError(t, err)
	assert.Equal(t, Applied, res)

	res, err = store.UpdateDomain(ctx, node, DomainUpdate{
		Expiration: &expiration,
		Position:   types.Position{Block: 10, TxIndex: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, Stale, res)

	d, err := store.GetDomain(ctx, node)
	require.NoError(t, err)
	assert.Equal(t, owner.Hex(), d.Owner)
	assert.Equal(t, resolver.Hex(), d.Resolver)
	assert.Equal(t, uint64(1000), d.Expiration)
	assert.Equal(t, txHash.Hex(), d.LastUpdatedTx)
	assert.Equal(t, uint(3), d.LastUpdatedTxIndex)

	zero := types.ZeroAddress
	res, err = store.UpdateDomain(ctx, node, DomainUpdate{Owner: &zero, Position: types.Position{Block: 11}})
	require.NoError(t, err)
	assert.Equal(t, Applied, res)
	d, err = store.GetDomain(ctx, node)
	require.NoError(t, err)
	assert.Equal(t, types.ZeroAddress.Hex(), d.Owner)
}

func TestTextAndAddressRecords(t *testing.T) {
	store := NewProjectionStore(setupTestDB(t), nil)
	ctx := context.Background()
	node := types.NameHash("carol.pns")

	text := func(value string, block uint64) *TextRecord {
		return NewTextRecord(&types.TextChanged{
			Header: types.Header{NameHash: node, BlockNumber: block},
			Key:    "url",
			Value:  value,
		})
	}

	res, err := store.UpsertText(ctx, text("https://a", 10))
	require.NoError(t, err)
	assert.Equal(t, Applied, res)
	res, err = store.UpsertText(ctx, text("https://b", 12))
	require.NoError(t, err)
	assert.Equal(t, Applied, res)
	res, err = store.UpsertText(ctx, text("https://old", 11))
	require.NoError(t, err)
	assert.Equal(t, Stale, res)

	records, err := store.TextRecords(ctx, node)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "https://b", records[0].Value)

	addr := common.HexToAddress("0x1234")
	res, err = store.UpsertAddress(ctx, NewAddressRecord(&types.AddressChanged{
		Header:   types.Header{NameHash: node, BlockNumber: 10},
		CoinType: 60,
		Address:  addr.Bytes(),
	}))
	require.NoError(t, err)
	assert.Equal(t, Applied, res)
	_, err = store.UpsertAddress(ctx, NewAddressRecord(&types.AddressChanged{
		Header:   types.Header{NameHash: node, BlockNumber: 10},
		CoinType: 0,
		Address:  []byte{0x00, 0x14},
	}))
	require.NoError(t, err)

	addrs, err := store.AddressRecords(ctx, node)
	require.NoError(t, err)
	require.Len(t, addrs, 2)
	assert.Equal(t, uint64(0), addrs[0].CoinType)
	assert.Equal(t, uint64(60), addrs[1].CoinType)
	assert.Equal(t, EncodeAddressBytes(addr.Bytes()), addrs[1].Address)
}

func TestReadSurface(t *testing.T) {
	store := NewProjectionStore(setupTestDB(t), nil)
	ctx := context.Background()
	alice := common.HexToAddress("0x01")
	bob := common.HexToAddress("0x02")

	for i, name := range []string{"alpha", "alpine", "beta", "al_x"} {
		owner := alice
		if name == "beta" {
			owner = bob
		}
		_, err := store.UpsertDomain(ctx, testDomain(types.NameHash(name+".pns"), name, owner, types.Position{Block: uint64(i + 1)}))
		require.NoError(t, err)
	}

	found, err := store.SearchDomains(ctx, "alp", 10)
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "alpha", found[0].Name)
	assert.Equal(t, "alpine", found[1].Name)

	// underscore is matched literally
	found, err = store.SearchDomains(ctx, "al_", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "al_x", found[0].Name)

	owned, err := store.DomainsByOwner(ctx, alice, 2, 0)
	require.NoError(t, err)
	assert.Len(t, owned, 2)
	owned, err = store.DomainsByOwner(ctx, alice, 10, 2)
	require.NoError(t, err)
	assert.Len(t, owned, 1)

	d, err := store.GetDomainByName(ctx, " BETA ")
	require.NoError(t, err)
	assert.Equal(t, bob.Hex(), d.Owner)

	_, err = store.GetDomainByName(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRawEventsNewestFirst(t *testing.T) {
	store := NewProjectionStore(setupTestDB(t), nil)
	ctx := context.Background()
	node := types.NameHash("dave.pns")

	for i := uint(0); i < 3; i++ {
		_, err := store.InsertRawEvent(ctx, &RawEvent{
			TxHash:      common.BytesToHash([]byte{byte(i)}).Hex(),
			LogIndex:    i,
			EventName:   string(types.KindTextChanged),
			NameHash:    node.Hex(),
			BlockNumber: uint64(10 + i),
		})
		require.NoError(t, err)
	}

	events, err := store.RawEvents(ctx, node, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, uint64(12), events[0].BlockNumber)
	assert.Equal(t, uint64(11), events[1].BlockNumber)
}
