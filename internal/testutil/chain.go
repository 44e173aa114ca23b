package testutil

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

// ErrInjected is returned by FakeChain when a failure was requested
var ErrInjected = errors.New("injected rpc failure")

// FakeChain is an in-memory log source implementing the fetcher's chain interface
type FakeChain struct {
	mu        sync.Mutex
	head      uint64
	logs      []ethtypes.Log
	failNext  int
	failBlock map[uint64]bool
	headErr   error
	queries   []ethereum.FilterQuery
}

// NewFakeChain creates a chain whose head is at the given block
func NewFakeChain(head uint64) *FakeChain {
	return &FakeChain{
		head:      head,
		failBlock: make(map[uint64]bool),
	}
}

// AddLogs appends logs to the chain
func (c *FakeChain) AddLogs(logs ...ethtypes.Log) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logs = append(c.logs, logs...)
}

// SetHead moves the chain head
func (c *FakeChain) SetHead(head uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.head = head
}

// FailNext makes the next n FilterLogs calls fail
func (c *FakeChain) FailNext(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failNext = n
}

// FailBlock makes every FilterLogs call covering block fail until cleared
func (c *FakeChain) FailBlock(block uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failBlock[block] = true
}

// FailHead makes GetLatestBlockNumber return err; nil clears it
func (c *FakeChain) FailHead(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headErr = err
}

// ClearFailures removes every injected failure
func (c *FakeChain) ClearFailures() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failNext = 0
	c.failBlock = make(map[uint64]bool)
	c.headErr = nil
}

// Queries returns a copy of every FilterLogs query received
func (c *FakeChain) Queries() []ethereum.FilterQuery {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ethereum.FilterQuery, len(c.queries))
	copy(out, c.queries)
	return out
}

// GetLatestBlockNumber returns the chain head
func (c *FakeChain) GetLatestBlockNumber(ctx context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.headErr != nil {
		return 0, c.headErr
	}
	return c.head, nil
}

// FilterLogs returns the logs matching the query's addresses, range and topic0 set
func (c *FakeChain) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]ethtypes.Log, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.queries = append(c.queries, q)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.failNext > 0 {
		c.failNext--
		return nil, ErrInjected
	}

	from, to := q.FromBlock.Uint64(), q.ToBlock.Uint64()
	for b := range c.failBlock {
		if b >= from && b <= to {
			return nil, ErrInjected
		}
	}

	var out []ethtypes.Log
	for _, l := range c.logs {
		if l.BlockNumber < from || l.BlockNumber > to {
			continue
		}
		if len(q.Addresses) > 0 && !containsAddress(q.Addresses, l.Address) {
			continue
		}
		if len(q.Topics) > 0 && len(q.Topics[0]) > 0 {
			if len(l.Topics) == 0 || !containsHash(q.Topics[0], l.Topics[0]) {
				continue
			}
		}
		out = append(out, l)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].BlockNumber != out[j].BlockNumber {
			return out[i].BlockNumber < out[j].BlockNumber
		}
		if out[i].TxIndex != out[j].TxIndex {
			return out[i].TxIndex < out[j].TxIndex
		}
		return out[i].Index < out[j].Index
	})
	return out, nil
}

func containsAddress(list []common.Address, a common.Address) bool {
	for _, x := range list {
		if x == a {
			return true
		}
	}
	return false
}

func containsHash(list []common.Hash, h common.Hash) bool {
	for _, x := range list {
		if x == h {
			return true
		}
	}
	return false
}
