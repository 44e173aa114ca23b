package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/0xmhha/pns-indexer/types"
)

// Common errors
var (
	ErrInvalidConfiguration = errors.New("invalid eventbus configuration")
	ErrClosed               = errors.New("eventbus closed")
	ErrBufferFull           = errors.New("eventbus buffer full")
)

// DomainChanged is published after a projection write commits.
// Consumers such as the on-chain mirror read it instead of writing state themselves.
type DomainChanged struct {
	Kind        types.Kind `json:"kind"`
	NameHash    string     `json:"nameHash"`
	Name        string     `json:"name,omitempty"`
	Owner       string     `json:"owner,omitempty"`
	Resolver    string     `json:"resolver,omitempty"`
	Expiration  uint64     `json:"expiration,omitempty"`
	Key         string     `json:"key,omitempty"`
	Value       string     `json:"value,omitempty"`
	CoinType    *uint64    `json:"coinType,omitempty"`
	Address     string     `json:"address,omitempty"`
	BlockNumber uint64     `json:"blockNumber"`
	TxHash      string     `json:"txHash"`
	LogIndex    uint       `json:"logIndex"`
	Timestamp   time.Time  `json:"timestamp"`
}

// Encode serializes the message for remote transports
func (m *DomainChanged) Encode() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	return data, nil
}

// Decode parses a message produced by Encode
func Decode(data []byte) (*DomainChanged, error) {
	var m DomainChanged
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode message: %w", err)
	}
	return &m, nil
}

// Publisher delivers post-commit messages
type Publisher interface {
	Publish(ctx context.Context, msg *DomainChanged) error
	Close() error
}

// Noop discards every message
type Noop struct{}

func (Noop) Publish(ctx context.Context, msg *DomainChanged) error { return nil }
func (Noop) Close() error                                          { return nil }
