package abi

import (
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/0xmhha/pns-indexer/types"
)

// ErrMalformedLog is returned when a log matches a known event but its payload cannot be decoded
var ErrMalformedLog = errors.New("malformed log")

// Contract is a monitored contract and the role it plays
type Contract struct {
	Name    string
	Address common.Address
	Role    Role
}

type boundContract struct {
	Contract
	parsed *abi.ABI
}

// Decoder turns raw logs of monitored contracts into typed registry events
type Decoder struct {
	contracts map[common.Address]*boundContract
}

// NewDecoder creates a decoder for the given monitored contracts
func NewDecoder(contracts []Contract) (*Decoder, error) {
	d := &Decoder{
		contracts: make(map[common.Address]*boundContract, len(contracts)),
	}
	for _, c := range contracts {
		parsed, err := ABIFor(c.Role)
		if err != nil {
			return nil, err
		}
		if _, exists := d.contracts[c.Address]; exists {
			return nil, fmt.Errorf("contract %s registered twice", c.Address.Hex())
		}
		d.contracts[c.Address] = &boundContract{Contract: c, parsed: parsed}
	}
	return d, nil
}

// Contracts returns the monitored contracts in fetch priority order
func (d *Decoder) Contracts() []Contract {
	out := make([]Contract, 0, len(d.contracts))
	for _, c := range d.contracts {
		out = append(out, c.Contract)
	}
	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := out[i].Role.Priority(), out[j].Role.Priority()
		if pi != pj {
			return pi < pj
		}
		return out[i].Address.Hex() < out[j].Address.Hex()
	})
	return out
}

// Decode maps a raw log to its registry event.
// It returns nil without error when the log's address or signature is not monitored.
func (d *Decoder) Decode(log *ethtypes.Log) (types.Event, error) {
	if log == nil || log.Removed {
		return nil, nil
	}

	contract, exists := d.contracts[log.Address]
	if !exists {
		return nil, nil
	}

	if len(log.Topics) == 0 {
		return nil, nil
	}

	event, err := contract.parsed.EventByID(log.Topics[0])
	if err != nil {
		return nil, nil
	}

	args, err := unpackArgs(event, log)
	if err != nil {
		return nil, fmt.Errorf("%w: %s at tx %s index %d: %v",
			ErrMalformedLog, event.Name, log.TxHash.Hex(), log.Index, err)
	}

	header := types.Header{
		Contract:    log.Address,
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash,
		TxHash:      log.TxHash,
		TxIndex:     log.TxIndex,
		LogIndex:    log.Index,
		Log:         log,
	}

	ev, err := buildEvent(event.Name, header, args)
	if err != nil {
		return nil, fmt.Errorf("%w: %s at tx %s index %d: %v",
			ErrMalformedLog, event.Name, log.TxHash.Hex(), log.Index, err)
	}
	return ev, nil
}

// unpackArgs decodes indexed parameters from topics and the rest from data
func unpackArgs(event *abi.Event, log *ethtypes.Log) (map[string]interface{}, error) {
	args := make(map[string]interface{})

	var indexed abi.Arguments
	for _, input := range event.Inputs {
		if input.Indexed {
			indexed = append(indexed, input)
		}
	}
	if len(log.Topics)-1 != len(indexed) {
		return nil, fmt.Errorf("expected %d indexed topics, got %d", len(indexed), len(log.Topics)-1)
	}
	if len(indexed) > 0 {
		if err := abi.ParseTopicsIntoMap(args, indexed, log.Topics[1:]); err != nil {
			return nil, fmt.Errorf("failed to parse indexed parameters: %w", err)
		}
	}

	nonIndexed := event.Inputs.NonIndexed()
	if len(nonIndexed) > 0 {
		if err := nonIndexed.UnpackIntoMap(args, log.Data); err != nil {
			return nil, fmt.Errorf("failed to parse non-indexed parameters: %w", err)
		}
	}

	return args, nil
}

func buildEvent(name string, header types.Header, args map[string]interface{}) (types.Event, error) {
	switch name {
	case EventNameRegistered:
		node, err := argNode(args, "node")
		if err != nil {
			return nil, err
		}
		label, err := argString(args, "name")
		if err != nil {
			return nil, err
		}
		owner, err := argAddress(args, "owner")
		if err != nil {
			return nil, err
		}
		expires, err := argUint64(args, "expires")
		if err != nil {
			return nil, err
		}
		header.NameHash = node
		return &types.Registered{Header: header, Name: label, Owner: owner, Expiration: expires}, nil

	case EventNameRenewed:
		node, err := argNode(args, "node")
		if err != nil {
			return nil, err
		}
		expires, err := argUint64(args, "expires")
		if err != nil {
			return nil, err
		}
		header.NameHash = node
		return &types.Renewed{Header: header, Expiration: expires}, nil

	case EventOwnershipTransferred:
		node, err := argNode(args, "node")
		if err != nil {
			return nil, err
		}
		from, err := argAddress(args, "previousOwner")
		if err != nil {
			return nil, err
		}
		to, err := argAddress(args, "newOwner")
		if err != nil {
			return nil, err
		}
		header.NameHash = node
		return &types.OwnershipTransferred{
			Header: header,
			From:   from,
			To:     to,
			Mint:   types.IsMint(from),
			Burn:   types.IsBurn(to),
		}, nil

	case EventResolverUpdated:
		node, err := argNode(args, "node")
		if err != nil {
			return nil, err
		}
		resolver, err := argAddress(args, "resolver")
		if err != nil {
			return nil, err
		}
		header.NameHash = node
		return &types.ResolverUpdated{Header: header, Resolver: resolver}, nil

	case EventTransfer:
		from, err := argAddress(args, "from")
		if err != nil {
			return nil, err
		}
		to, err := argAddress(args, "to")
		if err != nil {
			return nil, err
		}
		tokenID, err := argBig(args, "tokenId")
		if err != nil {
			return nil, err
		}
		header.NameHash = types.TokenIDToNameHash(tokenID.Bytes())
		return &types.Transferred{
			Header:  header,
			From:    from,
			To:      to,
			TokenID: tokenID,
			Mint:    types.IsMint(from),
			Burn:    types.IsBurn(to),
		}, nil

	case EventTextChanged:
		node, err := argNode(args, "node")
		if err != nil {
			return nil, err
		}
		key, err := argString(args, "key")
		if err != nil {
			return nil, err
		}
		value, err := argString(args, "value")
		if err != nil {
			return nil, err
		}
		header.NameHash = node
		return &types.TextChanged{Header: header, Key: key, Value: value}, nil

	case EventAddressChanged:
		node, err := argNode(args, "node")
		if err != nil {
			return nil, err
		}
		coinType, err := argUint64(args, "coinType")
		if err != nil {
			return nil, err
		}
		addr, err := argBytes(args, "newAddress")
		if err != nil {
			return nil, err
		}
		header.NameHash = node
		return &types.AddressChanged{Header: header, CoinType: coinType, Address: addr}, nil
	}

	return nil, fmt.Errorf("unsupported event %s", name)
}

func argNode(args map[string]interface{}, name string) (common.Hash, error) {
	switch v := args[name].(type) {
	case [32]byte:
		return common.Hash(v), nil
	case common.Hash:
		return v, nil
	}
	return common.Hash{}, fmt.Errorf("argument %s: expected bytes32, got %T", name, args[name])
}

func argAddress(args map[string]interface{}, name string) (common.Address, error) {
	v, ok := args[name].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("argument %s: expected address, got %T", name, args[name])
	}
	return v, nil
}

func argString(args map[string]interface{}, name string) (string, error) {
	v, ok := args[name].(string)
	if !ok {
		return "", fmt.Errorf("argument %s: expected string, got %T", name, args[name])
	}
	return v, nil
}

func argBytes(args map[string]interface{}, name string) ([]byte, error) {
	v, ok := args[name].([]byte)
	if !ok {
		return nil, fmt.Errorf("argument %s: expected bytes, got %T", name, args[name])
	}
	return v, nil
}

func argBig(args map[string]interface{}, name string) (*big.Int, error) {
	v, ok := args[name].(*big.Int)
	if !ok || v == nil {
		return nil, fmt.Errorf("argument %s: expected uint256, got %T", name, args[name])
	}
	return v, nil
}

func argUint64(args map[string]interface{}, name string) (uint64, error) {
	v, err := argBig(args, name)
	if err != nil {
		return 0, err
	}
	if !v.IsUint64() {
		return 0, fmt.Errorf("argument %s: %s overflows uint64", name, v.String())
	}
	return v.Uint64(), nil
}
