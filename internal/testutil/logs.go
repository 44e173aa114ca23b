package testutil

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/0xmhha/pns-indexer/abi"
)

// At locates a log on chain
type At struct {
	Block    uint64
	TxIndex  uint
	LogIndex uint
}

func buildLog(role abi.Role, event string, address common.Address, at At, indexed []common.Hash, data ...interface{}) ethtypes.Log {
	ev, err := abi.EventFor(role, event)
	if err != nil {
		panic(err)
	}
	packed, err := ev.Inputs.NonIndexed().Pack(data...)
	if err != nil {
		panic(err)
	}
	topics := append([]common.Hash{ev.ID}, indexed...)
	return ethtypes.Log{
		Address:     address,
		Topics:      topics,
		Data:        packed,
		BlockNumber: at.Block,
		BlockHash:   BlockHash(at.Block),
		TxHash:      TxHash(at.Block, at.TxIndex),
		TxIndex:     at.TxIndex,
		Index:       at.LogIndex,
	}
}

func addressTopic(a common.Address) common.Hash {
	return common.BytesToHash(a.Bytes())
}

// NameRegisteredLog builds a registrar NameRegistered log
func NameRegisteredLog(at At, node common.Hash, name string, owner common.Address, expires uint64) ethtypes.Log {
	return buildLog(abi.RoleRegistrar, abi.EventNameRegistered, DefaultContracts.Registrar, at,
		[]common.Hash{node, addressTopic(owner)},
		name, new(big.Int).SetUint64(expires))
}

// NameRenewedLog builds a registrar NameRenewed log
func NameRenewedLog(at At, node common.Hash, expires uint64) ethtypes.Log {
	return buildLog(abi.RoleRegistrar, abi.EventNameRenewed, DefaultContracts.Registrar, at,
		[]common.Hash{node},
		new(big.Int).SetUint64(expires))
}

// OwnershipTransferredLog builds a registry OwnershipTransferred log
func OwnershipTransferredLog(at At, node common.Hash, from, to common.Address) ethtypes.Log {
	return buildLog(abi.RoleRegistry, abi.EventOwnershipTransferred, DefaultContracts.Registry, at,
		[]common.Hash{node, addressTopic(from), addressTopic(to)})
}

// ResolverUpdatedLog builds a registry ResolverUpdated log
func ResolverUpdatedLog(at At, node common.Hash, resolver common.Address) ethtypes.Log {
	return buildLog(abi.RoleRegistry, abi.EventResolverUpdated, DefaultContracts.Registry, at,
		[]common.Hash{node},
		resolver)
}

// TransferLog builds a token Transfer log for the token id of node
func TransferLog(at At, node common.Hash, from, to common.Address) ethtypes.Log {
	return buildLog(abi.RoleToken, abi.EventTransfer, DefaultContracts.Token, at,
		[]common.Hash{addressTopic(from), addressTopic(to), node})
}

// TextChangedLog builds a resolver TextChanged log
func TextChangedLog(at At, node common.Hash, key, value string) ethtypes.Log {
	return buildLog(abi.RoleResolver, abi.EventTextChanged, DefaultContracts.Resolver, at,
		[]common.Hash{node, crypto.Keccak256Hash([]byte(key))},
		key, value)
}

// AddressChangedLog builds a resolver AddressChanged log
func AddressChangedLog(at At, node common.Hash, coinType uint64, address []byte) ethtypes.Log {
	return buildLog(abi.RoleResolver, abi.EventAddressChanged, DefaultContracts.Resolver, at,
		[]common.Hash{node},
		new(big.Int).SetUint64(coinType), address)
}
