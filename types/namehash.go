package types

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// LabelHash returns keccak256 of a single label
func LabelHash(label string) common.Hash {
	return crypto.Keccak256Hash([]byte(label))
}

// NameHash computes the recursive registry node hash of a dotted name.
// The empty name hashes to the zero node.
func NameHash(name string) common.Hash {
	node := common.Hash{}
	name = strings.TrimSpace(strings.ToLower(name))
	if name == "" {
		return node
	}
	labels := strings.Split(name, ".")
	for i := len(labels) - 1; i >= 0; i-- {
		label := LabelHash(labels[i])
		node = crypto.Keccak256Hash(node.Bytes(), label.Bytes())
	}
	return node
}

// TokenIDToNameHash maps an ERC-721 token id to the node it represents
func TokenIDToNameHash(tokenID []byte) common.Hash {
	return common.BytesToHash(tokenID)
}
