package abi

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Role is the part a monitored contract plays in the name registry
type Role string

// Contract roles
const (
	RoleRegistrar Role = "registrar"
	RoleRegistry  Role = "registry"
	RoleToken     Role = "token"
	RoleResolver  Role = "resolver"
)

// Event names as declared in the contract ABIs
const (
	EventNameRegistered       = "NameRegistered"
	EventNameRenewed          = "NameRenewed"
	EventOwnershipTransferred = "OwnershipTransferred"
	EventResolverUpdated      = "ResolverUpdated"
	EventTransfer             = "Transfer"
	EventTextChanged          = "TextChanged"
	EventAddressChanged       = "AddressChanged"
)

// RegistrarABI carries plaintext names, so it is fetched first
const RegistrarABI = `[
	{"anonymous":false,"type":"event","name":"NameRegistered","inputs":[
		{"indexed":true,"name":"node","type":"bytes32"},
		{"indexed":false,"name":"name","type":"string"},
		{"indexed":true,"name":"owner","type":"address"},
		{"indexed":false,"name":"expires","type":"uint256"}]},
	{"anonymous":false,"type":"event","name":"NameRenewed","inputs":[
		{"indexed":true,"name":"node","type":"bytes32"},
		{"indexed":false,"name":"expires","type":"uint256"}]}
]`

const RegistryABI = `[
	{"anonymous":false,"type":"event","name":"OwnershipTransferred","inputs":[
		{"indexed":true,"name":"node","type":"bytes32"},
		{"indexed":true,"name":"previousOwner","type":"address"},
		{"indexed":true,"name":"newOwner","type":"address"}]},
	{"anonymous":false,"type":"event","name":"ResolverUpdated","inputs":[
		{"indexed":true,"name":"node","type":"bytes32"},
		{"indexed":false,"name":"resolver","type":"address"}]}
]`

const TokenABI = `[
	{"anonymous":false,"type":"event","name":"Transfer","inputs":[
		{"indexed":true,"name":"from","type":"address"},
		{"indexed":true,"name":"to","type":"address"},
		{"indexed":true,"name":"tokenId","type":"uint256"}]}
]`

const ResolverABI = `[
	{"anonymous":false,"type":"event","name":"TextChanged","inputs":[
		{"indexed":true,"name":"node","type":"bytes32"},
		{"indexed":true,"name":"indexedKey","type":"string"},
		{"indexed":false,"name":"key","type":"string"},
		{"indexed":false,"name":"value","type":"string"}]},
	{"anonymous":false,"type":"event","name":"AddressChanged","inputs":[
		{"indexed":true,"name":"node","type":"bytes32"},
		{"indexed":false,"name":"coinType","type":"uint256"},
		{"indexed":false,"name":"newAddress","type":"bytes"}]}
]`

var (
	roleABIs = map[Role]string{
		RoleRegistrar: RegistrarABI,
		RoleRegistry:  RegistryABI,
		RoleToken:     TokenABI,
		RoleResolver:  ResolverABI,
	}

	// lower fetches first
	rolePriority = map[Role]int{
		RoleRegistrar: 0,
		RoleRegistry:  1,
		RoleToken:     2,
		RoleResolver:  3,
	}

	parsedABIs = make(map[Role]*abi.ABI, len(roleABIs))
)

func init() {
	for role, raw := range roleABIs {
		parsed, err := abi.JSON(strings.NewReader(raw))
		if err != nil {
			panic(fmt.Sprintf("invalid %s ABI: %v", role, err))
		}
		parsedABIs[role] = &parsed
	}
}

// ParseRole validates a role name from configuration
func ParseRole(s string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := roleABIs[role]; !ok {
		return "", fmt.Errorf("unknown contract role %q, must be one of: registrar, registry, token, resolver", s)
	}
	return role, nil
}

// Priority returns the fetch order of the role, lower first
func (r Role) Priority() int {
	if p, ok := rolePriority[r]; ok {
		return p
	}
	return len(rolePriority)
}

// ABIFor returns the parsed ABI of a role
func ABIFor(role Role) (*abi.ABI, error) {
	parsed, ok := parsedABIs[role]
	if !ok {
		return nil, fmt.Errorf("no ABI for role %q", role)
	}
	return parsed, nil
}

// EventFor returns a named event of a role's ABI
func EventFor(role Role, name string) (abi.Event, error) {
	parsed, err := ABIFor(role)
	if err != nil {
		return abi.Event{}, err
	}
	ev, ok := parsed.Events[name]
	if !ok {
		return abi.Event{}, fmt.Errorf("event %s not found in %s ABI", name, role)
	}
	return ev, nil
}

// Topics returns the topic0 filter of every event the role emits
func Topics(role Role) []common.Hash {
	parsed, ok := parsedABIs[role]
	if !ok {
		return nil
	}
	topics := make([]common.Hash, 0, len(parsed.Events))
	for _, ev := range parsed.Events {
		topics = append(topics, ev.ID)
	}
	sort.Slice(topics, func(i, j int) bool {
		return topics[i].Hex() < topics[j].Hex()
	})
	return topics
}
