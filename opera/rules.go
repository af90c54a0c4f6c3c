// Package opera defines the network rules of a bridge deployment.
//
// This package provides:
//   - Network identification constants (MainNet, TestNet, FakeNet)
//   - The bridge domain: chain ID and bridge account address that every action
//     digest is bound to, so approvals for one deployment are useless on another
//   - Bridge behaviour switches (unlock replay guard)
//
// The Rules type serves as the central configuration structure for a given
// bridge deployment and is fixed at genesis.

package opera

import (
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Network identification constants
const (
	// MainNetworkID is the chain ID for the Opera mainnet (0xfa = 250 in decimal)
	MainNetworkID uint64 = 0xfa

	// TestNetworkID is the chain ID for the Opera testnet (0xfa2 = 4002 in decimal)
	TestNetworkID uint64 = 0xfa2

	// FakeNetworkID is the chain ID for local/fake networks used in testing (0xfa3 = 4003 in decimal)
	FakeNetworkID uint64 = 0xfa3
)

// DefaultBridgeAddress is the account that holds custody of locked assets and
// controls every wrapped asset. It sits next to the other reserved system
// addresses of the node.
var DefaultBridgeAddress = common.HexToAddress("0xb51d9e0000000000000000000000000000000000")

// BridgeRules holds the parameters of the bridge account itself.
type BridgeRules struct {
	// Address of the bridge account (custody holder and wrapped-asset controller).
	Address common.Address

	// ReplayGuard marks unlock digests as consumed once executed. Disabled by
	// default: the deployed bridge re-executes an identical unlock whose
	// signatures are still quorate.
	ReplayGuard bool
}

// Rules describes the complete configuration of a bridge network.
type Rules struct {
	Name      string // Network name identifier (e.g., "main", "test", "fake")
	NetworkID uint64 // Chain ID mixed into every action digest

	Bridge BridgeRules
}

// ChainID returns the network ID as a big integer, the form used by ABI encoding.
func (r Rules) ChainID() *big.Int {
	return new(big.Int).SetUint64(r.NetworkID)
}

// MainNetRules returns the rules of a mainnet deployment.
func MainNetRules() Rules {
	return Rules{
		Name:      "main",
		NetworkID: MainNetworkID,
		Bridge:    DefaultBridgeRules(),
	}
}

// TestNetRules returns the rules of a testnet deployment.
func TestNetRules() Rules {
	return Rules{
		Name:      "test",
		NetworkID: TestNetworkID,
		Bridge:    DefaultBridgeRules(),
	}
}

// FakeNetRules returns the rules of a local development network.
func FakeNetRules() Rules {
	return Rules{
		Name:      "fake",
		NetworkID: FakeNetworkID,
		Bridge:    DefaultBridgeRules(),
	}
}

// DefaultBridgeRules returns the bridge parameters shared by every preset network.
func DefaultBridgeRules() BridgeRules {
	return BridgeRules{
		Address:     DefaultBridgeAddress,
		ReplayGuard: false,
	}
}

// RulesByName returns the preset rules for "main", "test" or "fake".
func RulesByName(name string) (Rules, bool) {
	switch name {
	case "main":
		return MainNetRules(), true
	case "test":
		return TestNetRules(), true
	case "fake":
		return FakeNetRules(), true
	}
	return Rules{}, false
}

// Copy returns an independent copy of the rules.
func (r Rules) Copy() Rules {
	return r
}

// String returns a JSON representation of Rules for debugging and logging.
func (r Rules) String() string {
	b, _ := json.Marshal(&r)
	return string(b)
}
