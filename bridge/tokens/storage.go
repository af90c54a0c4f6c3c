package tokens

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/crypto"
)

// Storage layout, compatible with a solc-compiled ERC20:
//
//	slot 0: mapping(address => uint256) balances
//	slot 1: mapping(address => mapping(address => uint256)) allowances
//	slot 2: uint256 totalSupply
//	slot 3: uint8 decimals
//	slot 4: address controller
//	slot 5: string name
//	slot 6: token kind
var (
	balancesSlot    = common.BigToHash(big.NewInt(0))
	allowancesSlot  = common.BigToHash(big.NewInt(1))
	totalSupplySlot = common.BigToHash(big.NewInt(2))
	decimalsSlot    = common.BigToHash(big.NewInt(3))
	controllerSlot  = common.BigToHash(big.NewInt(4))
	nameSlot        = common.BigToHash(big.NewInt(5))
	kindSlot        = common.BigToHash(big.NewInt(6))
)

// Kind tells how a token account was deployed.
type Kind uint64

const (
	// KindNone marks an address without a token.
	KindNone Kind = iota
	// KindExternal is a plain token not controlled by the bridge.
	KindExternal
	// KindWrapped is a mintable token with a controller.
	KindWrapped
)

func (k Kind) String() string {
	switch k {
	case KindExternal:
		return "external"
	case KindWrapped:
		return "wrapped"
	}
	return "none"
}

// MapSlot returns the storage slot of mapping[key] for a mapping at slot.
func MapSlot(key common.Hash, slot common.Hash) common.Hash {
	return crypto.Keccak256Hash(key[:], slot[:])
}

func balanceSlot(holder common.Address) common.Hash {
	return MapSlot(holder.Hash(), balancesSlot)
}

func allowanceSlot(owner, spender common.Address) common.Hash {
	return MapSlot(spender.Hash(), MapSlot(owner.Hash(), allowancesSlot))
}

func getBig(db vm.StateDB, addr common.Address, slot common.Hash) *big.Int {
	return db.GetState(addr, slot).Big()
}

func setBig(db vm.StateDB, addr common.Address, slot common.Hash, v *big.Int) {
	db.SetState(addr, slot, common.BigToHash(v))
}

// WriteString stores s at slot using the Solidity string encoding: short strings
// live in the slot itself with length*2 in the lowest byte, long strings store
// length*2+1 in the slot and the data from keccak256(slot) on.
func WriteString(db vm.StateDB, addr common.Address, slot common.Hash, s string) {
	data := []byte(s)
	if len(data) < 32 {
		var word common.Hash
		copy(word[:], data)
		word[31] = byte(len(data) * 2)
		db.SetState(addr, slot, word)
		return
	}
	db.SetState(addr, slot, common.BigToHash(big.NewInt(int64(len(data))*2+1)))
	base := crypto.Keccak256Hash(slot[:]).Big()
	for i := 0; i*32 < len(data); i++ {
		var word common.Hash
		copy(word[:], data[i*32:])
		key := common.BigToHash(new(big.Int).Add(base, big.NewInt(int64(i))))
		db.SetState(addr, key, word)
	}
}

// ReadString reads a string written by WriteString.
func ReadString(db vm.StateDB, addr common.Address, slot common.Hash) string {
	word := db.GetState(addr, slot)
	if word[31]&1 == 0 {
		n := int(word[31] / 2)
		return string(word[:n])
	}
	n := int((word.Big().Uint64() - 1) / 2)
	data := make([]byte, 0, n+31)
	base := crypto.Keccak256Hash(slot[:]).Big()
	for i := 0; len(data) < n; i++ {
		key := common.BigToHash(new(big.Int).Add(base, big.NewInt(int64(i))))
		w := db.GetState(addr, key)
		data = append(data, w[:]...)
	}
	return string(data[:n])
}
