package bridge

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"

	"github.com/rony4d/go-opera-bridge/bridge/quorum"
	"github.com/rony4d/go-opera-bridge/bridge/tokens"
)

// Bridge account storage:
//
//	slot 0: mapping(string => address) assets by name
//	slot 1: mapping(address => bool) registered wrapped assets
//	slot 2: address[] registration order
//	slot 3: mapping(bytes32 => bool) executed unlock digests
//	slot 4: uint256 number of emitted events
var (
	assetsByNameSlot = common.BigToHash(big.NewInt(0))
	isWrappedSlot    = common.BigToHash(big.NewInt(1))
	assetListSlot    = common.BigToHash(big.NewInt(2))
	consumedSlot     = common.BigToHash(big.NewInt(3))
	eventCountSlot   = common.BigToHash(big.NewInt(4))
)

var storageTrue = common.BigToHash(big.NewInt(1))

// AssetInfo describes a registered wrapped asset.
type AssetInfo struct {
	Name     string         `json:"name"`
	Address  common.Address `json:"address"`
	Decimals uint8          `json:"decimals"`
}

func nameSlot(name string) common.Hash {
	return crypto.Keccak256Hash([]byte(name), assetsByNameSlot[:])
}

func assetListElem(i uint64) common.Hash {
	base := crypto.Keccak256Hash(assetListSlot[:]).Big()
	return common.BigToHash(base.Add(base, new(big.Int).SetUint64(i)))
}

func (b *Bridge) assetAddress(statedb *state.StateDB, name string) common.Address {
	return common.BytesToAddress(statedb.GetState(b.Address(), nameSlot(name)).Bytes())
}

func (b *Bridge) isWrapped(statedb *state.StateDB, addr common.Address) bool {
	if addr == NativeAsset {
		return false
	}
	return statedb.GetState(b.Address(), tokens.MapSlot(addr.Hash(), isWrappedSlot)) == storageTrue
}

func (b *Bridge) assetCount(statedb *state.StateDB) uint64 {
	return statedb.GetState(b.Address(), assetListSlot).Big().Uint64()
}

func (b *Bridge) recordAsset(statedb *state.StateDB, name string, addr common.Address) {
	bridge := b.Address()
	statedb.SetState(bridge, nameSlot(name), addr.Hash())
	statedb.SetState(bridge, tokens.MapSlot(addr.Hash(), isWrappedSlot), storageTrue)

	n := b.assetCount(statedb)
	statedb.SetState(bridge, assetListElem(n), addr.Hash())
	statedb.SetState(bridge, assetListSlot, common.BigToHash(new(big.Int).SetUint64(n+1)))
}

// RegisterAsset creates a wrapped asset controlled by the bridge once a quorum
// approved HashNewAssetRegistration(name, precision). Each name can be
// registered once.
func (b *Bridge) RegisterAsset(name string, precision uint8, bundle quorum.Bundle) (common.Address, error) {
	if err := b.enter(); err != nil {
		return common.Address{}, err
	}
	defer b.exit()

	if name == "" {
		return common.Address{}, fmt.Errorf("%w: empty name", ErrInvalidAssetName)
	}
	if len(name) > MaxAssetNameSize {
		return common.Address{}, fmt.Errorf("%w: %d bytes, at most %d", ErrInvalidAssetName, len(name), MaxAssetNameSize)
	}
	if existing := b.assetAddress(b.statedb(), name); existing != (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: %q at %s", ErrAlreadyRegistered, name, existing.Hex())
	}
	if err := b.verify(b.hasher.HashNewAssetRegistration(name, precision), bundle); err != nil {
		return common.Address{}, err
	}

	var addr common.Address
	err := b.atomically(func(statedb *state.StateDB) error {
		bridge := b.Address()
		nonce := statedb.GetNonce(bridge)
		addr = crypto.CreateAddress(bridge, nonce)
		statedb.SetNonce(bridge, nonce+1)

		if _, err := tokens.DeployWrapped(statedb, addr, tokens.Params{Name: name, Decimals: precision}, bridge); err != nil {
			return err
		}
		b.recordAsset(statedb, name, addr)
		return nil
	})
	if err != nil {
		return common.Address{}, err
	}

	b.emit(Event{Kind: EventRegisterAsset, Name: name, Asset: addr, Amount: new(big.Int)})
	registerMeter.Mark(1)
	log.Info("Registered wrapped asset", "name", name, "precision", precision, "address", addr)
	return addr, nil
}

// GetAssetAddress returns the wrapped asset registered under name, or the zero
// address.
func (b *Bridge) GetAssetAddress(name string) common.Address {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.assetAddress(b.statedb(), name)
}

// IsWrappedAsset reports whether addr was created by RegisterAsset.
func (b *Bridge) IsWrappedAsset(addr common.Address) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.isWrapped(b.statedb(), addr)
}

// ListAssets returns the registered wrapped assets in registration order.
func (b *Bridge) ListAssets() []AssetInfo {
	b.mu.Lock()
	defer b.mu.Unlock()

	statedb := b.statedb()
	n := b.assetCount(statedb)
	res := make([]AssetInfo, 0, n)
	for i := uint64(0); i < n; i++ {
		addr := common.BytesToAddress(statedb.GetState(b.Address(), assetListElem(i)).Bytes())
		info := AssetInfo{Address: addr}
		if w, err := b.resolver.Wrapped(addr); err == nil {
			info.Name = w.Name()
			info.Decimals = w.Decimals()
		}
		res = append(res, info)
	}
	return res
}
