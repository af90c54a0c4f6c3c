package bridge

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/log"

	"github.com/rony4d/go-opera-bridge/bridge/quorum"
	"github.com/rony4d/go-opera-bridge/bridge/tokens"
)

type assetKind uint8

const (
	assetNative assetKind = iota
	assetWrapped
	assetExternal
)

func (k assetKind) String() string {
	switch k {
	case assetNative:
		return "native"
	case assetWrapped:
		return "wrapped"
	default:
		return "external"
	}
}

// assetRef is an asset address resolved once per operation.
type assetRef struct {
	kind    assetKind
	addr    common.Address
	token   tokens.Token   // wrapped and external
	wrapped tokens.Wrapped // wrapped only
}

func (b *Bridge) resolve(asset common.Address) (assetRef, error) {
	if asset == NativeAsset {
		return assetRef{kind: assetNative}, nil
	}
	if b.isWrapped(b.statedb(), asset) {
		w, err := b.resolver.Wrapped(asset)
		if err != nil {
			return assetRef{}, fmt.Errorf("%w: %v", ErrUnknownToken, err)
		}
		return assetRef{kind: assetWrapped, addr: asset, token: w, wrapped: w}, nil
	}
	t, err := b.resolver.Token(asset)
	if err != nil {
		return assetRef{}, fmt.Errorf("%w: %v", ErrUnknownToken, err)
	}
	return assetRef{kind: assetExternal, addr: asset, token: t}, nil
}

func transferNative(statedb *state.StateDB, from, to common.Address, amount *big.Int) error {
	if balance := statedb.GetBalance(from); balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientFunds, from.Hex(), balance, amount)
	}
	statedb.SubBalance(from, amount)
	statedb.AddBalance(to, amount)
	return nil
}

// Lock takes amount of asset from the caller into custody and announces it for
// recipient on the other chain.
//
// The native asset is paid with the attached value, which must equal amount. A
// wrapped asset is burnt from the caller. Any other token is pulled with
// transferFrom, so the caller must have approved the bridge beforehand.
func (b *Bridge) Lock(ctx CallContext, recipient []byte, asset common.Address, amount *big.Int) error {
	if err := b.enter(); err != nil {
		return err
	}
	defer b.exit()

	if err := checkAmount(amount); err != nil {
		return err
	}
	if len(recipient) > MaxRecipientSize {
		return fmt.Errorf("%w: %d bytes, at most %d", ErrInvalidRecipient, len(recipient), MaxRecipientSize)
	}
	value := ctx.Value
	if value == nil {
		value = new(big.Int)
	}

	ref, err := b.resolve(asset)
	if err != nil {
		return err
	}
	if ref.kind == assetNative {
		if value.Cmp(amount) != 0 {
			return fmt.Errorf("%w: attached %s, locking %s", ErrValueMismatch, value, amount)
		}
	} else if value.Sign() != 0 {
		return fmt.Errorf("%w: %s lock cannot carry value", ErrValueMismatch, ref.kind)
	}

	bridge := b.Address()
	err = b.atomically(func(statedb *state.StateDB) error {
		switch ref.kind {
		case assetNative:
			return transferNative(statedb, ctx.From, bridge, amount)
		case assetWrapped:
			return ref.wrapped.Burn(bridge, ctx.From, amount)
		default:
			return ref.token.TransferFrom(bridge, ctx.From, bridge, amount)
		}
	})
	if err != nil {
		return err
	}

	b.emit(Event{Kind: EventLock, Recipient: common.CopyBytes(recipient), Asset: asset, Amount: new(big.Int).Set(amount)})
	lockMeter.Mark(1)
	log.Info("Locked", "from", ctx.From, "recipient", hexutil.Bytes(recipient), "asset", asset, "kind", ref.kind, "amount", amount)
	return nil
}

// Unlock releases amount of asset to recipient once a quorum approved
// HashUnlock(recipient, asset, amount). The native asset and external tokens
// are paid out of custody, a wrapped asset is minted.
func (b *Bridge) Unlock(recipient, asset common.Address, amount *big.Int, bundle quorum.Bundle) error {
	if err := b.enter(); err != nil {
		return err
	}
	defer b.exit()

	if err := checkAmount(amount); err != nil {
		return err
	}
	digest, err := b.hasher.HashUnlock(recipient, asset, amount)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	guard := b.rules.Bridge.ReplayGuard
	if guard && b.consumed(b.statedb(), digest) {
		return fmt.Errorf("%w: %s", ErrUnlockReplayed, digest.Hex())
	}
	if err := b.verify(digest, bundle); err != nil {
		return err
	}
	ref, err := b.resolve(asset)
	if err != nil {
		return err
	}

	bridge := b.Address()
	err = b.atomically(func(statedb *state.StateDB) error {
		var err error
		switch ref.kind {
		case assetNative:
			err = transferNative(statedb, bridge, recipient, amount)
		case assetWrapped:
			err = ref.wrapped.Mint(bridge, recipient, amount)
		default:
			err = ref.token.Transfer(bridge, recipient, amount)
		}
		if err != nil {
			return err
		}
		if guard {
			statedb.SetState(bridge, consumedKey(digest), storageTrue)
		}
		return nil
	})
	if err != nil {
		return err
	}

	b.emit(Event{Kind: EventUnlock, Recipient: recipient.Bytes(), Asset: asset, Amount: new(big.Int).Set(amount)})
	unlockMeter.Mark(1)
	log.Info("Unlocked", "recipient", recipient, "asset", asset, "kind", ref.kind, "amount", amount, "digest", digest)
	return nil
}

func consumedKey(digest common.Hash) common.Hash {
	return tokens.MapSlot(digest, consumedSlot)
}

func (b *Bridge) consumed(statedb *state.StateDB, digest common.Hash) bool {
	return statedb.GetState(b.Address(), consumedKey(digest)) == storageTrue
}

// Executed reports whether an unlock digest was consumed by the replay guard.
func (b *Bridge) Executed(digest common.Hash) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.consumed(b.statedb(), digest)
}
