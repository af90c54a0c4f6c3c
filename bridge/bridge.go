// Package bridge implements a custodial bridge: it holds locked assets and
// releases them, or mints wrapped representations, only when a quorum of a
// fixed weighted validator set approves.
//
// All state lives in the world state of an evmcore.State: native balances of the
// bridge account, the storage of token accounts and the bridge account's own
// storage for the wrapped-asset registry. Every operation runs inside a StateDB
// snapshot and is reverted as a whole on failure, so a failed call leaves no
// state change and emits no event.
package bridge

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"

	"github.com/rony4d/go-opera-bridge/bridge/actionhash"
	"github.com/rony4d/go-opera-bridge/bridge/quorum"
	"github.com/rony4d/go-opera-bridge/bridge/tokens"
	"github.com/rony4d/go-opera-bridge/evmcore"
	"github.com/rony4d/go-opera-bridge/inter/validators"
	"github.com/rony4d/go-opera-bridge/opera"
)

var (
	ErrAlreadyRegistered = errors.New("asset name already registered")
	ErrInvalidAssetName  = errors.New("invalid asset name")
	ErrInvalidRecipient  = errors.New("invalid recipient")
	ErrInvalidAmount     = errors.New("amount out of uint256 range")
	ErrValueMismatch     = errors.New("attached value does not match")
	ErrUnknownToken      = errors.New("unknown token")
	ErrReentrantCall     = errors.New("reentrant call")
	ErrUnlockReplayed    = errors.New("unlock already executed")
	ErrInsufficientFunds = errors.New("insufficient native funds")
)

var (
	lockMeter       = metrics.GetOrRegisterMeter("bridge/lock", nil)
	unlockMeter     = metrics.GetOrRegisterMeter("bridge/unlock", nil)
	registerMeter   = metrics.GetOrRegisterMeter("bridge/register", nil)
	verifyFailMeter = metrics.GetOrRegisterMeter("bridge/verify/fail", nil)
	revertMeter     = metrics.GetOrRegisterMeter("bridge/revert", nil)
)

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// NativeAsset is the asset address standing for the native currency.
var NativeAsset = common.Address{}

// CallContext carries the caller of an operation and the native value it
// attached, the way a transaction carries msg.sender and msg.value.
type CallContext struct {
	From  common.Address
	Value *big.Int
}

// Option customises a Bridge.
type Option func(*Bridge)

// WithResolver replaces the token resolver. Tokens must not call back into the
// bridge: mutating calls made while an operation is in progress fail with
// ErrReentrantCall.
func WithResolver(r tokens.Resolver) Option {
	return func(b *Bridge) {
		b.resolver = r
	}
}

// Bridge is one bridge deployment.
type Bridge struct {
	rules    opera.Rules
	set      *validators.Set
	hasher   *actionhash.Hasher
	verifier *quorum.Verifier
	host     *evmcore.State
	resolver tokens.Resolver

	// mu guards the world state; entered marks a mutating operation in
	// progress and is checked before mu is taken, so a callback fails instead of
	// deadlocking. queue orders the callers of Serial.
	mu      sync.Mutex
	entered int32
	queue   sync.Mutex
	outbox  []Event // emitted by the running operation, sent on exit

	journal *journal
	feed    event.Feed
	scope   event.SubscriptionScope
}

// New binds a bridge to the world state of host. The validator set is fixed
// for the lifetime of the bridge.
func New(host *evmcore.State, rules opera.Rules, set *validators.Set, opts ...Option) *Bridge {
	b := &Bridge{
		rules:    rules,
		set:      set,
		hasher:   actionhash.New(actionhash.DomainOf(rules), set),
		verifier: quorum.NewVerifier(set),
		host:     host,
		resolver: tokens.NewResolver(host.StateDB()),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.journal = newJournal(host.DB(), host.Head().Events)

	log.Info("Bridge initialised", "address", rules.Bridge.Address, "network", rules.Name,
		"validators", set.Len(), "totalPower", set.TotalPower(), "replayGuard", rules.Bridge.ReplayGuard)
	return b
}

// Address returns the bridge account.
func (b *Bridge) Address() common.Address {
	return b.rules.Bridge.Address
}

// Rules returns the network rules the bridge was created with.
func (b *Bridge) Rules() opera.Rules {
	return b.rules.Copy()
}

// enter admits one mutating operation at a time.
func (b *Bridge) enter() error {
	if !atomic.CompareAndSwapInt32(&b.entered, 0, 1) {
		return ErrReentrantCall
	}
	b.mu.Lock()
	return nil
}

func (b *Bridge) exit() {
	outbox := b.outbox
	b.outbox = nil
	b.mu.Unlock()
	atomic.StoreInt32(&b.entered, 0)

	for _, e := range outbox {
		b.feed.Send(e)
	}
}

// Serial runs fn after every earlier Serial call has returned. Hosts taking
// concurrent requests run mutating calls and Commit through it, so none of them
// fails with ErrReentrantCall because another one is in flight. fn must not
// call Serial.
func (b *Bridge) Serial(fn func() error) error {
	b.queue.Lock()
	defer b.queue.Unlock()
	return fn()
}

func (b *Bridge) statedb() *state.StateDB {
	return b.host.StateDB()
}

// atomically runs fn inside a state snapshot, reverting everything fn did if it
// fails.
func (b *Bridge) atomically(fn func(*state.StateDB) error) error {
	statedb := b.statedb()
	snapshot := statedb.Snapshot()
	if err := fn(statedb); err != nil {
		statedb.RevertToSnapshot(snapshot)
		revertMeter.Mark(1)
		return err
	}
	return nil
}

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 || amount.Cmp(maxUint256) > 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (b *Bridge) verify(digest common.Hash, bundle quorum.Bundle) error {
	if err := b.verifier.Verify(digest, bundle); err != nil {
		verifyFailMeter.Mark(1)
		log.Debug("Rejected signature bundle", "digest", digest, "signers", bundle.Len(), "err", err)
		return err
	}
	return nil
}

// TotalPower returns the total voting power of the validator set.
func (b *Bridge) TotalPower() uint64 {
	return b.set.TotalPower()
}

// Validators returns the validator set.
func (b *Bridge) Validators() *validators.Set {
	return b.set
}

// VerifyValidators reports whether bundle is a quorum approval of digest.
func (b *Bridge) VerifyValidators(digest common.Hash, bundle quorum.Bundle) bool {
	return b.verify(digest, bundle) == nil
}

// HashValidatorArrays returns the validator-set description digest.
func (b *Bridge) HashValidatorArrays(identities []common.Address, powers []uint64) (common.Hash, error) {
	return b.hasher.HashValidatorArrays(identities, powers)
}

// HashNewAssetRegistration returns the digest validators sign to approve a
// wrapped asset.
func (b *Bridge) HashNewAssetRegistration(name string, precision uint8) common.Hash {
	return b.hasher.HashNewAssetRegistration(name, precision)
}

// HashUnlock returns the digest validators sign to approve an unlock.
func (b *Bridge) HashUnlock(recipient, asset common.Address, amount *big.Int) (common.Hash, error) {
	digest, err := b.hasher.HashUnlock(recipient, asset, amount)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	return digest, nil
}

// BalanceOf returns the balance of holder in asset: the native balance for the
// native asset, the token balance otherwise.
func (b *Bridge) BalanceOf(asset, holder common.Address) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ref, err := b.resolve(asset)
	if err != nil {
		return nil, err
	}
	if ref.kind == assetNative {
		return new(big.Int).Set(b.statedb().GetBalance(holder)), nil
	}
	return ref.token.BalanceOf(holder), nil
}

// Commit persists the world state and the pending events.
func (b *Bridge) Commit() (evmcore.Header, error) {
	if err := b.enter(); err != nil {
		return evmcore.Header{}, err
	}
	defer b.exit()

	count := b.eventCount(b.statedb())
	h, err := b.host.Commit(count, b.journal.flush)
	if err != nil {
		return evmcore.Header{}, err
	}
	b.journal.markCommitted(count)
	return h, nil
}

// Close unsubscribes every event subscriber.
func (b *Bridge) Close() {
	b.scope.Close()
}
