// Package bridgeapi serves a Bridge over go-ethereum JSON-RPC in the "bridge"
// namespace.
//
// Lock and Unlock take the caller from the request, so the namespace is meant
// for operators and relayers on a trusted endpoint, the same way a node's
// personal namespace is.
package bridgeapi

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/rony4d/go-opera-bridge/bridge"
	"github.com/rony4d/go-opera-bridge/bridge/quorum"
	"github.com/rony4d/go-opera-bridge/evmcore"
	"github.com/rony4d/go-opera-bridge/opera/contracts/bridgecall"
)

// Namespace of the bridge API.
const Namespace = "bridge"

// DefaultCallGas is the gas given to Call when the request names none.
const DefaultCallGas = 10000000

// PublicBridgeAPI exposes the bridge operations.
type PublicBridgeAPI struct {
	b    *bridge.Bridge
	call *bridgecall.Contract
}

// NewPublicBridgeAPI creates the API of b.
func NewPublicBridgeAPI(b *bridge.Bridge) *PublicBridgeAPI {
	return &PublicBridgeAPI{b: b, call: bridgecall.New(b)}
}

// APIs returns the RPC services of b.
func APIs(b *bridge.Bridge) []rpc.API {
	return []rpc.API{{
		Namespace: Namespace,
		Version:   "1.0",
		Service:   NewPublicBridgeAPI(b),
		Public:    true,
	}}
}

// NewServer registers the bridge API on a fresh RPC server.
func NewServer(b *bridge.Bridge) (*rpc.Server, error) {
	srv := rpc.NewServer()
	for _, api := range APIs(b) {
		if err := srv.RegisterName(api.Namespace, api.Service); err != nil {
			return nil, err
		}
	}
	return srv, nil
}

// TotalPower returns the total voting power.
func (api *PublicBridgeAPI) TotalPower() hexutil.Uint64 {
	return hexutil.Uint64(api.b.TotalPower())
}

// RPCValidator is a validator as rendered over RPC.
type RPCValidator struct {
	Address common.Address `json:"address"`
	Power   hexutil.Uint64 `json:"power"`
}

// Validators returns the validator set in registry order.
func (api *PublicBridgeAPI) Validators() []RPCValidator {
	vv := api.b.Validators().Validators()
	res := make([]RPCValidator, len(vv))
	for i, v := range vv {
		res[i] = RPCValidator{Address: v.Address, Power: hexutil.Uint64(v.Power)}
	}
	return res
}

// VerifyValidators reports whether bundle is a quorum approval of digest.
func (api *PublicBridgeAPI) VerifyValidators(digest common.Hash, bundle quorum.Bundle) bool {
	return api.b.VerifyValidators(digest, bundle)
}

// HashValidatorArrays returns the digest of a validator-set description.
func (api *PublicBridgeAPI) HashValidatorArrays(identities []common.Address, powers []hexutil.Uint64) (common.Hash, error) {
	pp := make([]uint64, len(powers))
	for i, p := range powers {
		pp[i] = uint64(p)
	}
	return api.b.HashValidatorArrays(identities, pp)
}

// HashNewAssetRegistration returns the digest approving a wrapped asset.
func (api *PublicBridgeAPI) HashNewAssetRegistration(name string, precision uint8) common.Hash {
	return api.b.HashNewAssetRegistration(name, precision)
}

// HashUnlock returns the digest approving an unlock.
func (api *PublicBridgeAPI) HashUnlock(recipient, asset common.Address, amount *hexutil.Big) (common.Hash, error) {
	return api.b.HashUnlock(recipient, asset, amount.ToInt())
}

// RegisterAsset registers a wrapped asset and returns its address.
func (api *PublicBridgeAPI) RegisterAsset(name string, precision uint8, bundle quorum.Bundle) (common.Address, error) {
	var addr common.Address
	err := api.b.Serial(func() (err error) {
		addr, err = api.b.RegisterAsset(name, precision, bundle)
		return err
	})
	return addr, err
}

// GetAssetAddress returns the wrapped asset registered under name.
func (api *PublicBridgeAPI) GetAssetAddress(name string) common.Address {
	return api.b.GetAssetAddress(name)
}

// IsWrappedAsset reports whether asset was created by the bridge.
func (api *PublicBridgeAPI) IsWrappedAsset(asset common.Address) bool {
	return api.b.IsWrappedAsset(asset)
}

// ListAssets returns the registered wrapped assets.
func (api *PublicBridgeAPI) ListAssets() []bridge.AssetInfo {
	return api.b.ListAssets()
}

// BalanceOf returns the balance of holder in asset.
func (api *PublicBridgeAPI) BalanceOf(asset, holder common.Address) (*hexutil.Big, error) {
	bal, err := api.b.BalanceOf(asset, holder)
	if err != nil {
		return nil, err
	}
	return (*hexutil.Big)(bal), nil
}

// LockArgs are the arguments of Lock.
type LockArgs struct {
	From      common.Address `json:"from"`
	Value     *hexutil.Big   `json:"value"`
	Recipient hexutil.Bytes  `json:"recipient"`
	Asset     common.Address `json:"asset"`
	Amount    *hexutil.Big   `json:"amount"`
}

// Lock takes an asset into custody on behalf of args.From.
func (api *PublicBridgeAPI) Lock(args LockArgs) error {
	if args.Amount == nil {
		return fmt.Errorf("%w: missing amount", bridge.ErrInvalidAmount)
	}
	return api.b.Serial(func() error {
		return api.b.Lock(bridge.CallContext{From: args.From, Value: args.Value.ToInt()}, args.Recipient, args.Asset, args.Amount.ToInt())
	})
}

// Unlock releases an asset approved by bundle.
func (api *PublicBridgeAPI) Unlock(recipient, asset common.Address, amount *hexutil.Big, bundle quorum.Bundle) error {
	if amount == nil {
		return fmt.Errorf("%w: missing amount", bridge.ErrInvalidAmount)
	}
	return api.b.Serial(func() error {
		return api.b.Unlock(recipient, asset, amount.ToInt(), bundle)
	})
}

// CallArgs are the arguments of Call, shaped like eth_call's.
type CallArgs struct {
	From  common.Address  `json:"from"`
	Value *hexutil.Big    `json:"value"`
	Gas   *hexutil.Uint64 `json:"gas"`
	Data  hexutil.Bytes   `json:"data"`
}

// revertError carries the revert reason of a failed Call the way eth_call
// reports it.
type revertError struct {
	error
	reason string // hex encoded revert data
}

// ErrorCode returns the JSON-RPC error code of reverts.
func (e *revertError) ErrorCode() int {
	return 3
}

// ErrorData returns the hex encoded revert reason.
func (e *revertError) ErrorData() interface{} {
	return e.reason
}

func newRevertError(ret []byte) *revertError {
	err := errors.New("execution reverted")
	if reason, errUnpack := abi.UnpackRevert(ret); errUnpack == nil {
		err = fmt.Errorf("execution reverted: %v", reason)
	}
	return &revertError{error: err, reason: hexutil.Encode(ret)}
}

// Call runs ABI-encoded calldata against the bridge contract interface and
// returns the ABI-encoded result.
func (api *PublicBridgeAPI) Call(args CallArgs) (hexutil.Bytes, error) {
	gas := uint64(DefaultCallGas)
	if args.Gas != nil {
		gas = uint64(*args.Gas)
	}
	var ret []byte
	err := api.b.Serial(func() (err error) {
		ret, _, err = api.call.Run(args.From, args.Value.ToInt(), args.Data, gas)
		return err
	})
	if errors.Is(err, vm.ErrExecutionReverted) && len(ret) > 0 {
		return nil, newRevertError(ret)
	}
	if err != nil {
		return nil, err
	}
	return ret, nil
}

// CommitResult describes a persisted state.
type CommitResult struct {
	Number hexutil.Uint64 `json:"number"`
	Root   common.Hash    `json:"root"`
	Events hexutil.Uint64 `json:"events"`
}

// Commit persists the world state and the pending events.
func (api *PublicBridgeAPI) Commit() (*CommitResult, error) {
	var h evmcore.Header
	err := api.b.Serial(func() (err error) {
		h, err = api.b.Commit()
		return err
	})
	if err != nil {
		return nil, err
	}
	return &CommitResult{Number: hexutil.Uint64(h.Number), Root: h.Root, Events: hexutil.Uint64(h.Events)}, nil
}

// GetEvents returns journal events starting at sequence number from.
func (api *PublicBridgeAPI) GetEvents(from hexutil.Uint64, limit *int) ([]bridge.Event, error) {
	n := 0
	if limit != nil {
		n = *limit
	}
	return api.b.Events(uint64(from), n)
}

// Logs returns journal events starting at sequence number from, rendered as
// the logs of the bridge contract.
func (api *PublicBridgeAPI) Logs(from hexutil.Uint64, limit *int) ([]*types.Log, error) {
	evs, err := api.GetEvents(from, limit)
	if err != nil {
		return nil, err
	}
	logs := make([]*types.Log, 0, len(evs))
	for _, e := range evs {
		l, err := e.Log(api.b.Address())
		if err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, nil
}

// Events streams every bridge event emitted after the subscription.
func (api *PublicBridgeAPI) Events(ctx context.Context) (*rpc.Subscription, error) {
	notifier, supported := rpc.NotifierFromContext(ctx)
	if !supported {
		return &rpc.Subscription{}, rpc.ErrNotificationsUnsupported
	}
	rpcSub := notifier.CreateSubscription()

	events := make(chan bridge.Event, 128)
	sub := api.b.SubscribeEvents(events)

	go func() {
		defer sub.Unsubscribe()
		for {
			select {
			case e := <-events:
				if err := notifier.Notify(rpcSub.ID, e); err != nil {
					log.Debug("Bridge event notification failed", "id", rpcSub.ID, "err", err)
				}
			case <-sub.Err():
				return
			case <-rpcSub.Err():
				return
			case <-notifier.Closed():
				return
			}
		}
	}()
	return rpcSub, nil
}
