package bridgeapi

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/require"

	"github.com/rony4d/go-opera-bridge/bridge"
	"github.com/rony4d/go-opera-bridge/bridge/quorum"
	"github.com/rony4d/go-opera-bridge/bridge/signer"
	"github.com/rony4d/go-opera-bridge/evmcore"
	"github.com/rony4d/go-opera-bridge/integration"
	"github.com/rony4d/go-opera-bridge/opera/contracts/bridgecall"
)

const validators = 4

var holder = crypto.PubkeyToAddress(evmcore.FakeKey(0).PublicKey)

func newClient(t *testing.T) (*rpc.Client, *bridge.Bridge) {
	require := require.New(t)

	b := integration.NewFakeBridge(validators)

	srv, err := NewServer(b)
	require.NoError(err)
	client := rpc.DialInProc(srv)
	t.Cleanup(func() {
		client.Close()
		srv.Stop()
		b.Close()
	})
	return client, b
}

func signHash(t *testing.T, digest common.Hash) quorum.Bundle {
	bundle, err := signer.SignAll(digest, integration.FakeSigners(validators)...)
	require.NoError(t, err)
	return bundle
}

func TestRegisterAndQuery(t *testing.T) {
	require := require.New(t)
	client, _ := newClient(t)

	var power hexutil.Uint64
	require.NoError(client.Call(&power, "bridge_totalPower"))
	require.Equal(hexutil.Uint64(validators), power)

	var vv []RPCValidator
	require.NoError(client.Call(&vv, "bridge_validators"))
	require.Len(vv, validators)

	var digest common.Hash
	require.NoError(client.Call(&digest, "bridge_hashNewAssetRegistration", "EdgewareToken", 18))

	var asset common.Address
	require.NoError(client.Call(&asset, "bridge_registerAsset", "EdgewareToken", 18, signHash(t, digest)))
	require.NotEqual(common.Address{}, asset)

	var got common.Address
	require.NoError(client.Call(&got, "bridge_getAssetAddress", "EdgewareToken"))
	require.Equal(asset, got)

	var wrapped bool
	require.NoError(client.Call(&wrapped, "bridge_isWrappedAsset", asset))
	require.True(wrapped)

	var assets []bridge.AssetInfo
	require.NoError(client.Call(&assets, "bridge_listAssets"))
	require.Equal([]bridge.AssetInfo{{Name: "EdgewareToken", Address: asset, Decimals: 18}}, assets)

	// a second registration is rejected with the bridge's error
	err := client.Call(&got, "bridge_registerAsset", "EdgewareToken", 18, signHash(t, digest))
	require.Error(err)
	require.Contains(err.Error(), bridge.ErrAlreadyRegistered.Error())
}

func TestLockUnlock(t *testing.T) {
	require := require.New(t)
	client, b := newClient(t)

	amount := (*hexutil.Big)(big.NewInt(5000))
	require.NoError(client.Call(nil, "bridge_lock", LockArgs{
		From:      holder,
		Value:     amount,
		Recipient: hexutil.Bytes{0xab},
		Asset:     bridge.NativeAsset,
		Amount:    amount,
	}))

	var custody hexutil.Big
	require.NoError(client.Call(&custody, "bridge_balanceOf", bridge.NativeAsset, b.Address()))
	require.Equal(int64(5000), custody.ToInt().Int64())

	recipient := common.HexToAddress("0x1234")
	out := (*hexutil.Big)(big.NewInt(1200))
	var digest common.Hash
	require.NoError(client.Call(&digest, "bridge_hashUnlock", recipient, bridge.NativeAsset, out))
	require.NoError(client.Call(nil, "bridge_unlock", recipient, bridge.NativeAsset, out, signHash(t, digest)))

	var bal hexutil.Big
	require.NoError(client.Call(&bal, "bridge_balanceOf", bridge.NativeAsset, recipient))
	require.Equal(int64(1200), bal.ToInt().Int64())

	var logs []*types.Log
	require.NoError(client.Call(&logs, "bridge_logs", hexutil.Uint64(0), nil))
	require.Len(logs, 2)
	lock, err := bridge.ParseLog(logs[0])
	require.NoError(err)
	require.Equal(bridge.EventLock, lock.Kind)
	unlock, err := bridge.ParseLog(logs[1])
	require.NoError(err)
	require.Equal(bridge.EventUnlock, unlock.Kind)
	require.Equal(uint64(1), unlock.Seq)

	var evs []bridge.Event
	require.NoError(client.Call(&evs, "bridge_getEvents", hexutil.Uint64(1), 10))
	require.Len(evs, 1)
	require.Equal(bridge.EventUnlock, evs[0].Kind)

	var res CommitResult
	require.NoError(client.Call(&res, "bridge_commit"))
	require.Equal(hexutil.Uint64(1), res.Number)
	require.Equal(hexutil.Uint64(2), res.Events)
}

func TestCall(t *testing.T) {
	require := require.New(t)
	client, _ := newClient(t)

	input, err := bridgecall.ABI().Pack("totalPower")
	require.NoError(err)
	var ret hexutil.Bytes
	require.NoError(client.Call(&ret, "bridge_call", CallArgs{From: holder, Data: input}))
	out, err := bridgecall.ABI().Unpack("totalPower", ret)
	require.NoError(err)
	require.Equal(int64(validators), out[0].(*big.Int).Int64())

	// reverts carry the reason
	input, err = bridgecall.ABI().Pack("lock", []byte{1}, bridge.NativeAsset, big.NewInt(10))
	require.NoError(err)
	err = client.Call(&ret, "bridge_call", CallArgs{From: holder, Data: input})
	require.Error(err)
	require.Contains(err.Error(), "execution reverted")
	require.Contains(err.Error(), bridge.ErrValueMismatch.Error())
	dataErr, ok := err.(rpc.DataError)
	require.True(ok)
	require.NotEmpty(dataErr.ErrorData())
}

func TestSubscribeEvents(t *testing.T) {
	require := require.New(t)
	client, _ := newClient(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch := make(chan bridge.Event, 4)
	sub, err := client.Subscribe(ctx, Namespace, ch, "events")
	require.NoError(err)
	defer sub.Unsubscribe()

	amount := (*hexutil.Big)(big.NewInt(77))
	require.NoError(client.Call(nil, "bridge_lock", LockArgs{
		From:      holder,
		Value:     amount,
		Recipient: hexutil.Bytes{0xcd},
		Asset:     bridge.NativeAsset,
		Amount:    amount,
	}))

	select {
	case e := <-ch:
		require.Equal(bridge.EventLock, e.Kind)
		require.Equal(hexutil.Bytes{0xcd}, e.Recipient)
		require.Equal(int64(77), e.Amount.Int64())
	case err := <-sub.Err():
		t.Fatal(err)
	case <-ctx.Done():
		t.Fatal("no event delivered")
	}
}

func TestConcurrentLocksAndCommits(t *testing.T) {
	require := require.New(t)
	client, b := newClient(t)

	const workers, locks = 4, 50
	one := (*hexutil.Big)(big.NewInt(1))
	errc := make(chan error, workers+1)
	for w := 0; w < workers; w++ {
		go func() {
			for i := 0; i < locks; i++ {
				err := client.Call(nil, "bridge_lock", LockArgs{
					From:      holder,
					Value:     one,
					Recipient: hexutil.Bytes{0xab},
					Asset:     bridge.NativeAsset,
					Amount:    one,
				})
				if err != nil {
					errc <- err
					return
				}
			}
			errc <- nil
		}()
	}
	go func() {
		for i := 0; i < locks; i++ {
			var res CommitResult
			if err := client.Call(&res, "bridge_commit"); err != nil {
				errc <- err
				return
			}
		}
		errc <- nil
	}()
	for i := 0; i < workers+1; i++ {
		require.NoError(<-errc)
	}

	bal, err := b.BalanceOf(bridge.NativeAsset, b.Address())
	require.NoError(err)
	require.Equal(int64(workers*locks), bal.Int64())
}
