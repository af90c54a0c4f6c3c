package bridge

import (
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/rony4d/go-opera-bridge/opera"
)

func TestEventLogRoundTrip(t *testing.T) {
	bridge := opera.DefaultBridgeAddress
	for _, e := range []Event{
		{Seq: 0, Kind: EventLock, Recipient: foreignRecipient, Asset: usdToken, Amount: big.NewInt(1000)},
		{Seq: 1, Kind: EventUnlock, Recipient: alice.Bytes(), Asset: NativeAsset, Amount: big.NewInt(1)},
		{Seq: 2, Kind: EventRegisterAsset, Name: "EdgewareToken", Asset: usdToken, Amount: new(big.Int)},
	} {
		t.Run(e.Kind.String(), func(t *testing.T) {
			require := require.New(t)

			l, err := e.Log(bridge)
			require.NoError(err)
			require.Equal(bridge, l.Address)
			require.Equal(eventsABI.Events[e.Kind.String()].ID, l.Topics[0])

			got, err := ParseLog(l)
			require.NoError(err)
			require.Equal(e.Seq, got.Seq)
			require.Equal(e.Kind, got.Kind)
			require.Equal([]byte(e.Recipient), []byte(got.Recipient))
			require.Equal(e.Asset, got.Asset)
			require.Equal(e.Name, got.Name)
			bigEq(t, e.Amount, got.Amount)
		})
	}
}

func TestParseLog_rejectsForeignLogs(t *testing.T) {
	_, err := ParseLog(&types.Log{})
	require.ErrorIs(t, err, ErrUnknownEvent)

	l, err := Event{Kind: EventLock, Asset: usdToken, Amount: big.NewInt(1)}.Log(opera.DefaultBridgeAddress)
	require.NoError(t, err)
	l.Topics = l.Topics[:1]
	_, err = ParseLog(l)
	require.ErrorIs(t, err, ErrUnknownEvent)

	_, err = Event{Kind: EventKind(9)}.Log(opera.DefaultBridgeAddress)
	require.ErrorIs(t, err, ErrUnknownEvent)
}

func TestEventJSON(t *testing.T) {
	require := require.New(t)

	e := Event{Seq: 3, Kind: EventUnlock, Recipient: alice.Bytes(), Asset: usdToken, Amount: big.NewInt(42)}
	raw, err := json.Marshal(e)
	require.NoError(err)
	require.Contains(string(raw), `"kind":"Unlock"`)

	var got Event
	require.NoError(json.Unmarshal(raw, &got))
	require.Equal(e.Kind, got.Kind)
	require.Equal(e.Recipient, got.Recipient)
	bigEq(t, e.Amount, got.Amount)

	var k EventKind
	require.ErrorIs(k.UnmarshalText([]byte("Mint")), ErrUnknownEvent)
	require.Equal("EventKind(9)", EventKind(9).String())
}

func TestSubscribeEvents(t *testing.T) {
	require := require.New(t)
	env := newTestEnv(t, opera.FakeNetRules())
	b := env.bridge

	ch := make(chan Event, 4)
	sub := b.SubscribeEvents(ch)
	defer sub.Unsubscribe()

	require.NoError(b.Lock(CallContext{From: alice, Value: big.NewInt(7)}, foreignRecipient, NativeAsset, big.NewInt(7)))
	select {
	case ev := <-ch:
		require.Equal(EventLock, ev.Kind)
		require.Equal(uint64(0), ev.Seq)
		bigEq(t, big.NewInt(7), ev.Amount)
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}

	// failed operations publish nothing
	require.Error(b.Lock(CallContext{From: alice}, foreignRecipient, NativeAsset, big.NewInt(7)))
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %+v", ev)
	default:
	}
}


func TestEventBinaryRoundTrip(t *testing.T) {
	for _, e := range []Event{
		{Seq: 0, Kind: EventLock, Recipient: foreignRecipient, Asset: usdToken, Amount: big.NewInt(1000)},
		{Seq: 1 << 33, Kind: EventUnlock, Recipient: alice.Bytes(), Asset: NativeAsset, Amount: new(big.Int)},
		{Seq: 2, Kind: EventRegisterAsset, Name: "EdgewareToken", Asset: usdToken},
	} {
		t.Run(e.Kind.String(), func(t *testing.T) {
			require := require.New(t)

			raw, err := e.MarshalBinary()
			require.NoError(err)

			var got Event
			require.NoError(got.UnmarshalBinary(raw))
			require.Equal(e.Seq, got.Seq)
			require.Equal(e.Kind, got.Kind)
			require.Equal([]byte(e.Recipient), []byte(got.Recipient))
			require.Equal(e.Asset, got.Asset)
			require.Equal(e.Name, got.Name)
			bigEq(t, amountOrZero(e.Amount), got.Amount)
		})
	}
}

func amountOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func TestEventBinary_rejectsBadRecords(t *testing.T) {
	e := Event{Kind: EventLock, Asset: usdToken, Amount: big.NewInt(1)}
	raw, err := e.MarshalBinary()
	require.NoError(t, err)

	var got Event
	require.Error(t, got.UnmarshalBinary(raw[:len(raw)-2]))
	require.Error(t, got.UnmarshalBinary(append(raw[:0:0], 0xff)))

	bad := raw[:0:0]
	bad = append(bad, raw...)
	bad[0] = eventVersion + 1
	require.ErrorIs(t, got.UnmarshalBinary(bad), ErrUnknownEventVersion)

	_, err = (&Event{Kind: EventKind(9)}).MarshalBinary()
	require.ErrorIs(t, err, ErrUnknownEvent)

	// records must stay readable by UnmarshalBinary
	_, err = (&Event{Kind: EventLock, Recipient: make([]byte, MaxRecipientSize+1)}).MarshalBinary()
	require.Error(t, err)
	_, err = (&Event{Kind: EventRegisterAsset, Name: string(make([]byte, MaxAssetNameSize+1))}).MarshalBinary()
	require.Error(t, err)
}

func TestSubscribeEvents_stalledSubscriberDoesNotBlockReads(t *testing.T) {
	require := require.New(t)
	env := newTestEnv(t, opera.FakeNetRules())
	b := env.bridge

	ch := make(chan Event)
	sub := b.SubscribeEvents(ch)
	defer sub.Unsubscribe()

	amount := big.NewInt(5)
	done := make(chan error, 1)
	go func() {
		done <- b.Lock(CallContext{From: alice, Value: amount}, foreignRecipient, NativeAsset, amount)
	}()

	// the lock is applied while its event is still undelivered
	require.Eventually(func() bool {
		bal, err := b.BalanceOf(NativeAsset, b.Address())
		return err == nil && bal.Cmp(amount) == 0
	}, 5*time.Second, 10*time.Millisecond)

	select {
	case ev := <-ch:
		require.Equal(EventLock, ev.Kind)
	case <-time.After(5 * time.Second):
		t.Fatal("no event delivered")
	}
	require.NoError(<-done)
}
