package bridge

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/Fantom-foundation/lachesis-base/common/bigendian"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"
)

// EventsABI declares the bridge events the way the deployed contract emits them.
const EventsABI = `[
	{"type":"event","name":"Lock","anonymous":false,"inputs":[
		{"name":"recipient","type":"bytes","indexed":false},
		{"name":"asset","type":"address","indexed":true},
		{"name":"amount","type":"uint256","indexed":false}]},
	{"type":"event","name":"Unlock","anonymous":false,"inputs":[
		{"name":"recipient","type":"address","indexed":true},
		{"name":"asset","type":"address","indexed":true},
		{"name":"amount","type":"uint256","indexed":false}]},
	{"type":"event","name":"RegisterAsset","anonymous":false,"inputs":[
		{"name":"name","type":"string","indexed":false},
		{"name":"asset","type":"address","indexed":true}]}
]`

var eventsABI abi.ABI

func init() {
	var err error
	eventsABI, err = abi.JSON(strings.NewReader(EventsABI))
	if err != nil {
		panic(err)
	}
}

var ErrUnknownEvent = errors.New("unknown bridge event")

// EventKind tells which bridge event occurred.
type EventKind uint8

const (
	EventLock EventKind = iota + 1
	EventUnlock
	EventRegisterAsset
)

func (k EventKind) String() string {
	switch k {
	case EventLock:
		return "Lock"
	case EventUnlock:
		return "Unlock"
	case EventRegisterAsset:
		return "RegisterAsset"
	}
	return fmt.Sprintf("EventKind(%d)", uint8(k))
}

// MarshalText encodes the kind by its event name.
func (k EventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses an event name.
func (k *EventKind) UnmarshalText(input []byte) error {
	for _, kind := range []EventKind{EventLock, EventUnlock, EventRegisterAsset} {
		if kind.String() == string(input) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownEvent, input)
}

// Event is a bridge event with its position in the event journal.
//
// Recipient is the opaque foreign-chain recipient for Lock and the 20-byte
// recipient address for Unlock. Name is set for RegisterAsset only.
type Event struct {
	Seq       uint64         `json:"seq"`
	Kind      EventKind      `json:"kind"`
	Recipient hexutil.Bytes  `json:"recipient,omitempty"`
	Asset     common.Address `json:"asset"`
	Amount    *big.Int       `json:"amount"`
	Name      string         `json:"name,omitempty"`
}

// Log renders the event as the log the bridge contract would have emitted.
func (e Event) Log(bridge common.Address) (*types.Log, error) {
	ev, ok := eventsABI.Events[e.Kind.String()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, e.Kind)
	}

	topics := []common.Hash{ev.ID}
	var data []byte
	var err error
	switch e.Kind {
	case EventLock:
		topics = append(topics, e.Asset.Hash())
		data, err = ev.Inputs.NonIndexed().Pack([]byte(e.Recipient), e.Amount)
	case EventUnlock:
		topics = append(topics, common.BytesToAddress(e.Recipient).Hash(), e.Asset.Hash())
		data, err = ev.Inputs.NonIndexed().Pack(e.Amount)
	case EventRegisterAsset:
		topics = append(topics, e.Asset.Hash())
		data, err = ev.Inputs.NonIndexed().Pack(e.Name)
	}
	if err != nil {
		return nil, err
	}
	return &types.Log{
		Address: bridge,
		Topics:  topics,
		Data:    data,
		Index:   uint(e.Seq),
	}, nil
}

// ParseLog decodes a log produced by Event.Log.
func ParseLog(l *types.Log) (Event, error) {
	if len(l.Topics) == 0 {
		return Event{}, ErrUnknownEvent
	}
	ev, err := eventsABI.EventByID(l.Topics[0])
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrUnknownEvent, err)
	}
	values, err := ev.Inputs.NonIndexed().Unpack(l.Data)
	if err != nil {
		return Event{}, err
	}

	e := Event{Seq: uint64(l.Index)}
	if err := e.Kind.UnmarshalText([]byte(ev.Name)); err != nil {
		return Event{}, err
	}
	want := map[EventKind]int{EventLock: 2, EventUnlock: 3, EventRegisterAsset: 2}[e.Kind]
	if len(l.Topics) != want {
		return Event{}, fmt.Errorf("%w: %s log with %d topics", ErrUnknownEvent, ev.Name, len(l.Topics))
	}
	switch e.Kind {
	case EventLock:
		e.Asset = common.BytesToAddress(l.Topics[1].Bytes())
		e.Recipient = values[0].([]byte)
		e.Amount = values[1].(*big.Int)
	case EventUnlock:
		e.Recipient = common.BytesToAddress(l.Topics[1].Bytes()).Bytes()
		e.Asset = common.BytesToAddress(l.Topics[2].Bytes())
		e.Amount = values[0].(*big.Int)
	case EventRegisterAsset:
		e.Asset = common.BytesToAddress(l.Topics[1].Bytes())
		e.Name = values[0].(string)
		e.Amount = new(big.Int)
	}
	return e, nil
}

// journal keeps emitted events: the committed ones in the database, the rest in
// memory until the next commit.
type journal struct {
	db ethdb.KeyValueReader

	mu        sync.RWMutex
	committed uint64
	pending   []Event
}

var eventPrefix = []byte("e") // eventPrefix + seq (uint64 big endian) -> cser(Event)

func eventKey(seq uint64) []byte {
	return append(common.CopyBytes(eventPrefix), bigendian.Uint64ToBytes(seq)...)
}

func newJournal(db ethdb.KeyValueReader, committed uint64) *journal {
	return &journal{db: db, committed: committed}
}

func (j *journal) append(e Event) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.pending = append(j.pending, e)
}

// flush writes the pending events into a commit batch.
func (j *journal) flush(w ethdb.KeyValueWriter) error {
	j.mu.RLock()
	defer j.mu.RUnlock()
	for _, e := range j.pending {
		raw, err := e.MarshalBinary()
		if err != nil {
			return err
		}
		if err := w.Put(eventKey(e.Seq), raw); err != nil {
			return err
		}
	}
	return nil
}

// markCommitted drops the pending events up to count, once they are on disk.
func (j *journal) markCommitted(count uint64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var rest []Event
	for _, e := range j.pending {
		if e.Seq >= count {
			rest = append(rest, e)
		}
	}
	j.pending = rest
	j.committed = count
}

// since returns up to limit events with Seq >= from.
func (j *journal) since(from uint64, limit int) ([]Event, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var res []Event
	for seq := from; seq < j.committed && len(res) < limit; seq++ {
		raw, err := j.db.Get(eventKey(seq))
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", seq, err)
		}
		var e Event
		if err := e.UnmarshalBinary(raw); err != nil {
			return nil, fmt.Errorf("event %d: %w", seq, err)
		}
		res = append(res, e)
	}
	for _, e := range j.pending {
		if len(res) >= limit {
			break
		}
		if e.Seq >= from {
			res = append(res, e)
		}
	}
	return res, nil
}

func (b *Bridge) eventCount(statedb *state.StateDB) uint64 {
	return statedb.GetState(b.Address(), eventCountSlot).Big().Uint64()
}

// emit numbers and records an event and queues it for subscribers until the
// operation exits. Called only after every state change of the operation
// succeeded.
func (b *Bridge) emit(e Event) {
	statedb := b.statedb()
	e.Seq = b.eventCount(statedb)
	statedb.SetState(b.Address(), eventCountSlot, common.BigToHash(new(big.Int).SetUint64(e.Seq+1)))

	b.journal.append(e)
	b.outbox = append(b.outbox, e)
	log.Debug("Bridge event", "seq", e.Seq, "kind", e.Kind, "asset", e.Asset, "amount", e.Amount)
}

// DefaultEventsLimit caps Events queries.
const DefaultEventsLimit = 1000

// Events returns up to limit journal events starting at sequence number from.
// A non-positive limit means DefaultEventsLimit.
func (b *Bridge) Events(from uint64, limit int) ([]Event, error) {
	if limit <= 0 || limit > DefaultEventsLimit {
		limit = DefaultEventsLimit
	}
	return b.journal.since(from, limit)
}

// SubscribeEvents delivers every event emitted from now on to ch.
//
// Events are sent once the emitting operation has released the bridge, so a
// slow subscriber never blocks reads. It does block the caller of the emitting
// operation, and through Serial every later mutating call; ch should be
// buffered and drained. Events arrive in Seq order when mutating calls go
// through Serial.
func (b *Bridge) SubscribeEvents(ch chan<- Event) event.Subscription {
	return b.scope.Track(b.feed.Subscribe(ch))
}
