package evmcore

import (
	"errors"
	"fmt"
	"time"

	"github.com/Fantom-foundation/lachesis-base/common/bigendian"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/log"

	"github.com/rony4d/go-opera-bridge/inter"
	"github.com/rony4d/go-opera-bridge/utils/cser"
)

var (
	// ErrNoGenesis is returned when opening a database that was never initialised.
	ErrNoGenesis = errors.New("database has no genesis")
	// ErrAlreadyInitialised is returned when applying genesis twice.
	ErrAlreadyInitialised = errors.New("database already initialised")

	headKey      = []byte("bridge-head")
	headerPrefix = []byte("h") // headerPrefix + num (uint64 big endian) -> cser(Header)
)

// Header describes one committed world state.
type Header struct {
	Number     uint64
	ParentRoot common.Hash
	Root       common.Hash
	Time       inter.Timestamp
	Events     uint64 // length of the event journal at commit time
}

// MarshalCSER writes the header record.
func (h *Header) MarshalCSER(w *cser.Writer) error {
	w.U64(h.Number)
	w.FixedBytes(h.ParentRoot[:])
	w.FixedBytes(h.Root[:])
	w.U64(uint64(h.Time))
	w.U64(h.Events)
	return nil
}

func (h *Header) UnmarshalCSER(r *cser.Reader) error {
	h.Number = r.U64()
	r.FixedBytes(h.ParentRoot[:])
	r.FixedBytes(h.Root[:])
	h.Time = inter.Timestamp(r.U64())
	h.Events = r.U64()
	return nil
}

func (h *Header) MarshalBinary() ([]byte, error) {
	return cser.MarshalBinaryAdapter(h.MarshalCSER)
}

func (h *Header) UnmarshalBinary(raw []byte) error {
	return cser.UnmarshalBinaryAdapter(raw, h.UnmarshalCSER)
}

func headerKey(n uint64) []byte {
	return append(common.CopyBytes(headerPrefix), bigendian.Uint64ToBytes(n)...)
}

// State hosts the world state the bridge executes against and persists it.
type State struct {
	db      ethdb.Database
	statedb *state.StateDB
	head    Header
	hasHead bool
}

// OpenLevelDB opens (or creates) a LevelDB backed database.
func OpenLevelDB(path string, cache, handles int) (ethdb.Database, error) {
	db, err := rawdb.NewLevelDBDatabase(path, cache, handles, "bridge/db/", false)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	return db, nil
}

// Open loads the head state of an initialised database.
func Open(db ethdb.Database) (*State, error) {
	head, err := ReadHead(db)
	if err != nil {
		return nil, err
	}
	return newState(db, head, true)
}

// Empty returns a fresh state over db, for genesis application.
func Empty(db ethdb.Database) (*State, error) {
	return newState(db, Header{}, false)
}

func newState(db ethdb.Database, head Header, hasHead bool) (*State, error) {
	statedb, err := state.New(head.Root, state.NewDatabase(db), nil)
	if err != nil {
		return nil, err
	}
	return &State{
		db:      db,
		statedb: statedb,
		head:    head,
		hasHead: hasHead,
	}, nil
}

// ReadHead returns the latest committed header.
func ReadHead(db ethdb.KeyValueReader) (Header, error) {
	num, err := db.Get(headKey)
	if err != nil || len(num) != 8 {
		return Header{}, ErrNoGenesis
	}
	return ReadHeader(db, bigendian.BytesToUint64(num))
}

// ReadHeader returns the header of a committed state.
func ReadHeader(db ethdb.KeyValueReader, n uint64) (Header, error) {
	raw, err := db.Get(headerKey(n))
	if err != nil {
		return Header{}, fmt.Errorf("header %d: %w", n, err)
	}
	var h Header
	if err := h.UnmarshalBinary(raw); err != nil {
		return Header{}, fmt.Errorf("header %d: %w", n, err)
	}
	return h, nil
}

// StateDB returns the live world state. The same instance stays valid across
// commits.
func (s *State) StateDB() *state.StateDB {
	return s.statedb
}

// DB returns the underlying key-value store.
func (s *State) DB() ethdb.Database {
	return s.db
}

// Head returns the last committed header.
func (s *State) Head() Header {
	return s.head
}

// Commit flushes the world state and records a new head. extra is written in
// the same batch as the header, so side tables stay consistent with the root.
func (s *State) Commit(events uint64, extra func(ethdb.KeyValueWriter) error) (Header, error) {
	root, err := flush(s.statedb)
	if err != nil {
		return Header{}, err
	}

	h := Header{
		ParentRoot: s.head.Root,
		Root:       root,
		Time:       inter.Timestamps(time.Now()),
		Events:     events,
	}
	if s.hasHead {
		h.Number = s.head.Number + 1
	}
	if err := s.writeHead(h, extra); err != nil {
		return Header{}, err
	}

	s.head = h
	s.hasHead = true
	log.Debug("Committed bridge state", "number", h.Number, "root", h.Root, "events", h.Events)
	return h, nil
}

func (s *State) writeHead(h Header, extra func(ethdb.KeyValueWriter) error) error {
	raw, err := h.MarshalBinary()
	if err != nil {
		return err
	}
	batch := s.db.NewBatch()
	if extra != nil {
		if err := extra(batch); err != nil {
			return err
		}
	}
	if err := batch.Put(headerKey(h.Number), raw); err != nil {
		return err
	}
	if err := batch.Put(headKey, bigendian.Uint64ToBytes(h.Number)); err != nil {
		return err
	}
	return batch.Write()
}

// Close releases the database.
func (s *State) Close() error {
	return s.db.Close()
}
