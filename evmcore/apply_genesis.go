package evmcore

import (
	"bytes"
	"crypto/ecdsa"
	"fmt"

	"github.com/Fantom-foundation/lachesis-base/common/bigendian"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/state"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/log"

	"github.com/rony4d/go-opera-bridge/bridge/tokens"
	"github.com/rony4d/go-opera-bridge/opera/genesis"
)

var genesisKey = []byte("bridge-genesis")

// ApplyGenesis writes the initial world state into an empty database and
// commits it as header 0.
//
// The bridge account is created with nonce 1, so the first wrapped asset it
// registers lands at crypto.CreateAddress(bridge, 1), like the first contract
// deployed by a freshly deployed contract.
func ApplyGenesis(db ethdb.Database, g *genesis.Genesis) (*State, error) {
	if _, err := ReadHead(db); err == nil {
		return nil, ErrAlreadyInitialised
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}

	s, err := Empty(db)
	if err != nil {
		return nil, err
	}
	statedb := s.StateDB()

	bridge := g.Rules.Bridge.Address
	statedb.CreateAccount(bridge)
	statedb.SetNonce(bridge, 1)

	for addr, acc := range g.Alloc {
		statedb.AddBalance(addr, genesis.Big(acc.Balance))
	}
	for _, t := range g.Tokens {
		_, err := tokens.DeployExternal(statedb, t.Address, tokens.Params{Name: t.Name, Decimals: t.Decimals}, t.Holder, genesis.Big(t.Supply))
		if err != nil {
			return nil, fmt.Errorf("token %s: %w", t.Name, err)
		}
	}

	h, err := s.Commit(0, func(w ethdb.KeyValueWriter) error {
		var buf bytes.Buffer
		if err := g.Write(&buf); err != nil {
			return err
		}
		return w.Put(genesisKey, buf.Bytes())
	})
	if err != nil {
		return nil, err
	}
	log.Info("Applied genesis", "network", g.Rules.Name, "root", h.Root, "validators", len(g.Validators), "tokens", len(g.Tokens))
	return s, nil
}

// ReadGenesis returns the genesis document a database was initialised with.
func ReadGenesis(db ethdb.KeyValueReader) (*genesis.Genesis, error) {
	raw, err := db.Get(genesisKey)
	if err != nil {
		return nil, ErrNoGenesis
	}
	return genesis.Decode(bytes.NewReader(raw))
}

// MustApplyGenesis is ApplyGenesis for setup code that cannot recover.
func MustApplyGenesis(db ethdb.Database, g *genesis.Genesis) *State {
	s, err := ApplyGenesis(db, g)
	if err != nil {
		log.Crit("ApplyGenesis", "err", err)
	}
	return s
}

// flush commits state changes to the database and returns the state root hash.
func flush(statedb *state.StateDB) (root common.Hash, err error) {
	// empty accounts are kept: the bridge account may hold nothing but storage
	root, err = statedb.Commit(false)
	if err != nil {
		return
	}
	err = statedb.Database().TrieDB().Commit(root, false, nil)
	if err != nil {
		return
	}
	err = statedb.Database().TrieDB().Cap(0)
	return
}

// FakeKey returns the deterministic private key of fake validator n.
func FakeKey(n uint64) *ecdsa.PrivateKey {
	seed := crypto.Keccak256(bigendian.Uint64ToBytes(n))
	key, err := crypto.ToECDSA(seed)
	if err != nil {
		// a keccak output outside the curve order is negligible
		panic(err)
	}
	return key
}
