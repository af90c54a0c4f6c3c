package bridge

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/stretchr/testify/require"

	"github.com/rony4d/go-opera-bridge/bridge/quorum"
	"github.com/rony4d/go-opera-bridge/bridge/signer"
	"github.com/rony4d/go-opera-bridge/bridge/tokens"
	"github.com/rony4d/go-opera-bridge/evmcore"
	"github.com/rony4d/go-opera-bridge/opera"
	"github.com/rony4d/go-opera-bridge/opera/genesis"
)

const testValidators = 20

var (
	alice    = crypto.PubkeyToAddress(evmcore.FakeKey(100).PublicKey)
	bob      = crypto.PubkeyToAddress(evmcore.FakeKey(101).PublicKey)
	usdToken = common.HexToAddress("0x5d00000000000000000000000000000000000001")

	initialNative = big.NewInt(1e18)
	initialUSD    = big.NewInt(1e6)
)

type testEnv struct {
	t       *testing.T
	db      ethdb.Database
	genesis *genesis.Genesis
	host    *evmcore.State
	bridge  *Bridge
	signers []signer.Signer
}

func testGenesis(rules opera.Rules) *genesis.Genesis {
	g := &genesis.Genesis{
		Rules: rules,
		Alloc: map[common.Address]genesis.Account{
			alice: {Balance: genesis.Quantity(initialNative)},
			bob:   {Balance: genesis.Quantity(initialNative)},
		},
		Tokens: []genesis.Token{{
			Address:  usdToken,
			Name:     "USD",
			Decimals: 6,
			Holder:   alice,
			Supply:   genesis.Quantity(initialUSD),
		}},
	}
	for i := uint64(0); i < testValidators; i++ {
		g.Validators = append(g.Validators, genesis.Validator{
			Address: crypto.PubkeyToAddress(evmcore.FakeKey(i).PublicKey),
			Power:   1,
		})
	}
	return g
}

func newTestEnv(t *testing.T, rules opera.Rules, opts ...Option) *testEnv {
	t.Helper()
	require := require.New(t)

	g := testGenesis(rules)
	db := rawdb.NewMemoryDatabase()
	host, err := evmcore.ApplyGenesis(db, g)
	require.NoError(err)
	set, err := g.ValidatorSet()
	require.NoError(err)

	env := &testEnv{
		t:       t,
		db:      db,
		genesis: g,
		host:    host,
		bridge:  New(host, rules, set, opts...),
	}
	for i := uint64(0); i < testValidators; i++ {
		env.signers = append(env.signers, signer.FromKey(evmcore.FakeKey(i)))
	}
	t.Cleanup(env.bridge.Close)
	return env
}

// sign collects the approvals of the first n validators.
func (env *testEnv) sign(digest common.Hash, n int) quorum.Bundle {
	env.t.Helper()
	bundle, err := signer.SignAll(digest, env.signers[:n]...)
	require.NoError(env.t, err)
	return bundle
}

func (env *testEnv) native(addr common.Address) *big.Int {
	return new(big.Int).Set(env.host.StateDB().GetBalance(addr))
}

func (env *testEnv) token(addr common.Address) tokens.Token {
	env.t.Helper()
	tok, err := tokens.NewResolver(env.host.StateDB()).Token(addr)
	require.NoError(env.t, err)
	return tok
}

func (env *testEnv) events() []Event {
	env.t.Helper()
	evs, err := env.bridge.Events(0, 0)
	require.NoError(env.t, err)
	return evs
}

func (env *testEnv) register(name string, precision uint8) common.Address {
	env.t.Helper()
	bundle := env.sign(env.bridge.HashNewAssetRegistration(name, precision), testValidators)
	addr, err := env.bridge.RegisterAsset(name, precision, bundle)
	require.NoError(env.t, err)
	return addr
}

func (env *testEnv) unlockBundle(recipient, asset common.Address, amount *big.Int, n int) quorum.Bundle {
	env.t.Helper()
	digest, err := env.bridge.HashUnlock(recipient, asset, amount)
	require.NoError(env.t, err)
	return env.sign(digest, n)
}

func (env *testEnv) unlock(recipient, asset common.Address, amount *big.Int) {
	env.t.Helper()
	require.NoError(env.t, env.bridge.Unlock(recipient, asset, amount, env.unlockBundle(recipient, asset, amount, testValidators)))
}

func bigEq(t *testing.T, want, got *big.Int, msgAndArgs ...interface{}) {
	t.Helper()
	require.Zero(t, want.Cmp(got), append([]interface{}{"want %s, got %s", want, got}, msgAndArgs...)...)
}
