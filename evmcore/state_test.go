package evmcore

import (
	"math/big"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/stretchr/testify/require"

	"github.com/rony4d/go-opera-bridge/bridge/tokens"
	"github.com/rony4d/go-opera-bridge/opera"
	"github.com/rony4d/go-opera-bridge/opera/genesis"
)

var (
	holder    = common.HexToAddress("0x1001")
	tokenAddr = common.HexToAddress("0x2002")
)

func testGenesis() *genesis.Genesis {
	g := &genesis.Genesis{
		Rules: opera.FakeNetRules(),
		Alloc: map[common.Address]genesis.Account{
			holder: {Balance: genesis.Quantity(big.NewInt(1e18))},
		},
		Tokens: []genesis.Token{{
			Address:  tokenAddr,
			Name:     "USD",
			Decimals: 6,
			Holder:   holder,
			Supply:   genesis.Quantity(big.NewInt(1000)),
		}},
	}
	for i := uint64(0); i < 3; i++ {
		g.Validators = append(g.Validators, genesis.Validator{
			Address: crypto.PubkeyToAddress(FakeKey(i).PublicKey),
			Power:   1,
		})
	}
	return g
}

func TestApplyGenesis(t *testing.T) {
	require := require.New(t)

	db := rawdb.NewMemoryDatabase()
	s, err := ApplyGenesis(db, testGenesis())
	require.NoError(err)

	statedb := s.StateDB()
	require.Equal(big.NewInt(1e18), statedb.GetBalance(holder))
	require.Equal(uint64(1), statedb.GetNonce(opera.DefaultBridgeAddress))

	tok, err := tokens.NewResolver(statedb).Token(tokenAddr)
	require.NoError(err)
	require.Equal(big.NewInt(1000), tok.BalanceOf(holder))

	head := s.Head()
	require.Equal(uint64(0), head.Number)
	require.NotEqual(common.Hash{}, head.Root)

	stored, err := ReadGenesis(db)
	require.NoError(err)
	require.Equal(testGenesis().Rules, stored.Rules)
	require.Len(stored.Validators, len(testGenesis().Validators))

	_, err = ApplyGenesis(db, testGenesis())
	require.ErrorIs(err, ErrAlreadyInitialised)
}

func TestCommitAndReopen(t *testing.T) {
	require := require.New(t)

	db := rawdb.NewMemoryDatabase()
	s, err := ApplyGenesis(db, testGenesis())
	require.NoError(err)
	genesisRoot := s.Head().Root

	s.StateDB().AddBalance(tokenAddr, big.NewInt(5))
	h, err := s.Commit(7, func(w ethdb.KeyValueWriter) error {
		return w.Put([]byte("side"), []byte{1})
	})
	require.NoError(err)
	require.Equal(uint64(1), h.Number)
	require.Equal(genesisRoot, h.ParentRoot)
	require.Equal(uint64(7), h.Events)

	side, err := db.Get([]byte("side"))
	require.NoError(err)
	require.Equal([]byte{1}, side)

	reopened, err := Open(db)
	require.NoError(err)
	require.Equal(h, reopened.Head())
	require.Equal(big.NewInt(5), reopened.StateDB().GetBalance(tokenAddr))

	first, err := ReadHeader(db, 0)
	require.NoError(err)
	require.Equal(genesisRoot, first.Root)
}

func TestOpenWithoutGenesis(t *testing.T) {
	_, err := Open(rawdb.NewMemoryDatabase())
	require.ErrorIs(t, err, ErrNoGenesis)
	_, err = ReadGenesis(rawdb.NewMemoryDatabase())
	require.ErrorIs(t, err, ErrNoGenesis)
}

func TestLevelDB(t *testing.T) {
	require := require.New(t)

	path := filepath.Join(t.TempDir(), "chaindata")
	db, err := OpenLevelDB(path, 16, 16)
	require.NoError(err)
	s, err := ApplyGenesis(db, testGenesis())
	require.NoError(err)
	root := s.Head().Root
	require.NoError(s.Close())

	db, err = OpenLevelDB(path, 16, 16)
	require.NoError(err)
	s, err = Open(db)
	require.NoError(err)
	defer s.Close()
	require.Equal(root, s.Head().Root)
	require.Equal(big.NewInt(1e18), s.StateDB().GetBalance(holder))
}

func TestFakeKey(t *testing.T) {
	require := require.New(t)

	require.Equal(crypto.FromECDSA(FakeKey(1)), crypto.FromECDSA(FakeKey(1)))
	require.NotEqual(crypto.FromECDSA(FakeKey(1)), crypto.FromECDSA(FakeKey(2)))
}

func TestHeaderBinary(t *testing.T) {
	require := require.New(t)

	h := Header{
		Number:     7,
		ParentRoot: common.HexToHash("0x01"),
		Root:       common.HexToHash("0x02"),
		Time:       1608600000000000000,
		Events:     42,
	}
	raw, err := h.MarshalBinary()
	require.NoError(err)

	var got Header
	require.NoError(got.UnmarshalBinary(raw))
	require.Equal(h, got)

	require.Error(got.UnmarshalBinary(raw[1:]))
}
