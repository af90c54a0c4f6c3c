package integration

import (
	"crypto/ecdsa"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/rony4d/go-opera-bridge/bridge"
	"github.com/rony4d/go-opera-bridge/bridge/signer"
	"github.com/rony4d/go-opera-bridge/evmcore"
	"github.com/rony4d/go-opera-bridge/inter"
	"github.com/rony4d/go-opera-bridge/inter/validatorpk"
	"github.com/rony4d/go-opera-bridge/opera"
	"github.com/rony4d/go-opera-bridge/opera/genesis"
)

// FakeGenesisTime is the genesis time of every fakenet.
var FakeGenesisTime = inter.FromUnix(1608600000)

// FakeUSD is the external token every fakenet deploys, held by validator 0.
var FakeUSD = common.HexToAddress("0x5d00000000000000000000000000000000000001")

var (
	// FakeBalance funds every fake validator account.
	FakeBalance = new(big.Int).Mul(big.NewInt(1e6), big.NewInt(1e18))
	// FakeUSDSupply is the supply of FakeUSD, 6 decimals.
	FakeUSDSupply = new(big.Int).Mul(big.NewInt(1e9), big.NewInt(1e6))
)

// FakeKeys returns the keys of the first n fake validators.
func FakeKeys(n int) []*ecdsa.PrivateKey {
	keys := make([]*ecdsa.PrivateKey, n)
	for i := range keys {
		keys[i] = evmcore.FakeKey(uint64(i))
	}
	return keys
}

// FakeSigners returns signers for the first n fake validators.
func FakeSigners(n int) []signer.Signer {
	return signer.FromKeys(FakeKeys(n)...)
}

// FakeGenesis builds a fakenet of n validators of power 1, identified by
// their public keys, each funded with FakeBalance.
func FakeGenesis(n int) *genesis.Genesis {
	g := &genesis.Genesis{
		Rules: opera.FakeNetRules(),
		Time:  FakeGenesisTime,
		Alloc: make(map[common.Address]genesis.Account, n),
	}
	for _, key := range FakeKeys(n) {
		pk := validatorpk.FromECDSA(crypto.FromECDSAPub(&key.PublicKey))
		g.Validators = append(g.Validators, genesis.Validator{PubKey: &pk, Power: 1})
		g.Alloc[crypto.PubkeyToAddress(key.PublicKey)] = genesis.Account{Balance: genesis.Quantity(FakeBalance)}
	}
	if n > 0 {
		g.Tokens = []genesis.Token{{
			Address:  FakeUSD,
			Name:     "FakeUSD",
			Decimals: 6,
			Holder:   crypto.PubkeyToAddress(evmcore.FakeKey(0).PublicKey),
			Supply:   genesis.Quantity(FakeUSDSupply),
		}}
	}
	return g
}

// NewFakeBridge starts an in-memory fakenet of n validators and returns its
// bridge.
func NewFakeBridge(n int) *bridge.Bridge {
	g := FakeGenesis(n)
	set, err := g.ValidatorSet()
	if err != nil {
		panic(err)
	}
	host := evmcore.MustApplyGenesis(rawdb.NewMemoryDatabase(), g)
	return bridge.New(host, g.Rules, set)
}
