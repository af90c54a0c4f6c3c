// Package genesis describes the initial state of a bridge deployment: the
// network rules, the immutable validator set, native allocations and the
// external tokens that exist before the bridge starts.
package genesis

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"

	"github.com/rony4d/go-opera-bridge/inter"
	"github.com/rony4d/go-opera-bridge/inter/validators"
	"github.com/rony4d/go-opera-bridge/inter/validatorpk"
	"github.com/rony4d/go-opera-bridge/opera"
)

var ErrInvalidGenesis = errors.New("invalid genesis")

// Validator is a genesis validator entry. Either Address or PubKey must be set;
// when both are, they must agree.
type Validator struct {
	Address common.Address      `json:"address,omitempty"`
	PubKey  *validatorpk.PubKey `json:"pubkey,omitempty"`
	Power   uint64              `json:"power"`
}

// Account is a native allocation.
type Account struct {
	Balance *math.HexOrDecimal256 `json:"balance"`
}

// Token is an external token deployed at genesis, with its whole supply
// credited to Holder.
type Token struct {
	Address  common.Address        `json:"address"`
	Name     string                `json:"name"`
	Decimals uint8                 `json:"decimals"`
	Holder   common.Address        `json:"holder"`
	Supply   *math.HexOrDecimal256 `json:"supply"`
}

// Genesis is the JSON genesis document.
type Genesis struct {
	Rules      opera.Rules                `json:"rules"`
	Time       inter.Timestamp            `json:"time"`
	Validators []Validator                `json:"validators"`
	Alloc      map[common.Address]Account `json:"alloc,omitempty"`
	Tokens     []Token                    `json:"tokens,omitempty"`
}

// Load reads a genesis document from a file.
func Load(path string) (*Genesis, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	g, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}

// Decode parses and validates a genesis document.
func Decode(r io.Reader) (*Genesis, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	g := new(Genesis)
	if err := dec.Decode(g); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGenesis, err)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// Write encodes the genesis document as indented JSON.
func (g *Genesis) Write(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(g)
}

// ValidatorSet builds the registry described by the document.
func (g *Genesis) ValidatorSet() (*validators.Set, error) {
	ids := make([]common.Address, len(g.Validators))
	powers := make([]uint64, len(g.Validators))
	for i, v := range g.Validators {
		addr, err := v.address()
		if err != nil {
			return nil, fmt.Errorf("validator %d: %w", i, err)
		}
		ids[i] = addr
		powers[i] = v.Power
	}
	return validators.New(ids, powers)
}

func (v Validator) address() (common.Address, error) {
	if v.PubKey == nil {
		return v.Address, nil
	}
	addr, err := v.PubKey.Address()
	if err != nil {
		return common.Address{}, err
	}
	if v.Address != (common.Address{}) && v.Address != addr {
		return common.Address{}, fmt.Errorf("%w: address %s does not match pubkey %s", ErrInvalidGenesis, v.Address.Hex(), addr.Hex())
	}
	return addr, nil
}

// Validate checks the document without touching any state.
func (g *Genesis) Validate() error {
	if g.Rules.Bridge.Address == (common.Address{}) {
		return fmt.Errorf("%w: bridge address is not set", ErrInvalidGenesis)
	}
	if _, err := g.ValidatorSet(); err != nil {
		return err
	}
	seen := map[common.Address]bool{g.Rules.Bridge.Address: true}
	for i, t := range g.Tokens {
		if t.Address == (common.Address{}) {
			return fmt.Errorf("%w: token %d has no address", ErrInvalidGenesis, i)
		}
		if seen[t.Address] {
			return fmt.Errorf("%w: token %d address %s already in use", ErrInvalidGenesis, i, t.Address.Hex())
		}
		seen[t.Address] = true
	}
	return nil
}

// Big converts an optional JSON quantity.
func Big(v *math.HexOrDecimal256) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return (*big.Int)(v)
}

// Quantity wraps a big.Int for a genesis document.
func Quantity(v *big.Int) *math.HexOrDecimal256 {
	return (*math.HexOrDecimal256)(new(big.Int).Set(v))
}
