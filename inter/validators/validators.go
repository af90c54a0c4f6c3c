// Package validators defines the weighted validator registry the bridge authorizes
// against. A registry is built once from two parallel sequences (identities and
// powers) and is immutable afterwards: there is no rotation, no slashing and no
// setter of any kind. The cached total power is the quorum denominator used by
// the threshold verifier.
package validators

import (
	"errors"
	"fmt"
	"math"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/ethereum/go-ethereum/common"
)

// ErrInvalidValidatorSet is returned (wrapped) for every malformed validator set.
// A bridge instance cannot be created without a valid set.
var ErrInvalidValidatorSet = errors.New("invalid validator set")

// Validator pairs a signing identity with its voting power.
type Validator struct {
	Address common.Address
	Power   uint64
}

// Set is the immutable weighted validator registry.
type Set struct {
	identities []common.Address
	powers     []uint64

	// positions maps an identity to its index in identities/powers.
	positions  map[common.Address]idx.ValidatorID
	totalPower uint64
}

// New validates the two parallel sequences and builds the registry.
//
// The following are rejected:
//   - sequences of different length, or an empty set
//   - a power of zero
//   - the zero address as an identity (ecrecover never yields a usable zero signer)
//   - an identity listed twice
//   - a total power that does not fit in uint64
func New(identities []common.Address, powers []uint64) (*Set, error) {
	if len(identities) != len(powers) {
		return nil, fmt.Errorf("%w: %d identities but %d powers", ErrInvalidValidatorSet, len(identities), len(powers))
	}
	if len(identities) == 0 {
		return nil, fmt.Errorf("%w: no validators", ErrInvalidValidatorSet)
	}
	if uint64(len(identities)) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: too many validators", ErrInvalidValidatorSet)
	}

	s := &Set{
		identities: make([]common.Address, len(identities)),
		powers:     make([]uint64, len(powers)),
		positions:  make(map[common.Address]idx.ValidatorID, len(identities)),
	}
	for i, id := range identities {
		power := powers[i]
		if id == (common.Address{}) {
			return nil, fmt.Errorf("%w: validator %d has the zero address", ErrInvalidValidatorSet, i)
		}
		if power == 0 {
			return nil, fmt.Errorf("%w: validator %s has zero power", ErrInvalidValidatorSet, id.Hex())
		}
		if _, dup := s.positions[id]; dup {
			return nil, fmt.Errorf("%w: validator %s is listed twice", ErrInvalidValidatorSet, id.Hex())
		}
		if s.totalPower > math.MaxUint64-power {
			return nil, fmt.Errorf("%w: total power overflows", ErrInvalidValidatorSet)
		}
		s.identities[i] = id
		s.powers[i] = power
		s.positions[id] = idx.ValidatorID(i)
		s.totalPower += power
	}
	return s, nil
}

// FromValidators is a convenience wrapper around New for a list of pairs.
func FromValidators(vv []Validator) (*Set, error) {
	ids := make([]common.Address, len(vv))
	powers := make([]uint64, len(vv))
	for i, v := range vv {
		ids[i] = v.Address
		powers[i] = v.Power
	}
	return New(ids, powers)
}

// TotalPower returns the sum of all validator powers.
func (s *Set) TotalPower() uint64 {
	return s.totalPower
}

// Len returns the number of validators.
func (s *Set) Len() int {
	return len(s.identities)
}

// Power reports whether addr is a validator and, if so, its power.
func (s *Set) Power(addr common.Address) (uint64, bool) {
	pos, ok := s.positions[addr]
	if !ok {
		return 0, false
	}
	return s.powers[pos], true
}

// Index returns the position of addr in the construction order.
func (s *Set) Index(addr common.Address) (idx.ValidatorID, bool) {
	pos, ok := s.positions[addr]
	return pos, ok
}

// Contains reports whether addr is a validator.
func (s *Set) Contains(addr common.Address) bool {
	_, ok := s.positions[addr]
	return ok
}

// Identities returns a copy of the identities in construction order.
func (s *Set) Identities() []common.Address {
	out := make([]common.Address, len(s.identities))
	copy(out, s.identities)
	return out
}

// Powers returns a copy of the powers in construction order.
func (s *Set) Powers() []uint64 {
	out := make([]uint64, len(s.powers))
	copy(out, s.powers)
	return out
}

// Validators returns the registry as a list of pairs.
func (s *Set) Validators() []Validator {
	out := make([]Validator, len(s.identities))
	for i := range s.identities {
		out[i] = Validator{Address: s.identities[i], Power: s.powers[i]}
	}
	return out
}

// String returns a short description for logging.
func (s *Set) String() string {
	return fmt.Sprintf("{validators=%d, totalPower=%d}", len(s.identities), s.totalPower)
}
