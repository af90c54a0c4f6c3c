// Package actionhash computes the digests validators sign over.
//
// Every digest is keccak256 of the ABI encoding of
//
//	(bytes32 tag, uint256 chainID, address bridge, address[] validators, uint64[] powers, args...)
//
// The tag separates action kinds, so an approval for a new asset can never be
// replayed as an approval for an unlock. The chain ID and bridge address bind the
// digest to one deployment, and the full validator set binds it to one set of
// signers. Digests are always recomputed from raw arguments; a digest handed in by
// a submitter is never trusted.
package actionhash

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/rony4d/go-opera-bridge/inter/validators"
	"github.com/rony4d/go-opera-bridge/opera"
)

var (
	// ErrLengthMismatch is returned when validator arrays differ in length.
	ErrLengthMismatch = errors.New("validator arrays differ in length")
	// ErrAmountOutOfRange is returned for negative or wider than 256-bit amounts.
	ErrAmountOutOfRange = errors.New("amount out of uint256 range")
)

// Action tags.
var (
	ValidatorSetTag = crypto.Keccak256Hash([]byte("bridge.ValidatorSet"))
	NewAssetTag     = crypto.Keccak256Hash([]byte("bridge.NewWrappedAsset"))
	UnlockTag       = crypto.Keccak256Hash([]byte("bridge.Unlock"))
)

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

var (
	bytes32T    = mustType("bytes32")
	uint256T    = mustType("uint256")
	uint8T      = mustType("uint8")
	addressT    = mustType("address")
	addressArrT = mustType("address[]")
	uint64ArrT  = mustType("uint64[]")
	stringT     = mustType("string")

	// prefixArgs is the part shared by every action: tag, domain, validator set.
	prefixArgs = abi.Arguments{{Type: bytes32T}, {Type: uint256T}, {Type: addressT}, {Type: addressArrT}, {Type: uint64ArrT}}

	validatorSetArgs = prefixArgs
	newAssetArgs     = withArgs(prefixArgs, stringT, uint8T)
	unlockArgs       = withArgs(prefixArgs, addressT, addressT, uint256T)
)

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

func withArgs(prefix abi.Arguments, types ...abi.Type) abi.Arguments {
	args := make(abi.Arguments, 0, len(prefix)+len(types))
	args = append(args, prefix...)
	for _, t := range types {
		args = append(args, abi.Argument{Type: t})
	}
	return args
}

// Domain identifies one bridge deployment.
type Domain struct {
	ChainID *big.Int
	Bridge  common.Address
}

// DomainOf extracts the hashing domain from network rules.
func DomainOf(r opera.Rules) Domain {
	return Domain{ChainID: r.ChainID(), Bridge: r.Bridge.Address}
}

// Hasher computes digests for one domain and one validator set.
type Hasher struct {
	domain Domain
	set    *validators.Set
}

// New returns a Hasher bound to the domain and the current validator set.
func New(domain Domain, set *validators.Set) *Hasher {
	chainID := new(big.Int)
	if domain.ChainID != nil {
		chainID.Set(domain.ChainID)
	}
	return &Hasher{
		domain: Domain{ChainID: chainID, Bridge: domain.Bridge},
		set:    set,
	}
}

// Domain returns the domain the hasher is bound to.
func (h *Hasher) Domain() Domain {
	return Domain{ChainID: new(big.Int).Set(h.domain.ChainID), Bridge: h.domain.Bridge}
}

// HashValidatorArrays returns the validator-set description digest of the given
// arrays. Signers use it as a readiness check: signing the digest of the bridge's
// own set proves they agree on the set the bridge was deployed with.
func (h *Hasher) HashValidatorArrays(identities []common.Address, powers []uint64) (common.Hash, error) {
	if len(identities) != len(powers) {
		return common.Hash{}, ErrLengthMismatch
	}
	return digest(validatorSetArgs, ValidatorSetTag, h.domain, identities, powers)
}

// HashCurrentValidators returns the description digest of the bridge's own set.
func (h *Hasher) HashCurrentValidators() common.Hash {
	d, err := h.HashValidatorArrays(h.set.Identities(), h.set.Powers())
	if err != nil {
		// the registry guarantees equal lengths
		panic(err)
	}
	return d
}

// HashNewAssetRegistration returns the digest approving a wrapped asset.
func (h *Hasher) HashNewAssetRegistration(name string, precision uint8) common.Hash {
	d, err := digest(newAssetArgs, NewAssetTag, h.domain, h.set.Identities(), h.set.Powers(), name, precision)
	if err != nil {
		panic(err)
	}
	return d
}

// HashUnlock returns the digest approving a release of amount of asset to
// recipient. The zero asset address stands for the native currency.
func (h *Hasher) HashUnlock(recipient, asset common.Address, amount *big.Int) (common.Hash, error) {
	if amount == nil || amount.Sign() < 0 || amount.Cmp(maxUint256) > 0 {
		return common.Hash{}, ErrAmountOutOfRange
	}
	return digest(unlockArgs, UnlockTag, h.domain, h.set.Identities(), h.set.Powers(), recipient, asset, new(big.Int).Set(amount))
}

func digest(args abi.Arguments, tag common.Hash, domain Domain, ids []common.Address, powers []uint64, extra ...interface{}) (common.Hash, error) {
	values := make([]interface{}, 0, 5+len(extra))
	values = append(values, [32]byte(tag), domain.ChainID, domain.Bridge, ids, powers)
	values = append(values, extra...)

	packed, err := args.Pack(values...)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(packed), nil
}
