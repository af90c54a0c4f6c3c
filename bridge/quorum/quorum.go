// Package quorum verifies that a bundle of validator signatures authorizes an
// action digest.
//
// Each signature is verified on its own (no aggregation): the signer is recovered
// from the digest and compared to the claimed signer, duplicates are rejected, and
// the powers of the recognised validators are summed. The bundle is accepted iff
// the matched power is strictly greater than two-thirds of the total power.
package quorum

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"

	"github.com/rony4d/go-opera-bridge/inter/validators"
)

var (
	// ErrMalformedBundle is returned for an empty bundle or mismatched lengths.
	ErrMalformedBundle = errors.New("malformed signature bundle")
	// ErrInvalidSignature is returned when recovery fails or yields another signer.
	ErrInvalidSignature = errors.New("invalid signature")
	// ErrDuplicateSigner is returned when a signer appears twice in a bundle.
	ErrDuplicateSigner = errors.New("duplicate signer")
	// ErrInsufficientQuorum is returned when matched power is at most 2/3 of total.
	ErrInsufficientQuorum = errors.New("insufficient quorum")
)

// Signature is an (r, s, v) secp256k1 signature. V is accepted both in the
// 0/1 form produced by crypto.Sign and in the 27/28 Ethereum form.
type Signature struct {
	V uint8       `json:"v"`
	R common.Hash `json:"r"`
	S common.Hash `json:"s"`
}

// SignatureFromBytes splits a 65-byte [R || S || V] signature.
func SignatureFromBytes(sig []byte) (Signature, error) {
	if len(sig) != crypto.SignatureLength {
		return Signature{}, fmt.Errorf("%w: signature must be %d bytes, got %d", ErrInvalidSignature, crypto.SignatureLength, len(sig))
	}
	return Signature{
		V: sig[crypto.RecoveryIDOffset] + 27,
		R: common.BytesToHash(sig[:32]),
		S: common.BytesToHash(sig[32:64]),
	}, nil
}

// Bytes returns the 65-byte [R || S || V] form with V normalised to 0/1.
// The second return value is false if V is not one of 0, 1, 27, 28.
func (s Signature) Bytes() ([]byte, bool) {
	v := s.V
	if v >= 27 {
		v -= 27
	}
	if v > 1 {
		return nil, false
	}
	out := make([]byte, crypto.SignatureLength)
	copy(out[:32], s.R[:])
	copy(out[32:64], s.S[:])
	out[crypto.RecoveryIDOffset] = v
	return out, true
}

// String renders the signature as 0x-prefixed hex.
func (s Signature) String() string {
	b, ok := s.Bytes()
	if !ok {
		return fmt.Sprintf("{v=%d r=%s s=%s}", s.V, s.R.Hex(), s.S.Hex())
	}
	return hexutil.Encode(b)
}

// Bundle is the pair of parallel sequences submitted alongside an action.
type Bundle struct {
	Signers    []common.Address `json:"signers"`
	Signatures []Signature      `json:"signatures"`
}

// Len returns the number of claimed signers.
func (b Bundle) Len() int {
	return len(b.Signers)
}

// Append adds one (signer, signature) pair.
func (b *Bundle) Append(signer common.Address, sig Signature) {
	b.Signers = append(b.Signers, signer)
	b.Signatures = append(b.Signatures, sig)
}

// SignedHash returns the hash a validator actually signs for a digest: the
// Ethereum signed-message hash, so standard wallets can produce approvals.
func SignedHash(digest common.Hash) []byte {
	return accounts.TextHash(digest[:])
}

// Recover returns the address that produced sig over digest.
func Recover(digest common.Hash, sig Signature) (common.Address, error) {
	raw, ok := sig.Bytes()
	if !ok {
		return common.Address{}, fmt.Errorf("%w: bad recovery id %d", ErrInvalidSignature, sig.V)
	}
	r := new(big.Int).SetBytes(sig.R[:])
	s := new(big.Int).SetBytes(sig.S[:])
	// homestead rules: reject high-S to close the malleability hole
	if !crypto.ValidateSignatureValues(raw[crypto.RecoveryIDOffset], r, s, true) {
		return common.Address{}, fmt.Errorf("%w: signature values out of range", ErrInvalidSignature)
	}
	pub, err := crypto.SigToPub(SignedHash(digest), raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// HasQuorum is the threshold rule: matched*3 > total*2.
// Exactly two-thirds is not enough.
func HasQuorum(matched, total uint64) bool {
	lhs := new(big.Int).Mul(new(big.Int).SetUint64(matched), big.NewInt(3))
	rhs := new(big.Int).Mul(new(big.Int).SetUint64(total), big.NewInt(2))
	return lhs.Cmp(rhs) > 0
}

// Verifier checks bundles against one validator set.
type Verifier struct {
	set *validators.Set
}

// NewVerifier returns a verifier over set.
func NewVerifier(set *validators.Set) *Verifier {
	return &Verifier{set: set}
}

// Result describes an accepted bundle.
type Result struct {
	MatchedPower uint64
	TotalPower   uint64
	Matched      int // number of signers that are validators
}

// Verify returns nil iff bundle authorizes digest.
func (v *Verifier) Verify(digest common.Hash, bundle Bundle) error {
	_, err := v.Tally(digest, bundle)
	return err
}

// Tally verifies the bundle and reports the matched power.
func (v *Verifier) Tally(digest common.Hash, bundle Bundle) (Result, error) {
	if len(bundle.Signers) == 0 {
		return Result{}, fmt.Errorf("%w: no signatures", ErrMalformedBundle)
	}
	if len(bundle.Signers) != len(bundle.Signatures) {
		return Result{}, fmt.Errorf("%w: %d signers but %d signatures", ErrMalformedBundle, len(bundle.Signers), len(bundle.Signatures))
	}

	for i, claimed := range bundle.Signers {
		recovered, err := Recover(digest, bundle.Signatures[i])
		if err != nil {
			return Result{}, fmt.Errorf("signature %d: %w", i, err)
		}
		if recovered != claimed {
			return Result{}, fmt.Errorf("%w: signature %d recovers %s, claimed %s", ErrInvalidSignature, i, recovered.Hex(), claimed.Hex())
		}
	}

	seen := make(map[common.Address]struct{}, len(bundle.Signers))
	for _, signer := range bundle.Signers {
		if _, dup := seen[signer]; dup {
			return Result{}, fmt.Errorf("%w: %s", ErrDuplicateSigner, signer.Hex())
		}
		seen[signer] = struct{}{}
	}

	res := Result{TotalPower: v.set.TotalPower()}
	for _, signer := range bundle.Signers {
		power, ok := v.set.Power(signer)
		if !ok {
			log.Debug("Ignoring signature of non-validator", "signer", signer)
			continue
		}
		// cannot overflow: distinct validators sum to at most TotalPower
		res.MatchedPower += power
		res.Matched++
	}

	if !HasQuorum(res.MatchedPower, res.TotalPower) {
		return res, fmt.Errorf("%w: matched power %d of %d", ErrInsufficientQuorum, res.MatchedPower, res.TotalPower)
	}
	return res, nil
}
