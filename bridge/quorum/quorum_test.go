package quorum

import (
	"crypto/ecdsa"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/rony4d/go-opera-bridge/inter/validators"
)

type testValidators struct {
	keys []*ecdsa.PrivateKey
	set  *validators.Set
}

func newTestValidators(t *testing.T, powers ...uint64) testValidators {
	t.Helper()
	keys := make([]*ecdsa.PrivateKey, len(powers))
	ids := make([]common.Address, len(powers))
	for i := range powers {
		key, err := crypto.GenerateKey()
		require.NoError(t, err)
		keys[i] = key
		ids[i] = crypto.PubkeyToAddress(key.PublicKey)
	}
	set, err := validators.New(ids, powers)
	require.NoError(t, err)
	return testValidators{keys: keys, set: set}
}

func sign(t *testing.T, digest common.Hash, key *ecdsa.PrivateKey) Signature {
	t.Helper()
	raw, err := crypto.Sign(SignedHash(digest), key)
	require.NoError(t, err)
	sig, err := SignatureFromBytes(raw)
	require.NoError(t, err)
	return sig
}

// bundleOf signs digest with the first n keys.
func (v testValidators) bundleOf(t *testing.T, digest common.Hash, n int) Bundle {
	var b Bundle
	for _, key := range v.keys[:n] {
		b.Append(crypto.PubkeyToAddress(key.PublicKey), sign(t, digest, key))
	}
	return b
}

func equalPowers(n int) []uint64 {
	p := make([]uint64, n)
	for i := range p {
		p[i] = 1
	}
	return p
}

func TestHasQuorum(t *testing.T) {
	for _, tt := range []struct {
		matched, total uint64
		want           bool
	}{
		{14, 20, true},
		{13, 20, false},
		{2, 3, false}, // exactly two-thirds
		{3, 3, true},
		{0, 1, false},
		{1, 1, true},
		{201, 300, true},
		{200, 300, false},
		{^uint64(0), ^uint64(0), true},
		{^uint64(0) / 3 * 2, ^uint64(0), false},
	} {
		require.Equal(t, tt.want, HasQuorum(tt.matched, tt.total), "%d of %d", tt.matched, tt.total)
	}
}

func TestVerify_twentyValidators(t *testing.T) {
	require := require.New(t)

	vals := newTestValidators(t, equalPowers(20)...)
	verifier := NewVerifier(vals.set)
	digest := crypto.Keccak256Hash([]byte("action"))

	res, err := verifier.Tally(digest, vals.bundleOf(t, digest, 14))
	require.NoError(err)
	require.Equal(uint64(14), res.MatchedPower)
	require.Equal(uint64(20), res.TotalPower)
	require.Equal(14, res.Matched)

	err = verifier.Verify(digest, vals.bundleOf(t, digest, 13))
	require.ErrorIs(err, ErrInsufficientQuorum)

	require.NoError(verifier.Verify(digest, vals.bundleOf(t, digest, 20)))
}

func TestVerify_weightedPowers(t *testing.T) {
	require := require.New(t)

	// one heavy validator alone is not enough at exactly 2/3
	vals := newTestValidators(t, 200, 50, 50)
	verifier := NewVerifier(vals.set)
	digest := crypto.Keccak256Hash([]byte("weighted"))

	require.ErrorIs(verifier.Verify(digest, vals.bundleOf(t, digest, 1)), ErrInsufficientQuorum)
	require.NoError(verifier.Verify(digest, vals.bundleOf(t, digest, 2)))
}

func TestVerify_duplicateSigner(t *testing.T) {
	require := require.New(t)

	vals := newTestValidators(t, equalPowers(3)...)
	verifier := NewVerifier(vals.set)
	digest := crypto.Keccak256Hash([]byte("dup"))

	b := vals.bundleOf(t, digest, 2)
	b.Append(b.Signers[0], b.Signatures[0])
	require.ErrorIs(verifier.Verify(digest, b), ErrDuplicateSigner)
}

func TestVerify_nonValidatorContributesNothing(t *testing.T) {
	require := require.New(t)

	vals := newTestValidators(t, equalPowers(3)...)
	verifier := NewVerifier(vals.set)
	digest := crypto.Keccak256Hash([]byte("outsider"))

	outsider, err := crypto.GenerateKey()
	require.NoError(err)

	b := vals.bundleOf(t, digest, 2)
	b.Append(crypto.PubkeyToAddress(outsider.PublicKey), sign(t, digest, outsider))
	require.ErrorIs(verifier.Verify(digest, b), ErrInsufficientQuorum)

	b = vals.bundleOf(t, digest, 3)
	b.Append(crypto.PubkeyToAddress(outsider.PublicKey), sign(t, digest, outsider))
	res, err := verifier.Tally(digest, b)
	require.NoError(err)
	require.Equal(3, res.Matched)
}

func TestVerify_invalidSignatures(t *testing.T) {
	vals := newTestValidators(t, equalPowers(3)...)
	verifier := NewVerifier(vals.set)
	digest := crypto.Keccak256Hash([]byte("bad"))
	other := crypto.Keccak256Hash([]byte("other"))

	for name, mutate := range map[string]func(b *Bundle){
		"wrong digest": func(b *Bundle) {
			b.Signatures[0] = sign(t, other, vals.keys[0])
		},
		"swapped signers": func(b *Bundle) {
			b.Signers[0], b.Signers[1] = b.Signers[1], b.Signers[0]
		},
		"bad recovery id": func(b *Bundle) {
			b.Signatures[0].V = 29
		},
		"zero r": func(b *Bundle) {
			b.Signatures[0].R = common.Hash{}
		},
		"high s": func(b *Bundle) {
			sig := b.Signatures[0]
			s := new(big.Int).Sub(crypto.S256().Params().N, new(big.Int).SetBytes(sig.S[:]))
			sig.S = common.BigToHash(s)
			if sig.V == 27 {
				sig.V = 28
			} else {
				sig.V = 27
			}
			b.Signatures[0] = sig
		},
	} {
		t.Run(name, func(t *testing.T) {
			b := vals.bundleOf(t, digest, 3)
			mutate(&b)
			require.ErrorIs(t, verifier.Verify(digest, b), ErrInvalidSignature)
		})
	}
}

func TestVerify_malformedBundle(t *testing.T) {
	require := require.New(t)

	vals := newTestValidators(t, equalPowers(3)...)
	verifier := NewVerifier(vals.set)
	digest := crypto.Keccak256Hash([]byte("malformed"))

	require.ErrorIs(verifier.Verify(digest, Bundle{}), ErrMalformedBundle)

	b := vals.bundleOf(t, digest, 3)
	b.Signatures = b.Signatures[:2]
	require.ErrorIs(verifier.Verify(digest, b), ErrMalformedBundle)
}

func TestSignatureEncoding(t *testing.T) {
	require := require.New(t)

	key, err := crypto.GenerateKey()
	require.NoError(err)
	digest := crypto.Keccak256Hash([]byte("encoding"))
	raw, err := crypto.Sign(SignedHash(digest), key)
	require.NoError(err)

	sig, err := SignatureFromBytes(raw)
	require.NoError(err)
	require.True(sig.V == 27 || sig.V == 28)

	back, ok := sig.Bytes()
	require.True(ok)
	require.Equal(raw, back)

	// 0/1 form recovers the same signer as 27/28
	low := sig
	low.V -= 27
	a1, err := Recover(digest, sig)
	require.NoError(err)
	a2, err := Recover(digest, low)
	require.NoError(err)
	require.Equal(crypto.PubkeyToAddress(key.PublicKey), a1)
	require.Equal(a1, a2)

	_, err = SignatureFromBytes(raw[:64])
	require.ErrorIs(err, ErrInvalidSignature)
}
