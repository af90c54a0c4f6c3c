package signer

import (
	"testing"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/rony4d/go-opera-bridge/bridge/quorum"
	"github.com/rony4d/go-opera-bridge/inter/validators"
)

func TestKeySigner(t *testing.T) {
	require := require.New(t)

	key, err := crypto.GenerateKey()
	require.NoError(err)
	s := FromKey(key)
	require.Equal(crypto.PubkeyToAddress(key.PublicKey), s.Address())

	digest := crypto.Keccak256Hash([]byte("digest"))
	sig, err := s.Sign(digest)
	require.NoError(err)

	got, err := quorum.Recover(digest, sig)
	require.NoError(err)
	require.Equal(s.Address(), got)
}

func TestFromHex(t *testing.T) {
	require := require.New(t)

	key, err := crypto.GenerateKey()
	require.NoError(err)
	s, err := FromHex(hexutil.Encode(crypto.FromECDSA(key))[2:])
	require.NoError(err)
	require.Equal(crypto.PubkeyToAddress(key.PublicKey), s.Address())

	_, err = FromHex("zz")
	require.Error(err)
}

func TestKeystoreSigner(t *testing.T) {
	require := require.New(t)

	ks := keystore.NewKeyStore(t.TempDir(), keystore.LightScryptN, keystore.LightScryptP)
	key, err := crypto.GenerateKey()
	require.NoError(err)
	account, err := ks.ImportECDSA(key, "pass")
	require.NoError(err)

	s := FromKeystore(ks, account)
	digest := crypto.Keccak256Hash([]byte("keystore"))

	_, err = s.Sign(digest)
	require.Error(err, "locked account must not sign")

	require.NoError(ks.Unlock(account, "pass"))
	sig, err := s.Sign(digest)
	require.NoError(err)

	// keystore and raw key produce the same deterministic signature
	direct, err := FromKey(key).Sign(digest)
	require.NoError(err)
	require.Equal(direct, sig)

	fromFile, err := FromKeyFile(account.URL.Path, "pass")
	require.NoError(err)
	require.Equal(account.Address, fromFile.Address())

	_, err = FromKeyFile(account.URL.Path, "wrong")
	require.Error(err)
}

func TestSignAll(t *testing.T) {
	require := require.New(t)

	keys := make([]common.Address, 4)
	signers := make([]Signer, 4)
	for i := range signers {
		key, err := crypto.GenerateKey()
		require.NoError(err)
		signers[i] = FromKey(key)
		keys[i] = signers[i].Address()
	}
	set, err := validators.New(keys, []uint64{1, 1, 1, 1})
	require.NoError(err)

	digest := crypto.Keccak256Hash([]byte("all"))
	bundle, err := SignAll(digest, signers[:3]...)
	require.NoError(err)
	require.Equal(keys[:3], bundle.Signers)
	require.NoError(quorum.NewVerifier(set).Verify(digest, bundle))

	bundle, err = SignAll(digest, signers[:2]...)
	require.NoError(err)
	require.ErrorIs(quorum.NewVerifier(set).Verify(digest, bundle), quorum.ErrInsufficientQuorum)
}
