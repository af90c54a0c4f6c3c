package validatorpk

import (
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func TestFromString(t *testing.T) {
	require := require.New(t)

	key, err := crypto.GenerateKey()
	require.NoError(err)
	exp := FromECDSA(crypto.FromECDSAPub(&key.PublicKey))

	for _, s := range []string{exp.String(), exp.String()[2:]} {
		got, err := FromString(s)
		require.NoError(err)
		require.Equal(exp, got)
	}

	for _, bad := range []string{"", "0x", "-"} {
		_, err := FromString(bad)
		require.ErrorIs(err, ErrEmpty, bad)
	}
}

func TestAddress(t *testing.T) {
	require := require.New(t)

	key, err := crypto.GenerateKey()
	require.NoError(err)
	want := crypto.PubkeyToAddress(key.PublicKey)

	// uncompressed
	addr, err := FromECDSA(crypto.FromECDSAPub(&key.PublicKey)).Address()
	require.NoError(err)
	require.Equal(want, addr)

	// compressed
	addr, err = FromECDSA(crypto.CompressPubkey(&key.PublicKey)).Address()
	require.NoError(err)
	require.Equal(want, addr)

	_, err = PubKey{Type: 0x01, Raw: crypto.FromECDSAPub(&key.PublicKey)}.Address()
	require.ErrorIs(err, ErrUnsupportedType)

	_, err = PubKey{Type: Types.Secp256k1, Raw: []byte{0x04, 0x01}}.Address()
	require.Error(err)
}

func TestCopy(t *testing.T) {
	require := require.New(t)

	original := PubKey{Type: Types.Secp256k1, Raw: []byte{0xAA, 0xBB}}
	cp := original.Copy()
	cp.Raw[0] = 0xFF

	require.Equal(uint8(0xAA), original.Raw[0])
	require.False(original.Empty())
	require.True(PubKey{}.Empty())
	require.Equal([]byte{Types.Secp256k1, 0xAA, 0xBB}, original.Bytes())
}

func TestJSON(t *testing.T) {
	require := require.New(t)

	type entry struct {
		PubKey PubKey `json:"pubkey"`
	}
	original := entry{PubKey{Type: Types.Secp256k1, Raw: common.FromHex("0xaabbcc")}}

	data, err := json.Marshal(&original)
	require.NoError(err)
	require.JSONEq(`{"pubkey":"0xc0aabbcc"}`, string(data))

	var decoded entry
	require.NoError(json.Unmarshal(data, &decoded))
	require.Equal(original, decoded)
}
