// Package validatorpk holds the public keys validators are declared with in a
// genesis document.
package validatorpk

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	FakePassword = "fakepassword"
)

var (
	ErrEmpty           = errors.New("empty pubkey")
	ErrUnsupportedType = errors.New("unsupported pubkey type")
)

// PubKey is a typed public key: one type byte followed by the raw key.
type PubKey struct {
	Type uint8
	Raw  []byte
}

var Types = struct {
	Secp256k1 uint8
}{
	Secp256k1: 0xc0,
}

// FromECDSA wraps an uncompressed secp256k1 key.
func FromECDSA(pub []byte) PubKey {
	return PubKey{Type: Types.Secp256k1, Raw: common.CopyBytes(pub)}
}

func (pk PubKey) Empty() bool {
	return len(pk.Raw) == 0 && pk.Type == 0
}

func (pk PubKey) String() string {
	return "0x" + common.Bytes2Hex(pk.Bytes())
}

func (pk PubKey) Bytes() []byte {
	return append([]byte{pk.Type}, pk.Raw...)
}

func (pk PubKey) Copy() PubKey {
	return PubKey{
		Type: pk.Type,
		Raw:  common.CopyBytes(pk.Raw),
	}
}

// Address derives the account address validators sign with. Both the
// uncompressed (65 bytes) and compressed (33 bytes) encodings are accepted.
func (pk PubKey) Address() (common.Address, error) {
	if pk.Type != Types.Secp256k1 {
		return common.Address{}, fmt.Errorf("%w: 0x%x", ErrUnsupportedType, pk.Type)
	}
	switch len(pk.Raw) {
	case 33:
		pub, err := crypto.DecompressPubkey(pk.Raw)
		if err != nil {
			return common.Address{}, err
		}
		return crypto.PubkeyToAddress(*pub), nil
	default:
		pub, err := crypto.UnmarshalPubkey(pk.Raw)
		if err != nil {
			return common.Address{}, err
		}
		return crypto.PubkeyToAddress(*pub), nil
	}
}

func FromString(str string) (PubKey, error) {
	return FromBytes(common.FromHex(str))
}

func FromBytes(b []byte) (PubKey, error) {
	if len(b) == 0 {
		return PubKey{}, ErrEmpty
	}
	return PubKey{b[0], b[1:]}, nil
}

// MarshalText encodes the key as 0x-prefixed hex.
func (pk *PubKey) MarshalText() ([]byte, error) {
	return []byte(pk.String()), nil
}

// UnmarshalText parses a 0x-prefixed hex key.
func (pk *PubKey) UnmarshalText(input []byte) error {
	res, err := FromString(string(input))
	if err != nil {
		return err
	}
	*pk = res
	return nil
}
