// Package signer produces validator approvals for bridge action digests.
package signer

import (
	"crypto/ecdsa"
	"fmt"
	"io/ioutil"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/rony4d/go-opera-bridge/bridge/quorum"
)

// Signer approves action digests on behalf of one validator.
type Signer interface {
	Address() common.Address
	Sign(digest common.Hash) (quorum.Signature, error)
}

// KeySigner signs with an in-memory private key.
type KeySigner struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

// FromKey wraps a private key.
func FromKey(key *ecdsa.PrivateKey) *KeySigner {
	return &KeySigner{key: key, addr: crypto.PubkeyToAddress(key.PublicKey)}
}

// FromHex parses a hex-encoded private key.
func FromHex(hexkey string) (*KeySigner, error) {
	key, err := crypto.HexToECDSA(hexkey)
	if err != nil {
		return nil, err
	}
	return FromKey(key), nil
}

// FromKeyFile decrypts a keystore JSON file.
func FromKeyFile(path, passphrase string) (*KeySigner, error) {
	keyjson, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	key, err := keystore.DecryptKey(keyjson, passphrase)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt %s: %w", path, err)
	}
	return FromKey(key.PrivateKey), nil
}

func (s *KeySigner) Address() common.Address {
	return s.addr
}

func (s *KeySigner) Sign(digest common.Hash) (quorum.Signature, error) {
	sig, err := crypto.Sign(quorum.SignedHash(digest), s.key)
	if err != nil {
		return quorum.Signature{}, err
	}
	return quorum.SignatureFromBytes(sig)
}

// KeystoreSigner signs with an unlocked account of a keystore.
type KeystoreSigner struct {
	ks      *keystore.KeyStore
	account accounts.Account
}

// FromKeystore binds a keystore account. The account must be unlocked before
// Sign is called.
func FromKeystore(ks *keystore.KeyStore, account accounts.Account) *KeystoreSigner {
	return &KeystoreSigner{ks: ks, account: account}
}

func (s *KeystoreSigner) Address() common.Address {
	return s.account.Address
}

func (s *KeystoreSigner) Sign(digest common.Hash) (quorum.Signature, error) {
	sig, err := s.ks.SignHash(s.account, quorum.SignedHash(digest))
	if err != nil {
		return quorum.Signature{}, err
	}
	return quorum.SignatureFromBytes(sig)
}

// SignAll collects one signature per signer, in order.
func SignAll(digest common.Hash, signers ...Signer) (quorum.Bundle, error) {
	bundle := quorum.Bundle{
		Signers:    make([]common.Address, 0, len(signers)),
		Signatures: make([]quorum.Signature, 0, len(signers)),
	}
	for _, s := range signers {
		sig, err := s.Sign(digest)
		if err != nil {
			return quorum.Bundle{}, fmt.Errorf("signer %s: %w", s.Address().Hex(), err)
		}
		bundle.Append(s.Address(), sig)
	}
	return bundle, nil
}

// FromKeys wraps every key.
func FromKeys(keys ...*ecdsa.PrivateKey) []Signer {
	out := make([]Signer, len(keys))
	for i, key := range keys {
		out[i] = FromKey(key)
	}
	return out
}
