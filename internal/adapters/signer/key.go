// Package signer provides the wallet capability: a local ed25519 key signer
// and a client for a remote signing service.
package signer

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/vnFuhung2903/rubyams/internal/domain/ledger"
)

// ErrInvalidKey is returned for malformed key material.
var ErrInvalidKey = errors.New("signer: invalid key")

// KeySigner signs with an in-process ed25519 key.
type KeySigner struct {
	key     ed25519.PrivateKey
	address string
}

// NewKeySigner derives the signer from a hex-encoded 32-byte seed.
func NewKeySigner(seedHex string, network ledger.Network) (*KeySigner, error) {
	seed, err := hex.DecodeString(seedHex)
	if err != nil || len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: seed must be %d hex-encoded bytes", ErrInvalidKey, ed25519.SeedSize)
	}
	return fromKey(ed25519.NewKeyFromSeed(seed), network)
}

// GenerateKeySigner creates a signer with a fresh random key.
func GenerateKeySigner(network ledger.Network) (*KeySigner, error) {
	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("signer: generate key: %w", err)
	}
	return fromKey(key, network)
}

func fromKey(key ed25519.PrivateKey, network ledger.Network) (*KeySigner, error) {
	pub := key.Public().(ed25519.PublicKey)
	addr, err := ledger.KeyAddress(ledger.Hash224(pub), network)
	if err != nil {
		return nil, err
	}
	return &KeySigner{key: key, address: addr}, nil
}

// Address returns the enterprise address of the key.
func (s *KeySigner) Address() string { return s.address }

// PublicKey returns the verification key.
func (s *KeySigner) PublicKey() ed25519.PublicKey {
	return s.key.Public().(ed25519.PublicKey)
}

// Sign witnesses tx.
func (s *KeySigner) Sign(_ context.Context, tx ledger.UnsignedTx) (ledger.SignedTx, error) {
	msg, err := ledger.SigningHash(tx)
	if err != nil {
		return ledger.SignedTx{}, err
	}
	w := ledger.Witness{PublicKey: s.PublicKey(), Signature: ed25519.Sign(s.key, msg)}
	return assemble(tx, w)
}

func assemble(tx ledger.UnsignedTx, w ledger.Witness) (ledger.SignedTx, error) {
	raw, err := ledger.EncodeSigned(tx, []ledger.Witness{w})
	if err != nil {
		return ledger.SignedTx{}, err
	}
	return ledger.SignedTx{UnsignedTx: tx, Witnesses: []ledger.Witness{w}, CBOR: raw}, nil
}
