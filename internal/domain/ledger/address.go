package ledger

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"golang.org/x/crypto/blake2b"
)

// Network selects address prefixes and header bits.
type Network string

const (
	Testnet Network = "testnet"
	Mainnet Network = "mainnet"
)

// Enterprise address header types.
const (
	headerKeyEnterprise    = 0x60
	headerScriptEnterprise = 0x70

	// HashSize is the size of key and script hashes.
	HashSize = 28
)

func (n Network) id() byte {
	if n == Mainnet {
		return 1
	}
	return 0
}

func (n Network) hrp() string {
	if n == Mainnet {
		return "addr"
	}
	return "addr_test"
}

// Hash224 is the 28-byte blake2b digest used for key and script hashes.
func Hash224(data []byte) []byte {
	h, err := blake2b.New(HashSize, nil)
	if err != nil {
		panic(err)
	}
	h.Write(data)
	return h.Sum(nil)
}

// KeyAddress renders the enterprise address for a payment key hash.
func KeyAddress(keyHash []byte, network Network) (string, error) {
	return encodeAddress(headerKeyEnterprise|network.id(), keyHash, network)
}

// ScriptAddress renders the enterprise address for a script hash.
func ScriptAddress(scriptHash []byte, network Network) (string, error) {
	return encodeAddress(headerScriptEnterprise|network.id(), scriptHash, network)
}

func encodeAddress(header byte, hash []byte, network Network) (string, error) {
	if len(hash) != HashSize {
		return "", fmt.Errorf("%w: hash is %d bytes", ErrInvalidAddress, len(hash))
	}
	raw := append([]byte{header}, hash...)
	conv, err := bech32.ConvertBits(raw, 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	}
	addr, err := bech32.Encode(network.hrp(), conv)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	}
	return addr, nil
}

// AddressBytes returns the raw bytes behind a bech32 address. Anything that
// is not bech32 is carried as its text bytes.
func AddressBytes(addr string) []byte {
	_, data, err := bech32.DecodeNoLimit(addr)
	if err != nil {
		return []byte(addr)
	}
	raw, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return []byte(addr)
	}
	return raw
}

// PaymentKeyHash extracts the key hash from an enterprise key address.
func PaymentKeyHash(addr string) ([]byte, bool) {
	raw := AddressBytes(addr)
	if len(raw) != HashSize+1 || raw[0]&0xf0 != headerKeyEnterprise {
		return nil, false
	}
	return bytes.Clone(raw[1:]), true
}
