// Package contract loads the compiled validators from the blueprint and
// derives the script addresses the protocol runs against.
package contract

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"github.com/tidwall/gjson"
	"github.com/vnFuhung2903/rubyams/internal/domain/ledger"
)

// ErrValidatorNotFound is returned when the blueprint lacks a required title.
var ErrValidatorNotFound = errors.New("contract: validator not found in blueprint")

// plutusV2 is the language tag prepended to the script before hashing.
const plutusV2 = 0x02

// Validator is one compiled contract.
type Validator struct {
	Title   string
	Script  []byte
	Hash    []byte
	Address string
}

// HashHex returns the script hash as hex.
func (v Validator) HashHex() string { return hex.EncodeToString(v.Hash) }

// Config is the immutable contract configuration.
type Config struct {
	Network    ledger.Network
	Auction    Validator
	Evaluation Validator
	PolicyID   string
	AssetName  string
}

// Options select validators and token details.
type Options struct {
	Network         ledger.Network
	AuctionTitle    string
	EvaluationTitle string
	PolicyID        string
	AssetName       string
}

// Load reads the blueprint at path.
func Load(path string, opts Options) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("contract: read blueprint: %w", err)
	}
	return Parse(raw, opts)
}

// Parse builds the configuration from blueprint JSON.
func Parse(blueprint []byte, opts Options) (Config, error) {
	if !gjson.ValidBytes(blueprint) {
		return Config{}, errors.New("contract: blueprint is not valid JSON")
	}
	doc := gjson.ParseBytes(blueprint)

	auction, err := validator(doc, opts.AuctionTitle, opts.Network)
	if err != nil {
		return Config{}, err
	}
	evaluation, err := validator(doc, opts.EvaluationTitle, opts.Network)
	if err != nil {
		return Config{}, err
	}
	return Config{
		Network:    opts.Network,
		Auction:    auction,
		Evaluation: evaluation,
		PolicyID:   opts.PolicyID,
		AssetName:  opts.AssetName,
	}, nil
}

func validator(doc gjson.Result, title string, network ledger.Network) (Validator, error) {
	var found gjson.Result
	doc.Get("validators").ForEach(func(_, v gjson.Result) bool {
		if v.Get("title").String() == title {
			found = v
			return false
		}
		return true
	})
	if !found.Exists() {
		return Validator{}, fmt.Errorf("%w: %q", ErrValidatorNotFound, title)
	}

	script, err := hex.DecodeString(found.Get("compiledCode").String())
	if err != nil || len(script) == 0 {
		return Validator{}, fmt.Errorf("contract: %q has no compiled code", title)
	}

	hash := ScriptHash(script)
	if declared := found.Get("hash").String(); declared != "" {
		h, err := hex.DecodeString(declared)
		if err != nil || len(h) != ledger.HashSize {
			return Validator{}, fmt.Errorf("contract: %q has an invalid hash", title)
		}
		hash = h
	}

	addr, err := ledger.ScriptAddress(hash, network)
	if err != nil {
		return Validator{}, fmt.Errorf("contract: %q: %w", title, err)
	}
	return Validator{Title: title, Script: script, Hash: hash, Address: addr}, nil
}

// ScriptHash hashes a compiled script the way the ledger does.
func ScriptHash(script []byte) []byte {
	return ledger.Hash224(append([]byte{plutusV2}, script...))
}

// Owns reports whether addr belongs to one of the validators.
func (c Config) Owns(addr string) bool {
	raw := ledger.AddressBytes(addr)
	return bytes.Equal(raw, ledger.AddressBytes(c.Auction.Address)) ||
		bytes.Equal(raw, ledger.AddressBytes(c.Evaluation.Address))
}
