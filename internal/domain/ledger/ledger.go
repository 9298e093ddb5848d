// Package ledger defines the UTxO ledger model the protocol runs against:
// outputs, unsigned and signed transactions, and the ledger and signer
// capabilities the rest of the module depends on.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrRejected is returned by Submit when the ledger refuses a transaction.
	ErrRejected = errors.New("ledger: transaction rejected")
	// ErrInvalidAddress is returned for addresses that cannot be parsed.
	ErrInvalidAddress = errors.New("ledger: invalid address")
)

// OutRef identifies an output by the transaction that created it.
type OutRef struct {
	TxHash string `json:"tx_hash"`
	Index  uint32 `json:"index"`
}

func (r OutRef) String() string { return fmt.Sprintf("%s#%d", r.TxHash, r.Index) }

// Compare orders refs by hash, then index.
func (r OutRef) Compare(o OutRef) int {
	if c := strings.Compare(r.TxHash, o.TxHash); c != 0 {
		return c
	}
	switch {
	case r.Index < o.Index:
		return -1
	case r.Index > o.Index:
		return 1
	default:
		return 0
	}
}

// Output is an unspent output as returned by the ledger.
type Output struct {
	Ref      OutRef `json:"ref"`
	Address  string `json:"address"`
	Lovelace uint64 `json:"lovelace"`
	// Datum holds the inline datum bytes, if any.
	Datum []byte `json:"datum,omitempty"`
}

// HasDatum reports whether the output carries an inline datum.
func (o Output) HasDatum() bool { return len(o.Datum) > 0 }

// TxOutput is an output produced by a transaction.
type TxOutput struct {
	Address  string
	Lovelace uint64
	Datum    []byte
}

// ScriptInput is a contract output spent with a redeemer.
type ScriptInput struct {
	Output   Output
	Redeemer []byte
	Script   []byte
}

// UnsignedTx is a balanced transaction ready for signing.
type UnsignedTx struct {
	// Hash is the hex body hash; it becomes the transaction id.
	Hash string
	Body []byte
	// Action names the protocol action, for logs and metrics.
	Action       string
	Inputs       []Output
	ScriptInputs []ScriptInput
	Collateral   []Output
	Outputs      []TxOutput
	Fee          uint64
	// CostModel is the PlutusV2 cost model committed to by the script data
	// hash of script spends.
	CostModel []int64
}

// Spends returns every ref the transaction consumes.
func (tx UnsignedTx) Spends() []OutRef {
	refs := make([]OutRef, 0, len(tx.Inputs)+len(tx.ScriptInputs))
	for _, in := range tx.Inputs {
		refs = append(refs, in.Ref)
	}
	for _, in := range tx.ScriptInputs {
		refs = append(refs, in.Output.Ref)
	}
	return refs
}

// InputValue sums the lovelace of all consumed outputs.
func (tx UnsignedTx) InputValue() uint64 {
	var total uint64
	for _, in := range tx.Inputs {
		total += in.Lovelace
	}
	for _, in := range tx.ScriptInputs {
		total += in.Output.Lovelace
	}
	return total
}

// OutputValue sums the lovelace of all produced outputs.
func (tx UnsignedTx) OutputValue() uint64 {
	var total uint64
	for _, out := range tx.Outputs {
		total += out.Lovelace
	}
	return total
}

// Witness is a verification key and its signature over the body hash.
type Witness struct {
	PublicKey []byte
	Signature []byte
}

// SignedTx is an unsigned transaction plus its witnesses.
type SignedTx struct {
	UnsignedTx
	Witnesses []Witness
	// CBOR is the serialized transaction as submitted.
	CBOR []byte
}

// Ledger is the ledger capability.
type Ledger interface {
	// QueryOutputs returns a snapshot of the unspent outputs at address.
	QueryOutputs(ctx context.Context, address string) ([]Output, error)
	// Submit sends a signed transaction and returns its hash.
	Submit(ctx context.Context, tx SignedTx) (string, error)
	// IsConfirmed reports whether the transaction is on-chain.
	IsConfirmed(ctx context.Context, txHash string) (bool, error)
}

// Signer is the wallet capability.
type Signer interface {
	// Address is the wallet's payment address.
	Address() string
	// Sign witnesses tx.
	Sign(ctx context.Context, tx UnsignedTx) (SignedTx, error)
}
