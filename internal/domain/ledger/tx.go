package ledger

import (
	"encoding/hex"
	"fmt"
	"slices"

	"github.com/fxamacker/cbor/v2"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/blake2b"
)

// Redeemer execution budget attached to every script input.
const (
	DefaultExMem   = 14_000_000
	DefaultExSteps = 10_000_000_000

	redeemerTagSpend = 0
	datumInline      = 1
	tagEncodedCBOR   = 24

	// PlutusV2 is the language id of the contracts in cost model views.
	PlutusV2 = 1
)

var txEncMode = mustTxEncMode()

func mustTxEncMode() cbor.EncMode {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}

type txIn struct {
	_     struct{} `cbor:",toarray"`
	Hash  []byte
	Index uint32
}

type datumOption struct {
	_    struct{} `cbor:",toarray"`
	Kind uint8
	Data cbor.Tag
}

type txOut struct {
	Address []byte       `cbor:"0,keyasint"`
	Amount  uint64       `cbor:"1,keyasint"`
	Datum   *datumOption `cbor:"2,keyasint,omitempty"`
}

type txBody struct {
	Inputs         []txIn  `cbor:"0,keyasint"`
	Outputs        []txOut `cbor:"1,keyasint"`
	Fee            uint64  `cbor:"2,keyasint"`
	ScriptDataHash []byte  `cbor:"11,keyasint,omitempty"`
	Collateral     []txIn  `cbor:"13,keyasint,omitempty"`
}

type vkeyWitness struct {
	_         struct{} `cbor:",toarray"`
	PublicKey []byte
	Signature []byte
}

type exUnits struct {
	_     struct{} `cbor:",toarray"`
	Mem   uint64
	Steps uint64
}

type redeemer struct {
	_       struct{} `cbor:",toarray"`
	Tag     uint8
	Index   uint64
	Data    cbor.RawMessage
	ExUnits exUnits
}

type witnessSet struct {
	VKeys     []vkeyWitness   `cbor:"0,keyasint,omitempty"`
	Redeemers cbor.RawMessage `cbor:"5,keyasint,omitempty"`
	Scripts   [][]byte        `cbor:"7,keyasint,omitempty"`
}

type transaction struct {
	_         struct{} `cbor:",toarray"`
	Body      cbor.RawMessage
	Witnesses witnessSet
	Valid     bool
	Aux       interface{}
}

// SortedInputs returns the consumed refs in ledger order.
func SortedInputs(tx UnsignedTx) []OutRef {
	refs := tx.Spends()
	slices.SortFunc(refs, OutRef.Compare)
	return refs
}

// Seal serializes the body of tx and sets Body and Hash.
func Seal(tx *UnsignedTx) error {
	inputs, err := encodeRefs(SortedInputs(*tx))
	if err != nil {
		return err
	}
	body := txBody{Inputs: inputs, Outputs: make([]txOut, len(tx.Outputs)), Fee: tx.Fee}
	for i, out := range tx.Outputs {
		o := txOut{Address: AddressBytes(out.Address), Amount: out.Lovelace}
		if len(out.Datum) > 0 {
			o.Datum = &datumOption{Kind: datumInline, Data: cbor.Tag{Number: tagEncodedCBOR, Content: out.Datum}}
		}
		body.Outputs[i] = o
	}
	if len(tx.Collateral) > 0 {
		refs := make([]OutRef, len(tx.Collateral))
		for i, c := range tx.Collateral {
			refs[i] = c.Ref
		}
		slices.SortFunc(refs, OutRef.Compare)
		if body.Collateral, err = encodeRefs(refs); err != nil {
			return err
		}
	}
	if len(tx.ScriptInputs) > 0 {
		if body.ScriptDataHash, err = ScriptDataHash(*tx); err != nil {
			return err
		}
	}

	raw, err := txEncMode.Marshal(body)
	if err != nil {
		return fmt.Errorf("ledger: encode body: %w", err)
	}
	tx.Body = raw
	tx.Hash = HashBody(raw)
	return nil
}

// HashBody returns the hex transaction id for a serialized body.
func HashBody(body []byte) string {
	sum := blake2b.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// SigningHash returns the bytes a witness signs.
func SigningHash(tx UnsignedTx) ([]byte, error) {
	b, err := hex.DecodeString(tx.Hash)
	if err != nil || len(b) != blake2b.Size256 {
		return nil, fmt.Errorf("ledger: transaction %q is not sealed", tx.Hash)
	}
	return b, nil
}

// EncodeSigned serializes the full transaction with its witness set.
func EncodeSigned(tx UnsignedTx, witnesses []Witness) ([]byte, error) {
	if len(tx.Body) == 0 {
		return nil, fmt.Errorf("ledger: transaction is not sealed")
	}
	ws := witnessSet{}
	for _, w := range witnesses {
		ws.VKeys = append(ws.VKeys, vkeyWitness{PublicKey: w.PublicKey, Signature: w.Signature})
	}

	for _, in := range tx.ScriptInputs {
		if !slices.ContainsFunc(ws.Scripts, func(s []byte) bool { return slices.Equal(s, in.Script) }) {
			ws.Scripts = append(ws.Scripts, in.Script)
		}
	}
	if len(tx.ScriptInputs) > 0 {
		rs, err := encodeRedeemers(tx)
		if err != nil {
			return nil, err
		}
		ws.Redeemers = rs
	}

	raw, err := txEncMode.Marshal(transaction{Body: tx.Body, Witnesses: ws, Valid: true})
	if err != nil {
		return nil, fmt.Errorf("ledger: encode transaction: %w", err)
	}
	return raw, nil
}

// ScriptDataHash commits to the redeemers and the cost model view of the
// script inputs of tx: blake2b-256 of redeemers || language views. Datums are
// inline, so the witness datum part is empty.
func ScriptDataHash(tx UnsignedTx) ([]byte, error) {
	rs, err := encodeRedeemers(tx)
	if err != nil {
		return nil, err
	}
	costs := tx.CostModel
	if costs == nil {
		costs = []int64{}
	}
	views, err := txEncMode.Marshal(map[uint64][]int64{PlutusV2: costs})
	if err != nil {
		return nil, fmt.Errorf("ledger: encode language views: %w", err)
	}
	h := blake2b.Sum256(append(slices.Clone(rs), views...))
	return h[:], nil
}

// BodyScriptDataHash reads the script data hash carried by a sealed body.
func BodyScriptDataHash(body []byte) ([]byte, error) {
	var b txBody
	if err := cbor.Unmarshal(body, &b); err != nil {
		return nil, fmt.Errorf("ledger: decode body: %w", err)
	}
	return b.ScriptDataHash, nil
}

// ScriptFee is the execution fee of n script inputs at the default budget,
// rounded up to whole lovelace.
func ScriptFee(priceMem, priceSteps decimal.Decimal, n int) uint64 {
	if n == 0 {
		return 0
	}
	per := priceMem.Mul(decimal.NewFromInt(DefaultExMem)).
		Add(priceSteps.Mul(decimal.NewFromInt(DefaultExSteps)))
	total := per.Mul(decimal.NewFromInt(int64(n))).Ceil()
	if total.Sign() <= 0 {
		return 0
	}
	return uint64(total.IntPart())
}

func encodeRedeemers(tx UnsignedTx) (cbor.RawMessage, error) {
	order := SortedInputs(tx)
	rs := make([]redeemer, 0, len(tx.ScriptInputs))
	for _, in := range tx.ScriptInputs {
		idx := slices.IndexFunc(order, func(r OutRef) bool { return r == in.Output.Ref })
		rs = append(rs, redeemer{
			Tag:     redeemerTagSpend,
			Index:   uint64(idx),
			Data:    cbor.RawMessage(in.Redeemer),
			ExUnits: exUnits{Mem: DefaultExMem, Steps: DefaultExSteps},
		})
	}
	raw, err := txEncMode.Marshal(rs)
	if err != nil {
		return nil, fmt.Errorf("ledger: encode redeemers: %w", err)
	}
	return raw, nil
}

func encodeRefs(refs []OutRef) ([]txIn, error) {
	out := make([]txIn, len(refs))
	for i, r := range refs {
		h, err := hex.DecodeString(r.TxHash)
		if err != nil {
			return nil, fmt.Errorf("ledger: input %s: %w", r, err)
		}
		out[i] = txIn{Hash: h, Index: r.Index}
	}
	return out, nil
}
