// Package emulator is an in-memory UTxO ledger. It enforces the rules the
// client relies on: inputs must exist and be unspent, value is conserved,
// fees cover the body size and the execution budget, script spends carry
// collateral and a matching script data hash, and key inputs are signed by
// their owner. Validator scripts are not executed; an optional
// rule hook per contract address stands in for them.
package emulator

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/vnFuhung2903/rubyams/internal/domain/ledger"
	"github.com/vnFuhung2903/rubyams/pkg/logger"
	"github.com/vnFuhung2903/rubyams/pkg/metrics"
)

// Rule validates a script input spent by tx.
type Rule func(in ledger.Output, redeemer []byte, tx ledger.SignedTx) error

// Emulator implements ledger.Ledger in memory.
type Emulator struct {
	mu sync.Mutex

	utxos map[ledger.OutRef]ledger.Output
	// order keeps outputs in creation order for deterministic queries.
	order     []ledger.OutRef
	pending   []ledger.SignedTx
	reserved  map[ledger.OutRef]string
	confirmed map[string]bool
	genesis   int

	manual      bool
	feePerByte  uint64
	feeConstant uint64
	priceMem    decimal.Decimal
	priceSteps  decimal.Decimal
	rules       map[string]Rule
	logger      logger.Logger
}

// Option configures an Emulator.
type Option func(*Emulator)

// WithManualConfirm keeps submitted transactions in the mempool until
// Confirm or ConfirmAll is called.
func WithManualConfirm() Option {
	return func(e *Emulator) { e.manual = true }
}

// WithFeeParams sets the minimum linear fee.
func WithFeeParams(perByte, constant uint64) Option {
	return func(e *Emulator) {
		e.feePerByte = perByte
		e.feeConstant = constant
	}
}

// WithExUnitPrices prices the execution budget of script inputs.
func WithExUnitPrices(mem, steps decimal.Decimal) Option {
	return func(e *Emulator) {
		e.priceMem = mem
		e.priceSteps = steps
	}
}

// WithRule installs a rule for script inputs at address.
func WithRule(address string, r Rule) Option {
	return func(e *Emulator) {
		if r != nil {
			e.rules[address] = r
		}
	}
}

// WithLogger sets the emulator logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Emulator) {
		if l != nil {
			e.logger = l
		}
	}
}

// New returns an empty ledger.
func New(opts ...Option) *Emulator {
	e := &Emulator{
		utxos:     make(map[ledger.OutRef]ledger.Output),
		reserved:  make(map[ledger.OutRef]string),
		confirmed: make(map[string]bool),
		rules:     make(map[string]Rule),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logger.Get().Named("emulator")
	}
	return e
}

// Fund creates a genesis output paying lovelace to address.
func (e *Emulator) Fund(address string, lovelace uint64) ledger.OutRef {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.genesis++
	ref := ledger.OutRef{TxHash: ledger.HashBody([]byte(fmt.Sprintf("genesis/%d", e.genesis)))}
	e.add(ledger.Output{Ref: ref, Address: address, Lovelace: lovelace})
	e.confirmed[ref.TxHash] = true
	metrics.UpdateLedgerUTxOCount(len(e.utxos))
	return ref
}

// QueryOutputs returns the confirmed unspent outputs at address.
func (e *Emulator) QueryOutputs(_ context.Context, address string) ([]ledger.Output, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []ledger.Output
	for _, ref := range e.order {
		if u := e.utxos[ref]; u.Address == address {
			u.Datum = bytes.Clone(u.Datum)
			out = append(out, u)
		}
	}
	return out, nil
}

// Submit validates tx and applies it, or queues it in manual mode.
func (e *Emulator) Submit(ctx context.Context, tx ledger.SignedTx) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.validate(tx); err != nil {
		e.logger.Debug(ctx, "transaction rejected", logger.String("tx_hash", tx.Hash), logger.Error(err))
		return "", fmt.Errorf("%w: %w", ledger.ErrRejected, err)
	}

	if e.manual {
		for _, ref := range tx.Spends() {
			e.reserved[ref] = tx.Hash
		}
		e.pending = append(e.pending, tx)
		metrics.UpdateLedgerMempoolSize(len(e.pending))
		return tx.Hash, nil
	}
	e.apply(tx)
	return tx.Hash, nil
}

// IsConfirmed reports whether hash was applied.
func (e *Emulator) IsConfirmed(_ context.Context, hash string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.confirmed[hash], nil
}

// Confirm applies one pending transaction.
func (e *Emulator) Confirm(hash string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	i := slices.IndexFunc(e.pending, func(tx ledger.SignedTx) bool { return tx.Hash == hash })
	if i < 0 {
		return fmt.Errorf("emulator: %s is not pending", hash)
	}
	tx := e.pending[i]
	e.pending = slices.Delete(e.pending, i, i+1)
	e.apply(tx)
	return nil
}

// ConfirmAll applies every pending transaction in submission order.
func (e *Emulator) ConfirmAll() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := len(e.pending)
	for _, tx := range e.pending {
		e.apply(tx)
	}
	e.pending = nil
	metrics.UpdateLedgerMempoolSize(0)
	return n
}

// Pending returns the hashes waiting in the mempool.
func (e *Emulator) Pending() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]string, len(e.pending))
	for i, tx := range e.pending {
		out[i] = tx.Hash
	}
	return out
}

func (e *Emulator) validate(tx ledger.SignedTx) error {
	if len(tx.Body) == 0 || ledger.HashBody(tx.Body) != tx.Hash {
		return errors.New("body does not match hash")
	}
	if e.confirmed[tx.Hash] || slices.ContainsFunc(e.pending, func(p ledger.SignedTx) bool { return p.Hash == tx.Hash }) {
		return errors.New("transaction already submitted")
	}

	for _, ref := range tx.Spends() {
		if _, ok := e.utxos[ref]; !ok {
			return fmt.Errorf("input %s is spent or unknown", ref)
		}
		if by, ok := e.reserved[ref]; ok {
			return fmt.Errorf("input %s is spent by pending %s", ref, by)
		}
	}

	// The ledger's view of each input is authoritative.
	var in uint64
	for _, ref := range tx.Spends() {
		in += e.utxos[ref].Lovelace
	}
	if in != tx.OutputValue()+tx.Fee {
		return fmt.Errorf("value not conserved: in %d, out %d, fee %d", in, tx.OutputValue(), tx.Fee)
	}
	minFee := e.feePerByte*uint64(len(tx.Body)) + e.feeConstant +
		ledger.ScriptFee(e.priceMem, e.priceSteps, len(tx.ScriptInputs))
	if tx.Fee < minFee {
		return fmt.Errorf("fee %d below minimum %d", tx.Fee, minFee)
	}

	if len(tx.ScriptInputs) > 0 {
		if len(tx.Collateral) == 0 {
			return errors.New("script spend without collateral")
		}
		for _, c := range tx.Collateral {
			if _, ok := e.utxos[c.Ref]; !ok {
				return fmt.Errorf("collateral %s is unknown", c.Ref)
			}
		}
		carried, err := ledger.BodyScriptDataHash(tx.Body)
		if err != nil {
			return err
		}
		want, err := ledger.ScriptDataHash(tx.UnsignedTx)
		if err != nil {
			return err
		}
		if !bytes.Equal(carried, want) {
			return errors.New("script data hash does not match redeemers and cost model")
		}
	}
	for _, si := range tx.ScriptInputs {
		onChain := e.utxos[si.Output.Ref]
		if rule, ok := e.rules[onChain.Address]; ok {
			if err := rule(onChain, si.Redeemer, tx); err != nil {
				return fmt.Errorf("script input %s: %w", si.Output.Ref, err)
			}
		}
	}

	return e.checkSignatures(tx)
}

func (e *Emulator) checkSignatures(tx ledger.SignedTx) error {
	msg, err := ledger.SigningHash(tx.UnsignedTx)
	if err != nil {
		return err
	}
	signed := func(keyHash []byte) bool {
		for _, w := range tx.Witnesses {
			if len(w.PublicKey) == ed25519.PublicKeySize &&
				bytes.Equal(ledger.Hash224(w.PublicKey), keyHash) &&
				ed25519.Verify(w.PublicKey, msg, w.Signature) {
				return true
			}
		}
		return false
	}
	for _, in := range tx.Inputs {
		owner, ok := ledger.PaymentKeyHash(e.utxos[in.Ref].Address)
		if !ok {
			continue
		}
		if !signed(owner) {
			return fmt.Errorf("input %s is not signed by its owner", in.Ref)
		}
	}
	return nil
}

func (e *Emulator) apply(tx ledger.SignedTx) {
	spent := tx.Spends()
	for _, ref := range spent {
		delete(e.utxos, ref)
		delete(e.reserved, ref)
	}
	e.order = slices.DeleteFunc(e.order, func(r ledger.OutRef) bool { return slices.Contains(spent, r) })

	for i, out := range tx.Outputs {
		e.add(ledger.Output{
			Ref:      ledger.OutRef{TxHash: tx.Hash, Index: uint32(i)},
			Address:  out.Address,
			Lovelace: out.Lovelace,
			Datum:    bytes.Clone(out.Datum),
		})
	}
	e.confirmed[tx.Hash] = true
	metrics.UpdateLedgerUTxOCount(len(e.utxos))
	metrics.UpdateLedgerMempoolSize(len(e.pending))
}

func (e *Emulator) add(out ledger.Output) {
	e.utxos[out.Ref] = out
	e.order = append(e.order, out.Ref)
}
