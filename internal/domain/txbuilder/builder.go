// Package txbuilder assembles balanced, unsigned transactions that create or
// spend protocol records. It never signs or submits.
package txbuilder

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"
	"github.com/vnFuhung2903/rubyams/internal/domain/ledger"
	"github.com/vnFuhung2903/rubyams/internal/domain/protocol"
	"github.com/vnFuhung2903/rubyams/pkg/logger"
	"github.com/vnFuhung2903/rubyams/pkg/metrics"
)

// Causes wrapped by protocol.ErrBuildFailed.
var (
	ErrInsufficientFunds = errors.New("insufficient wallet funds")
	ErrNoCollateral      = errors.New("no wallet output can serve as collateral")
)

// Size allowances for the witness set, which is not part of the body.
const (
	vkeyWitnessSize    = 101
	redeemerEntrySize  = 24
	maxFeeIterations   = 8
	witnessSetOverhead = 8
)

// Params are the protocol parameters the builder balances against.
type Params struct {
	MinDeposit        uint64
	FeePerByte        uint64
	FeeConstant       uint64
	CollateralPercent uint64
	MinCollateral     uint64
	MinChange         uint64
	// PriceMem and PriceSteps price the execution budget of script inputs.
	PriceMem   decimal.Decimal
	PriceSteps decimal.Decimal
	// CostModel is the PlutusV2 cost model of the target network.
	CostModel []int64
}

// DefaultParams mirror the public test networks.
func DefaultParams() Params {
	return Params{
		MinDeposit:        2_000_000,
		FeePerByte:        44,
		FeeConstant:       155_381,
		CollateralPercent: 150,
		MinCollateral:     5_000_000,
		MinChange:         1_000_000,
		PriceMem:          decimal.RequireFromString("0.0577"),
		PriceSteps:        decimal.RequireFromString("0.0000721"),
	}
}

// Querier reads wallet outputs.
type Querier interface {
	QueryOutputs(ctx context.Context, address string) ([]ledger.Output, error)
}

// CreateRequest describes a transaction paying a new record to a contract.
type CreateRequest struct {
	Name            string
	ContractAddress string
	Deposit         uint64
	Datum           []byte
	ChangeAddress   string
}

// ActionRequest describes a transaction spending a record.
type ActionRequest struct {
	Name            string
	Input           *ledger.Output
	Redeemer        []byte
	Script          []byte
	ContractAddress string
	// Next is the datum of the continuing output; nil spends the record
	// without replacement.
	Next    []byte
	Deposit uint64
	Payouts []ledger.TxOutput
	// ChangeAddress funds fees and collateral and receives change.
	ChangeAddress string
}

// Builder balances transactions against the signer's wallet.
type Builder struct {
	wallet Querier
	params Params
	logger logger.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets the builder logger.
func WithLogger(l logger.Logger) Option {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithParams overrides the default protocol parameters.
func WithParams(p Params) Option {
	return func(b *Builder) { b.params = p }
}

// New returns a builder reading wallet outputs through q.
func New(q Querier, opts ...Option) *Builder {
	b := &Builder{wallet: q, params: DefaultParams()}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = logger.Get().Named("txbuilder")
	}
	return b
}

// Params returns the active parameters.
func (b *Builder) Params() Params { return b.params }

// BuildCreate pays the deposit with an inline datum to the contract.
func (b *Builder) BuildCreate(ctx context.Context, req CreateRequest) (ledger.UnsignedTx, error) {
	if len(req.Datum) == 0 {
		return b.fail(req.Name, errors.New("create without datum"))
	}
	out := ledger.TxOutput{Address: req.ContractAddress, Lovelace: max(req.Deposit, b.params.MinDeposit), Datum: req.Datum}
	return b.balance(ctx, req.Name, req.ChangeAddress, draft{outputs: []ledger.TxOutput{out}})
}

// BuildAction spends the located record with a redeemer.
func (b *Builder) BuildAction(ctx context.Context, req ActionRequest) (ledger.UnsignedTx, error) {
	if req.Input == nil {
		metrics.RecordTxBuildError(req.Name)
		return ledger.UnsignedTx{}, protocol.ErrRecordNotFound
	}
	if len(req.Redeemer) == 0 || len(req.Script) == 0 {
		return b.fail(req.Name, errors.New("action without redeemer or script"))
	}

	d := draft{script: &ledger.ScriptInput{Output: *req.Input, Redeemer: req.Redeemer, Script: req.Script}}
	if req.Next != nil {
		deposit := max(req.Deposit, req.Input.Lovelace, b.params.MinDeposit)
		d.outputs = append(d.outputs, ledger.TxOutput{Address: req.ContractAddress, Lovelace: deposit, Datum: req.Next})
	}
	d.outputs = append(d.outputs, req.Payouts...)
	return b.balance(ctx, req.Name, req.ChangeAddress, d)
}

type draft struct {
	script  *ledger.ScriptInput
	outputs []ledger.TxOutput
}

func (b *Builder) balance(ctx context.Context, name, changeAddr string, d draft) (ledger.UnsignedTx, error) {
	utxos, err := b.wallet.QueryOutputs(ctx, changeAddr)
	if err != nil {
		return b.fail(name, fmt.Errorf("query wallet: %w", err))
	}
	wallet := spendable(utxos, d.script)

	var scriptValue uint64
	if d.script != nil {
		scriptValue = d.script.Output.Lovelace
	}
	var fixed uint64
	for _, o := range d.outputs {
		fixed += o.Lovelace
	}

	fee := b.params.FeeConstant
	for range maxFeeIterations {
		tx, err := b.assemble(name, changeAddr, d, wallet, scriptValue, fixed, fee)
		if err != nil {
			return b.fail(name, err)
		}
		next := b.fee(tx)
		if next <= fee {
			metrics.RecordTxBuilt(name)
			b.logger.Debug(ctx, "transaction built",
				logger.String("action", name),
				logger.String("tx_hash", tx.Hash),
				logger.Uint64("fee", tx.Fee),
				logger.Int("inputs", len(tx.Inputs)))
			return tx, nil
		}
		fee = next
	}
	return b.fail(name, errors.New("fee did not converge"))
}

func (b *Builder) assemble(name, changeAddr string, d draft, wallet []ledger.Output, scriptValue, fixed, fee uint64) (ledger.UnsignedTx, error) {
	need := fixed + fee

	var selected []ledger.Output
	have := scriptValue
	for _, u := range wallet {
		if have >= need {
			break
		}
		selected = append(selected, u)
		have += u.Lovelace
	}
	if have < need {
		return ledger.UnsignedTx{}, fmt.Errorf("%w: need %d, have %d", ErrInsufficientFunds, need, have)
	}

	tx := ledger.UnsignedTx{
		Action:  name,
		Inputs:  selected,
		Outputs: slices.Clone(d.outputs),
		Fee:     fee,
	}
	if change := have - need; change >= b.params.MinChange {
		tx.Outputs = append(tx.Outputs, ledger.TxOutput{Address: changeAddr, Lovelace: change})
	} else {
		tx.Fee += change
	}

	if d.script != nil {
		tx.ScriptInputs = []ledger.ScriptInput{*d.script}
		tx.CostModel = b.params.CostModel
		c, ok := b.collateral(wallet, tx.Fee)
		if !ok {
			return ledger.UnsignedTx{}, ErrNoCollateral
		}
		tx.Collateral = []ledger.Output{c}
	}

	if err := ledger.Seal(&tx); err != nil {
		return ledger.UnsignedTx{}, err
	}
	return tx, nil
}

// collateral picks the smallest wallet output covering the requirement.
func (b *Builder) collateral(wallet []ledger.Output, fee uint64) (ledger.Output, bool) {
	required := max(fee*b.params.CollateralPercent/100, b.params.MinCollateral)
	for i := len(wallet) - 1; i >= 0; i-- {
		if wallet[i].Lovelace >= required {
			return wallet[i], true
		}
	}
	return ledger.Output{}, false
}

// fee estimates the size fee of tx including its witness set, plus the
// execution fee of its script inputs.
func (b *Builder) fee(tx ledger.UnsignedTx) uint64 {
	size := len(tx.Body) + witnessSetOverhead + vkeyWitnessSize
	for _, in := range tx.ScriptInputs {
		size += len(in.Script) + len(in.Redeemer) + redeemerEntrySize
	}
	return b.params.FeePerByte*uint64(size) + b.params.FeeConstant +
		ledger.ScriptFee(b.params.PriceMem, b.params.PriceSteps, len(tx.ScriptInputs))
}

func (b *Builder) fail(name string, err error) (ledger.UnsignedTx, error) {
	metrics.RecordTxBuildError(name)
	return ledger.UnsignedTx{}, fmt.Errorf("%w: %s: %w", protocol.ErrBuildFailed, name, err)
}

// spendable returns datum-free wallet outputs, largest first, ties by ref.
func spendable(utxos []ledger.Output, script *ledger.ScriptInput) []ledger.Output {
	out := make([]ledger.Output, 0, len(utxos))
	for _, u := range utxos {
		if u.HasDatum() || (script != nil && u.Ref == script.Output.Ref) {
			continue
		}
		out = append(out, u)
	}
	slices.SortFunc(out, func(a, b ledger.Output) int {
		switch {
		case a.Lovelace > b.Lovelace:
			return -1
		case a.Lovelace < b.Lovelace:
			return 1
		default:
			return a.Ref.Compare(b.Ref)
		}
	})
	return out
}
