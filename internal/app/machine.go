package service

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/vnFuhung2903/rubyams/internal/domain/contract"
	"github.com/vnFuhung2903/rubyams/internal/domain/ledger"
	"github.com/vnFuhung2903/rubyams/internal/domain/lifecycle"
	"github.com/vnFuhung2903/rubyams/internal/domain/locator"
	"github.com/vnFuhung2903/rubyams/internal/domain/model"
	"github.com/vnFuhung2903/rubyams/internal/domain/protocol"
	"github.com/vnFuhung2903/rubyams/internal/domain/txbuilder"
	"github.com/vnFuhung2903/rubyams/pkg/logger"
	"github.com/vnFuhung2903/rubyams/pkg/metrics"
)

// State is the lifecycle position of a record.
type State string

// Record states.
const (
	StateAbsent State = "absent"
	StateOpen   State = "open"
	StateClosed State = "closed"
)

// Snapshot is a freshly located record.
type Snapshot[R protocol.Record] struct {
	State  State
	Output ledger.Output
	Record R
}

// Outcome is the result of a transition: the transaction and the state read
// back after it confirmed.
type Outcome[R protocol.Record] struct {
	TxHash string
	Snapshot[R]
}

// Tracker follows transactions whose confirmation wait timed out.
type Tracker interface {
	Enqueue(ctx context.Context, p model.PendingTx) bool
}

// Journal records submitted transactions.
type Journal interface {
	Create(ctx context.Context, a model.Activity) (model.Activity, error)
}

// env holds what both state machines share.
type env struct {
	builder     *txbuilder.Builder
	driver      *lifecycle.Driver
	tracker     Tracker
	journal     Journal
	timeout     time.Duration
	trackWindow time.Duration
	now         func() time.Time
	logger      logger.Logger
}

// machine runs transitions for one record kind against one validator.
type machine[R protocol.Record] struct {
	kind      string
	validator contract.Validator
	locator   *locator.Locator[R]
	encode    func(R) ([]byte, error)
	signer    ledger.Signer
	env       *env
}

func (m machine[R]) with(s ledger.Signer) machine[R] {
	m.signer = s
	return m
}

func (m machine[R]) admin() protocol.Identity {
	return protocol.Identity(ledger.AddressBytes(m.signer.Address()))
}

// snapshot locates the record: the open one if any, otherwise a closed one.
func (m machine[R]) snapshot(ctx context.Context, id *big.Int) (Snapshot[R], error) {
	open, err := m.locator.Find(ctx, m.validator.Address, id, false)
	if err == nil {
		return Snapshot[R]{State: StateOpen, Output: open.Output, Record: open.Record}, nil
	}
	if !errors.Is(err, protocol.ErrRecordNotFound) {
		return Snapshot[R]{}, err
	}

	closed, err := m.locator.FindWhere(ctx, m.validator.Address, func(r R) bool {
		return r.IsClosed() && r.LogicalID().Cmp(id) == 0
	})
	switch {
	case err == nil:
		return Snapshot[R]{State: StateClosed, Output: closed.Output, Record: closed.Record}, nil
	case errors.Is(err, protocol.ErrRecordNotFound):
		return Snapshot[R]{State: StateAbsent}, nil
	default:
		return Snapshot[R]{}, err
	}
}

// existing returns the record in any state, or ErrRecordNotFound.
func (m machine[R]) existing(ctx context.Context, op string, id *big.Int) (Snapshot[R], error) {
	snap, err := m.snapshot(ctx, id)
	if err == nil && snap.State == StateAbsent {
		err = protocol.ErrRecordNotFound
	}
	if err != nil {
		return Snapshot[R]{}, protocol.NewOpError(m.op(op), id, err)
	}
	return snap, nil
}

// open returns the open record or the kind explaining why there is none.
func (m machine[R]) open(ctx context.Context, id *big.Int) (Snapshot[R], error) {
	snap, err := m.snapshot(ctx, id)
	if err != nil {
		return Snapshot[R]{}, err
	}
	switch snap.State {
	case StateOpen:
		return snap, nil
	case StateClosed:
		return Snapshot[R]{}, protocol.ErrAlreadyClosed
	default:
		return Snapshot[R]{}, protocol.ErrRecordNotFound
	}
}

// create pays a fresh record to the validator address.
func (m machine[R]) create(ctx context.Context, action string, id *big.Int, rec R) (Outcome[R], error) {
	return m.run(ctx, action, id, func() (Outcome[R], error) {
		snap, err := m.snapshot(ctx, id)
		if err != nil {
			return Outcome[R]{}, err
		}
		if snap.State == StateOpen {
			return Outcome[R]{}, protocol.ErrAlreadyExists
		}

		datum, err := m.encode(rec)
		if err != nil {
			return Outcome[R]{}, err
		}
		tx, err := m.env.builder.BuildCreate(ctx, txbuilder.CreateRequest{
			Name:            action,
			ContractAddress: m.validator.Address,
			Datum:           datum,
			ChangeAddress:   m.signer.Address(),
		})
		if err != nil {
			return Outcome[R]{}, err
		}
		return m.submit(ctx, action, id, tx)
	})
}

// step describes a spend of the located record.
type step[R protocol.Record] struct {
	redeemer protocol.Redeemer
	// next is the replacement record; nil spends without replacement.
	next    *R
	payouts []ledger.TxOutput
}

// transition spends the record located by snap.
func (m machine[R]) transition(ctx context.Context, action string, id *big.Int, snap Snapshot[R], s step[R]) (Outcome[R], error) {
	redeemer, err := protocol.EncodeRedeemer(s.redeemer)
	if err != nil {
		return Outcome[R]{}, err
	}
	var next []byte
	if s.next != nil {
		if next, err = m.encode(*s.next); err != nil {
			return Outcome[R]{}, err
		}
	}

	in := snap.Output
	tx, err := m.env.builder.BuildAction(ctx, txbuilder.ActionRequest{
		Name:            action,
		Input:           &in,
		Redeemer:        redeemer,
		Script:          m.validator.Script,
		ContractAddress: m.validator.Address,
		Next:            next,
		Payouts:         s.payouts,
		ChangeAddress:   m.signer.Address(),
	})
	if err != nil {
		return Outcome[R]{}, err
	}
	return m.submit(ctx, action, id, tx)
}

// submit signs, submits and waits, then reads the record back. A timed out
// transaction is journaled as pending and handed to the tracker.
func (m machine[R]) submit(ctx context.Context, action string, id *big.Int, tx ledger.UnsignedTx) (Outcome[R], error) {
	hash, err := m.env.driver.Submit(ctx, tx, m.signer, m.env.timeout)
	switch {
	case errors.Is(err, protocol.ErrConfirmationTimeout):
		m.journal(ctx, action, id, hash, model.StatusPending)
		m.track(ctx, action, id, hash)
		return Outcome[R]{TxHash: hash}, err
	case err != nil:
		return Outcome[R]{TxHash: hash}, err
	}
	m.journal(ctx, action, id, hash, model.StatusConfirmed)

	snap, err := m.snapshot(ctx, id)
	if err != nil {
		return Outcome[R]{TxHash: hash}, err
	}
	return Outcome[R]{TxHash: hash, Snapshot: snap}, nil
}

func (m machine[R]) journal(ctx context.Context, action string, id *big.Int, hash, status string) {
	if m.env.journal == nil {
		return
	}
	_, err := m.env.journal.Create(ctx, model.Activity{
		TxHash:    hash,
		Machine:   m.kind,
		Action:    action,
		LogicalID: id.String(),
		Actor:     m.signer.Address(),
		Status:    status,
	})
	if err != nil {
		m.env.logger.Warn(ctx, "journal write failed", logger.String("tx_hash", hash), logger.Error(err))
	}
}

func (m machine[R]) track(ctx context.Context, action string, id *big.Int, hash string) {
	if m.env.tracker == nil {
		return
	}
	now := m.env.now()
	ok := m.env.tracker.Enqueue(ctx, model.PendingTx{
		TxHash:      hash,
		Machine:     m.kind,
		Action:      action,
		LogicalID:   id.String(),
		SubmittedAt: now,
		Deadline:    now.Add(m.env.trackWindow),
	})
	if !ok {
		m.env.logger.Warn(ctx, "tracker refused transaction", logger.String("tx_hash", hash))
	}
}

// run records metrics and wraps failures into *protocol.OpError.
func (m machine[R]) run(ctx context.Context, action string, id *big.Int, fn func() (Outcome[R], error)) (Outcome[R], error) {
	start := time.Now()
	out, err := fn()
	latency := float64(time.Since(start).Milliseconds())

	if err != nil {
		kind := protocol.KindOf(err)
		outcome := "error"
		if kind != nil {
			outcome = kind.Error()
		}
		metrics.RecordOperation(m.kind, action, outcome, latency)
		m.env.logger.Warn(ctx, "operation failed",
			logger.String("machine", m.kind),
			logger.String("action", action),
			logger.String("logical_id", id.String()),
			logger.String("tx_hash", out.TxHash),
			logger.Error(err))
		return out, protocol.NewOpError(m.op(action), id, err).WithTxHash(out.TxHash)
	}

	metrics.RecordOperation(m.kind, action, "ok", latency)
	m.env.logger.Info(ctx, "operation completed",
		logger.String("machine", m.kind),
		logger.String("action", action),
		logger.String("logical_id", id.String()),
		logger.String("tx_hash", out.TxHash),
		logger.String("state", string(out.State)))
	return out, nil
}

func (m machine[R]) op(action string) string { return m.kind + "." + action }
