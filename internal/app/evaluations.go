package service

import (
	"context"
	"fmt"
	"math/big"

	"github.com/vnFuhung2903/rubyams/internal/domain/ledger"
	"github.com/vnFuhung2903/rubyams/internal/domain/protocol"
	"github.com/vnFuhung2903/rubyams/internal/domain/ranking"
)

// DefaultQuality is used when an evaluation is created without qualities.
const DefaultQuality = "Quality"

// EvaluationOutcome is the result of an evaluation transition.
type EvaluationOutcome = Outcome[protocol.EvaluationRecord]

// EvaluationSnapshot is a located evaluation.
type EvaluationSnapshot = Snapshot[protocol.EvaluationRecord]

// Evaluations drives the evaluation state machine for one signer.
type Evaluations struct {
	m machine[protocol.EvaluationRecord]
}

// As returns a facade acting for s.
func (e *Evaluations) As(s ledger.Signer) *Evaluations {
	return &Evaluations{m: e.m.with(s)}
}

// Create opens evaluation judgeID over qualities.
func (e *Evaluations) Create(ctx context.Context, judgeID *big.Int, qualities []string) (EvaluationOutcome, error) {
	action := protocol.ActionCreateEvaluation
	if err := validID(judgeID); err != nil {
		return EvaluationOutcome{}, protocol.NewOpError(e.m.op(action), judgeID, err)
	}
	if len(qualities) == 0 {
		qualities = []string{DefaultQuality}
	}
	return e.m.create(ctx, action, judgeID, protocol.NewEvaluation(e.m.admin(), judgeID, qualities...))
}

// Vote adds voter to quality. Unknown qualities fail before anything is
// built; duplicate voters are left to the validator.
func (e *Evaluations) Vote(ctx context.Context, judgeID *big.Int, voter protocol.Identity, quality string) (EvaluationOutcome, error) {
	action := protocol.ActionPlaceVote
	if err := validID(judgeID); err != nil {
		return EvaluationOutcome{}, protocol.NewOpError(e.m.op(action), judgeID, err)
	}
	if len(voter) == 0 {
		return EvaluationOutcome{}, protocol.NewOpError(e.m.op(action), judgeID,
			fmt.Errorf("%w: missing voter", protocol.ErrBuildFailed))
	}
	return e.m.run(ctx, action, judgeID, func() (EvaluationOutcome, error) {
		snap, err := e.m.open(ctx, judgeID)
		if err != nil {
			return EvaluationOutcome{}, err
		}
		next, err := snap.Record.WithVote(voter, []byte(quality))
		if err != nil {
			return EvaluationOutcome{}, err
		}
		return e.m.transition(ctx, action, judgeID, snap, step[protocol.EvaluationRecord]{
			redeemer: protocol.PlaceVote{Quality: []byte(quality)},
			next:     &next,
		})
	})
}

// End closes the open evaluation.
func (e *Evaluations) End(ctx context.Context, judgeID *big.Int) (EvaluationOutcome, error) {
	action := protocol.ActionEndEvaluation
	if err := validID(judgeID); err != nil {
		return EvaluationOutcome{}, protocol.NewOpError(e.m.op(action), judgeID, err)
	}
	return e.m.run(ctx, action, judgeID, func() (EvaluationOutcome, error) {
		snap, err := e.m.open(ctx, judgeID)
		if err != nil {
			return EvaluationOutcome{}, err
		}
		next := snap.Record.Closing()
		return e.m.transition(ctx, action, judgeID, snap, step[protocol.EvaluationRecord]{
			redeemer: protocol.EndEvaluation{JudgeID: judgeID},
			next:     &next,
		})
	})
}

// State returns the evaluation as currently on chain.
func (e *Evaluations) State(ctx context.Context, judgeID *big.Int) (EvaluationSnapshot, error) {
	if err := validID(judgeID); err != nil {
		return EvaluationSnapshot{}, protocol.NewOpError(e.m.op("state"), judgeID, err)
	}
	snap, err := e.m.snapshot(ctx, judgeID)
	if err != nil {
		return EvaluationSnapshot{}, protocol.NewOpError(e.m.op("state"), judgeID, err)
	}
	return snap, nil
}

// Results tallies the votes of the evaluation, open or closed.
func (e *Evaluations) Results(ctx context.Context, judgeID *big.Int) ([]ranking.Tally, error) {
	if err := validID(judgeID); err != nil {
		return nil, protocol.NewOpError(e.m.op("results"), judgeID, err)
	}
	snap, err := e.m.existing(ctx, "results", judgeID)
	if err != nil {
		return nil, err
	}
	return ranking.Tallies(snap.Record), nil
}
