package protocol

import (
	"fmt"
	"math/big"

	"github.com/vnFuhung2903/rubyams/internal/domain/plutus"
)

// Action names, used for logging, metrics and the journal.
const (
	ActionCreateAuction    = "create_auction"
	ActionPlaceBid         = "place_bid"
	ActionEndAuction       = "end_auction"
	ActionSendBack         = "send_back"
	ActionCreateEvaluation = "create_evaluation"
	ActionPlaceVote        = "place_vote"
	ActionEndEvaluation    = "end_evaluation"
)

// Redeemer is an action passed to the validator when spending a record.
type Redeemer interface {
	Name() string
	ToData() plutus.Data
}

// EncodeRedeemer serializes r.
func EncodeRedeemer(r Redeemer) ([]byte, error) {
	return plutus.Encode(r.ToData())
}

// AuctionAction is one of CreateAuction, PlaceBid, EndAuction or SendBack.
type AuctionAction interface {
	Redeemer
	auctionAction()
}

// CreateAuction is Constr 0 [auctionId, studentsMax].
type CreateAuction struct {
	AuctionID   *big.Int
	StudentsMax *big.Int
}

// PlaceBid is Constr 1 [amount].
type PlaceBid struct {
	Amount *big.Int
}

// EndAuction is Constr 2 [auctionId].
type EndAuction struct {
	AuctionID *big.Int
}

// SendBack is Constr 3 [recipient].
type SendBack struct {
	Recipient []byte
}

func (CreateAuction) auctionAction() {}
func (PlaceBid) auctionAction()      {}
func (EndAuction) auctionAction()    {}
func (SendBack) auctionAction()      {}

func (CreateAuction) Name() string { return ActionCreateAuction }
func (PlaceBid) Name() string      { return ActionPlaceBid }
func (EndAuction) Name() string    { return ActionEndAuction }
func (SendBack) Name() string      { return ActionSendBack }

func (a CreateAuction) ToData() plutus.Data {
	return plutus.NewConstr(0, plutus.BigInt(a.AuctionID), plutus.BigInt(a.StudentsMax))
}

func (a PlaceBid) ToData() plutus.Data {
	return plutus.NewConstr(1, plutus.BigInt(a.Amount))
}

func (a EndAuction) ToData() plutus.Data {
	return plutus.NewConstr(2, plutus.BigInt(a.AuctionID))
}

func (a SendBack) ToData() plutus.Data {
	return plutus.NewConstr(3, plutus.Bytes(a.Recipient))
}

// AuctionActionFromData reads an auction redeemer.
func AuctionActionFromData(d plutus.Data) (AuctionAction, error) {
	c, ok := d.(plutus.Constr)
	if !ok {
		return nil, fmt.Errorf("%w: auction action is %s", ErrMalformedDatum, plutus.Describe(d))
	}
	switch c.Index {
	case 0:
		ints, err := intFields(c, 2)
		if err != nil {
			return nil, err
		}
		return CreateAuction{AuctionID: ints[0], StudentsMax: ints[1]}, nil
	case 1:
		ints, err := intFields(c, 1)
		if err != nil {
			return nil, err
		}
		return PlaceBid{Amount: ints[0]}, nil
	case 2:
		ints, err := intFields(c, 1)
		if err != nil {
			return nil, err
		}
		return EndAuction{AuctionID: ints[0]}, nil
	case 3:
		if len(c.Fields) != 1 {
			return nil, fmt.Errorf("%w: send back takes one field", ErrMalformedDatum)
		}
		b, err := plutus.AsBytes(c.Fields[0])
		if err != nil {
			return nil, malformed("recipient", err)
		}
		return SendBack{Recipient: b}, nil
	default:
		return nil, fmt.Errorf("%w: unknown auction action %d", ErrMalformedDatum, c.Index)
	}
}

// EvaluationAction is one of CreateEvaluation, PlaceVote or EndEvaluation.
type EvaluationAction interface {
	Redeemer
	evaluationAction()
}

// CreateEvaluation is Constr 0 [judgeId].
type CreateEvaluation struct {
	JudgeID *big.Int
}

// PlaceVote is Constr 1 [qualityName].
type PlaceVote struct {
	Quality []byte
}

// EndEvaluation is Constr 2 [judgeId].
type EndEvaluation struct {
	JudgeID *big.Int
}

func (CreateEvaluation) evaluationAction() {}
func (PlaceVote) evaluationAction()        {}
func (EndEvaluation) evaluationAction()    {}

func (CreateEvaluation) Name() string { return ActionCreateEvaluation }
func (PlaceVote) Name() string        { return ActionPlaceVote }
func (EndEvaluation) Name() string    { return ActionEndEvaluation }

func (a CreateEvaluation) ToData() plutus.Data {
	return plutus.NewConstr(0, plutus.BigInt(a.JudgeID))
}

func (a PlaceVote) ToData() plutus.Data {
	return plutus.NewConstr(1, plutus.Bytes(a.Quality))
}

func (a EndEvaluation) ToData() plutus.Data {
	return plutus.NewConstr(2, plutus.BigInt(a.JudgeID))
}

// EvaluationActionFromData reads an evaluation redeemer.
func EvaluationActionFromData(d plutus.Data) (EvaluationAction, error) {
	c, ok := d.(plutus.Constr)
	if !ok {
		return nil, fmt.Errorf("%w: evaluation action is %s", ErrMalformedDatum, plutus.Describe(d))
	}
	switch c.Index {
	case 0:
		ints, err := intFields(c, 1)
		if err != nil {
			return nil, err
		}
		return CreateEvaluation{JudgeID: ints[0]}, nil
	case 1:
		if len(c.Fields) != 1 {
			return nil, fmt.Errorf("%w: place vote takes one field", ErrMalformedDatum)
		}
		b, err := plutus.AsBytes(c.Fields[0])
		if err != nil {
			return nil, malformed("quality", err)
		}
		return PlaceVote{Quality: b}, nil
	case 2:
		ints, err := intFields(c, 1)
		if err != nil {
			return nil, err
		}
		return EndEvaluation{JudgeID: ints[0]}, nil
	default:
		return nil, fmt.Errorf("%w: unknown evaluation action %d", ErrMalformedDatum, c.Index)
	}
}

func intFields(c plutus.Constr, n int) ([]*big.Int, error) {
	if len(c.Fields) != n {
		return nil, fmt.Errorf("%w: action %d takes %d fields, got %d", ErrMalformedDatum, c.Index, n, len(c.Fields))
	}
	out := make([]*big.Int, n)
	for i, f := range c.Fields {
		v, err := plutus.AsInt(f)
		if err != nil {
			return nil, malformed(fmt.Sprintf("field %d", i), err)
		}
		out[i] = v
	}
	return out, nil
}

// DecodeAuctionAction parses a serialized auction redeemer.
func DecodeAuctionAction(raw []byte) (AuctionAction, error) {
	d, err := plutus.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedDatum, err)
	}
	return AuctionActionFromData(d)
}

// DecodeEvaluationAction parses a serialized evaluation redeemer.
func DecodeEvaluationAction(raw []byte) (EvaluationAction, error) {
	d, err := plutus.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedDatum, err)
	}
	return EvaluationActionFromData(d)
}
