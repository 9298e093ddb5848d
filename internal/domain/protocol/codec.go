package protocol

import (
	"fmt"

	"github.com/vnFuhung2903/rubyams/internal/domain/plutus"
)

// Field counts of the record constructors.
const (
	auctionFields    = 5
	evaluationFields = 4
	bidFields        = 2
	qualityFields    = 2
)

// ToData lays the auction out as
// Constr 0 [admin, auctionId, closed, [Constr 0 [bidder, amount]], studentsMax].
func (r AuctionRecord) ToData() plutus.Data {
	bids := make(plutus.List, len(r.Bids))
	for i, b := range r.Bids {
		bids[i] = plutus.NewConstr(0, plutus.Bytes(b.Bidder), plutus.BigInt(b.Amount))
	}
	return plutus.NewConstr(0,
		plutus.Bytes(r.Admin),
		plutus.BigInt(r.AuctionID),
		plutus.Bool(r.Closed),
		bids,
		plutus.BigInt(r.StudentsMax),
	)
}

// AuctionFromData reads an auction datum. Any shape mismatch is reported as
// ErrMalformedDatum.
func AuctionFromData(d plutus.Data) (AuctionRecord, error) {
	c, err := recordConstr(d, auctionFields)
	if err != nil {
		return AuctionRecord{}, err
	}
	admin, err := plutus.AsBytes(c.Fields[0])
	if err != nil {
		return AuctionRecord{}, malformed("admin", err)
	}
	id, err := plutus.AsInt(c.Fields[1])
	if err != nil {
		return AuctionRecord{}, malformed("auction id", err)
	}
	closed, err := plutus.AsBool(c.Fields[2])
	if err != nil {
		return AuctionRecord{}, malformed("closed flag", err)
	}
	list, err := plutus.AsList(c.Fields[3])
	if err != nil {
		return AuctionRecord{}, malformed("bids", err)
	}
	bids := make([]Bid, len(list))
	for i, item := range list {
		bc, err := recordConstr(item, bidFields)
		if err != nil {
			return AuctionRecord{}, fmt.Errorf("bid %d: %w", i, err)
		}
		bidder, err := plutus.AsBytes(bc.Fields[0])
		if err != nil {
			return AuctionRecord{}, malformed("bidder", err)
		}
		amount, err := plutus.AsInt(bc.Fields[1])
		if err != nil {
			return AuctionRecord{}, malformed("bid amount", err)
		}
		bids[i] = Bid{Bidder: bidder, Amount: amount}
	}
	studentsMax, err := plutus.AsInt(c.Fields[4])
	if err != nil {
		return AuctionRecord{}, malformed("students max", err)
	}
	return AuctionRecord{Admin: admin, AuctionID: id, Closed: closed, Bids: bids, StudentsMax: studentsMax}, nil
}

// EncodeAuction serializes the auction datum.
func EncodeAuction(r AuctionRecord) ([]byte, error) {
	return plutus.Encode(r.ToData())
}

// DecodeAuction parses a serialized auction datum.
func DecodeAuction(raw []byte) (AuctionRecord, error) {
	d, err := plutus.Decode(raw)
	if err != nil {
		return AuctionRecord{}, fmt.Errorf("%w: %w", ErrMalformedDatum, err)
	}
	return AuctionFromData(d)
}

// ToData lays the evaluation out as
// Constr 0 [admin, judgeId, closed, [Constr 0 [name, [voter]]]].
func (r EvaluationRecord) ToData() plutus.Data {
	qualities := make(plutus.List, len(r.Qualities))
	for i, q := range r.Qualities {
		voters := make(plutus.List, len(q.Voters))
		for j, v := range q.Voters {
			voters[j] = plutus.Bytes(v)
		}
		qualities[i] = plutus.NewConstr(0, plutus.Bytes(q.Name), voters)
	}
	return plutus.NewConstr(0,
		plutus.Bytes(r.Admin),
		plutus.BigInt(r.JudgeID),
		plutus.Bool(r.Closed),
		qualities,
	)
}

// EvaluationFromData reads an evaluation datum.
func EvaluationFromData(d plutus.Data) (EvaluationRecord, error) {
	c, err := recordConstr(d, evaluationFields)
	if err != nil {
		return EvaluationRecord{}, err
	}
	admin, err := plutus.AsBytes(c.Fields[0])
	if err != nil {
		return EvaluationRecord{}, malformed("admin", err)
	}
	id, err := plutus.AsInt(c.Fields[1])
	if err != nil {
		return EvaluationRecord{}, malformed("judge id", err)
	}
	closed, err := plutus.AsBool(c.Fields[2])
	if err != nil {
		return EvaluationRecord{}, malformed("closed flag", err)
	}
	list, err := plutus.AsList(c.Fields[3])
	if err != nil {
		return EvaluationRecord{}, malformed("qualities", err)
	}
	qualities := make([]Quality, len(list))
	for i, item := range list {
		qc, err := recordConstr(item, qualityFields)
		if err != nil {
			return EvaluationRecord{}, fmt.Errorf("quality %d: %w", i, err)
		}
		name, err := plutus.AsBytes(qc.Fields[0])
		if err != nil {
			return EvaluationRecord{}, malformed("quality name", err)
		}
		rawVoters, err := plutus.AsList(qc.Fields[1])
		if err != nil {
			return EvaluationRecord{}, malformed("voters", err)
		}
		voters := make([]Identity, len(rawVoters))
		for j, v := range rawVoters {
			b, err := plutus.AsBytes(v)
			if err != nil {
				return EvaluationRecord{}, malformed("voter", err)
			}
			voters[j] = b
		}
		qualities[i] = Quality{Name: name, Voters: voters}
	}
	return EvaluationRecord{Admin: admin, JudgeID: id, Closed: closed, Qualities: qualities}, nil
}

// EncodeEvaluation serializes the evaluation datum.
func EncodeEvaluation(r EvaluationRecord) ([]byte, error) {
	return plutus.Encode(r.ToData())
}

// DecodeEvaluation parses a serialized evaluation datum.
func DecodeEvaluation(raw []byte) (EvaluationRecord, error) {
	d, err := plutus.Decode(raw)
	if err != nil {
		return EvaluationRecord{}, fmt.Errorf("%w: %w", ErrMalformedDatum, err)
	}
	return EvaluationFromData(d)
}

func recordConstr(d plutus.Data, minFields int) (plutus.Constr, error) {
	c, err := plutus.AsConstr(d, minFields)
	if err != nil {
		return plutus.Constr{}, fmt.Errorf("%w: %w", ErrMalformedDatum, err)
	}
	if c.Index != 0 {
		return plutus.Constr{}, fmt.Errorf("%w: unexpected constructor %d", ErrMalformedDatum, c.Index)
	}
	return c, nil
}

func malformed(field string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrMalformedDatum, field, err)
}
