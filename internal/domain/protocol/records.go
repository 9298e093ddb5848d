// Package protocol models the auction and evaluation records kept on-chain,
// the redeemer actions that move them, and their structured-data layouts.
package protocol

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"math/big"
	"slices"
	"unicode"
	"unicode/utf8"
)

// Identity is an opaque party identifier (an address or key hash).
type Identity []byte

// String renders printable identities as text and anything else as hex.
func (i Identity) String() string {
	if len(i) > 0 && utf8.Valid(i) && isPrintable(string(i)) {
		return string(i)
	}
	return hex.EncodeToString(i)
}

// Equal compares two identities byte-wise.
func (i Identity) Equal(o Identity) bool { return bytes.Equal(i, o) }

func isPrintable(s string) bool {
	for _, r := range s {
		if !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}

// Record is the part of a datum the locator needs.
type Record interface {
	LogicalID() *big.Int
	IsClosed() bool
}

// Bid is one entry of an auction.
type Bid struct {
	Bidder Identity
	Amount *big.Int
}

// AuctionRecord is the auction datum.
type AuctionRecord struct {
	Admin       Identity
	AuctionID   *big.Int
	Closed      bool
	Bids        []Bid
	StudentsMax *big.Int
}

// NewAuction returns an open auction without bids.
func NewAuction(admin Identity, auctionID, studentsMax *big.Int) AuctionRecord {
	return AuctionRecord{
		Admin:       slices.Clone(admin),
		AuctionID:   cloneInt(auctionID),
		Bids:        []Bid{},
		StudentsMax: cloneInt(studentsMax),
	}
}

// LogicalID returns the auction id.
func (r AuctionRecord) LogicalID() *big.Int { return r.AuctionID }

// IsClosed reports whether the auction was ended.
func (r AuctionRecord) IsClosed() bool { return r.Closed }

// Clone returns a deep copy.
func (r AuctionRecord) Clone() AuctionRecord {
	out := AuctionRecord{
		Admin:       slices.Clone(r.Admin),
		AuctionID:   cloneInt(r.AuctionID),
		Closed:      r.Closed,
		Bids:        make([]Bid, len(r.Bids)),
		StudentsMax: cloneInt(r.StudentsMax),
	}
	for i, b := range r.Bids {
		out.Bids[i] = Bid{Bidder: slices.Clone(b.Bidder), Amount: cloneInt(b.Amount)}
	}
	return out
}

// WithBid returns a copy with b appended.
func (r AuctionRecord) WithBid(b Bid) AuctionRecord {
	out := r.Clone()
	out.Bids = append(out.Bids, Bid{Bidder: slices.Clone(b.Bidder), Amount: cloneInt(b.Amount)})
	return out
}

// Closing returns a closed copy.
func (r AuctionRecord) Closing() AuctionRecord {
	out := r.Clone()
	out.Closed = true
	return out
}

// Equal compares field by field.
func (r AuctionRecord) Equal(o AuctionRecord) bool {
	if !r.Admin.Equal(o.Admin) || !intEqual(r.AuctionID, o.AuctionID) ||
		r.Closed != o.Closed || !intEqual(r.StudentsMax, o.StudentsMax) || len(r.Bids) != len(o.Bids) {
		return false
	}
	for i := range r.Bids {
		if !r.Bids[i].Bidder.Equal(o.Bids[i].Bidder) || !intEqual(r.Bids[i].Amount, o.Bids[i].Amount) {
			return false
		}
	}
	return true
}

// Quality is one evaluated quality and the identities that voted for it.
type Quality struct {
	Name   []byte
	Voters []Identity
}

// EvaluationRecord is the evaluation datum.
type EvaluationRecord struct {
	Admin     Identity
	JudgeID   *big.Int
	Closed    bool
	Qualities []Quality
}

// NewEvaluation returns an open evaluation with no votes.
func NewEvaluation(admin Identity, judgeID *big.Int, qualities ...string) EvaluationRecord {
	r := EvaluationRecord{
		Admin:     slices.Clone(admin),
		JudgeID:   cloneInt(judgeID),
		Qualities: make([]Quality, len(qualities)),
	}
	for i, q := range qualities {
		r.Qualities[i] = Quality{Name: []byte(q), Voters: []Identity{}}
	}
	return r
}

// LogicalID returns the judge id.
func (r EvaluationRecord) LogicalID() *big.Int { return r.JudgeID }

// IsClosed reports whether the evaluation was ended.
func (r EvaluationRecord) IsClosed() bool { return r.Closed }

// Clone returns a deep copy.
func (r EvaluationRecord) Clone() EvaluationRecord {
	out := EvaluationRecord{
		Admin:     slices.Clone(r.Admin),
		JudgeID:   cloneInt(r.JudgeID),
		Closed:    r.Closed,
		Qualities: make([]Quality, len(r.Qualities)),
	}
	for i, q := range r.Qualities {
		voters := make([]Identity, len(q.Voters))
		for j, v := range q.Voters {
			voters[j] = slices.Clone(v)
		}
		out.Qualities[i] = Quality{Name: slices.Clone(q.Name), Voters: voters}
	}
	return out
}

// WithVote returns a copy with voter added to the named quality. Whether the
// voter already voted is left to the on-chain validator.
func (r EvaluationRecord) WithVote(voter Identity, quality []byte) (EvaluationRecord, error) {
	out := r.Clone()
	for i := range out.Qualities {
		if bytes.Equal(out.Qualities[i].Name, quality) {
			out.Qualities[i].Voters = append(out.Qualities[i].Voters, slices.Clone(voter))
			return out, nil
		}
	}
	return EvaluationRecord{}, fmt.Errorf("%w: %q", ErrUnknownQuality, quality)
}

// Closing returns a closed copy.
func (r EvaluationRecord) Closing() EvaluationRecord {
	out := r.Clone()
	out.Closed = true
	return out
}

// Equal compares field by field.
func (r EvaluationRecord) Equal(o EvaluationRecord) bool {
	if !r.Admin.Equal(o.Admin) || !intEqual(r.JudgeID, o.JudgeID) ||
		r.Closed != o.Closed || len(r.Qualities) != len(o.Qualities) {
		return false
	}
	for i := range r.Qualities {
		a, b := r.Qualities[i], o.Qualities[i]
		if !bytes.Equal(a.Name, b.Name) || len(a.Voters) != len(b.Voters) {
			return false
		}
		for j := range a.Voters {
			if !a.Voters[j].Equal(b.Voters[j]) {
				return false
			}
		}
	}
	return true
}

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

func intEqual(a, b *big.Int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Cmp(b) == 0
}
