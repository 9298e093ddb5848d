// Package ranking derives read models from decoded records: auction
// standings and evaluation vote tallies.
package ranking

import (
	"math/big"
	"slices"

	"github.com/vnFuhung2903/rubyams/internal/domain/protocol"
)

// Standing is one bidder's best bid in an auction.
type Standing struct {
	Rank   int
	Bidder protocol.Identity
	Amount *big.Int
	// Bids counts every bid the bidder placed.
	Bids   int
	Winner bool
}

// Standings keeps each bidder's highest bid and orders bidders by it,
// highest first. Ties keep the order in which bidders first appeared. The
// first StudentsMax bidders are marked as winners.
func Standings(rec protocol.AuctionRecord) []Standing {
	type entry struct {
		bidder protocol.Identity
		best   *big.Int
		count  int
	}

	byBidder := make(map[string]*entry, len(rec.Bids))
	order := make([]*entry, 0, len(rec.Bids))
	for _, b := range rec.Bids {
		if b.Amount == nil {
			continue
		}
		key := string(b.Bidder)
		e, ok := byBidder[key]
		if !ok {
			e = &entry{bidder: b.Bidder, best: b.Amount}
			byBidder[key] = e
			order = append(order, e)
		} else if b.Amount.Cmp(e.best) > 0 {
			e.best = b.Amount
		}
		e.count++
	}

	slices.SortStableFunc(order, func(a, b *entry) int {
		return b.best.Cmp(a.best)
	})

	seats := 0
	if rec.StudentsMax != nil && rec.StudentsMax.IsInt64() {
		seats = int(max(rec.StudentsMax.Int64(), 0))
	}

	out := make([]Standing, len(order))
	for i, e := range order {
		out[i] = Standing{
			Rank:   i + 1,
			Bidder: e.bidder,
			Amount: new(big.Int).Set(e.best),
			Bids:   e.count,
			Winner: i < seats,
		}
	}
	return out
}

// Winners returns the bidders holding a seat.
func Winners(rec protocol.AuctionRecord) []protocol.Identity {
	var out []protocol.Identity
	for _, s := range Standings(rec) {
		if s.Winner {
			out = append(out, s.Bidder)
		}
	}
	return out
}

// Tally is the vote count of one quality.
type Tally struct {
	Quality string
	Votes   int
	Voters  []protocol.Identity
}

// Tallies counts votes per quality in record order.
func Tallies(rec protocol.EvaluationRecord) []Tally {
	out := make([]Tally, len(rec.Qualities))
	for i, q := range rec.Qualities {
		out[i] = Tally{Quality: string(q.Name), Votes: len(q.Voters), Voters: slices.Clone(q.Voters)}
	}
	return out
}

// Leading returns the qualities with the most votes, or nil when nobody voted.
func Leading(rec protocol.EvaluationRecord) []string {
	best := 0
	var out []string
	for _, t := range Tallies(rec) {
		switch {
		case t.Votes > best:
			best = t.Votes
			out = []string{t.Quality}
		case t.Votes == best && best > 0:
			out = append(out, t.Quality)
		}
	}
	return out
}
