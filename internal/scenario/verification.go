package scenario

import (
	"fmt"
	"math/big"
	"sort"
)

// expectedStandings keeps each bidder's highest bid, orders bidders by it
// with ties in first-bid order, and seats the first StudentsMax.
func expectedStandings(a AuctionPlan) []Standing {
	type best struct {
		amount *big.Int
		bids   int
	}
	byBidder := make(map[string]*best)
	var order []string
	for _, b := range a.Bids {
		cur, ok := byBidder[b.Bidder]
		if !ok {
			cur = &best{amount: b.Amount}
			byBidder[b.Bidder] = cur
			order = append(order, b.Bidder)
		} else if b.Amount.Cmp(cur.amount) > 0 {
			cur.amount = b.Amount
		}
		cur.bids++
	}

	sort.SliceStable(order, func(i, j int) bool {
		return byBidder[order[i]].amount.Cmp(byBidder[order[j]].amount) > 0
	})

	seats := a.StudentsMax.Int64()
	out := make([]Standing, len(order))
	for i, bidder := range order {
		out[i] = Standing{
			Rank:   i + 1,
			Bidder: bidder,
			Amount: byBidder[bidder].amount.String(),
			Bids:   byBidder[bidder].bids,
			Winner: int64(i) < seats,
		}
	}
	return out
}

// verifyStandings compares the service's standings with the plan.
func verifyStandings(a AuctionPlan, got []Standing) error {
	want := expectedStandings(a)
	if len(got) != len(want) {
		return fmt.Errorf("standings: expected %d bidders, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			return fmt.Errorf("standings: rank %d: expected %+v, got %+v", i+1, want[i], got[i])
		}
	}
	return nil
}

// verifyTallies compares vote counts and voters per quality with the plan.
func verifyTallies(e EvaluationPlan, got []Tally) error {
	votes := make(map[string][]string)
	for _, v := range e.Votes {
		votes[v.Quality] = append(votes[v.Quality], v.Voter)
	}

	if len(got) != len(e.Qualities) {
		return fmt.Errorf("results: expected %d qualities, got %d", len(e.Qualities), len(got))
	}
	for i, q := range e.Qualities {
		t := got[i]
		if t.Quality != q {
			return fmt.Errorf("results: position %d: expected quality %q, got %q", i, q, t.Quality)
		}
		if t.Votes != len(votes[q]) {
			return fmt.Errorf("results: %s: expected %d votes, got %d", q, len(votes[q]), t.Votes)
		}
		if !sameMembers(votes[q], t.Voters) {
			return fmt.Errorf("results: %s: expected voters %v, got %v", q, votes[q], t.Voters)
		}
	}
	return nil
}

func sameMembers(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, s := range a {
		seen[s]++
	}
	for _, s := range b {
		if seen[s] == 0 {
			return false
		}
		seen[s]--
	}
	return true
}
