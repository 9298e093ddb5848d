package scenario

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/google/uuid"

	"github.com/vnFuhung2903/rubyams/pkg/logger"
)

var planQualities = []string{defaultQuality, "Rigor", "Clarity"}

// logicalID turns a fresh UUID into a protocol id so repeated runs never
// collide on chain.
func logicalID() *big.Int {
	u := uuid.New()
	return new(big.Int).SetBytes(u[:])
}

// randomAmount returns a bid in [1, maxBidLovelace].
func randomAmount() (*big.Int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(maxBidLovelace))
	if err != nil {
		return nil, fmt.Errorf("failed to draw bid amount: %w", err)
	}
	return n.Add(n, big.NewInt(1)), nil
}

// generatePlan scripts every auction and evaluation of a run. The first
// bidder of each auction bids twice so standings have to pick a best bid.
func generatePlan(ctx context.Context, config *Config) (*Plan, error) {
	plan := &Plan{RunID: uuid.NewString()}

	for i := 0; i < config.Auctions; i++ {
		a := AuctionPlan{
			ID:          logicalID(),
			StudentsMax: big.NewInt(int64(studentsMaxBase + i%2)),
		}
		bidders := make([]string, config.Bidders)
		for b := range bidders {
			bidders[b] = "bidder-" + uuid.NewString()
		}
		for _, bidder := range bidders {
			amount, err := randomAmount()
			if err != nil {
				return nil, err
			}
			a.Bids = append(a.Bids, Bid{Bidder: bidder, Amount: amount})
		}
		if len(bidders) > 0 {
			amount, err := randomAmount()
			if err != nil {
				return nil, err
			}
			a.Bids = append(a.Bids, Bid{Bidder: bidders[0], Amount: amount})
		}
		plan.Auctions = append(plan.Auctions, a)
	}

	for i := 0; i < config.Evaluations; i++ {
		e := EvaluationPlan{JudgeID: logicalID(), Qualities: planQualities}
		for v := 0; v < config.Voters; v++ {
			e.Votes = append(e.Votes, Vote{
				Voter:   "voter-" + uuid.NewString(),
				Quality: planQualities[v%len(planQualities)],
			})
		}
		plan.Evaluations = append(plan.Evaluations, e)
	}

	logger.Get().Info(ctx, "generated plan",
		logger.String("runID", plan.RunID),
		logger.Int("auctions", len(plan.Auctions)),
		logger.Int("evaluations", len(plan.Evaluations)))
	return plan, nil
}
