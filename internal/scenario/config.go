package scenario

import (
	"math/big"
	"time"
)

// Config holds configuration for a scenario run.
type Config struct {
	BaseURL     string        // Base URL of the service
	Auctions    int           // Number of auctions to drive end to end
	Evaluations int           // Number of evaluations to drive end to end
	Bidders     int           // Bidders per auction
	Voters      int           // Voters per evaluation
	Workers     int           // Concurrent scenarios
	Timeout     time.Duration // HTTP request timeout
	PendingWait time.Duration // How long to follow a 202 through the activity journal
	Recipient   string        // send-back recipient; the service wallet when empty
	OutputFile  string        // Report file
	LogFile     string        // Log file for run output
	Verbose     bool          // Enable verbose logging
}

// Bid is one planned bid.
type Bid struct {
	Bidder string   `json:"bidder"`
	Amount *big.Int `json:"amount"`
}

// AuctionPlan is the script for one auction.
type AuctionPlan struct {
	ID          *big.Int `json:"auction_id"`
	StudentsMax *big.Int `json:"students_max"`
	Bids        []Bid    `json:"bids"`
}

// Vote is one planned vote.
type Vote struct {
	Voter   string `json:"voter"`
	Quality string `json:"quality"`
}

// EvaluationPlan is the script for one evaluation.
type EvaluationPlan struct {
	JudgeID   *big.Int `json:"judge_id"`
	Qualities []string `json:"qualities"`
	Votes     []Vote   `json:"votes"`
}

// Plan is everything a run submits.
type Plan struct {
	RunID       string           `json:"run_id"`
	Auctions    []AuctionPlan    `json:"auctions"`
	Evaluations []EvaluationPlan `json:"evaluations"`
}

// Standing is one row of GET /auctions/{id}/standings.
type Standing struct {
	Rank   int    `json:"rank"`
	Bidder string `json:"bidder"`
	Amount string `json:"amount"`
	Bids   int    `json:"bids"`
	Winner bool   `json:"winner"`
}

// Tally is one row of GET /evaluations/{id}/results.
type Tally struct {
	Quality string   `json:"quality"`
	Votes   int      `json:"votes"`
	Voters  []string `json:"voters"`
}

// TxResult is the outcome of one state-changing call.
type TxResult struct {
	TxHash string
	State  string
	Status int
}

// Stats holds run statistics.
type Stats struct {
	TxSubmitted        int64
	TxConfirmed        int64
	TxPending          int64
	TxFailed           int64
	AuctionsVerified   int64
	EvaluationsVerified int64
	StartTime          time.Time
	EndTime            time.Time
	Duration           time.Duration
}
