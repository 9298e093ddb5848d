package service

import (
	"context"
	"fmt"
	"math/big"

	"github.com/vnFuhung2903/rubyams/internal/domain/ledger"
	"github.com/vnFuhung2903/rubyams/internal/domain/protocol"
	"github.com/vnFuhung2903/rubyams/internal/domain/ranking"
)

// AuctionOutcome is the result of an auction transition.
type AuctionOutcome = Outcome[protocol.AuctionRecord]

// AuctionSnapshot is a located auction.
type AuctionSnapshot = Snapshot[protocol.AuctionRecord]

// Auctions drives the auction state machine for one signer.
type Auctions struct {
	m machine[protocol.AuctionRecord]
}

// As returns a facade acting for s.
func (a *Auctions) As(s ledger.Signer) *Auctions {
	return &Auctions{m: a.m.with(s)}
}

// Create opens auction id with room for studentsMax winners.
func (a *Auctions) Create(ctx context.Context, id, studentsMax *big.Int) (AuctionOutcome, error) {
	if err := validID(id, studentsMax); err != nil {
		return AuctionOutcome{}, protocol.NewOpError(a.m.op(protocol.ActionCreateAuction), id, err)
	}
	return a.m.create(ctx, protocol.ActionCreateAuction, id, protocol.NewAuction(a.m.admin(), id, studentsMax))
}

// PlaceBid appends a bid to the open auction.
func (a *Auctions) PlaceBid(ctx context.Context, id *big.Int, bidder protocol.Identity, amount *big.Int) (AuctionOutcome, error) {
	action := protocol.ActionPlaceBid
	if err := validID(id); err != nil {
		return AuctionOutcome{}, protocol.NewOpError(a.m.op(action), id, err)
	}
	if amount == nil || amount.Sign() <= 0 || len(bidder) == 0 {
		return AuctionOutcome{}, protocol.NewOpError(a.m.op(action), id,
			fmt.Errorf("%w: bid needs a bidder and a positive amount", protocol.ErrBuildFailed))
	}
	return a.m.run(ctx, action, id, func() (AuctionOutcome, error) {
		snap, err := a.m.open(ctx, id)
		if err != nil {
			return AuctionOutcome{}, err
		}
		next := snap.Record.WithBid(protocol.Bid{Bidder: bidder, Amount: amount})
		return a.m.transition(ctx, action, id, snap, step[protocol.AuctionRecord]{
			redeemer: protocol.PlaceBid{Amount: amount},
			next:     &next,
		})
	})
}

// End closes the open auction. The closed record stays at the contract
// until SendBack.
func (a *Auctions) End(ctx context.Context, id *big.Int) (AuctionOutcome, error) {
	action := protocol.ActionEndAuction
	if err := validID(id); err != nil {
		return AuctionOutcome{}, protocol.NewOpError(a.m.op(action), id, err)
	}
	return a.m.run(ctx, action, id, func() (AuctionOutcome, error) {
		snap, err := a.m.open(ctx, id)
		if err != nil {
			return AuctionOutcome{}, err
		}
		next := snap.Record.Closing()
		return a.m.transition(ctx, action, id, snap, step[protocol.AuctionRecord]{
			redeemer: protocol.EndAuction{AuctionID: id},
			next:     &next,
		})
	})
}

// SendBack spends the closed auction and pays its value to recipient. It is
// a no-op returning an empty hash when the auction no longer exists.
func (a *Auctions) SendBack(ctx context.Context, id *big.Int, recipient string) (AuctionOutcome, error) {
	action := protocol.ActionSendBack
	if err := validID(id); err != nil {
		return AuctionOutcome{}, protocol.NewOpError(a.m.op(action), id, err)
	}
	if recipient == "" {
		return AuctionOutcome{}, protocol.NewOpError(a.m.op(action), id,
			fmt.Errorf("%w: missing recipient", protocol.ErrBuildFailed))
	}
	return a.m.run(ctx, action, id, func() (AuctionOutcome, error) {
		snap, err := a.m.snapshot(ctx, id)
		if err != nil {
			return AuctionOutcome{}, err
		}
		switch snap.State {
		case StateAbsent:
			return AuctionOutcome{Snapshot: snap}, nil
		case StateOpen:
			return AuctionOutcome{}, protocol.ErrNotClosed
		}
		return a.m.transition(ctx, action, id, snap, step[protocol.AuctionRecord]{
			redeemer: protocol.SendBack{Recipient: ledger.AddressBytes(recipient)},
			payouts:  []ledger.TxOutput{{Address: recipient, Lovelace: snap.Output.Lovelace}},
		})
	})
}

// State returns the auction as currently on chain. Absent auctions are not
// an error.
func (a *Auctions) State(ctx context.Context, id *big.Int) (AuctionSnapshot, error) {
	if err := validID(id); err != nil {
		return AuctionSnapshot{}, protocol.NewOpError(a.m.op("state"), id, err)
	}
	snap, err := a.m.snapshot(ctx, id)
	if err != nil {
		return AuctionSnapshot{}, protocol.NewOpError(a.m.op("state"), id, err)
	}
	return snap, nil
}

// Bids returns the bids of the auction, open or closed.
func (a *Auctions) Bids(ctx context.Context, id *big.Int) ([]protocol.Bid, error) {
	if err := validID(id); err != nil {
		return nil, protocol.NewOpError(a.m.op("bids"), id, err)
	}
	snap, err := a.m.existing(ctx, "bids", id)
	if err != nil {
		return nil, err
	}
	return snap.Record.Bids, nil
}

// Standings ranks the auction's bidders.
func (a *Auctions) Standings(ctx context.Context, id *big.Int) ([]ranking.Standing, error) {
	if err := validID(id); err != nil {
		return nil, protocol.NewOpError(a.m.op("standings"), id, err)
	}
	snap, err := a.m.existing(ctx, "standings", id)
	if err != nil {
		return nil, err
	}
	return ranking.Standings(snap.Record), nil
}

// validID rejects missing or negative integers.
func validID(ids ...*big.Int) error {
	for _, id := range ids {
		if id == nil || id.Sign() < 0 {
			return fmt.Errorf("%w: ids must be non-negative integers", protocol.ErrBuildFailed)
		}
	}
	return nil
}
