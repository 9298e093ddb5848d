// Package model contains domain models passed between layers.
package model

import "time"

// Activity statuses.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusAbandoned = "abandoned"
)

// State machines.
const (
	MachineAuction    = "auction"
	MachineEvaluation = "evaluation"
)

// Activity is one submitted protocol transaction.
type Activity struct {
	ID        string    `json:"id" db:"id"`
	TxHash    string    `json:"tx_hash" db:"tx_hash"`
	Machine   string    `json:"machine" db:"machine"`
	Action    string    `json:"action" db:"action"`
	LogicalID string    `json:"logical_id" db:"logical_id"`
	Actor     string    `json:"actor" db:"actor"`
	Status    string    `json:"status" db:"status"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// PendingTx is a submitted transaction whose confirmation wait timed out.
type PendingTx struct {
	TxHash      string
	Machine     string
	Action      string
	LogicalID   string
	SubmittedAt time.Time
	// Deadline bounds how long the tracker keeps polling.
	Deadline time.Time
}

// Expired reports whether the tracking window has passed.
func (p PendingTx) Expired(now time.Time) bool {
	return !p.Deadline.IsZero() && now.After(p.Deadline)
}
