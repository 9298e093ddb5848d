// Package journal records every protocol transaction the service submits,
// keyed by transaction hash.
package journal

import (
	"context"
	"errors"

	"github.com/vnFuhung2903/rubyams/internal/domain/model"
)

// Sentinel kinds for journal errors.
var (
	ErrDuplicate = errors.New("activity already exists")
	ErrNotFound  = errors.New("activity not found")
)

// Paging defaults.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Journal stores activities.
type Journal interface {
	// Create stores a new activity. The tx hash is unique; a second entry
	// for the same hash returns ErrDuplicate.
	Create(ctx context.Context, a model.Activity) (model.Activity, error)
	// UpdateStatus moves the activity for txHash to status.
	UpdateStatus(ctx context.Context, txHash, status string) error
	// GetByTxHash returns ErrNotFound for unknown hashes.
	GetByTxHash(ctx context.Context, txHash string) (model.Activity, error)
	// ListByActor returns the actor's activities, newest first. Pages start at 1.
	ListByActor(ctx context.Context, actor string, page, pageSize int) ([]model.Activity, error)
}

// Window normalises page and pageSize into a limit and offset.
func Window(page, pageSize int) (limit, offset int) {
	if page < 1 {
		page = 1
	}
	switch {
	case pageSize <= 0:
		pageSize = DefaultPageSize
	case pageSize > MaxPageSize:
		pageSize = MaxPageSize
	}
	return pageSize, (page - 1) * pageSize
}
