package journal

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vnFuhung2903/rubyams/internal/domain/model"
	"github.com/vnFuhung2903/rubyams/pkg/metrics"
)

// Memory is an in-process Journal.
type Memory struct {
	mu      sync.RWMutex
	byHash  map[string]model.Activity
	ordered []string
	now     func() time.Time
}

var _ Journal = (*Memory)(nil)

// NewMemory returns an empty journal.
func NewMemory() *Memory {
	return &Memory{byHash: make(map[string]model.Activity), now: time.Now}
}

func (m *Memory) Create(_ context.Context, a model.Activity) (model.Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byHash[a.TxHash]; ok {
		metrics.RecordJournalError("create")
		return model.Activity{}, fmt.Errorf("%w: %s", ErrDuplicate, a.TxHash)
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = model.StatusConfirmed
	}
	now := m.now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now

	m.byHash[a.TxHash] = a
	m.ordered = append(m.ordered, a.TxHash)
	metrics.RecordJournalWrite("create")
	return a, nil
}

func (m *Memory) UpdateStatus(_ context.Context, txHash, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.byHash[txHash]
	if !ok {
		metrics.RecordJournalError("update_status")
		return fmt.Errorf("%w: %s", ErrNotFound, txHash)
	}
	a.Status = status
	a.UpdatedAt = m.now().UTC()
	m.byHash[txHash] = a
	metrics.RecordJournalWrite("update_status")
	return nil
}

func (m *Memory) GetByTxHash(_ context.Context, txHash string) (model.Activity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.byHash[txHash]
	if !ok {
		return model.Activity{}, fmt.Errorf("%w: %s", ErrNotFound, txHash)
	}
	return a, nil
}

func (m *Memory) ListByActor(_ context.Context, actor string, page, pageSize int) ([]model.Activity, error) {
	limit, offset := Window(page, pageSize)

	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []model.Activity
	for _, h := range slices.Backward(m.ordered) {
		if a := m.byHash[h]; a.Actor == actor {
			matched = append(matched, a)
		}
	}
	if offset >= len(matched) {
		return []model.Activity{}, nil
	}
	return matched[offset:min(offset+limit, len(matched))], nil
}
