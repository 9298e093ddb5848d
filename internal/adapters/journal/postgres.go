package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/vnFuhung2903/rubyams/internal/domain/model"
	"github.com/vnFuhung2903/rubyams/pkg/metrics"
)

const uniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS rubyams_activity (
	id         UUID PRIMARY KEY,
	tx_hash    TEXT NOT NULL UNIQUE,
	machine    TEXT NOT NULL,
	action     TEXT NOT NULL,
	logical_id TEXT NOT NULL,
	actor      TEXT NOT NULL,
	status     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS rubyams_activity_actor_idx ON rubyams_activity (actor, created_at DESC);
`

const columns = `id, tx_hash, machine, action, logical_id, actor, status, created_at, updated_at`

// Postgres is a Journal backed by PostgreSQL.
type Postgres struct {
	db  *sqlx.DB
	now func() time.Time
}

var _ Journal = (*Postgres)(nil)

// NewPostgres wraps an open database handle.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: sqlx.NewDb(db, "postgres"), now: time.Now}
}

// OpenPostgres connects to dsn and applies the schema.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect journal: %w", err)
	}
	p := &Postgres{db: db, now: time.Now}
	if err := p.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return p, nil
}

// Migrate creates the activity table if it does not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate journal: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) Create(ctx context.Context, a model.Activity) (model.Activity, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = model.StatusConfirmed
	}
	now := p.now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now

	_, err := p.db.NamedExecContext(ctx, `
		INSERT INTO rubyams_activity (`+columns+`)
		VALUES (:id, :tx_hash, :machine, :action, :logical_id, :actor, :status, :created_at, :updated_at)
	`, a)
	if err != nil {
		metrics.RecordJournalError("create")
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return model.Activity{}, fmt.Errorf("%w: %s", ErrDuplicate, a.TxHash)
		}
		return model.Activity{}, fmt.Errorf("insert activity: %w", err)
	}
	metrics.RecordJournalWrite("create")
	return a, nil
}

func (p *Postgres) UpdateStatus(ctx context.Context, txHash, status string) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE rubyams_activity SET status = $2, updated_at = $3 WHERE tx_hash = $1
	`, txHash, status, p.now().UTC())
	if err != nil {
		metrics.RecordJournalError("update_status")
		return fmt.Errorf("update activity: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		metrics.RecordJournalError("update_status")
		return fmt.Errorf("%w: %s", ErrNotFound, txHash)
	}
	metrics.RecordJournalWrite("update_status")
	return nil
}

func (p *Postgres) GetByTxHash(ctx context.Context, txHash string) (model.Activity, error) {
	var a model.Activity
	err := p.db.GetContext(ctx, &a, `SELECT `+columns+` FROM rubyams_activity WHERE tx_hash = $1`, txHash)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Activity{}, fmt.Errorf("%w: %s", ErrNotFound, txHash)
	}
	if err != nil {
		return model.Activity{}, fmt.Errorf("get activity: %w", err)
	}
	return a, nil
}

func (p *Postgres) ListByActor(ctx context.Context, actor string, page, pageSize int) ([]model.Activity, error) {
	limit, offset := Window(page, pageSize)
	out := []model.Activity{}
	err := p.db.SelectContext(ctx, &out, `
		SELECT `+columns+` FROM rubyams_activity
		WHERE actor = $1
		ORDER BY created_at DESC, tx_hash
		LIMIT $2 OFFSET $3
	`, actor, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	return out, nil
}
