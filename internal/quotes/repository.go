package quotes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fleetdash/fleetdash/internal/platform/db"
	"github.com/fleetdash/fleetdash/internal/shared"
)

// Repository loads and stores whole quote documents.
type Repository interface {
	Get(ctx context.Context, id int64) (Quote, error)
	// Put replaces the stored document. It always writes; PutResult.Conflict
	// reports whether another writer got there first.
	Put(ctx context.Context, q Quote) (PutResult, error)
	Insert(ctx context.Context, q Quote) (Quote, error)
	List(ctx context.Context) ([]Quote, error)
}

// PostgresRepository keeps each quote as a JSONB document in the quotes table.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const selectQuote = `SELECT id, document, version, created_at, updated_at FROM quotes`

// Get loads a quote by id.
func (r *PostgresRepository) Get(ctx context.Context, id int64) (Quote, error) {
	q, err := scanQuote(r.pool.QueryRow(ctx, selectQuote+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Quote{}, fmt.Errorf("%w: quote %d", shared.ErrNotFound, id)
		}
		return Quote{}, err
	}
	return q, nil
}

// List returns every quote ordered by id.
func (r *PostgresRepository) List(ctx context.Context) ([]Quote, error) {
	rows, err := r.pool.Query(ctx, selectQuote+` ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Quote
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// Insert stores a new quote and assigns its id.
func (r *PostgresRepository) Insert(ctx context.Context, q Quote) (Quote, error) {
	doc, err := json.Marshal(q)
	if err != nil {
		return Quote{}, fmt.Errorf("encode quote: %w", err)
	}
	now := q.CreatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	err = r.pool.QueryRow(ctx,
		`INSERT INTO quotes (document, status, version, created_at, updated_at) VALUES ($1, $2, 1, $3, $3) RETURNING id, version, created_at, updated_at`,
		doc, string(q.Status), now,
	).Scan(&q.ID, &q.Version, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return Quote{}, err
	}
	return q, nil
}

// Put replaces the whole document in a single UPDATE.
func (r *PostgresRepository) Put(ctx context.Context, q Quote) (PutResult, error) {
	doc, err := json.Marshal(q)
	if err != nil {
		return PutResult{}, fmt.Errorf("encode quote: %w", err)
	}
	updatedAt := q.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	var res PutResult
	err = db.WithTxOptions(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		var stored int64
		if err := tx.QueryRow(ctx, `SELECT version FROM quotes WHERE id = $1 FOR UPDATE`, q.ID).Scan(&stored); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: quote %d", shared.ErrNotFound, q.ID)
			}
			return err
		}
		if err := tx.QueryRow(ctx,
			`UPDATE quotes SET document = $2, status = $3, version = version + 1, updated_at = $4 WHERE id = $1 RETURNING version`,
			q.ID, doc, string(q.Status), updatedAt,
		).Scan(&res.Version); err != nil {
			return err
		}
		res.Conflict = stored != q.Version
		return nil
	})
	if err != nil {
		return PutResult{}, err
	}
	return res, nil
}

func scanQuote(row pgx.Row) (Quote, error) {
	var (
		q         Quote
		id        int64
		doc       []byte
		version   int64
		createdAt time.Time
		updatedAt time.Time
	)
	if err := row.Scan(&id, &doc, &version, &createdAt, &updatedAt); err != nil {
		return Quote{}, err
	}
	if err := json.Unmarshal(doc, &q); err != nil {
		return Quote{}, fmt.Errorf("decode quote %d: %w", id, err)
	}
	q.ID = id
	q.Version = version
	q.CreatedAt = createdAt
	q.UpdatedAt = updatedAt
	return q, nil
}
