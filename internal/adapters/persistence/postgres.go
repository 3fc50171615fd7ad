package persistence

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okian/versus/internal/adapters/repository"
	"github.com/okian/versus/internal/domain/model"
	"github.com/okian/versus/internal/domain/rating"
)

const schema = `
CREATE TABLE IF NOT EXISTS versus_ratings (
    entity_id   TEXT PRIMARY KEY,
    mean        DOUBLE PRECISION NOT NULL,
    uncertainty DOUBLE PRECISION NOT NULL,
    comparisons INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS versus_history (
    outcome_id  TEXT PRIMARY KEY,
    seq         BIGSERIAL,
    payload     JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS versus_tasks (
    seq         BIGSERIAL PRIMARY KEY,
    primary_id  TEXT NOT NULL,
    opponent_id TEXT NOT NULL,
    reason      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS versus_frozen (
    entity_id TEXT NOT NULL,
    tier      INTEGER NOT NULL,
    PRIMARY KEY (entity_id, tier)
);
`

// PostgresBackend persists session state in Postgres via pgx.
type PostgresBackend struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to dsn and ensures the schema exists.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresBackend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &PostgresBackend{pool: pool}, nil
}

// Close releases the connection pool.
func (b *PostgresBackend) Close() {
	b.pool.Close()
}

// Ping verifies connectivity.
func (b *PostgresBackend) Ping(ctx context.Context) error {
	return b.pool.Ping(ctx)
}

// SaveRatings upserts every rating record.
func (b *PostgresBackend) SaveRatings(ctx context.Context, ratings map[model.EntityID]rating.Record) error {
	batch := &pgx.Batch{}
	for id, rec := range ratings {
		batch.Queue(`
            INSERT INTO versus_ratings(entity_id, mean, uncertainty, comparisons)
            VALUES ($1,$2,$3,$4)
            ON CONFLICT (entity_id) DO UPDATE
              SET mean = EXCLUDED.mean,
                  uncertainty = EXCLUDED.uncertainty,
                  comparisons = EXCLUDED.comparisons
        `, string(id), rec.Mean, rec.Uncertainty, rec.Comparisons)
	}
	return b.pool.SendBatch(ctx, batch).Close()
}

// LoadRatings returns all persisted rating records.
func (b *PostgresBackend) LoadRatings(ctx context.Context) (map[model.EntityID]rating.Record, error) {
	rows, err := b.pool.Query(ctx, `SELECT entity_id, mean, uncertainty, comparisons FROM versus_ratings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[model.EntityID]rating.Record)
	for rows.Next() {
		var id string
		var rec rating.Record
		if err := rows.Scan(&id, &rec.Mean, &rec.Uncertainty, &rec.Comparisons); err != nil {
			return nil, err
		}
		out[model.EntityID(id)] = rec
	}
	return out, rows.Err()
}

// SaveHistory upserts outcome records keyed by their id; the append-only
// log makes repeated saves idempotent.
func (b *PostgresBackend) SaveHistory(ctx context.Context, history []model.OutcomeRecord) error {
	batch := &pgx.Batch{}
	for _, rec := range history {
		payload, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal outcome %s: %w", rec.ID, err)
		}
		batch.Queue(`
            INSERT INTO versus_history(outcome_id, payload)
            VALUES ($1, $2)
            ON CONFLICT (outcome_id) DO NOTHING
        `, rec.ID, payload)
	}
	return b.pool.SendBatch(ctx, batch).Close()
}

// LoadHistory returns outcome records in insertion order.
func (b *PostgresBackend) LoadHistory(ctx context.Context) ([]model.OutcomeRecord, error) {
	rows, err := b.pool.Query(ctx, `SELECT payload FROM versus_history ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.OutcomeRecord
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var rec model.OutcomeRecord
		if err := json.Unmarshal(payload, &rec); err != nil {
			return nil, fmt.Errorf("unmarshal outcome: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SaveTasks replaces the refinement task list.
func (b *PostgresBackend) SaveTasks(ctx context.Context, tasks []model.RefinementTask) error {
	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `TRUNCATE versus_tasks`); err != nil {
		return err
	}
	for _, t := range tasks {
		if _, err := tx.Exec(ctx, `
            INSERT INTO versus_tasks(primary_id, opponent_id, reason)
            VALUES ($1,$2,$3)
        `, string(t.Primary), string(t.Opponent), t.Reason); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// LoadTasks returns the refinement tasks in FIFO order.
func (b *PostgresBackend) LoadTasks(ctx context.Context) ([]model.RefinementTask, error) {
	rows, err := b.pool.Query(ctx, `SELECT primary_id, opponent_id, reason FROM versus_tasks ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.RefinementTask
	for rows.Next() {
		var primary, opponent, reason string
		if err := rows.Scan(&primary, &opponent, &reason); err != nil {
			return nil, err
		}
		out = append(out, model.RefinementTask{
			Primary:  model.EntityID(primary),
			Opponent: model.EntityID(opponent),
			Reason:   reason,
		})
	}
	return out, rows.Err()
}

// SaveFrozen upserts freeze flags. Flags are never deleted here; a full
// reset is the only clearing path and goes through ResetAll.
func (b *PostgresBackend) SaveFrozen(ctx context.Context, frozen []repository.FreezeKey) error {
	batch := &pgx.Batch{}
	for _, key := range frozen {
		batch.Queue(`
            INSERT INTO versus_frozen(entity_id, tier)
            VALUES ($1,$2)
            ON CONFLICT (entity_id, tier) DO NOTHING
        `, string(key.ID), key.Tier)
	}
	return b.pool.SendBatch(ctx, batch).Close()
}

// LoadFrozen returns all persisted freeze flags.
func (b *PostgresBackend) LoadFrozen(ctx context.Context) ([]repository.FreezeKey, error) {
	rows, err := b.pool.Query(ctx, `SELECT entity_id, tier FROM versus_frozen`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []repository.FreezeKey
	for rows.Next() {
		var id string
		var tier int
		if err := rows.Scan(&id, &tier); err != nil {
			return nil, err
		}
		out = append(out, repository.FreezeKey{ID: model.EntityID(id), Tier: tier})
	}
	return out, rows.Err()
}

// ResetAll drops every persisted row, mirroring the engine's full reset.
func (b *PostgresBackend) ResetAll(ctx context.Context) error {
	_, err := b.pool.Exec(ctx, `TRUNCATE versus_ratings, versus_history, versus_tasks, versus_frozen`)
	return err
}
