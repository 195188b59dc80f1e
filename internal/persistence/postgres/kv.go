package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// KVGateway is the Postgres-backed persistence gateway. Tracking state
// (counters, paths, session pointers) lives in a single key-value table so a
// respawned process can pick up exactly where the previous one stopped.
type KVGateway struct {
	pool *pgxpool.Pool
}

// NewKVGateway constructs a KVGateway.
func NewKVGateway(pool *pgxpool.Pool) *KVGateway {
	return &KVGateway{pool: pool}
}

// Get implements storage.Gateway.
func (g *KVGateway) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := g.pool.QueryRow(ctx, `SELECT value FROM kv_entries WHERE key=$1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return value, true, nil
}

// Set implements storage.Gateway.
func (g *KVGateway) Set(ctx context.Context, key string, value []byte) error {
	const stmt = `INSERT INTO kv_entries (key, value, updated_at)
        VALUES ($1, $2, now())
        ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value, updated_at=now()`
	_, err := g.pool.Exec(ctx, stmt, key, value)
	return err
}

// Remove implements storage.Gateway.
func (g *KVGateway) Remove(ctx context.Context, key string) error {
	_, err := g.pool.Exec(ctx, `DELETE FROM kv_entries WHERE key=$1`, key)
	return err
}
