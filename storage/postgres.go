package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sage-x-project/rings/dht"
	"github.com/sage-x-project/rings/identity"
)

// PostgresConfig mirrors the teacher's postgres.Config shape.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// PostgresStore implements Store against a vnodes table, for deployments
// that want durability across restarts rather than the default
// in-memory Store.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore opens a pool and verifies connectivity, matching
// postgres.NewStore's dial-then-ping pattern.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	connString := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("storage: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: ping: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() { s.pool.Close() }

func (s *PostgresStore) Get(ctx context.Context, did identity.Did) (dht.VNode, error) {
	query := `SELECT kind, data FROM vnodes WHERE did = $1`
	var kind int
	var data [][]byte
	err := s.pool.QueryRow(ctx, query, did.Bytes()).Scan(&kind, &data)
	if err == pgx.ErrNoRows {
		return dht.VNode{}, ErrNotFound
	}
	if err != nil {
		return dht.VNode{}, fmt.Errorf("storage: get: %w", err)
	}
	return dht.VNode{Did: did, Kind: dht.VNodeKind(kind), Data: data}, nil
}

func (s *PostgresStore) Put(ctx context.Context, v dht.VNode) error {
	query := `
		INSERT INTO vnodes (did, kind, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (did) DO UPDATE SET kind = EXCLUDED.kind, data = EXCLUDED.data
	`
	if _, err := s.pool.Exec(ctx, query, v.Did.Bytes(), int(v.Kind), v.Data); err != nil {
		return fmt.Errorf("storage: put: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, did identity.Did) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM vnodes WHERE did = $1`, did.Bytes()); err != nil {
		return fmt.Errorf("storage: delete: %w", err)
	}
	return nil
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM vnodes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("storage: count: %w", err)
	}
	return n, nil
}

var _ Store = (*PostgresStore)(nil)
