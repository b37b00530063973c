package menu

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zombor/menu-scan/internal/config"
)

// schemaLockID serialises concurrent CREATE TABLE IF NOT EXISTS calls, which
// postgres does not make race free on its own.
const schemaLockID = 7_306_245_812

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS menu (
		id BIGSERIAL PRIMARY KEY,
		category TEXT NOT NULL,
		item TEXT NOT NULL,
		price TEXT NOT NULL
	)`

// PostgresStore implements the Store interface on a pgx connection pool
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects a pool to dsn and pings it
func NewPostgresStore(ctx context.Context, dsn string, maxConns int32) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres dsn: %w", err)
	}
	if maxConns > 0 {
		poolConfig.MaxConns = maxConns
	}
	poolConfig.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// EnsureSchema creates the menu table under an advisory lock
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", int64(schemaLockID)); err != nil {
			return fmt.Errorf("taking schema lock: %w", err)
		}
		if _, err := tx.Exec(ctx, postgresSchema); err != nil {
			return fmt.Errorf("creating menu table: %w", err)
		}
		return nil
	})
}

// WithSession acquires a pooled connection for the duration of fn
func (p *PostgresStore) WithSession(ctx context.Context, fn func(Session) error) error {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring connection: %w", err)
	}
	defer conn.Release()
	return fn(&postgresSession{conn: conn})
}

// Close closes every pooled connection
func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}

type postgresSession struct {
	conn *pgxpool.Conn
}

func (s *postgresSession) InsertAll(ctx context.Context, records []Record) ([]Record, error) {
	if len(records) == 0 {
		return []Record{}, nil
	}

	inserted := make([]Record, 0, len(records))
	err := pgx.BeginFunc(ctx, s.conn, func(tx pgx.Tx) error {
		for _, record := range records {
			err := tx.QueryRow(ctx,
				"INSERT INTO menu (category, item, price) VALUES ($1, $2, $3) RETURNING id",
				record.Category, record.Item, record.Price,
			).Scan(&record.ID)
			if err != nil {
				return err
			}
			inserted = append(inserted, record)
		}
		return nil
	})
	if err != nil {
		return nil, storeWriteError(err)
	}
	return inserted, nil
}

func (s *postgresSession) ListAll(ctx context.Context) ([]Record, error) {
	rows, err := s.conn.Query(ctx, "SELECT id, category, item, price FROM menu ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
		var r Record
		err := row.Scan(&r.ID, &r.Category, &r.Item, &r.Price)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning records: %w", err)
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}

// postgresDSN builds a connection URL from the discrete settings unless a
// full DSN was given
func postgresDSN(cfg config.Store) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(port)),
		Path:   "/" + cfg.Name,
	}
	if cfg.User != "" {
		u.User = url.UserPassword(cfg.User, cfg.Password)
	}
	if cfg.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {cfg.SSLMode}}.Encode()
	}
	return u.String()
}
