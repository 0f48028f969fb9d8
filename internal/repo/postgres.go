package repo

import (
	"context"
	"errors"
	"time"

	"github.com/cuonglv176/forge-sprint-gadgets-jira/internal/config"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// ErrNotFound is returned when a key has no stored value.
var ErrNotFound = errors.New("repo: key not found")

type DB struct {
	Pool *pgxpool.Pool
	log  zerolog.Logger
}

func MustOpen(ctx context.Context, cfg config.Config, log zerolog.Logger) *DB {
	pool, err := pgxpool.New(ctx, cfg.DBDSN)
	if err != nil { log.Fatal().Err(err).Msg("db connect failed") }
	ctx2, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(ctx2); err != nil { log.Fatal().Err(err).Msg("db ping failed") }
	return &DB{Pool: pool, log: log}
}

func (d *DB) Close() { d.Pool.Close() }

// Repository is the key-value collaborator consumed by the baseline store
// and the dashboard configuration, plus job-run bookkeeping for the cron.
type Repository struct {
	db  *DB
	log zerolog.Logger
}

func NewRepository(d *DB, log zerolog.Logger) *Repository { return &Repository{db: d, log: log} }

// EnsureSchema creates the two tables the service needs. Safe to run on
// every start.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	const q = `
	CREATE TABLE IF NOT EXISTS kv_store (
		key        text PRIMARY KEY,
		value      bytea NOT NULL,
		updated_at timestamptz NOT NULL DEFAULT now()
	);
	CREATE TABLE IF NOT EXISTS job_runs (
		id          bigserial PRIMARY KEY,
		kind        text NOT NULL,
		started_at  timestamptz NOT NULL,
		finished_at timestamptz,
		sprints     int,
		success     boolean,
		error       text
	);`
	_, err := r.db.Pool.Exec(ctx, q)
	return err
}

func (r *Repository) Get(ctx context.Context, key string) ([]byte, error) {
	var val []byte
	err := r.db.Pool.QueryRow(ctx, `SELECT value FROM kv_store WHERE key = $1`, key).Scan(&val)
	if errors.Is(err, pgx.ErrNoRows) { return nil, ErrNotFound }
	if err != nil { return nil, err }
	return val, nil
}

func (r *Repository) Set(ctx context.Context, key string, value []byte) error {
	const q = `INSERT INTO kv_store(key, value, updated_at) VALUES($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`
	_, err := r.db.Pool.Exec(ctx, q, key, value)
	return err
}

func (r *Repository) Delete(ctx context.Context, key string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM kv_store WHERE key = $1`, key)
	return err
}

func (r *Repository) TryAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	var ok bool
	err := r.db.Pool.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&ok)
	return ok, err
}

func (r *Repository) AdvisoryUnlock(ctx context.Context, key int64) error {
	var ok bool
	err := r.db.Pool.QueryRow(ctx, "SELECT pg_advisory_unlock($1)", key).Scan(&ok)
	if !ok && err == nil { return errors.New("advisory unlock returned false") }
	return err
}

type LastRun struct {
	Kind       string     `json:"kind"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
	Sprints    int        `json:"sprints"`
	Success    bool       `json:"success"`
	Error      string     `json:"error"`
}

func (r *Repository) StartJobRun(ctx context.Context, kind string) (int64, error) {
	const q = `INSERT INTO job_runs(kind, started_at, success) VALUES($1, now(), false) RETURNING id`
	var id int64
	if err := r.db.Pool.QueryRow(ctx, q, kind).Scan(&id); err != nil { return 0, err }
	return id, nil
}

func (r *Repository) FinishJobRun(ctx context.Context, id int64, sprints int, success bool, errStr string) error {
	const q = `UPDATE job_runs SET finished_at=now(), sprints=$2, success=$3, error=$4 WHERE id=$1`
	_, err := r.db.Pool.Exec(ctx, q, id, sprints, success, errStr)
	return err
}

func (r *Repository) GetLastRun(ctx context.Context) (*LastRun, error) {
	const q = `SELECT kind, started_at, finished_at, coalesce(sprints,0), coalesce(success,false), coalesce(error,'')
		FROM job_runs ORDER BY id DESC LIMIT 1`
	lr := &LastRun{}
	err := r.db.Pool.QueryRow(ctx, q).Scan(&lr.Kind, &lr.StartedAt, &lr.FinishedAt, &lr.Sprints, &lr.Success, &lr.Error)
	if errors.Is(err, pgx.ErrNoRows) { return nil, ErrNotFound }
	if err != nil { return nil, err }
	return lr, nil
}
