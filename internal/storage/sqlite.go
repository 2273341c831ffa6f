package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/monero-ecosystem/monerohealth/internal/health"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id            TEXT    NOT NULL UNIQUE,
    host              TEXT    NOT NULL,
    status            TEXT    NOT NULL CHECK(status IN ('OK', 'ERROR', 'UNKNOWN')),
    last_block_status TEXT    NOT NULL,
    daemon_status     TEXT    NOT NULL,
    rpc_status        TEXT    NOT NULL,
    p2p_status        TEXT    NOT NULL,
    block_hash        TEXT    NOT NULL DEFAULT '',
    error             TEXT    NOT NULL DEFAULT '',
    payload           TEXT    NOT NULL,
    checked_at        TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_checked_at ON runs(checked_at DESC);
CREATE INDEX IF NOT EXISTS idx_runs_host_checked ON runs(host, checked_at DESC);
`

// timeLayout has fixed width so that stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const columns = `id, run_id, host, status, last_block_status, daemon_status, rpc_status, p2p_status, block_hash, error, payload, checked_at`

// Run is a stored combined check.
type Run struct {
	ID              int64                 `json:"id"`
	RunID           string                `json:"run_id"`
	Host            string                `json:"host"`
	Status          health.Status         `json:"status"`
	LastBlockStatus health.Status         `json:"last_block_status"`
	DaemonStatus    health.Status         `json:"daemon_status"`
	RPCStatus       health.Status         `json:"rpc_status"`
	P2PStatus       health.Status         `json:"p2p_status"`
	BlockHash       string                `json:"block_hash"`
	Error           string                `json:"error,omitempty"`
	Result          health.CombinedResult `json:"result"`
	CheckedAt       time.Time             `json:"checked_at"`
}

// DB wraps a SQLite database.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and applies the schema.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite at %q: %w", path, err)
	}
	// A single connection keeps ":memory:" databases shared and writes serialized.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=5000",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying pragma %q: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping reports whether the database is reachable.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// InsertRun persists a combined result checked at checkedAt and returns the
// stored record.
func (d *DB) InsertRun(ctx context.Context, res health.CombinedResult, checkedAt time.Time) (*Run, error) {
	payload, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("encoding result: %w", err)
	}

	run := &Run{
		RunID:           uuid.NewString(),
		Host:            res.Host,
		Status:          res.Status,
		LastBlockStatus: res.LastBlock.Status,
		DaemonStatus:    res.Daemon.Status,
		RPCStatus:       res.Daemon.RPC.Status,
		P2PStatus:       res.Daemon.P2P.Status,
		Error:           strings.Join(res.Errors(), "; "),
		Result:          res,
		CheckedAt:       checkedAt.UTC(),
	}
	if res.LastBlock.Hash != health.Sentinel {
		run.BlockHash = res.LastBlock.Hash
	}

	r, err := d.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, host, status, last_block_status, daemon_status, rpc_status, p2p_status, block_hash, error, payload, checked_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID,
		run.Host,
		string(run.Status),
		string(run.LastBlockStatus),
		string(run.DaemonStatus),
		string(run.RPCStatus),
		string(run.P2PStatus),
		run.BlockHash,
		run.Error,
		string(payload),
		run.CheckedAt.Format(timeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting run for %q: %w", res.Host, err)
	}
	if run.ID, err = r.LastInsertId(); err != nil {
		return nil, fmt.Errorf("reading run id: %w", err)
	}
	return run, nil
}

// Latest returns the most recent run, or nil if none.
func (d *DB) Latest(ctx context.Context) (*Run, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+columns+` FROM runs ORDER BY checked_at DESC, id DESC LIMIT 1`,
	)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest run: %w", err)
	}
	return run, nil
}

// History returns paginated runs, newest first, plus the total count.
func (d *DB) History(ctx context.Context, limit, offset int) ([]Run, int, error) {
	var total int
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting runs: %w", err)
	}

	rows, err := d.db.QueryContext(ctx,
		`SELECT `+columns+` FROM runs ORDER BY checked_at DESC, id DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	runs, err := scanRuns(rows)
	if err != nil {
		return nil, 0, err
	}
	return runs, total, nil
}

// UptimePercent returns the percentage of OK runs among the last N runs.
func (d *DB) UptimePercent(ctx context.Context, last int) (float64, error) {
	var total int
	var okCount sql.NullInt64
	err := d.db.QueryRowContext(ctx, `
		SELECT COUNT(*), SUM(CASE WHEN status = 'OK' THEN 1 ELSE 0 END)
		FROM (
			SELECT status FROM runs ORDER BY checked_at DESC, id DESC LIMIT ?
		)
	`, last).Scan(&total, &okCount)
	if err != nil {
		return 0, fmt.Errorf("calculating uptime: %w", err)
	}
	if total == 0 {
		return 0, nil
	}
	return float64(okCount.Int64) / float64(total) * 100, nil
}

// Prune deletes runs checked before cutoff and returns how many were removed.
func (d *DB) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	r, err := d.db.ExecContext(ctx,
		`DELETE FROM runs WHERE checked_at < ?`, cutoff.UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("pruning runs: %w", err)
	}
	return r.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var (
		r                                   Run
		status, lastBlock, daemon, rpc, p2p string
		payload, checkedAt                  string
	)
	err := row.Scan(&r.ID, &r.RunID, &r.Host, &status, &lastBlock, &daemon, &rpc, &p2p,
		&r.BlockHash, &r.Error, &payload, &checkedAt)
	if err != nil {
		return nil, err
	}
	r.Status = health.Status(status)
	r.LastBlockStatus = health.Status(lastBlock)
	r.DaemonStatus = health.Status(daemon)
	r.RPCStatus = health.Status(rpc)
	r.P2PStatus = health.Status(p2p)

	if err := json.Unmarshal([]byte(payload), &r.Result); err != nil {
		return nil, fmt.Errorf("decoding payload of run %d: %w", r.ID, err)
	}

	t, err := time.Parse(time.RFC3339Nano, checkedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing checked_at %q: %w", checkedAt, err)
	}
	r.CheckedAt = t
	return &r, nil
}

func scanRuns(rows *sql.Rows) ([]Run, error) {
	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		runs = append(runs, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating run rows: %w", err)
	}
	return runs, nil
}
