package index

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/fundflow/fundflow/internal/model"
)

// Pool abstracts the pgx pool surface the store uses, so tests can substitute
// pgxmock.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, storageErr(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, storageErr(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool, used by tests.
func NewPostgresFromPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS projects (
	slug          TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	sector        TEXT,
	grade_score   DOUBLE PRECISION,
	grade_letter  TEXT,
	payload       JSONB NOT NULL,
	reconciled_at TIMESTAMPTZ,
	first_seen    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS investors (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	tier       INTEGER NOT NULL DEFAULT 0,
	payload    JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS funding_events (
	slug         TEXT NOT NULL REFERENCES projects(slug) ON DELETE CASCADE,
	seq          INTEGER NOT NULL,
	amount_usd   DOUBLE PRECISION NOT NULL,
	announced_at TIMESTAMPTZ NOT NULL,
	round_type   TEXT NOT NULL,
	payload      JSONB NOT NULL,
	PRIMARY KEY (slug, seq)
);

CREATE TABLE IF NOT EXISTS funding_investors (
	slug        TEXT NOT NULL,
	seq         INTEGER NOT NULL,
	investor_id TEXT NOT NULL,
	PRIMARY KEY (slug, seq, investor_id)
);

CREATE TABLE IF NOT EXISTS audit_log (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	slug       TEXT NOT NULL,
	payload    JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_projects_sector ON projects(sector);
CREATE INDEX IF NOT EXISTS idx_projects_score ON projects(grade_score DESC);
CREATE INDEX IF NOT EXISTS idx_funding_announced ON funding_events(announced_at DESC);
CREATE INDEX IF NOT EXISTS idx_funding_investors_id ON funding_investors(investor_id);
CREATE INDEX IF NOT EXISTS idx_audit_created ON audit_log(created_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return storageErr(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) Lookup(ctx context.Context, slug string, now time.Time) (*model.Project, Staleness, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT payload FROM projects WHERE slug = $1`, slug,
	).Scan(&payload)
	if err == pgx.ErrNoRows {
		return nil, StalenessAbsent, nil
	}
	if err != nil {
		return nil, StalenessAbsent, storageErr(err, "postgres: lookup")
	}

	var p model.Project
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, StalenessAbsent, eris.Wrapf(err, "postgres: unmarshal project %s", slug)
	}
	return &p, classify(&p, now), nil
}

func (s *PostgresStore) Upsert(ctx context.Context, p *model.Project) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return eris.Wrapf(err, "postgres: marshal project %s", p.Slug)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return storageErr(err, "postgres: begin upsert")
	}
	defer tx.Rollback(ctx)

	var gradeScore float64
	var gradeLetter string
	if p.Grade != nil {
		gradeScore = p.Grade.Score
		gradeLetter = p.Grade.Letter
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO projects (slug, name, sector, grade_score, grade_letter, payload, reconciled_at, first_seen, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (slug) DO UPDATE SET
		   name = EXCLUDED.name,
		   sector = EXCLUDED.sector,
		   grade_score = EXCLUDED.grade_score,
		   grade_letter = EXCLUDED.grade_letter,
		   payload = EXCLUDED.payload,
		   reconciled_at = EXCLUDED.reconciled_at,
		   updated_at = EXCLUDED.updated_at`,
		p.Slug, p.Name, p.Sector, gradeScore, gradeLetter,
		payload, p.LastReconciledAt, p.FirstSeen, time.Now().UTC(),
	)
	if err != nil {
		return storageErr(err, "postgres: upsert project")
	}

	for _, table := range []string{"funding_events", "funding_investors"} {
		if _, err := tx.Exec(ctx, `DELETE FROM `+table+` WHERE slug = $1`, p.Slug); err != nil {
			return storageErr(err, "postgres: clear "+table)
		}
	}
	for i, ev := range p.FundingEvents {
		evJSON, err := json.Marshal(ev)
		if err != nil {
			return eris.Wrapf(err, "postgres: marshal event %s/%d", p.Slug, i)
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO funding_events (slug, seq, amount_usd, announced_at, round_type, payload)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			p.Slug, i, ev.AmountUSD, ev.AnnouncedAt.UTC(), string(ev.RoundType), evJSON,
		)
		if err != nil {
			return storageErr(err, "postgres: insert funding event")
		}
		for _, inv := range ev.InvestorIDs {
			_, err = tx.Exec(ctx,
				`INSERT INTO funding_investors (slug, seq, investor_id) VALUES ($1, $2, $3)`,
				p.Slug, i, inv,
			)
			if err != nil {
				return storageErr(err, "postgres: insert funding investor")
			}
		}
	}

	return storageErr(tx.Commit(ctx), "postgres: commit upsert")
}

func (s *PostgresStore) ListProjects(ctx context.Context, filter ProjectFilter) ([]model.Project, error) {
	query := `SELECT payload FROM projects WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Sector != "" {
		query += fmt.Sprintf(` AND sector = $%d`, argIdx)
		args = append(args, filter.Sector)
		argIdx++
	}
	if filter.MinScore > 0 {
		query += fmt.Sprintf(` AND grade_score >= $%d`, argIdx)
		args = append(args, filter.MinScore)
		argIdx++
	}
	query += ` ORDER BY grade_score DESC, slug ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, storageErr(err, "postgres: list projects")
	}
	defer rows.Close()

	var projects []model.Project
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, storageErr(err, "postgres: scan project")
		}
		var p model.Project
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal project")
		}
		projects = append(projects, p)
	}
	return projects, storageErr(rows.Err(), "postgres: list projects iterate")
}

func (s *PostgresStore) UpsertInvestor(ctx context.Context, inv model.Investor) error {
	payload, err := json.Marshal(inv)
	if err != nil {
		return eris.Wrapf(err, "postgres: marshal investor %s", inv.ID)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO investors (id, name, tier, payload, updated_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET
		   name = EXCLUDED.name,
		   tier = EXCLUDED.tier,
		   payload = EXCLUDED.payload,
		   updated_at = EXCLUDED.updated_at`,
		inv.ID, inv.Name, inv.Tier, payload, time.Now().UTC(),
	)
	return storageErr(err, "postgres: upsert investor")
}

func (s *PostgresStore) GetInvestor(ctx context.Context, id string) (*model.Investor, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, `SELECT payload FROM investors WHERE id = $1`, id).Scan(&payload)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr(err, "postgres: get investor")
	}
	var inv model.Investor
	if err := json.Unmarshal(payload, &inv); err != nil {
		return nil, eris.Wrapf(err, "postgres: unmarshal investor %s", id)
	}
	return &inv, nil
}

func (s *PostgresStore) GetInvestors(ctx context.Context, ids []string) (map[string]model.Investor, error) {
	out := make(map[string]model.Investor, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT payload FROM investors WHERE id = ANY($1)`, ids,
	)
	if err != nil {
		return nil, storageErr(err, "postgres: get investors")
	}
	defer rows.Close()

	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, storageErr(err, "postgres: scan investor")
		}
		var inv model.Investor
		if err := json.Unmarshal(payload, &inv); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal investor")
		}
		out[inv.ID] = inv
	}
	return out, storageErr(rows.Err(), "postgres: get investors iterate")
}

func (s *PostgresStore) RecentFunding(ctx context.Context, since time.Time, limit int) ([]FundingRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT f.slug, p.name, f.payload FROM funding_events f
		 JOIN projects p ON p.slug = f.slug
		 WHERE f.announced_at >= $1
		 ORDER BY f.announced_at DESC, f.slug ASC LIMIT $2`,
		since.UTC(), limit,
	)
	if err != nil {
		return nil, storageErr(err, "postgres: recent funding")
	}
	defer rows.Close()
	return scanPgFundingRows(rows)
}

func (s *PostgresStore) InvestorPortfolio(ctx context.Context, investorID string) ([]FundingRow, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT f.slug, p.name, f.payload FROM funding_investors fi
		 JOIN funding_events f ON f.slug = fi.slug AND f.seq = fi.seq
		 JOIN projects p ON p.slug = f.slug
		 WHERE fi.investor_id = $1
		 ORDER BY f.announced_at DESC, f.slug ASC`,
		investorID,
	)
	if err != nil {
		return nil, storageErr(err, "postgres: investor portfolio")
	}
	defer rows.Close()
	return scanPgFundingRows(rows)
}

func (s *PostgresStore) AppendAudit(ctx context.Context, entry AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal audit entry")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO audit_log (id, slug, payload, created_at) VALUES ($1, $2, $3, $4)`,
		entry.ID, entry.Slug, payload, entry.CreatedAt,
	)
	return storageErr(err, "postgres: append audit")
}

func (s *PostgresStore) ListAudit(ctx context.Context, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.pool.Query(ctx,
		`SELECT payload FROM audit_log ORDER BY created_at DESC LIMIT $1`, limit,
	)
	if err != nil {
		return nil, storageErr(err, "postgres: list audit")
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, storageErr(err, "postgres: scan audit")
		}
		var e AuditEntry
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal audit entry")
		}
		entries = append(entries, e)
	}
	return entries, storageErr(rows.Err(), "postgres: list audit iterate")
}

func (s *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	err := s.pool.QueryRow(ctx,
		`SELECT
		   (SELECT COUNT(*) FROM projects),
		   (SELECT COUNT(*) FROM investors),
		   (SELECT COUNT(*) FROM funding_events),
		   (SELECT COUNT(*) FROM audit_log)`,
	).Scan(&st.Projects, &st.Investors, &st.FundingEvents, &st.AuditEntries)
	if err != nil {
		return nil, storageErr(err, "postgres: stats counts")
	}

	var oldest, newest *time.Time
	err = s.pool.QueryRow(ctx,
		`SELECT MIN(reconciled_at), MAX(reconciled_at) FROM projects`,
	).Scan(&oldest, &newest)
	if err != nil {
		return nil, storageErr(err, "postgres: stats range")
	}
	if oldest != nil {
		st.OldestRecord = *oldest
	}
	if newest != nil {
		st.NewestRecord = *newest
	}
	return &st, nil
}

func scanPgFundingRows(rows pgx.Rows) ([]FundingRow, error) {
	var out []FundingRow
	for rows.Next() {
		var fr FundingRow
		var payload []byte
		if err := rows.Scan(&fr.Slug, &fr.ProjectName, &payload); err != nil {
			return nil, storageErr(err, "postgres: scan funding row")
		}
		if err := json.Unmarshal(payload, &fr.Event); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal funding event")
		}
		out = append(out, fr)
	}
	return out, storageErr(rows.Err(), "postgres: funding rows iterate")
}
