package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/fundflow/fundflow/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS projects (
	slug          TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	sector        TEXT,
	grade_score   REAL,
	grade_letter  TEXT,
	payload       TEXT NOT NULL,
	reconciled_at DATETIME,
	first_seen    DATETIME NOT NULL,
	updated_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS investors (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	tier       INTEGER NOT NULL DEFAULT 0,
	payload    TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS funding_events (
	slug         TEXT NOT NULL REFERENCES projects(slug) ON DELETE CASCADE,
	seq          INTEGER NOT NULL,
	amount_usd   REAL NOT NULL,
	announced_at DATETIME NOT NULL,
	round_type   TEXT NOT NULL,
	payload      TEXT NOT NULL,
	PRIMARY KEY (slug, seq)
);

CREATE TABLE IF NOT EXISTS funding_investors (
	slug        TEXT NOT NULL,
	seq         INTEGER NOT NULL,
	investor_id TEXT NOT NULL,
	PRIMARY KEY (slug, seq, investor_id)
);

CREATE TABLE IF NOT EXISTS audit_log (
	id         TEXT PRIMARY KEY,
	slug       TEXT NOT NULL,
	payload    TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_projects_sector ON projects(sector);
CREATE INDEX IF NOT EXISTS idx_projects_score ON projects(grade_score);
CREATE INDEX IF NOT EXISTS idx_funding_announced ON funding_events(announced_at);
CREATE INDEX IF NOT EXISTS idx_funding_investors_id ON funding_investors(investor_id);
CREATE INDEX IF NOT EXISTS idx_audit_created ON audit_log(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return storageErr(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Lookup(ctx context.Context, slug string, now time.Time) (*model.Project, Staleness, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM projects WHERE slug = ?`, slug,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, StalenessAbsent, nil
	}
	if err != nil {
		return nil, StalenessAbsent, storageErr(err, "sqlite: lookup")
	}

	var p model.Project
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return nil, StalenessAbsent, eris.Wrapf(err, "sqlite: unmarshal project %s", slug)
	}
	return &p, classify(&p, now), nil
}

// Upsert writes the project row and rewrites its funding events in a single
// transaction, so a crash never leaves events from two reconciliations mixed.
func (s *SQLiteStore) Upsert(ctx context.Context, p *model.Project) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return eris.Wrapf(err, "sqlite: marshal project %s", p.Slug)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr(err, "sqlite: begin upsert")
	}
	defer tx.Rollback()

	var gradeScore float64
	var gradeLetter string
	if p.Grade != nil {
		gradeScore = p.Grade.Score
		gradeLetter = p.Grade.Letter
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO projects (slug, name, sector, grade_score, grade_letter, payload, reconciled_at, first_seen, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (slug) DO UPDATE SET
		   name = excluded.name,
		   sector = excluded.sector,
		   grade_score = excluded.grade_score,
		   grade_letter = excluded.grade_letter,
		   payload = excluded.payload,
		   reconciled_at = excluded.reconciled_at,
		   updated_at = excluded.updated_at`,
		p.Slug, p.Name, p.Sector, gradeScore, gradeLetter,
		string(payload), p.LastReconciledAt, p.FirstSeen, now,
	)
	if err != nil {
		return storageErr(err, "sqlite: upsert project")
	}

	for _, table := range []string{"funding_events", "funding_investors"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE slug = ?`, p.Slug); err != nil {
			return storageErr(err, "sqlite: clear "+table)
		}
	}
	for i, ev := range p.FundingEvents {
		evJSON, err := json.Marshal(ev)
		if err != nil {
			return eris.Wrapf(err, "sqlite: marshal event %s/%d", p.Slug, i)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO funding_events (slug, seq, amount_usd, announced_at, round_type, payload)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			p.Slug, i, ev.AmountUSD, ev.AnnouncedAt.UTC(), string(ev.RoundType), string(evJSON),
		)
		if err != nil {
			return storageErr(err, "sqlite: insert funding event")
		}
		for _, inv := range ev.InvestorIDs {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO funding_investors (slug, seq, investor_id) VALUES (?, ?, ?)`,
				p.Slug, i, inv,
			)
			if err != nil {
				return storageErr(err, "sqlite: insert funding investor")
			}
		}
	}

	return storageErr(tx.Commit(), "sqlite: commit upsert")
}

func (s *SQLiteStore) ListProjects(ctx context.Context, filter ProjectFilter) ([]model.Project, error) {
	query := `SELECT payload FROM projects WHERE 1=1`
	var args []any

	if filter.Sector != "" {
		query += ` AND sector = ?`
		args = append(args, filter.Sector)
	}
	if filter.MinScore > 0 {
		query += ` AND grade_score >= ?`
		args = append(args, filter.MinScore)
	}
	query += ` ORDER BY grade_score DESC, slug ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr(err, "sqlite: list projects")
	}
	defer rows.Close()

	var projects []model.Project
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, storageErr(err, "sqlite: scan project")
		}
		var p model.Project
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal project")
		}
		projects = append(projects, p)
	}
	return projects, storageErr(rows.Err(), "sqlite: list projects iterate")
}

func (s *SQLiteStore) UpsertInvestor(ctx context.Context, inv model.Investor) error {
	payload, err := json.Marshal(inv)
	if err != nil {
		return eris.Wrapf(err, "sqlite: marshal investor %s", inv.ID)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO investors (id, name, tier, payload, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   name = excluded.name,
		   tier = excluded.tier,
		   payload = excluded.payload,
		   updated_at = excluded.updated_at`,
		inv.ID, inv.Name, inv.Tier, string(payload), time.Now().UTC(),
	)
	return storageErr(err, "sqlite: upsert investor")
}

func (s *SQLiteStore) GetInvestor(ctx context.Context, id string) (*model.Investor, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM investors WHERE id = ?`, id).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr(err, "sqlite: get investor")
	}
	var inv model.Investor
	if err := json.Unmarshal([]byte(payload), &inv); err != nil {
		return nil, eris.Wrapf(err, "sqlite: unmarshal investor %s", id)
	}
	return &inv, nil
}

func (s *SQLiteStore) GetInvestors(ctx context.Context, ids []string) (map[string]model.Investor, error) {
	out := make(map[string]model.Investor, len(ids))
	for _, id := range ids {
		inv, err := s.GetInvestor(ctx, id)
		if err != nil {
			return nil, err
		}
		if inv != nil {
			out[id] = *inv
		}
	}
	return out, nil
}

func (s *SQLiteStore) RecentFunding(ctx context.Context, since time.Time, limit int) ([]FundingRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT f.slug, p.name, f.payload FROM funding_events f
		 JOIN projects p ON p.slug = f.slug
		 WHERE f.announced_at >= ?
		 ORDER BY f.announced_at DESC, f.slug ASC LIMIT ?`,
		since.UTC(), limit,
	)
	if err != nil {
		return nil, storageErr(err, "sqlite: recent funding")
	}
	defer rows.Close()
	return scanFundingRows(rows)
}

func (s *SQLiteStore) InvestorPortfolio(ctx context.Context, investorID string) ([]FundingRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT f.slug, p.name, f.payload FROM funding_investors fi
		 JOIN funding_events f ON f.slug = fi.slug AND f.seq = fi.seq
		 JOIN projects p ON p.slug = f.slug
		 WHERE fi.investor_id = ?
		 ORDER BY f.announced_at DESC, f.slug ASC`,
		investorID,
	)
	if err != nil {
		return nil, storageErr(err, "sqlite: investor portfolio")
	}
	defer rows.Close()
	return scanFundingRows(rows)
}

func (s *SQLiteStore) AppendAudit(ctx context.Context, entry AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal audit entry")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, slug, payload, created_at) VALUES (?, ?, ?, ?)`,
		entry.ID, entry.Slug, string(payload), entry.CreatedAt,
	)
	return storageErr(err, "sqlite: append audit")
}

func (s *SQLiteStore) ListAudit(ctx context.Context, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM audit_log ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, storageErr(err, "sqlite: list audit")
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, storageErr(err, "sqlite: scan audit")
		}
		var e AuditEntry
		if err := json.Unmarshal([]byte(payload), &e); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal audit entry")
		}
		entries = append(entries, e)
	}
	return entries, storageErr(rows.Err(), "sqlite: list audit iterate")
}

func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	for _, q := range []struct {
		query string
		dest  *int
	}{
		{`SELECT COUNT(*) FROM projects`, &st.Projects},
		{`SELECT COUNT(*) FROM investors`, &st.Investors},
		{`SELECT COUNT(*) FROM funding_events`, &st.FundingEvents},
		{`SELECT COUNT(*) FROM audit_log`, &st.AuditEntries},
	} {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return nil, storageErr(err, "sqlite: stats count")
		}
	}

	var oldest, newest sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT MIN(reconciled_at), MAX(reconciled_at) FROM projects`,
	).Scan(&oldest, &newest)
	if err != nil {
		return nil, storageErr(err, "sqlite: stats range")
	}
	if oldest.Valid {
		st.OldestRecord = oldest.Time
	}
	if newest.Valid {
		st.NewestRecord = newest.Time
	}
	return &st, nil
}

func scanFundingRows(rows *sql.Rows) ([]FundingRow, error) {
	var out []FundingRow
	for rows.Next() {
		var fr FundingRow
		var payload string
		if err := rows.Scan(&fr.Slug, &fr.ProjectName, &payload); err != nil {
			return nil, storageErr(err, "sqlite: scan funding row")
		}
		if err := json.Unmarshal([]byte(payload), &fr.Event); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal funding event")
		}
		out = append(out, fr)
	}
	return out, storageErr(rows.Err(), "sqlite: funding rows iterate")
}
