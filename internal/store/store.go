package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/lib/pq"

	"github.com/attentra/attentra/internal/anchor"
	"github.com/attentra/attentra/internal/flatten"
)

type Store struct {
	DB *sql.DB
}

// Suggestion statuses. pending → accepted|rejected; accepted → applied.
// applied and rejected are terminal; a failed apply stays accepted so it
// can be retried.
const (
	SuggestionStatusPending  = "pending"
	SuggestionStatusAccepted = "accepted"
	SuggestionStatusApplied  = "applied"
	SuggestionStatusRejected = "rejected"
)

// Attention states an event may carry.
const (
	StateNeutral    = "neutral"
	StateConfused   = "confused"
	StateInterested = "interested"
	StateSkimming   = "skimming"
	StateRevising   = "revising"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyApplied  = errors.New("suggestion already applied")
	ErrAlreadyRejected = errors.New("suggestion already rejected")
)

// Document is a tracked document row. FullText is the flattened text from
// the last sync.
type Document struct {
	ID         string
	OrgID      string
	ExternalID string
	Source     string
	Title      string
	FullText   string
	SyncedAt   time.Time
}

// AOIRecord is the persisted AOI map row for one (doc, key) pair.
type AOIRecord struct {
	DocID       string
	Key         string
	HeadingPath []string
	BlockIndex  int
	DocStart    int
	DocEnd      int
	Snippet     string
	UpdatedAt   time.Time
}

// EventRecord is one append-only attention event. Rows are never mutated
// after insert.
type EventRecord struct {
	ID          string
	OrgID       string
	DocID       string
	UserID      string
	SessionID   string
	AoiKey      string
	State       string
	DwellMs     int64
	Regressions int64
	Bbox        json.RawMessage
	Context     json.RawMessage
	OccurredAt  time.Time
}

// AggregateRecord is the current rollup row for one (org, doc, aoi key).
// It is overwritten wholesale on every rollup run, never incremented.
type AggregateRecord struct {
	OrgID          string
	DocID          string
	AoiKey         string
	WindowStart    time.Time
	WindowEnd      time.Time
	DwellMs        int64
	Regressions    int64
	ConfusionFlags int64
	EventsCount    int64
}

// AggregateSummary is the org- or doc-level total across aggregates.
type AggregateSummary struct {
	Events         int64
	ConfusionFlags int64
	DwellMs        int64
}

// SuggestionRecord is a stored edit proposal. Rows are kept for audit and
// never deleted.
type SuggestionRecord struct {
	ID           string
	OrgID        string
	DocID        string
	AoiKey       string
	Title        string
	OriginalText string
	ProposedText string
	Rationale    string
	RiskFlags    []string
	Anchor       anchor.Range
	Status       string
	ManagerNote  string
	AppliedAt    *time.Time
	AppliedBy    string
	BackupText   string
	CreatedAt    time.Time
}

// OrgDoc identifies one document of one org, used by the rollup scheduler.
type OrgDoc struct {
	OrgID string
	DocID string
}

func New(ctx context.Context) (*Store, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		host := getenvDefault("POSTGRES_HOST", "localhost")
		port := getenvDefault("POSTGRES_PORT", "5432")
		user := os.Getenv("POSTGRES_USER")
		pass := os.Getenv("POSTGRES_PASSWORD")
		db := os.Getenv("POSTGRES_DB")
		ssl := getenvDefault("POSTGRES_SSLMODE", "disable")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, db, ssl)
	}
	return NewWithDSN(ctx, dsn)
}

// NewWithDSN constructs the Store using an explicit Postgres DSN.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

func getenvDefault(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

// Org / user operations

func (s *Store) CreateOrg(ctx context.Context, name string) (string, error) {
	var id string
	err := s.DB.QueryRowContext(ctx, `INSERT INTO orgs (name) VALUES ($1) RETURNING id`, name).Scan(&id)
	return id, err
}

func (s *Store) CreateUser(ctx context.Context, orgID, email, hash string) error {
	_, err := s.DB.ExecContext(ctx, `INSERT INTO users (org_id, email, password_hash) VALUES ($1,$2,$3)`, orgID, email, hash)
	return err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (id string, orgID string, hash string, err error) {
	err = s.DB.QueryRowContext(ctx, `SELECT id, org_id, password_hash FROM users WHERE email=$1`, email).Scan(&id, &orgID, &hash)
	return
}

// Document operations

// UpsertDocument creates or refreshes the tracked document identified by
// the external service's id, returning the internal doc id.
func (s *Store) UpsertDocument(ctx context.Context, orgID, externalID, source, title, fullText string) (string, error) {
	var id string
	err := s.DB.QueryRowContext(ctx, `
INSERT INTO documents (org_id, external_id, source, title, full_text, synced_at)
VALUES ($1,$2,$3,$4,$5,NOW())
ON CONFLICT (org_id, external_id) DO UPDATE SET
  source    = EXCLUDED.source,
  title     = EXCLUDED.title,
  full_text = EXCLUDED.full_text,
  synced_at = NOW()
RETURNING id;
`, orgID, externalID, source, title, fullText).Scan(&id)
	return id, err
}

func (s *Store) GetDocument(ctx context.Context, orgID, docID string) (Document, error) {
	var d Document
	err := s.DB.QueryRowContext(ctx, `SELECT id, org_id, external_id, source, title, full_text, synced_at FROM documents WHERE id=$1 AND org_id=$2`, docID, orgID).
		Scan(&d.ID, &d.OrgID, &d.ExternalID, &d.Source, &d.Title, &d.FullText, &d.SyncedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	return d, err
}

// AOI map operations

// UpsertAOIs refreshes the AOI map for a document inside one transaction.
// Existing rows for the same (doc_id, aoi_key) are updated in place, never
// duplicated.
func (s *Store) UpsertAOIs(ctx context.Context, docID string, aois []flatten.AOI) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, a := range aois {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO aois (doc_id, aoi_key, heading_path, block_index, doc_start, doc_end, snippet, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,NOW())
ON CONFLICT (doc_id, aoi_key) DO UPDATE SET
  heading_path = EXCLUDED.heading_path,
  block_index  = EXCLUDED.block_index,
  doc_start    = EXCLUDED.doc_start,
  doc_end      = EXCLUDED.doc_end,
  snippet      = EXCLUDED.snippet,
  updated_at   = NOW();
`, docID, a.Key, pq.Array(a.HeadingPath), a.BlockIndex, a.DocStart, a.DocEnd, a.Snippet); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) GetAOI(ctx context.Context, docID, aoiKey string) (AOIRecord, error) {
	var a AOIRecord
	err := s.DB.QueryRowContext(ctx, `SELECT doc_id, aoi_key, heading_path, block_index, doc_start, doc_end, snippet, updated_at FROM aois WHERE doc_id=$1 AND aoi_key=$2`, docID, aoiKey).
		Scan(&a.DocID, &a.Key, pq.Array(&a.HeadingPath), &a.BlockIndex, &a.DocStart, &a.DocEnd, &a.Snippet, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return AOIRecord{}, ErrNotFound
	}
	return a, err
}

func (s *Store) ListAOIs(ctx context.Context, docID string) ([]AOIRecord, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT doc_id, aoi_key, heading_path, block_index, doc_start, doc_end, snippet, updated_at FROM aois WHERE doc_id=$1 ORDER BY block_index`, docID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AOIRecord
	for rows.Next() {
		var a AOIRecord
		if err := rows.Scan(&a.DocID, &a.Key, pq.Array(&a.HeadingPath), &a.BlockIndex, &a.DocStart, &a.DocEnd, &a.Snippet, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Event operations

// InsertEvent appends one attention event. No aggregate is touched here;
// rollup recomputes from the event log.
func (s *Store) InsertEvent(ctx context.Context, ev EventRecord) error {
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO attention_events (id, org_id, doc_id, user_id, session_id, aoi_key, state, dwell_ms, regressions, bbox, context, occurred_at, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,NOW())`,
		ev.ID, ev.OrgID, ev.DocID, nullStr(ev.UserID), nullStr(ev.SessionID), ev.AoiKey, ev.State,
		ev.DwellMs, ev.Regressions, nullJSON(ev.Bbox), nullJSON(ev.Context), ev.OccurredAt)
	return err
}

// Aggregate operations

// AggregateEvents recomputes per-AOI metrics from the full event history of
// an org, optionally narrowed to one document. Events without an AOI key
// cannot be attributed and are excluded here rather than failing the run.
func (s *Store) AggregateEvents(ctx context.Context, orgID, docID string) ([]AggregateRecord, error) {
	q := `
SELECT doc_id, aoi_key,
       COALESCE(SUM(dwell_ms),0),
       COALESCE(SUM(regressions),0),
       COUNT(*) FILTER (WHERE state = 'confused'),
       COUNT(*),
       MIN(occurred_at), MAX(occurred_at)
FROM attention_events
WHERE org_id = $1 AND aoi_key <> ''`
	args := []interface{}{orgID}
	if docID != "" {
		q += ` AND doc_id = $2`
		args = append(args, docID)
	}
	q += ` GROUP BY doc_id, aoi_key`

	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AggregateRecord
	for rows.Next() {
		rec := AggregateRecord{OrgID: orgID}
		if err := rows.Scan(&rec.DocID, &rec.AoiKey, &rec.DwellMs, &rec.Regressions, &rec.ConfusionFlags, &rec.EventsCount, &rec.WindowStart, &rec.WindowEnd); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// UpsertAggregate overwrites the current rollup row for one key. Last
// writer wins; concurrent rollups compute from the same source data.
func (s *Store) UpsertAggregate(ctx context.Context, rec AggregateRecord) error {
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO aoi_aggregates (org_id, doc_id, aoi_key, window_start, window_end, dwell_ms, regressions, confusion_flags, events_count, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW())
ON CONFLICT (org_id, doc_id, aoi_key) DO UPDATE SET
  window_start    = EXCLUDED.window_start,
  window_end      = EXCLUDED.window_end,
  dwell_ms        = EXCLUDED.dwell_ms,
  regressions     = EXCLUDED.regressions,
  confusion_flags = EXCLUDED.confusion_flags,
  events_count    = EXCLUDED.events_count,
  updated_at      = NOW();
`, rec.OrgID, rec.DocID, rec.AoiKey, rec.WindowStart, rec.WindowEnd, rec.DwellMs, rec.Regressions, rec.ConfusionFlags, rec.EventsCount)
	return err
}

// ListAggregates returns current rollup rows ordered by friction:
// confusion flags first, then dwell time.
func (s *Store) ListAggregates(ctx context.Context, orgID, docID string, limit int) ([]AggregateRecord, error) {
	q := `
SELECT org_id, doc_id, aoi_key, window_start, window_end, dwell_ms, regressions, confusion_flags, events_count
FROM aoi_aggregates
WHERE org_id = $1`
	args := []interface{}{orgID}
	if docID != "" {
		q += ` AND doc_id = $2`
		args = append(args, docID)
	}
	q += ` ORDER BY confusion_flags DESC, dwell_ms DESC`
	if limit > 0 {
		q += fmt.Sprintf(` LIMIT %d`, limit)
	}

	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AggregateRecord
	for rows.Next() {
		var rec AggregateRecord
		if err := rows.Scan(&rec.OrgID, &rec.DocID, &rec.AoiKey, &rec.WindowStart, &rec.WindowEnd, &rec.DwellMs, &rec.Regressions, &rec.ConfusionFlags, &rec.EventsCount); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) SummarizeAggregates(ctx context.Context, orgID, docID string) (AggregateSummary, error) {
	q := `SELECT COALESCE(SUM(events_count),0), COALESCE(SUM(confusion_flags),0), COALESCE(SUM(dwell_ms),0) FROM aoi_aggregates WHERE org_id = $1`
	args := []interface{}{orgID}
	if docID != "" {
		q += ` AND doc_id = $2`
		args = append(args, docID)
	}
	var sum AggregateSummary
	err := s.DB.QueryRowContext(ctx, q, args...).Scan(&sum.Events, &sum.ConfusionFlags, &sum.DwellMs)
	return sum, err
}

// ListActiveOrgDocs returns the (org, doc) pairs that received events after
// the given instant; the scheduler uses this to bound its rollup sweep.
func (s *Store) ListActiveOrgDocs(ctx context.Context, since time.Time) ([]OrgDoc, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT DISTINCT org_id, doc_id FROM attention_events WHERE created_at >= $1`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []OrgDoc
	for rows.Next() {
		var od OrgDoc
		if err := rows.Scan(&od.OrgID, &od.DocID); err != nil {
			return nil, err
		}
		out = append(out, od)
	}
	return out, rows.Err()
}

func nullStr(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullJSON(b json.RawMessage) interface{} {
	if len(b) == 0 {
		return nil
	}
	return []byte(b)
}
