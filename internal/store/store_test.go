package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/attentra/attentra/internal/flatten"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &Store{DB: db}, mock
}

func TestUpsertDocumentReturnsID(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`INSERT INTO documents`).
		WithArgs("org-1", "ext-9", "service", "Guide", "full text").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("doc-1"))

	id, err := s.UpsertDocument(context.Background(), "org-1", "ext-9", "service", "Guide", "full text")
	if err != nil {
		t.Fatalf("UpsertDocument: %v", err)
	}
	if id != "doc-1" {
		t.Fatalf("expected doc-1, got %s", id)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpsertAOIsRunsInOneTransaction(t *testing.T) {
	s, mock := newMockStore(t)

	aois := []flatten.AOI{
		{Key: "k1", HeadingPath: []string{"Intro"}, BlockIndex: 1, DocStart: 1, DocEnd: 40, Snippet: "first"},
		{Key: "k2", HeadingPath: []string{"Intro"}, BlockIndex: 2, DocStart: 40, DocEnd: 90, Snippet: "second"},
	}

	mock.ExpectBegin()
	for _, a := range aois {
		mock.ExpectExec(`INSERT INTO aois`).
			WithArgs("doc-1", a.Key, pq.Array(a.HeadingPath), a.BlockIndex, a.DocStart, a.DocEnd, a.Snippet).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()

	if err := s.UpsertAOIs(context.Background(), "doc-1", aois); err != nil {
		t.Fatalf("UpsertAOIs: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAggregateEventsExcludesUnattributed(t *testing.T) {
	s, mock := newMockStore(t)

	win := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(`aoi_key <> ''`)).
		WithArgs("org-1").
		WillReturnRows(sqlmock.NewRows([]string{"doc_id", "aoi_key", "dwell", "regr", "conf", "count", "min", "max"}).
			AddRow("doc-1", "k1", int64(12000), int64(3), int64(5), int64(7), win, win.Add(time.Hour)))

	recs, err := s.AggregateEvents(context.Background(), "org-1", "")
	if err != nil {
		t.Fatalf("AggregateEvents: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 aggregate, got %d", len(recs))
	}
	rec := recs[0]
	if rec.OrgID != "org-1" || rec.DocID != "doc-1" || rec.AoiKey != "k1" {
		t.Fatalf("unexpected identity: %+v", rec)
	}
	if rec.DwellMs != 12000 || rec.ConfusionFlags != 5 || rec.EventsCount != 7 {
		t.Fatalf("unexpected metrics: %+v", rec)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAggregateEventsNarrowedToDoc(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`AND doc_id = $2`)).
		WithArgs("org-1", "doc-2").
		WillReturnRows(sqlmock.NewRows([]string{"doc_id", "aoi_key", "dwell", "regr", "conf", "count", "min", "max"}))

	if _, err := s.AggregateEvents(context.Background(), "org-1", "doc-2"); err != nil {
		t.Fatalf("AggregateEvents: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetDocumentNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT id, org_id, external_id`).
		WithArgs("doc-x", "org-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	if _, err := s.GetDocument(context.Background(), "org-1", "doc-x"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInsertEventNullsEmptyOptionals(t *testing.T) {
	s, mock := newMockStore(t)

	at := time.Date(2026, 8, 20, 9, 30, 0, 0, time.UTC)
	mock.ExpectExec(`INSERT INTO attention_events`).
		WithArgs("ev-1", "org-1", "doc-1", nil, nil, "k1", StateConfused, int64(800), int64(2), nil, nil, at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.InsertEvent(context.Background(), EventRecord{
		ID: "ev-1", OrgID: "org-1", DocID: "doc-1", AoiKey: "k1",
		State: StateConfused, DwellMs: 800, Regressions: 2, OccurredAt: at,
	})
	if err != nil {
		t.Fatalf("InsertEvent: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
