package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"github.com/attentra/attentra/internal/anchor"
)

// CreateSuggestion stores a new pending suggestion and returns its id.
func (s *Store) CreateSuggestion(ctx context.Context, rec SuggestionRecord) (string, error) {
	var id string
	err := s.DB.QueryRowContext(ctx, `
INSERT INTO suggestions (org_id, doc_id, aoi_key, title, original_text, proposed_text, rationale, risk_flags, anchor_start, anchor_end, status, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,'pending',NOW())
RETURNING id`,
		rec.OrgID, rec.DocID, rec.AoiKey, rec.Title, rec.OriginalText, rec.ProposedText,
		rec.Rationale, pq.Array(rec.RiskFlags), rec.Anchor.Start, rec.Anchor.End).Scan(&id)
	return id, err
}

// GetSuggestion fetches a suggestion within an org. Another org's
// suggestion is indistinguishable from a missing one.
func (s *Store) GetSuggestion(ctx context.Context, orgID, id string) (SuggestionRecord, error) {
	var rec SuggestionRecord
	var note, appliedBy, backup sql.NullString
	var appliedAt sql.NullTime
	err := s.DB.QueryRowContext(ctx, `
SELECT id, org_id, doc_id, aoi_key, title, original_text, proposed_text, rationale, risk_flags,
       anchor_start, anchor_end, status, manager_note, applied_at, applied_by, backup_text, created_at
FROM suggestions WHERE id=$1 AND org_id=$2`, id, orgID).
		Scan(&rec.ID, &rec.OrgID, &rec.DocID, &rec.AoiKey, &rec.Title, &rec.OriginalText, &rec.ProposedText,
			&rec.Rationale, pq.Array(&rec.RiskFlags), &rec.Anchor.Start, &rec.Anchor.End, &rec.Status,
			&note, &appliedAt, &appliedBy, &backup, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return SuggestionRecord{}, ErrNotFound
	}
	if err != nil {
		return SuggestionRecord{}, err
	}
	rec.ManagerNote = note.String
	rec.AppliedBy = appliedBy.String
	rec.BackupText = backup.String
	if appliedAt.Valid {
		t := appliedAt.Time
		rec.AppliedAt = &t
	}
	return rec, nil
}

func (s *Store) ListSuggestions(ctx context.Context, orgID, status, docID string) ([]SuggestionRecord, error) {
	q := `
SELECT id, org_id, doc_id, aoi_key, title, original_text, proposed_text, rationale, risk_flags,
       anchor_start, anchor_end, status, manager_note, applied_at, applied_by, backup_text, created_at
FROM suggestions WHERE org_id=$1`
	args := []interface{}{orgID}
	if status != "" {
		args = append(args, status)
		q += ` AND status=$2`
	}
	if docID != "" {
		args = append(args, docID)
		if status != "" {
			q += ` AND doc_id=$3`
		} else {
			q += ` AND doc_id=$2`
		}
	}
	q += ` ORDER BY created_at DESC`

	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SuggestionRecord
	for rows.Next() {
		var rec SuggestionRecord
		var note, appliedBy, backup sql.NullString
		var appliedAt sql.NullTime
		if err := rows.Scan(&rec.ID, &rec.OrgID, &rec.DocID, &rec.AoiKey, &rec.Title, &rec.OriginalText, &rec.ProposedText,
			&rec.Rationale, pq.Array(&rec.RiskFlags), &rec.Anchor.Start, &rec.Anchor.End, &rec.Status,
			&note, &appliedAt, &appliedBy, &backup, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.ManagerNote = note.String
		rec.AppliedBy = appliedBy.String
		rec.BackupText = backup.String
		if appliedAt.Valid {
			t := appliedAt.Time
			rec.AppliedAt = &t
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// HasOpenSuggestion reports whether an AOI already has a pending or
// accepted suggestion, so generation does not pile duplicates onto the
// same paragraph.
func (s *Store) HasOpenSuggestion(ctx context.Context, docID, aoiKey string) (bool, error) {
	var exists bool
	err := s.DB.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM suggestions WHERE doc_id=$1 AND aoi_key=$2 AND status IN ('pending','accepted'))`,
		docID, aoiKey).Scan(&exists)
	return exists, err
}

// MarkSuggestionAccepted moves pending → accepted. Accepting an already
// accepted suggestion is a no-op (retry path); applied and rejected rows
// refuse the transition.
func (s *Store) MarkSuggestionAccepted(ctx context.Context, orgID, id string, note string) error {
	res, err := s.DB.ExecContext(ctx, `
UPDATE suggestions SET status='accepted', manager_note=COALESCE(NULLIF($3,''), manager_note)
WHERE id=$1 AND org_id=$2 AND status IN ('pending','accepted')`, id, orgID, note)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return s.suggestionTransitionError(ctx, orgID, id)
	}
	return nil
}

// MarkSuggestionApplied finalizes a successful edit: records the applied
// anchor, the pre-edit backup text and the actor. Guarded so a suggestion
// can never be applied twice.
func (s *Store) MarkSuggestionApplied(ctx context.Context, orgID, id string, applied anchor.Range, backupText, appliedBy string) error {
	res, err := s.DB.ExecContext(ctx, `
UPDATE suggestions SET status='applied', anchor_start=$3, anchor_end=$4, backup_text=$5, applied_by=$6, applied_at=NOW()
WHERE id=$1 AND org_id=$2 AND status IN ('pending','accepted')`, id, orgID, applied.Start, applied.End, backupText, appliedBy)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return s.suggestionTransitionError(ctx, orgID, id)
	}
	return nil
}

// MarkSuggestionRejected moves any non-applied suggestion to rejected.
// Rejecting an already rejected suggestion is an idempotent no-op.
func (s *Store) MarkSuggestionRejected(ctx context.Context, orgID, id string, note string) error {
	res, err := s.DB.ExecContext(ctx, `
UPDATE suggestions SET status='rejected', manager_note=COALESCE(NULLIF($3,''), manager_note)
WHERE id=$1 AND org_id=$2 AND status <> 'applied'`, id, orgID, note)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return s.suggestionTransitionError(ctx, orgID, id)
	}
	return nil
}

func (s *Store) suggestionTransitionError(ctx context.Context, orgID, id string) error {
	var status string
	err := s.DB.QueryRowContext(ctx, `SELECT status FROM suggestions WHERE id=$1 AND org_id=$2`, id, orgID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	switch status {
	case SuggestionStatusApplied:
		return ErrAlreadyApplied
	case SuggestionStatusRejected:
		return ErrAlreadyRejected
	default:
		return ErrNotFound
	}
}
