package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

var ErrNotFound = errors.New("not found")

// Submission is the journal row of one submit call, keyed by the hash of the
// message it started with.
type Submission struct {
	MessageHash string
	Signature   string
	Attempt     uint32
	State       string
	Slot        uint64
	Reason      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

const submissionsTable = "submissions"

var submissionColumns = []string{
	"sub_message_hash",
	"sub_signature",
	"sub_attempt",
	"sub_state",
	"sub_slot",
	"sub_reason",
	"sub_created_at",
	"sub_updated_at",
}

// SaveSubmission inserts or updates the row of s.MessageHash.
func (s *Storage) SaveSubmission(sub Submission) error {
	if sub.MessageHash == "" {
		return fmt.Errorf("empty message hash")
	}
	if sub.UpdatedAt.IsZero() {
		sub.UpdatedAt = time.Now()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = sub.UpdatedAt
	}

	query, args, err := sq.Insert(submissionsTable).
		Columns(submissionColumns...).
		Values(sub.MessageHash, sub.Signature, sub.Attempt, sub.State, sub.Slot, sub.Reason,
			sub.CreatedAt.UnixMilli(), sub.UpdatedAt.UnixMilli()).
		Suffix(`ON CONFLICT (sub_message_hash) DO UPDATE SET
			sub_signature = excluded.sub_signature,
			sub_attempt = excluded.sub_attempt,
			sub_state = excluded.sub_state,
			sub_slot = excluded.sub_slot,
			sub_reason = excluded.sub_reason,
			sub_updated_at = excluded.sub_updated_at`).
		ToSql()
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(s.ctx, query, args...)
	if err != nil {
		return fmt.Errorf("insert: %s", err)
	}

	return nil
}

func (s *Storage) GetSubmission(messageHash string) (sub Submission, err error) {
	query, args, err := sq.Select(submissionColumns...).
		From(submissionsTable).
		Where(sq.Eq{"sub_message_hash": messageHash}).
		ToSql()
	if err != nil {
		return sub, err
	}

	sub, err = scanSubmission(s.db.QueryRowContext(s.ctx, query, args...))
	if err == sql.ErrNoRows {
		return sub, ErrNotFound
	}

	return sub, err
}

func (s *Storage) GetSubmissionBySignature(signature string) (sub Submission, err error) {
	query, args, err := sq.Select(submissionColumns...).
		From(submissionsTable).
		Where(sq.Eq{"sub_signature": signature}).
		OrderBy("sub_updated_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return sub, err
	}

	sub, err = scanSubmission(s.db.QueryRowContext(s.ctx, query, args...))
	if err == sql.ErrNoRows {
		return sub, ErrNotFound
	}

	return sub, err
}

// GetSubmissionsByState returns the most recently updated rows in state.
func (s *Storage) GetSubmissionsByState(state string, limit uint64) (res []Submission, err error) {
	query, args, err := sq.Select(submissionColumns...).
		From(submissionsTable).
		Where(sq.Eq{"sub_state": state}).
		OrderBy("sub_updated_at DESC").
		Limit(limit).
		ToSql()
	if err != nil {
		return res, err
	}

	rows, err := s.db.QueryContext(s.ctx, query, args...)
	if err != nil {
		return res, err
	}
	defer rows.Close()

	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return res, fmt.Errorf("scan: %s", err)
		}
		res = append(res, sub)
	}

	return res, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSubmission(row scanner) (sub Submission, err error) {
	var createdAt, updatedAt int64
	err = row.Scan(&sub.MessageHash, &sub.Signature, &sub.Attempt, &sub.State, &sub.Slot, &sub.Reason, &createdAt, &updatedAt)
	if err != nil {
		return sub, err
	}
	sub.CreatedAt = time.UnixMilli(createdAt)
	sub.UpdatedAt = time.UnixMilli(updatedAt)

	return sub, nil
}
