package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/ujumbe/core"
	"github.com/trezcool/ujumbe/core/messaging"
	"github.com/trezcool/ujumbe/core/user"
)

type messagingRepository struct {
	db *sqlx.DB
}

var _ messaging.Repository = (*messagingRepository)(nil) // interface compliance check

func NewMessagingRepository(db *sqlx.DB) *messagingRepository {
	return &messagingRepository{db: db}
}

func (repo messagingRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 {
		return svcExec[0]
	}
	return repo.db
}

type threadRow struct {
	ID                 int64       `db:"id"`
	StudentID          string      `db:"student_id"`
	MentorID           string      `db:"mentor_id"`
	AdminID            string      `db:"admin_id"`
	Subject            null.String `db:"subject"`
	CreatedAt          null.Time   `db:"created_at"`
	LastMessageAt      null.Time   `db:"last_message_at"`
	LastMessageSnippet string      `db:"last_message_snippet"`
}

func (r threadRow) unpack() messaging.Thread {
	return messaging.Thread{
		ID:                 r.ID,
		StudentID:          r.StudentID,
		MentorID:           r.MentorID,
		AdminID:            r.AdminID,
		Subject:            r.Subject.String,
		CreatedAt:          r.CreatedAt.Time,
		LastMessageAt:      r.LastMessageAt.Time,
		LastMessageSnippet: r.LastMessageSnippet,
	}
}

const threadColumns = `id, student_id, mentor_id, admin_id, subject, created_at, last_message_at, last_message_snippet`

// GetOrCreateThread is a single atomic upsert-and-return: the unique constraint
// on (student_id, mentor_id, admin_id) serializes concurrent first contacts for
// the same pair, and the no-op conflict update lets RETURNING hand back the
// existing row (subject untouched).
func (repo messagingRepository) GetOrCreateThread(ctx context.Context, thr messaging.Thread, exec ...core.DBExecutor) (messaging.Thread, bool, error) {
	query := `
		INSERT INTO thread (student_id, mentor_id, admin_id, subject, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5)
		ON CONFLICT ON CONSTRAINT thread_parties_key
		DO UPDATE SET student_id = EXCLUDED.student_id
		RETURNING ` + threadColumns + `, (xmax = 0) AS created`

	var row threadRow
	var created bool
	err := repo.getExec(exec).
		QueryRowContext(ctx, query, thr.StudentID, thr.MentorID, thr.AdminID, thr.Subject, thr.CreatedAt.UTC()).
		Scan(
			&row.ID, &row.StudentID, &row.MentorID, &row.AdminID, &row.Subject,
			&row.CreatedAt, &row.LastMessageAt, &row.LastMessageSnippet, &created,
		)
	if err != nil {
		return messaging.Thread{}, false, errors.Wrap(err, "upserting thread")
	}
	return row.unpack(), created, nil
}

func (repo messagingRepository) GetThread(ctx context.Context, id int64) (messaging.Thread, error) {
	var row threadRow
	query := `SELECT ` + threadColumns + ` FROM thread WHERE id = $1`
	if err := repo.db.GetContext(ctx, &row, query, id); err != nil {
		if err == sql.ErrNoRows {
			return messaging.Thread{}, messaging.ErrThreadNotFound
		}
		return messaging.Thread{}, errors.Wrap(err, "finding thread")
	}
	return row.unpack(), nil
}

func (repo messagingRepository) QueryUserThreads(ctx context.Context, usr user.User) ([]messaging.Thread, error) {
	query := `
		SELECT ` + threadColumns + `
		FROM thread
		WHERE (student_id = $1 OR mentor_id = $1 OR admin_id = $1`
	if usr.IsAdmin() {
		// admins also see the shared admin queue
		query += ` OR (admin_id = '' AND (student_id = '' OR mentor_id = ''))`
	}
	query += `)
		AND last_message_at IS NOT NULL
		ORDER BY last_message_at DESC, id DESC`

	var rows []threadRow
	if err := repo.db.SelectContext(ctx, &rows, query, usr.ID); err != nil {
		return nil, errors.Wrap(err, "querying threads")
	}
	threads := make([]messaging.Thread, 0, len(rows))
	for _, r := range rows {
		threads = append(threads, r.unpack())
	}
	return threads, nil
}

type messageRow struct {
	ID        int64     `db:"id"`
	ThreadID  int64     `db:"thread_id"`
	SenderID  string    `db:"sender_id"`
	Body      string    `db:"body"`
	CreatedAt null.Time `db:"created_at"`
}

func (r messageRow) unpack() messaging.Message {
	return messaging.Message{
		ID:        r.ID,
		ThreadID:  r.ThreadID,
		SenderID:  r.SenderID,
		Body:      r.Body,
		CreatedAt: r.CreatedAt.Time,
	}
}

// CreateMessage appends the message and refreshes the owning thread's summary
// on the same executor; callers wrap both in a transaction.
func (repo messagingRepository) CreateMessage(ctx context.Context, msg messaging.Message, exec ...core.DBExecutor) (messaging.Message, messaging.Thread, error) {
	exe := repo.getExec(exec)

	query := `
		INSERT INTO message (thread_id, sender_id, body, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`
	err := exe.QueryRowContext(ctx, query, msg.ThreadID, msg.SenderID, msg.Body, msg.CreatedAt.UTC()).
		Scan(&msg.ID)
	if err != nil {
		return messaging.Message{}, messaging.Thread{}, errors.Wrap(err, "inserting message")
	}

	query = `
		UPDATE thread
		SET last_message_at = $2, last_message_snippet = $3
		WHERE id = $1
		RETURNING ` + threadColumns
	var row threadRow
	err = exe.QueryRowContext(ctx, query, msg.ThreadID, msg.CreatedAt.UTC(), core.TruncateString(msg.Body, messaging.SnippetLen)).
		Scan(
			&row.ID, &row.StudentID, &row.MentorID, &row.AdminID, &row.Subject,
			&row.CreatedAt, &row.LastMessageAt, &row.LastMessageSnippet,
		)
	if err != nil {
		if err == sql.ErrNoRows {
			return messaging.Message{}, messaging.Thread{}, messaging.ErrThreadNotFound
		}
		return messaging.Message{}, messaging.Thread{}, errors.Wrap(err, "updating thread summary")
	}
	return msg, row.unpack(), nil
}

func (repo messagingRepository) QueryThreadMessages(ctx context.Context, threadID int64) ([]messaging.Message, error) {
	query := `
		SELECT id, thread_id, sender_id, body, created_at
		FROM message
		WHERE thread_id = $1
		ORDER BY created_at, id`

	var rows []messageRow
	if err := repo.db.SelectContext(ctx, &rows, query, threadID); err != nil {
		return nil, errors.Wrap(err, "querying messages")
	}
	msgs := make([]messaging.Message, 0, len(rows))
	for _, r := range rows {
		msgs = append(msgs, r.unpack())
	}
	return msgs, nil
}
