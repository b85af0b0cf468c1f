package messaging

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/ujumbe/core"
	"github.com/trezcool/ujumbe/core/user"
)

type (
	Repository interface {
		// GetOrCreateThread atomically finds or creates the thread matching thr's
		// exact (student_id, mentor_id, admin_id) triple. The subject is only
		// written on create; an existing thread is returned unchanged.
		// Returns true when a new thread was created.
		GetOrCreateThread(ctx context.Context, thr Thread, exec ...core.DBExecutor) (Thread, bool, error)
		GetThread(ctx context.Context, id int64) (Thread, error)
		// QueryUserThreads returns the threads usr participates in (admins also
		// see shared-queue threads), ordered by last_message_at DESC.
		QueryUserThreads(ctx context.Context, usr user.User) ([]Thread, error)
		// CreateMessage inserts msg and refreshes the owning thread's
		// last_message_at/last_message summary in the same operation.
		// Callers pass a transaction to make the pair atomic.
		CreateMessage(ctx context.Context, msg Message, exec ...core.DBExecutor) (Message, Thread, error)
		// QueryThreadMessages returns the thread's log ordered by (created_at, id) ASC.
		QueryThreadMessages(ctx context.Context, threadID int64) ([]Message, error)
	}

	// MentorDirectory resolves a student's active mentor; satisfied by user.ServiceInterface.
	MentorDirectory interface {
		ActiveMentorFor(ctx context.Context, studentID string) (user.Mentorship, error)
	}

	ServiceInterface interface {
		Send(ctx context.Context, sender user.User, nm NewMessage) (Thread, Message, error)
		ListThreads(ctx context.Context, usr user.User) ([]Thread, error)
		GetThread(ctx context.Context, threadID int64, requester user.User) (Thread, []Message, error)
	}

	service struct {
		db      core.DB
		repo    Repository
		mentors MentorDirectory
	}
)

var _ ServiceInterface = (*service)(nil)

func NewService(db core.DB, repo Repository, mentors MentorDirectory) *service {
	return &service{
		db:      db,
		repo:    repo,
		mentors: mentors,
	}
}

// Send appends a message, lazily creating the thread on first contact.
// Everything it persists — thread row, message row, thread summary — goes
// through a single transaction: either the full (Thread, Message) pair comes
// back or nothing is stored.
func (svc *service) Send(ctx context.Context, sender user.User, nm NewMessage) (Thread, Message, error) {
	body := core.CleanString(nm.Body)
	if body == "" {
		return Thread{}, Message{}, core.NewValidationError(nil, core.FieldError{Field: "message", Error: "this field is required"})
	}

	if nm.ThreadID != 0 {
		return svc.reply(ctx, sender, nm.ThreadID, body)
	}

	rcptRole, err := user.ParseRole(nm.RecipientRole)
	if err != nil {
		return Thread{}, Message{}, core.NewValidationError(err, core.FieldError{Field: "recipient_role", Error: err.Error()})
	}
	rcpt := Recipient{Role: rcptRole, ID: core.CleanString(nm.RecipientID)}

	// a student messaging the mentor role defaults to their active mentor
	var mentorID string
	if sender.IsStudent() && rcpt.Role == user.RoleMentor {
		mnt, err := svc.mentors.ActiveMentorFor(ctx, sender.ID)
		if err != nil && errors.Cause(err) != user.ErrNoActiveMentor {
			return Thread{}, Message{}, errors.Wrap(err, "resolving active mentor")
		}
		mentorID = mnt.MentorID
	}

	if err = CanMessage(sender, rcpt, mentorID); err != nil {
		return Thread{}, Message{}, err
	}

	thr := resolveThread(sender, rcpt, mentorID, core.CleanString(nm.Subject))
	thr.CreatedAt = time.Now().UTC()

	tx, err := svc.db.BeginTransaction(ctx, nil)
	if err != nil {
		return Thread{}, Message{}, errors.Wrap(err, "beginning transaction")
	}

	thr, _, err = svc.repo.GetOrCreateThread(ctx, thr, tx)
	if err != nil {
		_ = tx.Rollback()
		return Thread{}, Message{}, err
	}
	msg, thr, err := svc.repo.CreateMessage(ctx, Message{
		ThreadID:  thr.ID,
		SenderID:  sender.ID,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}, tx)
	if err != nil {
		_ = tx.Rollback()
		return Thread{}, Message{}, err
	}

	if err = tx.Commit(); err != nil {
		return Thread{}, Message{}, errors.Wrap(err, "committing transaction")
	}
	return thr, msg, nil
}

// reply appends to an existing thread; only participants may append.
func (svc *service) reply(ctx context.Context, sender user.User, threadID int64, body string) (Thread, Message, error) {
	thr, err := svc.repo.GetThread(ctx, threadID)
	if err != nil {
		return Thread{}, Message{}, err
	}
	if !thr.IsParticipant(sender) {
		return Thread{}, Message{}, ErrNotParticipant
	}

	tx, err := svc.db.BeginTransaction(ctx, nil)
	if err != nil {
		return Thread{}, Message{}, errors.Wrap(err, "beginning transaction")
	}
	msg, thr, err := svc.repo.CreateMessage(ctx, Message{
		ThreadID:  thr.ID,
		SenderID:  sender.ID,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}, tx)
	if err != nil {
		_ = tx.Rollback()
		return Thread{}, Message{}, err
	}
	if err = tx.Commit(); err != nil {
		return Thread{}, Message{}, errors.Wrap(err, "committing transaction")
	}
	return thr, msg, nil
}

func (svc *service) ListThreads(ctx context.Context, usr user.User) ([]Thread, error) {
	return svc.repo.QueryUserThreads(ctx, usr)
}

func (svc *service) GetThread(ctx context.Context, threadID int64, requester user.User) (Thread, []Message, error) {
	thr, err := svc.repo.GetThread(ctx, threadID)
	if err != nil {
		return Thread{}, nil, err
	}
	if !thr.IsParticipant(requester) {
		return Thread{}, nil, ErrNotParticipant
	}
	msgs, err := svc.repo.QueryThreadMessages(ctx, thr.ID)
	if err != nil {
		return Thread{}, nil, err
	}
	return thr, msgs, nil
}

// resolveThread places sender and recipient into the thread's canonical slots.
// The guard has already validated the (sender role, recipient role) pair.
func resolveThread(sender user.User, rcpt Recipient, mentorID, subject string) Thread {
	thr := Thread{Subject: subject}

	switch sender.Role {
	case user.RoleStudent:
		thr.StudentID = sender.ID
		if rcpt.Role == user.RoleMentor {
			thr.MentorID = mentorID
		} else {
			thr.AdminID = rcpt.ID // "" targets the shared admin queue
		}
	case user.RoleMentor:
		thr.MentorID = sender.ID
		if rcpt.Role == user.RoleStudent {
			thr.StudentID = rcpt.ID
		} else {
			thr.AdminID = rcpt.ID
		}
	case user.RoleAdmin:
		thr.AdminID = sender.ID
		if rcpt.Role == user.RoleStudent {
			thr.StudentID = rcpt.ID
		} else {
			thr.MentorID = rcpt.ID
		}
	}
	return thr
}
