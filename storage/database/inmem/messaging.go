package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/trezcool/ujumbe/core"
	"github.com/trezcool/ujumbe/core/messaging"
	"github.com/trezcool/ujumbe/core/user"
)

type messagingRepository struct {
	db *DB
}

var _ messaging.Repository = (*messagingRepository)(nil) // interface compliance check

func NewMessagingRepository(db *DB) *messagingRepository {
	return &messagingRepository{db: db}
}

// GetOrCreateThread holds the write lock across the find-then-create pair,
// mirroring the unique-constraint upsert of the SQL repository.
func (repo *messagingRepository) GetOrCreateThread(ctx context.Context, thr messaging.Thread, exec ...core.DBExecutor) (messaging.Thread, bool, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, t := range repo.db.threads {
		if t.StudentID == thr.StudentID && t.MentorID == thr.MentorID && t.AdminID == thr.AdminID {
			return *t, false, nil
		}
	}

	repo.db.threadPK++
	thr.ID = repo.db.threadPK
	if thr.CreatedAt.IsZero() {
		thr.CreatedAt = time.Now().UTC()
	}
	repo.db.threads[thr.ID] = &thr
	return thr, true, nil
}

func (repo *messagingRepository) GetThread(ctx context.Context, id int64) (messaging.Thread, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if thr, ok := repo.db.threads[id]; ok {
		return *thr, nil
	}
	return messaging.Thread{}, messaging.ErrThreadNotFound
}

func (repo *messagingRepository) QueryUserThreads(ctx context.Context, usr user.User) ([]messaging.Thread, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	threads := make([]messaging.Thread, 0)
	for _, t := range repo.db.threads {
		if t.LastMessageAt.IsZero() || !t.IsParticipant(usr) {
			continue
		}
		threads = append(threads, *t)
	}
	sort.Slice(threads, func(i, j int) bool {
		if threads[i].LastMessageAt.Equal(threads[j].LastMessageAt) {
			return threads[i].ID > threads[j].ID
		}
		return threads[i].LastMessageAt.After(threads[j].LastMessageAt)
	})
	return threads, nil
}

func (repo *messagingRepository) CreateMessage(ctx context.Context, msg messaging.Message, exec ...core.DBExecutor) (messaging.Message, messaging.Thread, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	thr, ok := repo.db.threads[msg.ThreadID]
	if !ok {
		return messaging.Message{}, messaging.Thread{}, messaging.ErrThreadNotFound
	}

	repo.db.messagePK++
	msg.ID = repo.db.messagePK
	repo.db.messages[msg.ID] = &msg

	thr.LastMessageAt = msg.CreatedAt
	thr.LastMessageSnippet = core.TruncateString(msg.Body, messaging.SnippetLen)
	return msg, *thr, nil
}

func (repo *messagingRepository) QueryThreadMessages(ctx context.Context, threadID int64) ([]messaging.Message, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	msgs := make([]messaging.Message, 0)
	for _, m := range repo.db.messages {
		if m.ThreadID == threadID {
			msgs = append(msgs, *m)
		}
	}
	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].ID < msgs[j].ID
		}
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
	return msgs, nil
}
