// Package inmemdb provides in-memory repositories for tests and local hacking.
// Writes are individually atomic; transactions are no-ops.
package inmemdb

import (
	"context"
	"database/sql"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/ujumbe/core"
	"github.com/trezcool/ujumbe/core/messaging"
	"github.com/trezcool/ujumbe/core/user"
)

type DB struct {
	sync.RWMutex

	users       map[string]*user.User
	mentorships map[int64]*user.Mentorship
	threads     map[int64]*messaging.Thread
	messages    map[int64]*messaging.Message

	mentorshipPK, threadPK, messagePK int64
}

var _ core.DB = (*DB)(nil)

func NewDB() *DB {
	db := new(DB)
	db.reset()
	return db
}

func (db *DB) reset() {
	db.users = make(map[string]*user.User)
	db.mentorships = make(map[int64]*user.Mentorship)
	db.threads = make(map[int64]*messaging.Thread)
	db.messages = make(map[int64]*messaging.Message)
	db.mentorshipPK, db.threadPK, db.messagePK = 0, 0, 0
}

func (db *DB) Reset() {
	db.Lock()
	defer db.Unlock()
	db.reset()
}

func (db *DB) BeginTransaction(ctx context.Context, opts *sql.TxOptions) (core.DBTransactor, error) {
	return noopTx{}, nil
}

var errNotSupported = errors.New("raw SQL not supported by inmemdb")

type noopTx struct{}

var _ core.DBTransactor = noopTx{}

func (noopTx) Exec(string, ...interface{}) (sql.Result, error) { return nil, errNotSupported }
func (noopTx) ExecContext(context.Context, string, ...interface{}) (sql.Result, error) {
	return nil, errNotSupported
}
func (noopTx) Query(string, ...interface{}) (*sql.Rows, error) { return nil, errNotSupported }
func (noopTx) QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error) {
	return nil, errNotSupported
}
func (noopTx) QueryRow(string, ...interface{}) *sql.Row                           { return nil }
func (noopTx) QueryRowContext(context.Context, string, ...interface{}) *sql.Row   { return nil }
func (noopTx) Commit() error                                                      { return nil }
func (noopTx) Rollback() error                                                    { return nil }
