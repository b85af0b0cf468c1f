package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/ujumbe/core"
	"github.com/trezcool/ujumbe/core/user"
)

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) *userRepository {
	return &userRepository{db: db}
}

func (repo userRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 {
		return svcExec[0]
	}
	return repo.db
}

type userRow struct {
	ID           string      `db:"id"`
	Name         null.String `db:"name"`
	Username     null.String `db:"username"`
	Email        null.String `db:"email"`
	Role         string      `db:"role"`
	Gender       null.String `db:"gender"`
	IsActive     null.Bool   `db:"is_active"`
	PasswordHash null.Bytes  `db:"password_hash"`
	CreatedAt    null.Time   `db:"created_at"`
	UpdatedAt    null.Time   `db:"updated_at"`
	LastLogin    null.Time   `db:"last_login"`
}

func (r userRow) unpack() user.User {
	return user.User{
		ID:           r.ID,
		Name:         r.Name.String,
		Username:     r.Username.String,
		Email:        r.Email.String,
		Role:         user.Role(r.Role),
		Gender:       r.Gender.String,
		IsActive:     r.IsActive.Ptr(),
		PasswordHash: r.PasswordHash.Bytes,
		CreatedAt:    r.CreatedAt.Time,
		UpdatedAt:    r.UpdatedAt.Time,
		LastLogin:    r.LastLogin.Time,
	}
}

func unpackUsers(rows []userRow) []user.User {
	users := make([]user.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.unpack())
	}
	return users
}

// trapNoRowsErr maps psql "no rows" err to user.ErrNotFound
func trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return user.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...user.User) error {
	query := `SELECT EXISTS (SELECT 1 FROM "user" WHERE (username = $1 OR email = $2)`
	args := []interface{}{username, email}
	if len(excludedUsers) > 0 {
		ids := make([]string, 0, len(excludedUsers))
		for _, u := range excludedUsers {
			ids = append(ids, u.ID)
		}
		query += ` AND id != ALL($3)`
		args = append(args, pq.Array(ids))
	}
	query += `)`

	var exists bool
	if err := repo.db.GetContext(ctx, &exists, query, args...); err != nil {
		return errors.Wrap(err, "checking user uniqueness")
	}
	if exists {
		return user.ErrUserExists
	}
	return nil
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	usr.ID = uuid.New().String()
	query := `
		INSERT INTO "user" (id, name, username, email, role, gender, is_active, password_hash, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, NULLIF($6, ''), $7, $8, $9, $10)`
	_, err := repo.getExec(exec).ExecContext(
		ctx, query,
		usr.ID, usr.Name, usr.Username, usr.Email, usr.Role.String(), usr.Gender,
		null.BoolFromPtr(usr.IsActive), usr.PasswordHash, usr.CreatedAt.UTC(), usr.UpdatedAt.UTC(),
	)
	if err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	query := `SELECT * FROM "user"`
	var args []interface{}
	var conds []string

	if filter != nil {
		if filter.Search != "" {
			args = append(args, "%"+filter.Search+"%")
			n := placeholder(len(args))
			conds = append(conds, `(name ILIKE `+n+` OR username ILIKE `+n+` OR email ILIKE `+n+`)`)
		}
		if filter.Role != "" {
			args = append(args, filter.Role)
			conds = append(conds, `role = `+placeholder(len(args)))
		}
		if filter.IsActive != nil {
			args = append(args, *filter.IsActive)
			conds = append(conds, `is_active = `+placeholder(len(args)))
		}
	}
	query += whereClause(conds) + orderClause(ordering)

	var rows []userRow
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	return unpackUsers(rows), nil
}

func (repo userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	var query string
	var arg interface{}

	switch {
	case filter.ID != "":
		if _, err := uuid.Parse(filter.ID); err != nil {
			return user.User{}, user.ErrNotFound
		}
		query, arg = `SELECT * FROM "user" WHERE id = $1`, filter.ID
	case filter.Username != "":
		query, arg = `SELECT * FROM "user" WHERE username = $1`, filter.Username
	case filter.Email != "":
		query, arg = `SELECT * FROM "user" WHERE email = $1`, filter.Email
	case filter.UsernameOrEmail != "":
		query, arg = `SELECT * FROM "user" WHERE username = $1 OR email = $1`, filter.UsernameOrEmail
	default:
		return user.User{}, user.ErrNotFound
	}

	var row userRow
	if err := repo.db.GetContext(ctx, &row, query, arg); err != nil {
		return user.User{}, trapNoRowsErr(err, "finding user")
	}
	return row.unpack(), nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	query := `
		UPDATE "user"
		SET name = $2, role = $3, gender = NULLIF($4, ''), is_active = $5,
		    password_hash = $6, updated_at = $7, last_login = $8
		WHERE id = $1`
	res, err := repo.getExec(exec).ExecContext(
		ctx, query,
		usr.ID, usr.Name, usr.Role.String(), usr.Gender, null.BoolFromPtr(usr.IsActive),
		usr.PasswordHash, usr.UpdatedAt.UTC(), null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
	)
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}

func (repo userRepository) GetActiveMentorship(ctx context.Context, studentID string) (user.Mentorship, error) {
	var mnt user.Mentorship
	query := `
		SELECT id, student_id, mentor_id, active, created_at
		FROM mentorship
		WHERE student_id = $1 AND active`
	err := repo.db.QueryRowContext(ctx, query, studentID).
		Scan(&mnt.ID, &mnt.StudentID, &mnt.MentorID, &mnt.Active, &mnt.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return user.Mentorship{}, user.ErrNoActiveMentor
		}
		return user.Mentorship{}, errors.Wrap(err, "finding active mentorship")
	}
	return mnt, nil
}

func (repo userRepository) DeactivateMentorships(ctx context.Context, studentID string, exec ...core.DBExecutor) error {
	query := `UPDATE mentorship SET active = FALSE WHERE student_id = $1 AND active`
	if _, err := repo.getExec(exec).ExecContext(ctx, query, studentID); err != nil {
		return errors.Wrap(err, "deactivating mentorships")
	}
	return nil
}

func (repo userRepository) CreateMentorship(ctx context.Context, mnt user.Mentorship, exec ...core.DBExecutor) (user.Mentorship, error) {
	query := `
		INSERT INTO mentorship (student_id, mentor_id, active, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`
	err := repo.getExec(exec).
		QueryRowContext(ctx, query, mnt.StudentID, mnt.MentorID, mnt.Active, mnt.CreatedAt.UTC()).
		Scan(&mnt.ID)
	if err != nil {
		return user.Mentorship{}, errors.Wrap(err, "inserting mentorship")
	}
	return mnt, nil
}
