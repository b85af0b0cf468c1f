package user

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/ujumbe/core"
)

type (
	Repository interface {
		CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...User) error
		CreateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		// QueryUsers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of User.Name, User.Username or User.Email.
		QueryUsers(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error)
		GetUser(ctx context.Context, filter GetFilter) (User, error)
		UpdateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)

		GetActiveMentorship(ctx context.Context, studentID string) (Mentorship, error)
		DeactivateMentorships(ctx context.Context, studentID string, exec ...core.DBExecutor) error
		CreateMentorship(ctx context.Context, mnt Mentorship, exec ...core.DBExecutor) (Mentorship, error)
	}

	ServiceInterface interface {
		CheckUniqueness(uname, email string, excludedUsers ...User) error
		Create(ctx context.Context, nu NewUser) (User, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error)
		GetByID(ctx context.Context, id string) (User, error)
		GetByUsernameOrEmail(ctx context.Context, uname string) (User, error)
		SetLastLogin(ctx context.Context, usr User) (User, error)
		ActiveMentorFor(ctx context.Context, studentID string) (Mentorship, error)
		AssignMentor(ctx context.Context, am AssignMentor) (Mentorship, error)
	}

	service struct {
		db      core.DB
		repo    Repository
		mailSvc core.EmailService
		conf    *core.Config
	}
)

var _ ServiceInterface = (*service)(nil)

func NewService(db core.DB, repo Repository, mailSvc core.EmailService, conf *core.Config) *service {
	return &service{
		db:      db,
		repo:    repo,
		mailSvc: mailSvc,
		conf:    conf,
	}
}

func (svc *service) CheckUniqueness(uname, email string, excludedUsers ...User) error {
	if err := svc.repo.CheckUsernameUniqueness(context.Background(), uname, email, excludedUsers...); err != nil {
		if errors.Cause(err) == ErrUserExists {
			return core.NewValidationError(err, core.FieldError{Field: "username", Error: err.Error()})
		}
		return err
	}
	return nil
}

func (svc *service) Create(ctx context.Context, nu NewUser) (User, error) {
	role, err := ParseRole(nu.Role)
	if err != nil {
		return User{}, core.NewValidationError(err, core.FieldError{Field: "role", Error: err.Error()})
	}

	now := time.Now().UTC()
	isActive := true
	usr := User{
		Name:      nu.Name,
		Username:  nu.Username,
		Email:     nu.Email,
		Role:      role,
		Gender:    nu.Gender,
		IsActive:  &isActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}

	usr, err = svc.repo.CreateUser(ctx, usr)
	if err != nil {
		return User{}, err
	}
	svc.sendWelcomeEmail(usr)
	return usr, nil
}

func (svc *service) sendWelcomeEmail(usr User) {
	if usr.Email == "" {
		return
	}
	msg := &core.EmailMessage{
		To:      []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject: "Welcome to " + svc.conf.AppName,
		BodyStr: fmt.Sprintf(
			"Hi %s,\n\nYour %s account has been created. Log in at %s to get started.",
			usr.Name, svc.conf.AppName, svc.conf.FrontendBaseURL,
		),
	}
	msg.Render(svc.conf)
	svc.mailSvc.SendMessages(msg)
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error) {
	if ordering == nil {
		ordering = []core.DBOrdering{{Field: "created_at", Ascending: true}}
	}
	return svc.repo.QueryUsers(ctx, filter, ordering)
}

func (svc *service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *service) GetByUsernameOrEmail(ctx context.Context, uname string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{UsernameOrEmail: core.CleanString(uname, true /* lower */)})
}

func (svc *service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	now := time.Now().UTC()
	usr.LastLogin = now
	usr.UpdatedAt = now
	return svc.repo.UpdateUser(ctx, usr)
}

// ActiveMentorFor returns the student's active Mentorship; ErrNoActiveMentor if none exists.
func (svc *service) ActiveMentorFor(ctx context.Context, studentID string) (Mentorship, error) {
	return svc.repo.GetActiveMentorship(ctx, studentID)
}

// AssignMentor makes mentor the student's single active mentor,
// deactivating any previous assignment in the same transaction.
func (svc *service) AssignMentor(ctx context.Context, am AssignMentor) (Mentorship, error) {
	student, err := svc.repo.GetUser(ctx, GetFilter{ID: am.StudentID})
	if err != nil {
		return Mentorship{}, errors.Wrap(err, "finding student")
	}
	if !student.IsStudent() {
		return Mentorship{}, core.NewValidationError(nil, core.FieldError{Field: "student_id", Error: "user is not a student"})
	}
	mentor, err := svc.repo.GetUser(ctx, GetFilter{ID: am.MentorID})
	if err != nil {
		return Mentorship{}, errors.Wrap(err, "finding mentor")
	}
	if !mentor.IsMentor() {
		return Mentorship{}, core.NewValidationError(nil, core.FieldError{Field: "mentor_id", Error: "user is not a mentor"})
	}

	tx, err := svc.db.BeginTransaction(ctx, nil)
	if err != nil {
		return Mentorship{}, errors.Wrap(err, "beginning transaction")
	}

	if err = svc.repo.DeactivateMentorships(ctx, student.ID, tx); err != nil {
		_ = tx.Rollback()
		return Mentorship{}, err
	}
	mnt, err := svc.repo.CreateMentorship(ctx, Mentorship{
		StudentID: student.ID,
		MentorID:  mentor.ID,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}, tx)
	if err != nil {
		_ = tx.Rollback()
		return Mentorship{}, err
	}

	if err = tx.Commit(); err != nil {
		return Mentorship{}, errors.Wrap(err, "committing transaction")
	}
	return mnt, nil
}
