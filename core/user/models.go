package user

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/ujumbe/core"
)

// Role is the validated portal role of a User. Raw strings coming off the wire
// must go through ParseRole; every other package only ever sees a Role.
type Role string

const (
	RoleStudent Role = "student"
	RoleMentor  Role = "mentor"
	RoleAdmin   Role = "admin"
)

var AllRoles = []Role{RoleStudent, RoleMentor, RoleAdmin}

var ErrInvalidRole = errors.New("invalid role")

func ParseRole(s string) (Role, error) {
	switch r := Role(core.CleanString(s, true /* lower */)); r {
	case RoleStudent, RoleMentor, RoleAdmin:
		return r, nil
	}
	return "", ErrInvalidRole
}

func (r Role) IsValid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

func (r Role) String() string { return string(r) }

// Genders
const (
	GenderFemale = "female"
	GenderMale   = "male"
	GenderOther  = "other"
)

var (
	// errors
	ErrNotFound       = errors.New("user not found")
	ErrUserExists     = errors.New("a user with this username or email already exists")
	ErrNoActiveMentor = errors.New("no active mentor assigned")
)

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	Role         Role      `json:"role"`
	Gender       string    `json:"gender,omitempty"`
	IsActive     *bool     `json:"is_active"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
	LastLogin    time.Time `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) IsAdmin() bool   { return u.Role == RoleAdmin }
func (u *User) IsMentor() bool  { return u.Role == RoleMentor }
func (u *User) IsStudent() bool { return u.Role == RoleStudent }

// Mentorship is the active assignment of a mentor to a student.
// At most one active row exists per student at a time.
type Mentorship struct {
	ID        int64     `json:"id"`
	StudentID string    `json:"student_id"`
	MentorID  string    `json:"mentor_id"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name            string `json:"name" validate:"required"`
	Username        string `json:"username" validate:"omitempty,min=6,alphanum_"`
	Email           string `json:"email" validate:"omitempty,email"`
	Role            string `json:"role" validate:"required,role"`
	Gender          string `json:"gender" validate:"omitempty,oneof=female male other"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

func (nu *NewUser) Validate(validate *validator.Validate, svc ServiceInterface) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.Role = core.CleanString(nu.Role, true /* lower */)
	nu.Gender = core.CleanString(nu.Gender, true /* lower */)

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckUniqueness(nu.Username, nu.Email)
}

// AssignMentor defines the active mentor assignment for a student.
type AssignMentor struct {
	StudentID string `json:"student_id" validate:"required"`
	MentorID  string `json:"mentor_id" validate:"required"`
}

func (am *AssignMentor) Validate(validate *validator.Validate) error {
	am.StudentID = core.CleanString(am.StudentID)
	am.MentorID = core.CleanString(am.MentorID)
	return validate.Struct(am)
}

type QueryFilter struct {
	Search   string `query:"search"`
	Role     string `query:"role"`
	IsActive *bool  `query:"is_active"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Role == "" && qf.IsActive == nil
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Role = core.CleanString(qf.Role, true /* lower */)
}

// GetFilter looks a User up by exactly one of its fields.
type GetFilter struct {
	ID              string
	Username        string
	Email           string
	UsernameOrEmail string
}
