package messaging

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/ujumbe/core"
	"github.com/trezcool/ujumbe/core/user"
)

// SnippetLen caps Thread.LastMessageSnippet length (runes).
const SnippetLen = 120

var (
	// errors
	ErrThreadNotFound   = errors.New("thread not found")
	ErrNotParticipant   = errors.New("you are not a participant of this thread")
	ErrNoMentorAssigned = errors.New("no active mentor assigned")
	ErrInvalidRecipient = errors.New("you cannot message this recipient")
)

// Thread is the deduplicated representation of a messaging relationship:
// student↔mentor, student↔admin or mentor↔admin. An empty slot is unused;
// an empty AdminID on an admin-facing thread means the shared admin queue.
// Slots are fixed at creation; a thread is never re-parented.
type Thread struct {
	ID                 int64     `json:"id"`
	StudentID          string    `json:"student_id,omitempty"`
	MentorID           string    `json:"mentor_id,omitempty"`
	AdminID            string    `json:"admin_id,omitempty"`
	Subject            string    `json:"subject,omitempty"`
	CreatedAt          time.Time `json:"created_at"`           // UTC
	LastMessageAt      time.Time `json:"last_message_at"`      // UTC
	LastMessageSnippet string    `json:"last_message"`
}

// IsAdminQueue reports whether the thread sits in the shared admin queue,
// ie. its counterpart is the admin role with no specific admin assigned.
func (t *Thread) IsAdminQueue() bool {
	return t.AdminID == "" && (t.StudentID == "" || t.MentorID == "")
}

// IsParticipant reports whether usr may read or append to the thread.
// Admins are participants of every shared-queue thread.
func (t *Thread) IsParticipant(usr user.User) bool {
	if usr.ID != "" && (usr.ID == t.StudentID || usr.ID == t.MentorID || usr.ID == t.AdminID) {
		return true
	}
	return usr.IsAdmin() && t.IsAdminQueue()
}

// Message is an immutable entry in a thread's append-only log.
type Message struct {
	ID        int64     `json:"id"`
	ThreadID  int64     `json:"thread_id"`
	SenderID  string    `json:"sender_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

// NewMessage is the unified send payload: either a reply into an existing
// thread (ThreadID) or a first contact (RecipientRole & co).
type NewMessage struct {
	ThreadID      int64  `json:"thread_id,omitempty"`
	RecipientRole string `json:"recipient_role,omitempty" validate:"required_without=ThreadID,omitempty,role"`
	RecipientID   string `json:"recipient_id,omitempty"`
	Subject       string `json:"subject,omitempty"`
	Body          string `json:"message" validate:"required"`
}

func (nm *NewMessage) Validate(validate *validator.Validate) error {
	nm.RecipientRole = core.CleanString(nm.RecipientRole, true /* lower */)
	nm.RecipientID = core.CleanString(nm.RecipientID)
	nm.Subject = core.CleanString(nm.Subject)
	nm.Body = core.CleanString(nm.Body)
	return validate.Struct(nm)
}
