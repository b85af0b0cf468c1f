package messaging

import (
	"github.com/trezcool/ujumbe/core/user"
)

// Recipient identifies the counterpart a first-contact message is addressed to.
// An empty ID targets the role's default: the student's active mentor, or the
// shared admin queue.
type Recipient struct {
	Role user.Role
	ID   string
}

// CanMessage decides whether sender may open a conversation with rcpt.
// activeMentorID is the sender's active mentor ("" when none); it is only
// consulted when a student messages the mentor role. Pure; no side effects.
//
// Note: a mentor may message any student by explicit id; no mentorship
// relation is required.
func CanMessage(sender user.User, rcpt Recipient, activeMentorID string) error {
	switch sender.Role {
	case user.RoleStudent:
		switch rcpt.Role {
		case user.RoleMentor:
			if activeMentorID == "" {
				return ErrNoMentorAssigned
			}
			if rcpt.ID != "" && rcpt.ID != activeMentorID {
				return ErrInvalidRecipient
			}
			return nil
		case user.RoleAdmin:
			return nil
		}
	case user.RoleMentor:
		switch rcpt.Role {
		case user.RoleStudent:
			if rcpt.ID == "" {
				return ErrInvalidRecipient
			}
			return nil
		case user.RoleAdmin:
			return nil
		}
	case user.RoleAdmin:
		switch rcpt.Role {
		case user.RoleStudent, user.RoleMentor:
			if rcpt.ID == "" {
				return ErrInvalidRecipient
			}
			return nil
		}
	}
	return ErrInvalidRecipient
}
