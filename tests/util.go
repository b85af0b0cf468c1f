package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/trezcool/ujumbe/core/user"
)

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	role user.Role,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Role:      role,
		IsActive:  &isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateMentorship(t *testing.T, repo user.Repository, studentID, mentorID string) user.Mentorship {
	t.Helper()

	ctx := context.Background()
	if err := repo.DeactivateMentorships(ctx, studentID); err != nil {
		t.Fatalf("CreateMentorship() failed: %v", err)
	}
	mnt, err := repo.CreateMentorship(ctx, user.Mentorship{
		StudentID: studentID,
		MentorID:  mentorID,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateMentorship() failed: %v", err)
	}
	return mnt
}
