package main

import (
	"context"

	"github.com/trezcool/ujumbe/core/user"
)

// assignMentor makes mentor the student's single active mentor.
func (cli *commandLine) assignMentor(studentID, mentorID string) error {
	_, err := cli.usrSvc.AssignMentor(context.Background(), user.AssignMentor{
		StudentID: studentID,
		MentorID:  mentorID,
	})
	return err
}
