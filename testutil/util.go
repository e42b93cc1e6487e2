// Package testutil holds helpers shared by the test suites.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/gurudigital/pelangi/core"
	"github.com/gurudigital/pelangi/core/school"
	"github.com/gurudigital/pelangi/core/user"
)

// Logger is a core.Logger that drops everything except Fatal, which fails the test.
type Logger struct {
	T *testing.T
}

var _ core.Logger = (*Logger)(nil)

func (l Logger) Debug(string, ...interface{}) {}
func (l Logger) Info(string, ...interface{})  {}
func (l Logger) Warn(string, ...interface{})  {}
func (l Logger) Error(string, ...interface{}) {}
func (l Logger) Fatal(msg string, args ...interface{}) {
	if l.T != nil {
		l.T.Fatal(append([]interface{}{msg}, args...)...)
	}
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
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
		Roles:     roles,
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

func CreateClass(t *testing.T, repo school.Repository, name string) school.Class {
	t.Helper()

	class, err := repo.CreateClass(context.Background(), school.Class{
		Name:         name,
		AcademicYear: "2025/2026",
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateClass() failed: %v", err)
	}
	return class
}

// CreateStudent creates a student in class (when classID is not empty). An empty fullName gets a fake name and email.
func CreateStudent(t *testing.T, repo school.Repository, fullName, classID string) school.Student {
	t.Helper()

	now := time.Now().UTC()
	std := school.Student{FullName: fullName, CreatedAt: now, UpdatedAt: now}
	if fullName == "" {
		std.FullName = gofakeit.Name()
		email := gofakeit.Email()
		std.Email = &email
	}
	if classID != "" {
		std.ClassID = &classID
	}
	std, err := repo.CreateStudent(context.Background(), std)
	if err != nil {
		t.Fatalf("CreateStudent() failed: %v", err)
	}
	return std
}
