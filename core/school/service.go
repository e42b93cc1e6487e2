package school

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/gurudigital/pelangi/core"
)

var (
	// errors
	ErrClassNotFound   = errors.New("class not found")
	ErrClassExists     = errors.New("a class with this name already exists")
	ErrStudentNotFound = errors.New("student not found")
	ErrStudentLinked   = errors.New("student already has a user account")
)

type (
	Repository interface {
		CreateClass(ctx context.Context, class Class) (Class, error)
		QueryClasses(ctx context.Context) ([]Class, error)
		GetClass(ctx context.Context, id string) (Class, error)
		CreateStudent(ctx context.Context, student Student) (Student, error)
		QueryStudents(ctx context.Context, filter StudentFilter) ([]Student, error)
		GetStudent(ctx context.Context, id string) (Student, error)
		// GetStudentByUser returns ErrStudentNotFound when no student is linked to userID.
		GetStudentByUser(ctx context.Context, userID string) (Student, error)
		// LinkUser sets the user account of a student. ErrStudentLinked is returned when it already has one.
		LinkUser(ctx context.Context, studentID, userID string) (Student, error)
	}

	ServiceInterface interface {
		CreateClass(ctx context.Context, nc NewClass) (Class, error)
		Classes(ctx context.Context) ([]Class, error)
		GetClass(ctx context.Context, id string) (Class, error)
		CreateStudent(ctx context.Context, ns NewStudent) (Student, error)
		Students(ctx context.Context, filter StudentFilter) ([]Student, error)
		GetStudent(ctx context.Context, id string) (Student, error)
		StudentByUser(ctx context.Context, userID string) (Student, error)
		CheckLinkable(ctx context.Context, studentID string) error
		LinkUser(ctx context.Context, studentID, userID string) (Student, error)
	}

	Service struct {
		repo Repository
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) CreateClass(ctx context.Context, nc NewClass) (Class, error) {
	class, err := svc.repo.CreateClass(ctx, Class{
		Name:         nc.Name,
		AcademicYear: nc.AcademicYear,
		CreatedAt:    time.Now().UTC(),
	})
	if errors.Cause(err) == ErrClassExists {
		return Class{}, core.NewValidationError(err, core.FieldError{Field: "name", Error: err.Error()})
	}
	return class, err
}

func (svc *Service) Classes(ctx context.Context) ([]Class, error) {
	return svc.repo.QueryClasses(ctx)
}

func (svc *Service) GetClass(ctx context.Context, id string) (Class, error) {
	return svc.repo.GetClass(ctx, id)
}

func (svc *Service) CreateStudent(ctx context.Context, ns NewStudent) (Student, error) {
	now := time.Now().UTC()
	std := Student{
		FullName:  ns.FullName,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if ns.Email != "" {
		std.Email = &ns.Email
	}
	if ns.UserID != "" {
		std.UserID = &ns.UserID
	}
	if ns.ClassID != "" {
		class, err := svc.repo.GetClass(ctx, ns.ClassID)
		if err != nil {
			if errors.Cause(err) == ErrClassNotFound {
				return Student{}, core.NewValidationError(err, core.FieldError{Field: "class_id", Error: err.Error()})
			}
			return Student{}, errors.Wrap(err, "finding class")
		}
		std.ClassID = &class.ID
		std.ClassName = &class.Name
	}
	return svc.repo.CreateStudent(ctx, std)
}

func (svc *Service) Students(ctx context.Context, filter StudentFilter) ([]Student, error) {
	return svc.repo.QueryStudents(ctx, filter)
}

func (svc *Service) GetStudent(ctx context.Context, id string) (Student, error) {
	return svc.repo.GetStudent(ctx, id)
}

func (svc *Service) StudentByUser(ctx context.Context, userID string) (Student, error) {
	return svc.repo.GetStudentByUser(ctx, userID)
}

// CheckLinkable returns a validation error on "student_id" unless the student exists without a user account.
func (svc *Service) CheckLinkable(ctx context.Context, studentID string) error {
	std, err := svc.repo.GetStudent(ctx, studentID)
	switch {
	case errors.Cause(err) == ErrStudentNotFound:
		return core.NewValidationError(err, core.FieldError{Field: "student_id", Error: err.Error()})
	case err != nil:
		return errors.Wrap(err, "finding student")
	case std.UserID != nil:
		return core.NewValidationError(ErrStudentLinked, core.FieldError{Field: "student_id", Error: ErrStudentLinked.Error()})
	}
	return nil
}

func (svc *Service) LinkUser(ctx context.Context, studentID, userID string) (Student, error) {
	std, err := svc.repo.LinkUser(ctx, studentID, userID)
	switch errors.Cause(err) {
	case nil:
		return std, nil
	case ErrStudentNotFound, ErrStudentLinked:
		return Student{}, core.NewValidationError(err, core.FieldError{Field: "student_id", Error: errors.Cause(err).Error()})
	}
	return Student{}, errors.Wrap(err, "linking user")
}
