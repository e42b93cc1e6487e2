package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gurudigital/pelangi/core/school"
)

type schoolRepository struct {
	db *DB
}

var _ school.Repository = (*schoolRepository)(nil) // interface compliance check

func NewSchoolRepository(db *DB) school.Repository {
	return &schoolRepository{db: db}
}

func (repo *schoolRepository) CreateClass(_ context.Context, class school.Class) (school.Class, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, c := range repo.db.classes {
		if strings.EqualFold(c.Name, class.Name) {
			return school.Class{}, school.ErrClassExists
		}
	}
	class.ID = uuid.New().String()
	repo.db.classes[class.ID] = &class
	return class, nil
}

func (repo *schoolRepository) QueryClasses(_ context.Context) ([]school.Class, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	classes := make([]school.Class, 0, len(repo.db.classes))
	for _, c := range repo.db.classes {
		classes = append(classes, *c)
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i].Name < classes[j].Name })
	return classes, nil
}

func (repo *schoolRepository) GetClass(_ context.Context, id string) (school.Class, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if c, ok := repo.db.classes[id]; ok {
		return *c, nil
	}
	return school.Class{}, school.ErrClassNotFound
}

func (repo *schoolRepository) CreateStudent(_ context.Context, std school.Student) (school.Student, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	std.ID = uuid.New().String()
	repo.db.students[std.ID] = &std
	return std, nil
}

// student returns a copy of a student with its class name filled. The caller holds the lock.
func (repo *schoolRepository) student(std *school.Student) school.Student {
	s := *std
	if s.ClassID != nil {
		if c, ok := repo.db.classes[*s.ClassID]; ok {
			name := c.Name
			s.ClassName = &name
		}
	}
	return s
}

func (repo *schoolRepository) QueryStudents(_ context.Context, filter school.StudentFilter) ([]school.Student, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	search := strings.ToLower(filter.Search)
	students := make([]school.Student, 0, len(repo.db.students))
	for _, std := range repo.db.students {
		if filter.ClassID != "" && (std.ClassID == nil || *std.ClassID != filter.ClassID) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(std.FullName), search) {
			continue
		}
		students = append(students, repo.student(std))
	}
	sort.Slice(students, func(i, j int) bool {
		if students[i].FullName != students[j].FullName {
			return students[i].FullName < students[j].FullName
		}
		return students[i].ID < students[j].ID
	})
	return students, nil
}

func (repo *schoolRepository) GetStudent(_ context.Context, id string) (school.Student, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if std, ok := repo.db.students[id]; ok {
		return repo.student(std), nil
	}
	return school.Student{}, school.ErrStudentNotFound
}

func (repo *schoolRepository) GetStudentByUser(_ context.Context, userID string) (school.Student, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, std := range repo.db.students {
		if std.UserID != nil && *std.UserID == userID {
			return repo.student(std), nil
		}
	}
	return school.Student{}, school.ErrStudentNotFound
}

func (repo *schoolRepository) LinkUser(_ context.Context, studentID, userID string) (school.Student, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	std, ok := repo.db.students[studentID]
	if !ok {
		return school.Student{}, school.ErrStudentNotFound
	}
	if std.UserID != nil {
		return school.Student{}, school.ErrStudentLinked
	}
	std.UserID = &userID
	std.UpdatedAt = time.Now().UTC()
	return repo.student(std), nil
}
