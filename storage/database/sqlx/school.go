package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/gurudigital/pelangi/core/school"
)

const studentSelect = `
	SELECT s.id, s.user_id, s.full_name, s.email, s.class_id, c.name AS class_name, s.created_at, s.updated_at
	FROM student s
	LEFT JOIN class c ON c.id = s.class_id`

type schoolRepository struct {
	db *sqlx.DB
}

var _ school.Repository = (*schoolRepository)(nil) // interface compliance check

func NewSchoolRepository(db *sqlx.DB) *schoolRepository {
	return &schoolRepository{db: db}
}

func (repo schoolRepository) CreateClass(ctx context.Context, class school.Class) (school.Class, error) {
	var exists bool
	err := repo.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM class WHERE LOWER(name) = LOWER($1))`, class.Name)
	if err != nil {
		return school.Class{}, errors.Wrap(err, "checking class name")
	}
	if exists {
		return school.Class{}, school.ErrClassExists
	}

	class.ID = uuid.New().String()
	_, err = repo.db.NamedExecContext(ctx, `
		INSERT INTO class (id, name, academic_year, created_at)
		VALUES (:id, :name, :academic_year, :created_at)`, class)
	if err != nil {
		if pqCode(err) == uniqueViolation {
			return school.Class{}, school.ErrClassExists
		}
		return school.Class{}, errors.Wrap(err, "inserting class")
	}
	return class, nil
}

func (repo schoolRepository) QueryClasses(ctx context.Context) ([]school.Class, error) {
	classes := make([]school.Class, 0)
	err := repo.db.SelectContext(ctx, &classes, `SELECT id, name, academic_year, created_at FROM class ORDER BY name`)
	if err != nil {
		return nil, errors.Wrap(err, "querying classes")
	}
	return classes, nil
}

func (repo schoolRepository) GetClass(ctx context.Context, id string) (school.Class, error) {
	if !validUUID(id) {
		return school.Class{}, school.ErrClassNotFound
	}
	var class school.Class
	err := repo.db.GetContext(ctx, &class, `SELECT id, name, academic_year, created_at FROM class WHERE id = $1`, id)
	if err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return school.Class{}, school.ErrClassNotFound
		}
		return school.Class{}, errors.Wrap(err, "finding class")
	}
	return class, nil
}

func (repo schoolRepository) CreateStudent(ctx context.Context, std school.Student) (school.Student, error) {
	std.ID = uuid.New().String()
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO student (id, user_id, full_name, email, class_id, created_at, updated_at)
		VALUES (:id, :user_id, :full_name, :email, :class_id, :created_at, :updated_at)`, std)
	if err != nil {
		if pqCode(err) == foreignKeyViolation {
			return school.Student{}, school.ErrClassNotFound
		}
		return school.Student{}, errors.Wrap(err, "inserting student")
	}
	return std, nil
}

func (repo schoolRepository) QueryStudents(ctx context.Context, filter school.StudentFilter) ([]school.Student, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.ClassID != "" {
		if !validUUID(filter.ClassID) {
			return []school.Student{}, nil
		}
		args = append(args, filter.ClassID)
		where = append(where, "s.class_id = ?")
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		where = append(where, "s.full_name ILIKE ?")
	}

	q := studentSelect
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY s.full_name, s.id"

	students := make([]school.Student, 0)
	if err := repo.db.SelectContext(ctx, &students, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	return students, nil
}

func (repo schoolRepository) GetStudent(ctx context.Context, id string) (school.Student, error) {
	if !validUUID(id) {
		return school.Student{}, school.ErrStudentNotFound
	}
	var std school.Student
	if err := repo.db.GetContext(ctx, &std, studentSelect+` WHERE s.id = $1`, id); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return school.Student{}, school.ErrStudentNotFound
		}
		return school.Student{}, errors.Wrap(err, "finding student")
	}
	return std, nil
}

func (repo schoolRepository) GetStudentByUser(ctx context.Context, userID string) (school.Student, error) {
	if !validUUID(userID) {
		return school.Student{}, school.ErrStudentNotFound
	}
	var std school.Student
	if err := repo.db.GetContext(ctx, &std, studentSelect+` WHERE s.user_id = $1`, userID); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return school.Student{}, school.ErrStudentNotFound
		}
		return school.Student{}, errors.Wrap(err, "finding student by user")
	}
	return std, nil
}

func (repo schoolRepository) LinkUser(ctx context.Context, studentID, userID string) (school.Student, error) {
	if !validUUID(studentID) {
		return school.Student{}, school.ErrStudentNotFound
	}
	res, err := repo.db.ExecContext(ctx,
		`UPDATE student SET user_id = $2, updated_at = $3 WHERE id = $1 AND user_id IS NULL`,
		studentID, userID, time.Now().UTC(),
	)
	if err != nil {
		if pqCode(err) == uniqueViolation {
			return school.Student{}, school.ErrStudentLinked
		}
		return school.Student{}, errors.Wrap(err, "linking user")
	}
	if n, err := res.RowsAffected(); err != nil {
		return school.Student{}, errors.Wrap(err, "linking user")
	} else if n == 0 {
		if _, err := repo.GetStudent(ctx, studentID); err != nil {
			return school.Student{}, err
		}
		return school.Student{}, school.ErrStudentLinked
	}
	return repo.GetStudent(ctx, studentID)
}
