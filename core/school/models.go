package school

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/gurudigital/pelangi/core"
)

type Class struct {
	ID           string    `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	AcademicYear string    `json:"academic_year" db:"academic_year"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

type Student struct {
	ID        string    `json:"id" db:"id"`
	UserID    *string   `json:"user_id" db:"user_id"`
	FullName  string    `json:"full_name" db:"full_name"`
	Email     *string   `json:"email" db:"email"`
	ClassID   *string   `json:"class_id" db:"class_id"`
	ClassName *string   `json:"class_name" db:"class_name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// NewClass contains information needed to create a new Class.
type NewClass struct {
	Name         string `json:"name" validate:"required,notblank,max=100"`
	AcademicYear string `json:"academic_year" validate:"max=20"`
}

func (nc *NewClass) Validate(validate *validator.Validate) error {
	nc.Name = core.CleanString(nc.Name)
	nc.AcademicYear = core.CleanString(nc.AcademicYear)
	return validate.Struct(nc)
}

// NewStudent contains information needed to create a new Student.
type NewStudent struct {
	FullName string `json:"full_name" validate:"required,notblank,max=255"`
	Email    string `json:"email" validate:"omitempty,email"`
	ClassID  string `json:"class_id" validate:"omitempty,uuid"`
	UserID   string `json:"user_id" validate:"omitempty,uuid"`
}

func (ns *NewStudent) Validate(validate *validator.Validate) error {
	ns.FullName = core.CleanString(ns.FullName)
	ns.Email = core.CleanString(ns.Email, true /* lower */)
	ns.ClassID = core.CleanString(ns.ClassID)
	ns.UserID = core.CleanString(ns.UserID)
	return validate.Struct(ns)
}

type StudentFilter struct {
	ClassID string `query:"class_id"`
	Search  string `query:"search"`
}

func (sf *StudentFilter) Clean() {
	sf.ClassID = core.CleanString(sf.ClassID)
	sf.Search = core.CleanString(sf.Search)
}
