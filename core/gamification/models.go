package gamification

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/gurudigital/pelangi/core"
)

// XP sources
const (
	SourceManual     = "manual"
	SourceGrade      = "grade"
	SourceAttendance = "attendance"
	SourceAssignment = "assignment"
	SourceBadge      = "badge"
)

var Sources = []string{SourceManual, SourceGrade, SourceAttendance, SourceAssignment, SourceBadge}

// StudentXp is the gamification state of a student. Level and LevelName are derived from TotalXp.
type StudentXp struct {
	StudentID        string     `json:"student_id" db:"student_id"`
	TotalXp          int        `json:"total_xp" db:"total_xp"`
	Level            int        `json:"level" db:"level"`
	LevelName        string     `json:"level_name" db:"level_name"`
	AttendanceStreak int        `json:"attendance_streak" db:"attendance_streak"`
	AssignmentStreak int        `json:"assignment_streak" db:"assignment_streak"`
	LastAttendance   *time.Time `json:"last_attendance" db:"last_attendance"`
	LastAssignment   *time.Time `json:"last_assignment" db:"last_assignment"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
}

// XpEvent records a single XP grant (or penalty).
type XpEvent struct {
	ID        string    `json:"id" db:"id"`
	StudentID string    `json:"student_id" db:"student_id"`
	Amount    int       `json:"amount" db:"amount"`
	Reason    string    `json:"reason" db:"reason"`
	Source    string    `json:"source" db:"source"`
	AwardedBy *string   `json:"awarded_by" db:"awarded_by"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Badge struct {
	ID          string    `json:"id" db:"id"`
	Code        string    `json:"code" db:"code"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	XpReward    int       `json:"xp_reward" db:"xp_reward"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

type StudentBadge struct {
	Badge
	AwardedBy *string   `json:"awarded_by" db:"awarded_by"`
	AwardedAt time.Time `json:"awarded_at" db:"awarded_at"`
}

// Award is a request to change a student's XP.
type Award struct {
	StudentID string `json:"-"`
	Amount    int    `json:"amount" validate:"required,min=-10000,max=10000"` // `required` rejects 0
	Reason    string `json:"reason" validate:"max=255"`
	Source    string `json:"source" validate:"omitempty,xpsource"`
	AwardedBy string `json:"-"`
}

func (a *Award) Validate(validate *validator.Validate) error {
	a.Reason = core.CleanString(a.Reason)
	a.Source = core.CleanString(a.Source, true /* lower */)
	if a.Source == "" {
		a.Source = SourceManual
	}
	return validate.Struct(a)
}

// Event returns a new XpEvent recording the award at `at`.
func (a Award) Event(at time.Time) XpEvent {
	evt := XpEvent{
		ID:        uuid.New().String(),
		StudentID: a.StudentID,
		Amount:    a.Amount,
		Reason:    a.Reason,
		Source:    a.Source,
		CreatedAt: at,
	}
	if a.AwardedBy != "" {
		awardedBy := a.AwardedBy
		evt.AwardedBy = &awardedBy
	}
	return evt
}

// AwardResult is the outcome of an XP award.
type AwardResult struct {
	StudentXp     StudentXp `json:"student_xp"`
	Event         XpEvent   `json:"event"`
	PreviousLevel int       `json:"previous_level"`
	LeveledUp     bool      `json:"leveled_up"`
}

// LevelUp is published whenever an award raises a student's level.
type LevelUp struct {
	StudentID     string `json:"student_id"`
	FullName      string `json:"full_name"`
	Email         string `json:"email,omitempty"`
	PreviousLevel int    `json:"previous_level"`
	Level         int    `json:"level"`
	LevelName     string `json:"level_name"`
	TotalXp       int    `json:"total_xp"`
}

type AttendanceRecord struct {
	StudentID string           `json:"-"`
	Status    AttendanceStatus `json:"status" validate:"required,attendance_status"`
	At        time.Time        `json:"at"`
	AwardedBy string           `json:"-"`
}

func (r *AttendanceRecord) Validate(validate *validator.Validate) error {
	r.Status = AttendanceStatus(core.CleanString(string(r.Status), true /* lower */))
	if r.At.IsZero() {
		r.At = NowFunc()
	}
	return validate.Struct(r)
}

type SubmissionRecord struct {
	StudentID  string    `json:"-"`
	Assignment string    `json:"assignment" validate:"max=255"`
	OnTime     *bool     `json:"on_time" validate:"required"`
	At         time.Time `json:"at"`
	AwardedBy  string    `json:"-"`
}

func (r *SubmissionRecord) Validate(validate *validator.Validate) error {
	r.Assignment = core.CleanString(r.Assignment)
	if r.At.IsZero() {
		r.At = NowFunc()
	}
	return validate.Struct(r)
}

// StreakResult is the outcome of an attendance or submission record.
type StreakResult struct {
	StudentXp StudentXp    `json:"student_xp"`
	Award     *AwardResult `json:"award,omitempty"`
}

type NewBadge struct {
	Code        string `json:"code" validate:"required,max=50,alphanum_"`
	Name        string `json:"name" validate:"required,notblank,max=100"`
	Description string `json:"description"`
	XpReward    int    `json:"xp_reward" validate:"min=0,max=10000"`
}

func (nb *NewBadge) Validate(validate *validator.Validate) error {
	nb.Code = core.CleanString(nb.Code, true /* lower */)
	nb.Name = core.CleanString(nb.Name)
	nb.Description = core.CleanString(nb.Description)
	return validate.Struct(nb)
}

type BadgeAward struct {
	StudentID string `json:"-"`
	Badge     string `json:"badge" validate:"required"` // ID or code
	AwardedBy string `json:"-"`
}

func (ba *BadgeAward) Validate(validate *validator.Validate) error {
	ba.Badge = core.CleanString(ba.Badge)
	return validate.Struct(ba)
}

type LeaderboardFilter struct {
	ClassID string `query:"class_id"`
	Limit   int    `query:"limit"`
}

// Profile is the gamification dashboard of a student.
type Profile struct {
	StudentXp
	FullName   string         `json:"full_name"`
	ClassID    string         `json:"class_id,omitempty"`
	ClassName  string         `json:"class_name,omitempty"`
	Progress   Progress       `json:"progress"`
	Badges     []StudentBadge `json:"badges"`
	BadgeCount int            `json:"badge_count"`
	GlobalRank *int           `json:"global_rank"`
	ClassRank  *int           `json:"class_rank"`
}
