package gamification

import (
	"math"
	"time"
)

type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "present"
	AttendanceLate    AttendanceStatus = "late"
	AttendanceAbsent  AttendanceStatus = "absent"
)

func dayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// daysBetween counts calendar days from a to b, in b's location.
func daysBetween(a, b time.Time) int {
	return int(math.Round(dayOf(b).Sub(dayOf(a.In(b.Location()))).Hours() / 24))
}

// NextAttendanceStreak returns the attendance streak after recording status at `at`.
//   - absent resets the streak to 0
//   - a second record on the same day leaves the streak untouched
//   - present/late on the next day, or after at most graceDays skipped days, extends it
//   - anything else starts a new streak at 1
func NextAttendanceStreak(streak int, last *time.Time, status AttendanceStatus, at time.Time, graceDays int) int {
	if status == AttendanceAbsent {
		return 0
	}
	if last == nil || streak == 0 {
		return 1
	}
	switch gap := daysBetween(*last, at); {
	case gap <= 0:
		return streak
	case gap <= 1+graceDays:
		return streak + 1
	default:
		return 1
	}
}

// NextAssignmentStreak returns the assignment streak after a submission:
// on-time submissions extend it, late ones reset it.
func NextAssignmentStreak(streak int, onTime bool) int {
	if !onTime {
		return 0
	}
	return streak + 1
}

// StaleAttendanceCutoff returns the instant before which a last attendance breaks the streak.
func StaleAttendanceCutoff(now time.Time, graceDays int) time.Time {
	return dayOf(now).AddDate(0, 0, -(1 + graceDays))
}
