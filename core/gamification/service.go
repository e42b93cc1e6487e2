package gamification

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/gurudigital/pelangi/core"
	"github.com/gurudigital/pelangi/core/school"
)

// NowFunc is the clock used for attendance and submission records.
var NowFunc = time.Now

const (
	DefaultLeaderboardLimit = 50
	MaxLeaderboardLimit     = 500

	defaultRetryAfter = 2 * time.Second
)

var (
	// errors
	ErrNotFound            = errors.New("student has no XP record")
	ErrStudentNotFound     = school.ErrStudentNotFound
	ErrBadgeNotFound       = errors.New("badge not found")
	ErrBadgeExists         = errors.New("a badge with this code already exists")
	ErrBadgeAlreadyAwarded = errors.New("badge already awarded to this student")
	ErrZeroAmount          = errors.New("amount must not be zero")
)

type (
	// ResolveFunc maps a total XP to its level threshold.
	ResolveFunc func(totalXp int) LevelThreshold

	// XpChange is the outcome of an atomic write to a student's XP row. Event is nil when no XP was granted.
	XpChange struct {
		Before StudentXp
		After  StudentXp
		Event  *XpEvent
	}

	// Repository writes create the StudentXp row when missing and return ErrStudentNotFound for unknown
	// students. A granted award adds its amount to the total (never below 0), stores the level returned
	// by resolve and records an XpEvent. Each write is a single transaction: nothing is stored on error.
	Repository interface {
		IncrementXp(ctx context.Context, award Award, resolve ResolveFunc) (XpChange, error)
		// GetStudentXp returns ErrNotFound when the student has no XP record.
		GetStudentXp(ctx context.Context, studentID string) (StudentXp, error)
		// QueryLeaderboard returns the unranked entries of a scope (all students with an XP record when
		// classID is empty), ordered by total_xp DESC, full_name ASC, student_id ASC.
		QueryLeaderboard(ctx context.Context, classID string) ([]LeaderboardEntry, error)
		QueryXpEvents(ctx context.Context, studentID string, limit int) ([]XpEvent, error)
		// UpdateStreak locks the student's row, stores fn's changes and grants the award fn returns
		// (nothing when its amount is 0).
		UpdateStreak(ctx context.Context, studentID string, resolve ResolveFunc, fn func(*StudentXp) Award) (XpChange, error)
		// ResetStaleAttendanceStreaks zeroes attendance streaks whose last attendance is before `before`.
		ResetStaleAttendanceStreaks(ctx context.Context, before time.Time) (int, error)
		// RefreshLevels recomputes the stored level of every row and returns the number of rows changed.
		RefreshLevels(ctx context.Context, resolve ResolveFunc) (int, error)

		CreateBadge(ctx context.Context, badge Badge) (Badge, error)
		QueryBadges(ctx context.Context) ([]Badge, error)
		GetBadge(ctx context.Context, idOrCode string) (Badge, error)
		// AwardBadge gives badgeID to award.StudentID and grants award (nothing when its amount is 0).
		AwardBadge(ctx context.Context, badgeID string, award Award, resolve ResolveFunc) (StudentBadge, XpChange, error)
		QueryStudentBadges(ctx context.Context, studentID string) ([]StudentBadge, error)
	}

	StudentGetter interface {
		GetStudent(ctx context.Context, id string) (school.Student, error)
	}

	// Notifier publishes level-up events.
	Notifier interface {
		NotifyLevelUp(ctx context.Context, evt LevelUp) error
	}

	// Recorder collects gamification metrics.
	Recorder interface {
		XpAwarded(source string, amount int)
		LevelUp(level int)
		ObserveLeaderboard(scope string, d time.Duration)
	}

	ServiceInterface interface {
		Levels() []LevelThreshold
		AwardXp(ctx context.Context, award Award) (AwardResult, error)
		Progress(ctx context.Context, studentID string) (Progress, error)
		Profile(ctx context.Context, studentID string) (Profile, error)
		Leaderboard(ctx context.Context, filter LeaderboardFilter) ([]LeaderboardEntry, error)
		StudentRank(ctx context.Context, studentID, classID string) (int, bool, error)
		XpEvents(ctx context.Context, studentID string, limit int) ([]XpEvent, error)
		RecordAttendance(ctx context.Context, rec AttendanceRecord) (StreakResult, error)
		RecordSubmission(ctx context.Context, rec SubmissionRecord) (StreakResult, error)
		ResetStaleStreaks(ctx context.Context, now time.Time) (int, error)
		RecalculateLevels(ctx context.Context) (int, error)
		CreateBadge(ctx context.Context, nb NewBadge) (Badge, error)
		Badges(ctx context.Context) ([]Badge, error)
		AwardBadge(ctx context.Context, ba BadgeAward) (StudentBadge, *AwardResult, error)
	}

	Service struct {
		repo     Repository
		students StudentGetter
		table    *LevelTable
		mode     RankingMode
		conf     core.GamificationConfig
		notifier Notifier
		recorder Recorder
		logger   core.Logger
	}
)

var _ ServiceInterface = (*Service)(nil)

// NewService returns the gamification service. notifier and recorder may be nil.
func NewService(
	repo Repository,
	students StudentGetter,
	table *LevelTable,
	conf *core.Config,
	notifier Notifier,
	recorder Recorder,
	logger core.Logger,
) (*Service, error) {
	if table == nil {
		return nil, errors.Wrap(ErrInvalidLevelTable, "no level table")
	}
	mode, err := ParseRankingMode(conf.Gamification.RankingMode)
	if err != nil {
		return nil, errors.Wrap(err, "parsing ranking mode")
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Service{
		repo:     repo,
		students: students,
		table:    table,
		mode:     mode,
		conf:     conf.Gamification,
		notifier: notifier,
		recorder: recorder,
		logger:   logger,
	}, nil
}

func (svc *Service) Levels() []LevelThreshold {
	return svc.table.Thresholds()
}

// AwardXp grants (or, with a negative amount, removes) XP and refreshes the student's level.
func (svc *Service) AwardXp(ctx context.Context, award Award) (AwardResult, error) {
	if award.Amount == 0 {
		return AwardResult{}, core.NewValidationError(ErrZeroAmount, core.FieldError{Field: "amount", Error: ErrZeroAmount.Error()})
	}
	chg, err := svc.repo.IncrementXp(ctx, award, svc.table.Resolve)
	if err != nil {
		return AwardResult{}, persistenceError(err, "awarding xp")
	}
	return svc.awarded(ctx, chg), nil
}

// awarded reports a committed XP grant to the recorder and the notifier.
func (svc *Service) awarded(ctx context.Context, chg XpChange) AwardResult {
	res := AwardResult{
		StudentXp:     chg.After,
		Event:         *chg.Event,
		PreviousLevel: chg.Before.Level,
		LeveledUp:     chg.After.Level > chg.Before.Level,
	}
	svc.recorder.XpAwarded(res.Event.Source, res.Event.Amount)
	if res.LeveledUp {
		svc.recorder.LevelUp(chg.After.Level)
		svc.notifyLevelUp(ctx, chg.Before.Level, chg.After)
	}
	return res
}

func (svc *Service) notifyLevelUp(ctx context.Context, previousLevel int, sxp StudentXp) {
	evt := LevelUp{
		StudentID:     sxp.StudentID,
		PreviousLevel: previousLevel,
		Level:         sxp.Level,
		LevelName:     sxp.LevelName,
		TotalXp:       sxp.TotalXp,
	}
	if std, err := svc.students.GetStudent(ctx, sxp.StudentID); err == nil {
		evt.FullName = std.FullName
		if std.Email != nil {
			evt.Email = *std.Email
		}
	}
	if err := svc.notifier.NotifyLevelUp(ctx, evt); err != nil {
		svc.logger.Error(fmt.Sprintf("publishing level up: %v", err), err, map[string]interface{}{"student_id": sxp.StudentID})
	}
}

// studentXp returns the stored XP of an existing student, or a level-1 record when none exists yet.
func (svc *Service) studentXp(ctx context.Context, studentID string) (StudentXp, school.Student, error) {
	std, err := svc.students.GetStudent(ctx, studentID)
	if err != nil {
		return StudentXp{}, std, errors.Wrap(err, "finding student")
	}
	sxp, err := svc.repo.GetStudentXp(ctx, studentID)
	if errors.Cause(err) == ErrNotFound {
		first := svc.table.Resolve(0)
		return StudentXp{StudentID: studentID, Level: first.Level, LevelName: first.Name}, std, nil
	}
	if err != nil {
		return StudentXp{}, std, persistenceError(err, "getting student xp")
	}
	return sxp, std, nil
}

func (svc *Service) Progress(ctx context.Context, studentID string) (Progress, error) {
	sxp, _, err := svc.studentXp(ctx, studentID)
	if err != nil {
		return Progress{}, err
	}
	return svc.table.Progress(sxp.TotalXp), nil
}

func (svc *Service) Profile(ctx context.Context, studentID string) (Profile, error) {
	sxp, std, err := svc.studentXp(ctx, studentID)
	if err != nil {
		return Profile{}, err
	}

	badges, err := svc.repo.QueryStudentBadges(ctx, studentID)
	if err != nil {
		return Profile{}, persistenceError(err, "querying student badges")
	}
	p := Profile{
		StudentXp:  sxp,
		FullName:   std.FullName,
		Progress:   svc.table.Progress(sxp.TotalXp),
		Badges:     badges,
		BadgeCount: len(badges),
	}

	global, err := svc.ranked(ctx, "")
	if err != nil {
		return Profile{}, err
	}
	if rank, ok := FindRank(global, studentID); ok {
		p.GlobalRank = &rank
	}
	if std.ClassID != nil {
		p.ClassID = *std.ClassID
		if std.ClassName != nil {
			p.ClassName = *std.ClassName
		}
		class, err := svc.ranked(ctx, *std.ClassID)
		if err != nil {
			return Profile{}, err
		}
		if rank, ok := FindRank(class, studentID); ok {
			p.ClassRank = &rank
		}
	}
	return p, nil
}

// ranked loads and ranks a whole scope.
func (svc *Service) ranked(ctx context.Context, classID string) ([]LeaderboardEntry, error) {
	scope := "global"
	if classID != "" {
		scope = "class"
	}
	defer func(start time.Time) {
		svc.recorder.ObserveLeaderboard(scope, time.Since(start))
	}(time.Now())

	entries, err := svc.repo.QueryLeaderboard(ctx, classID)
	if err != nil {
		return nil, persistenceError(err, "querying leaderboard")
	}
	return Rank(entries, svc.mode), nil
}

// Leaderboard ranks the whole scope, then truncates it to the filter's limit.
func (svc *Service) Leaderboard(ctx context.Context, filter LeaderboardFilter) ([]LeaderboardEntry, error) {
	ranked, err := svc.ranked(ctx, filter.ClassID)
	if err != nil {
		return nil, err
	}
	if limit := svc.limit(filter.Limit); len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

func (svc *Service) limit(limit int) int {
	if limit <= 0 {
		limit = svc.conf.LeaderboardLimit
	}
	if limit <= 0 {
		limit = DefaultLeaderboardLimit
	}
	if limit > MaxLeaderboardLimit {
		limit = MaxLeaderboardLimit
	}
	return limit
}

// StudentRank returns the rank of a student globally, or within classID. ok is false when unranked.
func (svc *Service) StudentRank(ctx context.Context, studentID, classID string) (int, bool, error) {
	if _, err := svc.students.GetStudent(ctx, studentID); err != nil {
		return 0, false, errors.Wrap(err, "finding student")
	}
	ranked, err := svc.ranked(ctx, classID)
	if err != nil {
		return 0, false, err
	}
	rank, ok := FindRank(ranked, studentID)
	return rank, ok, nil
}

func (svc *Service) XpEvents(ctx context.Context, studentID string, limit int) ([]XpEvent, error) {
	if _, err := svc.students.GetStudent(ctx, studentID); err != nil {
		return nil, errors.Wrap(err, "finding student")
	}
	events, err := svc.repo.QueryXpEvents(ctx, studentID, svc.limit(limit))
	if err != nil {
		return nil, persistenceError(err, "querying xp events")
	}
	return events, nil
}

// RecordAttendance updates the attendance streak and grants the configured attendance XP in one write.
func (svc *Service) RecordAttendance(ctx context.Context, rec AttendanceRecord) (StreakResult, error) {
	chg, err := svc.repo.UpdateStreak(ctx, rec.StudentID, svc.table.Resolve, func(sxp *StudentXp) Award {
		award := Award{
			StudentID: rec.StudentID,
			Reason:    "attendance: " + string(rec.Status),
			Source:    SourceAttendance,
			AwardedBy: rec.AwardedBy,
		}
		// attendance already recorded for that day
		recorded := sxp.LastAttendance != nil && daysBetween(*sxp.LastAttendance, rec.At) <= 0
		sxp.AttendanceStreak = NextAttendanceStreak(
			sxp.AttendanceStreak, sxp.LastAttendance, rec.Status, rec.At, svc.conf.StreakGraceDays,
		)
		if rec.Status == AttendanceAbsent || recorded {
			return award
		}
		at := rec.At
		sxp.LastAttendance = &at
		award.Amount = svc.conf.AttendanceXp
		if rec.Status == AttendanceLate {
			award.Amount = svc.conf.LateAttendanceXp
		}
		return award
	})
	if err != nil {
		return StreakResult{}, persistenceError(err, "recording attendance")
	}
	return svc.streakResult(ctx, chg), nil
}

// RecordSubmission updates the assignment streak and grants the configured assignment XP in one write.
func (svc *Service) RecordSubmission(ctx context.Context, rec SubmissionRecord) (StreakResult, error) {
	onTime := rec.OnTime != nil && *rec.OnTime
	amount, reason := svc.conf.AssignmentXp, "assignment on time"
	if !onTime {
		amount, reason = svc.conf.LateAssignmentXp, "late assignment"
	}
	if rec.Assignment != "" {
		reason += ": " + rec.Assignment
	}

	chg, err := svc.repo.UpdateStreak(ctx, rec.StudentID, svc.table.Resolve, func(sxp *StudentXp) Award {
		sxp.AssignmentStreak = NextAssignmentStreak(sxp.AssignmentStreak, onTime)
		at := rec.At
		sxp.LastAssignment = &at
		return Award{
			StudentID: rec.StudentID,
			Amount:    amount,
			Reason:    reason,
			Source:    SourceAssignment,
			AwardedBy: rec.AwardedBy,
		}
	})
	if err != nil {
		return StreakResult{}, persistenceError(err, "recording submission")
	}
	return svc.streakResult(ctx, chg), nil
}

func (svc *Service) streakResult(ctx context.Context, chg XpChange) StreakResult {
	if chg.Event == nil {
		return StreakResult{StudentXp: chg.After}
	}
	res := svc.awarded(ctx, chg)
	return StreakResult{StudentXp: res.StudentXp, Award: &res}
}

// ResetStaleStreaks zeroes attendance streaks that were not extended within the grace window.
func (svc *Service) ResetStaleStreaks(ctx context.Context, now time.Time) (int, error) {
	n, err := svc.repo.ResetStaleAttendanceStreaks(ctx, StaleAttendanceCutoff(now, svc.conf.StreakGraceDays))
	if err != nil {
		return 0, persistenceError(err, "resetting stale streaks")
	}
	return n, nil
}

// RecalculateLevels refreshes the stored level of every student against the current level table.
func (svc *Service) RecalculateLevels(ctx context.Context) (int, error) {
	n, err := svc.repo.RefreshLevels(ctx, svc.table.Resolve)
	if err != nil {
		return 0, persistenceError(err, "refreshing levels")
	}
	return n, nil
}

func (svc *Service) CreateBadge(ctx context.Context, nb NewBadge) (Badge, error) {
	badge, err := svc.repo.CreateBadge(ctx, Badge{
		Code:        nb.Code,
		Name:        nb.Name,
		Description: nb.Description,
		XpReward:    nb.XpReward,
		CreatedAt:   time.Now().UTC(),
	})
	if errors.Cause(err) == ErrBadgeExists {
		return Badge{}, core.NewValidationError(err, core.FieldError{Field: "code", Error: err.Error()})
	}
	if err != nil {
		return Badge{}, persistenceError(err, "creating badge")
	}
	return badge, nil
}

func (svc *Service) Badges(ctx context.Context) ([]Badge, error) {
	badges, err := svc.repo.QueryBadges(ctx)
	if err != nil {
		return nil, persistenceError(err, "querying badges")
	}
	return badges, nil
}

// AwardBadge gives a badge to a student and grants its XP reward in one write.
func (svc *Service) AwardBadge(ctx context.Context, ba BadgeAward) (StudentBadge, *AwardResult, error) {
	if _, err := svc.students.GetStudent(ctx, ba.StudentID); err != nil {
		return StudentBadge{}, nil, errors.Wrap(err, "finding student")
	}
	badge, err := svc.repo.GetBadge(ctx, ba.Badge)
	if err != nil {
		return StudentBadge{}, nil, persistenceError(err, "finding badge")
	}

	sb, chg, err := svc.repo.AwardBadge(ctx, badge.ID, Award{
		StudentID: ba.StudentID,
		Amount:    badge.XpReward,
		Reason:    "badge: " + badge.Name,
		Source:    SourceBadge,
		AwardedBy: ba.AwardedBy,
	}, svc.table.Resolve)
	if err != nil {
		return StudentBadge{}, nil, persistenceError(err, "awarding badge")
	}
	if chg.Event == nil {
		return sb, nil, nil
	}
	res := svc.awarded(ctx, chg)
	return sb, &res, nil
}

// persistenceError wraps err with msg. Errors that are not part of the domain are reported as retryable.
func persistenceError(err error, msg string) error {
	switch errors.Cause(err) {
	case ErrNotFound, ErrStudentNotFound, ErrBadgeNotFound, ErrBadgeExists, ErrBadgeAlreadyAwarded,
		context.Canceled, context.DeadlineExceeded:
		return errors.Wrap(err, msg)
	}
	if core.IsRetryable(err) {
		return err
	}
	return core.NewRetryableError(errors.Wrap(err, msg), defaultRetryAfter)
}

type nopNotifier struct{}

func (nopNotifier) NotifyLevelUp(context.Context, LevelUp) error { return nil }

type nopRecorder struct{}

func (nopRecorder) XpAwarded(string, int)                    {}
func (nopRecorder) LevelUp(int)                              {}
func (nopRecorder) ObserveLeaderboard(string, time.Duration) {}
