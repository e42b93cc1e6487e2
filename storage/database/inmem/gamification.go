package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gurudigital/pelangi/core/gamification"
	"github.com/gurudigital/pelangi/core/school"
)

type gamificationRepository struct {
	db *DB
}

var _ gamification.Repository = (*gamificationRepository)(nil) // interface compliance check

func NewGamificationRepository(db *DB) gamification.Repository {
	return &gamificationRepository{db: db}
}

// row returns the XP row of a student, created at the first level when missing. The caller holds the write lock.
func (repo *gamificationRepository) row(studentID string, resolve gamification.ResolveFunc) (*gamification.StudentXp, error) {
	if _, ok := repo.db.students[studentID]; !ok {
		return nil, school.ErrStudentNotFound
	}
	sxp, ok := repo.db.studentXp[studentID]
	if !ok {
		first := resolve(0)
		sxp = &gamification.StudentXp{
			StudentID: studentID,
			Level:     first.Level,
			LevelName: first.Name,
			UpdatedAt: time.Now().UTC(),
		}
		repo.db.studentXp[studentID] = sxp
	}
	return sxp, nil
}

// apply lets fn change a copy of the student's row and stores it together with the award fn returns
// (nothing granted when its amount is 0). The caller holds the write lock.
func (repo *gamificationRepository) apply(
	studentID string,
	resolve gamification.ResolveFunc,
	fn func(*gamification.StudentXp) gamification.Award,
) (chg gamification.XpChange, err error) {
	sxp, err := repo.row(studentID, resolve)
	if err != nil {
		return chg, err
	}
	chg.Before, chg.After = *sxp, *sxp
	award := fn(&chg.After)

	now := time.Now().UTC()
	if award.Amount != 0 {
		chg.After.TotalXp = max(0, chg.After.TotalXp+award.Amount)
		event := award.Event(now)
		chg.Event = &event
		repo.db.xpEvents = append(repo.db.xpEvents, event)
	}
	lvl := resolve(chg.After.TotalXp)
	chg.After.Level, chg.After.LevelName = lvl.Level, lvl.Name
	chg.After.UpdatedAt = now
	*sxp = chg.After
	return chg, nil
}

func (repo *gamificationRepository) IncrementXp(
	_ context.Context,
	award gamification.Award,
	resolve gamification.ResolveFunc,
) (gamification.XpChange, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	return repo.apply(award.StudentID, resolve, func(*gamification.StudentXp) gamification.Award { return award })
}

func (repo *gamificationRepository) GetStudentXp(_ context.Context, studentID string) (gamification.StudentXp, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if sxp, ok := repo.db.studentXp[studentID]; ok {
		return *sxp, nil
	}
	return gamification.StudentXp{}, gamification.ErrNotFound
}

func (repo *gamificationRepository) QueryLeaderboard(_ context.Context, classID string) ([]gamification.LeaderboardEntry, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	entries := make([]gamification.LeaderboardEntry, 0, len(repo.db.studentXp))
	for id, sxp := range repo.db.studentXp {
		std, ok := repo.db.students[id]
		if !ok {
			continue
		}
		if classID != "" && (std.ClassID == nil || *std.ClassID != classID) {
			continue
		}
		entry := gamification.LeaderboardEntry{
			StudentID:  id,
			FullName:   std.FullName,
			TotalXp:    sxp.TotalXp,
			Level:      sxp.Level,
			LevelName:  sxp.LevelName,
			BadgeCount: len(repo.db.studentBadges[id]),
		}
		if std.ClassID != nil {
			entry.ClassID = *std.ClassID
			if c, ok := repo.db.classes[*std.ClassID]; ok {
				entry.ClassName = c.Name
			}
		}
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.TotalXp != b.TotalXp {
			return a.TotalXp > b.TotalXp
		}
		if a.FullName != b.FullName {
			return a.FullName < b.FullName
		}
		return a.StudentID < b.StudentID
	})
	return entries, nil
}

func (repo *gamificationRepository) QueryXpEvents(_ context.Context, studentID string, limit int) ([]gamification.XpEvent, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	events := make([]gamification.XpEvent, 0)
	// newest first
	for i := len(repo.db.xpEvents) - 1; i >= 0 && (limit <= 0 || len(events) < limit); i-- {
		if evt := repo.db.xpEvents[i]; evt.StudentID == studentID {
			events = append(events, evt)
		}
	}
	return events, nil
}

func (repo *gamificationRepository) UpdateStreak(
	_ context.Context,
	studentID string,
	resolve gamification.ResolveFunc,
	fn func(*gamification.StudentXp) gamification.Award,
) (gamification.XpChange, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	return repo.apply(studentID, resolve, fn)
}

func (repo *gamificationRepository) ResetStaleAttendanceStreaks(_ context.Context, before time.Time) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	var cnt int
	for _, sxp := range repo.db.studentXp {
		if sxp.AttendanceStreak > 0 && (sxp.LastAttendance == nil || sxp.LastAttendance.Before(before)) {
			sxp.AttendanceStreak = 0
			sxp.UpdatedAt = time.Now().UTC()
			cnt++
		}
	}
	return cnt, nil
}

func (repo *gamificationRepository) RefreshLevels(_ context.Context, resolve gamification.ResolveFunc) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	var cnt int
	for _, sxp := range repo.db.studentXp {
		lvl := resolve(sxp.TotalXp)
		if sxp.Level != lvl.Level || sxp.LevelName != lvl.Name {
			sxp.Level, sxp.LevelName = lvl.Level, lvl.Name
			sxp.UpdatedAt = time.Now().UTC()
			cnt++
		}
	}
	return cnt, nil
}

func (repo *gamificationRepository) CreateBadge(_ context.Context, badge gamification.Badge) (gamification.Badge, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, b := range repo.db.badges {
		if b.Code == badge.Code {
			return gamification.Badge{}, gamification.ErrBadgeExists
		}
	}
	badge.ID = uuid.New().String()
	repo.db.badges[badge.ID] = &badge
	return badge, nil
}

func (repo *gamificationRepository) QueryBadges(_ context.Context) ([]gamification.Badge, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	badges := make([]gamification.Badge, 0, len(repo.db.badges))
	for _, b := range repo.db.badges {
		badges = append(badges, *b)
	}
	sort.Slice(badges, func(i, j int) bool { return badges[i].Code < badges[j].Code })
	return badges, nil
}

func (repo *gamificationRepository) GetBadge(_ context.Context, idOrCode string) (gamification.Badge, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if b, ok := repo.db.badges[idOrCode]; ok {
		return *b, nil
	}
	code := strings.ToLower(idOrCode)
	for _, b := range repo.db.badges {
		if b.Code == code {
			return *b, nil
		}
	}
	return gamification.Badge{}, gamification.ErrBadgeNotFound
}

func (repo *gamificationRepository) AwardBadge(
	_ context.Context,
	badgeID string,
	award gamification.Award,
	resolve gamification.ResolveFunc,
) (gamification.StudentBadge, gamification.XpChange, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	studentID := award.StudentID
	if _, ok := repo.db.students[studentID]; !ok {
		return gamification.StudentBadge{}, gamification.XpChange{}, school.ErrStudentNotFound
	}
	badge, ok := repo.db.badges[badgeID]
	if !ok {
		return gamification.StudentBadge{}, gamification.XpChange{}, gamification.ErrBadgeNotFound
	}
	for _, sb := range repo.db.studentBadges[studentID] {
		if sb.ID == badgeID {
			return gamification.StudentBadge{}, gamification.XpChange{}, gamification.ErrBadgeAlreadyAwarded
		}
	}

	chg, err := repo.apply(studentID, resolve, func(*gamification.StudentXp) gamification.Award { return award })
	if err != nil {
		return gamification.StudentBadge{}, gamification.XpChange{}, err
	}
	sb := gamification.StudentBadge{Badge: *badge, AwardedAt: chg.After.UpdatedAt}
	if award.AwardedBy != "" {
		awardedBy := award.AwardedBy
		sb.AwardedBy = &awardedBy
	}
	repo.db.studentBadges[studentID] = append(repo.db.studentBadges[studentID], sb)
	return sb, chg, nil
}

func (repo *gamificationRepository) QueryStudentBadges(_ context.Context, studentID string) ([]gamification.StudentBadge, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	badges := make([]gamification.StudentBadge, len(repo.db.studentBadges[studentID]))
	copy(badges, repo.db.studentBadges[studentID])
	return badges, nil
}
