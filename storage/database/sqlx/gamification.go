package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/gurudigital/pelangi/core/gamification"
	"github.com/gurudigital/pelangi/core/school"
)

const (
	studentXpColumns = `student_id, total_xp, level, level_name, attendance_streak, assignment_streak,
		last_attendance, last_assignment, updated_at`
	badgeColumns = `b.id, b.code, b.name, b.description, b.xp_reward, b.created_at`
)

type gamificationRepository struct {
	db *sqlx.DB
}

var _ gamification.Repository = (*gamificationRepository)(nil) // interface compliance check

func NewGamificationRepository(db *sqlx.DB) *gamificationRepository {
	return &gamificationRepository{db: db}
}

// lockRow locks the XP row of a student for the rest of tx, inserting it at the first level when missing.
func (repo gamificationRepository) lockRow(
	ctx context.Context,
	tx *sqlx.Tx,
	studentID string,
	resolve gamification.ResolveFunc,
) (gamification.StudentXp, error) {
	var sxp gamification.StudentXp
	if !validUUID(studentID) {
		return sxp, school.ErrStudentNotFound
	}

	first := resolve(0)
	_, err := tx.ExecContext(ctx, `
		INSERT INTO student_xp (student_id, total_xp, level, level_name, updated_at)
		VALUES ($1, 0, $2, $3, $4)
		ON CONFLICT (student_id) DO NOTHING`,
		studentID, first.Level, first.Name, time.Now().UTC(),
	)
	if err != nil {
		if pqCode(err) == foreignKeyViolation {
			return sxp, school.ErrStudentNotFound
		}
		return sxp, errors.Wrap(err, "inserting student xp")
	}

	err = tx.GetContext(ctx, &sxp, `SELECT `+studentXpColumns+` FROM student_xp WHERE student_id = $1 FOR UPDATE`, studentID)
	if err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return sxp, school.ErrStudentNotFound
		}
		return sxp, errors.Wrap(err, "locking student xp")
	}
	return sxp, nil
}

// apply locks the student's row, lets fn change it and grants the award fn returns when its amount is not 0.
func (repo gamificationRepository) apply(
	ctx context.Context,
	tx *sqlx.Tx,
	studentID string,
	resolve gamification.ResolveFunc,
	fn func(*gamification.StudentXp) gamification.Award,
) (chg gamification.XpChange, err error) {
	if chg.Before, err = repo.lockRow(ctx, tx, studentID, resolve); err != nil {
		return chg, err
	}
	chg.After = chg.Before
	award := fn(&chg.After)

	now := time.Now().UTC()
	if award.Amount != 0 {
		chg.After.TotalXp = max(0, chg.After.TotalXp+award.Amount)
		event := award.Event(now)
		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO xp_event (id, student_id, amount, reason, source, awarded_by, created_at)
			VALUES (:id, :student_id, :amount, :reason, :source, :awarded_by, :created_at)`, event)
		if err != nil {
			return chg, errors.Wrap(err, "inserting xp event")
		}
		chg.Event = &event
	}
	lvl := resolve(chg.After.TotalXp)
	chg.After.Level, chg.After.LevelName = lvl.Level, lvl.Name
	chg.After.UpdatedAt = now

	_, err = tx.NamedExecContext(ctx, `
		UPDATE student_xp SET total_xp = :total_xp, level = :level, level_name = :level_name,
			attendance_streak = :attendance_streak, assignment_streak = :assignment_streak,
			last_attendance = :last_attendance, last_assignment = :last_assignment, updated_at = :updated_at
		WHERE student_id = :student_id`, chg.After)
	if err != nil {
		return chg, errors.Wrap(err, "updating student xp")
	}
	return chg, nil
}

func (repo gamificationRepository) IncrementXp(
	ctx context.Context,
	award gamification.Award,
	resolve gamification.ResolveFunc,
) (chg gamification.XpChange, err error) {
	err = inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		chg, err = repo.apply(ctx, tx, award.StudentID, resolve, func(*gamification.StudentXp) gamification.Award {
			return award
		})
		return err
	})
	return chg, err
}

func (repo gamificationRepository) GetStudentXp(ctx context.Context, studentID string) (gamification.StudentXp, error) {
	var sxp gamification.StudentXp
	if !validUUID(studentID) {
		return sxp, gamification.ErrNotFound
	}
	err := repo.db.GetContext(ctx, &sxp, `SELECT `+studentXpColumns+` FROM student_xp WHERE student_id = $1`, studentID)
	if err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return sxp, gamification.ErrNotFound
		}
		return sxp, errors.Wrap(err, "finding student xp")
	}
	return sxp, nil
}

func (repo gamificationRepository) QueryLeaderboard(ctx context.Context, classID string) ([]gamification.LeaderboardEntry, error) {
	var args []interface{}
	q := `
		SELECT x.student_id, s.full_name, COALESCE(s.class_id::text, '') AS class_id, COALESCE(c.name, '') AS class_name,
			x.total_xp, x.level, x.level_name,
			(SELECT COUNT(*) FROM student_badge sb WHERE sb.student_id = x.student_id) AS badge_count
		FROM student_xp x
		JOIN student s ON s.id = x.student_id
		LEFT JOIN class c ON c.id = s.class_id`
	if classID != "" {
		if !validUUID(classID) {
			return []gamification.LeaderboardEntry{}, nil
		}
		q += ` WHERE s.class_id = $1`
		args = append(args, classID)
	}
	q += ` ORDER BY x.total_xp DESC, s.full_name ASC, x.student_id ASC`

	entries := make([]gamification.LeaderboardEntry, 0)
	if err := repo.db.SelectContext(ctx, &entries, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying leaderboard")
	}
	return entries, nil
}

func (repo gamificationRepository) QueryXpEvents(ctx context.Context, studentID string, limit int) ([]gamification.XpEvent, error) {
	events := make([]gamification.XpEvent, 0)
	if !validUUID(studentID) {
		return events, nil
	}
	var lim interface{} // NULL means no limit
	if limit > 0 {
		lim = limit
	}
	err := repo.db.SelectContext(ctx, &events, `
		SELECT id, student_id, amount, reason, source, awarded_by, created_at
		FROM xp_event WHERE student_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, studentID, lim)
	if err != nil {
		return nil, errors.Wrap(err, "querying xp events")
	}
	return events, nil
}

func (repo gamificationRepository) UpdateStreak(
	ctx context.Context,
	studentID string,
	resolve gamification.ResolveFunc,
	fn func(*gamification.StudentXp) gamification.Award,
) (chg gamification.XpChange, err error) {
	err = inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		chg, err = repo.apply(ctx, tx, studentID, resolve, fn)
		return err
	})
	return chg, err
}

func (repo gamificationRepository) ResetStaleAttendanceStreaks(ctx context.Context, before time.Time) (int, error) {
	res, err := repo.db.ExecContext(ctx, `
		UPDATE student_xp SET attendance_streak = 0, updated_at = $2
		WHERE attendance_streak > 0 AND (last_attendance IS NULL OR last_attendance < $1)`,
		before.UTC(), time.Now().UTC(),
	)
	if err != nil {
		return 0, errors.Wrap(err, "resetting attendance streaks")
	}
	cnt, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "resetting attendance streaks")
	}
	return int(cnt), nil
}

func (repo gamificationRepository) RefreshLevels(ctx context.Context, resolve gamification.ResolveFunc) (cnt int, err error) {
	err = inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		var rows []gamification.StudentXp
		if err := tx.SelectContext(ctx, &rows, `SELECT `+studentXpColumns+` FROM student_xp FOR UPDATE`); err != nil {
			return errors.Wrap(err, "locking student xp")
		}

		now := time.Now().UTC()
		for _, sxp := range rows {
			lvl := resolve(sxp.TotalXp)
			if sxp.Level == lvl.Level && sxp.LevelName == lvl.Name {
				continue
			}
			_, err := tx.ExecContext(ctx,
				`UPDATE student_xp SET level = $2, level_name = $3, updated_at = $4 WHERE student_id = $1`,
				sxp.StudentID, lvl.Level, lvl.Name, now,
			)
			if err != nil {
				return errors.Wrap(err, "updating level")
			}
			cnt++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return cnt, nil
}

func (repo gamificationRepository) CreateBadge(ctx context.Context, badge gamification.Badge) (gamification.Badge, error) {
	badge.ID = uuid.New().String()
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO badge (id, code, name, description, xp_reward, created_at)
		VALUES (:id, :code, :name, :description, :xp_reward, :created_at)`, badge)
	if err != nil {
		if pqCode(err) == uniqueViolation {
			return gamification.Badge{}, gamification.ErrBadgeExists
		}
		return gamification.Badge{}, errors.Wrap(err, "inserting badge")
	}
	return badge, nil
}

func (repo gamificationRepository) QueryBadges(ctx context.Context) ([]gamification.Badge, error) {
	badges := make([]gamification.Badge, 0)
	if err := repo.db.SelectContext(ctx, &badges, `SELECT `+badgeColumns+` FROM badge b ORDER BY b.code`); err != nil {
		return nil, errors.Wrap(err, "querying badges")
	}
	return badges, nil
}

func (repo gamificationRepository) GetBadge(ctx context.Context, idOrCode string) (gamification.Badge, error) {
	var badge gamification.Badge
	err := repo.db.GetContext(ctx, &badge, `
		SELECT `+badgeColumns+` FROM badge b
		WHERE b.id::text = $1 OR b.code = $2
		ORDER BY (b.id::text = $1) DESC
		LIMIT 1`, idOrCode, strings.ToLower(idOrCode))
	if err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return badge, gamification.ErrBadgeNotFound
		}
		return badge, errors.Wrap(err, "finding badge")
	}
	return badge, nil
}

func (repo gamificationRepository) AwardBadge(
	ctx context.Context,
	badgeID string,
	award gamification.Award,
	resolve gamification.ResolveFunc,
) (sb gamification.StudentBadge, chg gamification.XpChange, err error) {
	if !validUUID(award.StudentID) {
		return sb, chg, school.ErrStudentNotFound
	}
	if !validUUID(badgeID) {
		return sb, chg, gamification.ErrBadgeNotFound
	}

	var awardedBy *string
	if award.AwardedBy != "" {
		awardedBy = &award.AwardedBy
	}
	err = inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &sb, `
			WITH sb AS (
				INSERT INTO student_badge (student_id, badge_id, awarded_by, awarded_at)
				VALUES ($1, $2, $3, $4)
				RETURNING badge_id, awarded_by, awarded_at
			)
			SELECT `+badgeColumns+`, sb.awarded_by, sb.awarded_at
			FROM sb JOIN badge b ON b.id = sb.badge_id`,
			award.StudentID, badgeID, awardedBy, time.Now().UTC(),
		)
		if err != nil {
			return badgeError(err)
		}
		chg, err = repo.apply(ctx, tx, award.StudentID, resolve, func(*gamification.StudentXp) gamification.Award {
			return award
		})
		return err
	})
	if err != nil {
		return gamification.StudentBadge{}, gamification.XpChange{}, err
	}
	return sb, chg, nil
}

func badgeError(err error) error {
	switch pqCode(err) {
	case uniqueViolation:
		return gamification.ErrBadgeAlreadyAwarded
	case foreignKeyViolation:
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			switch {
			case strings.Contains(pqErr.Constraint, "badge_id"):
				return gamification.ErrBadgeNotFound
			case strings.Contains(pqErr.Constraint, "student_id"):
				return school.ErrStudentNotFound
			}
		}
	}
	return errors.Wrap(err, "awarding badge")
}

func (repo gamificationRepository) QueryStudentBadges(ctx context.Context, studentID string) ([]gamification.StudentBadge, error) {
	badges := make([]gamification.StudentBadge, 0)
	if !validUUID(studentID) {
		return badges, nil
	}
	err := repo.db.SelectContext(ctx, &badges, `
		SELECT `+badgeColumns+`, sb.awarded_by, sb.awarded_at
		FROM student_badge sb JOIN badge b ON b.id = sb.badge_id
		WHERE sb.student_id = $1
		ORDER BY sb.awarded_at, b.code`, studentID)
	if err != nil {
		return nil, errors.Wrap(err, "querying student badges")
	}
	return badges, nil
}
