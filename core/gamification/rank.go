package gamification

import (
	"sort"

	"github.com/pkg/errors"
)

type RankingMode string

const (
	// RankSequential gives every entry its 1-based position; equal XP gets distinct ranks.
	RankSequential RankingMode = "sequential"
	// RankCompetition gives equal XP a shared rank and leaves a gap after ties (1, 1, 3).
	RankCompetition RankingMode = "competition"
)

func ParseRankingMode(s string) (RankingMode, error) {
	switch RankingMode(s) {
	case "", RankSequential:
		return RankSequential, nil
	case RankCompetition:
		return RankCompetition, nil
	default:
		return "", errors.Errorf("unknown ranking mode %q", s)
	}
}

// LeaderboardEntry is a ranked view of a student's XP; it is computed on every query and never stored.
type LeaderboardEntry struct {
	StudentID  string `json:"student_id" db:"student_id"`
	FullName   string `json:"full_name" db:"full_name"`
	ClassID    string `json:"class_id,omitempty" db:"class_id"`
	ClassName  string `json:"class_name" db:"class_name"`
	TotalXp    int    `json:"total_xp" db:"total_xp"`
	Level      int    `json:"level" db:"level"`
	LevelName  string `json:"level_name" db:"level_name"`
	BadgeCount int    `json:"badge_count" db:"badge_count"`
	Rank       int    `json:"rank" db:"-"`
}

// Rank returns a copy of entries stably sorted by TotalXp descending with Rank set.
// Ties keep their input order. The input slice is not modified.
func Rank(entries []LeaderboardEntry, mode RankingMode) []LeaderboardEntry {
	ranked := make([]LeaderboardEntry, len(entries))
	copy(ranked, entries)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].TotalXp > ranked[j].TotalXp })

	for i := range ranked {
		ranked[i].Rank = i + 1
		if mode == RankCompetition && i > 0 && ranked[i].TotalXp == ranked[i-1].TotalXp {
			ranked[i].Rank = ranked[i-1].Rank
		}
	}
	return ranked
}

// FindRank returns the rank of studentID in a ranked sequence.
// ok is false when the student is unranked (no XP record, or outside the scope).
func FindRank(entries []LeaderboardEntry, studentID string) (rank int, ok bool) {
	for _, e := range entries {
		if e.StudentID == studentID {
			return e.Rank, true
		}
	}
	return 0, false
}
