package gamification

import (
	"math"
	"sort"

	"github.com/pkg/errors"
)

var ErrInvalidLevelTable = errors.New("invalid level table")

// LevelThreshold is the minimum XP required to reach a level.
type LevelThreshold struct {
	Level int    `json:"level" yaml:"level"`
	Name  string `json:"name" yaml:"name"`
	MinXp int    `json:"min_xp" yaml:"min_xp"`
}

// LevelTable is a validated, immutable list of thresholds ordered by MinXp.
// The zero value is not usable; build one with NewLevelTable.
type LevelTable struct {
	thresholds []LevelThreshold
}

// NewLevelTable validates thresholds: the table must not be empty, start at 0 XP,
// and be strictly increasing in both Level and MinXp. Names are required.
func NewLevelTable(thresholds []LevelThreshold) (*LevelTable, error) {
	if len(thresholds) == 0 {
		return nil, errors.Wrap(ErrInvalidLevelTable, "no thresholds")
	}
	if thresholds[0].MinXp != 0 {
		return nil, errors.Wrapf(ErrInvalidLevelTable, "first threshold must start at 0 XP, got %d", thresholds[0].MinXp)
	}

	seen := make(map[int]struct{}, len(thresholds))
	for i, th := range thresholds {
		if th.Level < 1 {
			return nil, errors.Wrapf(ErrInvalidLevelTable, "level must be >= 1, got %d", th.Level)
		}
		if th.Name == "" {
			return nil, errors.Wrapf(ErrInvalidLevelTable, "level %d has no name", th.Level)
		}
		if _, dup := seen[th.Level]; dup {
			return nil, errors.Wrapf(ErrInvalidLevelTable, "duplicate level %d", th.Level)
		}
		seen[th.Level] = struct{}{}
		if i == 0 {
			continue
		}
		prev := thresholds[i-1]
		if th.Level <= prev.Level {
			return nil, errors.Wrapf(ErrInvalidLevelTable, "level %d must be greater than level %d", th.Level, prev.Level)
		}
		if th.MinXp <= prev.MinXp {
			return nil, errors.Wrapf(ErrInvalidLevelTable, "level %d min XP %d must be greater than %d", th.Level, th.MinXp, prev.MinXp)
		}
	}

	cp := make([]LevelThreshold, len(thresholds))
	copy(cp, thresholds)
	return &LevelTable{thresholds: cp}, nil
}

// MustLevelTable is like NewLevelTable but panics on an invalid table.
func MustLevelTable(thresholds []LevelThreshold) *LevelTable {
	t, err := NewLevelTable(thresholds)
	if err != nil {
		panic(err)
	}
	return t
}

// Thresholds returns a copy of the table's thresholds.
func (t *LevelTable) Thresholds() []LevelThreshold {
	cp := make([]LevelThreshold, len(t.thresholds))
	copy(cp, t.thresholds)
	return cp
}

func (t *LevelTable) Len() int { return len(t.thresholds) }

// MaxLevel returns the last threshold.
func (t *LevelTable) MaxLevel() LevelThreshold { return t.thresholds[len(t.thresholds)-1] }

// index returns the position of the highest threshold with MinXp <= totalXp, clamped to 0.
func (t *LevelTable) index(totalXp int) int {
	i := sort.Search(len(t.thresholds), func(i int) bool { return t.thresholds[i].MinXp > totalXp }) - 1
	if i < 0 {
		return 0
	}
	return i
}

// Resolve returns the threshold a student with totalXp belongs to.
// Negative XP resolves to the first level; XP beyond the last threshold stays at the max level.
func (t *LevelTable) Resolve(totalXp int) LevelThreshold {
	return t.thresholds[t.index(totalXp)]
}

// Progress describes how far a student is from the next level.
type Progress struct {
	Level          int     `json:"level"`
	LevelName      string  `json:"level_name"`
	TotalXp        int     `json:"total_xp"`
	CurrentLevelXp int     `json:"current_level_xp"`
	NextLevel      *int    `json:"next_level,omitempty"`
	NextLevelName  *string `json:"next_level_name,omitempty"`
	NextLevelXp    *int    `json:"next_level_xp,omitempty"`
	ProgressXp     int     `json:"progress_xp"`
	RequiredXp     int     `json:"required_xp"`
	Percentage     float64 `json:"percentage"`
	IsMaxLevel     bool    `json:"is_max_level"`
}

// Progress computes the progress toward the next level. At the max level the
// percentage is 100 and the next level fields are nil.
func (t *LevelTable) Progress(totalXp int) Progress {
	i := t.index(totalXp)
	cur := t.thresholds[i]
	p := Progress{
		Level:          cur.Level,
		LevelName:      cur.Name,
		TotalXp:        totalXp,
		CurrentLevelXp: cur.MinXp,
		ProgressXp:     totalXp - cur.MinXp,
	}
	if p.ProgressXp < 0 {
		p.ProgressXp = 0
	}

	if i == len(t.thresholds)-1 {
		p.IsMaxLevel = true
		p.Percentage = 100
		return p
	}

	next := t.thresholds[i+1]
	p.NextLevel = &next.Level
	p.NextLevelName = &next.Name
	p.NextLevelXp = &next.MinXp
	p.RequiredXp = next.MinXp - cur.MinXp
	p.Percentage = clamp(float64(p.ProgressXp)/float64(p.RequiredXp)*100, 0, 100)
	return p
}

func clamp(v, min, max float64) float64 {
	return math.Max(min, math.Min(max, v))
}

// ResolveLevel returns the threshold entry for totalXp. See LevelTable.Resolve.
func ResolveLevel(totalXp int, table *LevelTable) LevelThreshold {
	return table.Resolve(totalXp)
}

// ProgressToNextLevel returns the progress for totalXp. See LevelTable.Progress.
func ProgressToNextLevel(totalXp int, table *LevelTable) Progress {
	return table.Progress(totalXp)
}
