package gamification

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(i int) *int       { return &i }
func strPtr(s string) *string { return &s }

func defaultTable(t *testing.T) *LevelTable {
	t.Helper()
	table, err := DefaultLevelTable()
	require.NoError(t, err)
	return table
}

func TestNewLevelTable(t *testing.T) {
	tests := []struct {
		name       string
		thresholds []LevelThreshold
		wantErr    bool
	}{
		{name: "empty", wantErr: true},
		{name: "does not start at 0", thresholds: []LevelThreshold{{1, "A", 10}}, wantErr: true},
		{name: "level below 1", thresholds: []LevelThreshold{{0, "A", 0}}, wantErr: true},
		{name: "no name", thresholds: []LevelThreshold{{1, "", 0}}, wantErr: true},
		{name: "duplicate level", thresholds: []LevelThreshold{{1, "A", 0}, {1, "B", 10}}, wantErr: true},
		{name: "decreasing level", thresholds: []LevelThreshold{{2, "A", 0}, {1, "B", 10}}, wantErr: true},
		{name: "equal min xp", thresholds: []LevelThreshold{{1, "A", 0}, {2, "B", 0}}, wantErr: true},
		{name: "decreasing min xp", thresholds: []LevelThreshold{{1, "A", 0}, {2, "B", 50}, {3, "C", 40}}, wantErr: true},
		{name: "single level", thresholds: []LevelThreshold{{1, "A", 0}}},
		{name: "valid", thresholds: []LevelThreshold{{1, "A", 0}, {2, "B", 10}, {3, "C", 25}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, err := NewLevelTable(tt.thresholds)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewLevelTable() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				assert.Equal(t, ErrInvalidLevelTable, errors.Cause(err))
				return
			}
			assert.Equal(t, len(tt.thresholds), table.Len())
		})
	}
}

func TestNewLevelTable_Copies(t *testing.T) {
	thresholds := []LevelThreshold{{1, "A", 0}, {2, "B", 10}}
	table := MustLevelTable(thresholds)
	thresholds[1].MinXp = 1000

	assert.Equal(t, 10, table.Resolve(10).MinXp)
	got := table.Thresholds()
	got[0].Name = "changed"
	assert.Equal(t, "A", table.Resolve(0).Name)
}

func TestMustLevelTable_Panics(t *testing.T) {
	assert.Panics(t, func() { MustLevelTable(nil) })
}

func TestResolveLevel(t *testing.T) {
	table := defaultTable(t)

	tests := []struct {
		name      string
		totalXp   int
		wantLevel int
		wantName  string
	}{
		{name: "negative xp", totalXp: -50, wantLevel: 1, wantName: "Pemula"},
		{name: "zero", totalXp: 0, wantLevel: 1, wantName: "Pemula"},
		{name: "below first step", totalXp: 99, wantLevel: 1, wantName: "Pemula"},
		{name: "exact threshold", totalXp: 100, wantLevel: 2, wantName: "Berkembang"},
		{name: "mid level", totalXp: 250, wantLevel: 2, wantName: "Berkembang"},
		{name: "just below threshold", totalXp: 599, wantLevel: 3, wantName: "Mahir"},
		{name: "master", totalXp: 1000, wantLevel: 5, wantName: "Master"},
		{name: "max threshold", totalXp: 4000, wantLevel: 10, wantName: "Divine"},
		{name: "beyond max", totalXp: 5000, wantLevel: 10, wantName: "Divine"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveLevel(tt.totalXp, table)
			if got.Level != tt.wantLevel || got.Name != tt.wantName {
				t.Errorf("ResolveLevel() = %v, want level %d %q", got, tt.wantLevel, tt.wantName)
			}
		})
	}
}

func TestResolveLevel_Monotonic(t *testing.T) {
	table := defaultTable(t)
	prev := table.Resolve(-1).Level
	for xp := 0; xp <= 5000; xp += 7 {
		lvl := table.Resolve(xp)
		require.GreaterOrEqual(t, lvl.Level, prev, "xp %d", xp)
		require.LessOrEqual(t, lvl.MinXp, xp, "xp %d", xp)
		prev = lvl.Level
	}
}

func TestProgressToNextLevel(t *testing.T) {
	table := defaultTable(t)

	tests := []struct {
		name    string
		totalXp int
		want    Progress
	}{
		{
			name:    "fresh student",
			totalXp: 0,
			want: Progress{
				Level: 1, LevelName: "Pemula", TotalXp: 0, CurrentLevelXp: 0,
				NextLevel: intPtr(2), NextLevelName: strPtr("Berkembang"), NextLevelXp: intPtr(100),
				ProgressXp: 0, RequiredXp: 100, Percentage: 0,
			},
		},
		{
			name:    "three quarters",
			totalXp: 250,
			want: Progress{
				Level: 2, LevelName: "Berkembang", TotalXp: 250, CurrentLevelXp: 100,
				NextLevel: intPtr(3), NextLevelName: strPtr("Mahir"), NextLevelXp: intPtr(300),
				ProgressXp: 150, RequiredXp: 200, Percentage: 75,
			},
		},
		{
			name:    "max level reached",
			totalXp: 4000,
			want: Progress{
				Level: 10, LevelName: "Divine", TotalXp: 4000, CurrentLevelXp: 4000,
				ProgressXp: 0, Percentage: 100, IsMaxLevel: true,
			},
		},
		{
			name:    "beyond max level",
			totalXp: 5000,
			want: Progress{
				Level: 10, LevelName: "Divine", TotalXp: 5000, CurrentLevelXp: 4000,
				ProgressXp: 1000, Percentage: 100, IsMaxLevel: true,
			},
		},
		{
			name:    "negative xp",
			totalXp: -10,
			want: Progress{
				Level: 1, LevelName: "Pemula", TotalXp: -10, CurrentLevelXp: 0,
				NextLevel: intPtr(2), NextLevelName: strPtr("Berkembang"), NextLevelXp: intPtr(100),
				ProgressXp: 0, RequiredXp: 100, Percentage: 0,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ProgressToNextLevel(tt.totalXp, table)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ProgressToNextLevel() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestProgress_PercentageBounds(t *testing.T) {
	table := defaultTable(t)
	for xp := -100; xp <= 4500; xp += 13 {
		p := table.Progress(xp)
		require.GreaterOrEqual(t, p.Percentage, 0.0, "xp %d", xp)
		require.LessOrEqual(t, p.Percentage, 100.0, "xp %d", xp)
		if p.IsMaxLevel {
			require.Nil(t, p.NextLevel)
			require.Equal(t, 100.0, p.Percentage)
		}
	}
}
