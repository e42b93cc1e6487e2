package gamification

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLevelTable(t *testing.T) {
	table, err := DefaultLevelTable()
	require.NoError(t, err)

	assert.Equal(t, 10, table.Len())
	assert.Equal(t, LevelThreshold{Level: 1, Name: "Pemula", MinXp: 0}, table.Resolve(0))
	assert.Equal(t, LevelThreshold{Level: 10, Name: "Divine", MinXp: 4000}, table.MaxLevel())
}

func TestParseLevelTable(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantLen int
		wantErr bool
	}{
		{
			name: "valid",
			data: `
levels:
  - {level: 1, name: Bronze, min_xp: 0}
  - {level: 2, name: Silver, min_xp: 50}
  - {level: 3, name: Gold, min_xp: 150}
`,
			wantLen: 3,
		},
		{name: "not yaml", data: "levels: [", wantErr: true},
		{name: "no levels", data: "tiers: []", wantErr: true},
		{
			name: "unsorted",
			data: `
levels:
  - {level: 1, name: Bronze, min_xp: 0}
  - {level: 2, name: Silver, min_xp: 150}
  - {level: 3, name: Gold, min_xp: 50}
`,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, err := ParseLevelTable([]byte(tt.data))
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseLevelTable() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				assert.Equal(t, ErrInvalidLevelTable, errors.Cause(err))
				return
			}
			assert.Equal(t, tt.wantLen, table.Len())
		})
	}
}

func TestLoadLevelTable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "levels.yaml")
	require.NoError(t, os.WriteFile(path, []byte("levels:\n  - {level: 1, name: Only, min_xp: 0}\n"), 0o600))

	table, err := LoadLevelTable(path)
	require.NoError(t, err)
	assert.Equal(t, "Only", table.MaxLevel().Name)

	table, err = LoadLevelTable("")
	require.NoError(t, err)
	assert.Equal(t, 10, table.Len())

	_, err = LoadLevelTable(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
