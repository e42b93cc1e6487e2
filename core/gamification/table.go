package gamification

import (
	"io/ioutil"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	appfs "github.com/gurudigital/pelangi/fs"
)

type levelsFile struct {
	Levels []LevelThreshold `yaml:"levels"`
}

// ParseLevelTable decodes a YAML document of the form `levels: [{level, name, min_xp}, ...]`
// and validates it.
func ParseLevelTable(data []byte) (*LevelTable, error) {
	var f levelsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(ErrInvalidLevelTable, err.Error())
	}
	return NewLevelTable(f.Levels)
}

// LoadLevelTable reads the level table from path, or the embedded default table when path is empty.
func LoadLevelTable(path string) (*LevelTable, error) {
	if path == "" {
		return DefaultLevelTable()
	}
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading level table %s", path)
	}
	table, err := ParseLevelTable(data)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing level table %s", path)
	}
	return table, nil
}

// DefaultLevelTable returns the table shipped with the binary (10 levels, Pemula to Divine).
func DefaultLevelTable() (*LevelTable, error) {
	data, err := appfs.FS.ReadFile(appfs.DefaultLevelsFile)
	if err != nil {
		return nil, errors.Wrap(err, "reading default level table")
	}
	return ParseLevelTable(data)
}
