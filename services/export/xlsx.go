// Package exportsvc renders reports as spreadsheets.
package exportsvc

import (
	"io"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/gurudigital/pelangi/core/gamification"
)

const (
	LeaderboardSheet = "Leaderboard"
	XlsxContentType  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var leaderboardHeader = []interface{}{"Rank", "Student", "Class", "Level", "Level name", "Total XP", "Badges"}

// WriteLeaderboard writes ranked entries as an xlsx workbook with a single "Leaderboard" sheet.
func WriteLeaderboard(w io.Writer, entries []gamification.LeaderboardEntry) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	if err := f.SetSheetName(sheet, LeaderboardSheet); err != nil {
		return errors.Wrap(err, "naming sheet")
	}
	sheet = LeaderboardSheet

	header := leaderboardHeader
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return errors.Wrap(err, "writing header")
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return errors.Wrap(err, "creating header style")
	}
	if err = f.SetCellStyle(sheet, "A1", "G1", bold); err != nil {
		return errors.Wrap(err, "styling header")
	}

	for idx, e := range entries {
		axis, err := excelize.CoordinatesToCellName(1, idx+2)
		if err != nil {
			return errors.Wrap(err, "computing cell name")
		}
		row := []interface{}{e.Rank, e.FullName, e.ClassName, e.Level, e.LevelName, e.TotalXp, e.BadgeCount}
		if err = f.SetSheetRow(sheet, axis, &row); err != nil {
			return errors.Wrapf(err, "writing row %d", idx+2)
		}
	}

	if err = f.SetColWidth(sheet, "B", "C", 28); err != nil {
		return errors.Wrap(err, "sizing columns")
	}
	if err = f.SetColWidth(sheet, "E", "E", 16); err != nil {
		return errors.Wrap(err, "sizing columns")
	}

	if err = f.Write(w); err != nil {
		return errors.Wrap(err, "writing workbook")
	}
	return nil
}
