package main

import (
	"context"

	"github.com/pkg/errors"

	"github.com/gurudigital/pelangi/core/gamification"
)

func (cli *commandLine) recalcLevels() error {
	n, err := cli.gmSvc.RecalculateLevels(context.Background())
	if err != nil {
		return errors.Wrap(err, "recalculating levels")
	}
	cli.printf("%d student levels updated\n", n)
	return nil
}

func (cli *commandLine) resetStreaks() error {
	n, err := cli.gmSvc.ResetStaleStreaks(context.Background(), nowFunc())
	if err != nil {
		return errors.Wrap(err, "resetting streaks")
	}
	cli.printf("%d attendance streaks reset\n", n)
	return nil
}

func (cli *commandLine) checkLevels(path string) error {
	table, err := gamification.LoadLevelTable(path)
	if err != nil {
		return err
	}
	for _, lvl := range table.Thresholds() {
		cli.printf("%3d  %-12s %6d XP\n", lvl.Level, lvl.Name, lvl.MinXp)
	}
	return nil
}
