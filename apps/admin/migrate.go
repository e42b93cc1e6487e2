package main

import (
	"github.com/gurudigital/pelangi/storage/database"
)

var runMigrationFunc = database.RunMigration // mockable

func (cli *commandLine) migrate(args []string) error {
	return runMigrationFunc(cli.db, args[0], args[1:]...)
}
