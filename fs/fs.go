// Package appfs embeds the files shipped inside the binaries.
package appfs

import "embed"

//go:embed migrations/*.sql templates/email/* levels.yaml common-passwords.txt
var FS embed.FS

const (
	MigrationsDir       = "migrations"
	EmailTemplatesDir   = "templates/email"
	DefaultLevelsFile   = "levels.yaml"
	CommonPasswordsFile = "common-passwords.txt"
)
