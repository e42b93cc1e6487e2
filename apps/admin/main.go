package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/gurudigital/pelangi/core"
	"github.com/gurudigital/pelangi/core/gamification"
	"github.com/gurudigital/pelangi/core/school"
	logsvc "github.com/gurudigital/pelangi/services/logger"
	"github.com/gurudigital/pelangi/storage/database"
	boiledrepos "github.com/gurudigital/pelangi/storage/database/sqlboiler"
	sqlxrepos "github.com/gurudigital/pelangi/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)
	defer logger.Close()

	// set up DB
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		logger.Fatal("creating database", err)
	}
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal("opening database", err)
	}
	defer db.Close()
	if err = database.StatusCheck(ctx, db); err != nil {
		logger.Fatal("checking database", err)
	}

	// set up services
	table, err := gamification.LoadLevelTable(conf.Gamification.LevelsFile)
	if err != nil {
		logger.Fatal("loading level table", err)
	}
	schoolSvc := school.NewService(sqlxrepos.NewSchoolRepository(db))
	gmSvc, err := gamification.NewService(
		sqlxrepos.NewGamificationRepository(db), schoolSvc, table, conf, nil /* notifier */, nil /* recorder */, logger,
	)
	if err != nil {
		logger.Fatal("setting up gamification", err)
	}

	// start CLI
	cli := commandLine{
		db:      db.DB,
		usrRepo: boiledrepos.NewUserRepository(db),
		gmSvc:   gmSvc,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error("command failed", err)
		}
		logger.Close()
		os.Exit(1)
	}
}
