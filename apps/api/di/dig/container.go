package dig_container

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/gurudigital/pelangi/apps/api/echo"
	"github.com/gurudigital/pelangi/core"
	"github.com/gurudigital/pelangi/core/gamification"
	"github.com/gurudigital/pelangi/core/school"
	"github.com/gurudigital/pelangi/core/user"
	emailsvc "github.com/gurudigital/pelangi/services/email"
	eventsvc "github.com/gurudigital/pelangi/services/events"
	logsvc "github.com/gurudigital/pelangi/services/logger"
	metricsvc "github.com/gurudigital/pelangi/services/metrics"
	"github.com/gurudigital/pelangi/storage/database"
	boiledrepos "github.com/gurudigital/pelangi/storage/database/sqlboiler"
	sqlxrepos "github.com/gurudigital/pelangi/storage/database/sqlx"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags)
	return logsvc.NewRollbarLogger(stdLogger, conf)
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	return logsvc.NewRollbarLogger(stdLogger, conf)
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) (*sqlx.DB, core.DB) {
	setUp := func() (*sqlx.DB, error) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		if err := database.CreateIfNotExist(ctx, conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(db.DB); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db, db
}

func newUserRepository(db core.DB) user.Repository {
	return boiledrepos.NewUserRepository(db)
}

func newLevelTable(conf *core.Config) (*gamification.LevelTable, error) {
	return gamification.LoadLevelTable(conf.Gamification.LevelsFile)
}

func newRecorder(m *metricsvc.Metrics) gamification.Recorder { return m }

func newRequestObserver(m *metricsvc.Metrics) echoapi.RequestObserver { return m }

func newEventBus(conf *core.Config, logger core.Logger, m *metricsvc.Metrics) (*eventsvc.Bus, error) {
	return eventsvc.NewBus(conf, logger, m.Registry())
}

func newNotifier(bus *eventsvc.Bus) gamification.Notifier { return bus }

func newStudentGetter(svc school.ServiceInterface) gamification.StudentGetter { return svc }

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	// ambient
	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(validator.New))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(metricsvc.New))
	must(c.Provide(newRecorder))
	must(c.Provide(newRequestObserver))

	// storage
	must(c.Provide(newDB))
	must(c.Provide(newUserRepository))
	must(c.Provide(sqlxrepos.NewSchoolRepository, dig.As(new(school.Repository))))
	must(c.Provide(sqlxrepos.NewGamificationRepository, dig.As(new(gamification.Repository))))

	// services
	must(c.Provide(emailsvc.NewService))
	must(c.Provide(newEventBus))
	must(c.Provide(newNotifier))
	must(c.Provide(newLevelTable))
	must(c.Provide(user.NewService, dig.As(new(user.ServiceInterface))))
	must(c.Provide(school.NewService, dig.As(new(school.ServiceInterface))))
	must(c.Provide(newStudentGetter))
	must(c.Provide(gamification.NewService, dig.As(new(gamification.ServiceInterface))))

	// apps
	must(c.Provide(echoapi.NewServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
