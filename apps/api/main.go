package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof" // register the /debug/pprof handlers
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/robfig/cron/v3"

	dig_container "github.com/gurudigital/pelangi/apps/api/di/dig"
	echoapi "github.com/gurudigital/pelangi/apps/api/echo"
	"github.com/gurudigital/pelangi/core"
	"github.com/gurudigital/pelangi/core/gamification"
	"github.com/gurudigital/pelangi/core/user"
	eventsvc "github.com/gurudigital/pelangi/services/events"
	metricsvc "github.com/gurudigital/pelangi/services/metrics"
)

func main() {
	c := dig_container.New()

	must(c.Invoke(func(
		conf *core.Config,
		apiLogger core.Logger,
		dbLoggerParam dig_container.DBLoggerParam,
		db *sqlx.DB,
		validate *validator.Validate,
		translator ut.Translator,
		mailer core.EmailService,
		metrics *metricsvc.Metrics,
		bus *eventsvc.Bus,
		gamificationSvc gamification.ServiceInterface,
		server *echoapi.Server,
	) {
		// =========================================================================
		// Initialize App

		apiLogger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))

		core.InitValidators(validate, translator)
		user.InitValidators(validate, translator)
		gamification.InitValidators(validate, translator)

		core.ParseEmailTemplates(conf, apiLogger)

		user.LoadCommonPasswords(apiLogger)

		dbLogger := dbLoggerParam.Logger
		defer func() {
			if err := db.Close(); err != nil {
				dbLogger.Fatal("Failed to close", err)
			}
		}()
		defer apiLogger.Info("Application stopped")

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// =========================================================================
		// Start Debug Service
		//
		// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
		// /debug/vars - Added to the default mux by importing the expvar package.
		// /metrics - Prometheus metrics.

		// Expose important info under /debug/vars.
		expvar.NewString("build").Set(conf.Build)
		expvar.NewString("env").Set(conf.Env)
		http.Handle("/metrics", metrics.Handler())

		go func() {
			if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
				apiLogger.Error(fmt.Sprintf("debug server closed: %v", err), err)
			}
		}()

		// =========================================================================
		// Start Event Bus

		bus.HandleLevelUp(mailer)
		go func() {
			if err := bus.Run(ctx); err != nil {
				apiLogger.Error(fmt.Sprintf("event bus stopped: %v", err), err)
			}
		}()
		defer func() {
			if err := bus.Close(); err != nil {
				apiLogger.Error(fmt.Sprintf("closing event bus: %v", err), err)
			}
		}()

		// =========================================================================
		// Start Scheduler

		scheduler := cron.New()
		_, err := scheduler.AddFunc(conf.Gamification.StreakResetSchedule, func() {
			n, err := gamificationSvc.ResetStaleStreaks(ctx, time.Now())
			if err != nil {
				apiLogger.Error(fmt.Sprintf("resetting stale streaks: %v", err), err)
				return
			}
			apiLogger.Info(fmt.Sprintf("reset %d stale attendance streaks", n))
		})
		if err != nil {
			apiLogger.Fatal(fmt.Sprintf("scheduling streak reset %q: %v", conf.Gamification.StreakResetSchedule, err), err)
		}
		scheduler.Start()
		defer scheduler.Stop()

		// =========================================================================
		// Start API Service

		go func() {
			server.Start()
		}()

		// =========================================================================
		// Shutdown

		select {
		case err := <-server.Errors():
			apiLogger.Fatal(fmt.Sprintf("server error: %v", err), err)

		case sig := <-server.ShutdownSignal():
			apiLogger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

			// give outstanding requests a deadline for completion
			ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
			defer cancel()

			// asking listener to shut down and shed load
			if err := server.Shutdown(ctx); err != nil {
				apiLogger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

				if err = server.Close(); err != nil {
					apiLogger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
				}
			}
		}
	}))
}

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
