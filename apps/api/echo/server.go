package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"go.uber.org/dig"

	"github.com/gurudigital/pelangi/core"
	"github.com/gurudigital/pelangi/core/gamification"
	"github.com/gurudigital/pelangi/core/school"
	"github.com/gurudigital/pelangi/core/user"
)

type (
	// RequestObserver records the duration of every request.
	RequestObserver interface {
		ObserveRequest(method, route string, status int, d time.Duration)
	}

	ServerDeps struct {
		dig.In

		Conf            *core.Config
		Logger          core.Logger
		UserSvc         user.ServiceInterface
		SchoolSvc       school.ServiceInterface
		GamificationSvc gamification.ServiceInterface
		Validate        *validator.Validate
		Translator      ut.Translator
		Observer        RequestObserver `optional:"true"`
	}

	Server struct {
		app      *echo.Echo
		addr     string
		errors   chan error
		shutdown chan os.Signal
	}
)

func NewServer(deps ServerDeps) *Server {
	s := &Server{
		app:      echo.New(),
		addr:     deps.Conf.Server.Address(),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup(deps)
	return s
}

func (s *Server) setup(deps ServerDeps) {
	conf := deps.Conf

	s.app.HideBanner = conf.TestMode
	s.app.HidePort = conf.TestMode
	s.app.Debug = conf.Debug && !conf.TestMode
	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(deps.Logger, deps.Translator, s.SignalShutdown)

	s.app.Pre(middleware.RemoveTrailingSlash())
	if !conf.TestMode {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	if deps.Observer != nil {
		s.app.Use(observerMiddleware(deps.Observer))
	}

	s.app.GET("/", home)

	v1 := s.app.Group("/v1")
	auth := newAuthenticator(conf)
	jwt := middleware.JWTWithConfig(auth.jwtConfig)
	limiter := newRateLimiter(conf.Server.RateLimit, conf.Server.RateBurst)

	registerUserAPI(v1, jwt, limiter.middleware(), auth, deps.UserSvc, deps.SchoolSvc, deps.Validate, deps.Logger)
	registerSchoolAPI(v1, jwt, deps.SchoolSvc, deps.Validate)
	registerGamificationAPI(v1, jwt, deps.GamificationSvc, deps.SchoolSvc, deps.Validate)
}

func (s *Server) Start() {
	if err := s.app.Start(s.addr); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

// SignalShutdown asks the app to shut down gracefully.
func (s *Server) SignalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default: // already signaled
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to Guru Digital Pelangi API!")
}
