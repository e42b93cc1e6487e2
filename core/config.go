package core

import (
	"fmt"
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		Env             string // DEV (local; default), TEST, QA, PROD
		Build           string
		Debug           bool
		TestMode        bool
		AppName         string
		SecretKey       string
		FrontendBaseURL string
		RollbarToken    string
		SendgridApiKey  string

		PasswordResetTimeoutDelta time.Duration

		defaultFromEmail string

		Server       ServerConfig
		Database     DatabaseConfig
		Gamification GamificationConfig
	}

	ServerConfig struct {
		Host                      string
		Port                      int
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		RateLimit                 float64 // requests per second on sensitive endpoints
		RateBurst                 int
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	GamificationConfig struct {
		LevelsFile          string // empty: built-in table
		RankingMode         string // sequential | competition
		AttendanceXp        int
		LateAttendanceXp    int
		AssignmentXp        int
		LateAssignmentXp    int
		StreakGraceDays     int
		StreakResetSchedule string // cron spec
		LeaderboardLimit    int
	}
)

func (c *Config) DefaultFromEmail() mail.Address {
	if addr, err := mail.ParseAddress(c.defaultFromEmail); err == nil {
		return *addr
	}
	return mail.Address{Name: c.AppName, Address: c.defaultFromEmail}
}

func (s ServerConfig) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

func (db DatabaseConfig) Address() string {
	return fmt.Sprintf("%s:%d", db.Host, db.Port)
}

// NewConfig loads the configuration from the environment and the optional `config/.env.<env>` file.
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("build", "dev")
	v.SetDefault("appName", "Guru Digital Pelangi")
	v.SetDefault("secretKey", "k3v!q9-pel@ngi+rn5=zw&8uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	v.SetDefault("frontendBaseURL", "http://localhost:5173")
	v.SetDefault("defaultFromEmail", "Guru Digital Pelangi <noreply@localhost>")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)

	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.debugHost", "localhost:4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 4*time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.rateLimit", 0.2)
	v.SetDefault("server.rateBurst", 5)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "pelangi")
	v.SetDefault("database.user", "pelangi")
	v.SetDefault("database.password", "pelangi")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "postgres")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("gamification.levelsFile", "")
	v.SetDefault("gamification.rankingMode", "sequential")
	v.SetDefault("gamification.attendanceXp", 10)
	v.SetDefault("gamification.lateAttendanceXp", 5)
	v.SetDefault("gamification.assignmentXp", 20)
	v.SetDefault("gamification.lateAssignmentXp", 10)
	v.SetDefault("gamification.streakGraceDays", 2) // weekends
	v.SetDefault("gamification.streakResetSchedule", "0 1 * * *")
	v.SetDefault("gamification.leaderboardLimit", 50)

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}
	if env == "TEST" {
		v.SetDefault("testMode", true)
	}

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(Getwd(), "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}

	// e.g. PROD_DATABASE_HOST -> database.host
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Config{
		Env:                       env,
		Build:                     v.GetString("build"),
		Debug:                     v.GetBool("debug"),
		TestMode:                  v.GetBool("testMode"),
		AppName:                   v.GetString("appName"),
		SecretKey:                 v.GetString("secretKey"),
		FrontendBaseURL:           v.GetString("frontendBaseURL"),
		RollbarToken:              v.GetString("rollbarToken"),
		SendgridApiKey:            v.GetString("sendgridApiKey"),
		PasswordResetTimeoutDelta: v.GetDuration("passwordResetTimeoutDelta"),
		defaultFromEmail:          v.GetString("defaultFromEmail"),
		Server: ServerConfig{
			Host:                      v.GetString("server.host"),
			Port:                      v.GetInt("server.port"),
			DebugHost:                 v.GetString("server.debugHost"),
			ShutdownTimeout:           v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwtRefreshExpirationDelta"),
			RateLimit:                 v.GetFloat64("server.rateLimit"),
			RateBurst:                 v.GetInt("server.rateBurst"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetInt("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
		},
		Gamification: GamificationConfig{
			LevelsFile:          v.GetString("gamification.levelsFile"),
			RankingMode:         v.GetString("gamification.rankingMode"),
			AttendanceXp:        v.GetInt("gamification.attendanceXp"),
			LateAttendanceXp:    v.GetInt("gamification.lateAttendanceXp"),
			AssignmentXp:        v.GetInt("gamification.assignmentXp"),
			LateAssignmentXp:    v.GetInt("gamification.lateAssignmentXp"),
			StreakGraceDays:     v.GetInt("gamification.streakGraceDays"),
			StreakResetSchedule: v.GetString("gamification.streakResetSchedule"),
			LeaderboardLimit:    v.GetInt("gamification.leaderboardLimit"),
		},
	}
}

// NewTestConfig returns a configuration suitable for tests; it never touches the environment.
func NewTestConfig() *Config {
	return &Config{
		Env:                       "TEST",
		Build:                     "test",
		TestMode:                  true,
		AppName:                   "Guru Digital Pelangi",
		SecretKey:                 "secret",
		FrontendBaseURL:           "http://localhost:5173",
		PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
		defaultFromEmail:          "noreply@localhost",
		Server: ServerConfig{
			JWTExpirationDelta:        time.Hour,
			JWTRefreshExpirationDelta: 24 * time.Hour,
			RateLimit:                 1000,
			RateBurst:                 1000,
		},
		Gamification: GamificationConfig{
			RankingMode:         "sequential",
			AttendanceXp:        10,
			LateAttendanceXp:    5,
			AssignmentXp:        20,
			LateAssignmentXp:    10,
			StreakGraceDays:     2,
			StreakResetSchedule: "0 1 * * *",
			LeaderboardLimit:    50,
		},
	}
}
