package echoapi_test

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/xuri/excelize/v2"

	"github.com/gurudigital/pelangi/core"
	"github.com/gurudigital/pelangi/core/gamification"
	"github.com/gurudigital/pelangi/core/school"
	"github.com/gurudigital/pelangi/core/user"
	exportsvc "github.com/gurudigital/pelangi/services/export"
	"github.com/gurudigital/pelangi/testutil"
)

type fixtures struct {
	teacher, admin, pupil user.User
	classA, classB        school.Class
	ani, budi, citra, dewi school.Student
}

// seed creates Ani (A, 300 XP), Budi (A, 120 XP), Citra (B, 300 XP) and Dewi (A, no XP).
func seed(t *testing.T, app *testApp) fixtures {
	t.Helper()

	var f fixtures
	f.teacher = testutil.CreateUser(t, app.usrRepo, "Guru", "guru01", "guru@test.id", "", []string{user.RoleTeacher}, true)
	f.admin = testutil.CreateUser(t, app.usrRepo, "Admin", "admin01", "admin@test.id", "", []string{user.RoleAdmin}, true)
	f.pupil = testutil.CreateUser(t, app.usrRepo, "Murid", "murid01", "murid@test.id", "", []string{user.RoleStudent}, true)
	f.classA = testutil.CreateClass(t, app.schRepo, "X IPA 1")
	f.classB = testutil.CreateClass(t, app.schRepo, "X IPA 2")
	f.ani = testutil.CreateStudent(t, app.schRepo, "Ani", f.classA.ID)
	f.budi = testutil.CreateStudent(t, app.schRepo, "Budi", f.classA.ID)
	f.citra = testutil.CreateStudent(t, app.schRepo, "Citra", f.classB.ID)
	f.dewi = testutil.CreateStudent(t, app.schRepo, "Dewi", f.classA.ID)

	award(t, app, f.ani.ID, 200)
	award(t, app, f.ani.ID, 100)
	award(t, app, f.budi.ID, 120)
	award(t, app, f.citra.ID, 300)
	return f
}

func award(t *testing.T, app *testApp, studentID string, amount int) gamification.AwardResult {
	t.Helper()

	res, err := app.gmSvc.AwardXp(context.Background(), gamification.Award{
		StudentID: studentID, Amount: amount, Source: gamification.SourceManual,
	})
	if err != nil {
		t.Fatalf("AwardXp() failed: %v", err)
	}
	return res
}

// standings renders a leaderboard as "name:rank" pairs.
func standings(entries []gamification.LeaderboardEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, fmt.Sprintf("%s:%d", e.FullName, e.Rank))
	}
	return out
}

func Test_gamificationApi_levels(t *testing.T) {
	app := setup(t)
	f := seed(t, app)

	app.run(t, []httpTest{
		{name: "Auth required", path: "/v1/levels", wantCode: http.StatusUnauthorized, wantData: marshalObj(t, errMissingToken)},
		{name: "Levels", path: "/v1/levels", token: app.token(t, f.pupil), wantData: marshalObj(t, app.gmSvc.Levels())},
	})
}

func Test_gamificationApi_leaderboard(t *testing.T) {
	tests := []struct {
		name     string
		mode     string
		path     func(f fixtures) string
		wantCode int
		want     []string
	}{
		{
			name: "global", path: func(fixtures) string { return "/v1/leaderboard" },
			want: []string{"Ani:1", "Citra:2", "Budi:3"},
		},
		{
			name: "global (competition)", mode: string(gamification.RankCompetition),
			path: func(fixtures) string { return "/v1/leaderboard" },
			want: []string{"Ani:1", "Citra:1", "Budi:3"},
		},
		{
			name: "limit", path: func(fixtures) string { return "/v1/leaderboard?limit=2" },
			want: []string{"Ani:1", "Citra:2"},
		},
		{
			name: "class filter", path: func(f fixtures) string { return "/v1/leaderboard?class_id=" + f.classA.ID },
			want: []string{"Ani:1", "Budi:2"},
		},
		{
			name: "class", path: func(f fixtures) string { return "/v1/classes/" + f.classB.ID + "/leaderboard" },
			want: []string{"Citra:1"},
		},
		{
			name: "class (limit)", path: func(f fixtures) string { return "/v1/classes/" + f.classA.ID + "/leaderboard?limit=1" },
			want: []string{"Ani:1"},
		},
		{
			name: "class (unknown)", path: func(fixtures) string { return "/v1/classes/lol/leaderboard" },
			wantCode: http.StatusNotFound,
		},
		{
			name: "class filter (unknown)", path: func(fixtures) string { return "/v1/leaderboard?class_id=lol" },
			wantCode: http.StatusNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := setup(t, func(conf *core.Config) {
				if tt.mode != "" {
					conf.Gamification.RankingMode = tt.mode
				}
			})
			f := seed(t, app)
			if tt.wantCode == 0 {
				tt.wantCode = http.StatusOK
			}

			req, rec := newAuthRequest(http.MethodGet, tt.path(f), app.token(t, f.pupil))
			app.server.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("leaderboard() code = %v; want %v; body %v", rec.Code, tt.wantCode, rec.Body.String())
			}
			if tt.want != nil {
				var got []gamification.LeaderboardEntry
				decode(t, rec, &got)
				assert.Equal(t, tt.want, standings(got))
			}
		})
	}
}

func Test_gamificationApi_leaderboardUnavailable(t *testing.T) {
	app := setup(t)
	f := seed(t, app)

	table, _ := gamification.DefaultLevelTable()
	svc, err := gamification.NewService(
		brokenRepo{app.gmRepo}, app.schoolSvc, table, app.conf, nil, nil, testutil.Logger{T: t},
	)
	if err != nil {
		t.Fatalf("gamification.NewService() failed: %v", err)
	}
	server := app.withGamification(svc)

	req, rec := newAuthRequest(http.MethodGet, "/v1/leaderboard", app.token(t, f.pupil))
	server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
}

type brokenRepo struct {
	gamification.Repository
}

func (brokenRepo) QueryLeaderboard(context.Context, string) ([]gamification.LeaderboardEntry, error) {
	return nil, errors.New("dial tcp: connection refused")
}

func Test_gamificationApi_export(t *testing.T) {
	app := setup(t)
	f := seed(t, app)

	t.Run("Teacher required", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/leaderboard/export", app.token(t, f.pupil))
		app.server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("Class export", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/leaderboard/export?class_id="+f.classA.ID, app.token(t, f.teacher))
		app.server.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("exportLeaderboard() code = %v; want %v; body %v", rec.Code, http.StatusOK, rec.Body.String())
		}
		assert.Equal(t, exportsvc.XlsxContentType, rec.Header().Get("Content-Type"))
		assert.Contains(t, rec.Header().Get("Content-Disposition"), "leaderboard-"+f.classA.ID+".xlsx")

		book, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
		if err != nil {
			t.Fatalf("excelize.OpenReader() failed: %v", err)
		}
		defer book.Close()

		rows, err := book.GetRows(exportsvc.LeaderboardSheet)
		if err != nil {
			t.Fatalf("GetRows() failed: %v", err)
		}
		if assert.Len(t, rows, 3) {
			assert.Equal(t, "Ani", rows[1][1])
			assert.Equal(t, "Budi", rows[2][1])
		}
	})
}

func Test_gamificationApi_student(t *testing.T) {
	app := setup(t)
	f := seed(t, app)
	token := app.token(t, f.pupil)

	t.Run("progress", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/students/"+f.budi.ID+"/progress", token)
		app.server.ServeHTTP(rec, req)

		var got gamification.Progress
		decode(t, rec, &got)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 2, got.Level)
		assert.Equal(t, 120, got.TotalXp)
		assert.Equal(t, 20, got.ProgressXp)
		assert.Equal(t, 200, got.RequiredXp)
		assert.InDelta(t, 10.0, got.Percentage, 0.001)
	})

	t.Run("profile", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/students/"+f.ani.ID+"/profile", token)
		app.server.ServeHTTP(rec, req)

		var got gamification.Profile
		decode(t, rec, &got)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Ani", got.FullName)
		assert.Equal(t, 300, got.TotalXp)
		assert.Equal(t, 3, got.Level)
		assert.Equal(t, f.classA.ID, got.ClassID)
		assert.Equal(t, f.classA.Name, got.ClassName)
		if assert.NotNil(t, got.GlobalRank) && assert.NotNil(t, got.ClassRank) {
			assert.Equal(t, 1, *got.GlobalRank)
			assert.Equal(t, 1, *got.ClassRank)
		}
	})

	t.Run("profile (no xp yet)", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/students/"+f.dewi.ID+"/profile", token)
		app.server.ServeHTTP(rec, req)

		var got gamification.Profile
		decode(t, rec, &got)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, got.Level)
		assert.Nil(t, got.GlobalRank)
		assert.Nil(t, got.ClassRank)
		assert.Empty(t, got.Badges)
	})

	one, two, three := 1, 2, 3
	app.run(t, []httpTest{
		{
			name: "rank", path: "/v1/students/" + f.budi.ID + "/rank", token: token,
			wantData: marshalObj(t, map[string]interface{}{"student_id": f.budi.ID, "rank": three}),
		},
		{
			name: "rank in class", path: "/v1/students/" + f.budi.ID + "/rank?class_id=" + f.classA.ID, token: token,
			wantData: marshalObj(t, map[string]interface{}{"student_id": f.budi.ID, "class_id": f.classA.ID, "rank": two}),
		},
		{
			name: "rank in other class", path: "/v1/students/" + f.citra.ID + "/rank?class_id=" + f.classB.ID, token: token,
			wantData: marshalObj(t, map[string]interface{}{"student_id": f.citra.ID, "class_id": f.classB.ID, "rank": one}),
		},
		{
			name: "unranked", path: "/v1/students/" + f.dewi.ID + "/rank", token: token,
			wantData: marshalObj(t, map[string]interface{}{"student_id": f.dewi.ID, "rank": nil}),
		},
		{
			name: "unknown student", path: "/v1/students/lol/rank", token: token,
			wantCode: http.StatusNotFound, wantData: marshalObj(t, httpErr{Error: "student not found"}),
		},
		{
			name: "unknown student profile", path: "/v1/students/lol/profile", token: token,
			wantCode: http.StatusNotFound, wantData: marshalObj(t, httpErr{Error: "student not found"}),
		},
	})

	t.Run("xp events", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/students/"+f.ani.ID+"/xp-events", token)
		app.server.ServeHTTP(rec, req)
		var all []gamification.XpEvent
		decode(t, rec, &all)
		if assert.Len(t, all, 2) {
			assert.Equal(t, 100, all[0].Amount) // newest first
		}

		req, rec = newAuthRequest(http.MethodGet, "/v1/students/"+f.ani.ID+"/xp-events?limit=1", token)
		app.server.ServeHTTP(rec, req)
		var limited []gamification.XpEvent
		decode(t, rec, &limited)
		assert.Len(t, limited, 1)
	})
}

func Test_gamificationApi_awardXp(t *testing.T) {
	app := setup(t)
	f := seed(t, app)
	teacherToken := app.token(t, f.teacher)

	path := func(id string) string { return "/v1/students/" + id + "/xp" }

	app.run(t, []httpTest{
		{
			name: "Auth required", method: http.MethodPost, path: path(f.dewi.ID),
			wantCode: http.StatusUnauthorized, wantData: marshalObj(t, errMissingToken),
		},
		{
			name: "Teacher required", method: http.MethodPost, path: path(f.dewi.ID), token: app.token(t, f.pupil),
			body:     marshalObj(t, gamification.Award{Amount: 10}),
			wantCode: http.StatusForbidden, wantData: marshalObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "Zero amount", method: http.MethodPost, path: path(f.dewi.ID), token: teacherToken,
			body:     marshalObj(t, gamification.Award{}),
			wantCode: http.StatusBadRequest, wantData: marshalObj(t, map[string]string{"amount": "this field is required"}),
		},
		{
			name: "Unknown source", method: http.MethodPost, path: path(f.dewi.ID), token: teacherToken,
			body:     marshalObj(t, gamification.Award{Amount: 10, Source: "lol"}),
			wantCode: http.StatusBadRequest, wantData: marshalObj(t, map[string]string{"source": "invalid XP source"}),
		},
		{
			name: "Unknown student", method: http.MethodPost, path: path("lol"), token: teacherToken,
			body:     marshalObj(t, gamification.Award{Amount: 10}),
			wantCode: http.StatusNotFound, wantData: marshalObj(t, httpErr{Error: "student not found"}),
		},
	})

	tests := []struct {
		name          string
		amount        int
		wantTotal     int
		wantLevel     int
		wantLeveledUp bool
	}{
		{name: "first award", amount: 150, wantTotal: 150, wantLevel: 2, wantLeveledUp: true},
		{name: "same level", amount: 50, wantTotal: 200, wantLevel: 2},
		{name: "level up", amount: 100, wantTotal: 300, wantLevel: 3, wantLeveledUp: true},
		{name: "penalty clamped at zero", amount: -1000, wantTotal: 0, wantLevel: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := marshalObj(t, gamification.Award{Amount: tt.amount, Reason: "  kuis  "})
			req, rec := newAuthRequest(http.MethodPost, path(f.dewi.ID), teacherToken, body)
			app.server.ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("awardXp() code = %v; want %v; body %v", rec.Code, http.StatusOK, rec.Body.String())
			}
			var got gamification.AwardResult
			decode(t, rec, &got)
			assert.Equal(t, tt.wantTotal, got.StudentXp.TotalXp)
			assert.Equal(t, tt.wantLevel, got.StudentXp.Level)
			assert.Equal(t, tt.wantLeveledUp, got.LeveledUp)
			assert.Equal(t, tt.amount, got.Event.Amount)
			assert.Equal(t, "kuis", got.Event.Reason)
			assert.Equal(t, gamification.SourceManual, got.Event.Source)
			if assert.NotNil(t, got.Event.AwardedBy) {
				assert.Equal(t, f.teacher.ID, *got.Event.AwardedBy)
			}
		})
	}
}

func Test_gamificationApi_streaks(t *testing.T) {
	app := setup(t)
	f := seed(t, app)
	token := app.token(t, f.teacher)

	app.run(t, []httpTest{
		{
			name: "Invalid status", method: http.MethodPost, path: "/v1/students/" + f.dewi.ID + "/attendance", token: token,
			body:     marshalObj(t, map[string]string{"status": "lol"}),
			wantCode: http.StatusBadRequest, wantData: marshalObj(t, map[string]string{"status": "status must be one of present, late or absent"}),
		},
		{
			name: "Missing on_time", method: http.MethodPost, path: "/v1/students/" + f.dewi.ID + "/submissions", token: token,
			body:     marshalObj(t, map[string]string{"assignment": "PR 1"}),
			wantCode: http.StatusBadRequest, wantData: marshalObj(t, map[string]string{"on_time": "this field is required"}),
		},
	})

	yesterday := time.Now().AddDate(0, 0, -1)
	tests := []struct {
		name       string
		path       string
		body       interface{}
		wantStreak int
		wantXp     int // 0: no award
	}{
		{
			name: "present yesterday", path: "/attendance",
			body:       map[string]interface{}{"status": "present", "at": yesterday},
			wantStreak: 1, wantXp: 10,
		},
		{name: "late today", path: "/attendance", body: map[string]interface{}{"status": "late"}, wantStreak: 2, wantXp: 5},
		{name: "present again today", path: "/attendance", body: map[string]interface{}{"status": "present"}, wantStreak: 2},
		{name: "absent", path: "/attendance", body: map[string]interface{}{"status": "absent"}, wantStreak: 0},
		{name: "on time", path: "/submissions", body: map[string]interface{}{"on_time": true}, wantStreak: 1, wantXp: 20},
		{name: "on time again", path: "/submissions", body: map[string]interface{}{"on_time": true}, wantStreak: 2, wantXp: 20},
		{name: "late submission", path: "/submissions", body: map[string]interface{}{"on_time": false}, wantStreak: 0, wantXp: 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodPost, "/v1/students/"+f.dewi.ID+tt.path, token, marshalObj(t, tt.body))
			app.server.ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("record() code = %v; want %v; body %v", rec.Code, http.StatusOK, rec.Body.String())
			}
			var got gamification.StreakResult
			decode(t, rec, &got)

			streak := got.StudentXp.AttendanceStreak
			if tt.path == "/submissions" {
				streak = got.StudentXp.AssignmentStreak
			}
			assert.Equal(t, tt.wantStreak, streak)
			if tt.wantXp == 0 {
				assert.Nil(t, got.Award)
			} else if assert.NotNil(t, got.Award) {
				assert.Equal(t, tt.wantXp, got.Award.Event.Amount)
			}
		})
	}
}

func Test_gamificationApi_badges(t *testing.T) {
	app := setup(t)
	f := seed(t, app)
	adminToken := app.token(t, f.admin)
	teacherToken := app.token(t, f.teacher)

	app.run(t, []httpTest{
		{
			name: "Create (admin required)", method: http.MethodPost, path: "/v1/badges", token: teacherToken,
			body:     marshalObj(t, gamification.NewBadge{Code: "rajin", Name: "Rajin"}),
			wantCode: http.StatusForbidden, wantData: marshalObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "Create (invalid code)", method: http.MethodPost, path: "/v1/badges", token: adminToken,
			body: marshalObj(t, gamification.NewBadge{Code: "ra-jin", Name: "Rajin"}), wantCode: http.StatusBadRequest,
		},
		{
			name: "Create", method: http.MethodPost, path: "/v1/badges", token: adminToken,
			body: marshalObj(t, gamification.NewBadge{Code: " RAJIN ", Name: "Rajin", XpReward: 50}), wantCode: http.StatusCreated,
		},
		{
			name: "Create (duplicate)", method: http.MethodPost, path: "/v1/badges", token: adminToken,
			body:     marshalObj(t, gamification.NewBadge{Code: "rajin", Name: "Rajin lagi"}),
			wantCode: http.StatusBadRequest, wantData: marshalObj(t, map[string]string{"code": gamification.ErrBadgeExists.Error()}),
		},
		{
			name: "Award (unknown badge)", method: http.MethodPost, path: "/v1/students/" + f.budi.ID + "/badges", token: teacherToken,
			body:     marshalObj(t, gamification.BadgeAward{Badge: "lol"}),
			wantCode: http.StatusNotFound, wantData: marshalObj(t, httpErr{Error: gamification.ErrBadgeNotFound.Error()}),
		},
		{
			name: "Award (unknown student)", method: http.MethodPost, path: "/v1/students/lol/badges", token: teacherToken,
			body:     marshalObj(t, gamification.BadgeAward{Badge: "rajin"}),
			wantCode: http.StatusNotFound, wantData: marshalObj(t, httpErr{Error: "student not found"}),
		},
	})

	t.Run("Award", func(t *testing.T) {
		req, rec := newAuthRequest(
			http.MethodPost, "/v1/students/"+f.budi.ID+"/badges", teacherToken, marshalObj(t, gamification.BadgeAward{Badge: "rajin"}),
		)
		app.server.ServeHTTP(rec, req)

		if rec.Code != http.StatusCreated {
			t.Fatalf("awardBadge() code = %v; want %v; body %v", rec.Code, http.StatusCreated, rec.Body.String())
		}
		var got struct {
			Badge gamification.StudentBadge  `json:"badge"`
			Award *gamification.AwardResult `json:"award"`
		}
		decode(t, rec, &got)
		assert.Equal(t, "rajin", got.Badge.Code)
		if assert.NotNil(t, got.Award) {
			assert.Equal(t, 170, got.Award.StudentXp.TotalXp)
			assert.Equal(t, gamification.SourceBadge, got.Award.Event.Source)
		}
	})

	app.run(t, []httpTest{
		{
			name: "Award (twice)", method: http.MethodPost, path: "/v1/students/" + f.budi.ID + "/badges", token: teacherToken,
			body:     marshalObj(t, gamification.BadgeAward{Badge: "rajin"}),
			wantCode: http.StatusConflict, wantData: marshalObj(t, httpErr{Error: gamification.ErrBadgeAlreadyAwarded.Error()}),
		},
	})

	t.Run("List", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/badges", app.token(t, f.pupil))
		app.server.ServeHTTP(rec, req)

		var got []gamification.Badge
		decode(t, rec, &got)
		if assert.Len(t, got, 1) {
			assert.Equal(t, 50, got[0].XpReward)
		}
	})

	t.Run("Profile lists the badge", func(t *testing.T) {
		p, err := app.gmSvc.Profile(context.Background(), f.budi.ID)
		if err != nil {
			t.Fatalf("Profile() failed: %v", err)
		}
		assert.Equal(t, 1, p.BadgeCount)
	})
}
