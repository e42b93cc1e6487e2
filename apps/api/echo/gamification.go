package echoapi

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/gurudigital/pelangi/core/gamification"
	"github.com/gurudigital/pelangi/core/school"
	exportsvc "github.com/gurudigital/pelangi/services/export"
)

type gamificationApi struct {
	svc       gamification.ServiceInterface
	schoolSvc school.ServiceInterface
	validate  *validator.Validate
}

func registerGamificationAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc gamification.ServiceInterface,
	schoolSvc school.ServiceInterface,
	validate *validator.Validate,
) {
	api := gamificationApi{svc: svc, schoolSvc: schoolSvc, validate: validate}

	// routes are registered one by one: a middleware group on /students/:id would shadow GET /students/:id
	teacher := teacherMiddleware()

	g.GET("/levels", api.levels, jwt)
	g.GET("/leaderboard", api.leaderboard, jwt)
	g.GET("/leaderboard/export", api.exportLeaderboard, jwt, teacher)
	g.GET("/classes/:id/leaderboard", api.classLeaderboard, jwt)

	g.GET("/students/:id/profile", api.profile, jwt)
	g.GET("/students/:id/progress", api.progress, jwt)
	g.GET("/students/:id/rank", api.rank, jwt)
	g.GET("/students/:id/xp-events", api.xpEvents, jwt)
	g.POST("/students/:id/xp", api.awardXp, jwt, teacher)
	g.POST("/students/:id/attendance", api.recordAttendance, jwt, teacher)
	g.POST("/students/:id/submissions", api.recordSubmission, jwt, teacher)
	g.POST("/students/:id/badges", api.awardBadge, jwt, teacher)

	g.GET("/badges", api.badges, jwt)
	g.POST("/badges", api.createBadge, jwt, adminMiddleware())
}

func (api *gamificationApi) levels(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, api.svc.Levels())
}

func (api *gamificationApi) bindLeaderboardFilter(ctx echo.Context) (gamification.LeaderboardFilter, error) {
	var filter gamification.LeaderboardFilter
	if err := ctx.Bind(&filter); err != nil {
		return filter, echo.NewHTTPError(http.StatusBadRequest, "invalid leaderboard filter")
	}
	if filter.ClassID != "" {
		if _, err := api.schoolSvc.GetClass(ctx.Request().Context(), filter.ClassID); err != nil {
			return filter, errors.Wrap(err, "finding class by ID")
		}
	}
	return filter, nil
}

func (api *gamificationApi) leaderboard(ctx echo.Context) error {
	filter, err := api.bindLeaderboardFilter(ctx)
	if err != nil {
		return err
	}
	entries, err := api.svc.Leaderboard(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying leaderboard")
	}
	return ctx.JSON(http.StatusOK, nonNilEntries(entries))
}

func (api *gamificationApi) classLeaderboard(ctx echo.Context) error {
	if _, err := api.schoolSvc.GetClass(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "finding class by ID")
	}
	filter := gamification.LeaderboardFilter{ClassID: ctx.Param("id"), Limit: queryLimit(ctx)}

	entries, err := api.svc.Leaderboard(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying class leaderboard")
	}
	return ctx.JSON(http.StatusOK, nonNilEntries(entries))
}

func (api *gamificationApi) exportLeaderboard(ctx echo.Context) error {
	filter, err := api.bindLeaderboardFilter(ctx)
	if err != nil {
		return err
	}
	entries, err := api.svc.Leaderboard(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying leaderboard")
	}

	var buf bytes.Buffer
	if err := exportsvc.WriteLeaderboard(&buf, entries); err != nil {
		return errors.Wrap(err, "exporting leaderboard")
	}

	filename := "leaderboard.xlsx"
	if filter.ClassID != "" {
		filename = fmt.Sprintf("leaderboard-%s.xlsx", filter.ClassID)
	}
	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return ctx.Blob(http.StatusOK, exportsvc.XlsxContentType, buf.Bytes())
}

func (api *gamificationApi) profile(ctx echo.Context) error {
	p, err := api.svc.Profile(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting student profile")
	}
	if p.Badges == nil {
		p.Badges = []gamification.StudentBadge{}
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *gamificationApi) progress(ctx echo.Context) error {
	p, err := api.svc.Progress(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting student progress")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *gamificationApi) rank(ctx echo.Context) error {
	classID := ctx.QueryParam("class_id")
	if classID != "" {
		if _, err := api.schoolSvc.GetClass(ctx.Request().Context(), classID); err != nil {
			return errors.Wrap(err, "finding class by ID")
		}
	}

	rank, ok, err := api.svc.StudentRank(ctx.Request().Context(), ctx.Param("id"), classID)
	if err != nil {
		return errors.Wrap(err, "getting student rank")
	}
	resp := RankResponse{StudentID: ctx.Param("id"), ClassID: classID}
	if ok {
		resp.Rank = &rank
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *gamificationApi) xpEvents(ctx echo.Context) error {
	events, err := api.svc.XpEvents(ctx.Request().Context(), ctx.Param("id"), queryLimit(ctx))
	if err != nil {
		return errors.Wrap(err, "querying xp events")
	}
	if events == nil {
		events = []gamification.XpEvent{}
	}
	return ctx.JSON(http.StatusOK, events)
}

func (api *gamificationApi) awardXp(ctx echo.Context) error {
	var data gamification.Award
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Award")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	data.StudentID = ctx.Param("id")
	data.AwardedBy = claims.Subject

	res, err := api.svc.AwardXp(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "awarding xp")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *gamificationApi) recordAttendance(ctx echo.Context) error {
	var data gamification.AttendanceRecord
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AttendanceRecord")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	data.StudentID = ctx.Param("id")
	data.AwardedBy = claims.Subject

	res, err := api.svc.RecordAttendance(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "recording attendance")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *gamificationApi) recordSubmission(ctx echo.Context) error {
	var data gamification.SubmissionRecord
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SubmissionRecord")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	data.StudentID = ctx.Param("id")
	data.AwardedBy = claims.Subject

	res, err := api.svc.RecordSubmission(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "recording submission")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *gamificationApi) badges(ctx echo.Context) error {
	badges, err := api.svc.Badges(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying badges")
	}
	if badges == nil {
		badges = []gamification.Badge{}
	}
	return ctx.JSON(http.StatusOK, badges)
}

func (api *gamificationApi) createBadge(ctx echo.Context) error {
	var data gamification.NewBadge
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewBadge")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	badge, err := api.svc.CreateBadge(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating badge")
	}
	return ctx.JSON(http.StatusCreated, badge)
}

func (api *gamificationApi) awardBadge(ctx echo.Context) error {
	var data gamification.BadgeAward
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to BadgeAward")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	data.StudentID = ctx.Param("id")
	data.AwardedBy = claims.Subject

	sb, award, err := api.svc.AwardBadge(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "awarding badge")
	}
	return ctx.JSON(http.StatusCreated, BadgeAwardResponse{Badge: sb, Award: award})
}

func nonNilEntries(entries []gamification.LeaderboardEntry) []gamification.LeaderboardEntry {
	if entries == nil {
		return []gamification.LeaderboardEntry{}
	}
	return entries
}

type (
	RankResponse struct {
		StudentID string `json:"student_id"`
		ClassID   string `json:"class_id,omitempty"`
		Rank      *int   `json:"rank"`
	}

	BadgeAwardResponse struct {
		Badge gamification.StudentBadge  `json:"badge"`
		Award *gamification.AwardResult `json:"award,omitempty"`
	}
)
