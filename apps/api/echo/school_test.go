package echoapi_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/gurudigital/pelangi/core/school"
	"github.com/gurudigital/pelangi/core/user"
	"github.com/gurudigital/pelangi/testutil"
)

func Test_schoolApi_classes(t *testing.T) {
	app := setup(t)

	admin := testutil.CreateUser(t, app.usrRepo, "Admin", "admin01", "admin@test.id", "", []string{user.RoleAdmin}, true)
	teacher := testutil.CreateUser(t, app.usrRepo, "Guru", "guru01", "guru@test.id", "", []string{user.RoleTeacher}, true)
	class := testutil.CreateClass(t, app.schRepo, "X IPA 1")

	adminToken := app.token(t, admin)
	teacherToken := app.token(t, teacher)

	app.run(t, []httpTest{
		{name: "Auth required", path: "/v1/classes", wantCode: http.StatusUnauthorized, wantData: marshalObj(t, errMissingToken)},
		{name: "List", path: "/v1/classes", token: teacherToken, wantData: marshalList(t, class)},
		{name: "Retrieve", path: "/v1/classes/" + class.ID, token: teacherToken, wantData: marshalObj(t, class)},
		{
			name: "Retrieve (unknown)", path: "/v1/classes/lol", token: teacherToken,
			wantCode: http.StatusNotFound, wantData: marshalObj(t, httpErr{Error: "class not found"}),
		},
		{
			name: "Create (admin required)", method: http.MethodPost, path: "/v1/classes", token: teacherToken,
			body:     marshalObj(t, school.NewClass{Name: "X IPA 2"}),
			wantCode: http.StatusForbidden, wantData: marshalObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "Create (blank name)", method: http.MethodPost, path: "/v1/classes", token: adminToken,
			body:     marshalObj(t, school.NewClass{Name: "   "}),
			wantCode: http.StatusBadRequest, wantData: marshalObj(t, map[string]string{"name": "this field is required"}),
		},
		{
			name: "Create (duplicate)", method: http.MethodPost, path: "/v1/classes", token: adminToken,
			body:     marshalObj(t, school.NewClass{Name: "x ipa 1"}),
			wantCode: http.StatusBadRequest, wantData: marshalObj(t, map[string]string{"name": school.ErrClassExists.Error()}),
		},
		{
			name: "Create", method: http.MethodPost, path: "/v1/classes", token: adminToken,
			body: marshalObj(t, school.NewClass{Name: " X IPA 2 ", AcademicYear: "2025/2026"}), wantCode: http.StatusCreated,
		},
	})

	classes, err := app.schoolSvc.Classes(context.Background())
	if err != nil {
		t.Fatalf("Classes() failed: %v", err)
	}
	if assert.Len(t, classes, 2) {
		assert.Equal(t, "X IPA 2", classes[1].Name)
	}
}

func Test_schoolApi_students(t *testing.T) {
	app := setup(t)

	admin := testutil.CreateUser(t, app.usrRepo, "Admin", "admin01", "admin@test.id", "", []string{user.RoleAdmin}, true)
	class := testutil.CreateClass(t, app.schRepo, "X IPA 1")
	ani := testutil.CreateStudent(t, app.schRepo, "Ani", class.ID)
	budi := testutil.CreateStudent(t, app.schRepo, "Budi", "")

	ani, _ = app.schoolSvc.GetStudent(context.Background(), ani.ID)
	adminToken := app.token(t, admin)

	app.run(t, []httpTest{
		{name: "Auth required", path: "/v1/students", wantCode: http.StatusUnauthorized, wantData: marshalObj(t, errMissingToken)},
		{name: "List", path: "/v1/students", token: adminToken, wantData: marshalList(t, ani, budi)},
		{name: "List by class", path: "/v1/students?class_id=" + class.ID, token: adminToken, wantData: marshalList(t, ani)},
		{name: "Search", path: "/v1/students?search=BUD", token: adminToken, wantData: marshalList(t, budi)},
		{name: "Retrieve", path: "/v1/students/" + ani.ID, token: adminToken, wantData: marshalObj(t, ani)},
		{
			name: "Retrieve (unknown)", path: "/v1/students/lol", token: adminToken,
			wantCode: http.StatusNotFound, wantData: marshalObj(t, httpErr{Error: "student not found"}),
		},
		{
			name: "Create (unknown class)", method: http.MethodPost, path: "/v1/students", token: adminToken,
			body:     marshalObj(t, school.NewStudent{FullName: "Citra", ClassID: uuid.New().String()}),
			wantCode: http.StatusBadRequest, wantData: marshalObj(t, map[string]string{"class_id": "class not found"}),
		},
		{
			name: "Create (invalid email)", method: http.MethodPost, path: "/v1/students", token: adminToken,
			body: marshalObj(t, school.NewStudent{FullName: "Citra", Email: "lol"}), wantCode: http.StatusBadRequest,
		},
	})

	t.Run("Create", func(t *testing.T) {
		body := marshalObj(t, school.NewStudent{FullName: " Citra ", Email: "CITRA@test.id", ClassID: class.ID})
		req, rec := newAuthRequest(http.MethodPost, "/v1/students", adminToken, body)
		app.server.ServeHTTP(rec, req)

		if rec.Code != http.StatusCreated {
			t.Fatalf("createStudent() code = %v; want %v; body %v", rec.Code, http.StatusCreated, rec.Body.String())
		}
		var got school.Student
		decode(t, rec, &got)
		assert.NotEmpty(t, got.ID)
		assert.Equal(t, "Citra", got.FullName)
		if assert.NotNil(t, got.Email) {
			assert.Equal(t, "citra@test.id", *got.Email)
		}
		if assert.NotNil(t, got.ClassName) {
			assert.Equal(t, class.Name, *got.ClassName)
		}
	})
}
