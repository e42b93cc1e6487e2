package echoapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	echoapi "github.com/gurudigital/pelangi/apps/api/echo"
	"github.com/gurudigital/pelangi/core"
	"github.com/gurudigital/pelangi/core/gamification"
	"github.com/gurudigital/pelangi/core/school"
	"github.com/gurudigital/pelangi/core/user"
	emailsvc "github.com/gurudigital/pelangi/services/email"
	inmemdb "github.com/gurudigital/pelangi/storage/database/inmem"
	"github.com/gurudigital/pelangi/testutil"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type testApp struct {
	conf      *core.Config
	server    *echoapi.Server
	usrRepo   user.Repository
	schRepo   school.Repository
	gmRepo    gamification.Repository
	mailSvc   *emailsvc.ConsoleServiceMock
	gmSvc     *gamification.Service
	schoolSvc *school.Service
	deps      echoapi.ServerDeps
}

func setup(t *testing.T, configure ...func(*core.Config)) *testApp {
	t.Helper()

	conf := core.NewTestConfig()
	for _, fn := range configure {
		fn(conf)
	}
	logger := testutil.Logger{T: t}

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	gamification.InitValidators(validate, translator)
	user.LoadCommonPasswords(logger)
	core.ParseEmailTemplates(conf, logger)

	// set up DB & repos
	db := inmemdb.Open()
	app := &testApp{
		conf:    conf,
		usrRepo: inmemdb.NewUserRepository(db),
		schRepo: inmemdb.NewSchoolRepository(db),
		gmRepo:  inmemdb.NewGamificationRepository(db),
		mailSvc: emailsvc.NewConsoleServiceMock(conf, logger),
	}

	// set up services
	table, err := gamification.DefaultLevelTable()
	if err != nil {
		t.Fatalf("DefaultLevelTable() failed: %v", err)
	}
	app.schoolSvc = school.NewService(app.schRepo)
	app.gmSvc, err = gamification.NewService(app.gmRepo, app.schoolSvc, table, conf, nil, nil, logger)
	if err != nil {
		t.Fatalf("gamification.NewService() failed: %v", err)
	}

	// set up server
	app.deps = echoapi.ServerDeps{
		Conf:            conf,
		Logger:          logger,
		UserSvc:         user.NewService(app.usrRepo, app.mailSvc, conf, logger),
		SchoolSvc:       app.schoolSvc,
		GamificationSvc: app.gmSvc,
		Validate:        validate,
		Translator:      translator,
	}
	app.server = echoapi.NewServer(app.deps)
	return app
}

// withGamification returns a server backed by another gamification service.
func (app *testApp) withGamification(svc gamification.ServiceInterface) *echoapi.Server {
	deps := app.deps
	deps.GamificationSvc = svc
	return echoapi.NewServer(deps)
}

func (app *testApp) token(t *testing.T, usr user.User) string {
	t.Helper()

	token, err := echoapi.GenerateToken(app.conf, usr)
	if err != nil {
		t.Fatalf("GenerateToken() failed: %v", err)
	}
	return token
}

// run serves every test case, defaulting to GET and 200.
func (app *testApp) run(t *testing.T, tests []httpTest) {
	for _, tt := range tests {
		if tt.method == "" {
			tt.method = http.MethodGet
		}
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.server.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func marshalObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshalObj() failed: %v", err)
	}
	return data
}

func marshalList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marshalList() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

// checkCodeAndData compares the response; a nil wantData only checks the code.
func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()

	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v; body %v", rec.Code, tt.wantCode, rec.Body.String())
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), "decoding response")
}
