package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pot-code/curriculum/internal/curriculum"
	infra "github.com/pot-code/curriculum/internal/infrastructure"
	"github.com/pot-code/curriculum/internal/infrastructure/driver"
	"github.com/pot-code/curriculum/internal/infrastructure/uuid"
	"github.com/pot-code/curriculum/internal/user"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testServer struct {
	t   *testing.T
	app *echo.Echo
}

type course struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type lesson struct {
	ID          string `json:"id"`
	Order       int    `json:"order"`
	IsCompleted bool   `json:"is_completed"`
	Previous    string `json:"previous"`
	Next        string `json:"next"`
}

func newTestServer(t *testing.T, probes map[string]Probe) *testServer {
	option := new(infra.AppConfig)
	option.Env = infra.EnvProduction
	option.RequestTimeout = 10 * time.Second
	option.SessionTimeout = 30 * time.Minute
	option.SessionRefresh = 5 * time.Minute
	option.Security.JWTMethod = "HS256"
	option.Security.JWTSecret = "test-secret"
	option.Security.TokenName = "curriculum_token"

	var (
		kv     = driver.NewMemoryKV()
		idgen  = uuid.NewNanoIDGenerator(12)
		logger = zap.NewNop()
	)
	uu := user.NewUserUseCase(user.NewUserMemory(), idgen, kv, user.LockoutConfig{
		MaxAttempts:  3,
		RetryTimeout: time.Hour,
	})
	require.NoError(t, uu.EnsureAdmin(context.Background(), &user.UserModel{
		Username: "admin",
		Email:    "admin@example.com",
		Password: "admin-password",
	}))
	ws := infra.NewWebsocket(logger)
	cu := curriculum.NewUseCase(curriculum.NewMemoryRepository(), idgen, uu, ws, nil)

	app := NewServer(&Dependencies{
		Option:            option,
		KVStore:           kv,
		Probes:            probes,
		UserUseCase:       uu,
		CurriculumUseCase: cu,
		Websocket:         ws,
		Logger:            logger,
	})
	return &testServer{t: t, app: app}
}

func (ts *testServer) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(ts.t, err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.app.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) decode(rec *httptest.ResponseRecorder, v interface{}) {
	require.NoError(ts.t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func (ts *testServer) signIn(username, password string) string {
	rec := ts.do(http.MethodPost, "/api/v1/user/login", "", map[string]string{
		"username": username,
		"password": password,
	})
	require.Equal(ts.t, http.StatusOK, rec.Code, rec.Body.String())
	var result struct {
		Token string `json:"token"`
	}
	ts.decode(rec, &result)
	require.NotEmpty(ts.t, result.Token)
	return result.Token
}

func (ts *testServer) signUp(username string) string {
	rec := ts.do(http.MethodPost, "/api/v1/user/sign-up", "", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": "learner-password",
	})
	require.Equal(ts.t, http.StatusCreated, rec.Code, rec.Body.String())
	return ts.signIn(username, "learner-password")
}

func TestCourseLifecycle(t *testing.T) {
	ts := newTestServer(t, nil)
	admin := ts.signIn("admin", "admin-password")
	learner := ts.signUp("learner")

	rec := ts.do(http.MethodPost, "/api/v1/courses", learner, map[string]string{"title": "Go"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(http.MethodPost, "/api/v1/courses", admin, map[string]string{"title": "Go"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var c course
	ts.decode(rec, &c)
	assert.Equal(t, "draft", c.Status)

	rec = ts.do(http.MethodPatch, "/api/v1/courses/"+c.ID+"/publish", admin, nil)
	assert.Equal(t, http.StatusConflict, rec.Code, "a course without lessons can not be published")

	var lessons []lesson
	for _, title := range []string{"one", "two", "three"} {
		rec = ts.do(http.MethodPost, "/api/v1/lessons", admin, map[string]interface{}{
			"course_id": c.ID,
			"title":     title,
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var l lesson
		ts.decode(rec, &l)
		lessons = append(lessons, l)
	}
	assert.Equal(t, []int{1, 2, 3}, []int{lessons[0].Order, lessons[1].Order, lessons[2].Order})

	rec = ts.do(http.MethodGet, "/api/v1/courses/"+c.ID, learner, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code, "drafts are hidden from learners")
	rec = ts.do(http.MethodPost, "/api/v1/courses/"+c.ID+"/enroll", learner, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(http.MethodPatch, "/api/v1/courses/"+c.ID+"/publish", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	ts.decode(rec, &c)
	assert.Equal(t, "published", c.Status)

	rec = ts.do(http.MethodPost, "/api/v1/lessons/"+lessons[0].ID+"/complete", learner, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code, "completion requires enrollment")

	rec = ts.do(http.MethodPost, "/api/v1/courses/"+c.ID+"/enroll", learner, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = ts.do(http.MethodPost, "/api/v1/courses/"+c.ID+"/enroll", learner, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code, "enroll is idempotent")

	rec = ts.do(http.MethodPost, "/api/v1/lessons/"+lessons[0].ID+"/complete", learner, nil)
	assert.Equal(t, http.StatusCreated, rec.Code)
	rec = ts.do(http.MethodPost, "/api/v1/lessons/"+lessons[0].ID+"/complete", learner, nil)
	assert.Equal(t, http.StatusOK, rec.Code, "completing twice keeps the first completion")

	rec = ts.do(http.MethodGet, "/api/v1/courses/"+c.ID+"/progress", learner, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var progress curriculum.ProgressModel
	ts.decode(rec, &progress)
	assert.Equal(t, 3, progress.Total)
	assert.Equal(t, 1, progress.Completed)
	assert.Equal(t, 33, progress.PercentComplete)

	rec = ts.do(http.MethodPost, "/api/v1/lessons/course/"+c.ID+"/reorder", admin, map[string][]string{
		"lesson_ids": {lessons[2].ID, lessons[0].ID, lessons[1].ID},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(http.MethodGet, "/api/v1/lessons/course/"+c.ID, learner, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var views []lesson
	ts.decode(rec, &views)
	require.Len(t, views, 3)
	assert.Equal(t, []string{lessons[2].ID, lessons[0].ID, lessons[1].ID}, []string{views[0].ID, views[1].ID, views[2].ID})
	assert.Equal(t, []int{1, 2, 3}, []int{views[0].Order, views[1].Order, views[2].Order})
	assert.True(t, views[1].IsCompleted)

	rec = ts.do(http.MethodGet, "/api/v1/lessons/"+lessons[0].ID, learner, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var view lesson
	ts.decode(rec, &view)
	assert.True(t, view.IsCompleted)
	assert.Equal(t, lessons[2].ID, view.Previous)
	assert.Equal(t, lessons[1].ID, view.Next)

	rec = ts.do(http.MethodPost, "/api/v1/lessons/course/"+c.ID+"/reorder", admin, map[string][]string{
		"lesson_ids": {lessons[0].ID, lessons[1].ID},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "reorder must name every lesson")

	rec = ts.do(http.MethodPatch, "/api/v1/courses/"+c.ID+"/unpublish", admin, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do(http.MethodPatch, "/api/v1/courses/"+c.ID+"/unpublish", admin, nil)
	assert.Equal(t, http.StatusOK, rec.Code, "unpublish is idempotent")

	rec = ts.do(http.MethodGet, "/api/v1/dashboard/stats", learner, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = ts.do(http.MethodGet, "/api/v1/dashboard/stats", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats curriculum.DashboardStats
	ts.decode(rec, &stats)
	assert.Equal(t, 2, stats.Users)
	assert.Equal(t, 1, stats.Enrollments)
	assert.Equal(t, 1, stats.Completions)
}

func TestAuthentication(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodGet, "/api/v1/courses/search", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	learner := ts.signUp("learner")
	rec = ts.do(http.MethodGet, "/api/v1/courses/search", learner, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(http.MethodPost, "/api/v1/user/sign-up", "", map[string]string{
		"username": "learner",
		"email":    "other@example.com",
		"password": "learner-password",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(http.MethodPut, "/api/v1/user/sign-out", learner, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = ts.do(http.MethodGet, "/api/v1/courses/search", learner, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "signed out tokens are rejected")

	for i := 0; i < 3; i++ {
		rec = ts.do(http.MethodPost, "/api/v1/user/login", "", map[string]string{
			"username": "learner",
			"password": "wrong-password",
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	rec = ts.do(http.MethodPost, "/api/v1/user/login", "", map[string]string{
		"username": "learner",
		"password": "learner-password",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code, "account is locked after too many failures")
}

func TestLivenessProbe(t *testing.T) {
	healthy := newTestServer(t, map[string]Probe{"db": func() error { return nil }})
	assert.Equal(t, http.StatusOK, healthy.do(http.MethodGet, "/healthz", "", nil).Code)

	failing := newTestServer(t, map[string]Probe{"db": func() error { return errors.New("connection refused") }})
	rec := failing.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}
