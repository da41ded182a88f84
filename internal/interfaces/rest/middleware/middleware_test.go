package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pot-code/curriculum/internal/domain"
	"github.com/pot-code/curriculum/internal/infrastructure/auth"
	"github.com/pot-code/curriculum/internal/infrastructure/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func serve(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestVerifyTokenAndRequireRole(t *testing.T) {
	ju := auth.NewJWTUtil("HS256", "secret", "token", time.Hour)
	blacklisted := ""
	e := echo.New()
	verify := VerifyToken(ju, &ValidateTokenOption{
		InBlackList: func(ctx context.Context, token string) (bool, error) {
			return token == blacklisted, nil
		},
	})
	ok := func(c echo.Context) error { return c.NoContent(http.StatusOK) }
	e.GET("/auth", ok, verify)
	e.GET("/admin", ok, verify, RequireRole(ju, domain.RoleAdmin))

	tokenOf := func(role domain.Role) string {
		s, err := ju.GenerateTokenStr(&auth.TokenSubject{ID: "u", Role: role})
		require.NoError(t, err)
		return s
	}
	request := func(path, token string) int {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if token != "" {
			req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
		}
		return serve(e, req).Code
	}

	learner, admin := tokenOf(domain.RoleLearner), tokenOf(domain.RoleAdmin)
	assert.Equal(t, http.StatusUnauthorized, request("/auth", ""))
	assert.Equal(t, http.StatusUnauthorized, request("/auth", "garbage"))
	assert.Equal(t, http.StatusOK, request("/auth", learner))
	assert.Equal(t, http.StatusForbidden, request("/admin", learner))
	assert.Equal(t, http.StatusOK, request("/admin", admin))

	blacklisted = learner
	assert.Equal(t, http.StatusUnauthorized, request("/auth", learner))
}

func TestRefreshToken(t *testing.T) {
	ju := auth.NewJWTUtil("HS256", "secret", "token", time.Minute)
	e := echo.New()
	e.GET("/", func(c echo.Context) error { return c.NoContent(http.StatusOK) },
		VerifyToken(ju), RefreshToken(ju, &RefreshTokenOption{Threshold: 5 * time.Minute}))

	token, err := ju.GenerateTokenStr(&auth.TokenSubject{ID: "u", Role: domain.RoleLearner})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "token", Value: token})
	rec := serve(e, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderSetCookie), "token=")
}

func TestErrorHandling(t *testing.T) {
	var handled error
	e := echo.New()
	e.Use(ErrorHandling(&ErrorHandlingOption{
		Handler: func(c echo.Context, err error) {
			handled = err
			c.NoContent(http.StatusInternalServerError)
		},
	}))
	e.GET("/error", func(c echo.Context) error { return errors.New("boom") })
	e.GET("/panic", func(c echo.Context) error { panic("boom") })
	e.GET("/http", func(c echo.Context) error { return echo.NewHTTPError(http.StatusForbidden, "nope") })

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/error", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.EqualError(t, handled, "boom")

	rec = serve(e, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.EqualError(t, handled, "panic: boom")

	rec = serve(e, httptest.NewRequest(http.MethodGet, "/http", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "nope")
}

func TestAbortRequest(t *testing.T) {
	e := echo.New()
	var deadline time.Time
	e.GET("/", func(c echo.Context) error {
		deadline, _ = c.Request().Context().Deadline()
		return c.NoContent(http.StatusOK)
	}, AbortRequest(&AbortRequestOption{Timeout: time.Minute}))

	serve(e, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)
}

func TestSetTraceLogger(t *testing.T) {
	base := zap.NewNop()
	e := echo.New()
	var got *zap.Logger
	e.GET("/", func(c echo.Context) error {
		got = logging.ExtractLoggerFromContext(c.Request().Context())
		return c.NoContent(http.StatusOK)
	}, SetTraceLogger(base))

	serve(e, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotNil(t, got)
}

func TestLevelOf(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, levelOf(http.StatusOK))
	assert.Equal(t, zapcore.WarnLevel, levelOf(http.StatusNotFound))
	assert.Equal(t, zapcore.ErrorLevel, levelOf(http.StatusBadGateway))
}
