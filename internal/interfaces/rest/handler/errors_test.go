package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/pot-code/curriculum/internal/curriculum"
	"github.com/pot-code/curriculum/internal/domain"
	"github.com/pot-code/curriculum/internal/user"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusOf(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{curriculum.ErrInvalidReorderSet, http.StatusBadRequest},
		{curriculum.ErrCourseNotAvailable, http.StatusForbidden},
		{curriculum.ErrNotEnrolled, http.StatusForbidden},
		{domain.ErrForbidden, http.StatusForbidden},
		{curriculum.ErrCourseNotFound, http.StatusNotFound},
		{curriculum.ErrPublishPrecondition, http.StatusConflict},
		{curriculum.ErrLessonNotInSequence, http.StatusConflict},
		{user.ErrNoSuchUser, http.StatusUnauthorized},
		{fmt.Errorf("reorder: %w", curriculum.ErrInvalidReorderSet), http.StatusBadRequest},
	}
	for _, c := range cases {
		code, ok := StatusOf(c.err)
		assert.True(t, ok, c.err.Error())
		assert.Equal(t, c.code, code, c.err.Error())
	}

	_, ok := StatusOf(errors.New("db is down"))
	assert.False(t, ok)
}

func TestRespondError(t *testing.T) {
	e := echo.New()

	t.Run("known errors are written", func(t *testing.T) {
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
		c.Response().Header().Set(echo.HeaderXRequestID, "trace-1")

		require.NoError(t, respondError(c, curriculum.ErrPublishPrecondition))
		assert.Equal(t, http.StatusConflict, rec.Code)

		var body RESTStandardError
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "publish_precondition", body.Type)
		assert.Equal(t, "trace-1", body.TraceID)
		assert.Equal(t, curriculum.ErrPublishPrecondition.Error(), body.Detail)
	})

	t.Run("unknown errors are passed on", func(t *testing.T) {
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
		err := errors.New("db is down")

		assert.Equal(t, err, respondError(c, err))
		assert.False(t, c.Response().Committed)
	})
}

func TestToHTTPError(t *testing.T) {
	err := toHTTPError(curriculum.ErrCourseNotFound)
	var he *echo.HTTPError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, http.StatusNotFound, he.Code)

	plain := errors.New("boom")
	assert.Equal(t, plain, toHTTPError(plain))
}
