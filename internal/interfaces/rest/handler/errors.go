package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pot-code/curriculum/internal/curriculum"
	"github.com/pot-code/curriculum/internal/domain"
	"github.com/pot-code/curriculum/internal/infrastructure/validate"
	"github.com/pot-code/curriculum/internal/user"
)

// RESTStandardError response error
type RESTStandardError struct {
	Type    string `json:"type,omitempty"`
	Code    int    `json:"code"`
	Title   string `json:"title"`
	Detail  string `json:"detail,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewRESTStandardError .
func NewRESTStandardError(code int, detail string) *RESTStandardError {
	return &RESTStandardError{
		Code:   code,
		Title:  http.StatusText(code),
		Detail: detail,
	}
}

func (re RESTStandardError) Error() string {
	return re.Detail
}

// SetTraceID .
func (re RESTStandardError) SetTraceID(traceID string) RESTStandardError {
	re.TraceID = traceID
	return re
}

// SetType .
func (re RESTStandardError) SetType(typ string) RESTStandardError {
	re.Type = typ
	return re
}

// RESTValidationError standard validation error
type RESTValidationError struct {
	RESTStandardError
	InvalidParams []*validate.FieldError `json:"invalid_params"`
}

// NewRESTValidationError .
func NewRESTValidationError(code int, detail string, internal []*validate.FieldError) *RESTValidationError {
	return &RESTValidationError{
		RESTStandardError: RESTStandardError{
			Code:   code,
			Title:  http.StatusText(code),
			Detail: detail,
		},
		InvalidParams: internal,
	}
}

func (rve RESTValidationError) Error() string {
	return rve.Detail
}

// SetTraceID .
func (rve RESTValidationError) SetTraceID(traceID string) RESTValidationError {
	rve.RESTStandardError.TraceID = traceID
	return rve
}

type knownError struct {
	err  error
	code int
	typ  string
}

// knownErrors errors surfaced to the client, matched with errors.Is in order
var knownErrors = []knownError{
	{curriculum.ErrInvalidReorderSet, http.StatusBadRequest, "invalid_reorder_set"},
	{curriculum.ErrInvalidOrder, http.StatusBadRequest, "invalid_order"},
	{curriculum.ErrCourseNotAvailable, http.StatusForbidden, "course_not_available"},
	{curriculum.ErrNotEnrolled, http.StatusForbidden, "not_enrolled"},
	{domain.ErrForbidden, http.StatusForbidden, "forbidden"},
	{curriculum.ErrCourseNotFound, http.StatusNotFound, "course_not_found"},
	{curriculum.ErrLessonNotFound, http.StatusNotFound, "lesson_not_found"},
	{curriculum.ErrPublishPrecondition, http.StatusConflict, "publish_precondition"},
	{curriculum.ErrOrderConflict, http.StatusConflict, "order_conflict"},
	{curriculum.ErrLessonNotInSequence, http.StatusConflict, "lesson_not_in_sequence"},
	{user.ErrDuplicatedUser, http.StatusConflict, "duplicated_user"},
	{user.ErrNoSuchUser, http.StatusUnauthorized, "no_such_user"},
	{user.ErrTooManyRetry, http.StatusForbidden, "too_many_retry"},
}

// StatusOf http status of a known error
func StatusOf(err error) (int, bool) {
	if k := lookup(err); k != nil {
		return k.code, true
	}
	return 0, false
}

func lookup(err error) *knownError {
	for i := range knownErrors {
		if errors.Is(err, knownErrors[i].err) {
			return &knownErrors[i]
		}
	}
	return nil
}

func traceID(c echo.Context) string {
	return c.Response().Header().Get(echo.HeaderXRequestID)
}

// respondError writes known errors as RESTStandardError, others are returned
// to the error handling middleware
func respondError(c echo.Context, err error) error {
	k := lookup(err)
	if k == nil {
		return err
	}
	return c.JSON(k.code, NewRESTStandardError(k.code, k.err.Error()).SetType(k.typ).SetTraceID(traceID(c)))
}

// toHTTPError converts known errors for callers that can not write a body themselves
func toHTTPError(err error) error {
	if k := lookup(err); k != nil {
		return echo.NewHTTPError(k.code, k.err.Error())
	}
	return err
}

func badRequest(c echo.Context, detail string, params []*validate.FieldError) error {
	return c.JSON(http.StatusBadRequest,
		NewRESTValidationError(http.StatusBadRequest, detail, params).SetTraceID(traceID(c)))
}

func bindError(c echo.Context, err error) error {
	detail := err.Error()
	if he, ok := err.(*echo.HTTPError); ok && he.Internal != nil {
		detail = he.Internal.Error()
	}
	return c.JSON(http.StatusUnprocessableEntity,
		NewRESTStandardError(http.StatusUnprocessableEntity, detail).SetTraceID(traceID(c)))
}
