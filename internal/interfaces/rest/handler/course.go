package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pot-code/curriculum/internal/curriculum"
	"github.com/pot-code/curriculum/internal/infrastructure/auth"
	"github.com/pot-code/curriculum/internal/infrastructure/validate"
)

type courseForm struct {
	Title       string `json:"title" validate:"required,max=128"`
	Description string `json:"description" validate:"max=4096"`
	Cover       string `json:"cover" validate:"omitempty,max=512"`
}

type searchForm struct {
	Status   string `query:"status" validate:"omitempty,oneof=draft published"`
	Keyword  string `query:"q" validate:"max=128"`
	Page     int    `query:"page" validate:"min=0"`
	PageSize int    `query:"page_size" validate:"min=0"`
}

// CourseHandler course routes
type CourseHandler struct {
	useCase   curriculum.UseCase
	jwtUtil   *auth.JWTUtil
	validator validate.Validator
}

// NewCourseHandler .
func NewCourseHandler(
	UseCase curriculum.UseCase,
	JWTUtil *auth.JWTUtil,
	Validator validate.Validator,
) *CourseHandler {
	return &CourseHandler{UseCase, JWTUtil, Validator}
}

// HandleSearch GET /courses/search
func (ch *CourseHandler) HandleSearch(c echo.Context) error {
	form := new(searchForm)
	if err := c.Bind(form); err != nil {
		return bindError(c, err)
	}
	if err := ch.validator.Struct(form); err != nil {
		return badRequest(c, "Failed to validate params", err)
	}

	query := &curriculum.CourseQuery{
		Keyword:  form.Keyword,
		Page:     form.Page,
		PageSize: form.PageSize,
	}
	if form.Status != "" {
		status, _ := curriculum.ParseStatus(form.Status)
		query.Status = &status
	}
	page, err := ch.useCase.SearchCourses(c.Request().Context(), actorOf(c, ch.jwtUtil), query)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, page)
}

// HandleCreate POST /courses
func (ch *CourseHandler) HandleCreate(c echo.Context) error {
	form := new(courseForm)
	if err := c.Bind(form); err != nil {
		return bindError(c, err)
	}
	if err := ch.validator.Struct(form); err != nil {
		return badRequest(c, "Failed to validate fields", err)
	}

	course, err := ch.useCase.CreateCourse(c.Request().Context(), actorOf(c, ch.jwtUtil), &curriculum.CourseModel{
		Title:       form.Title,
		Description: form.Description,
		Cover:       form.Cover,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, course)
}

// HandleGet GET /courses/:id
func (ch *CourseHandler) HandleGet(c echo.Context) error {
	course, err := ch.useCase.GetCourse(c.Request().Context(), actorOf(c, ch.jwtUtil), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, course)
}

// HandleUpdate PUT /courses/:id
func (ch *CourseHandler) HandleUpdate(c echo.Context) error {
	form := new(courseForm)
	if err := c.Bind(form); err != nil {
		return bindError(c, err)
	}
	if err := ch.validator.Struct(form); err != nil {
		return badRequest(c, "Failed to validate fields", err)
	}

	course, err := ch.useCase.UpdateCourse(c.Request().Context(), actorOf(c, ch.jwtUtil), &curriculum.CourseModel{
		ID:          c.Param("id"),
		Title:       form.Title,
		Description: form.Description,
		Cover:       form.Cover,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, course)
}

// HandleDelete DELETE /courses/:id
func (ch *CourseHandler) HandleDelete(c echo.Context) error {
	if err := ch.useCase.DeleteCourse(c.Request().Context(), actorOf(c, ch.jwtUtil), c.Param("id")); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandlePublish PATCH /courses/:id/publish
func (ch *CourseHandler) HandlePublish(c echo.Context) error {
	course, err := ch.useCase.PublishCourse(c.Request().Context(), actorOf(c, ch.jwtUtil), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, course)
}

// HandleUnpublish PATCH /courses/:id/unpublish
func (ch *CourseHandler) HandleUnpublish(c echo.Context) error {
	course, err := ch.useCase.UnpublishCourse(c.Request().Context(), actorOf(c, ch.jwtUtil), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, course)
}

// HandleEnroll POST /courses/:id/enroll
func (ch *CourseHandler) HandleEnroll(c echo.Context) error {
	if err := ch.useCase.Enroll(c.Request().Context(), actorOf(c, ch.jwtUtil), c.Param("id")); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleSummary GET /courses/:id/summary
func (ch *CourseHandler) HandleSummary(c echo.Context) error {
	summary, err := ch.useCase.CourseSummary(c.Request().Context(), actorOf(c, ch.jwtUtil), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, summary)
}

// HandleProgress GET /courses/:id/progress
func (ch *CourseHandler) HandleProgress(c echo.Context) error {
	progress, err := ch.useCase.Progress(c.Request().Context(), actorOf(c, ch.jwtUtil), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, progress)
}

// HandleStats GET /dashboard/stats
func (ch *CourseHandler) HandleStats(c echo.Context) error {
	stats, err := ch.useCase.DashboardStats(c.Request().Context(), actorOf(c, ch.jwtUtil))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}

// CourseTopic resolves the event topic of the course in the :id param, the
// caller must be allowed to view the course
func (ch *CourseHandler) CourseTopic(c echo.Context) (string, error) {
	course, err := ch.useCase.GetCourse(c.Request().Context(), actorOf(c, ch.jwtUtil), c.Param("id"))
	if err != nil {
		return "", toHTTPError(err)
	}
	return curriculum.CourseTopic(course.ID), nil
}
