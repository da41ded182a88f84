package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pot-code/curriculum/internal/curriculum"
	"github.com/pot-code/curriculum/internal/infrastructure/auth"
	"github.com/pot-code/curriculum/internal/infrastructure/validate"
)

type lessonForm struct {
	CourseID string `json:"course_id" validate:"required"`
	Title    string `json:"title" validate:"required,max=128"`
	Body     string `json:"body"`
	Media    string `json:"media" validate:"omitempty,max=512"`
	// 0 appends the lesson
	Order int `json:"order" validate:"min=0"`
}

type editLessonForm struct {
	Title string `json:"title" validate:"required,max=128"`
	Body  string `json:"body"`
	Media string `json:"media" validate:"omitempty,max=512"`
	// 0 keeps the current order
	Order int `json:"order" validate:"min=0"`
}

type reorderForm struct {
	LessonIDs []string `json:"lesson_ids" validate:"required"`
}

// LessonHandler lesson routes
type LessonHandler struct {
	useCase   curriculum.UseCase
	jwtUtil   *auth.JWTUtil
	validator validate.Validator
}

// NewLessonHandler .
func NewLessonHandler(
	UseCase curriculum.UseCase,
	JWTUtil *auth.JWTUtil,
	Validator validate.Validator,
) *LessonHandler {
	return &LessonHandler{UseCase, JWTUtil, Validator}
}

// HandleList GET /lessons/course/:id
func (lh *LessonHandler) HandleList(c echo.Context) error {
	lessons, err := lh.useCase.ListLessons(c.Request().Context(), actorOf(c, lh.jwtUtil), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, lessons)
}

// HandleReorder POST /lessons/course/:id/reorder
func (lh *LessonHandler) HandleReorder(c echo.Context) error {
	form := new(reorderForm)
	if err := c.Bind(form); err != nil {
		return bindError(c, err)
	}
	if err := lh.validator.Struct(form); err != nil {
		return badRequest(c, "Failed to validate fields", err)
	}

	lessons, err := lh.useCase.ReorderLessons(c.Request().Context(), actorOf(c, lh.jwtUtil), c.Param("id"), form.LessonIDs)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, lessons)
}

// HandleAdd POST /lessons
func (lh *LessonHandler) HandleAdd(c echo.Context) error {
	form := new(lessonForm)
	if err := c.Bind(form); err != nil {
		return bindError(c, err)
	}
	if err := lh.validator.Struct(form); err != nil {
		return badRequest(c, "Failed to validate fields", err)
	}

	lesson, err := lh.useCase.AddLesson(c.Request().Context(), actorOf(c, lh.jwtUtil), &curriculum.LessonModel{
		CourseID: form.CourseID,
		Title:    form.Title,
		Body:     form.Body,
		Media:    form.Media,
		Order:    form.Order,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, lesson)
}

// HandleGet GET /lessons/:id
func (lh *LessonHandler) HandleGet(c echo.Context) error {
	lesson, err := lh.useCase.GetLesson(c.Request().Context(), actorOf(c, lh.jwtUtil), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, lesson)
}

// HandleEdit PUT /lessons/:id
func (lh *LessonHandler) HandleEdit(c echo.Context) error {
	form := new(editLessonForm)
	if err := c.Bind(form); err != nil {
		return bindError(c, err)
	}
	if err := lh.validator.Struct(form); err != nil {
		return badRequest(c, "Failed to validate fields", err)
	}

	lesson, err := lh.useCase.EditLesson(c.Request().Context(), actorOf(c, lh.jwtUtil), &curriculum.LessonModel{
		ID:    c.Param("id"),
		Title: form.Title,
		Body:  form.Body,
		Media: form.Media,
		Order: form.Order,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, lesson)
}

// HandleRemove DELETE /lessons/:id
func (lh *LessonHandler) HandleRemove(c echo.Context) error {
	if err := lh.useCase.RemoveLesson(c.Request().Context(), actorOf(c, lh.jwtUtil), c.Param("id")); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleComplete POST /lessons/:id/complete
func (lh *LessonHandler) HandleComplete(c echo.Context) error {
	result, err := lh.useCase.CompleteLesson(c.Request().Context(), actorOf(c, lh.jwtUtil), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	if result.Created {
		return c.JSON(http.StatusCreated, result)
	}
	return c.JSON(http.StatusOK, result)
}
