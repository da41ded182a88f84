package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pot-code/curriculum/internal/infrastructure/auth"
	"github.com/pot-code/curriculum/internal/infrastructure/driver"
	"github.com/pot-code/curriculum/internal/infrastructure/validate"
	"github.com/pot-code/curriculum/internal/user"
)

type signUpForm struct {
	Username string `json:"username" validate:"required,min=3,max=32"`
	Email    string `json:"email" validate:"required,email,max=128"`
	Password string `json:"password" validate:"required,min=8,max=64"`
}

type signInForm struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type signInResult struct {
	Token string          `json:"token"`
	User  *user.UserModel `json:"user"`
}

// UserHandler user related operations
type UserHandler struct {
	jwtUtil     *auth.JWTUtil
	kvStore     driver.KeyValueDB
	userUseCase user.UserUseCase
	validator   validate.Validator
}

// NewUserHandler create an user controller instance
func NewUserHandler(
	JWTUtil *auth.JWTUtil,
	KVStore driver.KeyValueDB,
	UserUseCase user.UserUseCase,
	Validator validate.Validator,
) *UserHandler {
	return &UserHandler{
		jwtUtil:     JWTUtil,
		kvStore:     KVStore,
		userUseCase: UserUseCase,
		validator:   Validator,
	}
}

// HandleSignIn POST /user/login, the token is set as cookie and returned in the body
func (uh *UserHandler) HandleSignIn(c echo.Context) error {
	form := new(signInForm)
	if err := c.Bind(form); err != nil {
		return bindError(c, err)
	}
	if err := uh.validator.Struct(form); err != nil {
		return badRequest(c, "Failed to validate fields", err)
	}

	u, err := uh.userUseCase.SignIn(c.Request().Context(), form.Username, form.Password)
	if err != nil {
		return respondError(c, err)
	}
	tokenStr, err := uh.jwtUtil.GenerateTokenStr(&auth.TokenSubject{
		ID:       u.ID,
		Email:    u.Email,
		Username: u.Username,
		Role:     u.Role,
	})
	if err != nil {
		return err
	}
	uh.jwtUtil.SetClientToken(c, tokenStr)
	return c.JSON(http.StatusOK, &signInResult{Token: tokenStr, User: u})
}

// HandleSignUp POST /user/sign-up
func (uh *UserHandler) HandleSignUp(c echo.Context) error {
	form := new(signUpForm)
	if err := c.Bind(form); err != nil {
		return bindError(c, err)
	}
	if err := uh.validator.Struct(form); err != nil {
		return badRequest(c, "Failed to validate fields", err)
	}

	u, err := uh.userUseCase.SignUp(c.Request().Context(), &user.UserModel{
		Username: form.Username,
		Email:    form.Email,
		Password: form.Password,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, u)
}

// HandleSignOut PUT /user/sign-out, the token is blacklisted until it expires
func (uh *UserHandler) HandleSignOut(c echo.Context) error {
	ju := uh.jwtUtil

	tokenStr, err := ju.ExtractToken(c)
	if err != nil {
		return c.NoContent(http.StatusNoContent)
	}
	token, err := ju.Validate(tokenStr)
	if err != nil {
		return c.NoContent(http.StatusUnauthorized)
	}
	ju.ClearClientToken(c)
	if err := uh.kvStore.SetEX(c.Request().Context(), tokenStr, "", token.TimeRemaining()); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleUserExists GET /user/exists?username=&email=
func (uh *UserHandler) HandleUserExists(c echo.Context) error {
	username := c.QueryParam("username")
	email := c.QueryParam("email")
	if err := uh.validator.AllEmpty([]string{"username", "email"}, username, email); err != nil {
		return badRequest(c, "Failed to validate params", []*validate.FieldError{err})
	}

	existing, err := uh.userUseCase.Exists(c.Request().Context(), username, email)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, existing)
}
