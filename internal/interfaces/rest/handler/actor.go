package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/pot-code/curriculum/internal/domain"
	"github.com/pot-code/curriculum/internal/infrastructure/auth"
)

// actorOf the caller identified by the verified token, zero Actor when anonymous
func actorOf(c echo.Context, ju *auth.JWTUtil) domain.Actor {
	if claims := ju.GetContextToken(c); claims != nil {
		return claims.Actor()
	}
	return domain.Actor{}
}
