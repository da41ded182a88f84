package rest

import (
	"context"
	"expvar"
	"fmt"
	"net/http"
	"net/http/pprof"
	"strings"

	"github.com/labstack/echo/v4"
	echo_middleware "github.com/labstack/echo/v4/middleware"
	"github.com/pot-code/curriculum/internal/curriculum"
	"github.com/pot-code/curriculum/internal/domain"
	infra "github.com/pot-code/curriculum/internal/infrastructure"
	"github.com/pot-code/curriculum/internal/infrastructure/auth"
	"github.com/pot-code/curriculum/internal/infrastructure/driver"
	"github.com/pot-code/curriculum/internal/infrastructure/validate"
	"github.com/pot-code/curriculum/internal/interfaces/rest/handler"
	"github.com/pot-code/curriculum/internal/interfaces/rest/middleware"
	"github.com/pot-code/curriculum/internal/user"
	"go.elastic.co/apm/module/apmechov4"
	"go.uber.org/zap"
)

// Probe liveness check of a backing service
type Probe func() error

// Dependencies services the http transport is built on
type Dependencies struct {
	Option            *infra.AppConfig
	KVStore           driver.KeyValueDB
	Probes            map[string]Probe
	UserUseCase       user.UserUseCase
	CurriculumUseCase curriculum.UseCase
	Websocket         *infra.Websocket
	Logger            *zap.Logger
}

// NewServer create the echo app with every route registered
func NewServer(deps *Dependencies) *echo.Echo {
	var (
		option    = deps.Option
		logger    = deps.Logger
		kv        = deps.KVStore
		app       = echo.New()
		validator = validate.NewValidator()
		jwtUtil   = auth.NewJWTUtil(option.Security.JWTMethod,
			option.Security.JWTSecret,
			option.Security.TokenName,
			option.SessionTimeout)
		jwtMiddleware = middleware.VerifyToken(jwtUtil, &middleware.ValidateTokenOption{
			InBlackList: func(ctx context.Context, token string) (bool, error) {
				return kv.Exists(ctx, token)
			},
		})
		refreshMiddleware = middleware.RefreshToken(jwtUtil, &middleware.RefreshTokenOption{
			Threshold: option.SessionRefresh,
		})
		adminOnly = middleware.RequireRole(jwtUtil, domain.RoleAdmin)
	)
	app.HideBanner = true

	registerLivenessProbe(app, deps.Probes)
	if option.Env == infra.EnvDevelopment {
		registerProfileEndpoints(app)
	}
	app.Use(middleware.Logging(logger, &middleware.LoggingConfig{
		Skipper: func(e echo.Context) bool {
			return strings.HasPrefix(e.Request().RequestURI, "/healthz")
		},
	}))
	app.Use(middleware.ErrorHandling(
		&middleware.ErrorHandlingOption{
			Handler: func(c echo.Context, err error) {
				traceID := c.Response().Header().Get(echo.HeaderXRequestID)
				c.JSON(http.StatusInternalServerError,
					handler.NewRESTStandardError(http.StatusInternalServerError, err.Error()).SetTraceID(traceID),
				)
				logger.Error(err.Error(), zap.String("trace.id", traceID))
			},
		},
	))
	app.Use(echo_middleware.Secure())
	if option.DevOP.APM {
		app.Use(apmechov4.Middleware())
	}
	app.Use(echo_middleware.CORSWithConfig(echo_middleware.CORSConfig{
		AllowOrigins: option.CORS.AllowOrigins,
		AllowHeaders: []string{
			echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept,
			echo.HeaderAuthorization, echo.HeaderXRequestedWith, echo.HeaderXCSRFToken,
		},
		AllowMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete,
		},
		AllowCredentials: true,
	}))
	app.Use(middleware.AbortRequest(&middleware.AbortRequestOption{
		Timeout: option.RequestTimeout,
	}))

	var (
		UserHandler   = handler.NewUserHandler(jwtUtil, kv, deps.UserUseCase, validator)
		CourseHandler = handler.NewCourseHandler(deps.CurriculumUseCase, jwtUtil, validator)
		LessonHandler = handler.NewLessonHandler(deps.CurriculumUseCase, jwtUtil, validator)
		authenticated = []echo.MiddlewareFunc{jwtMiddleware, refreshMiddleware}
		admin         = []echo.MiddlewareFunc{adminOnly}
	)

	createEndpoint(app,
		&endpoint{
			apiVersion:  "api/v1",
			middlewares: []echo.MiddlewareFunc{echo_middleware.RequestID(), middleware.SetTraceLogger(logger)},
			groups: []*apiGroup{
				{
					prefix: "/user",
					routes: []*route{
						{"POST", "/login", UserHandler.HandleSignIn, nil},
						{"PUT", "/sign-out", UserHandler.HandleSignOut, nil},
						{"POST", "/sign-up", UserHandler.HandleSignUp, nil},
						{"GET", "/exists", UserHandler.HandleUserExists, nil},
					},
				},
				{
					prefix:      "/courses",
					middlewares: authenticated,
					routes: []*route{
						{"GET", "/search", CourseHandler.HandleSearch, nil},
						{"POST", "", CourseHandler.HandleCreate, admin},
						{"GET", "/:id", CourseHandler.HandleGet, nil},
						{"PUT", "/:id", CourseHandler.HandleUpdate, admin},
						{"DELETE", "/:id", CourseHandler.HandleDelete, admin},
						{"PATCH", "/:id/publish", CourseHandler.HandlePublish, admin},
						{"PATCH", "/:id/unpublish", CourseHandler.HandleUnpublish, admin},
						{"POST", "/:id/enroll", CourseHandler.HandleEnroll, nil},
						{"GET", "/:id/summary", CourseHandler.HandleSummary, nil},
						{"GET", "/:id/progress", CourseHandler.HandleProgress, nil},
					},
				},
				{
					prefix:      "/lessons",
					middlewares: authenticated,
					routes: []*route{
						{"GET", "/course/:id", LessonHandler.HandleList, nil},
						{"POST", "/course/:id/reorder", LessonHandler.HandleReorder, admin},
						{"POST", "", LessonHandler.HandleAdd, admin},
						{"GET", "/:id", LessonHandler.HandleGet, nil},
						{"PUT", "/:id", LessonHandler.HandleEdit, admin},
						{"DELETE", "/:id", LessonHandler.HandleRemove, admin},
						{"POST", "/:id/complete", LessonHandler.HandleComplete, nil},
					},
				},
				{
					prefix:      "/dashboard",
					middlewares: append(authenticated, admin...),
					routes: []*route{
						{"GET", "/stats", CourseHandler.HandleStats, nil},
					},
				},
				{
					prefix:      "/ws",
					middlewares: authenticated,
					routes: []*route{
						{"GET", "/courses/:id", deps.Websocket.Subscribe(CourseHandler.CourseTopic), nil},
					},
				},
			},
		})
	return app
}

// Serve create http transport server and block until it stops
func Serve(deps *Dependencies) error {
	app := NewServer(deps)
	printRoutes(app, deps.Logger)
	return app.Start(fmt.Sprintf("%s:%d", deps.Option.Host, deps.Option.Port))
}

func registerLivenessProbe(app *echo.Echo, probes map[string]Probe) {
	app.GET("/healthz", func(c echo.Context) error {
		failed := make(map[string]string)
		for name, probe := range probes {
			if err := probe(); err != nil {
				failed[name] = err.Error()
			}
		}
		if len(failed) > 0 {
			return c.JSON(http.StatusServiceUnavailable, failed)
		}
		return c.NoContent(http.StatusOK)
	})
}

func registerProfileEndpoints(app *echo.Echo) {
	expvarHandler := expvar.Handler()
	app.GET("/debug/vars", func(c echo.Context) error {
		expvarHandler.ServeHTTP(c.Response().Writer, c.Request())
		return nil
	})
	app.GET("/debug/pprof/", func(c echo.Context) error {
		pprof.Index(c.Response().Writer, c.Request())
		return nil
	})
	app.GET("/debug/pprof/:name", func(c echo.Context) error {
		switch c.Param("name") {
		case "cmdline":
			pprof.Cmdline(c.Response().Writer, c.Request())
		case "profile":
			pprof.Profile(c.Response().Writer, c.Request())
		case "symbol":
			pprof.Symbol(c.Response().Writer, c.Request())
		case "trace":
			pprof.Trace(c.Response().Writer, c.Request())
		default:
			pprof.Handler(c.Param("name")).ServeHTTP(c.Response().Writer, c.Request())
		}
		return nil
	})
}
