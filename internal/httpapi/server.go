// Package httpapi HTTP-интерфейс движка поверх echo.
//
// Идентичность вызывающего берётся из JWT (claims sub и role), права
// проверяются сервисами; здесь только разбор запросов и маппинг ошибок.
package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/Freeeeeet/mentor_queue/internal/config"
	"github.com/Freeeeeet/mentor_queue/internal/service"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Services зависимости обработчиков
type Services struct {
	Slots        *service.SlotService
	Tickets      *service.TicketService
	Reservations *service.ReservationService
	Problems     *service.ProblemService
	Publish      *service.PublishService
	Users        *service.UserService
}

type Server struct {
	echo     *echo.Echo
	services Services
	logger   *zap.Logger
}

// requestValidator подключает validator/v10 к echo.Context.Validate
type requestValidator struct {
	validate *validator.Validate
}

func (v *requestValidator) Validate(i interface{}) error {
	return v.validate.Struct(i)
}

// NewServer собирает echo с маршрутами; rdb может быть nil, тогда лимиты отключены
func NewServer(services Services, jwtSecret string, rl config.RateLimitConfig, rdb *redis.Client, logger *zap.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = &requestValidator{validate: validator.New()}
	e.HTTPErrorHandler = errorHandler(logger)
	e.Use(middleware.Recover())
	e.Use(requestLogger(logger))

	s := &Server{
		echo:     e,
		services: services,
		logger:   logger,
	}
	s.registerRoutes(jwtSecret, NewTokenBucket(rl, rdb, logger))

	return s
}

// Handler для httptest и встраивания
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start блокируется до остановки сервера
func (s *Server) Start(addr string) error {
	s.logger.Info("Starting HTTP server", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) registerRoutes(jwtSecret string, bookingLimit echo.MiddlewareFunc) {
	s.echo.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})

	v1 := s.echo.Group("/v1", JWTAuth(jwtSecret))

	v1.GET("/me", s.me)

	v1.POST("/slots/expand", s.expandSlots)
	v1.PUT("/slots/break", s.setBreak)
	v1.GET("/teachers/:id/slots", s.listSlots)

	v1.POST("/reservations", s.book, bookingLimit)
	v1.POST("/reservations/:id/cancel", s.cancelReservation)
	v1.GET("/reservations/:id/visibility", s.visibility)
	v1.GET("/students/:id/reservations", s.listReservations)

	v1.POST("/tickets/grants", s.grantIndividual)
	v1.POST("/tickets/grants/bulk", s.grantBulk)
	v1.GET("/students/:id/tickets", s.tickets)

	v1.POST("/problems", s.createProblem)
	v1.GET("/problems/:id", s.getProblem)
	v1.GET("/problems/:id/history", s.problemHistory)
	v1.POST("/problems/:id/transition", s.transitionProblem)
	v1.POST("/problems/publish", s.runPublish)

	v1.POST("/sessions", s.assignProblem)
	v1.PUT("/sessions/:id/status", s.setSessionStatus)
}

func requestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Debug("HTTP request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			)
			return nil
		},
	})
}
