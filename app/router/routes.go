// Package router provides HTTP routing, middleware configuration, and server setup for the web application
package router

import (
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/compress"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/helmet"
	"github.com/gofiber/fiber/v3/middleware/limiter"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/ibnu-sodik/wage-backend/app/dto"
	"github.com/ibnu-sodik/wage-backend/app/handlers"
	"github.com/ibnu-sodik/wage-backend/app/middleware"
	"github.com/ibnu-sodik/wage-backend/utils"
)

// Router interface for HTTP routing
type Router interface {
	SetupRoutes()
	Start(address string) error
	Shutdown() error
	GetApp() *fiber.App
}

// FiberRouter implements Router using Fiber v3
type FiberRouter struct {
	app            *fiber.App
	authHandler    handlers.AuthHandlerInterface
	deviceHandler  handlers.DeviceHandlerInterface
	messageHandler handlers.MessageHandlerInterface
	authMiddleware *middleware.AuthMiddleware
}

// NewFiberRouter creates a new Fiber router
func NewFiberRouter(
	authHandler handlers.AuthHandlerInterface,
	deviceHandler handlers.DeviceHandlerInterface,
	messageHandler handlers.MessageHandlerInterface,
	authMiddleware *middleware.AuthMiddleware,
) Router {
	app := fiber.New(fiber.Config{
		AppName:      "Wage Gateway API",
		ServerHeader: "wage-backend",
		ErrorHandler: errorHandler,
		BodyLimit:    4 * 1024 * 1024,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
	})

	return &FiberRouter{
		app:            app,
		authHandler:    authHandler,
		deviceHandler:  deviceHandler,
		messageHandler: messageHandler,
		authMiddleware: authMiddleware,
	}
}

// SetupRoutes configures all application routes
func (r *FiberRouter) SetupRoutes() {
	r.setupMiddleware()

	api := r.app.Group("/api/v1")

	api.Get("/health", r.healthCheck)

	api.Use(limiter.New(limiter.Config{
		Max:        2000,
		Expiration: time.Minute,
		KeyGenerator: func(c fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: rateLimited,
		Next: func(c fiber.Ctx) bool {
			return c.Path() == "/api/v1/health"
		},
	}))

	auth := api.Group("/auth")
	auth.Use(limiter.New(limiter.Config{
		Max:          20,
		Expiration:   time.Minute,
		KeyGenerator: func(c fiber.Ctx) string { return c.IP() },
		LimitReached: rateLimited,
	}))
	auth.Post("/login", r.authHandler.Login)
	auth.Post("/refresh", r.authHandler.Refresh)

	devices := api.Group("/devices", r.authMiddleware.Authenticate())
	devices.Post("/register", r.deviceHandler.Register)
	devices.Get("/", r.deviceHandler.List)
	devices.Get("/:deviceId/status", r.deviceHandler.Status)
	devices.Post("/logout", r.deviceHandler.Logout)

	messages := api.Group("/messages", r.authMiddleware.Authenticate())
	messages.Post("/send", r.messageHandler.SendLive)
	messages.Post("/send-template", r.messageHandler.SendTemplated)
	messages.Post("/broadcasts", r.messageHandler.ScheduleBroadcast)
	messages.Get("/broadcasts", r.messageHandler.ListJobs)
	messages.Get("/broadcasts/:jobId", r.messageHandler.JobStatus)
}

func (r *FiberRouter) setupMiddleware() {
	r.app.Use(recover.New())
	r.app.Use(requestid.New())
	r.app.Use(helmet.New())
	r.app.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
	}))
	r.app.Use(compress.New())
	r.app.Use(middleware.Metrics())
}

// Start begins listening on the given address
func (r *FiberRouter) Start(address string) error {
	log.Printf("HTTP server listening on %s", address)
	return r.app.Listen(address)
}

// Shutdown gracefully stops the server
func (r *FiberRouter) Shutdown() error {
	return r.app.Shutdown()
}

// GetApp exposes the underlying fiber app (used by tests)
func (r *FiberRouter) GetApp() *fiber.App {
	return r.app
}

func (r *FiberRouter) healthCheck(c fiber.Ctx) error {
	return c.JSON(dto.APIResponse{
		Success: true,
		Message: "healthy",
		Data: fiber.Map{
			"service":   "wage-backend",
			"timestamp": utils.UTCNow().Format(time.RFC3339),
		},
	})
}

func rateLimited(c fiber.Ctx) error {
	return c.Status(fiber.StatusTooManyRequests).JSON(dto.APIResponse{
		Success: false,
		Message: "Too many requests. Please try again later.",
		Error:   dto.ErrorDetail{Code: "RATE_LIMIT_EXCEEDED"},
	})
}

func errorHandler(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
		message = fiberErr.Message
	}

	return c.Status(code).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error:   dto.ErrorDetail{Code: "HTTP_ERROR"},
	})
}
