// Package server assembles the gateway's fiber application from its services.
package server

import (
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"

	"github.com/cinder/storyboard/internal/auth"
	"github.com/cinder/storyboard/internal/client"
	"github.com/cinder/storyboard/internal/config"
	"github.com/cinder/storyboard/internal/handler"
	"github.com/cinder/storyboard/internal/metrics"
	"github.com/cinder/storyboard/internal/middleware"
	"github.com/cinder/storyboard/internal/model"
	"github.com/cinder/storyboard/internal/service"
	ws "github.com/cinder/storyboard/internal/websocket"
	"github.com/cinder/storyboard/pkg/response"
)

// Deps are the long-lived components the routes are served by
type Deps struct {
	Config      *config.Config
	Redis       *redis.Client
	Storyboards *service.StoryboardService
	Projects    *service.ProjectService
	Hub         *ws.Hub
	Verifier    auth.TokenVerifier // nil without Zitadel
	Storage     client.StorageClient
	Metrics     *metrics.Metrics // nil disables /metrics
}

// New builds the gateway application
func New(d Deps) *fiber.App {
	cfg := d.Config
	validate := validator.New()

	storyboardHandler := handler.NewStoryboardHandler(d.Storyboards, d.Projects, validate)
	projectHandler := handler.NewProjectHandler(d.Projects, d.Storyboards, validate)
	authHandler := handler.NewAuthHandler(d.Verifier, cfg.JWT.Secret, cfg.Auth.AllowGuests)

	apiAuthMiddleware := authMiddleware(cfg, d.Verifier)
	rateLimiter := middleware.NewRateLimiter(d.Redis)

	app := fiber.New(fiber.Config{
		ErrorHandler: CustomErrorHandler,
		BodyLimit:    10 * 1024 * 1024,
	})

	// Global middleware
	app.Use(recover.New())
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${reqHeaders}\n"
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization,X-Guest-Id",
	}))

	// Base URL - timestamp
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"backend":  cfg.Backend.BaseURL != "",
				"r2":       d.Storage != nil,
				"auth":     d.Verifier != nil || cfg.JWT.Secret != "",
				"guests":   cfg.Auth.AllowGuests,
				"sessions": d.Storyboards.ActiveSessions(),
			},
		})
	})

	if d.Metrics != nil {
		app.Get("/metrics", d.Metrics.Handler())
	}

	// ForwardAuth verification endpoint (internal, called by Traefik)
	app.Get("/auth/verify", authHandler.Verify)

	// API routes
	api := app.Group("/api", apiAuthMiddleware)

	storyboard := api.Group("/storyboard")
	storyboard.Get("/", storyboardHandler.Get)
	storyboard.Post("/generate", rateLimiter.GenerateLimit(cfg.RateLimit.GeneratePerHour), storyboardHandler.Generate)
	storyboard.Post("/frames/:index/animate", rateLimiter.AnimateLimit(cfg.RateLimit.AnimatePerHour), storyboardHandler.Animate)
	storyboard.Post("/reset", storyboardHandler.Reset)
	storyboard.Post("/restore/:projectId", storyboardHandler.Restore)
	storyboard.Delete("/session", storyboardHandler.EndSession)

	projects := api.Group("/projects")
	projects.Post("/", rateLimiter.ProjectLimit(cfg.RateLimit.ProjectPerHour), projectHandler.Save)
	projects.Get("/", projectHandler.List)
	projects.Get("/:projectId", projectHandler.Get)
	projects.Delete("/:projectId", projectHandler.Delete)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/storyboard", apiAuthMiddleware, websocket.New(func(c *websocket.Conn) {
		userID, _ := c.Locals("userId").(string)
		d.Hub.HandleConnection(c, userID, func() []byte {
			return initialSnapshot(d.Storyboards, userID)
		})
	}))

	return app
}

// authMiddleware picks the identity source: gateway headers behind Traefik,
// otherwise JWKS and/or the legacy HMAC secret.
func authMiddleware(cfg *config.Config, verifier auth.TokenVerifier) fiber.Handler {
	if cfg.Gateway.Enabled {
		log.Println("Info: Gateway mode enabled, using header-based auth")
		return middleware.GatewayAuthMiddleware(cfg.Auth.AllowGuests)
	}

	var m *middleware.AuthMiddleware
	switch {
	case verifier != nil && cfg.JWT.Secret != "":
		m = middleware.NewAuthMiddlewareWithFallback(verifier, cfg.JWT.Secret)
	case verifier != nil:
		m = middleware.NewAuthMiddleware(verifier)
	default:
		m = middleware.NewLegacyAuthMiddleware(cfg.JWT.Secret)
	}
	return m.AllowGuests(cfg.Auth.AllowGuests).Authenticate()
}

// initialSnapshot is the first message a new connection receives
func initialSnapshot(storyboards *service.StoryboardService, userID string) []byte {
	data, err := json.Marshal(model.WSSnapshotMessage{
		Type:     model.WSMessageTypeSnapshot,
		Event:    "connected",
		Snapshot: storyboards.Snapshot(userID),
	})
	if err != nil {
		log.Printf("[WS] failed to marshal initial snapshot for %s: %v", userID, err)
		return nil
	}
	return data
}

// CustomErrorHandler renders unhandled errors in the API error envelope
func CustomErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	errCode := response.CodeServiceError
	switch code {
	case fiber.StatusNotFound:
		errCode = response.CodeNotFound
	case fiber.StatusUpgradeRequired, fiber.StatusBadRequest, fiber.StatusRequestEntityTooLarge:
		errCode = response.CodeValidationError
	}

	return c.Status(code).JSON(response.ErrorResponse{
		Error: response.ErrorDetail{
			Code:    errCode,
			Message: message,
		},
	})
}
