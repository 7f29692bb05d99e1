// Package http exposes the typed client over REST and WebSocket with fiber.
package http

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"firestore-typed/internal/firestore/config"
	"firestore-typed/internal/firestore/usecase"
	"firestore-typed/internal/shared/contextkeys"
	"firestore-typed/internal/shared/errors"
	"firestore-typed/internal/shared/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Gateway serves document reads, writes, queries and listeners on one client.
type Gateway struct {
	client *usecase.Client
	cfg    config.GatewayConfig
	log    logger.Logger
}

// NewGateway creates a gateway on client.
func NewGateway(client *usecase.Client, cfg config.GatewayConfig, log logger.Logger) *Gateway {
	if log == nil {
		log = logger.NewNopLogger()
	}
	if cfg.WebSocketPath == "" {
		cfg.WebSocketPath = "/ws/listen"
	}
	if cfg.ClientSendChannelBuffer <= 0 {
		cfg.ClientSendChannelBuffer = 16
	}
	return &Gateway{client: client, cfg: cfg, log: log.WithComponent("gateway")}
}

// NewApp returns a fiber app with the gateway routes and the usual middleware.
func (g *Gateway) NewApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "firestore-typed gateway",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
		ErrorHandler: g.handleError,
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,HEAD,PUT,DELETE,PATCH,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))
	app.Use(RequestID())
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":    "HEALTHY",
			"driver":    g.client.Driver().Name(),
			"timestamp": time.Now().UTC(),
		})
	})
	g.RegisterRoutes(app)
	return app
}

// RegisterRoutes mounts the REST and WebSocket endpoints on router.
func (g *Gateway) RegisterRoutes(router fiber.Router) {
	auth := g.BearerAuth()

	v1 := router.Group("/v1", auth)
	v1.Get("/documents/*", g.GetDocuments)
	v1.Put("/documents/*", g.SetDocument)
	v1.Patch("/documents/*", g.PatchDocument)
	v1.Delete("/documents/*", g.DeleteDocument)
	v1.Post("/documents/*", g.AddDocument)
	v1.Post("/query", g.RunQuery)

	router.Use(g.cfg.WebSocketPath, auth, requireUpgrade)
	router.Get(g.cfg.WebSocketPath, g.listenHandler())
}

// RequestID tags every request with an id, reusing X-Request-ID when the caller sent one.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("X-Request-ID", id)
		c.SetUserContext(context.WithValue(c.UserContext(), contextkeys.RequestIDKey, id))
		return c.Next()
	}
}

// requestContext returns the request context tagged with the operation and target.
func requestContext(c *fiber.Ctx, op, path string) context.Context {
	ctx := context.WithValue(c.UserContext(), contextkeys.OperationKey, op)
	return context.WithValue(ctx, contextkeys.CollectionKey, path)
}

// documentsPath is the wildcard part of /v1/documents/*.
func documentsPath(c *fiber.Ctx) string {
	return strings.Trim(c.Params("*"), "/")
}

// fail answers with the status and code carried by err.
func (g *Gateway) fail(c *fiber.Ctx, err error) error {
	status := errors.HTTPStatus(err)
	body := fiber.Map{"error": "request_failed", "message": err.Error()}
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		body["error"] = strings.ToLower(string(appErr.Type))
		if appErr.Code != "" {
			body["code"] = appErr.Code
		}
		if len(appErr.Details) > 0 {
			body["details"] = appErr.Details
		}
	}
	switch {
	case status >= fiber.StatusInternalServerError:
		g.log.Error("Request failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Error(err))
	case errors.IsAuthentication(err):
		g.log.Warn("Request unauthenticated",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.String("ip", c.IP()),
			zap.Error(err))
	default:
		g.log.Debug("Request rejected",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Error(err))
	}
	return c.Status(status).JSON(body)
}

func (g *Gateway) handleError(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if stderrors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{"error": "request_failed", "message": fe.Message})
	}
	return g.fail(c, err)
}
