// Package server assembles the Fiber application: middleware chain, routes,
// metrics and API docs.
package server

import (
	"database/sql"
	"strings"
	"sync"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/swagger"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"docvault/docs"
	"docvault/internal/config"
	"docvault/internal/http/handler"
	"docvault/internal/http/middleware"
	"docvault/internal/service"
)

// multipartOverhead is added to the upload limit to obtain the request body
// limit, leaving room for boundaries and part headers.
const multipartOverhead = 1 << 20

// swaggerMu serializes per-request rewrites of docs.SwaggerInfo.
var swaggerMu sync.Mutex

// Options are the dependencies of the HTTP application.
type Options struct {
	Config   *config.AppConfig
	DB       *sql.DB
	Service  service.DocumentService
	Logger   *zap.Logger
	Registry *prometheus.Registry
}

// New builds the Fiber app. Middleware runs in this order: recover, request
// id, tracing, CORS, metrics, access log.
func New(o Options) (*fiber.App, error) {
	log := o.Logger
	if log == nil {
		log = zap.NewNop()
	}
	reg := o.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	maxUpload := o.Config.Storage.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = config.DefaultMaxUploadBytes
	}

	app := fiber.New(fiber.Config{
		AppName:               "docvault",
		BodyLimit:             int(maxUpload + multipartOverhead),
		ErrorHandler:          handler.ErrorHandler(log, maxUpload),
		DisableStartupMessage: true,
	})

	prom, err := middleware.NewPrometheusMiddleware(reg)
	if err != nil {
		return nil, err
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(otelfiber.Middleware())
	app.Use(cors.New(cors.Config{
		AllowOrigins:  strings.Join(o.Config.AllowedOrigins, ","),
		AllowMethods:  strings.Join([]string{fiber.MethodGet, fiber.MethodPost, fiber.MethodDelete}, ","),
		AllowHeaders:  "Origin, Content-Type, Accept, " + middleware.RequestIDHeader,
		ExposeHeaders: "Content-Disposition, " + middleware.RequestIDHeader,
	}))
	app.Use(prom.Handler())
	app.Use(middleware.Logger(log))

	handler.RegisterRoutes(app, o.DB, o.Service, log)
	handler.RegisterMetrics(app, reg)

	// Swagger UI with dynamic host and scheme
	app.Get("/swagger/*", func(c *fiber.Ctx) error {
		scheme := c.Protocol()
		if proto := c.Get("X-Forwarded-Proto"); proto != "" {
			scheme = strings.TrimSpace(strings.Split(proto, ",")[0])
		}

		// SwaggerInfo is package-global; hold the lock until the doc is rendered.
		swaggerMu.Lock()
		defer swaggerMu.Unlock()
		docs.SwaggerInfo.Host = c.Get("Host")
		docs.SwaggerInfo.Schemes = []string{scheme}

		return swagger.HandlerDefault(c)
	})

	return app, nil
}
