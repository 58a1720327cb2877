package handler

import (
	"database/sql"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"docvault/internal/http/middleware"
	"docvault/internal/service"
)

// RegisterRoutes attaches the health and document routes to app.
func RegisterRoutes(app *fiber.App, db *sql.DB, docSvc service.DocumentService, log *zap.Logger) {
	app.Get("/health", HealthCheck(db))
	app.Get("/healthz", LivenessProbe())

	app.Post("/documents/upload", UploadDocument(docSvc, log))
	app.Get("/documents", ListDocuments(docSvc, log))
	app.Get("/documents/:id", DownloadDocument(docSvc, log))
	app.Delete("/documents/:id", DeleteDocument(docSvc, log))
}

// RegisterMetrics exposes gatherer in the Prometheus text format.
func RegisterMetrics(app *fiber.App, gatherer prometheus.Gatherer) {
	app.Get(middleware.MetricsPath, adaptor.HTTPHandler(
		promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}),
	))
}
