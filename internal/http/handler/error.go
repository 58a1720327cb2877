package handler

import (
	"errors"

	"github.com/dustin/go-humanize"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"docvault/internal/http/middleware"
	"docvault/internal/service"
)

// ErrorResponse is the body of every JSON failure.
type ErrorResponse struct {
	Success   bool   `json:"success" example:"false"`
	Message   string `json:"message" example:"Document not found"`
	Code      string `json:"code" example:"NOT_FOUND"`
	RequestID string `json:"request_id,omitempty"`
}

// writeError writes a standardized JSON error response without leaking internal errors.
func writeError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(ErrorResponse{
		Success:   false,
		Message:   message,
		Code:      code,
		RequestID: middleware.GetRequestID(c),
	})
}

// writeServiceError is the single translation from service errors to HTTP.
// Server-side failures are logged with their cause; the client only sees a
// safe message.
func writeServiceError(c *fiber.Ctx, log *zap.Logger, fallback string, err error) error {
	var sizeErr *service.SizeLimitError
	switch {
	case errors.As(err, &sizeErr):
		return writeError(c, fiber.StatusBadRequest, "SIZE_LIMIT", capitalize(sizeErr.Error()))
	case errors.Is(err, service.ErrSizeLimit):
		return writeError(c, fiber.StatusBadRequest, "SIZE_LIMIT", "File size exceeds the upload limit")
	case errors.Is(err, service.ErrNoFile):
		return writeError(c, fiber.StatusBadRequest, "NO_FILE", "No file uploaded. Please select a PDF file.")
	case errors.Is(err, service.ErrMultipleFiles):
		return writeError(c, fiber.StatusBadRequest, "MULTIPLE_FILES", "Only one file can be uploaded at a time")
	case errors.Is(err, service.ErrUnsupportedType):
		return writeError(c, fiber.StatusBadRequest, "UNSUPPORTED_TYPE", "Only PDF files are allowed")
	case errors.Is(err, service.ErrNotFound):
		return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "Document not found")
	case errors.Is(err, service.ErrBlobMissing):
		return writeError(c, fiber.StatusNotFound, "BLOB_MISSING", "File not found on server")
	}

	fields := []zap.Field{
		zap.String("request_id", middleware.GetRequestID(c)),
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Error(err),
	}
	switch {
	case errors.Is(err, service.ErrStorageWrite):
		log.Error("storage_write_failed", fields...)
		return writeError(c, fiber.StatusInternalServerError, "STORAGE_ERROR", "Failed to store file")
	case errors.Is(err, service.ErrMetadataWrite):
		log.Error("metadata_write_failed", fields...)
		return writeError(c, fiber.StatusInternalServerError, "METADATA_ERROR", "Failed to save file metadata")
	default:
		log.Error("request_failed", fields...)
		return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", fallback)
	}
}

// ErrorHandler returns a Fiber global error handler that standardizes error
// responses. maxUploadBytes is only used to word the body-limit message.
func ErrorHandler(log *zap.Logger, maxUploadBytes int64) fiber.ErrorHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		}

		switch status {
		case fiber.StatusBadRequest:
			return writeError(c, status, "BAD_REQUEST", "Bad request")
		case fiber.StatusNotFound:
			return writeError(c, status, "NOT_FOUND", "Endpoint not found")
		case fiber.StatusMethodNotAllowed:
			return writeError(c, status, "METHOD_NOT_ALLOWED", "Method not allowed")
		case fiber.StatusRequestEntityTooLarge:
			// The whole request exceeded Fiber's body limit before any handler ran.
			msg := "File size exceeds the " + humanize.IBytes(uint64(maxUploadBytes)) + " limit"
			return writeError(c, fiber.StatusBadRequest, "SIZE_LIMIT", msg)
		default:
			log.Error("unhandled_error",
				zap.String("request_id", middleware.GetRequestID(c)),
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Int("status", status),
				zap.Error(err),
			)
			if status < fiber.StatusInternalServerError {
				return writeError(c, status, "REQUEST_ERROR", fe.Message)
			}
			return writeError(c, status, "INTERNAL_ERROR", "Internal server error")
		}
	}
}

func capitalize(s string) string {
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
