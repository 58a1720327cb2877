package handler

import (
	"fmt"
	"mime"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"docvault/internal/model"
	"docvault/internal/service"
)

// UploadFormField is the multipart field carrying the file.
const UploadFormField = "file"

// DocumentResponse is returned after a successful upload.
type DocumentResponse struct {
	Success  bool           `json:"success" example:"true"`
	Message  string         `json:"message" example:"File uploaded successfully"`
	Document model.Document `json:"document"`
}

// DocumentListResponse lists every stored document, newest first.
type DocumentListResponse struct {
	Success   bool             `json:"success" example:"true"`
	Documents []model.Document `json:"documents"`
}

// MessageResponse is a success body without payload.
type MessageResponse struct {
	Success bool   `json:"success" example:"true"`
	Message string `json:"message" example:"Document deleted successfully"`
}

// UploadDocument accepts exactly one PDF in the "file" multipart field.
//
// @Summary     Upload a PDF
// @Tags        documents
// @Accept      multipart/form-data
// @Produce     json
// @Param       file formData file true "PDF document"
// @Success     201 {object} DocumentResponse
// @Failure     400 {object} ErrorResponse
// @Failure     500 {object} ErrorResponse
// @Router      /documents/upload [post]
func UploadDocument(svc service.DocumentService, log *zap.Logger) fiber.Handler {
	log = orNop(log)
	return func(c *fiber.Ctx) error {
		form, err := c.MultipartForm()
		if err != nil {
			return writeServiceError(c, log, "", service.ErrNoFile)
		}
		files := form.File[UploadFormField]
		switch {
		case len(files) == 0:
			return writeServiceError(c, log, "", service.ErrNoFile)
		case len(files) > 1:
			return writeServiceError(c, log, "", service.ErrMultipleFiles)
		}

		fh := files[0]
		f, err := fh.Open()
		if err != nil {
			return writeServiceError(c, log, "Failed to upload file", fmt.Errorf("open multipart file: %w", err))
		}
		defer f.Close()

		doc, err := svc.Upload(c.UserContext(), service.UploadInput{
			Reader:      f,
			Filename:    fh.Filename,
			ContentType: fh.Header.Get(fiber.HeaderContentType),
			Size:        fh.Size,
		})
		if err != nil {
			return writeServiceError(c, log, "Failed to upload file", err)
		}

		return c.Status(fiber.StatusCreated).JSON(DocumentResponse{
			Success:  true,
			Message:  "File uploaded successfully",
			Document: *doc,
		})
	}
}

// ListDocuments returns all documents.
//
// @Summary     List documents
// @Tags        documents
// @Produce     json
// @Success     200 {object} DocumentListResponse
// @Failure     500 {object} ErrorResponse
// @Router      /documents [get]
func ListDocuments(svc service.DocumentService, log *zap.Logger) fiber.Handler {
	log = orNop(log)
	return func(c *fiber.Ctx) error {
		items, err := svc.List(c.UserContext())
		if err != nil {
			return writeServiceError(c, log, "Failed to retrieve documents", err)
		}
		if items == nil {
			items = []model.Document{}
		}
		return c.JSON(DocumentListResponse{Success: true, Documents: items})
	}
}

// DownloadDocument streams the stored PDF as an attachment.
//
// @Summary     Download a document
// @Tags        documents
// @Produce     application/pdf
// @Param       id path int true "Document ID"
// @Success     200 {file} binary
// @Failure     404 {object} ErrorResponse
// @Failure     500 {object} ErrorResponse
// @Router      /documents/{id} [get]
func DownloadDocument(svc service.DocumentService, log *zap.Logger) fiber.Handler {
	log = orNop(log)
	return func(c *fiber.Ctx) error {
		id, ok := parseID(c)
		if !ok {
			return writeServiceError(c, log, "", service.ErrNotFound)
		}

		dl, err := svc.Open(c.UserContext(), id)
		if err != nil {
			return writeServiceError(c, log, "Failed to download file", err)
		}

		c.Set(fiber.HeaderContentDisposition, contentDisposition(dl.Document.Filename))
		c.Set(fiber.HeaderContentType, dl.ContentType)
		// fasthttp closes the body once it has been written.
		return c.SendStream(dl.Body, int(dl.Size))
	}
}

// DeleteDocument removes the record and then the stored file.
//
// @Summary     Delete a document
// @Tags        documents
// @Produce     json
// @Param       id path int true "Document ID"
// @Success     200 {object} MessageResponse
// @Failure     404 {object} ErrorResponse
// @Failure     500 {object} ErrorResponse
// @Router      /documents/{id} [delete]
func DeleteDocument(svc service.DocumentService, log *zap.Logger) fiber.Handler {
	log = orNop(log)
	return func(c *fiber.Ctx) error {
		id, ok := parseID(c)
		if !ok {
			return writeServiceError(c, log, "", service.ErrNotFound)
		}

		if err := svc.Delete(c.UserContext(), id); err != nil {
			return writeServiceError(c, log, "Failed to delete document", err)
		}
		return c.JSON(MessageResponse{Success: true, Message: "Document deleted successfully"})
	}
}

// parseID accepts positive decimal ids only; anything else cannot name a
// document and is reported as not found.
func parseID(c *fiber.Ctx) (int64, bool) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// contentDisposition builds an attachment header that carries the original
// filename verbatim. Non-ASCII names use the RFC 2231 filename* form and
// quotes are backslash-escaped.
func contentDisposition(filename string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": filename}); v != "" {
		return v
	}
	return "attachment"
}

func orNop(log *zap.Logger) *zap.Logger {
	if log == nil {
		return zap.NewNop()
	}
	return log
}
