package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"mime"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"docvault/internal/config"
	"docvault/internal/model"
	"docvault/internal/repository"
	"docvault/internal/storage"
)

// PDFContentType is the only media type accepted on upload and the one
// reported on download.
const PDFContentType = "application/pdf"

var tracer = otel.Tracer("docvault/internal/service")

// UploadInput describes one uploaded file. Size is the declared length in
// bytes, or -1 when unknown.
type UploadInput struct {
	Reader      io.Reader
	Filename    string
	ContentType string
	Size        int64
}

// Download is an opened document. The caller must close Body.
type Download struct {
	Document    model.Document
	Body        io.ReadCloser
	Size        int64
	ContentType string
}

// DocumentService defines the use cases for handling documents.
type DocumentService interface {
	// Upload validates the file, stores the blob, then saves metadata. If saving
	// metadata fails the blob is removed again.
	Upload(ctx context.Context, in UploadInput) (*model.Document, error)

	// List returns every document, newest first.
	List(ctx context.Context) ([]model.Document, error)

	// Open resolves a document and opens its blob for streaming.
	Open(ctx context.Context, id int64) (*Download, error)

	// Delete removes the record, then the blob.
	Delete(ctx context.Context, id int64) error
}

// Option configures a documentService.
type Option func(*documentService)

// WithLogger sets the logger used for compensation and inconsistency reports.
func WithLogger(log *zap.Logger) Option {
	return func(s *documentService) {
		if log != nil {
			s.log = log
		}
	}
}

// WithMaxUploadBytes overrides the upload size limit.
func WithMaxUploadBytes(n int64) Option {
	return func(s *documentService) {
		if n > 0 {
			s.maxBytes = n
		}
	}
}

// withPrefix replaces the random storage-name prefix source. Tests only.
func withPrefix(f func() string) Option {
	return func(s *documentService) { s.prefix = f }
}

// documentService is a concrete implementation of DocumentService.
type documentService struct {
	store    storage.Storage
	repo     repository.DocumentRepository
	log      *zap.Logger
	maxBytes int64
	prefix   func() string
	now      func() time.Time
}

// NewDocumentService constructs a new DocumentService.
func NewDocumentService(store storage.Storage, repo repository.DocumentRepository, opts ...Option) DocumentService {
	s := &documentService{
		store:    store,
		repo:     repo,
		log:      zap.NewNop(),
		maxBytes: config.DefaultMaxUploadBytes,
		prefix:   randomPrefix,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *documentService) Upload(ctx context.Context, in UploadInput) (doc *model.Document, err error) {
	ctx, span := tracer.Start(ctx, "DocumentService.Upload",
		trace.WithAttributes(attribute.Int64("document.declared_size", in.Size)))
	defer func() { endSpan(span, err) }()

	if err := s.validate(in); err != nil {
		return nil, err
	}

	key := storageName(s.prefix(), in.Filename)
	span.SetAttributes(attribute.String("document.filepath", key))

	body := &capReader{r: in.Reader, remaining: s.maxBytes}
	size := in.Size
	if size < 0 {
		size = -1
	}
	info, err := s.store.Put(ctx, key, body, storage.PutObjectOptions{
		Size:        size,
		ContentType: PDFContentType,
	})
	if err != nil {
		if errors.Is(err, ErrSizeLimit) {
			return nil, &SizeLimitError{Limit: s.maxBytes}
		}
		return nil, fmt.Errorf("%w: %w", ErrStorageWrite, err)
	}

	stored, err := s.repo.Create(ctx, &model.Document{
		Filename:  in.Filename,
		Filepath:  info.Key,
		Filesize:  info.Size,
		CreatedAt: s.now(),
	})
	if err != nil {
		// The request may already be cancelled; the cleanup must still run.
		s.discardBlob(context.WithoutCancel(ctx), info.Key, err)
		return nil, fmt.Errorf("%w: %w", ErrMetadataWrite, err)
	}

	span.SetAttributes(attribute.Int64("document.id", stored.ID))
	s.log.Info("document_uploaded",
		zap.Int64("document_id", stored.ID),
		zap.String("filepath", stored.Filepath),
		zap.Int64("filesize", stored.Filesize),
	)
	return stored, nil
}

// validate rejects bad input before anything is written.
func (s *documentService) validate(in UploadInput) error {
	if in.Reader == nil || in.Filename == "" {
		return ErrNoFile
	}
	if !isPDF(in.ContentType) {
		return ErrUnsupportedType
	}
	if in.Size > s.maxBytes {
		return &SizeLimitError{Limit: s.maxBytes}
	}
	return nil
}

// discardBlob removes a blob whose metadata insert failed. Failures are only
// logged: the upload has already failed and the caller gets that error.
func (s *documentService) discardBlob(ctx context.Context, key string, cause error) {
	if err := s.store.Delete(ctx, key); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		s.log.Error("orphan_cleanup_failed",
			zap.String("filepath", key),
			zap.NamedError("cause", cause),
			zap.Error(err),
		)
		return
	}
	s.log.Warn("orphan_cleanup_done",
		zap.String("filepath", key),
		zap.NamedError("cause", cause),
	)
}

// List returns all documents ordered newest first.
func (s *documentService) List(ctx context.Context) (items []model.Document, err error) {
	ctx, span := tracer.Start(ctx, "DocumentService.List")
	defer func() { endSpan(span, err) }()

	items, err = s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	span.SetAttributes(attribute.Int("document.count", len(items)))
	return items, nil
}

// Open returns the document and its opened blob.
func (s *documentService) Open(ctx context.Context, id int64) (dl *Download, err error) {
	ctx, span := tracer.Start(ctx, "DocumentService.Open",
		trace.WithAttributes(attribute.Int64("document.id", id)))
	defer func() { endSpan(span, err) }()

	doc, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	rc, info, err := s.store.Get(ctx, doc.Filepath)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			s.log.Warn("blob_missing",
				zap.Int64("document_id", doc.ID),
				zap.String("filepath", doc.Filepath),
			)
			return nil, fmt.Errorf("document %d: %w", id, ErrBlobMissing)
		}
		return nil, fmt.Errorf("open blob: %w", err)
	}

	return &Download{
		Document:    *doc,
		Body:        rc,
		Size:        info.Size,
		ContentType: PDFContentType,
	}, nil
}

// Delete removes the metadata row first; once it is gone the document is gone.
// Blob removal afterwards is best effort.
func (s *documentService) Delete(ctx context.Context, id int64) (err error) {
	ctx, span := tracer.Start(ctx, "DocumentService.Delete",
		trace.WithAttributes(attribute.Int64("document.id", id)))
	defer func() { endSpan(span, err) }()

	doc, err := s.find(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("delete metadata: %w", err)
	}

	if err := s.store.Delete(context.WithoutCancel(ctx), doc.Filepath); err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			s.log.Info("blob_already_absent",
				zap.Int64("document_id", id),
				zap.String("filepath", doc.Filepath),
			)
			return nil
		}
		s.log.Error("blob_delete_failed",
			zap.Int64("document_id", id),
			zap.String("filepath", doc.Filepath),
			zap.Error(err),
		)
	}
	return nil
}

// find looks a document up, mapping a missing row to ErrNotFound.
func (s *documentService) find(ctx context.Context, id int64) (*model.Document, error) {
	if id <= 0 {
		return nil, ErrNotFound
	}
	doc, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find document %d: %w", id, err)
	}
	return doc, nil
}

func isPDF(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && mt == PDFContentType
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// capReader passes reads through until more than limit bytes have been seen,
// then fails with ErrSizeLimit. It never reads more than one byte past limit.
type capReader struct {
	r         io.Reader
	remaining int64
}

func (c *capReader) Read(p []byte) (int, error) {
	if c.remaining < 0 {
		return 0, ErrSizeLimit
	}
	if int64(len(p)) > c.remaining+1 {
		p = p[:c.remaining+1]
	}
	n, err := c.r.Read(p)
	c.remaining -= int64(n)
	if c.remaining < 0 {
		return n, ErrSizeLimit
	}
	return n, err
}
