package service

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
)

// Validation errors. Returned before anything is written.
var (
	ErrNoFile          = errors.New("no file uploaded")
	ErrMultipleFiles   = errors.New("exactly one file must be uploaded")
	ErrUnsupportedType = errors.New("only PDF files are allowed")
	ErrSizeLimit       = errors.New("file size exceeds the limit")
)

// Lookup and consistency errors.
var (
	ErrNotFound = errors.New("document not found")
	// ErrBlobMissing means the record exists but its blob does not.
	ErrBlobMissing = errors.New("document file missing from storage")
)

// Server-side write failures.
var (
	ErrStorageWrite  = errors.New("failed to store file")
	ErrMetadataWrite = errors.New("failed to save file metadata")
)

// SizeLimitError carries the limit that was exceeded. It matches ErrSizeLimit
// under errors.Is.
type SizeLimitError struct {
	Limit int64
}

func (e *SizeLimitError) Error() string {
	return fmt.Sprintf("file size exceeds the %s limit", humanize.IBytes(uint64(e.Limit)))
}

func (e *SizeLimitError) Is(target error) bool {
	return target == ErrSizeLimit
}

// IsValidation reports whether err rejects the client's input, as opposed to
// a lookup miss or a server-side failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrNoFile) ||
		errors.Is(err, ErrMultipleFiles) ||
		errors.Is(err, ErrUnsupportedType) ||
		errors.Is(err, ErrSizeLimit)
}
