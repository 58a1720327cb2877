package service

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"docvault/internal/model"
	repoMocks "docvault/internal/repository/mocks"
	"docvault/internal/storage"
	storeMocks "docvault/internal/storage/mocks"
)

const testPrefix = "a1b2c3d4e5f6"

// drainPut emulates a blob store that consumes the whole stream.
func drainPut(ctx context.Context, key string, r io.Reader, opt storage.PutObjectOptions) storage.ObjectInfo {
	n, _ := io.Copy(io.Discard, r)
	return storage.ObjectInfo{Key: key, Size: n, ContentType: opt.ContentType}
}

func pdfInput(body string) UploadInput {
	return UploadInput{
		Reader:      strings.NewReader(body),
		Filename:    "my report (1).pdf",
		ContentType: "application/pdf",
		Size:        int64(len(body)),
	}
}

func TestDocumentService_Upload(t *testing.T) {
	ctx := context.Background()
	wantKey := testPrefix + "_my_report__1_.pdf"

	tests := []struct {
		name       string
		input      UploadInput
		setupMocks func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository)
		wantErr    error
		check      func(t *testing.T, doc *model.Document, logs *observer.ObservedLogs)
	}{
		{
			name:  "happy path",
			input: pdfInput("hello world"),
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {
				mStore.On("Put", mock.Anything, wantKey, mock.Anything, storage.PutObjectOptions{
					Size:        11,
					ContentType: "application/pdf",
				}).Return(drainPut, nil)

				mRepo.On("Create", mock.Anything, mock.MatchedBy(func(doc *model.Document) bool {
					return doc.Filename == "my report (1).pdf" &&
						doc.Filepath == wantKey &&
						doc.Filesize == 11 &&
						!doc.CreatedAt.IsZero()
				})).Return(&model.Document{ID: 1, Filename: "my report (1).pdf", Filepath: wantKey, Filesize: 11}, nil)
			},
			check: func(t *testing.T, doc *model.Document, logs *observer.ObservedLogs) {
				require.NotNil(t, doc)
				assert.Equal(t, int64(1), doc.ID)
				assert.Equal(t, int64(11), doc.Filesize)
				assert.Equal(t, 1, logs.FilterMessage("document_uploaded").Len())
			},
		},
		{
			name: "media type parameters are ignored",
			input: UploadInput{
				Reader:      strings.NewReader("%PDF"),
				Filename:    "a.pdf",
				ContentType: "Application/PDF; charset=binary",
				Size:        -1,
			},
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {
				mStore.On("Put", mock.Anything, testPrefix+"_a.pdf", mock.Anything, storage.PutObjectOptions{
					Size:        -1,
					ContentType: "application/pdf",
				}).Return(drainPut, nil)
				mRepo.On("Create", mock.Anything, mock.MatchedBy(func(doc *model.Document) bool {
					return doc.Filesize == 4
				})).Return(&model.Document{ID: 2}, nil)
			},
		},
		{
			name:       "validation error - nil reader",
			input:      UploadInput{Filename: "a.pdf", ContentType: "application/pdf"},
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {},
			wantErr:    ErrNoFile,
		},
		{
			name:       "validation error - empty filename",
			input:      UploadInput{Reader: strings.NewReader("x"), ContentType: "application/pdf"},
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {},
			wantErr:    ErrNoFile,
		},
		{
			name: "validation error - not a pdf",
			input: UploadInput{
				Reader:      strings.NewReader("hello"),
				Filename:    "notes.txt",
				ContentType: "text/plain",
				Size:        5,
			},
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {},
			wantErr:    ErrUnsupportedType,
		},
		{
			name: "validation error - pdf extension does not make a pdf",
			input: UploadInput{
				Reader:      strings.NewReader("hello"),
				Filename:    "fake.pdf",
				ContentType: "application/octet-stream",
				Size:        5,
			},
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {},
			wantErr:    ErrUnsupportedType,
		},
		{
			name: "validation error - declared size over limit",
			input: UploadInput{
				Reader:      strings.NewReader(""),
				Filename:    "big.pdf",
				ContentType: "application/pdf",
				Size:        10*1024*1024 + 1,
			},
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {},
			wantErr:    ErrSizeLimit,
		},
		{
			name:  "storage error",
			input: pdfInput("hello"),
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {
				mStore.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
					Return(storage.ObjectInfo{}, errors.New("disk full"))
			},
			wantErr: ErrStorageWrite,
		},
		{
			name:  "repository error with successful rollback",
			input: pdfInput("hello"),
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {
				mStore.On("Put", mock.Anything, wantKey, mock.Anything, mock.Anything).Return(drainPut, nil)
				mRepo.On("Create", mock.Anything, mock.Anything).Return(nil, errors.New("db fail"))
				mStore.On("Delete", mock.Anything, wantKey).Return(nil)
			},
			wantErr: ErrMetadataWrite,
			check: func(t *testing.T, doc *model.Document, logs *observer.ObservedLogs) {
				assert.Equal(t, 1, logs.FilterMessage("orphan_cleanup_done").Len())
			},
		},
		{
			name:  "repository error with failed rollback",
			input: pdfInput("hello"),
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {
				mStore.On("Put", mock.Anything, wantKey, mock.Anything, mock.Anything).Return(drainPut, nil)
				mRepo.On("Create", mock.Anything, mock.Anything).Return(nil, errors.New("db fail"))
				mStore.On("Delete", mock.Anything, wantKey).Return(errors.New("permission denied"))
			},
			wantErr: ErrMetadataWrite,
			check: func(t *testing.T, doc *model.Document, logs *observer.ObservedLogs) {
				failed := logs.FilterMessage("orphan_cleanup_failed").All()
				require.Len(t, failed, 1)
				assert.Equal(t, wantKey, failed[0].ContextMap()["filepath"])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mStore := new(storeMocks.MockStorage)
			mRepo := new(repoMocks.MockDocumentRepository)
			core, logs := observer.New(zapcore.DebugLevel)
			svc := NewDocumentService(mStore, mRepo,
				WithLogger(zap.New(core)),
				withPrefix(func() string { return testPrefix }),
			)

			tt.setupMocks(mStore, mRepo)

			doc, err := svc.Upload(ctx, tt.input)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, doc)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, doc)
			}
			if tt.check != nil {
				tt.check(t, doc, logs)
			}

			mStore.AssertExpectations(t)
			mRepo.AssertExpectations(t)
		})
	}
}

func TestDocumentService_UploadRollbackIgnoresCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	mStore := new(storeMocks.MockStorage)
	mRepo := new(repoMocks.MockDocumentRepository)
	svc := NewDocumentService(mStore, mRepo, withPrefix(func() string { return testPrefix }))

	mStore.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(drainPut, nil)
	mRepo.On("Create", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return(nil, context.Canceled)
	mStore.On("Delete", mock.MatchedBy(func(c context.Context) bool { return c.Err() == nil }), mock.Anything).
		Return(nil)

	_, err := svc.Upload(ctx, pdfInput("hello"))

	assert.ErrorIs(t, err, ErrMetadataWrite)
	assert.ErrorIs(t, err, context.Canceled)
	mStore.AssertExpectations(t)
}

func TestDocumentService_List(t *testing.T) {
	ctx := context.Background()

	t.Run("happy path", func(t *testing.T) {
		mRepo := new(repoMocks.MockDocumentRepository)
		mRepo.On("List", mock.Anything).Return([]model.Document{{ID: 2}, {ID: 1}}, nil)

		items, err := NewDocumentService(nil, mRepo).List(ctx)

		assert.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, int64(2), items[0].ID)
		mRepo.AssertExpectations(t)
	})

	t.Run("repository error", func(t *testing.T) {
		mRepo := new(repoMocks.MockDocumentRepository)
		mRepo.On("List", mock.Anything).Return(nil, errors.New("db fail"))

		items, err := NewDocumentService(nil, mRepo).List(ctx)

		assert.ErrorContains(t, err, "list documents: db fail")
		assert.Nil(t, items)
		mRepo.AssertExpectations(t)
	})
}

type nopCloser struct{ io.Reader }

func (nopCloser) Close() error { return nil }

func TestDocumentService_Open(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	stored := &model.Document{ID: 5, Filename: "report.pdf", Filepath: "abc_report.pdf", Filesize: 4, CreatedAt: created}

	tests := []struct {
		name       string
		id         int64
		setupMocks func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository)
		wantErr    error
		wantErrMsg string
	}{
		{
			name: "happy path",
			id:   5,
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {
				mRepo.On("FindByID", mock.Anything, int64(5)).Return(stored, nil)
				mStore.On("Get", mock.Anything, "abc_report.pdf").
					Return(nopCloser{strings.NewReader("%PDF")}, storage.ObjectInfo{Key: "abc_report.pdf", Size: 4}, nil)
			},
		},
		{
			name:       "non-positive id is not found",
			id:         0,
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {},
			wantErr:    ErrNotFound,
		},
		{
			name: "not found - mapping sql.ErrNoRows",
			id:   6,
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {
				mRepo.On("FindByID", mock.Anything, int64(6)).Return(nil, sql.ErrNoRows)
			},
			wantErr: ErrNotFound,
		},
		{
			name: "generic repository error",
			id:   7,
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {
				mRepo.On("FindByID", mock.Anything, int64(7)).Return(nil, errors.New("db fail"))
			},
			wantErrMsg: "find document 7: db fail",
		},
		{
			name: "blob missing",
			id:   5,
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {
				mRepo.On("FindByID", mock.Anything, int64(5)).Return(stored, nil)
				mStore.On("Get", mock.Anything, "abc_report.pdf").
					Return(nil, storage.ObjectInfo{}, storage.ErrObjectNotFound)
			},
			wantErr: ErrBlobMissing,
		},
		{
			name: "storage error",
			id:   5,
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {
				mRepo.On("FindByID", mock.Anything, int64(5)).Return(stored, nil)
				mStore.On("Get", mock.Anything, "abc_report.pdf").
					Return(nil, storage.ObjectInfo{}, errors.New("io error"))
			},
			wantErrMsg: "open blob: io error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mStore := new(storeMocks.MockStorage)
			mRepo := new(repoMocks.MockDocumentRepository)
			svc := NewDocumentService(mStore, mRepo)

			tt.setupMocks(mStore, mRepo)

			dl, err := svc.Open(ctx, tt.id)

			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, dl)
			case tt.wantErrMsg != "":
				assert.ErrorContains(t, err, tt.wantErrMsg)
				assert.NotErrorIs(t, err, ErrNotFound)
				assert.Nil(t, dl)
			default:
				require.NoError(t, err)
				assert.Equal(t, "report.pdf", dl.Document.Filename)
				assert.Equal(t, "application/pdf", dl.ContentType)
				assert.Equal(t, int64(4), dl.Size)
				body, _ := io.ReadAll(dl.Body)
				assert.Equal(t, "%PDF", string(body))
				assert.NoError(t, dl.Body.Close())
			}
			mStore.AssertExpectations(t)
			mRepo.AssertExpectations(t)
		})
	}
}

func TestDocumentService_Delete(t *testing.T) {
	ctx := context.Background()
	stored := &model.Document{ID: 3, Filepath: "abc_report.pdf"}

	tests := []struct {
		name       string
		id         int64
		setupMocks func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository)
		wantErr    error
		wantErrMsg string
		wantLog    string
	}{
		{
			name: "happy path",
			id:   3,
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {
				mRepo.On("FindByID", mock.Anything, int64(3)).Return(stored, nil)
				mRepo.On("Delete", mock.Anything, int64(3)).Return(nil)
				mStore.On("Delete", mock.Anything, "abc_report.pdf").Return(nil)
			},
		},
		{
			name: "not found",
			id:   4,
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {
				mRepo.On("FindByID", mock.Anything, int64(4)).Return(nil, sql.ErrNoRows)
			},
			wantErr: ErrNotFound,
		},
		{
			name:       "negative id",
			id:         -1,
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {},
			wantErr:    ErrNotFound,
		},
		{
			name: "row deleted concurrently",
			id:   3,
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {
				mRepo.On("FindByID", mock.Anything, int64(3)).Return(stored, nil)
				mRepo.On("Delete", mock.Anything, int64(3)).Return(sql.ErrNoRows)
			},
			wantErr: ErrNotFound,
		},
		{
			name: "repository delete error keeps blob",
			id:   3,
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {
				mRepo.On("FindByID", mock.Anything, int64(3)).Return(stored, nil)
				mRepo.On("Delete", mock.Anything, int64(3)).Return(errors.New("db fail"))
			},
			wantErrMsg: "delete metadata: db fail",
		},
		{
			name: "blob already absent",
			id:   3,
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {
				mRepo.On("FindByID", mock.Anything, int64(3)).Return(stored, nil)
				mRepo.On("Delete", mock.Anything, int64(3)).Return(nil)
				mStore.On("Delete", mock.Anything, "abc_report.pdf").Return(storage.ErrObjectNotFound)
			},
			wantLog: "blob_already_absent",
		},
		{
			name: "blob delete failure still succeeds",
			id:   3,
			setupMocks: func(mStore *storeMocks.MockStorage, mRepo *repoMocks.MockDocumentRepository) {
				mRepo.On("FindByID", mock.Anything, int64(3)).Return(stored, nil)
				mRepo.On("Delete", mock.Anything, int64(3)).Return(nil)
				mStore.On("Delete", mock.Anything, "abc_report.pdf").Return(errors.New("permission denied"))
			},
			wantLog: "blob_delete_failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mStore := new(storeMocks.MockStorage)
			mRepo := new(repoMocks.MockDocumentRepository)
			core, logs := observer.New(zapcore.DebugLevel)
			svc := NewDocumentService(mStore, mRepo, WithLogger(zap.New(core)))

			tt.setupMocks(mStore, mRepo)

			err := svc.Delete(ctx, tt.id)

			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.wantErrMsg != "":
				assert.ErrorContains(t, err, tt.wantErrMsg)
			default:
				assert.NoError(t, err)
			}
			if tt.wantLog != "" {
				assert.Equal(t, 1, logs.FilterMessage(tt.wantLog).Len())
			}
			mStore.AssertExpectations(t)
			mRepo.AssertExpectations(t)
		})
	}
}

func TestSizeLimitError(t *testing.T) {
	err := error(&SizeLimitError{Limit: 10 << 20})
	assert.ErrorIs(t, err, ErrSizeLimit)
	assert.Equal(t, "file size exceeds the 10 MiB limit", err.Error())
	assert.True(t, IsValidation(err))
	assert.True(t, IsValidation(ErrNoFile))
	assert.True(t, IsValidation(ErrMultipleFiles))
	assert.True(t, IsValidation(ErrUnsupportedType))
	assert.False(t, IsValidation(ErrNotFound))
	assert.False(t, IsValidation(ErrMetadataWrite))
}

func TestIsPDF(t *testing.T) {
	assert.True(t, isPDF("application/pdf"))
	assert.True(t, isPDF("APPLICATION/PDF"))
	assert.True(t, isPDF("application/pdf; name=x.pdf"))
	assert.False(t, isPDF(""))
	assert.False(t, isPDF("application/x-pdf"))
	assert.False(t, isPDF("image/png"))
}

func TestCapReader(t *testing.T) {
	t.Run("at limit", func(t *testing.T) {
		r := &capReader{r: strings.NewReader("12345"), remaining: 5}
		b, err := io.ReadAll(r)
		assert.NoError(t, err)
		assert.Equal(t, "12345", string(b))
	})

	t.Run("over limit", func(t *testing.T) {
		r := &capReader{r: strings.NewReader("123456"), remaining: 5}
		_, err := io.ReadAll(r)
		assert.ErrorIs(t, err, ErrSizeLimit)
	})
}
