package service

import (
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/filevault/internal/apperr"
	"github.com/iliyamo/filevault/internal/metrics"
	"github.com/iliyamo/filevault/internal/model"
	"github.com/iliyamo/filevault/internal/queue"
	"github.com/iliyamo/filevault/internal/repository"
	"github.com/iliyamo/filevault/internal/storage"
)

const (
	DefaultPage     = 1
	DefaultPageSize = 10
	MaxPageSize     = 100
	// largest page whose offset (page-1)*MaxPageSize still fits in an int
	MaxPage = math.MaxInt/MaxPageSize + 1

	maxMimeLen = 255

	maxNameLen = 255
)

// FileService keeps blobs and metadata rows consistent. A row is written
// only after its blob exists, and a blob is deleted only after no row
// references it, so a record never points at a missing blob.
//
// Mutations run on a context detached from the caller: once a sequence
// has started it finishes even if the client goes away.
type FileService struct {
	files   FileStore
	blobs   BlobStore
	events  EventPublisher
	log     *zap.SugaredLogger
	now     func() time.Time
	newName func() string
}

func NewFileService(files FileStore, blobs BlobStore, events EventPublisher, log *zap.SugaredLogger) *FileService {
	if events == nil {
		events = queue.Nop{}
	}
	return &FileService{
		files:   files,
		blobs:   blobs,
		events:  events,
		log:     log,
		now:     time.Now,
		newName: uuid.NewString,
	}
}

// Store writes the blob under a fresh storage name and then inserts the
// record. If the insert fails the blob is removed again.
func (s *FileService) Store(ctx context.Context, ownerID string, data []byte, originalName, mimeType string) (rec *model.FileRecord, err error) {
	defer func() { metrics.ObserveFile("store", err) }()

	if len(data) == 0 {
		return nil, apperr.ErrEmptyPayload
	}
	ctx = context.WithoutCancel(ctx)

	name, err := s.putBlob(ctx, data)
	if err != nil {
		return nil, err
	}
	rec = &model.FileRecord{
		OwnerID:     ownerID,
		StorageName: name,
		UploadedAt:  s.now().UTC().Truncate(time.Second),
	}
	describe(rec, data, originalName, mimeType)

	if err := s.files.Insert(ctx, rec); err != nil {
		s.discardBlob(ctx, name, "insert failed")
		return nil, apperr.Infra("insert file record", err)
	}

	s.log.Infow("file stored", "user_id", ownerID, "file_id", rec.ID, "storage_name", name, "size", rec.Size)
	s.publish(ctx, queue.FileStored, ownerID, rec.ID)
	return rec, nil
}

// List returns one page of the owner's records, newest first. Page and
// page size below 1 fall back to the defaults; values above MaxPage and
// MaxPageSize are clamped.
func (s *FileService) List(ctx context.Context, ownerID string, page, pageSize int) (model.FilePage, error) {
	switch {
	case page < 1:
		page = DefaultPage
	case page > MaxPage:
		page = MaxPage
	}
	switch {
	case pageSize < 1:
		pageSize = DefaultPageSize
	case pageSize > MaxPageSize:
		pageSize = MaxPageSize
	}
	records, total, err := s.files.ListByOwner(ctx, ownerID, pageSize, (page-1)*pageSize)
	if err != nil {
		return model.FilePage{}, apperr.Infra("list files", err)
	}
	if records == nil {
		records = []model.FileRecord{}
	}
	return model.FilePage{Records: records, Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Get returns the record only when it belongs to ownerID.
func (s *FileService) Get(ctx context.Context, id uint64, ownerID string) (*model.FileRecord, error) {
	rec, err := s.files.GetByIDAndOwner(ctx, id, ownerID)
	if err != nil {
		if errors.Is(err, repository.ErrFileNotFound) {
			return nil, apperr.ErrNotFound
		}
		return nil, apperr.Infra("get file", err)
	}
	return rec, nil
}

// ResolveForDownload returns the record and a reader over its blob. A
// missing blob is reported as an ordinary not-found.
func (s *FileService) ResolveForDownload(ctx context.Context, id uint64, ownerID string) (io.ReadCloser, *model.FileRecord, error) {
	rec, err := s.Get(ctx, id, ownerID)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.blobs.Open(ctx, rec.StorageName)
	if err != nil {
		if errors.Is(err, storage.ErrBlobNotFound) {
			s.log.Warnw("file record without blob", "user_id", ownerID, "file_id", id, "storage_name", rec.StorageName)
			return nil, nil, apperr.ErrNotFound
		}
		return nil, nil, apperr.Infra("open blob", err)
	}
	return rc, rec, nil
}

// Update replaces the content of a file: new blob, then row, then removal
// of the old blob. A failed row update deletes the new blob and leaves the
// previous state untouched; a failed removal of the old blob is only logged.
func (s *FileService) Update(ctx context.Context, id uint64, ownerID string, data []byte, originalName, mimeType string) (rec *model.FileRecord, err error) {
	defer func() { metrics.ObserveFile("update", err) }()

	if len(data) == 0 {
		return nil, apperr.ErrEmptyPayload
	}
	ctx = context.WithoutCancel(ctx)

	current, err := s.Get(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	name, err := s.putBlob(ctx, data)
	if err != nil {
		return nil, err
	}

	next := *current
	next.StorageName = name
	describe(&next, data, originalName, mimeType)

	if err := s.files.UpdateContent(ctx, &next); err != nil {
		s.discardBlob(ctx, name, "update failed")
		if errors.Is(err, repository.ErrFileNotFound) {
			return nil, apperr.ErrNotFound
		}
		return nil, apperr.Infra("update file record", err)
	}

	if err := s.blobs.Delete(ctx, current.StorageName); err != nil {
		s.log.Warnw("old blob not deleted", "user_id", ownerID, "file_id", id, "storage_name", current.StorageName, "error", err)
	}
	s.log.Infow("file updated", "user_id", ownerID, "file_id", id, "storage_name", name, "size", next.Size)
	s.publish(ctx, queue.FileUpdated, ownerID, id)
	return &next, nil
}

// Delete removes the row and then, best effort, the blob. The file is gone
// once the row is gone.
func (s *FileService) Delete(ctx context.Context, id uint64, ownerID string) (err error) {
	defer func() { metrics.ObserveFile("delete", err) }()

	ctx = context.WithoutCancel(ctx)
	current, err := s.Get(ctx, id, ownerID)
	if err != nil {
		return err
	}
	if err := s.files.DeleteByIDAndOwner(ctx, id, ownerID); err != nil {
		if errors.Is(err, repository.ErrFileNotFound) {
			return apperr.ErrNotFound
		}
		return apperr.Infra("delete file record", err)
	}
	if err := s.blobs.Delete(ctx, current.StorageName); err != nil {
		s.log.Warnw("blob not deleted", "user_id", ownerID, "file_id", id, "storage_name", current.StorageName, "error", err)
	}
	s.log.Infow("file deleted", "user_id", ownerID, "file_id", id)
	s.publish(ctx, queue.FileDeleted, ownerID, id)
	return nil
}

// putBlob writes data under a freshly generated name. A name collision is
// never resolved by overwriting.
func (s *FileService) putBlob(ctx context.Context, data []byte) (string, error) {
	name := s.newName()
	if err := s.blobs.Put(ctx, name, data); err != nil {
		if errors.Is(err, storage.ErrBlobExists) {
			s.log.Errorw("storage name collision", "storage_name", name)
			return "", apperr.Infra("storage name collision", err)
		}
		return "", apperr.Infra("write blob", err)
	}
	return name, nil
}

func (s *FileService) discardBlob(ctx context.Context, name, reason string) {
	if err := s.blobs.Delete(ctx, name); err != nil {
		s.log.Warnw("orphan blob not deleted", "storage_name", name, "reason", reason, "error", err)
	}
}

func (s *FileService) publish(ctx context.Context, typ, ownerID string, id uint64) {
	ev := queue.NewEvent(typ, ownerID)
	ev.FileID = id
	_ = s.events.Publish(ctx, ev)
}

// describe fills the client-derived fields of rec from the upload.
func describe(rec *model.FileRecord, data []byte, originalName, mimeType string) {
	name := cleanName(originalName)
	rec.OriginalName = name
	rec.Extension = strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
	rec.MimeType = strings.TrimSpace(mimeType)
	if len(rec.MimeType) > maxMimeLen || !utf8.ValidString(rec.MimeType) {
		rec.MimeType = ""
	}
	if rec.MimeType == "" || rec.MimeType == "application/octet-stream" {
		rec.MimeType = http.DetectContentType(data)
	}
	rec.Size = int64(len(data))
}

// cleanName drops any directory part a client may send and bounds the length.
func cleanName(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	name = strings.TrimSpace(path.Base(name))
	if name == "" || name == "." || name == "/" || name == ".." {
		return "file"
	}
	if !utf8.ValidString(name) {
		name = strings.ToValidUTF8(name, "_")
	}
	for len(name) > maxNameLen {
		_, size := utf8.DecodeLastRuneInString(name)
		name = name[:len(name)-size]
	}
	return name
}
