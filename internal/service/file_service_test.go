package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/filevault/internal/apperr"
	"github.com/iliyamo/filevault/internal/model"
	"github.com/iliyamo/filevault/internal/queue"
)

func newFileService(t *testing.T) (*FileService, *fakeFiles, *fakeBlobs, *clock) {
	t.Helper()
	files := newFakeFiles()
	blobs := newFakeBlobs()
	clk := newClock()
	svc := NewFileService(files, blobs, nil, testLog)
	svc.now = clk.Now
	return svc, files, blobs, clk
}

func readAll(t *testing.T, rc io.ReadCloser) []byte {
	t.Helper()
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	return b
}

func TestFileService_StoreGetDownload(t *testing.T) {
	svc, _, blobs, _ := newFileService(t)
	ctx := context.Background()
	payload := []byte("%PDF-1.4 some document")

	rec, err := svc.Store(ctx, "alice", payload, "Report.PDF", "application/pdf")
	require.NoError(t, err)
	assert.NotZero(t, rec.ID)
	assert.Equal(t, "Report.PDF", rec.OriginalName)
	assert.Equal(t, "pdf", rec.Extension)
	assert.Equal(t, "application/pdf", rec.MimeType)
	assert.EqualValues(t, len(payload), rec.Size)
	assert.True(t, blobs.has(rec.StorageName))

	got, err := svc.Get(ctx, rec.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, *rec, *got)

	rc, dl, err := svc.ResolveForDownload(ctx, rec.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, payload, readAll(t, rc))
	assert.Equal(t, rec.ID, dl.ID)
}

func TestFileService_StoreRejectsEmptyPayload(t *testing.T) {
	svc, files, blobs, _ := newFileService(t)

	_, err := svc.Store(context.Background(), "alice", nil, "a.txt", "text/plain")
	assert.ErrorIs(t, err, apperr.ErrEmptyPayload)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Zero(t, blobs.count())
	assert.Empty(t, files.rows)
}

func TestFileService_StoreBlobFailureCreatesNoRecord(t *testing.T) {
	svc, files, blobs, _ := newFileService(t)
	blobs.putErr = errors.New("disk full")

	_, err := svc.Store(context.Background(), "alice", []byte("x"), "a.txt", "")
	assert.Equal(t, apperr.KindInfrastructure, apperr.KindOf(err))
	assert.Empty(t, files.rows)
}

func TestFileService_StoreInsertFailureRemovesBlob(t *testing.T) {
	svc, files, blobs, _ := newFileService(t)
	files.insertErr = errors.New("db down")

	_, err := svc.Store(context.Background(), "alice", []byte("x"), "a.txt", "")
	assert.Equal(t, apperr.KindInfrastructure, apperr.KindOf(err))
	assert.Zero(t, blobs.count())
}

func TestFileService_StorageNameCollisionIsFatal(t *testing.T) {
	svc, files, blobs, _ := newFileService(t)
	svc.newName = func() string { return "fixed" }
	ctx := context.Background()

	first, err := svc.Store(ctx, "alice", []byte("first"), "a.txt", "")
	require.NoError(t, err)

	_, err = svc.Store(ctx, "bob", []byte("second"), "b.txt", "")
	assert.Equal(t, apperr.KindInfrastructure, apperr.KindOf(err))
	assert.Len(t, files.rows, 1)

	rc, _, err := svc.ResolveForDownload(ctx, first.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), readAll(t, rc))
	assert.Equal(t, 1, blobs.count())
}

func TestFileService_ListPagination(t *testing.T) {
	svc, _, _, clk := newFileService(t)
	ctx := context.Background()

	for i := 1; i <= 25; i++ {
		_, err := svc.Store(ctx, "alice", []byte{byte(i)}, fmt.Sprintf("f%02d.bin", i), "")
		require.NoError(t, err)
		clk.Advance(time.Minute)
	}
	_, err := svc.Store(ctx, "bob", []byte("x"), "b.bin", "")
	require.NoError(t, err)

	page, err := svc.List(ctx, "alice", 3, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 25, page.TotalCount)
	assert.Equal(t, 3, page.Page)
	assert.Equal(t, 10, page.PageSize)
	require.Len(t, page.Records, 5)
	for i, rec := range page.Records {
		assert.Equal(t, fmt.Sprintf("f%02d.bin", 5-i), rec.OriginalName)
	}

	for _, p := range []int{0, -4} {
		first, err := svc.List(ctx, "alice", p, 10)
		require.NoError(t, err)
		assert.Equal(t, 1, first.Page)
		require.Len(t, first.Records, 10)
		assert.Equal(t, "f25.bin", first.Records[0].OriginalName)
	}

	def, err := svc.List(ctx, "alice", 1, 0)
	require.NoError(t, err)
	assert.Equal(t, 10, def.PageSize)

	beyond, err := svc.List(ctx, "alice", 9, 10)
	require.NoError(t, err)
	assert.NotNil(t, beyond.Records)
	assert.Empty(t, beyond.Records)
	assert.EqualValues(t, 25, beyond.TotalCount)
}

func TestFileService_ListClampsLargeInputs(t *testing.T) {
	svc, files, _, _ := newFileService(t)
	ctx := context.Background()

	page, err := svc.List(ctx, "alice", 1, 1<<50)
	require.NoError(t, err)
	assert.Equal(t, MaxPageSize, page.PageSize)
	assert.Equal(t, MaxPageSize, files.lastLimit)
	assert.Equal(t, 0, files.lastOffset)

	for _, p := range []int{math.MaxInt64 / 5, math.MaxInt} {
		page, err = svc.List(ctx, "alice", p, 10)
		require.NoError(t, err)
		assert.Equal(t, MaxPage, page.Page)
		assert.Equal(t, 10, files.lastLimit)
		assert.GreaterOrEqual(t, files.lastOffset, 0)
	}

	_, err = svc.List(ctx, "alice", math.MaxInt, math.MaxInt)
	require.NoError(t, err)
	assert.Equal(t, MaxPageSize, files.lastLimit)
	assert.Equal(t, (MaxPage-1)*MaxPageSize, files.lastOffset)
	assert.GreaterOrEqual(t, files.lastOffset, 0)
}

func TestFileService_ForeignOwnerLooksAbsent(t *testing.T) {
	svc, files, blobs, _ := newFileService(t)
	ctx := context.Background()

	rec, err := svc.Store(ctx, "alice", []byte("secret"), "s.txt", "text/plain")
	require.NoError(t, err)
	const missing = 9999

	for _, id := range []uint64{rec.ID, missing} {
		_, err = svc.Get(ctx, id, "mallory")
		assert.Same(t, apperr.ErrNotFound, err)

		_, _, err = svc.ResolveForDownload(ctx, id, "mallory")
		assert.Same(t, apperr.ErrNotFound, err)

		_, err = svc.Update(ctx, id, "mallory", []byte("pwned"), "s.txt", "text/plain")
		assert.Same(t, apperr.ErrNotFound, err)

		err = svc.Delete(ctx, id, "mallory")
		assert.Same(t, apperr.ErrNotFound, err)
	}

	after, ok := files.get(rec.ID)
	require.True(t, ok)
	assert.Equal(t, *rec, after)
	assert.Equal(t, 1, blobs.count())
}

func TestFileService_Update(t *testing.T) {
	svc, _, blobs, clk := newFileService(t)
	ctx := context.Background()

	rec, err := svc.Store(ctx, "alice", []byte("v1"), "notes.txt", "text/plain")
	require.NoError(t, err)
	clk.Advance(time.Hour)

	updated, err := svc.Update(ctx, rec.ID, "alice", []byte("<html>v2 body</html>"), "page.HTML", "text/html")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, updated.ID)
	assert.NotEqual(t, rec.StorageName, updated.StorageName)
	assert.Equal(t, rec.UploadedAt, updated.UploadedAt)

	got, err := svc.Get(ctx, rec.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, "page.HTML", got.OriginalName)
	assert.Equal(t, "html", got.Extension)
	assert.Equal(t, "text/html", got.MimeType)
	assert.EqualValues(t, 20, got.Size)

	assert.False(t, blobs.has(rec.StorageName))
	assert.True(t, blobs.has(updated.StorageName))

	rc, _, err := svc.ResolveForDownload(ctx, rec.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, []byte("<html>v2 body</html>"), readAll(t, rc))

	_, err = svc.Update(ctx, rec.ID, "alice", nil, "x", "")
	assert.ErrorIs(t, err, apperr.ErrEmptyPayload)
}

func TestFileService_UpdateRowFailureRollsBack(t *testing.T) {
	svc, files, blobs, _ := newFileService(t)
	ctx := context.Background()

	rec, err := svc.Store(ctx, "alice", []byte("v1"), "a.txt", "text/plain")
	require.NoError(t, err)
	files.updateErr = errors.New("deadlock")

	_, err = svc.Update(ctx, rec.ID, "alice", []byte("v2"), "b.txt", "text/plain")
	assert.Equal(t, apperr.KindInfrastructure, apperr.KindOf(err))

	assert.Equal(t, 1, blobs.count())
	assert.True(t, blobs.has(rec.StorageName))
	got, ok := files.get(rec.ID)
	require.True(t, ok)
	assert.Equal(t, *rec, got)
}

func TestFileService_UpdateOldBlobDeleteFailureStillSucceeds(t *testing.T) {
	svc, _, blobs, _ := newFileService(t)
	ctx := context.Background()

	rec, err := svc.Store(ctx, "alice", []byte("v1"), "a.txt", "text/plain")
	require.NoError(t, err)
	blobs.deleteErr = errors.New("permission denied")

	updated, err := svc.Update(ctx, rec.ID, "alice", []byte("v2"), "a.txt", "text/plain")
	require.NoError(t, err)

	rc, _, err := svc.ResolveForDownload(ctx, rec.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), readAll(t, rc))
	// the stray old blob is tolerated
	assert.True(t, blobs.has(rec.StorageName))
	assert.True(t, blobs.has(updated.StorageName))
}

func TestFileService_Delete(t *testing.T) {
	svc, files, blobs, _ := newFileService(t)
	ctx := context.Background()

	rec, err := svc.Store(ctx, "alice", []byte("x"), "a.txt", "")
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, rec.ID, "alice"))

	_, ok := files.get(rec.ID)
	assert.False(t, ok)
	assert.False(t, blobs.has(rec.StorageName))

	assert.Same(t, apperr.ErrNotFound, svc.Delete(ctx, rec.ID, "alice"))
}

func TestFileService_DeleteBlobFailureIsNotSurfaced(t *testing.T) {
	svc, files, blobs, _ := newFileService(t)
	ctx := context.Background()

	rec, err := svc.Store(ctx, "alice", []byte("x"), "a.txt", "")
	require.NoError(t, err)
	blobs.deleteErr = errors.New("io error")

	require.NoError(t, svc.Delete(ctx, rec.ID, "alice"))
	_, ok := files.get(rec.ID)
	assert.False(t, ok)
	_, err = svc.Get(ctx, rec.ID, "alice")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestFileService_DeleteRowFailure(t *testing.T) {
	svc, files, blobs, _ := newFileService(t)
	ctx := context.Background()

	rec, err := svc.Store(ctx, "alice", []byte("x"), "a.txt", "")
	require.NoError(t, err)
	files.deleteErr = errors.New("db down")

	err = svc.Delete(ctx, rec.ID, "alice")
	assert.Equal(t, apperr.KindInfrastructure, apperr.KindOf(err))
	assert.True(t, blobs.has(rec.StorageName))
}

func TestFileService_DownloadMissingBlobIsNotFound(t *testing.T) {
	svc, _, blobs, _ := newFileService(t)
	ctx := context.Background()

	rec, err := svc.Store(ctx, "alice", []byte("x"), "a.txt", "")
	require.NoError(t, err)
	require.NoError(t, blobs.Delete(ctx, rec.StorageName))

	_, err = svc.Get(ctx, rec.ID, "alice")
	require.NoError(t, err)
	_, _, err = svc.ResolveForDownload(ctx, rec.ID, "alice")
	assert.Same(t, apperr.ErrNotFound, err)
}

func TestFileService_ConcurrentUpdates(t *testing.T) {
	svc, files, blobs, _ := newFileService(t)
	ctx := context.Background()

	rec, err := svc.Store(ctx, "alice", []byte("v0"), "a.txt", "text/plain")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 1; i <= 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Update(ctx, rec.ID, "alice", []byte(fmt.Sprintf("v%d", i)), "a.txt", "text/plain")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	final, ok := files.get(rec.ID)
	require.True(t, ok)
	assert.True(t, blobs.has(final.StorageName))

	rc, _, err := svc.ResolveForDownload(ctx, rec.ID, "alice")
	require.NoError(t, err)
	body := string(readAll(t, rc))
	assert.True(t, strings.HasPrefix(body, "v") && body != "v0", body)
	assert.False(t, blobs.has(rec.StorageName))
}

func TestFileService_PublishesEvents(t *testing.T) {
	events := &fakeEvents{}
	svc := NewFileService(newFakeFiles(), newFakeBlobs(), events, testLog)
	ctx := context.Background()

	rec, err := svc.Store(ctx, "alice", []byte("x"), "a.txt", "")
	require.NoError(t, err)
	_, err = svc.Update(ctx, rec.ID, "alice", []byte("y"), "a.txt", "")
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, rec.ID, "alice"))

	assert.Equal(t, []string{queue.FileStored, queue.FileUpdated, queue.FileDeleted}, events.types())
	assert.Equal(t, rec.ID, events.events[0].FileID)
}

func TestDescribe(t *testing.T) {
	var rec model.FileRecord
	describe(&rec, []byte("plain text body"), `C:\Users\me\Docs\Notes.TXT`, "")
	assert.Equal(t, "Notes.TXT", rec.OriginalName)
	assert.Equal(t, "txt", rec.Extension)
	assert.Equal(t, "text/plain; charset=utf-8", rec.MimeType)

	describe(&rec, []byte("x"), "../../etc/passwd", "application/octet-stream")
	assert.Equal(t, "passwd", rec.OriginalName)
	assert.Equal(t, "", rec.Extension)

	describe(&rec, []byte("x"), "", "image/png")
	assert.Equal(t, "file", rec.OriginalName)
	assert.Equal(t, "image/png", rec.MimeType)

	describe(&rec, []byte("x"), strings.Repeat("é", 200)+".txt", "")
	assert.LessOrEqual(t, len(rec.OriginalName), 255)

	describe(&rec, []byte("plain text body"), "a.txt", "text/"+strings.Repeat("x", 300))
	assert.Equal(t, "text/plain; charset=utf-8", rec.MimeType)
	assert.LessOrEqual(t, len(rec.MimeType), 255)
}
