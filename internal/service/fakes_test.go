package service

import (
	"bytes"
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/filevault/internal/model"
	"github.com/iliyamo/filevault/internal/queue"
	"github.com/iliyamo/filevault/internal/repository"
	"github.com/iliyamo/filevault/internal/storage"
)

var testLog = zap.NewNop().Sugar()

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock { return &clock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// ----- users -----

type fakeUsers struct {
	mu    sync.Mutex
	users map[string]model.User
	err   error
}

func newFakeUsers() *fakeUsers { return &fakeUsers{users: map[string]model.User{}} }

func (f *fakeUsers) Create(_ context.Context, id, hash string, createdAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if _, ok := f.users[id]; ok {
		return repository.ErrDuplicate
	}
	f.users[id] = model.User{ID: id, PasswordHash: hash, CreatedAt: createdAt}
	return nil
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return &u, nil
}

// ----- tokens -----

type fakeTokens struct {
	mu     sync.Mutex
	rows   []*model.TokenPair
	nextID uint64
	err    error
	// beforeSetAccess runs inside SetAccessHash before the row is checked.
	beforeSetAccess func()
}

func (f *fakeTokens) Create(_ context.Context, p *model.TokenPair) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	for _, r := range f.rows {
		if r.RefreshTokenHash == p.RefreshTokenHash {
			return repository.ErrDuplicate
		}
	}
	f.nextID++
	p.ID = f.nextID
	cp := *p
	f.rows = append(f.rows, &cp)
	return nil
}

func (f *fakeTokens) FindActiveByRefreshHash(_ context.Context, hash string, now time.Time) (*model.TokenPair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for _, r := range f.rows {
		if r.RefreshTokenHash == hash && !r.IsRevoked && r.ExpiresAt.After(now) {
			cp := *r
			return &cp, nil
		}
	}
	return nil, repository.ErrTokenNotFound
}

func (f *fakeTokens) SetAccessHash(_ context.Context, id uint64, hash string) error {
	if f.beforeSetAccess != nil {
		f.beforeSetAccess()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.ID == id && !r.IsRevoked {
			h := hash
			r.AccessTokenHash = &h
			return nil
		}
	}
	return repository.ErrTokenNotFound
}

func (f *fakeTokens) IsAccessRevoked(_ context.Context, hash string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	for _, r := range f.rows {
		if r.IsRevoked && r.AccessTokenHash != nil && *r.AccessTokenHash == hash {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeTokens) revoke(match func(*model.TokenPair) bool) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var hashes []string
	for _, r := range f.rows {
		if !r.IsRevoked && match(r) {
			r.IsRevoked = true
			if r.AccessTokenHash != nil {
				hashes = append(hashes, *r.AccessTokenHash)
			}
		}
	}
	return hashes, nil
}

func (f *fakeTokens) RevokeDevice(_ context.Context, userID, deviceID string) ([]string, error) {
	return f.revoke(func(r *model.TokenPair) bool { return r.UserID == userID && r.DeviceID == deviceID })
}

func (f *fakeTokens) RevokeAllForUser(_ context.Context, userID string) ([]string, error) {
	return f.revoke(func(r *model.TokenPair) bool { return r.UserID == userID })
}

func (f *fakeTokens) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	kept := f.rows[:0]
	var n int64
	for _, r := range f.rows {
		if !r.ExpiresAt.After(now) {
			n++
			continue
		}
		kept = append(kept, r)
	}
	f.rows = kept
	return n, nil
}

func (f *fakeTokens) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

// ----- files -----

type fakeFiles struct {
	mu        sync.Mutex
	rows      map[uint64]model.FileRecord
	nextID    uint64
	insertErr error
	updateErr error
	deleteErr error

	lastLimit, lastOffset int
}

func newFakeFiles() *fakeFiles { return &fakeFiles{rows: map[uint64]model.FileRecord{}} }

func (f *fakeFiles) Insert(_ context.Context, rec *model.FileRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	f.nextID++
	rec.ID = f.nextID
	f.rows[rec.ID] = *rec
	return nil
}

func (f *fakeFiles) GetByIDAndOwner(_ context.Context, id uint64, ownerID string) (*model.FileRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.rows[id]
	if !ok || rec.OwnerID != ownerID {
		return nil, repository.ErrFileNotFound
	}
	return &rec, nil
}

func (f *fakeFiles) ListByOwner(_ context.Context, ownerID string, limit, offset int) ([]model.FileRecord, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastLimit, f.lastOffset = limit, offset
	var all []model.FileRecord
	for _, r := range f.rows {
		if r.OwnerID == ownerID {
			all = append(all, r)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].UploadedAt.Equal(all[j].UploadedAt) {
			return all[i].UploadedAt.After(all[j].UploadedAt)
		}
		return all[i].ID > all[j].ID
	})
	total := int64(len(all))
	if offset >= len(all) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (f *fakeFiles) UpdateContent(_ context.Context, rec *model.FileRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	cur, ok := f.rows[rec.ID]
	if !ok || cur.OwnerID != rec.OwnerID {
		return repository.ErrFileNotFound
	}
	cur.OriginalName = rec.OriginalName
	cur.StorageName = rec.StorageName
	cur.Extension = rec.Extension
	cur.MimeType = rec.MimeType
	cur.Size = rec.Size
	f.rows[rec.ID] = cur
	return nil
}

func (f *fakeFiles) DeleteByIDAndOwner(_ context.Context, id uint64, ownerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	rec, ok := f.rows[id]
	if !ok || rec.OwnerID != ownerID {
		return repository.ErrFileNotFound
	}
	delete(f.rows, id)
	return nil
}

func (f *fakeFiles) get(id uint64) (model.FileRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[id]
	return r, ok
}

// ----- blobs -----

type fakeBlobs struct {
	mu        sync.Mutex
	data      map[string][]byte
	putErr    error
	deleteErr error
}

func newFakeBlobs() *fakeBlobs { return &fakeBlobs{data: map[string][]byte{}} }

func (b *fakeBlobs) Put(_ context.Context, name string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.putErr != nil {
		return b.putErr
	}
	if _, ok := b.data[name]; ok {
		return storage.ErrBlobExists
	}
	b.data[name] = append([]byte(nil), data...)
	return nil
}

func (b *fakeBlobs) Open(_ context.Context, name string) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.data[name]
	if !ok {
		return nil, storage.ErrBlobNotFound
	}
	return io.NopCloser(bytes.NewReader(d)), nil
}

func (b *fakeBlobs) Delete(_ context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.deleteErr != nil {
		return b.deleteErr
	}
	if _, ok := b.data[name]; !ok {
		return storage.ErrBlobNotFound
	}
	delete(b.data, name)
	return nil
}

func (b *fakeBlobs) has(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.data[name]
	return ok
}

func (b *fakeBlobs) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// ----- events -----

type fakeEvents struct {
	mu     sync.Mutex
	events []queue.Event
}

func (e *fakeEvents) Publish(_ context.Context, ev queue.Event) error {
	e.mu.Lock()
	e.events = append(e.events, ev)
	e.mu.Unlock()
	return nil
}

func (e *fakeEvents) types() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.events))
	for _, ev := range e.events {
		out = append(out, ev.Type)
	}
	return out
}
