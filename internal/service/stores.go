// Package service holds the session core and the file persistence core.
// Services receive their stores through constructors so tests can swap in
// in-memory fakes.
package service

import (
	"context"
	"io"
	"time"

	"github.com/iliyamo/filevault/internal/cache"
	"github.com/iliyamo/filevault/internal/model"
	"github.com/iliyamo/filevault/internal/queue"
)

// UserStore is the credential store.
type UserStore interface {
	Create(ctx context.Context, id, passwordHash string, createdAt time.Time) error
	GetByID(ctx context.Context, id string) (*model.User, error)
}

// TokenStore persists token pairs by digest.
type TokenStore interface {
	Create(ctx context.Context, p *model.TokenPair) error
	FindActiveByRefreshHash(ctx context.Context, refreshHash string, now time.Time) (*model.TokenPair, error)
	SetAccessHash(ctx context.Context, id uint64, accessHash string) error
	IsAccessRevoked(ctx context.Context, accessHash string) (bool, error)
	RevokeDevice(ctx context.Context, userID, deviceID string) ([]string, error)
	RevokeAllForUser(ctx context.Context, userID string) ([]string, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// FileStore is the file metadata store. Every lookup is scoped by owner.
type FileStore interface {
	Insert(ctx context.Context, f *model.FileRecord) error
	GetByIDAndOwner(ctx context.Context, id uint64, ownerID string) (*model.FileRecord, error)
	ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]model.FileRecord, int64, error)
	UpdateContent(ctx context.Context, f *model.FileRecord) error
	DeleteByIDAndOwner(ctx context.Context, id uint64, ownerID string) error
}

// BlobStore is the raw byte store, keyed by storage name.
type BlobStore interface {
	Put(ctx context.Context, name string, data []byte) error
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	Delete(ctx context.Context, name string) error
}

// RevocationCache short-circuits the deny-list lookup in Verify.
type RevocationCache interface {
	Lookup(ctx context.Context, accessHash string) (cache.State, error)
	MarkLive(ctx context.Context, accessHash string) error
	MarkRevoked(ctx context.Context, accessHashes []string, ttl time.Duration) error
	ForgetLive(ctx context.Context, accessHashes []string) error
}

// EventPublisher receives audit events after state changes commit.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.Event) error
}
