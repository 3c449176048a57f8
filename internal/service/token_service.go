package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/filevault/internal/apperr"
	"github.com/iliyamo/filevault/internal/cache"
	"github.com/iliyamo/filevault/internal/metrics"
	"github.com/iliyamo/filevault/internal/model"
	"github.com/iliyamo/filevault/internal/queue"
	"github.com/iliyamo/filevault/internal/repository"
	"github.com/iliyamo/filevault/internal/utils"
)

// TokenConfig carries the signing secret and lifetimes.
type TokenConfig struct {
	Secret     []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// TokenService issues, verifies, rotates and revokes device-scoped token
// pairs. Revocation is a deny-list: a valid signature and expiry are
// enough unless a revoked row references the token's digest.
type TokenService struct {
	store  TokenStore
	cache  RevocationCache
	events EventPublisher
	log    *zap.SugaredLogger
	cfg    TokenConfig
	now    func() time.Time
}

// NewTokenService wires the service. revCache and events may be nil.
func NewTokenService(store TokenStore, revCache RevocationCache, events EventPublisher, cfg TokenConfig, log *zap.SugaredLogger) *TokenService {
	if events == nil {
		events = queue.Nop{}
	}
	return &TokenService{store: store, cache: revCache, events: events, log: log, cfg: cfg, now: time.Now}
}

// AccessTTL is the lifetime of minted access tokens.
func (s *TokenService) AccessTTL() time.Duration { return s.cfg.AccessTTL }

// Issue mints a new pair for the device and persists its digests. The
// plaintext tokens are returned once and never stored.
func (s *TokenService) Issue(ctx context.Context, userID, deviceID string) (out model.IssuedTokens, err error) {
	defer func() { metrics.ObserveToken("issue", err) }()

	now := s.now().UTC()
	access, err := utils.NewAccessToken(s.cfg.Secret, userID, deviceID, s.cfg.AccessTTL, now)
	if err != nil {
		return out, apperr.Infra("sign access token", err)
	}
	refresh, err := utils.NewRefreshToken(s.cfg.RefreshTTL, now)
	if err != nil {
		return out, apperr.Infra("generate refresh token", err)
	}
	accessHash := utils.HashToken(access.Token)
	pair := &model.TokenPair{
		UserID:           userID,
		DeviceID:         deviceID,
		RefreshTokenHash: utils.HashToken(refresh.Raw),
		AccessTokenHash:  &accessHash,
		CreatedAt:        now,
		ExpiresAt:        refresh.Exp,
	}
	if err := s.store.Create(ctx, pair); err != nil {
		return out, apperr.Infra("persist token pair", err)
	}

	ev := queue.NewEvent(queue.SessionOpened, userID)
	ev.DeviceID = deviceID
	_ = s.events.Publish(ctx, ev)

	return model.IssuedTokens{
		AccessToken:      access.Token,
		AccessExpiresAt:  access.Exp,
		RefreshToken:     refresh.Raw,
		RefreshExpiresAt: refresh.Exp,
	}, nil
}

// Rotate exchanges a live refresh token for a new access token bound to the
// same user and device. Unknown, revoked and expired refresh tokens all fail
// with the same error.
func (s *TokenService) Rotate(ctx context.Context, refreshToken string) (out utils.AccessToken, err error) {
	defer func() { metrics.ObserveToken("rotate", err) }()

	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return out, apperr.ErrExpiredOrInvalidRefreshToken
	}
	now := s.now().UTC()
	pair, err := s.store.FindActiveByRefreshHash(ctx, utils.HashToken(refreshToken), now)
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return out, apperr.ErrExpiredOrInvalidRefreshToken
		}
		return out, apperr.Infra("find refresh token", err)
	}

	access, err := utils.NewAccessToken(s.cfg.Secret, pair.UserID, pair.DeviceID, s.cfg.AccessTTL, now)
	if err != nil {
		return out, apperr.Infra("sign access token", err)
	}
	if err := s.store.SetAccessHash(ctx, pair.ID, utils.HashToken(access.Token)); err != nil {
		// revoked between lookup and update
		if errors.Is(err, repository.ErrTokenNotFound) {
			return out, apperr.ErrExpiredOrInvalidRefreshToken
		}
		return out, apperr.Infra("store access token", err)
	}
	return access, nil
}

// Verify checks signature, expiry and the deny-list, and returns the
// identity embedded in the token.
func (s *TokenService) Verify(ctx context.Context, accessToken string) (id model.Identity, err error) {
	defer func() { metrics.ObserveToken("verify", err) }()

	claims, err := utils.ParseAccessToken(s.cfg.Secret, accessToken, s.now())
	if err != nil {
		if errors.Is(err, utils.ErrTokenExpired) {
			return id, apperr.ErrTokenExpired
		}
		return id, apperr.ErrInvalidToken
	}
	hash := utils.HashToken(accessToken)
	identity := model.Identity{UserID: claims.UserID, DeviceID: claims.DeviceID}

	if s.cache != nil {
		state, cerr := s.cache.Lookup(ctx, hash)
		switch {
		case cerr != nil:
			s.log.Debugw("revocation cache lookup failed", "error", cerr)
		case state == cache.Revoked:
			return id, apperr.ErrTokenRevoked
		case state == cache.Live:
			return identity, nil
		}
	}

	revoked, err := s.store.IsAccessRevoked(ctx, hash)
	if err != nil {
		return id, apperr.Infra("check revocation", err)
	}
	if revoked {
		if s.cache != nil {
			ttl := claims.ExpiresAt.Sub(s.now())
			if ttl > 0 {
				_ = s.cache.MarkRevoked(ctx, []string{hash}, ttl)
			}
		}
		return id, apperr.ErrTokenRevoked
	}
	if s.cache != nil {
		if cerr := s.cache.MarkLive(ctx, hash); cerr != nil {
			s.log.Debugw("revocation cache write failed", "error", cerr)
		}
	}
	return identity, nil
}

// RevokeDevice revokes every live pair of one device. Revoking an already
// revoked device is a no-op.
func (s *TokenService) RevokeDevice(ctx context.Context, userID, deviceID string) (err error) {
	defer func() { metrics.ObserveToken("revoke_device", err) }()

	hashes, err := s.store.RevokeDevice(ctx, userID, deviceID)
	if err != nil {
		return apperr.Infra("revoke device", err)
	}
	s.afterRevoke(ctx, userID, deviceID, hashes)
	return nil
}

// RevokeAll revokes every live pair of the user across all devices.
func (s *TokenService) RevokeAll(ctx context.Context, userID string) (err error) {
	defer func() { metrics.ObserveToken("revoke_all", err) }()

	hashes, err := s.store.RevokeAllForUser(ctx, userID)
	if err != nil {
		return apperr.Infra("revoke all", err)
	}
	s.afterRevoke(ctx, userID, "", hashes)
	return nil
}

func (s *TokenService) afterRevoke(ctx context.Context, userID, deviceID string, hashes []string) {
	// the rows are already revoked; finish the side effects even if the caller left
	ctx = context.WithoutCancel(ctx)
	if s.cache != nil && len(hashes) > 0 {
		if err := s.cache.MarkRevoked(ctx, hashes, s.cfg.AccessTTL); err != nil {
			s.log.Warnw("revocation cache write failed", "user_id", userID, "device_id", deviceID, "error", err)
			// a surviving live marker would accept these tokens until it expires
			if err := s.cache.ForgetLive(ctx, hashes); err != nil {
				s.log.Warnw("revocation cache live cleanup failed", "user_id", userID, "device_id", deviceID, "error", err)
			}
		}
	}
	ev := queue.NewEvent(queue.SessionRevoked, userID)
	ev.DeviceID = deviceID
	ev.Count = len(hashes)
	_ = s.events.Publish(ctx, ev)
}

// SweepExpired deletes pairs whose refresh token has expired, revoked or not.
// A pair is kept for one more access TTL past its refresh expiry: an access
// token rotated just before that expiry outlives the row, and the row is its
// deny-list entry until the token itself expires.
func (s *TokenService) SweepExpired(ctx context.Context) (n int64, err error) {
	defer func() { metrics.ObserveToken("sweep", err) }()

	cutoff := s.now().UTC().Add(-s.cfg.AccessTTL)
	n, err = s.store.DeleteExpired(ctx, cutoff)
	if err != nil {
		return 0, apperr.Infra("sweep expired tokens", err)
	}
	return n, nil
}
