package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/filevault/internal/model"
)

// TokenRepo persists token pairs. Secrets are stored as SHA-256 digests in
// refresh_token_hash and access_token_hash.
type TokenRepo struct{ DB *sql.DB }

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{DB: db} }

const tokenColumns = "id, user_id, device_id, refresh_token_hash, access_token_hash, is_revoked, created_at, expires_at"

// Create inserts a new pair and fills p.ID.
func (r *TokenRepo) Create(ctx context.Context, p *model.TokenPair) error {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO token_pairs (user_id, device_id, refresh_token_hash, access_token_hash, is_revoked, created_at, expires_at) VALUES (?,?,?,?,?,?,?)",
		p.UserID, p.DeviceID, p.RefreshTokenHash, p.AccessTokenHash, p.IsRevoked, p.CreatedAt, p.ExpiresAt)
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = uint64(id)
	return nil
}

// FindActiveByRefreshHash returns the pair whose refresh digest matches and
// which is neither revoked nor expired at now. Absent, revoked and expired
// rows all yield ErrTokenNotFound.
func (r *TokenRepo) FindActiveByRefreshHash(ctx context.Context, refreshHash string, now time.Time) (*model.TokenPair, error) {
	var (
		p      model.TokenPair
		access sql.NullString
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT "+tokenColumns+" FROM token_pairs WHERE refresh_token_hash=? AND is_revoked=0 AND expires_at>? LIMIT 1",
		refreshHash, now).Scan(&p.ID, &p.UserID, &p.DeviceID, &p.RefreshTokenHash, &access, &p.IsRevoked, &p.CreatedAt, &p.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}
	if access.Valid {
		p.AccessTokenHash = &access.String
	}
	return &p, nil
}

// SetAccessHash swaps the stored access-token digest of a live pair. It
// returns ErrTokenNotFound when the pair was revoked in the meantime.
func (r *TokenRepo) SetAccessHash(ctx context.Context, id uint64, accessHash string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE token_pairs SET access_token_hash=? WHERE id=? AND is_revoked=0",
		accessHash, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrTokenNotFound
	}
	return nil
}

// IsAccessRevoked reports whether a revoked row references the digest.
func (r *TokenRepo) IsAccessRevoked(ctx context.Context, accessHash string) (bool, error) {
	var one int
	err := r.DB.QueryRowContext(ctx,
		"SELECT 1 FROM token_pairs WHERE access_token_hash=? AND is_revoked=1 LIMIT 1",
		accessHash).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// RevokeDevice revokes every live pair of (userID, deviceID) and returns
// the access digests those pairs referenced.
func (r *TokenRepo) RevokeDevice(ctx context.Context, userID, deviceID string) ([]string, error) {
	hashes, err := r.collectAccessHashes(ctx,
		"SELECT access_token_hash FROM token_pairs WHERE user_id=? AND device_id=? AND is_revoked=0 AND access_token_hash IS NOT NULL",
		userID, deviceID)
	if err != nil {
		return nil, err
	}
	if _, err := r.DB.ExecContext(ctx,
		"UPDATE token_pairs SET is_revoked=1 WHERE user_id=? AND device_id=? AND is_revoked=0",
		userID, deviceID); err != nil {
		return nil, err
	}
	return hashes, nil
}

// RevokeAllForUser revokes all user's live pairs regardless of device.
func (r *TokenRepo) RevokeAllForUser(ctx context.Context, userID string) ([]string, error) {
	hashes, err := r.collectAccessHashes(ctx,
		"SELECT access_token_hash FROM token_pairs WHERE user_id=? AND is_revoked=0 AND access_token_hash IS NOT NULL",
		userID)
	if err != nil {
		return nil, err
	}
	if _, err := r.DB.ExecContext(ctx,
		"UPDATE token_pairs SET is_revoked=1 WHERE user_id=? AND is_revoked=0",
		userID); err != nil {
		return nil, err
	}
	return hashes, nil
}

// DeleteExpired removes pairs whose refresh expiry is at or before cutoff.
func (r *TokenRepo) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM token_pairs WHERE expires_at<=?", cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *TokenRepo) collectAccessHashes(ctx context.Context, q string, args ...any) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
