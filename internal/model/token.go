package model

import "time"

// TokenPair models a row in the `token_pairs` table. Each row binds one
// refresh secret to one (user, device) pair. Neither secret is stored in
// plaintext: RefreshTokenHash and AccessTokenHash hold SHA-256 digests.
//
// Fields:
//  ID               – auto-increment primary key.
//  UserID           – owner identity (users.id).
//  DeviceID         – fingerprint of the device the pair was issued to.
//  RefreshTokenHash – unique digest of the refresh secret.
//  AccessTokenHash  – digest of the most recently minted access token (nullable).
//  IsRevoked        – revocation flag; once true it never flips back.
//  CreatedAt        – issuance timestamp.
//  ExpiresAt        – refresh expiry.
type TokenPair struct {
	ID               uint64
	UserID           string
	DeviceID         string
	RefreshTokenHash string
	AccessTokenHash  *string
	IsRevoked        bool
	CreatedAt        time.Time
	ExpiresAt        time.Time
}

// IssuedTokens is what the client receives exactly once after sign-in.
type IssuedTokens struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// Identity is the verified content of an access token.
type Identity struct {
	UserID   string
	DeviceID string
}
