package handler

import (
    "context"
    "net/http"
    "time"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/filevault/internal/apperr"
    "github.com/iliyamo/filevault/internal/middleware"
    "github.com/iliyamo/filevault/internal/model"
    "github.com/iliyamo/filevault/internal/utils"
)

// Credentials registers identities and checks passwords.
type Credentials interface {
    Register(ctx context.Context, id, password string) (string, error)
    VerifyCredentials(ctx context.Context, id, password string) (string, bool, error)
}

// Sessions manages device-scoped token pairs.
type Sessions interface {
    Issue(ctx context.Context, userID, deviceID string) (model.IssuedTokens, error)
    Rotate(ctx context.Context, refreshToken string) (utils.AccessToken, error)
    RevokeDevice(ctx context.Context, userID, deviceID string) error
}

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
    Creds    Credentials
    Sessions Sessions
    Log      *zap.SugaredLogger
}

func NewAuthHandler(creds Credentials, sessions Sessions, log *zap.SugaredLogger) *AuthHandler {
    return &AuthHandler{Creds: creds, Sessions: sessions, Log: log}
}

// ----- DTOs -----

type credentialsReq struct {
    Identifier string `json:"identifier"`
    Password   string `json:"password"`
}
type refreshReq struct {
    RefreshToken string `json:"refresh_token"`
}

type tokenPairResp struct {
    UserID           string    `json:"user_id"`
    AccessToken      string    `json:"access_token"`
    AccessExpiresAt  time.Time `json:"access_expires_at"`
    RefreshToken     string    `json:"refresh_token"`
    RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}
type accessResp struct {
    AccessToken     string    `json:"access_token"`
    AccessExpiresAt time.Time `json:"access_expires_at"`
}
type meResp struct {
    UserID   string `json:"user_id"`
    DeviceID string `json:"device_id"`
}

func pairResp(userID string, t model.IssuedTokens) tokenPairResp {
    return tokenPairResp{
        UserID:           userID,
        AccessToken:      t.AccessToken,
        AccessExpiresAt:  t.AccessExpiresAt,
        RefreshToken:     t.RefreshToken,
        RefreshExpiresAt: t.RefreshExpiresAt,
    }
}

// deviceOf fingerprints the calling device from its user agent and address.
func deviceOf(c echo.Context) string {
    return utils.DeviceFingerprint(c.Request().UserAgent(), c.RealIP())
}

// Register: create user and return tokens for the calling device.
func (h *AuthHandler) Register(c echo.Context) error {
    var req credentialsReq
    if err := c.Bind(&req); err != nil {
        return utils.Fail(c, http.StatusBadRequest, "invalid body")
    }
    ctx := c.Request().Context()

    userID, err := h.Creds.Register(ctx, req.Identifier, req.Password)
    if err != nil {
        return writeError(c, h.Log, err)
    }
    tokens, err := h.Sessions.Issue(ctx, userID, deviceOf(c))
    if err != nil {
        return writeError(c, h.Log, err)
    }
    return utils.OK(c, http.StatusCreated, "registered", pairResp(userID, tokens))
}

// Login: verify credentials and open a new session for the calling device.
func (h *AuthHandler) Login(c echo.Context) error {
    var req credentialsReq
    if err := c.Bind(&req); err != nil {
        return utils.Fail(c, http.StatusBadRequest, "invalid body")
    }
    ctx := c.Request().Context()

    userID, ok, err := h.Creds.VerifyCredentials(ctx, req.Identifier, req.Password)
    if err != nil {
        return writeError(c, h.Log, err)
    }
    if !ok {
        return writeError(c, h.Log, apperr.ErrInvalidCredentials)
    }
    tokens, err := h.Sessions.Issue(ctx, userID, deviceOf(c))
    if err != nil {
        return writeError(c, h.Log, err)
    }
    return utils.OK(c, http.StatusOK, "logged in", pairResp(userID, tokens))
}

// Refresh: exchange a refresh token for a new access token. The refresh
// token itself stays the same.
func (h *AuthHandler) Refresh(c echo.Context) error {
    var req refreshReq
    if err := c.Bind(&req); err != nil {
        return utils.Fail(c, http.StatusBadRequest, "invalid body")
    }
    access, err := h.Sessions.Rotate(c.Request().Context(), req.RefreshToken)
    if err != nil {
        return writeError(c, h.Log, err)
    }
    return utils.OK(c, http.StatusOK, "token refreshed", accessResp{AccessToken: access.Token, AccessExpiresAt: access.Exp})
}

// Me returns the identity carried by the access token (protected).
func (h *AuthHandler) Me(c echo.Context) error {
    id, ok := middleware.IdentityFrom(c)
    if !ok {
        return writeError(c, h.Log, apperr.ErrInvalidToken)
    }
    return utils.OK(c, http.StatusOK, "ok", meResp{UserID: id.UserID, DeviceID: id.DeviceID})
}

// Logout revokes every token pair of the caller's device (protected).
// Sessions on other devices stay valid.
func (h *AuthHandler) Logout(c echo.Context) error {
    id, ok := middleware.IdentityFrom(c)
    if !ok {
        return writeError(c, h.Log, apperr.ErrInvalidToken)
    }
    if err := h.Sessions.RevokeDevice(c.Request().Context(), id.UserID, id.DeviceID); err != nil {
        return writeError(c, h.Log, err)
    }
    return utils.OK(c, http.StatusOK, "logged out", nil)
}
