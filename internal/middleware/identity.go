package middleware

// identity.go keeps the verified caller in the echo context. Handlers read
// it back with IdentityFrom; the rate limiter uses the user id in its keys.

import (
    "github.com/labstack/echo/v4"

    "github.com/iliyamo/filevault/internal/model"
)

const identityKey = "identity"

// SetIdentity stores id for the rest of the request.
func SetIdentity(c echo.Context, id model.Identity) {
    c.Set(identityKey, id)
    c.Set("user_id", id.UserID)
}

// IdentityFrom returns the identity placed by BearerAuth.
func IdentityFrom(c echo.Context) (model.Identity, bool) {
    id, ok := c.Get(identityKey).(model.Identity)
    return id, ok && id.UserID != ""
}

// userID returns the caller's id or "anon" before authentication.
func userID(c echo.Context) string {
    if id, ok := IdentityFrom(c); ok {
        return id.UserID
    }
    return "anon"
}
