package middleware

import (
    "context"
    "net/http"
    "strings"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/filevault/internal/apperr"
    "github.com/iliyamo/filevault/internal/model"
    "github.com/iliyamo/filevault/internal/utils"
)

// TokenVerifier resolves a bearer access token to an identity.
type TokenVerifier interface {
    Verify(ctx context.Context, accessToken string) (model.Identity, error)
}

// BearerAuth rejects requests without a valid, unrevoked access token and
// stores the verified identity in the context for downstream handlers.
func BearerAuth(v TokenVerifier, log *zap.SugaredLogger) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            auth := c.Request().Header.Get(echo.HeaderAuthorization)
            if len(auth) < 7 || !strings.EqualFold(auth[:7], "Bearer ") {
                return utils.Fail(c, http.StatusUnauthorized, "missing bearer token")
            }
            raw := strings.TrimSpace(auth[7:])

            id, err := v.Verify(c.Request().Context(), raw)
            if err != nil {
                if apperr.KindOf(err) == apperr.KindAuthentication {
                    return utils.Fail(c, http.StatusUnauthorized, apperr.Message(err))
                }
                log.Errorw("token verification failed", "path", c.Path(), "error", err)
                return utils.Fail(c, http.StatusInternalServerError, apperr.Message(err))
            }
            SetIdentity(c, id)
            return next(c)
        }
    }
}
