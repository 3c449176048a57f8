package handler // handler defines http handlers

import (
    "errors"
    "net/http"
    "strconv"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/filevault/internal/apperr"
    "github.com/iliyamo/filevault/internal/utils"
)

// statusOf maps an error kind to the HTTP status returned to the client.
func statusOf(err error) int {
    if errors.Is(err, apperr.ErrPayloadTooLarge) {
        return http.StatusRequestEntityTooLarge
    }
    switch apperr.KindOf(err) {
    case apperr.KindValidation:
        return http.StatusBadRequest
    case apperr.KindAuthentication:
        return http.StatusUnauthorized
    case apperr.KindConflict:
        return http.StatusConflict
    case apperr.KindNotFound:
        return http.StatusNotFound
    default:
        return http.StatusInternalServerError
    }
}

// writeError resolves err into a status and envelope. Infrastructure
// failures are logged with their cause; the client only sees "internal error".
func writeError(c echo.Context, log *zap.SugaredLogger, err error) error {
    status := statusOf(err)
    if status == http.StatusInternalServerError {
        log.Errorw("request failed",
            "method", c.Request().Method,
            "path", c.Path(),
            "user_id", c.Get("user_id"),
            "error", err)
    }
    return utils.Fail(c, status, apperr.Message(err))
}

// parseID reads the :id path parameter. Anything that is not a positive
// integer is treated like an id that does not exist.
func parseID(c echo.Context) (uint64, error) {
    id, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil || id == 0 {
        return 0, apperr.ErrNotFound
    }
    return id, nil
}
