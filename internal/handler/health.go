package handler // declare the package name; contains HTTP handlers

import (
    "context"
    "net/http"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/filevault/internal/utils"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
    PingContext(ctx context.Context) error
}

// Health reports whether the process is up and the database answers.
// Load balancers treat any non-200 as unhealthy.
func Health(db Pinger) echo.HandlerFunc {
    return func(c echo.Context) error {
        if db != nil {
            ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
            defer cancel()
            if err := db.PingContext(ctx); err != nil {
                return utils.Fail(c, http.StatusServiceUnavailable, "database unavailable")
            }
        }
        return utils.OK(c, http.StatusOK, "ok", echo.Map{"status": "ok"})
    }
}
