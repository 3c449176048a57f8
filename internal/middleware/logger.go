package middleware

import (
    "github.com/labstack/echo/v4"
    echomw "github.com/labstack/echo/v4/middleware"
    "go.uber.org/zap"
)

// RequestLogger logs one line per request through zap.
func RequestLogger(log *zap.SugaredLogger) echo.MiddlewareFunc {
    return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
        LogMethod:    true,
        LogURI:       true,
        LogStatus:    true,
        LogLatency:   true,
        LogRequestID: true,
        LogRemoteIP:  true,
        LogError:     true,
        LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
            fields := []any{
                "method", v.Method,
                "uri", v.URI,
                "status", v.Status,
                "latency", v.Latency,
                "request_id", v.RequestID,
                "remote_ip", v.RemoteIP,
                "user_id", userID(c),
            }
            switch {
            case v.Error != nil:
                log.Errorw("request", append(fields, "error", v.Error)...)
            case v.Status >= 500:
                log.Warnw("request", fields...)
            default:
                log.Infow("request", fields...)
            }
            return nil
        },
    })
}
