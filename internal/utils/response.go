package utils

import "github.com/labstack/echo/v4"

// Envelope is the body of every JSON response.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// OK writes a successful envelope.
func OK(c echo.Context, status int, msg string, data any) error {
	return c.JSON(status, Envelope{Success: true, Message: msg, Data: data})
}

// Fail writes a failed envelope with no data.
func Fail(c echo.Context, status int, msg string) error {
	return c.JSON(status, Envelope{Success: false, Message: msg})
}
