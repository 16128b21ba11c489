package handler

import "github.com/labstack/echo/v4"

// envelope is the uniform success response shape. Error responses use the
// matching {success:false, message} form rendered by the HTTP error handler.
type envelope struct {
	Success    bool   `json:"success"`
	StatusCode int    `json:"statusCode"`
	Data       any    `json:"data"`
	Message    string `json:"message"`
}

// respond writes the uniform success envelope with the given status.
func respond(c echo.Context, status int, data any, message string) error {
	return c.JSON(status, envelope{
		Success:    status < 400,
		StatusCode: status,
		Data:       data,
		Message:    message,
	})
}
