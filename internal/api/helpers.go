package api

import (
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/qconv/internal/metrics"
)

// maxBodyBytes bounds request bodies; a scenario is a few float arrays.
const maxBodyBytes = 8 << 20

func reply(c *echo.Context, route string, status int, body any) error {
	metrics.RecordRequest(route, status)
	return c.JSON(status, body)
}

func writeBadRequest(c *echo.Context, route, msg string) error {
	return writeError(c, route, http.StatusBadRequest, "invalid_request_error", msg, "")
}

func writeError(c *echo.Context, route string, status int, errType, msg, param string) error {
	return reply(c, route, status, map[string]any{
		"error": ErrorBody{
			Message: msg,
			Type:    errType,
			Param:   param,
		},
	})
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	dec := json.NewDecoder(io.LimitReader(r, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return out, newInvalidRequest("decode body: %v", err)
	}
	return out, nil
}

func newID(prefix string) string {
	return prefix + "_" + uuid.NewString()
}
