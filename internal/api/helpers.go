package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/goldmem/internal/memimage"
)

var ErrInvalidRequest = errors.New("invalid_request")

func writeBadRequest(c *echo.Context, msg string) error {
	return writeError(c, http.StatusBadRequest, "invalid_request_error", msg, "")
}

func writeTooLarge(c *echo.Context, param string, got, limit int) error {
	return writeError(c, http.StatusRequestEntityTooLarge, "invalid_request_error",
		fmt.Sprintf("%s %d exceeds limit %d", param, got, limit), param)
}

func writeError(c *echo.Context, status int, errType, msg, param string) error {
	return c.JSON(status, map[string]any{
		"error": ResponseError{
			Message: msg,
			Type:    errType,
			Param:   param,
		},
	})
}

// decodeJSON decodes a request body, rejecting unknown fields. An empty
// body decodes to the zero value.
func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil && !errors.Is(err, io.EOF) {
		return out, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return out, nil
}

// hexWords renders values as the lines of their memory image, without
// terminators.
func hexWords(values []int64, bits int) ([]string, error) {
	out := make([]string, len(values))
	buf := make([]byte, 0, 16)
	for i, v := range values {
		var err error
		if buf, err = memimage.AppendWord(buf[:0], v, bits); err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = string(buf)
	}
	return out, nil
}
