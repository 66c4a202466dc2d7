package api

import (
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/tgstep/internal/metrics"
)

type ResponseError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   string `json:"param,omitempty"`
	Code    string `json:"code,omitempty"`
}

func writeBadRequest(c *echo.Context, msg string) error {
	metrics.RecordError("bad_request")
	return writeError(c, http.StatusBadRequest, "invalid_request_error", msg, "", "")
}

// writeGenerationError reports a failed generation with the status its
// cause maps to.
func writeGenerationError(c *echo.Context, err error) error {
	status, kind := classify(err)
	metrics.RecordError(kind)
	return writeError(c, status, kind, err.Error(), "", "")
}

func writeError(c *echo.Context, status int, errType, msg, param, code string) error {
	return c.JSON(status, map[string]any{
		"error": ResponseError{
			Message: msg,
			Type:    errType,
			Code:    code,
			Param:   param,
		},
	})
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	dec := json.NewDecoder(r)
	if err := dec.Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}

func streamParam(c *echo.Context) bool {
	q := c.QueryParam("stream")
	return q == "1" || strings.EqualFold(q, "true")
}

func newCompletionID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}

// logprobOrNil turns NaN, which JSON cannot carry, into null.
func logprobOrNil(v float32) *float32 {
	if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
		return nil
	}
	return &v
}

// sseWriter emits "data: <json>" events on an already committed response.
type sseWriter struct {
	w     io.Writer
	flush func()
}

func newSSEWriter(c *echo.Context) (*sseWriter, error) {
	res := c.Response()
	flusher, ok := res.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming unsupported")
	}
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)
	return &sseWriter{w: res, flush: flusher.Flush}, nil
}

func (s *sseWriter) send(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", b); err != nil {
		return err
	}
	s.flush()
	return nil
}

// fail reports an error after the stream has started.
func (s *sseWriter) fail(err error) {
	_, kind := classify(err)
	metrics.RecordError(kind)
	_ = s.send(map[string]any{"error": ResponseError{Message: err.Error(), Type: kind}})
}

func (s *sseWriter) done() {
	_, _ = fmt.Fprint(s.w, "data: [DONE]\n\n")
	s.flush()
}
