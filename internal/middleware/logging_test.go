package middleware

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relfind/internal/logging"
)

func decodeLogLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var lines []map[string]any
	scanner := bufio.NewScanner(buf)
	for scanner.Scan() {
		var entry map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		lines = append(lines, entry)
	}
	return lines
}

func TestLoggingMiddleware_PropagatesRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewLogger(logging.Config{Level: "info", Format: "json", Output: &buf})

	var ctxRequestID string
	handler := LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxRequestID = logging.GetRequestID(r.Context())
		logging.FromContext(r.Context()).Info("inside handler")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("nope"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/Planets", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, "req-123", rr.Header().Get(RequestIDHeader))
	assert.Equal(t, "req-123", ctxRequestID)

	lines := decodeLogLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "inside handler", lines[0]["msg"])
	assert.Equal(t, "req-123", lines[0]["request_id"])

	completed := lines[1]
	assert.Equal(t, "request completed", completed["msg"])
	assert.Equal(t, "WARN", completed["level"])
	assert.Equal(t, float64(http.StatusNotFound), completed["status"])
	assert.Equal(t, float64(4), completed["bytes"])
	assert.Equal(t, "http", completed["component"])
}

func TestLoggingMiddleware_GeneratesRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewLogger(logging.Config{Level: "debug", Format: "json", Output: &buf})

	handler := LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/People", nil))

	id := rr.Header().Get(RequestIDHeader)
	assert.Len(t, id, 36)

	lines := decodeLogLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "request started", lines[0]["msg"])
	assert.Equal(t, "ERROR", lines[1]["level"])
	assert.Equal(t, id, lines[1]["request_id"])
}
