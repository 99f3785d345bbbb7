package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimitMiddleware_Disabled(t *testing.T) {
	for _, cfg := range []RateLimitConfig{
		{Enabled: false, RPS: 1, Burst: 1},
		{Enabled: true, RPS: 0, Burst: 1},
		{Enabled: true, RPS: 1, Burst: 0},
	} {
		handler := RateLimitMiddleware(cfg)(okHandler())
		for i := 0; i < 5; i++ {
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/People", nil))
			assert.Equal(t, http.StatusOK, rr.Code, "config %+v", cfg)
		}
	}
}

func TestRateLimitMiddleware_BurstExceeded(t *testing.T) {
	handler := RateLimitMiddleware(RateLimitConfig{
		Enabled: true,
		RPS:     0.5,
		Burst:   2,
	})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/People", nil)
	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code)
	}

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Equal(t, "2", rr.Header().Get("Retry-After"))

	var body struct {
		Error struct {
			StatusCode int    `json:"statusCode"`
			Name       string `json:"name"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, http.StatusTooManyRequests, body.Error.StatusCode)
	assert.Equal(t, "TooManyRequestsError", body.Error.Name)
}
