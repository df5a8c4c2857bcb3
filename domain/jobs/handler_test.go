package jobs

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saeedzarbi/Ai-agent-worker/internal/config"
	"github.com/saeedzarbi/Ai-agent-worker/pkg/apperror"
	"github.com/saeedzarbi/Ai-agent-worker/pkg/auth"
)

func newTestServer(t *testing.T, apiKey string, limiter *SubmitRateLimiter) (*echo.Echo, *fixture) {
	t.Helper()
	f := newFixture(t)
	e := echo.New()
	e.HTTPErrorHandler = apperror.HTTPErrorHandler(slog.Default())
	mw := auth.NewMiddleware(&config.Config{APIKey: apiKey}, slog.Default())
	RegisterRoutes(e, NewHandler(f.svc), mw, limiter)
	return e, f
}

func do(e *echo.Echo, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHandler_SubmitThenQuery(t *testing.T) {
	e, _ := newTestServer(t, "", nil)

	body := `{"message_id":"m1","text":"` + adText + `","agent":"gemini"}`
	rec := do(e, http.MethodPost, "/api/jobs", body, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"message_id":"m1","status":"queued"}`, rec.Body.String())

	rec = do(e, http.MethodGet, "/api/jobs/m1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var job map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, "queued", job["status"])
	assert.Equal(t, "gemini", job["agent"])
	assert.Contains(t, job, "created_at")
	assert.Contains(t, job, "source")
	assert.NotContains(t, job, "request_text")
}

func TestHandler_ValidationError(t *testing.T) {
	e, _ := newTestServer(t, "", nil)

	rec := do(e, http.MethodPost, "/api/jobs", `{"message_id":"m1","text":"short","agent":"bard"}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body struct {
		Error struct {
			Code    string            `json:"code"`
			Details map[string]string `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "validation_error", body.Error.Code)
	assert.Contains(t, body.Error.Details, "text")
	assert.Contains(t, body.Error.Details, "agent")
}

func TestHandler_MalformedBody(t *testing.T) {
	e, _ := newTestServer(t, "", nil)
	rec := do(e, http.MethodPost, "/api/jobs", `{"message_id":`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_NotFound(t *testing.T) {
	e, _ := newTestServer(t, "", nil)
	rec := do(e, http.MethodGet, "/api/jobs/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_QueueInfo(t *testing.T) {
	e, _ := newTestServer(t, "", nil)
	rec := do(e, http.MethodGet, "/api/queue/info", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"queue_size":0,"active_processing":0,"max_concurrency":3,"available_processing_slots":3,"queue_depth":0}`, rec.Body.String())
}

func TestHandler_RequiresAPIKey(t *testing.T) {
	e, _ := newTestServer(t, "secret", nil)

	rec := do(e, http.MethodGet, "/api/queue/info", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(e, http.MethodGet, "/api/queue/info", "", map[string]string{auth.HeaderAPIKey: "secret"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandler_RateLimited(t *testing.T) {
	e, _ := newTestServer(t, "", NewSubmitRateLimiter(0.001, 1))
	body := `{"message_id":"m1","text":"` + adText + `","agent":"gemini"}`

	assert.Equal(t, http.StatusAccepted, do(e, http.MethodPost, "/api/jobs", body, nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(e, http.MethodPost, "/api/jobs", body, nil).Code)

	// reads are not limited
	assert.Equal(t, http.StatusOK, do(e, http.MethodGet, "/api/jobs/m1", "", nil).Code)
}

func TestSubmitRateLimiter_PerClient(t *testing.T) {
	l := NewSubmitRateLimiter(0.001, 1)
	assert.True(t, l.Allow("ip:1.1.1.1"))
	assert.False(t, l.Allow("ip:1.1.1.1"))
	assert.True(t, l.Allow("ip:2.2.2.2"))
}

func TestNewSubmitRateLimiter_Disabled(t *testing.T) {
	assert.Nil(t, NewSubmitRateLimiter(0, 10))
}
