package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keyhive/internal/logger"
	"keyhive/internal/secretevents"
)

func newTestRouter(svc *Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewHandler(svc, logger.NopLogger()).RegisterRoutes(router)
	return router
}

func subscribeURL(base, projectID, register string) string {
	u := base + "/api/v1/projects/" + projectID + "/events"
	if register != "" {
		u += "?register=" + url.QueryEscape(register)
	}
	return u
}

func TestSubscribeEventsRejectsMalformedRegister(t *testing.T) {
	svc, _, _ := newTestService(5)
	router := newTestRouter(svc)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, subscribeURL("", "proj-1", "not-json"), nil)
	req.Header.Set("X-Actor-ID", "actor-1")
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "VALIDATION_ERROR", body["error_code"])
}

func TestSubscribeEventsRejectsMissingActor(t *testing.T) {
	svc, _, _ := newTestService(5)
	router := newTestRouter(svc)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet,
		subscribeURL("", "proj-1", `[{"event":"secret:update"}]`), nil)
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubscribeEventsCapReturns429(t *testing.T) {
	svc, _, _ := newTestService(0)
	router := newTestRouter(svc)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet,
		subscribeURL("", "proj-1", `[{"event":"secret:update"}]`), nil)
	req.Header.Set("X-Actor-ID", "actor-1")
	req.Header.Set("X-Org-ID", "org-1")
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "RATE_LIMITED", body["error_code"])
}

func TestSubscribeEventsStreamsFrames(t *testing.T) {
	svc, _, _ := newTestService(5)
	server := httptest.NewServer(newTestRouter(svc))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		subscribeURL(server.URL, "proj-1", `[{"event":"secret:update","conditions":{"secretPath":"/api/*"}}]`), nil)
	require.NoError(t, err)
	req.Header.Set("X-Actor-ID", "actor-1")
	req.Header.Set("X-Org-ID", "org-1")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no", resp.Header.Get("X-Accel-Buffering"))

	require.Eventually(t, func() bool { return svc.ActiveCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	svc.fanOut(context.Background(), secretevents.SecretEvent{
		EventType:   secretevents.EventTypeSecretUpdate,
		ProjectID:   "proj-1",
		Environment: "prod",
		SecretPath:  "/api/keys",
		SecretKey:   "API_KEY",
	})

	scanner := bufio.NewScanner(resp.Body)
	var lines []string
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			break
		}
		lines = append(lines, line)
	}

	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "id: "))
	assert.Equal(t, "event: secret:update", lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "data: "))
	assert.JSONEq(t, `{
		"projectType": "secret-manager",
		"data": {
			"eventType": "secret:update",
			"payload": [{"environment": "prod", "secretPath": "/api/keys", "secretKey": "API_KEY"}]
		}
	}`, strings.TrimPrefix(lines[2], "data: "))

	cancel()
	require.Eventually(t, func() bool { return svc.ActiveCount() == 0 },
		2*time.Second, 10*time.Millisecond)
}

func TestSubscribeEventsClientDisconnectCleansUp(t *testing.T) {
	svc, reg, _ := newTestService(5)
	server := httptest.NewServer(newTestRouter(svc))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		subscribeURL(server.URL, "proj-1", `[{"event":"secret:update"}]`), nil)
	require.NoError(t, err)
	req.Header.Set("X-Actor-ID", "actor-1")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Eventually(t, func() bool { return svc.ActiveCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	cancel()

	require.Eventually(t, func() bool {
		return svc.ActiveCount() == 0 && reg.listLen(listKey("proj-1")) == 0
	}, 2*time.Second, 10*time.Millisecond)
}
