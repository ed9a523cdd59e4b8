package router

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	gmw "github.com/Laisky/gin-middlewares/v7"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/apimirror/gateway/common/config"
	"github.com/apimirror/gateway/common/kv"
	"github.com/apimirror/gateway/common/logger"
	"github.com/apimirror/gateway/model"
)

func testEngine(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	prevStore, prevBackend := kv.Shared, config.BackendURL
	kv.Shared = kv.NewMemoryStore()
	config.BackendURL = ""
	t.Cleanup(func() {
		kv.Shared = prevStore
		config.BackendURL = prevBackend
	})

	engine := gin.New()
	engine.Use(func(c *gin.Context) {
		gmw.SetLogger(c, logger.Logger)
		c.Next()
	})
	SetRouter(engine)
	return engine
}

func TestHealthEndpointNeedsNoAuth(t *testing.T) {
	engine := testEngine(t)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/internal/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestMetricsEndpointNeedsNoAuth(t *testing.T) {
	engine := testEngine(t)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "gateway_")
}

func cacheKeyRecord(t *testing.T, key string, record model.APIKeyRecord) {
	t.Helper()
	raw, err := json.Marshal(record)
	require.NoError(t, err)
	require.NoError(t, kv.Shared.Set(context.Background(), "apikey:"+key,
		kv.Entry{Value: raw}, config.APIKeyValidTTL))
}

func TestModelsResponseIsGzipped(t *testing.T) {
	engine := testEngine(t)
	cacheKeyRecord(t, "sk-ok", model.APIKeyRecord{UserId: 1, Active: true})

	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	req.Header.Set("Authorization", "Bearer sk-ok")
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "gzip", w.Header().Get("Content-Encoding"))

	zr, err := gzip.NewReader(w.Body)
	require.NoError(t, err)
	body, err := io.ReadAll(zr)
	require.NoError(t, err)
	require.Contains(t, string(body), `"object":"list"`)
}

func TestChatCompletionsStaysUncompressed(t *testing.T) {
	engine := testEngine(t)
	cacheKeyRecord(t, "sk-ok", model.APIKeyRecord{UserId: 1, Active: true})

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions",
		bytes.NewReader([]byte(`{"model":"nosuch/model","messages":[]}`)))
	req.Header.Set("Authorization", "Bearer sk-ok")
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)
	require.Empty(t, w.Header().Get("Content-Encoding"))
}

func postInvalidate(engine *gin.Engine, secret, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/internal/keys/invalidate",
		bytes.NewReader([]byte(body)))
	if secret != "" {
		req.Header.Set("Authorization", "Bearer "+secret)
	}
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestInternalKeyInvalidation(t *testing.T) {
	engine := testEngine(t)
	prevSecret := config.InternalSecret
	config.InternalSecret = "internal-secret"
	t.Cleanup(func() { config.InternalSecret = prevSecret })

	cacheKeyRecord(t, "sk-live", model.APIKeyRecord{UserId: 7, Active: true})

	authed := httptest.NewRequest(http.MethodGet, "/v1/ping", nil)
	authed.Header.Set("Authorization", "Bearer sk-live")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, authed)
	require.Equal(t, http.StatusOK, w.Code)

	// A wrong secret must not touch the cache.
	w = postInvalidate(engine, "wrong", `{"key":"sk-live"}`)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = postInvalidate(engine, "internal-secret", `{"key":"sk-live"}`)
	require.Equal(t, http.StatusNoContent, w.Code)

	// With the cache entry gone and the authority unreachable, the key
	// no longer authorizes.
	authed = httptest.NewRequest(http.MethodGet, "/v1/ping", nil)
	authed.Header.Set("Authorization", "Bearer sk-live")
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, authed)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestInternalKeyInvalidationRejectsBadBody(t *testing.T) {
	engine := testEngine(t)
	prevSecret := config.InternalSecret
	config.InternalSecret = "internal-secret"
	t.Cleanup(func() { config.InternalSecret = prevSecret })

	for _, body := range []string{"", "{}", "{not json"} {
		w := postInvalidate(engine, "internal-secret", body)
		require.Equal(t, http.StatusBadRequest, w.Code, "body %q", body)
	}
}

func TestV1SurfaceRequiresAuth(t *testing.T) {
	engine := testEngine(t)
	for _, probe := range []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/v1/ping"},
		{http.MethodPost, "/v1/ping"},
		{http.MethodGet, "/v1/models"},
		{http.MethodPost, "/v1/chat/completions"},
	} {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(probe.method, probe.path, nil))
		require.Equal(t, http.StatusUnauthorized, w.Code, "%s %s", probe.method, probe.path)
		require.JSONEq(t, `{"error":"Unauthorized"}`, w.Body.String())
	}
}
