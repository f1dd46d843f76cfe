package httpserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfgpkg "github.com/taoyao-code/tracker-server/internal/config"
	appmetrics "github.com/taoyao-code/tracker-server/internal/metrics"
)

type fakeReadiness struct{ pending []string }

func (f fakeReadiness) Ready() bool       { return len(f.pending) == 0 }
func (f fakeReadiness) Pending() []string { return f.pending }

func serve(s *Server, path string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestServerRoutes(t *testing.T) {
	cfg := cfgpkg.HTTPConfig{Addr: ":0", ReadTimeout: time.Second, WriteTimeout: time.Second}
	handler := appmetrics.Handler(appmetrics.NewRegistry())

	tests := []struct {
		name  string
		ready Readiness
		path  string
		want  int
	}{
		{"healthz", nil, "/healthz", http.StatusOK},
		{"readyz 未设置", nil, "/readyz", http.StatusOK},
		{"readyz 就绪", fakeReadiness{}, "/readyz", http.StatusOK},
		{"readyz 未就绪", fakeReadiness{pending: []string{"storage"}}, "/readyz", http.StatusServiceUnavailable},
		{"metrics", nil, "/metrics", http.StatusOK},
		{"未注册路由", nil, "/nope", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := New(cfg, "/metrics", handler, tt.ready, nil)
			assert.Equal(t, tt.want, serve(srv, tt.path).Code)
		})
	}
}

func TestServerReadyzPending(t *testing.T) {
	srv := New(cfgpkg.HTTPConfig{Addr: ":0"}, "", nil, fakeReadiness{pending: []string{"pipeline", "tcp:freematics"}}, nil)
	rr := serve(srv, "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)

	var body struct {
		Status  string   `json:"status"`
		Pending []string `json:"pending"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "not-ready", body.Status)
	assert.Equal(t, []string{"pipeline", "tcp:freematics"}, body.Pending)
}

func TestServerEngineExtraRoutes(t *testing.T) {
	srv := New(cfgpkg.HTTPConfig{Addr: ":0"}, "", nil, nil, nil)
	srv.Engine().GET("/extra", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	assert.Equal(t, http.StatusNoContent, serve(srv, "/extra").Code)
	assert.Equal(t, http.StatusNotFound, serve(srv, "/metrics").Code, "未提供指标处理器时不注册")
}
