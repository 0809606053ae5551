package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zhouzirui/locus/backend/internal/model/scene"
	"github.com/zhouzirui/locus/backend/internal/model/session"
	"github.com/zhouzirui/locus/backend/internal/observe"
	chatService "github.com/zhouzirui/locus/backend/internal/service/chat"
	"github.com/zhouzirui/locus/backend/internal/service/conversation"
	"github.com/zhouzirui/locus/backend/internal/store/transcript"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	scenes := scene.NewMemoryStore(scene.Seed())
	factory := func(scene.Scene, *session.Settings) (*conversation.Engine, error) {
		return nil, chatService.ErrUnavailable
	}
	chatSvc := chatService.NewService(scenes, session.Default(), factory, nil)

	logs, err := transcript.OpenJSON(filepath.Join(t.TempDir(), "chatLogs.json"))
	if err != nil {
		t.Fatalf("OpenJSON err: %v", err)
	}

	provider, err := observe.NewPrometheusProvider()
	if err != nil {
		t.Fatalf("NewPrometheusProvider err: %v", err)
	}
	t.Cleanup(func() { provider.Shutdown(context.Background()) })

	return NewRouter(Dependencies{
		Scenes:         scenes,
		Chat:           chatSvc,
		Transcripts:    logs,
		Metrics:        provider.Metrics,
		MetricsHandler: provider.Handler(),
	})
}

func TestRouterRoutes(t *testing.T) {
	r := newTestRouter(t)

	cases := []struct {
		method string
		path   string
		body   string
		code   int
	}{
		{http.MethodGet, "/healthz", "", http.StatusOK},
		{http.MethodGet, "/api/scenes", "", http.StatusOK},
		{http.MethodGet, "/api/chatlogs", "", http.StatusOK},
		{http.MethodOptions, "/api/session", "", http.StatusNoContent},
		{http.MethodPost, "/api/session", `{}`, http.StatusServiceUnavailable},
		{http.MethodGet, "/api/stream/unknown", "", http.StatusNotFound},
		// 未配置语音服务时不注册语音路由
		{http.MethodGet, "/api/speech/health", "", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, req)
			if rr.Code != tc.code {
				t.Fatalf("expected %d, got %d: %s", tc.code, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestRouterServesMetrics(t *testing.T) {
	r := newTestRouter(t)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/scenes", nil))

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "locus_http_request_duration") {
		t.Fatalf("request histogram missing from exposition:\n%s", rr.Body.String())
	}
}
