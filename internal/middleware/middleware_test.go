package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func limitedRouter(rl *RateLimiter) *gin.Engine {
	r := gin.New()
	r.POST("/x", rl.Middleware(), func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func post(r http.Handler, trader string) int {
	req := httptest.NewRequest(http.MethodPost, "/x", nil)
	if trader != "" {
		req.Header.Set(TraderIDHeader, trader)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimiterPerTrader(t *testing.T) {
	now := time.Unix(0, 0)
	rl := NewRateLimiter(100 * time.Millisecond)
	rl.now = func() time.Time { return now }
	r := limitedRouter(rl)

	if code := post(r, "alice"); code != http.StatusOK {
		t.Fatalf("first request: %d", code)
	}
	if code := post(r, "alice"); code != http.StatusTooManyRequests {
		t.Errorf("second request should be limited, got %d", code)
	}
	if code := post(r, "bob"); code != http.StatusOK {
		t.Errorf("other trader should pass, got %d", code)
	}

	now = now.Add(100 * time.Millisecond)
	if code := post(r, "alice"); code != http.StatusOK {
		t.Errorf("request after interval should pass, got %d", code)
	}
}

func TestRateLimiterFallsBackToClientIP(t *testing.T) {
	now := time.Unix(0, 0)
	rl := NewRateLimiter(time.Second)
	rl.now = func() time.Time { return now }
	r := limitedRouter(rl)

	if code := post(r, ""); code != http.StatusOK {
		t.Fatalf("first request: %d", code)
	}
	if code := post(r, ""); code != http.StatusTooManyRequests {
		t.Errorf("same IP should be limited, got %d", code)
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	r := limitedRouter(NewRateLimiter(0))
	for i := 0; i < 5; i++ {
		if code := post(r, "alice"); code != http.StatusOK {
			t.Fatalf("request %d limited with zero interval: %d", i, code)
		}
	}
}

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	r := gin.New()
	r.Use(RequestLogger(zap.New(core)))
	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, RequestID(c)) })

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Body.String() != "req-1" || w.Header().Get(RequestIDHeader) != "req-1" {
		t.Errorf("request id not propagated: body %q header %q", w.Body.String(), w.Header().Get(RequestIDHeader))
	}
	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["request_id"] != "req-1" || fields["path"] != "/ok" || fields["status"] != int64(200) {
		t.Errorf("unexpected fields %v", fields)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	if w.Body.Len() == 0 {
		t.Error("expected a generated request id")
	}
}
