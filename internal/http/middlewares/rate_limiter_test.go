package middlewares_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/expensehub/expensehub/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

func limitedRouter(limit int, window time.Duration, keyFn func(*gin.Context) string) *gin.Engine {
	rl := middlewares.NewRateLimiter(limit, window)

	r := gin.New()
	r.GET("/ping", rl.Middleware(keyFn), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func hit(r *gin.Engine, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = remoteAddr

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimiterBlocksOverLimit(t *testing.T) {
	r := limitedRouter(3, time.Minute, middlewares.KeyByIP)

	for i := 0; i < 3; i++ {
		if w := hit(r, "10.0.0.1:1234"); w.Code != http.StatusOK {
			t.Fatalf("request %d blocked early: %d", i+1, w.Code)
		}
	}

	w := hit(r, "10.0.0.1:1234")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("got status %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("429 missing Retry-After header")
	}
}

func TestRateLimiterKeysAreIndependent(t *testing.T) {
	r := limitedRouter(1, time.Minute, middlewares.KeyByIP)

	if w := hit(r, "10.0.0.1:1234"); w.Code != http.StatusOK {
		t.Fatalf("first client blocked: %d", w.Code)
	}
	if w := hit(r, "10.0.0.1:1234"); w.Code != http.StatusTooManyRequests {
		t.Fatalf("first client not limited: %d", w.Code)
	}

	// a different client still gets through
	if w := hit(r, "10.0.0.2:1234"); w.Code != http.StatusOK {
		t.Fatalf("second client blocked by first client's bucket: %d", w.Code)
	}
}

func TestRateLimiterWindowResets(t *testing.T) {
	r := limitedRouter(1, 20*time.Millisecond, middlewares.KeyByIP)

	if w := hit(r, "10.0.0.1:1234"); w.Code != http.StatusOK {
		t.Fatalf("first request blocked: %d", w.Code)
	}
	if w := hit(r, "10.0.0.1:1234"); w.Code != http.StatusTooManyRequests {
		t.Fatalf("limit not enforced: %d", w.Code)
	}

	time.Sleep(30 * time.Millisecond)

	if w := hit(r, "10.0.0.1:1234"); w.Code != http.StatusOK {
		t.Fatalf("window did not reset: %d", w.Code)
	}
}

func TestRateLimiterKeyByUserOrIP(t *testing.T) {
	rl := middlewares.NewRateLimiter(1, time.Minute)

	r := gin.New()
	r.GET("/ping", middlewares.WithIdentity("alice", ""), rl.Middleware(middlewares.KeyByUserOrIP), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	// same user from two addresses shares one bucket
	if w := hit(r, "10.0.0.1:1234"); w.Code != http.StatusOK {
		t.Fatalf("first request blocked: %d", w.Code)
	}
	if w := hit(r, "10.0.0.9:9999"); w.Code != http.StatusTooManyRequests {
		t.Fatalf("user bucket not shared across addresses: %d", w.Code)
	}
}
