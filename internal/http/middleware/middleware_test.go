package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arsenic-art/DreamFundr/internal/idempotency"
	"github.com/arsenic-art/DreamFundr/internal/shared/apperr"
	"github.com/arsenic-art/DreamFundr/internal/testutil"
)

func newEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	log := testutil.DiscardLogger()
	r.Use(RequestID(), ErrorHandler(log), Recovery(log))
	return r
}

func TestRequestIDEchoOrGenerate(t *testing.T) {
	r := newEngine()
	r.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, GetRequestID(c)) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(HeaderRequestID, "abc12345-trace")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Body.String() != "abc12345-trace" {
		t.Errorf("expected echoed id, got %q", w.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(HeaderRequestID, "bad id\nwith newline")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if len(w.Body.String()) != 36 {
		t.Errorf("expected generated uuid, got %q", w.Body.String())
	}
}

func TestErrorHandlerRendersAppError(t *testing.T) {
	r := newEngine()
	r.GET("/missing", func(c *gin.Context) { Fail(c, apperr.NotFoundErr("Nothing here.")) })
	r.GET("/boom", func(c *gin.Context) { Fail(c, errors.New("db exploded")) })
	r.GET("/panic", func(c *gin.Context) { panic("oops") })

	cases := []struct {
		path   string
		status int
		msg    string
	}{
		{"/missing", http.StatusNotFound, "Nothing here."},
		{"/boom", http.StatusInternalServerError, "An unexpected error occurred."},
		{"/panic", http.StatusInternalServerError, "An unexpected error occurred."},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tc.path, nil))
		if w.Code != tc.status {
			t.Errorf("%s: expected %d, got %d", tc.path, tc.status, w.Code)
		}
		if !strings.Contains(w.Body.String(), tc.msg) || !strings.Contains(w.Body.String(), "request_id") {
			t.Errorf("%s: unexpected body %s", tc.path, w.Body.String())
		}
		if strings.Contains(w.Body.String(), "exploded") {
			t.Errorf("%s: internal error leaked: %s", tc.path, w.Body.String())
		}
	}
}

func TestIdempotencyReleasesOnServerError(t *testing.T) {
	store, err := idempotency.Open(filepath.Join(t.TempDir(), "idem.db"), time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	calls := 0
	r := newEngine()
	r.POST("/op", Idempotency(store, testutil.DiscardLogger()), func(c *gin.Context) {
		calls++
		if calls == 1 {
			c.JSON(http.StatusBadGateway, gin.H{"error": "upstream"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"n": calls})
	})

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/op", strings.NewReader(`{"a":1}`))
		req.Header.Set(HeaderIdempotencyKey, "k1")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	if w := send(); w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
	if w := send(); w.Code != http.StatusOK || w.Header().Get(HeaderReplayed) != "" {
		t.Fatalf("expected fresh run after 5xx, got %d replayed=%q", w.Code, w.Header().Get(HeaderReplayed))
	}
	w := send()
	if w.Code != http.StatusOK || w.Header().Get(HeaderReplayed) != "true" || !strings.Contains(w.Body.String(), `"n":2`) {
		t.Fatalf("expected replay of second response, got %d %s", w.Code, w.Body.String())
	}
	if calls != 2 {
		t.Errorf("expected handler to run twice, ran %d times", calls)
	}
}

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"Bearer abc":  "abc",
		"bearer  xyz": "xyz",
		"Basic abc":   "",
		"":            "",
		"Bearer ":     "",
	}
	for in, want := range cases {
		if got := bearerToken(in); got != want {
			t.Errorf("bearerToken(%q) = %q, want %q", in, got, want)
		}
	}
}
