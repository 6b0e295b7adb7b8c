package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/whintake/whintake/internal/server/dto"
	"github.com/whintake/whintake/internal/server/handlers"
)

func TestSerialize(t *testing.T) {
	var active, peak atomic.Int32
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		active.Add(-1)
	})
	var mu sync.Mutex
	h := Serialize(&mu, slow)

	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/records", http.NoBody))
		})
	}
	wg.Wait()
	if got := peak.Load(); got != 1 {
		t.Errorf("peak concurrency = %d, want 1", got)
	}
}

func TestSerializeBypass(t *testing.T) {
	var mu sync.Mutex
	mu.Lock()
	defer mu.Unlock()
	h := Serialize(&mu, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	for _, path := range []string{"/api/health", "/viewer", "/metrics"} {
		done := make(chan struct{})
		go func() {
			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", path, http.NoBody))
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatalf("%s waited on the lock", path)
		}
	}
}

func TestLogRequestsStatus(t *testing.T) {
	h := LogRequests(nil, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.WriteHeader(http.StatusOK)
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/x", http.NoBody))
	if w.Code != http.StatusTeapot {
		t.Errorf("status = %d", w.Code)
	}
	if w.Header().Get("X-Request-Id") == "" {
		t.Error("missing X-Request-Id")
	}
}

type echoRequest struct {
	ID   string `path:"id"`
	Name string `query:"name"`
	N    int    `query:"n"`
	Body string `json:"body"`
}

func (r *echoRequest) Validate() error {
	if r.Name == "bad" {
		return dto.BadRequest("bad name")
	}
	return nil
}

func TestWrap(t *testing.T) {
	var got echoRequest
	h := Wrap(func(_ context.Context, r *echoRequest) (*dto.StatusResponse, error) {
		got = *r
		if r.Body == "fail" {
			return nil, errors.New("/secret/path exploded")
		}
		return &dto.StatusResponse{Status: "ok", Message: r.Body}, nil
	}, nil)
	mux := &http.ServeMux{}
	mux.Handle("POST /echo/{id}", h)

	t.Run("populates fields", func(t *testing.T) {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest("POST", "/echo/7?name=x&n=3", strings.NewReader(`{"body":"hi"}`)))
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d %s", w.Code, w.Body)
		}
		if got.ID != "7" || got.Name != "x" || got.N != 3 || got.Body != "hi" {
			t.Errorf("request = %+v", got)
		}
	})
	tests := []struct {
		name    string
		target  string
		body    string
		status  int
		message string
	}{
		{"unknown field", "/echo/1", `{"other":1}`, http.StatusBadRequest, "Invalid request body"},
		{"validation", "/echo/1?name=bad", ``, http.StatusBadRequest, "bad name"},
		{"plain error hidden", "/echo/1", `{"body":"fail"}`, http.StatusInternalServerError, "Internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest("POST", tt.target, strings.NewReader(tt.body)))
			wantError(t, w, tt.status, tt.message)
		})
	}
}

func TestWrapBodyLimit(t *testing.T) {
	h := Wrap(func(_ context.Context, r *echoRequest) (*dto.StatusResponse, error) {
		return &dto.StatusResponse{Status: "ok"}, nil
	}, &handlers.Config{MaxRequestBodyBytes: 8})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("POST", "/", strings.NewReader(`{"body":"0123456789"}`)))
	wantError(t, w, http.StatusRequestEntityTooLarge, "Request body too large")
}
