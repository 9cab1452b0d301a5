package request

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"wanderguide/pkg/cache"
	"wanderguide/pkg/tracker"
)

func newTestClient(t *testing.T) (*Client, *tracker.Tracker) {
	t.Helper()
	tr := tracker.New()
	mem := cache.NewLayered(cache.New[string, []byte](cache.Options{Capacity: 16}), nil)
	c := New(mem, tr, Options{BaseDelay: 5 * time.Millisecond, SafetyGap: 1})
	t.Cleanup(c.Close)
	return c, tr
}

func TestGet_Sequential(t *testing.T) {
	var conc int32
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		current := atomic.AddInt32(&conc, 1)
		defer atomic.AddInt32(&conc, -1)

		if current > 1 {
			t.Errorf("Concurrency detected! Expected sequential.")
		}
		time.Sleep(20 * time.Millisecond)
		w.WriteHeader(200)
		_, _ = w.Write([]byte("ok"))
	}))
	defer svr.Close()

	client, _ := newTestClient(t)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := client.Get(context.Background(), svr.URL, ""); err != nil {
				t.Errorf("Get failed: %v", err)
			}
		}()
	}
	wg.Wait()
}

func TestGet_Retry(t *testing.T) {
	var attempts int32
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(429)
			return
		}
		w.WriteHeader(200)
		_, _ = w.Write([]byte("success"))
	}))
	defer svr.Close()

	client, _ := newTestClient(t)

	body, err := client.Get(context.Background(), svr.URL, "")
	if err != nil {
		t.Fatalf("Expected success after retry, got error: %v", err)
	}
	if string(body) != "success" {
		t.Errorf("Expected 'success', got '%s'", string(body))
	}
	if atomic.LoadInt32(&attempts) != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestGet_CacheHit(t *testing.T) {
	var hits int32
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write([]byte("payload"))
	}))
	defer svr.Close()

	client, tr := newTestClient(t)
	for i := 0; i < 3; i++ {
		body, err := client.Get(context.Background(), svr.URL, "key")
		if err != nil || string(body) != "payload" {
			t.Fatalf("Get = %q, %v", body, err)
		}
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Errorf("Expected 1 upstream hit, got %d", hits)
	}

	var total tracker.ProviderStats
	for _, s := range tr.Snapshot() {
		total.CacheHits += s.CacheHits
		total.CacheMisses += s.CacheMisses
	}
	if total.CacheHits != 2 || total.CacheMisses != 1 {
		t.Errorf("Expected 2 hits / 1 miss, got %d / %d", total.CacheHits, total.CacheMisses)
	}
}

func TestGet_StatusError(t *testing.T) {
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer svr.Close()

	client, _ := newTestClient(t)
	_, err := client.Get(context.Background(), svr.URL, "")
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != 404 {
		t.Fatalf("expected 404 StatusError, got %v", err)
	}
}

func TestPost_RetryResendsBody(t *testing.T) {
	var attempts int32
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		if string(b) != `{"q":1}` {
			t.Errorf("attempt %d: body = %q", atomic.LoadInt32(&attempts)+1, b)
		}
		if atomic.AddInt32(&attempts, 1) == 1 {
			w.WriteHeader(503)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer svr.Close()

	client, _ := newTestClient(t)
	body, err := client.Post(context.Background(), svr.URL, []byte(`{"q":1}`), "application/json")
	if err != nil || string(body) != "ok" {
		t.Fatalf("Post = %q, %v", body, err)
	}
}

func TestGet_ContextCancelled(t *testing.T) {
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer svr.Close()

	client, _ := newTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	if _, err := client.Get(ctx, svr.URL, ""); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestClose(t *testing.T) {
	client := New(nil, nil, Options{})
	client.Close()
	client.Close()
	if _, err := client.Get(context.Background(), "http://example.invalid/", ""); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
