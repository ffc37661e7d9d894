package httpapi

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

func TestRateLimitConcurrentClients(t *testing.T) {
	h := RateLimit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}), 100, 100)

	// Many goroutines, many distinct client IPs, so the bucket map sees
	// concurrent inserts and lookups. Run with -race.
	var wg sync.WaitGroup
	addrs := []string{"10.0.0.1:100", "10.0.0.2:100", "10.0.0.3:100", "10.0.0.4:100"}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(addr string) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
				req.RemoteAddr = addr
				h.ServeHTTP(httptest.NewRecorder(), req)
			}
		}(addrs[i%len(addrs)])
	}
	wg.Wait()
}

func TestRateLimitRejectsBurstOverflow(t *testing.T) {
	h := RateLimit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}), 3, 1)

	var codes []int
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.RemoteAddr = "10.9.9.9:100"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	for i := 0; i < 3; i++ {
		if codes[i] != http.StatusNoContent {
			t.Fatalf("request %d within burst: got %d", i, codes[i])
		}
	}
	if codes[4] != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after the burst, got %d", codes[4])
	}
}
