package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthURL(t *testing.T) {
	tests := map[string]string{
		"":               "http://localhost:8080/healthz",
		":9090":          "http://localhost:9090/healthz",
		"127.0.0.1:8081": "http://127.0.0.1:8081/healthz",
	}
	for addr, want := range tests {
		if got := healthURL(addr); got != want {
			t.Errorf("healthURL(%q) = %q, want %q", addr, got, want)
		}
	}
}

func TestHealthy(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }))
	defer ok.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusServiceUnavailable) }))
	defer bad.Close()

	if !healthy(context.Background(), ok.URL) {
		t.Fatal("expected healthy")
	}
	if healthy(context.Background(), bad.URL) {
		t.Fatal("expected unhealthy on 503")
	}
	if healthy(context.Background(), "http://127.0.0.1:1/healthz") {
		t.Fatal("expected unhealthy when unreachable")
	}
}
