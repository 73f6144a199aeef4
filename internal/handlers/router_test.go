package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestRouterUnknownRoute(t *testing.T) {
	router := NewRouter()
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	resp, err := http.Get(server.URL + "/api/v1/nope")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload["error"] != errorNotFoundCode {
		t.Fatalf("unexpected error code %v", payload["error"])
	}
}

func TestRouterUnconfiguredGroupAnswersNotImplemented(t *testing.T) {
	router := NewRouter()
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	resp, err := http.Post(server.URL+"/api/v1/webhooks/paylink", "application/json", nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", resp.StatusCode)
	}
}

func TestRouterHealthEndpointsAlwaysMounted(t *testing.T) {
	router := NewRouter()
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(server.URL + path)
		if err != nil {
			t.Fatalf("request %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, resp.StatusCode)
		}
	}
}

func TestRouterMountsConfiguredGroups(t *testing.T) {
	reconciler := &stubReconcilerService{err: errors.New("not configured")}
	webhooks := NewWebhookHandlers(reconciler)

	router := NewRouter(
		WithOrderRoutes(func(r chi.Router) {
			r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			})
		}),
		WithWebhookRoutes(webhooks.Routes),
	)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	resp, err := http.Get(server.URL + "/api/v1/orders/")
	if err != nil {
		t.Fatalf("orders request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected configured orders route, got %d", resp.StatusCode)
	}

	resp, err = http.Post(server.URL+"/api/v1/webhooks/paylink", "application/json", nil)
	if err != nil {
		t.Fatalf("webhook request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode == http.StatusNotImplemented {
		t.Fatal("webhook group should be mounted")
	}
}

func TestRouterAppliesGroupMiddlewares(t *testing.T) {
	var sawOrders, sawWebhooks bool
	marker := func(flag *bool) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				*flag = true
				next.ServeHTTP(w, r)
			})
		}
	}

	router := NewRouter(
		WithOrderRoutes(func(r chi.Router) {
			r.Get("/", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
		}),
		WithOrderMiddlewares(marker(&sawOrders)),
		WithWebhookRoutes(func(r chi.Router) {
			r.Post("/paylink", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
		}),
		WithWebhookMiddlewares(marker(&sawWebhooks)),
	)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	if resp, err := http.Get(server.URL + "/api/v1/orders/"); err != nil {
		t.Fatalf("orders request: %v", err)
	} else {
		resp.Body.Close()
	}
	if resp, err := http.Post(server.URL+"/api/v1/webhooks/paylink", "application/json", nil); err != nil {
		t.Fatalf("webhook request: %v", err)
	} else {
		resp.Body.Close()
	}

	if !sawOrders {
		t.Fatal("order middleware was not applied")
	}
	if !sawWebhooks {
		t.Fatal("webhook middleware was not applied")
	}
}
