package handlers

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/oakmart/api/internal/services"
)

func newWebhookTestServer(t *testing.T, reconciler *stubReconcilerService) *httptest.Server {
	t.Helper()

	handler := NewWebhookHandlers(reconciler)
	r := chi.NewRouter()
	r.Route("/webhooks", handler.Routes)

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return server
}

func postCallback(t *testing.T, url, body string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Post(url+"/webhooks/paylink", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post callback: %v", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read callback response: %v", err)
	}
	return resp, string(data)
}

func TestWebhookHandlersPaylinkSuccess(t *testing.T) {
	reconciler := &stubReconcilerService{result: services.CallbackResult{Order: testOrder(), Applied: true}}
	server := newWebhookTestServer(t, reconciler)

	resp, body := postCallback(t, server.URL, `{
		"orderReference": "OM-20260314-ABCDEF",
		"status": "success",
		"totalAmount": 12500,
		"integrityToken": "deadbeef"
	}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body != "OK" {
		t.Fatalf("expected OK body, got %q", body)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("expected text/plain response, got %q", ct)
	}

	if len(reconciler.commands) != 1 {
		t.Fatalf("expected one callback, got %d", len(reconciler.commands))
	}
	cmd := reconciler.commands[0]
	if cmd.OrderReference != "OM-20260314-ABCDEF" || cmd.Status != "success" || cmd.Amount != 12500 || cmd.IntegrityToken != "deadbeef" {
		t.Fatalf("unexpected command %+v", cmd)
	}
}

func TestWebhookHandlersPaylinkDuplicateStillAcknowledged(t *testing.T) {
	reconciler := &stubReconcilerService{result: services.CallbackResult{Order: testOrder(), Applied: false}}
	server := newWebhookTestServer(t, reconciler)

	resp, body := postCallback(t, server.URL, `{"orderReference":"OM-20260314-ABCDEF","status":"success","totalAmount":12500,"integrityToken":"deadbeef"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body != "OK" {
		t.Fatalf("duplicate deliveries must still be acknowledged, got %q", body)
	}
}

func TestWebhookHandlersPaylinkSignatureMismatch(t *testing.T) {
	reconciler := &stubReconcilerService{err: services.ErrCallbackSignature}
	server := newWebhookTestServer(t, reconciler)

	resp, body := postCallback(t, server.URL, `{"orderReference":"OM-20260314-ABCDEF","status":"success","totalAmount":99999,"integrityToken":"forged"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if body != "ERROR" {
		t.Fatalf("expected ERROR body, got %q", body)
	}
}

func TestWebhookHandlersPaylinkUnknownStatus(t *testing.T) {
	reconciler := &stubReconcilerService{err: services.ErrCallbackUnknownStatus}
	server := newWebhookTestServer(t, reconciler)

	resp, body := postCallback(t, server.URL, `{"orderReference":"OM-20260314-ABCDEF","status":"maybe","totalAmount":12500,"integrityToken":"deadbeef"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if body != "ERROR" {
		t.Fatalf("expected ERROR body, got %q", body)
	}
}

func TestWebhookHandlersPaylinkOrderNotFound(t *testing.T) {
	reconciler := &stubReconcilerService{err: services.ErrCallbackOrderNotFound}
	server := newWebhookTestServer(t, reconciler)

	resp, body := postCallback(t, server.URL, `{"orderReference":"OM-20990101-ZZZZZZ","status":"success","totalAmount":1,"integrityToken":"deadbeef"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	if body != "ERROR" {
		t.Fatalf("expected ERROR body, got %q", body)
	}
}

func TestWebhookHandlersPaylinkStoreUnavailable(t *testing.T) {
	reconciler := &stubReconcilerService{err: services.ErrCallbackUnavailable}
	server := newWebhookTestServer(t, reconciler)

	resp, body := postCallback(t, server.URL, `{"orderReference":"OM-20260314-ABCDEF","status":"success","totalAmount":12500,"integrityToken":"deadbeef"}`)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
	if body != "ERROR" {
		t.Fatalf("expected ERROR so the PSP retries, got %q", body)
	}
}

func TestWebhookHandlersPaylinkMalformedBody(t *testing.T) {
	reconciler := &stubReconcilerService{}
	server := newWebhookTestServer(t, reconciler)

	resp, body := postCallback(t, server.URL, `{not json`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if body != "ERROR" {
		t.Fatalf("expected ERROR body, got %q", body)
	}
	if len(reconciler.commands) != 0 {
		t.Fatal("reconciler must not see malformed payloads")
	}
}

func TestWebhookHandlersPaylinkRateLimitExceeded(t *testing.T) {
	reconciler := &stubReconcilerService{result: services.CallbackResult{Applied: true}}
	handler := NewWebhookHandlers(reconciler)
	handler.limiter = newSimpleRateLimiter(2, time.Minute, time.Now)

	r := chi.NewRouter()
	r.Route("/webhooks", handler.Routes)
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	payload := `{"orderReference":"OM-20260314-ABCDEF","status":"success","totalAmount":12500,"integrityToken":"deadbeef"}`
	for i := 0; i < 2; i++ {
		resp, _ := postCallback(t, server.URL, payload)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, resp.StatusCode)
		}
	}

	resp, body := postCallback(t, server.URL, payload)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.StatusCode)
	}
	if body != "ERROR" {
		t.Fatalf("expected ERROR body, got %q", body)
	}
	if len(reconciler.commands) != 2 {
		t.Fatalf("rate limited calls must not reach the reconciler, got %d", len(reconciler.commands))
	}
}
