package notification

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/giovannimirarchi420/polito-reservation-webhook-client/internal/security"
)

type capturedRequest struct {
	header http.Header
	body   []byte
}

// newCaptureServer records every request and answers 200.
func newCaptureServer(t *testing.T) (*httptest.Server, *[]capturedRequest) {
	t.Helper()
	var captured []capturedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read request body: %v", err)
		}
		captured = append(captured, capturedRequest{header: r.Header.Clone(), body: body})
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, &captured
}

func newTestClient(cfg Config, signer *security.Signer) *Client {
	c := NewClient(cfg, signer)
	c.retryBackoff = time.Millisecond
	c.maxBackoff = 2 * time.Millisecond
	return c
}

// Test: a success notification carries the completion message, the signed
// body, and the expected headers.
func TestNotifySuccess(t *testing.T) {
	signer := security.NewSigner("shared-secret")
	srv, captured := newCaptureServer(t)

	client := newTestClient(Config{
		NotificationEndpoint: srv.URL,
		NotificationTimeout:  time.Second,
		Namespace:            "prognose",
	}, signer)

	err := client.Notify(context.Background(), Notification{
		WebhookID:    "42",
		UserID:       "kc-user-1",
		ResourceName: "restart-srv01",
		EventID:      "evt-7",
		Success:      true,
	})
	if err != nil {
		t.Fatalf("Notify returned error: %v", err)
	}
	if len(*captured) != 1 {
		t.Fatalf("expected 1 request, got %d", len(*captured))
	}

	req := (*captured)[0]
	if got := req.header.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := req.header.Get("User-Agent"); got != userAgent {
		t.Errorf("User-Agent = %q, want %q", got, userAgent)
	}
	if !signer.Verify(req.body, req.header.Get(security.SignatureHeader)) {
		t.Error("signature header does not verify against the request body")
	}

	var payload notificationPayload
	if err := json.Unmarshal(req.body, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Type != "SUCCESS" || payload.EventType != "PROVISIONING_COMPLETED" {
		t.Errorf("type/eventType = %q/%q", payload.Type, payload.EventType)
	}
	if payload.WebhookID != "42" || payload.UserID != "kc-user-1" || payload.EventID != "evt-7" {
		t.Errorf("identity fields = %q/%q/%q", payload.WebhookID, payload.UserID, payload.EventID)
	}
	if payload.ResourceID != "restart-srv01" {
		t.Errorf("resourceId = %q", payload.ResourceID)
	}
	if !strings.Contains(payload.Message, "'restart-srv01' has been successfully provisioned") {
		t.Errorf("unexpected success message: %q", payload.Message)
	}
	if !strings.Contains(payload.Message, "user 'prognose'") {
		t.Errorf("message does not mention the login user: %q", payload.Message)
	}
	if payload.Metadata.ResourceType != "BareMetalHost" || payload.Metadata.Namespace != "prognose" {
		t.Errorf("metadata = %+v", payload.Metadata)
	}
	if payload.Metadata.ErrorMessage != "" {
		t.Errorf("success notification carries errorMessage %q", payload.Metadata.ErrorMessage)
	}
}

// Test: a failure notification carries the error both in the message and in
// the metadata.
func TestNotifyFailure(t *testing.T) {
	srv, captured := newCaptureServer(t)
	client := newTestClient(Config{
		NotificationEndpoint: srv.URL,
		NotificationTimeout:  time.Second,
		Namespace:            "default",
	}, security.NewSigner(""))

	err := client.Notify(context.Background(), Notification{
		WebhookID:    "42",
		UserID:       "kc-user-1",
		ResourceName: "restart-srv02",
		Success:      false,
		ErrorMessage: "patch failed: host not found",
	})
	if err != nil {
		t.Fatalf("Notify returned error: %v", err)
	}

	var payload notificationPayload
	if err := json.Unmarshal((*captured)[0].body, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Type != "ERROR" || payload.EventType != "PROVISIONING_FAILED" {
		t.Errorf("type/eventType = %q/%q", payload.Type, payload.EventType)
	}
	want := "Your bare metal server reservation 'restart-srv02' provisioning failed. Error: patch failed: host not found"
	if payload.Message != want {
		t.Errorf("message = %q, want %q", payload.Message, want)
	}
	if payload.Metadata.ErrorMessage != "patch failed: host not found" {
		t.Errorf("metadata.errorMessage = %q", payload.Metadata.ErrorMessage)
	}
}

// Test: a failure without an error string falls back to a generic message.
func TestNotifyFailureWithoutError(t *testing.T) {
	srv, captured := newCaptureServer(t)
	client := newTestClient(Config{
		NotificationEndpoint: srv.URL,
		NotificationTimeout:  time.Second,
	}, security.NewSigner(""))

	if err := client.Notify(context.Background(), Notification{
		ResourceName: "restart-srv03",
	}); err != nil {
		t.Fatalf("Notify returned error: %v", err)
	}

	var payload notificationPayload
	if err := json.Unmarshal((*captured)[0].body, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if !strings.HasSuffix(payload.Message, "Error: Unknown error occurred") {
		t.Errorf("message = %q", payload.Message)
	}
}

// Test: a missing event id is generated rather than sent empty.
func TestNotifyGeneratesEventID(t *testing.T) {
	srv, captured := newCaptureServer(t)
	client := newTestClient(Config{
		NotificationEndpoint: srv.URL,
		NotificationTimeout:  time.Second,
	}, security.NewSigner(""))

	if err := client.Notify(context.Background(), Notification{
		ResourceName: "restart-srv01",
		Success:      true,
	}); err != nil {
		t.Fatalf("Notify returned error: %v", err)
	}

	var payload notificationPayload
	if err := json.Unmarshal((*captured)[0].body, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if !strings.HasPrefix(payload.EventID, "event-") || len(payload.EventID) <= len("event-") {
		t.Errorf("eventId = %q, want generated event-<uuid>", payload.EventID)
	}
}

// Test: without an endpoint both surfaces are silent no-ops.
func TestUnsetEndpointsSkipSends(t *testing.T) {
	client := newTestClient(Config{}, security.NewSigner("secret"))

	if err := client.Notify(context.Background(), Notification{ResourceName: "srv"}); err != nil {
		t.Errorf("Notify with unset endpoint returned %v", err)
	}
	if err := client.LogEvent(context.Background(), LogEntry{EventType: "EVENT_START"}); err != nil {
		t.Errorf("LogEvent with unset endpoint returned %v", err)
	}
}

// Test: with no secret configured no signature header is attached.
func TestDisabledSignerOmitsHeader(t *testing.T) {
	srv, captured := newCaptureServer(t)
	client := newTestClient(Config{
		NotificationEndpoint: srv.URL,
		NotificationTimeout:  time.Second,
	}, security.NewSigner(""))

	if err := client.Notify(context.Background(), Notification{ResourceName: "srv", Success: true}); err != nil {
		t.Fatalf("Notify returned error: %v", err)
	}
	if _, ok := (*captured)[0].header[security.SignatureHeader]; ok {
		t.Error("signature header present with signing disabled")
	}
}

// Test: 5xx responses are retried and a later success wins.
func TestRetryOnServerError(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := newTestClient(Config{
		NotificationEndpoint: srv.URL,
		NotificationTimeout:  time.Second,
	}, security.NewSigner(""))

	if err := client.Notify(context.Background(), Notification{ResourceName: "srv", Success: true}); err != nil {
		t.Fatalf("Notify returned error after retry: %v", err)
	}
	if got := attempts.Load(); got != 2 {
		t.Errorf("server saw %d attempts, want 2", got)
	}
}

// Test: a persistent 5xx is surfaced after the retries are exhausted.
func TestRetryExhaustion(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := newTestClient(Config{
		NotificationEndpoint: srv.URL,
		NotificationTimeout:  time.Second,
	}, security.NewSigner(""))

	err := client.Notify(context.Background(), Notification{ResourceName: "srv", Success: true})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("server saw %d attempts, want 3 (initial + 2 retries)", got)
	}
}

// Test: a 4xx is a hard failure without retries.
func TestClientErrorIsNotRetried(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	client := newTestClient(Config{
		NotificationEndpoint: srv.URL,
		NotificationTimeout:  time.Second,
	}, security.NewSigner(""))

	err := client.Notify(context.Background(), Notification{ResourceName: "srv", Success: true})
	if err == nil || !strings.Contains(err.Error(), "status 422") {
		t.Fatalf("expected status 422 error, got %v", err)
	}
	if got := attempts.Load(); got != 1 {
		t.Errorf("server saw %d attempts, want 1", got)
	}
}

// Test: log entries get default status fields and embed the reconstructed
// event as a JSON string.
func TestLogEventDefaultsAndEmbeddedPayload(t *testing.T) {
	signer := security.NewSigner("shared-secret")
	srv, captured := newCaptureServer(t)
	client := newTestClient(Config{
		WebhookLogEndpoint: srv.URL,
		WebhookLogTimeout:  time.Second,
		Namespace:          "default",
	}, signer)

	err := client.LogEvent(context.Background(), LogEntry{
		WebhookID:    "42",
		EventType:    "EVENT_START",
		Success:      true,
		ResourceName: "restart-srv01",
		UserID:       "kc-user-1",
		EventID:      "evt-9",
	})
	if err != nil {
		t.Fatalf("LogEvent returned error: %v", err)
	}

	req := (*captured)[0]
	if !signer.Verify(req.body, req.header.Get(security.SignatureHeader)) {
		t.Error("signature header does not verify against the request body")
	}

	var payload logPayload
	if err := json.Unmarshal(req.body, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.StatusCode != 200 || payload.Response != "OK" {
		t.Errorf("defaults not applied: statusCode=%d response=%q", payload.StatusCode, payload.Response)
	}
	if !payload.Success || payload.RetryCount != 0 {
		t.Errorf("success/retryCount = %v/%d", payload.Success, payload.RetryCount)
	}

	var inner reconstructedEvent
	if err := json.Unmarshal([]byte(payload.Payload), &inner); err != nil {
		t.Fatalf("embedded payload is not JSON: %v", err)
	}
	if inner.EventType != "EVENT_START" || inner.ResourceName != "restart-srv01" ||
		inner.UserID != "kc-user-1" || inner.EventID != "evt-9" {
		t.Errorf("embedded event = %+v", inner)
	}
	if payload.Metadata.ResourceName != "restart-srv01" || payload.Metadata.Namespace != "default" {
		t.Errorf("metadata = %+v", payload.Metadata)
	}
}

// Test: missing identity fields fall back to "unknown" in the embedded
// event but stay empty in the metadata.
func TestLogEventUnknownPlaceholders(t *testing.T) {
	srv, captured := newCaptureServer(t)
	client := newTestClient(Config{
		WebhookLogEndpoint: srv.URL,
		WebhookLogTimeout:  time.Second,
	}, security.NewSigner(""))

	err := client.LogEvent(context.Background(), LogEntry{
		WebhookID:    "42",
		EventType:    "EVENT_DELETED",
		Success:      false,
		ErrorMessage: "window not active",
	})
	if err != nil {
		t.Fatalf("LogEvent returned error: %v", err)
	}

	var payload logPayload
	if err := json.Unmarshal((*captured)[0].body, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	var inner reconstructedEvent
	if err := json.Unmarshal([]byte(payload.Payload), &inner); err != nil {
		t.Fatalf("embedded payload is not JSON: %v", err)
	}
	if inner.ResourceName != "unknown" || inner.UserID != "unknown" {
		t.Errorf("embedded placeholders = %q/%q", inner.ResourceName, inner.UserID)
	}
	if payload.Metadata.ErrorMessage != "window not active" {
		t.Errorf("metadata.errorMessage = %q", payload.Metadata.ErrorMessage)
	}
	if payload.Metadata.ResourceName != "" {
		t.Errorf("metadata.resourceName = %q, want empty", payload.Metadata.ResourceName)
	}
}
