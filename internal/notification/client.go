package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/giovannimirarchi420/polito-reservation-webhook-client/internal/security"
)

const userAgent = "polito-reservation-webhook-client/1.0"

// Notification describes a provisioning outcome to report to the affected
// user.
type Notification struct {
	WebhookID    string
	UserID       string
	ResourceName string
	EventID      string // generated when empty
	Success      bool
	ErrorMessage string
}

// LogEntry describes one audit record for the central webhook log.
type LogEntry struct {
	WebhookID    string
	EventType    string
	Success      bool
	StatusCode   int    // defaults to 200
	Response     string // defaults to "OK"
	RetryCount   int
	ResourceName string
	UserID       string
	EventID      string
	ErrorMessage string
}

// Config holds the endpoints and timeouts for the two outbound surfaces. An
// empty endpoint disables its surface.
type Config struct {
	NotificationEndpoint string
	NotificationTimeout  time.Duration
	WebhookLogEndpoint   string
	WebhookLogTimeout    time.Duration
	Namespace            string
}

// Client posts notifications and webhook logs back to the reservation
// system. Outbound payloads are signed with the same shared secret the
// inbound gate verifies, and sent as compact JSON so the signature matches
// the bytes on the wire.
type Client struct {
	cfg    Config
	signer *security.Signer

	notifyClient *http.Client
	logClient    *http.Client

	maxRetries   int
	retryBackoff time.Duration
	maxBackoff   time.Duration
}

func NewClient(cfg Config, signer *security.Signer) *Client {
	return &Client{
		cfg:          cfg,
		signer:       signer,
		notifyClient: &http.Client{Timeout: cfg.NotificationTimeout},
		logClient:    &http.Client{Timeout: cfg.WebhookLogTimeout},
		maxRetries:   2,
		retryBackoff: 1 * time.Second,
		maxBackoff:   4 * time.Second,
	}
}

// Notify reports a provisioning outcome to the user behind the reservation.
// With no notification endpoint configured this is a no-op.
func (c *Client) Notify(ctx context.Context, n Notification) error {
	if c.cfg.NotificationEndpoint == "" {
		return nil
	}

	eventID := n.EventID
	if eventID == "" {
		eventID = "event-" + uuid.NewString()
	}

	payload := notificationPayload{
		WebhookID:  n.WebhookID,
		UserID:     n.UserID,
		EventID:    eventID,
		ResourceID: n.ResourceName,
		Metadata: notificationMetadata{
			ResourceType: "BareMetalHost",
			ResourceName: n.ResourceName,
			Timestamp:    time.Now().UTC().Format(time.RFC3339),
			Namespace:    c.cfg.Namespace,
		},
	}

	if n.Success {
		payload.Type = "SUCCESS"
		payload.EventType = "PROVISIONING_COMPLETED"
		payload.Message = fmt.Sprintf(
			"Your bare metal server reservation '%s' has been successfully provisioned "+
				"and will be available soon after the system boot completes. This could take "+
				"some minutes. You can login using SSH with the user 'prognose' and your "+
				"configured SSH key to the IP address specified in the resource specification.",
			n.ResourceName)
	} else {
		errMsg := n.ErrorMessage
		if errMsg == "" {
			errMsg = "Unknown error occurred"
		}
		payload.Type = "ERROR"
		payload.EventType = "PROVISIONING_FAILED"
		payload.Message = fmt.Sprintf(
			"Your bare metal server reservation '%s' provisioning failed. Error: %s",
			n.ResourceName, errMsg)
		payload.Metadata.ErrorMessage = n.ErrorMessage
	}

	if err := c.post(ctx, c.notifyClient, c.cfg.NotificationEndpoint, payload); err != nil {
		return fmt.Errorf("send notification for %q: %w", n.ResourceName, err)
	}

	log.FromContext(ctx).WithName("notification").Info("sent provisioning notification",
		"resource", n.ResourceName, "success", n.Success)
	return nil
}

// LogEvent records one webhook outcome in the central log. With no log
// endpoint configured this is a no-op.
func (c *Client) LogEvent(ctx context.Context, e LogEntry) error {
	if c.cfg.WebhookLogEndpoint == "" {
		return nil
	}

	if e.StatusCode == 0 {
		e.StatusCode = http.StatusOK
	}
	if e.Response == "" {
		e.Response = "OK"
	}

	now := time.Now().UTC().Format(time.RFC3339)

	inner := reconstructedEvent{
		EventType:    e.EventType,
		Timestamp:    now,
		ResourceName: orUnknown(e.ResourceName),
		UserID:       orUnknown(e.UserID),
		EventID:      e.EventID,
	}
	innerJSON, err := json.Marshal(inner)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	payload := logPayload{
		WebhookID:  e.WebhookID,
		EventType:  e.EventType,
		Payload:    string(innerJSON),
		StatusCode: e.StatusCode,
		Response:   e.Response,
		Success:    e.Success,
		RetryCount: e.RetryCount,
		Metadata: logMetadata{
			ResourceType: "BareMetalHost",
			Namespace:    c.cfg.Namespace,
			Timestamp:    now,
			ResourceName: e.ResourceName,
			ErrorMessage: e.ErrorMessage,
			UserID:       e.UserID,
			EventID:      e.EventID,
		},
	}

	if err := c.post(ctx, c.logClient, c.cfg.WebhookLogEndpoint, payload); err != nil {
		return fmt.Errorf("send webhook log for event type %q: %w", e.EventType, err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, hc *http.Client, endpoint string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if sig := c.signer.Sign(body); sig != "" {
		req.Header.Set(security.SignatureHeader, sig)
	}

	resp, err := c.doWithRetry(ctx, hc, req, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("endpoint returned status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// doWithRetry executes the request with exponential backoff, retrying
// transport errors and 5xx responses. The body is replayed from bytes on
// each attempt.
func (c *Client) doWithRetry(ctx context.Context, hc *http.Client, req *http.Request, body []byte) (*http.Response, error) {
	backoff := c.retryBackoff

	for attempt := 0; ; attempt++ {
		req.Body = io.NopCloser(bytes.NewReader(body))

		resp, err := hc.Do(req)
		if err == nil && resp.StatusCode < 500 {
			return resp, nil
		}
		if err == nil {
			if attempt == c.maxRetries {
				return resp, nil // hand the 5xx to the caller
			}
			resp.Body.Close()
		} else if attempt == c.maxRetries {
			return nil, fmt.Errorf("max retries exceeded: %w", err)
		}

		select {
		case <-time.After(backoff):
			backoff *= 2
			if backoff > c.maxBackoff {
				backoff = c.maxBackoff
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
