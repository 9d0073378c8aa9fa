package notification

// Wire payloads for the reservation system's notification and webhook-log
// APIs. Both are signed over the exact marshalled bytes, so the structs stay
// in one place and marshalling happens exactly once per send.

type notificationPayload struct {
	WebhookID  string               `json:"webhookId"`
	UserID     string               `json:"userId"`
	Message    string               `json:"message"`
	Type       string               `json:"type"`
	EventID    string               `json:"eventId"`
	ResourceID string               `json:"resourceId"`
	EventType  string               `json:"eventType"`
	Metadata   notificationMetadata `json:"metadata"`
}

type notificationMetadata struct {
	ResourceType string `json:"resourceType"`
	ResourceName string `json:"resourceName"`
	Timestamp    string `json:"timestamp"`
	Namespace    string `json:"namespace"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

type logPayload struct {
	WebhookID  string      `json:"webhookId"`
	EventType  string      `json:"eventType"`
	Payload    string      `json:"payload"`
	StatusCode int         `json:"statusCode"`
	Response   string      `json:"response"`
	Success    bool        `json:"success"`
	RetryCount int         `json:"retryCount"`
	Metadata   logMetadata `json:"metadata"`
}

type logMetadata struct {
	ResourceType string `json:"resourceType"`
	Namespace    string `json:"namespace"`
	Timestamp    string `json:"timestamp"`
	ResourceName string `json:"resourceName,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	UserID       string `json:"userId,omitempty"`
	EventID      string `json:"eventId,omitempty"`
}

// reconstructedEvent is the compact-JSON string embedded in a log entry's
// payload field: the inbound event as the logging system expects to see it.
type reconstructedEvent struct {
	EventType    string `json:"eventType"`
	Timestamp    string `json:"timestamp"`
	ResourceName string `json:"resourceName"`
	UserID       string `json:"userId"`
	EventID      string `json:"eventId,omitempty"`
}
