package event

import "time"

// Event type values emitted by the reservation system.
const (
	TypeStart   = "EVENT_START"
	TypeEnd     = "EVENT_END"
	TypeDeleted = "EVENT_DELETED"
)

// BatchEnvelope groups every reservation event that starts or ends in the
// same scheduler tick for a single user. The envelope-level SSH key applies
// to all events unless an event carries its own.
type BatchEnvelope struct {
	WebhookID       string              `json:"webhookId"`
	EventType       string              `json:"eventType"` // EVENT_START or EVENT_END
	UserID          string              `json:"userId"`
	Username        string              `json:"username"`
	Email           string              `json:"email,omitempty"`
	SSHPublicKey    string              `json:"sshPublicKey,omitempty"`
	Events          []ReservationEvent  `json:"events"`
	ActiveResources []ActiveReservation `json:"activeResources,omitempty"`
	EventCount      *int                `json:"eventCount,omitempty"`
}

// ReservationEvent is one reservation inside a batch envelope.
type ReservationEvent struct {
	EventID          string    `json:"eventId"`
	ResourceName     string    `json:"resourceName"`
	ResourceID       *int64    `json:"resourceId,omitempty"`
	Start            time.Time `json:"eventStart"`
	End              time.Time `json:"eventEnd"`
	Title            string    `json:"eventTitle,omitempty"`
	ResourceSpecs    string    `json:"resourceSpecs,omitempty"`
	ResourceLocation string    `json:"resourceLocation,omitempty"`
	SSHPublicKey     string    `json:"sshPublicKey,omitempty"`
}

// ActiveReservation describes a reservation the user already holds. It is
// informational only, so it is deliberately loose: no timestamps, no
// validation beyond a resource name.
type ActiveReservation struct {
	EventID      string `json:"eventId,omitempty"`
	ResourceName string `json:"resourceName"`
}

// DeletionNotice reports that a single reservation was deleted. Whether the
// deletion requires a deprovision depends on the activation window, evaluated
// against the notice's own timestamp.
type DeletionNotice struct {
	WebhookID string       `json:"webhookId"`
	EventType string       `json:"eventType"`
	Timestamp time.Time    `json:"timestamp"`
	Data      DeletionData `json:"data"`
}

// DeletionData carries the deleted reservation.
type DeletionData struct {
	ID         int64            `json:"id"`
	Start      time.Time        `json:"start"`
	End        time.Time        `json:"end"`
	Resource   DeletionResource `json:"resource"`
	KeycloakID string           `json:"keycloakId,omitempty"`
}

// DeletionResource names the reserved resource.
type DeletionResource struct {
	Name string `json:"name"`
}

// Validate checks the envelope's semantic invariants after decoding. An empty
// events list is valid; the scheduler sends one for users whose reservations
// were all cancelled before the tick.
func (e *BatchEnvelope) Validate() error {
	if e.EventCount != nil && *e.EventCount != len(e.Events) {
		return validationErrorf("eventCount %d does not match %d events", *e.EventCount, len(e.Events))
	}
	for i := range e.Events {
		if err := e.Events[i].validate(); err != nil {
			return validationErrorf("event %d: %v", i, err)
		}
	}
	return nil
}

func (ev *ReservationEvent) validate() error {
	if ev.EventID == "" {
		return validationErrorf("eventId is required")
	}
	if ev.ResourceName == "" {
		return validationErrorf("resourceName is required")
	}
	if ev.Start.IsZero() || ev.End.IsZero() {
		return validationErrorf("eventStart and eventEnd are required")
	}
	if !ev.Start.Before(ev.End) {
		return validationErrorf("eventStart %s is not before eventEnd %s", ev.Start.Format(time.RFC3339), ev.End.Format(time.RFC3339))
	}
	return nil
}

// Validate checks the notice's semantic invariants after decoding.
func (n *DeletionNotice) Validate() error {
	if n.Timestamp.IsZero() {
		return validationErrorf("timestamp is required")
	}
	if n.Data.ID == 0 {
		return validationErrorf("data.id is required")
	}
	if n.Data.Resource.Name == "" {
		return validationErrorf("data.resource.name is required")
	}
	if n.Data.Start.IsZero() || n.Data.End.IsZero() {
		return validationErrorf("data.start and data.end are required")
	}
	if !n.Data.Start.Before(n.Data.End) {
		return validationErrorf("data.start %s is not before data.end %s", n.Data.Start.Format(time.RFC3339), n.Data.End.Format(time.RFC3339))
	}
	return nil
}

// SSHKeyFor returns the public key to install for the event at index i. An
// event-level key wins over the envelope-level one.
func (e *BatchEnvelope) SSHKeyFor(i int) string {
	if i >= 0 && i < len(e.Events) && e.Events[i].SSHPublicKey != "" {
		return e.Events[i].SSHPublicKey
	}
	return e.SSHPublicKey
}

// ActiveResourceNames lists the resource names of the user's already-active
// reservations, skipping entries without one.
func (e *BatchEnvelope) ActiveResourceNames() []string {
	names := make([]string, 0, len(e.ActiveResources))
	for _, r := range e.ActiveResources {
		if r.ResourceName != "" {
			names = append(names, r.ResourceName)
		}
	}
	return names
}
