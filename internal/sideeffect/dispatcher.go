// Package sideeffect fans provisioning outcomes out to the best-effort
// collaborators: the audit log, user notifications, and post-batch network
// configuration. Nothing in here may influence the webhook response; every
// failure is logged, counted, and swallowed.
package sideeffect

import (
	"context"
	"net/http"

	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/giovannimirarchi420/polito-reservation-webhook-client/internal/event"
	"github.com/giovannimirarchi420/polito-reservation-webhook-client/internal/metrics"
	"github.com/giovannimirarchi420/polito-reservation-webhook-client/internal/notification"
)

// Notifier delivers a provisioning outcome to the affected user.
type Notifier interface {
	Notify(ctx context.Context, n notification.Notification) error
}

// AuditLogger records one processed webhook event in the central log.
type AuditLogger interface {
	LogEvent(ctx context.Context, e notification.LogEntry) error
}

// NetworkConfigurator applies switch configuration for a set of hosts.
type NetworkConfigurator interface {
	Configure(ctx context.Context, username string, resources []string) error
}

// Outcome is the per-resource context handed to the dispatcher right after
// each provision or deprovision attempt.
type Outcome struct {
	WebhookID    string
	EventType    string
	UserID       string
	EventID      string
	ResourceName string
	Action       string
	Err          error // nil on success
}

// Batch is the batch-level context handed to the dispatcher once the whole
// batch has been processed.
type Batch struct {
	EventType       string
	Username        string
	Provisioned     []string // successfully provisioned hosts, input order
	ActiveResources []string // hosts the user already holds
}

// Dispatcher runs the side effects. Any collaborator may be nil, in which
// case its effect is skipped.
type Dispatcher struct {
	notifier Notifier
	audit    AuditLogger
	network  NetworkConfigurator
}

func NewDispatcher(notifier Notifier, audit AuditLogger, network NetworkConfigurator) *Dispatcher {
	return &Dispatcher{notifier: notifier, audit: audit, network: network}
}

// ResourceOutcome emits the audit-log entry for one outcome and, on failure,
// a notification to the user. Both require a webhook id; envelopes without
// one are not tracked by the reservation system and produce no side effects.
func (d *Dispatcher) ResourceOutcome(ctx context.Context, o Outcome) {
	if d == nil || o.WebhookID == "" {
		return
	}
	logger := log.FromContext(ctx).WithName("sideeffect")

	if d.audit != nil {
		entry := notification.LogEntry{
			WebhookID:    o.WebhookID,
			EventType:    o.EventType,
			Success:      o.Err == nil,
			StatusCode:   http.StatusOK,
			Response:     "OK",
			ResourceName: o.ResourceName,
			UserID:       o.UserID,
			EventID:      o.EventID,
		}
		if o.Err != nil {
			entry.StatusCode = http.StatusInternalServerError
			entry.Response = o.Err.Error()
			entry.ErrorMessage = o.Err.Error()
		}
		if err := d.audit.LogEvent(ctx, entry); err != nil {
			metrics.SideEffectFailures.WithLabelValues("audit_log").Inc()
			logger.Error(err, "failed to record webhook log entry",
				"resource", o.ResourceName, "eventId", o.EventID)
		}
	}

	if o.Err != nil && d.notifier != nil {
		n := notification.Notification{
			WebhookID:    o.WebhookID,
			UserID:       o.UserID,
			ResourceName: o.ResourceName,
			EventID:      o.EventID,
			Success:      false,
			ErrorMessage: o.Err.Error(),
		}
		if err := d.notifier.Notify(ctx, n); err != nil {
			metrics.SideEffectFailures.WithLabelValues("notification").Inc()
			logger.Error(err, "failed to notify user of provisioning failure",
				"resource", o.ResourceName, "user", o.UserID)
		}
	}
}

// BatchCompleted runs the post-batch network hook. Only a start batch with
// at least one provisioned host triggers it; the switch sees the freshly
// provisioned hosts together with the user's already-active ones so they
// all land in the same VLAN.
func (d *Dispatcher) BatchCompleted(ctx context.Context, b Batch) {
	if d == nil || d.network == nil {
		return
	}
	if b.EventType != event.TypeStart || len(b.Provisioned) == 0 {
		return
	}

	resources := mergeUnique(b.Provisioned, b.ActiveResources)
	if err := d.network.Configure(ctx, b.Username, resources); err != nil {
		metrics.SideEffectFailures.WithLabelValues("network_config").Inc()
		log.FromContext(ctx).WithName("sideeffect").Error(err,
			"failed to configure network for batch",
			"user", b.Username, "resources", resources)
	}
}

// mergeUnique appends extras to base, skipping names already present.
func mergeUnique(base, extras []string) []string {
	out := make([]string, 0, len(base)+len(extras))
	seen := make(map[string]struct{}, len(base)+len(extras))
	for _, lists := range [][]string{base, extras} {
		for _, name := range lists {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}
	return out
}
