// Package orchestrator turns classified reservation payloads into host
// mutations. It decides, per resource, whether to provision or deprovision,
// records every outcome in input order, and feeds each one to the
// side-effect dispatcher as it happens.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/giovannimirarchi420/polito-reservation-webhook-client/internal/event"
	"github.com/giovannimirarchi420/polito-reservation-webhook-client/internal/metrics"
	"github.com/giovannimirarchi420/polito-reservation-webhook-client/internal/sideeffect"
)

// Action names the host mutation an outcome refers to.
type Action string

const (
	ActionProvision   Action = "provision"
	ActionDeprovision Action = "deprovision"
)

// HostProvisioner mutates bare-metal host records. Calls must be safe to
// repeat with the same target state.
type HostProvisioner interface {
	Provision(ctx context.Context, host, sshKey string) error
	Deprovision(ctx context.Context, host string) error
}

// Outcome records one provision or deprovision attempt.
type Outcome struct {
	EventID      string
	ResourceName string
	Action       Action
	Err          error
}

func (o Outcome) Succeeded() bool { return o.Err == nil }

// BatchResult aggregates the outcomes of one batch in input order.
type BatchResult struct {
	Outcomes       []Outcome
	ProcessedCount int
	Failed         []Outcome
}

// DeletionResult is the outcome of a deletion notice. Active reports
// whether the reservation window contained the notice timestamp; when it
// did not, no host call was made and Outcome is a synthesized success.
type DeletionResult struct {
	ResourceName string
	Active       bool
	Outcome      Outcome
}

// UnrecognizedEventTypeError rejects a batch whose verb is neither start
// nor end.
type UnrecognizedEventTypeError struct {
	EventType string
}

func (e *UnrecognizedEventTypeError) Error() string {
	return fmt.Sprintf("unrecognized event type %q", e.EventType)
}

// Engine is the provisioning decision core. The host provisioner is the
// only collaborator that can fail a request; the dispatcher absorbs its
// own failures.
type Engine struct {
	hosts      HostProvisioner
	dispatcher *sideeffect.Dispatcher
	opTimeout  time.Duration
}

func NewEngine(hosts HostProvisioner, dispatcher *sideeffect.Dispatcher, opTimeout time.Duration) *Engine {
	return &Engine{hosts: hosts, dispatcher: dispatcher, opTimeout: opTimeout}
}

// RunBatch processes every event of a start or end batch in input order.
// Individual host failures never stop the siblings; they are collected in
// the result. The returned error is reserved for batches whose event type
// is not a known verb.
func (e *Engine) RunBatch(ctx context.Context, env *event.BatchEnvelope) (*BatchResult, error) {
	var action Action
	switch env.EventType {
	case event.TypeStart:
		action = ActionProvision
	case event.TypeEnd:
		action = ActionDeprovision
	default:
		return nil, &UnrecognizedEventTypeError{EventType: env.EventType}
	}

	logger := log.FromContext(ctx).WithName("orchestrator")
	logger.Info("processing batch", "eventType", env.EventType,
		"events", len(env.Events), "user", env.Username)

	result := &BatchResult{Outcomes: make([]Outcome, 0, len(env.Events))}
	var provisioned []string

	for i, ev := range env.Events {
		outcome := Outcome{
			EventID:      ev.EventID,
			ResourceName: ev.ResourceName,
			Action:       action,
		}

		switch action {
		case ActionProvision:
			outcome.Err = e.call(ctx, func(opCtx context.Context) error {
				return e.hosts.Provision(opCtx, ev.ResourceName, env.SSHKeyFor(i))
			})
		case ActionDeprovision:
			outcome.Err = e.call(ctx, func(opCtx context.Context) error {
				return e.hosts.Deprovision(opCtx, ev.ResourceName)
			})
		}

		e.record(logger, result, outcome)
		if outcome.Succeeded() && action == ActionProvision {
			provisioned = append(provisioned, ev.ResourceName)
		}

		e.dispatcher.ResourceOutcome(ctx, sideeffect.Outcome{
			WebhookID:    env.WebhookID,
			EventType:    env.EventType,
			UserID:       env.UserID,
			EventID:      ev.EventID,
			ResourceName: ev.ResourceName,
			Action:       string(action),
			Err:          outcome.Err,
		})
	}

	e.dispatcher.BatchCompleted(ctx, sideeffect.Batch{
		EventType:       env.EventType,
		Username:        env.Username,
		Provisioned:     provisioned,
		ActiveResources: env.ActiveResourceNames(),
	})

	return result, nil
}

// RunDeletion deprovisions the resource named by a deletion notice, but
// only when the reservation window contains the notice timestamp. An
// inactive reservation is a deliberate no-op reported as success.
func (e *Engine) RunDeletion(ctx context.Context, notice *event.DeletionNotice) (*DeletionResult, error) {
	name := notice.Data.Resource.Name
	logger := log.FromContext(ctx).WithName("orchestrator")

	result := &DeletionResult{
		ResourceName: name,
		Active:       notice.Active(),
		Outcome: Outcome{
			EventID:      fmt.Sprintf("%d", notice.Data.ID),
			ResourceName: name,
			Action:       ActionDeprovision,
		},
	}

	if result.Active {
		result.Outcome.Err = e.call(ctx, func(opCtx context.Context) error {
			return e.hosts.Deprovision(opCtx, name)
		})
		e.recordMetric(result.Outcome)
		if result.Outcome.Err != nil {
			logger.Error(result.Outcome.Err, "deprovision failed for deleted reservation", "resource", name)
		} else {
			logger.Info("deprovision initiated for deleted reservation", "resource", name)
		}
	} else {
		logger.Info("deleted reservation is not active, skipping deprovision",
			"resource", name, "timestamp", notice.Timestamp)
	}

	e.dispatcher.ResourceOutcome(ctx, sideeffect.Outcome{
		WebhookID:    notice.WebhookID,
		EventType:    notice.EventType,
		UserID:       notice.Data.KeycloakID,
		EventID:      result.Outcome.EventID,
		ResourceName: name,
		Action:       string(ActionDeprovision),
		Err:          result.Outcome.Err,
	})

	return result, nil
}

// call runs one host operation under its own deadline. The operation is
// detached from the request's cancellation: once a mutation is issued it
// runs to completion, because abandoning a half-applied patch is worse
// than finishing it.
func (e *Engine) call(ctx context.Context, op func(context.Context) error) error {
	opCtx := context.WithoutCancel(ctx)
	if e.opTimeout > 0 {
		var cancel context.CancelFunc
		opCtx, cancel = context.WithTimeout(opCtx, e.opTimeout)
		defer cancel()
	}
	return op(opCtx)
}

func (e *Engine) record(logger logr.Logger, result *BatchResult, outcome Outcome) {
	result.Outcomes = append(result.Outcomes, outcome)
	e.recordMetric(outcome)
	if outcome.Succeeded() {
		result.ProcessedCount++
		logger.Info("host operation initiated",
			"action", outcome.Action, "resource", outcome.ResourceName, "eventId", outcome.EventID)
	} else {
		result.Failed = append(result.Failed, outcome)
		logger.Error(outcome.Err, "host operation failed",
			"action", outcome.Action, "resource", outcome.ResourceName, "eventId", outcome.EventID)
	}
}

func (e *Engine) recordMetric(outcome Outcome) {
	res := "success"
	if !outcome.Succeeded() {
		res = "failure"
	}
	metrics.HostOperations.WithLabelValues(string(outcome.Action), res).Inc()
}
