package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/giovannimirarchi420/polito-reservation-webhook-client/internal/event"
	"github.com/giovannimirarchi420/polito-reservation-webhook-client/internal/orchestrator"
	"github.com/giovannimirarchi420/polito-reservation-webhook-client/internal/security"
)

// PostWebhook handles POST /webhook. The raw body is needed twice, once for
// signature verification and once for classification, so it is read before
// anything else.
func (h *Handler) PostWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.FromContext(ctx).WithName("webhook-handler")

	body, err := readBody(r)
	if err != nil {
		logger.Error(err, "Failed to read request body")
		respondWithError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	if !h.signer.Verify(body, r.Header.Get(security.SignatureHeader)) {
		logger.Info("Webhook signature verification failed", "remote_addr", r.RemoteAddr)
		respondWithError(w, h.signatureFailureStatus, "Signature verification failed")
		return
	}

	payload, err := event.Classify(body)
	if err != nil {
		logger.Info("Rejected webhook payload", "reason", err.Error())
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	switch payload.Kind {
	case event.KindBatch:
		h.handleBatch(ctx, w, payload.Batch)
	case event.KindDeletion:
		h.handleDeletion(ctx, w, payload.Deletion)
	default:
		logger.Info("Ignoring event with no actionable shape", "eventType", payload.EventType)
		respondWithJSON(w, http.StatusOK, ignoredResponse{
			Status:  "ignored",
			Message: fmt.Sprintf("No action needed for event type '%s'.", payload.EventType),
		})
	}
}

func (h *Handler) handleBatch(ctx context.Context, w http.ResponseWriter, env *event.BatchEnvelope) {
	result, err := h.engine.RunBatch(ctx, env)
	if err != nil {
		var unrecognized *orchestrator.UnrecognizedEventTypeError
		if errors.As(err, &unrecognized) {
			respondWithError(w, http.StatusBadRequest,
				fmt.Sprintf("Unrecognized event type '%s'", unrecognized.EventType))
			return
		}
		log.FromContext(ctx).Error(err, "Batch processing failed")
		respondWithError(w, http.StatusInternalServerError, "Failed to process batch")
		return
	}

	if len(result.Failed) > 0 {
		action := "provision"
		if env.EventType == event.TypeEnd {
			action = "deprovision"
		}
		message := fmt.Sprintf("%d of %d %s operations failed",
			len(result.Failed), len(env.Events), action)
		respondWithJSON(w, http.StatusInternalServerError, newFailureResponse(message, result.Failed))
		return
	}

	verb := "start"
	if env.EventType == event.TypeEnd {
		verb = "end"
	}
	respondWithJSON(w, http.StatusOK, successResponse{
		Status:         "success",
		Message:        fmt.Sprintf("Batch %s initiated for %d events for user %s.", verb, len(env.Events), env.UserID),
		ProcessedCount: result.ProcessedCount,
	})
}

func (h *Handler) handleDeletion(ctx context.Context, w http.ResponseWriter, notice *event.DeletionNotice) {
	result, err := h.engine.RunDeletion(ctx, notice)
	if err != nil {
		log.FromContext(ctx).Error(err, "Deletion processing failed")
		respondWithError(w, http.StatusInternalServerError, "Failed to process deletion")
		return
	}

	if result.Outcome.Err != nil {
		respondWithJSON(w, http.StatusInternalServerError,
			newFailureResponse("1 of 1 deprovision operations failed", []orchestrator.Outcome{result.Outcome}))
		return
	}

	if !result.Active {
		respondWithJSON(w, http.StatusOK, successResponse{
			Status:         "success",
			Message:        fmt.Sprintf("Reservation for %s is not active; no action taken.", result.ResourceName),
			ProcessedCount: 0,
		})
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse{
		Status:         "success",
		Message:        fmt.Sprintf("Deprovisioning initiated for %s.", result.ResourceName),
		ProcessedCount: 1,
	})
}
