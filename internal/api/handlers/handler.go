package handlers

import (
	"github.com/giovannimirarchi420/polito-reservation-webhook-client/internal/orchestrator"
	"github.com/giovannimirarchi420/polito-reservation-webhook-client/internal/security"
)

// Handler contains dependencies for HTTP handlers
type Handler struct {
	engine                 *orchestrator.Engine
	signer                 *security.Signer
	signatureFailureStatus int
}

// NewHandler creates a new handler. signatureFailureStatus is the HTTP
// status (401 or 403) returned on a failed signature check; which one is
// correct depends on the reservation system deployment.
func NewHandler(engine *orchestrator.Engine, signer *security.Signer, signatureFailureStatus int) *Handler {
	return &Handler{
		engine:                 engine,
		signer:                 signer,
		signatureFailureStatus: signatureFailureStatus,
	}
}
