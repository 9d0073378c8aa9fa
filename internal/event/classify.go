package event

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind identifies the structural shape of an inbound payload.
type Kind int

const (
	// KindBatch is an envelope carrying an events array (empty included).
	KindBatch Kind = iota
	// KindDeletion is a notice carrying data.resource.name and no events.
	KindDeletion
	// KindLoose is anything else that still declares an eventType. These are
	// acknowledged without action.
	KindLoose
)

// Payload is the outcome of classification. Exactly one of Batch and Deletion
// is set for the structured kinds; EventType is whatever the payload declared.
type Payload struct {
	Kind      Kind
	EventType string
	Batch     *BatchEnvelope
	Deletion  *DeletionNotice
}

// ValidationError reports a payload that fails structural or semantic
// validation. It maps to a 400 response.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func validationErrorf(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a payload validation failure.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// Classify discriminates a raw JSON payload by structure, not by its declared
// type string: an events array makes it a batch envelope, a data object with
// a nested resource name makes it a deletion notice. Payloads matching
// neither shape but declaring an eventType classify as loose; everything else
// fails validation. Timestamps must carry an explicit UTC offset, which the
// strict decode enforces.
func Classify(raw []byte) (*Payload, error) {
	var probe struct {
		Events    json.RawMessage `json:"events"`
		Data      json.RawMessage `json:"data"`
		EventType string          `json:"eventType"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, &ValidationError{Reason: "malformed JSON payload"}
	}

	switch {
	case present(probe.Events):
		var env BatchEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, validationErrorf("invalid batch envelope: %v", err)
		}
		if err := env.Validate(); err != nil {
			return nil, err
		}
		return &Payload{Kind: KindBatch, EventType: env.EventType, Batch: &env}, nil

	case hasResourceName(probe.Data):
		var notice DeletionNotice
		if err := json.Unmarshal(raw, &notice); err != nil {
			return nil, validationErrorf("invalid deletion notice: %v", err)
		}
		if err := notice.Validate(); err != nil {
			return nil, err
		}
		return &Payload{Kind: KindDeletion, EventType: notice.EventType, Deletion: &notice}, nil

	case probe.EventType != "":
		return &Payload{Kind: KindLoose, EventType: probe.EventType}, nil

	default:
		return nil, &ValidationError{Reason: "payload is neither a batch envelope nor a deletion notice"}
	}
}

func present(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}

func hasResourceName(data json.RawMessage) bool {
	if !present(data) {
		return false
	}
	var d struct {
		Resource struct {
			Name string `json:"name"`
		} `json:"resource"`
	}
	if err := json.Unmarshal(data, &d); err != nil {
		return false
	}
	return d.Resource.Name != ""
}
