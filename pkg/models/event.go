package models

import (
	"errors"
	"fmt"
	"time"
)

// EventKind enumerates the activity event types that drive health scoring.
type EventKind string

const (
	EventLogin               EventKind = "login"
	EventFeatureUse          EventKind = "feature_use"
	EventAPICall             EventKind = "api_call"
	EventSupportTicketOpened EventKind = "support_ticket_opened"
	EventInvoicePaid         EventKind = "invoice_paid"
	EventInvoiceLate         EventKind = "invoice_late"
)

// IsValid reports whether the kind is one of the known values.
func (k EventKind) IsValid() bool {
	switch k {
	case EventLogin, EventFeatureUse, EventAPICall,
		EventSupportTicketOpened, EventInvoicePaid, EventInvoiceLate:
		return true
	}
	return false
}

// ErrInvalidEvent is the sentinel for kind-specific payload violations.
// Callers map it to a validation failure, never a server error.
var ErrInvalidEvent = errors.New("invalid event payload")

// Event is an immutable activity fact. Events are append-only and are the
// sole source of truth for scoring.
//
// Payload conventions, enforced by ValidatePayload before append:
//   - feature_use: FeatureKey set (non-empty), Value nil
//   - api_call:    Value set (>= 0), FeatureKey empty
//   - all others:  neither FeatureKey nor Value
type Event struct {
	ID         string    `json:"id"`
	CustomerID string    `json:"customer_id"`
	Kind       EventKind `json:"kind"`
	FeatureKey string    `json:"feature_key,omitempty"`
	Value      *float64  `json:"value,omitempty"`
	Timestamp  time.Time `json:"ts"`
}

// InvoiceEvent is the (kind, timestamp) projection of an invoice outcome
// used by recency-weighted timeliness scoring.
type InvoiceEvent struct {
	Kind      EventKind `json:"kind"`
	Timestamp time.Time `json:"ts"`
}

// Paid reports whether the invoice outcome was an on-time payment.
func (e InvoiceEvent) Paid() bool {
	return e.Kind == EventInvoicePaid
}

// ValidatePayload enforces the kind-dependent payload shape. All returned
// errors wrap ErrInvalidEvent.
func (e *Event) ValidatePayload() error {
	if !e.Kind.IsValid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidEvent, e.Kind)
	}

	switch e.Kind {
	case EventFeatureUse:
		if e.FeatureKey == "" {
			return fmt.Errorf("%w: feature_key is required for kind=feature_use", ErrInvalidEvent)
		}
		if e.Value != nil {
			return fmt.Errorf("%w: value must be null for kind=feature_use", ErrInvalidEvent)
		}
	case EventAPICall:
		if e.Value == nil {
			return fmt.Errorf("%w: value is required for kind=api_call", ErrInvalidEvent)
		}
		if *e.Value < 0 {
			return fmt.Errorf("%w: value must be >= 0 for kind=api_call", ErrInvalidEvent)
		}
		if e.FeatureKey != "" {
			return fmt.Errorf("%w: feature_key must be null for kind=api_call", ErrInvalidEvent)
		}
	default:
		if e.FeatureKey != "" {
			return fmt.Errorf("%w: feature_key must be null for kind=%s", ErrInvalidEvent, e.Kind)
		}
		if e.Value != nil {
			return fmt.Errorf("%w: value must be null for kind=%s", ErrInvalidEvent, e.Kind)
		}
	}

	return nil
}
