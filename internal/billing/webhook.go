package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/webhook"

	"github.com/healthwatch/pkg/models"
)

// ActivityRecorder is the append surface the webhook handler writes
// invoice outcomes to.
type ActivityRecorder interface {
	AppendEvent(ctx context.Context, e *models.Event) error
}

// WebhookConfig represents Stripe webhook configuration.
type WebhookConfig struct {
	WebhookSecret string `yaml:"webhook_secret" json:"-"`
	// Invoice metadata key carrying the internal customer ID.
	CustomerIDMetadataKey string `yaml:"customer_id_metadata_key" json:"customer_id_metadata_key"`
}

// DefaultWebhookConfig returns default webhook configuration.
func DefaultWebhookConfig() WebhookConfig {
	return WebhookConfig{
		CustomerIDMetadataKey: "customer_id",
	}
}

// WebhookHandler ingests Stripe invoice outcomes into the activity event
// log: invoice.payment_succeeded becomes invoice_paid, invoice.payment_failed
// becomes invoice_late. Everything else is acknowledged and ignored.
type WebhookHandler struct {
	config   WebhookConfig
	recorder ActivityRecorder
}

// NewWebhookHandler creates a Stripe webhook handler.
func NewWebhookHandler(config WebhookConfig, recorder ActivityRecorder) *WebhookHandler {
	return &WebhookHandler{config: config, recorder: recorder}
}

// ServeHTTP implements http.Handler.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "failed to read payload", http.StatusBadRequest)
		return
	}

	event, err := webhook.ConstructEvent(payload, r.Header.Get("Stripe-Signature"), h.config.WebhookSecret)
	if err != nil {
		log.Printf("Stripe webhook signature verification failed: %v", err)
		http.Error(w, "signature verification failed", http.StatusBadRequest)
		return
	}

	if err := h.handleEvent(r.Context(), event); err != nil {
		log.Printf("Failed to process Stripe event %s (%s): %v", event.ID, event.Type, err)
		http.Error(w, "failed to process event", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (h *WebhookHandler) handleEvent(ctx context.Context, event stripe.Event) error {
	var kind models.EventKind
	switch event.Type {
	case "invoice.payment_succeeded":
		kind = models.EventInvoicePaid
	case "invoice.payment_failed":
		kind = models.EventInvoiceLate
	default:
		return nil
	}

	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return fmt.Errorf("failed to unmarshal invoice: %w", err)
	}

	customerID := invoice.Metadata[h.config.CustomerIDMetadataKey]
	if customerID == "" {
		return fmt.Errorf("invoice %s missing %s metadata", invoice.ID, h.config.CustomerIDMetadataKey)
	}

	ts := time.Unix(event.Created, 0).UTC()
	activity := &models.Event{
		CustomerID: customerID,
		Kind:       kind,
		Timestamp:  ts,
	}
	if err := activity.ValidatePayload(); err != nil {
		return err
	}

	if err := h.recorder.AppendEvent(ctx, activity); err != nil {
		return fmt.Errorf("failed to append invoice event: %w", err)
	}

	log.Printf("Recorded %s for customer %s from Stripe invoice %s", kind, customerID, invoice.ID)
	return nil
}
