package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Bashir-Janbalat/store-app-be/internal/payments"
	"github.com/Bashir-Janbalat/store-app-be/internal/platform/idempotency"
)

var (
	// ErrWebhookSignature indicates the payload failed signature verification.
	ErrWebhookSignature = newKindError(ErrInvalidArgument, "webhook service: invalid signature")
	// ErrWebhookInvalidPayload indicates the event lacks the metadata needed for correlation.
	ErrWebhookInvalidPayload = newKindError(ErrInvalidArgument, "webhook service: invalid payload")
	// ErrWebhookInProgress indicates another delivery of the same event is being processed.
	ErrWebhookInProgress = newKindError(ErrUnavailable, "webhook service: event in progress")
)

// WebhookEventHandler processes one family of verified provider events.
type WebhookEventHandler interface {
	CanHandle(eventType string) bool
	Handle(ctx context.Context, event payments.WebhookEvent) error
}

// WebhookServiceDeps wires verification, deduplication and the event handlers.
type WebhookServiceDeps struct {
	Verifier payments.WebhookVerifier
	// Deduper suppresses redelivered events. Optional.
	Deduper  *idempotency.Deduper
	Handlers []WebhookEventHandler
	Logger   Logger
}

type webhookService struct {
	verifier payments.WebhookVerifier
	deduper  *idempotency.Deduper
	handlers []WebhookEventHandler
	logger   Logger
}

// NewWebhookService constructs the Stripe webhook dispatcher.
func NewWebhookService(deps WebhookServiceDeps) (WebhookService, error) {
	if deps.Verifier == nil {
		return nil, errors.New("webhook service: verifier is required")
	}
	for i, handler := range deps.Handlers {
		if handler == nil {
			return nil, fmt.Errorf("webhook service: handler %d is nil", i)
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &webhookService{
		verifier: deps.Verifier,
		deduper:  deps.Deduper,
		handlers: append([]WebhookEventHandler(nil), deps.Handlers...),
		logger:   logger,
	}, nil
}

func (s *webhookService) HandleStripeEvent(ctx context.Context, payload []byte, signature string) error {
	event, err := s.verifier.VerifyWebhook(payload, strings.TrimSpace(signature))
	if err != nil {
		s.logger(ctx, "webhook.verify_failed", map[string]any{"error": err.Error()})
		if errors.Is(err, payments.ErrInvalidSignature) {
			return fmt.Errorf("%w: %v", ErrWebhookSignature, err)
		}
		return fmt.Errorf("%w: %v", ErrWebhookInvalidPayload, err)
	}

	handler := s.handlerFor(event.Type)
	if handler == nil {
		s.logger(ctx, "webhook.unhandled", map[string]any{"eventId": event.ID, "type": event.Type})
		return nil
	}

	if event.ID == "" {
		return handler.Handle(ctx, event)
	}
	ran, err := s.deduper.Once(ctx, "stripe:"+event.ID, func(ctx context.Context) error {
		return handler.Handle(ctx, event)
	})
	if errors.Is(err, idempotency.ErrInProgress) {
		return fmt.Errorf("%w: %s", ErrWebhookInProgress, event.ID)
	}
	if err != nil {
		return err
	}
	if !ran {
		s.logger(ctx, "webhook.duplicate", map[string]any{"eventId": event.ID, "type": event.Type})
	}
	return nil
}

func (s *webhookService) handlerFor(eventType string) WebhookEventHandler {
	for _, handler := range s.handlers {
		if handler.CanHandle(eventType) {
			return handler
		}
	}
	return nil
}
