package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"schoolpay/internal/errors"
	"schoolpay/internal/gateway"
	"schoolpay/internal/model"
	"schoolpay/internal/repository"
	"schoolpay/internal/signature"
)

// WebhookService is the asynchronous reconciliation path. The gateway
// delivers events at least once; the client confirmation flow may never run
// at all, so these handlers must independently bring a payment order to a
// consistent terminal state.
type WebhookService interface {
	ProcessWebhook(ctx context.Context, sig string, rawBody []byte) error
	RetrySweep(ctx context.Context) error
}

type webhookService struct {
	eventRepo     repository.WebhookEventRepository
	orderRepo     repository.PaymentOrderRepository
	receipts      ReceiptService
	webhookSecret string
	maxRetries    int
	batchSize     int
}

// NewWebhookService creates a new webhook service.
func NewWebhookService(
	eventRepo repository.WebhookEventRepository,
	orderRepo repository.PaymentOrderRepository,
	receipts ReceiptService,
	webhookSecret string,
	maxRetries, batchSize int,
) WebhookService {
	return &webhookService{
		eventRepo:     eventRepo,
		orderRepo:     orderRepo,
		receipts:      receipts,
		webhookSecret: webhookSecret,
		maxRetries:    maxRetries,
		batchSize:     batchSize,
	}
}

// eventKind is the closed set of gateway event types this service reacts to.
// Unrecognized types fall through to eventUnknown and are treated as
// successfully processed, keeping the service forward compatible.
type eventKind int

const (
	eventUnknown eventKind = iota
	eventPaymentAuthorized
	eventPaymentCaptured
	eventPaymentFailed
	eventOrderPaid
	eventRefundProcessed
)

func parseEventKind(event string) eventKind {
	switch event {
	case "payment.authorized":
		return eventPaymentAuthorized
	case "payment.captured":
		return eventPaymentCaptured
	case "payment.failed":
		return eventPaymentFailed
	case "order.paid":
		return eventOrderPaid
	case "refund.processed":
		return eventRefundProcessed
	default:
		return eventUnknown
	}
}

// webhookEnvelope mirrors the gateway's event wire format.
type webhookEnvelope struct {
	Entity    string `json:"entity"`
	AccountID string `json:"account_id"`
	Event     string `json:"event"`
	CreatedAt int64  `json:"created_at"`
	Payload   struct {
		Payment *struct {
			Entity gateway.Payment `json:"entity"`
		} `json:"payment"`
		Order *struct {
			Entity gateway.Order `json:"entity"`
		} `json:"order"`
	} `json:"payload"`
}

// dedupKey derives the deduplicating event id. The gateway does not guarantee
// a universally unique event id, so the inner entity id plus the event
// timestamp is the dedup boundary.
func (e *webhookEnvelope) dedupKey() (string, error) {
	var entityID string
	switch {
	case e.Payload.Payment != nil && e.Payload.Payment.Entity.ID != "":
		entityID = e.Payload.Payment.Entity.ID
	case e.Payload.Order != nil && e.Payload.Order.Entity.ID != "":
		entityID = e.Payload.Order.Entity.ID
	default:
		return "", fmt.Errorf("webhook payload carries no payment or order entity")
	}
	return fmt.Sprintf("%s_%d", entityID, e.CreatedAt), nil
}

// ProcessWebhook verifies, dedups, logs and dispatches one inbound event.
// A duplicate delivery is a successful no-op. A handler failure is recorded
// against the event and re-raised so the transport returns non-2xx and the
// gateway's own redelivery fires, on top of the local retry sweep.
func (s *webhookService) ProcessWebhook(ctx context.Context, sig string, rawBody []byte) error {
	// Signature is checked over the raw bytes; a mismatch is a security
	// event, not a delivery failure. Nothing is persisted or retried.
	if !signature.VerifyWebhookSignature(rawBody, sig, s.webhookSecret) {
		return errors.ErrInvalidSignature
	}

	var env webhookEnvelope
	if err := json.Unmarshal(rawBody, &env); err != nil {
		return fmt.Errorf("parse webhook payload: %w", err)
	}

	key, err := env.dedupKey()
	if err != nil {
		return err
	}

	event := &model.WebhookEvent{
		GatewayEventID: key,
		Event:          env.Event,
		AccountID:      env.AccountID,
		Entity:         env.Entity,
		Payload:        datatypes.JSON(rawBody),
	}
	stored, created, err := s.eventRepo.CreateOrGet(ctx, event)
	if err != nil {
		return fmt.Errorf("log webhook event: %w", err)
	}
	if !created {
		// Idempotent replay of an already-logged delivery.
		return nil
	}

	if err := s.dispatch(ctx, &env); err != nil {
		if markErr := s.eventRepo.MarkFailed(ctx, stored.ID, err.Error()); markErr != nil {
			log.Printf("mark webhook event %s failed: %v", stored.ID, markErr)
		}
		return err
	}
	return s.eventRepo.MarkProcessed(ctx, stored.ID)
}

// RetrySweep re-runs dispatch for a bounded batch of the oldest unprocessed
// events still under the retry budget. It is the second line of defense for
// the window where this service was down past the gateway's own retries.
func (s *webhookService) RetrySweep(ctx context.Context) error {
	events, err := s.eventRepo.FindRetryable(ctx, s.maxRetries, s.batchSize)
	if err != nil {
		return fmt.Errorf("load retryable events: %w", err)
	}

	for _, event := range events {
		var env webhookEnvelope
		if err := json.Unmarshal(event.Payload, &env); err != nil {
			if markErr := s.eventRepo.MarkFailed(ctx, event.ID, fmt.Sprintf("parse stored payload: %v", err)); markErr != nil {
				log.Printf("mark webhook event %s failed: %v", event.ID, markErr)
			}
			continue
		}
		if err := s.dispatch(ctx, &env); err != nil {
			if markErr := s.eventRepo.MarkFailed(ctx, event.ID, err.Error()); markErr != nil {
				log.Printf("mark webhook event %s failed: %v", event.ID, markErr)
			}
			continue
		}
		if err := s.eventRepo.MarkProcessed(ctx, event.ID); err != nil {
			log.Printf("mark webhook event %s processed: %v", event.ID, err)
		}
	}
	return nil
}

func (s *webhookService) dispatch(ctx context.Context, env *webhookEnvelope) error {
	switch parseEventKind(env.Event) {
	case eventPaymentAuthorized:
		return s.handlePaymentAuthorized(ctx, env)
	case eventPaymentCaptured:
		return s.handlePaymentCaptured(ctx, env)
	case eventPaymentFailed:
		return s.handlePaymentFailed(ctx, env)
	case eventOrderPaid:
		return s.handleOrderPaid(ctx, env)
	case eventRefundProcessed:
		return s.handleRefundProcessed(ctx, env)
	case eventUnknown:
		log.Printf("webhook: ignoring unhandled event type %q", env.Event)
		return nil
	}
	return nil
}

// findOrder resolves the payment order for an event. A missing order is
// non-fatal: the event may reference an order outside this ledger. The
// returned order is nil in that case.
func (s *webhookService) findOrder(ctx context.Context, gatewayOrderID, event string) (*model.PaymentOrder, error) {
	if gatewayOrderID == "" {
		return nil, fmt.Errorf("%s event carries no order id", event)
	}
	order, err := s.orderRepo.FindByGatewayOrderID(ctx, gatewayOrderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			log.Printf("webhook: no payment order for gateway order %s (%s), skipping", gatewayOrderID, event)
			return nil, nil
		}
		return nil, fmt.Errorf("find order %s: %w", gatewayOrderID, err)
	}
	return order, nil
}

func (s *webhookService) handlePaymentAuthorized(ctx context.Context, env *webhookEnvelope) error {
	payment := env.Payload.Payment
	if payment == nil {
		return fmt.Errorf("payment.authorized event missing payment entity")
	}
	order, err := s.findOrder(ctx, payment.Entity.OrderID, env.Event)
	if err != nil || order == nil {
		return err
	}
	// Only a fresh order moves to attempted; anything further along stays.
	_, err = s.orderRepo.TransitionStatus(ctx, order.ID,
		[]model.PaymentStatus{model.PaymentStatusCreated}, model.PaymentStatusAttempted)
	return err
}

func (s *webhookService) handlePaymentCaptured(ctx context.Context, env *webhookEnvelope) error {
	payment := env.Payload.Payment
	if payment == nil {
		return fmt.Errorf("payment.captured event missing payment entity")
	}
	return s.markOrderPaid(ctx, env, &payment.Entity)
}

// handleOrderPaid covers confirmations keyed by the order entity. The
// coarser event still carries the payment entity on the wire; without it
// there is no payment id to record, so the event is skipped rather than
// leaving a paid order with no payment reference.
func (s *webhookService) handleOrderPaid(ctx context.Context, env *webhookEnvelope) error {
	if env.Payload.Order == nil {
		return fmt.Errorf("order.paid event missing order entity")
	}
	if env.Payload.Payment == nil {
		log.Printf("webhook: order.paid for gateway order %s carries no payment entity, skipping", env.Payload.Order.Entity.ID)
		return nil
	}
	payment := env.Payload.Payment.Entity
	if payment.OrderID == "" {
		payment.OrderID = env.Payload.Order.Entity.ID
	}
	return s.markOrderPaid(ctx, env, &payment)
}

func (s *webhookService) markOrderPaid(ctx context.Context, env *webhookEnvelope, payment *gateway.Payment) error {
	order, err := s.findOrder(ctx, payment.OrderID, env.Event)
	if err != nil || order == nil {
		return err
	}
	if order.Status == model.PaymentStatusPaid {
		// Already converged, possibly with richer data from the client
		// confirmation path. Do not clobber.
		return nil
	}

	details, _ := json.Marshal(payment)
	paidAt := time.Unix(env.CreatedAt, 0)
	won, err := s.orderRepo.MarkPaid(ctx, order.ID, payment.ID, payment.Method, datatypes.JSON(details), paidAt)
	if err != nil {
		return fmt.Errorf("mark order %s paid: %w", order.ID, err)
	}
	if won {
		order.Status = model.PaymentStatusPaid
		order.GatewayPaymentID = payment.ID
		order.PaymentMethod = payment.Method
		order.PaidAt = &paidAt
		s.receipts.EnqueuePaymentReceipt(ctx, order)
	}
	return nil
}

func (s *webhookService) handlePaymentFailed(ctx context.Context, env *webhookEnvelope) error {
	payment := env.Payload.Payment
	if payment == nil {
		return fmt.Errorf("payment.failed event missing payment entity")
	}
	order, err := s.findOrder(ctx, payment.Entity.OrderID, env.Event)
	if err != nil || order == nil {
		return err
	}
	if order.Status == model.PaymentStatusPaid {
		// A success already recorded is never downgraded by a late failure.
		return nil
	}

	reason := payment.Entity.ErrorDescription
	if reason == "" {
		reason = "payment failed at gateway"
	}
	if err := s.orderRepo.MarkFailed(ctx, order.ID, reason); err != nil {
		return fmt.Errorf("mark order %s failed: %w", order.ID, err)
	}
	return nil
}

func (s *webhookService) handleRefundProcessed(ctx context.Context, env *webhookEnvelope) error {
	payment := env.Payload.Payment
	if payment == nil {
		return fmt.Errorf("refund.processed event missing payment entity")
	}
	order, err := s.findOrder(ctx, payment.Entity.OrderID, env.Event)
	if err != nil || order == nil {
		return err
	}

	status := model.PaymentStatusPartialRefund
	if payment.Entity.AmountRefunded >= order.Amount {
		status = model.PaymentStatusRefunded
	}
	if order.Status == status {
		return nil
	}
	if err := s.orderRepo.UpdateStatus(ctx, order.ID, status); err != nil {
		return fmt.Errorf("update order %s status: %w", order.ID, err)
	}
	return nil
}
