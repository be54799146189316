package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"schoolpay/internal/errors"
	"schoolpay/internal/gateway"
	"schoolpay/internal/model"
)

const testWebhookSecret = "test-webhook-secret"

func webhookSig(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func webhookBody(t *testing.T, event string, createdAt int64, payment *gateway.Payment, order *gateway.Order) []byte {
	t.Helper()
	payload := map[string]interface{}{}
	if payment != nil {
		payload["payment"] = map[string]interface{}{"entity": payment}
	}
	if order != nil {
		payload["order"] = map[string]interface{}{"entity": order}
	}
	body, err := json.Marshal(map[string]interface{}{
		"entity":     "event",
		"account_id": "acc_TEST",
		"event":      event,
		"created_at": createdAt,
		"payload":    payload,
	})
	assert.NoError(t, err)
	return body
}

func newTestWebhookService(eventRepo *MockWebhookEventRepository, orderRepo *MockPaymentOrderRepository, receipts *MockReceiptService) WebhookService {
	return NewWebhookService(eventRepo, orderRepo, receipts, testWebhookSecret, 3, 10)
}

func loggedEvent() *model.WebhookEvent {
	return &model.WebhookEvent{ID: uuid.New()}
}

func TestWebhookService_ProcessWebhook(t *testing.T) {
	t.Run("rejects invalid signature without logging anything", func(t *testing.T) {
		eventRepo := new(MockWebhookEventRepository)
		orderRepo := new(MockPaymentOrderRepository)
		svc := newTestWebhookService(eventRepo, orderRepo, new(MockReceiptService))

		body := webhookBody(t, "payment.captured", 1700000000, &gateway.Payment{ID: "pay_B2", OrderID: "order_A1"}, nil)

		err := svc.ProcessWebhook(context.Background(), "bad-signature", body)

		assert.ErrorIs(t, err, errors.ErrInvalidSignature)
		eventRepo.AssertNotCalled(t, "CreateOrGet", mock.Anything, mock.Anything)
	})

	t.Run("signature over mutated body fails", func(t *testing.T) {
		eventRepo := new(MockWebhookEventRepository)
		svc := newTestWebhookService(eventRepo, new(MockPaymentOrderRepository), new(MockReceiptService))

		body := webhookBody(t, "payment.captured", 1700000000, &gateway.Payment{ID: "pay_B2", OrderID: "order_A1"}, nil)
		sig := webhookSig(body, testWebhookSecret)
		tampered := append([]byte{' '}, body...)

		err := svc.ProcessWebhook(context.Background(), sig, tampered)

		assert.ErrorIs(t, err, errors.ErrInvalidSignature)
	})

	t.Run("duplicate delivery is a successful no-op", func(t *testing.T) {
		eventRepo := new(MockWebhookEventRepository)
		orderRepo := new(MockPaymentOrderRepository)
		svc := newTestWebhookService(eventRepo, orderRepo, new(MockReceiptService))

		body := webhookBody(t, "payment.captured", 1700000000, &gateway.Payment{ID: "pay_B2", OrderID: "order_A1"}, nil)
		eventRepo.On("CreateOrGet", mock.Anything, mock.MatchedBy(func(e *model.WebhookEvent) bool {
			return e.GatewayEventID == "pay_B2_1700000000"
		})).Return(loggedEvent(), false, nil)

		err := svc.ProcessWebhook(context.Background(), webhookSig(body, testWebhookSecret), body)

		assert.NoError(t, err)
		orderRepo.AssertNotCalled(t, "FindByGatewayOrderID", mock.Anything, mock.Anything)
		eventRepo.AssertNotCalled(t, "MarkProcessed", mock.Anything, mock.Anything)
	})

	t.Run("payment captured marks the order paid and enqueues a receipt", func(t *testing.T) {
		eventRepo := new(MockWebhookEventRepository)
		orderRepo := new(MockPaymentOrderRepository)
		receipts := new(MockReceiptService)
		svc := newTestWebhookService(eventRepo, orderRepo, receipts)

		order := createdOrder("order_A1")
		stored := loggedEvent()
		body := webhookBody(t, "payment.captured", 1700000000,
			&gateway.Payment{ID: "pay_B2", OrderID: "order_A1", Method: "card", Status: "captured"}, nil)

		eventRepo.On("CreateOrGet", mock.Anything, mock.Anything).Return(stored, true, nil)
		orderRepo.On("FindByGatewayOrderID", mock.Anything, "order_A1").Return(order, nil)
		orderRepo.On("MarkPaid", mock.Anything, order.ID, "pay_B2", "card", mock.Anything, mock.Anything).Return(true, nil)
		receipts.On("EnqueuePaymentReceipt", mock.Anything, mock.MatchedBy(func(o *model.PaymentOrder) bool {
			return o.Status == model.PaymentStatusPaid && o.GatewayPaymentID == "pay_B2"
		})).Return()
		eventRepo.On("MarkProcessed", mock.Anything, stored.ID).Return(nil)

		err := svc.ProcessWebhook(context.Background(), webhookSig(body, testWebhookSecret), body)

		assert.NoError(t, err)
		eventRepo.AssertExpectations(t)
		receipts.AssertExpectations(t)
	})

	t.Run("payment captured never clobbers an already paid order", func(t *testing.T) {
		eventRepo := new(MockWebhookEventRepository)
		orderRepo := new(MockPaymentOrderRepository)
		receipts := new(MockReceiptService)
		svc := newTestWebhookService(eventRepo, orderRepo, receipts)

		order := paidOrder("order_A1", "pay_B2")
		stored := loggedEvent()
		body := webhookBody(t, "payment.captured", 1700000050,
			&gateway.Payment{ID: "pay_B2", OrderID: "order_A1", Method: "card"}, nil)

		eventRepo.On("CreateOrGet", mock.Anything, mock.Anything).Return(stored, true, nil)
		orderRepo.On("FindByGatewayOrderID", mock.Anything, "order_A1").Return(order, nil)
		eventRepo.On("MarkProcessed", mock.Anything, stored.ID).Return(nil)

		err := svc.ProcessWebhook(context.Background(), webhookSig(body, testWebhookSecret), body)

		assert.NoError(t, err)
		orderRepo.AssertNotCalled(t, "MarkPaid", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		receipts.AssertNotCalled(t, "EnqueuePaymentReceipt", mock.Anything, mock.Anything)
	})

	t.Run("event for an unknown order is processed without error", func(t *testing.T) {
		eventRepo := new(MockWebhookEventRepository)
		orderRepo := new(MockPaymentOrderRepository)
		svc := newTestWebhookService(eventRepo, orderRepo, new(MockReceiptService))

		stored := loggedEvent()
		body := webhookBody(t, "payment.captured", 1700000000,
			&gateway.Payment{ID: "pay_B2", OrderID: "order_FOREIGN"}, nil)

		eventRepo.On("CreateOrGet", mock.Anything, mock.Anything).Return(stored, true, nil)
		orderRepo.On("FindByGatewayOrderID", mock.Anything, "order_FOREIGN").Return(nil, gorm.ErrRecordNotFound)
		eventRepo.On("MarkProcessed", mock.Anything, stored.ID).Return(nil)

		err := svc.ProcessWebhook(context.Background(), webhookSig(body, testWebhookSecret), body)

		assert.NoError(t, err)
		eventRepo.AssertExpectations(t)
	})

	t.Run("unrecognized event type is processed as a no-op", func(t *testing.T) {
		eventRepo := new(MockWebhookEventRepository)
		orderRepo := new(MockPaymentOrderRepository)
		svc := newTestWebhookService(eventRepo, orderRepo, new(MockReceiptService))

		stored := loggedEvent()
		body := webhookBody(t, "payment.dispute.created", 1700000000,
			&gateway.Payment{ID: "pay_B2", OrderID: "order_A1"}, nil)

		eventRepo.On("CreateOrGet", mock.Anything, mock.Anything).Return(stored, true, nil)
		eventRepo.On("MarkProcessed", mock.Anything, stored.ID).Return(nil)

		err := svc.ProcessWebhook(context.Background(), webhookSig(body, testWebhookSecret), body)

		assert.NoError(t, err)
		orderRepo.AssertNotCalled(t, "FindByGatewayOrderID", mock.Anything, mock.Anything)
	})

	t.Run("handler failure is recorded and re-raised", func(t *testing.T) {
		eventRepo := new(MockWebhookEventRepository)
		orderRepo := new(MockPaymentOrderRepository)
		svc := newTestWebhookService(eventRepo, orderRepo, new(MockReceiptService))

		stored := loggedEvent()
		body := webhookBody(t, "payment.captured", 1700000000,
			&gateway.Payment{ID: "pay_B2", OrderID: "order_A1"}, nil)

		eventRepo.On("CreateOrGet", mock.Anything, mock.Anything).Return(stored, true, nil)
		orderRepo.On("FindByGatewayOrderID", mock.Anything, "order_A1").Return(nil, fmt.Errorf("db gone away"))
		eventRepo.On("MarkFailed", mock.Anything, stored.ID, mock.Anything).Return(nil)

		err := svc.ProcessWebhook(context.Background(), webhookSig(body, testWebhookSecret), body)

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "db gone away")
		eventRepo.AssertCalled(t, "MarkFailed", mock.Anything, stored.ID, mock.Anything)
		eventRepo.AssertNotCalled(t, "MarkProcessed", mock.Anything, mock.Anything)
	})

	t.Run("payment authorized moves a fresh order to attempted", func(t *testing.T) {
		eventRepo := new(MockWebhookEventRepository)
		orderRepo := new(MockPaymentOrderRepository)
		svc := newTestWebhookService(eventRepo, orderRepo, new(MockReceiptService))

		order := createdOrder("order_A1")
		stored := loggedEvent()
		body := webhookBody(t, "payment.authorized", 1700000000,
			&gateway.Payment{ID: "pay_B2", OrderID: "order_A1"}, nil)

		eventRepo.On("CreateOrGet", mock.Anything, mock.Anything).Return(stored, true, nil)
		orderRepo.On("FindByGatewayOrderID", mock.Anything, "order_A1").Return(order, nil)
		orderRepo.On("TransitionStatus", mock.Anything, order.ID,
			[]model.PaymentStatus{model.PaymentStatusCreated}, model.PaymentStatusAttempted).Return(true, nil)
		eventRepo.On("MarkProcessed", mock.Anything, stored.ID).Return(nil)

		err := svc.ProcessWebhook(context.Background(), webhookSig(body, testWebhookSecret), body)

		assert.NoError(t, err)
		orderRepo.AssertExpectations(t)
	})

	t.Run("payment failed records the gateway reason", func(t *testing.T) {
		eventRepo := new(MockWebhookEventRepository)
		orderRepo := new(MockPaymentOrderRepository)
		svc := newTestWebhookService(eventRepo, orderRepo, new(MockReceiptService))

		order := createdOrder("order_A1")
		stored := loggedEvent()
		body := webhookBody(t, "payment.failed", 1700000000,
			&gateway.Payment{ID: "pay_B2", OrderID: "order_A1", ErrorDescription: "insufficient funds"}, nil)

		eventRepo.On("CreateOrGet", mock.Anything, mock.Anything).Return(stored, true, nil)
		orderRepo.On("FindByGatewayOrderID", mock.Anything, "order_A1").Return(order, nil)
		orderRepo.On("MarkFailed", mock.Anything, order.ID, "insufficient funds").Return(nil)
		eventRepo.On("MarkProcessed", mock.Anything, stored.ID).Return(nil)

		err := svc.ProcessWebhook(context.Background(), webhookSig(body, testWebhookSecret), body)

		assert.NoError(t, err)
		orderRepo.AssertExpectations(t)
	})

	t.Run("late failure never downgrades a paid order", func(t *testing.T) {
		eventRepo := new(MockWebhookEventRepository)
		orderRepo := new(MockPaymentOrderRepository)
		svc := newTestWebhookService(eventRepo, orderRepo, new(MockReceiptService))

		order := paidOrder("order_A1", "pay_B2")
		stored := loggedEvent()
		body := webhookBody(t, "payment.failed", 1700000100,
			&gateway.Payment{ID: "pay_B2", OrderID: "order_A1", ErrorDescription: "late decline"}, nil)

		eventRepo.On("CreateOrGet", mock.Anything, mock.Anything).Return(stored, true, nil)
		orderRepo.On("FindByGatewayOrderID", mock.Anything, "order_A1").Return(order, nil)
		eventRepo.On("MarkProcessed", mock.Anything, stored.ID).Return(nil)

		err := svc.ProcessWebhook(context.Background(), webhookSig(body, testWebhookSecret), body)

		assert.NoError(t, err)
		orderRepo.AssertNotCalled(t, "MarkFailed", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("refund below the original amount classifies as partial", func(t *testing.T) {
		eventRepo := new(MockWebhookEventRepository)
		orderRepo := new(MockPaymentOrderRepository)
		svc := newTestWebhookService(eventRepo, orderRepo, new(MockReceiptService))

		order := paidOrder("order_A1", "pay_B2") // amount 10000 minor units
		stored := loggedEvent()
		body := webhookBody(t, "refund.processed", 1700000200,
			&gateway.Payment{ID: "pay_B2", OrderID: "order_A1", AmountRefunded: 4000}, nil)

		eventRepo.On("CreateOrGet", mock.Anything, mock.Anything).Return(stored, true, nil)
		orderRepo.On("FindByGatewayOrderID", mock.Anything, "order_A1").Return(order, nil)
		orderRepo.On("UpdateStatus", mock.Anything, order.ID, model.PaymentStatusPartialRefund).Return(nil)
		eventRepo.On("MarkProcessed", mock.Anything, stored.ID).Return(nil)

		err := svc.ProcessWebhook(context.Background(), webhookSig(body, testWebhookSecret), body)

		assert.NoError(t, err)
		orderRepo.AssertExpectations(t)
	})

	t.Run("full refund classifies as refunded", func(t *testing.T) {
		eventRepo := new(MockWebhookEventRepository)
		orderRepo := new(MockPaymentOrderRepository)
		svc := newTestWebhookService(eventRepo, orderRepo, new(MockReceiptService))

		order := paidOrder("order_A1", "pay_B2")
		stored := loggedEvent()
		body := webhookBody(t, "refund.processed", 1700000300,
			&gateway.Payment{ID: "pay_B2", OrderID: "order_A1", AmountRefunded: 10000}, nil)

		eventRepo.On("CreateOrGet", mock.Anything, mock.Anything).Return(stored, true, nil)
		orderRepo.On("FindByGatewayOrderID", mock.Anything, "order_A1").Return(order, nil)
		orderRepo.On("UpdateStatus", mock.Anything, order.ID, model.PaymentStatusRefunded).Return(nil)
		eventRepo.On("MarkProcessed", mock.Anything, stored.ID).Return(nil)

		err := svc.ProcessWebhook(context.Background(), webhookSig(body, testWebhookSecret), body)

		assert.NoError(t, err)
		orderRepo.AssertExpectations(t)
	})

	t.Run("order paid without a payment entity is skipped", func(t *testing.T) {
		eventRepo := new(MockWebhookEventRepository)
		orderRepo := new(MockPaymentOrderRepository)
		svc := newTestWebhookService(eventRepo, orderRepo, new(MockReceiptService))

		stored := loggedEvent()
		body := webhookBody(t, "order.paid", 1700000400, nil, &gateway.Order{ID: "order_A1", Status: "paid"})

		eventRepo.On("CreateOrGet", mock.Anything, mock.Anything).Return(stored, true, nil)
		eventRepo.On("MarkProcessed", mock.Anything, stored.ID).Return(nil)

		err := svc.ProcessWebhook(context.Background(), webhookSig(body, testWebhookSecret), body)

		assert.NoError(t, err)
		orderRepo.AssertNotCalled(t, "MarkPaid", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestWebhookService_RetrySweep(t *testing.T) {
	t.Run("replays stored payloads and marks each outcome", func(t *testing.T) {
		eventRepo := new(MockWebhookEventRepository)
		orderRepo := new(MockPaymentOrderRepository)
		receipts := new(MockReceiptService)
		svc := newTestWebhookService(eventRepo, orderRepo, receipts)

		order := createdOrder("order_A1")
		goodBody := webhookBody(t, "payment.captured", 1700000000,
			&gateway.Payment{ID: "pay_B2", OrderID: "order_A1", Method: "upi"}, nil)
		good := model.WebhookEvent{ID: uuid.New(), Event: "payment.captured", Payload: datatypes.JSON(goodBody)}
		broken := model.WebhookEvent{ID: uuid.New(), Event: "payment.captured", Payload: datatypes.JSON(`{"event": truncated`)}

		eventRepo.On("FindRetryable", mock.Anything, 3, 10).Return([]model.WebhookEvent{good, broken}, nil)
		orderRepo.On("FindByGatewayOrderID", mock.Anything, "order_A1").Return(order, nil)
		orderRepo.On("MarkPaid", mock.Anything, order.ID, "pay_B2", "upi", mock.Anything, mock.Anything).Return(true, nil)
		receipts.On("EnqueuePaymentReceipt", mock.Anything, mock.Anything).Return()
		eventRepo.On("MarkProcessed", mock.Anything, good.ID).Return(nil)
		eventRepo.On("MarkFailed", mock.Anything, broken.ID, mock.Anything).Return(nil)

		err := svc.RetrySweep(context.Background())

		assert.NoError(t, err)
		eventRepo.AssertExpectations(t)
	})

	t.Run("propagates a load failure", func(t *testing.T) {
		eventRepo := new(MockWebhookEventRepository)
		svc := newTestWebhookService(eventRepo, new(MockPaymentOrderRepository), new(MockReceiptService))

		eventRepo.On("FindRetryable", mock.Anything, 3, 10).Return(nil, fmt.Errorf("db gone away"))

		err := svc.RetrySweep(context.Background())

		assert.Error(t, err)
	})
}
