package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"gorm.io/datatypes"

	"schoolpay/internal/gateway"
	"schoolpay/internal/model"
	"schoolpay/internal/receipt"
)

// MockPaymentOrderRepository is a mock implementation of PaymentOrderRepository.
type MockPaymentOrderRepository struct {
	mock.Mock
}

func (m *MockPaymentOrderRepository) Create(ctx context.Context, order *model.PaymentOrder) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *MockPaymentOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.PaymentOrder, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PaymentOrder), args.Error(1)
}

func (m *MockPaymentOrderRepository) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*model.PaymentOrder, error) {
	args := m.Called(ctx, gatewayOrderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PaymentOrder), args.Error(1)
}

func (m *MockPaymentOrderRepository) MarkPaid(ctx context.Context, id uuid.UUID, gatewayPaymentID, method string, methodDetails datatypes.JSON, paidAt time.Time) (bool, error) {
	args := m.Called(ctx, id, gatewayPaymentID, method, methodDetails, paidAt)
	return args.Bool(0), args.Error(1)
}

func (m *MockPaymentOrderRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	args := m.Called(ctx, id, reason)
	return args.Error(0)
}

func (m *MockPaymentOrderRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.PaymentStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockPaymentOrderRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from []model.PaymentStatus, to model.PaymentStatus) (bool, error) {
	args := m.Called(ctx, id, from, to)
	return args.Bool(0), args.Error(1)
}

func (m *MockPaymentOrderRepository) CountByStatus(ctx context.Context) (map[model.PaymentStatus]int64, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[model.PaymentStatus]int64), args.Error(1)
}

func (m *MockPaymentOrderRepository) SumCollectedAmount(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// MockWebhookEventRepository is a mock implementation of WebhookEventRepository.
type MockWebhookEventRepository struct {
	mock.Mock
}

func (m *MockWebhookEventRepository) CreateOrGet(ctx context.Context, event *model.WebhookEvent) (*model.WebhookEvent, bool, error) {
	args := m.Called(ctx, event)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*model.WebhookEvent), args.Bool(1), args.Error(2)
}

func (m *MockWebhookEventRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockWebhookEventRepository) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	args := m.Called(ctx, id, errMsg)
	return args.Error(0)
}

func (m *MockWebhookEventRepository) FindRetryable(ctx context.Context, maxRetries, limit int) ([]model.WebhookEvent, error) {
	args := m.Called(ctx, maxRetries, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.WebhookEvent), args.Error(1)
}

// MockReceiptLogRepository is a mock implementation of ReceiptLogRepository.
type MockReceiptLogRepository struct {
	mock.Mock
}

func (m *MockReceiptLogRepository) Create(ctx context.Context, entry *model.ReceiptLog) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockReceiptLogRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.ReceiptLog, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ReceiptLog), args.Error(1)
}

func (m *MockReceiptLogRepository) FindByOrderAndType(ctx context.Context, orderID uuid.UUID, receiptType model.ReceiptType) (*model.ReceiptLog, error) {
	args := m.Called(ctx, orderID, receiptType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ReceiptLog), args.Error(1)
}

func (m *MockReceiptLogRepository) RecordDownload(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockGatewayClient is a mock implementation of GatewayClient.
type MockGatewayClient struct {
	mock.Mock
}

func (m *MockGatewayClient) CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string, notes map[string]string) (*gateway.Order, error) {
	args := m.Called(ctx, amountMinor, currency, receipt, notes)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.Order), args.Error(1)
}

func (m *MockGatewayClient) FetchPayment(ctx context.Context, paymentID string) (*gateway.Payment, error) {
	args := m.Called(ctx, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.Payment), args.Error(1)
}

func (m *MockGatewayClient) CreateRefund(ctx context.Context, paymentID string, amountMinor *int64, notes map[string]string) (*gateway.Refund, error) {
	args := m.Called(ctx, paymentID, amountMinor, notes)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.Refund), args.Error(1)
}

// MockReceiptService is a mock implementation of ReceiptService.
type MockReceiptService struct {
	mock.Mock
}

func (m *MockReceiptService) EnqueuePaymentReceipt(ctx context.Context, order *model.PaymentOrder) {
	m.Called(ctx, order)
}

func (m *MockReceiptService) EnqueueRefundReceipt(ctx context.Context, order *model.PaymentOrder, refundAmount int64) {
	m.Called(ctx, order, refundAmount)
}

func (m *MockReceiptService) EnqueueCancellationReceipt(ctx context.Context, order *model.PaymentOrder) {
	m.Called(ctx, order)
}

func (m *MockReceiptService) GenerateForOrder(ctx context.Context, job ReceiptJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MockReceiptService) Download(ctx context.Context, id uuid.UUID) (*model.ReceiptLog, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ReceiptLog), args.Error(1)
}

// MockGenerator is a mock implementation of receipt.Generator.
type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Render(ctx context.Context, data receipt.Data) ([]byte, error) {
	args := m.Called(ctx, data)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

// MockTokenStore is a mock implementation of auth.TokenStoreInterface.
type MockTokenStore struct {
	mock.Mock
}

func (m *MockTokenStore) StoreRefreshToken(ctx context.Context, tokenID, email, role string, ttl time.Duration) error {
	args := m.Called(ctx, tokenID, email, role, ttl)
	return args.Error(0)
}

func (m *MockTokenStore) GetRefreshToken(ctx context.Context, tokenID string) (string, string, error) {
	args := m.Called(ctx, tokenID)
	return args.String(0), args.String(1), args.Error(2)
}

func (m *MockTokenStore) DeleteRefreshToken(ctx context.Context, tokenID string) error {
	args := m.Called(ctx, tokenID)
	return args.Error(0)
}

func (m *MockTokenStore) BlacklistAccessToken(ctx context.Context, tokenID string, ttl time.Duration) error {
	args := m.Called(ctx, tokenID, ttl)
	return args.Error(0)
}

func (m *MockTokenStore) IsAccessTokenBlacklisted(ctx context.Context, tokenID string) (bool, error) {
	args := m.Called(ctx, tokenID)
	return args.Bool(0), args.Error(1)
}
