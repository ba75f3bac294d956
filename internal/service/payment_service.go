package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kyukim/payment-service/internal/domain"
	"github.com/kyukim/payment-service/internal/repository"
	"github.com/kyukim/payment-service/internal/toss"
	"github.com/kyukim/payment-service/pkg/mylogger"
	outboxDomain "github.com/kyukim/payment-service/pkg/outbox/domain"
	"github.com/kyukim/payment-service/pkg/outbox/worker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100

	paymentEventsTopic = "payment_events"
)

type PaymentService interface {
	CreateDraft(ctx context.Context, input CreateDraftInput) (*domain.Payment, error)
	Confirm(ctx context.Context, paymentKey, orderID string, amount int64) (*domain.Payment, error)
	Cancel(ctx context.Context, paymentKey, reason string) error
	History(ctx context.Context, userID *string, limit, offset int64) ([]domain.Payment, error)
	GetPayment(ctx context.Context, paymentKey string) (*domain.Payment, error)
}

type CreateDraftInput struct {
	OrderID   string
	ProductID string
	Amount    int64
	UserID    *string
}

type paymentService struct {
	pool        *pgxpool.Pool
	paymentRepo repository.PaymentRepository
	products    repository.ProductReader
	outboxRepo  worker.OutboxRepository
	gateway     toss.Gateway
	logger      *zap.Logger
	tracer      trace.Tracer
}

func NewPaymentService(
	pool *pgxpool.Pool,
	paymentRepo repository.PaymentRepository,
	products repository.ProductReader,
	outboxRepo worker.OutboxRepository,
	gateway toss.Gateway,
	logger *zap.Logger,
) PaymentService {
	return &paymentService{
		pool:        pool,
		paymentRepo: paymentRepo,
		products:    products,
		outboxRepo:  outboxRepo,
		gateway:     gateway,
		logger:      logger,
		tracer:      otel.Tracer("service/payment_service"),
	}
}

// CreateDraft records a PENDING order before the user is redirected to the
// gateway. The amount is validated against the catalog price here and never
// again: the draft becomes the source of truth for confirmation.
func (s *paymentService) CreateDraft(ctx context.Context, input CreateDraftInput) (*domain.Payment, error) {
	ctx, span := s.tracer.Start(ctx, "PaymentService.CreateDraft")
	defer span.End()

	if input.OrderID == "" {
		input.OrderID = uuid.New().String()
	}

	span.SetAttributes(
		attribute.String("order_id", input.OrderID),
		attribute.String("product_id", input.ProductID),
	)

	product, err := s.products.GetByID(ctx, input.ProductID)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return nil, newError(CodeProductNotFound, err)
		}

		mylogger.Error(ctx, s.logger, "Product lookup failed", zap.Error(err))

		return nil, newError(CodeInternalError, err)
	}

	if product.Price != input.Amount {
		mylogger.Warn(
			ctx,
			s.logger,
			"Draft amount does not match catalog price",
			zap.String("product_id", input.ProductID),
			zap.Int64("amount", input.Amount),
			zap.Int64("price", product.Price),
		)

		return nil, newError(CodeAmountMismatch, nil)
	}

	payment := &domain.Payment{
		OrderID:    input.OrderID,
		PaymentKey: domain.DraftPaymentKey(input.OrderID),
		ProductID:  input.ProductID,
		UserID:     input.UserID,
		Amount:     input.Amount,
		Status:     domain.PaymentStatusPending,
	}

	if err := s.paymentRepo.CreateDraft(ctx, payment); err != nil {
		if errors.Is(err, repository.ErrOrderAlreadyExists) {
			return nil, newError(CodeOrderAlreadyExists, err)
		}

		mylogger.Error(ctx, s.logger, "Draft insert failed", zap.Error(err))

		return nil, newError(CodeInternalError, err)
	}

	mylogger.Info(
		ctx,
		s.logger,
		"Draft created",
		zap.String("order_id", payment.OrderID),
		zap.Int64("amount", payment.Amount),
	)

	return payment, nil
}

// Confirm validates the gateway callback against the stored draft, asks the
// gateway to capture the funds, and promotes the draft to DONE.
func (s *paymentService) Confirm(ctx context.Context, paymentKey, orderID string, amount int64) (*domain.Payment, error) {
	ctx, span := s.tracer.Start(ctx, "PaymentService.Confirm")
	defer span.End()

	span.SetAttributes(
		attribute.String("order_id", orderID),
		attribute.Int64("amount", amount),
	)

	draft, err := s.paymentRepo.GetByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrPaymentNotFound) {
			return nil, newError(CodeOrderNotFound, err)
		}

		return nil, newError(CodeInternalError, err)
	}

	// Gateway payment keys are one-time, so a second confirmation of the
	// same order is always a replay or a forgery. Reject without touching
	// the gateway.
	switch draft.Status {
	case domain.PaymentStatusDone:
		return nil, newError(CodeAlreadyConfirmed, nil)
	case domain.PaymentStatusCanceled:
		return nil, newError(CodeAlreadyCanceled, nil)
	}

	// The draft is the source of truth here, not the live catalog price:
	// the catalog may have changed since the draft was created.
	if draft.Amount != amount {
		mylogger.Warn(
			ctx,
			s.logger,
			"Confirm amount does not match draft",
			zap.String("order_id", orderID),
			zap.Int64("amount", amount),
			zap.Int64("draft_amount", draft.Amount),
		)

		return nil, newError(CodeAmountMismatch, nil)
	}

	gwPayment, err := s.gateway.Confirm(ctx, toss.ConfirmRequest{
		PaymentKey: paymentKey,
		OrderID:    orderID,
		Amount:     amount,
	})
	if err != nil {
		// Draft stays PENDING on every gateway failure path, so the
		// user can retry or land on a distinguishable failure page.
		return nil, s.classifyGatewayError(ctx, err)
	}

	if err := s.persistConfirmation(ctx, draft, gwPayment); err != nil {
		mylogger.Error(
			ctx,
			s.logger,
			"Funds captured but local state not updated, reconciliation required",
			zap.String("order_id", orderID),
			zap.String("payment_key", gwPayment.PaymentKey),
			zap.Error(err),
		)

		return nil, newRetryableError(CodePostConfirmPersistence, err)
	}

	mylogger.Info(
		ctx,
		s.logger,
		"Payment confirmed",
		zap.String("order_id", orderID),
		zap.String("payment_key", gwPayment.PaymentKey),
		zap.String("method", gwPayment.Method),
	)

	confirmed := *draft
	confirmed.Status = domain.PaymentStatusDone
	confirmed.PaymentKey = gwPayment.PaymentKey
	confirmed.PaymentMethod = &gwPayment.Method
	confirmed.ApprovedAt = &gwPayment.ApprovedAt

	return &confirmed, nil
}

func (s *paymentService) persistConfirmation(ctx context.Context, draft *domain.Payment, gwPayment *toss.Payment) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}
	defer func() {
		cleanupCtx := context.WithoutCancel(ctx)

		err := tx.Rollback(cleanupCtx)
		if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			mylogger.Warn(
				cleanupCtx,
				s.logger,
				"Error rolling back transaction",
				zap.Error(err),
			)
		}
	}()

	if err := s.paymentRepo.MarkConfirmed(
		ctx,
		tx,
		draft.OrderID,
		gwPayment.PaymentKey,
		gwPayment.Method,
		gwPayment.ApprovedAt,
	); err != nil {
		return err
	}

	event := domain.PaymentConfirmedEvent{
		OrderID:    draft.OrderID,
		PaymentKey: gwPayment.PaymentKey,
		ProductID:  draft.ProductID,
		UserID:     draft.UserID,
		Amount:     draft.Amount,
		Method:     gwPayment.Method,
		ApprovedAt: gwPayment.ApprovedAt,
	}
	if err := s.emitEvent(ctx, tx, draft.OrderID, "PaymentConfirmed", event); err != nil {
		return fmt.Errorf("failed to emit event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Cancel reverses a confirmed payment, keyed by the gateway payment key.
func (s *paymentService) Cancel(ctx context.Context, paymentKey, reason string) error {
	ctx, span := s.tracer.Start(ctx, "PaymentService.Cancel")
	defer span.End()

	span.SetAttributes(
		attribute.String("payment_key", paymentKey),
	)

	payment, err := s.paymentRepo.GetByPaymentKey(ctx, paymentKey)
	if err != nil {
		if errors.Is(err, repository.ErrPaymentNotFound) {
			return newError(CodePaymentNotFound, err)
		}

		return newError(CodeInternalError, err)
	}

	switch payment.Status {
	case domain.PaymentStatusCanceled:
		// Repeat cancellation is not silently successful.
		return newError(CodeAlreadyCanceled, nil)
	case domain.PaymentStatusPending:
		return newError(CodeNotConfirmed, nil)
	}

	if _, err := s.gateway.Cancel(ctx, paymentKey, toss.CancelRequest{CancelReason: reason}); err != nil {
		return s.classifyGatewayError(ctx, err)
	}

	if err := s.persistCancellation(ctx, payment, reason); err != nil {
		mylogger.Error(
			ctx,
			s.logger,
			"Gateway canceled but local state not updated, reconciliation required",
			zap.String("payment_key", paymentKey),
			zap.Error(err),
		)

		return newRetryableError(CodePostCancelPersistence, err)
	}

	mylogger.Info(
		ctx,
		s.logger,
		"Payment canceled",
		zap.String("payment_key", paymentKey),
		zap.String("reason", reason),
	)

	return nil
}

func (s *paymentService) persistCancellation(ctx context.Context, payment *domain.Payment, reason string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}
	defer func() {
		cleanupCtx := context.WithoutCancel(ctx)

		err := tx.Rollback(cleanupCtx)
		if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			mylogger.Warn(
				cleanupCtx,
				s.logger,
				"Error rolling back transaction",
				zap.Error(err),
			)
		}
	}()

	canceledAt, err := s.paymentRepo.MarkCanceled(ctx, tx, payment.PaymentKey)
	if err != nil {
		return err
	}

	event := domain.PaymentCanceledEvent{
		OrderID:    payment.OrderID,
		PaymentKey: payment.PaymentKey,
		Amount:     payment.Amount,
		Reason:     reason,
		CanceledAt: canceledAt,
	}
	if err := s.emitEvent(ctx, tx, payment.OrderID, "PaymentCanceled", event); err != nil {
		return fmt.Errorf("failed to emit event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (s *paymentService) History(ctx context.Context, userID *string, limit, offset int64) ([]domain.Payment, error) {
	ctx, span := s.tracer.Start(ctx, "PaymentService.History")
	defer span.End()

	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}

	payments, err := s.paymentRepo.List(ctx, userID, limit, offset)
	if err != nil {
		return nil, newError(CodeInternalError, err)
	}

	return payments, nil
}

func (s *paymentService) GetPayment(ctx context.Context, paymentKey string) (*domain.Payment, error) {
	ctx, span := s.tracer.Start(ctx, "PaymentService.GetPayment")
	defer span.End()

	payment, err := s.paymentRepo.GetByPaymentKey(ctx, paymentKey)
	if err != nil {
		if errors.Is(err, repository.ErrPaymentNotFound) {
			return nil, newError(CodePaymentNotFound, err)
		}

		return nil, newError(CodeInternalError, err)
	}

	return payment, nil
}

// classifyGatewayError keeps the three failure families apart: definitive
// gateway rejections (code passes through), indeterminate transport
// failures (funds may be captured, retryable), and breaker refusals (no
// request was sent, retryable).
func (s *paymentService) classifyGatewayError(ctx context.Context, err error) *PaymentError {
	if gwErr, ok := toss.IsGatewayError(err); ok {
		return &PaymentError{
			Code:    gwErr.Code,
			Message: UserMessage(gwErr.Code, gwErr.Message),
			cause:   gwErr,
		}
	}

	if toss.IsUnavailable(err) {
		return newRetryableError(CodeGatewayUnavailable, err)
	}

	if toss.IsIndeterminate(err) {
		mylogger.Warn(
			ctx,
			s.logger,
			"Gateway call outcome unknown",
			zap.Error(err),
		)

		return newRetryableError(CodeGatewayTimeout, err)
	}

	mylogger.Error(ctx, s.logger, "Unexpected gateway failure", zap.Error(err))

	return newError(CodeInternalError, err)
}

func (s *paymentService) emitEvent(ctx context.Context, tx pgx.Tx, orderID, eventType string, payload any) error {
	wrapper := map[string]any{
		"event":   eventType,
		"payload": payload,
	}

	wrapperBytes, err := json.Marshal(wrapper)
	if err != nil {
		return fmt.Errorf("failed to marshal wrapper: %w", err)
	}

	outboxEvent := &outboxDomain.OutboxEvent{
		AggregateType: "Payment",
		AggregateID:   orderID,
		EventType:     eventType,
		Payload:       wrapperBytes,
		Topic:         paymentEventsTopic,
	}

	return s.outboxRepo.SaveOutboxEvent(ctx, tx, outboxEvent)
}
