package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kyukim/payment-service/internal/domain"
	"github.com/kyukim/payment-service/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type PaymentRepository interface {
	CreateDraft(ctx context.Context, payment *domain.Payment) error
	GetByOrderID(ctx context.Context, orderID string) (*domain.Payment, error)
	GetByPaymentKey(ctx context.Context, paymentKey string) (*domain.Payment, error)
	MarkConfirmed(ctx context.Context, tx pgx.Tx, orderID, paymentKey, method string, approvedAt time.Time) error
	MarkCanceled(ctx context.Context, tx pgx.Tx, paymentKey string) (time.Time, error)
	List(ctx context.Context, userID *string, limit, offset int64) ([]domain.Payment, error)
}

type paymentRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

func NewPaymentRepository(pool *pgxpool.Pool, logger *zap.Logger) PaymentRepository {
	return &paymentRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("repository/payment_repo"),
	}
}

const paymentColumns = `
	id, order_id, payment_key, product_id, user_id, amount, status,
	payment_method, approved_at, created_at, updated_at
`

func scanPayment(row pgx.Row, p *domain.Payment) error {
	return row.Scan(
		&p.ID,
		&p.OrderID,
		&p.PaymentKey,
		&p.ProductID,
		&p.UserID,
		&p.Amount,
		&p.Status,
		&p.PaymentMethod,
		&p.ApprovedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
}

func (r *paymentRepo) CreateDraft(ctx context.Context, payment *domain.Payment) error {
	ctx, span := r.tracer.Start(ctx, "PaymentRepository.CreateDraft")
	defer span.End()

	span.SetAttributes(
		attribute.String("order_id", payment.OrderID),
		attribute.String("product_id", payment.ProductID),
		attribute.Int64("amount", payment.Amount),
	)

	query := `
		INSERT INTO payments (order_id, payment_key, product_id, user_id, amount, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`

	if err := r.pool.QueryRow(
		ctx,
		query,
		payment.OrderID,
		payment.PaymentKey,
		payment.ProductID,
		payment.UserID,
		payment.Amount,
		string(payment.Status),
	).Scan(
		&payment.ID,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	); err != nil {
		span.RecordError(err)

		var pgError *pgconn.PgError
		if errors.As(err, &pgError) && pgError.Code == "23505" {
			mylogger.Warn(
				ctx,
				r.logger,
				"Order id collision",
				zap.String("order_id", payment.OrderID),
			)

			return ErrOrderAlreadyExists
		}

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to insert payment draft",
			zap.String("order_id", payment.OrderID),
			zap.Error(err),
		)

		return fmt.Errorf("failed to insert payment draft: %w", err)
	}

	return nil
}

func (r *paymentRepo) GetByOrderID(ctx context.Context, orderID string) (*domain.Payment, error) {
	ctx, span := r.tracer.Start(ctx, "PaymentRepository.GetByOrderID")
	defer span.End()

	span.SetAttributes(
		attribute.String("order_id", orderID),
	)

	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE order_id = $1
	`

	var result domain.Payment
	if err := scanPayment(r.pool.QueryRow(ctx, query, orderID), &result); err != nil {
		span.RecordError(err)

		if errors.Is(err, pgx.ErrNoRows) {
			mylogger.Warn(ctx, r.logger, "Payment not found", zap.String("order_id", orderID))
			return nil, ErrPaymentNotFound
		}

		mylogger.Error(ctx, r.logger, "GetByOrderID failed", zap.Error(err))

		return nil, fmt.Errorf("error getting payment by order id: %w", err)
	}

	return &result, nil
}

func (r *paymentRepo) GetByPaymentKey(ctx context.Context, paymentKey string) (*domain.Payment, error) {
	ctx, span := r.tracer.Start(ctx, "PaymentRepository.GetByPaymentKey")
	defer span.End()

	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE payment_key = $1
	`

	var result domain.Payment
	if err := scanPayment(r.pool.QueryRow(ctx, query, paymentKey), &result); err != nil {
		span.RecordError(err)

		if errors.Is(err, pgx.ErrNoRows) {
			mylogger.Warn(ctx, r.logger, "Payment not found", zap.String("payment_key", paymentKey))
			return nil, ErrPaymentNotFound
		}

		mylogger.Error(ctx, r.logger, "GetByPaymentKey failed", zap.Error(err))

		return nil, fmt.Errorf("error getting payment by payment key: %w", err)
	}

	return &result, nil
}

// MarkConfirmed promotes a PENDING draft to DONE. The status guard is the
// concurrency control: if another request already confirmed or canceled the
// order, zero rows match and ErrStatusConflict is returned.
func (r *paymentRepo) MarkConfirmed(ctx context.Context, tx pgx.Tx, orderID, paymentKey, method string, approvedAt time.Time) error {
	ctx, span := r.tracer.Start(ctx, "PaymentRepository.MarkConfirmed")
	defer span.End()

	span.SetAttributes(
		attribute.String("order_id", orderID),
		attribute.String("payment_key", paymentKey),
	)

	query := `
		UPDATE payments
		SET status = $1,
			payment_key = $2,
			payment_method = $3,
			approved_at = $4,
			updated_at = NOW()
		WHERE order_id = $5 AND status = $6;
	`

	commandTag, err := tx.Exec(
		ctx,
		query,
		string(domain.PaymentStatusDone),
		paymentKey,
		method,
		approvedAt,
		orderID,
		string(domain.PaymentStatusPending),
	)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to mark payment confirmed",
			zap.String("order_id", orderID),
			zap.Error(err),
		)

		return fmt.Errorf("failed to mark payment confirmed: %w", err)
	}

	if commandTag.RowsAffected() == 0 {
		mylogger.Warn(
			ctx,
			r.logger,
			"Payment not in PENDING state",
			zap.String("order_id", orderID),
		)

		return ErrStatusConflict
	}

	return nil
}

// MarkCanceled moves a DONE payment to CANCELED, keyed by the immutable
// gateway payment key. Returns the transition time for the outbox event.
func (r *paymentRepo) MarkCanceled(ctx context.Context, tx pgx.Tx, paymentKey string) (time.Time, error) {
	ctx, span := r.tracer.Start(ctx, "PaymentRepository.MarkCanceled")
	defer span.End()

	span.SetAttributes(
		attribute.String("payment_key", paymentKey),
	)

	query := `
		UPDATE payments
		SET status = $1, updated_at = NOW()
		WHERE payment_key = $2 AND status = $3
		RETURNING updated_at;
	`

	var canceledAt time.Time
	if err := tx.QueryRow(
		ctx,
		query,
		string(domain.PaymentStatusCanceled),
		paymentKey,
		string(domain.PaymentStatusDone),
	).Scan(&canceledAt); err != nil {
		span.RecordError(err)

		if errors.Is(err, pgx.ErrNoRows) {
			mylogger.Warn(
				ctx,
				r.logger,
				"Payment not in DONE state",
				zap.String("payment_key", paymentKey),
			)

			return time.Time{}, ErrStatusConflict
		}

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to mark payment canceled",
			zap.String("payment_key", paymentKey),
			zap.Error(err),
		)

		return time.Time{}, fmt.Errorf("failed to mark payment canceled: %w", err)
	}

	return canceledAt, nil
}

func (r *paymentRepo) List(ctx context.Context, userID *string, limit, offset int64) ([]domain.Payment, error) {
	ctx, span := r.tracer.Start(ctx, "PaymentRepository.List")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("limit", limit),
		attribute.Int64("offset", offset),
	)

	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE ($1::text IS NULL OR user_id = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(ctx, r.logger, "Failed to query payments", zap.Error(err))

		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var result []domain.Payment
	for rows.Next() {
		var p domain.Payment
		if err := scanPayment(rows, &p); err != nil {
			span.RecordError(err)
			mylogger.Error(ctx, r.logger, "Failed to scan row", zap.Error(err))

			return nil, err
		}

		result = append(result, p)
	}

	if err := rows.Err(); err != nil {
		mylogger.Error(ctx, r.logger, "Rows error", zap.Error(err))

		return nil, err
	}

	return result, nil
}
