package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kyukim/payment-service/internal/domain"
	"github.com/kyukim/payment-service/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ProductReader is the read-only view of the catalog this service needs.
// The catalog itself is owned elsewhere; drafts only check price integrity
// against it.
type ProductReader interface {
	GetByID(ctx context.Context, id string) (*domain.Product, error)
}

type productRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

func NewProductRepository(pool *pgxpool.Pool, logger *zap.Logger) ProductReader {
	return &productRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("repository/product_repo"),
	}
}

func (r *productRepo) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.GetByID")
	defer span.End()

	span.SetAttributes(
		attribute.String("product_id", id),
	)

	query := `
		SELECT id, name, description, price, image_url, created_at
		FROM products
		WHERE id = $1
	`

	var result domain.Product
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&result.ID,
		&result.Name,
		&result.Description,
		&result.Price,
		&result.ImageUrl,
		&result.CreatedAt,
	); err != nil {
		span.RecordError(err)

		if errors.Is(err, pgx.ErrNoRows) {
			mylogger.Warn(ctx, r.logger, "Product not found", zap.String("product_id", id))
			return nil, ErrProductNotFound
		}

		mylogger.Error(ctx, r.logger, "GetByID failed", zap.Error(err))

		return nil, fmt.Errorf("error getting product by id: %w", err)
	}

	return &result, nil
}
