package handler

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/kyukim/payment-service/internal/domain"
	"github.com/kyukim/payment-service/internal/service"
	"github.com/kyukim/payment-service/pkg/mylogger"
	"github.com/kyukim/payment-service/pkg/utils"
	"go.uber.org/zap"
)

type PaymentHandler struct {
	service  service.PaymentService
	validate *validator.Validate
	logger   *zap.Logger
}

func NewPaymentHandler(svc service.PaymentService, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		service:  svc,
		validate: validator.New(),
		logger:   logger,
	}
}

type CreateDraftInput struct {
	OrderID   string  `json:"order_id" validate:"omitempty,max=64"`
	ProductID string  `json:"product_id" validate:"required"`
	Amount    int64   `json:"amount" validate:"required,gt=0"`
	UserID    *string `json:"user_id" validate:"omitempty,max=64"`
}

type ConfirmInput struct {
	PaymentKey string `json:"payment_key" validate:"required"`
	OrderID    string `json:"order_id" validate:"required"`
	Amount     int64  `json:"amount" validate:"required,gt=0"`
}

type CancelInput struct {
	CancelReason string `json:"cancel_reason" validate:"required,max=200"`
}

func (h *PaymentHandler) CreateDraft(c *fiber.Ctx) error {
	input := new(CreateDraftInput)

	if err := c.BodyParser(input); err != nil {
		h.logger.Warn("failed to parse body in create draft", zap.Error(err))

		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "error parsing body",
		})
	}

	if err := h.validate.Struct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"errors": utils.FormatValidationError(err),
		})
	}

	payment, err := h.service.CreateDraft(c.UserContext(), service.CreateDraftInput{
		OrderID:   input.OrderID,
		ProductID: input.ProductID,
		Amount:    input.Amount,
		UserID:    input.UserID,
	})
	if err != nil {
		return h.renderError(c, err, "create draft failed")
	}

	mylogger.Info(
		c.UserContext(),
		h.logger,
		"draft created",
		zap.String("order_id", payment.OrderID),
	)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"order_id": payment.OrderID,
		"status":   payment.Status,
	})
}

func (h *PaymentHandler) Confirm(c *fiber.Ctx) error {
	input := new(ConfirmInput)

	if err := c.BodyParser(input); err != nil {
		h.logger.Warn("failed to parse body in confirm", zap.Error(err))

		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "error parsing body",
		})
	}

	if err := h.validate.Struct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"errors": utils.FormatValidationError(err),
		})
	}

	payment, err := h.service.Confirm(c.UserContext(), input.PaymentKey, input.OrderID, input.Amount)
	if err != nil {
		return h.renderError(c, err, "confirm failed")
	}

	return c.Status(fiber.StatusOK).JSON(paymentResponse(payment))
}

func (h *PaymentHandler) Cancel(c *fiber.Ctx) error {
	paymentKey := c.Params("paymentKey")
	if paymentKey == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "payment key is required",
		})
	}

	input := new(CancelInput)
	if err := c.BodyParser(input); err != nil {
		h.logger.Warn("failed to parse body in cancel", zap.Error(err))

		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "error parsing body",
		})
	}

	if err := h.validate.Struct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"errors": utils.FormatValidationError(err),
		})
	}

	if err := h.service.Cancel(c.UserContext(), paymentKey, input.CancelReason); err != nil {
		return h.renderError(c, err, "cancel failed")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "canceled",
	})
}

func (h *PaymentHandler) History(c *fiber.Ctx) error {
	var userID *string
	if v := c.Query("user_id"); v != "" {
		userID = &v
	}

	limit := int64(c.QueryInt("limit", 0))
	offset := int64(c.QueryInt("offset", 0))

	payments, err := h.service.History(c.UserContext(), userID, limit, offset)
	if err != nil {
		return h.renderError(c, err, "history query failed")
	}

	items := make([]fiber.Map, 0, len(payments))
	for i := range payments {
		items = append(items, paymentResponse(&payments[i]))
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"payments": items,
		"count":    len(items),
	})
}

func (h *PaymentHandler) GetPayment(c *fiber.Ctx) error {
	paymentKey := c.Params("paymentKey")
	if paymentKey == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "payment key is required",
		})
	}

	payment, err := h.service.GetPayment(c.UserContext(), paymentKey)
	if err != nil {
		return h.renderError(c, err, "get payment failed")
	}

	return c.Status(fiber.StatusOK).JSON(paymentResponse(payment))
}

func paymentResponse(p *domain.Payment) fiber.Map {
	resp := fiber.Map{
		"order_id":    p.OrderID,
		"payment_key": p.PaymentKey,
		"product_id":  p.ProductID,
		"amount":      p.Amount,
		"status":      p.Status,
		"created_at":  p.CreatedAt.Format(time.RFC3339),
	}

	if p.UserID != nil {
		resp["user_id"] = *p.UserID
	}
	if p.PaymentMethod != nil {
		resp["payment_method"] = *p.PaymentMethod
	}
	if p.ApprovedAt != nil {
		resp["approved_at"] = p.ApprovedAt.Format(time.RFC3339)
	}

	return resp
}

func (h *PaymentHandler) renderError(c *fiber.Ctx, err error, logMsg string) error {
	var payErr *service.PaymentError
	if !errors.As(err, &payErr) {
		mylogger.Error(c.UserContext(), h.logger, logMsg, zap.Error(err))

		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal error",
		})
	}

	status := errorCodeToStatus(payErr.Code)

	mylogger.Warn(
		c.UserContext(),
		h.logger,
		logMsg,
		zap.String("code", payErr.Code),
		zap.Int("http_status", status),
		zap.Error(err),
	)

	return c.Status(status).JSON(fiber.Map{
		"code":      payErr.Code,
		"error":     payErr.Message,
		"retryable": payErr.Retryable,
	})
}

func errorCodeToStatus(code string) int {
	switch code {
	case service.CodeOrderNotFound, service.CodePaymentNotFound, service.CodeProductNotFound:
		return fiber.StatusNotFound
	case service.CodeAmountMismatch, service.CodeNotConfirmed:
		return fiber.StatusBadRequest
	case service.CodeOrderAlreadyExists, service.CodeAlreadyCanceled, service.CodeAlreadyConfirmed:
		return fiber.StatusConflict
	case service.CodeGatewayTimeout:
		return fiber.StatusGatewayTimeout
	case service.CodeGatewayUnavailable:
		return fiber.StatusServiceUnavailable
	case service.CodeInternalError, service.CodePostConfirmPersistence, service.CodePostCancelPersistence:
		return fiber.StatusInternalServerError
	default:
		// gateway passthrough codes are payment rejections
		return fiber.StatusPaymentRequired
	}
}
