package toss

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kyukim/payment-service/pkg/mylogger"
	"github.com/kyukim/payment-service/pkg/utils"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Gateway is the outbound surface of the Toss Payments API. The gateway is
// the sole authority on whether funds were captured; nothing in this
// service assumes success from local state alone.
type Gateway interface {
	Confirm(ctx context.Context, req ConfirmRequest) (*Payment, error)
	Cancel(ctx context.Context, paymentKey string, req CancelRequest) (*Payment, error)
	GetPayment(ctx context.Context, paymentKey string) (*Payment, error)
}

type ConfirmRequest struct {
	PaymentKey string `json:"paymentKey"`
	OrderID    string `json:"orderId"`
	Amount     int64  `json:"amount"`
}

type CancelRequest struct {
	CancelReason string `json:"cancelReason"`
	CancelAmount *int64 `json:"cancelAmount,omitempty"`
}

// Payment is the gateway's view of a transaction, trimmed to the fields
// this service records or surfaces.
type Payment struct {
	PaymentKey  string    `json:"paymentKey"`
	OrderID     string    `json:"orderId"`
	OrderName   string    `json:"orderName"`
	Currency    string    `json:"currency"`
	Method      string    `json:"method"`
	Status      string    `json:"status"`
	RequestedAt time.Time `json:"requestedAt"`
	ApprovedAt  time.Time `json:"approvedAt"`
	TotalAmount int64     `json:"totalAmount"`

	Receipt *Receipt `json:"receipt,omitempty"`
	Failure *Failure `json:"failure,omitempty"`
}

type Receipt struct {
	URL string `json:"url"`
}

type Failure struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Config struct {
	BaseURL   string
	SecretKey string
	Timeout   time.Duration
}

type client struct {
	baseURL    string
	authHeader string
	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker
	logger     *zap.Logger
	tracer     trace.Tracer
}

func NewClient(cfg Config, logger *zap.Logger) Gateway {
	settings := gobreaker.Settings{
		Name:        "TossPayments",
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn(
				"Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	// secret key with a trailing colon, base64, per the Toss API docs
	encodedKey := base64.StdEncoding.EncodeToString([]byte(cfg.SecretKey + ":"))

	return &client{
		baseURL:    cfg.BaseURL,
		authHeader: "Basic " + encodedKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cb:         gobreaker.NewCircuitBreaker(settings),
		logger:     logger,
		tracer:     otel.Tracer("toss/client"),
	}
}

func (c *client) Confirm(ctx context.Context, req ConfirmRequest) (*Payment, error) {
	ctx, span := c.tracer.Start(ctx, "TossClient.Confirm")
	defer span.End()

	span.SetAttributes(
		attribute.String("order_id", req.OrderID),
		attribute.Int64("amount", req.Amount),
	)

	return c.do(ctx, http.MethodPost, "/payments/confirm", req)
}

func (c *client) Cancel(ctx context.Context, paymentKey string, req CancelRequest) (*Payment, error) {
	ctx, span := c.tracer.Start(ctx, "TossClient.Cancel")
	defer span.End()

	span.SetAttributes(
		attribute.String("payment_key", paymentKey),
	)

	return c.do(ctx, http.MethodPost, "/payments/"+paymentKey+"/cancel", req)
}

func (c *client) GetPayment(ctx context.Context, paymentKey string) (*Payment, error) {
	ctx, span := c.tracer.Start(ctx, "TossClient.GetPayment")
	defer span.End()

	return c.do(ctx, http.MethodGet, "/payments/"+paymentKey, nil)
}

type httpResult struct {
	status int
	body   []byte
}

func (c *client) do(ctx context.Context, method, path string, payload any) (*Payment, error) {
	var reqBody io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Authorization", c.authHeader)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	// Only transport failures feed the breaker. A decoded gateway
	// rejection is a working gateway saying no.
	result, err := utils.ExecuteWithBreaker(c.cb, func() (httpResult, error) {
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return httpResult{}, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return httpResult{}, err
		}

		return httpResult{status: resp.StatusCode, body: body}, nil
	})
	if err != nil {
		mylogger.Warn(
			ctx,
			c.logger,
			"Gateway call failed",
			zap.String("path", path),
			zap.Error(err),
		)

		return nil, err
	}

	if result.status >= http.StatusBadRequest {
		gwErr := &Error{HTTPStatus: result.status}
		if err := json.Unmarshal(result.body, gwErr); err != nil || gwErr.Code == "" {
			gwErr.Code = "UNKNOWN"
			gwErr.Message = fmt.Sprintf("unexpected gateway response (HTTP %d)", result.status)
		}

		mylogger.Warn(
			ctx,
			c.logger,
			"Gateway rejected request",
			zap.String("path", path),
			zap.String("code", gwErr.Code),
			zap.Int("http_status", result.status),
		)

		return nil, gwErr
	}

	var payment Payment
	if err := json.Unmarshal(result.body, &payment); err != nil {
		return nil, fmt.Errorf("failed to decode gateway response: %w", err)
	}

	return &payment, nil
}
