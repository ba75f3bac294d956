package service

import "fmt"

// Stable error codes surfaced to the presentation layer. The contract is
// the code, not the message: callers key user-facing text off these.
const (
	CodeAmountMismatch     = "AMOUNT_MISMATCH"
	CodeOrderNotFound      = "ORDER_NOT_FOUND"
	CodeProductNotFound    = "PRODUCT_NOT_FOUND"
	CodeOrderAlreadyExists = "ORDER_ALREADY_EXISTS"
	CodePaymentNotFound    = "PAYMENT_NOT_FOUND"
	CodeAlreadyCanceled    = "ALREADY_CANCELED"
	CodeAlreadyConfirmed   = "ALREADY_CONFIRMED"
	CodeNotConfirmed       = "NOT_CONFIRMED"
	CodeGatewayTimeout     = "GATEWAY_TIMEOUT"
	CodeGatewayUnavailable = "GATEWAY_UNAVAILABLE"
	CodeInternalError      = "INTERNAL_ERROR"

	// Reconciliation hazards: the gateway accepted the operation but the
	// local row could not be moved. Funds and local state now disagree.
	CodePostConfirmPersistence = "POST_CONFIRM_PERSISTENCE_FAILURE"
	CodePostCancelPersistence  = "POST_CANCEL_PERSISTENCE_FAILURE"
)

// PaymentError is the discriminated result every coordinator returns on
// failure. Gateway rejections keep their original code and message.
type PaymentError struct {
	Code      string
	Message   string
	Retryable bool
	cause     error
}

func (e *PaymentError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PaymentError) Unwrap() error {
	return e.cause
}

func newError(code string, cause error) *PaymentError {
	return &PaymentError{
		Code:    code,
		Message: UserMessage(code, ""),
		cause:   cause,
	}
}

func newRetryableError(code string, cause error) *PaymentError {
	err := newError(code, cause)
	err.Retryable = true
	return err
}

// userMessages maps stable codes, ours and the gateway's documented ones,
// to the fixed set of user-facing strings. Unmapped gateway codes fall back
// to the gateway's raw message text.
var userMessages = map[string]string{
	CodeAmountMismatch:         "payment amount does not match the order",
	CodeOrderNotFound:          "order not found",
	CodeProductNotFound:        "product not found",
	CodeOrderAlreadyExists:     "an order with this id already exists",
	CodePaymentNotFound:        "payment not found",
	CodeAlreadyCanceled:        "this payment has already been canceled",
	CodeAlreadyConfirmed:       "this order has already been paid",
	CodeNotConfirmed:           "this payment has not been confirmed yet",
	CodeGatewayTimeout:         "the payment provider did not respond in time, please retry",
	CodeGatewayUnavailable:     "the payment provider is temporarily unavailable",
	CodeInternalError:          "an internal error occurred",
	CodePostConfirmPersistence: "payment was approved but could not be recorded, please contact support",
	CodePostCancelPersistence:  "cancellation was accepted but could not be recorded, please contact support",

	// gateway passthrough codes
	"PAY_PROCESS_CANCELED":      "the payment was canceled",
	"PAY_PROCESS_ABORTED":       "the payment was aborted",
	"REJECT_CARD_COMPANY":       "the card issuer rejected the payment",
	"NOT_FOUND_PAYMENT_SESSION": "the payment session has expired",
	"FORBIDDEN_REQUEST":         "invalid payment request",
	"UNAUTHORIZED_KEY":          "payment authorization failed",
}

// UserMessage resolves a code to its user-facing message. fallback is used
// for codes outside the table, typically the gateway's own message.
func UserMessage(code, fallback string) string {
	if msg, ok := userMessages[code]; ok {
		return msg
	}
	if fallback != "" {
		return fallback
	}
	return userMessages[CodeInternalError]
}
