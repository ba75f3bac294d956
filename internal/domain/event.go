package domain

import "time"

type PaymentConfirmedEvent struct {
	OrderID    string    `json:"order_id"`
	PaymentKey string    `json:"payment_key"`
	ProductID  string    `json:"product_id"`
	UserID     *string   `json:"user_id,omitempty"`
	Amount     int64     `json:"amount"`
	Method     string    `json:"method"`
	ApprovedAt time.Time `json:"approved_at"`
}

type PaymentCanceledEvent struct {
	OrderID    string    `json:"order_id"`
	PaymentKey string    `json:"payment_key"`
	Amount     int64     `json:"amount"`
	Reason     string    `json:"reason"`
	CanceledAt time.Time `json:"canceled_at"`
}
