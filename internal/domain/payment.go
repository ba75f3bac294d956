package domain

import "time"

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "PENDING"
	PaymentStatusDone     PaymentStatus = "DONE"
	PaymentStatusCanceled PaymentStatus = "CANCELED"
)

// Payment is one row of the payments table. A row starts life as a draft
// (PENDING, payment_key holds a temp_* placeholder) and is promoted to DONE
// by gateway confirmation, or to CANCELED by a later cancellation.
type Payment struct {
	ID            int64         `db:"id"`
	OrderID       string        `db:"order_id"`
	PaymentKey    string        `db:"payment_key"`
	ProductID     string        `db:"product_id"`
	UserID        *string       `db:"user_id"`
	Amount        int64         `db:"amount"`
	Status        PaymentStatus `db:"status"`
	PaymentMethod *string       `db:"payment_method"`
	ApprovedAt    *time.Time    `db:"approved_at"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

type Product struct {
	ID          string  `db:"id"`
	Name        string  `db:"name"`
	Description *string `db:"description"`
	Price       int64   `db:"price"`
	ImageUrl    *string `db:"image_url"`

	CreatedAt time.Time `db:"created_at"`
}

// DraftPaymentKey is the placeholder stored until the gateway hands out the
// real key on confirmation.
func DraftPaymentKey(orderID string) string {
	return "temp_" + orderID
}
