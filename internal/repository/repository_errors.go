package repository

import "errors"

var (
	ErrPaymentNotFound    = errors.New("payment not found")
	ErrProductNotFound    = errors.New("product not found")
	ErrOrderAlreadyExists = errors.New("order already exists")

	// ErrStatusConflict means a status-guarded update matched zero rows:
	// the row is no longer in the expected pre-state. The database is the
	// single point of serialization for concurrent confirm/cancel, so this
	// is how a lost race surfaces.
	ErrStatusConflict = errors.New("payment status conflict")
)
