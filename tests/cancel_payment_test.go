package tests

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/kyukim/payment-service/internal/service"
)

func (s *IntegrationTestSuite) TestCancelPayment_Success() {
	s.seedProduct("prod-1", "Sticker pack", 15000)
	draft := s.createDraft("prod-1", 15000, nil)
	confirmed := s.confirmDraft(draft)

	err := s.PaymentService.Cancel(s.Ctx, confirmed.PaymentKey, "user requested")
	s.Require().NoError(err)

	s.Require().Equal("CANCELED", s.paymentStatus(draft.OrderID))
	s.Require().Equal(int32(1), s.Toss.CancelCalls.Load())

	s.requireEventuallyPublished(draft.OrderID, "PaymentCanceled")
}

func (s *IntegrationTestSuite) TestCancelPayment_RepeatIsRejected() {
	s.seedProduct("prod-1", "Sticker pack", 15000)
	draft := s.createDraft("prod-1", 15000, nil)
	confirmed := s.confirmDraft(draft)

	s.Require().NoError(s.PaymentService.Cancel(s.Ctx, confirmed.PaymentKey, "user requested"))

	err := s.PaymentService.Cancel(s.Ctx, confirmed.PaymentKey, "user requested again")
	s.Require().Error(err)

	var pErr *service.PaymentError
	s.Require().True(errors.As(err, &pErr))
	s.Require().Equal(service.CodeAlreadyCanceled, pErr.Code)

	s.Require().Equal(int32(1), s.Toss.CancelCalls.Load(), "a repeat cancel must not re-invoke the gateway")
	s.Require().Equal("CANCELED", s.paymentStatus(draft.OrderID))
}

func (s *IntegrationTestSuite) TestCancelPayment_PendingDraft() {
	s.seedProduct("prod-1", "Sticker pack", 15000)
	draft := s.createDraft("prod-1", 15000, nil)

	err := s.PaymentService.Cancel(s.Ctx, draft.PaymentKey, "user requested")
	s.Require().Error(err)

	var pErr *service.PaymentError
	s.Require().True(errors.As(err, &pErr))
	s.Require().Equal(service.CodeNotConfirmed, pErr.Code)

	s.Require().Zero(s.Toss.CancelCalls.Load())
	s.Require().Equal("PENDING", s.paymentStatus(draft.OrderID))
}

func (s *IntegrationTestSuite) TestCancelPayment_PersistenceFailureIsRetryableHazard() {
	s.seedProduct("prod-1", "Sticker pack", 15000)
	draft := s.createDraft("prod-1", 15000, nil)
	confirmed := s.confirmDraft(draft)

	svc := s.newServiceWith(s.Gateway, &brokenOutboxRepo{s.OutboxRepo})

	err := svc.Cancel(s.Ctx, confirmed.PaymentKey, "user requested")
	s.Require().Error(err)

	var pErr *service.PaymentError
	s.Require().True(errors.As(err, &pErr))
	s.Require().Equal(service.CodePostCancelPersistence, pErr.Code)
	s.Require().True(pErr.Retryable, "the gateway already reversed the charge, the caller must be told to retry")

	s.Require().Equal(int32(1), s.Toss.CancelCalls.Load())
	s.Require().Equal("DONE", s.paymentStatus(draft.OrderID),
		"the local transaction rolls back, leaving the row for reconciliation")
}

func (s *IntegrationTestSuite) TestCancelPayment_EventCarriesCancelTime() {
	s.seedProduct("prod-1", "Sticker pack", 15000)
	draft := s.createDraft("prod-1", 15000, nil)
	confirmed := s.confirmDraft(draft)

	s.Require().NoError(s.PaymentService.Cancel(s.Ctx, confirmed.PaymentKey, "user requested"))

	var payload []byte
	err := s.DbPool.QueryRow(s.Ctx,
		`SELECT payload FROM outbox WHERE aggregate_id = $1 AND event_type = 'PaymentCanceled'`,
		draft.OrderID,
	).Scan(&payload)
	s.Require().NoError(err)

	var envelope struct {
		Payload struct {
			CanceledAt time.Time `json:"canceled_at"`
		} `json:"payload"`
	}
	s.Require().NoError(json.Unmarshal(payload, &envelope))

	var updatedAt time.Time
	err = s.DbPool.QueryRow(s.Ctx,
		`SELECT updated_at FROM payments WHERE order_id = $1`, draft.OrderID,
	).Scan(&updatedAt)
	s.Require().NoError(err)

	// The event timestamp is the cancellation transition, not the earlier
	// confirmation time the row carried before it.
	s.Require().WithinDuration(updatedAt, envelope.Payload.CanceledAt, time.Millisecond)
	s.Require().False(envelope.Payload.CanceledAt.Before(draft.CreatedAt))
}

func (s *IntegrationTestSuite) TestCancelPayment_UnknownKey() {
	err := s.PaymentService.Cancel(s.Ctx, "pk_missing", "user requested")
	s.Require().Error(err)

	var pErr *service.PaymentError
	s.Require().True(errors.As(err, &pErr))
	s.Require().Equal(service.CodePaymentNotFound, pErr.Code)

	s.Require().Zero(s.Toss.CancelCalls.Load())
}
