package tests

import (
	"errors"
	"net/http"
	"time"

	"github.com/kyukim/payment-service/internal/domain"
	"github.com/kyukim/payment-service/internal/service"
	"github.com/kyukim/payment-service/internal/toss"
	"go.uber.org/zap"
)

func (s *IntegrationTestSuite) TestConfirmPayment_Success() {
	s.seedProduct("prod-1", "Sticker pack", 15000)
	draft := s.createDraft("prod-1", 15000, nil)

	confirmed := s.confirmDraft(draft)

	s.Require().Equal(domain.PaymentStatusDone, confirmed.Status)
	s.Require().Equal("pk_"+draft.OrderID, confirmed.PaymentKey)
	s.Require().NotNil(confirmed.PaymentMethod)
	s.Require().Equal("CARD", *confirmed.PaymentMethod)
	s.Require().NotNil(confirmed.ApprovedAt)

	s.Require().Equal("DONE", s.paymentStatus(draft.OrderID))
	s.Require().Equal(int32(1), s.Toss.ConfirmCalls.Load())

	s.requireEventuallyPublished(draft.OrderID, "PaymentConfirmed")
}

func (s *IntegrationTestSuite) TestConfirmPayment_AmountMismatchSkipsGateway() {
	s.seedProduct("prod-1", "Sticker pack", 15000)
	draft := s.createDraft("prod-1", 15000, nil)

	_, err := s.PaymentService.Confirm(s.Ctx, "pk_"+draft.OrderID, draft.OrderID, 99999)
	s.Require().Error(err)

	var pErr *service.PaymentError
	s.Require().True(errors.As(err, &pErr))
	s.Require().Equal(service.CodeAmountMismatch, pErr.Code)

	s.Require().Zero(s.Toss.ConfirmCalls.Load(), "a mismatched amount must never reach the gateway")
	s.Require().Equal("PENDING", s.paymentStatus(draft.OrderID))
}

func (s *IntegrationTestSuite) TestConfirmPayment_Replay() {
	s.seedProduct("prod-1", "Sticker pack", 15000)
	draft := s.createDraft("prod-1", 15000, nil)
	s.confirmDraft(draft)

	_, err := s.PaymentService.Confirm(s.Ctx, "pk_other", draft.OrderID, 15000)
	s.Require().Error(err)

	var pErr *service.PaymentError
	s.Require().True(errors.As(err, &pErr))
	s.Require().Equal(service.CodeAlreadyConfirmed, pErr.Code)

	s.Require().Equal(int32(1), s.Toss.ConfirmCalls.Load(), "a replayed confirmation must not re-invoke the gateway")
	s.Require().Equal("DONE", s.paymentStatus(draft.OrderID))
}

func (s *IntegrationTestSuite) TestConfirmPayment_UnknownOrder() {
	_, err := s.PaymentService.Confirm(s.Ctx, "pk_x", "no-such-order", 15000)
	s.Require().Error(err)

	var pErr *service.PaymentError
	s.Require().True(errors.As(err, &pErr))
	s.Require().Equal(service.CodeOrderNotFound, pErr.Code)

	s.Require().Zero(s.Toss.ConfirmCalls.Load())
}

func (s *IntegrationTestSuite) TestConfirmPayment_GatewayRejectionKeepsDraftPending() {
	s.seedProduct("prod-1", "Sticker pack", 15000)
	draft := s.createDraft("prod-1", 15000, nil)

	s.Toss.ConfirmError = &gatewayError{
		Status:  http.StatusForbidden,
		Code:    "REJECT_CARD_COMPANY",
		Message: "카드사에서 결제를 거절했습니다.",
	}

	_, err := s.PaymentService.Confirm(s.Ctx, "pk_"+draft.OrderID, draft.OrderID, 15000)
	s.Require().Error(err)

	var pErr *service.PaymentError
	s.Require().True(errors.As(err, &pErr))
	s.Require().Equal("REJECT_CARD_COMPANY", pErr.Code)
	s.Require().False(pErr.Retryable)

	s.Require().Equal("PENDING", s.paymentStatus(draft.OrderID),
		"draft must stay PENDING so the user can retry with a fresh payment key")

	// A retry after the rejection can still succeed.
	s.Toss.ConfirmError = nil
	confirmed := s.confirmDraft(draft)
	s.Require().Equal(domain.PaymentStatusDone, confirmed.Status)
}

func (s *IntegrationTestSuite) TestConfirmPayment_PersistenceFailureIsRetryableHazard() {
	s.seedProduct("prod-1", "Sticker pack", 15000)
	draft := s.createDraft("prod-1", 15000, nil)

	svc := s.newServiceWith(s.Gateway, &brokenOutboxRepo{s.OutboxRepo})

	_, err := svc.Confirm(s.Ctx, "pk_"+draft.OrderID, draft.OrderID, 15000)
	s.Require().Error(err)

	var pErr *service.PaymentError
	s.Require().True(errors.As(err, &pErr))
	s.Require().Equal(service.CodePostConfirmPersistence, pErr.Code)
	s.Require().True(pErr.Retryable, "funds are captured upstream, the caller must be told to retry")

	s.Require().Equal(int32(1), s.Toss.ConfirmCalls.Load(), "funds were captured before the local failure")
	s.Require().Equal("PENDING", s.paymentStatus(draft.OrderID),
		"the whole local transaction rolls back, leaving the row for reconciliation")
}

func (s *IntegrationTestSuite) TestConfirmPayment_GatewayTimeoutIsRetryable() {
	s.seedProduct("prod-1", "Sticker pack", 15000)
	draft := s.createDraft("prod-1", 15000, nil)

	s.Toss.ConfirmDelay = 500 * time.Millisecond

	gateway := toss.NewClient(toss.Config{
		BaseURL:   s.Toss.server.URL,
		SecretKey: "test_sk",
		Timeout:   100 * time.Millisecond,
	}, zap.NewNop())
	svc := s.newServiceWith(gateway, s.OutboxRepo)

	_, err := svc.Confirm(s.Ctx, "pk_"+draft.OrderID, draft.OrderID, 15000)
	s.Require().Error(err)

	var pErr *service.PaymentError
	s.Require().True(errors.As(err, &pErr))
	s.Require().Equal(service.CodeGatewayTimeout, pErr.Code)
	s.Require().True(pErr.Retryable, "the outcome at the gateway is unknown, the caller may retry")

	s.Require().Equal("PENDING", s.paymentStatus(draft.OrderID),
		"an indeterminate gateway call must not move local state")
}

func (s *IntegrationTestSuite) TestConfirmPayment_CanceledOrder() {
	s.seedProduct("prod-1", "Sticker pack", 15000)
	draft := s.createDraft("prod-1", 15000, nil)
	confirmed := s.confirmDraft(draft)

	err := s.PaymentService.Cancel(s.Ctx, confirmed.PaymentKey, "changed my mind")
	s.Require().NoError(err)

	_, err = s.PaymentService.Confirm(s.Ctx, confirmed.PaymentKey, draft.OrderID, 15000)
	s.Require().Error(err)

	var pErr *service.PaymentError
	s.Require().True(errors.As(err, &pErr))
	s.Require().Equal(service.CodeAlreadyCanceled, pErr.Code)
}
