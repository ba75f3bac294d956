package tests

import (
	"errors"
	"fmt"

	"github.com/kyukim/payment-service/internal/service"
)

func (s *IntegrationTestSuite) TestHistory_NewestFirst() {
	s.seedProduct("prod-1", "Sticker pack", 15000)

	userID := "user-1"
	var orderIDs []string
	for i := 0; i < 3; i++ {
		draft := s.createDraft("prod-1", 15000, &userID)
		orderIDs = append(orderIDs, draft.OrderID)
	}

	payments, err := s.PaymentService.History(s.Ctx, &userID, 10, 0)
	s.Require().NoError(err)
	s.Require().Len(payments, 3)

	for i := 1; i < len(payments); i++ {
		s.Require().False(
			payments[i-1].CreatedAt.Before(payments[i].CreatedAt),
			"history must be ordered newest first",
		)
	}

	s.Require().Equal(orderIDs[2], payments[0].OrderID)
}

func (s *IntegrationTestSuite) TestHistory_FiltersByUser() {
	s.seedProduct("prod-1", "Sticker pack", 15000)

	alice := "alice"
	bob := "bob"
	s.createDraft("prod-1", 15000, &alice)
	s.createDraft("prod-1", 15000, &alice)
	s.createDraft("prod-1", 15000, &bob)
	s.createDraft("prod-1", 15000, nil)

	payments, err := s.PaymentService.History(s.Ctx, &alice, 10, 0)
	s.Require().NoError(err)
	s.Require().Len(payments, 2)
	for _, p := range payments {
		s.Require().NotNil(p.UserID)
		s.Require().Equal(alice, *p.UserID)
	}

	all, err := s.PaymentService.History(s.Ctx, nil, 10, 0)
	s.Require().NoError(err)
	s.Require().Len(all, 4)
}

func (s *IntegrationTestSuite) TestHistory_LimitAndOffset() {
	s.seedProduct("prod-1", "Sticker pack", 15000)

	userID := "user-1"
	for i := 0; i < 5; i++ {
		s.createDraft("prod-1", 15000, &userID)
	}

	page1, err := s.PaymentService.History(s.Ctx, &userID, 2, 0)
	s.Require().NoError(err)
	s.Require().Len(page1, 2)

	page2, err := s.PaymentService.History(s.Ctx, &userID, 2, 2)
	s.Require().NoError(err)
	s.Require().Len(page2, 2)
	s.Require().NotEqual(page1[0].OrderID, page2[0].OrderID)

	// Zero and negative bounds fall back to defaults instead of erroring.
	defaulted, err := s.PaymentService.History(s.Ctx, &userID, 0, -5)
	s.Require().NoError(err)
	s.Require().Len(defaulted, 5)
}

func (s *IntegrationTestSuite) TestHistory_LimitIsClamped() {
	s.seedProduct("prod-1", "Sticker pack", 15000)
	s.createDraft("prod-1", 15000, nil)

	// An absurd limit must not turn into an unbounded query.
	payments, err := s.PaymentService.History(s.Ctx, nil, 1_000_000, 0)
	s.Require().NoError(err)
	s.Require().Len(payments, 1)
}

func (s *IntegrationTestSuite) TestGetPayment() {
	s.seedProduct("prod-1", "Sticker pack", 15000)
	draft := s.createDraft("prod-1", 15000, nil)
	confirmed := s.confirmDraft(draft)

	payment, err := s.PaymentService.GetPayment(s.Ctx, confirmed.PaymentKey)
	s.Require().NoError(err)
	s.Require().Equal(draft.OrderID, payment.OrderID)
	s.Require().Equal("DONE", string(payment.Status))

	_, err = s.PaymentService.GetPayment(s.Ctx, fmt.Sprintf("pk_%s", "missing"))
	s.Require().Error(err)

	var pErr *service.PaymentError
	s.Require().True(errors.As(err, &pErr))
	s.Require().Equal(service.CodePaymentNotFound, pErr.Code)
}
