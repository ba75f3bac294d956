package tests

import (
	"errors"

	"github.com/kyukim/payment-service/internal/domain"
	"github.com/kyukim/payment-service/internal/service"
)

func (s *IntegrationTestSuite) TestCreateDraft_Success() {
	s.seedProduct("prod-1", "Sticker pack", 15000)

	userID := "user-42"
	draft := s.createDraft("prod-1", 15000, &userID)

	s.Require().NotEmpty(draft.OrderID)
	s.Require().Equal(domain.PaymentStatusPending, draft.Status)
	s.Require().Equal(domain.DraftPaymentKey(draft.OrderID), draft.PaymentKey)

	s.Require().Equal("PENDING", s.paymentStatus(draft.OrderID))
}

func (s *IntegrationTestSuite) TestCreateDraft_AmountMismatch() {
	s.seedProduct("prod-1", "Sticker pack", 15000)

	_, err := s.PaymentService.CreateDraft(s.Ctx, service.CreateDraftInput{
		ProductID: "prod-1",
		Amount:    100,
	})
	s.Require().Error(err)

	var pErr *service.PaymentError
	s.Require().True(errors.As(err, &pErr))
	s.Require().Equal(service.CodeAmountMismatch, pErr.Code)

	var count int
	err = s.DbPool.QueryRow(s.Ctx, `SELECT count(*) FROM payments`).Scan(&count)
	s.Require().NoError(err)
	s.Require().Zero(count, "no draft row should exist after a rejected amount")
}

func (s *IntegrationTestSuite) TestCreateDraft_ProductNotFound() {
	_, err := s.PaymentService.CreateDraft(s.Ctx, service.CreateDraftInput{
		ProductID: "no-such-product",
		Amount:    15000,
	})
	s.Require().Error(err)

	var pErr *service.PaymentError
	s.Require().True(errors.As(err, &pErr))
	s.Require().Equal(service.CodeProductNotFound, pErr.Code)
}

func (s *IntegrationTestSuite) TestCreateDraft_DuplicateOrder() {
	s.seedProduct("prod-1", "Sticker pack", 15000)

	draft := s.createDraft("prod-1", 15000, nil)

	_, err := s.PaymentService.CreateDraft(s.Ctx, service.CreateDraftInput{
		OrderID:   draft.OrderID,
		ProductID: "prod-1",
		Amount:    15000,
	})
	s.Require().Error(err)

	var pErr *service.PaymentError
	s.Require().True(errors.As(err, &pErr))
	s.Require().Equal(service.CodeOrderAlreadyExists, pErr.Code)
}
