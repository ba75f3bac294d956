package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/kyukim/payment-service/internal/transport/http/handler"
)

type Handlers struct {
	Payment *handler.PaymentHandler
}

func RegisterRoutes(app *fiber.App, h *Handlers) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.SendString("Payment Service is alive!")
	})

	payments := app.Group("/api/payments")
	payments.Post("/draft", h.Payment.CreateDraft)
	payments.Post("/confirm", h.Payment.Confirm)
	payments.Get("", h.Payment.History)
	payments.Get("/:paymentKey", h.Payment.GetPayment)
	payments.Post("/:paymentKey/cancel", h.Payment.Cancel)
}
