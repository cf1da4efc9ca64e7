package controllers

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/PayFox/app/repository"
	"github.com/ManuelReschke/PayFox/internal/pkg/allocator"
	"github.com/ManuelReschke/PayFox/internal/pkg/payment"
)

var (
	paymentService *payment.Service
	validate       = validator.New()
)

// InitInvoiceController wires the payment service into the handlers.
func InitInvoiceController(svc *payment.Service) {
	paymentService = svc
}

type createInvoiceRequest struct {
	UserID    string `json:"user_id" validate:"required,max=64"`
	MessageID string `json:"message_id" validate:"omitempty,max=64"`
	ChannelID string `json:"channel_id" validate:"omitempty,max=64"`
}

// HandleCreateInvoice creates a uniquely-priced invoice and starts monitoring it.
// POST /api/v1/invoices
func HandleCreateInvoice(c *fiber.Ctx) error {
	var req createInvoiceRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid JSON body"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": err.Error()})
	}

	invoice, err := paymentService.CreateInvoice(c.Context(), payment.CreateInvoiceRequest{
		UserID:    req.UserID,
		MessageID: req.MessageID,
		ChannelID: req.ChannelID,
	})
	if err != nil {
		var cooldown *payment.CooldownRejectedError
		switch {
		case errors.As(err, &cooldown):
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":         "cooldown_rejected",
				"message":       cooldown.Error(),
				"retry_after_s": int(cooldown.Remaining.Seconds()),
			})
		case errors.Is(err, allocator.ErrAllocationExhausted):
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "allocation_exhausted", "message": "No unique amount available, try again later"})
		case errors.Is(err, repository.ErrDuplicateTransaction):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "duplicate_transaction", "message": "Transaction id collision, try again"})
		default:
			log.Errorf("[API] create invoice failed: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to create invoice"})
		}
	}

	return c.Status(fiber.StatusCreated).JSON(invoice)
}

// HandleInspectTransaction returns a transaction with its audit trail.
// GET /api/v1/transactions/:id
func HandleInspectTransaction(c *fiber.Ctx) error {
	view, err := paymentService.Inspect(c.Context(), c.Params("id"))
	if err != nil {
		if errors.Is(err, payment.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Transaction not found"})
		}
		log.Errorf("[API] inspect failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load transaction"})
	}
	return c.JSON(view)
}

// HandleCancelTransaction cancels a pending transaction.
// POST /api/v1/transactions/:id/cancel
func HandleCancelTransaction(c *fiber.Ctx) error {
	actor := c.Get("X-Admin-Actor", "admin")
	err := paymentService.Cancel(c.Context(), c.Params("id"), actor)
	if err != nil {
		switch {
		case errors.Is(err, payment.ErrNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Transaction not found"})
		case errors.Is(err, repository.ErrInvalidStateTransition):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "invalid_state", "message": "Transaction is not pending"})
		default:
			log.Errorf("[API] cancel failed: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to cancel transaction"})
		}
	}
	return c.JSON(fiber.Map{"message": "Transaction cancelled"})
}

// HandleResendKey re-delivers a completed transaction's product key.
// POST /api/v1/transactions/:id/resend-key
func HandleResendKey(c *fiber.Ctx) error {
	actor := c.Get("X-Admin-Actor", "admin")
	err := paymentService.ResendKey(c.Context(), c.Params("id"), actor)
	if err != nil {
		switch {
		case errors.Is(err, payment.ErrNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Transaction not found"})
		case errors.Is(err, payment.ErrNoProductKey):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "no_product_key", "message": "Transaction has no product key"})
		default:
			log.Errorf("[API] resend key failed: %v", err)
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "notification_failed", "message": "Failed to deliver product key"})
		}
	}
	return c.JSON(fiber.Map{"message": "Product key resent"})
}
