package handler

import (
	"github.com/rembon2016/cts-merchant-sub001/internal/checkout"
	"github.com/rembon2016/cts-merchant-sub001/internal/middleware"
	"github.com/rembon2016/cts-merchant-sub001/internal/service"
	"github.com/rembon2016/cts-merchant-sub001/internal/ws"

	"github.com/gofiber/fiber/v2"
)

type CheckoutHandler struct {
	workspaces *service.Workspaces
	events     Publisher
}

func NewCheckoutHandler(workspaces *service.Workspaces, events Publisher) *CheckoutHandler {
	return &CheckoutHandler{workspaces: workspaces, events: publisherOrNop(events)}
}

func (h *CheckoutHandler) GetPaymentMethods(c *fiber.Ctx) error {
	methods, err := workspace(c, h.workspaces).Checkout.GetPaymentMethods(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": methods})
}

// GetSettings loads the branch POS settings and stores the tax rate in the session
// GET /api/v1/checkout/settings
func (h *CheckoutHandler) GetSettings(c *fiber.Ctx) error {
	settings, err := workspace(c, h.workspaces).Checkout.GetPosSettings(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": settings})
}

// Preview returns display totals of the persisted selection
// GET /api/v1/checkout/preview
func (h *CheckoutHandler) Preview(c *fiber.Ctx) error {
	totals, err := workspace(c, h.workspaces).Checkout.Preview(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": totals.Display()})
}

// SaveOrder submits the order and returns the route of the new order
// POST /api/v1/checkout
func (h *CheckoutHandler) SaveOrder(c *fiber.Ctx) error {
	var in checkout.SaveOrderInput
	if err := c.BodyParser(&in); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid JSON"})
	}

	w := workspace(c, h.workspaces)
	res, err := w.Checkout.SaveOrder(c.UserContext(), in)
	if err != nil {
		return respondError(c, err)
	}
	h.workspaces.OrderPlaced(c.UserContext(), w)

	h.events.Publish(middleware.SessionID(c), ws.Event{
		Type:    ws.TypeOrder,
		Action:  "created",
		Message: checkout.MsgOrderSaved,
		Data:    fiber.Map{"id": res.Transaction.ID, "invoice": res.Transaction.Invoice, "route": res.Route},
	})
	return c.Status(201).JSON(fiber.Map{"message": checkout.MsgOrderSaved, "data": res})
}

func (h *CheckoutHandler) GetTransaction(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid transaction ID"})
	}
	tx, err := workspace(c, h.workspaces).Checkout.GetTransactionDetail(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": tx})
}
