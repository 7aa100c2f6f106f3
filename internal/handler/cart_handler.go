package handler

import (
	"github.com/rembon2016/cts-merchant-sub001/internal/cart"
	"github.com/rembon2016/cts-merchant-sub001/internal/middleware"
	"github.com/rembon2016/cts-merchant-sub001/internal/model"
	"github.com/rembon2016/cts-merchant-sub001/internal/service"
	"github.com/rembon2016/cts-merchant-sub001/internal/ws"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type CartHandler struct {
	workspaces *service.Workspaces
	events     Publisher
	logger     *zap.Logger
}

func NewCartHandler(workspaces *service.Workspaces, events Publisher, logger *zap.Logger) *CartHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CartHandler{workspaces: workspaces, events: publisherOrNop(events), logger: logger}
}

type updateItemRequest struct {
	Quantity *int64 `json:"quantity"`
	Selected *bool  `json:"selected"`
}

type voucherRequest struct {
	Code string `json:"code"`
}

type routeRequest struct {
	Path string `json:"path"`
}

func (h *CartHandler) GetCart(c *fiber.Ctx) error {
	store := workspace(c, h.workspaces).Cart
	if _, err := store.GetCart(c.UserContext()); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"data": store.State()})
}

// AddToCart adds a product to the server cart and returns the reloaded cart
// POST /api/v1/cart
func (h *CartHandler) AddToCart(c *fiber.Ctx) error {
	var item cart.AddItem
	if err := c.BodyParser(&item); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid JSON"})
	}

	store := workspace(c, h.workspaces).Cart
	if _, err := store.AddToCart(c.UserContext(), item); err != nil {
		return respondError(c, err)
	}
	h.publish(c, "item_added")
	return c.Status(201).JSON(fiber.Map{"message": "Added to cart", "data": store.State()})
}

func (h *CartHandler) DeleteItem(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid cart item ID"})
	}

	store := workspace(c, h.workspaces).Cart
	if err := store.DeleteCartItems(c.UserContext(), id); err != nil {
		return respondError(c, err)
	}
	h.publish(c, "item_deleted")
	return c.JSON(fiber.Map{"message": "Cart item deleted", "data": store.State()})
}

func (h *CartHandler) ClearCart(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid cart ID"})
	}

	store := workspace(c, h.workspaces).Cart
	if err := store.ClearCart(c.UserContext(), id); err != nil {
		return respondError(c, err)
	}
	h.publish(c, "cleared")
	return c.JSON(fiber.Map{"message": "Cart cleared", "data": store.State()})
}

// UpdateItem changes a quantity locally and/or toggles the line in the checkout selection
// PATCH /api/v1/cart/items/:id
func (h *CartHandler) UpdateItem(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid cart item ID"})
	}
	var req updateItemRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid JSON"})
	}
	if req.Quantity == nil && req.Selected == nil {
		return c.Status(400).JSON(fiber.Map{"error": "quantity or selected is required"})
	}

	store := workspace(c, h.workspaces).Cart
	if req.Quantity != nil {
		if _, err := store.UpdateLocalCartItem(id, *req.Quantity); err != nil {
			return respondError(c, err)
		}
	}
	if req.Selected != nil {
		if err := store.ToggleSelectedByID(id, *req.Selected); err != nil {
			return respondError(c, err)
		}
	}
	if err := store.PersistSelected(c.UserContext()); err != nil {
		return respondError(c, err)
	}
	h.publish(c, "selection_changed")
	return c.JSON(fiber.Map{"data": store.State()})
}

// SetSelected replaces the checkout selection
// PUT /api/v1/cart/selected
func (h *CartHandler) SetSelected(c *fiber.Ctx) error {
	var items []model.SelectedCartItem
	if err := c.BodyParser(&items); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid JSON"})
	}

	store := workspace(c, h.workspaces).Cart
	store.SetSelected(items)
	if err := store.PersistSelected(c.UserContext()); err != nil {
		return respondError(c, err)
	}
	h.publish(c, "selection_changed")
	return c.JSON(fiber.Map{"data": store.State()})
}

func (h *CartHandler) CheckVoucher(c *fiber.Ctx) error {
	var req voucherRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid JSON"})
	}

	store := workspace(c, h.workspaces).Cart
	if err := store.CheckVoucherDiscount(c.UserContext(), req.Code); err != nil {
		return respondError(c, err)
	}
	st := store.State()
	return c.JSON(fiber.Map{"message": st.Message, "data": st})
}

// RouteChange tells the cart which screen the client moved to. Leaving the cart and
// checkout screens drops the selection.
// POST /api/v1/route
func (h *CartHandler) RouteChange(c *fiber.Ctx) error {
	var req routeRequest
	if err := c.BodyParser(&req); err != nil || req.Path == "" {
		return c.Status(400).JSON(fiber.Map{"error": "path is required"})
	}

	store := workspace(c, h.workspaces).Cart
	before := len(store.Selected())
	store.OnRouteChange(req.Path)
	if before > 0 && len(store.Selected()) == 0 {
		if err := store.PersistSelected(c.UserContext()); err != nil {
			h.logger.Warn("failed to persist cleared selection", zap.String("session_id", middleware.SessionID(c)), zap.Error(err))
		}
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *CartHandler) publish(c *fiber.Ctx, action string) {
	h.events.Publish(middleware.SessionID(c), ws.Event{Type: ws.TypeCart, Action: action})
}
