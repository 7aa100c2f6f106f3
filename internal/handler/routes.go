package handler

import (
	"github.com/rembon2016/cts-merchant-sub001/internal/middleware"
	"github.com/rembon2016/cts-merchant-sub001/internal/service"
	"github.com/rembon2016/cts-merchant-sub001/internal/ws"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type Deps struct {
	Sessions   service.SessionService
	Workspaces *service.Workspaces
	Hub        *ws.Hub
	Logger     *zap.Logger
}

func SetupRoutes(app *fiber.App, d Deps) {
	var events Publisher
	if d.Hub != nil {
		events = d.Hub
	}
	sessionHandler := NewSessionHandler(d.Sessions)
	catalogHandler := NewCatalogHandler(d.Workspaces, events)
	cartHandler := NewCartHandler(d.Workspaces, events, d.Logger)
	checkoutHandler := NewCheckoutHandler(d.Workspaces, events)

	api := app.Group("/api/v1")

	// ============ PUBLIC ROUTES ============
	api.Post("/session", sessionHandler.Open)

	// ============ SESSION ROUTES ============
	protected := api.Group("", middleware.RequireSession(d.Sessions))

	protected.Put("/session/branch", sessionHandler.SwitchBranch)
	protected.Delete("/session", sessionHandler.Close)
	protected.Post("/route", cartHandler.RouteChange)

	// Catalog
	protected.Get("/catalog/products", catalogHandler.GetProducts)
	protected.Get("/catalog/products/more", catalogHandler.LoadMoreProducts)
	protected.Get("/catalog/products/:id", catalogHandler.GetProduct)
	protected.Post("/catalog/products", catalogHandler.CreateProduct)
	protected.Put("/catalog/products/:id", catalogHandler.UpdateProduct)
	protected.Delete("/catalog/products/:id", catalogHandler.DeleteProduct)
	protected.Get("/catalog/categories", catalogHandler.GetCategories)
	protected.Post("/catalog/categories", catalogHandler.CreateCategory)
	protected.Put("/catalog/categories/:id", catalogHandler.UpdateCategory)
	protected.Delete("/catalog/categories/:id", catalogHandler.DeleteCategory)
	protected.Get("/catalog/:kind", catalogHandler.GetReferences)

	// Cart
	protected.Get("/cart", cartHandler.GetCart)
	protected.Post("/cart", cartHandler.AddToCart)
	protected.Put("/cart/selected", cartHandler.SetSelected)
	protected.Post("/cart/voucher", cartHandler.CheckVoucher)
	protected.Patch("/cart/items/:id", cartHandler.UpdateItem)
	protected.Delete("/cart/items/:id", cartHandler.DeleteItem)
	protected.Delete("/cart/:id", cartHandler.ClearCart)

	// Checkout
	protected.Get("/checkout/payment-methods", checkoutHandler.GetPaymentMethods)
	protected.Get("/checkout/settings", checkoutHandler.GetSettings)
	protected.Get("/checkout/preview", checkoutHandler.Preview)
	protected.Post("/checkout", checkoutHandler.SaveOrder)
	protected.Get("/transactions/:id", checkoutHandler.GetTransaction)

	// WebSocket Route
	if d.Hub != nil {
		app.Get("/ws", middleware.RequireSession(d.Sessions), UpgradeWS, ServeWS(d.Hub))
	}
}
