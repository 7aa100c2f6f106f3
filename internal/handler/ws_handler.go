package handler

import (
	"github.com/rembon2016/cts-merchant-sub001/internal/middleware"
	"github.com/rembon2016/cts-merchant-sub001/internal/ws"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

// UpgradeWS rejects plain HTTP requests on the websocket route. It runs after
// RequireSession so the connection inherits the session locals.
func UpgradeWS(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return c.SendStatus(fiber.StatusUpgradeRequired)
}

// ServeWS keeps the connection registered with the hub until the client goes away.
func ServeWS(hub *ws.Hub) fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		sid, _ := c.Locals(middleware.LocalSessionID).(string)
		client := &ws.Client{SessionID: sid, Conn: c}
		hub.Register <- client
		defer func() { hub.Unregister <- client }()

		for {
			if _, _, err := c.ReadMessage(); err != nil {
				break
			}
		}
	})
}
