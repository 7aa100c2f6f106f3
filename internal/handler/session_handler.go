package handler

import (
	"errors"

	"github.com/rembon2016/cts-merchant-sub001/internal/middleware"
	"github.com/rembon2016/cts-merchant-sub001/internal/service"
	"github.com/rembon2016/cts-merchant-sub001/pkg/validator"

	"github.com/gofiber/fiber/v2"
)

type SessionHandler struct {
	sessions service.SessionService
}

func NewSessionHandler(sessions service.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

type switchBranchRequest struct {
	BranchID int64 `json:"branch_id"`
}

// Open exchanges backend credentials for a BFF session token
// POST /api/v1/session
func (h *SessionHandler) Open(c *fiber.Ctx) error {
	var req service.OpenSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid JSON"})
	}

	res, err := h.sessions.Open(c.UserContext(), req)
	if err != nil {
		if errors.Is(err, validator.ErrValidation) {
			return c.Status(400).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(500).JSON(fiber.Map{"error": "Failed to open session"})
	}
	return c.Status(201).JSON(res)
}

// SwitchBranch moves the session to another branch and returns a new token
// PUT /api/v1/session/branch
func (h *SessionHandler) SwitchBranch(c *fiber.Ctx) error {
	var req switchBranchRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid JSON"})
	}

	res, err := h.sessions.SwitchBranch(c.UserContext(), middleware.SessionID(c), req.BranchID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(res)
}

// Close ends the session
// DELETE /api/v1/session
func (h *SessionHandler) Close(c *fiber.Ctx) error {
	if err := h.sessions.Close(c.UserContext(), middleware.SessionID(c)); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Session closed"})
}
