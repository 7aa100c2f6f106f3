package handler

import (
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/rembon2016/cts-merchant-sub001/internal/api"
	"github.com/rembon2016/cts-merchant-sub001/internal/cart"
	"github.com/rembon2016/cts-merchant-sub001/internal/catalog"
	"github.com/rembon2016/cts-merchant-sub001/internal/checkout"
	"github.com/rembon2016/cts-merchant-sub001/internal/fetch"
	"github.com/rembon2016/cts-merchant-sub001/internal/middleware"
	"github.com/rembon2016/cts-merchant-sub001/internal/repository"
	"github.com/rembon2016/cts-merchant-sub001/internal/service"
	"github.com/rembon2016/cts-merchant-sub001/internal/ws"
	"github.com/rembon2016/cts-merchant-sub001/pkg/formenc"
	"github.com/rembon2016/cts-merchant-sub001/pkg/validator"

	"github.com/gofiber/fiber/v2"
)

// Publisher pushes store events to the session's websocket clients.
type Publisher interface {
	Publish(sessionID string, ev ws.Event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, ws.Event) {}

func publisherOrNop(p Publisher) Publisher {
	if p == nil {
		return nopPublisher{}
	}
	return p
}

func workspace(c *fiber.Ctx, workspaces *service.Workspaces) *service.Workspace {
	return workspaces.Get(c.UserContext(), middleware.SessionID(c), middleware.BranchID(c))
}

func parseID(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}

// respondError maps store and backend errors onto a status and an {"error": msg} body.
func respondError(c *fiber.Ctx, err error) error {
	status, msg := fiber.StatusInternalServerError, "Internal Server Error"

	var apiErr *api.Error
	var statusErr *fetch.StatusError
	switch {
	case errors.Is(err, validator.ErrValidation),
		errors.Is(err, cart.ErrVoucherRequired),
		errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, checkout.ErrEmptyCart):
		status, msg = fiber.StatusBadRequest, err.Error()
	case errors.Is(err, catalog.ErrProductNotFound),
		errors.Is(err, checkout.ErrTransactionNotFound),
		errors.Is(err, cart.ErrItemNotFound),
		errors.Is(err, repository.ErrSessionNotFound):
		status, msg = fiber.StatusNotFound, err.Error()
	case errors.Is(err, fetch.ErrInFlight):
		status, msg = fiber.StatusConflict, "A request is already in progress"
	case errors.Is(err, fetch.ErrTimeout):
		status, msg = fiber.StatusGatewayTimeout, fetch.MsgTimeout
	case errors.Is(err, fetch.ErrNetwork):
		status, msg = fiber.StatusBadGateway, fetch.MsgNetwork
	case errors.As(err, &apiErr):
		status, msg = upstreamStatus(apiErr.Status), apiErr.Error()
		if len(apiErr.Errors) > 0 {
			return c.Status(status).JSON(fiber.Map{"error": msg, "errors": apiErr.Errors})
		}
	case errors.As(err, &statusErr):
		status, msg = upstreamStatus(statusErr.Status), statusErr.Error()
	}
	return c.Status(status).JSON(fiber.Map{"error": msg})
}

// upstreamStatus passes client errors through and reports backend failures as a bad gateway.
func upstreamStatus(status int) int {
	if status >= 400 && status < 500 {
		return status
	}
	return fiber.StatusBadGateway
}

// parseForm reads a JSON body, or a multipart body whose "payload" field holds the JSON
// and whose "image" part is the upload.
func parseForm(c *fiber.Ctx, dst any) (*formenc.File, error) {
	if !strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		return nil, c.BodyParser(dst)
	}

	if payload := c.FormValue("payload"); payload != "" {
		if err := json.Unmarshal([]byte(payload), dst); err != nil {
			return nil, err
		}
	}
	fh, err := c.FormFile("image")
	if err != nil {
		return nil, nil
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return &formenc.File{
		Name:        fh.Filename,
		ContentType: fh.Header.Get(fiber.HeaderContentType),
		Data:        data,
	}, nil
}
