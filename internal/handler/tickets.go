package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/raffle-ticket-sales/internal/idempotency"
	"github.com/iliyamo/raffle-ticket-sales/internal/model"
	"github.com/iliyamo/raffle-ticket-sales/internal/service"
)

// IdempotencyHeader lets a seller retry a reservation without creating a
// second buyer.
const IdempotencyHeader = "Idempotency-Key"

// replayTimeout bounds Complete and Abort, which run detached from the
// request so a client disconnect after commit still records the result.
const replayTimeout = 3 * time.Second

type Reserver interface {
	Reserve(ctx context.Context, in service.ReserveInput) (service.ReserveResult, error)
	AvailableNumbers(ctx context.Context) ([]string, error)
	SellerTickets(ctx context.Context, sellerEmail string) ([]model.Ticket, error)
}

type ReplayStore interface {
	Begin(ctx context.Context, scope, key string) ([]byte, bool, error)
	Complete(ctx context.Context, scope, key string, response []byte) error
	Abort(ctx context.Context, scope, key string) error
}

// SellerHandler serves the seller-facing ticket endpoints.  Routes are
// expected behind JWTAuth and RequireRole(SELLER).
type SellerHandler struct {
	Reservations Reserver
	Replays      ReplayStore
	Log          zerolog.Logger
}

func NewSellerHandler(r Reserver, replays ReplayStore, log zerolog.Logger) *SellerHandler {
	if r == nil || replays == nil {
		panic("nil dependency passed to NewSellerHandler")
	}
	return &SellerHandler{Reservations: r, Replays: replays, Log: log}
}

type reserveReq struct {
	Buyer          service.BuyerInput `json:"buyer"`
	TicketNumbers  []string           `json:"ticket_numbers"`
	ProofReference string             `json:"proof_reference"`
}

// Reserve handles POST /v1/reservations.
func (h *SellerHandler) Reserve(c echo.Context) error {
	id, ok := currentIdentity(c)
	if !ok {
		return unauthorized(c)
	}
	var req reserveReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "invalid_body"})
	}
	ctx := c.Request().Context()

	key := strings.TrimSpace(c.Request().Header.Get(IdempotencyHeader))
	scope := userScope(id)
	if key != "" {
		ctx = idempotency.WithKey(ctx, key)
		cached, started, err := h.Replays.Begin(ctx, scope, key)
		switch {
		case errors.Is(err, idempotency.ErrInProgress):
			return c.JSON(http.StatusConflict, errorBody{Error: "request_in_progress", Message: "a request with this Idempotency-Key is still running"})
		case err != nil:
			// replay protection is best effort
			h.Log.Warn().Err(err).Msg("idempotency store unavailable")
			key = ""
		case !started:
			c.Response().Header().Set("Idempotent-Replayed", "true")
			return c.JSONBlob(http.StatusCreated, cached)
		}
	}

	res, err := h.Reservations.Reserve(ctx, service.ReserveInput{
		SellerEmail:    id.Email,
		Buyer:          req.Buyer,
		TicketNumbers:  req.TicketNumbers,
		ProofReference: req.ProofReference,
	})
	if err != nil {
		if key != "" {
			rctx, cancel := detached(ctx)
			defer cancel()
			if aerr := h.Replays.Abort(rctx, scope, key); aerr != nil {
				h.Log.Warn().Err(aerr).Msg("release idempotency key failed")
			}
		}
		return respondError(c, h.Log, err)
	}

	body, err := json.Marshal(res)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	if key != "" {
		rctx, cancel := detached(ctx)
		defer cancel()
		if err := h.Replays.Complete(rctx, scope, key, body); err != nil {
			h.Log.Warn().Err(err).Msg("store idempotent response failed")
		}
	}
	return c.JSONBlob(http.StatusCreated, body)
}

func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), replayTimeout)
}

// Available handles GET /v1/tickets/available.
func (h *SellerHandler) Available(c echo.Context) error {
	numbers, err := h.Reservations.AvailableNumbers(c.Request().Context())
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"count": len(numbers), "numbers": numbers})
}

// Mine handles GET /v1/me/tickets.
func (h *SellerHandler) Mine(c echo.Context) error {
	id, ok := currentIdentity(c)
	if !ok {
		return unauthorized(c)
	}
	tickets, err := h.Reservations.SellerTickets(c.Request().Context(), id.Email)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"tickets": tickets})
}
