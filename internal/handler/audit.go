package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/raffle-ticket-sales/internal/model"
	"github.com/iliyamo/raffle-ticket-sales/internal/service"
)

type Settler interface {
	Settle(ctx context.Context, in service.SettleInput) (service.SettleResult, error)
	PendingTickets(ctx context.Context) ([]model.Ticket, error)
}

type Reporter interface {
	SellerSummary(ctx context.Context) ([]service.SellerSummary, error)
	GlobalSummary(ctx context.Context) (service.GlobalSummary, error)
	DetailedHistory(ctx context.Context) ([]service.HistoryEntry, error)
}

// TreasuryHandler serves audit and reporting endpoints.
type TreasuryHandler struct {
	Settlements Settler
	Reports     Reporter
	Log         zerolog.Logger
}

func NewTreasuryHandler(s Settler, r Reporter, log zerolog.Logger) *TreasuryHandler {
	if s == nil || r == nil {
		panic("nil dependency passed to NewTreasuryHandler")
	}
	return &TreasuryHandler{Settlements: s, Reports: r, Log: log}
}

type settleReq struct {
	TicketNumbers []string `json:"ticket_numbers"`
	Decision      string   `json:"decision"`
}

// Settle handles POST /v1/audit/settlements.  Replaying a batch is safe:
// tickets already settled come back under "skipped".
func (h *TreasuryHandler) Settle(c echo.Context) error {
	var req settleReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "invalid_body"})
	}
	res, err := h.Settlements.Settle(c.Request().Context(), service.SettleInput{
		TicketNumbers: req.TicketNumbers,
		Decision:      req.Decision,
	})
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Pending handles GET /v1/audit/pending.
func (h *TreasuryHandler) Pending(c echo.Context) error {
	tickets, err := h.Settlements.PendingTickets(c.Request().Context())
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"count": len(tickets), "tickets": tickets})
}

// SellerSummary handles GET /v1/reports/sellers.
func (h *TreasuryHandler) SellerSummary(c echo.Context) error {
	rows, err := h.Reports.SellerSummary(c.Request().Context())
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"sellers": rows})
}

// GlobalSummary handles GET /v1/reports/summary.
func (h *TreasuryHandler) GlobalSummary(c echo.Context) error {
	g, err := h.Reports.GlobalSummary(c.Request().Context())
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, g)
}

// History handles GET /v1/reports/history.
func (h *TreasuryHandler) History(c echo.Context) error {
	entries, err := h.Reports.DetailedHistory(c.Request().Context())
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"entries": entries})
}
