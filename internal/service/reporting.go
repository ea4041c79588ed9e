package service

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/raffle-ticket-sales/internal/model"
)

type SellerSummary struct {
	SellerID        uint64          `json:"seller_id"`
	Name            string          `json:"name"`
	CPF             string          `json:"cpf"`
	AmountCollected decimal.Decimal `json:"amount_collected"`
	Target          decimal.Decimal `json:"target"`
	TicketsSold     int             `json:"tickets_sold"`
}

type GlobalSummary struct {
	TotalCollected    decimal.Decimal `json:"total_collected"`
	TotalTicketsSold  int             `json:"total_tickets_sold"`
	ActiveSellerCount int             `json:"active_seller_count"`
}

type HistoryEntry struct {
	Number     string             `json:"number"`
	Status     model.TicketStatus `json:"status"`
	SellerName string             `json:"seller_name"`
	SellerCPF  string             `json:"seller_cpf"`
	BuyerName  string             `json:"buyer_name"`
	BuyerEmail string             `json:"buyer_email,omitempty"`
	ReservedAt *time.Time         `json:"reserved_at"`
	PaidAt     *time.Time         `json:"paid_at"`
}

// ReportingService derives sales figures from the ticket table on every
// call.  Only sellers flagged as official in the roster are reported.
type ReportingService struct {
	tickets   TicketStore
	sellers   SellerStore
	unitPrice decimal.Decimal
	allotment int
}

func NewReportingService(tickets TicketStore, sellers SellerStore, unitPrice decimal.Decimal, allotment int) *ReportingService {
	if tickets == nil || sellers == nil {
		panic("nil dependency passed to NewReportingService")
	}
	return &ReportingService{tickets: tickets, sellers: sellers, unitPrice: unitPrice, allotment: allotment}
}

// SellerSummary returns one row per official seller, highest amount
// collected first and then by name.  Sellers with no sale are included.
func (s *ReportingService) SellerSummary(ctx context.Context) ([]SellerSummary, error) {
	sellers, err := s.sellers.ListOfficial(ctx)
	if err != nil {
		return nil, dependency("list sellers", err)
	}
	paid, err := s.tickets.ListByStatus(ctx, model.TicketPaid)
	if err != nil {
		return nil, dependency("list paid tickets", err)
	}
	sold := make(map[string]int)
	for _, t := range paid {
		if cpf := deref(t.SellerCPF); cpf != "" {
			sold[cpf]++
		}
	}

	target := s.unitPrice.Mul(decimal.NewFromInt(int64(s.allotment)))
	out := make([]SellerSummary, 0, len(sellers))
	for _, sl := range sellers {
		n := sold[sl.CPF]
		out = append(out, SellerSummary{
			SellerID:        sl.ID,
			Name:            sl.Name,
			CPF:             sl.CPF,
			AmountCollected: s.unitPrice.Mul(decimal.NewFromInt(int64(n))),
			Target:          target,
			TicketsSold:     n,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if c := out[i].AmountCollected.Cmp(out[j].AmountCollected); c != 0 {
			return c > 0
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// GlobalSummary totals SellerSummary.
func (s *ReportingService) GlobalSummary(ctx context.Context) (GlobalSummary, error) {
	rows, err := s.SellerSummary(ctx)
	if err != nil {
		return GlobalSummary{}, err
	}
	g := GlobalSummary{TotalCollected: decimal.Zero}
	for _, r := range rows {
		g.TotalCollected = g.TotalCollected.Add(r.AmountCollected)
		g.TotalTicketsSold += r.TicketsSold
		if r.TicketsSold > 0 {
			g.ActiveSellerCount++
		}
	}
	return g, nil
}

// DetailedHistory lists every pending or paid ticket, most recent
// reservation first.  Tickets without a reservation time come last.
func (s *ReportingService) DetailedHistory(ctx context.Context) ([]HistoryEntry, error) {
	tickets, err := s.tickets.ListByStatus(ctx, model.TicketPending, model.TicketPaid)
	if err != nil {
		return nil, dependency("list sold tickets", err)
	}
	sort.SliceStable(tickets, func(i, j int) bool {
		a, b := tickets[i].ReservedAt, tickets[j].ReservedAt
		switch {
		case a == nil && b == nil:
		case a == nil || b == nil:
			return a != nil
		case !a.Equal(*b):
			return a.After(*b)
		}
		return tickets[i].Number < tickets[j].Number
	})

	out := make([]HistoryEntry, 0, len(tickets))
	for _, t := range tickets {
		out = append(out, HistoryEntry{
			Number:     t.Number,
			Status:     t.Status,
			SellerName: deref(t.SellerName),
			SellerCPF:  deref(t.SellerCPF),
			BuyerName:  deref(t.BuyerName),
			BuyerEmail: deref(t.BuyerEmail),
			ReservedAt: t.ReservedAt,
			PaidAt:     t.PaidAt,
		})
	}
	return out, nil
}
