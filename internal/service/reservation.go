package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/raffle-ticket-sales/internal/idempotency"
	"github.com/iliyamo/raffle-ticket-sales/internal/metrics"
	"github.com/iliyamo/raffle-ticket-sales/internal/model"
	"github.com/iliyamo/raffle-ticket-sales/internal/repository"
)

// ReservationService moves a batch of available tickets to pending for one
// buyer.  The batch commits as a whole or not at all.
type ReservationService struct {
	tx       TxManager
	tickets  TicketStore
	buyers   BuyerStore
	sellers  SellerStore
	notifier Notifier
	opts     options
}

func NewReservationService(tx TxManager, tickets TicketStore, buyers BuyerStore, sellers SellerStore, notifier Notifier, opts ...Option) *ReservationService {
	if tx == nil || tickets == nil || buyers == nil || sellers == nil {
		panic("nil dependency passed to NewReservationService")
	}
	return &ReservationService{
		tx:       tx,
		tickets:  tickets,
		buyers:   buyers,
		sellers:  sellers,
		notifier: notifier,
		opts:     buildOptions(opts),
	}
}

type BuyerInput struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

// ReserveInput is one checkout submitted by a seller.  SellerEmail comes
// from the verified identity, never from the request body.
type ReserveInput struct {
	SellerEmail    string
	Buyer          BuyerInput
	TicketNumbers  []string
	ProofReference string
}

type ReserveResult struct {
	BuyerID       string    `json:"buyer_id"`
	TicketNumbers []string  `json:"ticket_numbers"`
	ReservedAt    time.Time `json:"reserved_at"`
	Message       string    `json:"message"`
}

// Reserve validates in, resolves the seller and then, in one transaction,
// creates the buyer and marks every requested ticket pending.  The whole
// batch is refused when any ticket is missing or no longer available.
func (s *ReservationService) Reserve(ctx context.Context, in ReserveInput) (res ReserveResult, err error) {
	started := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = KindOf(err).String()
		}
		metrics.ObserveReservation(result, len(res.TicketNumbers), started)
	}()

	numbers, invalid := normalizeNumbers(in.TicketNumbers, s.opts.numberWidth)
	switch {
	case len(invalid) > 0:
		e := validation("invalid_ticket_number", "ticket numbers must be numeric and at most "+
			fmt.Sprint(s.opts.numberWidth)+" digits")
		e.Details = invalid
		return ReserveResult{}, e
	case len(numbers) == 0:
		return ReserveResult{}, validation("ticket_numbers_required", "at least one ticket number is required")
	}
	proof := strings.TrimSpace(in.ProofReference)
	if proof == "" {
		return ReserveResult{}, validation("proof_reference_required", "a payment proof must be uploaded first")
	}
	buyerName := strings.TrimSpace(in.Buyer.Name)
	if buyerName == "" {
		return ReserveResult{}, validation("buyer_name_required", "buyer name is required")
	}
	if strings.TrimSpace(in.SellerEmail) == "" {
		return ReserveResult{}, validation("seller_identity_required", "caller identity carries no e-mail")
	}

	seller, err := s.sellers.GetByEmail(ctx, in.SellerEmail)
	if errors.Is(err, repository.ErrNotFound) {
		return ReserveResult{}, notFound("seller_not_found", "no seller is registered for this account", nil)
	}
	if err != nil {
		return ReserveResult{}, dependency("lookup seller", err)
	}

	now := s.opts.now()
	buyer := &model.Buyer{
		ID:        uuid.NewString(),
		Name:      buyerName,
		Phone:     strings.TrimSpace(in.Buyer.Phone),
		CreatedAt: now,
	}
	if email := strings.ToLower(strings.TrimSpace(in.Buyer.Email)); email != "" {
		buyer.Email = &email
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		locked, err := s.tickets.LockByNumbers(ctx, numbers)
		if err != nil {
			return fmt.Errorf("lock tickets: %w", err)
		}
		byNumber := make(map[string]model.Ticket, len(locked))
		for _, t := range locked {
			byNumber[t.Number] = t
		}
		var missing, unavailable []string
		for _, n := range numbers {
			t, ok := byNumber[n]
			switch {
			case !ok:
				missing = append(missing, n)
			case !t.Status.CanTransition(model.TicketPending):
				unavailable = append(unavailable, n)
			}
		}
		if len(missing) > 0 {
			return notFound("ticket_not_found", "some ticket numbers do not exist", missing)
		}
		if len(unavailable) > 0 {
			return conflict("ticket_unavailable", "some tickets were already sold, choose other numbers", unavailable)
		}

		if err := s.buyers.Create(ctx, buyer); err != nil {
			return fmt.Errorf("create buyer: %w", err)
		}
		return s.tickets.MarkPending(ctx, numbers, repository.PendingFields{
			BuyerID:        buyer.ID,
			BuyerName:      buyer.Name,
			BuyerEmail:     buyer.Email,
			SellerName:     seller.Name,
			SellerCPF:      seller.CPF,
			ProofReference: proof,
			ReservedAt:     now,
		})
	})
	if err != nil {
		return ReserveResult{}, dependency("reserve tickets", err)
	}

	ev := s.opts.logger.Info().
		Str("buyer_id", buyer.ID).
		Str("seller_cpf", seller.CPF).
		Strs("tickets", numbers)
	if key, ok := idempotency.GetKey(ctx); ok {
		ev = ev.Str("idempotency_key", key)
	}
	ev.Msg("tickets reserved")

	if buyer.Email != nil {
		s.opts.notify(ctx, s.notifier, model.Notification{
			Email:   *buyer.Email,
			Name:    buyer.Name,
			Tickets: numbers,
			Outcome: model.OutcomeReceived,
		})
	}

	return ReserveResult{
		BuyerID:       buyer.ID,
		TicketNumbers: numbers,
		ReservedAt:    now,
		Message:       fmt.Sprintf("%d ticket(s) reserved for %s, awaiting payment confirmation", len(numbers), buyer.Name),
	}, nil
}

// AvailableNumbers lists the numbers that can still be reserved.
func (s *ReservationService) AvailableNumbers(ctx context.Context) ([]string, error) {
	tickets, err := s.tickets.ListByStatus(ctx, model.TicketAvailable)
	if err != nil {
		return nil, dependency("list available tickets", err)
	}
	numbers := make([]string, 0, len(tickets))
	for _, t := range tickets {
		numbers = append(numbers, t.Number)
	}
	return numbers, nil
}

// SellerTickets returns the tickets sold by the seller registered under
// sellerEmail, in any status.
func (s *ReservationService) SellerTickets(ctx context.Context, sellerEmail string) ([]model.Ticket, error) {
	seller, err := s.sellers.GetByEmail(ctx, sellerEmail)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("seller_not_found", "no seller is registered for this account", nil)
	}
	if err != nil {
		return nil, dependency("lookup seller", err)
	}
	tickets, err := s.tickets.ListBySellerCPF(ctx, seller.CPF)
	if err != nil {
		return nil, dependency("list seller tickets", err)
	}
	return tickets, nil
}
