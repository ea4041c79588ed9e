package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/iliyamo/raffle-ticket-sales/internal/metrics"
	"github.com/iliyamo/raffle-ticket-sales/internal/model"
)

// Decision is the treasury verdict on a batch of pending tickets.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// ParseDecision accepts "approve" or "reject" in any case.
func ParseDecision(s string) (Decision, bool) {
	switch Decision(strings.ToLower(strings.TrimSpace(s))) {
	case DecisionApprove:
		return DecisionApprove, true
	case DecisionReject:
		return DecisionReject, true
	}
	return "", false
}

func (d Decision) target() model.TicketStatus {
	if d == DecisionApprove {
		return model.TicketPaid
	}
	return model.TicketAvailable
}

// Skip reasons reported in SettleResult.
const (
	SkipNotFound      = "not_found"
	SkipNotPending    = "not_pending"
	SkipInvalidNumber = "invalid_number"
)

type SkippedTicket struct {
	Number string             `json:"number"`
	Reason string             `json:"reason"`
	Status model.TicketStatus `json:"status,omitempty"`
}

type SettleInput struct {
	TicketNumbers []string
	Decision      string
}

type SettleResult struct {
	Decision       Decision        `json:"decision"`
	ProcessedCount int             `json:"processed_count"`
	Processed      []string        `json:"processed"`
	Skipped        []SkippedTicket `json:"skipped"`
}

// SettlementService applies treasury decisions to pending tickets.
type SettlementService struct {
	tx       TxManager
	tickets  TicketStore
	notifier Notifier
	opts     options
}

func NewSettlementService(tx TxManager, tickets TicketStore, notifier Notifier, opts ...Option) *SettlementService {
	if tx == nil || tickets == nil {
		panic("nil dependency passed to NewSettlementService")
	}
	return &SettlementService{tx: tx, tickets: tickets, notifier: notifier, opts: buildOptions(opts)}
}

// Settle approves or rejects every pending ticket of the batch in one
// transaction.  Tickets that are missing or not pending are skipped and
// reported, never treated as errors, so replaying a batch is harmless.
// On approve one notification is sent per buyer of the batch.
func (s *SettlementService) Settle(ctx context.Context, in SettleInput) (SettleResult, error) {
	started := time.Now()
	decision, ok := ParseDecision(in.Decision)
	if !ok {
		return SettleResult{}, validation("decision_invalid", `decision must be "approve" or "reject"`)
	}
	numbers, invalid := normalizeNumbers(in.TicketNumbers, s.opts.numberWidth)
	if len(numbers) == 0 && len(invalid) == 0 {
		return SettleResult{}, validation("ticket_numbers_required", "at least one ticket number is required")
	}

	res := SettleResult{Decision: decision, Processed: []string{}, Skipped: []SkippedTicket{}}
	for _, n := range invalid {
		res.Skipped = append(res.Skipped, SkippedTicket{Number: n, Reason: SkipInvalidNumber})
	}

	var notes []model.Notification
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		// reset in case the store retries fn
		res.Processed = res.Processed[:0]
		res.Skipped = res.Skipped[:len(invalid)]
		notes = nil

		locked, err := s.tickets.LockByNumbers(ctx, numbers)
		if err != nil {
			return fmt.Errorf("lock tickets: %w", err)
		}
		byNumber := make(map[string]model.Ticket, len(locked))
		for _, t := range locked {
			byNumber[t.Number] = t
		}

		var moving []model.Ticket
		for _, n := range numbers {
			t, ok := byNumber[n]
			switch {
			case !ok:
				res.Skipped = append(res.Skipped, SkippedTicket{Number: n, Reason: SkipNotFound})
			case !t.Status.CanTransition(decision.target()):
				res.Skipped = append(res.Skipped, SkippedTicket{Number: n, Reason: SkipNotPending, Status: t.Status})
			default:
				moving = append(moving, t)
				res.Processed = append(res.Processed, n)
			}
		}
		if len(moving) == 0 {
			return nil
		}

		switch decision {
		case DecisionApprove:
			if err := s.tickets.MarkPaid(ctx, res.Processed, s.opts.now()); err != nil {
				return fmt.Errorf("mark paid: %w", err)
			}
			notes = groupByBuyer(moving)
		case DecisionReject:
			if err := s.tickets.Release(ctx, res.Processed); err != nil {
				return fmt.Errorf("release tickets: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return SettleResult{}, dependency("settle tickets", err)
	}
	res.ProcessedCount = len(res.Processed)
	metrics.ObserveSettlement(string(decision), len(res.Processed), len(res.Skipped), started)

	s.opts.logger.Info().
		Str("decision", string(decision)).
		Strs("processed", res.Processed).
		Int("skipped", len(res.Skipped)).
		Msg("batch settled")

	if len(notes) > 1 {
		s.opts.logger.Warn().
			Int("buyers", len(notes)).
			Strs("tickets", res.Processed).
			Msg("settled batch spans several buyers")
	}
	for _, n := range notes {
		s.opts.notify(ctx, s.notifier, n)
	}
	return res, nil
}

// groupByBuyer builds one approved notification per buyer, in the order
// the buyers first appear.  Name and e-mail come from the first ticket of
// that buyer carrying them.  Buyers without an e-mail get no notification.
func groupByBuyer(tickets []model.Ticket) []model.Notification {
	index := make(map[string]int)
	var notes []model.Notification
	for _, t := range tickets {
		key := deref(t.BuyerID)
		i, ok := index[key]
		if !ok {
			i = len(notes)
			index[key] = i
			notes = append(notes, model.Notification{Outcome: model.OutcomeApproved})
		}
		n := &notes[i]
		if n.Email == "" && deref(t.BuyerEmail) != "" {
			n.Email = deref(t.BuyerEmail)
			n.Name = deref(t.BuyerName)
		}
		n.Tickets = append(n.Tickets, t.Number)
	}
	out := notes[:0]
	for _, n := range notes {
		if n.Email != "" {
			out = append(out, n)
		}
	}
	return out
}

// PendingTickets lists tickets awaiting a decision, oldest reservation
// first.
func (s *SettlementService) PendingTickets(ctx context.Context) ([]model.Ticket, error) {
	tickets, err := s.tickets.ListByStatus(ctx, model.TicketPending)
	if err != nil {
		return nil, dependency("list pending tickets", err)
	}
	sort.SliceStable(tickets, func(i, j int) bool {
		a, b := tickets[i].ReservedAt, tickets[j].ReservedAt
		switch {
		case a == nil || b == nil:
			return a != nil
		case !a.Equal(*b):
			return a.Before(*b)
		}
		return tickets[i].Number < tickets[j].Number
	})
	return tickets, nil
}
