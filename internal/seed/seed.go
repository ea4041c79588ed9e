// Package seed loads the committee roster and generates the fixed pool of
// raffle tickets, one contiguous block of numbers per official seller.
// Loading is restart-safe: sellers are upserted by CPF, existing ticket
// numbers are left untouched and a roster whose order no longer matches the
// stored tickets is refused.
package seed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/iliyamo/raffle-ticket-sales/internal/model"
	"github.com/iliyamo/raffle-ticket-sales/internal/repository"
)

// batchSize bounds one multi-row INSERT.
const batchSize = 500

// ErrCapacity is returned when the roster needs more numbers than the
// configured width can express.
var ErrCapacity = errors.New("ticket numbers exceed the configured width")

// ErrPlanMismatch is returned when tickets already stored belong to other
// sellers than the plan assigns them to, typically after the roster was
// reordered or a seller was inserted in the middle.
var ErrPlanMismatch = errors.New("existing tickets disagree with the roster plan")

// ReadRoster parses a name,cpf,email CSV.  A first record whose first cell
// is "name" is treated as a header; lines starting with # are comments.
// Errors name the line of the file.  Duplicate CPFs or e-mails are rejected.
func ReadRoster(r io.Reader) ([]model.Seller, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 3
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	var (
		out    []model.Seller
		cpfs   = map[string]int{}
		emails = map[string]int{}
	)
	for first := true; ; first = false {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("roster: %w", err)
		}
		line, _ := cr.FieldPos(0)
		if first && strings.EqualFold(strings.TrimSpace(rec[0]), "name") {
			continue
		}
		s := model.Seller{
			Name:       strings.TrimSpace(rec[0]),
			CPF:        strings.TrimSpace(rec[1]),
			Email:      strings.ToLower(strings.TrimSpace(rec[2])),
			IsOfficial: true,
		}
		if s.Name == "" || s.CPF == "" || s.Email == "" {
			return nil, fmt.Errorf("roster line %d: name, cpf and email are required", line)
		}
		if prev, dup := cpfs[s.CPF]; dup {
			return nil, fmt.Errorf("roster line %d: cpf %s already on line %d", line, s.CPF, prev)
		}
		if prev, dup := emails[s.Email]; dup {
			return nil, fmt.Errorf("roster line %d: email %s already on line %d", line, s.Email, prev)
		}
		cpfs[s.CPF], emails[s.Email] = line, line
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, errors.New("roster is empty")
	}
	return out, nil
}

// Plan assigns allotment sequential numbers to each seller in order,
// starting at first and zero-padded to width.
func Plan(sellerIDs []uint64, allotment, width, first int) ([]repository.TicketSeed, error) {
	if allotment <= 0 || width <= 0 || first < 0 {
		return nil, fmt.Errorf("invalid plan: allotment=%d width=%d first=%d", allotment, width, first)
	}
	capacity := 1
	for i := 0; i < width; i++ {
		capacity *= 10
	}
	if first+len(sellerIDs)*allotment > capacity {
		return nil, fmt.Errorf("%w: %d sellers x %d tickets from %d at width %d",
			ErrCapacity, len(sellerIDs), allotment, first, width)
	}

	seeds := make([]repository.TicketSeed, 0, len(sellerIDs)*allotment)
	n := first
	for _, id := range sellerIDs {
		for i := 0; i < allotment; i++ {
			seeds = append(seeds, repository.TicketSeed{
				Number:   fmt.Sprintf("%0*d", width, n),
				SellerID: id,
			})
			n++
		}
	}
	return seeds, nil
}

type SellerUpserter interface {
	UpsertOfficial(ctx context.Context, s model.Seller) (uint64, error)
}

type TicketCreator interface {
	GetByNumbers(ctx context.Context, numbers []string) ([]model.Ticket, error)
	CreateBulkIgnore(ctx context.Context, seeds []repository.TicketSeed) (int64, error)
}

type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Loader writes a roster and its tickets in one transaction.
type Loader struct {
	Tx      TxRunner
	Sellers SellerUpserter
	Tickets TicketCreator
	Log     zerolog.Logger
}

type Options struct {
	Allotment int
	Width     int
	First     int
}

// Summary reports what one Load call changed.
type Summary struct {
	Sellers        int
	TicketsPlanned int
	TicketsExisted int
	TicketsCreated int64
}

// Load upserts every roster seller and creates their tickets.
func (l *Loader) Load(ctx context.Context, roster []model.Seller, opts Options) (Summary, error) {
	var sum Summary
	err := l.Tx.WithTx(ctx, func(ctx context.Context) error {
		ids := make([]uint64, 0, len(roster))
		for _, s := range roster {
			id, err := l.Sellers.UpsertOfficial(ctx, s)
			if err != nil {
				return fmt.Errorf("upsert seller %s: %w", s.CPF, err)
			}
			ids = append(ids, id)
		}
		seeds, err := Plan(ids, opts.Allotment, opts.Width, opts.First)
		if err != nil {
			return err
		}
		for start := 0; start < len(seeds); start += batchSize {
			end := start + batchSize
			if end > len(seeds) {
				end = len(seeds)
			}
			batch := seeds[start:end]
			existed, err := l.checkExisting(ctx, batch)
			if err != nil {
				return err
			}
			n, err := l.Tickets.CreateBulkIgnore(ctx, batch)
			if err != nil {
				return fmt.Errorf("create tickets %s..%s: %w", batch[0].Number, batch[len(batch)-1].Number, err)
			}
			if int(n) != len(batch)-existed {
				return fmt.Errorf("%w: created %d of %d new tickets in %s..%s",
					ErrPlanMismatch, n, len(batch)-existed, batch[0].Number, batch[len(batch)-1].Number)
			}
			sum.TicketsExisted += existed
			sum.TicketsCreated += n
		}
		sum.Sellers = len(ids)
		sum.TicketsPlanned = len(seeds)
		return nil
	})
	if err != nil {
		return Summary{}, err
	}
	l.Log.Info().
		Int("sellers", sum.Sellers).
		Int("tickets_planned", sum.TicketsPlanned).
		Int("tickets_existed", sum.TicketsExisted).
		Int64("tickets_created", sum.TicketsCreated).
		Msg("roster loaded")
	return sum, nil
}

// maxReported caps the numbers listed in a mismatch error.
const maxReported = 10

// checkExisting returns how many tickets of batch are already stored and
// fails when any of them belongs to another seller than planned.
func (l *Loader) checkExisting(ctx context.Context, batch []repository.TicketSeed) (int, error) {
	numbers := make([]string, len(batch))
	planned := make(map[string]uint64, len(batch))
	for i, s := range batch {
		numbers[i] = s.Number
		planned[s.Number] = s.SellerID
	}
	existing, err := l.Tickets.GetByNumbers(ctx, numbers)
	if err != nil {
		return 0, fmt.Errorf("load existing tickets: %w", err)
	}
	var conflicts []string
	for _, t := range existing {
		if want, ok := planned[t.Number]; ok && t.SellerID != want {
			conflicts = append(conflicts, fmt.Sprintf("%s (seller %d, planned %d)", t.Number, t.SellerID, want))
		}
	}
	if len(conflicts) > 0 {
		total := len(conflicts)
		if total > maxReported {
			conflicts = conflicts[:maxReported]
		}
		return 0, fmt.Errorf("%w: %d tickets, e.g. %s", ErrPlanMismatch, total, strings.Join(conflicts, ", "))
	}
	return len(existing), nil
}
