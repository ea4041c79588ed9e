// Package service holds the reservation, settlement and reporting rules of
// the raffle.  Services depend on the small interfaces below so the HTTP
// layer wires MySQL-backed repositories while tests use an in-memory store.
package service

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/iliyamo/raffle-ticket-sales/internal/metrics"
	"github.com/iliyamo/raffle-ticket-sales/internal/model"
	"github.com/iliyamo/raffle-ticket-sales/internal/repository"
)

// TxManager runs fn as one atomic unit of work.
type TxManager interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type TicketStore interface {
	LockByNumbers(ctx context.Context, numbers []string) ([]model.Ticket, error)
	ListByStatus(ctx context.Context, statuses ...model.TicketStatus) ([]model.Ticket, error)
	ListBySellerCPF(ctx context.Context, cpf string) ([]model.Ticket, error)
	MarkPending(ctx context.Context, numbers []string, f repository.PendingFields) error
	MarkPaid(ctx context.Context, numbers []string, paidAt time.Time) error
	Release(ctx context.Context, numbers []string) error
}

type BuyerStore interface {
	Create(ctx context.Context, b *model.Buyer) error
}

type SellerStore interface {
	GetByEmail(ctx context.Context, email string) (model.Seller, error)
	ListOfficial(ctx context.Context) ([]model.Seller, error)
}

// Notifier delivers a buyer notification on a best-effort basis.
type Notifier interface {
	Notify(ctx context.Context, n model.Notification) error
}

const (
	defaultNumberWidth   = 4
	defaultNotifyTimeout = 10 * time.Second
)

type options struct {
	logger        zerolog.Logger
	now           func() time.Time
	dispatch      func(func())
	notifyTimeout time.Duration
	numberWidth   int
}

func defaultOptions() options {
	return options{
		logger:        zerolog.Nop(),
		now:           func() time.Time { return time.Now().UTC() },
		dispatch:      func(fn func()) { go fn() },
		notifyTimeout: defaultNotifyTimeout,
		numberWidth:   defaultNumberWidth,
	}
}

// Option customizes a service.
type Option func(*options)

func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock overrides the time source used for reserved_at and paid_at.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithDispatcher overrides how post-commit notifications are scheduled.
// The default runs each one on its own goroutine.
func WithDispatcher(dispatch func(func())) Option {
	return func(o *options) {
		if dispatch != nil {
			o.dispatch = dispatch
		}
	}
}

func WithNotifyTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.notifyTimeout = d
		}
	}
}

// WithNumberWidth sets the fixed width of ticket numbers.
func WithNumberWidth(w int) Option {
	return func(o *options) {
		if w > 0 {
			o.numberWidth = w
		}
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// notify hands n to the notifier after the batch committed.  The caller
// never waits for it; failures are logged and counted only.
func (o options) notify(ctx context.Context, notifier Notifier, n model.Notification) {
	if notifier == nil || n.Email == "" {
		return
	}
	parent := context.WithoutCancel(ctx)
	o.dispatch(func() {
		ctx, cancel := context.WithTimeout(parent, o.notifyTimeout)
		defer cancel()
		err := notifier.Notify(ctx, n)
		metrics.ObserveNotification(n.Outcome, err)
		if err != nil {
			o.logger.Warn().Err(err).
				Str("outcome", n.Outcome).
				Strs("tickets", n.Tickets).
				Msg("buyer notification failed")
		}
	})
}

// normalizeNumbers pads and de-duplicates raw ticket numbers, keeping the
// order of first appearance.  Malformed entries are returned separately.
func normalizeNumbers(raw []string, width int) (numbers, invalid []string) {
	seen := make(map[string]struct{}, len(raw))
	for _, r := range raw {
		if strings.TrimSpace(r) == "" {
			continue
		}
		n, ok := model.NormalizeTicketNumber(r, width)
		if !ok {
			invalid = append(invalid, r)
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		numbers = append(numbers, n)
	}
	return numbers, invalid
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
