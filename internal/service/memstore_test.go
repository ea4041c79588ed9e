package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/iliyamo/raffle-ticket-sales/internal/model"
	"github.com/iliyamo/raffle-ticket-sales/internal/repository"
)

var errInjected = errors.New("injected storage failure")

// memStore is an in-memory TxManager, TicketStore, BuyerStore and
// SellerStore.  WithTx snapshots the data and restores it when fn fails.
type memStore struct {
	mu      sync.Mutex
	tickets map[string]model.Ticket
	buyers  map[string]model.Buyer
	sellers []model.Seller

	// fail makes the named method return errInjected.
	fail map[string]bool
	// failMidBatch makes MarkPending write the first ticket and then fail.
	failMidBatch bool
	lockCalls    int
}

func newMemStore() *memStore {
	return &memStore{
		tickets: make(map[string]model.Ticket),
		buyers:  make(map[string]model.Buyer),
		fail:    make(map[string]bool),
	}
}

func (m *memStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	tickets := make(map[string]model.Ticket, len(m.tickets))
	for k, v := range m.tickets {
		tickets[k] = v
	}
	buyers := make(map[string]model.Buyer, len(m.buyers))
	for k, v := range m.buyers {
		buyers[k] = v
	}
	m.mu.Unlock()

	if err := fn(ctx); err != nil {
		m.mu.Lock()
		m.tickets, m.buyers = tickets, buyers
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *memStore) LockByNumbers(_ context.Context, numbers []string) ([]model.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lockCalls++
	if m.fail["LockByNumbers"] {
		return nil, errInjected
	}
	out := []model.Ticket{}
	for _, n := range numbers {
		if t, ok := m.tickets[n]; ok {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (m *memStore) ListByStatus(_ context.Context, statuses ...model.TicketStatus) ([]model.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Ticket{}
	for _, t := range m.tickets {
		for _, s := range statuses {
			if t.Status == s {
				out = append(out, t)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (m *memStore) ListBySellerCPF(_ context.Context, cpf string) ([]model.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Ticket{}
	for _, t := range m.tickets {
		if deref(t.SellerCPF) == cpf {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (m *memStore) MarkPending(_ context.Context, numbers []string, f repository.PendingFields) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail["MarkPending"] {
		return errInjected
	}
	at := f.ReservedAt
	for i, n := range numbers {
		if m.failMidBatch && i == 1 {
			return errInjected
		}
		t := m.tickets[n]
		t.Status = model.TicketPending
		t.BuyerID = ptr(f.BuyerID)
		t.BuyerName = ptr(f.BuyerName)
		t.BuyerEmail = f.BuyerEmail
		t.SellerName = ptr(f.SellerName)
		t.SellerCPF = ptr(f.SellerCPF)
		t.ProofReference = ptr(f.ProofReference)
		t.ReservedAt = &at
		t.PaidAt = nil
		m.tickets[n] = t
	}
	return nil
}

func (m *memStore) MarkPaid(_ context.Context, numbers []string, paidAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail["MarkPaid"] {
		return errInjected
	}
	for _, n := range numbers {
		t := m.tickets[n]
		t.Status = model.TicketPaid
		at := paidAt
		t.PaidAt = &at
		m.tickets[n] = t
	}
	return nil
}

func (m *memStore) Release(_ context.Context, numbers []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail["Release"] {
		return errInjected
	}
	for _, n := range numbers {
		t := m.tickets[n]
		t.Status = model.TicketAvailable
		t.BuyerID, t.BuyerName, t.BuyerEmail = nil, nil, nil
		t.ProofReference, t.ReservedAt, t.PaidAt = nil, nil, nil
		m.tickets[n] = t
	}
	return nil
}

func (m *memStore) Create(_ context.Context, b *model.Buyer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail["CreateBuyer"] {
		return errInjected
	}
	m.buyers[b.ID] = *b
	return nil
}

func (m *memStore) GetByEmail(_ context.Context, email string) (model.Seller, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail["GetByEmail"] {
		return model.Seller{}, errInjected
	}
	email = strings.ToLower(strings.TrimSpace(email))
	for _, s := range m.sellers {
		if s.Email == email {
			return s, nil
		}
	}
	return model.Seller{}, repository.ErrNotFound
}

func (m *memStore) ListOfficial(_ context.Context) ([]model.Seller, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Seller{}
	for _, s := range m.sellers {
		if s.IsOfficial {
			out = append(out, s)
		}
	}
	return out, nil
}

// put stores t as is, bypassing the lifecycle rules.
func (m *memStore) put(t model.Ticket) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickets[t.Number] = t
}

func (m *memStore) get(t *testing.T, number string) model.Ticket {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	tk, ok := m.tickets[number]
	if !ok {
		t.Fatalf("ticket %s not in store", number)
	}
	return tk
}

func (m *memStore) buyerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buyers)
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []model.Notification
	err   error
}

func (r *recordingNotifier) Notify(_ context.Context, n model.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, n)
	return r.err
}

func (r *recordingNotifier) sent() []model.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Notification(nil), r.calls...)
}

func ptr[T any](v T) *T { return &v }

var (
	sellerCarla = model.Seller{ID: 1, Name: "Carla Souza", CPF: "111.111.111-11", Email: "carla@example.com", IsOfficial: true}
	sellerDavi  = model.Seller{ID: 2, Name: "Davi Lima", CPF: "222.222.222-22", Email: "davi@example.com", IsOfficial: true}
	sellerGuest = model.Seller{ID: 3, Name: "Guest", CPF: "333.333.333-33", Email: "guest@example.com", IsOfficial: false}
)

// available seeds numbers as available tickets owned by seller.
func (m *memStore) available(seller model.Seller, numbers ...string) {
	for _, n := range numbers {
		m.put(model.Ticket{Number: n, Status: model.TicketAvailable, SellerID: seller.ID})
	}
}

// pending seeds numbers as pending tickets sold by seller to one buyer.
func (m *memStore) pending(seller model.Seller, buyerID, buyerName, buyerEmail string, reservedAt time.Time, numbers ...string) {
	for _, n := range numbers {
		t := model.Ticket{
			Number:         n,
			Status:         model.TicketPending,
			SellerID:       seller.ID,
			BuyerID:        ptr(buyerID),
			BuyerName:      ptr(buyerName),
			SellerName:     ptr(seller.Name),
			SellerCPF:      ptr(seller.CPF),
			ProofReference: ptr("s3://raffle/proofs/" + buyerID + ".jpg"),
			ReservedAt:     ptr(reservedAt),
		}
		if buyerEmail != "" {
			t.BuyerEmail = ptr(buyerEmail)
		}
		m.put(t)
	}
}

func inline(fn func()) { fn() }
