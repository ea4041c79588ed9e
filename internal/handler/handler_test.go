package handler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/raffle-ticket-sales/internal/idempotency"
	"github.com/iliyamo/raffle-ticket-sales/internal/middleware"
	"github.com/iliyamo/raffle-ticket-sales/internal/model"
	"github.com/iliyamo/raffle-ticket-sales/internal/service"
	"github.com/iliyamo/raffle-ticket-sales/internal/storage"
)

var seller = middleware.Identity{UserID: 7, Email: "carla@example.com", Role: model.RoleSeller}

type fakeReserver struct {
	calls   int
	gotIn   service.ReserveInput
	gotKey  string
	result  service.ReserveResult
	err     error
	numbers []string
	tickets []model.Ticket
	// afterCommit runs once the reservation has been decided
	afterCommit func()
}

func (f *fakeReserver) Reserve(ctx context.Context, in service.ReserveInput) (service.ReserveResult, error) {
	f.calls++
	f.gotIn = in
	f.gotKey, _ = idempotency.GetKey(ctx)
	if f.afterCommit != nil {
		f.afterCommit()
	}
	return f.result, f.err
}

func (f *fakeReserver) AvailableNumbers(context.Context) ([]string, error) { return f.numbers, f.err }

func (f *fakeReserver) SellerTickets(_ context.Context, email string) ([]model.Ticket, error) {
	f.gotIn.SellerEmail = email
	return f.tickets, f.err
}

// memReplays mimics idempotency.Store without Redis.  Like go-redis it
// refuses to run on a cancelled context.
type memReplays struct {
	entries  map[string][]byte
	beginErr error
	aborted  int
}

func newMemReplays() *memReplays { return &memReplays{entries: map[string][]byte{}} }

func (m *memReplays) Begin(_ context.Context, scope, key string) ([]byte, bool, error) {
	if m.beginErr != nil {
		return nil, false, m.beginErr
	}
	v, ok := m.entries[scope+":"+key]
	if !ok {
		m.entries[scope+":"+key] = nil
		return nil, true, nil
	}
	if v == nil {
		return nil, false, idempotency.ErrInProgress
	}
	return v, false, nil
}

func (m *memReplays) Complete(ctx context.Context, scope, key string, response []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.entries[scope+":"+key] = response
	return nil
}

func (m *memReplays) Abort(ctx context.Context, scope, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.aborted++
	delete(m.entries, scope+":"+key)
	return nil
}

func call(t *testing.T, h echo.HandlerFunc, method, target, body string, id *middleware.Identity, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if id != nil {
		middleware.SetIdentity(c, *id)
	}
	require.NoError(t, h(c))
	return rec
}

const reserveBody = `{"buyer":{"name":"Ana","email":"ana@example.com"},"ticket_numbers":["0001","0002"],"proof_reference":"s3://proofs/a.png"}`

func TestSellerHandler_Reserve(t *testing.T) {
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	r := &fakeReserver{result: service.ReserveResult{BuyerID: "b-1", TicketNumbers: []string{"0001", "0002"}, ReservedAt: at, Message: "ok"}}
	h := NewSellerHandler(r, newMemReplays(), zerolog.Nop())

	rec := call(t, h.Reserve, http.MethodPost, "/v1/reservations", reserveBody, &seller, nil)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"buyer_id":"b-1"`)
	assert.Equal(t, seller.Email, r.gotIn.SellerEmail)
	assert.Equal(t, "Ana", r.gotIn.Buyer.Name)
	assert.Equal(t, []string{"0001", "0002"}, r.gotIn.TicketNumbers)
	assert.Equal(t, "s3://proofs/a.png", r.gotIn.ProofReference)
}

func TestSellerHandler_Reserve_RequiresIdentity(t *testing.T) {
	r := &fakeReserver{}
	h := NewSellerHandler(r, newMemReplays(), zerolog.Nop())

	rec := call(t, h.Reserve, http.MethodPost, "/v1/reservations", reserveBody, nil, nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, r.calls)
}

func TestSellerHandler_Reserve_MapsServiceErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		reason string
	}{
		{"validation", &service.Error{Kind: service.KindValidation, Reason: "ticket_numbers_required"}, http.StatusBadRequest, "ticket_numbers_required"},
		{"missing", &service.Error{Kind: service.KindNotFound, Reason: "ticket_not_found", Details: []string{"9999"}}, http.StatusNotFound, "ticket_not_found"},
		{"conflict", &service.Error{Kind: service.KindConflict, Reason: "ticket_unavailable", Details: []string{"0001"}}, http.StatusConflict, "ticket_unavailable"},
		{"dependency", &service.Error{Kind: service.KindDependency, Reason: "storage_unavailable", Err: errors.New("boom")}, http.StatusServiceUnavailable, "storage_unavailable"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewSellerHandler(&fakeReserver{err: tc.err}, newMemReplays(), zerolog.Nop())

			rec := call(t, h.Reserve, http.MethodPost, "/v1/reservations", reserveBody, &seller, nil)

			assert.Equal(t, tc.status, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error":"`+tc.reason+`"`)
			assert.NotContains(t, rec.Body.String(), "boom")
		})
	}
}

func TestSellerHandler_Reserve_ConflictCarriesDetails(t *testing.T) {
	err := &service.Error{Kind: service.KindConflict, Reason: "ticket_unavailable", Message: "some tickets are not available", Details: []string{"0001", "0003"}}
	h := NewSellerHandler(&fakeReserver{err: err}, newMemReplays(), zerolog.Nop())

	rec := call(t, h.Reserve, http.MethodPost, "/v1/reservations", reserveBody, &seller, nil)

	assert.JSONEq(t, `{"error":"ticket_unavailable","message":"some tickets are not available","details":["0001","0003"]}`, rec.Body.String())
}

func TestSellerHandler_Reserve_ReplaysIdempotentRequest(t *testing.T) {
	r := &fakeReserver{result: service.ReserveResult{BuyerID: "b-1", TicketNumbers: []string{"0001"}}}
	replays := newMemReplays()
	h := NewSellerHandler(r, replays, zerolog.Nop())
	hdr := map[string]string{IdempotencyHeader: "k-1"}

	first := call(t, h.Reserve, http.MethodPost, "/v1/reservations", reserveBody, &seller, hdr)
	second := call(t, h.Reserve, http.MethodPost, "/v1/reservations", reserveBody, &seller, hdr)

	require.Equal(t, http.StatusCreated, first.Code)
	require.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, 1, r.calls)
	assert.Equal(t, "k-1", r.gotKey)
}

func TestSellerHandler_Reserve_InFlightKey(t *testing.T) {
	r := &fakeReserver{}
	replays := newMemReplays()
	replays.entries["7:k-1"] = nil
	h := NewSellerHandler(r, replays, zerolog.Nop())

	rec := call(t, h.Reserve, http.MethodPost, "/v1/reservations", reserveBody, &seller, map[string]string{IdempotencyHeader: "k-1"})

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "request_in_progress")
	assert.Zero(t, r.calls)
}

func TestSellerHandler_Reserve_FailureReleasesKey(t *testing.T) {
	r := &fakeReserver{err: &service.Error{Kind: service.KindConflict, Reason: "ticket_unavailable"}}
	replays := newMemReplays()
	h := NewSellerHandler(r, replays, zerolog.Nop())
	hdr := map[string]string{IdempotencyHeader: "k-2"}

	call(t, h.Reserve, http.MethodPost, "/v1/reservations", reserveBody, &seller, hdr)
	call(t, h.Reserve, http.MethodPost, "/v1/reservations", reserveBody, &seller, hdr)

	assert.Equal(t, 2, r.calls)
	assert.Equal(t, 2, replays.aborted)
}

// reserveThenDisconnect posts a reservation whose client goes away once
// the reservation service has returned.
func reserveThenDisconnect(t *testing.T, h *SellerHandler, r *fakeReserver, key string) *httptest.ResponseRecorder {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.afterCommit = cancel

	req := httptest.NewRequest(http.MethodPost, "/v1/reservations", strings.NewReader(reserveBody)).WithContext(ctx)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(IdempotencyHeader, key)
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)
	middleware.SetIdentity(c, seller)
	require.NoError(t, h.Reserve(c))
	r.afterCommit = nil
	return rec
}

func TestSellerHandler_Reserve_ClientGoneAfterCommitStillStoresResult(t *testing.T) {
	r := &fakeReserver{result: service.ReserveResult{BuyerID: "b-1", TicketNumbers: []string{"0001"}}}
	replays := newMemReplays()
	h := NewSellerHandler(r, replays, zerolog.Nop())

	reserveThenDisconnect(t, h, r, "k-4")
	retry := call(t, h.Reserve, http.MethodPost, "/v1/reservations", reserveBody, &seller, map[string]string{IdempotencyHeader: "k-4"})

	require.Equal(t, http.StatusCreated, retry.Code)
	assert.Contains(t, retry.Body.String(), `"buyer_id":"b-1"`)
	assert.Equal(t, "true", retry.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, 1, r.calls)
}

func TestSellerHandler_Reserve_ClientGoneOnFailureReleasesKey(t *testing.T) {
	r := &fakeReserver{err: &service.Error{Kind: service.KindDependency, Reason: "storage_unavailable"}}
	replays := newMemReplays()
	h := NewSellerHandler(r, replays, zerolog.Nop())

	reserveThenDisconnect(t, h, r, "k-5")

	assert.Equal(t, 1, replays.aborted)
	assert.Empty(t, replays.entries)

	r.err = nil
	retry := call(t, h.Reserve, http.MethodPost, "/v1/reservations", reserveBody, &seller, map[string]string{IdempotencyHeader: "k-5"})
	assert.Equal(t, http.StatusCreated, retry.Code)
	assert.Equal(t, 2, r.calls)
}

func TestSellerHandler_Reserve_ReplayStoreDownStillReserves(t *testing.T) {
	r := &fakeReserver{result: service.ReserveResult{BuyerID: "b-1"}}
	replays := newMemReplays()
	replays.beginErr = errors.New("redis down")
	h := NewSellerHandler(r, replays, zerolog.Nop())

	rec := call(t, h.Reserve, http.MethodPost, "/v1/reservations", reserveBody, &seller, map[string]string{IdempotencyHeader: "k-3"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 1, r.calls)
	assert.Empty(t, replays.entries)
}

func TestSellerHandler_AvailableAndMine(t *testing.T) {
	r := &fakeReserver{
		numbers: []string{"0003", "0004"},
		tickets: []model.Ticket{{Number: "0001", Status: model.TicketPending}},
	}
	h := NewSellerHandler(r, newMemReplays(), zerolog.Nop())

	rec := call(t, h.Available, http.MethodGet, "/v1/tickets/available", "", &seller, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count":2,"numbers":["0003","0004"]}`, rec.Body.String())

	rec = call(t, h.Mine, http.MethodGet, "/v1/me/tickets", "", &seller, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"0001"`)
	assert.Equal(t, seller.Email, r.gotIn.SellerEmail)
}

type fakeTreasury struct {
	gotSettle service.SettleInput
	settle    service.SettleResult
	pending   []model.Ticket
	summary   []service.SellerSummary
	global    service.GlobalSummary
	history   []service.HistoryEntry
	err       error
}

func (f *fakeTreasury) Settle(_ context.Context, in service.SettleInput) (service.SettleResult, error) {
	f.gotSettle = in
	return f.settle, f.err
}
func (f *fakeTreasury) PendingTickets(context.Context) ([]model.Ticket, error) { return f.pending, f.err }
func (f *fakeTreasury) SellerSummary(context.Context) ([]service.SellerSummary, error) {
	return f.summary, f.err
}
func (f *fakeTreasury) GlobalSummary(context.Context) (service.GlobalSummary, error) {
	return f.global, f.err
}
func (f *fakeTreasury) DetailedHistory(context.Context) ([]service.HistoryEntry, error) {
	return f.history, f.err
}

func TestTreasuryHandler_Settle(t *testing.T) {
	f := &fakeTreasury{settle: service.SettleResult{
		Decision:       service.DecisionApprove,
		ProcessedCount: 1,
		Processed:      []string{"0001"},
		Skipped:        []service.SkippedTicket{{Number: "0009", Reason: service.SkipNotFound}},
	}}
	h := NewTreasuryHandler(f, f, zerolog.Nop())

	rec := call(t, h.Settle, http.MethodPost, "/v1/audit/settlements", `{"ticket_numbers":["0001","0009"],"decision":"approve"}`, nil, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"0001", "0009"}, f.gotSettle.TicketNumbers)
	assert.Equal(t, "approve", f.gotSettle.Decision)
	assert.Contains(t, rec.Body.String(), `"processed_count":1`)
	assert.Contains(t, rec.Body.String(), `"not_found"`)
}

func TestTreasuryHandler_Settle_InvalidDecision(t *testing.T) {
	f := &fakeTreasury{err: &service.Error{Kind: service.KindValidation, Reason: "decision_invalid"}}
	h := NewTreasuryHandler(f, f, zerolog.Nop())

	rec := call(t, h.Settle, http.MethodPost, "/v1/audit/settlements", `{"ticket_numbers":["0001"],"decision":"maybe"}`, nil, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "decision_invalid")
}

func TestTreasuryHandler_Reports(t *testing.T) {
	f := &fakeTreasury{
		pending: []model.Ticket{{Number: "0002", Status: model.TicketPending}},
		summary: []service.SellerSummary{{SellerID: 1, Name: "Carla", TicketsSold: 3, AmountCollected: decimal.RequireFromString("37.5")}},
		global:  service.GlobalSummary{TotalCollected: decimal.RequireFromString("37.5"), TotalTicketsSold: 3, ActiveSellerCount: 1},
		history: []service.HistoryEntry{{Number: "0001", Status: model.TicketPaid}},
	}
	h := NewTreasuryHandler(f, f, zerolog.Nop())

	rec := call(t, h.Pending, http.MethodGet, "/v1/audit/pending", "", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)

	rec = call(t, h.SellerSummary, http.MethodGet, "/v1/reports/sellers", "", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"Carla"`)

	rec = call(t, h.GlobalSummary, http.MethodGet, "/v1/reports/summary", "", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"active_seller_count":1`)

	rec = call(t, h.History, http.MethodGet, "/v1/reports/history", "", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"0001"`)
}

func TestTreasuryHandler_StorageDown(t *testing.T) {
	f := &fakeTreasury{err: &service.Error{Kind: service.KindDependency, Reason: "storage_unavailable"}}
	h := NewTreasuryHandler(f, f, zerolog.Nop())

	rec := call(t, h.GlobalSummary, http.MethodGet, "/v1/reports/summary", "", nil, nil)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type fakeUploader struct {
	name string
	data []byte
	ref  string
	err  error
}

func (f *fakeUploader) Put(_ context.Context, filename string, body io.Reader) (string, error) {
	f.name = filename
	f.data, _ = io.ReadAll(body)
	return f.ref, f.err
}

func upload(t *testing.T, h *ProofHandler, filename, content string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/proofs", &buf)
	req.Header.Set(echo.HeaderContentType, mw.FormDataContentType())
	rec := httptest.NewRecorder()
	require.NoError(t, h.Upload(e.NewContext(req, rec)))
	return rec
}

func TestProofHandler_Upload(t *testing.T) {
	up := &fakeUploader{ref: "s3://raffle-proofs/proofs/abc.png"}
	h := NewProofHandler(up, zerolog.Nop())

	rec := upload(t, h, "receipt.png", "png-bytes")

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"proof_reference":"s3://raffle-proofs/proofs/abc.png"}`, rec.Body.String())
	assert.Equal(t, "receipt.png", up.name)
	assert.Equal(t, "png-bytes", string(up.data))
}

func TestProofHandler_Upload_Failures(t *testing.T) {
	assert.Equal(t, http.StatusServiceUnavailable, upload(t, NewProofHandler(nil, zerolog.Nop()), "a.png", "x").Code)
	assert.Equal(t, http.StatusBadRequest, upload(t, NewProofHandler(&fakeUploader{}, zerolog.Nop()), "", "").Code)

	rec := upload(t, NewProofHandler(&fakeUploader{err: storage.ErrUnsupportedType}, zerolog.Nop()), "a.exe", "x")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unsupported_file_type")

	rec = upload(t, NewProofHandler(&fakeUploader{err: errors.New("s3 down")}, zerolog.Nop()), "a.png", "x")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type pinger struct{ err error }

func (p pinger) PingContext(context.Context) error { return p.err }

func TestHealthAndReady(t *testing.T) {
	rec := call(t, Health, http.MethodGet, "/healthz", "", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = call(t, Ready(pinger{}), http.MethodGet, "/readyz", "", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = call(t, Ready(pinger{err: errors.New("down")}), http.MethodGet, "/readyz", "", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
