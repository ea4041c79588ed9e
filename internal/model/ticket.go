package model

import (
    "fmt"
    "strings"
    "time"
)

// TicketStatus is the sale state of a raffle ticket.  A ticket moves
// available → pending when a seller submits it with a payment proof and
// pending → paid or pending → available when the treasury settles it.
type TicketStatus string

const (
    TicketAvailable TicketStatus = "available"
    TicketPending   TicketStatus = "pending"
    TicketPaid      TicketStatus = "paid"
)

// Valid reports whether s is one of the known statuses.
func (s TicketStatus) Valid() bool {
    switch s {
    case TicketAvailable, TicketPending, TicketPaid:
        return true
    }
    return false
}

// CanTransition reports whether moving from s to next is a legal step of
// the ticket lifecycle.
func (s TicketStatus) CanTransition(next TicketStatus) bool {
    switch s {
    case TicketAvailable:
        return next == TicketPending
    case TicketPending:
        return next == TicketPaid || next == TicketAvailable
    }
    return false
}

// Ticket mirrors a row of the `tickets` table.  Number is the fixed-width
// zero-padded identity assigned at generation time and never changes;
// SellerID is the adherent owning the slot.  Buyer fields are set together
// when the ticket becomes pending and cleared together when a pending
// ticket is rejected.  SellerName/SellerCPF record who sold it and are
// never cleared.
//
// Fields:
//  Number         – tickets.number (primary key).
//  Status         – tickets.status.
//  SellerID       – tickets.seller_id, owner of the slot.
//  BuyerID        – tickets.buyer_id, nil unless pending or paid.
//  BuyerName      – tickets.buyer_name.
//  BuyerEmail     – tickets.buyer_email.
//  SellerName     – tickets.seller_name, set at reservation.
//  SellerCPF      – tickets.seller_cpf, set at reservation.
//  ProofReference – tickets.proof_reference, payment-proof object reference.
//  ReservedAt     – tickets.reserved_at.
//  PaidAt         – tickets.paid_at.
type Ticket struct {
    Number         string       `json:"number"`
    Status         TicketStatus `json:"status"`
    SellerID       uint64       `json:"seller_id"`
    BuyerID        *string      `json:"buyer_id,omitempty"`
    BuyerName      *string      `json:"buyer_name,omitempty"`
    BuyerEmail     *string      `json:"buyer_email,omitempty"`
    SellerName     *string      `json:"seller_name,omitempty"`
    SellerCPF      *string      `json:"seller_cpf,omitempty"`
    ProofReference *string      `json:"proof_reference,omitempty"`
    ReservedAt     *time.Time   `json:"reserved_at,omitempty"`
    PaidAt         *time.Time   `json:"paid_at,omitempty"`
}

// Consistent reports whether the buyer reference agrees with the status:
// pending and paid tickets carry a buyer, available tickets do not.
func (t Ticket) Consistent() bool {
    hasBuyer := t.BuyerID != nil && *t.BuyerID != ""
    if t.Status == TicketAvailable {
        return !hasBuyer
    }
    return hasBuyer
}

// FormatTicketNumber renders n as a ticket number of the given width,
// e.g. FormatTicketNumber(7, 4) == "0007".
func FormatTicketNumber(n, width int) string {
    return fmt.Sprintf("%0*d", width, n)
}

// NormalizeTicketNumber trims raw and left-pads purely numeric input to
// width.  It returns false for empty input, non-digit characters or
// numbers longer than width.
func NormalizeTicketNumber(raw string, width int) (string, bool) {
    s := strings.TrimSpace(raw)
    if s == "" {
        return "", false
    }
    for _, r := range s {
        if r < '0' || r > '9' {
            return "", false
        }
    }
    if width > 0 {
        if len(s) > width {
            return "", false
        }
        s = strings.Repeat("0", width-len(s)) + s
    }
    return s, true
}
