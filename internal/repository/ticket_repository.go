package repository

import (
    "context"
    "database/sql"
    "time"

    "github.com/iliyamo/raffle-ticket-sales/internal/model"
)

// TicketRepo provides access to the `tickets` table.  Tickets are created
// once by the roster loader and afterwards only change status; every
// status change goes through one of the Mark*/Release methods so the buyer
// fields always move together with the status.  Methods join the
// transaction carried by ctx when there is one.
type TicketRepo struct {
    db *sql.DB
}

// NewTicketRepo returns a new TicketRepo bound to the given database.
func NewTicketRepo(db *sql.DB) *TicketRepo { return &TicketRepo{db: db} }

// PendingFields carries the values written when a batch of tickets moves
// to pending.
type PendingFields struct {
    BuyerID        string
    BuyerName      string
    BuyerEmail     *string
    SellerName     string
    SellerCPF      string
    ProofReference string
    ReservedAt     time.Time
}

// TicketSeed is one row produced by the ticket generator.
type TicketSeed struct {
    Number   string
    SellerID uint64
}

const ticketColumns = `number, status, seller_id, buyer_id, buyer_name, buyer_email,
       seller_name, seller_cpf, proof_reference, reserved_at, paid_at`

// LockByNumbers loads the requested tickets and takes a row lock on each of
// them for the rest of the surrounding transaction.  Numbers that do not
// exist are simply absent from the result.  Rows are locked in number
// order so overlapping batches cannot deadlock each other.
func (r *TicketRepo) LockByNumbers(ctx context.Context, numbers []string) ([]model.Ticket, error) {
    if len(numbers) == 0 {
        return []model.Ticket{}, nil
    }
    q := `SELECT ` + ticketColumns + `
          FROM tickets
          WHERE number IN (` + placeholders(len(numbers)) + `)
          ORDER BY number
          FOR UPDATE`
    return r.query(ctx, q, stringArgs(numbers)...)
}

// GetByNumbers loads the requested tickets without locking them.
func (r *TicketRepo) GetByNumbers(ctx context.Context, numbers []string) ([]model.Ticket, error) {
    if len(numbers) == 0 {
        return []model.Ticket{}, nil
    }
    q := `SELECT ` + ticketColumns + `
          FROM tickets
          WHERE number IN (` + placeholders(len(numbers)) + `)
          ORDER BY number`
    return r.query(ctx, q, stringArgs(numbers)...)
}

// ListByStatus returns every ticket whose status is one of statuses,
// ordered by number.
func (r *TicketRepo) ListByStatus(ctx context.Context, statuses ...model.TicketStatus) ([]model.Ticket, error) {
    if len(statuses) == 0 {
        return []model.Ticket{}, nil
    }
    args := make([]interface{}, 0, len(statuses))
    for _, s := range statuses {
        args = append(args, string(s))
    }
    q := `SELECT ` + ticketColumns + `
          FROM tickets
          WHERE status IN (` + placeholders(len(statuses)) + `)
          ORDER BY number`
    return r.query(ctx, q, args...)
}

// ListBySellerCPF returns the tickets sold by the seller with the given
// cpf, ordered by number.
func (r *TicketRepo) ListBySellerCPF(ctx context.Context, cpf string) ([]model.Ticket, error) {
    q := `SELECT ` + ticketColumns + `
          FROM tickets
          WHERE seller_cpf = ?
          ORDER BY number`
    return r.query(ctx, q, cpf)
}

// MarkPending moves the given tickets to pending and writes the buyer,
// seller and proof fields in a single statement.
func (r *TicketRepo) MarkPending(ctx context.Context, numbers []string, f PendingFields) error {
    if len(numbers) == 0 {
        return nil
    }
    q := `UPDATE tickets
          SET status = ?, buyer_id = ?, buyer_name = ?, buyer_email = ?,
              seller_name = ?, seller_cpf = ?, proof_reference = ?, reserved_at = ?, paid_at = NULL
          WHERE number IN (` + placeholders(len(numbers)) + `)`
    args := []interface{}{
        string(model.TicketPending), f.BuyerID, f.BuyerName, f.BuyerEmail,
        f.SellerName, f.SellerCPF, f.ProofReference, f.ReservedAt.UTC(),
    }
    args = append(args, stringArgs(numbers)...)
    _, err := conn(ctx, r.db).ExecContext(ctx, q, args...)
    return err
}

// MarkPaid moves the given tickets to paid.  Buyer and seller fields are
// left untouched.
func (r *TicketRepo) MarkPaid(ctx context.Context, numbers []string, paidAt time.Time) error {
    if len(numbers) == 0 {
        return nil
    }
    q := `UPDATE tickets SET status = ?, paid_at = ?
          WHERE number IN (` + placeholders(len(numbers)) + `)`
    args := []interface{}{string(model.TicketPaid), paidAt.UTC()}
    args = append(args, stringArgs(numbers)...)
    _, err := conn(ctx, r.db).ExecContext(ctx, q, args...)
    return err
}

// Release returns the given tickets to available and clears the buyer,
// proof and reservation fields.  seller_name and seller_cpf are kept.
func (r *TicketRepo) Release(ctx context.Context, numbers []string) error {
    if len(numbers) == 0 {
        return nil
    }
    q := `UPDATE tickets
          SET status = ?, buyer_id = NULL, buyer_name = NULL, buyer_email = NULL,
              proof_reference = NULL, reserved_at = NULL, paid_at = NULL
          WHERE number IN (` + placeholders(len(numbers)) + `)`
    args := []interface{}{string(model.TicketAvailable)}
    args = append(args, stringArgs(numbers)...)
    _, err := conn(ctx, r.db).ExecContext(ctx, q, args...)
    return err
}

// CreateBulkIgnore inserts the given tickets as available.  Numbers that
// already exist are left as they are, which makes re-running the
// generator harmless.
func (r *TicketRepo) CreateBulkIgnore(ctx context.Context, seeds []TicketSeed) (int64, error) {
    if len(seeds) == 0 {
        return 0, nil
    }
    query := `INSERT IGNORE INTO tickets (number, status, seller_id) VALUES `
    args := make([]interface{}, 0, len(seeds)*3)
    for i, s := range seeds {
        if i > 0 {
            query += ","
        }
        query += "(?, ?, ?)"
        args = append(args, s.Number, string(model.TicketAvailable), s.SellerID)
    }
    res, err := conn(ctx, r.db).ExecContext(ctx, query, args...)
    if err != nil {
        return 0, err
    }
    return res.RowsAffected()
}

func (r *TicketRepo) query(ctx context.Context, q string, args ...interface{}) ([]model.Ticket, error) {
    rows, err := conn(ctx, r.db).QueryContext(ctx, q, args...)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    tickets := make([]model.Ticket, 0)
    for rows.Next() {
        t, err := scanTicket(rows)
        if err != nil {
            return nil, err
        }
        tickets = append(tickets, t)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return tickets, nil
}

func scanTicket(rows *sql.Rows) (model.Ticket, error) {
    var (
        t                                       model.Ticket
        status                                  string
        buyerID, buyerName, buyerEmail          sql.NullString
        sellerName, sellerCPF, proofReference   sql.NullString
        reservedAt, paidAt                      sql.NullTime
    )
    if err := rows.Scan(
        &t.Number, &status, &t.SellerID, &buyerID, &buyerName, &buyerEmail,
        &sellerName, &sellerCPF, &proofReference, &reservedAt, &paidAt,
    ); err != nil {
        return model.Ticket{}, err
    }
    t.Status = model.TicketStatus(status)
    t.BuyerID = nullString(buyerID)
    t.BuyerName = nullString(buyerName)
    t.BuyerEmail = nullString(buyerEmail)
    t.SellerName = nullString(sellerName)
    t.SellerCPF = nullString(sellerCPF)
    t.ProofReference = nullString(proofReference)
    t.ReservedAt = nullTime(reservedAt)
    t.PaidAt = nullTime(paidAt)
    return t, nil
}
