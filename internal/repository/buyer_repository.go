package repository

import (
    "context"
    "database/sql"
    "errors"

    "github.com/iliyamo/raffle-ticket-sales/internal/model"
)

// BuyerRepo persists buyers.  Buyers are insert-only.
type BuyerRepo struct {
    db *sql.DB
}

// NewBuyerRepo returns a new BuyerRepo bound to the given database.
func NewBuyerRepo(db *sql.DB) *BuyerRepo { return &BuyerRepo{db: db} }

// Create inserts b.  The caller assigns ID and CreatedAt.
func (r *BuyerRepo) Create(ctx context.Context, b *model.Buyer) error {
    const q = `INSERT INTO buyers (id, name, phone, email, created_at) VALUES (?, ?, ?, ?, ?)`
    _, err := conn(ctx, r.db).ExecContext(ctx, q, b.ID, b.Name, b.Phone, b.Email, b.CreatedAt.UTC())
    return err
}

// GetByID returns the buyer with the given id or ErrNotFound.
func (r *BuyerRepo) GetByID(ctx context.Context, id string) (model.Buyer, error) {
    const q = `SELECT id, name, phone, email, created_at FROM buyers WHERE id = ? LIMIT 1`
    var (
        b     model.Buyer
        email sql.NullString
    )
    err := conn(ctx, r.db).QueryRowContext(ctx, q, id).Scan(&b.ID, &b.Name, &b.Phone, &email, &b.CreatedAt)
    if errors.Is(err, sql.ErrNoRows) {
        return model.Buyer{}, ErrNotFound
    }
    if err != nil {
        return model.Buyer{}, err
    }
    b.Email = nullString(email)
    return b, nil
}
