package repository

import (
    "context"
    "database/sql"
    "errors"
    "strings"

    "github.com/iliyamo/raffle-ticket-sales/internal/model"
)

// SellerRepo reads and writes the committee roster.
type SellerRepo struct {
    db *sql.DB
}

// NewSellerRepo returns a new SellerRepo bound to the given database.
func NewSellerRepo(db *sql.DB) *SellerRepo { return &SellerRepo{db: db} }

const sellerColumns = `id, name, cpf, email, is_official, created_at`

// GetByEmail fetches a seller by normalized e-mail.  It returns ErrNotFound
// when no roster entry matches.
func (r *SellerRepo) GetByEmail(ctx context.Context, email string) (model.Seller, error) {
    email = strings.ToLower(strings.TrimSpace(email))
    q := `SELECT ` + sellerColumns + ` FROM sellers WHERE email = ? LIMIT 1`
    var s model.Seller
    err := conn(ctx, r.db).QueryRowContext(ctx, q, email).Scan(
        &s.ID, &s.Name, &s.CPF, &s.Email, &s.IsOfficial, &s.CreatedAt,
    )
    if errors.Is(err, sql.ErrNoRows) {
        return model.Seller{}, ErrNotFound
    }
    if err != nil {
        return model.Seller{}, err
    }
    return s, nil
}

// ListOfficial returns every official seller in roster order.
func (r *SellerRepo) ListOfficial(ctx context.Context) ([]model.Seller, error) {
    q := `SELECT ` + sellerColumns + ` FROM sellers WHERE is_official = TRUE ORDER BY id`
    rows, err := conn(ctx, r.db).QueryContext(ctx, q)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    sellers := make([]model.Seller, 0)
    for rows.Next() {
        var s model.Seller
        if err := rows.Scan(&s.ID, &s.Name, &s.CPF, &s.Email, &s.IsOfficial, &s.CreatedAt); err != nil {
            return nil, err
        }
        sellers = append(sellers, s)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return sellers, nil
}

// UpsertOfficial inserts s as an official seller keyed by cpf, or updates
// the name and e-mail of the existing entry.  It returns the seller id.
func (r *SellerRepo) UpsertOfficial(ctx context.Context, s model.Seller) (uint64, error) {
    const q = `INSERT INTO sellers (name, cpf, email, is_official) VALUES (?, ?, ?, TRUE)
               ON DUPLICATE KEY UPDATE id = LAST_INSERT_ID(id), name = VALUES(name),
                                       email = VALUES(email), is_official = TRUE`
    email := strings.ToLower(strings.TrimSpace(s.Email))
    res, err := conn(ctx, r.db).ExecContext(ctx, q, strings.TrimSpace(s.Name), strings.TrimSpace(s.CPF), email)
    if err != nil {
        if strings.Contains(err.Error(), "1062") {
            return 0, ErrConflict
        }
        return 0, err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return 0, err
    }
    return uint64(id), nil
}
