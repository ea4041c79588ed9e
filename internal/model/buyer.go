package model

import "time"

// Buyer is the person behind one checkout event.  One Buyer is created per
// reservation submission and may be referenced by many tickets.  Buyers
// are never updated or deleted.
type Buyer struct {
    ID        string    `json:"id"`              // buyers.id (UUID)
    Name      string    `json:"name"`            // buyers.name
    Phone     string    `json:"phone"`           // buyers.phone
    Email     *string   `json:"email,omitempty"` // buyers.email (nullable)
    CreatedAt time.Time `json:"created_at"`      // buyers.created_at
}
