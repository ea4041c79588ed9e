package model

// Notification outcomes.  Received is sent to the buyer right after a
// reservation commits; Approved after the treasury confirms the payment.
const (
    OutcomeReceived = "received"
    OutcomeApproved = "approved"
)

// Notification is one outbound message to a buyer covering every ticket of
// a batch that belongs to them.
type Notification struct {
    Email   string
    Name    string
    Tickets []string
    Outcome string
}
