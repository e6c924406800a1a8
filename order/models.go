package order

import (
	"time"

	"github.com/shopspring/decimal"

	"agrinetwork/auth"
)

type Status string

const (
	StatusCreated    Status = "created"
	StatusPaid       Status = "paid"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCompleted  Status = "completed"
	StatusDisputed   Status = "disputed"
	StatusRefunded   Status = "refunded"
	StatusOverridden Status = "overridden"
)

// Valid reports whether s names a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusCreated, StatusPaid, StatusShipped, StatusDelivered, StatusCompleted,
		StatusDisputed, StatusRefunded, StatusOverridden:
		return true
	default:
		return false
	}
}

// Settled reports whether escrow has been paid out for an order in this status.
// Settled statuses are terminal.
func (s Status) Settled() bool {
	switch s {
	case StatusCompleted, StatusRefunded, StatusOverridden:
		return true
	default:
		return false
	}
}

type Action string

const (
	ActionPay            Action = "pay"
	ActionShip           Action = "ship"
	ActionDeliver        Action = "deliver"
	ActionRelease        Action = "release"
	ActionDispute        Action = "dispute"
	ActionResolveRelease Action = "resolve_release"
	ActionResolveRefund  Action = "resolve_refund"
)

// Role is the capacity in which an actor asks for a transition. Buyer and seller are
// relative to one order; the others are account roles.
type Role string

const (
	RoleBuyer     Role = "buyer"
	RoleSeller    Role = "seller"
	RoleLogistics Role = "logistics"
	RoleSupport   Role = "support"
	RoleAdmin     Role = "admin"
)

// Order mirrors the orders table. SellerID and TotalAmount are frozen at creation.
type Order struct {
	ID           string
	BuyerID      string
	SellerID     string
	ProductID    string
	Quantity     int
	TotalAmount  decimal.Decimal
	Status       Status
	EscrowLocked bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Actor is the principal behind a request. Account is nil when the id is unknown to
// the user directory.
type Actor struct {
	ID      string
	Role    Role
	Account *auth.User
}

// holds reports whether the actor legitimately holds role for o.
func (a Actor) holds(role Role, o Order) bool {
	if a.Account == nil || a.Role != role {
		return false
	}
	switch role {
	case RoleBuyer:
		return a.ID == o.BuyerID
	case RoleSeller:
		return a.ID == o.SellerID
	case RoleLogistics:
		return a.Account.Role == auth.RoleLogistics
	case RoleSupport:
		return a.Account.Role == auth.RoleSupport
	case RoleAdmin:
		return a.Account.Role == auth.RoleAdmin
	default:
		return false
	}
}

// ApplyRequest asks for one transition.
type ApplyRequest struct {
	OrderID   string
	ActorID   string
	ActorRole Role
	Action    Action
}

// Result is what Apply returns on success. Verdict is set when the transition asked
// the AI mediator for advice.
type Result struct {
	Order          Order
	EscrowReleased bool
	Verdict        *Verdict
}

// Verdict is the advisory mediation outcome recorded in the dispute chat.
type Verdict struct {
	Recommendation string `json:"recommendation"`
	Rationale      string `json:"rationale"`
	Escalated      bool   `json:"escalated"`
}

// CreateRequest places an order against a product listing.
type CreateRequest struct {
	BuyerID   string
	ProductID string
	Quantity  int
}

// CreateParams are the frozen values written for a new order.
type CreateParams struct {
	BuyerID     string
	SellerID    string
	ProductID   string
	Quantity    int
	TotalAmount decimal.Decimal
}
