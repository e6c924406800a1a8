package product

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a marketplace listing. Its owner becomes the seller of every order
// placed against it.
type Product struct {
	ID        string
	OwnerID   string
	Name      string
	UnitPrice decimal.Decimal
	CreatedAt time.Time
}

// CreateRequest contains listing data supplied by sellers.
type CreateRequest struct {
	OwnerID   string
	Name      string
	UnitPrice decimal.Decimal
}
