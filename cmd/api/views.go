package main

import (
	"time"

	"github.com/shopspring/decimal"

	"agrinetwork/auth"
	"agrinetwork/dispute"
	"agrinetwork/order"
	"agrinetwork/product"
	"agrinetwork/wallet"
)

type orderView struct {
	ID           string          `json:"id"`
	BuyerID      string          `json:"buyerId"`
	SellerID     string          `json:"sellerId"`
	ProductID    string          `json:"productId"`
	Quantity     int             `json:"quantity"`
	TotalAmount  decimal.Decimal `json:"totalAmount"`
	Status       order.Status    `json:"status"`
	EscrowLocked bool            `json:"escrowLocked"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

func newOrderView(o order.Order) orderView {
	return orderView{
		ID:           o.ID,
		BuyerID:      o.BuyerID,
		SellerID:     o.SellerID,
		ProductID:    o.ProductID,
		Quantity:     o.Quantity,
		TotalAmount:  o.TotalAmount,
		Status:       o.Status,
		EscrowLocked: o.EscrowLocked,
		CreatedAt:    o.CreatedAt,
		UpdatedAt:    o.UpdatedAt,
	}
}

type actionResponse struct {
	OrderID        string         `json:"orderId"`
	Status         order.Status   `json:"status"`
	EscrowReleased bool           `json:"escrowReleased"`
	Order          orderView      `json:"order"`
	Verdict        *order.Verdict `json:"verdict,omitempty"`
}

type messageView struct {
	ID         int64     `json:"id"`
	OrderID    string    `json:"orderId"`
	SenderID   string    `json:"senderId"`
	Text       string    `json:"text"`
	Attachment *string   `json:"attachment,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

func newMessageView(m dispute.Message) messageView {
	return messageView{
		ID:         m.ID,
		OrderID:    m.OrderID,
		SenderID:   m.SenderID,
		Text:       m.Text,
		Attachment: m.AttachmentRef,
		CreatedAt:  m.CreatedAt,
	}
}

type userView struct {
	ID        string         `json:"id"`
	Email     string         `json:"email"`
	FullName  string         `json:"full_name"`
	Role      auth.Role      `json:"role"`
	KYCStatus auth.KYCStatus `json:"kyc_status"`
	CreatedAt time.Time      `json:"created_at"`
}

func newUserView(u auth.User) userView {
	return userView{
		ID:        u.ID,
		Email:     u.Email,
		FullName:  u.FullName,
		Role:      u.Role,
		KYCStatus: u.KYCStatus,
		CreatedAt: u.CreatedAt,
	}
}

type productView struct {
	ID        string          `json:"id"`
	OwnerID   string          `json:"ownerId"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	CreatedAt time.Time       `json:"createdAt"`
}

func newProductView(p product.Product) productView {
	return productView{ID: p.ID, OwnerID: p.OwnerID, Name: p.Name, UnitPrice: p.UnitPrice, CreatedAt: p.CreatedAt}
}

type walletView struct {
	UserID    string          `json:"userId"`
	Balance   decimal.Decimal `json:"balance"`
	UpdatedAt *time.Time      `json:"updatedAt,omitempty"`
}

func newWalletView(w wallet.Wallet) walletView {
	v := walletView{UserID: w.UserID, Balance: w.Balance}
	if !w.UpdatedAt.IsZero() {
		v.UpdatedAt = &w.UpdatedAt
	}
	return v
}

type withdrawalView struct {
	ID        string                  `json:"id"`
	UserID    string                  `json:"userId"`
	Amount    decimal.Decimal         `json:"amount"`
	Status    wallet.WithdrawalStatus `json:"status"`
	CreatedAt time.Time               `json:"createdAt"`
}

func newWithdrawalView(w wallet.Withdrawal) withdrawalView {
	return withdrawalView{ID: w.ID, UserID: w.UserID, Amount: w.Amount, Status: w.Status, CreatedAt: w.CreatedAt}
}

// mapSlice converts domain values to views, keeping empty results as [] in JSON.
func mapSlice[T, V any](in []T, f func(T) V) []V {
	out := make([]V, 0, len(in))
	for _, v := range in {
		out = append(out, f(v))
	}
	return out
}
