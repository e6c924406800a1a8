package order

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"agrinetwork/auth"
	"agrinetwork/dispute"
	"agrinetwork/mediation"
	"agrinetwork/product"
	"agrinetwork/test/txfake"
	"agrinetwork/wallet"
)

// harness wires a Service over in-memory stores. Writes are staged on the fake
// transaction, so anything rolled back never becomes visible.
type harness struct {
	pool     *txfake.Pool
	orders   *fakeOrders
	wallets  *fakeWallets
	chat     *fakeChat
	outbox   *fakeOutbox
	users    fakeUsers
	products fakeProducts
	mediator *fakeMediator
	svc      *Service
}

func newHarness(orders ...Order) *harness {
	h := &harness{
		pool:    &txfake.Pool{},
		orders:  &fakeOrders{rows: make(map[string]Order)},
		wallets: &fakeWallets{balances: make(map[string]decimal.Decimal)},
		chat:    &fakeChat{},
		outbox:  &fakeOutbox{},
		users: fakeUsers{
			"10": {ID: "10", Role: auth.RoleUser, KYCStatus: auth.KYCVerified},
			"11": {ID: "11", Role: auth.RoleUser, KYCStatus: auth.KYCPending},
			"20": {ID: "20", Role: auth.RoleUser, KYCStatus: auth.KYCVerified},
			"30": {ID: "30", Role: auth.RoleLogistics, KYCStatus: auth.KYCVerified},
			"98": {ID: "98", Role: auth.RoleSupport},
			"99": {ID: "99", Role: auth.RoleAdmin},
		},
		products: fakeProducts{
			"p1": {ID: "p1", OwnerID: "20", Name: "Sorghum", UnitPrice: decimal.RequireFromString("12.50")},
			"p2": {ID: "p2", OwnerID: "20", Name: "Tractor", UnitPrice: decimal.RequireFromString("500000000000.00")},
		},
		mediator: &fakeMediator{verdict: mediation.Verdict{Recommendation: "refund", Rationale: "goods were spoiled on arrival"}},
	}
	for _, o := range orders {
		h.orders.rows[o.ID] = o
	}
	h.svc = NewService(Deps{
		Pool:             h.pool,
		Orders:           h.orders,
		Wallets:          h.wallets,
		Chat:             h.chat,
		Outbox:           h.outbox,
		Users:            h.users,
		Products:         h.products,
		Mediator:         h.mediator,
		MediationTimeout: 50 * time.Millisecond,
		Now:              func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) },
	})
	return h
}

func sampleOrder(status Status) Order {
	return Order{
		ID:           "1",
		BuyerID:      "10",
		SellerID:     "20",
		ProductID:    "p1",
		Quantity:     8,
		TotalAmount:  decimal.NewFromInt(100),
		Status:       status,
		EscrowLocked: !status.Settled(),
		CreatedAt:    time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC),
	}
}

type fakeOrders struct {
	mu     sync.Mutex
	rows   map[string]Order
	lockFn func() error
	seq    int
}

func (f *fakeOrders) get(id string) Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[id]
}

func (f *fakeOrders) CreateTx(_ context.Context, tx pgx.Tx, p CreateParams) (Order, error) {
	f.mu.Lock()
	f.seq++
	o := Order{
		ID:           fmt.Sprintf("o%d", f.seq),
		BuyerID:      p.BuyerID,
		SellerID:     p.SellerID,
		ProductID:    p.ProductID,
		Quantity:     p.Quantity,
		TotalAmount:  p.TotalAmount,
		Status:       StatusCreated,
		EscrowLocked: true,
		CreatedAt:    time.Now(),
	}
	f.mu.Unlock()
	txfake.Stage(tx, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.rows[o.ID] = o
	})
	return o, nil
}

func (f *fakeOrders) Get(_ context.Context, id string) (Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.rows[id]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	return o, nil
}

func (f *fakeOrders) ListByUser(_ context.Context, userID string) ([]Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Order
	for _, o := range f.rows {
		if o.BuyerID == userID || o.SellerID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeOrders) ListByStatus(_ context.Context, status Status) ([]Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Order
	for _, o := range f.rows {
		if status == "" || o.Status == status {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeOrders) LockTx(ctx context.Context, _ pgx.Tx, id string) (Order, error) {
	if f.lockFn != nil {
		if err := f.lockFn(); err != nil {
			return Order{}, err
		}
	}
	return f.Get(ctx, id)
}

func (f *fakeOrders) UpdateStatusTx(_ context.Context, tx pgx.Tx, id string, from, to Status, escrowLocked bool) (Order, error) {
	f.mu.Lock()
	o, ok := f.rows[id]
	f.mu.Unlock()
	if !ok || o.Status != from {
		return Order{}, ErrInvalidTransition
	}
	o.Status = to
	o.EscrowLocked = escrowLocked
	txfake.Stage(tx, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.rows[id] = o
	})
	return o, nil
}

type credit struct {
	userID  string
	orderID string
	kind    wallet.EntryKind
	amount  decimal.Decimal
}

type fakeWallets struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
	credits  []credit
	err      error
}

func (f *fakeWallets) balance(userID string) decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[userID]
}

func (f *fakeWallets) creditCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.credits)
}

func (f *fakeWallets) CreditTx(_ context.Context, tx pgx.Tx, userID, orderID string, kind wallet.EntryKind, amount decimal.Decimal) error {
	if f.err != nil {
		return f.err
	}
	txfake.Stage(tx, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.balances[userID] = f.balances[userID].Add(amount)
		f.credits = append(f.credits, credit{userID: userID, orderID: orderID, kind: kind, amount: amount})
	})
	return nil
}

type fakeChat struct {
	mu   sync.Mutex
	msgs []dispute.Message
}

func (f *fakeChat) add(orderID, senderID, text string) dispute.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := dispute.Message{ID: int64(len(f.msgs) + 1), OrderID: orderID, SenderID: senderID, Text: text, CreatedAt: time.Now()}
	f.msgs = append(f.msgs, m)
	return m
}

func (f *fakeChat) AppendTx(_ context.Context, tx pgx.Tx, orderID, senderID, text string) (dispute.Message, error) {
	m := dispute.Message{OrderID: orderID, SenderID: senderID, Text: text}
	txfake.Stage(tx, func() { f.add(orderID, senderID, text) })
	return m, nil
}

func (f *fakeChat) Append(_ context.Context, orderID, senderID, text string) (dispute.Message, error) {
	return f.add(orderID, senderID, text), nil
}

func (f *fakeChat) List(_ context.Context, orderID string) ([]dispute.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []dispute.Message
	for _, m := range f.msgs {
		if m.OrderID == orderID {
			out = append(out, m)
		}
	}
	return out, nil
}

type fakeOutbox struct {
	mu     sync.Mutex
	topics []string
	err    error
}

func (f *fakeOutbox) Enqueue(_ context.Context, tx pgx.Tx, topic string, _ any) error {
	if f.err != nil {
		return f.err
	}
	txfake.Stage(tx, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.topics = append(f.topics, topic)
	})
	return nil
}

func (f *fakeOutbox) published() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.topics...)
}

type fakeUsers map[string]auth.User

func (f fakeUsers) GetUserByID(_ context.Context, id string) (auth.User, error) {
	u, ok := f[id]
	if !ok {
		return auth.User{}, auth.ErrUserNotFound
	}
	return u, nil
}

type fakeProducts map[string]product.Product

func (f fakeProducts) GetByID(_ context.Context, id string) (product.Product, error) {
	p, ok := f[id]
	if !ok {
		return product.Product{}, product.ErrNotFound
	}
	return p, nil
}

type fakeMediator struct {
	mu      sync.Mutex
	verdict mediation.Verdict
	err     error
	block   bool
	calls   int
}

func (f *fakeMediator) RequestVerdict(ctx context.Context, _ string) (mediation.Verdict, error) {
	f.mu.Lock()
	f.calls++
	block, v, err := f.block, f.verdict, f.err
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return mediation.Verdict{}, errors.Join(mediation.ErrServiceUnavailable, ctx.Err())
	}
	return v, err
}
