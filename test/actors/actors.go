// Package actors drives the marketplace services concurrently for the stress suite.
// Actors tolerate the rejections a busy marketplace produces and fail only on
// outcomes no interleaving may produce.
package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"agrinetwork/dispute"
	"agrinetwork/order"
	"agrinetwork/outbox"
	"agrinetwork/wallet"
)

type Applier interface {
	Apply(ctx context.Context, req order.ApplyRequest) (order.Result, error)
}

type Withdrawer interface {
	Withdraw(ctx context.Context, userID string, amount decimal.Decimal) (wallet.Withdrawal, error)
}

type Chatter interface {
	Append(ctx context.Context, req dispute.AppendRequest) (dispute.Message, error)
}

type Flusher interface {
	Flush(ctx context.Context) (int, error)
}

// Cast names the accounts and orders every actor plays with.
type Cast struct {
	Buyer    string
	Seller   string
	Courier  string
	Admin    string
	Support  string
	OrderIDs []string
	// TolerateFaults treats storage failures as transient, for runs with chaos enabled.
	TolerateFaults bool
}

// Tally counts what the actors saw.
type Tally struct {
	Applied   atomic.Int64
	Rejected  atomic.Int64
	Transient atomic.Int64
	Withdrawn atomic.Int64

	mu      sync.Mutex
	settled map[string]order.Status
}

func NewTally() *Tally {
	return &Tally{settled: make(map[string]order.Status)}
}

// settle records a payout and fails if the order was already paid out.
func (t *Tally) settle(orderID string, to order.Status) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if prev, ok := t.settled[orderID]; ok {
		return fmt.Errorf("order %s settled twice: %s then %s", orderID, prev, to)
	}
	t.settled[orderID] = to
	return nil
}

func (t *Tally) String() string {
	return fmt.Sprintf("applied=%d rejected=%d transient=%d withdrawn=%d",
		t.Applied.Load(), t.Rejected.Load(), t.Transient.Load(), t.Withdrawn.Load())
}

type move struct {
	actor  func(Cast) string
	role   order.Role
	action order.Action
}

var moves = []move{
	{func(c Cast) string { return c.Buyer }, order.RoleBuyer, order.ActionPay},
	{func(c Cast) string { return c.Seller }, order.RoleSeller, order.ActionShip},
	{func(c Cast) string { return c.Courier }, order.RoleLogistics, order.ActionDeliver},
	{func(c Cast) string { return c.Seller }, order.RoleSeller, order.ActionDeliver},
	{func(c Cast) string { return c.Buyer }, order.RoleBuyer, order.ActionRelease},
	{func(c Cast) string { return c.Buyer }, order.RoleBuyer, order.ActionDispute},
	{func(c Cast) string { return c.Admin }, order.RoleAdmin, order.ActionResolveRelease},
	{func(c Cast) string { return c.Support }, order.RoleSupport, order.ActionResolveRefund},
	// Illegitimate attempts that must always be refused.
	{func(c Cast) string { return c.Seller }, order.RoleSeller, order.ActionRelease},
	{func(c Cast) string { return c.Buyer }, order.RoleAdmin, order.ActionResolveRefund},
}

func pause(ctx context.Context, stop <-chan struct{}, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-stop:
		return false
	case <-time.After(d):
		return true
	}
}

// Lifecycle fires random transitions at random orders until stopped.
func Lifecycle(ctx context.Context, svc Applier, cast Cast, tally *Tally, rng *rand.Rand, stop <-chan struct{}) error {
	for pause(ctx, stop, time.Duration(2+rng.Intn(8))*time.Millisecond) {
		m := moves[rng.Intn(len(moves))]
		orderID := cast.OrderIDs[rng.Intn(len(cast.OrderIDs))]
		actorID := m.actor(cast)

		res, err := svc.Apply(ctx, order.ApplyRequest{OrderID: orderID, ActorID: actorID, ActorRole: m.role, Action: m.action})
		switch {
		case err == nil:
			tally.Applied.Add(1)
			if m.role == order.RoleSeller && m.action == order.ActionRelease {
				return fmt.Errorf("seller released escrow on order %s", orderID)
			}
			if m.role == order.RoleAdmin && actorID == cast.Buyer {
				return fmt.Errorf("buyer resolved dispute on order %s as admin", orderID)
			}
			if res.EscrowReleased {
				if err := tally.settle(orderID, res.Order.Status); err != nil {
					return err
				}
			}
		case errors.Is(err, order.ErrInvalidTransition), errors.Is(err, order.ErrForbidden), errors.Is(err, order.ErrInsufficientKYC):
			tally.Rejected.Add(1)
		case errors.Is(err, wallet.ErrAlreadySettled):
			return fmt.Errorf("second settlement attempted on order %s: %w", orderID, err)
		case ctx.Err() != nil:
			return nil
		case cast.TolerateFaults && errors.Is(err, order.ErrPersistence):
			tally.Transient.Add(1)
		default:
			return fmt.Errorf("apply %s/%s on %s: %w", m.role, m.action, orderID, err)
		}
	}
	return nil
}

// Withdrawals keeps draining the seller's wallet in small amounts. Overdrafts must
// be refused; the balance check constraint makes any slip visible.
func Withdrawals(ctx context.Context, svc Withdrawer, userID string, tolerateFaults bool, tally *Tally, rng *rand.Rand, stop <-chan struct{}) error {
	for pause(ctx, stop, time.Duration(5+rng.Intn(20))*time.Millisecond) {
		amount := decimal.New(int64(1+rng.Intn(2000)), -2)
		_, err := svc.Withdraw(ctx, userID, amount)
		switch {
		case err == nil:
			tally.Withdrawn.Add(1)
		case errors.Is(err, wallet.ErrInsufficientFunds):
			tally.Rejected.Add(1)
		case ctx.Err() != nil:
			return nil
		case tolerateFaults && isFault(err):
			tally.Transient.Add(1)
		default:
			return fmt.Errorf("withdraw %s: %w", amount, err)
		}
	}
	return nil
}

// isFault reports whether err is a storage fault rather than a domain answer.
func isFault(err error) bool {
	return !errors.Is(err, wallet.ErrInvalidAmount) && !errors.Is(err, wallet.ErrKYCRequired)
}

// Chat appends buyer messages to random orders, racing the system entries written by
// dispute transitions.
func Chat(ctx context.Context, svc Chatter, c Cast, rng *rand.Rand, stop <-chan struct{}) error {
	for n := 0; pause(ctx, stop, time.Duration(10+rng.Intn(30))*time.Millisecond); n++ {
		orderID := c.OrderIDs[rng.Intn(len(c.OrderIDs))]
		_, err := svc.Append(ctx, dispute.AppendRequest{OrderID: orderID, SenderID: c.Buyer, Text: fmt.Sprintf("update %d", n)})
		if err != nil && ctx.Err() == nil && !c.TolerateFaults {
			return fmt.Errorf("chat append on %s: %w", orderID, err)
		}
	}
	return nil
}

// Relay drains the outbox while transitions keep writing to it.
func Relay(ctx context.Context, r Flusher, stop <-chan struct{}) error {
	for pause(ctx, stop, 20*time.Millisecond) {
		// A failed flush rolls back; the rows are picked up on the next tick.
		_, _ = r.Flush(ctx)
	}
	return nil
}

// Discard is a publisher that accepts everything.
type Discard struct {
	Published atomic.Int64
}

func (d *Discard) Publish(context.Context, outbox.Message) error {
	d.Published.Add(1)
	return nil
}
