package order

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"agrinetwork/auth"
	"agrinetwork/db"
	"agrinetwork/dispute"
	"agrinetwork/mediation"
	"agrinetwork/metrics"
	"agrinetwork/product"
	"agrinetwork/wallet"
)

const defaultMediationTimeout = 10 * time.Second

// Store is the order persistence used by the service.
type Store interface {
	CreateTx(ctx context.Context, tx pgx.Tx, p CreateParams) (Order, error)
	Get(ctx context.Context, id string) (Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	ListByStatus(ctx context.Context, status Status) ([]Order, error)
	LockTx(ctx context.Context, tx pgx.Tx, id string) (Order, error)
	UpdateStatusTx(ctx context.Context, tx pgx.Tx, id string, from, to Status, escrowLocked bool) (Order, error)
}

// Crediter moves settled escrow into a wallet.
type Crediter interface {
	CreditTx(ctx context.Context, tx pgx.Tx, userID, orderID string, kind wallet.EntryKind, amount decimal.Decimal) error
}

// ChatLog is the dispute chat as seen by the lifecycle: it writes entries and reads
// the transcript only to brief the mediator.
type ChatLog interface {
	AppendTx(ctx context.Context, tx pgx.Tx, orderID, senderID, text string) (dispute.Message, error)
	Append(ctx context.Context, orderID, senderID, text string) (dispute.Message, error)
	List(ctx context.Context, orderID string) ([]dispute.Message, error)
}

// EventWriter stores notifications in the transition's transaction.
type EventWriter interface {
	Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload any) error
}

type UserDirectory interface {
	GetUserByID(ctx context.Context, userID string) (auth.User, error)
}

type ProductReader interface {
	GetByID(ctx context.Context, id string) (product.Product, error)
}

// Deps wires the service. Mediator, Metrics and Logger may be nil.
type Deps struct {
	Pool             db.TxBeginner
	Orders           Store
	Wallets          Crediter
	Chat             ChatLog
	Outbox           EventWriter
	Users            UserDirectory
	Products         ProductReader
	Mediator         mediation.Requester
	MediationTimeout time.Duration
	Metrics          *metrics.Metrics
	Logger           *zap.Logger
	Now              func() time.Time
}

// Service is the order lifecycle manager.
type Service struct {
	pool             db.TxBeginner
	orders           Store
	wallets          Crediter
	chat             ChatLog
	outbox           EventWriter
	users            UserDirectory
	products         ProductReader
	mediator         mediation.Requester
	mediationTimeout time.Duration
	metrics          *metrics.Metrics
	logger           *zap.Logger
	now              func() time.Time
}

func NewService(d Deps) *Service {
	s := &Service{
		pool:             d.Pool,
		orders:           d.Orders,
		wallets:          d.Wallets,
		chat:             d.Chat,
		outbox:           d.Outbox,
		users:            d.Users,
		products:         d.Products,
		mediator:         d.Mediator,
		mediationTimeout: d.MediationTimeout,
		metrics:          d.Metrics,
		logger:           d.Logger,
		now:              d.Now,
	}
	if s.mediationTimeout <= 0 {
		s.mediationTimeout = defaultMediationTimeout
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Apply runs one transition. Lock, validation, status write, wallet credit, chat
// entry and notifications commit together or not at all. A dispute additionally
// asks the mediator for advice after commit; that step cannot fail the call.
func (s *Service) Apply(ctx context.Context, req ApplyRequest) (Result, error) {
	res, err := s.apply(ctx, req)
	if err != nil {
		s.metrics.TransitionRejected(string(req.Action), rejectionReason(err))
		if errors.Is(err, ErrPersistence) {
			s.logger.Error("order transition aborted",
				zap.String("order_id", req.OrderID),
				zap.String("action", string(req.Action)),
				zap.Error(err))
		}
		return Result{}, err
	}
	return res, nil
}

func (s *Service) apply(ctx context.Context, req ApplyRequest) (Result, error) {
	actor, err := s.resolveActor(ctx, req.ActorID, req.ActorRole)
	if err != nil {
		return Result{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Result{}, persistenceError("begin tx", err)
	}
	defer tx.Rollback(ctx)

	current, err := s.orders.LockTx(ctx, tx, req.OrderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return Result{}, err
		}
		return Result{}, persistenceError("lock order", err)
	}

	outcome, err := Decide(current, actor, req.Action)
	if err != nil {
		return Result{}, err
	}

	updated, err := s.orders.UpdateStatusTx(ctx, tx, current.ID, outcome.From, outcome.To, !outcome.To.Settled())
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			return Result{}, err
		}
		return Result{}, persistenceError("update status", err)
	}

	if st := outcome.Settlement; st != nil {
		if err := s.wallets.CreditTx(ctx, tx, st.Beneficiary, current.ID, st.Kind, st.Amount); err != nil {
			return Result{}, persistenceError("credit wallet", err)
		}
	}

	if outcome.SystemMessage != "" {
		if _, err := s.chat.AppendTx(ctx, tx, current.ID, dispute.SenderSystem, outcome.SystemMessage); err != nil {
			return Result{}, persistenceError("append system message", err)
		}
	}

	for _, ev := range transitionEvents(updated, outcome, actor, s.now().UTC()) {
		if err := s.outbox.Enqueue(ctx, tx, ev.topic, ev.payload); err != nil {
			return Result{}, persistenceError("enqueue "+ev.topic, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Result{}, persistenceError("commit", err)
	}

	s.metrics.TransitionApplied(string(outcome.Action), string(outcome.To))
	if st := outcome.Settlement; st != nil {
		s.metrics.Settled(string(st.Kind))
	}
	s.logger.Info("order transition applied",
		zap.String("order_id", updated.ID),
		zap.String("action", string(outcome.Action)),
		zap.String("from", string(outcome.From)),
		zap.String("to", string(outcome.To)),
		zap.String("actor_id", actor.ID),
		zap.Bool("escrow_released", outcome.EscrowReleased()))

	res := Result{Order: updated, EscrowReleased: outcome.EscrowReleased()}
	if outcome.Effect == EffectDispute {
		v := s.mediate(ctx, updated)
		res.Verdict = &v
	}
	return res, nil
}

// RequestMediation records a fresh advisory verdict for a disputed order. Only
// support and admin accounts may ask.
func (s *Service) RequestMediation(ctx context.Context, orderID, actorID string, actorRole Role) (Verdict, error) {
	actor, err := s.resolveActor(ctx, actorID, actorRole)
	if err != nil {
		return Verdict{}, err
	}

	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return Verdict{}, err
		}
		return Verdict{}, persistenceError("get order", err)
	}

	if !actor.holds(RoleAdmin, o) && !actor.holds(RoleSupport, o) {
		return Verdict{}, ErrForbidden
	}
	if o.Status != StatusDisputed {
		return Verdict{}, ErrInvalidTransition
	}
	return s.mediate(ctx, o), nil
}

// mediate asks for advice under its own deadline, detached from the caller's
// cancellation, and records the answer or the escalation in the chat.
func (s *Service) mediate(ctx context.Context, o Order) Verdict {
	mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.mediationTimeout)
	defer cancel()

	history, err := s.chat.List(mctx, o.ID)
	if err != nil {
		s.logger.Warn("mediation briefing without chat history", zap.String("order_id", o.ID), zap.Error(err))
	}

	advice, err := mediation.Advise(mctx, s.mediator, mediationPrompt(o, history),
		mediation.RecommendRelease, mediation.RecommendRefund, mediation.RecommendEscalate)
	outcome := advice.Recommendation
	if err != nil {
		outcome = "fallback"
		s.logger.Warn("mediation escalated to human review", zap.String("order_id", o.ID), zap.Error(err))
	}
	s.metrics.Verdict("dispute", outcome)

	v := Verdict{Recommendation: advice.Recommendation, Rationale: advice.Rationale, Escalated: advice.IsFallback()}
	if _, err := s.chat.Append(mctx, o.ID, dispute.SenderMediator, verdictMessage(v)); err != nil {
		s.logger.Error("record mediation verdict", zap.String("order_id", o.ID), zap.Error(err))
	}
	return v
}

// Create places an order. The seller and total are frozen from the listing.
func (s *Service) Create(ctx context.Context, req CreateRequest) (Order, error) {
	if req.Quantity <= 0 || req.Quantity > math.MaxInt32 {
		return Order{}, ErrInvalidQuantity
	}
	buyer, err := s.users.GetUserByID(ctx, req.BuyerID)
	if err != nil {
		return Order{}, err
	}
	p, err := s.products.GetByID(ctx, req.ProductID)
	if err != nil {
		return Order{}, err
	}
	if p.OwnerID == buyer.ID {
		return Order{}, ErrSelfPurchase
	}
	total := p.UnitPrice.Mul(decimal.NewFromInt(int64(req.Quantity)))
	if total.GreaterThan(product.MaxAmount) {
		return Order{}, ErrTotalTooLarge
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Order{}, persistenceError("begin tx", err)
	}
	defer tx.Rollback(ctx)

	o, err := s.orders.CreateTx(ctx, tx, CreateParams{
		BuyerID:     buyer.ID,
		SellerID:    p.OwnerID,
		ProductID:   p.ID,
		Quantity:    req.Quantity,
		TotalAmount: total,
	})
	if err != nil {
		return Order{}, persistenceError("create order", err)
	}

	err = s.outbox.Enqueue(ctx, tx, TopicCreated, CreatedEvent{
		OrderID:     o.ID,
		BuyerID:     o.BuyerID,
		SellerID:    o.SellerID,
		ProductID:   o.ProductID,
		Quantity:    o.Quantity,
		TotalAmount: o.TotalAmount,
		OccurredAt:  s.now().UTC(),
	})
	if err != nil {
		return Order{}, persistenceError("enqueue "+TopicCreated, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Order{}, persistenceError("commit", err)
	}
	return o, nil
}

func (s *Service) Get(ctx context.Context, id string) (Order, error) {
	return s.orders.Get(ctx, id)
}

// List returns the orders a user buys or sells.
func (s *Service) List(ctx context.Context, userID string) ([]Order, error) {
	return s.orders.ListByUser(ctx, userID)
}

// ListByStatus is the staff queue: every order in status, or all orders when status is
// empty. The actor's account role decides access, not a claimed role.
func (s *Service) ListByStatus(ctx context.Context, actorID string, status Status) ([]Order, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	actor, err := s.resolveActor(ctx, actorID, "")
	if err != nil {
		return nil, err
	}
	if actor.Account == nil || !actor.Account.Role.IsStaff() {
		return nil, ErrForbidden
	}
	return s.orders.ListByStatus(ctx, status)
}

// resolveActor looks the actor up in the user directory. Unknown ids resolve to an
// actor without an account, which no transition row accepts.
func (s *Service) resolveActor(ctx context.Context, id string, role Role) (Actor, error) {
	actor := Actor{ID: strings.TrimSpace(id), Role: role}
	if actor.ID == "" {
		return actor, nil
	}
	u, err := s.users.GetUserByID(ctx, actor.ID)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			return actor, nil
		}
		return Actor{}, persistenceError("resolve actor", err)
	}
	actor.Account = &u
	return actor, nil
}

func mediationPrompt(o Order, history []dispute.Message) string {
	var b strings.Builder
	b.WriteString("You mediate disputes on an agricultural marketplace. Funds are held in escrow. ")
	b.WriteString("Recommend whether support should release the funds to the seller or refund the buyer, ")
	b.WriteString("or escalate when the evidence is insufficient. Your answer is advisory.\n")
	fmt.Fprintf(&b, "Order %s: quantity %d, total %s, buyer %s, seller %s.\n",
		o.ID, o.Quantity, o.TotalAmount.StringFixed(2), o.BuyerID, o.SellerID)
	if len(history) > 0 {
		b.WriteString("Chat transcript:\n")
		for _, m := range history {
			fmt.Fprintf(&b, "[%s] %s", m.SenderID, m.Text)
			if m.AttachmentRef != nil {
				fmt.Fprintf(&b, " (attachment: %s)", *m.AttachmentRef)
			}
			b.WriteString("\n")
		}
	}
	b.WriteString(`Answer with JSON only: {"recommendation": "release" | "refund" | "escalate", "rationale": "<two sentences at most>"}`)
	return b.String()
}

func verdictMessage(v Verdict) string {
	if v.Escalated {
		if v.Rationale == "" {
			return "Escalated to human review."
		}
		return "Escalated to human review: " + v.Rationale
	}
	return fmt.Sprintf("AI advisory verdict: %s. %s", v.Recommendation, v.Rationale)
}
