package order

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"agrinetwork/dispute"
	"agrinetwork/mediation"
	"agrinetwork/product"
)

var hundred = decimal.NewFromInt(100)

func TestApply_ReleaseCreditsSeller(t *testing.T) {
	h := newHarness(sampleOrder(StatusDelivered))

	res, err := h.svc.Apply(context.Background(), ApplyRequest{OrderID: "1", ActorID: "10", ActorRole: RoleBuyer, Action: ActionRelease})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.Order.Status != StatusCompleted || res.Order.EscrowLocked {
		t.Fatalf("expected completed and unlocked, got %s locked=%v", res.Order.Status, res.Order.EscrowLocked)
	}
	if !res.EscrowReleased {
		t.Fatal("expected escrowReleased")
	}
	if got := h.wallets.balance("20"); !got.Equal(hundred) {
		t.Fatalf("expected seller balance 100, got %s", got)
	}
	if got := h.wallets.balance("10"); !got.IsZero() {
		t.Fatalf("expected buyer balance untouched, got %s", got)
	}
	if stored := h.orders.get("1"); stored.Status != StatusCompleted || stored.EscrowLocked {
		t.Fatalf("expected stored order completed, got %+v", stored)
	}
	if topics := h.outbox.published(); !slices.Equal(topics, []string{TopicStatusChanged}) {
		t.Fatalf("unexpected notifications %v", topics)
	}
	if h.mediator.calls != 0 {
		t.Fatalf("release must not consult the mediator, got %d calls", h.mediator.calls)
	}
}

func TestApply_DisputeAppendsSystemMessageAndVerdict(t *testing.T) {
	h := newHarness(sampleOrder(StatusDelivered))

	res, err := h.svc.Apply(context.Background(), ApplyRequest{OrderID: "1", ActorID: "10", ActorRole: RoleBuyer, Action: ActionDispute})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.Order.Status != StatusDisputed || !res.Order.EscrowLocked {
		t.Fatalf("expected disputed and locked, got %s locked=%v", res.Order.Status, res.Order.EscrowLocked)
	}
	if res.EscrowReleased {
		t.Fatal("dispute must not release escrow")
	}
	if h.wallets.creditCount() != 0 {
		t.Fatal("dispute must not touch wallets")
	}

	msgs, _ := h.chat.List(context.Background(), "1")
	if len(msgs) != 2 {
		t.Fatalf("expected system and mediator messages, got %d", len(msgs))
	}
	if msgs[0].SenderID != dispute.SenderSystem {
		t.Fatalf("expected system message first, got %q", msgs[0].SenderID)
	}
	if msgs[1].SenderID != dispute.SenderMediator || !strings.Contains(msgs[1].Text, "refund") {
		t.Fatalf("expected mediator verdict, got %+v", msgs[1])
	}
	if res.Verdict == nil || res.Verdict.Recommendation != "refund" || res.Verdict.Escalated {
		t.Fatalf("unexpected verdict %+v", res.Verdict)
	}

	// Advice is recorded only; escrow stays locked until staff act.
	if stored := h.orders.get("1"); stored.Status != StatusDisputed || !stored.EscrowLocked {
		t.Fatalf("verdict must not settle the order, got %+v", stored)
	}
	if topics := h.outbox.published(); !slices.Equal(topics, []string{TopicStatusChanged, TopicDisputed}) {
		t.Fatalf("unexpected notifications %v", topics)
	}
}

func TestApply_DisputeWithMediatorTimeoutEscalates(t *testing.T) {
	h := newHarness(sampleOrder(StatusDelivered))
	h.mediator.block = true

	res, err := h.svc.Apply(context.Background(), ApplyRequest{OrderID: "1", ActorID: "10", ActorRole: RoleBuyer, Action: ActionDispute})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.Order.Status != StatusDisputed {
		t.Fatalf("expected disputed, got %s", res.Order.Status)
	}
	if res.Verdict == nil || !res.Verdict.Escalated {
		t.Fatalf("expected escalation, got %+v", res.Verdict)
	}

	msgs, _ := h.chat.List(context.Background(), "1")
	last := msgs[len(msgs)-1]
	if last.SenderID != dispute.SenderMediator || !strings.Contains(strings.ToLower(last.Text), "escalated to human") {
		t.Fatalf("expected escalation message, got %+v", last)
	}
	if h.wallets.creditCount() != 0 {
		t.Fatal("escalation must not move funds")
	}
}

func TestApply_DisputeWithUnparseableVerdictEscalates(t *testing.T) {
	h := newHarness(sampleOrder(StatusDelivered))
	h.mediator.err = mediation.ErrUnparseableVerdict

	res, err := h.svc.Apply(context.Background(), ApplyRequest{OrderID: "1", ActorID: "10", ActorRole: RoleBuyer, Action: ActionDispute})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.Verdict == nil || !res.Verdict.Escalated {
		t.Fatalf("expected escalation, got %+v", res.Verdict)
	}
}

func TestApply_AdminRefundCreditsBuyer(t *testing.T) {
	h := newHarness(sampleOrder(StatusDisputed))

	res, err := h.svc.Apply(context.Background(), ApplyRequest{OrderID: "1", ActorID: "99", ActorRole: RoleAdmin, Action: ActionResolveRefund})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.Order.Status != StatusRefunded || res.Order.EscrowLocked || !res.EscrowReleased {
		t.Fatalf("expected refunded and unlocked, got %+v", res)
	}
	if got := h.wallets.balance("10"); !got.Equal(hundred) {
		t.Fatalf("expected buyer balance 100, got %s", got)
	}
	if got := h.wallets.balance("20"); !got.IsZero() {
		t.Fatalf("expected seller untouched, got %s", got)
	}
}

func TestApply_SupportOverrideCreditsSeller(t *testing.T) {
	h := newHarness(sampleOrder(StatusDisputed))

	res, err := h.svc.Apply(context.Background(), ApplyRequest{OrderID: "1", ActorID: "98", ActorRole: RoleSupport, Action: ActionResolveRelease})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.Order.Status != StatusOverridden || res.Order.EscrowLocked {
		t.Fatalf("expected overridden and unlocked, got %+v", res.Order)
	}
	if got := h.wallets.balance("20"); !got.Equal(hundred) {
		t.Fatalf("expected seller balance 100, got %s", got)
	}
}

func TestApply_ShipFromWrongStateLeavesOrderUnchanged(t *testing.T) {
	for _, st := range []Status{StatusShipped, StatusDelivered, StatusCompleted, StatusDisputed, StatusRefunded} {
		h := newHarness(sampleOrder(st))
		before := h.orders.get("1")

		_, err := h.svc.Apply(context.Background(), ApplyRequest{OrderID: "1", ActorID: "20", ActorRole: RoleSeller, Action: ActionShip})
		if !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("%s: expected ErrInvalidTransition, got %v", st, err)
		}
		if after := h.orders.get("1"); after != before {
			t.Fatalf("%s: order changed: %+v -> %+v", st, before, after)
		}
	}
}

func TestApply_ReleaseByNonBuyerForbidden(t *testing.T) {
	h := newHarness(sampleOrder(StatusDelivered))

	for _, req := range []ApplyRequest{
		{OrderID: "1", ActorID: "20", ActorRole: RoleBuyer, Action: ActionRelease},
		{OrderID: "1", ActorID: "20", ActorRole: RoleSeller, Action: ActionRelease},
		{OrderID: "1", ActorID: "404", ActorRole: RoleBuyer, Action: ActionRelease},
	} {
		if _, err := h.svc.Apply(context.Background(), req); !errors.Is(err, ErrForbidden) {
			t.Fatalf("%+v: expected ErrForbidden, got %v", req, err)
		}
	}
	if stored := h.orders.get("1"); stored.Status != StatusDelivered || !stored.EscrowLocked {
		t.Fatalf("order changed: %+v", stored)
	}
	if h.wallets.creditCount() != 0 {
		t.Fatal("wallets changed")
	}
	if len(h.outbox.published()) != 0 {
		t.Fatal("rejected transitions must not notify")
	}
}

func TestApply_ReleaseTwiceCreditsOnce(t *testing.T) {
	h := newHarness(sampleOrder(StatusDelivered))
	req := ApplyRequest{OrderID: "1", ActorID: "10", ActorRole: RoleBuyer, Action: ActionRelease}

	if _, err := h.svc.Apply(context.Background(), req); err != nil {
		t.Fatalf("first release: %v", err)
	}
	if _, err := h.svc.Apply(context.Background(), req); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on second release, got %v", err)
	}
	if h.wallets.creditCount() != 1 {
		t.Fatalf("expected one credit, got %d", h.wallets.creditCount())
	}
	if got := h.wallets.balance("20"); !got.Equal(hundred) {
		t.Fatalf("expected seller balance 100, got %s", got)
	}
}

func TestApply_ConcurrentReleasesSettleOnce(t *testing.T) {
	h := newHarness(sampleOrder(StatusDelivered))
	req := ApplyRequest{OrderID: "1", ActorID: "10", ActorRole: RoleBuyer, Action: ActionRelease}

	const workers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.Apply(context.Background(), req)
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			if !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 {
		t.Fatalf("expected exactly one successful release, got %d", succeeded)
	}
	if h.wallets.creditCount() != 1 {
		t.Fatalf("expected one credit, got %d", h.wallets.creditCount())
	}
}

func TestApply_WalletFailureRollsBack(t *testing.T) {
	h := newHarness(sampleOrder(StatusDelivered))
	h.wallets.err = errors.New("connection reset by peer")

	_, err := h.svc.Apply(context.Background(), ApplyRequest{OrderID: "1", ActorID: "10", ActorRole: RoleBuyer, Action: ActionRelease})
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if stored := h.orders.get("1"); stored.Status != StatusDelivered || !stored.EscrowLocked {
		t.Fatalf("order must be unchanged after rollback, got %+v", stored)
	}
	if len(h.outbox.published()) != 0 {
		t.Fatal("rolled back transition must not notify")
	}
	if _, committed, rolledBack := h.pool.Stats(); committed != 0 || rolledBack != 1 {
		t.Fatalf("expected one rollback, got committed=%d rolledBack=%d", committed, rolledBack)
	}

	// The same request succeeds once storage recovers.
	h.wallets.err = nil
	if _, err := h.svc.Apply(context.Background(), ApplyRequest{OrderID: "1", ActorID: "10", ActorRole: RoleBuyer, Action: ActionRelease}); err != nil {
		t.Fatalf("retry: %v", err)
	}
}

func TestApply_OutboxFailureRollsBack(t *testing.T) {
	h := newHarness(sampleOrder(StatusDelivered))
	h.outbox.err = errors.New("disk full")

	if _, err := h.svc.Apply(context.Background(), ApplyRequest{OrderID: "1", ActorID: "10", ActorRole: RoleBuyer, Action: ActionRelease}); !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if h.wallets.creditCount() != 0 {
		t.Fatal("credit must roll back with the transition")
	}
}

func TestApply_KYCRequired(t *testing.T) {
	o := sampleOrder(StatusDelivered)
	o.BuyerID = "11"
	h := newHarness(o)

	for _, action := range []Action{ActionRelease, ActionDispute} {
		_, err := h.svc.Apply(context.Background(), ApplyRequest{OrderID: "1", ActorID: "11", ActorRole: RoleBuyer, Action: action})
		if !errors.Is(err, ErrInsufficientKYC) {
			t.Fatalf("%s: expected ErrInsufficientKYC, got %v", action, err)
		}
	}
}

func TestApply_OrderNotFound(t *testing.T) {
	h := newHarness()
	_, err := h.svc.Apply(context.Background(), ApplyRequest{OrderID: "42", ActorID: "10", ActorRole: RoleBuyer, Action: ActionRelease})
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestApply_LockFailureIsRetryable(t *testing.T) {
	h := newHarness(sampleOrder(StatusDelivered))
	h.orders.lockFn = func() error { return errors.New("deadlock detected") }

	if _, err := h.svc.Apply(context.Background(), ApplyRequest{OrderID: "1", ActorID: "10", ActorRole: RoleBuyer, Action: ActionRelease}); !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
}

func TestApply_FullHappyPath(t *testing.T) {
	h := newHarness(sampleOrder(StatusCreated))
	steps := []struct {
		actor  string
		role   Role
		action Action
		want   Status
	}{
		{"10", RoleBuyer, ActionPay, StatusPaid},
		{"20", RoleSeller, ActionShip, StatusShipped},
		{"30", RoleLogistics, ActionDeliver, StatusDelivered},
		{"10", RoleBuyer, ActionRelease, StatusCompleted},
	}
	for _, s := range steps {
		res, err := h.svc.Apply(context.Background(), ApplyRequest{OrderID: "1", ActorID: s.actor, ActorRole: s.role, Action: s.action})
		if err != nil {
			t.Fatalf("%s: %v", s.action, err)
		}
		if res.Order.Status != s.want {
			t.Fatalf("%s: expected %s, got %s", s.action, s.want, res.Order.Status)
		}
		if res.Order.EscrowLocked == s.want.Settled() {
			t.Fatalf("%s: escrow lock %v inconsistent with %s", s.action, res.Order.EscrowLocked, s.want)
		}
	}
	if got := h.wallets.balance("20"); !got.Equal(hundred) {
		t.Fatalf("expected seller balance 100, got %s", got)
	}
}

func TestRequestMediation(t *testing.T) {
	h := newHarness(sampleOrder(StatusDisputed))
	ctx := context.Background()

	v, err := h.svc.RequestMediation(ctx, "1", "98", RoleSupport)
	if err != nil {
		t.Fatalf("request mediation: %v", err)
	}
	if v.Recommendation != "refund" {
		t.Fatalf("unexpected verdict %+v", v)
	}
	msgs, _ := h.chat.List(ctx, "1")
	if len(msgs) != 1 || msgs[0].SenderID != dispute.SenderMediator {
		t.Fatalf("expected one mediator message, got %+v", msgs)
	}
	if h.wallets.creditCount() != 0 {
		t.Fatal("mediation must not move funds")
	}

	if _, err := h.svc.RequestMediation(ctx, "1", "10", RoleBuyer); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for buyer, got %v", err)
	}
	if _, err := h.svc.RequestMediation(ctx, "1", "10", RoleAdmin); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for impersonated admin, got %v", err)
	}
	if _, err := h.svc.RequestMediation(ctx, "2", "99", RoleAdmin); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}

	h2 := newHarness(sampleOrder(StatusDelivered))
	if _, err := h2.svc.RequestMediation(ctx, "1", "99", RoleAdmin); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for undisputed order, got %v", err)
	}
}

func TestCreate(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	o, err := h.svc.Create(ctx, CreateRequest{BuyerID: "10", ProductID: "p1", Quantity: 4})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if o.SellerID != "20" || o.Status != StatusCreated || !o.EscrowLocked {
		t.Fatalf("unexpected order %+v", o)
	}
	if !o.TotalAmount.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("expected total 50, got %s", o.TotalAmount)
	}
	if topics := h.outbox.published(); !slices.Equal(topics, []string{TopicCreated}) {
		t.Fatalf("unexpected notifications %v", topics)
	}

	got, err := h.svc.Get(ctx, o.ID)
	if err != nil || got.ID != o.ID {
		t.Fatalf("get: %+v %v", got, err)
	}
	list, err := h.svc.List(ctx, "20")
	if err != nil || len(list) != 1 {
		t.Fatalf("list for seller: %v %v", list, err)
	}

	if _, err := h.svc.Create(ctx, CreateRequest{BuyerID: "20", ProductID: "p1", Quantity: 1}); !errors.Is(err, ErrSelfPurchase) {
		t.Fatalf("expected ErrSelfPurchase, got %v", err)
	}
	if _, err := h.svc.Create(ctx, CreateRequest{BuyerID: "10", ProductID: "nope", Quantity: 1}); !errors.Is(err, product.ErrNotFound) {
		t.Fatalf("expected product.ErrNotFound, got %v", err)
	}
}

func TestCreate_RejectsUnstorableOrders(t *testing.T) {
	cases := []struct {
		name string
		req  CreateRequest
		want error
	}{
		{name: "zero quantity", req: CreateRequest{BuyerID: "10", ProductID: "p1", Quantity: 0}, want: ErrInvalidQuantity},
		{name: "negative quantity", req: CreateRequest{BuyerID: "10", ProductID: "p1", Quantity: -3}, want: ErrInvalidQuantity},
		{name: "quantity above int4", req: CreateRequest{BuyerID: "10", ProductID: "p1", Quantity: 3000000000}, want: ErrInvalidQuantity},
		{name: "total above numeric(14,2)", req: CreateRequest{BuyerID: "10", ProductID: "p2", Quantity: 2}, want: ErrTotalTooLarge},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness()
			if _, err := h.svc.Create(context.Background(), tc.req); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if topics := h.outbox.published(); len(topics) != 0 {
				t.Fatalf("expected no notifications, got %v", topics)
			}
		})
	}

	h := newHarness()
	if _, err := h.svc.Create(context.Background(), CreateRequest{BuyerID: "10", ProductID: "p2", Quantity: 1}); err != nil {
		t.Fatalf("expected total under the limit to be accepted, got %v", err)
	}
}

func TestListByStatus(t *testing.T) {
	disputed := sampleOrder(StatusDisputed)
	paid := sampleOrder(StatusPaid)
	paid.ID = "2"
	h := newHarness(disputed, paid)
	ctx := context.Background()

	for _, staff := range []string{"98", "99"} {
		list, err := h.svc.ListByStatus(ctx, staff, StatusDisputed)
		if err != nil {
			t.Fatalf("list as %s: %v", staff, err)
		}
		if len(list) != 1 || list[0].ID != "1" {
			t.Fatalf("expected only the disputed order for %s, got %+v", staff, list)
		}
	}

	all, err := h.svc.ListByStatus(ctx, "99", "")
	if err != nil || len(all) != 2 {
		t.Fatalf("expected both orders without a filter, got %v %v", all, err)
	}

	cases := []struct {
		name    string
		actorID string
		status  Status
		want    error
	}{
		{name: "party to the order", actorID: "10", status: StatusDisputed, want: ErrForbidden},
		{name: "logistics account", actorID: "30", status: StatusDisputed, want: ErrForbidden},
		{name: "unknown actor", actorID: "ghost", status: StatusDisputed, want: ErrForbidden},
		{name: "unknown status", actorID: "99", status: "lost", want: ErrInvalidStatus},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := h.svc.ListByStatus(ctx, tc.actorID, tc.status); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}
