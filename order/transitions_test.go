package order

import (
	"errors"
	"testing"

	"agrinetwork/auth"
	"agrinetwork/wallet"
)

func actorFor(id string, role Role, accountRole auth.Role, kyc auth.KYCStatus) Actor {
	return Actor{ID: id, Role: role, Account: &auth.User{ID: id, Role: accountRole, KYCStatus: kyc}}
}

var (
	buyer     = actorFor("10", RoleBuyer, auth.RoleUser, auth.KYCVerified)
	seller    = actorFor("20", RoleSeller, auth.RoleUser, auth.KYCVerified)
	logistics = actorFor("30", RoleLogistics, auth.RoleLogistics, auth.KYCUnverified)
	admin     = actorFor("99", RoleAdmin, auth.RoleAdmin, auth.KYCUnverified)
	support   = actorFor("98", RoleSupport, auth.RoleSupport, auth.KYCUnverified)
)

func TestDecide_Table(t *testing.T) {
	cases := []struct {
		name   string
		status Status
		actor  Actor
		action Action
		want   Status
		err    error
	}{
		{name: "buyer pays", status: StatusCreated, actor: buyer, action: ActionPay, want: StatusPaid},
		{name: "seller ships created", status: StatusCreated, actor: seller, action: ActionShip, want: StatusShipped},
		{name: "seller ships paid", status: StatusPaid, actor: seller, action: ActionShip, want: StatusShipped},
		{name: "logistics delivers", status: StatusShipped, actor: logistics, action: ActionDeliver, want: StatusDelivered},
		{name: "seller delivers", status: StatusShipped, actor: seller, action: ActionDeliver, want: StatusDelivered},
		{name: "buyer releases", status: StatusDelivered, actor: buyer, action: ActionRelease, want: StatusCompleted},
		{name: "buyer disputes", status: StatusDelivered, actor: buyer, action: ActionDispute, want: StatusDisputed},
		{name: "admin resolves release", status: StatusDisputed, actor: admin, action: ActionResolveRelease, want: StatusOverridden},
		{name: "support resolves refund", status: StatusDisputed, actor: support, action: ActionResolveRefund, want: StatusRefunded},

		{name: "unknown action", status: StatusDelivered, actor: buyer, action: "teleport", err: ErrInvalidTransition},
		{name: "ship after delivery", status: StatusDelivered, actor: seller, action: ActionShip, err: ErrInvalidTransition},
		{name: "buyer ships", status: StatusCreated, actor: actorFor("10", RoleSeller, auth.RoleUser, auth.KYCVerified), action: ActionShip, err: ErrForbidden},
		{name: "seller releases", status: StatusDelivered, actor: actorFor("20", RoleBuyer, auth.RoleUser, auth.KYCVerified), action: ActionRelease, err: ErrForbidden},
		{name: "user claims logistics", status: StatusShipped, actor: actorFor("40", RoleLogistics, auth.RoleUser, auth.KYCVerified), action: ActionDeliver, err: ErrForbidden},
		{name: "user claims admin", status: StatusDisputed, actor: actorFor("10", RoleAdmin, auth.RoleUser, auth.KYCVerified), action: ActionResolveRefund, err: ErrForbidden},
		{name: "admin without dispute", status: StatusDelivered, actor: admin, action: ActionResolveRefund, err: ErrInvalidTransition},
		{name: "unknown actor", status: StatusDelivered, actor: Actor{ID: "10", Role: RoleBuyer}, action: ActionRelease, err: ErrForbidden},
		{name: "unverified release", status: StatusDelivered, actor: actorFor("10", RoleBuyer, auth.RoleUser, auth.KYCPending), action: ActionRelease, err: ErrInsufficientKYC},
		{name: "unverified dispute", status: StatusDelivered, actor: actorFor("10", RoleBuyer, auth.RoleUser, auth.KYCRejected), action: ActionDispute, err: ErrInsufficientKYC},
		{name: "state before kyc", status: StatusShipped, actor: actorFor("10", RoleBuyer, auth.RoleUser, auth.KYCPending), action: ActionRelease, err: ErrInvalidTransition},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := Decide(sampleOrder(tc.status), tc.actor, tc.action)
			if tc.err != nil {
				if !errors.Is(err, tc.err) {
					t.Fatalf("expected %v, got %v (outcome %+v)", tc.err, err, out)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if out.To != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, out.To)
			}
		})
	}
}

func TestDecide_SettlementsMatchTerminalStates(t *testing.T) {
	actors := []Actor{buyer, seller, logistics, admin, support}
	actions := []Action{ActionPay, ActionShip, ActionDeliver, ActionRelease, ActionDispute, ActionResolveRelease, ActionResolveRefund}
	statuses := []Status{StatusCreated, StatusPaid, StatusShipped, StatusDelivered, StatusCompleted, StatusDisputed, StatusRefunded, StatusOverridden}

	for _, st := range statuses {
		o := sampleOrder(st)
		for _, a := range actors {
			for _, act := range actions {
				out, err := Decide(o, a, act)
				if st.Settled() {
					if err == nil {
						t.Fatalf("%s %s by %s: settled orders must not move, got %s", st, act, a.Role, out.To)
					}
					continue
				}
				if err != nil {
					continue
				}
				if out.EscrowReleased() != out.To.Settled() {
					t.Fatalf("%s %s: settlement %v does not match target %s", st, act, out.EscrowReleased(), out.To)
				}
				if s := out.Settlement; s != nil {
					if !s.Amount.Equal(o.TotalAmount) {
						t.Fatalf("%s %s: settlement %s, want %s", st, act, s.Amount, o.TotalAmount)
					}
					wantBeneficiary := o.SellerID
					if s.Kind == wallet.EntryRefund {
						wantBeneficiary = o.BuyerID
					}
					if s.Beneficiary != wantBeneficiary {
						t.Fatalf("%s %s: credited %s, want %s", st, act, s.Beneficiary, wantBeneficiary)
					}
				}
			}
		}
	}
}
