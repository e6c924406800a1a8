package order

import (
	"github.com/shopspring/decimal"

	"agrinetwork/wallet"
)

// Effect is the side effect attached to a transition row.
type Effect int

const (
	EffectNone Effect = iota
	EffectRelease
	EffectRefund
	EffectDispute
)

type transition struct {
	From        Status
	Action      Action
	Role        Role
	To          Status
	Effect      Effect
	RequiresKYC bool
}

// transitions is the complete set of legal moves. Anything not listed is rejected.
var transitions = []transition{
	{From: StatusCreated, Action: ActionPay, Role: RoleBuyer, To: StatusPaid},
	{From: StatusCreated, Action: ActionShip, Role: RoleSeller, To: StatusShipped},
	{From: StatusPaid, Action: ActionShip, Role: RoleSeller, To: StatusShipped},
	{From: StatusShipped, Action: ActionDeliver, Role: RoleLogistics, To: StatusDelivered},
	{From: StatusShipped, Action: ActionDeliver, Role: RoleSeller, To: StatusDelivered},
	{From: StatusDelivered, Action: ActionRelease, Role: RoleBuyer, To: StatusCompleted, Effect: EffectRelease, RequiresKYC: true},
	{From: StatusDelivered, Action: ActionDispute, Role: RoleBuyer, To: StatusDisputed, Effect: EffectDispute, RequiresKYC: true},
	{From: StatusDisputed, Action: ActionResolveRelease, Role: RoleAdmin, To: StatusOverridden, Effect: EffectRelease},
	{From: StatusDisputed, Action: ActionResolveRelease, Role: RoleSupport, To: StatusOverridden, Effect: EffectRelease},
	{From: StatusDisputed, Action: ActionResolveRefund, Role: RoleAdmin, To: StatusRefunded, Effect: EffectRefund},
	{From: StatusDisputed, Action: ActionResolveRefund, Role: RoleSupport, To: StatusRefunded, Effect: EffectRefund},
}

// Settlement is the wallet credit that accompanies a release or refund.
type Settlement struct {
	Beneficiary string
	Amount      decimal.Decimal
	Kind        wallet.EntryKind
}

// Outcome is the decided transition for one request.
type Outcome struct {
	From          Status
	To            Status
	Action        Action
	Effect        Effect
	Settlement    *Settlement
	SystemMessage string
}

// EscrowReleased reports whether the outcome pays out the escrow.
func (o Outcome) EscrowReleased() bool {
	return o.Settlement != nil
}

const disputeOpenedMessage = "Dispute opened by the buyer. Funds stay in escrow while the case is mediated; " +
	"an AI advisory verdict will follow and a support agent will make the final decision."

// Decide validates action against the transition table for the current order
// snapshot. Checks run in a fixed order: unknown action, actor legitimacy, current
// status, then identity verification.
func Decide(o Order, actor Actor, action Action) (Outcome, error) {
	var known, permitted bool
	var row *transition
	for i := range transitions {
		t := &transitions[i]
		if t.Action != action {
			continue
		}
		known = true
		if !actor.holds(t.Role, o) {
			continue
		}
		permitted = true
		if t.From == o.Status {
			row = t
			break
		}
	}

	switch {
	case !known:
		return Outcome{}, ErrInvalidTransition
	case !permitted:
		return Outcome{}, ErrForbidden
	case row == nil:
		return Outcome{}, ErrInvalidTransition
	case row.RequiresKYC && !actor.Account.KYCVerified():
		return Outcome{}, ErrInsufficientKYC
	}

	out := Outcome{From: o.Status, To: row.To, Action: action, Effect: row.Effect}
	switch row.Effect {
	case EffectRelease:
		out.Settlement = &Settlement{Beneficiary: o.SellerID, Amount: o.TotalAmount, Kind: wallet.EntryRelease}
	case EffectRefund:
		out.Settlement = &Settlement{Beneficiary: o.BuyerID, Amount: o.TotalAmount, Kind: wallet.EntryRefund}
	case EffectDispute:
		out.SystemMessage = disputeOpenedMessage
	}
	return out, nil
}
