package order

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TopicCreated       = "order.created"
	TopicStatusChanged = "order.status_changed"
	TopicDisputed      = "order.disputed"
)

type StatusChangedEvent struct {
	OrderID        string          `json:"orderId"`
	BuyerID        string          `json:"buyerId"`
	SellerID       string          `json:"sellerId"`
	From           Status          `json:"from"`
	To             Status          `json:"to"`
	Action         Action          `json:"action"`
	ActorID        string          `json:"actorId"`
	ActorRole      Role            `json:"actorRole"`
	TotalAmount    decimal.Decimal `json:"totalAmount"`
	EscrowReleased bool            `json:"escrowReleased"`
	OccurredAt     time.Time       `json:"occurredAt"`
}

// DisputedEvent notifies both parties that mediation has started.
type DisputedEvent struct {
	OrderID    string    `json:"orderId"`
	Recipients []string  `json:"recipients"`
	OpenedBy   string    `json:"openedBy"`
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurredAt"`
}

type CreatedEvent struct {
	OrderID     string          `json:"orderId"`
	BuyerID     string          `json:"buyerId"`
	SellerID    string          `json:"sellerId"`
	ProductID   string          `json:"productId"`
	Quantity    int             `json:"quantity"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	OccurredAt  time.Time       `json:"occurredAt"`
}

type event struct {
	topic   string
	payload any
}

func transitionEvents(o Order, out Outcome, actor Actor, at time.Time) []event {
	events := []event{{
		topic: TopicStatusChanged,
		payload: StatusChangedEvent{
			OrderID:        o.ID,
			BuyerID:        o.BuyerID,
			SellerID:       o.SellerID,
			From:           out.From,
			To:             out.To,
			Action:         out.Action,
			ActorID:        actor.ID,
			ActorRole:      actor.Role,
			TotalAmount:    o.TotalAmount,
			EscrowReleased: out.EscrowReleased(),
			OccurredAt:     at,
		},
	}}
	if out.Effect == EffectDispute {
		events = append(events, event{
			topic: TopicDisputed,
			payload: DisputedEvent{
				OrderID:    o.ID,
				Recipients: []string{o.BuyerID, o.SellerID},
				OpenedBy:   actor.ID,
				Message:    out.SystemMessage,
				OccurredAt: at,
			},
		})
	}
	return events
}
