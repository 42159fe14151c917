// Package trigger normalizes raw transition events into receipt
// trigger events.
package trigger

import (
	"context"

	"github.com/bwmarrin/snowflake"
	orderdomain "github.com/smallbiznis/receiptor/internal/order/domain"
	receiptdomain "github.com/smallbiznis/receiptor/internal/receipt/domain"
	"go.uber.org/zap"
)

// OrderPreTransition is the raw order lifecycle event consumed from
// the event bus.
type OrderPreTransition struct {
	OrderID   snowflake.ID `json:"order_id"`
	FromState string       `json:"from_state"`
	ToState   string       `json:"to_state"`
}

// PaymentPostTransition is the raw payment lifecycle event consumed
// from the event bus.
type PaymentPostTransition struct {
	PaymentID snowflake.ID `json:"payment_id"`
	OrderID   snowflake.ID `json:"order_id"`
	ToState   string       `json:"to_state"`
}

const orderValidateState = "validate"

var settlingPaymentStates = map[string]bool{
	"authorize":         true,
	"authorize_capture": true,
	"receive":           true,
}

// Normalizer filters raw transition events down to the zero or one
// trigger each produces.
type Normalizer struct {
	orders orderdomain.Repository
	log    *zap.Logger
}

func NewNormalizer(orders orderdomain.Repository, log *zap.Logger) *Normalizer {
	return &Normalizer{
		orders: orders,
		log:    log.Named("trigger.normalizer"),
	}
}

// NormalizeOrder emits OrderValidated for a validate pre-transition,
// nothing otherwise.
func (n *Normalizer) NormalizeOrder(ctx context.Context, raw OrderPreTransition) (*receiptdomain.TriggerEvent, error) {
	if raw.ToState != orderValidateState {
		return nil, nil
	}
	return &receiptdomain.TriggerEvent{
		Kind:    receiptdomain.TriggerOrderValidated,
		OrderID: raw.OrderID,
	}, nil
}

// NormalizePayment emits PaymentSettled for a settling payment
// transition against an already-completed order. Payments landing
// mid-checkout are suppressed: the validation transition covers those
// orders, and without the filter every checkout payment would race it.
func (n *Normalizer) NormalizePayment(ctx context.Context, raw PaymentPostTransition) (*receiptdomain.TriggerEvent, error) {
	if !settlingPaymentStates[raw.ToState] {
		return nil, nil
	}

	order, err := n.orders.GetOrder(ctx, raw.OrderID)
	if err != nil {
		return nil, err
	}
	if order.State != orderdomain.OrderStateCompleted {
		n.log.Debug("payment mid-checkout, trigger suppressed",
			zap.String("order_id", raw.OrderID.String()),
			zap.String("order_state", string(order.State)),
		)
		return nil, nil
	}

	return &receiptdomain.TriggerEvent{
		Kind:    receiptdomain.TriggerPaymentSettled,
		OrderID: raw.OrderID,
	}, nil
}
