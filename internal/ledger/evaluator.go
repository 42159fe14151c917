// Package ledger evaluates payment sufficiency for an order by
// aggregating its counting payment records.
package ledger

import (
	"context"

	"github.com/smallbiznis/receiptor/internal/order/domain"
	paymentdomain "github.com/smallbiznis/receiptor/internal/payment/domain"
	"github.com/smallbiznis/receiptor/pkg/money"
	"go.uber.org/zap"
)

// Sufficiency classifies aggregate payments against the order total.
type Sufficiency int

const (
	// NoPayments means no completed or authorized payment exists.
	NoPayments Sufficiency = iota
	// Insufficient means the paid total is below the order total.
	Insufficient
	// Sufficient means the paid total equals the order total.
	Sufficient
	// Overpaid means the paid total exceeds the order total.
	Overpaid
)

func (s Sufficiency) String() string {
	switch s {
	case NoPayments:
		return "no_payments"
	case Insufficient:
		return "insufficient"
	case Sufficient:
		return "sufficient"
	case Overpaid:
		return "overpaid"
	default:
		return "unknown"
	}
}

// Covers reports whether the classification allows invoicing.
func (s Sufficiency) Covers() bool {
	return s == Sufficient || s == Overpaid
}

// Evaluator is a pure read over the payment ledger; safe to call
// repeatedly, no locking beyond the caller's per-order lease.
type Evaluator struct {
	payments paymentdomain.Repository
	log      *zap.Logger
}

func NewEvaluator(payments paymentdomain.Repository, log *zap.Logger) *Evaluator {
	return &Evaluator{
		payments: payments,
		log:      log.Named("ledger.evaluator"),
	}
}

// Evaluate sums the balances of counting payments and compares the
// order total against them. Currency mismatch between any payment and
// the order total is a hard error, never a coercion.
func (e *Evaluator) Evaluate(ctx context.Context, order *domain.Order) (Sufficiency, error) {
	payments, err := e.payments.ListCounting(ctx, order.ID)
	if err != nil {
		return NoPayments, err
	}
	if len(payments) == 0 {
		return NoPayments, nil
	}

	paid := money.New(0, order.Currency)
	for _, p := range payments {
		paid, err = paid.Add(p.Balance())
		if err != nil {
			e.log.Error("payment currency does not match order",
				zap.String("order_id", order.ID.String()),
				zap.String("payment_id", p.ID.String()),
				zap.String("order_currency", order.Currency),
				zap.String("payment_currency", p.Currency),
			)
			return NoPayments, err
		}
	}

	cmp, err := order.TotalPrice().Compare(paid)
	if err != nil {
		return NoPayments, err
	}
	switch {
	case cmp > 0:
		return Insufficient, nil
	case cmp < 0:
		return Overpaid, nil
	default:
		return Sufficient, nil
	}
}
