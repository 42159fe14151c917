// Package domain contains the read-only payment model.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/receiptor/pkg/money"
)

// PaymentState is the payment lifecycle state. Only Completed and
// Authorization count toward the order balance.
type PaymentState string

const (
	PaymentStateNew           PaymentState = "new"
	PaymentStateAuthorization PaymentState = "authorization"
	PaymentStateCompleted     PaymentState = "completed"
	PaymentStateRefunded      PaymentState = "refunded"
	PaymentStateVoided        PaymentState = "voided"
)

// Counts reports whether a payment in this state contributes to the
// paid total.
func (s PaymentState) Counts() bool {
	return s == PaymentStateCompleted || s == PaymentStateAuthorization
}

// Payment is a record of funds applied toward an order. Immutable
// from this service's perspective.
type Payment struct {
	ID            snowflake.ID `gorm:"primaryKey"`
	OrderID       snowflake.ID `gorm:"not null;index"`
	State         PaymentState `gorm:"type:text;not null"`
	BalanceAmount int64        `gorm:"not null"`
	Currency      string       `gorm:"type:text;not null"`
	CreatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Payment) TableName() string { return "payments" }

// Balance returns the payment balance as a money amount.
func (p Payment) Balance() money.Amount {
	return money.New(p.BalanceAmount, p.Currency)
}

// Repository is the externally-owned payment persistence, read-only here.
type Repository interface {
	GetPayment(ctx context.Context, id snowflake.ID) (*Payment, error)
	ListCounting(ctx context.Context, orderID snowflake.ID) ([]Payment, error)
}
