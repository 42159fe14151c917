// Package domain contains persistence models for orders.
package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/receiptor/pkg/money"
	"gorm.io/datatypes"
)

// OrderState represents order lifecycle states. Owned by external order
// management; this service only reads it.
type OrderState string

const (
	OrderStateDraft     OrderState = "draft"
	OrderStateValidate  OrderState = "validate"
	OrderStateCompleted OrderState = "completed"
	OrderStateCanceled  OrderState = "canceled"
)

// Order represents a customer purchase record. The only fields this
// service writes are the invoice-number fields and the artifact path.
type Order struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	OrderNumber string       `gorm:"type:text;not null;uniqueIndex"`
	OrderTypeID string       `gorm:"type:text;not null;index"`
	State       OrderState   `gorm:"type:text;not null"`

	TotalAmount int64  `gorm:"not null"`
	Currency    string `gorm:"type:text;not null"`

	Email           string        `gorm:"type:text"`
	CustomerID      *snowflake.ID `gorm:"index"`
	PreferredLocale *string       `gorm:"type:text"`

	BillingProfile datatypes.JSONMap `gorm:"type:jsonb"`

	InvoiceNumber         *string `gorm:"type:text;uniqueIndex"`
	InvoiceNumberAutofill bool    `gorm:"not null;default:false"`
	ArtifactPath          *string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Order) TableName() string { return "orders" }

// TotalPrice returns the order total as a money amount.
func (o Order) TotalPrice() money.Amount {
	return money.New(o.TotalAmount, o.Currency)
}

// HasInvoiceNumber reports whether a number is durably assigned:
// either manually set, or autofilled with a non-empty value.
func (o Order) HasInvoiceNumber() bool {
	if o.InvoiceNumber == nil || *o.InvoiceNumber == "" {
		return false
	}
	return true
}

// OrderType carries per-category receipt configuration. Read-only,
// externally owned. A nil series means the order type has no
// invoicing capability.
type OrderType struct {
	ID          string `gorm:"primaryKey;type:text"`
	Label       string `gorm:"type:text"`
	SendReceipt bool   `gorm:"not null"`
	ReceiptBcc  string `gorm:"type:text"`

	SeriesID *string `gorm:"type:text;index"`
}

// TableName sets the database table name.
func (OrderType) TableName() string { return "order_types" }

// BccList splits the configured blind-copy addresses.
func (t OrderType) BccList() []string {
	if strings.TrimSpace(t.ReceiptBcc) == "" {
		return nil
	}
	parts := strings.Split(t.ReceiptBcc, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

var (
	ErrOrderNotFound     = errors.New("order_not_found")
	ErrOrderTypeNotFound = errors.New("order_type_not_found")
)

// Repository is the externally-owned order persistence consumed by
// this service. Writes are restricted to the invoice-number and
// artifact fields.
type Repository interface {
	GetOrder(ctx context.Context, id snowflake.ID) (*Order, error)
	GetOrderType(ctx context.Context, id string) (*OrderType, error)
	SetArtifactPath(ctx context.Context, orderID snowflake.ID, path string) error

	// ListNumberedWithoutArtifact supports the external recovery sweep:
	// orders that committed a number but never stored a receipt.
	ListNumberedWithoutArtifact(ctx context.Context, limit int) ([]Order, error)
}
