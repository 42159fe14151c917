// Package domain defines the receipt pipeline's trigger events,
// stages, abort reasons, and renderer views.
package domain

import (
	"errors"

	"github.com/bwmarrin/snowflake"
)

// TriggerKind identifies the normalized trigger sort.
type TriggerKind string

const (
	TriggerOrderValidated TriggerKind = "order_validated"
	TriggerPaymentSettled TriggerKind = "payment_settled"
)

// TriggerEvent is a normalized signal that an order warrants invoice
// evaluation.
type TriggerEvent struct {
	Kind    TriggerKind
	OrderID snowflake.ID
}

// Stage names a step of the receipt pipeline.
type Stage string

const (
	StageEvaluating Stage = "evaluating"
	StageNumbering  Stage = "numbering"
	StageRendering  Stage = "rendering"
	StageStoring    Stage = "storing"
	StageNotifying  Stage = "notifying"
	StageDone       Stage = "done"
)

// AbortReason classifies why a run ended before Done. Insufficient
// payment and already-processed are normal outcomes, not failures.
type AbortReason string

const (
	AbortNone               AbortReason = ""
	AbortNoPayments         AbortReason = "no_payments"
	AbortInsufficient       AbortReason = "insufficient"
	AbortNotInvoiced        AbortReason = "not_invoiced"
	AbortAlreadyProcessed   AbortReason = "already_processed"
	AbortReceiptDisabled    AbortReason = "receipt_disabled"
	AbortNoRecipient        AbortReason = "no_recipient"
	AbortLockTimeout        AbortReason = "lock_timeout"
	AbortCurrencyMismatch   AbortReason = "currency_mismatch"
	AbortRenderFailed       AbortReason = "render_failed"
	AbortStorageUnavailable AbortReason = "storage_unavailable"
)

// Outcome reports how a run for one order ended.
type Outcome struct {
	OrderID          snowflake.ID
	Done             bool
	Reason           AbortReason
	Stage            Stage
	InvoiceNumber    string
	ArtifactPath     string
	NotificationSent bool
}

var (
	ErrRenderFailed       = errors.New("render_failed")
	ErrStorageUnavailable = errors.New("storage_unavailable")
	ErrDeliveryFailed     = errors.New("delivery_failed")
)

// ReceiptView is the structured document handed to the renderers:
// order summary, computed totals, and billing information.
type ReceiptView struct {
	OrderNumber   string
	InvoiceNumber string
	Email         string
	DatePaid      string
	Currency      string
	Total         string

	Billing *BillingView
}

// BillingView is the billing profile projection, present only when
// the order carries a billing profile.
type BillingView struct {
	Name    string
	Address string
	Country string
}
