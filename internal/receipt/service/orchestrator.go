// Package service drives the receipt pipeline: one critical section
// per order from sufficiency evaluation through notification.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smallbiznis/receiptor/internal/artifact"
	"github.com/smallbiznis/receiptor/internal/config"
	invoiceservice "github.com/smallbiznis/receiptor/internal/invoice/service"
	"github.com/smallbiznis/receiptor/internal/lease"
	"github.com/smallbiznis/receiptor/internal/ledger"
	"github.com/smallbiznis/receiptor/internal/metrics"
	"github.com/smallbiznis/receiptor/internal/notification"
	orderdomain "github.com/smallbiznis/receiptor/internal/order/domain"
	"github.com/smallbiznis/receiptor/internal/providers/email"
	"github.com/smallbiznis/receiptor/internal/providers/pdf"
	receiptdomain "github.com/smallbiznis/receiptor/internal/receipt/domain"
	"github.com/smallbiznis/receiptor/internal/receipt/render"
	"github.com/smallbiznis/receiptor/pkg/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type OrchestratorParam struct {
	fx.In

	Log        *zap.Logger
	Orders     orderdomain.Repository
	Evaluator  *ledger.Evaluator
	Numbering  *invoiceservice.Numbering
	Renderer   *render.Renderer
	PDF        pdf.Provider
	Artifacts  artifact.Store
	Dispatcher *notification.Dispatcher
	Leases     *lease.Manager
	Policy     *config.ReceiptPolicyHolder
	Metrics    *metrics.Pipeline `optional:"true"`
}

// Orchestrator serializes all receipt processing per order
// identifier and walks the pipeline stages in order. Numbering and
// storage are the durable facts of record; notification failure never
// unwinds them.
type Orchestrator struct {
	log        *zap.Logger
	orders     orderdomain.Repository
	evaluator  *ledger.Evaluator
	numbering  *invoiceservice.Numbering
	renderer   *render.Renderer
	pdf        pdf.Provider
	artifacts  artifact.Store
	dispatcher *notification.Dispatcher
	leases     *lease.Manager
	policy     *config.ReceiptPolicyHolder
	metrics    *metrics.Pipeline
}

func NewOrchestrator(p OrchestratorParam) *Orchestrator {
	return &Orchestrator{
		log:        p.Log.Named("receipt.orchestrator"),
		orders:     p.Orders,
		evaluator:  p.Evaluator,
		numbering:  p.Numbering,
		renderer:   p.Renderer,
		pdf:        p.PDF,
		artifacts:  p.Artifacts,
		dispatcher: p.Dispatcher,
		leases:     p.Leases,
		policy:     p.Policy,
		metrics:    p.Metrics,
	}
}

// Process runs the pipeline for one normalized trigger. Insufficient
// payment and already-processed orders are normal no-op outcomes; the
// returned error is non-nil only for failure-class aborts.
func (o *Orchestrator) Process(ctx context.Context, event receiptdomain.TriggerEvent) (receiptdomain.Outcome, error) {
	outcome := receiptdomain.Outcome{OrderID: event.OrderID}

	release, err := o.leases.Acquire(ctx, "receipt:order:"+event.OrderID.String())
	if err != nil {
		if errors.Is(err, lease.ErrLockTimeout) {
			return o.abort(outcome, receiptdomain.StageEvaluating, receiptdomain.AbortLockTimeout), err
		}
		return outcome, err
	}
	defer release()

	return o.run(ctx, event, outcome)
}

func (o *Orchestrator) run(ctx context.Context, event receiptdomain.TriggerEvent, outcome receiptdomain.Outcome) (receiptdomain.Outcome, error) {
	log := o.log.With(
		zap.String("order_id", event.OrderID.String()),
		zap.String("trigger", string(event.Kind)),
	)

	// Fresh read inside the lease: a concurrent run may have advanced
	// this order before we were admitted.
	order, err := o.orders.GetOrder(ctx, event.OrderID)
	if err != nil {
		return outcome, err
	}

	// Evaluating
	sufficiency, err := o.evaluator.Evaluate(ctx, order)
	if err != nil {
		if errors.Is(err, money.ErrCurrencyMismatch) {
			log.Error("currency mismatch in payment ledger", zap.Error(err))
			return o.abort(outcome, receiptdomain.StageEvaluating, receiptdomain.AbortCurrencyMismatch), err
		}
		return outcome, err
	}
	switch sufficiency {
	case ledger.NoPayments:
		return o.abort(outcome, receiptdomain.StageEvaluating, receiptdomain.AbortNoPayments), nil
	case ledger.Insufficient:
		return o.abort(outcome, receiptdomain.StageEvaluating, receiptdomain.AbortInsufficient), nil
	}

	if order.HasInvoiceNumber() && order.ArtifactPath != nil {
		return o.abort(outcome, receiptdomain.StageEvaluating, receiptdomain.AbortAlreadyProcessed), nil
	}

	// Numbering
	number, err := o.numbering.AssignIfNeeded(ctx, order)
	if err != nil {
		return outcome, err
	}
	if number == nil {
		if !order.HasInvoiceNumber() {
			// Order type has no invoicing capability.
			return o.abort(outcome, receiptdomain.StageNumbering, receiptdomain.AbortNotInvoiced), nil
		}
		// Recovery path: number committed earlier, artifact still
		// missing. Confirm the existing number and continue.
		number, err = o.numbering.NumberFor(ctx, order)
		if err != nil {
			return outcome, err
		}
		if number == nil {
			return o.abort(outcome, receiptdomain.StageNumbering, receiptdomain.AbortNotInvoiced), nil
		}
	}
	outcome.InvoiceNumber = number.Full()

	orderType, err := o.orders.GetOrderType(ctx, order.OrderTypeID)
	if err != nil {
		return outcome, err
	}
	if !orderType.SendReceipt {
		// The number, once committed, stays committed.
		return o.abort(outcome, receiptdomain.StageNumbering, receiptdomain.AbortReceiptDisabled), nil
	}
	if order.Email == "" {
		log.Warn("order has no email recipient")
		return o.abort(outcome, receiptdomain.StageNumbering, receiptdomain.AbortNoRecipient), nil
	}

	// Rendering: both the PDF document and the message body. Any
	// render failure aborts before artifact or notification side
	// effects; the assigned number remains for the recovery sweep.
	view := buildReceiptView(order, number.Full())
	pdfBytes, err := o.pdf.GenerateReceipt(ctx, view)
	if err != nil {
		log.Error("receipt pdf render failed", zap.Error(err))
		return o.abort(outcome, receiptdomain.StageRendering, receiptdomain.AbortRenderFailed),
			fmt.Errorf("%w: %v", receiptdomain.ErrRenderFailed, err)
	}
	body, err := o.renderer.RenderHTML(view)
	if err != nil {
		log.Error("receipt body render failed", zap.Error(err))
		return o.abort(outcome, receiptdomain.StageRendering, receiptdomain.AbortRenderFailed),
			fmt.Errorf("%w: %v", receiptdomain.ErrRenderFailed, err)
	}

	// Storing
	policy := o.policy.Get()
	filename := number.Filename(pdf.Extension)
	ref, err := o.artifacts.Store(ctx, policy.StorageDir, filename, pdfBytes)
	if err != nil {
		log.Error("receipt artifact store failed", zap.Error(err))
		return o.abort(outcome, receiptdomain.StageStoring, receiptdomain.AbortStorageUnavailable), err
	}
	if err := o.orders.SetArtifactPath(ctx, order.ID, ref.Path); err != nil {
		return outcome, err
	}
	outcome.ArtifactPath = ref.Path

	// Notifying: delivery failure is reported and counted, never
	// rolled back into numbering or storage.
	msg := notification.Message{
		Recipient: order.Email,
		Locale:    o.dispatcher.ResolveLocale(customerLocale(order)),
		HTMLBody:  body,
		Bcc:       orderType.BccList(),
	}
	msg.Subject = o.dispatcher.ComposeSubject(msg.Locale, order.OrderNumber)
	if policy.AttachPDF {
		msg.Attachments = []email.Attachment{{
			Filename: filename,
			MIMEType: "application/pdf",
			Data:     pdfBytes,
		}}
	}
	if err := o.dispatcher.Send(ctx, msg); err != nil {
		if o.metrics != nil {
			o.metrics.NotificationsFailed.Inc()
		}
	} else {
		outcome.NotificationSent = true
	}

	outcome.Done = true
	outcome.Stage = receiptdomain.StageDone
	if o.metrics != nil {
		o.metrics.ReceiptsIssued.Inc()
	}
	log.Info("receipt issued",
		zap.String("invoice_number", outcome.InvoiceNumber),
		zap.String("artifact_path", outcome.ArtifactPath),
		zap.Bool("notification_sent", outcome.NotificationSent),
	)
	return outcome, nil
}

// Resume re-runs the pipeline for orders that committed a number but
// never stored an artifact, e.g. after a crash between stages.
func (o *Orchestrator) Resume(ctx context.Context, limit int) ([]receiptdomain.Outcome, error) {
	orders, err := o.orders.ListNumberedWithoutArtifact(ctx, limit)
	if err != nil {
		return nil, err
	}

	outcomes := make([]receiptdomain.Outcome, 0, len(orders))
	for _, order := range orders {
		outcome, err := o.Process(ctx, receiptdomain.TriggerEvent{
			Kind:    receiptdomain.TriggerPaymentSettled,
			OrderID: order.ID,
		})
		if err != nil {
			o.log.Warn("recovery run failed",
				zap.String("order_id", order.ID.String()),
				zap.Error(err),
			)
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

func (o *Orchestrator) abort(outcome receiptdomain.Outcome, stage receiptdomain.Stage, reason receiptdomain.AbortReason) receiptdomain.Outcome {
	outcome.Stage = stage
	outcome.Reason = reason
	if o.metrics != nil {
		o.metrics.RunsAborted.WithLabelValues(string(reason)).Inc()
	}
	return outcome
}

func customerLocale(order *orderdomain.Order) *string {
	if order.CustomerID == nil {
		// Guest checkout: no stored preference even if a locale string
		// is present on the order.
		return nil
	}
	return order.PreferredLocale
}

func buildReceiptView(order *orderdomain.Order, invoiceNumber string) receiptdomain.ReceiptView {
	view := receiptdomain.ReceiptView{
		OrderNumber:   order.OrderNumber,
		InvoiceNumber: invoiceNumber,
		Email:         order.Email,
		DatePaid:      time.Now().UTC().Format("January 2, 2006"),
		Currency:      order.Currency,
		Total:         order.TotalPrice().Format(),
	}
	if len(order.BillingProfile) > 0 {
		view.Billing = &receiptdomain.BillingView{
			Name:    profileField(order, "name"),
			Address: profileField(order, "address"),
			Country: profileField(order, "country"),
		}
	}
	return view
}

func profileField(order *orderdomain.Order, key string) string {
	if v, ok := order.BillingProfile[key].(string); ok {
		return v
	}
	return ""
}
