// Package service implements the invoice numbering authority.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	invoicedomain "github.com/smallbiznis/receiptor/internal/invoice/domain"
	invoiceformat "github.com/smallbiznis/receiptor/internal/invoice/format"
	orderdomain "github.com/smallbiznis/receiptor/internal/order/domain"
	"github.com/smallbiznis/receiptor/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var errAlreadyClaimed = errors.New("invoice number already claimed")

type NumberingParam struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Orders orderdomain.Repository
}

// Numbering assigns invoice numbers exactly once per order. The
// check and the generation run as one transaction; the caller holds
// the per-order lease around the whole pipeline.
type Numbering struct {
	db     *gorm.DB
	log    *zap.Logger
	orders orderdomain.Repository
}

func NewNumbering(p NumberingParam) *Numbering {
	return &Numbering{
		db:     p.DB,
		log:    p.Log.Named("invoice.numbering"),
		orders: p.Orders,
	}
}

// AssignIfNeeded returns the newly assigned number, or nil when the
// order type has no series (no invoicing capability) or a number is
// already committed. A nil result with nil error is a normal outcome,
// not a failure.
func (n *Numbering) AssignIfNeeded(ctx context.Context, order *orderdomain.Order) (*invoicedomain.InvoiceNumber, error) {
	orderType, err := n.orders.GetOrderType(ctx, order.OrderTypeID)
	if err != nil {
		return nil, err
	}
	if orderType.SeriesID == nil {
		return nil, nil
	}

	// A manually set number, or a previously autofilled one, is final.
	if order.HasInvoiceNumber() {
		return nil, nil
	}

	var assigned *invoicedomain.InvoiceNumber
	err = n.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		series, err := n.incrementSeries(ctx, tx, *orderType.SeriesID)
		if err != nil {
			return err
		}

		value, err := invoiceformat.FormatNumber(series.Template, time.Now().UTC(), series.Counter)
		if err != nil {
			return err
		}

		claimed, err := n.claimOrderNumber(ctx, tx, order, value)
		if err != nil {
			return err
		}
		if !claimed {
			// A concurrent run committed a number first; roll back the
			// counter increment so the series stays gapless.
			return errAlreadyClaimed
		}

		assigned = &invoicedomain.InvoiceNumber{Value: value, Suffix: series.Suffix}
		return nil
	})
	if errors.Is(err, errAlreadyClaimed) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if assigned != nil {
		order.InvoiceNumber = &assigned.Value
		order.InvoiceNumberAutofill = true
		n.log.Info("invoice number assigned",
			zap.String("order_id", order.ID.String()),
			zap.String("invoice_number", assigned.Full()),
		)
	}
	return assigned, nil
}

// NumberFor reconstructs the committed number of an already-numbered
// order, resolving the series suffix. Used on the recovery path.
func (n *Numbering) NumberFor(ctx context.Context, order *orderdomain.Order) (*invoicedomain.InvoiceNumber, error) {
	if !order.HasInvoiceNumber() {
		return nil, nil
	}
	suffix := ""
	orderType, err := n.orders.GetOrderType(ctx, order.OrderTypeID)
	if err != nil {
		return nil, err
	}
	if orderType.SeriesID != nil {
		var series invoicedomain.Series
		if err := n.db.WithContext(ctx).First(&series, "id = ?", *orderType.SeriesID).Error; err == nil {
			suffix = series.Suffix
		}
	}
	return &invoicedomain.InvoiceNumber{Value: *order.InvoiceNumber, Suffix: suffix}, nil
}

// incrementSeries bumps the monotonic counter and reads the row back
// inside the transaction. The single UPDATE is atomic on every
// supported dialect.
func (n *Numbering) incrementSeries(ctx context.Context, tx *gorm.DB, seriesID string) (*invoicedomain.Series, error) {
	result := tx.WithContext(ctx).Exec(
		`UPDATE invoice_series
		 SET counter = counter + 1, updated_at = ?
		 WHERE id = ?`,
		time.Now().UTC(),
		seriesID,
	)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, invoicedomain.ErrSeriesNotFound
	}

	var series invoicedomain.Series
	if err := tx.WithContext(ctx).Raw(
		`SELECT id, template, suffix, counter FROM invoice_series WHERE id = ?`,
		seriesID,
	).Scan(&series).Error; err != nil {
		return nil, err
	}
	return &series, nil
}

// claimOrderNumber writes the number only when none is present yet.
// An empty string counts as unnumbered, same as HasInvoiceNumber. Two
// concurrent evaluations cannot both claim: the losing UPDATE matches
// zero rows.
func (n *Numbering) claimOrderNumber(ctx context.Context, tx *gorm.DB, order *orderdomain.Order, value string) (bool, error) {
	result := tx.WithContext(ctx).Exec(
		`UPDATE orders
		 SET invoice_number = ?, invoice_number_autofill = ?, updated_at = ?
		 WHERE id = ? AND (invoice_number IS NULL OR invoice_number = '')`,
		value,
		true,
		time.Now().UTC(),
		order.ID,
	)
	if result.Error != nil {
		if db.IsDuplicateKeyErr(result.Error) {
			return false, fmt.Errorf("%w: %s", invoicedomain.ErrNumberInUse, value)
		}
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
