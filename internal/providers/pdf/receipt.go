package pdf

import (
	"context"
	"fmt"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
	receiptdomain "github.com/smallbiznis/receiptor/internal/receipt/domain"
)

type PDFProvider struct{}

func New() *PDFProvider {
	return &PDFProvider{}
}

func (p *PDFProvider) GenerateReceipt(ctx context.Context, view receiptdomain.ReceiptView) ([]byte, error) {
	_ = ctx

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(40,
		text.NewCol(6, "Receipt", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		col.New(6),
	)

	// Receipt meta
	m.AddRow(20,
		col.New(6).Add(
			text.New("Invoice number: "+view.InvoiceNumber, props.Text{Top: 0}),
			text.New("Order: #"+view.OrderNumber, props.Text{Top: 4}),
			text.New("Date paid: "+view.DatePaid, props.Text{Top: 8}),
		),
		col.New(6),
	)

	if view.Billing != nil {
		m.AddRow(30,
			col.New(6).Add(
				text.New("Bill to", props.Text{Style: fontstyle.Bold}),
				text.New(view.Billing.Name, props.Text{Top: 5}),
				text.New(view.Billing.Address, props.Text{Top: 9}),
				text.New(view.Billing.Country, props.Text{Top: 13}),
			),
			col.New(6),
		)
	}

	// Payment confirmation
	m.AddRow(15,
		text.NewCol(12, view.Total+" paid on "+view.DatePaid, props.Text{
			Size:  14,
			Style: fontstyle.Bold,
			Top:   5,
		}),
	)

	m.AddRow(10,
		col.New(8),
		text.NewCol(2, "Total", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, view.Total, props.Text{Size: 9, Align: align.Right}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate receipt pdf: %w", err)
	}
	return doc.GetBytes(), nil
}
