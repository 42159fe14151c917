// Package pdf renders receipt documents to PDF bytes.
package pdf

import (
	"context"

	receiptdomain "github.com/smallbiznis/receiptor/internal/receipt/domain"
	"go.uber.org/fx"
)

// Extension is the artifact file extension produced by this engine.
const Extension = "pdf"

// Provider turns a receipt view into document bytes. Pure and
// deterministic given its inputs.
type Provider interface {
	GenerateReceipt(ctx context.Context, view receiptdomain.ReceiptView) ([]byte, error)
}

// Module wires the maroto PDF engine.
var Module = fx.Module("providers.pdf",
	fx.Provide(func() Provider { return New() }),
)
