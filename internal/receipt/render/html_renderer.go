// Package render produces the HTML receipt message body. This render
// pass is distinct from the PDF render.
package render

import (
	"bytes"
	"fmt"
	"html/template"

	receiptdomain "github.com/smallbiznis/receiptor/internal/receipt/domain"
)

const receiptHTMLTemplate = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <title>Receipt for order #{{.OrderNumber}}</title>
  <style>
    body {
      margin: 0;
      padding: 32px;
      font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Helvetica, Arial, sans-serif;
      color: #1a1f36;
      background: #f7f9fc;
    }
    .receipt-card {
      background: #ffffff;
      max-width: 640px;
      margin: 0 auto;
      padding: 40px;
      border-radius: 4px;
      box-shadow: 0 2px 5px rgba(0,0,0,0.04);
    }
    h1 { font-size: 20px; margin: 0 0 24px; }
    .meta { color: #8792a2; font-size: 14px; margin-bottom: 24px; }
    .total {
      font-size: 24px;
      font-weight: 700;
      margin: 24px 0;
    }
    .billing { font-size: 14px; line-height: 1.5; }
    .billing h2 { font-size: 14px; margin: 24px 0 8px; }
  </style>
</head>
<body>
  <div class="receipt-card">
    <h1>Receipt for order #{{.OrderNumber}}</h1>
    <div class="meta">
      {{if .InvoiceNumber}}<div>Invoice number: {{.InvoiceNumber}}</div>{{end}}
      <div>Date paid: {{.DatePaid}}</div>
    </div>
    <div class="total">{{.Total}}</div>
    {{if .Billing}}
    <div class="billing">
      <h2>Billing information</h2>
      <div>{{.Billing.Name}}</div>
      <div>{{.Billing.Address}}</div>
      <div>{{.Billing.Country}}</div>
    </div>
    {{end}}
  </div>
</body>
</html>`

var receiptTmpl = template.Must(template.New("receipt").Parse(receiptHTMLTemplate))

// Renderer renders the receipt body. Deterministic given its view.
type Renderer struct{}

func NewRenderer() *Renderer {
	return &Renderer{}
}

func (r *Renderer) RenderHTML(view receiptdomain.ReceiptView) (string, error) {
	var buf bytes.Buffer
	if err := receiptTmpl.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("render receipt body: %w", err)
	}
	return buf.String(), nil
}
