// Package notification composes and delivers receipt messages.
package notification

import (
	"context"
	"fmt"

	"github.com/smallbiznis/receiptor/internal/config"
	"github.com/smallbiznis/receiptor/internal/providers/email"
	receiptdomain "github.com/smallbiznis/receiptor/internal/receipt/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/text/language"
)

// subjectFormats are the localized subject lines; the order number is
// interpolated. Matching picks the closest supported tag.
var subjectFormats = map[language.Tag]string{
	language.English: "Invoice for order #%s",
	language.French:  "Facture pour la commande n°%s",
	language.German:  "Rechnung für Bestellung #%s",
	language.Spanish: "Factura del pedido n.º %s",
}

var supportedLocales = []language.Tag{
	language.English,
	language.French,
	language.German,
	language.Spanish,
}

var localeMatcher = language.NewMatcher(supportedLocales)

// Message is one receipt notification.
type Message struct {
	Recipient   string
	Locale      language.Tag
	Subject     string
	HTMLBody    string
	Bcc         []string
	Attachments []email.Attachment
}

type DispatcherParam struct {
	fx.In

	Provider email.Provider
	Policy   *config.ReceiptPolicyHolder
	Log      *zap.Logger
}

// Dispatcher resolves locales, composes subjects, and hands messages
// to the mail transport. Delivery retries, if any, belong to the
// transport.
type Dispatcher struct {
	provider email.Provider
	policy   *config.ReceiptPolicyHolder
	log      *zap.Logger
}

func NewDispatcher(p DispatcherParam) *Dispatcher {
	return &Dispatcher{
		provider: p.Provider,
		policy:   p.Policy,
		log:      p.Log.Named("notification.dispatcher"),
	}
}

// ResolveLocale prefers the customer's stored locale and falls back
// to the configured system default (e.g. guest checkout without a
// stored preference).
func (d *Dispatcher) ResolveLocale(preferred *string) language.Tag {
	if preferred != nil && *preferred != "" {
		if tag, err := language.Parse(*preferred); err == nil {
			return tag
		}
	}
	tag, err := language.Parse(d.policy.Get().DefaultLocale)
	if err != nil {
		return language.English
	}
	return tag
}

// ComposeSubject builds the localized subject carrying the
// human-facing order number.
func (d *Dispatcher) ComposeSubject(locale language.Tag, orderNumber string) string {
	_, idx, _ := localeMatcher.Match(locale)
	format := subjectFormats[supportedLocales[idx]]
	return fmt.Sprintf(format, orderNumber)
}

// Send delivers the message. Failures surface as ErrDeliveryFailed
// with the transport error attached; this layer never retries.
func (d *Dispatcher) Send(ctx context.Context, msg Message) error {
	err := d.provider.Send(ctx, []string{msg.Recipient}, msg.Bcc, msg.Subject, msg.HTMLBody, msg.Attachments)
	if err != nil {
		d.log.Error("receipt delivery failed",
			zap.String("recipient", msg.Recipient),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %v", receiptdomain.ErrDeliveryFailed, err)
	}
	return nil
}

// Module wires the dispatcher.
var Module = fx.Module("notification",
	fx.Provide(NewDispatcher),
)
