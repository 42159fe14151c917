package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/receiptor/internal/artifact"
	"github.com/smallbiznis/receiptor/internal/config"
	invoicedomain "github.com/smallbiznis/receiptor/internal/invoice/domain"
	invoiceservice "github.com/smallbiznis/receiptor/internal/invoice/service"
	"github.com/smallbiznis/receiptor/internal/lease"
	"github.com/smallbiznis/receiptor/internal/ledger"
	"github.com/smallbiznis/receiptor/internal/notification"
	orderdomain "github.com/smallbiznis/receiptor/internal/order/domain"
	orderrepo "github.com/smallbiznis/receiptor/internal/order/repository"
	paymentdomain "github.com/smallbiznis/receiptor/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/receiptor/internal/payment/repository"
	"github.com/smallbiznis/receiptor/internal/providers/email"
	"github.com/smallbiznis/receiptor/internal/providers/pdf"
	receiptdomain "github.com/smallbiznis/receiptor/internal/receipt/domain"
	"github.com/smallbiznis/receiptor/internal/receipt/render"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type capturedMail struct {
	To          []string
	Bcc         []string
	Subject     string
	HTMLBody    string
	Attachments []email.Attachment
}

// capturingProvider records outgoing mail instead of delivering it.
type capturingProvider struct {
	mu   sync.Mutex
	sent []capturedMail
	fail bool
}

func (p *capturingProvider) Send(ctx context.Context, to []string, bcc []string, subject string, htmlBody string, attachments []email.Attachment) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("smtp unreachable")
	}
	p.sent = append(p.sent, capturedMail{
		To: to, Bcc: bcc, Subject: subject, HTMLBody: htmlBody, Attachments: attachments,
	})
	return nil
}

func (p *capturingProvider) messages() []capturedMail {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]capturedMail(nil), p.sent...)
}

type fixture struct {
	db   *gorm.DB
	fs   afero.Fs
	mail *capturingProvider
	orch *Orchestrator
	node *snowflake.Node
}

func setupFixture(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&orderdomain.Order{},
		&orderdomain.OrderType{},
		&paymentdomain.Payment{},
		&invoicedomain.Series{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	log := zap.NewNop()
	orders := orderrepo.Provide(db)
	payments := paymentrepo.Provide(db)
	numbering := invoiceservice.NewNumbering(invoiceservice.NumberingParam{
		DB:     db,
		Log:    log,
		Orders: orders,
	})

	policy := config.ReceiptPolicy{
		DefaultLocale: "en",
		StorageDir:    "receipts",
		AttachPDF:     false,
	}
	holder := config.NewStaticReceiptPolicyHolder(policy)

	fs := afero.NewMemMapFs()
	mail := &capturingProvider{}

	orch := NewOrchestrator(OrchestratorParam{
		Log:       log,
		Orders:    orders,
		Evaluator: ledger.NewEvaluator(payments, log),
		Numbering: numbering,
		Renderer:  render.NewRenderer(),
		PDF:       pdf.New(),
		Artifacts: artifact.NewFSStore(fs, log),
		Dispatcher: notification.NewDispatcher(notification.DispatcherParam{
			Provider: mail,
			Policy:   holder,
			Log:      log,
		}),
		Leases: lease.NewManager(lease.NewMemoryLocker(), 30*time.Second, 2*time.Second),
		Policy: holder,
	})

	return &fixture{
		db:   db,
		fs:   fs,
		mail: mail,
		orch: orch,
		node: node,
	}
}

func (f *fixture) seedSeries(t *testing.T, counter int64) {
	t.Helper()
	require.NoError(t, f.db.Create(&invoicedomain.Series{
		ID:       "main",
		Template: "INV-{YYYY}-{SEQ5}",
		Counter:  counter,
	}).Error)
}

func (f *fixture) seedOrderType(t *testing.T, mutate func(*orderdomain.OrderType)) {
	t.Helper()
	seriesID := "main"
	ot := &orderdomain.OrderType{
		ID:          "default",
		SendReceipt: true,
		SeriesID:    &seriesID,
	}
	if mutate != nil {
		mutate(ot)
	}
	require.NoError(t, f.db.Create(ot).Error)
}

func (f *fixture) seedOrder(t *testing.T, mutate func(*orderdomain.Order)) *orderdomain.Order {
	t.Helper()
	order := &orderdomain.Order{
		ID:          f.node.Generate(),
		OrderNumber: "1001",
		OrderTypeID: "default",
		State:       orderdomain.OrderStateCompleted,
		TotalAmount: 10000,
		Currency:    "USD",
		Email:       "customer@example.com",
	}
	if mutate != nil {
		mutate(order)
	}
	require.NoError(t, f.db.Create(order).Error)
	return order
}

func (f *fixture) seedPayment(t *testing.T, orderID snowflake.ID, state paymentdomain.PaymentState, amount int64) {
	t.Helper()
	require.NoError(t, f.db.Create(&paymentdomain.Payment{
		ID:            f.node.Generate(),
		OrderID:       orderID,
		State:         state,
		BalanceAmount: amount,
		Currency:      "USD",
	}).Error)
}

func (f *fixture) reload(t *testing.T, id snowflake.ID) *orderdomain.Order {
	t.Helper()
	var order orderdomain.Order
	require.NoError(t, f.db.First(&order, "id = ?", id).Error)
	return &order
}

func (f *fixture) seriesCounter(t *testing.T) int64 {
	t.Helper()
	var series invoicedomain.Series
	require.NoError(t, f.db.First(&series, "id = ?", "main").Error)
	return series.Counter
}

func settleTrigger(orderID snowflake.ID) receiptdomain.TriggerEvent {
	return receiptdomain.TriggerEvent{
		Kind:    receiptdomain.TriggerPaymentSettled,
		OrderID: orderID,
	}
}

func TestProcessIssuesReceipt(t *testing.T) {
	f := setupFixture(t)
	f.seedSeries(t, 41)
	f.seedOrderType(t, nil)
	order := f.seedOrder(t, nil)
	f.seedPayment(t, order.ID, paymentdomain.PaymentStateCompleted, 10000)

	outcome, err := f.orch.Process(context.Background(), settleTrigger(order.ID))
	require.NoError(t, err)

	wantNumber := fmt.Sprintf("INV-%d-00042", time.Now().UTC().Year())
	assert.True(t, outcome.Done)
	assert.Equal(t, receiptdomain.StageDone, outcome.Stage)
	assert.Equal(t, wantNumber, outcome.InvoiceNumber)
	assert.True(t, outcome.NotificationSent)

	wantPath := "receipts/" + wantNumber + ".pdf"
	assert.Equal(t, wantPath, outcome.ArtifactPath)
	data, err := afero.ReadFile(f.fs, wantPath)
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	reloaded := f.reload(t, order.ID)
	require.NotNil(t, reloaded.InvoiceNumber)
	assert.Equal(t, wantNumber, *reloaded.InvoiceNumber)
	require.NotNil(t, reloaded.ArtifactPath)
	assert.Equal(t, wantPath, *reloaded.ArtifactPath)

	msgs := f.mail.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, []string{"customer@example.com"}, msgs[0].To)
	assert.Contains(t, msgs[0].Subject, order.OrderNumber)
	assert.Contains(t, msgs[0].HTMLBody, wantNumber)
	assert.Empty(t, msgs[0].Attachments)
}

func TestProcessAuthorizationBelowTotal(t *testing.T) {
	f := setupFixture(t)
	f.seedSeries(t, 0)
	f.seedOrderType(t, nil)
	order := f.seedOrder(t, nil)
	f.seedPayment(t, order.ID, paymentdomain.PaymentStateAuthorization, 6000)

	outcome, err := f.orch.Process(context.Background(), settleTrigger(order.ID))
	require.NoError(t, err)

	assert.False(t, outcome.Done)
	assert.Equal(t, receiptdomain.AbortInsufficient, outcome.Reason)
	assert.Equal(t, receiptdomain.StageEvaluating, outcome.Stage)

	assert.Nil(t, f.reload(t, order.ID).InvoiceNumber)
	assert.EqualValues(t, 0, f.seriesCounter(t))
	assert.Empty(t, f.mail.messages())
}

func TestProcessNoPayments(t *testing.T) {
	f := setupFixture(t)
	f.seedSeries(t, 0)
	f.seedOrderType(t, nil)
	order := f.seedOrder(t, nil)

	outcome, err := f.orch.Process(context.Background(), settleTrigger(order.ID))
	require.NoError(t, err)

	assert.Equal(t, receiptdomain.AbortNoPayments, outcome.Reason)
	assert.Nil(t, f.reload(t, order.ID).InvoiceNumber)
	assert.EqualValues(t, 0, f.seriesCounter(t))
}

func TestProcessSecondRunIsNoOp(t *testing.T) {
	f := setupFixture(t)
	f.seedSeries(t, 0)
	f.seedOrderType(t, nil)
	order := f.seedOrder(t, nil)
	f.seedPayment(t, order.ID, paymentdomain.PaymentStateCompleted, 10000)

	first, err := f.orch.Process(context.Background(), settleTrigger(order.ID))
	require.NoError(t, err)
	require.True(t, first.Done)

	second, err := f.orch.Process(context.Background(), settleTrigger(order.ID))
	require.NoError(t, err)

	assert.False(t, second.Done)
	assert.Equal(t, receiptdomain.AbortAlreadyProcessed, second.Reason)
	assert.EqualValues(t, 1, f.seriesCounter(t))
	assert.Len(t, f.mail.messages(), 1)
}

func TestProcessConcurrentTriggersIssueOne(t *testing.T) {
	f := setupFixture(t)
	f.seedSeries(t, 0)
	f.seedOrderType(t, nil)
	order := f.seedOrder(t, nil)
	f.seedPayment(t, order.ID, paymentdomain.PaymentStateCompleted, 10000)

	const n = 6
	outcomes := make([]receiptdomain.Outcome, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], errs[i] = f.orch.Process(context.Background(), settleTrigger(order.ID))
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	var done int
	for _, out := range outcomes {
		if out.Done {
			done++
		} else {
			assert.Equal(t, receiptdomain.AbortAlreadyProcessed, out.Reason)
		}
	}
	assert.Equal(t, 1, done)
	assert.EqualValues(t, 1, f.seriesCounter(t))
	assert.Len(t, f.mail.messages(), 1)
}

func TestProcessReceiptDisabledStillNumbers(t *testing.T) {
	f := setupFixture(t)
	f.seedSeries(t, 0)
	f.seedOrderType(t, func(ot *orderdomain.OrderType) { ot.SendReceipt = false })
	order := f.seedOrder(t, nil)
	f.seedPayment(t, order.ID, paymentdomain.PaymentStateCompleted, 10000)

	outcome, err := f.orch.Process(context.Background(), settleTrigger(order.ID))
	require.NoError(t, err)

	assert.False(t, outcome.Done)
	assert.Equal(t, receiptdomain.AbortReceiptDisabled, outcome.Reason)
	assert.NotEmpty(t, outcome.InvoiceNumber)

	// The number is committed even though no receipt goes out.
	assert.NotNil(t, f.reload(t, order.ID).InvoiceNumber)
	assert.EqualValues(t, 1, f.seriesCounter(t))
	assert.Empty(t, f.mail.messages())
}

func TestProcessOrderTypeWithoutSeries(t *testing.T) {
	f := setupFixture(t)
	f.seedSeries(t, 0)
	f.seedOrderType(t, func(ot *orderdomain.OrderType) { ot.SeriesID = nil })
	order := f.seedOrder(t, nil)
	f.seedPayment(t, order.ID, paymentdomain.PaymentStateCompleted, 10000)

	outcome, err := f.orch.Process(context.Background(), settleTrigger(order.ID))
	require.NoError(t, err)

	assert.Equal(t, receiptdomain.AbortNotInvoiced, outcome.Reason)
	assert.Nil(t, f.reload(t, order.ID).InvoiceNumber)
	assert.EqualValues(t, 0, f.seriesCounter(t))
}

func TestProcessNoRecipient(t *testing.T) {
	f := setupFixture(t)
	f.seedSeries(t, 0)
	f.seedOrderType(t, nil)
	order := f.seedOrder(t, func(o *orderdomain.Order) { o.Email = "" })
	f.seedPayment(t, order.ID, paymentdomain.PaymentStateCompleted, 10000)

	outcome, err := f.orch.Process(context.Background(), settleTrigger(order.ID))
	require.NoError(t, err)

	assert.Equal(t, receiptdomain.AbortNoRecipient, outcome.Reason)
	assert.NotNil(t, f.reload(t, order.ID).InvoiceNumber)
	assert.Empty(t, f.mail.messages())
}

func TestProcessManualNumberKeepsIt(t *testing.T) {
	f := setupFixture(t)
	f.seedSeries(t, 7)
	f.seedOrderType(t, nil)
	manual := "INV-2024-00042"
	order := f.seedOrder(t, func(o *orderdomain.Order) { o.InvoiceNumber = &manual })
	f.seedPayment(t, order.ID, paymentdomain.PaymentStateCompleted, 10000)

	outcome, err := f.orch.Process(context.Background(), settleTrigger(order.ID))
	require.NoError(t, err)

	assert.True(t, outcome.Done)
	assert.Equal(t, manual, outcome.InvoiceNumber)
	assert.Equal(t, "receipts/INV-2024-00042.pdf", outcome.ArtifactPath)
	// The counter never moves for a manually numbered order.
	assert.EqualValues(t, 7, f.seriesCounter(t))
}

func TestProcessDeliveryFailureStillDone(t *testing.T) {
	f := setupFixture(t)
	f.seedSeries(t, 0)
	f.seedOrderType(t, nil)
	order := f.seedOrder(t, nil)
	f.seedPayment(t, order.ID, paymentdomain.PaymentStateCompleted, 10000)
	f.mail.fail = true

	outcome, err := f.orch.Process(context.Background(), settleTrigger(order.ID))
	require.NoError(t, err)

	assert.True(t, outcome.Done)
	assert.False(t, outcome.NotificationSent)
	assert.NotEmpty(t, outcome.ArtifactPath)
	assert.NotNil(t, f.reload(t, order.ID).ArtifactPath)
}

func TestProcessLockTimeout(t *testing.T) {
	f := setupFixture(t)
	f.seedSeries(t, 0)
	f.seedOrderType(t, nil)
	order := f.seedOrder(t, nil)
	f.seedPayment(t, order.ID, paymentdomain.PaymentStateCompleted, 10000)

	locker := lease.NewMemoryLocker()
	_, held, err := locker.TryLock(context.Background(), "receipt:order:"+order.ID.String(), 30*time.Second)
	require.NoError(t, err)
	require.True(t, held)

	orch := *f.orch
	orch.leases = lease.NewManager(locker, 30*time.Second, 50*time.Millisecond)

	outcome, err := orch.Process(context.Background(), settleTrigger(order.ID))
	require.ErrorIs(t, err, lease.ErrLockTimeout)
	assert.Equal(t, receiptdomain.AbortLockTimeout, outcome.Reason)
}

func TestProcessBccFromOrderType(t *testing.T) {
	f := setupFixture(t)
	f.seedSeries(t, 0)
	f.seedOrderType(t, func(ot *orderdomain.OrderType) {
		ot.ReceiptBcc = "finance@example.com, audit@example.com"
	})
	order := f.seedOrder(t, nil)
	f.seedPayment(t, order.ID, paymentdomain.PaymentStateCompleted, 10000)

	_, err := f.orch.Process(context.Background(), settleTrigger(order.ID))
	require.NoError(t, err)

	msgs := f.mail.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, []string{"finance@example.com", "audit@example.com"}, msgs[0].Bcc)
}

func TestResumePicksUpNumberedOrders(t *testing.T) {
	f := setupFixture(t)
	f.seedSeries(t, 3)
	f.seedOrderType(t, nil)
	committed := "INV-2025-00003"
	order := f.seedOrder(t, func(o *orderdomain.Order) {
		o.InvoiceNumber = &committed
		o.InvoiceNumberAutofill = true
	})
	f.seedPayment(t, order.ID, paymentdomain.PaymentStateCompleted, 10000)

	outcomes, err := f.orch.Resume(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)

	assert.True(t, outcomes[0].Done)
	assert.Equal(t, committed, outcomes[0].InvoiceNumber)
	assert.EqualValues(t, 3, f.seriesCounter(t))
	assert.NotNil(t, f.reload(t, order.ID).ArtifactPath)
}

func TestProcessEmptyAutofillValueGetsNumbered(t *testing.T) {
	f := setupFixture(t)
	f.seedSeries(t, 0)
	f.seedOrderType(t, nil)
	empty := ""
	order := f.seedOrder(t, func(o *orderdomain.Order) {
		o.InvoiceNumber = &empty
		o.InvoiceNumberAutofill = true
	})
	f.seedPayment(t, order.ID, paymentdomain.PaymentStateCompleted, 10000)

	outcome, err := f.orch.Process(context.Background(), settleTrigger(order.ID))
	require.NoError(t, err)

	assert.True(t, outcome.Done)
	assert.NotEmpty(t, outcome.InvoiceNumber)
	reloaded := f.reload(t, order.ID)
	require.NotNil(t, reloaded.InvoiceNumber)
	assert.Equal(t, outcome.InvoiceNumber, *reloaded.InvoiceNumber)
}
