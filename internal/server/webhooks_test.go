package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
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
	"github.com/smallbiznis/receiptor/internal/receipt/render"
	receiptservice "github.com/smallbiznis/receiptor/internal/receipt/service"
	"github.com/smallbiznis/receiptor/internal/trigger"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type webhookFixture struct {
	db     *gorm.DB
	engine *gin.Engine
	node   *snowflake.Node
}

func setupWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

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
	holder := config.NewStaticReceiptPolicyHolder(config.ReceiptPolicy{
		DefaultLocale: "en",
		StorageDir:    "receipts",
	})

	orch := receiptservice.NewOrchestrator(receiptservice.OrchestratorParam{
		Log:       log,
		Orders:    orders,
		Evaluator: ledger.NewEvaluator(payments, log),
		Numbering: invoiceservice.NewNumbering(invoiceservice.NumberingParam{
			DB:     db,
			Log:    log,
			Orders: orders,
		}),
		Renderer:  render.NewRenderer(),
		PDF:       pdf.New(),
		Artifacts: artifact.NewFSStore(afero.NewMemMapFs(), log),
		Dispatcher: notification.NewDispatcher(notification.DispatcherParam{
			Provider: &email.NoOpProvider{},
			Policy:   holder,
			Log:      log,
		}),
		Leases: lease.NewManager(lease.NewMemoryLocker(), 30*time.Second, 2*time.Second),
		Policy: holder,
	})

	engine := NewEngine()
	srv := NewServer(ServerParams{
		Gin:          engine,
		Cfg:          config.Config{HTTPAddr: ":0"},
		Log:          log,
		Normalizer:   trigger.NewNormalizer(orders, log),
		Orchestrator: orch,
	})
	registerRoutes(srv)

	return &webhookFixture{db: db, engine: engine, node: node}
}

func (f *webhookFixture) seed(t *testing.T) *orderdomain.Order {
	t.Helper()
	seriesID := "main"
	require.NoError(t, f.db.Create(&invoicedomain.Series{
		ID:       seriesID,
		Template: "INV-{YYYY}-{SEQ5}",
	}).Error)
	require.NoError(t, f.db.Create(&orderdomain.OrderType{
		ID:          "default",
		SendReceipt: true,
		SeriesID:    &seriesID,
	}).Error)
	order := &orderdomain.Order{
		ID:          f.node.Generate(),
		OrderNumber: "1001",
		OrderTypeID: "default",
		State:       orderdomain.OrderStateCompleted,
		TotalAmount: 10000,
		Currency:    "USD",
		Email:       "customer@example.com",
	}
	require.NoError(t, f.db.Create(order).Error)
	require.NoError(t, f.db.Create(&paymentdomain.Payment{
		ID:            f.node.Generate(),
		OrderID:       order.ID,
		State:         paymentdomain.PaymentStateCompleted,
		BalanceAmount: 10000,
		Currency:      "USD",
	}).Error)
	return order
}

func (f *webhookFixture) post(t *testing.T, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	return rec
}

func TestPaymentTransitionIssuesReceipt(t *testing.T) {
	f := setupWebhookFixture(t)
	order := f.seed(t)

	rec := f.post(t, "/v1/events/payment-transitions", gin.H{
		"payment_id": f.node.Generate(),
		"order_id":   order.ID,
		"to_state":   "receive",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp runResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Done)
	assert.NotEmpty(t, resp.InvoiceNumber)
	assert.NotEmpty(t, resp.ArtifactPath)
}

func TestPaymentTransitionNonSettlingIgnored(t *testing.T) {
	f := setupWebhookFixture(t)
	order := f.seed(t)

	rec := f.post(t, "/v1/events/payment-transitions", gin.H{
		"payment_id": f.node.Generate(),
		"order_id":   order.ID,
		"to_state":   "void",
	})

	assert.Equal(t, http.StatusAccepted, rec.Code)
	var reloaded orderdomain.Order
	require.NoError(t, f.db.First(&reloaded, "id = ?", order.ID).Error)
	assert.Nil(t, reloaded.InvoiceNumber)
}

func TestOrderTransitionValidateIssuesReceipt(t *testing.T) {
	f := setupWebhookFixture(t)
	order := f.seed(t)

	rec := f.post(t, "/v1/events/order-transitions", gin.H{
		"order_id":   order.ID,
		"from_state": "checkout",
		"to_state":   "validate",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp runResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Done)
}

func TestOrderTransitionOtherStateIgnored(t *testing.T) {
	f := setupWebhookFixture(t)
	order := f.seed(t)

	rec := f.post(t, "/v1/events/order-transitions", gin.H{
		"order_id":   order.ID,
		"from_state": "validate",
		"to_state":   "fulfill",
	})

	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestWebhookRejectsMalformedBody(t *testing.T) {
	f := setupWebhookFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/events/payment-transitions", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResumeEndpoint(t *testing.T) {
	f := setupWebhookFixture(t)
	order := f.seed(t)
	committed := "INV-2025-00009"
	require.NoError(t, f.db.Model(&orderdomain.Order{}).
		Where("id = ?", order.ID).
		Updates(map[string]any{
			"invoice_number":          committed,
			"invoice_number_autofill": true,
		}).Error)

	rec := f.post(t, "/v1/receipts/resume", gin.H{"limit": 10})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Runs []runResponse `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Runs, 1)
	assert.True(t, resp.Runs[0].Done)
	assert.Equal(t, committed, resp.Runs[0].InvoiceNumber)
}
