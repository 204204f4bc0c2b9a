package integration

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	partnerapp "github.com/retail/ledger/internal/application/partner"
	salesapp "github.com/retail/ledger/internal/application/sales"
	"github.com/retail/ledger/internal/domain/partner"
	"github.com/retail/ledger/internal/domain/shared"
	"github.com/retail/ledger/internal/infrastructure/cache"
	"github.com/retail/ledger/internal/infrastructure/event"
	"github.com/retail/ledger/internal/infrastructure/persistence"
	"github.com/retail/ledger/internal/infrastructure/storage"
	"github.com/retail/ledger/internal/interfaces/http/handler"
	"github.com/retail/ledger/internal/interfaces/http/router"
	"github.com/retail/ledger/tests/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var flowStart = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

// ledgerEnv is the ledger wired the way cmd/server wires it, on a test database
type ledgerEnv struct {
	db            *TestDB
	clock         *testutil.Clock
	invoices      *salesapp.InvoiceService
	customers     *partnerapp.CustomerService
	receipts      *storage.MemoryReceiptStore
	outbox        *event.OutboxProcessor
	creditOutages *failingConsumer
	engine        http.Handler
	client        *testutil.APIClient
}

func newLedgerEnv(t *testing.T) *ledgerEnv {
	t.Helper()

	db := NewTestDB(t)
	log := zap.NewNop()
	clock := testutil.NewClock(flowStart)
	retry := shared.RetryPolicy{MaxRetries: 20, Backoff: 5 * time.Millisecond}

	invoiceRepo := persistence.NewGormInvoiceRepository(db.DB)
	customerRepo := persistence.NewGormCustomerRepository(db.DB)
	gate := partner.NewSalesAuthorizationGate(decimal.NewFromInt(5000))

	cfg := salesapp.DefaultInvoiceServiceConfig()
	cfg.Retry = retry
	invoices := salesapp.NewInvoiceService(invoiceRepo, customerRepo, persistence.NewGormProductCatalog(db.DB), gate, log,
		salesapp.WithConfig(cfg),
		salesapp.WithClock(clock.Now),
	)
	customers := partnerapp.NewCustomerService(customerRepo, gate, log,
		partnerapp.WithRetryPolicy(retry),
		partnerapp.WithClock(clock.Now),
	)

	bus := event.NewInMemoryEventBus(log)
	serializer := event.NewLedgerEventSerializer()
	invoiceRepo.SetOutboxEventSaver(event.NewOutboxPublisher(serializer, event.WithPublisherClock(clock.Now)))
	outbox, err := event.NewOutboxProcessor(persistence.NewGormOutboxRepository(db.DB), bus, serializer,
		event.DefaultOutboxProcessorConfig(), log, event.WithProcessorClock(clock.Now))
	require.NoError(t, err)
	invoices.SetEventPublisher(outbox)
	customers.SetEventPublisher(bus)

	store := cache.NewInMemoryIdempotencyStore(time.Minute)
	t.Cleanup(func() { _ = store.Close() })
	idem := shared.DefaultIdempotencyConfig()

	payments := partnerapp.NewPaymentRecordedHandler(customerRepo, log)
	payments.SetEventPublisher(bus)
	payments.SetRetryPolicy(retry)
	created := partnerapp.NewInvoiceCreatedHandler(customerRepo, log)
	created.SetRetryPolicy(retry)
	cancelled := partnerapp.NewInvoiceCancelledHandler(customerRepo, log)
	cancelled.SetRetryPolicy(retry)
	creditOutages := &failingConsumer{EventHandler: payments}
	bus.Subscribe(event.NewIdempotentHandler("customer-credit", creditOutages, store, idem, log))
	bus.Subscribe(event.NewIdempotentHandler("customer-purchases", created, store, idem, log))
	bus.Subscribe(event.NewIdempotentHandler("customer-cancellations", cancelled, store, idem, log))

	receipts := storage.NewMemoryReceiptStore()
	bus.Subscribe(event.NewIdempotentHandler("invoice-receipts",
		salesapp.NewReceiptArchiveHandler(invoiceRepo, receipts, "receipts", log), store, idem, log))

	engine, err = router.NewRouter(router.DefaultConfig(), log,
		router.WithHealth(handler.NewSystemHandler("ledger", "test", db.Database).Health),
	).
		Register(handler.NewInvoiceHandler(invoices)).
		Register(handler.NewCustomerHandler(customers)).
		Setup()
	require.NoError(t, err)

	return &ledgerEnv{
		db:            db,
		clock:         clock,
		invoices:      invoices,
		customers:     customers,
		receipts:      receipts,
		outbox:        outbox,
		creditOutages: creditOutages,
		engine:        engine,
		client:        testutil.NewAPIClient(engine, testutil.TestTenantID(), testutil.TestActorID()),
	}
}

// failingConsumer fails its next deliveries, as a consumer whose store is down would
type failingConsumer struct {
	shared.EventHandler
	remaining atomic.Int32
}

func (c *failingConsumer) failNext(n int32) { c.remaining.Store(n) }

func (c *failingConsumer) Handle(ctx context.Context, e shared.DomainEvent) error {
	for {
		n := c.remaining.Load()
		if n <= 0 {
			return c.EventHandler.Handle(ctx, e)
		}
		if c.remaining.CompareAndSwap(n, n-1) {
			return errors.New("credit store unavailable")
		}
	}
}

// createCustomer registers a customer through the API for the client's tenant
func (e *ledgerEnv) createCustomer(t *testing.T, client *testutil.APIClient) partnerapp.CustomerResponse {
	t.Helper()
	return testutil.DoAs[partnerapp.CustomerResponse](t, client, http.MethodPost, "/customers", map[string]any{
		"code": e.db.NextCustomerCode(),
		"name": e.db.FakeCustomerName(),
	}, http.StatusCreated)
}

func (e *ledgerEnv) creditProfile(t *testing.T, client *testutil.APIClient, customerID uuid.UUID) partnerapp.CreditProfileResponse {
	t.Helper()
	return testutil.DoAs[partnerapp.CreditProfileResponse](t, client, http.MethodGet,
		"/customers/"+customerID.String()+"/credit-profile", nil, http.StatusOK)
}

func (e *ledgerEnv) getInvoice(t *testing.T, client *testutil.APIClient, invoiceID uuid.UUID) salesapp.InvoiceResponse {
	t.Helper()
	return testutil.DoAs[salesapp.InvoiceResponse](t, client, http.MethodGet, "/invoices/"+invoiceID.String(), nil, http.StatusOK)
}

func (e *ledgerEnv) pay(t *testing.T, client *testutil.APIClient, invoiceID uuid.UUID, amount string) salesapp.PaymentResultResponse {
	t.Helper()
	return testutil.DoAs[salesapp.PaymentResultResponse](t, client, http.MethodPost,
		"/invoices/"+invoiceID.String()+"/payments", map[string]any{"amount": amount, "method": "CASH"}, http.StatusCreated)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
