package persistence

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/retail/ledger/internal/domain/partner"
	"github.com/retail/ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCustomer(t *testing.T, tenantID uuid.UUID, code string) *partner.Customer {
	t.Helper()
	c, err := partner.NewCustomer(tenantID, code, "Customer "+code, ledgerNow)
	require.NoError(t, err)
	c.ClearDomainEvents()
	return c
}

func TestGormCustomerRepository_SaveAndFind(t *testing.T) {
	repo := NewGormCustomerRepository(setupTestDB(t))
	ctx := context.Background()
	tenantID := uuid.New()

	customer := newTestCustomer(t, tenantID, "CUST-001")
	require.NoError(t, customer.SetContact("+1 555 0100", "ada@example.com", ledgerNow))
	require.NoError(t, customer.RecordPurchase(decimal.NewFromInt(1000), decimal.NewFromInt(200), ledgerNow))
	require.NoError(t, customer.RecordPaymentBehavior(decimal.NewFromInt(100), 12, ledgerNow))
	require.NoError(t, repo.Save(ctx, customer))

	t.Run("round trips financials and behavior", func(t *testing.T) {
		found, err := repo.FindByIDForTenant(ctx, tenantID, customer.ID)
		require.NoError(t, err)

		assert.Equal(t, "CUST-001", found.Code)
		assert.Equal(t, "ada@example.com", found.Email)
		assert.True(t, decimal.NewFromInt(1000).Equal(found.Financials.TotalPurchases))
		assert.True(t, decimal.NewFromInt(300).Equal(found.Financials.TotalPaid))
		assert.True(t, decimal.NewFromInt(700).Equal(found.Financials.OutstandingBalance))
		assert.Equal(t, 1, found.Financials.InvoiceCount)
		assert.Equal(t, 1, found.PaymentBehavior.LatePayments)
		assert.Equal(t, 12, found.PaymentBehavior.AvgDaysLate)
		assert.Equal(t, customer.CreditEngine.Score, found.CreditEngine.Score)
		assert.Equal(t, customer.CreditEngine.RiskLevel, found.CreditEngine.RiskLevel)
		assert.Equal(t, customer.Version, found.Version)
	})

	t.Run("other tenants cannot see it", func(t *testing.T) {
		_, err := repo.FindByIDForTenant(ctx, uuid.New(), customer.ID)
		assert.True(t, shared.IsNotFound(err))
	})

	t.Run("code exists within the tenant only", func(t *testing.T) {
		exists, err := repo.ExistsByCode(ctx, tenantID, "CUST-001")
		require.NoError(t, err)
		assert.True(t, exists)

		exists, err = repo.ExistsByCode(ctx, uuid.New(), "CUST-001")
		require.NoError(t, err)
		assert.False(t, exists)
	})
}

func TestGormCustomerRepository_SaveWithLock(t *testing.T) {
	repo := NewGormCustomerRepository(setupTestDB(t))
	ctx := context.Background()
	tenantID := uuid.New()

	customer := newTestCustomer(t, tenantID, "CUST-002")
	require.NoError(t, repo.Save(ctx, customer))

	first, err := repo.FindByIDForTenant(ctx, tenantID, customer.ID)
	require.NoError(t, err)
	stale, err := repo.FindByIDForTenant(ctx, tenantID, customer.ID)
	require.NoError(t, err)

	require.NoError(t, first.BlockSales("fraud review", ledgerNow))
	require.NoError(t, repo.SaveWithLock(ctx, first))

	stored, err := repo.FindByIDForTenant(ctx, tenantID, customer.ID)
	require.NoError(t, err)
	assert.True(t, stored.SalesBlocked)
	assert.Equal(t, "fraud review", stored.SalesBlockedReason)

	require.NoError(t, stale.SetCreditLimit(decimal.NewFromInt(5000), ledgerNow))
	err = repo.SaveWithLock(ctx, stale)
	assert.True(t, shared.IsConflict(err))

	ghost := newTestCustomer(t, tenantID, "GHOST")
	ghost.Version = 2
	assert.True(t, shared.IsNotFound(repo.SaveWithLock(ctx, ghost)))
}

func TestGormCustomerRepository_FindAllForTenant(t *testing.T) {
	repo := NewGormCustomerRepository(setupTestDB(t))
	ctx := context.Background()
	tenantID := uuid.New()

	good := newTestCustomer(t, tenantID, "A-GOOD")
	blocked := newTestCustomer(t, tenantID, "B-BLOCKED")
	require.NoError(t, blocked.BlockSales("chargeback", ledgerNow))
	other := newTestCustomer(t, uuid.New(), "C-OTHER")
	for _, c := range []*partner.Customer{good, blocked, other} {
		require.NoError(t, repo.Save(ctx, c))
	}

	t.Run("lists the tenant's customers", func(t *testing.T) {
		customers, total, err := repo.FindAllForTenant(ctx, tenantID, shared.Filter{Page: 1, PageSize: 10, OrderBy: "code", OrderDir: "asc"})
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
		require.Len(t, customers, 2)
		assert.Equal(t, "A-GOOD", customers[0].Code)
	})

	t.Run("filters on sales block", func(t *testing.T) {
		filter := shared.DefaultFilter()
		filter.Filters = map[string]any{"sales_blocked": true}
		customers, total, err := repo.FindAllForTenant(ctx, tenantID, filter)
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		require.Len(t, customers, 1)
		assert.Equal(t, blocked.ID, customers[0].ID)
	})

	t.Run("filters on risk level", func(t *testing.T) {
		filter := shared.DefaultFilter()
		filter.Filters = map[string]any{"risk_level": string(partner.RiskLevelBlocked)}
		customers, total, err := repo.FindAllForTenant(ctx, tenantID, filter)
		require.NoError(t, err)
		assert.Zero(t, total)
		assert.Empty(t, customers)
	})
}

func TestGormCustomerRepository_ExistsByCode_SQL(t *testing.T) {
	db, mock, mockDB := newMockDatabase(t)
	defer mockDB.Close()
	repo := NewGormCustomerRepository(db.DB)

	tenantID := uuid.New()
	mock.ExpectQuery(`SELECT count\(\*\) FROM "customers" WHERE tenant_id = \$1 AND code = \$2`).
		WithArgs(tenantID, "CUST-9").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	exists, err := repo.ExistsByCode(context.Background(), tenantID, "CUST-9")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}
