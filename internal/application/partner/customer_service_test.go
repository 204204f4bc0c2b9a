package partner

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/retail/ledger/internal/domain/partner"
	"github.com/retail/ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testNow = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

type customerFixture struct {
	service   *CustomerService
	repo      *memoryCustomerRepository
	publisher *recordingPublisher
	tenantID  uuid.UUID
}

func newCustomerFixture(t *testing.T) *customerFixture {
	t.Helper()
	repo := newMemoryCustomerRepository()
	publisher := &recordingPublisher{}
	service := NewCustomerService(repo, partner.NewSalesAuthorizationGate(decimal.NewFromInt(5000)), zap.NewNop(),
		WithClock(func() time.Time { return testNow }),
		WithRetryPolicy(shared.RetryPolicy{MaxRetries: 3}),
	)
	service.SetEventPublisher(publisher)
	return &customerFixture{service: service, repo: repo, publisher: publisher, tenantID: uuid.New()}
}

func (f *customerFixture) create(t *testing.T, code string) *CustomerResponse {
	t.Helper()
	resp, err := f.service.Create(context.Background(), f.tenantID, CreateCustomerRequest{Code: code, Name: "Customer " + code})
	require.NoError(t, err)
	return resp
}

func TestCustomerService_Create(t *testing.T) {
	f := newCustomerFixture(t)
	limit := decimal.NewFromInt(3000)

	resp, err := f.service.Create(context.Background(), f.tenantID, CreateCustomerRequest{
		Code:        "cust-001",
		Name:        "Ada Lovelace",
		Phone:       "+44 20 7946 0000",
		Email:       "ada@example.com",
		Tier:        "GOLD",
		CreditLimit: &limit,
	})
	require.NoError(t, err)

	assert.Equal(t, "CUST-001", resp.Code)
	assert.Equal(t, "gold", resp.Tier)
	assert.Equal(t, 100, resp.CreditScore)
	assert.Equal(t, "low", resp.RiskLevel)
	assert.True(t, limit.Equal(resp.Financials.CreditLimit))
	assert.True(t, resp.Financials.OutstandingBalance.IsZero())
	assert.Equal(t, []string{partner.EventTypeCustomerCreated, partner.EventTypeCustomerCreditLimitChanged}, f.publisher.types())

	stored := f.repo.get(resp.ID)
	require.NotNil(t, stored)
	assert.Equal(t, f.tenantID, stored.TenantID)
}

func TestCustomerService_Create_Failures(t *testing.T) {
	t.Run("duplicate code", func(t *testing.T) {
		f := newCustomerFixture(t)
		f.create(t, "DUP")

		_, err := f.service.Create(context.Background(), f.tenantID, CreateCustomerRequest{Code: "dup", Name: "Again"})
		assert.True(t, shared.IsConflict(err))
	})

	t.Run("same code in another tenant is fine", func(t *testing.T) {
		f := newCustomerFixture(t)
		f.create(t, "DUP")

		_, err := f.service.Create(context.Background(), uuid.New(), CreateCustomerRequest{Code: "DUP", Name: "Elsewhere"})
		assert.NoError(t, err)
	})

	t.Run("invalid email", func(t *testing.T) {
		f := newCustomerFixture(t)
		_, err := f.service.Create(context.Background(), f.tenantID, CreateCustomerRequest{Code: "C1", Name: "Bob", Email: "not-an-email"})
		assert.True(t, shared.IsValidation(err))
	})

	t.Run("unknown tier", func(t *testing.T) {
		f := newCustomerFixture(t)
		_, err := f.service.Create(context.Background(), f.tenantID, CreateCustomerRequest{Code: "C1", Name: "Bob", Tier: "diamond"})
		assert.True(t, shared.IsValidation(err))
	})
}

func TestCustomerService_GetCreditProfile(t *testing.T) {
	f := newCustomerFixture(t)
	created := f.create(t, "NEW")

	t.Run("first-time customer gets the limit floor", func(t *testing.T) {
		profile, err := f.service.GetCreditProfile(context.Background(), f.tenantID, created.ID)
		require.NoError(t, err)

		assert.Equal(t, 100, profile.Score)
		assert.Equal(t, "low", profile.RiskLevel)
		assert.Equal(t, 12, profile.MaxInstallments)
		assert.True(t, profile.AllowDeferred)
		assert.True(t, profile.AllowInstallments)
		assert.True(t, decimal.NewFromInt(5000).Equal(profile.RecommendedLimit))
		assert.True(t, decimal.NewFromInt(5000).Equal(profile.AvailableCredit))
		assert.True(t, profile.CanSellOnCredit)
		require.NotNil(t, profile.LastAssessment)
	})

	t.Run("explicit credit limit caps the recommendation", func(t *testing.T) {
		_, err := f.service.SetCreditLimit(context.Background(), f.tenantID, created.ID, SetCreditLimitRequest{CreditLimit: decimal.NewFromInt(1200)})
		require.NoError(t, err)

		profile, err := f.service.GetCreditProfile(context.Background(), f.tenantID, created.ID)
		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(1200).Equal(profile.RecommendedLimit))
	})

	t.Run("unknown customer", func(t *testing.T) {
		_, err := f.service.GetCreditProfile(context.Background(), f.tenantID, uuid.New())
		assert.True(t, shared.IsNotFound(err))
	})

	t.Run("other tenant", func(t *testing.T) {
		_, err := f.service.GetCreditProfile(context.Background(), uuid.New(), created.ID)
		assert.True(t, shared.IsNotFound(err))
	})
}

func TestCustomerService_SetSalesBlock(t *testing.T) {
	f := newCustomerFixture(t)
	created := f.create(t, "BLK")
	ctx := context.Background()

	resp, err := f.service.SetSalesBlock(ctx, f.tenantID, created.ID, SetSalesBlockRequest{Blocked: true, Reason: "bounced cheque"})
	require.NoError(t, err)
	assert.True(t, resp.SalesBlocked)
	assert.Equal(t, "bounced cheque", resp.SalesBlockedReason)
	assert.Equal(t, created.Version+1, resp.Version)

	profile, err := f.service.GetCreditProfile(ctx, f.tenantID, created.ID)
	require.NoError(t, err)
	assert.False(t, profile.CanSellOnCredit)
	assert.True(t, profile.SalesBlocked)

	_, err = f.service.SetSalesBlock(ctx, f.tenantID, created.ID, SetSalesBlockRequest{Blocked: true, Reason: "  "})
	assert.True(t, shared.IsValidation(err))

	resp, err = f.service.SetSalesBlock(ctx, f.tenantID, created.ID, SetSalesBlockRequest{Blocked: false})
	require.NoError(t, err)
	assert.False(t, resp.SalesBlocked)
	assert.Empty(t, resp.SalesBlockedReason)
	assert.Contains(t, f.publisher.types(), partner.EventTypeCustomerSalesBlockChanged)
}

func TestCustomerService_UnblockWhenNotBlocked(t *testing.T) {
	f := newCustomerFixture(t)
	created := f.create(t, "NOBLK")
	published := len(f.publisher.types())

	resp, err := f.service.SetSalesBlock(context.Background(), f.tenantID, created.ID, SetSalesBlockRequest{Blocked: false})
	require.NoError(t, err)
	assert.False(t, resp.SalesBlocked)
	assert.Equal(t, created.Version, resp.Version)
	assert.Zero(t, f.repo.conflicts)
	assert.Len(t, f.publisher.types(), published)
}

func TestCustomerService_SetCreditLimit(t *testing.T) {
	f := newCustomerFixture(t)
	created := f.create(t, "LIM")

	_, err := f.service.SetCreditLimit(context.Background(), f.tenantID, created.ID, SetCreditLimitRequest{CreditLimit: decimal.NewFromInt(-1)})
	assert.True(t, shared.IsValidation(err))

	_, err = f.service.SetCreditLimit(context.Background(), f.tenantID, uuid.New(), SetCreditLimitRequest{CreditLimit: decimal.NewFromInt(10)})
	assert.True(t, shared.IsNotFound(err))

	resp, err := f.service.SetCreditLimit(context.Background(), f.tenantID, created.ID, SetCreditLimitRequest{CreditLimit: decimal.NewFromInt(750)})
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(750).Equal(resp.Financials.CreditLimit))
}

func TestCustomerService_List(t *testing.T) {
	f := newCustomerFixture(t)
	a := f.create(t, "A")
	f.create(t, "B")
	_, err := f.service.SetSalesBlock(context.Background(), f.tenantID, a.ID, SetSalesBlockRequest{Blocked: true, Reason: "review"})
	require.NoError(t, err)

	all, total, err := f.service.List(context.Background(), f.tenantID, CustomerListFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, all, 2)
	assert.False(t, all[0].CanBuyOnCredit)
	assert.True(t, all[1].CanBuyOnCredit)

	blocked := true
	only, total, err := f.service.List(context.Background(), f.tenantID, CustomerListFilter{SalesBlocked: &blocked})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, a.ID, only[0].ID)

	low, _, err := f.service.List(context.Background(), f.tenantID, CustomerListFilter{RiskLevel: "LOW"})
	require.NoError(t, err)
	assert.Len(t, low, 2)

	_, _, err = f.service.List(context.Background(), f.tenantID, CustomerListFilter{RiskLevel: "scary"})
	assert.True(t, shared.IsValidation(err))
}
