// Package integration runs the ledger against a real PostgreSQL database.
// It uses testcontainers to start the database and the embedded migrations to
// create the schema.
package integration

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/retail/ledger/internal/infrastructure/migration"
	"github.com/retail/ledger/internal/infrastructure/persistence"
	"github.com/retail/ledger/internal/infrastructure/persistence/models"
	"github.com/retail/ledger/migrations"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	gormpostgres "gorm.io/driver/postgres"
	gormlogger "gorm.io/gorm/logger"
)

// TestDB represents a test database connection
type TestDB struct {
	*persistence.Database
	SqlDB     *sql.DB
	Container testcontainers.Container
	DSN       string
	faker     *gofakeit.Faker
	seq       atomic.Int64
	t         *testing.T
}

// NewTestDB creates a new PostgreSQL container with the ledger schema.
// Each test gets its own container, providing complete isolation.
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("ledger_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("admin123"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "Failed to get connection string")

	db, sqlDB := connectToDatabase(t, dsn)
	runMigrations(t, sqlDB)

	testDB := &TestDB{
		Database:  db,
		SqlDB:     sqlDB,
		Container: container,
		DSN:       dsn,
		faker:     gofakeit.New(0),
		t:         t,
	}
	t.Cleanup(testDB.Close)

	return testDB
}

// Close closes the database connection and terminates the container
func (tdb *TestDB) Close() {
	if tdb.SqlDB != nil {
		_ = tdb.SqlDB.Close()
	}
	if tdb.Container != nil {
		if err := tdb.Container.Terminate(context.Background()); err != nil {
			tdb.t.Logf("Warning: Failed to terminate container: %v", err)
		}
	}
}

// CreateTestProduct inserts an active catalog product and returns its ID
func (tdb *TestDB) CreateTestProduct(tenantID uuid.UUID, price, stock decimal.Decimal) uuid.UUID {
	tdb.t.Helper()

	now := time.Now().UTC()
	product := models.ProductModel{
		TenantAggregateModel: models.TenantAggregateModel{
			BaseModel: models.BaseModel{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
			Version:   1,
			TenantID:  tenantID,
		},
		Code:         fmt.Sprintf("SKU-%04d", tdb.seq.Add(1)),
		Name:         tdb.faker.ProductName(),
		SellingPrice: price,
		Stock:        stock,
		Status:       models.ProductStatusActive,
	}
	require.NoError(tdb.t, tdb.DB.Create(&product).Error, "Failed to create test product")
	return product.ID
}

// ProductStock reads the current stock of a product
func (tdb *TestDB) ProductStock(productID uuid.UUID) decimal.Decimal {
	tdb.t.Helper()

	var product models.ProductModel
	require.NoError(tdb.t, tdb.DB.First(&product, "id = ?", productID).Error)
	return product.Stock
}

// FakeCustomerName returns a random person name for customer fixtures
func (tdb *TestDB) FakeCustomerName() string {
	return tdb.faker.Name()
}

// NextCustomerCode returns a customer code unique within the test
func (tdb *TestDB) NextCustomerCode() string {
	return fmt.Sprintf("CUST-%04d", tdb.seq.Add(1))
}

// connectToDatabase opens the database with the ledger's gorm settings
func connectToDatabase(t *testing.T, dsn string) (*persistence.Database, *sql.DB) {
	t.Helper()

	gormLog := gormlogger.Default.LogMode(gormlogger.Silent)
	if os.Getenv("TEST_DB_DEBUG") != "" {
		gormLog = gormlogger.Default.LogMode(gormlogger.Info)
	}

	db, err := persistence.Open(gormpostgres.Open(dsn), gormLog)
	require.NoError(t, err, "Failed to connect to database")

	sqlDB, err := db.DB.DB()
	require.NoError(t, err, "Failed to get underlying SQL DB")

	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	return db, sqlDB
}

// runMigrations applies the embedded schema migrations
func runMigrations(t *testing.T, sqlDB *sql.DB) {
	t.Helper()

	m, err := migration.NewFromFS(sqlDB, migrations.FS, zap.NewNop())
	require.NoError(t, err, "Failed to create migrator")
	require.NoError(t, m.Up(), "Failed to run migrations")
}
