package sales

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/retail/ledger/internal/domain/partner"
	"github.com/retail/ledger/internal/domain/sales"
	"github.com/retail/ledger/internal/domain/shared"
	"github.com/stretchr/testify/mock"
)

// memoryInvoiceRepository keeps invoices in memory with the same version check as
// the gorm repository: a save only succeeds against the version it was read at.
type memoryInvoiceRepository struct {
	mu       sync.Mutex
	invoices map[uuid.UUID]*sales.Invoice
	saveErr  error
	lockErr  error
	locks    int
}

func newMemoryInvoiceRepository() *memoryInvoiceRepository {
	return &memoryInvoiceRepository{invoices: make(map[uuid.UUID]*sales.Invoice)}
}

func (r *memoryInvoiceRepository) FindByIDForTenant(_ context.Context, tenantID, id uuid.UUID) (*sales.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[id]
	if !ok || inv.TenantID != tenantID {
		return nil, shared.NewNotFoundError("INVOICE_NOT_FOUND", "Invoice not found")
	}
	return cloneInvoice(inv), nil
}

func (r *memoryInvoiceRepository) FindForTenant(_ context.Context, tenantID uuid.UUID, filter sales.InvoiceFilter) ([]sales.Invoice, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []sales.Invoice
	for _, inv := range r.invoices {
		if inv.TenantID != tenantID {
			continue
		}
		if filter.CustomerID != nil && inv.CustomerID != *filter.CustomerID {
			continue
		}
		if filter.Status != nil && inv.Status != *filter.Status {
			continue
		}
		out = append(out, *cloneInvoice(inv))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InvoiceNumber < out[j].InvoiceNumber })
	return out, int64(len(out)), nil
}

func (r *memoryInvoiceRepository) FindOpenWithInstallmentsDueBefore(_ context.Context, before time.Time, limit int) ([]sales.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []sales.Invoice
	for _, inv := range r.invoices {
		due := inv.OverdueCheckDate()
		if due == nil || !due.Before(before) {
			continue
		}
		out = append(out, *cloneInvoice(inv))
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *memoryInvoiceRepository) ExistsByNumber(_ context.Context, tenantID uuid.UUID, number string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inv := range r.invoices {
		if inv.TenantID == tenantID && inv.InvoiceNumber == number {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryInvoiceRepository) Save(_ context.Context, invoice *sales.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	r.invoices[invoice.ID] = cloneInvoice(invoice)
	return nil
}

func (r *memoryInvoiceRepository) SaveWithLock(_ context.Context, invoice *sales.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locks++
	if r.lockErr != nil {
		return r.lockErr
	}
	stored, ok := r.invoices[invoice.ID]
	if !ok {
		return shared.NewNotFoundError("INVOICE_NOT_FOUND", "Invoice not found")
	}
	if stored.Version != invoice.Version-1 {
		return shared.NewConflictError("INVOICE_CONCURRENT_MODIFICATION", "Invoice was modified concurrently")
	}
	r.invoices[invoice.ID] = cloneInvoice(invoice)
	return nil
}

func (r *memoryInvoiceRepository) get(id uuid.UUID) *sales.Invoice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneInvoice(r.invoices[id])
}

func cloneInvoice(inv *sales.Invoice) *sales.Invoice {
	if inv == nil {
		return nil
	}
	c := *inv
	c.Items = append(sales.InvoiceItems{}, inv.Items...)
	c.Installments = append(sales.Installments{}, inv.Installments...)
	c.Payments = append(sales.PaymentRecords{}, inv.Payments...)
	if inv.InstallmentConfig != nil {
		cfg := *inv.InstallmentConfig
		c.InstallmentConfig = &cfg
	}
	c.ClearDomainEvents()
	return &c
}

// MockCustomerRepository is a mock implementation of partner.CustomerRepository
type MockCustomerRepository struct {
	mock.Mock
}

func (m *MockCustomerRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*partner.Customer, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*partner.Customer), args.Error(1)
}

func (m *MockCustomerRepository) FindAllForTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]partner.Customer, int64, error) {
	args := m.Called(ctx, tenantID, filter)
	return args.Get(0).([]partner.Customer), args.Get(1).(int64), args.Error(2)
}

func (m *MockCustomerRepository) ExistsByCode(ctx context.Context, tenantID uuid.UUID, code string) (bool, error) {
	args := m.Called(ctx, tenantID, code)
	return args.Bool(0), args.Error(1)
}

func (m *MockCustomerRepository) Save(ctx context.Context, customer *partner.Customer) error {
	args := m.Called(ctx, customer)
	return args.Error(0)
}

func (m *MockCustomerRepository) SaveWithLock(ctx context.Context, customer *partner.Customer) error {
	args := m.Called(ctx, customer)
	return args.Error(0)
}

// MockProductCatalog is a mock implementation of ProductCatalog
type MockProductCatalog struct {
	mock.Mock
}

func (m *MockProductCatalog) GetProducts(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]ProductInfo, error) {
	args := m.Called(ctx, tenantID, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[uuid.UUID]ProductInfo), args.Error(1)
}

func (m *MockProductCatalog) DecrementStock(ctx context.Context, tenantID uuid.UUID, lines []StockLine) error {
	args := m.Called(ctx, tenantID, lines)
	return args.Error(0)
}

func (m *MockProductCatalog) RestoreStock(ctx context.Context, tenantID uuid.UUID, lines []StockLine) error {
	args := m.Called(ctx, tenantID, lines)
	return args.Error(0)
}

// recordingPublisher collects published events
type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.DomainEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return p.err
}

func (p *recordingPublisher) ofType(eventType string) []shared.DomainEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []shared.DomainEvent
	for _, e := range p.events {
		if e.EventType() == eventType {
			out = append(out, e)
		}
	}
	return out
}

// recordingDispatcher collects dispatched notifications
type recordingDispatcher struct {
	mu            sync.Mutex
	notifications []Notification
	err           error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, n Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notifications = append(d.notifications, n)
	return d.err
}

func (d *recordingDispatcher) Close() error { return nil }

// recordingArchive keeps archived receipts by key
type recordingArchive struct {
	mu      sync.Mutex
	objects map[string][]byte
	err     error
}

func (a *recordingArchive) Put(_ context.Context, key string, body []byte, _ string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	if a.objects == nil {
		a.objects = make(map[string][]byte)
	}
	a.objects[key] = body
	return nil
}
