package partner

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/retail/ledger/internal/domain/partner"
	"github.com/retail/ledger/internal/domain/shared"
)

// memoryCustomerRepository stores customers with the same version check as the
// gorm repository
type memoryCustomerRepository struct {
	mu        sync.Mutex
	customers map[uuid.UUID]*partner.Customer
	conflicts int
	saveErr   error
}

func newMemoryCustomerRepository(customers ...*partner.Customer) *memoryCustomerRepository {
	r := &memoryCustomerRepository{customers: make(map[uuid.UUID]*partner.Customer)}
	for _, c := range customers {
		r.customers[c.ID] = cloneCustomer(c)
	}
	return r
}

func (r *memoryCustomerRepository) FindByIDForTenant(_ context.Context, tenantID, id uuid.UUID) (*partner.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.customers[id]
	if !ok || c.TenantID != tenantID {
		return nil, shared.NewNotFoundError("CUSTOMER_NOT_FOUND", "Customer not found")
	}
	return cloneCustomer(c), nil
}

func (r *memoryCustomerRepository) FindAllForTenant(_ context.Context, tenantID uuid.UUID, filter shared.Filter) ([]partner.Customer, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []partner.Customer
	for _, c := range r.customers {
		if c.TenantID != tenantID {
			continue
		}
		if level, ok := filter.Filters["risk_level"]; ok && string(c.CreditEngine.RiskLevel) != level {
			continue
		}
		if blocked, ok := filter.Filters["sales_blocked"]; ok && c.SalesBlocked != blocked {
			continue
		}
		out = append(out, *cloneCustomer(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, int64(len(out)), nil
}

func (r *memoryCustomerRepository) ExistsByCode(_ context.Context, tenantID uuid.UUID, code string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.customers {
		if c.TenantID == tenantID && c.Code == code {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryCustomerRepository) Save(_ context.Context, customer *partner.Customer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	r.customers[customer.ID] = cloneCustomer(customer)
	return nil
}

func (r *memoryCustomerRepository) SaveWithLock(_ context.Context, customer *partner.Customer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.customers[customer.ID]
	if !ok {
		return shared.NewNotFoundError("CUSTOMER_NOT_FOUND", "Customer not found")
	}
	if stored.Version != customer.Version-1 {
		r.conflicts++
		return shared.NewConflictError("CUSTOMER_CONCURRENT_MODIFICATION", "Customer was modified concurrently")
	}
	r.customers[customer.ID] = cloneCustomer(customer)
	return nil
}

func (r *memoryCustomerRepository) get(id uuid.UUID) *partner.Customer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneCustomer(r.customers[id])
}

func cloneCustomer(c *partner.Customer) *partner.Customer {
	if c == nil {
		return nil
	}
	copied := *c
	if c.CreditEngine.LastAssessment != nil {
		at := *c.CreditEngine.LastAssessment
		copied.CreditEngine.LastAssessment = &at
	}
	copied.ClearDomainEvents()
	return &copied
}

// recordingPublisher collects published events
type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

func (p *recordingPublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.EventType()
	}
	return out
}
