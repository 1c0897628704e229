package customers

import (
	"context"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/kassa/internal/shared"
)

// RepositoryPort defines data access methods for customers.
type RepositoryPort interface {
	List(ctx context.Context, search string, page shared.PageRequest) ([]Customer, int, error)
	Get(ctx context.Context, id int64) (Customer, error)
	Create(ctx context.Context, c Customer) (Customer, error)
	Update(ctx context.Context, c Customer) (Customer, error)
	Delete(ctx context.Context, id int64) error
}

// SalesReader exposes the sales a customer is attached to.
type SalesReader interface {
	CreditSalesForCustomer(ctx context.Context, customerID int64) ([]CreditSale, error)
	CountSalesForCustomer(ctx context.Context, customerID int64) (int, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service handles customer business logic.
type Service struct {
	repo     RepositoryPort
	sales    SalesReader
	verifier shared.ActorVerifier
	audit    AuditPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, sales SalesReader, verifier shared.ActorVerifier, audit AuditPort) *Service {
	return &Service{repo: repo, sales: sales, verifier: verifier, audit: audit}
}

// List returns customers ordered by name.
func (s *Service) List(ctx context.Context, search string, page shared.PageRequest) ([]Customer, int, error) {
	return s.repo.List(ctx, search, page)
}

// GetCustomer loads one customer.
func (s *Service) GetCustomer(ctx context.Context, id int64) (Customer, error) {
	return s.repo.Get(ctx, id)
}

// Detail loads a customer with their credit sales and the outstanding total.
func (s *Service) Detail(ctx context.Context, id int64) (Detail, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	detail := Detail{Customer: c, TotalDebt: decimal.Zero}
	if s.sales == nil {
		return detail, nil
	}
	sales, err := s.sales.CreditSalesForCustomer(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	detail.CreditSales = sales
	for _, sale := range sales {
		detail.TotalDebt = detail.TotalDebt.Add(sale.RemainingAmount)
	}
	return detail, nil
}

// Create registers a customer.
func (s *Service) Create(ctx context.Context, req CreateCustomerRequest, actor shared.Actor) (Customer, error) {
	c := Customer{
		Name:        strings.TrimSpace(req.Name),
		Phone:       strings.TrimSpace(req.Phone),
		Address:     strings.TrimSpace(req.Address),
		CreditLimit: req.CreditLimit.Round(2),
		CurrentDebt: req.CurrentDebt.Round(2),
		Notes:       strings.TrimSpace(req.Notes),
		CreatedBy:   actor.ID,
	}
	if err := validateCustomer(c); err != nil {
		return Customer{}, err
	}
	created, err := s.repo.Create(ctx, c)
	if err != nil {
		return Customer{}, err
	}
	s.record(ctx, actor.ID, "customer:create", created.ID, map[string]any{"phone": created.Phone})
	return created, nil
}

// Update applies a partial update. Only admins may change the credit limit.
func (s *Service) Update(ctx context.Context, id int64, req UpdateCustomerRequest, actor shared.Actor) (Customer, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return Customer{}, err
	}
	if req.Name != nil {
		c.Name = strings.TrimSpace(*req.Name)
	}
	if req.Phone != nil {
		c.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.Address != nil {
		c.Address = strings.TrimSpace(*req.Address)
	}
	if req.Notes != nil {
		c.Notes = strings.TrimSpace(*req.Notes)
	}
	if req.CreditLimit != nil && !req.CreditLimit.Equal(c.CreditLimit) {
		if !actor.IsAdmin() {
			return Customer{}, ErrCreditLimitAdminOnly
		}
		c.CreditLimit = req.CreditLimit.Round(2)
	}
	if err := validateCustomer(c); err != nil {
		return Customer{}, err
	}
	updated, err := s.repo.Update(ctx, c)
	if err != nil {
		return Customer{}, err
	}
	s.record(ctx, actor.ID, "customer:update", id, nil)
	return updated, nil
}

// Delete removes a customer after the actor re-enters their password. Customers
// referenced by any sale are kept.
func (s *Service) Delete(ctx context.Context, id int64, actor shared.Actor, password string) error {
	if s.verifier == nil {
		return shared.ErrUnauthorized
	}
	if err := s.verifier.VerifyActor(ctx, actor.ID, password); err != nil {
		return err
	}
	if _, err := s.repo.Get(ctx, id); err != nil {
		return err
	}
	if s.sales != nil {
		n, err := s.sales.CountSalesForCustomer(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrHasSales
		}
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actor.ID, "customer:delete", id, nil)
	return nil
}

func validateCustomer(c Customer) error {
	fields := map[string]string{}
	if c.Name == "" {
		fields["name"] = "is required"
	} else if len([]rune(c.Name)) > 50 {
		fields["name"] = "must be at most 50"
	}
	if !ValidPhone(c.Phone) {
		fields["phone"] = "must be 9 to 15 digits with an optional leading +"
	}
	if len([]rune(c.Address)) > 255 {
		fields["address"] = "must be at most 255"
	}
	if len([]rune(c.Notes)) > 500 {
		fields["notes"] = "must be at most 500"
	}
	if c.CreditLimit.IsNegative() {
		fields["creditLimit"] = "must be at least 0"
	}
	if c.CurrentDebt.IsNegative() {
		fields["currentDebt"] = "must be at least 0"
	}
	if len(fields) > 0 {
		return &shared.ValidationError{Fields: fields}
	}
	return nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "customer",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	})
}
