package payroll

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/odyssey-erp/kassa/internal/employees"
	"github.com/odyssey-erp/kassa/internal/shared"
)

// RepositoryPort defines data access methods for salaries.
type RepositoryPort interface {
	List(ctx context.Context, filter ListFilter) ([]Salary, error)
	Get(ctx context.Context, id int64) (Salary, error)
	Create(ctx context.Context, s Salary) (Salary, error)
	Update(ctx context.Context, s Salary) (Salary, error)
	Delete(ctx context.Context, id int64) error
}

// EmployeeLookup resolves the employee a salary is paid to.
type EmployeeLookup interface {
	Get(ctx context.Context, id int64) (employees.Employee, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service handles payroll business logic.
type Service struct {
	repo      RepositoryPort
	employees EmployeeLookup
	verifier  shared.ActorVerifier
	audit     AuditPort
	now       func() time.Time
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, employees EmployeeLookup, verifier shared.ActorVerifier, audit AuditPort) *Service {
	return &Service{repo: repo, employees: employees, verifier: verifier, audit: audit, now: time.Now}
}

// List returns salary records matching filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Salary, error) {
	if filter.PaymentMonth != 0 {
		if filter.PaymentMonth < 1 || filter.PaymentMonth > 12 {
			return nil, shared.FieldError("paymentMonth", "must be between 1 and 12")
		}
		year := filter.Year
		if year == 0 {
			year = s.now().Year()
		}
		from := time.Date(year, time.Month(filter.PaymentMonth), 1, 0, 0, 0, 0, time.UTC)
		to := from.AddDate(0, 1, 0)
		filter.PaidFrom, filter.PaidTo = &from, &to
		filter.PaymentMonth = 0
	}
	return s.repo.List(ctx, filter)
}

// ForPeriod returns salaries booked against year/month.
func (s *Service) ForPeriod(ctx context.Context, year, month int) ([]Salary, error) {
	if month < 1 || month > 12 {
		return nil, shared.FieldError("month", "must be between 1 and 12")
	}
	return s.repo.List(ctx, ListFilter{Year: year, Month: month})
}

// ForEmployee returns an employee's salary history, latest period first.
func (s *Service) ForEmployee(ctx context.Context, employeeID int64) ([]Salary, error) {
	return s.repo.List(ctx, ListFilter{EmployeeID: &employeeID})
}

// Create records a salary payment and computes its net amount.
func (s *Service) Create(ctx context.Context, in SalaryInput, actor shared.Actor) (Salary, error) {
	sal, err := s.fromInput(ctx, in)
	if err != nil {
		return Salary{}, err
	}
	sal.CreatedBy = actor.ID
	created, err := s.repo.Create(ctx, sal)
	if err != nil {
		return Salary{}, err
	}
	s.record(ctx, actor.ID, "salary:create", created.ID)
	return created, nil
}

// Update replaces a salary record and recomputes its net amount.
func (s *Service) Update(ctx context.Context, id int64, in SalaryInput, actor shared.Actor) (Salary, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Salary{}, err
	}
	sal, err := s.fromInput(ctx, in)
	if err != nil {
		return Salary{}, err
	}
	sal.ID = current.ID
	sal.CreatedBy = current.CreatedBy
	sal.CreatedAt = current.CreatedAt
	if in.PaymentDate == nil {
		sal.PaymentDate = current.PaymentDate
	}
	updated, err := s.repo.Update(ctx, sal)
	if err != nil {
		return Salary{}, err
	}
	s.record(ctx, actor.ID, "salary:update", id)
	return updated, nil
}

// Delete removes a salary record after the actor re-enters their password.
func (s *Service) Delete(ctx context.Context, id int64, actor shared.Actor, password string) error {
	if s.verifier == nil {
		return shared.ErrUnauthorized
	}
	if err := s.verifier.VerifyActor(ctx, actor.ID, password); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actor.ID, "salary:delete", id)
	return nil
}

func (s *Service) fromInput(ctx context.Context, in SalaryInput) (Salary, error) {
	sal := Salary{
		Employee: EmployeeRef{
			ID:        in.EmployeeID,
			FirstName: strings.TrimSpace(in.FirstName),
			Position:  strings.TrimSpace(in.Position),
		},
		Month:      in.Month,
		Year:       in.Year,
		Amount:     in.Amount.Round(2),
		Bonus:      in.Bonus.Round(2),
		Deductions: in.Deductions.Round(2),
		Notes:      strings.TrimSpace(in.Notes),
	}
	if in.EmployeeID != nil && s.employees != nil {
		emp, err := s.employees.Get(ctx, *in.EmployeeID)
		if err != nil {
			return Salary{}, err
		}
		if sal.Employee.FirstName == "" {
			sal.Employee.FirstName = emp.FirstName
		}
		if sal.Employee.Position == "" {
			sal.Employee.Position = emp.Position
		}
	}
	if sal.Employee.FirstName == "" || sal.Employee.Position == "" {
		return Salary{}, ErrEmployeeRequired
	}
	sal.NetSalary = NetSalary(sal.Amount, sal.Bonus, sal.Deductions)
	if in.PaymentDate != nil {
		sal.PaymentDate = in.PaymentDate.UTC()
	} else {
		sal.PaymentDate = s.now().UTC()
	}
	return sal, nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, id int64) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "salary",
		EntityID: strconv.FormatInt(id, 10),
	})
}
