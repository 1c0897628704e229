package employees

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/odyssey-erp/kassa/internal/shared"
)

// RepositoryPort defines data access methods for employees.
type RepositoryPort interface {
	List(ctx context.Context, filter ListFilter) ([]Employee, error)
	Get(ctx context.Context, id int64) (Employee, error)
	Create(ctx context.Context, e Employee) (Employee, error)
	Update(ctx context.Context, e Employee) (Employee, error)
	Delete(ctx context.Context, id int64) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service handles employee business logic.
type Service struct {
	repo     RepositoryPort
	verifier shared.ActorVerifier
	audit    AuditPort
	now      func() time.Time
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, verifier shared.ActorVerifier, audit AuditPort) *Service {
	return &Service{repo: repo, verifier: verifier, audit: audit, now: time.Now}
}

// List returns employees, newest hires first.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Employee, error) {
	return s.repo.List(ctx, filter)
}

// Get loads one employee.
func (s *Service) Get(ctx context.Context, id int64) (Employee, error) {
	return s.repo.Get(ctx, id)
}

// Create registers an employee. Missing hire date defaults to today and missing
// status to active.
func (s *Service) Create(ctx context.Context, in EmployeeInput, actor shared.Actor) (Employee, error) {
	e := s.fromInput(in)
	created, err := s.repo.Create(ctx, e)
	if err != nil {
		return Employee{}, err
	}
	s.record(ctx, actor.ID, "employee:create", created.ID)
	return created, nil
}

// Update replaces the editable fields.
func (s *Service) Update(ctx context.Context, id int64, in EmployeeInput, actor shared.Actor) (Employee, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Employee{}, err
	}
	e := s.fromInput(in)
	e.ID = current.ID
	e.CreatedAt = current.CreatedAt
	if in.HireDate == nil {
		e.HireDate = current.HireDate
	}
	if in.Status == "" {
		e.Status = current.Status
	}
	updated, err := s.repo.Update(ctx, e)
	if err != nil {
		return Employee{}, err
	}
	s.record(ctx, actor.ID, "employee:update", id)
	return updated, nil
}

// Delete removes an employee after the actor re-enters their password. Salary
// records keep their employee snapshot.
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
	s.record(ctx, actor.ID, "employee:delete", id)
	return nil
}

func (s *Service) fromInput(in EmployeeInput) Employee {
	e := Employee{
		FirstName:  strings.TrimSpace(in.FirstName),
		LastName:   strings.TrimSpace(in.LastName),
		Position:   strings.TrimSpace(in.Position),
		Department: strings.TrimSpace(in.Department),
		Phone:      strings.TrimSpace(in.Phone),
		Email:      strings.ToLower(strings.TrimSpace(in.Email)),
		Salary:     in.Salary.Round(2),
		Status:     in.Status,
		Address:    strings.TrimSpace(in.Address),
	}
	if in.HireDate != nil {
		e.HireDate = in.HireDate.UTC()
	} else {
		e.HireDate = s.now().UTC().Truncate(24 * time.Hour)
	}
	if e.Status == "" {
		e.Status = StatusActive
	}
	return e
}

func (s *Service) record(ctx context.Context, actorID int64, action string, id int64) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "employee",
		EntityID: strconv.FormatInt(id, 10),
	})
}
