// Package expenses records petty-cash expenditures.
package expenses

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/kassa/internal/shared"
)

// Expenditure is a single petty-cash spend.
type Expenditure struct {
	ID       int64           `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Date     time.Time       `json:"date"`
	Category string          `json:"category"`
}

// Input is the create/replace payload.
type Input struct {
	Name     string          `json:"name" validate:"required,max=200"`
	Price    decimal.Decimal `json:"price" validate:"gte=0"`
	Date     *time.Time      `json:"date"`
	Category string          `json:"category" validate:"required,max=100"`
}

// ListFilter narrows the listing.
type ListFilter struct {
	Category string
	From     *time.Time
	To       *time.Time
}

// ErrNotFound indicates an unknown expenditure id.
var ErrNotFound = shared.NewError(shared.ErrNotFound, "expenses: expenditure not found")

// ==== Repository ====

// RepositoryPort defines data access methods.
type RepositoryPort interface {
	List(ctx context.Context, filter ListFilter) ([]Expenditure, error)
	Get(ctx context.Context, id int64) (Expenditure, error)
	Create(ctx context.Context, e Expenditure) (Expenditure, error)
	Update(ctx context.Context, e Expenditure) (Expenditure, error)
	Delete(ctx context.Context, id int64) error
}

const columns = `id, name, price, spent_on, category`

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// List returns expenditures newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Expenditure, error) {
	conds := []string{"TRUE"}
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.Category != "" {
		add("category = $%d", filter.Category)
	}
	if filter.From != nil {
		add("spent_on >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("spent_on <= $%d", *filter.To)
	}
	rows, err := r.pool.Query(ctx, `SELECT `+columns+` FROM expenditures WHERE `+strings.Join(conds, " AND ")+` ORDER BY spent_on DESC, id DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Expenditure
	for rows.Next() {
		e, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Get loads one expenditure.
func (r *Repository) Get(ctx context.Context, id int64) (Expenditure, error) {
	e, err := scan(r.pool.QueryRow(ctx, `SELECT `+columns+` FROM expenditures WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Expenditure{}, ErrNotFound
	}
	return e, err
}

// Create inserts an expenditure.
func (r *Repository) Create(ctx context.Context, e Expenditure) (Expenditure, error) {
	return scan(r.pool.QueryRow(ctx, `INSERT INTO expenditures (name, price, spent_on, category) VALUES ($1, $2, $3, $4) RETURNING `+columns,
		e.Name, e.Price, e.Date, e.Category))
}

// Update overwrites an expenditure.
func (r *Repository) Update(ctx context.Context, e Expenditure) (Expenditure, error) {
	updated, err := scan(r.pool.QueryRow(ctx, `UPDATE expenditures SET name = $2, price = $3, spent_on = $4, category = $5 WHERE id = $1 RETURNING `+columns,
		e.ID, e.Name, e.Price, e.Date, e.Category))
	if errors.Is(err, pgx.ErrNoRows) {
		return Expenditure{}, ErrNotFound
	}
	return updated, err
}

// Delete removes an expenditure.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM expenditures WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scan(row pgx.Row) (Expenditure, error) {
	var e Expenditure
	err := row.Scan(&e.ID, &e.Name, &e.Price, &e.Date, &e.Category)
	return e, err
}

// ==== Service ====

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service handles expenditure business logic.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	now   func() time.Time
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// List returns expenditures matching filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Expenditure, error) {
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, shared.FieldError("to", "must not be before from")
	}
	return s.repo.List(ctx, filter)
}

// Get loads one expenditure.
func (s *Service) Get(ctx context.Context, id int64) (Expenditure, error) {
	return s.repo.Get(ctx, id)
}

// Create records an expenditure dated today unless a date is given.
func (s *Service) Create(ctx context.Context, in Input, actor shared.Actor) (Expenditure, error) {
	created, err := s.repo.Create(ctx, s.fromInput(in))
	if err != nil {
		return Expenditure{}, err
	}
	s.record(ctx, actor.ID, "expenditure:create", created.ID)
	return created, nil
}

// Update replaces an expenditure.
func (s *Service) Update(ctx context.Context, id int64, in Input, actor shared.Actor) (Expenditure, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Expenditure{}, err
	}
	e := s.fromInput(in)
	e.ID = id
	if in.Date == nil {
		e.Date = current.Date
	}
	updated, err := s.repo.Update(ctx, e)
	if err != nil {
		return Expenditure{}, err
	}
	s.record(ctx, actor.ID, "expenditure:update", id)
	return updated, nil
}

// Delete removes an expenditure.
func (s *Service) Delete(ctx context.Context, id int64, actor shared.Actor) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actor.ID, "expenditure:delete", id)
	return nil
}

func (s *Service) fromInput(in Input) Expenditure {
	e := Expenditure{
		Name:     strings.TrimSpace(in.Name),
		Price:    in.Price.Round(2),
		Category: strings.TrimSpace(in.Category),
	}
	if in.Date != nil {
		e.Date = in.Date.UTC()
	} else {
		e.Date = s.now().UTC()
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
		Entity:   "expenditure",
		EntityID: strconv.FormatInt(id, 10),
	})
}
