package borrows

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/odyssey-erp/kassa/internal/shared"
)

// RepositoryPort defines data access methods for borrows.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	List(ctx context.Context) ([]Borrow, error)
	Get(ctx context.Context, id int64) (Borrow, error)
	Delete(ctx context.Context, id int64) error
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	Insert(ctx context.Context, b Borrow) (Borrow, error)
	GetForUpdate(ctx context.Context, id int64) (Borrow, error)
	UpdateHeader(ctx context.Context, b Borrow) error
	ReplaceItems(ctx context.Context, borrowID int64, items []Item) error
	InsertPayment(ctx context.Context, borrowID int64, p Payment) (Payment, error)
	CreditItems(ctx context.Context, borrowID int64, credits []ItemCredit) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates lender records.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	now   func() time.Time
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// List returns records newest first.
func (s *Service) List(ctx context.Context) ([]Borrow, error) {
	return s.repo.List(ctx)
}

// Get loads one record with its items and payments.
func (s *Service) Get(ctx context.Context, id int64) (Borrow, error) {
	return s.repo.Get(ctx, id)
}

// Create stores a new lender record.
func (s *Service) Create(ctx context.Context, in BorrowInput, actor shared.Actor) (Borrow, error) {
	b := Borrow{
		LenderName: strings.TrimSpace(in.LenderName),
		BorrowDate: s.dateOrToday(in.BorrowDate),
		ReturnDate: utcPtr(in.ReturnDate),
		Returned:   in.Returned,
	}
	for _, it := range in.Items {
		b.Items = append(b.Items, Item{ItemName: strings.TrimSpace(it.ItemName), Quantity: it.Quantity, Price: it.Price.Round(2)})
	}
	var created Borrow
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = tx.Insert(ctx, b)
		return err
	})
	if err != nil {
		return Borrow{}, err
	}
	s.record(ctx, actor.ID, "borrow:create", created.ID)
	return created, nil
}

// Update replaces the header and the item list. Items sent with their id keep their
// paid amount; items left out are removed.
func (s *Service) Update(ctx context.Context, id int64, in BorrowInput, actor shared.Actor) (Borrow, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		paid := make(map[int64]Item, len(current.Items))
		for _, it := range current.Items {
			paid[it.ID] = it
		}
		current.LenderName = strings.TrimSpace(in.LenderName)
		if in.BorrowDate != nil {
			current.BorrowDate = in.BorrowDate.UTC()
		}
		current.ReturnDate = utcPtr(in.ReturnDate)
		current.Returned = in.Returned
		items := make([]Item, 0, len(in.Items))
		for _, it := range in.Items {
			next := Item{ItemName: strings.TrimSpace(it.ItemName), Quantity: it.Quantity, Price: it.Price.Round(2)}
			if prev, ok := paid[it.ID]; ok && it.ID != 0 {
				next.ID = prev.ID
				next.PaidAmount = prev.PaidAmount
			}
			items = append(items, next)
		}
		if err := tx.UpdateHeader(ctx, current); err != nil {
			return err
		}
		return tx.ReplaceItems(ctx, id, items)
	})
	if err != nil {
		return Borrow{}, err
	}
	s.record(ctx, actor.ID, "borrow:update", id)
	return s.repo.Get(ctx, id)
}

// MarkReturned flags the record as returned today.
func (s *Service) MarkReturned(ctx context.Context, id int64, actor shared.Actor) (Borrow, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		b, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		b.Returned = true
		b.ReturnDate = &now
		return tx.UpdateHeader(ctx, b)
	})
	if err != nil {
		return Borrow{}, err
	}
	s.record(ctx, actor.ID, "borrow:return", id)
	return s.repo.Get(ctx, id)
}

// AddPayment appends a payment and credits the items it is allocated to.
func (s *Service) AddPayment(ctx context.Context, id int64, in PaymentInput, actor shared.Actor) (Borrow, error) {
	p := Payment{
		Amount:      in.Amount.Round(2),
		Method:      in.Method,
		PaidAt:      s.dateOrNow(in.PaidAt),
		Allocations: in.Allocations,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		b, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		credits, err := PlanPayment(b, p)
		if err != nil {
			return err
		}
		if _, err := tx.InsertPayment(ctx, id, p); err != nil {
			return err
		}
		return tx.CreditItems(ctx, id, credits)
	})
	if err != nil {
		return Borrow{}, err
	}
	s.record(ctx, actor.ID, "borrow:pay", id)
	return s.repo.Get(ctx, id)
}

// Delete removes the record with its items and payments.
func (s *Service) Delete(ctx context.Context, id int64, actor shared.Actor) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actor.ID, "borrow:delete", id)
	return nil
}

func (s *Service) dateOrToday(t *time.Time) time.Time {
	if t != nil {
		return t.UTC()
	}
	return s.now().UTC().Truncate(24 * time.Hour)
}

func (s *Service) dateOrNow(t *time.Time) time.Time {
	if t != nil {
		return t.UTC()
	}
	return s.now().UTC()
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func (s *Service) record(ctx context.Context, actorID int64, action string, id int64) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "borrow",
		EntityID: strconv.FormatInt(id, 10),
	})
}
