package sales

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/kassa/internal/customers"
	"github.com/odyssey-erp/kassa/internal/inventory"
	"github.com/odyssey-erp/kassa/internal/platform/db"
	"github.com/odyssey-erp/kassa/internal/shared"
)

// RecentLimit is the number of sales returned by Recent.
const RecentLimit = 10

// RepositoryPort abstracts persistence for the sale ledger.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Sale, error)
	List(ctx context.Context, filter ListFilter) ([]Sale, int, error)
	Recent(ctx context.Context, limit int) ([]Sale, error)
	CustomerPayments(ctx context.Context, customerID int64, from, to *time.Time) ([]CustomerPayment, error)
	Summary(ctx context.Context) (Summary, error)
}

// TxRepository exposes the writes that run inside one ledger transaction. It embeds the
// inventory catalog so stock moves commit together with the sale.
type TxRepository interface {
	inventory.Catalog
	NextInvoiceNumber(ctx context.Context, at time.Time) (string, error)
	InsertSale(ctx context.Context, sale Sale) (Sale, error)
	GetSaleForUpdate(ctx context.Context, id int64) (Sale, error)
	AppendPayment(ctx context.Context, saleID int64, rec PaymentRecord, paidAmount decimal.Decimal, isCredit bool) (PaymentRecord, error)
	UpdateStatus(ctx context.Context, saleID int64, status Status) error
	ClaimIdempotencyKey(ctx context.Context, saleID int64, key string) error
}

// CustomerLookup resolves the customer a sale is booked against.
type CustomerLookup interface {
	GetCustomer(ctx context.Context, id int64) (customers.Customer, error)
}

// ReconciliationQueue schedules a follow-up check for a sale whose commit is in doubt.
type ReconciliationQueue interface {
	EnqueueReconcile(ctx context.Context, saleID int64, invoiceNumber string) error
}

// CacheInvalidator drops cached read models derived from sales.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

// EventRecorder counts ledger events.
type EventRecorder interface {
	RecordSaleEvent(event string)
	RecordPartialCommit()
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Dependencies groups the optional collaborators of Service.
type Dependencies struct {
	Customers CustomerLookup
	Verifier  shared.ActorVerifier
	Queue     ReconciliationQueue
	Cache     CacheInvalidator
	Events    EventRecorder
	Audit     AuditPort
	Logger    *slog.Logger
	Now       func() time.Time
}

// Service implements the sale ledger.
type Service struct {
	repo      RepositoryPort
	customers CustomerLookup
	verifier  shared.ActorVerifier
	queue     ReconciliationQueue
	cache     CacheInvalidator
	events    EventRecorder
	audit     AuditPort
	logger    *slog.Logger
	now       func() time.Time
}

// NewService constructs a sales service.
func NewService(repo RepositoryPort, deps Dependencies) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:      repo,
		customers: deps.Customers,
		verifier:  deps.Verifier,
		queue:     deps.Queue,
		cache:     deps.Cache,
		events:    deps.Events,
		audit:     deps.Audit,
		logger:    logger.With(slog.String("component", "sales")),
		now:       now,
	}
}

// PaymentResult is the outcome of AddPayment.
type PaymentResult struct {
	Sale          Sale            `json:"sale"`
	Payment       *PaymentRecord  `json:"paymentRecord,omitempty"`
	RemainingDebt decimal.Decimal `json:"remainingDebt"`
	Replayed      bool            `json:"replayed,omitempty"`
}

// ============================================================================
// READS
// ============================================================================

// Get loads one sale.
func (s *Service) Get(ctx context.Context, id int64) (Sale, error) {
	return s.repo.Get(ctx, id)
}

// List returns a page of sales, newest first.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Sale, int, error) {
	return s.repo.List(ctx, filter)
}

// Recent returns the latest sales.
func (s *Service) Recent(ctx context.Context) ([]Sale, error) {
	return s.repo.Recent(ctx, RecentLimit)
}

// CustomerPayments flattens the payment history of a customer's credit sales.
func (s *Service) CustomerPayments(ctx context.Context, customerID int64, from, to *time.Time) ([]CustomerPayment, error) {
	if from != nil && to != nil && to.Before(*from) {
		return nil, shared.FieldError("endDate", "must not be before startDate")
	}
	return s.repo.CustomerPayments(ctx, customerID, from, to)
}

// Summary aggregates the sales book.
func (s *Service) Summary(ctx context.Context) (Summary, error) {
	return s.repo.Summary(ctx)
}

// ============================================================================
// CREATE
// ============================================================================

// Create books a sale. Availability is checked, the sale is persisted and stock is
// decremented inside one transaction.
func (s *Service) Create(ctx context.Context, req CreateSaleRequest, seller shared.Actor) (Sale, error) {
	if len(req.Items) == 0 {
		return Sale{}, ErrEmptyOrder
	}
	if req.PaidAmount.IsNegative() {
		return Sale{}, ErrInvalidAmount
	}
	method := req.PaymentMethod
	if method == "" {
		method = PaymentCash
	}
	if !method.Valid() {
		return Sale{}, shared.FieldError("paymentMethod", "must be one of cash card transfer other")
	}

	lines := make([]inventory.StockLine, 0, len(req.Items))
	for i, it := range req.Items {
		if it.Quantity < 1 {
			return Sale{}, shared.FieldError(fmt.Sprintf("items[%d].quantity", i), "must be at least 1")
		}
		if it.Price != nil && it.Price.IsNegative() {
			return Sale{}, shared.FieldError(fmt.Sprintf("items[%d].price", i), "must be at least 0")
		}
		lines = append(lines, inventory.StockLine{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	var customerName string
	if req.CustomerID != nil {
		if s.customers == nil {
			return Sale{}, customers.ErrCustomerNotFound
		}
		c, err := s.customers.GetCustomer(ctx, *req.CustomerID)
		if err != nil {
			return Sale{}, err
		}
		customerName = c.Name
	}

	now := s.now().UTC()
	saleDate := now
	if req.SaleDate != nil && !req.SaleDate.IsZero() {
		saleDate = req.SaleDate.UTC()
	}

	var (
		sale     Sale
		inserted bool
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		products, err := inventory.CheckAvailability(ctx, tx, lines)
		if err != nil {
			return err
		}

		items := make([]LineItem, 0, len(req.Items))
		for _, it := range req.Items {
			p := products[it.ProductID]
			price := p.Price
			if it.Price != nil {
				price = *it.Price
			}
			items = append(items, LineItem{
				ProductID:   it.ProductID,
				ProductName: p.Name,
				Quantity:    it.Quantity,
				Price:       price.Round(2),
			})
		}

		totals, err := ComputeTotals(items, req.Discount, req.Tax)
		if err != nil {
			return err
		}

		paid := req.PaidAmount.Round(2)
		if req.IsCredit {
			if paid.GreaterThan(totals.GrandTotal) {
				return ErrOverPayment
			}
		} else {
			paid = totals.GrandTotal
		}

		invoice, err := tx.NextInvoiceNumber(ctx, saleDate)
		if err != nil {
			return fmt.Errorf("next invoice number: %w", err)
		}

		draft := Sale{
			InvoiceNumber: invoice,
			CustomerID:    req.CustomerID,
			CustomerName:  customerName,
			Items:         items,
			Subtotal:      totals.Subtotal,
			Discount:      totals.Discount,
			Tax:           totals.Tax,
			Total:         totals.Total,
			GrandTotal:    totals.GrandTotal,
			IsCredit:      req.IsCredit,
			PaymentMethod: method,
			PaidAmount:    paid,
			SellerID:      seller.ID,
			SellerName:    seller.Name,
			SaleDate:      saleDate,
			Notes:         strings.TrimSpace(req.Notes),
			Status:        StatusCompleted,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if paid.IsPositive() {
			draft.Payments = []PaymentRecord{{
				Amount:     paid,
				Method:     method,
				PaidAt:     now,
				ReceivedBy: seller.ID,
				Notes:      "Initial payment",
			}}
		}

		sale, err = tx.InsertSale(ctx, draft)
		if err != nil {
			return fmt.Errorf("insert sale: %w", err)
		}
		inserted = true

		return inventory.ApplyAdjustment(ctx, tx, inventory.Adjustment{
			Deltas:  inventory.Decrements(lines),
			Reason:  inventory.MovementSale,
			RefID:   sale.ID,
			ActorID: seller.ID,
			Note:    sale.InvoiceNumber,
		})
	})
	if err != nil {
		if inserted && errors.Is(err, db.ErrCommitUnknown) {
			return Sale{}, s.partialCommit(ctx, sale, err)
		}
		return Sale{}, err
	}

	s.afterWrite(ctx, "created", seller.ID, "sale:create", sale.ID, map[string]any{
		"invoice":    sale.InvoiceNumber,
		"grandTotal": sale.GrandTotal.String(),
		"isCredit":   sale.IsCredit,
	})
	return sale, nil
}

// partialCommit reports a sale whose commit outcome is unknown and schedules reconciliation.
func (s *Service) partialCommit(ctx context.Context, sale Sale, cause error) error {
	perr := &PartialCommitError{SaleID: sale.ID, InvoiceNumber: sale.InvoiceNumber, Err: cause}
	s.logger.ErrorContext(ctx, "reconciliation required",
		slog.Int64("sale_id", sale.ID),
		slog.String("invoice", sale.InvoiceNumber),
		slog.Any("error", cause))
	if s.events != nil {
		s.events.RecordPartialCommit()
	}
	if s.queue != nil {
		if err := s.queue.EnqueueReconcile(context.WithoutCancel(ctx), sale.ID, sale.InvoiceNumber); err != nil {
			s.logger.ErrorContext(ctx, "enqueue reconciliation failed",
				slog.Int64("sale_id", sale.ID),
				slog.Any("error", err))
		}
	}
	return perr
}

// ============================================================================
// PAYMENTS
// ============================================================================

// AddPayment pays down a credit sale. The amount is clamped to the open balance; once the
// balance reaches zero the sale stops being a credit sale. A non-empty idempotency key
// makes retries of the same request return the current sale without paying twice.
func (s *Service) AddPayment(ctx context.Context, saleID int64, req PaymentRequest, actor shared.Actor, idempotencyKey string) (PaymentResult, error) {
	amount := req.Amount.Round(2)
	if !amount.IsPositive() {
		return PaymentResult{}, ErrInvalidAmount
	}
	method := req.Method
	if method == "" {
		method = PaymentCash
	}
	if !method.Valid() {
		return PaymentResult{}, shared.FieldError("paymentMethod", "must be one of cash card transfer other")
	}
	idempotencyKey = strings.TrimSpace(idempotencyKey)

	var result PaymentResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if idempotencyKey != "" {
			if err := tx.ClaimIdempotencyKey(ctx, saleID, idempotencyKey); err != nil {
				if !errors.Is(err, shared.ErrIdempotencyConflict) {
					return fmt.Errorf("claim idempotency key: %w", err)
				}
				sale, err := tx.GetSaleForUpdate(ctx, saleID)
				if err != nil {
					return err
				}
				result = PaymentResult{Sale: sale, RemainingDebt: RemainingAmount(sale), Replayed: true}
				return nil
			}
		}

		sale, err := tx.GetSaleForUpdate(ctx, saleID)
		if err != nil {
			return err
		}
		switch {
		case sale.Status.Closed():
			return ErrSaleClosed
		case !sale.IsCredit:
			return ErrNotCredit
		case Settled(sale):
			return ErrAlreadySettled
		}

		applied := applyPayment(&sale, PaymentRecord{
			Amount:     amount,
			Method:     method,
			PaidAt:     s.now().UTC(),
			ReceivedBy: actor.ID,
			Notes:      strings.TrimSpace(req.Notes),
			Reference:  strings.TrimSpace(req.Reference),
		})
		rec := sale.Payments[len(sale.Payments)-1]
		stored, err := tx.AppendPayment(ctx, sale.ID, rec, sale.PaidAmount, sale.IsCredit)
		if err != nil {
			return fmt.Errorf("append payment: %w", err)
		}
		sale.Payments[len(sale.Payments)-1] = stored
		sale.UpdatedAt = stored.PaidAt
		result = PaymentResult{Sale: sale, Payment: &stored, RemainingDebt: RemainingAmount(sale)}
		if applied.LessThan(amount) {
			s.logger.InfoContext(ctx, "payment clamped to open balance",
				slog.Int64("sale_id", sale.ID),
				slog.String("requested", amount.String()),
				slog.String("applied", applied.String()))
		}
		return nil
	})
	if err != nil {
		return PaymentResult{}, err
	}
	if result.Replayed {
		return result, nil
	}

	s.afterWrite(ctx, "paid", actor.ID, "sale:pay", saleID, map[string]any{
		"amount":    result.Payment.Amount.String(),
		"remaining": result.RemainingDebt.String(),
	})
	return result, nil
}

// ============================================================================
// CANCEL / REFUND
// ============================================================================

// Cancel voids an unpaid or partially paid sale and restores its stock. Cancelling an
// already cancelled sale is a no-op.
func (s *Service) Cancel(ctx context.Context, saleID int64, actor shared.Actor, password string) (Sale, error) {
	return s.close(ctx, saleID, actor, password, StatusCancelled)
}

// Refund closes a fully paid sale and restores its stock. Refunding an already refunded
// sale is a no-op.
func (s *Service) Refund(ctx context.Context, saleID int64, actor shared.Actor, password string) (Sale, error) {
	return s.close(ctx, saleID, actor, password, StatusRefunded)
}

func (s *Service) close(ctx context.Context, saleID int64, actor shared.Actor, password string, target Status) (Sale, error) {
	if s.verifier == nil {
		return Sale{}, shared.ErrUnauthorized
	}
	if err := s.verifier.VerifyActor(ctx, actor.ID, password); err != nil {
		return Sale{}, err
	}

	var (
		sale Sale
		noop bool
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		sale, err = tx.GetSaleForUpdate(ctx, saleID)
		if err != nil {
			return err
		}
		if sale.Status == target {
			noop = true
			return nil
		}
		if sale.Status.Closed() {
			return ErrSaleClosed
		}

		reason := inventory.MovementCancel
		if target == StatusRefunded {
			if !FullyPaid(sale) {
				return ErrNotSettled
			}
			reason = inventory.MovementRefund
		} else if FullyPaid(sale) {
			return ErrSettledSale
		}

		if err := inventory.ApplyAdjustment(ctx, tx, inventory.Adjustment{
			Deltas:  inventory.Restocks(sale.StockLines()),
			Reason:  reason,
			RefID:   sale.ID,
			ActorID: actor.ID,
			Note:    sale.InvoiceNumber,
		}); err != nil {
			return err
		}
		if err := tx.UpdateStatus(ctx, sale.ID, target); err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		sale.Status = target
		sale.UpdatedAt = s.now().UTC()
		return nil
	})
	if err != nil {
		return Sale{}, err
	}
	if noop {
		return sale, nil
	}

	s.afterWrite(ctx, string(target), actor.ID, "sale:"+string(target), sale.ID, map[string]any{"invoice": sale.InvoiceNumber})
	return sale, nil
}

// afterWrite runs the best-effort side effects of a committed ledger write.
func (s *Service) afterWrite(ctx context.Context, event string, actorID int64, action string, saleID int64, meta map[string]any) {
	if s.events != nil {
		s.events.RecordSaleEvent(event)
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx); err != nil {
			s.logger.WarnContext(ctx, "report cache invalidation failed", slog.Any("error", err))
		}
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   action,
			Entity:   "sale",
			EntityID: strconv.FormatInt(saleID, 10),
			Meta:     meta,
		})
	}
}
