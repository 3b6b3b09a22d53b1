package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-resort/internal/billing"
	"github.com/odyssey-erp/odyssey-resort/internal/catalog"
	"github.com/odyssey-erp/odyssey-resort/internal/shared"
	"github.com/odyssey-erp/odyssey-resort/internal/stock"
)

// EffectInvoice names the invoice side effect of order creation.
const EffectInvoice = "order.invoice"

// ApprovalModule tags return decisions in the approval log.
const ApprovalModule = "ORDER_RETURN"

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Order, error)
	ListActive(ctx context.Context, filter ActiveFilter) ([]Order, error)
	GetReturn(ctx context.Context, id int64) (Return, error)
	SalesSince(ctx context.Context, since time.Time) (SalesTotals, error)
	TopItemsSince(ctx context.Context, since time.Time, limit int) ([]TopItem, error)
}

// TxRepository exposes transactional operations used by service. It embeds
// the stock operations so serve deductions commit with the status change.
type TxRepository interface {
	stock.TxRepository
	InsertOrder(ctx context.Context, o Order) (Order, error)
	GetOrderForUpdate(ctx context.Context, id int64) (Order, error)
	UpdateStatus(ctx context.Context, id int64, status Status) error
	// ClaimStatusMark records that the order reached status and reports
	// whether this call was the first to do so.
	ClaimStatusMark(ctx context.Context, id int64, status Status) (bool, error)
	InsertReturn(ctx context.Context, r Return) (Return, error)
	GetReturnForUpdate(ctx context.Context, id int64) (Return, error)
	UpdateReturn(ctx context.Context, r Return) error
}

// MenuReader loads menu items for price snapshots.
type MenuReader interface {
	GetMenuItems(ctx context.Context, ids []int64) (map[int64]catalog.MenuItem, error)
}

// StockPort consumes stock for served lines inside the caller's transaction.
type StockPort interface {
	DeductForServedItem(ctx context.Context, tx stock.TxRepository, in stock.DeductionInput) (stock.Department, error)
}

// Invoicer bills a new order.
type Invoicer interface {
	CreateForOrder(ctx context.Context, in billing.OrderInvoiceInput) (billing.Invoice, error)
}

// Locker serialises work on one order across processes.
type Locker interface {
	Acquire(ctx context.Context, key string) (func(), error)
}

// ApprovalPort records return decisions.
type ApprovalPort interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
	List(ctx context.Context, module string, ref int64) ([]shared.ApprovalLog, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates the order lifecycle.
type Service struct {
	repo      RepositoryPort
	menu      MenuReader
	stock     StockPort
	invoicer  Invoicer
	locker    Locker
	approvals ApprovalPort
	audit     AuditPort
	effects   shared.EffectRecorder
	logger    *slog.Logger
	now       func() time.Time
	polls     singleflight.Group
}

// NewService builds Service.
func NewService(repo RepositoryPort, menu MenuReader, stocks StockPort, invoicer Invoicer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, menu: menu, stock: stocks, invoicer: invoicer, logger: logger, now: time.Now}
}

// WithLocker serialises status changes per order.
func (s *Service) WithLocker(l Locker) { s.locker = l }

// WithApprovals records return decisions.
func (s *Service) WithApprovals(a ApprovalPort) { s.approvals = a }

// WithAudit records order events.
func (s *Service) WithAudit(a AuditPort) { s.audit = a }

// WithEffectRecorder observes dependent effect outcomes.
func (s *Service) WithEffectRecorder(r shared.EffectRecorder) { s.effects = r }

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Create places an order at current menu prices, then bills it. Billing is a
// dependent effect: its failure is reported in the result, not returned.
func (s *Service) Create(ctx context.Context, req CreateRequest) (CreateResult, error) {
	if err := ValidateCreateRequest(req); err != nil {
		return CreateResult{}, err
	}
	location, err := catalog.ParseLocationType(req.LocationType)
	if err != nil {
		return CreateResult{}, err
	}

	ids := make([]int64, 0, len(req.Items))
	seen := make(map[int64]bool, len(req.Items))
	for _, line := range req.Items {
		if !seen[line.MenuItemID] {
			seen[line.MenuItemID] = true
			ids = append(ids, line.MenuItemID)
		}
	}
	menu, err := s.menu.GetMenuItems(ctx, ids)
	if err != nil {
		return CreateResult{}, fmt.Errorf("load menu: %w", err)
	}

	order := Order{
		Room:         strings.TrimSpace(req.Room),
		LocationType: location,
		Status:       StatusPending,
		TotalAmount:  decimal.Zero,
	}
	for _, line := range req.Items {
		m, ok := menu[line.MenuItemID]
		if !ok {
			return CreateResult{}, fmt.Errorf("%w: %d", catalog.ErrMenuItemNotFound, line.MenuItemID)
		}
		item := Item{
			MenuItemID:      m.ID,
			Name:            m.Name,
			Quantity:        line.Quantity,
			PriceAtTime:     m.Price.Round(2),
			Station:         m.Station,
			InventoryItemID: m.InventoryItemID,
		}
		order.TotalAmount = order.TotalAmount.Add(item.LineTotal())
		order.Items = append(order.Items, item)
	}

	var created Order
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		o, err := tx.InsertOrder(ctx, order)
		if err != nil {
			return err
		}
		created = o
		return nil
	})
	if err != nil {
		return CreateResult{}, fmt.Errorf("create order: %w", err)
	}

	s.record(ctx, shared.AuditLog{
		Action:   "orders.create",
		Entity:   "order",
		EntityID: strconv.FormatInt(created.ID, 10),
		Meta: map[string]any{
			"room":     created.Room,
			"location": string(created.LocationType),
			"total":    created.TotalAmount.StringFixed(2),
		},
	})
	return CreateResult{Order: created, Effects: []shared.DependentEffect{s.invoice(ctx, created)}}, nil
}

func (s *Service) invoice(ctx context.Context, o Order) shared.DependentEffect {
	effect := shared.DependentEffect{Name: EffectInvoice, Status: shared.EffectSucceeded}
	lines := make([]billing.OrderLine, 0, len(o.Items))
	for _, item := range o.Items {
		lines = append(lines, billing.OrderLine{Name: item.Name, Quantity: item.Quantity, UnitPrice: item.PriceAtTime})
	}
	inv, err := s.invoicer.CreateForOrder(ctx, billing.OrderInvoiceInput{
		OrderID:  o.ID,
		Room:     o.Room,
		Location: string(o.LocationType),
		Lines:    lines,
	})
	if err != nil {
		effect.Status = shared.EffectFailed
		effect.Error = err.Error()
		s.logger.Error("dependent effect failed",
			slog.String("effect", EffectInvoice),
			slog.Int64("order_id", o.ID),
			slog.Any("error", fmt.Errorf("%w: %w", shared.ErrIntegrity, err)))
	} else {
		effect.Ref = inv.Number
	}
	if s.effects != nil {
		s.effects.ObserveEffect(effect)
	}
	return effect
}

// TransitionStatus moves an order to target. Entering SERVED for the first
// time deducts stock for every inventory-linked line in the same transaction;
// repeating it deducts nothing.
func (s *Service) TransitionStatus(ctx context.Context, orderID int64, target Status) (TransitionResult, error) {
	if !target.IsSettable() {
		return TransitionResult{}, fmt.Errorf("%w: %q", ErrInvalidStatus, target)
	}
	release, err := s.lock(ctx, orderID)
	if err != nil {
		return TransitionResult{}, err
	}
	defer release()

	var result TransitionResult
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status.IsClosed() {
			return fmt.Errorf("%w: order %d", ErrOrderClosed, orderID)
		}
		result.Previous = order.Status

		claimed, err := tx.ClaimStatusMark(ctx, orderID, target)
		if err != nil {
			return err
		}
		if target == StatusServed && order.Status != StatusServed && claimed {
			deductions, err := s.deduct(ctx, tx, order)
			if err != nil {
				return err
			}
			result.Deductions = deductions
		}
		if order.Status != target {
			if err := tx.UpdateStatus(ctx, orderID, target); err != nil {
				return err
			}
			order.Status = target
			order.UpdatedAt = s.now()
		}
		result.Order = order
		return nil
	})
	if err != nil {
		return TransitionResult{}, err
	}

	if result.Previous != target {
		s.logger.Info("order status changed",
			slog.Int64("order_id", orderID),
			slog.String("from", string(result.Previous)),
			slog.String("to", string(target)),
			slog.Int("deductions", len(result.Deductions)))
	}
	return result, nil
}

func (s *Service) deduct(ctx context.Context, tx TxRepository, order Order) ([]Deduction, error) {
	var out []Deduction
	for _, item := range order.Items {
		qty := decimal.NewFromInt(int64(item.Quantity))
		dept, err := s.stock.DeductForServedItem(ctx, tx, stock.DeductionInput{
			OrderID:         order.ID,
			InventoryItemID: item.InventoryItemID,
			Station:         item.Station,
			Location:        order.LocationType,
			Quantity:        qty,
		})
		if err != nil {
			return nil, fmt.Errorf("deduct %s: %w", item.Name, err)
		}
		if dept == "" {
			continue
		}
		out = append(out, Deduction{
			MenuItemID:      item.MenuItemID,
			InventoryItemID: *item.InventoryItemID,
			Department:      dept,
			Quantity:        qty,
		})
	}
	return out, nil
}

func (s *Service) lock(ctx context.Context, orderID int64) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	release, err := s.locker.Acquire(ctx, shared.OrderLockKey(orderID))
	if err != nil {
		if errors.Is(err, shared.ErrLockBusy) {
			return nil, fmt.Errorf("%w: %d", ErrOrderBusy, orderID)
		}
		return nil, fmt.Errorf("lock order %d: %w", orderID, err)
	}
	return release, nil
}

// RequestReturn opens a return for an order.
func (s *Service) RequestReturn(ctx context.Context, orderID int64, reason string) (Return, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Return{}, ErrMissingReason
	}
	var ret Return
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetOrderForUpdate(ctx, orderID); err != nil {
			return err
		}
		created, err := tx.InsertReturn(ctx, Return{
			OrderID:     orderID,
			Reason:      reason,
			Status:      ReturnRequested,
			RequestedAt: s.now(),
		})
		if err != nil {
			return err
		}
		ret = created
		return nil
	})
	if err != nil {
		return Return{}, err
	}
	s.recordApproval(ctx, ret, "", shared.ApprovalSubmit, reason)
	return ret, nil
}

// ApproveStation records the station's approval of a requested return.
func (s *Service) ApproveStation(ctx context.Context, returnID int64, actor string) (Return, error) {
	return s.decide(ctx, returnID, actor, ReturnStationApproved, shared.ApprovalStation)
}

// ApproveAdmin gives final approval and closes the order as RETURNED.
func (s *Service) ApproveAdmin(ctx context.Context, returnID int64, actor string) (Return, error) {
	return s.decide(ctx, returnID, actor, ReturnAdminApproved, shared.ApprovalAdmin)
}

// RejectReturn declines a pending return.
func (s *Service) RejectReturn(ctx context.Context, returnID int64, actor string) (Return, error) {
	return s.decide(ctx, returnID, actor, ReturnRejected, shared.ApprovalReject)
}

func (s *Service) decide(ctx context.Context, returnID int64, actor string, next ReturnStatus, action shared.ApprovalAction) (Return, error) {
	actor = strings.TrimSpace(actor)
	var ret Return
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetReturnForUpdate(ctx, returnID)
		if err != nil {
			return err
		}
		if !current.Status.CanMoveTo(next) {
			return fmt.Errorf("%w: %s to %s", ErrInvalidReturnTransition, current.Status, next)
		}
		at := s.now()
		current.Status = next
		current.DecidedAt = &at
		current.DecidedBy = actor
		if err := tx.UpdateReturn(ctx, current); err != nil {
			return err
		}
		if next == ReturnAdminApproved {
			if err := s.closeOrder(ctx, tx, current.OrderID); err != nil {
				return err
			}
		}
		ret = current
		return nil
	})
	if err != nil {
		return Return{}, err
	}
	s.recordApproval(ctx, ret, actor, action, "")
	return ret, nil
}

func (s *Service) closeOrder(ctx context.Context, tx TxRepository, orderID int64) error {
	order, err := tx.GetOrderForUpdate(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Status == StatusReturned {
		return nil
	}
	if _, err := tx.ClaimStatusMark(ctx, orderID, StatusReturned); err != nil {
		return err
	}
	return tx.UpdateStatus(ctx, orderID, StatusReturned)
}

// ListActive returns orders not yet served, newest first. Identical
// concurrent polls share one query, which outlives any single caller's
// cancellation.
func (s *Service) ListActive(ctx context.Context, filter ActiveFilter) ([]Order, error) {
	filter.Room = strings.TrimSpace(filter.Room)
	detached := context.WithoutCancel(ctx)
	v, err, _ := s.polls.Do("active:"+filter.Room, func() (any, error) {
		return s.repo.ListActive(detached, filter)
	})
	if err != nil {
		return nil, err
	}
	return v.([]Order), nil
}

// Get loads an order with its items and returns.
func (s *Service) Get(ctx context.Context, id int64) (Order, error) {
	return s.repo.Get(ctx, id)
}

// GetReturn loads a return.
func (s *Service) GetReturn(ctx context.Context, id int64) (Return, error) {
	return s.repo.GetReturn(ctx, id)
}

// ReturnHistory lists the decisions taken on a return, oldest first.
func (s *Service) ReturnHistory(ctx context.Context, returnID int64) ([]shared.ApprovalLog, error) {
	if _, err := s.repo.GetReturn(ctx, returnID); err != nil {
		return nil, err
	}
	if s.approvals == nil {
		return []shared.ApprovalLog{}, nil
	}
	logs, err := s.approvals.List(ctx, ApprovalModule, returnID)
	if err != nil {
		return nil, fmt.Errorf("orders: return %d history: %w", returnID, err)
	}
	return logs, nil
}

func (s *Service) recordApproval(ctx context.Context, ret Return, actor string, action shared.ApprovalAction, note string) {
	if s.approvals == nil {
		return
	}
	if err := s.approvals.Record(ctx, shared.ApprovalLog{
		Module: ApprovalModule,
		RefID:  ret.ID,
		Actor:  actor,
		Action: action,
		Note:   note,
		At:     s.now(),
	}); err != nil {
		s.logger.Warn("record return approval", slog.Int64("return_id", ret.ID), slog.Any("error", err))
	}
}

func (s *Service) record(ctx context.Context, log shared.AuditLog) {
	if s.audit == nil {
		return
	}
	if log.At.IsZero() {
		log.At = s.now()
	}
	if err := s.audit.Record(ctx, log); err != nil {
		s.logger.Warn("orders audit", slog.String("action", log.Action), slog.Any("error", err))
	}
}
