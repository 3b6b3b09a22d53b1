package stock

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-resort/internal/shared"
)

// RefModuleOrder tags movements caused by served order lines.
const RefModuleOrder = "ORDER"

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetItem(ctx context.Context, id int64) (Item, error)
	ListStock(ctx context.Context, itemID int64) ([]Stock, error)
}

// TxRepository exposes transactional operations used by service. Orders embed
// it so serve deductions share the status update transaction.
type TxRepository interface {
	ItemExists(ctx context.Context, id int64) (bool, error)
	// LockStock returns the (item, department) row locked for update, creating
	// it with zero quantity when missing.
	LockStock(ctx context.Context, itemID int64, dept Department) (Stock, error)
	SetQuantity(ctx context.Context, itemID int64, dept Department, qty decimal.Decimal) error
	InsertTransfer(ctx context.Context, t Transfer) (Transfer, error)
	InsertMovement(ctx context.Context, m Movement) error
	InsertItem(ctx context.Context, in ItemInput) (Item, error)
}

// IdempotencyPort claims request keys.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates stock operations.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency IdempotencyPort
	policy      Policy
	logger      *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, idem IdempotencyPort, policy Policy, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, idempotency: idem, policy: policy, logger: logger}
}

// CreateItem registers a new stock item.
func (s *Service) CreateItem(ctx context.Context, in ItemInput) (Item, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.SKU = strings.TrimSpace(in.SKU)
	in.Unit = strings.TrimSpace(in.Unit)
	if in.Name == "" || in.SKU == "" || in.Unit == "" {
		return Item{}, fmt.Errorf("%w: name, sku and unit required", ErrInvalidItem)
	}
	if in.CostPrice.IsNegative() {
		return Item{}, fmt.Errorf("%w: cost price must not be negative", ErrInvalidItem)
	}
	var item Item
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		created, err := tx.InsertItem(ctx, in)
		if err != nil {
			return err
		}
		item = created
		return nil
	})
	return item, err
}

// GetOrCreateStock returns the stock row for (item, dept), creating it with a
// zero quantity on first access.
func (s *Service) GetOrCreateStock(ctx context.Context, itemID int64, dept Department) (Stock, error) {
	if !dept.IsValid() {
		return Stock{}, fmt.Errorf("%w: %q", ErrInvalidDepartment, dept)
	}
	var st Stock
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := requireItem(ctx, tx, itemID); err != nil {
			return err
		}
		row, err := tx.LockStock(ctx, itemID, dept)
		if err != nil {
			return err
		}
		st = row
		return nil
	})
	return st, err
}

// GetItem loads a stock item.
func (s *Service) GetItem(ctx context.Context, id int64) (Item, error) {
	return s.repo.GetItem(ctx, id)
}

// GetStock lists every department row held for an item.
func (s *Service) GetStock(ctx context.Context, itemID int64) ([]Stock, error) {
	if _, err := s.repo.GetItem(ctx, itemID); err != nil {
		return nil, err
	}
	return s.repo.ListStock(ctx, itemID)
}

// Transfer moves stock between two departments atomically.
func (s *Service) Transfer(ctx context.Context, in TransferInput) (Transfer, error) {
	if !in.From.IsValid() || !in.To.IsValid() {
		return Transfer{}, fmt.Errorf("%w: %q -> %q", ErrInvalidDepartment, in.From, in.To)
	}
	if in.From == in.To {
		return Transfer{}, ErrInvalidTransfer
	}
	if !in.Quantity.IsPositive() {
		return Transfer{}, ErrInvalidQuantity
	}
	key := ""
	if s.idempotency != nil && strings.TrimSpace(in.Reference) != "" {
		key = "stock:transfer:" + strings.TrimSpace(in.Reference)
		if err := s.idempotency.CheckAndInsert(ctx, key, "stock"); err != nil {
			return Transfer{}, err
		}
	}
	var transfer Transfer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := requireItem(ctx, tx, in.ItemID); err != nil {
			return err
		}
		rows, err := lockPair(ctx, tx, in.ItemID, in.From, in.To)
		if err != nil {
			return err
		}
		source, dest := rows[in.From], rows[in.To]
		if !s.policy.AllowNegativeOnTransfer && source.Quantity.LessThan(in.Quantity) {
			return fmt.Errorf("%w: %s holds %s, requested %s", ErrInsufficientStock, in.From, source.Quantity.String(), in.Quantity.String())
		}
		if err := tx.SetQuantity(ctx, in.ItemID, in.From, source.Quantity.Sub(in.Quantity)); err != nil {
			return err
		}
		if err := tx.SetQuantity(ctx, in.ItemID, in.To, dest.Quantity.Add(in.Quantity)); err != nil {
			return err
		}
		created, err := tx.InsertTransfer(ctx, Transfer{
			ItemID:      in.ItemID,
			From:        in.From,
			To:          in.To,
			Quantity:    in.Quantity,
			PerformedBy: in.PerformedBy,
		})
		if err != nil {
			return err
		}
		transfer = created
		return nil
	})
	if err != nil {
		if key != "" {
			if derr := s.idempotency.Delete(ctx, key); derr != nil {
				s.logger.Warn("stock transfer key release", slog.String("key", key), slog.Any("error", derr))
			}
		}
		return Transfer{}, err
	}
	s.record(ctx, shared.AuditLog{
		Actor:    in.PerformedBy,
		Action:   "stock.transfer",
		Entity:   "stock_transfer",
		EntityID: strconv.FormatInt(transfer.ID, 10),
		Meta: map[string]any{
			"item_id":  in.ItemID,
			"from":     string(in.From),
			"to":       string(in.To),
			"quantity": in.Quantity.String(),
		},
	})
	return transfer, nil
}

func (s *Service) record(ctx context.Context, log shared.AuditLog) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, log); err != nil {
		s.logger.Warn("stock audit", slog.String("action", log.Action), slog.Any("error", err))
	}
}

// DeductForServedItem consumes stock for one served order line inside the
// caller's transaction. Lines without an inventory link are skipped. It
// returns the department charged, or "" when nothing was deducted.
func (s *Service) DeductForServedItem(ctx context.Context, tx TxRepository, in DeductionInput) (Department, error) {
	if in.InventoryItemID == nil {
		return "", nil
	}
	if !in.Quantity.IsPositive() {
		return "", ErrInvalidQuantity
	}
	dept := ResolveDepartment(in.Station, in.Location)
	itemID := *in.InventoryItemID
	row, err := tx.LockStock(ctx, itemID, dept)
	if err != nil {
		return "", err
	}
	next := row.Quantity.Sub(in.Quantity)
	if !s.policy.AllowNegativeOnDeduction && next.IsNegative() {
		return "", fmt.Errorf("%w: %s holds %s, order %d needs %s", ErrInsufficientStock, dept, row.Quantity.String(), in.OrderID, in.Quantity.String())
	}
	if err := tx.SetQuantity(ctx, itemID, dept, next); err != nil {
		return "", err
	}
	if err := tx.InsertMovement(ctx, Movement{
		ItemID:     itemID,
		Department: dept,
		Delta:      in.Quantity.Neg(),
		RefModule:  RefModuleOrder,
		RefID:      strconv.FormatInt(in.OrderID, 10),
	}); err != nil {
		return "", err
	}
	if next.IsNegative() {
		s.logger.Warn("stock below zero after serve",
			slog.Int64("item_id", itemID),
			slog.String("department", string(dept)),
			slog.String("quantity", next.String()),
			slog.Int64("order_id", in.OrderID))
	}
	return dept, nil
}

func requireItem(ctx context.Context, tx TxRepository, itemID int64) error {
	ok, err := tx.ItemExists(ctx, itemID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %d", ErrItemNotFound, itemID)
	}
	return nil
}

// lockPair locks both rows in department order so concurrent opposite
// transfers cannot deadlock.
func lockPair(ctx context.Context, tx TxRepository, itemID int64, a, b Department) (map[Department]Stock, error) {
	first, second := a, b
	if second < first {
		first, second = second, first
	}
	out := make(map[Department]Stock, 2)
	for _, dept := range []Department{first, second} {
		row, err := tx.LockStock(ctx, itemID, dept)
		if err != nil {
			return nil, err
		}
		out[dept] = row
	}
	return out, nil
}
