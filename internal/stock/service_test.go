package stock_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-resort/internal/catalog"
	"github.com/odyssey-erp/odyssey-resort/internal/shared"
	"github.com/odyssey-erp/odyssey-resort/internal/stock"
	"github.com/odyssey-erp/odyssey-resort/internal/stock/stocktest"
)

func qty(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestTransferKitchenToBar(t *testing.T) {
	store := stocktest.NewStore()
	itemID := store.AddItem("Lime", "LIME-01")
	store.Seed(itemID, stock.DepartmentKitchen, "10")
	store.Seed(itemID, stock.DepartmentBar, "6")
	svc := stock.NewService(store, nil, nil, stock.DefaultPolicy(), nil)

	transfer, err := svc.Transfer(context.Background(), stock.TransferInput{
		ItemID: itemID, From: stock.DepartmentKitchen, To: stock.DepartmentBar, Quantity: qty("5"), PerformedBy: "chef",
	})
	require.NoError(t, err)
	require.Equal(t, stock.DepartmentKitchen, transfer.From)
	require.True(t, store.Quantity(itemID, stock.DepartmentKitchen).Equal(qty("5")))
	require.True(t, store.Quantity(itemID, stock.DepartmentBar).Equal(qty("11")))
	require.Len(t, store.Transfers(), 1)
}

func TestTransferValidation(t *testing.T) {
	store := stocktest.NewStore()
	itemID := store.AddItem("Lime", "LIME-01")
	store.Seed(itemID, stock.DepartmentMain, "3")
	svc := stock.NewService(store, nil, nil, stock.DefaultPolicy(), nil)
	ctx := context.Background()

	_, err := svc.Transfer(ctx, stock.TransferInput{ItemID: itemID, From: stock.DepartmentBar, To: stock.DepartmentBar, Quantity: qty("1")})
	require.ErrorIs(t, err, stock.ErrInvalidTransfer)
	require.ErrorIs(t, err, shared.ErrConflict)
	require.NotErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Transfer(ctx, stock.TransferInput{ItemID: itemID, From: stock.DepartmentMain, To: stock.DepartmentBar, Quantity: decimal.Zero})
	require.ErrorIs(t, err, stock.ErrInvalidQuantity)

	_, err = svc.Transfer(ctx, stock.TransferInput{ItemID: itemID, From: stock.DepartmentMain, To: "CELLAR", Quantity: qty("1")})
	require.ErrorIs(t, err, stock.ErrInvalidDepartment)

	_, err = svc.Transfer(ctx, stock.TransferInput{ItemID: itemID, From: stock.DepartmentMain, To: stock.DepartmentBar, Quantity: qty("4")})
	require.ErrorIs(t, err, stock.ErrInsufficientStock)
	require.True(t, store.Quantity(itemID, stock.DepartmentMain).Equal(qty("3")))
	require.True(t, store.Quantity(itemID, stock.DepartmentBar).IsZero())

	_, err = svc.Transfer(ctx, stock.TransferInput{ItemID: 99, From: stock.DepartmentMain, To: stock.DepartmentBar, Quantity: qty("1")})
	require.ErrorIs(t, err, stock.ErrItemNotFound)
	require.Empty(t, store.Transfers())
}

func TestTransferAllowsNegativeWhenPolicyPermits(t *testing.T) {
	store := stocktest.NewStore()
	itemID := store.AddItem("Towel", "TWL-01")
	svc := stock.NewService(store, nil, nil, stock.Policy{AllowNegativeOnTransfer: true}, nil)

	_, err := svc.Transfer(context.Background(), stock.TransferInput{ItemID: itemID, From: stock.DepartmentLaundry, To: stock.DepartmentPool, Quantity: qty("2")})
	require.NoError(t, err)
	require.True(t, store.Quantity(itemID, stock.DepartmentLaundry).Equal(qty("-2")))
	require.True(t, store.Quantity(itemID, stock.DepartmentPool).Equal(qty("2")))
}

type memoryIdempotency struct {
	keys map[string]bool
}

func (m *memoryIdempotency) CheckAndInsert(ctx context.Context, key, module string) error {
	if m.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = true
	return nil
}

func (m *memoryIdempotency) Delete(ctx context.Context, key string) error {
	delete(m.keys, key)
	return nil
}

func TestTransferReferenceIsIdempotent(t *testing.T) {
	store := stocktest.NewStore()
	itemID := store.AddItem("Ice", "ICE-01")
	store.Seed(itemID, stock.DepartmentMain, "20")
	idem := &memoryIdempotency{keys: map[string]bool{}}
	svc := stock.NewService(store, nil, idem, stock.DefaultPolicy(), nil)
	ctx := context.Background()
	in := stock.TransferInput{ItemID: itemID, From: stock.DepartmentMain, To: stock.DepartmentBeachBar, Quantity: qty("5"), Reference: "TRF-1"}

	_, err := svc.Transfer(ctx, in)
	require.NoError(t, err)
	_, err = svc.Transfer(ctx, in)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.True(t, store.Quantity(itemID, stock.DepartmentMain).Equal(qty("15")))

	failing := stock.TransferInput{ItemID: itemID, From: stock.DepartmentMain, To: stock.DepartmentBar, Quantity: qty("100"), Reference: "TRF-2"}
	_, err = svc.Transfer(ctx, failing)
	require.ErrorIs(t, err, stock.ErrInsufficientStock)
	require.False(t, idem.keys["stock:transfer:TRF-2"])
}

type failingAudit struct{ calls int }

func (f *failingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	f.calls++
	return errors.New("audit table unavailable")
}

func TestTransferLogsAuditFailure(t *testing.T) {
	store := stocktest.NewStore()
	itemID := store.AddItem("Lime", "LIME-01")
	store.Seed(itemID, stock.DepartmentKitchen, "4")
	audit := &failingAudit{}
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	svc := stock.NewService(store, audit, nil, stock.DefaultPolicy(), logger)

	transfer, err := svc.Transfer(context.Background(), stock.TransferInput{
		ItemID: itemID, From: stock.DepartmentKitchen, To: stock.DepartmentBar, Quantity: qty("1"),
	})
	require.NoError(t, err)
	require.NotZero(t, transfer.ID)
	require.Equal(t, 1, audit.calls)
	require.Contains(t, buf.String(), "level=WARN")
	require.Contains(t, buf.String(), "action=stock.transfer")
	require.Contains(t, buf.String(), "audit table unavailable")
}

func TestResolveDepartment(t *testing.T) {
	cases := []struct {
		station  catalog.Station
		location catalog.LocationType
		want     stock.Department
	}{
		{catalog.StationKitchen, catalog.LocationPool, stock.DepartmentKitchen},
		{catalog.StationKitchen, catalog.LocationRoom, stock.DepartmentKitchen},
		{catalog.StationBar, catalog.LocationPool, stock.DepartmentPool},
		{catalog.StationBar, catalog.LocationBeach, stock.DepartmentBeachBar},
		{catalog.StationBar, catalog.LocationRoom, stock.DepartmentBar},
		{catalog.StationBar, catalog.LocationWalkIn, stock.DepartmentBar},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, stock.ResolveDepartment(tc.station, tc.location), "%s/%s", tc.station, tc.location)
	}
}

func TestDeductForServedItem(t *testing.T) {
	store := stocktest.NewStore()
	itemID := store.AddItem("Beer", "BEER-01")
	store.Seed(itemID, stock.DepartmentBeachBar, "1")
	svc := stock.NewService(store, nil, nil, stock.DefaultPolicy(), nil)
	ctx := context.Background()

	done := store.Begin()
	dept, err := svc.DeductForServedItem(ctx, stocktest.NewTx(store), stock.DeductionInput{
		OrderID: 7, InventoryItemID: &itemID, Station: catalog.StationBar, Location: catalog.LocationBeach, Quantity: qty("3"),
	})
	done(err)
	require.NoError(t, err)
	require.Equal(t, stock.DepartmentBeachBar, dept)
	require.True(t, store.Quantity(itemID, stock.DepartmentBeachBar).Equal(qty("-2")))
	movements := store.Movements()
	require.Len(t, movements, 1)
	require.Equal(t, "7", movements[0].RefID)
	require.True(t, movements[0].Delta.Equal(qty("-3")))

	done = store.Begin()
	dept, err = svc.DeductForServedItem(ctx, stocktest.NewTx(store), stock.DeductionInput{OrderID: 8, Station: catalog.StationKitchen, Quantity: qty("1")})
	done(err)
	require.NoError(t, err)
	require.Empty(t, dept)
}

func TestDeductionRespectsStrictPolicy(t *testing.T) {
	store := stocktest.NewStore()
	itemID := store.AddItem("Steak", "STK-01")
	store.Seed(itemID, stock.DepartmentKitchen, "1")
	svc := stock.NewService(store, nil, nil, stock.Policy{}, nil)

	done := store.Begin()
	_, err := svc.DeductForServedItem(context.Background(), stocktest.NewTx(store), stock.DeductionInput{
		OrderID: 1, InventoryItemID: &itemID, Station: catalog.StationKitchen, Location: catalog.LocationTable, Quantity: qty("2"),
	})
	done(err)
	require.True(t, errors.Is(err, stock.ErrInsufficientStock))
	require.True(t, store.Quantity(itemID, stock.DepartmentKitchen).Equal(qty("1")))
}

func TestItemsAndStockRows(t *testing.T) {
	store := stocktest.NewStore()
	svc := stock.NewService(store, nil, nil, stock.DefaultPolicy(), nil)
	ctx := context.Background()

	item, err := svc.CreateItem(ctx, stock.ItemInput{Name: "Rum", SKU: "RUM-01", Unit: "bottle", CostPrice: qty("12.499")})
	require.NoError(t, err)
	require.Equal(t, "12.50", item.CostPrice.StringFixed(2))
	_, err = svc.CreateItem(ctx, stock.ItemInput{Name: "Rum", SKU: "RUM-01", Unit: "bottle"})
	require.ErrorIs(t, err, stock.ErrDuplicateSKU)
	_, err = svc.CreateItem(ctx, stock.ItemInput{Name: "", SKU: "X", Unit: "u"})
	require.ErrorIs(t, err, stock.ErrInvalidItem)

	row, err := svc.GetOrCreateStock(ctx, item.ID, stock.DepartmentBar)
	require.NoError(t, err)
	require.True(t, row.Quantity.IsZero())
	_, err = svc.GetOrCreateStock(ctx, item.ID, "ROOFTOP")
	require.ErrorIs(t, err, stock.ErrInvalidDepartment)

	rows, err := svc.GetStock(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	_, err = svc.GetStock(ctx, 404)
	require.ErrorIs(t, err, stock.ErrItemNotFound)
}
