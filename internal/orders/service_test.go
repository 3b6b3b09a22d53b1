package orders_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-resort/internal/billing"
	"github.com/odyssey-erp/odyssey-resort/internal/billing/billingtest"
	"github.com/odyssey-erp/odyssey-resort/internal/catalog"
	"github.com/odyssey-erp/odyssey-resort/internal/integration"
	"github.com/odyssey-erp/odyssey-resort/internal/ledger"
	"github.com/odyssey-erp/odyssey-resort/internal/ledger/ledgertest"
	"github.com/odyssey-erp/odyssey-resort/internal/orders"
	"github.com/odyssey-erp/odyssey-resort/internal/orders/orderstest"
	"github.com/odyssey-erp/odyssey-resort/internal/shared"
	"github.com/odyssey-erp/odyssey-resort/internal/stock"
	"github.com/odyssey-erp/odyssey-resort/internal/stock/stocktest"
)

type fixture struct {
	svc     *orders.Service
	store   *orderstest.Store
	stock   *stocktest.Store
	ledger  *ledgertest.Store
	billing *billingtest.Store
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T, policy stock.Policy) fixture {
	t.Helper()
	stockStore := stocktest.NewStore()
	store := orderstest.NewStore(stockStore)
	ledgerStore := ledgertest.NewChartStore()
	billingStore := billingtest.NewStore(ledgerStore)
	invoicer := billing.NewService(billingStore, integration.NewHooks(ledger.DefaultRoles(), nil), nil, quietLogger())
	stockSvc := stock.NewService(stockStore, nil, nil, policy, quietLogger())
	svc := orders.NewService(store, store, stockSvc, invoicer, quietLogger())
	return fixture{svc: svc, store: store, stock: stockStore, ledger: ledgerStore, billing: billingStore}
}

func ptr(v int64) *int64 { return &v }

type failingInvoicer struct{}

func (failingInvoicer) CreateForOrder(ctx context.Context, in billing.OrderInvoiceInput) (billing.Invoice, error) {
	return billing.Invoice{}, errors.New("ledger unavailable")
}

type effectLog struct {
	mu      sync.Mutex
	effects []shared.DependentEffect
}

func (l *effectLog) ObserveEffect(effect shared.DependentEffect) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.effects = append(l.effects, effect)
}

type approvalLog struct {
	actions []shared.ApprovalAction
	actors  []string
	logs    []shared.ApprovalLog
}

func (l *approvalLog) Record(ctx context.Context, log shared.ApprovalLog) error {
	l.actions = append(l.actions, log.Action)
	l.actors = append(l.actors, log.Actor)
	l.logs = append(l.logs, log)
	return nil
}

func (l *approvalLog) List(ctx context.Context, module string, ref int64) ([]shared.ApprovalLog, error) {
	var out []shared.ApprovalLog
	for _, log := range l.logs {
		if log.Module == module && log.RefID == ref {
			out = append(out, log)
		}
	}
	return out, nil
}

func TestCreateSnapshotsPricesAndInvoices(t *testing.T) {
	f := newFixture(t, stock.DefaultPolicy())
	f.billing.AddBooking(billing.Booking{ID: 9, Room: "101", CheckedIn: true})
	sandwich := f.store.AddMenuItem("Club Sandwich", "10.00", catalog.StationKitchen, nil)
	juice := f.store.AddMenuItem("Mango Juice", "5.00", catalog.StationBar, nil)

	res, err := f.svc.Create(context.Background(), orders.CreateRequest{
		Room: " 101 ",
		Items: []orders.CreateItemRequest{
			{MenuItemID: sandwich, Quantity: 2},
			{MenuItemID: juice, Quantity: 1},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "101", res.Order.Room)
	require.Equal(t, catalog.LocationRoom, res.Order.LocationType)
	require.Equal(t, orders.StatusPending, res.Order.Status)
	require.Equal(t, "25.00", res.Order.TotalAmount.StringFixed(2))
	require.Len(t, res.Order.Items, 2)

	require.Len(t, res.Effects, 1)
	require.Equal(t, orders.EffectInvoice, res.Effects[0].Name)
	require.False(t, res.Effects[0].Failed())
	require.True(t, strings.HasPrefix(res.Effects[0].Ref, "INV-"))

	invoices := f.billing.Invoices()
	require.Len(t, invoices, 1)
	require.Equal(t, "25.00", invoices[0].TotalFT.StringFixed(2))
	require.Equal(t, billing.RevenueDining, invoices[0].RevenueCategory)
	require.NotNil(t, invoices[0].BookingID)
	require.EqualValues(t, 9, *invoices[0].BookingID)
	require.Equal(t, "25.00", f.ledger.Balance("1100").StringFixed(2))
	require.Equal(t, "-25.00", f.ledger.Balance("4100").StringFixed(2))

	f.store.SetPrice(sandwich, "12.00")
	got, err := f.svc.Get(context.Background(), res.Order.ID)
	require.NoError(t, err)
	require.Equal(t, "10.00", got.Items[0].PriceAtTime.StringFixed(2))
	require.Equal(t, "25.00", got.TotalAmount.StringFixed(2))
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t, stock.DefaultPolicy())
	dish := f.store.AddMenuItem("Fish Curry", "12.00", catalog.StationKitchen, nil)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, orders.CreateRequest{Room: "101"})
	require.ErrorIs(t, err, orders.ErrEmptyItems)

	_, err = f.svc.Create(ctx, orders.CreateRequest{Items: []orders.CreateItemRequest{{MenuItemID: dish, Quantity: 0}}})
	require.ErrorIs(t, err, orders.ErrInvalidQuantity)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = f.svc.Create(ctx, orders.CreateRequest{Items: []orders.CreateItemRequest{{MenuItemID: 999, Quantity: 1}}})
	require.ErrorIs(t, err, catalog.ErrMenuItemNotFound)

	_, err = f.svc.Create(ctx, orders.CreateRequest{LocationType: "rooftop", Items: []orders.CreateItemRequest{{MenuItemID: dish, Quantity: 1}}})
	require.ErrorIs(t, err, catalog.ErrInvalidLocation)

	require.Empty(t, f.billing.Invoices())
}

func TestInvoiceFailureIsReportedNotReturned(t *testing.T) {
	stockStore := stocktest.NewStore()
	store := orderstest.NewStore(stockStore)
	stockSvc := stock.NewService(stockStore, nil, nil, stock.DefaultPolicy(), quietLogger())
	svc := orders.NewService(store, store, stockSvc, failingInvoicer{}, quietLogger())
	effects := &effectLog{}
	svc.WithEffectRecorder(effects)
	dish := store.AddMenuItem("Fish Curry", "12.00", catalog.StationKitchen, nil)

	res, err := svc.Create(context.Background(), orders.CreateRequest{
		LocationType: "TABLE",
		Items:        []orders.CreateItemRequest{{MenuItemID: dish, Quantity: 1}},
	})
	require.NoError(t, err)
	require.Len(t, res.Effects, 1)
	require.True(t, res.Effects[0].Failed())
	require.Contains(t, res.Effects[0].Error, "ledger unavailable")

	got, err := svc.Get(context.Background(), res.Order.ID)
	require.NoError(t, err)
	require.Equal(t, orders.StatusPending, got.Status)

	require.Len(t, effects.effects, 1)
	require.Equal(t, shared.EffectFailed, effects.effects[0].Status)
}

func TestServeDeductsStockOnce(t *testing.T) {
	f := newFixture(t, stock.DefaultPolicy())
	juiceStock := f.stock.AddItem("Mango Juice", "JUICE-1")
	f.stock.Seed(juiceStock, stock.DepartmentPool, "10")
	juice := f.store.AddMenuItem("Mango Juice", "5.00", catalog.StationBar, ptr(juiceStock))
	fries := f.store.AddMenuItem("Fries", "4.00", catalog.StationKitchen, nil)
	ctx := context.Background()

	res, err := f.svc.Create(ctx, orders.CreateRequest{
		LocationType: "pool",
		Items: []orders.CreateItemRequest{
			{MenuItemID: juice, Quantity: 3},
			{MenuItemID: fries, Quantity: 1},
		},
	})
	require.NoError(t, err)
	id := res.Order.ID

	_, err = f.svc.TransitionStatus(ctx, id, orders.StatusPreparing)
	require.NoError(t, err)
	require.Equal(t, "10", f.stock.Quantity(juiceStock, stock.DepartmentPool).String())

	served, err := f.svc.TransitionStatus(ctx, id, orders.StatusServed)
	require.NoError(t, err)
	require.Equal(t, orders.StatusPreparing, served.Previous)
	require.Equal(t, orders.StatusServed, served.Order.Status)
	require.Len(t, served.Deductions, 1)
	require.Equal(t, stock.DepartmentPool, served.Deductions[0].Department)
	require.Equal(t, "7", f.stock.Quantity(juiceStock, stock.DepartmentPool).String())

	again, err := f.svc.TransitionStatus(ctx, id, orders.StatusServed)
	require.NoError(t, err)
	require.Empty(t, again.Deductions)

	_, err = f.svc.TransitionStatus(ctx, id, orders.StatusReady)
	require.NoError(t, err)
	_, err = f.svc.TransitionStatus(ctx, id, orders.StatusServed)
	require.NoError(t, err)

	require.Equal(t, "7", f.stock.Quantity(juiceStock, stock.DepartmentPool).String())
	movements := f.stock.Movements()
	require.Len(t, movements, 1)
	require.Equal(t, "-3", movements[0].Delta.String())
	require.Equal(t, stock.RefModuleOrder, movements[0].RefModule)
}

func TestServeIsAtomicWithDeduction(t *testing.T) {
	f := newFixture(t, stock.Policy{AllowNegativeOnDeduction: false})
	flour := f.stock.AddItem("Flour", "FLOUR-1")
	f.stock.Seed(flour, stock.DepartmentKitchen, "1")
	bread := f.store.AddMenuItem("Bread Basket", "3.00", catalog.StationKitchen, ptr(flour))
	ctx := context.Background()

	res, err := f.svc.Create(ctx, orders.CreateRequest{Items: []orders.CreateItemRequest{{MenuItemID: bread, Quantity: 2}}})
	require.NoError(t, err)

	_, err = f.svc.TransitionStatus(ctx, res.Order.ID, orders.StatusServed)
	require.ErrorIs(t, err, stock.ErrInsufficientStock)

	got, err := f.svc.Get(ctx, res.Order.ID)
	require.NoError(t, err)
	require.Equal(t, orders.StatusPending, got.Status)
	require.Equal(t, "1", f.stock.Quantity(flour, stock.DepartmentKitchen).String())
	require.Empty(t, f.stock.Movements())

	f.stock.Seed(flour, stock.DepartmentKitchen, "5")
	served, err := f.svc.TransitionStatus(ctx, res.Order.ID, orders.StatusServed)
	require.NoError(t, err)
	require.Len(t, served.Deductions, 1)
	require.Equal(t, "3", f.stock.Quantity(flour, stock.DepartmentKitchen).String())
}

func TestTransitionRejectsUnknownTargets(t *testing.T) {
	f := newFixture(t, stock.DefaultPolicy())
	ctx := context.Background()

	_, err := f.svc.TransitionStatus(ctx, 1, orders.StatusReturned)
	require.ErrorIs(t, err, orders.ErrInvalidStatus)
	_, err = f.svc.TransitionStatus(ctx, 1, orders.Status("COOKING"))
	require.ErrorIs(t, err, orders.ErrInvalidStatus)
	_, err = f.svc.TransitionStatus(ctx, 404, orders.StatusReady)
	require.ErrorIs(t, err, orders.ErrOrderNotFound)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestTransitionHonoursOrderLock(t *testing.T) {
	f := newFixture(t, stock.DefaultPolicy())
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locks := redislock.New(client)
	f.svc.WithLocker(shared.NewLocker(locks, time.Second))

	dish := f.store.AddMenuItem("Fish Curry", "12.00", catalog.StationKitchen, nil)
	ctx := context.Background()
	res, err := f.svc.Create(ctx, orders.CreateRequest{Items: []orders.CreateItemRequest{{MenuItemID: dish, Quantity: 1}}})
	require.NoError(t, err)

	held, err := locks.Obtain(ctx, shared.OrderLockKey(res.Order.ID), time.Minute, nil)
	require.NoError(t, err)

	_, err = f.svc.TransitionStatus(ctx, res.Order.ID, orders.StatusPreparing)
	require.ErrorIs(t, err, orders.ErrOrderBusy)
	require.ErrorIs(t, err, shared.ErrLockBusy)
	require.ErrorIs(t, err, shared.ErrConflict)

	require.NoError(t, held.Release(ctx))
	out, err := f.svc.TransitionStatus(ctx, res.Order.ID, orders.StatusPreparing)
	require.NoError(t, err)
	require.Equal(t, orders.StatusPreparing, out.Order.Status)

	_, err = f.svc.TransitionStatus(ctx, res.Order.ID, orders.StatusReady)
	require.NoError(t, err, "lock is released after each transition")
}

func TestReturnApprovalChain(t *testing.T) {
	f := newFixture(t, stock.DefaultPolicy())
	approvals := &approvalLog{}
	f.svc.WithApprovals(approvals)
	dish := f.store.AddMenuItem("Fish Curry", "12.00", catalog.StationKitchen, nil)
	ctx := context.Background()

	res, err := f.svc.Create(ctx, orders.CreateRequest{Items: []orders.CreateItemRequest{{MenuItemID: dish, Quantity: 1}}})
	require.NoError(t, err)
	_, err = f.svc.TransitionStatus(ctx, res.Order.ID, orders.StatusServed)
	require.NoError(t, err)

	_, err = f.svc.RequestReturn(ctx, res.Order.ID, "   ")
	require.ErrorIs(t, err, orders.ErrMissingReason)
	_, err = f.svc.RequestReturn(ctx, 404, "cold")
	require.ErrorIs(t, err, orders.ErrOrderNotFound)

	ret, err := f.svc.RequestReturn(ctx, res.Order.ID, "Served cold")
	require.NoError(t, err)
	require.Equal(t, orders.ReturnRequested, ret.Status)

	ret, err = f.svc.ApproveStation(ctx, ret.ID, "chef")
	require.NoError(t, err)
	require.Equal(t, orders.ReturnStationApproved, ret.Status)
	require.Equal(t, "chef", ret.DecidedBy)

	_, err = f.svc.ApproveStation(ctx, ret.ID, "chef")
	require.ErrorIs(t, err, orders.ErrInvalidReturnTransition)

	ret, err = f.svc.ApproveAdmin(ctx, ret.ID, "manager")
	require.NoError(t, err)
	require.Equal(t, orders.ReturnAdminApproved, ret.Status)
	require.NotNil(t, ret.DecidedAt)

	got, err := f.svc.Get(ctx, res.Order.ID)
	require.NoError(t, err)
	require.Equal(t, orders.StatusReturned, got.Status)
	require.Len(t, got.Returns, 1)

	_, err = f.svc.TransitionStatus(ctx, res.Order.ID, orders.StatusPreparing)
	require.ErrorIs(t, err, orders.ErrOrderClosed)

	require.Equal(t, []shared.ApprovalAction{shared.ApprovalSubmit, shared.ApprovalStation, shared.ApprovalAdmin}, approvals.actions)
	require.Equal(t, []string{"", "chef", "manager"}, approvals.actors)

	history, err := f.svc.ReturnHistory(ctx, ret.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	require.Equal(t, "Served cold", history[0].Note)
	require.Equal(t, orders.ApprovalModule, history[2].Module)

	_, err = f.svc.ReturnHistory(ctx, 999)
	require.ErrorIs(t, err, orders.ErrReturnNotFound)
}

func TestRejectedReturnLeavesOrderOpen(t *testing.T) {
	f := newFixture(t, stock.DefaultPolicy())
	dish := f.store.AddMenuItem("Fish Curry", "12.00", catalog.StationKitchen, nil)
	ctx := context.Background()

	res, err := f.svc.Create(ctx, orders.CreateRequest{Items: []orders.CreateItemRequest{{MenuItemID: dish, Quantity: 1}}})
	require.NoError(t, err)
	ret, err := f.svc.RequestReturn(ctx, res.Order.ID, "Wrong dish")
	require.NoError(t, err)

	ret, err = f.svc.RejectReturn(ctx, ret.ID, "manager")
	require.NoError(t, err)
	require.Equal(t, orders.ReturnRejected, ret.Status)

	_, err = f.svc.ApproveAdmin(ctx, ret.ID, "manager")
	require.ErrorIs(t, err, orders.ErrInvalidReturnTransition)
	_, err = f.svc.ApproveStation(ctx, 404, "chef")
	require.ErrorIs(t, err, orders.ErrReturnNotFound)

	got, err := f.svc.Get(ctx, res.Order.ID)
	require.NoError(t, err)
	require.Equal(t, orders.StatusPending, got.Status)
}

func TestListActive(t *testing.T) {
	f := newFixture(t, stock.DefaultPolicy())
	dish := f.store.AddMenuItem("Fish Curry", "12.00", catalog.StationKitchen, nil)
	ctx := context.Background()

	place := func(room string) int64 {
		res, err := f.svc.Create(ctx, orders.CreateRequest{Room: room, Items: []orders.CreateItemRequest{{MenuItemID: dish, Quantity: 1}}})
		require.NoError(t, err)
		return res.Order.ID
	}
	first := place("101")
	second := place("101")
	place("102")
	_, err := f.svc.TransitionStatus(ctx, first, orders.StatusServed)
	require.NoError(t, err)

	all, err := f.svc.ListActive(ctx, orders.ActiveFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)

	room, err := f.svc.ListActive(ctx, orders.ActiveFilter{Room: " 101"})
	require.NoError(t, err)
	require.Len(t, room, 1)
	require.Equal(t, second, room[0].ID)
	require.Equal(t, 2, f.store.ListCalls())
}

type gatedPolls struct {
	*orderstest.Store
	entered chan struct{}
	release chan struct{}
}

func (g *gatedPolls) ListActive(ctx context.Context, filter orders.ActiveFilter) ([]orders.Order, error) {
	g.entered <- struct{}{}
	<-g.release
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return g.Store.ListActive(ctx, filter)
}

func TestListActiveSurvivesLeaderCancellation(t *testing.T) {
	stockStore := stocktest.NewStore()
	store := orderstest.NewStore(stockStore)
	gated := &gatedPolls{Store: store, entered: make(chan struct{}, 2), release: make(chan struct{})}
	svc := orders.NewService(gated, store, stock.NewService(stockStore, nil, nil, stock.DefaultPolicy(), quietLogger()), nil, quietLogger())

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := svc.ListActive(leaderCtx, orders.ActiveFilter{})
		leaderErr <- err
	}()
	<-gated.entered

	followerErr := make(chan error, 1)
	go func() {
		_, err := svc.ListActive(context.Background(), orders.ActiveFilter{})
		followerErr <- err
	}()
	cancel()
	close(gated.release)

	require.NoError(t, <-leaderErr)
	require.NoError(t, <-followerErr)
}

func TestSalesStatsByTimeframeAndStation(t *testing.T) {
	f := newFixture(t, stock.DefaultPolicy())
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	f.svc.WithNow(func() time.Time { return now })
	curry := f.store.AddMenuItem("Fish Curry", "12.00", catalog.StationKitchen, nil)
	juice := f.store.AddMenuItem("Mango Juice", "5.00", catalog.StationBar, nil)
	ctx := context.Background()

	place := func(served bool, at time.Time, items ...orders.CreateItemRequest) {
		res, err := f.svc.Create(ctx, orders.CreateRequest{Room: "101", Items: items})
		require.NoError(t, err)
		if served {
			_, err = f.svc.TransitionStatus(ctx, res.Order.ID, orders.StatusServed)
			require.NoError(t, err)
		}
		f.store.Backdate(res.Order.ID, at)
	}
	place(true, now.Add(-time.Hour),
		orders.CreateItemRequest{MenuItemID: curry, Quantity: 2},
		orders.CreateItemRequest{MenuItemID: juice, Quantity: 1})
	place(true, now.AddDate(0, 0, -10), orders.CreateItemRequest{MenuItemID: juice, Quantity: 2})
	place(true, now.AddDate(0, 0, -100), orders.CreateItemRequest{MenuItemID: curry, Quantity: 1})
	place(false, now.Add(-time.Minute), orders.CreateItemRequest{MenuItemID: curry, Quantity: 3})

	stats, err := f.svc.SalesStats(ctx)
	require.NoError(t, err)
	require.Equal(t, now, stats.GeneratedAt)

	expect := map[orders.Timeframe][3]string{
		orders.TimeframeToday: {"29.00", "24.00", "5.00"},
		orders.TimeframeWeek:  {"29.00", "24.00", "5.00"},
		orders.TimeframeMonth: {"39.00", "24.00", "15.00"},
		orders.TimeframeYear:  {"51.00", "36.00", "15.00"},
	}
	require.Len(t, stats.Revenue, len(expect))
	for tf, want := range expect {
		got := stats.Revenue[tf]
		require.Equal(t, want[0], got.Total.StringFixed(2), tf)
		require.Equal(t, want[1], got.Kitchen.StringFixed(2), tf)
		require.Equal(t, want[2], got.Bar.StringFixed(2), tf)
	}

	require.Len(t, stats.TopItems, 2)
	require.Equal(t, "Mango Juice", stats.TopItems[0].Name)
	require.Equal(t, catalog.StationBar, stats.TopItems[0].Station)
	require.EqualValues(t, 3, stats.TopItems[0].Quantity)
	require.Equal(t, "15.00", stats.TopItems[0].Revenue.StringFixed(2))
	require.Equal(t, "Fish Curry", stats.TopItems[1].Name)
	require.EqualValues(t, 2, stats.TopItems[1].Quantity)
}

func TestSalesStatsEmpty(t *testing.T) {
	f := newFixture(t, stock.DefaultPolicy())
	stats, err := f.svc.SalesStats(context.Background())
	require.NoError(t, err)
	require.NotNil(t, stats.TopItems)
	require.Empty(t, stats.TopItems)
	require.True(t, stats.Revenue[orders.TimeframeYear].Total.IsZero())
}

func TestTimeframeSince(t *testing.T) {
	now := time.Date(2025, 6, 15, 18, 30, 0, 0, time.UTC)
	require.Equal(t, time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC), orders.TimeframeToday.Since(now))
	require.Equal(t, now.AddDate(0, 0, -7), orders.TimeframeWeek.Since(now))
	require.Equal(t, now.AddDate(0, 0, -30), orders.TimeframeMonth.Since(now))
	require.Equal(t, now.AddDate(0, 0, -365), orders.TimeframeYear.Since(now))
}
