package orders_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-resort/internal/catalog"
	"github.com/odyssey-erp/odyssey-resort/internal/orders"
	"github.com/odyssey-erp/odyssey-resort/internal/shared"
	"github.com/odyssey-erp/odyssey-resort/internal/stock"
)

func TestHandlerOrderFlow(t *testing.T) {
	f := newFixture(t, stock.DefaultPolicy())
	dish := f.store.AddMenuItem("Fish Curry", "12.50", catalog.StationKitchen, nil)
	r := chi.NewRouter()
	r.Use(shared.ActorMiddleware)
	orders.NewHandler(quietLogger(), f.svc).MountRoutes(r)

	do := func(method, path, body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(shared.ActorHeader, "manager")
		r.ServeHTTP(rec, req)
		return rec
	}

	rec := do(http.MethodPost, "/orders", `{"room":"201","location_type":"beach","items":[{"menu_item_id":`+strconv.FormatInt(dish, 10)+`,"quantity":2}]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created orders.CreateResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Equal(t, "25.00", created.Order.TotalAmount.StringFixed(2))
	require.Equal(t, catalog.LocationBeach, created.Order.LocationType)
	id := strconv.FormatInt(created.Order.ID, 10)

	rec = do(http.MethodPost, "/orders", `{"items":[]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(http.MethodGet, "/orders/active?room=201", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var active []orders.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &active))
	require.Len(t, active, 1)

	rec = do(http.MethodPost, "/orders/"+id+"/status", `{"status":"cooking"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(http.MethodPost, "/orders/"+id+"/status", `{"status":"served"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(http.MethodPost, "/orders/"+id+"/returns", `{"reason":""}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(http.MethodPost, "/orders/"+id+"/returns", `{"reason":"Too salty"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var ret orders.Return
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ret))
	retID := strconv.FormatInt(ret.ID, 10)

	rec = do(http.MethodPost, "/returns/"+retID+"/approve-admin", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ret))
	require.Equal(t, "manager", ret.DecidedBy)

	rec = do(http.MethodPost, "/returns/"+retID+"/reject", "")
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = do(http.MethodGet, "/returns/"+retID+"/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, "[]", rec.Body.String())

	rec = do(http.MethodGet, "/returns/987/history", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(http.MethodPost, "/orders/"+id+"/status", `{"status":"READY"}`)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = do(http.MethodGet, "/orders/404", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerSalesStats(t *testing.T) {
	f := newFixture(t, stock.DefaultPolicy())
	dish := f.store.AddMenuItem("Fish Curry", "12.00", catalog.StationKitchen, nil)
	res, err := f.svc.Create(context.Background(), orders.CreateRequest{Items: []orders.CreateItemRequest{{MenuItemID: dish, Quantity: 1}}})
	require.NoError(t, err)
	_, err = f.svc.TransitionStatus(context.Background(), res.Order.ID, orders.StatusServed)
	require.NoError(t, err)
	r := chi.NewRouter()
	orders.NewHandler(quietLogger(), f.svc).MountRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var stats orders.SalesStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	require.Equal(t, "12.00", stats.Revenue[orders.TimeframeToday].Kitchen.StringFixed(2))
	require.Len(t, stats.TopItems, 1)
	require.Equal(t, "Fish Curry", stats.TopItems[0].Name)
}
