package ledger

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

func newLedgerRouter(t *testing.T) (http.Handler, *memoryStore) {
	t.Helper()
	store := newMemoryStore(fixtureAccounts()...)
	store.warehouses = []WarehouseRef{{ID: 1, Code: "BKS", Name: "Bekasi"}}
	e := NewEngine(nil, time.UTC)
	var b Builder
	post(t, e, store, "SO.BK.03032025.1.0000001", day(2025, 3, 3), JournalSales, 1, b.Pair(1, 16, d("250")))

	reports := NewReports(store, nil, ReportsConfig{Location: time.UTC, EquityAccountCode: "30100-001"})
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), reports, time.UTC, func() time.Time {
		return time.Date(2025, 3, 20, 10, 0, 0, 0, time.UTC)
	})
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := shared.ContextWithActor(req.Context(), shared.Actor{UserID: 1, WarehouseID: 1})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	h.MountRoutes(r)
	return r, store
}

func call(t *testing.T, h http.Handler, method, path string, body string) (int, httpx.Envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var env httpx.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec.Code, env
}

func TestHandlerAccountBalanceDefaultsToToday(t *testing.T) {
	h, _ := newLedgerRouter(t)

	code, env := call(t, h, http.MethodGet, "/accounts/1/balance", "")
	require.Equal(t, http.StatusOK, code)
	data := env.Data.(map[string]any)
	require.Equal(t, "2025-03-20", data["as_of"])
	require.Equal(t, "1250", data["balance"])

	code, env = call(t, h, http.MethodGet, "/accounts/1/balance?end_date=2025-03-02", "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "1000", env.Data.(map[string]any)["balance"])

	code, _ = call(t, h, http.MethodGet, "/accounts/999/balance", "")
	require.Equal(t, http.StatusNotFound, code)
	code, env = call(t, h, http.MethodGet, "/accounts/x/balance", "")
	require.Equal(t, http.StatusBadRequest, code)
	require.Contains(t, env.Errors, "id")
}

func TestHandlerReports(t *testing.T) {
	h, _ := newLedgerRouter(t)

	code, env := call(t, h, http.MethodGet, "/profit-loss-report?start_date=2025-03-01&end_date=2025-03-31", "")
	require.Equal(t, http.StatusOK, code)
	require.True(t, env.Success)

	code, _ = call(t, h, http.MethodGet, "/mutation-history/1?start_date=2025-03-05&end_date=2025-03-01", "")
	require.Equal(t, http.StatusBadRequest, code)

	code, _ = call(t, h, http.MethodGet, "/get-warehouse-balance/2025-03-31", "")
	require.Equal(t, http.StatusOK, code)
	code, env = call(t, h, http.MethodGet, "/get-warehouse-balance/31-03-2025", "")
	require.Equal(t, http.StatusBadRequest, code)
	require.Contains(t, env.Errors, "endDate")
}

func TestHandlerRollupDefaultsToPreviousMonthEnd(t *testing.T) {
	h, store := newLedgerRouter(t)

	code, env := call(t, h, http.MethodPost, "/ledger/rollup", "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "2025-02-28", env.Data.(map[string]any)["cutover"])
	require.NotEmpty(t, store.rollups)

	code, env = call(t, h, http.MethodPost, "/ledger/rollup", `{"date":"2025-03-10"}`)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "2025-03-10", env.Data.(map[string]any)["cutover"])
}
