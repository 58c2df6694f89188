package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lancilotto/hl-agent/internal/domain"
	"github.com/lancilotto/hl-agent/internal/logging"
	"github.com/lancilotto/hl-agent/internal/persistence"
)

type fakeStore struct {
	healthErr error
	snapshot  persistence.AccountSnapshotView
	ops       []domain.BotOperation
	trades    []domain.TradeRecord
	screening persistence.ScreeningView
	usage     persistence.UsageSummary

	lastSymbol string
	lastLimit  int
}

func (f *fakeStore) HealthCheck(ctx context.Context) error { return f.healthErr }
func (f *fakeStore) LatestAccountSnapshot(ctx context.Context) (persistence.AccountSnapshotView, error) {
	return f.snapshot, nil
}
func (f *fakeStore) RecentBotOperations(ctx context.Context, limit int) ([]domain.BotOperation, error) {
	f.lastLimit = limit
	return f.ops, nil
}
func (f *fakeStore) RecentTrades(ctx context.Context, symbol string, limit int) ([]domain.TradeRecord, error) {
	f.lastSymbol, f.lastLimit = symbol, limit
	return f.trades, nil
}
func (f *fakeStore) LatestScreening(ctx context.Context) (persistence.ScreeningView, error) {
	return f.screening, nil
}
func (f *fakeStore) UsageSince(ctx context.Context, since time.Time) (persistence.UsageSummary, error) {
	return f.usage, nil
}

func testServer(t *testing.T, store Store) *httptest.Server {
	t.Helper()
	s := NewServer(store, Config{}, logging.WithComponent("api-test"))
	return httptest.NewServer(s.router)
}

func TestHandleHealth_ReportsUnhealthyOnStoreError(t *testing.T) {
	srv := testServer(t, &fakeStore{healthErr: assert.AnError})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHandleAccount_ReturnsLatestSnapshot(t *testing.T) {
	store := &fakeStore{snapshot: persistence.AccountSnapshotView{
		ID: "1", BalanceUSD: 1000,
		Positions: []persistence.OpenPositionView{{Symbol: "BTC", Side: "long", Size: 0.1}},
	}}
	srv := testServer(t, store)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/account")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Success bool                           `json:"success"`
		Data    persistence.AccountSnapshotView `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body.Success)
	assert.Equal(t, 1000.0, body.Data.BalanceUSD)
	require.Len(t, body.Data.Positions, 1)
	assert.Equal(t, "BTC", body.Data.Positions[0].Symbol)
}

func TestHandleTrades_PassesSymbolAndLimitThrough(t *testing.T) {
	store := &fakeStore{trades: []domain.TradeRecord{{Symbol: "ETH", Status: domain.TradeStatusOpen}}}
	srv := testServer(t, store)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/trades?symbol=ETH&limit=10")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Data []domain.TradeRecord `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "ETH", body.Data[0].Symbol)
	assert.Equal(t, "ETH", store.lastSymbol)
	assert.Equal(t, 10, store.lastLimit)
}

func TestQueryLimit_FallsBackToDefaultWhenInvalid(t *testing.T) {
	store := &fakeStore{}
	srv := testServer(t, store)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/operations?limit=notanumber")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 50, store.lastLimit)
}
