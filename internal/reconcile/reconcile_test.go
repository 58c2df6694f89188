package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lancilotto/hl-agent/internal/domain"
	"github.com/lancilotto/hl-agent/internal/venue"
)

type fakeFillSource struct {
	fills []venue.Fill
	err   error
}

func (f *fakeFillSource) GetUserFills(ctx context.Context) ([]venue.Fill, error) {
	return f.fills, f.err
}

type fakeStore struct {
	opens   []domain.TradeRecord
	closed  []domain.TradeRecord
	inserts []domain.TradeRecord
	closes  []domain.TradeRecord
}

func (s *fakeStore) FindOpenNear(ctx context.Context, symbol, orderID string, at time.Time, window time.Duration) (*domain.TradeRecord, error) {
	for i := range s.opens {
		if s.opens[i].HLOrderID == orderID {
			return &s.opens[i], nil
		}
		if s.opens[i].Symbol == symbol && absDur(s.opens[i].CreatedAt.Sub(at)) < window {
			return &s.opens[i], nil
		}
	}
	return nil, nil
}

func (s *fakeStore) FindOpenBySymbolDirection(ctx context.Context, symbol string, direction domain.Direction) (*domain.TradeRecord, error) {
	for i := range s.opens {
		if s.opens[i].Symbol == symbol && s.opens[i].Direction == direction && s.opens[i].Status == domain.TradeStatusOpen {
			return &s.opens[i], nil
		}
	}
	return nil, nil
}

func (s *fakeStore) FindClosedNear(ctx context.Context, symbol string, at time.Time, window time.Duration) (*domain.TradeRecord, error) {
	for i := range s.closed {
		if s.closed[i].Symbol == symbol && absDur(s.closed[i].ClosedAt.Sub(at)) < window {
			return &s.closed[i], nil
		}
	}
	return nil, nil
}

func (s *fakeStore) InsertTrade(ctx context.Context, rec domain.TradeRecord) error {
	s.inserts = append(s.inserts, rec)
	if rec.Status == domain.TradeStatusOpen {
		s.opens = append(s.opens, rec)
	} else {
		s.closed = append(s.closed, rec)
	}
	return nil
}

func (s *fakeStore) CloseTrade(ctx context.Context, rec domain.TradeRecord) error {
	s.closes = append(s.closes, rec)
	for i := range s.opens {
		if s.opens[i].HLOrderID == rec.HLOrderID {
			s.opens[i].Status = rec.Status
		}
	}
	s.closed = append(s.closed, rec)
	return nil
}

func absDur(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func TestSync_OpenFillInsertsNewTradeRecord(t *testing.T) {
	now := time.Now()
	src := &fakeFillSource{fills: []venue.Fill{
		{OrderID: "1", Symbol: "SOL", Dir: "Open Long", Price: 150, Size: 10, Time: now},
	}}
	store := &fakeStore{}

	New(src, store, nil).Sync(context.Background())

	require.Len(t, store.inserts, 1)
	assert.Equal(t, domain.TradeStatusOpen, store.inserts[0].Status)
	assert.Equal(t, 150.0, store.inserts[0].EntryPrice)
}

func TestSync_OpenFillDedupesByOrderID(t *testing.T) {
	now := time.Now()
	src := &fakeFillSource{fills: []venue.Fill{
		{OrderID: "1", Symbol: "SOL", Dir: "Open Long", Price: 150, Size: 10, Time: now},
	}}
	store := &fakeStore{opens: []domain.TradeRecord{
		{HLOrderID: "1", Symbol: "SOL", Status: domain.TradeStatusOpen, CreatedAt: now},
	}}

	New(src, store, nil).Sync(context.Background())

	assert.Empty(t, store.inserts)
}

func TestSync_CloseFillClosesMatchingOpenTrade(t *testing.T) {
	now := time.Now()
	openedAt := now.Add(-time.Hour)
	src := &fakeFillSource{fills: []venue.Fill{
		{OrderID: "2", Symbol: "SOL", Dir: "Close Long", Price: 155, Size: 10, ClosedPnL: 50, Time: now},
	}}
	store := &fakeStore{opens: []domain.TradeRecord{
		{HLOrderID: "1", Symbol: "SOL", Direction: domain.DirectionLong, EntryPrice: 150, Status: domain.TradeStatusOpen, CreatedAt: openedAt},
	}}

	New(src, store, nil).Sync(context.Background())

	require.Len(t, store.closes, 1)
	assert.Equal(t, domain.ExitSyncedFill, store.closes[0].ExitReason)
	assert.InDelta(t, 3.33, store.closes[0].PnLPct, 0.01)
}

func TestSync_CloseFillWithNoOpenReconstructsSyntheticEntry(t *testing.T) {
	now := time.Now()
	src := &fakeFillSource{fills: []venue.Fill{
		{OrderID: "3", Symbol: "SOL", Dir: "Close Long", Price: 155, Size: 10, ClosedPnL: 50, Time: now},
	}}
	store := &fakeStore{}

	New(src, store, nil).Sync(context.Background())

	require.Len(t, store.inserts, 1)
	rec := store.inserts[0]
	assert.Equal(t, domain.TradeStatusClosed, rec.Status)
	assert.Equal(t, domain.ExitSyncedHistory, rec.ExitReason)
	assert.Equal(t, 150.0, rec.EntryPrice)
}

func TestSync_ReplayIsNoOpOnceProcessed(t *testing.T) {
	now := time.Now()
	fills := []venue.Fill{
		{OrderID: "1", Symbol: "SOL", Dir: "Open Long", Price: 150, Size: 10, Time: now.Add(-time.Minute)},
		{OrderID: "2", Symbol: "SOL", Dir: "Close Long", Price: 155, Size: 10, ClosedPnL: 50, Time: now},
	}
	store := &fakeStore{}
	r := New(&fakeFillSource{fills: fills}, store, nil)

	r.Sync(context.Background())
	firstInserts := len(store.inserts)
	firstCloses := len(store.closes)

	r.Sync(context.Background())

	assert.Equal(t, firstInserts, len(store.inserts))
	assert.Equal(t, firstCloses, len(store.closes))
}

func TestSync_FetchErrorIsSwallowed(t *testing.T) {
	src := &fakeFillSource{err: assertError{}}
	store := &fakeStore{}

	assert.NotPanics(t, func() {
		New(src, store, nil).Sync(context.Background())
	})
}

type assertError struct{}

func (assertError) Error() string { return "boom" }
