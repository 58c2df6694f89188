// Package reconcile repairs divergence between the venue's fill history and
// the local trade record table. It runs independently of the orchestrator's
// cycle so a crash mid-trade never leaves a position permanently
// unaccounted for.
package reconcile

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lancilotto/hl-agent/internal/domain"
	"github.com/lancilotto/hl-agent/internal/logging"
	"github.com/lancilotto/hl-agent/internal/venue"
)

// dedupWindow is how close in time two fills must land before they're
// treated as the same trade event.
const dedupWindow = 5 * time.Second

// FillSource is the subset of the venue client the reconciler needs.
type FillSource interface {
	GetUserFills(ctx context.Context) ([]venue.Fill, error)
}

// Store is the trade-record persistence surface the reconciler needs. It
// is satisfied by internal/persistence's repository.
type Store interface {
	FindOpenNear(ctx context.Context, symbol, orderID string, at time.Time, window time.Duration) (*domain.TradeRecord, error)
	FindOpenBySymbolDirection(ctx context.Context, symbol string, direction domain.Direction) (*domain.TradeRecord, error)
	FindClosedNear(ctx context.Context, symbol string, at time.Time, window time.Duration) (*domain.TradeRecord, error)
	InsertTrade(ctx context.Context, rec domain.TradeRecord) error
	CloseTrade(ctx context.Context, rec domain.TradeRecord) error
}

// Reconciler periodically syncs venue fills into the local trade record
// table, grounded on a dedup-by-order-id-or-time-window and a
// reconstruct-entry-from-pnl fallback for close fills with no matching
// open record.
type Reconciler struct {
	venue FillSource
	store Store
	log   *logging.Logger
}

// New builds a Reconciler.
func New(venue FillSource, store Store, log *logging.Logger) *Reconciler {
	return &Reconciler{venue: venue, store: store, log: log}
}

// Sync fetches the venue's fill history and reconciles it against the
// trade record table. A failure fetching fills is logged and swallowed:
// the next tick tries again.
func (r *Reconciler) Sync(ctx context.Context) {
	fills, err := r.venue.GetUserFills(ctx)
	if err != nil {
		if r.log != nil {
			r.log.WithError(err).Warn("reconciler: fetch fills failed")
		}
		return
	}
	if len(fills) == 0 {
		return
	}

	sort.Slice(fills, func(i, j int) bool { return fills[i].Time.Before(fills[j].Time) })

	for _, f := range fills {
		action, direction, ok := parseDir(f.Dir)
		if !ok {
			continue
		}
		switch action {
		case "open":
			r.processOpen(ctx, f, direction)
		case "close":
			r.processClose(ctx, f, direction)
		}
	}
}

// parseDir splits the venue's "Open Long" / "Close Short" label into an
// action and a domain.Direction.
func parseDir(dir string) (action string, direction domain.Direction, ok bool) {
	parts := strings.Fields(dir)
	if len(parts) < 2 {
		return "", "", false
	}
	action = strings.ToLower(parts[0])
	switch strings.ToLower(parts[1]) {
	case "long":
		direction = domain.DirectionLong
	case "short":
		direction = domain.DirectionShort
	default:
		return "", "", false
	}
	if action != "open" && action != "close" {
		return "", "", false
	}
	return action, direction, true
}

func (r *Reconciler) processOpen(ctx context.Context, f venue.Fill, direction domain.Direction) {
	existing, err := r.store.FindOpenNear(ctx, f.Symbol, f.OrderID, f.Time, dedupWindow)
	if err != nil {
		if r.log != nil {
			r.log.WithError(err).WithSymbol(f.Symbol).Warn("reconciler: open dedup lookup failed")
		}
		return
	}
	if existing != nil {
		return
	}

	rec := domain.TradeRecord{
		Symbol:     f.Symbol,
		Direction:  direction,
		EntryPrice: f.Price,
		Size:       f.Size,
		SizeUSD:    f.Price * f.Size,
		Leverage:   1,
		FeesUSD:    f.Fee,
		Status:     domain.TradeStatusOpen,
		HLOrderID:  f.OrderID,
		CreatedAt:  f.Time,
	}
	if err := r.store.InsertTrade(ctx, rec); err != nil && r.log != nil {
		r.log.WithError(err).WithSymbol(f.Symbol).Warn("reconciler: insert open trade failed")
	}
}

func (r *Reconciler) processClose(ctx context.Context, f venue.Fill, direction domain.Direction) {
	open, err := r.store.FindOpenBySymbolDirection(ctx, f.Symbol, direction)
	if err != nil {
		if r.log != nil {
			r.log.WithError(err).WithSymbol(f.Symbol).Warn("reconciler: open lookup for close failed")
		}
		return
	}

	if open != nil {
		open.ExitPrice = f.Price
		open.ExitReason = domain.ExitSyncedFill
		open.PnLUSD = f.ClosedPnL
		open.PnLPct = pnlPct(direction, open.EntryPrice, f.Price)
		open.ClosedAt = f.Time
		open.FeesUSD += f.Fee
		open.DurationMinutes = f.Time.Sub(open.CreatedAt).Minutes()
		open.Status = domain.TradeStatusClosed
		if err := r.store.CloseTrade(ctx, *open); err != nil && r.log != nil {
			r.log.WithError(err).WithSymbol(f.Symbol).Warn("reconciler: close trade failed")
		}
		return
	}

	// No matching open: this close fill predates anything we tracked
	// locally (e.g. the bot crashed before persisting the open, or the
	// position was opened manually). Reconstruct a synthetic entry.
	existing, err := r.store.FindClosedNear(ctx, f.Symbol, f.Time, dedupWindow)
	if err != nil {
		if r.log != nil {
			r.log.WithError(err).WithSymbol(f.Symbol).Warn("reconciler: closed dedup lookup failed")
		}
		return
	}
	if existing != nil {
		return
	}

	entry := reconstructEntry(direction, f.Price, f.ClosedPnL, f.Size)
	rec := domain.TradeRecord{
		Symbol:          f.Symbol,
		Direction:       direction,
		EntryPrice:      entry,
		ExitPrice:       f.Price,
		Size:            f.Size,
		SizeUSD:         f.Price * f.Size,
		Leverage:        1,
		ExitReason:      domain.ExitSyncedHistory,
		PnLUSD:          f.ClosedPnL,
		PnLPct:          pnlPct(direction, entry, f.Price),
		FeesUSD:         f.Fee,
		Status:          domain.TradeStatusClosed,
		HLOrderID:       f.OrderID,
		CreatedAt:       f.Time.Add(-time.Hour),
		ClosedAt:        f.Time,
		DurationMinutes: time.Hour.Minutes(),
	}
	if err := r.store.InsertTrade(ctx, rec); err != nil && r.log != nil {
		r.log.WithError(err).WithSymbol(f.Symbol).Warn("reconciler: insert synthetic close failed")
	}
}

// reconstructEntry derives an entry price from reported PnL and size when
// no corresponding open record exists locally.
func reconstructEntry(direction domain.Direction, exit, pnl, size float64) float64 {
	if size == 0 {
		return exit
	}
	if direction == domain.DirectionLong {
		return exit - pnl/size
	}
	return pnl/size + exit
}

func pnlPct(direction domain.Direction, entry, exit float64) float64 {
	if entry == 0 {
		return 0
	}
	if direction == domain.DirectionLong {
		return (exit - entry) / entry * 100
	}
	return (entry - exit) / entry * 100
}

// String renders a one-line summary, useful for the health-check log line.
func (r *Reconciler) String() string {
	return fmt.Sprintf("reconciler(dedup_window=%s)", dedupWindow)
}
