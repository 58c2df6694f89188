// Package venue is a typed façade over the Hyperliquid Info+Exchange HTTP
// API: read calls go through the master (funds-owning) account, write calls
// are posted with the separate API-wallet address as vaultAddress and carry
// no signature. Every read transparently retries on rate-limit failures
// with exponential backoff.
package venue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/lancilotto/hl-agent/internal/domain"
	"github.com/lancilotto/hl-agent/internal/logging"
)

const (
	mainnetAPI = "https://api.hyperliquid.xyz"
	testnetAPI = "https://api.hyperliquid-testnet.xyz"
)

// Config configures the venue client's endpoints, credentials, and retry
// regime. RetryBaseDelay/RetryMaxDelay/RetryMaxAttempts default to the
// canonicalized 10s/120s/10-attempt regime (DESIGN.md open question 1).
type Config struct {
	Testnet              bool
	MasterAccountAddress string
	WalletAddress        string
	PrivateKey           string
	RetryBaseDelay       time.Duration
	RetryMaxDelay        time.Duration
	RetryMaxAttempts     int
}

// AssetInfo is one entry of the universe metadata returned by get_meta.
type AssetInfo struct {
	Name        string
	SzDecimals  int
	MaxLeverage int
	MinSz       float64
}

// Meta is the cached universe metadata fetched once at construction.
type Meta struct {
	Universe map[string]AssetInfo
}

// Client is the Hyperliquid façade. It is safe for concurrent use; the
// underlying *http.Client and rate limiter are shared across calls.
type Client struct {
	cfg        Config
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	meta       Meta
	log        *logging.Logger
}

// Signer is the narrow capability for signing write requests with the API
// wallet's private key. This package has no implementation of it and Client
// does not use it: write requests are posted unsigned.
type Signer interface {
	Sign(payload []byte) ([]byte, error)
	Address() string
}

// New constructs a Client and performs the initial meta fetch, itself
// subject to the same retry regime as every other read (spec §4.1: "the
// service has been observed to throttle cold clients").
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.RetryBaseDelay == 0 {
		cfg.RetryBaseDelay = 10 * time.Second
	}
	if cfg.RetryMaxDelay == 0 {
		cfg.RetryMaxDelay = 120 * time.Second
	}
	if cfg.RetryMaxAttempts == 0 {
		cfg.RetryMaxAttempts = 10
	}

	base := mainnetAPI
	if cfg.Testnet {
		base = testnetAPI
	}

	c := &Client{
		cfg:     cfg,
		baseURL: base,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Every(100*time.Millisecond), 20),
		log:     logging.WithComponent("venue"),
	}

	meta, err := c.fetchMeta(ctx)
	if err != nil {
		return nil, fmt.Errorf("venue: initial meta fetch: %w", err)
	}
	c.meta = meta
	return c, nil
}

// Meta returns the cached universe metadata.
func (c *Client) Meta() Meta { return c.meta }

// rateLimitedError marks a failure as retryable (HTTP 429 or 5xx).
type rateLimitedError struct{ status int }

func (e *rateLimitedError) Error() string {
	return fmt.Sprintf("venue: rate limited or transient failure (status %d)", e.status)
}

func isRetryable(err error) bool {
	_, ok := err.(*rateLimitedError)
	return ok
}

// withRetry runs fn with exponential backoff (base..cap, max attempts) when
// fn's error is a rate-limit/transient failure. Non-retryable errors
// propagate immediately.
func (c *Client) withRetry(ctx context.Context, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.RetryBaseDelay
	b.MaxInterval = c.cfg.RetryMaxDelay
	b.MaxElapsedTime = 0 // bounded by attempt count, not elapsed time
	b.Multiplier = 2

	attempt := 0
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		err := fn()
		if err == nil {
			return nil
		}
		attempt++
		if !isRetryable(err) || attempt >= c.cfg.RetryMaxAttempts {
			if isRetryable(err) {
				return fmt.Errorf("%w: %v", domain.ErrVenueUnavailable, err)
			}
			return err
		}
		delay := b.NextBackOff()
		c.log.Warn("retrying after rate-limit", "attempt", attempt, "delay", delay.String())
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	return c.withRetry(ctx, func() error {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return &rateLimitedError{status: 0}
		}
		defer resp.Body.Close()

		data, _ := io.ReadAll(resp.Body)

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return &rateLimitedError{status: resp.StatusCode}
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("venue: request failed (status %d): %s", resp.StatusCode, string(data))
		}
		if out == nil {
			return nil
		}
		return json.Unmarshal(data, out)
	})
}

func (c *Client) fetchMeta(ctx context.Context) (Meta, error) {
	var raw struct {
		Universe []struct {
			Name        string `json:"name"`
			SzDecimals  int    `json:"szDecimals"`
			MaxLeverage int    `json:"maxLeverage"`
		} `json:"universe"`
	}
	if err := c.post(ctx, "/info", map[string]string{"type": "meta"}, &raw); err != nil {
		return Meta{}, err
	}
	m := Meta{Universe: make(map[string]AssetInfo, len(raw.Universe))}
	for _, a := range raw.Universe {
		m.Universe[a.Name] = AssetInfo{
			Name:        a.Name,
			SzDecimals:  a.SzDecimals,
			MaxLeverage: a.MaxLeverage,
			MinSz:       math.Pow(10, -float64(a.SzDecimals)),
		}
	}
	return m, nil
}

// GetAllMids returns the current mid price for every symbol.
func (c *Client) GetAllMids(ctx context.Context) (map[string]float64, error) {
	var raw map[string]string
	if err := c.post(ctx, "/info", map[string]string{"type": "allMids"}, &raw); err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(raw))
	for k, v := range raw {
		var f float64
		fmt.Sscanf(v, "%f", &f)
		out[k] = f
	}
	return out, nil
}

// Candle is one OHLCV bar.
type Candle struct {
	OpenTime int64
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// GetOHLCV fetches up to limit candles at the given interval for symbol.
func (c *Client) GetOHLCV(ctx context.Context, symbol, interval string, limit int) ([]Candle, error) {
	var raw []struct {
		T int64  `json:"t"`
		O string `json:"o"`
		H string `json:"h"`
		L string `json:"l"`
		C string `json:"c"`
		V string `json:"v"`
	}
	req := map[string]any{
		"type": "candleSnapshot",
		"req": map[string]any{
			"coin":      symbol,
			"interval":  interval,
			"startTime": 0,
		},
	}
	if err := c.post(ctx, "/info", req, &raw); err != nil {
		return nil, err
	}
	if limit > 0 && len(raw) > limit {
		raw = raw[len(raw)-limit:]
	}
	out := make([]Candle, len(raw))
	for i, r := range raw {
		out[i] = Candle{OpenTime: r.T}
		fmt.Sscanf(r.O, "%f", &out[i].Open)
		fmt.Sscanf(r.H, "%f", &out[i].High)
		fmt.Sscanf(r.L, "%f", &out[i].Low)
		fmt.Sscanf(r.C, "%f", &out[i].Close)
		fmt.Sscanf(r.V, "%f", &out[i].Volume)
	}
	return out, nil
}

// L2Level is one price level in an order book snapshot.
type L2Level struct {
	Price float64
	Size  float64
}

// L2Snapshot is a symbol's current order book.
type L2Snapshot struct {
	Bids []L2Level
	Asks []L2Level
}

// GetL2Snapshot fetches the current order book for symbol.
func (c *Client) GetL2Snapshot(ctx context.Context, symbol string) (L2Snapshot, error) {
	var raw struct {
		Levels [][]struct {
			Px string `json:"px"`
			Sz string `json:"sz"`
		} `json:"levels"`
	}
	req := map[string]any{"type": "l2Book", "coin": symbol}
	if err := c.post(ctx, "/info", req, &raw); err != nil {
		return L2Snapshot{}, err
	}
	parse := func(levels []struct {
		Px string `json:"px"`
		Sz string `json:"sz"`
	}) []L2Level {
		out := make([]L2Level, len(levels))
		for i, l := range levels {
			fmt.Sscanf(l.Px, "%f", &out[i].Price)
			fmt.Sscanf(l.Sz, "%f", &out[i].Size)
		}
		return out
	}
	snap := L2Snapshot{}
	if len(raw.Levels) > 0 {
		snap.Bids = parse(raw.Levels[0])
	}
	if len(raw.Levels) > 1 {
		snap.Asks = parse(raw.Levels[1])
	}
	return snap, nil
}

// AccountState is the master account's margin summary and open positions.
type AccountState struct {
	CrossAccountValue   float64
	MarginAccountValue  float64
	SpotBalanceUSD      float64
	Withdrawable        float64
	Positions           []domain.Position
}

// Balance derives the account's usable USD balance using the fallback
// chain from spec §4.1: cross margin first, then margin+spot, then
// withdrawable (DESIGN.md open question 3: applied uniformly everywhere a
// balance is needed).
func (a AccountState) Balance() float64 {
	if a.CrossAccountValue > 0 {
		return a.CrossAccountValue
	}
	combined := a.MarginAccountValue + a.SpotBalanceUSD
	if combined > 0 {
		return combined
	}
	if a.Withdrawable > 0 {
		return a.Withdrawable
	}
	return 0
}

// GetUserState fetches margin summary and open positions for the master
// account.
func (c *Client) GetUserState(ctx context.Context) (AccountState, error) {
	var raw struct {
		MarginSummary struct {
			AccountValue string `json:"accountValue"`
		} `json:"marginSummary"`
		CrossMarginSummary struct {
			AccountValue string `json:"accountValue"`
		} `json:"crossMarginSummary"`
		Withdrawable   string `json:"withdrawable"`
		AssetPositions []struct {
			Position struct {
				Coin     string `json:"coin"`
				Szi      string `json:"szi"`
				EntryPx  string `json:"entryPx"`
				Leverage struct {
					Value int `json:"value"`
				} `json:"leverage"`
			} `json:"position"`
		} `json:"assetPositions"`
	}
	req := map[string]any{"type": "clearinghouseState", "user": c.cfg.MasterAccountAddress}
	if err := c.post(ctx, "/info", req, &raw); err != nil {
		return AccountState{}, err
	}

	state := AccountState{}
	fmt.Sscanf(raw.MarginSummary.AccountValue, "%f", &state.MarginAccountValue)
	fmt.Sscanf(raw.CrossMarginSummary.AccountValue, "%f", &state.CrossAccountValue)
	fmt.Sscanf(raw.Withdrawable, "%f", &state.Withdrawable)

	for _, ap := range raw.AssetPositions {
		var size, entry float64
		fmt.Sscanf(ap.Position.Szi, "%f", &size)
		fmt.Sscanf(ap.Position.EntryPx, "%f", &entry)
		if size == 0 {
			continue
		}
		dir := domain.DirectionLong
		if size < 0 {
			dir = domain.DirectionShort
			size = -size
		}
		state.Positions = append(state.Positions, domain.Position{
			Symbol:     ap.Position.Coin,
			Direction:  dir,
			EntryPrice: entry,
			Size:       size,
			Leverage:   ap.Position.Leverage.Value,
		})
	}
	return state, nil
}

// GetSpotUserState fetches spot balances for the master account and
// returns their combined USD value, used as one term of the balance
// fallback chain.
func (c *Client) GetSpotUserState(ctx context.Context) (float64, error) {
	var raw struct {
		Balances []struct {
			Coin  string `json:"coin"`
			Total string `json:"total"`
		} `json:"balances"`
	}
	req := map[string]any{"type": "spotClearinghouseState", "user": c.cfg.MasterAccountAddress}
	if err := c.post(ctx, "/info", req, &raw); err != nil {
		return 0, err
	}
	var total float64
	for _, b := range raw.Balances {
		if strings.EqualFold(b.Coin, "USDC") {
			var v float64
			fmt.Sscanf(b.Total, "%f", &v)
			total += v
		}
	}
	return total, nil
}

// Fill is one execution reported by the venue's fill history. Dir is the
// venue's own "Open Long"/"Close Short"-style label, the most reliable
// signal of whether a fill opened or closed a position.
type Fill struct {
	OrderID   string
	Symbol    string
	Side      string // "B" buy or "A" ask/sell
	Dir       string // "Open Long", "Close Short", ...
	Price     float64
	Size      float64
	ClosedPnL float64
	Fee       float64
	Time      time.Time
	StartPos  float64
}

// GetUserFills fetches recent fills for the master account.
func (c *Client) GetUserFills(ctx context.Context) ([]Fill, error) {
	var raw []struct {
		Coin      string `json:"coin"`
		Side      string `json:"side"`
		Dir       string `json:"dir"`
		Px        string `json:"px"`
		Sz        string `json:"sz"`
		ClosedPnl string `json:"closedPnl"`
		Fee       string `json:"fee"`
		Time      int64  `json:"time"`
		Oid       int64  `json:"oid"`
	}
	req := map[string]any{"type": "userFills", "user": c.cfg.MasterAccountAddress}
	if err := c.post(ctx, "/info", req, &raw); err != nil {
		return nil, err
	}
	out := make([]Fill, len(raw))
	for i, r := range raw {
		f := Fill{
			OrderID: fmt.Sprintf("%d", r.Oid),
			Symbol:  r.Coin,
			Side:    r.Side,
			Dir:     r.Dir,
			Time:    time.UnixMilli(r.Time).UTC(),
		}
		fmt.Sscanf(r.Px, "%f", &f.Price)
		fmt.Sscanf(r.Sz, "%f", &f.Size)
		fmt.Sscanf(r.ClosedPnl, "%f", &f.ClosedPnL)
		fmt.Sscanf(r.Fee, "%f", &f.Fee)
		out[i] = f
	}
	return out, nil
}

// RoundSize floor-rounds size to the symbol's szDecimals and clamps to
// minSz, per spec §4.1's directional rounding rule.
func (c *Client) RoundSize(symbol string, size float64) float64 {
	info, ok := c.meta.Universe[symbol]
	if !ok {
		return size
	}
	mult := math.Pow(10, float64(info.SzDecimals))
	rounded := math.Floor(size*mult) / mult
	if rounded < info.MinSz {
		rounded = info.MinSz
	}
	return rounded
}

// SetLeverage posts an unsigned updateLeverage action for symbol with the
// API-wallet address as vaultAddress. isCross selects cross vs isolated
// margin mode.
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int, isCross bool) error {
	action := map[string]any{
		"type":     "updateLeverage",
		"asset":    symbol,
		"isCross":  isCross,
		"leverage": leverage,
	}
	return c.post(ctx, "/exchange", map[string]any{
		"action": action,
		"vaultAddress": c.cfg.WalletAddress,
	}, nil)
}

// OrderResult is the outcome of a market_open/market_close call.
type OrderResult struct {
	Status  string
	OrderID string
	Filled  float64
	AvgPx   float64
	Err     error
}

// MarketOpen submits an immediate-or-cancel order with price "0". The
// slippage argument is not used: no limit price is derived from it, so the
// fill price is not bounded by it. size must already be rounded (RoundSize)
// and clamped to minSz by the caller.
func (c *Client) MarketOpen(ctx context.Context, symbol string, isBuy bool, size, slippage float64) (OrderResult, error) {
	action := map[string]any{
		"type": "order",
		"orders": []map[string]any{{
			"a": symbol,
			"b": isBuy,
			"p": "0", // no limit price is sent
			"s": fmt.Sprintf("%v", size),
			"r": false,
			"t": map[string]any{"limit": map[string]any{"tif": "Ioc"}},
		}},
		"grouping": "na",
	}
	var raw struct {
		Status string `json:"status"`
		Response struct {
			Data struct {
				Statuses []struct {
					Filled struct {
						TotalSz string `json:"totalSz"`
						AvgPx   string `json:"avgPx"`
						Oid     int64  `json:"oid"`
					} `json:"filled"`
					Error string `json:"error"`
				} `json:"statuses"`
			} `json:"data"`
		} `json:"response"`
	}
	_ = slippage // unused; the parameter stays in the signature the Venue interface declares
	if err := c.post(ctx, "/exchange", map[string]any{"action": action, "vaultAddress": c.cfg.WalletAddress}, &raw); err != nil {
		return OrderResult{}, err
	}
	if len(raw.Response.Data.Statuses) == 0 {
		return OrderResult{Status: "empty"}, nil
	}
	st := raw.Response.Data.Statuses[0]
	if st.Error != "" {
		return OrderResult{Status: "error", Err: fmt.Errorf("venue: order rejected: %s", st.Error)}, nil
	}
	res := OrderResult{Status: "filled", OrderID: fmt.Sprintf("%d", st.Filled.Oid)}
	fmt.Sscanf(st.Filled.TotalSz, "%f", &res.Filled)
	fmt.Sscanf(st.Filled.AvgPx, "%f", &res.AvgPx)
	return res, nil
}

// MarketClose closes the entire open position on symbol. Returns a
// zero-value OrderResult with Status "empty" if the venue accepted the
// request but reported no fill — the caller (execution adapter) interprets
// that as the alternate-close trigger per spec §4.8.
func (c *Client) MarketClose(ctx context.Context, symbol string) (OrderResult, error) {
	action := map[string]any{
		"type": "order",
		"orders": []map[string]any{{
			"a":  symbol,
			"r":  true,
			"t":  map[string]any{"limit": map[string]any{"tif": "Ioc"}},
		}},
		"grouping": "na",
	}
	var raw struct {
		Response struct {
			Data struct {
				Statuses []struct {
					Filled struct {
						TotalSz string `json:"totalSz"`
						AvgPx   string `json:"avgPx"`
						Oid     int64  `json:"oid"`
					} `json:"filled"`
					Error string `json:"error"`
				} `json:"statuses"`
			} `json:"data"`
		} `json:"response"`
	}
	if err := c.post(ctx, "/exchange", map[string]any{"action": action, "vaultAddress": c.cfg.WalletAddress}, &raw); err != nil {
		return OrderResult{}, err
	}
	if len(raw.Response.Data.Statuses) == 0 {
		return OrderResult{Status: "empty"}, nil
	}
	st := raw.Response.Data.Statuses[0]
	if st.Error != "" {
		return OrderResult{Status: "error", Err: fmt.Errorf("venue: close rejected: %s", st.Error)}, nil
	}
	res := OrderResult{Status: "filled", OrderID: fmt.Sprintf("%d", st.Filled.Oid)}
	fmt.Sscanf(st.Filled.TotalSz, "%f", &res.Filled)
	fmt.Sscanf(st.Filled.AvgPx, "%f", &res.AvgPx)
	return res, nil
}
