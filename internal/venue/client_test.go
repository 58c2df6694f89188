package venue

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func clientWithMeta(universe map[string]AssetInfo) *Client {
	return &Client{meta: Meta{Universe: universe}}
}

func TestRoundSize_FloorsToSzDecimals(t *testing.T) {
	c := clientWithMeta(map[string]AssetInfo{
		"BTC": {Name: "BTC", SzDecimals: 3, MinSz: 0.001},
	})

	got := c.RoundSize("BTC", 0.12349)

	assert.InDelta(t, 0.123, got, 0.0000001)
}

func TestRoundSize_ClampsToMinSz(t *testing.T) {
	c := clientWithMeta(map[string]AssetInfo{
		"BTC": {Name: "BTC", SzDecimals: 3, MinSz: 0.001},
	})

	got := c.RoundSize("BTC", 0.0001)

	assert.InDelta(t, 0.001, got, 0.0000001)
}

func TestRoundSize_IsIdempotent(t *testing.T) {
	c := clientWithMeta(map[string]AssetInfo{
		"ETH": {Name: "ETH", SzDecimals: 4, MinSz: 0.0001},
	})

	once := c.RoundSize("ETH", 1.23456789)
	twice := c.RoundSize("ETH", once)

	assert.Equal(t, once, twice)
}

func TestRoundSize_PassesThroughUnknownSymbol(t *testing.T) {
	c := clientWithMeta(map[string]AssetInfo{})

	got := c.RoundSize("DOGE", 123.456)

	assert.Equal(t, 123.456, got)
}

func TestIsRetryable_TrueForRateLimitedError(t *testing.T) {
	assert.True(t, isRetryable(&rateLimitedError{status: 429}))
	assert.True(t, isRetryable(&rateLimitedError{status: 503}))
}

func TestIsRetryable_FalseForOtherErrors(t *testing.T) {
	assert.False(t, isRetryable(errors.New("boom")))
	assert.False(t, isRetryable(nil))
}

func TestAccountState_Balance_PrefersCrossAccountValue(t *testing.T) {
	state := AccountState{CrossAccountValue: 100, MarginAccountValue: 50, SpotBalanceUSD: 50, Withdrawable: 10}

	assert.Equal(t, 100.0, state.Balance())
}

func TestAccountState_Balance_FallsBackToMarginPlusSpot(t *testing.T) {
	state := AccountState{MarginAccountValue: 40, SpotBalanceUSD: 10, Withdrawable: 5}

	assert.Equal(t, 50.0, state.Balance())
}

func TestAccountState_Balance_FallsBackToWithdrawable(t *testing.T) {
	state := AccountState{Withdrawable: 25}

	assert.Equal(t, 25.0, state.Balance())
}

func TestAccountState_Balance_ZeroWhenEverythingEmpty(t *testing.T) {
	state := AccountState{}

	assert.Equal(t, 0.0, state.Balance())
}
