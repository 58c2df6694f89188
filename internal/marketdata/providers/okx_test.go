package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOKX_Fetch_ParsesTickerWithoutFundingOrOI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"0","data":[{"last":"100.5","volCcy24h":"4321.0"}]}`))
	}))
	defer srv.Close()

	o := &OKX{client: newHTTPClient(), baseURL: srv.URL}
	snap, err := o.Fetch(context.Background(), "SOL")

	require.NoError(t, err)
	assert.Equal(t, 100.5, snap.Price)
	assert.False(t, snap.HasFundingRate)
	assert.False(t, snap.HasOpenInterest)
}

func TestOKX_Fetch_EmptyDataReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"0","data":[]}`))
	}))
	defer srv.Close()

	o := &OKX{client: newHTTPClient(), baseURL: srv.URL}
	_, err := o.Fetch(context.Background(), "SOL")

	assert.Error(t, err)
}
