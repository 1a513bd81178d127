package market

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"krishimitra/config"
)

func TestNormalize(t *testing.T) {
	q := Query{Commodity: "  Onion ", State: "NCT of Delhi", Market: "APMC Azadpur\t"}.Normalize()
	assert.Equal(t, Query{Commodity: "Onion", State: "NCT of Delhi", Market: "APMC Azadpur"}, q)
	assert.Equal(t, "onion|nct of delhi|apmc azadpur", q.logKey())
}

func TestInsightsPassesBodyThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Onion", r.URL.Query().Get("commodity"))
		assert.Equal(t, "NCT of Delhi", r.URL.Query().Get("state"))
		assert.Equal(t, "APMC Azadpur", r.URL.Query().Get("market"))
		w.Write([]byte(`[{"Modal Price":"1800","Date":"01 Oct 2026"}]`))
	}))
	defer srv.Close()

	c := NewClient(config.MarketConfig{BaseURL: srv.URL}, nil)
	body, err := c.Insights(context.Background(), Query{Commodity: "Onion", State: " NCT of Delhi", Market: "APMC Azadpur"})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"Modal Price":"1800","Date":"01 Oct 2026"}]`, string(body))
}

func TestInsightsUpstreamStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no records", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(config.MarketConfig{BaseURL: srv.URL}, nil)
	_, err := c.Insights(context.Background(), Query{Commodity: "a", State: "b", Market: "c"})
	var ue *UpstreamError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, http.StatusNotFound, ue.Status)
	assert.Contains(t, ue.Error(), "no records")
}

func TestInsightsMissingParam(t *testing.T) {
	c := NewClient(config.MarketConfig{BaseURL: "http://unused"}, nil)
	_, err := c.Insights(context.Background(), Query{Commodity: "rice", State: " "})
	assert.ErrorIs(t, err, ErrMissingParam)
	assert.Contains(t, err.Error(), "state")
}
