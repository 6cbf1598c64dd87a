package scoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paydesk/paydesk/internal/log"
	"github.com/paydesk/paydesk/internal/tools"
)

func TestNewClientValidatesURL(t *testing.T) {
	_, err := NewClient("not a url", time.Second, log.NewNop())
	assert.Error(t, err)

	_, err = NewClient("http://scoring.internal:8080", time.Second, log.NewNop())
	assert.NoError(t, err)
}

func TestRankProducts(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"products": []string{"BPT", "IMA", "QKR", "BPC", "BPE", "CWB", "SPY"},
		})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, time.Second, log.NewNop())
	require.NoError(t, err)

	ranked, err := c.RankProducts(context.Background(), tools.ProductQuery{
		Side:        tools.CardNotPresent,
		MISDivision: "RBS",
		MCC:         5812,
		Postcode:    2000,
		Revenue:     5000,
	})
	require.NoError(t, err)

	assert.Equal(t, "/v1/product-recommendations", gotPath)
	assert.Equal(t, "CNP", gotBody["cp_cnp"])
	assert.Equal(t, float64(5812), gotBody["mcc"])
	assert.Equal(t, []string{"BPT", "IMA", "QKR", "BPC", "BPE", "CWB", "SPY"}, ranked)
}

func TestRecommendPlan(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/pricing-recommendations", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]string{"plan": "SIMPLE-20"})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, time.Second, log.NewNop())
	require.NoError(t, err)

	plan, err := c.RecommendPlan(context.Background(), tools.PricingQuery{ProductCode: "IMA"})
	require.NoError(t, err)
	assert.Equal(t, "SIMPLE-20", plan)
}

func TestRecommendPlanEmptyPlan(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"plan": "  "})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, time.Second, log.NewNop())
	require.NoError(t, err)

	_, err = c.RecommendPlan(context.Background(), tools.PricingQuery{ProductCode: "IMA"})
	assert.Error(t, err)
}

func TestBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, time.Second, log.NewNop())
	require.NoError(t, err)

	_, err = c.RankProducts(context.Background(), tools.ProductQuery{Side: tools.CardPresent})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBadStatus)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "model unavailable")
}

func TestTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_ = json.NewEncoder(w).Encode(map[string]string{"plan": "SIMPLE-20"})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, 20*time.Millisecond, log.NewNop())
	require.NoError(t, err)

	_, err = c.RecommendPlan(context.Background(), tools.PricingQuery{ProductCode: "IMA"})
	assert.Error(t, err)
}
