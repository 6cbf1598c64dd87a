package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/paydesk/paydesk/internal/log"
)

type fakeRanker struct {
	ranked []string
	err    error
	got    ProductQuery
}

func (f *fakeRanker) RankProducts(_ context.Context, q ProductQuery) ([]string, error) {
	f.got = q
	return f.ranked, f.err
}

type fakePlanner struct {
	plan string
	err  error
	got  PricingQuery
}

func (f *fakePlanner) RecommendPlan(_ context.Context, q PricingQuery) (string, error) {
	f.got = q
	return f.plan, f.err
}

func TestRecommenderProducts(t *testing.T) {
	ranker := &fakeRanker{ranked: []string{"BPT", "IMA", "QKR", "BPC", "BPE", "CWB", "SPY"}}
	rec := NewRecommender(ranker, nil, NewQuarantine([]string{"BPT"}), log.NewNop())

	out := rec.Products(context.Background(), ProductArgs{
		CPCNP:       "CNP",
		MISDivision: "RBS",
		MCC:         5812,
		Postcode:    2000,
		Revenue:     5000,
	})

	assert.Contains(t, out, "1. BPT (quarantined - do not sell)")
	assert.Contains(t, out, "2. IMA")
	assert.Contains(t, out, "First sellable product: IMA")
	assert.Equal(t, CardNotPresent, ranker.got.Side)
	assert.Equal(t, 5812, ranker.got.MCC)
}

func TestRecommenderProductsBadSide(t *testing.T) {
	rec := NewRecommender(&fakeRanker{}, nil, nil, log.NewNop())
	out := rec.Products(context.Background(), ProductArgs{CPCNP: "online"})
	assert.Contains(t, out, "InvalidArguments")
}

func TestRecommenderProductsRankerError(t *testing.T) {
	rec := NewRecommender(&fakeRanker{err: errors.New("scoring down")}, nil, nil, log.NewNop())
	out := rec.Products(context.Background(), ProductArgs{CPCNP: "CP"})
	assert.Contains(t, out, "ExecutionFailed")
	assert.Contains(t, out, "scoring down")
}

func TestRecommenderProductsIncompleteRanking(t *testing.T) {
	rec := NewRecommender(&fakeRanker{ranked: []string{"CSL", "CSP"}}, nil, nil, log.NewNop())
	out := rec.Products(context.Background(), ProductArgs{CPCNP: "CP"})
	assert.Contains(t, out, "invalid ranking")
}

func TestRecommenderProductsNotConfigured(t *testing.T) {
	rec := NewRecommender(nil, nil, nil, log.NewNop())
	out := rec.Products(context.Background(), ProductArgs{CPCNP: "CP"})
	assert.Contains(t, out, "not configured")
}

func TestRecommenderPricing(t *testing.T) {
	planner := &fakePlanner{plan: "SIMPLE-20"}
	rec := NewRecommender(nil, planner, NewQuarantine([]string{"BPT"}), log.NewNop())

	out := rec.Pricing(context.Background(), PricingArgs{
		ProductCode: "ima",
		MISDivision: "RBS",
		MCC:         5812,
		Postcode:    2000,
		Revenue:     5000,
	})

	assert.Equal(t, "Recommended pricing plan for IMA: SIMPLE-20", out)
	assert.Equal(t, "IMA", planner.got.ProductCode)
}

func TestRecommenderPricingRefusesQuarantined(t *testing.T) {
	planner := &fakePlanner{plan: "SIMPLE-20"}
	rec := NewRecommender(nil, planner, NewQuarantine([]string{"BPT"}), log.NewNop())

	out := rec.Pricing(context.Background(), PricingArgs{ProductCode: "BPT"})

	assert.Contains(t, out, "quarantined")
	assert.Contains(t, out, "next product")
	// The planner must never be consulted for a quarantined product.
	assert.Empty(t, planner.got.ProductCode)
}

func TestRecommenderPricingMissingCode(t *testing.T) {
	rec := NewRecommender(nil, &fakePlanner{}, nil, log.NewNop())
	out := rec.Pricing(context.Background(), PricingArgs{})
	assert.Contains(t, out, "InvalidArguments")
}

func TestRecommenderPricingPlannerError(t *testing.T) {
	rec := NewRecommender(nil, &fakePlanner{err: errors.New("model timeout")}, nil, log.NewNop())
	out := rec.Pricing(context.Background(), PricingArgs{ProductCode: "IMA"})
	assert.Contains(t, out, "ExecutionFailed")
	assert.Contains(t, out, "model timeout")
}
