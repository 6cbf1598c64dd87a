package tools

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paydesk/paydesk/internal/log"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	g := genkit.Init(context.Background())

	clock := NewClockAt(func() time.Time {
		return time.Date(2026, 8, 26, 9, 30, 0, 0, time.UTC)
	})
	ranker := &fakeRanker{ranked: []string{"SHT", "CSL", "MVI", "CSP", "MSM"}}
	planner := &fakePlanner{plan: "SIMPLE-15"}

	r, err := Register(g, Deps{
		Clock:       clock,
		Warehouse:   NewWarehouse(nil, log.NewNop()),
		Recommender: NewRecommender(ranker, planner, NewQuarantine(nil), log.NewNop()),
		Logger:      log.NewNop(),
	})
	require.NoError(t, err)
	return r
}

func TestRegistryInvokeDateTime(t *testing.T) {
	r := testRegistry(t)
	out := r.Invoke(context.Background(), string(GetCurrentDateTime), nil)
	assert.Contains(t, out, "Wednesday")
	assert.Contains(t, out, "2026-08-26 09:30:00")
}

func TestRegistryInvokeTypedArguments(t *testing.T) {
	r := testRegistry(t)

	// map input, as Genkit surfaces parsed model arguments
	out := r.Invoke(context.Background(), string(RecommendPricing), map[string]any{
		"product_code": "CSL",
		"mis_division": "RBS",
		"mcc":          5812,
		"postcode":     2000,
		"revenue":      5000,
	})
	assert.Equal(t, "Recommended pricing plan for CSL: SIMPLE-15", out)

	// raw JSON input, as a transport may pass arguments through unparsed
	out = r.Invoke(context.Background(), string(RecommendProduct),
		json.RawMessage(`{"cp_cnp":"CP","mis_division":"RBS","mcc":5812,"postcode":2000,"revenue":5000}`))
	assert.Contains(t, out, "1. SHT")
	assert.Contains(t, out, "First sellable product: SHT")
}

func TestRegistryInvokeUnknownTool(t *testing.T) {
	r := testRegistry(t)
	out := r.Invoke(context.Background(), "launch_missiles", nil)
	assert.Contains(t, out, "UnknownTool")
	assert.Contains(t, out, "launch_missiles")
}

func TestRegistryInvokeMalformedArguments(t *testing.T) {
	r := testRegistry(t)

	out := r.Invoke(context.Background(), string(ExecuteSQL), json.RawMessage(`{"query": 42}`))
	assert.Contains(t, out, "InvalidArguments")

	out = r.Invoke(context.Background(), string(ExecuteSQL), "not json at all")
	assert.Contains(t, out, "InvalidArguments")
}

func TestRegistryRefs(t *testing.T) {
	r := testRegistry(t)

	refs := r.Refs(GetCurrentDateTime, ExecuteSQL)
	assert.Len(t, refs, 2)

	// unknown IDs are skipped, not errored
	refs = r.Refs(GetCurrentDateTime, ID("bogus"))
	assert.Len(t, refs, 1)
}
