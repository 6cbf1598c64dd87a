package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// ProductQuery is the input to the product ranking collaborator.
type ProductQuery struct {
	Side        Side
	MISDivision string
	MCC         int
	Postcode    int
	Revenue     float64
}

// PricingQuery is the input to the pricing collaborator. Pricing is computed
// for exactly one product, chosen by walking the product ranking past any
// quarantined codes.
type PricingQuery struct {
	ProductCode string
	MISDivision string
	MCC         int
	Postcode    int
	Revenue     float64
}

// ProductRanker orders the product catalog for an applicant profile, most
// likely recommendation first.
type ProductRanker interface {
	RankProducts(ctx context.Context, q ProductQuery) ([]string, error)
}

// PricePlanner recommends a single pricing plan for a product.
type PricePlanner interface {
	RecommendPlan(ctx context.Context, q PricingQuery) (string, error)
}

// Recommender implements the recommend_product and recommend_pricing tools
// over external scoring collaborators.
type Recommender struct {
	ranker     ProductRanker
	planner    PricePlanner
	quarantine Quarantine
	logger     *slog.Logger
}

// NewRecommender creates the recommendation tools. ranker and planner may be
// nil when no scoring service is configured; invocations then report the
// missing collaborator as a result.
func NewRecommender(ranker ProductRanker, planner PricePlanner, quarantine Quarantine, logger *slog.Logger) *Recommender {
	return &Recommender{ranker: ranker, planner: planner, quarantine: quarantine, logger: logger}
}

// Products ranks the catalog for the applicant profile. The result lists
// every catalog code for the requested side in recommendation order, marks
// quarantined codes, and names the first sellable one so the selection
// policy is explicit in the transcript.
func (r *Recommender) Products(ctx context.Context, args ProductArgs) string {
	side, ok := ParseSide(args.CPCNP)
	if !ok {
		return errorResult(kindInvalidArguments, "cp_cnp must be CP or CNP, got %q", args.CPCNP)
	}
	if r.ranker == nil {
		return errorResult(kindExecutionFailed, "product scoring service is not configured")
	}

	ranked, err := r.ranker.RankProducts(ctx, ProductQuery{
		Side:        side,
		MISDivision: args.MISDivision,
		MCC:         args.MCC,
		Postcode:    args.Postcode,
		Revenue:     args.Revenue,
	})
	if err != nil {
		r.logger.Warn("product ranking failed", "error", err)
		return errorResult(kindExecutionFailed, "product recommendation failed: %v", err)
	}
	if err := VerifyRanking(side, ranked); err != nil {
		r.logger.Warn("scoring service returned bad ranking", "error", err)
		return errorResult(kindExecutionFailed, "product recommendation returned an invalid ranking: %v", err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Products for %s, most to least recommended:\n", side)
	for i, code := range ranked {
		fmt.Fprintf(&sb, "%d. %s", i+1, code)
		if r.quarantine.Contains(code) {
			sb.WriteString(" (quarantined - do not sell)")
		}
		sb.WriteString("\n")
	}
	if first, ok := FirstSellable(ranked, r.quarantine); ok {
		fmt.Fprintf(&sb, "First sellable product: %s", first)
	} else {
		sb.WriteString("No sellable product: every ranked product is quarantined.")
	}
	return sb.String()
}

// Pricing recommends a plan for one product. Quarantined products are
// refused so pricing can never be produced for a product that must not be
// sold.
func (r *Recommender) Pricing(ctx context.Context, args PricingArgs) string {
	code := strings.ToUpper(strings.TrimSpace(args.ProductCode))
	if code == "" {
		return errorResult(kindInvalidArguments, "product_code is required")
	}
	if r.quarantine.Contains(code) {
		return errorResult(kindExecutionFailed,
			"product %s is quarantined for sale; pick the next product in the recommend_product ranking", code)
	}
	if r.planner == nil {
		return errorResult(kindExecutionFailed, "pricing scoring service is not configured")
	}

	plan, err := r.planner.RecommendPlan(ctx, PricingQuery{
		ProductCode: code,
		MISDivision: args.MISDivision,
		MCC:         args.MCC,
		Postcode:    args.Postcode,
		Revenue:     args.Revenue,
	})
	if err != nil {
		r.logger.Warn("pricing recommendation failed", "error", err, "product", code)
		return errorResult(kindExecutionFailed, "pricing recommendation failed: %v", err)
	}
	return fmt.Sprintf("Recommended pricing plan for %s: %s", code, plan)
}
