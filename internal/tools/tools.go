// Package tools defines the agent's callable tools and their dispatch.
//
// Each tool has a stable enumerated identifier, a typed argument struct the
// model's JSON arguments unmarshal into, and a handler returning plain text.
// Business failures (a bad query, an unreachable collaborator) are returned
// as text results, never as Go errors: the result is fed back to the model
// as a tool message, and the model reacts conversationally.
package tools

import "fmt"

// ID enumerates the registered tools. Dispatch is keyed by ID, not by raw
// string comparison, so a switch over IDs is exhaustiveness-checkable.
type ID string

const (
	// GetCurrentDateTime returns the current date, time and day of week.
	GetCurrentDateTime ID = "get_current_date_time"
	// ExecuteSQL runs a read-only query against the merchant warehouse.
	ExecuteSQL ID = "execute_sql"
	// RecommendProduct ranks merchant products for an applicant profile.
	RecommendProduct ID = "recommend_product"
	// RecommendPricing recommends a pricing plan for a chosen product.
	RecommendPricing ID = "recommend_pricing"
)

// All returns every tool identifier in registration order.
func All() []ID {
	return []ID{GetCurrentDateTime, ExecuteSQL, RecommendProduct, RecommendPricing}
}

// ParseID maps a wire-level tool name to its identifier.
func ParseID(name string) (ID, bool) {
	switch ID(name) {
	case GetCurrentDateTime, ExecuteSQL, RecommendProduct, RecommendPricing:
		return ID(name), true
	default:
		return "", false
	}
}

// DateTimeArgs is the (empty) argument struct for get_current_date_time.
type DateTimeArgs struct{}

// SQLArgs is the argument struct for execute_sql.
type SQLArgs struct {
	Query string `json:"query" jsonschema_description:"A single read-only SQL SELECT statement generated from the user's question. Limit results with SELECT TOP (100)."`
}

// ProductArgs is the argument struct for recommend_product.
type ProductArgs struct {
	CPCNP       string  `json:"cp_cnp" jsonschema_description:"Card acceptance channel: CP for card-present (terminals), CNP for card-not-present (eCommerce)"`
	MISDivision string  `json:"mis_division" jsonschema_description:"The merchant's MIS division code, e.g. RBS"`
	MCC         int     `json:"mcc" jsonschema_description:"Merchant category code, e.g. 5812"`
	Postcode    int     `json:"postcode" jsonschema_description:"Merchant trading postcode"`
	Revenue     float64 `json:"revenue" jsonschema_description:"Expected annual card revenue in dollars"`
}

// PricingArgs is the argument struct for recommend_pricing.
type PricingArgs struct {
	ProductCode string  `json:"product_code" jsonschema_description:"The product code to price, chosen from the recommend_product ranking"`
	MISDivision string  `json:"mis_division" jsonschema_description:"The merchant's MIS division code, e.g. RBS"`
	MCC         int     `json:"mcc" jsonschema_description:"Merchant category code, e.g. 5812"`
	Postcode    int     `json:"postcode" jsonschema_description:"Merchant trading postcode"`
	Revenue     float64 `json:"revenue" jsonschema_description:"Expected annual card revenue in dollars"`
}

// Error kinds embedded in textual error results.
const (
	kindUnknownTool      = "UnknownTool"
	kindInvalidArguments = "InvalidArguments"
	kindExecutionFailed  = "ExecutionFailed"
)

// errorResult renders a tool failure as result text. The loop feeds it back
// to the model unchanged, so it must be self-describing.
func errorResult(kind, format string, args ...any) string {
	return fmt.Sprintf("tool error [%s]: %s", kind, fmt.Sprintf(format, args...))
}
