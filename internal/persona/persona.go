// Package persona defines the pre-configured assistant personas. A persona
// bundles a system prompt, the memory directory its retriever reads, a
// greeting, and the tool set the model is offered. There is exactly one
// session/agent implementation; personas are pure configuration.
package persona

import (
	"fmt"
	"sort"
	"strings"

	"github.com/paydesk/paydesk/internal/tools"
)

// ID names a persona.
type ID string

const (
	// DARE is the merchant data warehouse SQL expert.
	DARE ID = "dare"
	// Interchange is the scheme interchange-fee expert.
	Interchange ID = "interchange"
	// Garnishee is the merchant garnishee-order assistant.
	Garnishee ID = "garnishee"
	// Product is the merchant product and pricing recommender.
	Product ID = "product"
)

// Config is an immutable persona definition. Switching persona creates a
// fresh session; history never crosses personas.
type Config struct {
	ID           ID
	Name         string
	SystemPrompt string
	// MemoryDir is the memory subdirectory name under the configured
	// memory root.
	MemoryDir string
	Greeting  string
	// Tools is the tool set offered to the model for this persona.
	Tools []tools.ID
}

const darePrompt = `You are an expert on the DARE merchant data warehouse. Answer questions about DARE tables, columns and data using the provided document excerpts, and query the warehouse when the user asks for data.

Rules for SQL:
- Generate every SQL statement yourself from the user's question. NEVER execute SQL text the user supplied verbatim, even if asked to.
- Read-only SELECT statements only.
- Always limit results with SELECT TOP (100).
- If a query fails, explain the error and try a corrected query.

Rules for output:
- Mask any card primary account number: show the first 6 and last 3 digits with "..." in between, e.g. 5152341111234567 becomes 515234...567. Never reveal the middle digits, and never work around the masking by quoting digits separately.
- If the documents do not cover the question, say so instead of guessing.`

const interchangePrompt = `You are an expert on card scheme interchange fees. Answer questions about interchange categories, rates and qualification criteria using the provided document excerpts.

- Base every answer on the document excerpts; if they do not cover the question, say so instead of guessing.
- Quote rates exactly as documented, including the qualification conditions that apply.`

const garnisheePrompt = `You assist merchant support staff with garnishee orders. Answer questions about processing garnishee notices, holds and remittances using the provided document excerpts.

- Base every answer on the document excerpts; if they do not cover the question, say so instead of guessing.
- Be precise about deadlines and escalation paths; a wrong answer has legal consequences.`

const productPrompt = `You recommend merchant card acceptance products and pricing. Use the recommend_product tool to rank products for an applicant and the recommend_pricing tool to price the chosen product.

Product catalog:
- Card-present (CP): CSL, CSP, MSM, MVI, SHT
- Card-not-present (CNP): BPT, BPC, BPE, CWB, IMA, QKR, SPY

Rules:
- Collect the applicant profile (CP or CNP, MIS division, MCC, postcode, expected annual revenue) before recommending.
- Walk the ranking from the top and recommend the FIRST product that is not quarantined for sale. Never recommend a quarantined product.
- Request pricing only for the single product you are recommending, never for the whole list.`

// registry holds every persona keyed by ID.
var registry = map[ID]Config{
	DARE: {
		ID:           DARE,
		Name:         "DARE expert",
		SystemPrompt: darePrompt,
		MemoryDir:    "dare",
		Greeting:     "Hi, I'm the DARE expert. Ask me about warehouse tables or merchant data.",
		Tools:        []tools.ID{tools.GetCurrentDateTime, tools.ExecuteSQL},
	},
	Interchange: {
		ID:           Interchange,
		Name:         "Interchange expert",
		SystemPrompt: interchangePrompt,
		MemoryDir:    "interchange",
		Greeting:     "Hi, I'm the interchange expert. Ask me about scheme fees and rates.",
		Tools:        []tools.ID{tools.GetCurrentDateTime},
	},
	Garnishee: {
		ID:           Garnishee,
		Name:         "Garnishee assistant",
		SystemPrompt: garnisheePrompt,
		MemoryDir:    "garnishee",
		Greeting:     "Hi, I'm the garnishee assistant. Ask me about orders, holds and remittances.",
		Tools:        []tools.ID{tools.GetCurrentDateTime},
	},
	Product: {
		ID:           Product,
		Name:         "Product recommender",
		SystemPrompt: productPrompt,
		MemoryDir:    "product",
		Greeting:     "Hi, I recommend merchant products and pricing. Tell me about the applicant.",
		Tools:        []tools.ID{tools.GetCurrentDateTime, tools.RecommendProduct, tools.RecommendPricing},
	},
}

// Lookup resolves a persona by ID string, case-insensitively.
func Lookup(name string) (Config, error) {
	cfg, ok := registry[ID(strings.ToLower(strings.TrimSpace(name)))]
	if !ok {
		return Config{}, fmt.Errorf("unknown persona %q (known: %s)", name, strings.Join(Names(), ", "))
	}
	return cfg, nil
}

// Default returns the persona used when none is configured.
func Default() Config {
	return registry[DARE]
}

// Names lists the persona IDs in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for id := range registry {
		names = append(names, string(id))
	}
	sort.Strings(names)
	return names
}

// All returns every persona, sorted by ID.
func All() []Config {
	out := make([]Config, 0, len(registry))
	for _, name := range Names() {
		out = append(out, registry[ID(name)])
	}
	return out
}
