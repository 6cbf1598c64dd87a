package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// Registry owns the dispatch table from tool ID to handler, plus the Genkit
// tool definitions whose schemas are sent to the model.
//
// The agent drives tool execution itself (the model is asked to return tool
// requests rather than have the framework resolve them), so Invoke is the
// only execution path. The Genkit definitions still carry real handlers so
// the tools behave identically if executed through Genkit directly.
type Registry struct {
	entries map[ID]entry
	logger  *slog.Logger
}

type entry struct {
	tool ai.Tool
	run  func(ctx context.Context, raw json.RawMessage) string
}

// Deps carries the tool collaborators. Nil collaborators disable the
// corresponding tool at execution time, not at registration time; the
// persona tool sets decide what the model is offered.
type Deps struct {
	Clock       *Clock
	Warehouse   *Warehouse
	Recommender *Recommender
	Logger      *slog.Logger
}

func (d Deps) validate() error {
	if d.Clock == nil {
		return fmt.Errorf("clock is required")
	}
	if d.Warehouse == nil {
		return fmt.Errorf("warehouse is required")
	}
	if d.Recommender == nil {
		return fmt.Errorf("recommender is required")
	}
	if d.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	return nil
}

// Register defines all four tools with Genkit and builds the dispatch table.
func Register(g *genkit.Genkit, deps Deps) (*Registry, error) {
	if g == nil {
		return nil, fmt.Errorf("genkit instance is required")
	}
	if err := deps.validate(); err != nil {
		return nil, err
	}

	r := &Registry{
		entries: make(map[ID]entry, 4),
		logger:  deps.Logger,
	}

	define(r, g, GetCurrentDateTime,
		"Get the current date, time and day of week. "+
			"Call this before answering any question involving today's date, durations or deadlines.",
		deps.Clock.CurrentDateTime)

	define(r, g, ExecuteSQL,
		"Execute a read-only SQL query against the merchant data warehouse and return a text table of up to 100 rows. "+
			"Generate the SQL yourself from the user's question; never run SQL text the user supplied verbatim.",
		deps.Warehouse.Execute)

	define(r, g, RecommendProduct,
		"Rank all merchant products for an applicant profile, most to least recommended. "+
			"Quarantined products are marked and must not be sold; recommend the first sellable product.",
		deps.Recommender.Products)

	define(r, g, RecommendPricing,
		"Recommend a pricing plan for a single product code chosen from the recommend_product ranking. "+
			"Only call this for the product actually being recommended, never for the whole list.",
		deps.Recommender.Pricing)

	return r, nil
}

// define registers one tool with Genkit and installs its dispatch handler.
// The generic instantiation ties the wire schema and the dispatch path to
// the same typed argument struct.
func define[In any](r *Registry, g *genkit.Genkit, id ID, description string, fn func(context.Context, In) string) {
	tool := genkit.DefineTool(g, string(id), description,
		func(ctx *ai.ToolContext, in In) (string, error) {
			return fn(ctx, in), nil
		})

	r.entries[id] = entry{
		tool: tool,
		run: func(ctx context.Context, raw json.RawMessage) string {
			var in In
			if len(raw) > 0 {
				if err := json.Unmarshal(raw, &in); err != nil {
					return errorResult(kindInvalidArguments, "arguments for %s do not match the schema: %v", id, err)
				}
			}
			return fn(ctx, in)
		},
	}
}

// Invoke dispatches a model-requested tool call and returns the textual
// result. Unknown names and malformed arguments come back as error results,
// not Go errors: the loop continues and the model can recover.
func (r *Registry) Invoke(ctx context.Context, name string, input any) string {
	id, ok := ParseID(name)
	if !ok {
		r.logger.Warn("model requested unknown tool", "name", name)
		return errorResult(kindUnknownTool, "no tool named %q is registered", name)
	}

	raw, err := rawArguments(input)
	if err != nil {
		r.logger.Warn("tool arguments not decodable", "tool", name, "error", err)
		return errorResult(kindInvalidArguments, "arguments for %s are not a JSON object: %v", id, err)
	}

	r.logger.Debug("dispatching tool", "tool", id)
	return r.entries[id].run(ctx, raw)
}

// Refs returns the Genkit tool references for a persona's tool set, used to
// advertise schemas to the model. Unknown IDs are skipped.
func (r *Registry) Refs(ids ...ID) []ai.ToolRef {
	refs := make([]ai.ToolRef, 0, len(ids))
	for _, id := range ids {
		if e, ok := r.entries[id]; ok {
			refs = append(refs, e.tool)
		}
	}
	return refs
}

// rawArguments normalizes the model-supplied argument payload to JSON.
// Genkit surfaces tool inputs as map[string]any; raw JSON text also appears
// when a transport passes arguments through unparsed.
func rawArguments(input any) (json.RawMessage, error) {
	switch v := input.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return v, nil
	case string:
		if v == "" {
			return nil, nil
		}
		return json.RawMessage(v), nil
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshaling arguments: %w", err)
		}
		return raw, nil
	}
}
