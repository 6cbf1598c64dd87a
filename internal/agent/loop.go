package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// ErrMaxToolRounds is returned when the model keeps requesting tool calls
// past the configured round bound. Without the bound a model that never
// stops asking for tools would loop forever.
var ErrMaxToolRounds = errors.New("maximum tool rounds exceeded")

// ModelClient is the narrow model interface the loop depends on.
// Production wires Genkit via GenkitClient; tests substitute fakes.
type ModelClient interface {
	Generate(ctx context.Context, opts ...ai.GenerateOption) (*ai.ModelResponse, error)
}

// GenkitClient adapts a Genkit instance to ModelClient.
type GenkitClient struct {
	g *genkit.Genkit
}

// NewGenkitClient wraps a Genkit instance.
func NewGenkitClient(g *genkit.Genkit) *GenkitClient {
	return &GenkitClient{g: g}
}

// Generate delegates to genkit.Generate.
func (c *GenkitClient) Generate(ctx context.Context, opts ...ai.GenerateOption) (*ai.ModelResponse, error) {
	return genkit.Generate(ctx, c.g, opts...)
}

// resolveToolCalls runs the tool-resolution loop for one turn.
//
// Each round sends the running message list to the model with the persona's
// tool schemas. A response without tool requests is terminal. Otherwise
// every requested call in the round is dispatched sequentially, in the
// order the model listed them; the model message carrying the requests and
// one tool message per result are appended, and the extended list goes back
// to the model. The model needs all results from a round before it can
// reason over any of them, so the batch is resolved before re-querying.
//
// The message list is threaded explicitly; nothing here mutates state
// outside the turn.
func (a *Agent) resolveToolCalls(ctx context.Context, messages []*ai.Message) (*ai.ModelResponse, error) {
	for round := 0; ; round++ {
		resp, err := a.generate(ctx, messages)
		if err != nil {
			return nil, err
		}

		requests := resp.ToolRequests()
		if len(requests) == 0 {
			if round > 0 {
				a.logger.Debug("tool loop terminated", "rounds", round)
			}
			return resp, nil
		}

		if round >= a.maxToolRounds {
			a.logger.Warn("tool loop exceeded round bound",
				"rounds", round,
				"pending_requests", len(requests),
			)
			return nil, fmt.Errorf("%w: %d rounds completed and the model still requests tools", ErrMaxToolRounds, round)
		}

		messages = append(messages, resp.Message)
		for _, req := range requests {
			a.logger.Debug("resolving tool call", "tool", req.Name, "round", round)
			output := a.registry.Invoke(ctx, req.Name, req.Input)
			messages = append(messages, toolResultMessage(req, output))
		}
	}
}

// toolResultMessage wraps a dispatch result as the tool-role message the
// model consumes on the next round.
func toolResultMessage(req *ai.ToolRequest, output string) *ai.Message {
	return ai.NewMessage(ai.RoleTool, nil, &ai.Part{
		Kind: ai.PartToolResponse,
		ToolResponse: &ai.ToolResponse{
			Ref:    req.Ref,
			Name:   req.Name,
			Output: output,
		},
	})
}

// generate performs one guarded model call: circuit breaker, rate limiter
// and retry wrap the underlying client.
func (a *Agent) generate(ctx context.Context, messages []*ai.Message) (*ai.ModelResponse, error) {
	opts := []ai.GenerateOption{
		ai.WithMessages(messages...),
		ai.WithToolChoice(ai.ToolChoiceAuto),
		ai.WithReturnToolRequests(true),
	}
	if len(a.toolRefs) > 0 {
		opts = append(opts, ai.WithTools(a.toolRefs...))
	}
	if a.modelName != "" {
		opts = append(opts, ai.WithModelName(a.modelName))
	}

	if err := a.circuitBreaker.Allow(); err != nil {
		a.logger.Warn("circuit breaker is open, rejecting request",
			"state", a.circuitBreaker.State().String())
		return nil, fmt.Errorf("service unavailable: %w", err)
	}

	resp, err := a.generateWithRetry(ctx, opts)
	if err != nil {
		a.circuitBreaker.Failure()
		return nil, err
	}

	a.circuitBreaker.Success()
	return resp, nil
}
