// Package agent composes retrieval, session state and the tool-resolution
// loop behind a persona-configured conversational facade.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/paydesk/paydesk/internal/persona"
	"github.com/paydesk/paydesk/internal/retrieval"
	"github.com/paydesk/paydesk/internal/safety"
	"github.com/paydesk/paydesk/internal/session"
	"github.com/paydesk/paydesk/internal/tools"
)

// fallbackAnswer is returned when the model produces an empty terminal
// response.
const fallbackAnswer = "I apologize, but I couldn't generate a response. Please try rephrasing your question."

// Config contains all required parameters for an Agent.
type Config struct {
	Client    ModelClient
	ModelName string // Provider-qualified model name (e.g., "googleai/gemini-2.5-flash")
	Persona   persona.Config
	Retriever *retrieval.Retriever
	Registry  *tools.Registry
	Logger    *slog.Logger

	// Tool loop bound: maximum tool-resolution rounds per turn.
	MaxToolRounds int

	// Resilience configuration
	RetryConfig          RetryConfig          // Model retry settings (zero-value uses defaults)
	CircuitBreakerConfig CircuitBreakerConfig // Circuit breaker settings (zero-value uses defaults)
	RateLimiter          *rate.Limiter        // Optional: proactive rate limiting (nil = use default)
}

func (cfg Config) validate() error {
	if cfg.Client == nil {
		return errors.New("model client is required")
	}
	if cfg.Persona.ID == "" {
		return errors.New("persona is required")
	}
	if cfg.Retriever == nil {
		return errors.New("retriever is required")
	}
	if cfg.Registry == nil {
		return errors.New("tool registry is required")
	}
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}

// Agent owns one persona-configured conversation. All configuration is
// captured immutably at construction; the only mutable state is the
// bounded history, and turns are serialized so concurrent Chat calls on
// the same Agent cannot interleave on it.
type Agent struct {
	// Immutable configuration
	persona       persona.Config
	modelName     string
	maxToolRounds int

	// Resilience
	retryConfig    RetryConfig
	circuitBreaker *CircuitBreaker
	rateLimiter    *rate.Limiter

	// Dependencies (read-only after construction)
	client    ModelClient
	retriever *retrieval.Retriever
	registry  *tools.Registry
	toolRefs  []ai.ToolRef // persona's tool schemas, cached at construction
	logger    *slog.Logger

	// Per-session state
	sessionID uuid.UUID
	turnMu    sync.Mutex // serializes turns
	history   *session.History
}

// New creates an Agent for one persona.
func New(cfg Config) (*Agent, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	maxToolRounds := cfg.MaxToolRounds
	if maxToolRounds <= 0 {
		maxToolRounds = 5
	}

	retryConfig := cfg.RetryConfig
	if retryConfig.MaxRetries == 0 {
		retryConfig = DefaultRetryConfig()
	}

	cbConfig := cfg.CircuitBreakerConfig
	if cbConfig.FailureThreshold == 0 {
		cbConfig = DefaultCircuitBreakerConfig()
	}

	// Default: 10 requests/sec sustained, burst of 30
	rl := cfg.RateLimiter
	if rl == nil {
		rl = rate.NewLimiter(10, 30)
	}

	sessionID := uuid.New()
	a := &Agent{
		persona:       cfg.Persona,
		modelName:     cfg.ModelName,
		maxToolRounds: maxToolRounds,

		retryConfig:    retryConfig,
		circuitBreaker: NewCircuitBreaker(cbConfig),
		rateLimiter:    rl,

		client:    cfg.Client,
		retriever: cfg.Retriever,
		registry:  cfg.Registry,
		toolRefs:  cfg.Registry.Refs(cfg.Persona.Tools...),
		logger:    cfg.Logger.With("persona", cfg.Persona.ID, "session_id", sessionID),

		sessionID: sessionID,
		history:   session.NewHistory(),
	}

	a.logger.Info("agent initialized",
		"tools", len(a.toolRefs),
		"maxToolRounds", a.maxToolRounds,
	)
	return a, nil
}

// Chat runs one complete turn: retrieve context, build the message list,
// resolve tool calls until the model answers, then record the turn.
//
// Hard failures are retrieval being unavailable, the loop bound, and model
// transport errors; tool failures never surface here, they flow back to
// the model as result text.
func (a *Agent) Chat(ctx context.Context, prompt string) (string, error) {
	a.turnMu.Lock()
	defer a.turnMu.Unlock()

	chunks, err := a.retriever.Search(ctx, prompt)
	if err != nil {
		// No answer is attempted without context.
		return "", fmt.Errorf("retrieving context: %w", err)
	}

	messages := session.BuildMessages(a.persona.SystemPrompt, a.history.Messages(), chunks, prompt)

	resp, err := a.resolveToolCalls(ctx, messages)
	if err != nil {
		return "", err
	}

	answer := strings.TrimSpace(resp.Text())
	if answer == "" {
		a.logger.Warn("model returned empty terminal response")
		answer = fallbackAnswer
	}
	answer = safety.MaskPANs(answer)

	a.history.RecordTurn(prompt, answer)
	return answer, nil
}

// NewChat discards the conversation history.
func (a *Agent) NewChat() {
	a.history.Clear()
	a.logger.Debug("history cleared")
}

// Persona returns the agent's persona configuration.
func (a *Agent) Persona() persona.Config {
	return a.persona
}

// Greeting returns the persona greeting shown when a conversation opens.
func (a *Agent) Greeting() string {
	return a.persona.Greeting
}

// SessionID identifies this conversation in logs.
func (a *Agent) SessionID() uuid.UUID {
	return a.sessionID
}

// HistoryLen reports the stored history size. Intended for status output
// and tests.
func (a *Agent) HistoryLen() int {
	return a.history.Len()
}
