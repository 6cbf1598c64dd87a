package agent

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/time/rate"

	"github.com/paydesk/paydesk/internal/log"
	"github.com/paydesk/paydesk/internal/persona"
	"github.com/paydesk/paydesk/internal/retrieval"
	"github.com/paydesk/paydesk/internal/testutil"
	"github.com/paydesk/paydesk/internal/tools"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("os/signal.NotifyContext.func1"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
		goleak.IgnoreTopFunction("net/http.(*http2clientConnReadLoop).run"),
		goleak.IgnoreTopFunction("go.opentelemetry.io/otel/sdk/trace.(*batchSpanProcessor).processQueue"),
	)
}

type fakeRanker struct{ ranked []string }

func (f *fakeRanker) RankProducts(context.Context, tools.ProductQuery) ([]string, error) {
	return f.ranked, nil
}

type fakePlanner struct{ plan string }

func (f *fakePlanner) RecommendPlan(context.Context, tools.PricingQuery) (string, error) {
	return f.plan, nil
}

// testHarness wires a full agent over the mock model and a three-primer
// memory dir.
type testHarness struct {
	mock  *testutil.MockLLM
	agent *Agent
}

func newTestHarness(t *testing.T, personaName string, quarantined []string) *testHarness {
	t.Helper()
	ctx := context.Background()
	g := genkit.Init(ctx)

	mock := testutil.NewMockLLM("fallback answer")
	mock.RegisterModel(g)

	embMock := testutil.NewMockEmbedder(2)
	embedder := embMock.RegisterEmbedder(g)

	dir := t.TempDir()
	chunks := []string{"primer-a", "primer-b", "primer-c", "detail-d"}
	matrix := [][]float32{{0, 0}, {1, 0}, {2, 0}, {3, 0}}
	require.NoError(t, retrieval.SaveCorpus(filepath.Join(dir, "chunks.txt"), chunks))
	require.NoError(t, retrieval.SaveMatrix(filepath.Join(dir, "embeddings.gob"), matrix))
	ix, err := retrieval.NewFlatIndex(2)
	require.NoError(t, err)
	require.NoError(t, ix.Add(matrix...))
	require.NoError(t, ix.Save(filepath.Join(dir, "index.gob")))

	retriever, err := retrieval.Open(dir, embedder, log.NewNop())
	require.NoError(t, err)

	clock := tools.NewClockAt(func() time.Time {
		return time.Date(2026, 8, 26, 9, 30, 0, 0, time.UTC)
	})
	registry, err := tools.Register(g, tools.Deps{
		Clock:     clock,
		Warehouse: tools.NewWarehouse(nil, log.NewNop()),
		Recommender: tools.NewRecommender(
			&fakeRanker{ranked: []string{"BPT", "IMA", "QKR", "BPC", "BPE", "CWB", "SPY"}},
			&fakePlanner{plan: "SIMPLE-20"},
			tools.NewQuarantine(quarantined),
			log.NewNop(),
		),
		Logger: log.NewNop(),
	})
	require.NoError(t, err)

	p, err := persona.Lookup(personaName)
	require.NoError(t, err)

	a, err := New(Config{
		Client:      NewGenkitClient(g),
		ModelName:   "mock/test-model",
		Persona:     p,
		Retriever:   retriever,
		Registry:    registry,
		Logger:      log.NewNop(),
		RateLimiter: rate.NewLimiter(rate.Inf, 1),
	})
	require.NoError(t, err)

	return &testHarness{mock: mock, agent: a}
}

func TestChatDirectAnswer(t *testing.T) {
	h := newTestHarness(t, "dare", nil)
	h.mock.AddResponse("what is dare", "DARE is the merchant data warehouse.")

	answer, err := h.agent.Chat(context.Background(), "what is DARE")
	require.NoError(t, err)
	assert.Equal(t, "DARE is the merchant data warehouse.", answer)

	// One retrieval, one model call, zero dispatches.
	calls := h.mock.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].UserMessage, "what is DARE")

	// History holds exactly the completed pair.
	assert.Equal(t, 2, h.agent.HistoryLen())
}

func TestChatFallbackWhenUnmatched(t *testing.T) {
	h := newTestHarness(t, "interchange", nil)

	answer, err := h.agent.Chat(context.Background(), "how do fees work")
	require.NoError(t, err)
	assert.Equal(t, "fallback answer", answer)
	assert.Equal(t, 2, h.agent.HistoryLen())
}

func TestChatResolvesToolCalls(t *testing.T) {
	h := newTestHarness(t, "dare", nil)
	h.mock.AddToolResponse("what day is it",
		[]*ai.ToolRequest{{
			Ref:   "call-1",
			Name:  string(tools.GetCurrentDateTime),
			Input: map[string]any{},
		}},
		"Today is Wednesday, 26 August 2026.")

	answer, err := h.agent.Chat(context.Background(), "what day is it")
	require.NoError(t, err)
	assert.Equal(t, "Today is Wednesday, 26 August 2026.", answer)

	// Round one requests the tool, round two consumes the result.
	calls := h.mock.Calls()
	require.Len(t, calls, 2)
	assert.False(t, calls[0].SawToolReply)
	assert.True(t, calls[1].SawToolReply)
}

func TestChatResolvesToolBatchInOneRound(t *testing.T) {
	h := newTestHarness(t, "product", nil)
	h.mock.AddToolResponse("today's best product",
		[]*ai.ToolRequest{
			{
				Ref:   "call-1",
				Name:  string(tools.GetCurrentDateTime),
				Input: map[string]any{},
			},
			{
				Ref:  "call-2",
				Name: string(tools.RecommendProduct),
				Input: map[string]any{
					"cp_cnp":       "CNP",
					"mis_division": "RBS",
					"mcc":          5812,
					"postcode":     2000,
					"revenue":      5000,
				},
			},
		},
		"As of today, BPT is the best fit.")

	answer, err := h.agent.Chat(context.Background(), "what is today's best product for this applicant")
	require.NoError(t, err)
	assert.Equal(t, "As of today, BPT is the best fit.", answer)

	// Both requests from the single model turn are resolved before the
	// model is queried again: exactly two model calls, with both tool
	// results present on the second.
	calls := h.mock.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, 0, calls[0].ToolReplies)
	assert.Equal(t, 2, calls[1].ToolReplies)
}

func TestChatMasksPANs(t *testing.T) {
	h := newTestHarness(t, "dare", nil)
	h.mock.AddResponse("card number", "The card on file is 5152341111234567.")

	answer, err := h.agent.Chat(context.Background(), "show me card number 5152341111234567")
	require.NoError(t, err)
	assert.Equal(t, "The card on file is 515234...567.", answer)
	assert.NotContains(t, answer, "5152341111234567")
}

func TestChatQuarantinePolicy(t *testing.T) {
	h := newTestHarness(t, "product", []string{"BPT"})
	h.mock.AddToolResponse("recommend a product",
		[]*ai.ToolRequest{{
			Ref:  "call-1",
			Name: string(tools.RecommendProduct),
			Input: map[string]any{
				"cp_cnp":       "CNP",
				"mis_division": "RBS",
				"mcc":          5812,
				"postcode":     2000,
				"revenue":      5000,
			},
		}},
		"I recommend IMA.")

	answer, err := h.agent.Chat(context.Background(), "recommend a product for this applicant")
	require.NoError(t, err)
	assert.Equal(t, "I recommend IMA.", answer)
	require.Len(t, h.mock.Calls(), 2)
}

func TestChatUnknownToolRecovers(t *testing.T) {
	h := newTestHarness(t, "dare", nil)
	h.mock.AddToolResponse("use the magic tool",
		[]*ai.ToolRequest{{Ref: "call-1", Name: "magic_tool", Input: map[string]any{}}},
		"That tool does not exist, sorry.")

	// The unknown tool becomes an error result; the loop continues and
	// the model answers on the next round.
	answer, err := h.agent.Chat(context.Background(), "use the magic tool")
	require.NoError(t, err)
	assert.Equal(t, "That tool does not exist, sorry.", answer)
	require.Len(t, h.mock.Calls(), 2)
}

func TestChatRetrievalUnavailable(t *testing.T) {
	ctx := context.Background()
	g := genkit.Init(ctx)

	mock := testutil.NewMockLLM("never reached")
	mock.RegisterModel(g)

	// An embedder returning wrong-dimension vectors makes index search
	// fail, which surfaces as retrieval unavailability.
	embMock := testutil.NewMockEmbedder(2)
	embMock.SetVector("anything", []float32{1, 2, 3})
	embedder := embMock.RegisterEmbedder(g)

	dir := t.TempDir()
	require.NoError(t, retrieval.SaveCorpus(filepath.Join(dir, "chunks.txt"), []string{"a"}))
	require.NoError(t, retrieval.SaveMatrix(filepath.Join(dir, "embeddings.gob"), [][]float32{{0, 0}}))
	ix, err := retrieval.NewFlatIndex(2)
	require.NoError(t, err)
	require.NoError(t, ix.Add([]float32{0, 0}))
	require.NoError(t, ix.Save(filepath.Join(dir, "index.gob")))

	retriever, err := retrieval.Open(dir, embedder, log.NewNop())
	require.NoError(t, err)

	registry, err := tools.Register(g, tools.Deps{
		Clock:       tools.NewClock(),
		Warehouse:   tools.NewWarehouse(nil, log.NewNop()),
		Recommender: tools.NewRecommender(nil, nil, nil, log.NewNop()),
		Logger:      log.NewNop(),
	})
	require.NoError(t, err)

	a, err := New(Config{
		Client:      NewGenkitClient(g),
		ModelName:   "mock/test-model",
		Persona:     persona.Default(),
		Retriever:   retriever,
		Registry:    registry,
		Logger:      log.NewNop(),
		RateLimiter: rate.NewLimiter(rate.Inf, 1),
	})
	require.NoError(t, err)

	_, err = a.Chat(ctx, "anything")
	require.Error(t, err)
	assert.ErrorIs(t, err, retrieval.ErrUnavailable)

	// The turn failed hard: no model call, no history.
	assert.Empty(t, mock.Calls())
	assert.Zero(t, a.HistoryLen())
}

// stubClient always returns the same response, exercising the ModelClient
// injection point directly.
type stubClient struct {
	mu    sync.Mutex
	resp  *ai.ModelResponse
	err   error
	calls int
}

func (s *stubClient) Generate(context.Context, ...ai.GenerateOption) (*ai.ModelResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}

func (s *stubClient) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func newStubAgent(t *testing.T, client ModelClient, maxRounds int) *Agent {
	t.Helper()
	ctx := context.Background()
	g := genkit.Init(ctx)

	embedder := testutil.NewMockEmbedder(1).RegisterEmbedder(g)
	dir := t.TempDir()
	require.NoError(t, retrieval.SaveCorpus(filepath.Join(dir, "chunks.txt"), []string{"a"}))
	require.NoError(t, retrieval.SaveMatrix(filepath.Join(dir, "embeddings.gob"), [][]float32{{0}}))
	ix, err := retrieval.NewFlatIndex(1)
	require.NoError(t, err)
	require.NoError(t, ix.Add([]float32{0}))
	require.NoError(t, ix.Save(filepath.Join(dir, "index.gob")))
	retriever, err := retrieval.Open(dir, embedder, log.NewNop())
	require.NoError(t, err)

	registry, err := tools.Register(g, tools.Deps{
		Clock:       tools.NewClock(),
		Warehouse:   tools.NewWarehouse(nil, log.NewNop()),
		Recommender: tools.NewRecommender(nil, nil, nil, log.NewNop()),
		Logger:      log.NewNop(),
	})
	require.NoError(t, err)

	a, err := New(Config{
		Client:        client,
		Persona:       persona.Default(),
		Retriever:     retriever,
		Registry:      registry,
		Logger:        log.NewNop(),
		MaxToolRounds: maxRounds,
		RateLimiter:   rate.NewLimiter(rate.Inf, 1),
	})
	require.NoError(t, err)
	return a
}

func TestChatMaxToolRoundsExceeded(t *testing.T) {
	// A model that never stops requesting tools must hit the bound, not
	// loop forever.
	stub := &stubClient{resp: &ai.ModelResponse{
		Message: &ai.Message{
			Role: ai.RoleModel,
			Content: []*ai.Part{{
				Kind:        ai.PartToolRequest,
				ToolRequest: &ai.ToolRequest{Ref: "r", Name: string(tools.GetCurrentDateTime), Input: map[string]any{}},
			}},
		},
	}}
	a := newStubAgent(t, stub, 2)

	_, err := a.Chat(context.Background(), "spin forever")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMaxToolRounds)

	// Rounds 0 and 1 dispatched; the third response trips the bound.
	assert.Equal(t, 3, stub.callCount())
	assert.Zero(t, a.HistoryLen())
}

func TestChatEmptyResponseFallback(t *testing.T) {
	stub := &stubClient{resp: &ai.ModelResponse{
		Message: &ai.Message{
			Role:    ai.RoleModel,
			Content: []*ai.Part{ai.NewTextPart("   ")},
		},
	}}
	a := newStubAgent(t, stub, 2)

	answer, err := a.Chat(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, fallbackAnswer, answer)
}

func TestCircuitBreakerOpensAfterFailures(t *testing.T) {
	stub := &stubClient{err: errors.New("hard failure")}
	a := newStubAgent(t, stub, 2)
	a.circuitBreaker = NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 1,
		Timeout:          time.Hour,
	})

	_, err := a.Chat(context.Background(), "first")
	require.Error(t, err)

	_, err = a.Chat(context.Background(), "second")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCircuitOpen)

	// The second turn was rejected before reaching the client.
	assert.Equal(t, 1, stub.callCount())
}

func TestChatSerializesTurns(t *testing.T) {
	h := newTestHarness(t, "dare", nil)
	h.mock.AddResponse("question", "answer")

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.agent.Chat(context.Background(), "question")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// Serialized turns keep the history even and bounded.
	assert.Equal(t, 16, h.agent.HistoryLen())
	assert.Zero(t, h.agent.HistoryLen()%2)
}

func TestRetryableError(t *testing.T) {
	assert.True(t, retryableError(errors.New("429 Too Many Requests")))
	assert.True(t, retryableError(errors.New("connection reset by peer")))
	assert.True(t, retryableError(errors.New("service Unavailable")))
	assert.False(t, retryableError(errors.New("invalid api key")))
	assert.False(t, retryableError(nil))
}
