// Package session owns per-conversation state: the bounded user/assistant
// history and the assembly of the message list sent to the model each turn.
package session

import (
	"strings"
	"sync"

	"github.com/firebase/genkit/go/ai"
)

// History caps. History stores user/assistant pairs only; tool traffic is
// transient within a turn and never recorded.
const (
	// MaxMessages bounds stored history. Always even: eviction removes
	// whole pairs from the oldest end, never splitting a pair.
	MaxMessages = 20
)

// History is a bounded, append-only record of completed turns.
// Thread-safe; the agent serializes turns but reads may come from
// elsewhere (REPL status, tests).
type History struct {
	mu       sync.RWMutex
	messages []*ai.Message
}

// NewHistory creates an empty history.
func NewHistory() *History {
	return &History{}
}

// RecordTurn appends a completed user/assistant pair, then evicts the
// oldest pairs past the cap. Overflow is policy, not an error: truncation
// is silent.
func (h *History) RecordTurn(userPrompt, finalAnswer string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.messages = append(h.messages,
		ai.NewUserMessage(ai.NewTextPart(userPrompt)),
		ai.NewModelMessage(ai.NewTextPart(finalAnswer)),
	)
	if overflow := len(h.messages) - MaxMessages; overflow > 0 {
		h.messages = append([]*ai.Message(nil), h.messages[overflow:]...)
	}
}

// Messages returns a copy of the stored history in order.
func (h *History) Messages() []*ai.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	cp := make([]*ai.Message, len(h.messages))
	copy(cp, h.messages)
	return cp
}

// Len returns the stored message count.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.messages)
}

// Clear resets the history. Used on an explicit new-chat command and on
// persona switch.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = nil
}

// BuildMessages assembles the model input for one turn: system prompt,
// history, the retrieved context as a document-excerpt message, then the
// question itself. A fresh slice is built every call; the loop threads it
// explicitly and never mutates shared state.
//
// Context chunks are joined with newlines in retrieval order.
func BuildMessages(systemPrompt string, history []*ai.Message, contextChunks []string, userPrompt string) []*ai.Message {
	messages := make([]*ai.Message, 0, len(history)+3)
	messages = append(messages, ai.NewSystemTextMessage(systemPrompt))
	messages = append(messages, history...)
	messages = append(messages,
		ai.NewUserTextMessage("Document Excerpt: "+strings.Join(contextChunks, "\n")),
		ai.NewUserTextMessage("Question: "+userPrompt),
	)
	return messages
}
