package mock

import (
	"context"
	"sync"

	"github.com/halpertj/perp_sentry/internal/llm"
)

// ScriptedLLM is an llm.Client that replays queued replies, falling back to a
// hold decision once the script runs out. Paperfeed and the advisor tests use
// it in place of a live endpoint.
type ScriptedLLM struct {
	mu      sync.Mutex
	replies []string
	Err     error
	// Calls records every prompt for assertion.
	Calls []llm.Message
}

var _ llm.Client = (*ScriptedLLM)(nil)

const defaultHoldReply = `{"action": "hold", "reason": "no change warranted"}`

// NewScriptedLLM queues the given replies in order.
func NewScriptedLLM(replies ...string) *ScriptedLLM {
	return &ScriptedLLM{replies: replies}
}

// Complete pops the next scripted reply.
func (s *ScriptedLLM) Complete(ctx context.Context, messages []llm.Message, opts llm.Options) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Calls = append(s.Calls, messages...)
	if s.Err != nil {
		return "", s.Err
	}
	if len(s.replies) == 0 {
		return defaultHoldReply, nil
	}
	reply := s.replies[0]
	s.replies = s.replies[1:]
	return reply, nil
}
