// Package session implements the conversation state machine that takes a task
// from approach refinement through code generation and iteration.
package session

import (
	"go.uber.org/zap"

	"github.com/bizmatters/agent-builder/codegen-orchestrator/internal/config"
	"github.com/bizmatters/agent-builder/codegen-orchestrator/internal/metrics"
	"github.com/bizmatters/agent-builder/codegen-orchestrator/internal/orchestration"
	"github.com/bizmatters/agent-builder/codegen-orchestrator/internal/polling"
)

// Conversation is the context threaded through every state. It is never
// mutated after construction; WithConversationID returns a copy.
type Conversation struct {
	Invoker        orchestration.Invoker
	Params         config.GenerationParams
	WorkspaceRoot  string
	Endpoints      config.Endpoints
	ConversationID string

	Poller  *polling.Poller
	Metrics *metrics.GenerationMetrics
	Logger  *zap.Logger
}

// NewConversation fills in a default poller and a no-op logger where absent.
func NewConversation(conv Conversation) *Conversation {
	if conv.Logger == nil {
		conv.Logger = zap.NewNop()
	}
	if conv.Poller == nil {
		conv.Poller = polling.New(config.DefaultPollAttempts, config.DefaultPollInterval, conv.Logger)
	}
	return &conv
}

// WithConversationID returns a copy carrying id. An id already assigned is kept.
func (c *Conversation) WithConversationID(id string) *Conversation {
	if c.ConversationID != "" {
		if id != "" && id != c.ConversationID {
			c.Logger.Warn("ignoring conversation id change",
				zap.String("conversation_id", c.ConversationID),
				zap.String("received", id),
			)
		}
		return c
	}
	cp := *c
	cp.ConversationID = id
	return &cp
}

func (c *Conversation) log(state Kind) *zap.Logger {
	return c.Logger.With(
		zap.String("state", string(state)),
		zap.String("conversation_id", c.ConversationID),
	)
}
