package session

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/bizmatters/agent-builder/codegen-orchestrator/internal/models"
	"github.com/bizmatters/agent-builder/codegen-orchestrator/internal/orchestration"
)

// Refinement is the initial state: it asks for a first approach to the task.
type Refinement struct {
	base
}

// NewRefinement starts a conversation
func NewRefinement(conv *Conversation) *Refinement {
	return &Refinement{base: newBase(conv, "", nil)}
}

func (r *Refinement) Kind() Kind { return KindRefinement }

// Interact generates the first approach and moves to RefinementIteration. If the
// remote call fails the state is retried on the next turn.
func (r *Refinement) Interact(ctx context.Context, action Action) Result {
	logger := r.conv.log(KindRefinement)

	resp, err := orchestration.GenerateApproach(ctx, r.conv.Invoker, r.conv.Endpoints.Approach.Generate, orchestration.ApproachGenerateRequest{
		Task:   action.Task,
		Files:  action.Files,
		Config: r.conv.Params,
	})
	if err != nil {
		logger.Error("approach generation failed", zap.Error(err))
		return Result{
			Next:         NewRefinement(r.conv),
			Interactions: []models.Interaction{approachMessage("")},
		}
	}

	conv := r.conv.WithConversationID(resp.ConversationID)
	logger.Info("approach generated",
		zap.String("conversation_id", conv.ConversationID),
		zap.Int("approach_len", len(resp.Approach)),
	)

	return Result{
		Next:         NewRefinementIteration(conv, resp.Approach),
		Interactions: []models.Interaction{approachMessage(resp.Approach)},
	}
}

// RefinementIteration lets the user refine the approach until a directive
// hands the turn to code generation.
type RefinementIteration struct {
	base
}

// NewRefinementIteration creates a refinement loop state holding approach
func NewRefinementIteration(conv *Conversation, approach string) *RefinementIteration {
	return &RefinementIteration{base: newBase(conv, approach, nil)}
}

func (r *RefinementIteration) Kind() Kind { return KindRefinementIteration }

// Interact delegates to CodeGen or MockCodeGen when the message carries a
// directive, otherwise iterates the approach. The delegate shares this state's
// cancel token so cancelling the current state also stops its polling.
func (r *RefinementIteration) Interact(ctx context.Context, action Action) Result {
	switch {
	case strings.Contains(action.Message, WriteCodeDirective):
		return newCodeGen(r.conv, r.approach, r.token).Interact(ctx, action)
	case strings.Contains(action.Message, MockCodeDirective):
		return newMockCodeGen(r.conv, r.approach, r.token).Interact(ctx, action)
	}

	logger := r.conv.log(KindRefinementIteration)

	resp, err := orchestration.IterateApproach(ctx, r.conv.Invoker, r.conv.Endpoints.Approach.Iterate, orchestration.ApproachIterateRequest{
		Task:           action.Task,
		Files:          action.Files,
		Approach:       r.approach,
		Message:        action.Message,
		ConversationID: r.conv.ConversationID,
		Config:         r.conv.Params,
	})
	if err != nil {
		logger.Error("approach iteration failed", zap.Error(err))
		return Result{
			Next:         NewRefinementIteration(r.conv, r.approach),
			Interactions: []models.Interaction{approachMessage("")},
		}
	}

	approach := resp.Approach
	if approach == "" {
		logger.Warn("approach iteration returned no approach, keeping previous")
		approach = r.approach
	}

	return Result{
		Next:         NewRefinementIteration(r.conv, approach),
		Interactions: []models.Interaction{approachMessage(resp.Approach)},
	}
}

func approachMessage(approach string) models.Interaction {
	if approach == "" {
		approach = FallbackApproach
	}
	return models.AIMessage(approach + "\n")
}
