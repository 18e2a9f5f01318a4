package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizmatters/agent-builder/codegen-orchestrator/internal/models"
	"github.com/bizmatters/agent-builder/codegen-orchestrator/internal/orchestration"
)

func TestRefinement_Interact(t *testing.T) {
	t.Run("generates approach and moves to iteration", func(t *testing.T) {
		env := newTestEnv(t)
		env.inv.reply(env.endpoints.Approach.Generate, orchestration.ApproachGenerateResponse{
			Approach:       "Add a <button> to index.html",
			ConversationID: "conv-1",
		})

		state := NewRefinement(env.conv)
		result := state.Interact(context.Background(), env.action("add a button", "", models.File{Path: "index.html", Content: "<html></html>"}))

		next, ok := result.Next.(*RefinementIteration)
		require.True(t, ok, "expected RefinementIteration, got %T", result.Next)
		assert.Equal(t, "Add a <button> to index.html", next.Approach())
		assert.Equal(t, "conv-1", next.Conversation().ConversationID)
		assert.Equal(t, []models.Interaction{models.AIMessage("Add a <button> to index.html\n")}, result.Interactions)

		// the original context is left untouched
		assert.Empty(t, env.conv.ConversationID)

		calls := env.inv.callsTo(env.endpoints.Approach.Generate)
		require.Len(t, calls, 1)
		var req orchestration.ApproachGenerateRequest
		decode(t, calls[0].Request, &req)
		assert.Equal(t, "add a button", req.Task)
		assert.Equal(t, []models.File{{Path: "index.html", Content: "<html></html>"}}, req.Files)
		assert.Equal(t, "test-model", req.Config.ModelID)
	})

	t.Run("empty approach uses fallback text", func(t *testing.T) {
		env := newTestEnv(t)
		env.inv.reply(env.endpoints.Approach.Generate, orchestration.ApproachGenerateResponse{ConversationID: "conv-1"})

		result := NewRefinement(env.conv).Interact(context.Background(), env.action("task", ""))

		assert.Equal(t, KindRefinementIteration, result.Next.Kind())
		assert.Equal(t, []models.Interaction{models.AIMessage(FallbackApproach + "\n")}, result.Interactions)
	})

	t.Run("transport failure stays in refinement", func(t *testing.T) {
		env := newTestEnv(t)
		env.inv.fail(env.endpoints.Approach.Generate, errTransport)

		result := NewRefinement(env.conv).Interact(context.Background(), env.action("task", ""))

		assert.Equal(t, KindRefinement, result.Next.Kind())
		assert.Equal(t, []models.Interaction{models.AIMessage(FallbackApproach + "\n")}, result.Interactions)
	})
}

func TestRefinementIteration_Interact(t *testing.T) {
	t.Run("iterates the approach", func(t *testing.T) {
		env := newTestEnv(t)
		conv := env.conv.WithConversationID("conv-1")
		env.inv.reply(env.endpoints.Approach.Iterate, orchestration.ApproachIterateResponse{Approach: "Use a blue button"})

		result := NewRefinementIteration(conv, "Add a button").Interact(context.Background(), env.action("task", "make it blue"))

		next, ok := result.Next.(*RefinementIteration)
		require.True(t, ok)
		assert.Equal(t, "Use a blue button", next.Approach())
		assert.Equal(t, []models.Interaction{models.AIMessage("Use a blue button\n")}, result.Interactions)

		calls := env.inv.callsTo(env.endpoints.Approach.Iterate)
		require.Len(t, calls, 1)
		var req orchestration.ApproachIterateRequest
		decode(t, calls[0].Request, &req)
		assert.Equal(t, "Add a button", req.Approach)
		assert.Equal(t, "make it blue", req.Message)
		assert.Equal(t, "conv-1", req.ConversationID)
	})

	t.Run("empty reply keeps previous approach", func(t *testing.T) {
		env := newTestEnv(t)
		env.inv.reply(env.endpoints.Approach.Iterate, orchestration.ApproachIterateResponse{})

		result := NewRefinementIteration(env.conv, "Add a button").Interact(context.Background(), env.action("task", "hmm"))

		assert.Equal(t, "Add a button", result.Next.Approach())
		assert.Equal(t, []models.Interaction{models.AIMessage(FallbackApproach + "\n")}, result.Interactions)
	})

	t.Run("transport failure keeps previous approach", func(t *testing.T) {
		env := newTestEnv(t)
		env.inv.fail(env.endpoints.Approach.Iterate, errTransport)

		result := NewRefinementIteration(env.conv, "Add a button").Interact(context.Background(), env.action("task", "hmm"))

		assert.Equal(t, KindRefinementIteration, result.Next.Kind())
		assert.Equal(t, "Add a button", result.Next.Approach())
	})
}

func TestRefinementIteration_Directives(t *testing.T) {
	tests := []struct {
		name     string
		message  string
		wantKind Kind
		wantCall string
	}{
		{name: "write code directive", message: "please WRITE CODE now", wantKind: KindCodeGenIteration, wantCall: "generate"},
		{name: "lowercase is not a directive", message: "write code", wantKind: KindRefinementIteration, wantCall: "iterate"},
		{name: "mock code directive", message: "MOCK CODE", wantKind: KindCodeGenIteration},
		{name: "mixed case is not a directive", message: "Write Code please", wantKind: KindRefinementIteration, wantCall: "iterate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.inv.reply(env.endpoints.Approach.Iterate, orchestration.ApproachIterateResponse{Approach: "next"})
			env.inv.reply(env.endpoints.Codegen.Generate, orchestration.CodeGenerateResponse{GenerationID: "gen-1"})
			env.inv.reply(env.endpoints.Codegen.GetResults, ready())

			result := NewRefinementIteration(env.conv, "approach").Interact(context.Background(), env.action("task", tt.message))

			assert.Equal(t, tt.wantKind, result.Next.Kind())
			switch tt.wantCall {
			case "generate":
				assert.Len(t, env.inv.callsTo(env.endpoints.Codegen.Generate), 1)
				assert.Empty(t, env.inv.callsTo(env.endpoints.Approach.Iterate))
			case "iterate":
				assert.Len(t, env.inv.callsTo(env.endpoints.Approach.Iterate), 1)
				assert.Empty(t, env.inv.callsTo(env.endpoints.Codegen.Generate))
			default:
				assert.Empty(t, env.inv.calls)
			}
		})
	}
}

func TestRefinementIteration_DelegateSharesCancelToken(t *testing.T) {
	env := newTestEnv(t)
	env.inv.reply(env.endpoints.Codegen.Generate, orchestration.CodeGenerateResponse{GenerationID: "gen-1"})
	env.inv.reply(env.endpoints.Codegen.GetResults, ready(models.File{Path: "a.txt", Content: "1"}))

	state := NewRefinementIteration(env.conv, "approach")
	state.Cancel()

	result := state.Interact(context.Background(), env.action("task", "WRITE CODE"))

	next := result.Next.(*CodeGenIteration)
	assert.Empty(t, next.Files())
	assert.Empty(t, env.inv.callsTo(env.endpoints.Codegen.GetResults))
}

func TestConversation_WithConversationID(t *testing.T) {
	env := newTestEnv(t)

	first := env.conv.WithConversationID("conv-1")
	assert.NotSame(t, env.conv, first)
	assert.Equal(t, "conv-1", first.ConversationID)

	second := first.WithConversationID("conv-2")
	assert.Same(t, first, second)
	assert.Equal(t, "conv-1", second.ConversationID)
}
