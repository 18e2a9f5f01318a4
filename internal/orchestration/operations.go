package orchestration

import (
	"context"

	"github.com/bizmatters/agent-builder/codegen-orchestrator/internal/config"
	"github.com/bizmatters/agent-builder/codegen-orchestrator/internal/models"
	"github.com/bizmatters/agent-builder/codegen-orchestrator/internal/polling"
)

// ApproachGenerateRequest starts a conversation from a task description.
type ApproachGenerateRequest struct {
	Task   string                  `json:"task"`
	Files  []models.File           `json:"files"`
	Config config.GenerationParams `json:"config"`
}

// ApproachGenerateResponse carries the first approach and the new conversation id.
type ApproachGenerateResponse struct {
	Approach       string `json:"approach"`
	ConversationID string `json:"conversationId"`
}

// ApproachIterateRequest refines an approach with a user message.
type ApproachIterateRequest struct {
	Task           string                  `json:"task"`
	Files          []models.File           `json:"files"`
	Approach       string                  `json:"approach"`
	Message        string                  `json:"message"`
	ConversationID string                  `json:"conversationId"`
	Config         config.GenerationParams `json:"config"`
}

// ApproachIterateResponse carries the replacement approach.
type ApproachIterateResponse struct {
	Approach string `json:"approach"`
}

// CodeGenerateRequest starts a code generation for an approach.
type CodeGenerateRequest struct {
	Approach       string                  `json:"approach"`
	Files          []models.File           `json:"files"`
	Message        string                  `json:"message,omitempty"`
	ConversationID string                  `json:"conversationId"`
	Config         config.GenerationParams `json:"config"`
}

// CodeGenerateResponse identifies the started generation.
type CodeGenerateResponse struct {
	GenerationID string `json:"generationId"`
}

// GetCodeGenerationResultRequest queries a generation by id.
type GetCodeGenerationResultRequest struct {
	GenerationID   string `json:"generationId"`
	ConversationID string `json:"conversationId"`
}

// GenerateApproach invokes the approach-generation function.
func GenerateApproach(ctx context.Context, inv Invoker, functionID string, req ApproachGenerateRequest) (*ApproachGenerateResponse, error) {
	var resp ApproachGenerateResponse
	if err := inv.Invoke(ctx, functionID, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// IterateApproach invokes the approach-iteration function.
func IterateApproach(ctx context.Context, inv Invoker, functionID string, req ApproachIterateRequest) (*ApproachIterateResponse, error) {
	var resp ApproachIterateResponse
	if err := inv.Invoke(ctx, functionID, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GenerateCode invokes the code-generation function.
func GenerateCode(ctx context.Context, inv Invoker, functionID string, req CodeGenerateRequest) (*CodeGenerateResponse, error) {
	var resp CodeGenerateResponse
	if err := inv.Invoke(ctx, functionID, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ResultFetcher binds a get-results query for use by the poller.
func ResultFetcher(inv Invoker, functionID string, req GetCodeGenerationResultRequest) polling.FetchFunc {
	return func(ctx context.Context) (polling.Result, error) {
		var result polling.Result
		if err := inv.Invoke(ctx, functionID, req, &result); err != nil {
			return polling.Result{}, err
		}
		return result, nil
	}
}
