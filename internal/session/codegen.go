package session

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/bizmatters/agent-builder/codegen-orchestrator/internal/metrics"
	"github.com/bizmatters/agent-builder/codegen-orchestrator/internal/models"
	"github.com/bizmatters/agent-builder/codegen-orchestrator/internal/orchestration"
	"github.com/bizmatters/agent-builder/codegen-orchestrator/internal/polling"
)

// CodeGen generates code for the agreed approach and hands the result to CodeGenIteration.
type CodeGen struct {
	base
}

// NewCodeGen creates a code generation state for approach
func NewCodeGen(conv *Conversation, approach string) *CodeGen {
	return newCodeGen(conv, approach, nil)
}

func newCodeGen(conv *Conversation, approach string, token *polling.CancelToken) *CodeGen {
	return &CodeGen{base: newBase(conv, approach, token)}
}

func (c *CodeGen) Kind() Kind { return KindCodeGen }

// Interact starts a generation, polls it and materializes the files. Any
// failure still moves on to CodeGenIteration, with an empty file set.
func (c *CodeGen) Interact(ctx context.Context, action Action) Result {
	files, ok := generate(ctx, c.conv, c.token, KindCodeGen, action, orchestration.CodeGenerateRequest{
		Approach:       c.approach,
		Files:          action.Files,
		ConversationID: c.conv.ConversationID,
		Config:         c.conv.Params,
	})

	var interactions []models.Interaction
	if ok {
		interactions = Materialize(action.FS, files, c.conv.log(KindCodeGen))
	}

	return Result{
		Next:         NewCodeGenIteration(c.conv, c.approach, files),
		Interactions: interactions,
	}
}

// CodeGenIteration regenerates code on every turn, feeding back the files it
// produced last time. It is the only state that returns itself.
type CodeGenIteration struct {
	base
	files []models.File
}

// NewCodeGenIteration creates an iteration state holding generated files
func NewCodeGenIteration(conv *Conversation, approach string, files []models.File) *CodeGenIteration {
	if files == nil {
		files = []models.File{}
	}
	return &CodeGenIteration{base: newBase(conv, approach, nil), files: files}
}

func (c *CodeGenIteration) Kind() Kind { return KindCodeGenIteration }

// Files returns the file set produced by the latest generation.
func (c *CodeGenIteration) Files() []models.File {
	return models.CloneFiles(c.files)
}

// Interact merges the held files over the action's snapshot, regenerates,
// and replaces the held set with the new result.
func (c *CodeGenIteration) Interact(ctx context.Context, action Action) Result {
	merged := MergeFiles(action.Files, c.files)

	files, ok := generate(ctx, c.conv, c.token, KindCodeGenIteration, action, orchestration.CodeGenerateRequest{
		Approach:       c.approach,
		Files:          merged,
		Message:        action.Message,
		ConversationID: c.conv.ConversationID,
		Config:         c.conv.Params,
	})

	var interactions []models.Interaction
	if ok {
		interactions = Materialize(action.FS, files, c.conv.log(KindCodeGenIteration))
	}

	c.files = files
	return Result{Next: c, Interactions: interactions}
}

// generate runs one generate-then-poll cycle. It reports ok=false, with an
// empty file set, when the initiating call fails or polling does not reach ready.
func generate(ctx context.Context, conv *Conversation, token *polling.CancelToken, kind Kind, action Action, req orchestration.CodeGenerateRequest) ([]models.File, bool) {
	logger := conv.log(kind)
	start := time.Now()
	conv.Metrics.RecordGenerationStarted(ctx, string(kind))

	resp, err := orchestration.GenerateCode(ctx, conv.Invoker, conv.Endpoints.Codegen.Generate, req)
	if err != nil {
		logger.Error("code generation request failed", zap.Error(err))
		conv.Metrics.RecordGenerationFailed(ctx, string(kind), metrics.OutcomeTransport, time.Since(start))
		action.append(models.AIMessage(MessageGenerationBlocked))
		return []models.File{}, false
	}

	logger = logger.With(zap.String("generation_id", resp.GenerationID))
	logger.Info("code generation started", zap.Int("files", len(req.Files)))
	action.append(models.AIMessage(MessageGenerationStarted))

	fetch := orchestration.ResultFetcher(conv.Invoker, conv.Endpoints.Codegen.GetResults, orchestration.GetCodeGenerationResultRequest{
		GenerationID:   resp.GenerationID,
		ConversationID: conv.ConversationID,
	})

	files, err := conv.Poller.PollUntilDone(ctx, fetch, token, func(message string) {
		action.append(models.AIMessage(message))
	})
	if err != nil {
		logger.Warn("code generation produced no files", zap.Error(err))
		conv.Metrics.RecordGenerationFailed(ctx, string(kind), outcomeOf(err), time.Since(start))
		return []models.File{}, false
	}

	logger.Info("code generation ready", zap.Int("files", len(files)), zap.Duration("elapsed", time.Since(start)))
	conv.Metrics.RecordGenerationCompleted(ctx, string(kind), len(files), time.Since(start))
	return files, true
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, polling.ErrTimeout):
		return metrics.OutcomeTimeout
	case errors.Is(err, polling.ErrCancelled):
		return metrics.OutcomeCancelled
	case errors.Is(err, polling.ErrFetch):
		return metrics.OutcomeTransport
	default:
		return metrics.OutcomeFailed
	}
}
