package session

import (
	"context"

	"github.com/bizmatters/agent-builder/codegen-orchestrator/internal/models"
	"github.com/bizmatters/agent-builder/codegen-orchestrator/internal/polling"
	"github.com/bizmatters/agent-builder/codegen-orchestrator/internal/vfs"
)

// Kind names a state variant
type Kind string

const (
	KindRefinement          Kind = "refinement"
	KindRefinementIteration Kind = "refinement-iteration"
	KindCodeGen             Kind = "codegen"
	KindMockCodeGen         Kind = "mock-codegen"
	KindCodeGenIteration    Kind = "codegen-iteration"
)

// Directives recognized in a refinement message. Matching is a case-sensitive substring test.
const (
	WriteCodeDirective = "WRITE CODE"
	MockCodeDirective  = "MOCK CODE"
)

// Chat texts emitted by the states
const (
	FallbackApproach         = "There has been a problem generating an approach. Please try again."
	MessageGenerationStarted = "Code generation started\n"
	MessageGenerationBlocked = "Code generation could not be started."
	MessageChangesReady      = "Changes to files done. Please review:"
)

// Action is everything one user turn hands to a state.
type Action struct {
	Task    string
	Files   []models.File
	Message string
	// Append pushes an interaction to the visible conversation immediately,
	// ahead of the interactions returned in Result.
	Append func(models.Interaction)
	FS     vfs.Registrar
}

func (a Action) append(i models.Interaction) {
	if a.Append != nil {
		a.Append(i)
	}
}

// Result is the outcome of one Interact call.
type Result struct {
	Next         State
	Interactions []models.Interaction
}

// State is one step of the conversation. Interact never fails: every error is
// logged or rendered as chat and a usable next state is always returned.
type State interface {
	Interact(ctx context.Context, action Action) Result
	Kind() Kind
	Approach() string
	Conversation() *Conversation
	// Cancel stops any polling this state is doing at the next attempt boundary.
	Cancel()
}

type base struct {
	conv     *Conversation
	approach string
	token    *polling.CancelToken
}

func newBase(conv *Conversation, approach string, token *polling.CancelToken) base {
	if token == nil {
		token = polling.NewCancelToken()
	}
	return base{conv: conv, approach: approach, token: token}
}

func (b *base) Approach() string            { return b.approach }
func (b *base) Conversation() *Conversation { return b.conv }
func (b *base) Cancel()                     { b.token.Cancel() }
