package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/bizmatters/agent-builder/codegen-orchestrator/internal/config"
	"github.com/bizmatters/agent-builder/codegen-orchestrator/internal/models"
	"github.com/bizmatters/agent-builder/codegen-orchestrator/internal/polling"
	"github.com/bizmatters/agent-builder/codegen-orchestrator/internal/vfs"
)

var errTransport = errors.New("connection refused")

type invocation struct {
	FunctionID string
	Request    json.RawMessage
}

// fakeInvoker answers each function id with a scripted handler.
type fakeInvoker struct {
	mu       sync.Mutex
	handlers map[string]func(req json.RawMessage) (interface{}, error)
	calls    []invocation
}

func newFakeInvoker() *fakeInvoker {
	return &fakeInvoker{handlers: map[string]func(json.RawMessage) (interface{}, error){}}
}

func (f *fakeInvoker) on(functionID string, handler func(req json.RawMessage) (interface{}, error)) {
	f.handlers[functionID] = handler
}

func (f *fakeInvoker) reply(functionID string, response interface{}) {
	f.on(functionID, func(json.RawMessage) (interface{}, error) { return response, nil })
}

func (f *fakeInvoker) fail(functionID string, err error) {
	f.on(functionID, func(json.RawMessage) (interface{}, error) { return nil, err })
}

func (f *fakeInvoker) Invoke(ctx context.Context, functionID string, request, response interface{}) error {
	raw, err := json.Marshal(request)
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.calls = append(f.calls, invocation{FunctionID: functionID, Request: raw})
	handler, ok := f.handlers[functionID]
	f.mu.Unlock()

	if !ok {
		return errors.New("unexpected function " + functionID)
	}
	out, err := handler(raw)
	if err != nil {
		return err
	}
	body, err := json.Marshal(out)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, response)
}

func (f *fakeInvoker) callsTo(functionID string) []invocation {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []invocation
	for _, c := range f.calls {
		if c.FunctionID == functionID {
			out = append(out, c)
		}
	}
	return out
}

type testEnv struct {
	inv       *fakeInvoker
	conv      *Conversation
	registry  *vfs.Registry
	appended  []models.Interaction
	endpoints config.Endpoints
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	endpoints := config.DefaultEndpoints()
	inv := newFakeInvoker()
	logger := zaptest.NewLogger(t)

	poller := polling.New(3, time.Second, logger)
	poller.Delay = func(context.Context, time.Duration, <-chan struct{}) {}

	env := &testEnv{
		inv:       inv,
		registry:  vfs.NewRegistry(),
		endpoints: endpoints,
	}
	env.conv = NewConversation(Conversation{
		Invoker:       inv,
		Params:        config.GenerationParams{ModelID: "test-model", Temperature: 0.2, MaxTokens: 1024, IterationLimit: 3, Flow: "default"},
		WorkspaceRoot: t.TempDir(),
		Endpoints:     endpoints,
		Poller:        poller,
		Logger:        logger,
	})
	return env
}

func (e *testEnv) action(task, message string, files ...models.File) Action {
	return Action{
		Task:    task,
		Files:   files,
		Message: message,
		Append:  func(i models.Interaction) { e.appended = append(e.appended, i) },
		FS:      e.registry,
	}
}

func (e *testEnv) readFile(t *testing.T, path string) string {
	t.Helper()
	content, ok := e.registry.Read(vfs.URI(path))
	require.True(t, ok, "expected %s to be registered", path)
	return string(content)
}

func decode(t *testing.T, raw json.RawMessage, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(raw, v))
}

func ready(files ...models.File) polling.Result {
	if files == nil {
		files = []models.File{}
	}
	return polling.Result{Status: polling.StatusReady, Files: files}
}
