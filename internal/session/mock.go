package session

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/bizmatters/agent-builder/codegen-orchestrator/internal/models"
	"github.com/bizmatters/agent-builder/codegen-orchestrator/internal/polling"
)

// MockDataDir is the workspace subdirectory read by MockCodeGen.
const MockDataDir = "mock-data"

// MockCodeGen stands in for CodeGen, reading files from the workspace's
// mock-data directory instead of calling the remote service.
type MockCodeGen struct {
	base
}

// NewMockCodeGen creates a mock generation state for approach
func NewMockCodeGen(conv *Conversation, approach string) *MockCodeGen {
	return newMockCodeGen(conv, approach, nil)
}

func newMockCodeGen(conv *Conversation, approach string, token *polling.CancelToken) *MockCodeGen {
	return &MockCodeGen{base: newBase(conv, approach, token)}
}

func (m *MockCodeGen) Kind() Kind { return KindMockCodeGen }

// Interact materializes the mock files and moves to CodeGenIteration. A missing
// or unreadable directory yields an empty file set.
func (m *MockCodeGen) Interact(ctx context.Context, action Action) Result {
	logger := m.conv.log(KindMockCodeGen)

	files, err := ReadMockData(m.conv.WorkspaceRoot)
	if err != nil {
		logger.Warn("mock data unavailable", zap.Error(err))
		return Result{Next: NewCodeGenIteration(m.conv, m.approach, nil)}
	}

	logger.Info("mock data loaded", zap.Int("files", len(files)))
	return Result{
		Next:         NewCodeGenIteration(m.conv, m.approach, files),
		Interactions: Materialize(action.FS, files, logger),
	}
}

// ReadMockData returns every regular file under <root>/mock-data, with paths
// relative to that directory, in lexical walk order.
func ReadMockData(root string) ([]models.File, error) {
	dir := filepath.Join(root, MockDataDir)
	fsys := os.DirFS(dir)

	files := []models.File{}
	err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		content, err := fs.ReadFile(fsys, path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		files = append(files, models.File{Path: path, Content: string(content)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read mock data in %s: %w", dir, err)
	}

	return files, nil
}
