package session

import (
	"errors"

	"go.uber.org/zap"

	"github.com/bizmatters/agent-builder/codegen-orchestrator/internal/models"
	"github.com/bizmatters/agent-builder/codegen-orchestrator/internal/vfs"
)

var errNoRegistry = errors.New("no virtual filesystem registry")

// Materialize registers each file at its codegen: URI and returns a confirmation
// message followed by a summary of the registered paths. Registration is
// per-file: a failed entry is logged and left out of the summary, and entries
// already registered are not rolled back.
func Materialize(registry vfs.Registrar, files []models.File, logger *zap.Logger) []models.Interaction {
	paths := make([]string, 0, len(files))

	for _, f := range files {
		uri := vfs.URI(f.Path)

		err := errNoRegistry
		if registry != nil {
			err = registry.Register(uri, []byte(f.Content))
		}
		if err != nil {
			logger.Error("failed to register generated file", zap.String("uri", uri), zap.Error(err))
			continue
		}
		paths = append(paths, f.Path)
	}

	return []models.Interaction{
		models.AIMessage(MessageChangesReady),
		models.CodegenSummary(paths),
	}
}
