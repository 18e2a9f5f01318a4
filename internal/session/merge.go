package session

import "github.com/bizmatters/agent-builder/codegen-orchestrator/internal/models"

// MergeFiles overlays generated on original by path. The result lists the
// generated files in their order, then each original whose path no generated
// file shares, in original order.
func MergeFiles(original, generated []models.File) []models.File {
	merged := make([]models.File, 0, len(original)+len(generated))
	seen := make(map[string]struct{}, len(original)+len(generated))

	for _, f := range generated {
		if _, dup := seen[f.Path]; dup {
			continue
		}
		seen[f.Path] = struct{}{}
		merged = append(merged, f)
	}

	for _, f := range original {
		if _, dup := seen[f.Path]; dup {
			continue
		}
		seen[f.Path] = struct{}{}
		merged = append(merged, f)
	}

	return merged
}
