package models

// File is one entry of a FileSnapshot: a workspace-relative path and its text content.
type File struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Paths returns the paths of files in order.
func Paths(files []File) []string {
	paths := make([]string, 0, len(files))
	for _, f := range files {
		paths = append(paths, f.Path)
	}
	return paths
}

// CloneFiles copies a snapshot so later appends by the caller cannot alias it.
func CloneFiles(files []File) []File {
	if files == nil {
		return nil
	}
	out := make([]File, len(files))
	copy(out, files)
	return out
}
