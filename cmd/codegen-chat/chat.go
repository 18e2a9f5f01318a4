package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/bizmatters/agent-builder/codegen-orchestrator/internal/models"
	"github.com/bizmatters/agent-builder/codegen-orchestrator/internal/session"
	"github.com/bizmatters/agent-builder/codegen-orchestrator/internal/vfs"
)

const maxSnapshotFileSize = 1 << 20

const quitCommand = "/quit"

// chat runs a session one stdin line at a time.
type chat struct {
	state    session.State
	task     string
	files    []models.File
	registry *vfs.Registry
	out      io.Writer
}

func newChat(conv *session.Conversation, task string, files []models.File, out io.Writer) *chat {
	return &chat{
		state:    session.NewRefinement(conv),
		task:     task,
		files:    files,
		registry: vfs.NewRegistry(),
		out:      out,
	}
}

// Run starts refinement with the task, then feeds each input line to the
// current state until input ends, /quit is read, or ctx is cancelled.
func (c *chat) Run(ctx context.Context, in io.Reader) {
	c.turn(ctx, "")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		c.prompt()
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			line = strings.TrimSpace(line)
			switch line {
			case "":
				continue
			case quitCommand:
				return
			}
			c.turn(ctx, line)
		}
	}
}

func (c *chat) turn(ctx context.Context, message string) {
	state := c.state

	// Ctrl-C while a turn is polling stops it at the next attempt.
	stop := context.AfterFunc(ctx, state.Cancel)
	defer stop()

	result := state.Interact(ctx, session.Action{
		Task:    c.task,
		Files:   c.files,
		Message: message,
		Append:  c.render,
		FS:      c.registry,
	})
	for _, i := range result.Interactions {
		c.render(i)
	}
	c.state = result.Next
}

func (c *chat) prompt() {
	fmt.Fprintf(c.out, "[%s] > ", c.state.Kind())
}

func (c *chat) render(i models.Interaction) {
	switch i.Kind {
	case models.KindCodegenSummary:
		for _, p := range i.Paths {
			fmt.Fprintf(c.out, "  %s\n", vfs.URI(p))
		}
	default:
		text := strings.TrimRight(i.Message, "\n")
		fmt.Fprintf(c.out, "%s: %s\n", i.Origin, text)
	}
}

// snapshotWorkspace reads the workspace's text files. Hidden entries, the
// mock-data directory and files over 1 MiB or not valid UTF-8 are skipped.
func snapshotWorkspace(root string) ([]models.File, error) {
	fsys := os.DirFS(root)
	files := []models.File{}

	err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == "." {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") || path == session.MockDataDir {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil || info.Size() > maxSnapshotFileSize {
			return nil
		}
		content, err := fs.ReadFile(fsys, path)
		if err != nil || !utf8.Valid(content) {
			return nil
		}
		files = append(files, models.File{Path: path, Content: string(content)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read workspace %s: %w", root, err)
	}
	return files, nil
}

// dump writes every registered file under dir and returns how many were written.
func dump(registry *vfs.Registry, dir string) (int, error) {
	written := 0
	for _, uri := range registry.List() {
		path, err := vfs.PathOf(uri)
		if err != nil {
			return written, err
		}
		if !filepath.IsLocal(path) {
			return written, fmt.Errorf("refusing to write %s outside %s", path, dir)
		}

		content, _ := registry.Read(uri)
		target := filepath.Join(dir, filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return written, fmt.Errorf("failed to create directory for %s: %w", path, err)
		}
		if err := os.WriteFile(target, content, 0o644); err != nil {
			return written, fmt.Errorf("failed to write %s: %w", path, err)
		}
		written++
	}
	return written, nil
}
