package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bizmatters/agent-builder/codegen-orchestrator/internal/config"
	"github.com/bizmatters/agent-builder/codegen-orchestrator/internal/logging"
	"github.com/bizmatters/agent-builder/codegen-orchestrator/internal/orchestration"
	"github.com/bizmatters/agent-builder/codegen-orchestrator/internal/polling"
	"github.com/bizmatters/agent-builder/codegen-orchestrator/internal/session"
)

var (
	workspace string
	task      string
	dumpDir   string
	verbose   bool
)

var logger *zap.Logger

var rootCmd = &cobra.Command{
	Use:   "codegen-chat",
	Short: "Drive a code generation session from the terminal",
	Long: `codegen-chat runs one code generation session against the workspace.

The task starts approach refinement. Each following line on stdin is a user
message: refine the approach, or send WRITE CODE (or MOCK CODE to read
<workspace>/mock-data) to generate files. After that every message iterates
on the generated files. End input or type /quit to stop.`,
	Args: cobra.NoArgs,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load(zap.NewNop())
		level := cfg.Log.Level
		if verbose {
			level = "debug"
		} else if level == "info" {
			level = "warn"
		}

		var err error
		logger, err = logging.New(logging.Options{Level: level, FilePath: cfg.Log.FilePath})
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runChat,
}

func init() {
	rootCmd.Flags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: WORKSPACE_ROOT or current)")
	rootCmd.Flags().StringVarP(&task, "task", "t", "", "Task description (required)")
	rootCmd.Flags().StringVar(&dumpDir, "dump", "", "Write generated files to this directory on exit")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	_ = rootCmd.MarkFlagRequired("task")
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load(logger)
	if workspace == "" {
		workspace = cfg.App.WorkspaceRoot
	}

	files, err := snapshotWorkspace(workspace)
	if err != nil {
		return err
	}
	logger.Debug("workspace loaded", zap.String("workspace", workspace), zap.Int("files", len(files)))

	endpoints := config.NewResolver(logger).Endpoints()
	conv := session.NewConversation(session.Conversation{
		Invoker:       orchestration.NewClient(endpoints, logger),
		Params:        cfg.Generation,
		WorkspaceRoot: workspace,
		Endpoints:     endpoints,
		Poller:        polling.New(cfg.Polling.MaxAttempts, cfg.Polling.Interval, logger),
		Logger:        logger,
	})

	chat := newChat(conv, task, files, cmd.OutOrStdout())
	chat.Run(ctx, cmd.InOrStdin())

	if dumpDir != "" {
		n, err := dump(chat.registry, dumpDir)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %d files to %s\n", n, dumpDir)
	}
	return nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
