package root

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/docker/ramcp/pkg/config"
	"github.com/docker/ramcp/pkg/lsp"
	"github.com/docker/ramcp/pkg/mcpserver"
	"github.com/docker/ramcp/pkg/tools/analyzer"
)

type serveFlags struct {
	configPath      string
	listenAddr      string
	analyzerCommand string
}

func newServeCmd() *cobra.Command {
	var flags serveFlags

	cmd := &cobra.Command{
		Use:   "serve [workspace-root]",
		Short: "Serve rust-analyzer tools over MCP",
		Long: `Start rust-analyzer for the given workspace and expose its code
intelligence as MCP tools on stdio, or on HTTP with --http.`,
		Args: cobra.MaximumNArgs(1),
		RunE: flags.runServeCommand,
	}

	cmd.Flags().StringVarP(&flags.configPath, "config", "c", "", "Path to a YAML config file")
	cmd.Flags().StringVar(&flags.listenAddr, "http", "", "Serve streamable HTTP on this address instead of stdio")
	cmd.Flags().StringVar(&flags.analyzerCommand, "analyzer", "", "Path to the rust-analyzer binary (overrides config)")

	return cmd
}

func (f *serveFlags) runServeCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := slog.Default()

	root, err := resolveWorkspaceRoot(args)
	if err != nil {
		return err
	}

	cfg := config.Default()
	if f.configPath != "" {
		if cfg, err = config.Load(f.configPath); err != nil {
			return err
		}
	}
	if f.analyzerCommand != "" {
		cfg.Analyzer.Command = f.analyzerCommand
	}

	logger.Info("starting analyzer", "command", cfg.Analyzer.Command, "workspace", root)

	client, err := lsp.NewClient(ctx, lsp.Config{
		Command:               cfg.Analyzer.Command,
		Args:                  cfg.Analyzer.Args,
		Env:                   cfg.Analyzer.Env,
		WorkspaceRoot:         root,
		InitializationOptions: cfg.Analyzer.InitializationOptions,
		StartupTimeout:        cfg.Timeouts.Startup,
		WatchFiles:            *cfg.WatchFiles,
		Logger:                logger,
	})
	if err != nil {
		return RuntimeError{Err: err}
	}
	defer func() {
		if err := client.Close(cmd.Context()); err != nil {
			logger.Error("closing analyzer", "error", err)
		}
	}()

	toolset := analyzer.New(client,
		analyzer.WithInteractiveTimeout(cfg.Timeouts.Interactive),
		analyzer.WithWorkspaceTimeout(cfg.Timeouts.Workspace),
		analyzer.WithLogger(logger),
	)
	server := mcpserver.New(toolset, logger)

	if f.listenAddr != "" {
		ln, err := net.Listen("tcp", f.listenAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", f.listenAddr, err)
		}
		fmt.Fprintln(cmd.ErrOrStderr(), "Listening on "+ln.Addr().String())
		if err := mcpserver.RunHTTP(ctx, server, ln); err != nil {
			return RuntimeError{Err: err}
		}
		return nil
	}

	if err := mcpserver.RunStdio(ctx, server); err != nil {
		return RuntimeError{Err: err}
	}
	return nil
}

func resolveWorkspaceRoot(args []string) (string, error) {
	root := "."
	if len(args) == 1 {
		root = args[0]
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolving workspace root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("workspace root: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("workspace root %s is not a directory", abs)
	}
	return abs, nil
}
