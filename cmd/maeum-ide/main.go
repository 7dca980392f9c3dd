package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/maeum-labs/maeum-ide/internal/config"
	"github.com/maeum-labs/maeum-ide/internal/index"
	"github.com/maeum-labs/maeum-ide/internal/logging"
	"github.com/maeum-labs/maeum-ide/internal/permission"
	"github.com/maeum-labs/maeum-ide/internal/session"
	"github.com/maeum-labs/maeum-ide/internal/tool"
	"github.com/maeum-labs/maeum-ide/internal/transport"
	"github.com/maeum-labs/maeum-ide/internal/txn"
	"github.com/maeum-labs/maeum-ide/internal/wsapi"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "maeum-ide",
		Short: "maeum-ide is a local AI coding assistant with a web IDE front end",
		Long: `maeum-ide runs an agentic coding assistant against a local workspace,
exposing it through a REST + WebSocket API that a web-based IDE connects to.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd(), versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [workspace-path]",
		Short: "Start the web IDE server for a workspace",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workspaceRoot := "."
			if len(args) == 1 {
				workspaceRoot = args[0]
			}
			abs, err := filepath.Abs(workspaceRoot)
			if err != nil {
				return fmt.Errorf("resolve workspace path: %w", err)
			}
			if info, err := os.Stat(abs); err != nil || !info.IsDir() {
				return fmt.Errorf("workspace path is not a directory: %s", abs)
			}

			cfg, err := config.Load(abs)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if host, _ := cmd.Flags().GetString("host"); host != "" {
				cfg.Server.Host = host
			}
			if port, _ := cmd.Flags().GetInt("port"); port != 0 {
				cfg.Server.Port = port
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			log, err := logging.New(logging.Config{Level: cfg.LogLevel})
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}
			defer log.Sync()

			return runServer(cfg, log)
		},
	}
	cmd.Flags().String("host", "", "host to bind (overrides config)")
	cmd.Flags().IntP("port", "P", 0, "port to listen on (overrides config)")
	return cmd
}

func runServer(cfg *config.Config, log *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	idx, err := index.New(ctx, index.Config{
		Root:          cfg.Workspace.Root,
		WorkerPoolMax: cfg.Index.WorkerPoolMax,
		CacheSize:     cfg.Index.CacheSize,
	}, log)
	if err != nil {
		return fmt.Errorf("build workspace index: %w", err)
	}

	txnMgr := txn.New(cfg.Workspace.Root)

	sessionDir := filepath.Join(cfg.Workspace.Root, ".maeum-ide-sessions")
	store, err := session.NewStore(sessionDir)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}

	perm, err := permission.NewEngine(&cfg.Permission)
	if err != nil {
		return fmt.Errorf("build permission engine: %w", err)
	}

	client := transport.NewSmartClient(transport.Config{
		BaseURL:              cfg.Transport.BaseURL,
		StreamConnectTimeout: cfg.Transport.StreamConnectTimeout,
		StreamIdleTimeout:    cfg.Transport.StreamIdleTimeout,
		MaxRetryAttempts:     cfg.Transport.MaxRetryAttempts,
	}, log)

	srv := wsapi.New(wsapi.Deps{
		Config:     cfg,
		Index:      idx,
		Txn:        txnMgr,
		Registry:   tool.GetRegistry(),
		Store:      store,
		Permission: perm,
		Transport:  client,
		Log:        log,
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutting down maeum-ide server")
		if err := srv.Stop(); err != nil {
			log.Warn("error during shutdown", zap.Error(err))
		}
		cancel()
	}()

	if err := srv.Start(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the maeum-ide version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(version)
			return nil
		},
	}
}
