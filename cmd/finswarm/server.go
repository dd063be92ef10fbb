package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/bhairavmehta/financial-ai-swarm/internal/api"
	"github.com/bhairavmehta/financial-ai-swarm/internal/compliance"
	"github.com/bhairavmehta/financial-ai-swarm/internal/config"
	"github.com/bhairavmehta/financial-ai-swarm/internal/document"
	"github.com/bhairavmehta/financial-ai-swarm/internal/fraud"
	"github.com/bhairavmehta/financial-ai-swarm/internal/learning"
	"github.com/bhairavmehta/financial-ai-swarm/internal/orchestrator"
	"github.com/bhairavmehta/financial-ai-swarm/internal/spend"
	"github.com/bhairavmehta/financial-ai-swarm/internal/storage"
	"github.com/bhairavmehta/financial-ai-swarm/internal/vendor"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the finswarm server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running finswarm server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show finswarm system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "finswarm.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "finswarm version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	if cfg.Auth.Token == "" {
		printWarning("FINSWARM_AUTH_TOKEN not set, API runs without authentication")
	}

	// Write PID file. Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("finswarm is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("finswarm is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open storage.
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// Learning store owns the threshold configuration.
	learner, err := learning.NewStore(store, cfg.Learning.MinSupport)
	if err != nil {
		return fmt.Errorf("opening learning store: %w", err)
	}
	slog.Info("thresholds loaded", "version", learner.Current().Version)

	// Build the collaborators and the supervisor.
	collab := orchestrator.Collaborators{
		Fraud:      fraud.NewScorer(learner),
		Compliance: compliance.NewChecker(compliance.DefaultList()),
		Spend:      spend.NewAnalyzer(learner, nil),
		Vendor:     vendor.NewAnalyzer(learner),
		Document:   document.NewExtractor(),
	}
	supervisor := orchestrator.NewSupervisor(collab, learner, orchestrator.Options{
		Timeout:  cfg.CollaboratorTimeout(),
		Recorder: learning.NewRecorder(store),
	})

	// Periodic threshold tuner.
	tuner := learning.NewTuner(learner, cfg.Learning.TuneSchedule)
	if err := tuner.Start(); err != nil {
		return fmt.Errorf("starting tuner: %w", err)
	}
	defer tuner.Stop()

	// Build HTTP handler and server.
	handler := api.NewAppHandler(api.AppDeps{
		Pipeline: supervisor,
		Learning: learner,
		Store:    store,
		Token:    cfg.Auth.Token,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// Build and start MCP server (stdio transport in a goroutine).
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Pipeline: supervisor,
		Learning: learner,
		Store:    store,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "finswarm listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("finswarm is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop finswarm (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to finswarm (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	// Check server health.
	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	printStatus("Collaborator timeout", "%s", cfg.Pipeline.CollaboratorTimeout)
	printStatus("Tune schedule", "%s", cfg.Learning.TuneSchedule)
	printStatus("Min support", "%d", cfg.Learning.MinSupport)
	return nil
}
