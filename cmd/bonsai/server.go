package main

import (
	"context"
	"errors"
	"fmt"
	"io"
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

	"github.com/knowledge-bonsai/bonsai/internal/api"
	"github.com/knowledge-bonsai/bonsai/internal/blob"
	"github.com/knowledge-bonsai/bonsai/internal/bonsai"
	"github.com/knowledge-bonsai/bonsai/internal/config"
	"github.com/knowledge-bonsai/bonsai/internal/generate"
	"github.com/knowledge-bonsai/bonsai/internal/prefetch"
	"github.com/knowledge-bonsai/bonsai/internal/proxy"
	"github.com/knowledge-bonsai/bonsai/internal/source"
	"github.com/knowledge-bonsai/bonsai/internal/storage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the bonsai server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running bonsai server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show bonsai server status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "bonsai.pid")
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
	fmt.Fprintf(os.Stderr, "bonsai version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.RequireAPIKey(); err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Refuse to start twice on the same port.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get("http://" + cfg.Server.Addr() + "/health"); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("bonsai is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("bonsai is already running on %s", cfg.Server.Addr())
		return fmt.Errorf("server already running on %s", cfg.Server.Addr())
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	blobs, err := blob.Open(ctx, blob.Config{
		Mode:         blob.Mode(cfg.Blob.Mode),
		Bucket:       cfg.Blob.Bucket,
		ProjectID:    cfg.Blob.ProjectID,
		Dir:          cfg.Blob.Dir,
		EmulatorHost: cfg.Blob.EmulatorHost,
	})
	if err != nil {
		return fmt.Errorf("opening blob store: %w", err)
	}
	if c, ok := blobs.(io.Closer); ok {
		defer c.Close()
	}
	slog.Info("blob store ready", "mode", cfg.Blob.Mode)

	proxyClient := proxy.NewClientWithBaseURL(cfg.Proxy.OpenRouterAPIKey, cfg.Proxy.BaseURL)
	gen := generate.New(proxyClient, cfg.Proxy.DefaultModel)
	svc := bonsai.New(store, blobs, gen,
		bonsai.WithPrefetch(cfg.Prefetch.Enabled),
		bonsai.WithSourceExtractor(&source.Extractor{HTTPClient: &http.Client{Timeout: 15 * time.Second}}),
	)

	if cfg.Prefetch.Enabled {
		worker := prefetch.NewWorker(store, svc, 500*time.Millisecond, cfg.Prefetch.Concurrency)
		go worker.Run(ctx)
		slog.Info("node prefetch worker started", "concurrency", cfg.Prefetch.Concurrency)
	}

	if cfg.MCP.Enabled {
		stdioSrv := server.NewStdioServer(api.NewMCPServer(svc, version))
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	if cfg.Server.APIToken == "" {
		slog.Warn("API token not set, HTTP routes are unauthenticated")
	}
	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           api.NewHandler(api.Deps{Service: svc, Token: cfg.Server.APIToken}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "bonsai listening on %s\n", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

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
		printError("bonsai is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop bonsai (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to bonsai (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	client := &apiClient{
		baseURL:    "http://" + cfg.Server.Addr(),
		token:      cfg.Server.APIToken,
		httpClient: &http.Client{Timeout: 2 * time.Second},
	}

	running := false
	resp, err := client.get(ctx, "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			running = true
			printStatus("Server", "running on %s", cfg.Server.Addr())
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Model", "%s", cfg.Proxy.DefaultModel)
	printStatus("Blob store", "%s", blobLocation(cfg.Blob))
	printStatus("Prefetch", "%v", cfg.Prefetch.Enabled)

	if running {
		resp, err := client.get(ctx, "/trees?limit=1")
		if err == nil {
			var page struct {
				Total int `json:"total"`
			}
			if decodeJSON(resp, &page) == nil {
				printStatus("Trees", "%d", page.Total)
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func blobLocation(b config.BlobConfig) string {
	switch b.Mode {
	case string(blob.ModeFS):
		return "fs " + b.Dir
	case string(blob.ModeGCSEmulator):
		return fmt.Sprintf("gcs emulator %s bucket %s", b.EmulatorHost, b.Bucket)
	default:
		return "gcs bucket " + b.Bucket
	}
}
