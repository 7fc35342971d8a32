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

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ssavin/vetsync/internal/api"
	"github.com/ssavin/vetsync/internal/config"
	"github.com/ssavin/vetsync/internal/storage"
	"github.com/ssavin/vetsync/internal/syncer"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the vetsync server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running vetsync server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show vetsync system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "vetsync.pid")
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
	fmt.Fprintf(os.Stderr, "vetsync version %s\n", version)

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

	settings := config.NewBackend()
	apiToken, err := config.GetAPIToken(settings)
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}

	// Write PID file. Check if the server is already running via health.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("vetsync is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("vetsync is already running on port %d", cfg.Server.Port)
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

	// Build the sync engine from the persisted remote coordinates. They may
	// be empty on a fresh install; the settings endpoint fills them in later.
	engine := syncer.New(store, syncer.Options{
		ServerURL:   cfg.Remote.ServerURL,
		APIKey:      cfg.Remote.APIKey,
		BranchID:    cfg.Remote.BranchID,
		UploadBatch: cfg.Sync.UploadBatch,
		Logger:      slog.Default(),
	})

	autoInterval, err := time.ParseDuration(cfg.Sync.AutoInterval)
	if err != nil {
		slog.Warn("invalid auto-sync interval, using default 1m", "value", cfg.Sync.AutoInterval, "error", err)
		autoInterval = time.Minute
	}
	engine.StartAutoSync(autoInterval)
	defer engine.StopAutoSync()

	handler := api.NewHandler(api.Deps{
		Store:    store,
		Engine:   engine,
		Token:    apiToken,
		DataDir:  cfg.Storage.DataDir,
		Settings: settings,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "vetsync listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
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
		printError("vetsync is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop vetsync (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to vetsync (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	running := false
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	if cfg.Remote.ServerURL != "" {
		printStatus("Main server", "%s", cfg.Remote.ServerURL)
	} else {
		printStatus("Main server", "not configured")
	}
	if cfg.Remote.BranchName != "" {
		printStatus("Branch", "%s (%s)", cfg.Remote.BranchName, cfg.Remote.BranchID)
	} else if cfg.Remote.BranchID != "" {
		printStatus("Branch", "%s", cfg.Remote.BranchID)
	} else {
		printStatus("Branch", "not configured")
	}

	// Show live sync status when the server is up.
	if running {
		api, err := newAPIClient()
		if err == nil {
			if statusResp, err := api.get(ctx, "/sync/status"); err == nil {
				var s struct {
					IsOnline     bool   `json:"isOnline"`
					PendingCount int    `json:"pendingCount"`
					IsSyncing    bool   `json:"isSyncing"`
					LastSync     string `json:"lastSync"`
				}
				if decodeJSON(statusResp, &s) == nil {
					if s.IsOnline {
						printStatus("Connection", "online")
					} else {
						printStatus("Connection", "offline")
					}
					printStatus("Pending changes", "%d", s.PendingCount)
					if s.IsSyncing {
						printStatus("Sync", "in progress")
					}
					if s.LastSync != "" {
						printStatus("Last sync", "%s", s.LastSync)
					}
				}
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
