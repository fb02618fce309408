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

	"github.com/kalambet/kashi/internal/api"
	"github.com/kalambet/kashi/internal/config"
	"github.com/kalambet/kashi/internal/observe"
	"github.com/kalambet/kashi/internal/pipeline"
	"github.com/kalambet/kashi/internal/preload"
)

const (
	workerPollInterval = 500 * time.Millisecond
	shutdownTimeout    = 5 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the kashi server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running kashi server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show kashi status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "kashi.pid")
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

func serverURL(cfg config.Config) string {
	return fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
}

func runServer() error {
	fmt.Fprintf(stderr, "kashi version %s\n", version)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Refuse to start twice: a healthy server already owns the port.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(serverURL(cfg) + "/health"); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{
			ServiceName:    "kashi",
			ServiceVersion: version,
		})
		if err != nil {
			slog.Warn("metrics disabled", "error", err)
		} else {
			defer shutdownMetrics(context.Background())
			metricsHandler = observe.Handler()
		}
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	// The static database loads in the background; lookups miss until it is ready.
	go a.static.EnsureLoaded(ctx)

	if cfg.Server.Token == "" {
		slog.Warn("server.token is not set, mutating endpoints are unauthenticated")
	}

	preloader := pipeline.NewPreloader(a.pipeline, cfg.Preload.Delay)
	worker := preload.NewWorker(a.store, preloader, a.playlist, workerPollInterval)

	handler := api.NewHandler(api.Deps{
		Pipeline:       a.pipeline,
		Store:          a.store,
		Playlist:       a.playlist,
		Token:          cfg.Server.Token,
		Metrics:        a.metrics,
		MetricsHandler: metricsHandler,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		worker.Run(gctx)
		return nil
	})
	g.Go(func() error {
		printSuccess("kashi listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		return fmt.Errorf("kashi is not running (no PID file): %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("could not find process %d: %w", pid, err)
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		removePIDFile(pidPath)
		return fmt.Errorf("could not stop kashi (PID %d): %w", pid, err)
	}

	printSuccess("Sent stop signal to kashi (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	client := &apiClient{
		baseURL:    serverURL(cfg),
		token:      cfg.Server.Token,
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
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Generator", "%s/%s", cfg.Generator.Provider, cfg.Generator.Model)
	if cfg.Generator.APIKey == "" && cfg.Generator.Provider != "ollama" {
		printStatus("API key", "missing (%s)", config.APIKeyHint())
	} else {
		printStatus("API key", "configured")
	}

	if running {
		var list []songResponse
		resp, err := client.get(ctx, "/songs")
		if err == nil && decodeJSON(resp, &list) == nil {
			cached := 0
			for _, s := range list {
				if s.Cached {
					cached++
				}
			}
			printStatus("Playlist", "%d songs, %d cached", len(list), cached)
		}
	}

	printStatus("Static DB", "%s", cfg.Static.DBPath)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
