package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/kashi/internal/api"
	"github.com/kalambet/kashi/internal/cache"
	"github.com/kalambet/kashi/internal/config"
	"github.com/kalambet/kashi/internal/furigana"
	"github.com/kalambet/kashi/internal/pipeline"
	"github.com/kalambet/kashi/internal/preload"
	"github.com/kalambet/kashi/internal/songs"
	"github.com/kalambet/kashi/internal/staticdb"
	"github.com/kalambet/kashi/internal/storage"
)

// interruptible returns a context cancelled on SIGINT or SIGTERM.
func interruptible(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

// --- lyrics ---

var lyricsCmd = &cobra.Command{
	Use:   "lyrics [title - artist]",
	Short: "Fetch lyrics with furigana for one song",
	Long: `Fetch lyrics with furigana for one song, using the local cache, the
static database, or the remote generator.

Examples:
  kashi lyrics "Lemon - 米津玄師"
  kashi lyrics --title "夜に駆ける" --artist YOASOBI
  kashi lyrics --plain --regenerate "Pretender - Official髭男dism"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		artist, _ := cmd.Flags().GetString("artist")
		regenerate, _ := cmd.Flags().GetBool("regenerate")
		plain, _ := cmd.Flags().GetBool("plain")

		if len(args) == 0 && title == "" {
			return errors.New("a song query or --title is required")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := interruptible(cmd.Context())
		defer stop()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		ref, err := resolveSong(a.playlist, args, title, artist)
		if err != nil {
			return err
		}
		a.static.EnsureLoaded(ctx)

		sink := func(status string) { printStep("%s", status) }
		var res pipeline.Result
		if regenerate {
			res, err = a.pipeline.Regenerate(ctx, ref, sink)
		} else {
			res, err = a.pipeline.Fetch(ctx, ref, sink)
		}
		if err != nil {
			return err
		}

		printStatus("Song", "%s", ref.QueryKey)
		printStatus("Source", "%s", res.Tier)
		if res.Strategy != "" {
			printStatus("Strategy", "%s", res.Strategy)
		}
		if res.Annotation != "" {
			printStatus("Furigana", "%s", res.Annotation)
		}

		out := res.Markup
		if plain {
			out = furigana.PlainText(out)
		}
		fmt.Fprintln(stdout, out)
		return nil
	},
}

func init() {
	lyricsCmd.Flags().String("title", "", "Song title (instead of a query)")
	lyricsCmd.Flags().String("artist", "", "Song artist, used with --title")
	lyricsCmd.Flags().Bool("regenerate", false, "Ignore cached lyrics and generate them again")
	lyricsCmd.Flags().Bool("plain", false, "Print readings in parentheses instead of HTML")
}

// --- songs ---

var songsCmd = &cobra.Command{
	Use:   "songs",
	Short: "List the playlist and which songs are cached",
	RunE: func(cmd *cobra.Command, args []string) error {
		remote, _ := cmd.Flags().GetBool("remote")

		var list []songResponse
		if remote {
			client, err := newAPIClient()
			if err != nil {
				return err
			}
			resp, err := client.get(cmd.Context(), "/songs")
			if err != nil {
				return err
			}
			if err := decodeJSON(resp, &list); err != nil {
				return err
			}
		} else {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			list, err = localSongs(cmd.Context(), cfg)
			if err != nil {
				return err
			}
		}

		printSongs(list)
		return nil
	},
}

func init() {
	songsCmd.Flags().Bool("remote", false, "Ask the running server instead of reading local state")
}

func localSongs(ctx context.Context, cfg config.Config) ([]songResponse, error) {
	playlist, err := songs.Load(cfg.Playlist.Path)
	if err != nil {
		return nil, fmt.Errorf("loading playlist: %w", err)
	}
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	defer store.Close()

	static := staticdb.New(cfg.Static.DBPath)
	static.EnsureLoaded(ctx)
	resolver := cache.NewResolver(store, static)

	list := make([]songResponse, 0, len(playlist))
	for _, ref := range playlist {
		list = append(list, songResponse{
			Title:    ref.Title,
			Artist:   ref.Artist,
			QueryKey: ref.QueryKey,
			Cached:   resolver.Contains(ctx, ref),
		})
	}
	return list, nil
}

func printSongs(list []songResponse) {
	cached := 0
	for _, s := range list {
		mark := colorize(colorGray, "·")
		if s.Cached {
			mark = colorize(colorGreen, "✓")
			cached++
		}
		fmt.Fprintf(stdout, "%s %s\n", mark, s.QueryKey)
	}
	printStatus("Cached", "%d/%d", cached, len(list))
}

// --- preload ---

var preloadCmd = &cobra.Command{
	Use:   "preload [title - artist]...",
	Short: "Warm the cache for the playlist or selected songs",
	Long: `Fetch lyrics for every playlist song (or the given songs) one at a time,
skipping songs that are already cached.

Examples:
  kashi preload
  kashi preload "Lemon - 米津玄師" "アイドル - YOASOBI"
  kashi preload --remote --wait`,
	RunE: func(cmd *cobra.Command, args []string) error {
		remote, _ := cmd.Flags().GetBool("remote")
		if remote {
			wait, _ := cmd.Flags().GetBool("wait")
			return preloadRemote(cmd.Context(), args, wait)
		}
		return preloadLocal(cmd.Context(), args)
	},
}

func init() {
	preloadCmd.Flags().Bool("remote", false, "Queue a preload job on the running server")
	preloadCmd.Flags().Bool("wait", false, "With --remote, wait for the job to finish")
}

func preloadLocal(parent context.Context, keys []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, stop := interruptible(parent)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	list := a.playlist
	if len(keys) > 0 {
		list = make([]songs.Ref, 0, len(keys))
		for _, k := range keys {
			ref, ok := songs.FromQuery(a.playlist, k)
			if !ok {
				printWarning("skipping blank song query")
				continue
			}
			list = append(list, ref)
		}
	}
	if a.gen == nil {
		printWarning("no API key configured, only cached songs will succeed")
	}
	a.static.EnsureLoaded(ctx)

	delay := cfg.Preload.Delay
	sum := pipeline.NewPreloader(a.pipeline, delay).Run(ctx, list, func(p pipeline.PreloadProgress) {
		printProgress(p.Index, p.Total, p.Song.QueryKey, p.Status)
	})

	printSummary(sum)
	return nil
}

func preloadRemote(ctx context.Context, keys []string, wait bool) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}

	resp, err := client.post(ctx, "/preload", preload.Payload{Songs: keys})
	if err != nil {
		return err
	}
	var queued map[string]string
	if err := decodeJSON(resp, &queued); err != nil {
		return err
	}
	printSuccess("Preload job queued (ID: %s)", queued["id"])
	if !wait {
		return nil
	}

	ctx, stop := interruptible(ctx)
	defer stop()
	job, err := waitForJob(ctx, client, queued["id"], time.Second)
	if err != nil {
		return err
	}
	if job.Status == storage.JobFailed {
		return fmt.Errorf("preload job failed: %s", job.LastError)
	}
	if job.Summary != nil {
		printSummary(*job.Summary)
	}
	return nil
}

// waitForJob polls a preload job until it completes or fails.
func waitForJob(ctx context.Context, client *apiClient, id string, every time.Duration) (preloadJobResponse, error) {
	for {
		resp, err := client.get(ctx, "/preload/"+url.PathEscape(id))
		if err != nil {
			return preloadJobResponse{}, err
		}
		var job preloadJobResponse
		if err := decodeJSON(resp, &job); err != nil {
			return preloadJobResponse{}, err
		}
		switch job.Status {
		case storage.JobCompleted, storage.JobFailed:
			return job, nil
		}

		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-time.After(every):
		}
	}
}

func printSummary(sum pipeline.Summary) {
	printStatus("Succeeded", "%d/%d (%d cached)", sum.Succeeded, sum.Total, sum.Cached)
	if sum.Failed > 0 {
		printStatus("Failed", "%d", sum.Failed)
	}
	if sum.Aborted {
		printWarning("preload aborted")
	}
}

// --- generate-db ---

var generateDBCmd = &cobra.Command{
	Use:   "generate-db",
	Short: "Build the static lyrics database from the playlist",
	Long: `Generate furigana markup for every playlist song from model recall and
save it as the static lyrics database. Songs already present are skipped,
so an interrupted run can be resumed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")
		delay, _ := cmd.Flags().GetDuration("delay")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if out == "" {
			out = cfg.Static.DBPath
		}
		if u, err := url.Parse(out); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
			return fmt.Errorf("static.db_path %s is a URL, pass --out to write a local file", out)
		}
		if delay <= 0 {
			delay = cfg.Generate.Delay
		}

		ctx, stop := interruptible(cmd.Context())
		defer stop()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.requireGenerator(); err != nil {
			return err
		}

		printStep("Generating %d songs into %s", len(a.playlist), out)
		report, err := staticdb.NewBuilder(a.gen, out).
			WithDelay(delay).
			OnProgress(func(p staticdb.Progress) {
				printProgress(p.Index, p.Total, p.Song.QueryKey, p.Status)
				if p.Err != nil {
					printWarning("%v", p.Err)
				}
			}).
			Run(ctx, a.playlist)

		printStatus("Generated", "%d", report.Generated)
		printStatus("Skipped", "%d", report.Skipped)
		printStatus("Failed", "%d", report.Failed)
		if report.Aborted {
			printWarning("generation aborted, rerun to resume")
			return nil
		}
		if err != nil {
			return err
		}
		printSuccess("Static database written to %s", out)
		return nil
	},
}

func init() {
	generateDBCmd.Flags().String("out", "", "Output file (default: static.db_path)")
	generateDBCmd.Flags().Duration("delay", 0, "Pause between songs (default: generate.delay)")
}

// --- mcp ---

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the MCP tools over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := interruptible(cmd.Context())
		defer stop()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()
		go a.static.EnsureLoaded(ctx)

		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Pipeline: a.pipeline,
			Playlist: a.playlist,
			Version:  version,
		})
		if err := server.NewStdioServer(mcpSrv).Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("MCP stdio server: %w", err)
		}
		return nil
	},
}

// --- cache ---

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the local lyrics cache",
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached songs, most recent first",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return withStore(func(store *storage.Store) error {
			ctx := cmd.Context()
			entries, err := store.ListCached(ctx, limit)
			if err != nil {
				return err
			}
			for _, e := range entries {
				key := strings.TrimPrefix(e.Key, cache.KeyPrefix)
				fmt.Fprintf(stdout, "%s  %s  %s\n", e.UpdatedAt.Local().Format("2006-01-02 15:04"), formatBytes(e.SizeBytes), key)
			}
			n, size, err := store.CacheSize(ctx)
			if err != nil {
				return err
			}
			printStatus("Total", "%d entries, %s of %s", n, formatBytes(size), formatBytes(store.MaxCacheBytes()))
			return nil
		})
	},
}

var cacheRemoveCmd = &cobra.Command{
	Use:   "rm <title - artist>",
	Short: "Remove one song from the cache",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, ok := songs.Parse(strings.Join(args, " "))
		if !ok {
			return errors.New("song query must not be blank")
		}
		return withStore(func(store *storage.Store) error {
			if err := store.DeleteCached(cmd.Context(), cache.LocalKey(ref)); err != nil {
				return err
			}
			printSuccess("Removed %s from the cache", ref.QueryKey)
			return nil
		})
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every cached song",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(store *storage.Store) error {
			n, err := store.ClearCache(cmd.Context())
			if err != nil {
				return err
			}
			printSuccess("Cleared %d cached songs", n)
			return nil
		})
	},
}

func init() {
	cacheListCmd.Flags().Int("limit", 50, "Maximum number of entries")
	cacheCmd.AddCommand(cacheListCmd)
	cacheCmd.AddCommand(cacheRemoveCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}

func withStore(fn func(*storage.Store) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer store.Close()
	store.SetMaxCacheBytes(cfg.Storage.MaxCacheBytes)
	return fn(store)
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		printStatus("Location", "%s", config.Location())
		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(stdout, "  %s = %s  %s\n", colorize(colorBold, k.Key), k.Value, colorize(colorGray, k.EnvVar))
		}
		for _, secret := range []struct{ key, val string }{
			{"generator.api_key", cfg.Generator.APIKey},
			{"server.token", cfg.Server.Token},
		} {
			state := "not set"
			if secret.val != "" {
				state = "set"
			}
			fmt.Fprintf(stdout, "  %s = %s\n", colorize(colorBold, secret.key), state)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value.\n\nKeys: " + strings.Join(config.ValidKeys(), ", "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configSetSecretCmd = &cobra.Command{
	Use:   "set-secret [value]",
	Short: "Store a secret in the platform secret store",
	Long:  "Store the generator API key (or, with --key server.token, the server token) in the platform secret store. Without an argument the value is read from stdin.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, _ := cmd.Flags().GetString("key")

		var value string
		if len(args) == 1 {
			value = args[0]
		} else {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("reading %s: %w", key, err)
			}
			value = line
		}
		value = strings.TrimSpace(value)
		if value == "" {
			return fmt.Errorf("%s must not be empty", key)
		}

		if err := config.SetSecret(key, value); err != nil {
			return fmt.Errorf("storing %s: %w", key, err)
		}
		printSuccess("%s stored", key)
		return nil
	},
}

func init() {
	configSetSecretCmd.Flags().String("key", "generator.api_key", "secret to store: generator.api_key or server.token")
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configSetSecretCmd)
}
