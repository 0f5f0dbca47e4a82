// Package main is the booru CLI entry point.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/booru/internal/auth"
	"github.com/hyperjump/booru/internal/cli"
	"github.com/hyperjump/booru/internal/config"
	"github.com/hyperjump/booru/internal/gallery"
	"github.com/hyperjump/booru/internal/importer"
	"github.com/hyperjump/booru/internal/models"
	"github.com/hyperjump/booru/internal/server"
	"github.com/hyperjump/booru/internal/storage"
	"github.com/hyperjump/booru/internal/suggest"
	"github.com/hyperjump/booru/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/booru/config.yaml"

// loadConfig loads config from path. When path is the default, config.yaml in the current
// directory takes precedence if it exists, and a missing default file yields the built-in
// defaults. Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
			cfg := &config.Config{}
			config.ApplyDefaults(cfg)
			return cfg, "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "search":
		runSearch()
	case "post":
		runPost()
	case "tags":
		runTags()
	case "import":
		runImport()
	case "status":
		runStatus()
	case "hash-password":
		runHashPassword()
	case "version", "--version", "-v":
		fmt.Printf("booru version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func fail(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fail("Failed to load config: %v", err)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fail("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
		zap.Bool("auth_enabled", cfg.Auth.Enabled()),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := components.Suggester.Sync(ctx); err != nil {
		logger.Warn("tag index sync failed", zap.Error(err))
	}

	var watchSvc *importer.Watcher
	if len(cfg.Import.Directories) > 0 {
		watchSvc = importer.NewWatcher(
			components.Importer,
			cfg.Import.Directories,
			cfg.Import.RecursiveOrDefault(),
			importer.WithWatchLogger(logger),
			importer.WithImportHook(func(path string, res *importer.Result, err error) {
				if err != nil {
					logger.Warn("manifest import failed", zap.String("path", path), zap.Error(err))
					return
				}
				logger.Info("manifest imported", zap.String("path", path), zap.Int("posts", res.Imported), zap.Int("skipped", res.Skipped))
			}),
		)
		if err := watchSvc.Start(ctx); err != nil {
			logger.Fatal("Failed to start import watcher", zap.Error(err))
		}
		defer watchSvc.Stop()
	}

	srv := server.NewServer(
		components.Coordinator,
		components.Suggester,
		components.Repo,
		components.Auth,
		cfg,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
}

// printSearchUsage prints search subcommand usage and query syntax.
func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: booru search [flags] <query>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Query syntax:
  cat          posts tagged cat (or whose source URL contains "cat")
  -scary       exclude posts tagged scary
  ~dog ~bird   posts tagged dog or bird
  hatsune*     tags starting with "hatsune"

Examples:
  booru search cat -scary
  booru search --rating safe,questionable "~dog ~bird"
  booru search --page 2 --output json hatsune*
  booru search --server "" cat              # read the database directly
`)
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// searchArgsReorder moves the flags defined in fs (and their values) in front of the query
// terms and separates the two with "--". Query terms may start with "-" (negation), so any
// token that is not a known flag stays part of the query.
func searchArgsReorder(fs *flag.FlagSet, args []string) []string {
	var flags, terms []string
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--" {
			terms = append(terms, args[i+1:]...)
			break
		}
		name := strings.TrimLeft(a, "-")
		if name == a || name == "" {
			terms = append(terms, a)
			continue
		}
		if eq := strings.Index(name, "="); eq >= 0 {
			if fs.Lookup(name[:eq]) != nil {
				flags = append(flags, a)
			} else {
				terms = append(terms, a)
			}
			continue
		}
		f := fs.Lookup(name)
		if f == nil {
			terms = append(terms, a)
			continue
		}
		flags = append(flags, a)
		if bf, ok := f.Value.(interface{ IsBoolFlag() bool }); ok && bf.IsBoolFlag() {
			continue
		}
		if i+1 < len(args) {
			flags = append(flags, args[i+1])
			i++
		}
	}
	out := make([]string, 0, len(flags)+len(terms)+1)
	out = append(out, flags...)
	out = append(out, "--")
	return append(out, terms...)
}

// searchResponse is the shape of GET /api/v1/posts.
type searchResponse struct {
	models.Page
	Suggestion string `json:"suggestion,omitempty"`
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = read the database directly)")
	token := fs.String("token", os.Getenv("BOORU_TOKEN"), "session token for non-safe ratings (server mode)")
	page := fs.Int("page", 1, "page number")
	pageSize := fs.Int("page-size", 0, "posts per page (0 = configured default)")
	ratings := fs.String("rating", "safe", "comma separated ratings: safe, questionable, explicit")
	outputFormat := fs.String("output", "text", "output format: text, json or ids")
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(searchArgsReorder(fs, os.Args[2:]))

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fail("%v", err)
	}

	state := gallery.NewState()
	state.SetQuery(buildSearchQuery(fs.Args()))
	state.SetRatings(models.ParseRatingSet(*ratings))
	state.SetPage(*page)

	var resp *searchResponse
	if *serverURL != "" {
		// The HTTP API avoids lock conflicts with a running server.
		resp, err = searchViaHTTP(*serverURL, *token, state, *pageSize)
		if err != nil {
			fail("Search failed: %v", err)
		}
	} else {
		components, closeFn := directComponents(*configPath)
		defer closeFn()
		result, err := components.Coordinator.FetchPage(context.Background(), state.Request(*pageSize))
		if err != nil {
			fail("Search failed: %v", err)
		}
		resp = &searchResponse{Page: *result}
		if result.Filtered && result.Total == 0 {
			resp.Suggestion = components.Suggester.DidYouMean(state.Query())
		}
	}

	if err := cli.WritePage(os.Stdout, &resp.Page, format); err != nil {
		fail("Output failed: %v", err)
	}
	if resp.Suggestion != "" && format == cli.OutputText {
		fmt.Printf("\nDid you mean: %s\n", resp.Suggestion)
	}
}

func searchViaHTTP(serverURL, token string, state *gallery.State, pageSize int) (*searchResponse, error) {
	values := state.Values()
	if pageSize > 0 {
		values.Set("page_size", fmt.Sprint(pageSize))
	}
	req, err := http.NewRequest(http.MethodGet, strings.TrimRight(serverURL, "/")+"/api/v1/posts?"+values.Encode(), nil)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	var out searchResponse
	if err := doJSON(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func doJSON(req *http.Request, v interface{}) error {
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func runPost() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: booru post <get|delete> [flags] <post-id>")
		os.Exit(1)
	}
	sub := os.Args[2]
	fs := flag.NewFlagSet("post", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	outputFormat := fs.String("output", "text", "output format: text, json or ids")
	_ = fs.Parse(os.Args[3:])
	if fs.NArg() < 1 {
		fmt.Printf("Usage: booru post %s [flags] <post-id>\n", sub)
		os.Exit(1)
	}
	id := fs.Arg(0)
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fail("%v", err)
	}

	components, closeFn := directComponents(*configPath)
	defer closeFn()
	ctx := context.Background()
	switch sub {
	case "get":
		post, err := components.Repo.GetPost(ctx, id)
		if err != nil {
			fail("Get post failed: %v", err)
		}
		if err := cli.WritePost(os.Stdout, post, format); err != nil {
			fail("Output failed: %v", err)
		}
	case "delete":
		if err := components.Repo.DeletePost(ctx, id); err != nil {
			fail("Delete failed: %v", err)
		}
		fmt.Printf("Post deleted: %s\n", id)
	default:
		fail("Unknown post subcommand: %s", sub)
	}
}

func runTags() {
	fs := flag.NewFlagSet("tags", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	limit := fs.Int("limit", 0, "number of tags (0 = configured tag_limit)")
	prefix := fs.String("prefix", "", "only tags starting with prefix (at least 2 characters)")
	ratings := fs.String("rating", "", "count tags within these ratings only (empty = all posts)")
	outputFormat := fs.String("output", "text", "output format: text, json or ids")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fail("%v", err)
	}
	components, closeFn := directComponents(*configPath)
	defer closeFn()
	if *limit <= 0 {
		*limit = components.Config.Gallery.TagLimit
	}

	ctx := context.Background()
	var tags []models.Tag
	switch {
	case *prefix != "":
		tags, err = components.Repo.SearchTagsByPrefix(ctx, *prefix, *limit)
	case *ratings != "":
		tags, err = components.Repo.ListTags(ctx, *limit, models.ParseRatingSet(*ratings))
	default:
		tags, err = components.Repo.ListTags(ctx, *limit, nil)
	}
	if err != nil {
		fail("List tags failed: %v", err)
	}
	if err := cli.WriteTags(os.Stdout, tags, format); err != nil {
		fail("Output failed: %v", err)
	}
}

func runImport() {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	recursive := fs.Bool("recursive", true, "descend into subdirectories")
	extensions := fs.String("extensions", "", "comma separated manifest extensions for directories (default: import.extensions)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])
	if fs.NArg() < 1 {
		fmt.Println("Usage: booru import [flags] <manifest-or-directory>...")
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fail("%v", err)
	}

	components, closeFn := directComponents(*configPath)
	defer closeFn()
	imp := components.Importer
	if *extensions != "" {
		imp = importer.NewImporter(components.Repo, utils.SplitList(*extensions), importer.WithTagSink(components.Suggester))
	}
	ctx := context.Background()
	total := &importer.Result{}
	for _, path := range fs.Args() {
		info, err := os.Stat(path)
		if err != nil {
			fail("Failed to stat path: %v", err)
		}
		var res *importer.Result
		if info.IsDir() {
			res, err = imp.ImportDirectory(ctx, path, *recursive)
		} else {
			res, err = imp.ImportFile(ctx, path)
		}
		if err != nil {
			fail("Import of %s failed: %v", path, err)
		}
		total.Files += res.Files
		total.Imported += res.Imported
		total.Skipped += res.Skipped
		total.Errors = append(total.Errors, res.Errors...)
	}
	if err := cli.WriteImportResult(os.Stdout, total, format); err != nil {
		fail("Output failed: %v", err)
	}
}

// statusResponse is the shape of GET /api/v1/status.
type statusResponse struct {
	Posts          int64                  `json:"posts"`
	Tags           int64                  `json:"tags"`
	DiskUsageBytes *int64                 `json:"disk_usage_bytes,omitempty"`
	Config         map[string]interface{} `json:"config,omitempty"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = read the database directly)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	var status statusResponse
	if *serverURL != "" {
		req, err := http.NewRequest(http.MethodGet, strings.TrimRight(*serverURL, "/")+"/api/v1/status", nil)
		if err != nil {
			fail("Status failed: %v", err)
		}
		if err := doJSON(req, &status); err != nil {
			fail("Status failed: %v", err)
		}
	} else {
		components, closeFn := directComponents(*configPath)
		defer closeFn()
		ctx := context.Background()
		posts, err := components.Repo.CountPosts(ctx)
		if err != nil {
			fail("Count posts failed: %v", err)
		}
		tags, err := components.Repo.CountTags(ctx)
		if err != nil {
			fail("Count tags failed: %v", err)
		}
		status = statusResponse{Posts: posts, Tags: tags}
		cfg := components.Config
		if diskBytes, err := storage.DiskUsageBytes(cfg.Storage.DatabasePath, cfg.Storage.TagIndexPath); err == nil {
			status.DiskUsageBytes = &diskBytes
		}
		status.Config = map[string]interface{}{
			"database_path":  cfg.Storage.DatabasePath,
			"tag_index_path": cfg.Storage.TagIndexPath,
			"page_size":      cfg.Gallery.PageSize,
			"auth_enabled":   cfg.Auth.Enabled(),
		}
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			fail("Output failed: %v", err)
		}
	case "text":
		fmt.Printf("posts:              %d\n", status.Posts)
		fmt.Printf("tags:               %d\n", status.Tags)
		if status.DiskUsageBytes != nil {
			fmt.Printf("disk_usage_bytes:   %d   # database + tag index on disk\n", *status.DiskUsageBytes)
		}
		for _, key := range []string{"database_path", "tag_index_path", "page_size", "auth_enabled"} {
			if v, ok := status.Config[key]; ok {
				fmt.Printf("%-19s %v\n", key+":", v)
			}
		}
	default:
		fail("Unknown output format %q; use text or json", *outputFormat)
	}
}

// runHashPassword prints the bcrypt hash for auth.admin_password_hash. The password is
// read from the first argument or, when absent, the first line of stdin.
func runHashPassword() {
	var password string
	if len(os.Args) > 2 {
		password = os.Args[2]
	} else {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			fail("Read password failed: %v", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}
	if password == "" {
		fail("Usage: booru hash-password <password>  (or pipe it on stdin)")
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		fail("Hash failed: %v", err)
	}
	fmt.Println(hash)
}

// Components holds initialized services.
type Components struct {
	Config      *config.Config
	Repo        storage.Repository
	TagIndex    *suggest.TagIndex
	Suggester   *suggest.Suggester
	Coordinator *gallery.Coordinator
	Auth        auth.Provider
	Importer    *importer.Importer
}

func (c *Components) Close() {
	if c.TagIndex != nil {
		_ = c.TagIndex.Close()
	}
	if c.Repo != nil {
		_ = c.Repo.Close()
	}
}

// directComponents loads config and opens the stores for a one-shot command.
func directComponents(configPath string) (*Components, func()) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		fail("Failed to load config: %v", err)
	}
	logger, err := utils.NewCLILogger(cfg.Debug)
	if err != nil {
		fail("Failed to create logger: %v", err)
	}
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		fail("Failed to initialize: %v", err)
	}
	return components, func() {
		components.Close()
		_ = logger.Sync()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	var repo storage.Repository = storage.Unconfigured{}
	if !cfg.Storage.Disabled {
		store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		repo = store
	} else {
		logger.Warn("storage disabled; every gallery request will fail with a configuration error")
	}

	// The tag index is locked by a running server; one-shot commands then work without it.
	tagIndex, err := suggest.NewTagIndex(cfg.Storage.TagIndexPath)
	if err != nil {
		logger.Warn("tag index unavailable, fuzzy suggestions disabled",
			zap.String("path", cfg.Storage.TagIndexPath), zap.Error(err))
		tagIndex = nil
	}

	suggester := suggest.NewSuggester(repo, tagIndex, &cfg.Gallery, suggest.WithLogger(logger))
	coordinator := gallery.NewCoordinator(repo, &cfg.Gallery, gallery.WithLogger(logger))
	authProvider := auth.NewMemoryProvider(&cfg.Auth, auth.WithLogger(logger))
	imp := importer.NewImporter(repo, cfg.Import.Extensions,
		importer.WithLogger(logger),
		importer.WithTagSink(suggester),
	)

	return &Components{
		Config:      cfg,
		Repo:        repo,
		TagIndex:    tagIndex,
		Suggester:   suggester,
		Coordinator: coordinator,
		Auth:        authProvider,
		Importer:    imp,
	}, nil
}

func printUsage() {
	fmt.Println(`booru - tag-indexed media gallery

Usage:
  booru server [flags]                  Start the HTTP server
  booru search [flags] <query>          Search posts by tag query
  booru post <get|delete> [flags] <id>  Show or delete a post
  booru tags [flags]                    List tags by post count
  booru import [flags] <path>...        Import post manifests (.json, .yaml, .xlsx)
  booru status [flags]                  Show post/tag counts and storage usage
  booru hash-password <password>        Print a bcrypt hash for auth.admin_password_hash
  booru version                         Show version
  booru help                            Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/booru/config.yaml)
  --debug            Enable debug logging

Search Flags:
  --server string    Server URL (default: http://localhost:8080). Use --server "" to read the database directly.
  --token string     Session token from /api/v1/auth/login (default: $BOORU_TOKEN)
  --rating string    Comma separated ratings (default: safe)
  --page int         Page number (default: 1)
  --page-size int    Posts per page (default: gallery.page_size)
  --output string    Output format: text, json or ids

Tags Flags:
  --limit int        Number of tags (default: gallery.tag_limit)
  --prefix string    Only tags starting with prefix
  --rating string    Count tags within these ratings only

Examples:
  booru server
  booru search cat -scary
  booru search "~dog ~bird" --page 2
  booru tags --prefix hats
  booru import ./manifests
  booru hash-password hunter2`)
}
