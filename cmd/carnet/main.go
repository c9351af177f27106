// Command carnet automates a note-sharing platform through a controlled
// Chrome instance: login gating, keyword analysis, trending topics, draft
// quality checks, and publishing.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/carnet/api"
	"github.com/hazyhaar/carnet/browser"
	"github.com/hazyhaar/carnet/publish"
	"github.com/hazyhaar/carnet/quality"
	"github.com/hazyhaar/carnet/report"
	"github.com/hazyhaar/carnet/scrape"
	"github.com/hazyhaar/carnet/selector"
	"github.com/hazyhaar/carnet/session"
	"github.com/hazyhaar/carnet/store"
	"github.com/hazyhaar/carnet/trending"
)

const (
	defaultNoteCount = 20
	maxNoteCount     = 100
)

type browserConfig struct {
	RemoteURL   string `yaml:"remote_url"`
	UserDataDir string `yaml:"user_data_dir"`
	Headless    bool   `yaml:"headless"`
	UserAgent   string `yaml:"user_agent"`
}

type appConfig struct {
	BaseURL        string        `yaml:"base_url"`
	Browser        browserConfig `yaml:"browser"`
	SelectorsFile  string        `yaml:"selectors_file"`
	GuidelinesFile string        `yaml:"guidelines_file"`
	OutputDir      string        `yaml:"output_dir"`
	DBPath         string        `yaml:"db_path"`
	LogLevel       string        `yaml:"log_level"`
}

func (c *appConfig) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://www.xiaohongshu.com"
	}
	if c.Browser.UserDataDir == "" {
		c.Browser.UserDataDir = ".browser_data"
	}
	if c.OutputDir == "" {
		c.OutputDir = "output"
	}
	if c.DBPath == "" {
		c.DBPath = filepath.Join("data", "carnet.db")
	}
}

func loadConfig(path string) (appConfig, error) {
	var cfg appConfig
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyDefaults()
	return cfg, nil
}

func setupLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}

func usage() {
	fmt.Fprintf(os.Stderr, `usage: carnet <command> [flags]

commands:
  login     open a browser and wait for the user to log in
  analyze   search a keyword, scrape notes, and write an analysis report
  trending  collect trending topics and write a report
  check     run a draft through the content quality checker
  publish   fill and submit the publish form with a draft
  serve     expose stored run history over HTTP

run 'carnet <command> -h' for command flags
`)
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "login":
		err = cmdLogin(ctx, os.Args[2:])
	case "analyze":
		err = cmdAnalyze(ctx, os.Args[2:])
	case "trending":
		err = cmdTrending(ctx, os.Args[2:])
	case "check":
		err = cmdCheck(os.Args[2:])
	case "publish":
		err = cmdPublish(ctx, os.Args[2:])
	case "serve":
		err = cmdServe(ctx, os.Args[2:])
	case "-h", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "carnet: unknown command %q\n", os.Args[1])
		usage()
	}
	if err != nil {
		slog.Error("command failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

// loadResolver builds the selector resolver from the configured catalogue
// file, falling back to the built-in defaults.
func loadResolver(cfg appConfig, logger *slog.Logger) (*selector.Resolver, error) {
	spec := selector.Default()
	if cfg.SelectorsFile != "" {
		loaded, err := selector.Load(cfg.SelectorsFile)
		if err != nil {
			return nil, fmt.Errorf("load selectors: %w", err)
		}
		spec = spec.Merge(loaded)
	}
	return selector.NewResolver(spec, logger), nil
}

// openBrowser starts Chrome and opens one stealth tab. Interactive flows
// force a visible window regardless of config.
func openBrowser(ctx context.Context, cfg appConfig, logger *slog.Logger, interactive bool) (*browser.Manager, *browser.Tab, error) {
	bc := browser.Config{
		RemoteURL:   cfg.Browser.RemoteURL,
		UserDataDir: cfg.Browser.UserDataDir,
		Headless:    cfg.Browser.Headless && !interactive,
		UserAgent:   cfg.Browser.UserAgent,
		Logger:      logger,
	}
	mgr := browser.NewManager(bc)
	if err := mgr.Start(ctx); err != nil {
		return nil, nil, err
	}
	tab, err := mgr.OpenPage(ctx, "")
	if err != nil {
		mgr.Close()
		return nil, nil, err
	}
	return mgr, tab, nil
}

func newGate(cfg appConfig, res *selector.Resolver, logger *slog.Logger) *session.Gate {
	det := session.NewDetector(session.DetectorConfig{
		Origin: cfg.BaseURL,
		Logger: logger,
	}, res)
	return session.NewGate(session.GateConfig{
		HomeURL: cfg.BaseURL,
		Logger:  logger,
	}, det)
}

func cmdLogin(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	timeout := fs.Duration("timeout", 5*time.Minute, "how long to wait for the login")
	fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.LogLevel)

	res, err := loadResolver(cfg, logger)
	if err != nil {
		return err
	}
	mgr, tab, err := openBrowser(ctx, cfg, logger, true)
	if err != nil {
		return err
	}
	defer mgr.Close()

	fmt.Println("请在浏览器中完成登录（扫码或账号密码）...")
	ok, err := newGate(cfg, res, logger).EnsureLogin(ctx, tab, session.Options{
		StartFromHome: true,
		Timeout:       *timeout,
	})
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("login was not completed in time")
	}
	fmt.Println("✓ 登录成功，会话已保存")
	return nil
}

func parseSort(s string) (scrape.SortBy, error) {
	switch s {
	case "hot":
		return scrape.SortHot, nil
	case "new":
		return scrape.SortNewest, nil
	case "general", "":
		return scrape.SortGeneral, nil
	default:
		return "", fmt.Errorf("unknown sort %q (want hot, new, or general)", s)
	}
}

func cmdAnalyze(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	keyword := fs.String("keyword", "", "search keyword (required)")
	count := fs.Int("count", defaultNoteCount, "number of notes to scrape")
	sortFlag := fs.String("sort", "hot", "sort order: hot, new, or general")
	output := fs.String("output", "", "analysis report path (default: <output_dir>/report_<keyword>_<time>.md)")
	fs.Parse(args)

	if *keyword == "" {
		return errors.New("analyze: -keyword is required")
	}
	if *count > maxNoteCount {
		*count = maxNoteCount
	}
	sort, err := parseSort(*sortFlag)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.LogLevel)

	res, err := loadResolver(cfg, logger)
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	mgr, tab, err := openBrowser(ctx, cfg, logger, true)
	if err != nil {
		return err
	}
	defer mgr.Close()

	gate := newGate(cfg, res, logger)
	searcher := scrape.NewSearcher(scrape.SearchConfig{BaseURL: cfg.BaseURL, Logger: logger}, res, gate)
	if err := searcher.Search(ctx, tab, *keyword, sort); err != nil {
		return err
	}

	sink := scrape.LogSink{Log: logger}
	list := scrape.NewListScraper(scrape.ListConfig{BaseURL: cfg.BaseURL, Logger: logger, Sink: sink}, res)
	summaries, err := list.Collect(ctx, tab, *count)
	if err != nil && len(summaries) == 0 {
		return err
	}
	if err != nil {
		logger.Warn("list collection stopped early", "collected", len(summaries), "error", err)
	}
	if len(summaries) == 0 {
		return errors.New("no notes found, check the keyword or the network")
	}

	detail := scrape.NewDetailScraper(scrape.DetailConfig{Logger: logger, Sink: sink}, res)
	pipe := scrape.NewPipeline(scrape.PipelineConfig{Logger: logger, Sink: sink}, res, detail)
	batch, runErr := pipe.Run(ctx, tab, summaries)
	batch.Keyword = *keyword
	if runErr != nil {
		logger.Warn("pipeline stopped early", "attempted", batch.Attempted, "error", runErr)
	}

	runID, err := st.SaveBatch(ctx, batch)
	if err != nil {
		return err
	}
	jsonPath, err := store.ExportJSON(cfg.OutputDir, "notes_"+*keyword, batch)
	if err != nil {
		return err
	}

	reportPath := *output
	if reportPath == "" {
		reportPath = filepath.Join(cfg.OutputDir,
			fmt.Sprintf("report_%s_%s.md", *keyword, time.Now().Format("20060102_150405")))
	}
	if err := os.MkdirAll(filepath.Dir(reportPath), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(reportPath, []byte(report.Analysis(batch)), 0o644); err != nil {
		return err
	}

	fmt.Printf("✓ 已抓取 %d 篇笔记（成功 %d / 跳过 %d / 出错 %d）\n",
		batch.Attempted, batch.Succeeded, batch.Skipped, batch.Errored)
	fmt.Printf("  运行记录: #%d  原始数据: %s\n  分析报告: %s\n", runID, jsonPath, reportPath)
	return runErr
}

func cmdTrending(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("trending", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	count := fs.Int("count", defaultNoteCount, "number of topics to collect (5-50)")
	output := fs.String("output", "", "report path (default: <output_dir>/hot_topics_<time>.md)")
	fs.Parse(args)

	if *count < 5 {
		*count = 5
	}
	if *count > 50 {
		*count = 50
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.LogLevel)

	res, err := loadResolver(cfg, logger)
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	mgr, tab, err := openBrowser(ctx, cfg, logger, true)
	if err != nil {
		return err
	}
	defer mgr.Close()

	ok, err := newGate(cfg, res, logger).EnsureLogin(ctx, tab, session.Options{StartFromHome: true})
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("login required for trending collection")
	}

	collector := trending.NewCollector(trending.Config{HomeURL: cfg.BaseURL, Logger: logger}, res)
	topics, collectErr := collector.Collect(ctx, tab, *count)
	if collectErr != nil && len(topics) == 0 {
		return collectErr
	}
	if len(topics) == 0 {
		return errors.New("no trending topics found")
	}

	if err := st.SaveTopics(ctx, topics); err != nil {
		return err
	}
	if _, err := store.ExportJSON(cfg.OutputDir, "hot_topics", topics); err != nil {
		return err
	}

	md := report.Trending(topics)
	reportPath := *output
	if reportPath == "" {
		reportPath = filepath.Join(cfg.OutputDir,
			fmt.Sprintf("hot_topics_%s.md", time.Now().Format("20060102_150405")))
	}
	if err := os.MkdirAll(filepath.Dir(reportPath), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(reportPath, []byte(md), 0o644); err != nil {
		return err
	}

	fmt.Printf("✓ 收集到 %d 个热门话题，报告: %s\n", len(topics), reportPath)
	for i, t := range topics {
		if i == 10 {
			break
		}
		fmt.Printf("  %2d. %s\n", i+1, t.Name)
	}
	return collectErr
}

func loadFacts(path string) (*quality.KnownFacts, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read facts: %w", err)
	}
	var facts quality.KnownFacts
	if err := yaml.Unmarshal(data, &facts); err != nil {
		return nil, fmt.Errorf("parse facts: %w", err)
	}
	return &facts, nil
}

func loadChecker(cfg appConfig) (*quality.Checker, error) {
	g := quality.DefaultGuidelines()
	if cfg.GuidelinesFile != "" {
		loaded, err := quality.LoadGuidelines(cfg.GuidelinesFile)
		if err != nil {
			return nil, fmt.Errorf("load guidelines: %w", err)
		}
		g = loaded
	}
	return quality.NewChecker(g), nil
}

func printCheckResult(res *quality.Result) {
	fmt.Printf("质量评分: %d/100\n", res.Score)
	for _, issue := range res.Errors {
		fmt.Printf("  ✗ [%s] %s", issue.Rule, issue.Message)
		if issue.Context != "" {
			fmt.Printf("（%s）", issue.Context)
		}
		fmt.Println()
	}
	for _, issue := range res.Warnings {
		fmt.Printf("  ⚠ [%s] %s\n", issue.Rule, issue.Message)
	}
	for _, s := range res.Suggestions {
		fmt.Printf("  💡 %s\n", s)
	}
}

func cmdCheck(args []string) error {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	title := fs.String("title", "", "draft title (required)")
	content := fs.String("content", "", "draft body text")
	contentFile := fs.String("content-file", "", "read the draft body from a file")
	factsPath := fs.String("facts", "", "YAML file of verified facts (times, prices, places)")
	fs.Parse(args)

	if *title == "" {
		return errors.New("check: -title is required")
	}
	body, err := draftBody(*content, *contentFile)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	setupLogger(cfg.LogLevel)

	checker, err := loadChecker(cfg)
	if err != nil {
		return err
	}
	facts, err := loadFacts(*factsPath)
	if err != nil {
		return err
	}

	res := checker.Check(*title, body, facts)
	printCheckResult(res)
	if !res.Passed() {
		return errors.New("draft failed the quality check")
	}
	return nil
}

func draftBody(content, contentFile string) (string, error) {
	switch {
	case content != "" && contentFile != "":
		return "", errors.New("use either -content or -content-file, not both")
	case contentFile != "":
		data, err := os.ReadFile(contentFile)
		if err != nil {
			return "", fmt.Errorf("read content file: %w", err)
		}
		return string(data), nil
	case content != "":
		return content, nil
	default:
		return "", errors.New("-content or -content-file is required")
	}
}

func cmdPublish(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("publish", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	title := fs.String("title", "", "note title (required)")
	content := fs.String("content", "", "note body text")
	contentFile := fs.String("content-file", "", "read the note body from a file (markdown is stripped)")
	tags := fs.String("tags", "", "comma-separated tags")
	cover := fs.String("cover", "", "cover image path")
	asDraft := fs.Bool("draft", false, "save as draft instead of publishing")
	skipCheck := fs.Bool("skip-check", false, "skip the content quality check")
	factsPath := fs.String("facts", "", "YAML file of verified facts for the quality check")
	fs.Parse(args)

	if *title == "" {
		return errors.New("publish: -title is required")
	}
	raw, err := draftBody(*content, *contentFile)
	if err != nil {
		return err
	}
	body := publish.StripMarkdown(raw)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.LogLevel)

	if !*skipCheck {
		checker, err := loadChecker(cfg)
		if err != nil {
			return err
		}
		facts, err := loadFacts(*factsPath)
		if err != nil {
			return err
		}
		res := checker.Check(*title, body, facts)
		printCheckResult(res)
		if !res.Passed() {
			return errors.New("draft failed the quality check, fix it or pass -skip-check")
		}
	}

	var tagList []string
	for _, t := range strings.Split(*tags, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tagList = append(tagList, strings.TrimPrefix(t, "#"))
		}
	}

	res, err := loadResolver(cfg, logger)
	if err != nil {
		return err
	}
	mgr, tab, err := openBrowser(ctx, cfg, logger, true)
	if err != nil {
		return err
	}
	defer mgr.Close()

	ok, err := newGate(cfg, res, logger).EnsureLogin(ctx, tab, session.Options{StartFromHome: true})
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("login required before publishing")
	}

	pub := publish.NewPublisher(publish.Config{Logger: logger}, res)
	if err := pub.Publish(ctx, tab, publish.Draft{
		Title:     *title,
		Body:      body,
		Tags:      tagList,
		CoverPath: *cover,
		AsDraft:   *asDraft,
	}); err != nil {
		return err
	}

	if *asDraft {
		fmt.Println("✓ 草稿已保存")
	} else {
		fmt.Println("✓ 笔记已发布")
	}
	return nil
}

func cmdServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	addr := fs.String("addr", ":8086", "listen address")
	dbPath := fs.String("db", "", "database path (default: config db_path)")
	fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.LogLevel)
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	srv := &http.Server{
		Addr:              *addr,
		Handler:           api.New(st, logger).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", *addr, "db", cfg.DBPath)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
