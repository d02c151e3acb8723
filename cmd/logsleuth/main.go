// Package main is the logsleuth command line entry point: it tracks
// analysis jobs on a log-analysis backend, clusters the resulting error
// patterns and exports or archives completed runs.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jfrid/logsleuth/internal/client"
	"github.com/jfrid/logsleuth/internal/cluster"
	"github.com/jfrid/logsleuth/internal/config"
	"github.com/jfrid/logsleuth/internal/export"
	"github.com/jfrid/logsleuth/internal/normalize"
	"github.com/jfrid/logsleuth/internal/selection"
	"github.com/jfrid/logsleuth/internal/session"
	"github.com/jfrid/logsleuth/internal/storage"
	"github.com/jfrid/logsleuth/internal/stub"
	"github.com/jfrid/logsleuth/pkg/models"
)

const usage = `Usage: logsleuth [flags] <command> [args]

Commands:
  run <session>                 start the primary analysis and print patterns
  subanalyze <session> [i,j,k]  run the AI sub-analysis over selected patterns
  export <session>              export the completed analysis (json or markdown)
  history [session]             list archived runs

Flags:
`

func main() {
	fs := flag.NewFlagSet("logsleuth", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	backendURL := fs.String("backend", "", "analysis backend base URL (overrides config)")
	useStub := fs.Bool("stub", false, "run against an in-process stub backend")
	format := fs.String("format", "json", "export format: json or markdown")
	output := fs.String("out", "", "export output file (default stdout)")
	timeout := fs.Duration("timeout", 10*time.Minute, "overall command timeout")
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		fs.PrintDefaults()
	}
	fs.Parse(os.Args[1:])

	if fs.NArg() < 1 {
		fs.Usage()
		os.Exit(2)
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("Loading config: %v", err)
		}
		cfg = loaded
	}
	if *backendURL != "" {
		cfg.BackendURL = *backendURL
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	if *useStub {
		addr, shutdown, err := startStub(logger)
		if err != nil {
			log.Fatalf("Starting stub backend: %v", err)
		}
		defer shutdown()
		cfg.BackendURL = "http://" + addr
		log.Printf("Using stub backend at %s", cfg.BackendURL)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	app := &app{
		cfg:    cfg,
		logger: logger,
		client: client.New(cfg.BackendURL),
	}

	var err error
	switch cmd := fs.Arg(0); cmd {
	case "run":
		err = app.run(ctx, fs.Arg(1))
	case "subanalyze":
		err = app.subanalyze(ctx, fs.Arg(1), fs.Arg(2))
	case "export":
		err = app.export(ctx, fs.Arg(1), *format, *output)
	case "history":
		err = app.history(ctx, fs.Arg(1))
	default:
		log.Fatalf("Unknown command: %s", cmd)
	}
	if err != nil {
		log.Fatalf("%v", err)
	}
}

type app struct {
	cfg    config.Config
	logger *slog.Logger
	client *client.Client
}

// run starts the primary analysis, follows it to a terminal state, clusters
// the result and prints the patterns.
func (a *app) run(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("run: session id required")
	}

	binding := session.NewBinding(a.client, a.cfg, a.logger)
	defer binding.Close()
	binding.Switch(sessionID)

	startedAt := time.Now().UTC()
	job, err := a.followJob(ctx, binding, models.KindPrimary, func(ctx context.Context) error {
		return binding.StartPrimary(ctx)
	})
	if err != nil {
		return err
	}

	patterns, err := a.clusterResult(job)
	if err != nil {
		return err
	}
	printPatterns(patterns)

	return a.archive(ctx, sessionID, job, patterns, startedAt)
}

// subanalyze runs the AI sub-analysis scoped to the given comma-separated
// pattern indices (empty means all).
func (a *app) subanalyze(ctx context.Context, sessionID, indicesArg string) error {
	if sessionID == "" {
		return fmt.Errorf("subanalyze: session id required")
	}
	indices, err := parseIndices(indicesArg)
	if err != nil {
		return fmt.Errorf("subanalyze: %w", err)
	}

	binding := session.NewBinding(a.client, a.cfg, a.logger)
	defer binding.Close()
	binding.Switch(sessionID)

	// The primary result must already exist; attach to it.
	primary, err := a.followJob(ctx, binding, models.KindPrimary, func(ctx context.Context) error {
		return binding.StartPrimary(ctx)
	})
	if err != nil {
		return err
	}
	primaryPatterns, err := a.clusterResult(primary)
	if err != nil {
		return err
	}

	// Validate the requested indices against the visible pattern list; a
	// full or empty selection means "analyze all".
	set := selection.New()
	set.Reset(len(primaryPatterns))
	for _, i := range indices {
		if i < 0 || i >= len(primaryPatterns) {
			return fmt.Errorf("subanalyze: index %d out of range (have %d patterns)", i, len(primaryPatterns))
		}
		set.Toggle(i)
	}
	var selected []int
	if set.State() == selection.StatePartial {
		selected = set.Indices()
	}

	startedAt := time.Now().UTC()
	job, err := a.followJob(ctx, binding, models.KindAISubanalysis, func(ctx context.Context) error {
		return binding.StartAISubanalysis(ctx, selected)
	})
	if err != nil {
		return err
	}

	patterns, err := a.clusterResult(job)
	if err != nil {
		return err
	}
	printPatterns(patterns)

	return a.archive(ctx, sessionID, job, patterns, startedAt)
}

// export fetches the current primary result and writes the artifact.
func (a *app) export(ctx context.Context, sessionID, format, output string) error {
	if sessionID == "" {
		return fmt.Errorf("export: session id required")
	}

	snap, err := a.client.JobStatus(ctx, sessionID, models.KindPrimary)
	if err != nil {
		return err
	}
	if !snap.Status.Terminal() || snap.Results == nil {
		return fmt.Errorf("export: session %s has no completed analysis", sessionID)
	}

	job := models.Job{Kind: models.KindPrimary, Status: snap.Status, Progress: snap.Progress,
		Message: snap.Message, Result: snap.Results, Error: snap.Error}
	patterns, err := a.clusterResult(job)
	if err != nil {
		return err
	}
	artifact := export.Build(sessionID, job, patterns)

	w := os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	switch format {
	case "json":
		return export.WriteJSON(w, artifact)
	case "markdown":
		return export.WriteMarkdown(w, artifact)
	default:
		return fmt.Errorf("export: unknown format %q (supported: json, markdown)", format)
	}
}

// history lists archived runs from the configured store.
func (a *app) history(ctx context.Context, sessionID string) error {
	store, err := a.openStorage(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRuns(ctx, sessionID, 50)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No archived runs.")
		return nil
	}
	for _, run := range runs {
		fmt.Printf("%s  %-14s %-10s %-9s patterns=%-4d errors=%d\n",
			run.CompletedAt.Format(time.RFC3339), run.Session, run.Kind,
			run.Status, len(run.Patterns), run.TotalErrors)
	}
	return nil
}

// followJob starts one job and blocks until it reaches a terminal state.
func (a *app) followJob(ctx context.Context, binding *session.Binding, kind models.JobKind, start func(context.Context) error) (models.Job, error) {
	done := make(chan models.Job, 1)
	unsubscribe := binding.Subscribe(func(k models.JobKind, job models.Job) {
		if k != kind {
			return
		}
		if job.Status == models.StatusProcessing {
			log.Printf("[%s] %d%% %s", kind, job.Progress, job.Message)
		}
		if job.Status.Terminal() {
			select {
			case done <- job:
			default:
			}
		}
	})
	defer unsubscribe()

	if err := start(ctx); err != nil {
		return models.Job{}, err
	}
	// Start may have completed synchronously (cached result).
	if job := binding.Tracker(kind).Snapshot(); job.Status.Terminal() {
		return job, nil
	}

	select {
	case job := <-done:
		return job, nil
	case <-ctx.Done():
		return models.Job{}, fmt.Errorf("waiting for %s job: %w", kind, ctx.Err())
	}
}

// clusterResult clusters a terminal job's problems with the configured
// normalization patterns.
func (a *app) clusterResult(job models.Job) ([]models.Pattern, error) {
	if job.Status == models.StatusFailed {
		return nil, fmt.Errorf("%s job failed: %s", job.Kind, job.Error)
	}
	if job.Result == nil {
		return nil, nil
	}

	norm := normalize.New()
	if a.cfg.PatternsFile != "" {
		pats, err := normalize.LoadPatterns(a.cfg.PatternsFile)
		if err != nil {
			return nil, err
		}
		norm = normalize.NewWithPatterns(pats)
	}

	patterns := cluster.New(norm).Cluster(job.Result.AllProblems(), cluster.Filter{})
	if job.Status == models.StatusPartial {
		log.Printf("Partial result (%s); patterns below reflect the chunks that succeeded", job.Error)
	}
	return patterns, nil
}

// archive saves a terminal run into the configured history store.
func (a *app) archive(ctx context.Context, sessionID string, job models.Job, patterns []models.Pattern, startedAt time.Time) error {
	if a.cfg.Storage.Backend == "" || a.cfg.Storage.Backend == "memory" {
		// Nothing durable configured; skip.
		return nil
	}
	store, err := a.openStorage(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	run := newRun(sessionID, job, patterns, startedAt)
	if err := store.SaveRun(ctx, run); err != nil {
		return err
	}
	log.Printf("Archived run %s (%d patterns)", run.ID, len(patterns))
	return nil
}

// newRun builds the history record for one finished job.
func newRun(sessionID string, job models.Job, patterns []models.Pattern, startedAt time.Time) *models.Run {
	total := 0
	for _, p := range patterns {
		total += p.TotalCount
	}
	return &models.Run{
		ID:          uuid.NewString(),
		Session:     sessionID,
		Kind:        job.Kind,
		Status:      job.Status,
		Message:     job.Message,
		Error:       job.Error,
		Patterns:    patterns,
		TotalErrors: total,
		StartedAt:   startedAt,
		CompletedAt: time.Now().UTC(),
	}
}

func (a *app) openStorage(ctx context.Context) (storage.Storage, error) {
	return storage.New(ctx, storage.Config{
		Backend:        a.cfg.Storage.Backend,
		Path:           a.cfg.Storage.Path,
		ClickHouseAddr: a.cfg.Storage.ClickHouseAddr,
	}, a.logger)
}

// startStub serves the in-process stub backend on a loopback port, seeded
// with a small demo result.
func startStub(logger *slog.Logger) (addr string, shutdown func(), err error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", nil, err
	}

	backend := stub.NewServer(logger)
	demo := &models.AnalysisResult{Problems: []models.ProblemRecord{
		{Component: "rails", Severity: "ERROR", Count: 3,
			Message: "Connection refused to db-primary:5432"},
		{Component: "rails", Severity: "ERROR", Count: 2,
			Message: "Connection refused to db-replica:5432"},
		{Component: "sidekiq", Severity: "CRITICAL", Count: 1,
			Message: "Job crashed after 120 retries"},
	}}
	backend.SetScenario(models.KindPrimary, stub.CompletedScenario(demo))
	backend.SetScenario(models.KindAISubanalysis, stub.CompletedScenario(demo))

	srv := &http.Server{Handler: backend.Router()}
	go srv.Serve(ln)
	return ln.Addr().String(), func() { srv.Close() }, nil
}

func printPatterns(patterns []models.Pattern) {
	if len(patterns) == 0 {
		fmt.Println("No error patterns found.")
		return
	}
	fmt.Printf("%-4s %-9s %-16s %-6s %s\n", "#", "SEVERITY", "COMPONENT", "COUNT", "MESSAGE")
	for i, p := range patterns {
		fmt.Printf("%-4d %-9s %-16s %-6d %s\n", i, p.Severity, p.Component, p.TotalCount, p.Message)
	}
}

// parseIndices parses a comma-separated index list; empty means all.
func parseIndices(arg string) ([]int, error) {
	if arg == "" {
		return nil, nil
	}
	parts := strings.Split(arg, ",")
	out := make([]int, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid index %q", part)
		}
		out = append(out, n)
	}
	return out, nil
}
