package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/systemstart/pipecall/pkg/api"
	"github.com/systemstart/pipecall/pkg/config"
	"github.com/systemstart/pipecall/pkg/logging"
	"github.com/systemstart/pipecall/pkg/metrics"
	"github.com/systemstart/pipecall/pkg/processing"
	"github.com/systemstart/pipecall/pkg/steps"
	"github.com/systemstart/pipecall/pkg/telemetry"
)

var version = "dev"

const (
	_ = iota
	exitPipelineFileMissing
	exitDotenvError
	exitLoadConfigurationFileFailed
	exitLoggingSetupFailed
	exitNoPipelineSpecified
	exitDiscoveryFailed
	exitLoadSeedFailed
	exitInvalidPipeline
	exitUnresolvedPlaceholders
	exitPipelineFailed
	exitOutputFailed
)

var (
	pipelineFile  string
	directory     string
	pattern       string
	sharedSession bool
	validateOnly  bool
	configFile    string
	seedFile      string
	loggingType   string
	logLevel      string
	outputFormat  string
	reportFile    string
	metricsFile   string
	trace         bool
	showVersion   bool
)

func init() {
	flag.StringVar(
		&pipelineFile,
		"pipeline",
		"",
		"pipeline document to run (also accepted as first argument)")
	flag.StringVar(
		&directory,
		"dir",
		"",
		"discovery mode: run every pipeline document under this directory")
	flag.StringVar(
		&pattern,
		"pattern",
		processing.DefaultPattern,
		"discovery mode: doublestar pattern relative to -dir")
	flag.BoolVar(
		&sharedSession,
		"shared-session",
		false,
		"discovery mode: share one result store across all pipelines")
	flag.BoolVar(
		&validateOnly,
		"validate",
		false,
		"list unresolvable placeholders without executing")
	flag.StringVar(
		&configFile,
		"config",
		"",
		"configuration file (default "+config.DefaultFile+" when present)")
	flag.StringVar(
		&seedFile,
		"seed",
		"",
		"YAML file of store entries to preload")
	flag.StringVar(
		&loggingType,
		"logging-type",
		"tint",
		"logging type: json, text or tint")
	flag.StringVar(
		&logLevel,
		"log-level",
		"info",
		"logging level: debug, info, warn, error")
	flag.StringVar(
		&outputFormat,
		"output",
		"json",
		"result format: json or yaml")
	flag.StringVar(
		&reportFile,
		"report",
		"",
		"text/template file rendered after the run (\"-\" for the built-in report)")
	flag.StringVar(
		&metricsFile,
		"metrics-file",
		"",
		"write Prometheus metrics to this file after the run")
	flag.BoolVar(
		&trace,
		"trace",
		false,
		"export OpenTelemetry spans to stderr")
	flag.BoolVar(
		&showVersion,
		"version",
		false,
		"print version and exit")
}

// result is what the CLI prints to stdout after a run.
type result struct {
	File   string                      `json:"file,omitempty" yaml:"file,omitempty"`
	Status processing.Status           `json:"status" yaml:"status"`
	Error  string                      `json:"error,omitempty" yaml:"error,omitempty"`
	Errors []processing.ExecutionError `json:"errors,omitempty" yaml:"errors,omitempty"`
	Store  map[string]any              `json:"store" yaml:"store"`
}

func main() {
	flag.Parse()

	if showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if pipelineFile == "" && flag.NArg() > 0 {
		pipelineFile = flag.Arg(0)
	}

	cfg := loadConfiguration()
	applyConfiguration(cfg)

	if err := logging.Initialize(logging.Options{Type: loggingType, Level: logLevel}); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logging: %v\n", err)
		os.Exit(exitLoggingSetupFailed)
	}

	includeEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if trace {
		shutdown, err := telemetry.InitTracer("pipecall", os.Stderr)
		if err != nil {
			slog.Warn("tracing disabled", "error", err)
		} else {
			defer func() { _ = shutdown(context.Background()) }()
		}
	}

	collector := metrics.New()
	transport := steps.NewHTTPTransport(userAgentOption(cfg), steps.WithTracing())
	newRunner := func() *processing.Runner {
		r := processing.NewRunner(
			processing.WithTransport(transport),
			processing.WithMetrics(collector),
		)
		if seedFile != "" {
			r.Seed(loadSeed())
		}
		return r
	}

	var code int
	switch {
	case pipelineFile != "":
		code = runSinglePipeline(ctx, newRunner())
	case directory != "":
		code = runDiscoveryMode(ctx, newRunner)
	default:
		slog.Error("no pipeline specified: pass a file or -dir")
		flag.Usage()
		code = exitNoPipelineSpecified
	}

	if metricsFile != "" {
		if err := collector.WriteFile(metricsFile); err != nil {
			slog.Error("failed to write metrics", "file", metricsFile, "error", err)
		}
	}

	if code != 0 {
		stop()
		os.Exit(code)
	}
	slog.Info("done")
}

func runSinglePipeline(ctx context.Context, runner *processing.Runner) int {
	if _, err := os.Stat(pipelineFile); err != nil {
		slog.Error("pipeline file not found", "file", pipelineFile, "error", err)
		return exitPipelineFileMissing
	}

	pipeline, code := loadPipeline(pipelineFile)
	if code != 0 {
		return code
	}

	if validateOnly {
		return validatePipeline(runner, pipelineFile)
	}

	res := execute(ctx, runner, pipeline)
	if err := writeResults([]result{res}); err != nil {
		slog.Error("failed to write result", "error", err)
		return exitOutputFailed
	}
	if err := writeReport(res, []string{pipelineFile}); err != nil {
		slog.Error("failed to write report", "error", err)
		return exitOutputFailed
	}

	if res.Status == processing.StatusAborted {
		return exitPipelineFailed
	}
	return 0
}

func runDiscoveryMode(ctx context.Context, newRunner func() *processing.Runner) int {
	files, err := processing.DiscoverPipelines(directory, pattern)
	if err != nil {
		slog.Error("pipeline discovery failed", "directory", directory, "error", err)
		return exitDiscoveryFailed
	}
	if len(files) == 0 {
		slog.Warn("no pipeline documents found", "directory", directory, "pattern", pattern)
		return 0
	}
	slog.Info("discovered pipelines", "count", len(files))

	var runner *processing.Runner
	if sharedSession {
		runner = newRunner()
	}

	var (
		results []result
		failed  []string
	)
	for _, file := range files {
		r := runner
		if r == nil {
			r = newRunner()
		}

		if validateOnly {
			if code := validatePipeline(r, file); code != 0 {
				failed = append(failed, file)
			}
			continue
		}

		pipeline, code := loadPipeline(file)
		if code != 0 {
			failed = append(failed, file)
			continue
		}

		res := execute(ctx, r, pipeline)
		results = append(results, res)
		if res.Status == processing.StatusAborted {
			failed = append(failed, file)
		}
	}

	if !validateOnly {
		if err := writeResults(results); err != nil {
			slog.Error("failed to write results", "error", err)
			return exitOutputFailed
		}
		if err := writeReport(merge(results), files); err != nil {
			slog.Error("failed to write report", "error", err)
			return exitOutputFailed
		}
	}

	if len(failed) > 0 {
		slog.Error("pipelines failed", "count", len(failed), "files", failed)
		if validateOnly {
			return exitUnresolvedPlaceholders
		}
		return exitPipelineFailed
	}
	return 0
}

func loadPipeline(file string) (*api.Pipeline, int) {
	pipeline, err := api.LoadPipeline(file)
	if err != nil {
		slog.Error("invalid pipeline", "file", file, "error", err)
		return nil, exitInvalidPipeline
	}
	return pipeline, 0
}

func execute(ctx context.Context, runner *processing.Runner, pipeline *api.Pipeline) result {
	status, err := runner.Run(ctx, pipeline)

	res := result{
		File:   pipeline.FilePath,
		Status: status,
		Errors: runner.ExecutionErrors(),
		Store:  runner.Store(),
	}
	if err != nil {
		res.Error = err.Error()
		var pipeErr *processing.PipelineExecutionError
		if errors.As(err, &pipeErr) {
			slog.Error("pipeline aborted", "file", pipeline.FilePath, "step", pipeErr.StepName, "error", pipeErr.Err)
		}
	}
	for _, e := range res.Errors {
		slog.Warn("step error", "file", pipeline.FilePath, "step", e.StepName, "error", e.Message)
	}
	return res
}

func validatePipeline(runner *processing.Runner, file string) int {
	raw, err := api.ReadDefinition(file)
	if err != nil {
		slog.Error("invalid pipeline", "file", file, "error", err)
		return exitInvalidPipeline
	}

	unresolved, err := runner.ValidatePlaceholders(raw)
	if err != nil {
		slog.Error("invalid pipeline", "file", file, "error", err)
		return exitInvalidPipeline
	}

	if len(unresolved) == 0 {
		slog.Info("all placeholders resolvable against the current store", "file", file)
		return 0
	}
	for _, p := range unresolved {
		fmt.Printf("%s: %s\n", file, p)
	}
	return exitUnresolvedPlaceholders
}

func writeResults(results []result) error {
	var payload any = results
	if len(results) == 1 {
		payload = results[0]
	}
	return encode(os.Stdout, outputFormat, payload)
}

func encode(w io.Writer, format string, v any) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encoding yaml: %w", err)
		}
		return enc.Close()
	case "json", "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encoding json: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
}

func writeReport(res result, files []string) error {
	if reportFile == "" {
		return nil
	}

	var tmpl string
	if reportFile != "-" {
		data, err := os.ReadFile(reportFile)
		if err != nil {
			return fmt.Errorf("reading report template: %w", err)
		}
		tmpl = string(data)
	}

	return processing.RenderReport(os.Stderr, tmpl, processing.ReportData{
		Store:  res.Store,
		Errors: res.Errors,
		Status: res.Status,
		Files:  files,
	})
}

// merge folds discovery results into one report input. The worst status wins.
func merge(results []result) result {
	merged := result{Status: processing.StatusCompleted, Store: map[string]any{}}
	for _, r := range results {
		for k, v := range r.Store {
			merged.Store[k] = v
		}
		merged.Errors = append(merged.Errors, r.Errors...)
		switch {
		case r.Status == processing.StatusAborted:
			merged.Status = processing.StatusAborted
		case r.Status == processing.StatusCompletedWithErrors && merged.Status == processing.StatusCompleted:
			merged.Status = processing.StatusCompletedWithErrors
		}
	}
	return merged
}

func loadSeed() map[string]any {
	seed, err := processing.LoadSeedFile(seedFile)
	if err != nil {
		slog.Error("failed to load seed file", "filename", seedFile, "error", err)
		os.Exit(exitLoadSeedFailed)
	}
	return seed
}

func loadConfiguration() *config.Config {
	cfg, err := config.Load(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(exitLoadConfigurationFileFailed)
	}
	return cfg
}

// applyConfiguration fills every flag not set on the command line from cfg.
func applyConfiguration(cfg *config.Config) {
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	fill := func(name string, dst *string, value string) {
		if !set[name] && value != "" {
			*dst = value
		}
	}
	if pipelineFile == "" {
		pipelineFile = cfg.Pipeline
	}
	fill("dir", &directory, cfg.Dir)
	fill("pattern", &pattern, cfg.Pattern)
	fill("seed", &seedFile, cfg.Seed)
	fill("logging-type", &loggingType, cfg.Logging.Type)
	fill("log-level", &logLevel, cfg.Logging.Level)
	fill("output", &outputFormat, cfg.Output)
	fill("report", &reportFile, cfg.Report)
	fill("metrics-file", &metricsFile, cfg.MetricsFile)

	if !set["shared-session"] {
		sharedSession = sharedSession || cfg.SharedSession
	}
	if !set["trace"] {
		trace = trace || cfg.Trace
	}
}

func userAgentOption(cfg *config.Config) steps.TransportOption {
	ua := cfg.UserAgent
	if ua == "" {
		ua = "pipecall/" + version
	}
	return steps.WithUserAgent(ua)
}

func includeEnv() {
	err := godotenv.Load()
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Error("failed to load .env", "error", err)
			os.Exit(exitDotenvError)
		}
		slog.Debug("no .env file found")
	} else {
		slog.Info("using .env file")
	}
}
