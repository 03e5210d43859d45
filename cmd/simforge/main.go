package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	temporalclient "go.temporal.io/sdk/client"

	"github.com/simforge/simforge/internal/config"
	"github.com/simforge/simforge/internal/formats"
	"github.com/simforge/simforge/internal/graphstore"
	neo4jstore "github.com/simforge/simforge/internal/graphstore/neo4j"
	"github.com/simforge/simforge/internal/metrics"
	"github.com/simforge/simforge/internal/migration"
	"github.com/simforge/simforge/internal/observability"
	"github.com/simforge/simforge/internal/pipeline"
	"github.com/simforge/simforge/internal/pipeline/audit"
	"github.com/simforge/simforge/internal/pipeline/gate"
	"github.com/simforge/simforge/internal/pipeline/index"
	"github.com/simforge/simforge/internal/pipeline/ingest"
	"github.com/simforge/simforge/internal/pipeline/lower"
	"github.com/simforge/simforge/internal/pipeline/persist"
	"github.com/simforge/simforge/internal/qualitygate"
	"github.com/simforge/simforge/internal/regress"
	"github.com/simforge/simforge/internal/review"
	"github.com/simforge/simforge/internal/secrets"
	"github.com/simforge/simforge/internal/server"
	"github.com/simforge/simforge/internal/session"
	"github.com/simforge/simforge/internal/simmodel"
	temporalmod "github.com/simforge/simforge/internal/temporal"
	"github.com/simforge/simforge/internal/tui"
	"github.com/simforge/simforge/internal/vector"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "simforge",
		Short: "Compile authored simulation flow diagrams into structured models",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (default: configs/simforge.yaml)")

	// compile
	var (
		compileInput  string
		compileOutput string
		compilePretty bool
		compileStore  bool
		compileGraph  bool
		compileIndex  bool
		compileSkip   bool
		compileJSON   bool
	)
	compileCmd := &cobra.Command{
		Use:   "compile",
		Short: "Compile one diagram into a simulation model",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(configPath, compileInput, compileOutput, compilePretty,
				compileStore, compileGraph, compileIndex, compileSkip, compileJSON)
		},
	}
	compileCmd.Flags().StringVar(&compileInput, "input", "", "Diagram file (json, yaml or hcl)")
	compileCmd.Flags().StringVar(&compileOutput, "output", "", "Model output file (default: stdout)")
	compileCmd.Flags().BoolVar(&compilePretty, "pretty", false, "Indent the model JSON")
	compileCmd.Flags().BoolVar(&compileStore, "store", false, "Save the run as a session")
	compileCmd.Flags().BoolVar(&compileGraph, "graph", false, "Mirror the model into the configured graph store")
	compileCmd.Flags().BoolVar(&compileIndex, "index", false, "Index the model in the configured vector store")
	compileCmd.Flags().BoolVar(&compileSkip, "skip-gates", false, "Skip quality gate evaluation")
	compileCmd.Flags().BoolVar(&compileJSON, "json", false, "Print the compile report as JSON")
	_ = compileCmd.MarkFlagRequired("input")

	// batch
	var (
		batchInput    string
		batchOutput   string
		batchForce    bool
		batchDryRun   bool
		batchStore    bool
		batchSkip     bool
		batchTemporal bool
	)
	batchCmd := &cobra.Command{
		Use:   "batch",
		Short: "Convert a directory of diagrams incrementally",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(configPath, batchInput, batchOutput, batchForce,
				batchDryRun, batchStore, batchSkip, batchTemporal)
		},
	}
	batchCmd.Flags().StringVar(&batchInput, "input", "", "Directory of diagram files")
	batchCmd.Flags().StringVar(&batchOutput, "output", "", "Directory for converted models and batch state")
	batchCmd.Flags().BoolVar(&batchForce, "force", false, "Re-convert unchanged diagrams too")
	batchCmd.Flags().BoolVar(&batchDryRun, "dry-run", false, "Report what would convert, change nothing")
	batchCmd.Flags().BoolVar(&batchStore, "store", false, "Save each converted diagram as a session")
	batchCmd.Flags().BoolVar(&batchSkip, "skip-gates", false, "Skip quality gate evaluation")
	batchCmd.Flags().BoolVar(&batchTemporal, "temporal", false, "Run the batch through the Temporal workflow")
	_ = batchCmd.MarkFlagRequired("input")
	_ = batchCmd.MarkFlagRequired("output")

	// gates
	var (
		gatesInput string
		gatesJSON  bool
	)
	gatesCmd := &cobra.Command{
		Use:   "gates",
		Short: "Evaluate quality gates for a diagram",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGates(configPath, gatesInput, gatesJSON)
		},
	}
	gatesCmd.Flags().StringVar(&gatesInput, "input", "", "Diagram file")
	gatesCmd.Flags().BoolVar(&gatesJSON, "json", false, "Print the gate report as JSON")
	_ = gatesCmd.MarkFlagRequired("input")

	// regress
	regressCmd := &cobra.Command{
		Use:   "regress",
		Short: "Regression harness over recorded diagram fixtures",
	}

	var (
		regressFixtures  string
		regressReportDir string
		regressJSON      bool
	)
	regressRunCmd := &cobra.Command{
		Use:   "run",
		Short: "Recompile fixtures and compare against expected models",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRegress(regressFixtures, regressReportDir, regressJSON)
		},
	}
	regressRunCmd.Flags().StringVar(&regressFixtures, "fixtures", "", "Path to fixtures JSONL file")
	regressRunCmd.Flags().StringVar(&regressReportDir, "report-dir", "", "Directory for the report pack (optional)")
	regressRunCmd.Flags().BoolVar(&regressJSON, "json", false, "Print results as JSON")
	_ = regressRunCmd.MarkFlagRequired("fixtures")

	var (
		recordEndpoint string
		recordListen   string
		recordOutput   string
	)
	regressRecordCmd := &cobra.Command{
		Use:   "record",
		Short: "Record fixtures by proxying a live compile service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return recordFixtures(recordEndpoint, recordListen, recordOutput)
		},
	}
	regressRecordCmd.Flags().StringVar(&recordEndpoint, "endpoint", "", "Base URL of the compile service to proxy")
	regressRecordCmd.Flags().StringVar(&recordListen, "listen", ":8099", "Proxy listen address")
	regressRecordCmd.Flags().StringVar(&recordOutput, "output", "fixtures.jsonl", "Output file for recorded fixtures")
	_ = regressRecordCmd.MarkFlagRequired("endpoint")

	var updatePath string
	regressUpdateCmd := &cobra.Command{
		Use:   "update",
		Short: "Re-run fixtures and adopt the current compiler output as expected",
		RunE: func(cmd *cobra.Command, args []string) error {
			return updateFixtures(updatePath)
		},
	}
	regressUpdateCmd.Flags().StringVar(&updatePath, "fixtures", "", "Path to fixtures JSONL file")
	_ = regressUpdateCmd.MarkFlagRequired("fixtures")

	regressCmd.AddCommand(regressRunCmd, regressRecordCmd, regressUpdateCmd)

	// fixtures
	fixturesCmd := &cobra.Command{
		Use:   "fixtures",
		Short: "Fixture authoring helpers",
	}
	var (
		genInput  string
		genOutput string
	)
	fixturesGenerateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate fixtures from a directory of diagrams",
		RunE: func(cmd *cobra.Command, args []string) error {
			return generateFixtures(genInput, genOutput)
		},
	}
	fixturesGenerateCmd.Flags().StringVar(&genInput, "input", "", "Directory of diagram files")
	fixturesGenerateCmd.Flags().StringVar(&genOutput, "output", "fixtures.jsonl", "Output fixtures file")
	_ = fixturesGenerateCmd.MarkFlagRequired("input")
	fixturesCmd.AddCommand(fixturesGenerateCmd)

	// session
	sessionCmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect stored compile sessions",
	}

	sessionListCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return sessionList(configPath)
		},
	}

	var showModel bool
	sessionShowCmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return sessionShow(configPath, args[0], showModel)
		},
	}
	sessionShowCmd.Flags().BoolVar(&showModel, "model", false, "Print the stored model instead of the session record")

	sessionDiffCmd := &cobra.Command{
		Use:   "diff <old-id> <new-id>",
		Short: "Diff the models of two sessions",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return sessionDiff(configPath, args[0], args[1])
		},
	}

	var pruneKeep int
	sessionPruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove old sessions beyond the retention limit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return sessionPrune(configPath, pruneKeep)
		},
	}
	sessionPruneCmd.Flags().IntVar(&pruneKeep, "keep", 0, "Sessions to retain (default: session.keep from config)")

	sessionTagCmd := &cobra.Command{
		Use:   "tag <id> <tag>",
		Short: "Tag a session",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return sessionTag(configPath, args[0], args[1])
		},
	}

	sessionCmd.AddCommand(sessionListCmd, sessionShowCmd, sessionDiffCmd, sessionPruneCmd, sessionTagCmd)

	// review
	var (
		reviewSession string
		reviewInput   string
		reviewOutput  string
	)
	reviewCmd := &cobra.Command{
		Use:   "review",
		Short: "Review a compiled model in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReviewTUI(configPath, reviewSession, reviewInput, reviewOutput)
		},
	}
	reviewCmd.Flags().StringVar(&reviewSession, "session", "", "Session id to review")
	reviewCmd.Flags().StringVar(&reviewInput, "input", "", "Model JSON file to review (alternative to --session)")
	reviewCmd.Flags().StringVar(&reviewOutput, "output", "", "Write the review report to this file")

	// index + search
	var (
		indexSession string
		indexInput   string
	)
	indexCmd := &cobra.Command{
		Use:   "index",
		Short: "Index a compiled model for similarity search",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(configPath, indexSession, indexInput)
		},
	}
	indexCmd.Flags().StringVar(&indexSession, "session", "", "Session id holding the model")
	indexCmd.Flags().StringVar(&indexInput, "input", "", "Diagram file to compile and index")

	var (
		searchInput string
		searchTopK  int
	)
	searchCmd := &cobra.Command{
		Use:   "search",
		Short: "Find stored models similar to a diagram",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(configPath, searchInput, searchTopK)
		},
	}
	searchCmd.Flags().StringVar(&searchInput, "input", "", "Diagram file to compare")
	searchCmd.Flags().IntVar(&searchTopK, "top", 5, "Number of results")
	_ = searchCmd.MarkFlagRequired("input")

	// serve
	var serveReview bool
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP compile service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath, serveReview)
		},
	}
	serveCmd.Flags().BoolVar(&serveReview, "review", false, "Also serve the review screen")

	formatsCmd := &cobra.Command{
		Use:   "formats",
		Short: "List supported diagram formats",
		Run: func(cmd *cobra.Command, args []string) {
			for _, f := range formats.Default().Formats() {
				fmt.Println(f)
			}
		},
	}

	rootCmd.AddCommand(compileCmd, batchCmd, gatesCmd, regressCmd, fixturesCmd,
		sessionCmd, reviewCmd, indexCmd, searchCmd, serveCmd, formatsCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// backends holds the optional stores a command wires into the pipeline.
type backends struct {
	sessions *session.Store
	graph    graphstore.Repository
	vectors  *vector.Indexer
	gates    *qualitygate.Pipeline
	closers  []func()
}

func (b *backends) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

type backendOpts struct {
	sessions bool
	graph    bool
	vectors  bool
	gates    bool
}

// openBackends connects the stores a command asked for. A store that is
// requested but unconfigured stays nil, which the pipeline treats as a
// passthrough; a configured store that fails to connect is an error.
func openBackends(ctx context.Context, cfg *config.Config, opts backendOpts) (*backends, error) {
	b := &backends{}

	if opts.sessions {
		store, err := session.NewStore(cfg.Session.Dir)
		if err != nil {
			return nil, fmt.Errorf("opening session store: %w", err)
		}
		b.sessions = store
	}

	if opts.graph && cfg.Store.URI != "" {
		password := secrets.GetOrDefault(ctx, string(secrets.SecretGraphPassword), cfg.Store.Password)
		repo, err := neo4jstore.New(ctx, cfg.Store.URI, cfg.Store.Username, password)
		if err != nil {
			b.close()
			return nil, fmt.Errorf("connecting graph store: %w", err)
		}
		b.graph = repo
		b.closers = append(b.closers, func() { _ = repo.Close(context.Background()) })
	}

	if opts.vectors && cfg.Vector.Host != "" {
		repo, err := vector.NewQdrant(ctx, cfg.Vector.Host, cfg.Vector.Port, cfg.Vector.Collection)
		if err != nil {
			b.close()
			return nil, fmt.Errorf("connecting vector store: %w", err)
		}
		b.vectors = vector.NewIndexer(repo)
		b.closers = append(b.closers, func() { _ = repo.Close() })
	}

	if opts.gates && cfg.Gates.Enabled {
		b.gates = qualitygate.BuildPipeline(&cfg.Gates)
	}

	return b, nil
}

func loadConfig(path string) *config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: config load failed (%v), using defaults\n", err)
		cfg, _ = config.Load("")
	}
	return cfg
}

// stageList assembles the pipeline for one local compile.
func stageList(skipGates, doPersist, doIndex bool) []pipeline.Stage {
	stages := []pipeline.Stage{ingest.New(), lower.New(), audit.New()}
	if !skipGates {
		stages = append(stages, gate.New())
	}
	if doPersist {
		stages = append(stages, persist.New())
	}
	if doIndex {
		stages = append(stages, index.New())
	}
	return stages
}

// runStages drives the stages over one context, collecting metrics and
// warnings. Stage errors abort; a failed gate report does not.
func runStages(ctx context.Context, sc *pipeline.StageContext, stages []pipeline.Stage, m *metrics.CompileMetrics) ([]string, error) {
	var warnings []string
	for _, stage := range stages {
		start := time.Now()
		result, err := stage.Run(ctx, sc)
		status := "failed"
		if result != nil {
			status = string(result.Status)
			warnings = append(warnings, result.Warnings...)
			if id := result.Metadata["session_id"]; id != "" {
				sc.Params["session_id"] = id
			}
		}
		if m != nil {
			m.AddStage(stage.Name(), time.Since(start), status)
		}
		if err != nil {
			return warnings, fmt.Errorf("stage %s: %w", stage.Name(), err)
		}
		if stage.Name() == "ingest" && m != nil {
			m.CollectInput(sc.Format, sc.Index, len(sc.Findings))
		}
		if stage.Name() == "lower" && m != nil {
			m.CollectOutput(sc.Doc)
		}
	}
	return warnings, nil
}

func runCompile(configPath, input, output string, pretty, store, graph, doIndex, skipGates, jsonReport bool) error {
	cfg := loadConfig(configPath)
	ctx := context.Background()

	b, err := openBackends(ctx, cfg, backendOpts{
		sessions: store,
		graph:    graph,
		vectors:  doIndex,
		gates:    !skipGates,
	})
	if err != nil {
		return err
	}
	defer b.close()

	m := metrics.New()
	sc := &pipeline.StageContext{
		Registry: formats.Default(),
		Sessions: b.sessions,
		GraphDB:  b.graph,
		Vectors:  b.vectors,
		Gates:    b.gates,
		Params:   map[string]string{"input": input},
	}

	warnings, err := runStages(ctx, sc, stageList(skipGates, store || graph, doIndex), m)
	if err != nil {
		return err
	}

	var rendered []byte
	if strings.HasSuffix(output, ".yaml") || strings.HasSuffix(output, ".yml") {
		rendered, err = formats.ExportYAML(sc.Doc)
	} else {
		rendered, err = formats.ExportJSON(sc.Doc, pretty || output == "")
	}
	if err != nil {
		return fmt.Errorf("rendering model: %w", err)
	}

	if output == "" {
		fmt.Println(string(rendered))
	} else {
		if err := os.WriteFile(output, rendered, 0o644); err != nil {
			return fmt.Errorf("writing model: %w", err)
		}
		fmt.Printf("Model written to %s\n", output)
	}

	gateOutcome := ""
	if sc.GateReport != nil {
		gateOutcome = string(sc.GateReport.Status)
	}
	m.Finish(gateOutcome, warnings)

	if jsonReport {
		data, _ := m.JSON()
		fmt.Fprintln(os.Stderr, string(data))
	} else {
		m.PrintSummary(os.Stderr)
	}

	if id := sc.Params["session_id"]; id != "" {
		fmt.Fprintf(os.Stderr, "Session: %s\n", id)
	}
	if sc.GateReport != nil && sc.GateReport.Status == qualitygate.GateFailed {
		return fmt.Errorf("quality gates failed: %s", sc.GateReport.Summary)
	}
	return nil
}

func runBatch(configPath, input, output string, force, dryRun, store, skipGates, useTemporal bool) error {
	cfg := loadConfig(configPath)
	ctx := context.Background()
	registry := formats.Default()

	files, err := migration.CollectDiagrams(registry, input)
	if err != nil {
		return fmt.Errorf("collecting diagrams: %w", err)
	}
	if len(files) == 0 {
		return fmt.Errorf("no diagrams found under %s", input)
	}

	if err := os.MkdirAll(output, 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}

	runner := migration.NewIncrementalRunner(&migration.IncrementalConfig{
		OutputDir: output,
		InputDir:  input,
		ForceAll:  force,
		DryRun:    dryRun,
	})
	analysis, err := runner.Analyze(files)
	if err != nil {
		return fmt.Errorf("incremental analysis: %w", err)
	}
	fmt.Print(migration.FormatIncrementalReport(analysis))
	if dryRun {
		return nil
	}

	toConvert := runner.FilterFiles(files, analysis)
	if len(toConvert) == 0 {
		fmt.Println("Nothing to convert.")
		return runner.SaveState(files)
	}

	if useTemporal {
		if err := runBatchTemporal(ctx, cfg, toConvert, output, skipGates, store); err != nil {
			return err
		}
		return runner.SaveState(files)
	}

	b, err := openBackends(ctx, cfg, backendOpts{sessions: store, gates: !skipGates})
	if err != nil {
		return err
	}
	defer b.close()

	cache, err := migration.LoadCache(output)
	if err != nil {
		return fmt.Errorf("loading result cache: %w", err)
	}
	fingerprints := migration.ComputeFingerprints(files)

	converted, failed := 0, 0
	for _, f := range toConvert {
		entry, convErr := convertOne(ctx, registry, b, f, output, skipGates)
		entry.ContentHash = fingerprints[f.Path]
		cache.Put(entry)
		if convErr != nil {
			failed++
			fmt.Fprintf(os.Stderr, "  FAIL %s: %v\n", f.Path, convErr)
			continue
		}
		converted++
		fmt.Printf("  ok   %s -> %s\n", f.Path, entry.OutputPath)
	}

	currentPaths := make(map[string]bool, len(files))
	for _, f := range files {
		currentPaths[f.Path] = true
	}
	cache.Prune(currentPaths)
	if err := cache.Save(output); err != nil {
		return fmt.Errorf("saving result cache: %w", err)
	}
	if err := runner.SaveState(files); err != nil {
		return fmt.Errorf("saving batch state: %w", err)
	}

	fmt.Printf("\nConverted %d, failed %d (skipped %d unchanged)\n", converted, failed, analysis.Skipped)
	if failed > 0 {
		return fmt.Errorf("%d diagram(s) failed to convert", failed)
	}
	return nil
}

// convertOne compiles a single collected diagram and writes its model file.
func convertOne(ctx context.Context, registry *formats.Registry, b *backends, f migration.DiagramFile, outputDir string, skipGates bool) (*migration.CacheEntry, error) {
	entry := &migration.CacheEntry{
		SourcePath:  f.Path,
		ConvertedAt: time.Now(),
	}

	sc := &pipeline.StageContext{
		Registry: registry,
		Sessions: b.sessions,
		GraphDB:  b.graph,
		Gates:    b.gates,
		Params:   map[string]string{"input": f.Path},
	}
	if _, err := runStages(ctx, sc, stageList(skipGates, b.sessions != nil, false), nil); err != nil {
		return entry, err
	}

	model, err := sc.Doc.Canonical()
	if err != nil {
		return entry, fmt.Errorf("rendering model: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(f.Path), filepath.Ext(f.Path))
	outPath := filepath.Join(outputDir, base+".model.json")
	if err := os.WriteFile(outPath, model, 0o644); err != nil {
		return entry, fmt.Errorf("writing model: %w", err)
	}

	entry.OutputPath = outPath
	entry.Activities = len(sc.Doc.Model.Activities)
	entry.Connections = len(sc.Doc.Model.Connections)
	entry.UnknownHandlers = sc.Doc.Model.UnknownHandlerCount()
	if sc.GateReport != nil {
		entry.GateStatus = string(sc.GateReport.Status)
	}
	entry.Success = true
	return entry, nil
}

func runBatchTemporal(ctx context.Context, cfg *config.Config, files []migration.DiagramFile, output string, skipGates, store bool) error {
	c, err := temporalclient.Dial(temporalclient.Options{
		HostPort:  cfg.Temporal.Host,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		return fmt.Errorf("temporal client: %w", err)
	}
	defer c.Close()

	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}

	workflowID := fmt.Sprintf("batch-convert-%d", time.Now().Unix())
	run, err := c.ExecuteWorkflow(ctx, temporalclient.StartWorkflowOptions{
		ID:        workflowID,
		TaskQueue: cfg.Temporal.TaskQueue,
	}, temporalmod.BatchConvertWorkflow, temporalmod.BatchConvertInput{
		Paths:     paths,
		OutputDir: output,
		SkipGates: skipGates,
		Persist:   store,
	})
	if err != nil {
		return fmt.Errorf("starting workflow: %w", err)
	}
	fmt.Printf("Workflow started: %s\n", workflowID)

	var result temporalmod.BatchConvertOutput
	if err := run.Get(ctx, &result); err != nil {
		return fmt.Errorf("workflow failed: %w", err)
	}

	for _, o := range result.Outcomes {
		if o.Error != "" {
			fmt.Fprintf(os.Stderr, "  FAIL %s: %s\n", o.Path, o.Error)
		} else {
			fmt.Printf("  ok   %s (%d activities)\n", o.Path, o.Activities)
		}
	}
	fmt.Printf("\nConverted %d, failed %d, gate failures %d in %s\n",
		result.Converted, result.Failed, result.GateFailed, result.Duration.Round(time.Millisecond))
	if result.Failed > 0 {
		return fmt.Errorf("%d diagram(s) failed to convert", result.Failed)
	}
	return nil
}

func runGates(configPath, input string, jsonOut bool) error {
	cfg := loadConfig(configPath)
	ctx := context.Background()

	gates := qualitygate.BuildPipeline(&cfg.Gates)
	sc := &pipeline.StageContext{
		Registry: formats.Default(),
		Gates:    gates,
		Params:   map[string]string{"input": input},
	}
	if _, err := runStages(ctx, sc, stageList(false, false, false), nil); err != nil {
		return err
	}

	pr := sc.GateReport
	if pr == nil {
		return fmt.Errorf("no gate report produced")
	}

	if jsonOut {
		data, err := json.MarshalIndent(pr, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
	} else {
		fmt.Println(pr.Summary)
		for _, g := range pr.Gates {
			fmt.Printf("  [%-8s] %-28s %s\n", g.Status, g.Name, g.Message)
		}
	}

	if pr.Status == qualitygate.GateFailed {
		return fmt.Errorf("quality gates failed")
	}
	return nil
}

func runRegress(fixturesPath, reportDir string, jsonOut bool) error {
	ctx := context.Background()

	fixtures, err := regress.LoadFile(fixturesPath)
	if err != nil {
		return fmt.Errorf("loading fixtures: %w", err)
	}
	fmt.Printf("Loaded %d fixtures from %s\n", len(fixtures), fixturesPath)

	runner := regress.NewRunner(formats.Default())
	pack, err := runner.Run(ctx, fixtures)
	if err != nil {
		return fmt.Errorf("running fixtures: %w", err)
	}

	if jsonOut {
		data, err := json.MarshalIndent(pack, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
	} else {
		fmt.Print(pack.String())
	}

	if reportDir != "" {
		if err := pack.Write(reportDir); err != nil {
			return fmt.Errorf("writing report pack: %w", err)
		}
		fmt.Printf("Report pack written to %s\n", reportDir)
	}

	if failures := pack.Failures(); len(failures) > 0 {
		return fmt.Errorf("%d fixture(s) failed", len(failures))
	}
	return nil
}

func recordFixtures(endpoint, listen, output string) error {
	rec, err := regress.NewRecorder(&regress.RecorderConfig{
		TargetURL:  endpoint,
		ListenAddr: listen,
		OutputPath: output,
	})
	if err != nil {
		return fmt.Errorf("creating recorder: %w", err)
	}

	if err := rec.Start(); err != nil {
		return fmt.Errorf("starting recorder: %w", err)
	}
	fmt.Printf("Recording compiles through %s -> %s (Ctrl-C to stop)\n", listen, endpoint)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rec.Stop(ctx); err != nil {
		return fmt.Errorf("stopping recorder: %w", err)
	}
	fmt.Printf("Recorded %d fixtures to %s\n", rec.Count(), output)
	return nil
}

func updateFixtures(path string) error {
	fixtures, err := regress.LoadFile(path)
	if err != nil {
		return fmt.Errorf("loading fixtures: %w", err)
	}

	updated, changed, err := regress.Update(formats.Default(), fixtures)
	if err != nil {
		return fmt.Errorf("updating fixtures: %w", err)
	}
	if changed == 0 {
		fmt.Println("All fixtures already match the compiler output.")
		return nil
	}

	if err := regress.SaveFile(path, updated); err != nil {
		return fmt.Errorf("saving fixtures: %w", err)
	}
	fmt.Printf("Updated %d of %d fixtures in %s\n", changed, len(updated), path)
	return nil
}

func generateFixtures(inputDir, output string) error {
	fixtures, err := regress.GenerateFromDir(formats.Default(), inputDir)
	if err != nil {
		return fmt.Errorf("generating fixtures: %w", err)
	}
	if len(fixtures) == 0 {
		return fmt.Errorf("no diagrams found under %s", inputDir)
	}
	if err := regress.SaveFile(output, fixtures); err != nil {
		return fmt.Errorf("saving fixtures: %w", err)
	}
	fmt.Printf("Wrote %d fixtures to %s\n", len(fixtures), output)
	return nil
}

func openSessions(configPath string) (*session.Store, error) {
	cfg := loadConfig(configPath)
	store, err := session.NewStore(cfg.Session.Dir)
	if err != nil {
		return nil, fmt.Errorf("opening session store: %w", err)
	}
	return store, nil
}

func sessionList(configPath string) error {
	store, err := openSessions(configPath)
	if err != nil {
		return err
	}

	summaries := store.List()
	if len(summaries) == 0 {
		fmt.Println("No sessions stored.")
		return nil
	}

	fmt.Printf("%-14s %-20s %-24s %-8s %10s %12s %s\n",
		"ID", "CREATED", "SOURCE", "GATES", "ACTIVITIES", "CONNECTIONS", "TAG")
	for _, s := range summaries {
		fmt.Printf("%-14s %-20s %-24s %-8s %10d %12d %s\n",
			s.ID, s.CreatedAt.Format("2006-01-02 15:04:05"),
			filepath.Base(s.Source), s.GateStatus, s.Activities, s.Connections, s.Tag)
	}
	return nil
}

func sessionShow(configPath, id string, showModel bool) error {
	store, err := openSessions(configPath)
	if err != nil {
		return err
	}

	sess, err := store.Load(id)
	if err != nil {
		return err
	}

	if showModel {
		model, err := store.LoadArtifact(sess, session.ArtifactModel)
		if err != nil {
			return fmt.Errorf("loading model artifact: %w", err)
		}
		var doc simmodel.Document
		if err := json.Unmarshal(model, &doc); err != nil {
			return fmt.Errorf("decoding model artifact: %w", err)
		}
		pretty, err := doc.Pretty()
		if err != nil {
			return err
		}
		fmt.Println(string(pretty))
		return nil
	}

	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func sessionDiff(configPath, oldID, newID string) error {
	store, err := openSessions(configPath)
	if err != nil {
		return err
	}

	oldSess, err := store.Load(oldID)
	if err != nil {
		return err
	}
	newSess, err := store.Load(newID)
	if err != nil {
		return err
	}

	diff, err := session.DiffSessions(store, oldSess, newSess)
	if err != nil {
		return fmt.Errorf("diffing sessions: %w", err)
	}
	fmt.Print(session.FormatDiff(diff))
	return nil
}

func sessionPrune(configPath string, keep int) error {
	cfg := loadConfig(configPath)
	if keep <= 0 {
		keep = cfg.Session.Keep
	}

	store, err := session.NewStore(cfg.Session.Dir)
	if err != nil {
		return fmt.Errorf("opening session store: %w", err)
	}

	removed, err := store.Prune(keep)
	if err != nil {
		return fmt.Errorf("pruning sessions: %w", err)
	}
	fmt.Printf("Pruned %d sessions, kept %d most recent\n", removed, keep)
	return nil
}

func sessionTag(configPath, id, tag string) error {
	store, err := openSessions(configPath)
	if err != nil {
		return err
	}
	if err := store.Tag(id, tag); err != nil {
		return err
	}
	fmt.Printf("Tagged %s as %q\n", id, tag)
	return nil
}

// loadDocument resolves a model document from either a stored session or a
// diagram file compiled on the spot.
func loadDocument(configPath, sessionID, input string) (*simmodel.Document, string, error) {
	if sessionID != "" {
		store, err := openSessions(configPath)
		if err != nil {
			return nil, "", err
		}
		sess, err := store.Load(sessionID)
		if err != nil {
			return nil, "", err
		}
		raw, err := store.LoadArtifact(sess, session.ArtifactModel)
		if err != nil {
			return nil, "", fmt.Errorf("loading model artifact: %w", err)
		}
		var doc simmodel.Document
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, "", fmt.Errorf("decoding model artifact: %w", err)
		}
		return &doc, sess.Source, nil
	}

	if input == "" {
		return nil, "", fmt.Errorf("either --session or --input is required")
	}

	// A .model.json file is loaded directly; anything else is compiled.
	if strings.HasSuffix(input, ".model.json") {
		raw, err := os.ReadFile(input)
		if err != nil {
			return nil, "", fmt.Errorf("reading model: %w", err)
		}
		var doc simmodel.Document
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, "", fmt.Errorf("decoding model: %w", err)
		}
		return &doc, input, nil
	}

	sc := &pipeline.StageContext{
		Registry: formats.Default(),
		Params:   map[string]string{"input": input},
	}
	if _, err := runStages(context.Background(), sc, []pipeline.Stage{ingest.New(), lower.New()}, nil); err != nil {
		return nil, "", err
	}
	return sc.Doc, input, nil
}

func runReviewTUI(configPath, sessionID, input, output string) error {
	doc, source, err := loadDocument(configPath, sessionID, input)
	if err != nil {
		return err
	}

	rs := tui.NewReviewSession(source, doc)
	rs.SessionID = sessionID

	final, err := tui.RunReview(rs)
	if err != nil {
		return fmt.Errorf("review: %w", err)
	}

	if output != "" {
		if err := tui.SaveReviewReport(final, output); err != nil {
			return fmt.Errorf("saving review report: %w", err)
		}
		fmt.Printf("Review report written to %s\n", output)
	}
	return nil
}

func runIndex(configPath, sessionID, input string) error {
	cfg := loadConfig(configPath)
	ctx := context.Background()

	doc, source, err := loadDocument(configPath, sessionID, input)
	if err != nil {
		return err
	}

	b, err := openBackends(ctx, cfg, backendOpts{vectors: true})
	if err != nil {
		return err
	}
	defer b.close()
	if b.vectors == nil {
		return fmt.Errorf("no vector store configured (set vector.host)")
	}

	modelID := sessionID
	if modelID == "" {
		canonical, err := doc.Canonical()
		if err != nil {
			return err
		}
		modelID = session.ContentHash(canonical)
	}

	if err := b.vectors.IndexModel(ctx, modelID, source, doc); err != nil {
		return fmt.Errorf("indexing model: %w", err)
	}
	observability.Audit().LogIndex(ctx, cfg.Vector.Collection, modelID, 0)
	fmt.Printf("Indexed %s as %s\n", source, modelID)
	return nil
}

func runSearch(configPath, input string, topK int) error {
	cfg := loadConfig(configPath)
	ctx := context.Background()

	doc, _, err := loadDocument(configPath, "", input)
	if err != nil {
		return err
	}

	b, err := openBackends(ctx, cfg, backendOpts{vectors: true})
	if err != nil {
		return err
	}
	defer b.close()
	if b.vectors == nil {
		return fmt.Errorf("no vector store configured (set vector.host)")
	}

	results, err := b.vectors.SearchSimilar(ctx, doc, topK)
	if err != nil {
		return fmt.Errorf("searching: %w", err)
	}
	if len(results) == 0 {
		fmt.Println("No similar models found.")
		return nil
	}

	fmt.Printf("%-38s %-28s %s\n", "MODEL", "SOURCE", "SCORE")
	for _, r := range results {
		modelID := r.Metadata["model_id"]
		if modelID == "" {
			modelID = r.ID
		}
		fmt.Printf("%-38s %-28s %.4f\n", modelID, r.Metadata["source"], r.Score)
	}
	return nil
}

func runServe(configPath string, withReview bool) error {
	cfg := loadConfig(configPath)
	ctx := context.Background()

	tp, err := observability.InitTracing(ctx, &observability.TracingConfig{
		ServiceName:  "simforge",
		OTLPEndpoint: cfg.Server.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}

	if err := observability.InitGlobalAuditLogger(observability.DefaultAuditConfig()); err != nil {
		return fmt.Errorf("init audit log: %w", err)
	}

	b, err := openBackends(ctx, cfg, backendOpts{sessions: true, graph: true, vectors: true, gates: true})
	if err != nil {
		return err
	}

	svc, err := server.NewCompileService(&server.APIConfig{
		Addr:      cfg.Server.Addr,
		CacheSize: cfg.Server.CacheSize,
	}, formats.Default(), server.CompileDeps{
		Sessions: b.sessions,
		Graph:    b.graph,
		Vectors:  b.vectors,
		Gates:    b.gates,
	})
	if err != nil {
		return fmt.Errorf("creating compile service: %w", err)
	}

	svc.Health().RegisterCheck("sessions", server.SessionStoreHealthChecker(cfg.Session.Dir))
	if b.graph != nil {
		svc.Health().RegisterCheck("graph", server.GraphStoreHealthChecker(func(ctx context.Context) error {
			_, err := b.graph.ListModels(ctx)
			return err
		}))
	}

	shutdown := server.NewShutdownHandler(server.DefaultShutdownConfig())
	shutdown.AddHook(server.HTTPServerShutdownHook("compile-service", svc.Stop))
	for i, closer := range b.closers {
		closer := closer
		shutdown.RegisterHook(fmt.Sprintf("store-%d", i), 90, func(ctx context.Context) error {
			closer()
			return nil
		})
	}
	shutdown.AddHook(server.AuditLoggerShutdownHook(observability.Audit().Close))
	shutdown.AddHook(server.TracingShutdownHook(tp.Shutdown))

	if withReview {
		rev := review.New(&review.Config{ListenAddr: cfg.Server.ReviewAddr}, b.sessions)
		go func() {
			if err := rev.Server.Start(); err != nil {
				fmt.Fprintf(os.Stderr, "review server: %v\n", err)
			}
		}()
		shutdown.AddHook(server.HTTPServerShutdownHook("review-server", rev.Server.Stop))
		fmt.Printf("Review screen on %s\n", cfg.Server.ReviewAddr)
	}

	shutdown.Start()

	go func() {
		if err := svc.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "compile service: %v\n", err)
			shutdown.Shutdown()
		}
	}()

	fmt.Printf("Compile service on %s\n", cfg.Server.Addr)
	shutdown.Wait()
	return nil
}
