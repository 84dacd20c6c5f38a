package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"nyayasetu-backend/bootstrap"
	"nyayasetu-backend/chunker"
	"nyayasetu-backend/config"
	"nyayasetu-backend/corpus"
	"nyayasetu-backend/logger"
	"nyayasetu-backend/metrics"
)

var (
	ok   = color.New(color.FgGreen).SprintFunc()
	warn = color.New(color.FgYellow).SprintFunc()
	bad  = color.New(color.FgRed).SprintFunc()
	bold = color.New(color.Bold).SprintFunc()
)

type options struct {
	dataDir  string
	backend  string
	provider string
	verbose  bool
}

func main() {
	var opts options

	root := &cobra.Command{
		Use:   "build-index",
		Short: "Build and inspect the legal corpus vector index",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log.SetFlags(0)
		},
	}
	root.PersistentFlags().StringVar(&opts.dataDir, "data-dir", "", "dataset directory (overrides DATA_DIR)")
	root.PersistentFlags().StringVar(&opts.backend, "backend", "", "index backend: memory, pgvector or qdrant (overrides INDEX_BACKEND)")
	root.PersistentFlags().StringVar(&opts.provider, "provider", "", "embedding provider (overrides EMBEDDING_PROVIDER)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log every pipeline event")

	root.AddCommand(
		&cobra.Command{
			Use:   "build",
			Short: "Load, chunk, embed and publish a new index version",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runBuild(cmd.Context(), opts)
			},
		},
		&cobra.Command{
			Use:   "inspect",
			Short: "Load and chunk the corpus without embedding anything",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runInspect(cmd.Context(), opts)
			},
		},
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		log.Printf("%s %v", bad("❌"), err)
		os.Exit(1)
	}
}

func loadConfig(opts options) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if opts.dataDir != "" {
		cfg.DataDir = opts.dataDir
	}
	if opts.backend != "" {
		cfg.Index.Backend = opts.backend
	}
	if opts.provider != "" {
		cfg.Embedding.Provider = opts.provider
	}
	// the CLI always builds, whatever the server default is
	cfg.Index.BuildOnStart = true
	return cfg, cfg.Validate()
}

func runBuild(ctx context.Context, opts options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	level := "warn"
	if opts.verbose {
		level = "debug"
	}
	zlog := logger.New(logger.Config{Level: level, Pretty: true, Output: os.Stderr})

	stack, err := bootstrap.New(ctx, cfg, zlog, metrics.NewMetrics())
	if err != nil {
		return err
	}
	defer stack.Close()

	log.Printf("📚 Building index from %s", bold(cfg.DataDir))
	log.Printf("   Embedder: %s   Backend: %s", stack.Embedder.Model(), stack.Backend.Name())

	start := time.Now()
	outcome, err := stack.Knowledge.Rebuild(ctx, func(step string) {
		log.Printf("   🔄 %s", step)
	})
	if err != nil {
		return fmt.Errorf("build failed: %w", err)
	}

	log.Printf("   ✓ Corpus version: %s", outcome.CorpusVersion)
	log.Printf("   ✓ Index version:  %s", outcome.IndexVersion)
	log.Printf("   ✓ Chunks indexed: %d", outcome.ChunkCount)
	if outcome.FailedBatches > 0 {
		log.Printf("   %s %s", warn("⚠️"), outcome.Warning)
	}
	log.Printf("\n%s Index build complete in %s", ok("✅"), time.Since(start).Round(time.Millisecond))
	return nil
}

func runInspect(ctx context.Context, opts options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	zlog := logger.New(logger.Config{Level: "warn", Pretty: true, Output: os.Stderr})
	docs, report, err := corpus.NewLoader(cfg.DataDir, corpus.LoaderWithLogger(zlog)).Load(ctx)
	if err != nil {
		return err
	}
	snap, err := corpus.NewSnapshot(docs)
	if err != nil {
		return err
	}

	log.Printf("📄 Corpus %s (%d files, %d documents)", bold(snap.Version), report.Files, report.Documents)
	if report.SkippedFiles > 0 || report.SkippedRecords > 0 {
		log.Printf("   %s skipped %d files and %d records", warn("⚠️"), report.SkippedFiles, report.SkippedRecords)
	}

	st := snap.Stats()
	codes := make([]string, 0, len(st.Laws))
	for code, n := range st.Laws {
		if n > 0 {
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)
	for _, code := range codes {
		log.Printf("   %-6s %d sections", code, st.Laws[code])
	}
	log.Printf("   cases  %d", st.Cases)
	log.Printf("   acts   %d", st.CompaniesActSections)
	log.Printf("   clauses %d", st.Clauses)

	chunks, errs := chunker.ChunkAll(docs, cfg.Chunking.WindowSize, cfg.Chunking.Overlap)
	for _, err := range errs {
		log.Printf("   %s %v", bad("❌"), err)
	}
	log.Printf("\n%s %d chunks at window %d / overlap %d", ok("✓"), len(chunks), cfg.Chunking.WindowSize, cfg.Chunking.Overlap)
	return nil
}
