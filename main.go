package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/paoliniluis/similarity/pkg/batch"
	"github.com/paoliniluis/similarity/pkg/chat"
	"github.com/paoliniluis/similarity/pkg/config"
	"github.com/paoliniluis/similarity/pkg/database"
	"github.com/paoliniluis/similarity/pkg/embedding"
	"github.com/paoliniluis/similarity/pkg/handlers"
	"github.com/paoliniluis/similarity/pkg/keywords"
	"github.com/paoliniluis/similarity/pkg/llm"
	"github.com/paoliniluis/similarity/pkg/logging"
	"github.com/paoliniluis/similarity/pkg/repositories"
	"github.com/paoliniluis/similarity/pkg/reranker"
	"github.com/paoliniluis/similarity/pkg/search"
	"github.com/paoliniluis/similarity/pkg/workers"
)

// Version is set at build time via ldflags.
var Version = "dev"

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: similarity [-config path] <command>

Commands:
  serve                      Run the HTTP API server
  worker <kind>              Run a background worker loop
                             (github_issues | discourse_posts | llm_summaries |
                              embeddings | batch_monitor)
  batch <operation> <table>  Submit a batch job
                             (summarize | create-questions |
                              create-questions-and-concepts)
  batch-check                Poll pending batches once and reconcile results
  apikey add <description>   Create an API key
  keywords import <file>     Import a keyword seed file (YAML)
`)
	os.Exit(2)
}

// app bundles every wired service so each subcommand picks what it needs.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *database.DB

	issueRepo     repositories.IssueRepository
	discourseRepo repositories.DiscourseRepository
	docRepo       repositories.DocRepository
	questionRepo  repositories.QuestionRepository
	keywordRepo   repositories.KeywordRepository
	synonymRepo   repositories.SynonymRepository
	apiKeyRepo    repositories.APIKeyRepository
	chatRepo      repositories.ChatRepository
	batchRepo     repositories.BatchRepository

	embeddings   *embedding.Service
	reranker     *reranker.Service
	llmClient    *llm.Client
	vocabulary   *keywords.Service
	engine       *search.Engine
	reranked     *search.RerankedEngine
	chatService  *chat.Service
	orchestrator *batch.Orchestrator
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	db, err := database.NewConnection(ctx, &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, db: db}

	a.issueRepo = repositories.NewIssueRepository(db)
	a.discourseRepo = repositories.NewDiscourseRepository(db)
	a.docRepo = repositories.NewDocRepository(db)
	a.questionRepo = repositories.NewQuestionRepository(db)
	a.keywordRepo = repositories.NewKeywordRepository(db)
	a.synonymRepo = repositories.NewSynonymRepository(db)
	a.apiKeyRepo = repositories.NewAPIKeyRepository(db)
	a.chatRepo = repositories.NewChatRepository(db)
	a.batchRepo = repositories.NewBatchRepository(db)

	a.embeddings, err = embedding.NewService(&cfg.Embedding, logger)
	if err != nil {
		return nil, err
	}

	a.llmClient, err = llm.NewClientFromConfig(&cfg.LLM, logger)
	if err != nil {
		return nil, err
	}
	a.vocabulary = keywords.NewService(a.keywordRepo, a.synonymRepo, a.llmClient, logger)
	a.llmClient.SetKeywordInjector(a.vocabulary)

	a.reranker = reranker.NewService(&cfg.Reranker, logger)
	a.engine = search.NewEngine(db, a.embeddings, cfg, logger)
	a.reranked = search.NewRerankedEngine(a.engine, a.reranker, logger)

	a.chatService = chat.NewService(
		a.chatRepo, a.docRepo, a.questionRepo, a.keywordRepo,
		a.vocabulary, a.reranked, a.llmClient, logger)

	a.orchestrator = batch.NewOrchestrator(
		&cfg.Batch, batch.NewProviderClient(&cfg.Batch),
		a.batchRepo, a.issueRepo, a.discourseRepo, a.docRepo, a.questionRepo,
		a.vocabulary, logger)

	return a, nil
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
	}

	cfg, err := config.Load(*configPath, Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, args); err != nil {
		logger.Fatal("command failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger, args []string) error {
	switch args[0] {
	case "serve":
		if err := database.RunMigrations(&cfg.Database, "migrations", logger); err != nil {
			return fmt.Errorf("migrations failed: %w", err)
		}
		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.db.Close()
		return serve(ctx, a)

	case "worker":
		if len(args) < 2 {
			usage()
		}
		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.db.Close()
		return runWorker(ctx, a, args[1])

	case "batch":
		if len(args) < 3 {
			usage()
		}
		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.db.Close()
		batchID, err := a.orchestrator.CreateAndSubmit(ctx, args[1], args[2])
		if err != nil {
			return err
		}
		if batchID == "" {
			fmt.Println("No candidates to process")
			return nil
		}
		fmt.Printf("Submitted batch %s\n", batchID)
		return nil

	case "batch-check":
		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.db.Close()
		return a.orchestrator.CheckPending(ctx)

	case "apikey":
		if len(args) < 3 || args[1] != "add" {
			usage()
		}
		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.db.Close()
		key, err := a.apiKeyRepo.Create(ctx, args[2])
		if err != nil {
			return err
		}
		fmt.Printf("Created API key: %s\n", key.Key)
		return nil

	case "keywords":
		if len(args) < 3 || args[1] != "import" {
			usage()
		}
		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.db.Close()
		imported, err := a.vocabulary.ImportFile(ctx, args[2])
		if err != nil {
			return err
		}
		fmt.Printf("Imported %d keywords\n", imported)
		return nil

	default:
		usage()
		return nil
	}
}

func serve(ctx context.Context, a *app) error {
	router := handlers.NewRouter(&handlers.RouterDeps{
		Config:     a.cfg,
		Logger:     a.logger,
		APIKeys:    a.apiKeyRepo,
		Health:     handlers.NewHealthHandler(a.cfg, a.logger),
		Embedding:  handlers.NewEmbeddingHandler(a.embeddings, a.logger),
		Rerank:     handlers.NewRerankHandler(a.reranker, a.logger),
		Similarity: handlers.NewSimilarityHandler(a.engine, a.reranked, a.logger),
		Chat:       handlers.NewChatHandler(a.chatService, a.logger),
		Keywords:   handlers.NewKeywordHandler(a.keywordRepo, a.logger),
		Synonyms:   handlers.NewSynonymHandler(a.synonymRepo, a.logger),
	})

	addr := a.cfg.BindAddr + ":" + a.cfg.Port
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("server starting",
			zap.String("addr", addr),
			zap.String("version", a.cfg.Version))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		a.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

func runWorker(ctx context.Context, a *app, kind string) error {
	var worker workers.Worker
	workerCfg := a.cfg.Worker

	switch kind {
	case "github_issues":
		worker = workers.NewGitHubWorker(&a.cfg.GitHub, a.issueRepo, a.engine, a.embeddings, a.logger)
	case "discourse_posts":
		worker = workers.NewDiscourseWorker(&a.cfg.Discourse, a.discourseRepo, a.engine, a.embeddings, a.logger)
	case "llm_summaries":
		worker = workers.NewSummaryWorker(&a.cfg.Worker, a.issueRepo, a.discourseRepo, a.docRepo, a.llmClient, a.logger)
	case "embeddings":
		worker = workers.NewEmbeddingWorker(&a.cfg.Worker, a.issueRepo, a.discourseRepo, a.docRepo,
			a.questionRepo, a.keywordRepo, a.synonymRepo, a.embeddings, a.logger)
	case "batch_monitor":
		worker = workers.NewBatchMonitorWorker(a.orchestrator)
		workerCfg.PollIntervalSeconds = a.cfg.Batch.PollIntervalSeconds
	default:
		return fmt.Errorf("unknown worker kind %q", kind)
	}

	return workers.NewRunner(worker, &workerCfg, a.logger).Run(ctx)
}
