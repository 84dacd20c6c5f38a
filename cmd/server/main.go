package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"nyayasetu-backend/bootstrap"
	"nyayasetu-backend/config"
	"nyayasetu-backend/handlers"
	"nyayasetu-backend/logger"
	"nyayasetu-backend/metrics"
	"nyayasetu-backend/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zlog := logger.New(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})
	gin.SetMode(cfg.Server.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.NewMetrics()
	stack, err := bootstrap.New(ctx, cfg, zlog, m)
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to initialize services")
	}
	defer stack.Close()

	// A failed initialization still serves lexical search and static answers
	if err := stack.Knowledge.Initialize(ctx); err != nil {
		zlog.Error().Err(err).Msg("knowledge initialization incomplete")
	}

	var answerOpts []service.AnswerOption
	if stack.Generator != nil {
		answerOpts = append(answerOpts, service.AnswerWithGenerator(stack.Generator))
	}
	answerOpts = append(answerOpts,
		service.AnswerWithTopK(cfg.Generation.TopK),
		service.AnswerWithGenerationParams(cfg.Generation.Temperature, cfg.Generation.MaxTokens),
		service.AnswerWithBudgets(cfg.Generation.CallTimeout, cfg.Generation.QueryBudget, cfg.Generation.MinStrategyBudget),
		service.AnswerWithLogger(logger.Component(zlog, "answer")),
		service.AnswerWithMetrics(m),
	)

	builds := service.NewIndexBuildService(stack.Knowledge,
		service.IndexBuildWithJobStore(stack.Jobs),
		service.IndexBuildWithLogger(logger.Component(zlog, "build")),
	)

	router := handlers.NewRouter(handlers.Services{
		Knowledge: stack.Knowledge,
		Search: service.NewSearchService(stack.Knowledge,
			service.SearchWithLimits(cfg.Search.DefaultLimit, cfg.Search.MaxLimit),
			service.SearchWithDefaultMode(service.SearchMode(cfg.Search.DefaultMode)),
			service.SearchWithBudgets(cfg.Search.CallTimeout, cfg.Search.QueryBudget),
			service.SearchWithLogger(logger.Component(zlog, "search")),
			service.SearchWithMetrics(m),
		),
		Answers: service.NewAnswerService(stack.Knowledge, answerOpts...),
		Builds:  builds,
		Metrics: m,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zlog.Info().Str("port", cfg.Server.Port).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	<-ctx.Done()
	zlog.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Err(err).Msg("graceful shutdown failed")
	}
	builds.Wait()
}
