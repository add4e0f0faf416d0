// Package main wires together the thumbnail generation service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/wavaa/thumbforge/internal/api"
	"github.com/wavaa/thumbforge/internal/concept"
	"github.com/wavaa/thumbforge/internal/config"
	"github.com/wavaa/thumbforge/internal/cutout"
	"github.com/wavaa/thumbforge/internal/jobs"
	"github.com/wavaa/thumbforge/internal/logging"
	"github.com/wavaa/thumbforge/internal/metrics"
	"github.com/wavaa/thumbforge/internal/pipeline"
	"github.com/wavaa/thumbforge/internal/progress"
	"github.com/wavaa/thumbforge/internal/progress/sinks"
	"github.com/wavaa/thumbforge/internal/resolve"
	"github.com/wavaa/thumbforge/internal/social"
)

// buildStrategies assembles the resolver chain. Cheap desktop HTTP runs
// first, then the rendered browser, then the stealth browser, then the
// mobile re-entry, with the search API as the last resort. The returned
// close func releases browser resources.
func buildStrategies(cfg config.ScrapeConfig, logger *zap.Logger) ([]resolve.Strategy, *resolve.MobileStrategy, func()) {
	strategies := []resolve.Strategy{
		resolve.NewHTTPStrategy(resolve.HTTPConfig{
			UserAgent: cfg.UserAgent,
			Timeout:   cfg.HTTPTimeout,
		}, logger),
	}
	closeFn := func() {}
	browser, err := resolve.NewBrowserStrategy(resolve.BrowserConfig{
		UserAgent:   cfg.UserAgent,
		MaxParallel: cfg.BrowserMaxParallel,
		Timeout:     cfg.BrowserTimeout,
		WarmupURL:   cfg.WarmupURL,
	}, logger)
	if err != nil {
		logger.Warn("browser strategy init failed", zap.Error(err))
	} else {
		closeFn = browser.Close
		strategies = append(strategies, browser)
	}
	mobile := resolve.NewMobileStrategy(cfg.MobileTimeout)
	strategies = append(strategies,
		resolve.NewStealthStrategy(resolve.StealthConfig{
			UserAgent: cfg.UserAgent,
			Timeout:   cfg.StealthTimeout,
			WarmupURL: cfg.WarmupURL,
		}, logger),
		mobile,
		resolve.NewSearchAPIStrategy(resolve.SearchAPIConfig{}, logger),
	)
	return strategies, mobile, closeFn
}

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	// Local development keeps API keys in .env; absence is fine.
	_ = godotenv.Load()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)

	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	strategies, mobile, closeStrategies := buildStrategies(cfg.Scrape, logger.Named("scrape"))
	defer closeStrategies()
	resolver := resolve.NewResolver(logger.Named("scrape"), strategies...)
	mobile.Bind(resolver.Resolve)

	localCutout := cutout.NewLocalEngine(cutout.LocalConfig{
		ModelDir:    cfg.Cutout.ModelDir,
		Quality:     cfg.Cutout.Quality,
		PostProcess: cfg.Cutout.PostProcess,
		OnnxLibrary: cfg.Cutout.OnnxLibrary,
	}, logger.Named("cutout"))
	remoteCutout := cutout.NewRemoteClient(cutout.RemoteConfig{
		Endpoint:  cfg.Cutout.RemoteEndpoint,
		UserAgent: cfg.Scrape.UserAgent,
	}, logger.Named("cutout"))
	remover := cutout.NewEngine(localCutout, remoteCutout, logger.Named("cutout"))

	synth := concept.NewSynthesizer(concept.Config{
		AnalysisModel:      cfg.Gemini.AnalysisModel,
		ImageModel:         cfg.Gemini.ImageModel,
		ImageFallbackModel: cfg.Gemini.ImageFallbackModel,
	}, logger.Named("concept"))

	store := jobs.NewStore()

	hubSinks := []progress.Sink{
		sinks.NewLogSink(logger.Named("progress")),
		jobs.NewProgressSink(store),
	}
	promSink, err := sinks.NewPrometheusSink(prometheus.DefaultRegisterer)
	if err != nil {
		logger.Warn("progress metrics sink init failed", zap.Error(err))
	} else {
		hubSinks = append(hubSinks, promSink)
	}
	hub := progress.NewHub(progress.Config{Logger: logger.Named("progress")}, hubSinks...)

	pipe := pipeline.New(pipeline.Config{
		ScrapeBudget: cfg.Scrape.OverallBudget,
		CPUWorkers:   cfg.Jobs.CPUWorkers,
	}, resolver, remover, synth, hub, logger.Named("pipeline"))

	queue := jobs.NewQueue(cfg.Jobs.QueueDepth)
	pool := jobs.NewPool(jobs.PoolConfig{Workers: cfg.Jobs.Workers}, queue, store, pipe, logger.Named("worker"))
	pool.Start(ctx)

	connections := social.NewConnectionStore(cfg.Social.ConnectionsPath)
	schedule := social.NewScheduleStore(cfg.Social.SchedulePath)
	snsLogger := logger.Named("sns")
	oauth := social.NewOAuth(social.OAuthConfig{
		Facebook: social.AppCredentials{ID: cfg.Social.FacebookAppID, Secret: cfg.Social.FacebookAppSecret},
		Threads:  social.AppCredentials{ID: cfg.Social.ThreadsAppID, Secret: cfg.Social.ThreadsAppSecret},
		Google:   social.AppCredentials{ID: cfg.Social.GoogleClientID, Secret: cfg.Social.GoogleClientSecret},
	}, connections, snsLogger)
	publisher := social.NewGraphPublisher(nil, snsLogger)
	poller := social.NewPoller(schedule, connections, publisher, cfg.Social.PollInterval, snsLogger)
	go poller.Run(ctx)

	apiServer := api.NewServer(api.Deps{
		Jobs:        store,
		Queue:       queue,
		Connections: connections,
		Schedule:    schedule,
		OAuth:       oauth,
		Publisher:   publisher,
		Logger:      logger.Named("api"),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	queue.Close()
	pool.Wait()
	if err := hub.Close(shutdownCtx); err != nil {
		logger.Warn("progress hub close", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
