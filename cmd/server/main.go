package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/purab107/yoga-app/internal/analysis"
	"github.com/purab107/yoga-app/internal/config"
	"github.com/purab107/yoga-app/internal/handlers"
	"github.com/purab107/yoga-app/internal/metrics"
	"github.com/purab107/yoga-app/internal/model"
	"github.com/purab107/yoga-app/internal/tracing"
	"github.com/purab107/yoga-app/internal/video"
	"github.com/purab107/yoga-app/internal/video/capture"
	"github.com/purab107/yoga-app/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	fatalOnErr(err, "load config")
	fatalOnErr(cfg.ResolveModelPaths(), "resolve model paths")

	log, err := logger.New(cfg.LogLevel)
	fatalOnErr(err, "init logger")
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.OTelEndpoint != "" {
		tp, err := tracing.InitTracer(ctx, cfg.OTelEndpoint)
		if err != nil {
			log.Warn("tracing init failed, continuing without tracing", zap.Error(err))
		} else {
			defer tp.Shutdown(context.Background())
		}
	}

	if cfg.ONNXRuntimeLib != "" {
		model.UseRuntimeLibrary(cfg.ONNXRuntimeLib)
	}
	classifier := model.NewClassifier(model.ServerLoader(cfg.ModelPath, cfg.ModelMetadataPath), log)
	defer classifier.Close()

	if cfg.EagerModelLoad {
		fatalOnErr(classifier.Load(), "load model")
	} else {
		log.Info("model will load on first request", zap.String("model_path", cfg.ModelPath))
	}

	extractor := video.NewExtractor(capture.Open, log)
	service := analysis.NewService(extractor, classifier, log, analysis.Config{
		UploadDir:  cfg.UploadDir,
		SampleRate: cfg.SampleRate,
	})
	handler := handlers.NewHandler(service, log, cfg.MaxUploadMB<<20)

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, log)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: handler.Routes(),
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		log.Info("received shutdown signal", zap.String("signal", sig.String()))

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		metricsSrv.Shutdown(shutdownCtx)
		srv.Shutdown(shutdownCtx)
	}()

	log.Info("server starting",
		zap.Int("port", cfg.Port),
		zap.Strings("poses", model.PoseLabels),
		zap.Strings("endpoints", []string{
			"GET /", "GET /poses", "POST /analyze-pose", "POST /analyze-webcam-frame",
		}),
	)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server failed", zap.Error(err))
	}
	log.Info("server stopped")
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		panic(msg + ": " + err.Error())
	}
}
