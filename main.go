package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spooky-finn/go-depth-recorder/archive"
	"github.com/spooky-finn/go-depth-recorder/config"
	"github.com/spooky-finn/go-depth-recorder/domain"
	"github.com/spooky-finn/go-depth-recorder/infrastructure/logger"
	promclient "github.com/spooky-finn/go-depth-recorder/infrastructure/prometheus"
	"github.com/spooky-finn/go-depth-recorder/provider/binance"
	"github.com/spooky-finn/go-depth-recorder/provider/telegram"
	"github.com/spooky-finn/go-depth-recorder/rpc"
	"github.com/spooky-finn/go-depth-recorder/storage"
	"github.com/spooky-finn/go-depth-recorder/usecase"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "replay" {
		if err := runReplay(os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	symbols, err := cfg.MarketSymbols()
	if err != nil {
		return err
	}

	base := logger.New(logger.Config{Level: cfg.Log.Level, File: cfg.Log.File})
	defer func() { _ = base.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	var bot *telegram.BotAPI
	if cfg.Telegram.Token != "" {
		bot = telegram.NewBotAPI(telegram.Options{
			Endpoint:         cfg.Telegram.APIEndpoint,
			Token:            cfg.Telegram.Token,
			CaptionMaxLength: cfg.Telegram.CaptionMaxLength,
			MessageMaxLength: cfg.Telegram.MessageMaxLength,
		})
	}

	log := base
	if cfg.Telegram.NotifyEnabled() {
		notifier := telegram.NewNotifier(bot, cfg.Telegram.LogChatID, cfg.Telegram.NotifyQueue, base)
		log = logger.WithNotifier(base, logger.ParseLevel(cfg.Telegram.NotifyLevel), notifier.Hook)
		g.Go(func() error { return notifier.Run(ctx) })
	}

	log.Info("starting depth recorder",
		zap.Strings("symbols", cfg.Symbols),
		zap.Stringer("mode", cfg.PersistMode),
		zap.String("dir", cfg.SaveDir),
	)

	if err := os.MkdirAll(cfg.SaveDir, 0o755); err != nil {
		return err
	}

	metrics := promclient.NewMetrics()

	instruments := make([]string, len(symbols))
	for i, s := range symbols {
		instruments[i] = s.Instrument()
	}
	rpcServer := rpc.NewServer(instruments, log)

	var onClose func(storage.Segment)
	if cfg.Telegram.ArchivalEnabled() {
		ledger, err := archive.OpenLedger(cfg.Archive.LedgerDir)
		if err != nil {
			return err
		}
		defer ledger.Close()

		worker := archive.NewWorker(archive.NewQueue(), ledger, bot, archive.WorkerOptions{
			ChatID:        cfg.Telegram.ChatID,
			MaxPartSize:   cfg.Archive.MaxPartSize,
			UploadDelay:   cfg.Archive.UploadDelay,
			RetryInterval: cfg.Archive.RetryInterval,
		}, metrics, log)

		recovered, err := worker.RecoverSegments(cfg.SaveDir, time.Now())
		if err != nil {
			log.Error("failed to scan for closed segments", zap.Error(err))
		} else if recovered > 0 {
			log.Info("queued closed segments from a previous run", zap.Int("segments", recovered))
		}

		onClose = worker.Enqueue
		g.Go(func() error { return worker.Run(ctx) })
	} else {
		log.Warn("telegram archive chat is not configured, closed segments stay on disk")
	}

	syncAPI := binance.NewSyncAPI(cfg.Binance.RestEndpoint, cfg.Binance.SnapshotLimit, cfg.Binance.RetryBackoff, log)
	stream := binance.NewStreamClient(cfg.Binance.StreamEndpoint, cfg.Binance.RetryBackoff, cfg.Binance.ReadTimeout, metrics, log)

	for _, symbol := range symbols {
		pipeline := usecase.NewPipeline(symbol, usecase.PipelineDeps{
			Stream:  stream,
			Fetcher: syncAPI,
			Status:  rpcServer,
			NewSink: func(s *domain.MarketSymbol) usecase.RecordSink {
				return storage.NewSegmentWriter(s.Instrument(), storage.WriterOptions{
					Dir:           cfg.SaveDir,
					FlushInterval: cfg.Writer.FlushInterval,
					MaxBatchSize:  cfg.Writer.MaxBatchSize,
					OnClose:       onClose,
				}, metrics, log)
			},
		}, usecase.PipelineOptions{
			Mode:         cfg.PersistMode,
			QueueMaxSize: cfg.QueueMaxSize,
			RetryBackoff: cfg.Binance.RetryBackoff,
		}, metrics, log)

		g.Go(func() error { return pipeline.Run(ctx) })
	}

	g.Go(func() error { return metrics.Serve(ctx, cfg.MetricsAddr, log) })
	g.Go(func() error { return rpcServer.ListenAndServe(ctx, cfg.GRPCAddr) })

	err = g.Wait()
	log.Info("depth recorder stopped")
	return err
}
