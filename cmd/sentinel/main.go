package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"

	"PensionSentinel/internal/analyzer"
	"PensionSentinel/internal/api"
	"PensionSentinel/internal/approval"
	"PensionSentinel/internal/asset"
	"PensionSentinel/internal/batch"
	"PensionSentinel/internal/chain"
	"PensionSentinel/internal/config"
	"PensionSentinel/internal/logging"
	"PensionSentinel/internal/metrics"
	"PensionSentinel/internal/notifier"
	"PensionSentinel/internal/operator"
	"PensionSentinel/internal/opportunity"
	"PensionSentinel/internal/proposal"
	"PensionSentinel/internal/scheduler"
	"PensionSentinel/internal/store"
)

func main() {
	boot := logrus.New()
	if err := config.LoadDotEnv(".env"); err != nil {
		boot.Fatalf("load .env: %v", err)
	}

	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		boot.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		boot.Fatalf("config validation: %v", err)
	}

	log := logging.New(cfg.Log.Level, cfg.Log.Format)
	log.Info("PensionSentinel starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Store
	st, err := store.NewSQLiteStore(cfg.Database.SQLitePath, log)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer st.Close()

	funds, _ := cfg.Funds()
	for _, f := range funds {
		if err := st.SaveFund(ctx, f); err != nil {
			log.Fatalf("seed fund: %v", err)
		}
	}
	if len(funds) > 0 {
		log.WithField("count", len(funds)).Info("seeded funds from config")
	}

	// Assets
	overrides, _ := cfg.AssetOverrides()
	assets, err := asset.NewRegistry(overrides...)
	if err != nil {
		log.Fatalf("asset registry: %v", err)
	}
	log.WithField("assets", assets.Symbols()).Info("settlement assets loaded")

	// Chain
	ec, err := chain.Dial(ctx, cfg.Chain.RPCURL, chain.Options{
		PrivateKey:   cfg.Chain.PrivateKey,
		CallTimeout:  cfg.Chain.CallTimeout.Duration,
		PollInterval: cfg.Chain.PollInterval.Duration,
	})
	if err != nil {
		log.Fatalf("connect chain: %v", err)
	}
	defer ec.Close()
	chainLog := log.WithField("chain_id", ec.ChainID().String())
	if signer, ok := ec.Signer(); ok {
		chainLog.WithField("signer", signer.Hex()).Info("chain connected")
	} else {
		chainLog.Warn("chain connected without signer; approvals will fail")
	}

	// Proposal generation
	src := opportunity.NewHTTPSource(cfg.Opportunities.BaseURL, cfg.Opportunities.APIKey, cfg.Proxy, cfg.Opportunities.Timeout.Duration, log)
	var primary analyzer.Analyzer
	if cfg.LLM.APIKey != "" {
		primary = &analyzer.LLM{
			Completer: analyzer.NewOpenAICompleter(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.Model, cfg.LLM.Temperature),
			Timeout:   cfg.LLM.Timeout.Duration,
		}
	}
	gen := proposal.NewGenerator(src, primary, log)
	log.WithField("analyzer", gen.AnalyzerName()).Info("proposal generator ready")

	m := metrics.New()
	runner := batch.NewRunner(st, ec, assets, gen, m, log)
	executor := approval.NewExecutor(st, ec, assets, m, log, approval.Options{
		ConfirmTimeout: cfg.Chain.ConfirmTimeout.Duration,
	})

	// Notifier
	var tn notifier.Notifier = notifier.Noop{}
	var tg *notifier.TelegramNotifier
	if cfg.Telegram.BotToken != "" {
		tg = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy, log)
		tn = tg
	} else {
		log.Warn("telegram not configured, notifications disabled")
	}

	// Scheduler
	sched := scheduler.New(ctx, runner, tn, log)
	if err := sched.Start(cfg.Scheduler.Schedule, cfg.Scheduler.Timezone); err != nil {
		log.Fatalf("start scheduler: %v", err)
	}
	defer sched.Stop()

	var wg sync.WaitGroup

	srv := api.NewServer(sched, executor, st, m.Handler(), log)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.ListenAndServe(ctx, cfg.API.ListenAddr); err != nil {
			log.WithError(err).Error("api server exited")
			cancel()
		}
	}()

	if tg != nil {
		ops := operator.NewHandler(sched, executor, st, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			tg.StartPolling(ctx, ops.HandleCommand)
		}()
	}

	if cfg.Scheduler.RunOnStart {
		log.Info("RUN_ON_START enabled, executing batch now")
		wg.Add(1)
		go func() {
			defer wg.Done()
			sum, err := sched.RunNow(ctx)
			if err != nil {
				log.WithError(err).Error("startup batch run failed")
			}
			if err := tn.SendWithRetry(ctx, notifier.FormatBatchSummary(sum, err), 3); err != nil {
				log.WithError(err).Error("send batch summary failed")
			}
		}()
	}

	log.Info("PensionSentinel is running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		log.Info("shutdown signal received, stopping...")
	case <-ctx.Done():
	}
	cancel()
	wg.Wait()
	log.Info("PensionSentinel stopped")
}
