package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vitos/crypto_trade_bot/internal/infrastructure/exchange"
	"github.com/vitos/crypto_trade_bot/internal/infrastructure/features"
	"github.com/vitos/crypto_trade_bot/internal/infrastructure/logger"
	"github.com/vitos/crypto_trade_bot/internal/infrastructure/macro"
	"github.com/vitos/crypto_trade_bot/internal/infrastructure/predictor"
	"github.com/vitos/crypto_trade_bot/internal/infrastructure/storage"
	"github.com/vitos/crypto_trade_bot/internal/usecase"
	"github.com/vitos/crypto_trade_bot/internal/web"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Exchange struct {
		APIKey       string `yaml:"api_key"`
		APISecret    string `yaml:"api_secret"`
		RESTEndpoint string `yaml:"rest_endpoint"`
		WSEndpoint   string `yaml:"ws_endpoint"`
	} `yaml:"exchange"`
	Predictor struct {
		URL       string `yaml:"url"`
		TimeoutMs int    `yaml:"timeout_ms"`
	} `yaml:"predictor"`
	Macro struct {
		FearGreedURL string  `yaml:"fear_greed_url"`
		VIX          float64 `yaml:"vix"`
	} `yaml:"macro"`
	Scan struct {
		IntervalMinutes       int     `yaml:"interval_minutes"`
		TopN                  int     `yaml:"top_n"`
		MinProbability        float64 `yaml:"min_probability"`
		MaxPositions          int     `yaml:"max_positions"`
		MaxDailyLossUSD       float64 `yaml:"max_daily_loss_usd"`
		PositionSizePct       float64 `yaml:"position_size_pct"`
		MaxPositionUSD        float64 `yaml:"max_position_usd"`
		MaxPositionPct        float64 `yaml:"max_position_pct"`
		RequireManualApproval bool    `yaml:"require_manual_approval"`
	} `yaml:"scan"`
	Monitor struct {
		IntervalMinutes int `yaml:"interval_minutes"`
		Concurrency     int `yaml:"concurrency"`
	} `yaml:"monitor"`
	Reconcile struct {
		IntervalMinutes  int     `yaml:"interval_minutes"`
		DustThresholdUSD float64 `yaml:"dust_threshold_usd"`
	} `yaml:"reconcile"`
	Orchestrator struct {
		RestartBackoffMinutes int `yaml:"restart_backoff_minutes"`
	} `yaml:"orchestrator"`
	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`
	Logging struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"logging"`
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
	AutoStart bool `yaml:"auto_start"`
}

func loadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// cycleConfigs maps the yaml primitives onto the service configs,
// keeping the production defaults for anything unset.
func cycleConfigs(cfg *Config) (usecase.ScanConfig, usecase.MonitorConfig, usecase.ReconcileConfig, usecase.OrchestratorConfig) {
	scan := usecase.DefaultScanConfig()
	if cfg.Scan.IntervalMinutes > 0 {
		scan.Interval = time.Duration(cfg.Scan.IntervalMinutes) * time.Minute
	}
	if cfg.Scan.TopN > 0 {
		scan.TopN = cfg.Scan.TopN
	}
	if cfg.Scan.MinProbability > 0 {
		scan.MinProbability = cfg.Scan.MinProbability
	}
	if cfg.Scan.MaxPositions > 0 {
		scan.MaxPositions = cfg.Scan.MaxPositions
	}
	if cfg.Scan.MaxDailyLossUSD > 0 {
		scan.MaxDailyLossUSD = cfg.Scan.MaxDailyLossUSD
	}
	if cfg.Scan.PositionSizePct > 0 {
		scan.PositionSizePct = cfg.Scan.PositionSizePct
	}
	if cfg.Scan.MaxPositionUSD > 0 {
		scan.MaxPositionUSD = cfg.Scan.MaxPositionUSD
	}
	if cfg.Scan.MaxPositionPct > 0 {
		scan.MaxPositionPct = cfg.Scan.MaxPositionPct
	}
	scan.RequireManualApproval = cfg.Scan.RequireManualApproval

	monitor := usecase.DefaultMonitorConfig()
	if cfg.Monitor.IntervalMinutes > 0 {
		monitor.Interval = time.Duration(cfg.Monitor.IntervalMinutes) * time.Minute
	}
	if cfg.Monitor.Concurrency > 0 {
		monitor.Concurrency = cfg.Monitor.Concurrency
	}

	reconcile := usecase.DefaultReconcileConfig()
	if cfg.Reconcile.IntervalMinutes > 0 {
		reconcile.Interval = time.Duration(cfg.Reconcile.IntervalMinutes) * time.Minute
	}
	if cfg.Reconcile.DustThresholdUSD > 0 {
		reconcile.DustThresholdUSD = cfg.Reconcile.DustThresholdUSD
	}

	orch := usecase.DefaultOrchestratorConfig()
	if cfg.Orchestrator.RestartBackoffMinutes > 0 {
		orch.RestartBackoff = time.Duration(cfg.Orchestrator.RestartBackoffMinutes) * time.Minute
	}

	return scan, monitor, reconcile, orch
}

func main() {
	// 1. Load Config
	configPath := "config/config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}
	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Init Logger
	var log *zap.Logger
	if cfg.Logging.File != "" {
		log, err = logger.NewFileLogger(cfg.Logging.Level, cfg.Logging.File)
	} else {
		log, err = logger.NewLogger(cfg.Logging.Level)
	}
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// 3. Init Storage
	dbPath := cfg.Storage.Path
	if dbPath == "" {
		dbPath = "bot.db"
	}
	store, err := storage.NewSQLiteStore(dbPath)
	if err != nil {
		log.Fatal("Failed to init sqlite", zap.Error(err))
	}
	defer store.Close()

	// 4. Init Exchange (Binance)
	binance := exchange.NewBinanceAdapter(
		cfg.Exchange.APIKey, cfg.Exchange.APISecret,
		cfg.Exchange.RESTEndpoint, cfg.Exchange.WSEndpoint)

	// 5. Collaborators
	predictorClient := predictor.NewHTTPClient(
		cfg.Predictor.URL,
		time.Duration(cfg.Predictor.TimeoutMs)*time.Millisecond,
		log)
	macroSource := macro.NewAlternativeMeSource(cfg.Macro.FearGreedURL, cfg.Macro.VIX, time.Hour, log)
	featureSource := features.NewCandleFeatureSource(binance, 10*time.Minute, log)

	// 6. Core services
	engine := usecase.NewRiskEngine()
	ledger := usecase.NewPositionLedger()
	dailyLoss := usecase.NewDailyLossTracker()

	// Restore open positions from the last run.
	persisted, err := store.ListPositions(context.Background())
	if err != nil {
		log.Fatal("Failed to load persisted positions", zap.Error(err))
	}
	for _, pos := range persisted {
		if err := ledger.Insert(pos); err != nil {
			log.Error("Skipping persisted position", zap.String("ticker", pos.Ticker), zap.Error(err))
		}
	}
	if len(persisted) > 0 {
		log.Info("Restored positions from storage", zap.Int("count", ledger.Len()))
		if err := binance.ConnectWS(ledger.Tickers()); err != nil {
			log.Error("Price stream connect failed, using REST prices", zap.Error(err))
		}
	}

	scanCfg, monitorCfg, reconcileCfg, orchCfg := cycleConfigs(cfg)
	scan := usecase.NewScanCycle(scanCfg, engine, ledger, binance, predictorClient,
		macroSource, store, store, store, store, dailyLoss, log)
	monitor := usecase.NewMonitorCycle(monitorCfg, engine, ledger, binance,
		featureSource, store, store, dailyLoss, log)
	reconcile := usecase.NewReconcileCycle(reconcileCfg, ledger, binance, store, log)

	orchestrator := usecase.NewOrchestrator(orchCfg, binance, store,
		ledger, scan, monitor, reconcile, dailyLoss, log)

	// 7. Web server
	port := cfg.Server.Port
	if port == 0 {
		port = 8080
	}
	server := web.NewServer(port, orchestrator, ledger, store, store, store, log)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	if cfg.AutoStart {
		if err := orchestrator.Start(context.Background()); err != nil {
			log.Fatal("Failed to start bot", zap.Error(err))
		}
	}

	// 8. Wait for Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("Shutting down...")
	if orchestrator.State() == usecase.StateRunning {
		if err := orchestrator.Stop(context.Background()); err != nil {
			log.Error("Orchestrator stop failed", zap.Error(err))
		}
	}
	binance.CloseWS()
	server.Shutdown(context.Background())
}
