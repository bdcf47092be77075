package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"alpha-tick-bot-go/internal/config"
	"alpha-tick-bot-go/internal/downloader"
	"alpha-tick-bot-go/internal/engine"
	"alpha-tick-bot-go/internal/gateway"
	"alpha-tick-bot-go/internal/lifecycle"
	"alpha-tick-bot-go/internal/logger"
	"alpha-tick-bot-go/internal/market"
	"alpha-tick-bot-go/internal/models"
	"alpha-tick-bot-go/internal/persistence"
	"alpha-tick-bot-go/internal/reporter"
	"alpha-tick-bot-go/internal/risk"
)

const (
	liveWSBaseURL    = "wss://fstream.binance.com"
	testnetWSBaseURL = "wss://stream.binancefuture.com"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the config file")
	mode := flag.String("mode", "live", "running mode: live or replay")
	dataPath := flag.String("data", "", "path to historical data file for replay")
	symbol := flag.String("symbol", "", "symbol to download for replay (e.g., BTCUSDT)")
	startDate := flag.String("start", "", "replay download start date (YYYY-MM-DD)")
	endDate := flag.String("end", "", "replay download end date (YYYY-MM-DD)")
	flag.Parse()

	// Bootstrap logger so .env and config loading can already log; the
	// real configuration re-initializes it below.
	logger.InitLogger(models.LogConfig{Level: "info", Output: "console"})

	if err := godotenv.Load(); err != nil {
		logger.S().Info("no .env file found, reading credentials from the environment")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.S().Fatalf("load config: %v", err)
	}
	logger.InitLogger(cfg.LogConfig)
	defer logger.S().Sync()

	switch *mode {
	case "live":
		runLive(cfg)
	case "replay":
		path, err := resolveReplayData(cfg, *symbol, *startDate, *endDate, *dataPath)
		if err != nil {
			logger.S().Fatal(err)
		}
		runReplay(cfg, path)
	default:
		logger.S().Fatalf("unknown mode %q, expected 'live' or 'replay'", *mode)
	}
}

// resolveReplayData returns the CSV to replay, downloading it first when a
// symbol and date range were given instead of a file.
func resolveReplayData(cfg *models.Config, symbol, startDate, endDate, dataPath string) (string, error) {
	if symbol == "" || startDate == "" || endDate == "" {
		if dataPath == "" {
			return "", fmt.Errorf("replay mode needs --data, or --symbol with --start/--end")
		}
		return dataPath, nil
	}

	startTime, err1 := time.Parse("2006-01-02", startDate)
	endTime, err2 := time.Parse("2006-01-02", endDate)
	if err1 != nil || err2 != nil {
		return "", fmt.Errorf("dates must be YYYY-MM-DD: start %v, end %v", err1, err2)
	}

	fileName := fmt.Sprintf("data/%s-%s-%s-%s.csv", symbol, cfg.Timeframe, startDate, endDate)
	dl := downloader.NewKlineDownloader(logger.S())
	if err := dl.DownloadKlines(symbol, cfg.Timeframe, fileName, startTime, endTime); err != nil {
		return "", fmt.Errorf("download klines: %w", err)
	}
	return fileName, nil
}

func runLive(cfg *models.Config) {
	logger.S().Info("--- starting live mode ---")

	apiKey := os.Getenv("BINANCE_API_KEY")
	secretKey := os.Getenv("BINANCE_SECRET_KEY")
	if apiKey == "" || secretKey == "" {
		logger.S().Fatal("BINANCE_API_KEY and BINANCE_SECRET_KEY must be set")
	}

	wsBaseURL := liveWSBaseURL
	if cfg.IsTestnet {
		wsBaseURL = testnetWSBaseURL
		logger.S().Info("using the futures testnet")
	}

	gw := gateway.NewLiveGateway(apiKey, secretKey, cfg.IsTestnet, logger.S())
	rules, err := gw.SymbolRules(cfg.Symbol)
	if err != nil {
		logger.S().Fatalf("read symbol rules: %v", err)
	}

	repo, err := persistence.NewBadgerRepository(cfg.DBPath)
	if err != nil {
		logger.S().Fatalf("open state database: %v", err)
	}
	defer repo.Close()

	manager, err := lifecycle.NewManager(cfg.Lifecycle, gw, repo, rules, logger.S())
	if err != nil {
		logger.S().Fatalf("initialize lifecycle manager: %v", err)
	}

	series := market.NewSeries(cfg.Symbol, cfg.Strategy)
	// Live sizing uses fixed-percent only until enough fills accumulate;
	// the paper gateway's trade log backs Kelly during replays.
	sizer := risk.NewSizer(cfg.Risk, rules, nil)
	eng := engine.New(*cfg, series, sizer, gw, manager, engine.LogObserver{Logger: logger.S()}, logger.S())

	stream := market.NewKlineStream(wsBaseURL, cfg.Symbol, cfg.Timeframe, logger.S())
	stream.Start()
	defer stream.Stop()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case bar, ok := <-stream.Bars():
			if !ok {
				logger.S().Warn("kline stream closed, shutting down")
				return
			}
			series.Append(bar)
			if _, err := eng.Update(bar); err != nil {
				logger.S().Errorf("update failed: %v", err)
			}
		case <-quit:
			logger.S().Info("shutdown signal received")
			return
		}
	}
}

func runReplay(cfg *models.Config, dataPath string) {
	logger.S().Infof("--- starting replay mode: %s ---", dataPath)

	bars, err := market.ReadBarsCSV(dataPath)
	if err != nil {
		logger.S().Fatalf("load replay data: %v", err)
	}
	logger.S().Infof("loaded %d bars", len(bars))

	paper := gateway.NewPaperGateway(cfg.Paper, logger.S())
	rules, err := paper.SymbolRules(cfg.Symbol)
	if err != nil {
		logger.S().Fatalf("read symbol rules: %v", err)
	}

	repo := persistence.NewMemoryRepository()
	defer repo.Close()

	manager, err := lifecycle.NewManager(cfg.Lifecycle, paper, repo, rules, logger.S())
	if err != nil {
		logger.S().Fatalf("initialize lifecycle manager: %v", err)
	}

	series := market.NewSeries(cfg.Symbol, cfg.Strategy)
	series.SetSpread(cfg.Paper.Spread)
	sizer := risk.NewSizer(cfg.Risk, rules, paper)
	eng := engine.New(*cfg, series, sizer, paper, manager, engine.LogObserver{Logger: logger.S()}, logger.S())

	for _, bar := range bars {
		series.Append(bar)
		// Fills happen on the bar extremes before the engine sees the
		// close, matching the order of events inside a real bar.
		paper.MarkPrice(bar)
		if _, err := eng.Update(bar); err != nil {
			logger.S().Errorf("update failed: %v", err)
		}
	}

	reporter.Render(os.Stdout, paper)
}
