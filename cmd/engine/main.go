// cmd/engine — The portfolio risk engine daemon.
//
// Wires the full pipeline: websocket feed → market cache → strategy
// evaluator → ledger (pre-trade gated by the risk engine) → journal,
// Redis live state, metrics and alerting.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"portfolio-riskv1/config"
	"portfolio-riskv1/internal/ledger"
	"portfolio-riskv1/internal/logger"
	"portfolio-riskv1/internal/marketdata/cache"
	"portfolio-riskv1/internal/marketdata/feed"
	"portfolio-riskv1/internal/metrics"
	"portfolio-riskv1/internal/model"
	"portfolio-riskv1/internal/notification"
	"portfolio-riskv1/internal/risk"
	"portfolio-riskv1/internal/strategy"
	redisstore "portfolio-riskv1/internal/store/redis"
	sqlitestore "portfolio-riskv1/internal/store/sqlite"
	"portfolio-riskv1/pkg/feedclient"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[engine] starting...")

	cfg := config.Load()
	logger.Init("risk-engine", slog.LevelInfo)

	assets := cfg.ParseAssets()
	if len(assets) == 0 {
		log.Fatalf("[engine] no assets configured via ASSETS")
	}
	log.Printf("[engine] tracking %d assets: %v", len(assets), assets)

	// ---- Metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- Context for graceful shutdown ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Notification fan-out ----
	backends := []notification.Notifier{notification.NewLogNotifier()}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		backends = append(backends, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
		log.Println("[engine] telegram notifier enabled")
	}
	if cfg.WebhookURL != "" {
		backends = append(backends, notification.NewWebhookNotifier(cfg.WebhookURL))
		log.Println("[engine] webhook notifier enabled")
	}
	alerts := &countingNotifier{next: notification.NewMulti(backends...), prom: prom}

	// ---- SQLite trade journal ----
	os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755)
	journal, err := sqlitestore.NewJournal(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("[engine] journal init failed: %v", err)
	}
	defer journal.Close()
	health.SetSQLiteOK(true)

	// ---- Redis live-state writer ----
	var redisWriter *redisstore.Writer
	redisWriter, err = redisstore.New(redisstore.WriterConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Printf("[engine] WARNING: redis init failed: %v (continuing without redis)", err)
		redisWriter = nil
		health.SetRedisConnected(false)
	} else {
		health.SetRedisConnected(true)
	}

	if redisWriter != nil {
		health.StartLivenessChecker(ctx, redisWriter.Client(), journal.DB(), 10*time.Second)
	} else {
		health.StartLivenessChecker(ctx, nil, journal.DB(), 10*time.Second)
	}

	// ---- Core: cache, ledger, risk engine ----
	md := cache.New()

	book := ledger.New(md, ledger.Config{
		InitialCash:   cfg.InitialCash,
		MaxDrawdown:   cfg.RiskParams.MaxDrawdown,
		SweepInterval: cfg.SweepInterval,
	})
	book.SetAlerts(alerts)
	book.Subscribe(journal)
	book.Subscribe(&positionMetrics{prom: prom})

	riskEng := risk.New(md, book, alerts, risk.Config{
		Params:   cfg.RiskParams,
		Interval: cfg.RiskInterval,
	})
	book.SetGate(riskEng)
	book.Subscribe(riskEng)
	md.SetCloseChecker(book)

	// Publish each assessment to metrics and Redis.
	riskEng.OnAssessment = func(state model.RiskState) {
		prom.RiskScore.Set(state.RiskScore)
		prom.DrawdownPct.Set(state.CurrentDrawdown * 100)

		pf, open := book.PortfolioState()
		prom.PortfolioValue.Set(pf.TotalValue)
		prom.Cash.Set(pf.Cash)
		prom.MarginUsed.Set(pf.MarginUsed)
		prom.OpenPositions.Set(float64(len(open)))
		health.SetEngineStopped(riskEng.Stopped())

		if redisWriter != nil {
			prom.RedisBreakerState.Set(float64(redisWriter.BreakerState()))
			wctx, wcancel := context.WithTimeout(ctx, 2*time.Second)
			if err := redisWriter.WriteRiskState(wctx, state); err != nil {
				log.Printf("[engine] redis risk state write failed: %v", err)
			}
			if err := redisWriter.WritePositions(wctx, open); err != nil {
				log.Printf("[engine] redis positions write failed: %v", err)
			}
			wcancel()
		}
	}

	// ---- Strategy evaluator ----
	eval := strategy.NewEvaluator(md, book, cfg.TradeSize)

	// ---- Pipeline channels ----
	snapCh := make(chan model.MarketSnapshot, 10000)
	signalCh := make(chan feed.Signal, 1000)

	var redisSnapCh chan model.MarketSnapshot
	if redisWriter != nil {
		redisSnapCh = make(chan model.MarketSnapshot, 5000)
		go redisWriter.RunSnapshots(ctx, redisSnapCh)
	}

	// Snapshot consumer: cache update is the hot path, Redis publishing
	// is fire-and-forget on its own channel.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case snap, ok := <-snapCh:
				if !ok {
					return
				}
				md.UpdateSnapshot(snap)
				prom.SnapshotsTotal.Inc()
				health.SetLastSnapshotTime(snap.Timestamp)
				if redisSnapCh != nil {
					select {
					case redisSnapCh <- snap:
					default:
					}
				}
			}
		}
	}()

	// Signal consumer: evaluate and route resulting orders to the ledger.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case sig, ok := <-signalCh:
				if !ok {
					return
				}
				handleSignal(book, eval, prom, sig)
			}
		}
	}()

	// ---- Background loops ----
	go book.Run(ctx)
	go riskEng.Run(ctx)

	// ---- Operator emergency stop (SIGUSR1) ----
	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGUSR1)
	go func() {
		for range stopCh {
			log.Println("[engine] SIGUSR1 received — triggering emergency stop")
			prom.EmergencyStops.Inc()
			riskEng.EmergencyStop("operator signal")
		}
	}()

	// ---- Feed login (optional) + websocket client ----
	feedToken := ""
	if cfg.FeedAuthEnabled() {
		fc := feedclient.New(feedclient.Config{
			BaseURL:    cfg.FeedAuthURL,
			APIKey:     cfg.FeedAPIKey,
			ClientID:   cfg.FeedClientID,
			Password:   cfg.FeedPassword,
			TOTPSecret: cfg.FeedTOTPSecret,
		})
		if _, err := fc.GenerateSession(ctx); err != nil {
			log.Fatalf("[engine] feed login failed: %v", err)
		}
		feedToken = fc.FeedToken()
		log.Println("[engine] feed session established")
	}

	feedCli, err := feed.New(feed.Config{
		URL:       cfg.FeedURL,
		AuthToken: feedToken,
	})
	if err != nil {
		log.Fatalf("[engine] feed init failed: %v", err)
	}
	feedCli.OnConnect = func() {
		health.SetFeedConnected(true)
	}
	feedCli.OnReconnect = func() {
		health.SetFeedConnected(false)
		prom.FeedReconnects.Inc()
	}

	go func() {
		if err := feedCli.Start(ctx, snapCh, signalCh); err != nil {
			log.Printf("[engine] feed error: %v", err)
			health.SetFeedConnected(false)
		}
	}()

	log.Printf("[engine] pipeline ready: feed=%s cash=%.2f trade_size=%.2f risk_interval=%s",
		cfg.FeedURL, cfg.InitialCash, cfg.TradeSize, cfg.RiskInterval)

	// ---- Wait for shutdown signal ----
	<-sigCh
	log.Println("[engine] shutdown signal received, cleaning up...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)

	if redisWriter != nil {
		redisWriter.Close()
	}

	log.Println("[engine] shutdown complete.")
}

// handleSignal evaluates a strategy signal and applies the resulting
// order, classifying rejections for metrics.
func handleSignal(book *ledger.Ledger, eval *strategy.Evaluator, prom *metrics.Metrics, sig feed.Signal) {
	order, err := eval.Evaluate(sig.Asset, sig.Strategy, sig.Action)
	if err != nil {
		log.Printf("[engine] evaluate %s/%s: %v", sig.Strategy, sig.Asset, err)
		return
	}
	if order == nil {
		return
	}

	if order.Close {
		if _, err := book.ClosePosition(order.Asset); err != nil {
			log.Printf("[engine] close %s: %v", order.Asset, err)
		}
		return
	}

	if _, err := book.OpenPosition(order.Asset, order.Side, order.Size); err != nil {
		prom.OpensRejected.WithLabelValues(rejectReason(err)).Inc()
		log.Printf("[engine] open %s %s: %v", order.Side, order.Asset, err)
	}
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ledger.ErrRiskBlocked):
		return "risk_blocked"
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ledger.ErrPositionExists):
		return "position_exists"
	default:
		return "other"
	}
}

// positionMetrics counts position lifecycle events.
type positionMetrics struct {
	prom *metrics.Metrics
}

func (p *positionMetrics) PositionOpened(model.Position) { p.prom.PositionsOpened.Inc() }
func (p *positionMetrics) PositionClosed(model.Position) { p.prom.PositionsClosed.Inc() }

// countingNotifier counts alerts by level before fanning out.
type countingNotifier struct {
	next notification.Notifier
	prom *metrics.Metrics
}

func (n *countingNotifier) Send(ctx context.Context, a notification.Alert) error {
	n.prom.AlertsTotal.WithLabelValues(string(a.Level)).Inc()
	return n.next.Send(ctx, a)
}
