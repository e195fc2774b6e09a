// Package metrics exposes Prometheus metrics and a health endpoint for
// the risk engine.
package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the risk engine.
type Metrics struct {
	SnapshotsTotal  prometheus.Counter
	PositionsOpened prometheus.Counter
	PositionsClosed prometheus.Counter
	OpensRejected   *prometheus.CounterVec // labels: reason
	EmergencyStops  prometheus.Counter
	AlertsTotal     *prometheus.CounterVec // labels: level
	FeedReconnects  prometheus.Counter

	RiskScore      prometheus.Gauge
	DrawdownPct    prometheus.Gauge
	PortfolioValue prometheus.Gauge
	Cash           prometheus.Gauge
	MarginUsed     prometheus.Gauge
	OpenPositions  prometheus.Gauge

	AssessmentDur prometheus.Histogram

	RedisBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		SnapshotsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "riskengine_snapshots_total",
			Help: "Total market snapshots ingested",
		}),
		PositionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "riskengine_positions_opened_total",
			Help: "Total positions opened",
		}),
		PositionsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "riskengine_positions_closed_total",
			Help: "Total positions closed",
		}),
		OpensRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "riskengine_opens_rejected_total",
			Help: "Open proposals rejected (by reason)",
		}, []string{"reason"}),
		EmergencyStops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "riskengine_emergency_stops_total",
			Help: "Emergency stops triggered",
		}),
		AlertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "riskengine_alerts_total",
			Help: "Alerts dispatched (by level)",
		}, []string{"level"}),
		FeedReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "riskengine_feed_reconnects_total",
			Help: "WebSocket feed reconnections",
		}),

		RiskScore: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "riskengine_risk_score",
			Help: "Aggregate risk score (0-100)",
		}),
		DrawdownPct: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "riskengine_drawdown_pct",
			Help: "Current drawdown from peak valuation (percent)",
		}),
		PortfolioValue: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "riskengine_portfolio_value",
			Help: "Current portfolio valuation",
		}),
		Cash: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "riskengine_cash",
			Help: "Available cash",
		}),
		MarginUsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "riskengine_margin_used",
			Help: "Margin held by open positions",
		}),
		OpenPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "riskengine_open_positions",
			Help: "Number of open positions",
		}),

		AssessmentDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "riskengine_assessment_duration_seconds",
			Help:    "Risk assessment latency",
			Buckets: prometheus.DefBuckets,
		}),

		RedisBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "riskengine_redis_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
	}

	prometheus.MustRegister(
		m.SnapshotsTotal,
		m.PositionsOpened,
		m.PositionsClosed,
		m.OpensRejected,
		m.EmergencyStops,
		m.AlertsTotal,
		m.FeedReconnects,
		m.RiskScore,
		m.DrawdownPct,
		m.PortfolioValue,
		m.Cash,
		m.MarginUsed,
		m.OpenPositions,
		m.AssessmentDur,
		m.RedisBreakerState,
	)
	return m
}

// HealthStatus tracks component liveness for the /healthz endpoint.
type HealthStatus struct {
	mu sync.RWMutex

	StartedAt        time.Time
	FeedConnected    bool
	LastSnapshotTime time.Time
	RedisConnected   bool
	RedisLatencyMs   float64
	SQLiteOK         bool
	SQLiteLatencyMs  float64
	EngineStopped    bool
	LastCheckAt      time.Time
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetFeedConnected(v bool) {
	h.mu.Lock()
	h.FeedConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastSnapshotTime(t time.Time) {
	h.mu.Lock()
	h.LastSnapshotTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetEngineStopped(v bool) {
	h.mu.Lock()
	h.EngineStopped = v
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite runs a trivial query and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	if !h.FeedConnected || !h.RedisConnected || !h.SQLiteOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if h.EngineStopped {
		// Terminal by design: the engine stays up to serve state reads.
		overallStatus = "stopped"
	}

	snapshotAge := ""
	if !h.LastSnapshotTime.IsZero() {
		snapshotAge = time.Since(h.LastSnapshotTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status           string  `json:"status"`
		Uptime           string  `json:"uptime"`
		FeedConnected    bool    `json:"feed_connected"`
		LastSnapshotTime string  `json:"last_snapshot_time"`
		SnapshotAge      string  `json:"snapshot_age"`
		RedisConnected   bool    `json:"redis_connected"`
		RedisLatencyMs   float64 `json:"redis_latency_ms"`
		SQLiteOK         bool    `json:"sqlite_ok"`
		SQLiteLatencyMs  float64 `json:"sqlite_latency_ms"`
		EngineStopped    bool    `json:"engine_stopped"`
		LastCheckAt      string  `json:"last_check_at"`
	}{
		Status:           overallStatus,
		Uptime:           time.Since(h.StartedAt).Round(time.Second).String(),
		FeedConnected:    h.FeedConnected,
		LastSnapshotTime: h.LastSnapshotTime.Format(time.RFC3339),
		SnapshotAge:      snapshotAge,
		RedisConnected:   h.RedisConnected,
		RedisLatencyMs:   h.RedisLatencyMs,
		SQLiteOK:         h.SQLiteOK,
		SQLiteLatencyMs:  h.SQLiteLatencyMs,
		EngineStopped:    h.EngineStopped,
		LastCheckAt:      h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
