// Package app wires the pipeline together and owns process lifecycle:
// connect venues, start ingestion, scanners, alerting, persistence, and
// telemetry, then tear everything down on signal.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"

	"github.com/arbwatch/arbwatch/internal/alert"
	"github.com/arbwatch/arbwatch/internal/book"
	"github.com/arbwatch/arbwatch/internal/config"
	"github.com/arbwatch/arbwatch/internal/fees"
	"github.com/arbwatch/arbwatch/internal/health"
	"github.com/arbwatch/arbwatch/internal/ingest"
	"github.com/arbwatch/arbwatch/internal/models"
	"github.com/arbwatch/arbwatch/internal/persistence"
	"github.com/arbwatch/arbwatch/internal/persistence/postgres"
	"github.com/arbwatch/arbwatch/internal/scan"
	"github.com/arbwatch/arbwatch/internal/symbols"
	"github.com/arbwatch/arbwatch/internal/telemetry"
	"github.com/arbwatch/arbwatch/internal/venue"
	"github.com/arbwatch/arbwatch/internal/venue/binance"
	"github.com/arbwatch/arbwatch/internal/venue/generic"
)

const (
	shutdownGrace   = 10 * time.Second
	statsInterval   = time.Minute
	cleanupInterval = time.Hour
	retention       = 7 * 24 * time.Hour
	connectTimeout  = 30 * time.Second
)

// App is the assembled pipeline.
type App struct {
	cfg     *config.Config
	catalog venue.Catalog

	store    *book.Store
	feeModel *fees.Model
	registry *health.Registry
	metrics  *telemetry.Metrics

	conns    []venue.Connector
	pg       *postgres.Store
	batcher  *persistence.Batcher
	pipeline *alert.Pipeline
	manager  *ingest.Manager
	cross    *scan.CrossScanner
	tri      *scan.TriScanner
	server   *telemetry.Server
}

// New assembles the pipeline from configuration. It fails when the
// persistence sink cannot be reached: detections without a record are
// worthless for later analysis.
func New(ctx context.Context, cfg *config.Config, catalogPath string) (*App, error) {
	catalog, err := venue.LoadCatalog(catalogPath)
	if err != nil {
		return nil, fmt.Errorf("venue catalog: %w", err)
	}

	a := &App{
		cfg:      cfg,
		catalog:  catalog,
		store:    book.NewStore(),
		feeModel: fees.NewModel(cfg.FeeOverrides),
		registry: health.NewRegistry(),
		metrics:  telemetry.NewMetrics(),
	}

	a.pg, err = postgres.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("persistence: %w", err)
	}
	a.batcher = persistence.NewBatcher(a.pg)

	a.pipeline = alert.NewPipeline(a.newDeduper(), a.newNotifier())
	a.pipeline.Instrument(a.metrics.AlertsSent.Inc, a.metrics.AlertsDeduped.Inc)
	a.manager = ingest.NewManager(cfg, a.store, a.registry, a.metrics.BooksDropped.Inc,
		func(v string) { a.metrics.BooksIngested.WithLabelValues(v).Inc() })
	a.server = telemetry.NewServer(cfg.MetricsAddr, a.metrics, a.registry)

	a.cross = scan.NewCrossScanner(cfg, a.store, a.feeModel, a.onCross, a.scanObserver("cross"))
	return a, nil
}

// scanObserver feeds one scanner's pass timing into the duration
// histogram and, on overrun, the per-venue scheduler-lag gauge.
func (a *App) scanObserver(kind string) func(elapsed, overrun time.Duration) {
	return func(elapsed, overrun time.Duration) {
		a.metrics.ScanDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
		if overrun <= 0 {
			return
		}
		for _, c := range a.conns {
			a.registry.SchedulerLag(c.Name(), float64(overrun.Milliseconds()))
		}
	}
}

func (a *App) newDeduper() alert.Deduper {
	if a.cfg.RedisAddr == "" {
		return alert.NewMemoryDeduper(alert.DedupTTL)
	}
	client := redis.NewClient(&redis.Options{Addr: a.cfg.RedisAddr})
	log.Info().Str("addr", a.cfg.RedisAddr).Msg("redis dedup enabled")
	return alert.NewRedisDeduper(client, alert.DedupTTL)
}

func (a *App) newNotifier() alert.Notifier {
	if a.cfg.AlertsEnabled() {
		return alert.NewTelegramNotifier(a.cfg.TelegramBotToken, a.cfg.TelegramChatID)
	}
	log.Warn().Msg("telegram not configured, alerts go to the log only")
	return alert.NewLogNotifier(func(text string) {
		log.Info().Str("alert", text).Msg("alert (log sink)")
	})
}

func (a *App) onCross(o models.Opportunity) {
	a.metrics.Opportunities.WithLabelValues("cross").Inc()
	a.pipeline.Cross(context.Background(), o)
	a.batcher.AppendOpportunity(o)
}

func (a *App) onTri(o models.TriOpportunity) {
	a.metrics.Opportunities.WithLabelValues("tri").Inc()
	a.pipeline.Tri(context.Background(), o)
	a.batcher.AppendTriOpportunity(o)
}

// connectVenues builds and connects every allowed catalog venue,
// seeding the fee model from venue-published rates. Connects run
// concurrently up to MAX_CONCURRENT_EXCHANGES. Venues that fail to
// connect are skipped; zero connected venues is fatal.
func (a *App) connectVenues(ctx context.Context) error {
	limit := a.cfg.MaxConcurrentExchanges
	if limit <= 0 {
		limit = 1
	}
	sem := make(chan struct{}, limit)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, entry := range a.catalog.Venues {
		if !a.cfg.VenueAllowed(entry.Name) {
			continue
		}
		conn := buildConnector(entry)
		if conn == nil {
			log.Warn().Str("venue", entry.Name).Msg("no connector available")
			continue
		}

		wg.Add(1)
		go func(entry venue.CatalogEntry, conn venue.Connector) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
			err := conn.Connect(connectCtx)
			cancel()
			if err != nil {
				log.Error().Err(err).Str("venue", entry.Name).Msg("venue connect failed")
				a.registry.Error(entry.Name)
				return
			}

			if maker, taker, ok := conn.Fees(); ok {
				if err := a.feeModel.Seed(entry.Name, maker, taker, nil); err != nil {
					log.Warn().Err(err).Str("venue", entry.Name).Msg("fee seed rejected")
				}
			} else if entry.Maker > 0 || entry.Taker > 0 {
				if err := a.feeModel.Seed(entry.Name, entry.Maker, entry.Taker, nil); err != nil {
					log.Warn().Err(err).Str("venue", entry.Name).Msg("fee seed rejected")
				}
			}

			mu.Lock()
			a.conns = append(a.conns, conn)
			mu.Unlock()
			log.Info().Str("venue", entry.Name).
				Int("markets", len(conn.Markets())).
				Bool("streaming", conn.SupportsStreaming()).
				Str("fees", fees.Summary(a.feeModel.For(entry.Name))).
				Msg("venue connected")
		}(entry, conn)
	}
	wg.Wait()

	if len(a.conns) == 0 {
		return fmt.Errorf("no venues connected")
	}
	// connect completion order is racy, keep downstream iteration stable
	sort.Slice(a.conns, func(i, j int) bool { return a.conns[i].Name() < a.conns[j].Name() })
	return nil
}

func buildConnector(entry venue.CatalogEntry) venue.Connector {
	if entry.Name == "binance" {
		return binance.New(entry.RESTBaseURL, entry.WSBaseURL, entry.RateLimitMS)
	}
	if codec, ok := generic.CodecFor(entry.Name); ok {
		return generic.New(entry, codec)
	}
	return nil
}

// Run starts the pipeline and blocks until a termination signal.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.connectVenues(ctx); err != nil {
		return err
	}

	venues := make([]string, 0, len(a.conns))
	marketsByVenue := make(map[string]map[string]models.MarketMeta, len(a.conns))
	listings := make(map[string][]string, len(a.conns))
	for _, c := range a.conns {
		venues = append(venues, c.Name())
		marketsByVenue[c.Name()] = c.Markets()
		for sym := range c.Markets() {
			listings[c.Name()] = append(listings[c.Name()], sym)
		}
	}
	overlap := 0
	for _, vs := range symbols.AvailabilityMap(listings) {
		if len(vs) >= 2 {
			overlap++
		}
	}
	log.Info().Int("shared_symbols", overlap).Msg("cross-venue overlap")
	a.tri = scan.NewTriScanner(a.cfg, a.store, a.feeModel, venues,
		func(v string) map[string]models.MarketMeta { return marketsByVenue[v] },
		a.onTri, a.scanObserver("tri"))

	var wg sync.WaitGroup
	a.manager.Start(ctx, &wg, a.conns)

	// triangular legs touch markets outside the configured universe
	for _, c := range a.conns {
		a.manager.StartSymbols(ctx, &wg, c, a.tri.CycleSymbols(c.Name()))
	}
	log.Info().Int("venues", len(a.conns)).Int("streams", a.manager.Streams()).
		Msg("ingestion running")

	run := func(fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
		}()
	}
	run(a.cross.Run)
	run(a.tri.Run)
	run(a.pipeline.Run)
	run(a.batcher.Run)
	run(health.NewCollector(a.registry, a.batcher, a.cfg.HealthCheckInterval, a.observeHealth).Run)
	run(a.statsLoop)
	run(a.cleanupLoop)

	a.server.Start()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	return a.shutdown(&wg)
}

func (a *App) shutdown(wg *sync.WaitGroup) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		log.Warn().Msg("shutdown grace period expired")
	}

	for _, c := range a.conns {
		c.Disconnect()
	}

	a.pipeline.Shutdown(ctx)
	a.batcher.Flush(ctx)
	if err := a.server.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("telemetry shutdown failed")
	}
	if err := a.pg.Close(); err != nil {
		log.Warn().Err(err).Msg("persistence close failed")
	}

	sent, suppressed, dropped := a.pipeline.Stats()
	log.Info().Int64("alerts_sent", sent).Int64("suppressed", suppressed).
		Int64("dropped", dropped).Msg("stopped")
	return nil
}

// observeHealth mirrors each health snapshot into the exported gauges.
func (a *App) observeHealth(h models.VenueHealth) {
	a.metrics.QueueDepth.WithLabelValues(h.Venue).Set(float64(h.QueueDepth))
	connected := 0.0
	if h.StreamConnected {
		connected = 1
	}
	a.metrics.VenueConnected.WithLabelValues(h.Venue).Set(connected)
}

// statsLoop logs a pipeline summary once per minute.
func (a *App) statsLoop(ctx context.Context) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			total, fresh, perVenue := a.store.Stats()
			sent, suppressed, dropped := a.pipeline.Stats()
			log.Info().
				Int("books", total).Int("fresh", fresh).
				Int("venues", len(perVenue)).
				Int64("alerts_sent", sent).
				Int64("suppressed", suppressed).
				Int64("delivery_failures", dropped).
				Int("alert_backlog", a.pipeline.QueueDepth()).
				Msg("pipeline stats")
			for v := range perVenue {
				log.Debug().Str("venue", v).
					Strs("symbols", a.store.VenueSymbols(v)).
					Msg("tracked books")
			}
		}
	}
}

// cleanupLoop prunes persisted rows past the retention window.
func (a *App) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := a.pg.CleanupOlderThan(ctx, retention)
			if err != nil {
				log.Error().Err(err).Msg("retention cleanup failed")
				continue
			}
			if n > 0 {
				log.Info().Int64("rows", n).Msg("retention cleanup")
			}
		}
	}
}
