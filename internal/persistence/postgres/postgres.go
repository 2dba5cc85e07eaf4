// Package postgres is the sqlx-backed batch writer for detections and
// health snapshots.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/arbwatch/arbwatch/internal/models"
)

// retentionDefault is how long detection rows are kept before cleanup.
const retentionDefault = 7 * 24 * time.Hour

const schema = `
CREATE TABLE IF NOT EXISTS opportunities (
	id                UUID PRIMARY KEY,
	type              TEXT NOT NULL DEFAULT 'CROSS',
	detection_ts      TIMESTAMPTZ NOT NULL,
	symbol            TEXT NOT NULL,
	buy_venue         TEXT NOT NULL,
	sell_venue        TEXT NOT NULL,
	buy_price_before  DOUBLE PRECISION NOT NULL,
	sell_price_before DOUBLE PRECISION NOT NULL,
	buy_price_after   DOUBLE PRECISION NOT NULL,
	sell_price_after  DOUBLE PRECISION NOT NULL,
	spread_bps        DOUBLE PRECISION NOT NULL,
	notional          DOUBLE PRECISION NOT NULL,
	buy_levels        INTEGER NOT NULL,
	sell_levels       INTEGER NOT NULL,
	buy_maker         DOUBLE PRECISION NOT NULL,
	buy_taker         DOUBLE PRECISION NOT NULL,
	sell_maker        DOUBLE PRECISION NOT NULL,
	sell_taker        DOUBLE PRECISION NOT NULL,
	mode              TEXT NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_opportunities_ts ON opportunities (detection_ts);
CREATE INDEX IF NOT EXISTS idx_opportunities_symbol ON opportunities (symbol);

CREATE TABLE IF NOT EXISTS tri_opportunities (
	id           UUID PRIMARY KEY,
	type         TEXT NOT NULL DEFAULT 'TRI',
	detection_ts TIMESTAMPTZ NOT NULL,
	venue        TEXT NOT NULL,
	base_asset   TEXT NOT NULL,
	asset2       TEXT NOT NULL,
	asset3       TEXT NOT NULL,
	start_amount DOUBLE PRECISION NOT NULL,
	end_amount   DOUBLE PRECISION NOT NULL,
	gain_bps     DOUBLE PRECISION NOT NULL,
	notional     DOUBLE PRECISION NOT NULL,
	leg1_symbol  TEXT NOT NULL,
	leg1_price   DOUBLE PRECISION NOT NULL,
	leg1_side    TEXT NOT NULL,
	leg2_symbol  TEXT NOT NULL,
	leg2_price   DOUBLE PRECISION NOT NULL,
	leg2_side    TEXT NOT NULL,
	leg3_symbol  TEXT NOT NULL,
	leg3_price   DOUBLE PRECISION NOT NULL,
	leg3_side    TEXT NOT NULL,
	maker_fee    DOUBLE PRECISION NOT NULL,
	taker_fee    DOUBLE PRECISION NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_tri_opportunities_ts ON tri_opportunities (detection_ts);

CREATE TABLE IF NOT EXISTS venue_health (
	id                 UUID PRIMARY KEY,
	snapshot_ts        TIMESTAMPTZ NOT NULL,
	venue              TEXT NOT NULL,
	stream_connected   BOOLEAN NOT NULL,
	rest_ok            BOOLEAN NOT NULL,
	last_stream_ts     TIMESTAMPTZ,
	last_rest_ts       TIMESTAMPTZ,
	reconnects         INTEGER NOT NULL,
	error_rate         DOUBLE PRECISION NOT NULL,
	queue_depth        INTEGER NOT NULL,
	coalesced          BIGINT NOT NULL,
	scheduler_lag_ms   DOUBLE PRECISION NOT NULL,
	subscribed_symbols JSONB NOT NULL DEFAULT '[]',
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_venue_health_ts ON venue_health (snapshot_ts);
`

// Store writes detections and health snapshots to Postgres.
type Store struct {
	db      *sqlx.DB
	timeout time.Duration
}

// Open connects to the database, configures the pool, and ensures the
// schema exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db, timeout: 30 * time.Second}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// WriteOpportunities inserts a batch of cross-exchange detections
// atomically.
func (s *Store) WriteOpportunities(ctx context.Context, rows []models.Opportunity) error {
	if len(rows) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO opportunities
			(id, detection_ts, symbol, buy_venue, sell_venue,
			 buy_price_before, sell_price_before, buy_price_after, sell_price_after,
			 spread_bps, notional, buy_levels, sell_levels,
			 buy_maker, buy_taker, sell_maker, sell_taker, mode)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, o := range rows {
		_, err = stmt.ExecContext(ctx,
			uuid.NewString(), o.DetectedAt, o.Symbol, o.BuyVenue, o.SellVenue,
			o.BuyPriceBefore, o.SellPriceBefore, o.BuyPriceAfter, o.SellPriceAfter,
			o.SpreadBPS, o.Notional, o.BuyLevels, o.SellLevels,
			o.BuyFees.Maker, o.BuyFees.Taker, o.SellFees.Maker, o.SellFees.Taker,
			string(o.Mode))
		if err != nil {
			return fmt.Errorf("failed to insert opportunity: %w", err)
		}
	}
	return tx.Commit()
}

// WriteTriOpportunities inserts a batch of triangular detections
// atomically.
func (s *Store) WriteTriOpportunities(ctx context.Context, rows []models.TriOpportunity) error {
	if len(rows) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO tri_opportunities
			(id, detection_ts, venue, base_asset, asset2, asset3,
			 start_amount, end_amount, gain_bps, notional,
			 leg1_symbol, leg1_price, leg1_side,
			 leg2_symbol, leg2_price, leg2_side,
			 leg3_symbol, leg3_price, leg3_side,
			 maker_fee, taker_fee)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
		        $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, o := range rows {
		_, err = stmt.ExecContext(ctx,
			uuid.NewString(), o.DetectedAt, o.Venue, o.BaseAsset, o.Cycle[1], o.Cycle[2],
			o.StartAmount, o.EndAmount, o.GainBPS, o.Notional,
			o.Legs[0].Symbol, o.Legs[0].Price, string(o.Legs[0].Side),
			o.Legs[1].Symbol, o.Legs[1].Price, string(o.Legs[1].Side),
			o.Legs[2].Symbol, o.Legs[2].Price, string(o.Legs[2].Side),
			o.Fees.Maker, o.Fees.Taker)
		if err != nil {
			return fmt.Errorf("failed to insert tri opportunity: %w", err)
		}
	}
	return tx.Commit()
}

// WriteHealth inserts a batch of venue health snapshots atomically.
func (s *Store) WriteHealth(ctx context.Context, rows []models.VenueHealth) error {
	if len(rows) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO venue_health
			(id, snapshot_ts, venue, stream_connected, rest_ok,
			 last_stream_ts, last_rest_ts, reconnects, error_rate,
			 queue_depth, coalesced, scheduler_lag_ms, subscribed_symbols)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, h := range rows {
		symbols, err := json.Marshal(h.SubscribedSymbols)
		if err != nil {
			return fmt.Errorf("failed to encode subscribed symbols: %w", err)
		}
		_, err = stmt.ExecContext(ctx,
			uuid.NewString(), h.Timestamp, h.Venue, h.StreamConnected, h.RestOK,
			nullableTime(h.LastStreamMsg), nullableTime(h.LastRest),
			h.ReconnectCount, h.ErrorRate, h.QueueDepth, h.CoalescedCount,
			h.SchedulerLagMS, string(symbols))
		if err != nil {
			return fmt.Errorf("failed to insert health snapshot: %w", err)
		}
	}
	return tx.Commit()
}

// nullableTime maps the zero time to SQL NULL.
func nullableTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

// CleanupOlderThan deletes detection and health rows older than the
// retention window. A zero retention uses the default of seven days.
func (s *Store) CleanupOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		retention = retentionDefault
	}
	cutoff := time.Now().Add(-retention)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var total int64
	for _, q := range []string{
		`DELETE FROM opportunities WHERE detection_ts < $1`,
		`DELETE FROM tri_opportunities WHERE detection_ts < $1`,
		`DELETE FROM venue_health WHERE snapshot_ts < $1`,
	} {
		res, err := s.db.ExecContext(ctx, q, cutoff)
		if err != nil {
			return total, fmt.Errorf("cleanup failed: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			total += n
		}
	}
	return total, nil
}

// OpportunityRow is a persisted cross-exchange detection.
type OpportunityRow struct {
	ID              string    `db:"id"`
	DetectionTS     time.Time `db:"detection_ts"`
	Symbol          string    `db:"symbol"`
	BuyVenue        string    `db:"buy_venue"`
	SellVenue       string    `db:"sell_venue"`
	BuyPriceBefore  float64   `db:"buy_price_before"`
	SellPriceBefore float64   `db:"sell_price_before"`
	BuyPriceAfter   float64   `db:"buy_price_after"`
	SellPriceAfter  float64   `db:"sell_price_after"`
	SpreadBPS       float64   `db:"spread_bps"`
	Notional        float64   `db:"notional"`
	BuyLevels       int       `db:"buy_levels"`
	SellLevels      int       `db:"sell_levels"`
	BuyMaker        float64   `db:"buy_maker"`
	BuyTaker        float64   `db:"buy_taker"`
	SellMaker       float64   `db:"sell_maker"`
	SellTaker       float64   `db:"sell_taker"`
	Mode            string    `db:"mode"`
	CreatedAt       time.Time `db:"created_at"`
}

// RecentOpportunities returns the newest cross-exchange detections.
func (s *Store) RecentOpportunities(ctx context.Context, limit int) ([]OpportunityRow, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var out []OpportunityRow
	err := s.db.SelectContext(ctx, &out, `
		SELECT id, detection_ts, symbol, buy_venue, sell_venue,
		       buy_price_before, sell_price_before, buy_price_after, sell_price_after,
		       spread_bps, notional, buy_levels, sell_levels,
		       buy_maker, buy_taker, sell_maker, sell_taker, mode, created_at
		FROM opportunities
		ORDER BY detection_ts DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent opportunities: %w", err)
	}
	return out, nil
}

// TriOpportunityRow is a persisted triangular detection.
type TriOpportunityRow struct {
	ID          string    `db:"id"`
	DetectionTS time.Time `db:"detection_ts"`
	Venue       string    `db:"venue"`
	BaseAsset   string    `db:"base_asset"`
	Asset2      string    `db:"asset2"`
	Asset3      string    `db:"asset3"`
	StartAmount float64   `db:"start_amount"`
	EndAmount   float64   `db:"end_amount"`
	GainBPS     float64   `db:"gain_bps"`
	Notional    float64   `db:"notional"`
	Leg1Symbol  string    `db:"leg1_symbol"`
	Leg1Price   float64   `db:"leg1_price"`
	Leg1Side    string    `db:"leg1_side"`
	Leg2Symbol  string    `db:"leg2_symbol"`
	Leg2Price   float64   `db:"leg2_price"`
	Leg2Side    string    `db:"leg2_side"`
	Leg3Symbol  string    `db:"leg3_symbol"`
	Leg3Price   float64   `db:"leg3_price"`
	Leg3Side    string    `db:"leg3_side"`
	MakerFee    float64   `db:"maker_fee"`
	TakerFee    float64   `db:"taker_fee"`
	CreatedAt   time.Time `db:"created_at"`
}

// RecentTriOpportunities returns the newest triangular detections.
func (s *Store) RecentTriOpportunities(ctx context.Context, limit int) ([]TriOpportunityRow, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var out []TriOpportunityRow
	err := s.db.SelectContext(ctx, &out, `
		SELECT id, detection_ts, venue, base_asset, asset2, asset3,
		       start_amount, end_amount, gain_bps, notional,
		       leg1_symbol, leg1_price, leg1_side,
		       leg2_symbol, leg2_price, leg2_side,
		       leg3_symbol, leg3_price, leg3_side,
		       maker_fee, taker_fee, created_at
		FROM tri_opportunities
		ORDER BY detection_ts DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent tri opportunities: %w", err)
	}
	return out, nil
}
