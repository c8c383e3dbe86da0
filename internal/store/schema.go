package store

// schemaStatements define the durable archive. Natural keys double as the
// idempotency anchors for ON CONFLICT upserts.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS articles (
		id            TEXT PRIMARY KEY,
		title         TEXT NOT NULL,
		body          TEXT NOT NULL DEFAULT '',
		source        TEXT NOT NULL DEFAULT '',
		published_at  TIMESTAMPTZ NOT NULL,
		symbols       TEXT[] NOT NULL DEFAULT '{}'
	)`,
	`CREATE TABLE IF NOT EXISTS sentiment_scores (
		article_id        TEXT PRIMARY KEY,
		score             DOUBLE PRECISION NOT NULL,
		confidence        DOUBLE PRECISION NOT NULL,
		keywords_positive TEXT[] NOT NULL DEFAULT '{}',
		keywords_negative TEXT[] NOT NULL DEFAULT '{}',
		ts                TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS events (
		id            TEXT PRIMARY KEY,
		article_id    TEXT NOT NULL,
		event_type    TEXT NOT NULL,
		severity      DOUBLE PRECISION NOT NULL,
		keywords      TEXT[] NOT NULL DEFAULT '{}',
		ts            TIMESTAMPTZ NOT NULL,
		high_priority BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_events_ts ON events (ts)`,
	`CREATE TABLE IF NOT EXISTS bars (
		symbol  TEXT NOT NULL,
		ts      TIMESTAMPTZ NOT NULL,
		open    DOUBLE PRECISION NOT NULL,
		high    DOUBLE PRECISION NOT NULL,
		low     DOUBLE PRECISION NOT NULL,
		close   DOUBLE PRECISION NOT NULL,
		volume  DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (symbol, ts)
	)`,
	`CREATE TABLE IF NOT EXISTS indicator_snapshots (
		symbol   TEXT NOT NULL,
		ts       TIMESTAMPTZ NOT NULL,
		snapshot JSONB NOT NULL,
		PRIMARY KEY (symbol, ts)
	)`,
	`CREATE TABLE IF NOT EXISTS regime_snapshots (
		symbol     TEXT NOT NULL,
		ts         TIMESTAMPTZ NOT NULL,
		regime     TEXT NOT NULL,
		confidence DOUBLE PRECISION NOT NULL,
		snapshot   JSONB NOT NULL,
		PRIMARY KEY (symbol, ts)
	)`,
	`CREATE TABLE IF NOT EXISTS cms_results (
		symbol TEXT NOT NULL,
		ts     TIMESTAMPTZ NOT NULL,
		score  DOUBLE PRECISION NOT NULL,
		class  TEXT NOT NULL,
		result JSONB NOT NULL,
		PRIMARY KEY (symbol, ts)
	)`,
	`CREATE TABLE IF NOT EXISTS signals (
		id        UUID PRIMARY KEY,
		symbol    TEXT NOT NULL,
		class     TEXT NOT NULL,
		ts        TIMESTAMPTZ NOT NULL,
		signal    JSONB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_signals_symbol_ts ON signals (symbol, ts DESC)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id              UUID PRIMARY KEY,
		broker_order_id TEXT NOT NULL DEFAULT '',
		signal_id       UUID,
		symbol          TEXT NOT NULL,
		side            TEXT NOT NULL,
		order_type      TEXT NOT NULL,
		quantity        DOUBLE PRECISION NOT NULL,
		limit_price     DOUBLE PRECISION,
		status          TEXT NOT NULL,
		filled_qty      DOUBLE PRECISION NOT NULL DEFAULT 0,
		avg_fill_price  DOUBLE PRECISION NOT NULL DEFAULT 0,
		placed_at       TIMESTAMPTZ NOT NULL,
		updated_at      TIMESTAMPTZ NOT NULL,
		reject_reason   TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_status ON orders (status)`,
	`CREATE TABLE IF NOT EXISTS positions (
		id           UUID PRIMARY KEY,
		symbol       TEXT NOT NULL,
		side         TEXT NOT NULL,
		entry_price  DOUBLE PRECISION NOT NULL,
		quantity     DOUBLE PRECISION NOT NULL,
		initial_stop DOUBLE PRECISION NOT NULL,
		current_stop DOUBLE PRECISION NOT NULL,
		take_profit  DOUBLE PRECISION NOT NULL,
		open         BOOLEAN NOT NULL,
		entered_at   TIMESTAMPTZ NOT NULL,
		exited_at    TIMESTAMPTZ,
		exit_price   DOUBLE PRECISION NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_positions_symbol_open ON positions (symbol, open)`,
	`CREATE TABLE IF NOT EXISTS trades (
		id          UUID PRIMARY KEY,
		symbol      TEXT NOT NULL,
		side        TEXT NOT NULL,
		entry_price DOUBLE PRECISION NOT NULL,
		exit_price  DOUBLE PRECISION NOT NULL,
		quantity    DOUBLE PRECISION NOT NULL,
		pnl         DOUBLE PRECISION NOT NULL,
		entered_at  TIMESTAMPTZ NOT NULL,
		exited_at   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS backtest_results (
		id         UUID PRIMARY KEY,
		status     TEXT NOT NULL,
		result     JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
}
