package postgres

const schemaDDL = `
CREATE TABLE IF NOT EXISTS sources (
    id           TEXT PRIMARY KEY,
    retailer_id  TEXT NOT NULL,
    dealer_id    TEXT NOT NULL,
    url          TEXT NOT NULL,
    kind         TEXT NOT NULL,
    network      TEXT NOT NULL DEFAULT '',
    pagination   JSONB NOT NULL DEFAULT '{}',
    feed_hash    TEXT NOT NULL DEFAULT '',
    interval_sec BIGINT NOT NULL DEFAULT 3600,
    next_due_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    enabled      BOOLEAN NOT NULL DEFAULT TRUE
);
CREATE INDEX IF NOT EXISTS idx_sources_due ON sources (next_due_at) WHERE enabled;

CREATE TABLE IF NOT EXISTS executions (
    id              TEXT PRIMARY KEY,
    source_id       TEXT NOT NULL,
    status          TEXT NOT NULL,
    items_found     INTEGER NOT NULL DEFAULT 0,
    items_upserted  INTEGER NOT NULL DEFAULT 0,
    failure_message TEXT NOT NULL DEFAULT '',
    started_at      TIMESTAMPTZ NOT NULL,
    completed_at    TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_executions_source ON executions (source_id, started_at DESC);

CREATE TABLE IF NOT EXISTS execution_logs (
    id           BIGSERIAL PRIMARY KEY,
    execution_id TEXT NOT NULL,
    level        TEXT NOT NULL,
    event        TEXT NOT NULL,
    message      TEXT NOT NULL,
    metadata     JSONB,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_execution_logs_execution ON execution_logs (execution_id, id);

CREATE TABLE IF NOT EXISTS products (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    brand      TEXT NOT NULL DEFAULT '',
    upc        TEXT NOT NULL DEFAULT '',
    image_url  TEXT NOT NULL DEFAULT '',
    caliber    TEXT NOT NULL DEFAULT '',
    grain      INTEGER NOT NULL DEFAULT 0,
    rounds     INTEGER NOT NULL DEFAULT 0,
    case_mat   TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS source_products (
    id         TEXT NOT NULL UNIQUE,
    source_id  TEXT NOT NULL,
    url        TEXT NOT NULL,
    title      TEXT NOT NULL,
    brand      TEXT NOT NULL DEFAULT '',
    product_id TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (source_id, url)
);
CREATE INDEX IF NOT EXISTS idx_source_products_product ON source_products (product_id);

CREATE TABLE IF NOT EXISTS prices (
    id           BIGSERIAL PRIMARY KEY,
    product_id   TEXT NOT NULL,
    retailer_id  TEXT NOT NULL,
    source_id    TEXT NOT NULL,
    price        NUMERIC(12,2) NOT NULL,
    currency     TEXT NOT NULL DEFAULT 'USD',
    in_stock     BOOLEAN NOT NULL,
    observed_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    execution_id TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_prices_latest ON prices (product_id, retailer_id, id DESC);

CREATE TABLE IF NOT EXISTS dealers (
    id     TEXT PRIMARY KEY,
    name   TEXT NOT NULL,
    status TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
    id                    TEXT PRIMARY KEY,
    email                 TEXT NOT NULL,
    tier                  TEXT NOT NULL DEFAULT 'basic',
    notifications_enabled BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS alerts (
    id            TEXT PRIMARY KEY,
    user_id       TEXT NOT NULL,
    product_id    TEXT NOT NULL,
    kind          TEXT NOT NULL,
    threshold_pct DOUBLE PRECISION NOT NULL DEFAULT 0,
    threshold_amt DOUBLE PRECISION NOT NULL DEFAULT 0,
    enabled       BOOLEAN NOT NULL DEFAULT TRUE
);
CREATE INDEX IF NOT EXISTS idx_alerts_product ON alerts (product_id) WHERE enabled;

CREATE TABLE IF NOT EXISTS watchlist_items (
    id               TEXT PRIMARY KEY,
    user_id          TEXT NOT NULL,
    product_id       TEXT NOT NULL,
    cooldown_sec     BIGINT NOT NULL DEFAULT 43200,
    last_notified_at TIMESTAMPTZ,
    UNIQUE (user_id, product_id)
);

CREATE TABLE IF NOT EXISTS notifications (
    id           TEXT PRIMARY KEY,
    alert_id     TEXT NOT NULL,
    user_id      TEXT NOT NULL,
    recipient    TEXT NOT NULL,
    subject      TEXT NOT NULL,
    body         TEXT NOT NULL,
    reason       TEXT NOT NULL,
    execution_id TEXT NOT NULL,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications (user_id, created_at DESC);
`
