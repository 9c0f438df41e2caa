package ledger

// The schema is applied statement by statement: the pgx driver uses the
// extended protocol, which rejects multi-statement Exec calls.

var schemaPostgres = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		role       TEXT NOT NULL,
		api_key    TEXT NOT NULL UNIQUE,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS wallets (
		id      BIGSERIAL PRIMARY KEY,
		user_id TEXT NOT NULL UNIQUE REFERENCES users(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS instruments (
		id         BIGSERIAL PRIMARY KEY,
		ticker     TEXT NOT NULL UNIQUE,
		name       TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS balances (
		id            BIGSERIAL PRIMARY KEY,
		wallet_id     BIGINT NOT NULL REFERENCES wallets(id) ON DELETE CASCADE,
		instrument_id BIGINT NOT NULL REFERENCES instruments(id) ON DELETE CASCADE,
		amount        BIGINT NOT NULL DEFAULT 0 CHECK (amount >= 0),
		reserved      BIGINT NOT NULL DEFAULT 0 CHECK (reserved >= 0 AND reserved <= amount),
		UNIQUE (wallet_id, instrument_id)
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id            TEXT PRIMARY KEY,
		user_id       TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		instrument_id BIGINT NOT NULL REFERENCES instruments(id) ON DELETE CASCADE,
		order_type    TEXT NOT NULL,
		status        TEXT NOT NULL,
		direction     TEXT NOT NULL,
		qty           BIGINT NOT NULL CHECK (qty > 0),
		price         BIGINT NOT NULL DEFAULT 0 CHECK (price >= 0),
		filled        BIGINT NOT NULL DEFAULT 0 CHECK (filled >= 0 AND filled <= qty),
		created_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id            BIGSERIAL PRIMARY KEY,
		instrument_id BIGINT NOT NULL REFERENCES instruments(id) ON DELETE CASCADE,
		wallet_id     BIGINT NOT NULL REFERENCES wallets(id) ON DELETE CASCADE,
		amount        BIGINT NOT NULL CHECK (amount > 0),
		price         BIGINT NOT NULL CHECK (price > 0),
		created_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_instrument_status ON orders (instrument_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_user ON orders (user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_instrument ON transactions (instrument_id, created_at)`,
}

var schemaSQLite = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		role       TEXT NOT NULL,
		api_key    TEXT NOT NULL UNIQUE,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS wallets (
		id      INTEGER PRIMARY KEY,
		user_id TEXT NOT NULL UNIQUE REFERENCES users(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS instruments (
		id         INTEGER PRIMARY KEY,
		ticker     TEXT NOT NULL UNIQUE,
		name       TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS balances (
		id            INTEGER PRIMARY KEY,
		wallet_id     INTEGER NOT NULL REFERENCES wallets(id) ON DELETE CASCADE,
		instrument_id INTEGER NOT NULL REFERENCES instruments(id) ON DELETE CASCADE,
		amount        INTEGER NOT NULL DEFAULT 0 CHECK (amount >= 0),
		reserved      INTEGER NOT NULL DEFAULT 0 CHECK (reserved >= 0 AND reserved <= amount),
		UNIQUE (wallet_id, instrument_id)
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id            TEXT PRIMARY KEY,
		user_id       TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		instrument_id INTEGER NOT NULL REFERENCES instruments(id) ON DELETE CASCADE,
		order_type    TEXT NOT NULL,
		status        TEXT NOT NULL,
		direction     TEXT NOT NULL,
		qty           INTEGER NOT NULL CHECK (qty > 0),
		price         INTEGER NOT NULL DEFAULT 0 CHECK (price >= 0),
		filled        INTEGER NOT NULL DEFAULT 0 CHECK (filled >= 0 AND filled <= qty),
		created_at    TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id            INTEGER PRIMARY KEY,
		instrument_id INTEGER NOT NULL REFERENCES instruments(id) ON DELETE CASCADE,
		wallet_id     INTEGER NOT NULL REFERENCES wallets(id) ON DELETE CASCADE,
		amount        INTEGER NOT NULL CHECK (amount > 0),
		price         INTEGER NOT NULL CHECK (price > 0),
		created_at    TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_instrument_status ON orders (instrument_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_user ON orders (user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_instrument ON transactions (instrument_id, created_at)`,
}
