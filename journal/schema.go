package journal

const SchemaSQLite = `
CREATE TABLE IF NOT EXISTS cycles (
	cycle_id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	symbol TEXT NOT NULL,
	started_at DATETIME NOT NULL,
	finished_at DATETIME NOT NULL,
	action TEXT NOT NULL,
	setup_id TEXT NOT NULL,
	phase_before TEXT NOT NULL,
	phase_after TEXT NOT NULL,
	outcome TEXT NOT NULL,
	violations TEXT NOT NULL,
	error TEXT NOT NULL,
	next_review_at DATETIME
);

CREATE TABLE IF NOT EXISTS executions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	cycle_id TEXT NOT NULL,
	time DATETIME NOT NULL,
	op TEXT NOT NULL,
	ticket INTEGER NOT NULL,
	symbol TEXT NOT NULL,
	order_type TEXT NOT NULL,
	client_id TEXT NOT NULL,
	volume REAL NOT NULL,
	price REAL NOT NULL,
	stop_loss REAL NOT NULL,
	take_profit REAL NOT NULL,
	retcode INTEGER NOT NULL,
	comment TEXT NOT NULL,
	error TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cycles_started ON cycles(started_at);
CREATE INDEX IF NOT EXISTS idx_executions_ticket ON executions(ticket);
CREATE INDEX IF NOT EXISTS idx_executions_cycle ON executions(cycle_id);
`

const SchemaPostgres = `
CREATE TABLE IF NOT EXISTS cycles (
	cycle_id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	symbol TEXT NOT NULL,
	started_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL,
	action TEXT NOT NULL,
	setup_id TEXT NOT NULL,
	phase_before TEXT NOT NULL,
	phase_after TEXT NOT NULL,
	outcome TEXT NOT NULL,
	violations TEXT NOT NULL,
	error TEXT NOT NULL,
	next_review_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS executions (
	id BIGSERIAL PRIMARY KEY,
	cycle_id TEXT NOT NULL,
	time TIMESTAMPTZ NOT NULL,
	op TEXT NOT NULL,
	ticket BIGINT NOT NULL,
	symbol TEXT NOT NULL,
	order_type TEXT NOT NULL,
	client_id TEXT NOT NULL,
	volume DOUBLE PRECISION NOT NULL,
	price DOUBLE PRECISION NOT NULL,
	stop_loss DOUBLE PRECISION NOT NULL,
	take_profit DOUBLE PRECISION NOT NULL,
	retcode INTEGER NOT NULL,
	comment TEXT NOT NULL,
	error TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cycles_started ON cycles(started_at);
CREATE INDEX IF NOT EXISTS idx_executions_ticket ON executions(ticket);
CREATE INDEX IF NOT EXISTS idx_executions_cycle ON executions(cycle_id);
`
