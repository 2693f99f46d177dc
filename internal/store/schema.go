package store

// initSchemaSQL creates the core tables. Column shapes follow
// original_source/src-tauri/src/db/models.rs, generalized from its
// route/route_target naming to this repository's channel/model_mapping
// vocabulary.
const initSchemaSQL = `
CREATE TABLE IF NOT EXISTS channels (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	provider     TEXT NOT NULL,
	base_url     TEXT NOT NULL,
	priority     INTEGER NOT NULL DEFAULT 0,
	weight       INTEGER NOT NULL DEFAULT 1,
	enabled      INTEGER NOT NULL DEFAULT 1,
	key_rotation INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS channel_api_keys (
	id         TEXT PRIMARY KEY,
	channel_id TEXT NOT NULL REFERENCES channels(id) ON DELETE CASCADE,
	key_value  TEXT NOT NULL,
	enabled    INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_channel_api_keys_channel ON channel_api_keys(channel_id);

CREATE TABLE IF NOT EXISTS model_mappings (
	id          TEXT PRIMARY KEY,
	public_name TEXT NOT NULL,
	channel_id  TEXT NOT NULL REFERENCES channels(id) ON DELETE CASCADE,
	actual_name TEXT NOT NULL,
	modality    TEXT NOT NULL DEFAULT 'chat'
);
CREATE INDEX IF NOT EXISTS idx_model_mappings_public_name ON model_mappings(public_name);

CREATE TABLE IF NOT EXISTS tokens (
	id             TEXT PRIMARY KEY,
	key_value      TEXT NOT NULL UNIQUE,
	enabled        INTEGER NOT NULL DEFAULT 1,
	expires_at     TEXT,
	quota_limit    INTEGER,
	quota_used     INTEGER NOT NULL DEFAULT 0,
	allowed_models TEXT
);

CREATE TABLE IF NOT EXISTS request_logs (
	id                TEXT PRIMARY KEY,
	token_id          TEXT NOT NULL,
	channel_id        TEXT NOT NULL,
	model             TEXT NOT NULL,
	modality          TEXT NOT NULL,
	input_format      TEXT NOT NULL,
	output_format     TEXT NOT NULL,
	status            INTEGER NOT NULL,
	latency_ms        INTEGER NOT NULL,
	prompt_tokens     INTEGER NOT NULL DEFAULT 0,
	completion_tokens INTEGER NOT NULL DEFAULT 0,
	request_body      TEXT,
	response_body     TEXT,
	created_at        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_request_logs_created_at ON request_logs(created_at);

CREATE TABLE IF NOT EXISTS app_config (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// seedDefaultTokenSQL inserts a single usable token on first startup so a
// fresh install is immediately callable, matching original_source's
// seed_default_token behavior.
const seedDefaultTokenSQL = `
INSERT INTO tokens (id, key_value, enabled)
SELECT lower(hex(randomblob(16))), 'sk-local-' || lower(hex(randomblob(16))), 1
WHERE NOT EXISTS (SELECT 1 FROM tokens);
`
