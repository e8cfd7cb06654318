package postgres

import (
	"context"
	"fmt"
)

// schemaDDL bootstraps the engine's tables. Idempotent; applied at startup.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS users (
	id UUID PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	timezone TEXT NOT NULL DEFAULT 'UTC',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS api_profiles (
	id UUID PRIMARY KEY,
	user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	name TEXT NOT NULL DEFAULT '',
	client_id TEXT NOT NULL,
	client_secret TEXT NOT NULL,
	redirect_uri TEXT NOT NULL DEFAULT '',
	api_key TEXT NOT NULL DEFAULT '',
	used_quota BIGINT NOT NULL DEFAULT 0,
	limit_quota BIGINT NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'not_exceeded',
	exceeded_at TIMESTAMPTZ,
	is_active BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS proxies (
	id UUID PRIMARY KEY,
	user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	host TEXT NOT NULL,
	port INT NOT NULL,
	username TEXT NOT NULL DEFAULT '',
	password TEXT NOT NULL DEFAULT '',
	protocol TEXT NOT NULL DEFAULT 'http',
	status TEXT NOT NULL DEFAULT 'active',
	last_checked TIMESTAMPTZ,
	connection_speed BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS accounts (
	id UUID PRIMARY KEY,
	user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	proxy_id UUID REFERENCES proxies(id) ON DELETE SET NULL,
	profile_id UUID REFERENCES api_profiles(id) ON DELETE SET NULL,
	email TEXT NOT NULL DEFAULT '',
	access_token TEXT NOT NULL DEFAULT '',
	refresh_token TEXT NOT NULL DEFAULT '',
	token_expiry TIMESTAMPTZ,
	channel_id TEXT NOT NULL DEFAULT '',
	channel_title TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'active',
	last_used TIMESTAMPTZ,
	last_message TEXT NOT NULL DEFAULT '',
	proxy_error_count INT NOT NULL DEFAULT 0,
	duplication_count INT NOT NULL DEFAULT 0,
	proxy_error_threshold INT NOT NULL DEFAULT 20,
	comment_count INT NOT NULL DEFAULT 0,
	like_count INT NOT NULL DEFAULT 0,
	daily_usage_date DATE NOT NULL DEFAULT CURRENT_DATE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS schedules (
	id UUID PRIMARY KEY,
	user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	name TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'active',
	schedule_type TEXT NOT NULL,
	start_date TIMESTAMPTZ,
	end_date TIMESTAMPTZ,
	cron_expression TEXT NOT NULL DEFAULT '',
	interval_value INT NOT NULL DEFAULT 0,
	interval_unit TEXT NOT NULL DEFAULT 'minutes',
	interval_is_random BOOLEAN NOT NULL DEFAULT FALSE,
	interval_min INT NOT NULL DEFAULT 0,
	interval_max INT NOT NULL DEFAULT 0,
	comment_templates TEXT[] NOT NULL DEFAULT '{}',
	target_videos JSONB NOT NULL DEFAULT '[]',
	target_channels TEXT[] NOT NULL DEFAULT '{}',
	account_selection TEXT NOT NULL DEFAULT 'specific',
	rotation_enabled BOOLEAN NOT NULL DEFAULT FALSE,
	currently_active TEXT NOT NULL DEFAULT 'principal',
	last_rotated_at TIMESTAMPTZ,
	use_ai BOOLEAN NOT NULL DEFAULT FALSE,
	include_emojis BOOLEAN NOT NULL DEFAULT FALSE,
	min_delay INT NOT NULL DEFAULT 0,
	max_delay INT NOT NULL DEFAULT 0,
	between_accounts_ms INT NOT NULL DEFAULT 1500,
	limit_value INT NOT NULL DEFAULT 0,
	limit_is_random BOOLEAN NOT NULL DEFAULT FALSE,
	limit_min INT NOT NULL DEFAULT 0,
	limit_max INT NOT NULL DEFAULT 0,
	sleep_delay_minutes INT NOT NULL DEFAULT 0,
	sleep_delay_start_time TIMESTAMPTZ,
	last_sleep_trigger_count INT NOT NULL DEFAULT 0,
	last_used_account_id TEXT NOT NULL DEFAULT '',
	next_run_at TIMESTAMPTZ,
	last_processed_at TIMESTAMPTZ,
	total_comments INT NOT NULL DEFAULT 0,
	posted_comments INT NOT NULL DEFAULT 0,
	failed_comments INT NOT NULL DEFAULT 0,
	error_count INT NOT NULL DEFAULT 0,
	error_message TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS schedule_selected_accounts (
	schedule_id UUID NOT NULL REFERENCES schedules(id) ON DELETE CASCADE,
	account_id UUID NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
	PRIMARY KEY (schedule_id, account_id)
);
CREATE TABLE IF NOT EXISTS schedule_principal_accounts (
	schedule_id UUID NOT NULL REFERENCES schedules(id) ON DELETE CASCADE,
	account_id UUID NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
	PRIMARY KEY (schedule_id, account_id)
);
CREATE TABLE IF NOT EXISTS schedule_secondary_accounts (
	schedule_id UUID NOT NULL REFERENCES schedules(id) ON DELETE CASCADE,
	account_id UUID NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
	PRIMARY KEY (schedule_id, account_id)
);
CREATE TABLE IF NOT EXISTS schedule_rotated_principal_accounts (
	schedule_id UUID NOT NULL REFERENCES schedules(id) ON DELETE CASCADE,
	account_id UUID NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
	PRIMARY KEY (schedule_id, account_id)
);
CREATE TABLE IF NOT EXISTS schedule_rotated_secondary_accounts (
	schedule_id UUID NOT NULL REFERENCES schedules(id) ON DELETE CASCADE,
	account_id UUID NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
	PRIMARY KEY (schedule_id, account_id)
);

CREATE TABLE IF NOT EXISTS comments (
	id TEXT PRIMARY KEY,
	user_id UUID NOT NULL,
	schedule_id UUID NOT NULL REFERENCES schedules(id) ON DELETE CASCADE,
	account_id UUID NOT NULL,
	video_id TEXT NOT NULL,
	parent_id TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	scheduled_for TIMESTAMPTZ,
	posted_at TIMESTAMPTZ,
	error_message TEXT NOT NULL DEFAULT '',
	retry_count INT NOT NULL DEFAULT 0,
	external_id TEXT NOT NULL DEFAULT '',
	last_previous_account_id TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_comments_schedule_status ON comments (schedule_id, status);

CREATE TABLE IF NOT EXISTS view_schedules (
	id UUID PRIMARY KEY,
	user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	name TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'active',
	target_videos JSONB NOT NULL DEFAULT '[]',
	interval_value INT NOT NULL DEFAULT 0,
	interval_unit TEXT NOT NULL DEFAULT 'minutes',
	interval_is_random BOOLEAN NOT NULL DEFAULT FALSE,
	interval_min INT NOT NULL DEFAULT 0,
	interval_max INT NOT NULL DEFAULT 0,
	probability INT NOT NULL DEFAULT 100,
	min_watch_time INT NOT NULL DEFAULT 30,
	max_watch_time INT NOT NULL DEFAULT 120,
	auto_like BOOLEAN NOT NULL DEFAULT FALSE,
	next_run_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// EnsureSchema applies the DDL. Safe to run on every startup.
func EnsureSchema(ctx context.Context, pool PgxPool) error {
	if _, err := pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("op=schema.ensure: %w", err)
	}
	return nil
}
