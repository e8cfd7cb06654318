package postgres

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/commentflow/internal/domain"
)

// AccountRepo persists posting identities and their health counters.
type AccountRepo struct{ Pool PgxPool }

// NewAccountRepo constructs an AccountRepo with the given pool.
func NewAccountRepo(p PgxPool) *AccountRepo { return &AccountRepo{Pool: p} }

const accountColumns = `id, user_id, proxy_id, profile_id, email, access_token, refresh_token,
token_expiry, channel_id, channel_title, status, last_used, last_message,
proxy_error_count, duplication_count, proxy_error_threshold,
comment_count, like_count, daily_usage_date, created_at, updated_at`

func scanAccount(row pgx.Row) (domain.Account, error) {
	var a domain.Account
	err := row.Scan(
		&a.ID, &a.UserID, &a.ProxyID, &a.ProfileID, &a.Email, &a.AccessToken, &a.RefreshToken,
		&a.TokenExpiry, &a.ChannelID, &a.ChannelTitle, &a.Status, &a.LastUsed, &a.LastMessage,
		&a.ProxyErrorCount, &a.DuplicationCount, &a.ProxyErrorThreshold,
		&a.CommentCount, &a.LikeCount, &a.DailyUsageDate, &a.CreatedAt, &a.UpdatedAt,
	)
	return a, err
}

// Create inserts an account and returns its id.
func (r *AccountRepo) Create(ctx domain.Context, a domain.Account) (string, error) {
	tracer := otel.Tracer("repo.accounts")
	ctx, span := tracer.Start(ctx, "accounts.Create")
	defer span.End()

	id := a.ID
	if id == "" {
		id = uuid.New().String()
	}
	if a.Status == "" {
		a.Status = domain.AccountActive
	}
	if a.ProxyErrorThreshold <= 0 {
		a.ProxyErrorThreshold = domain.DefaultProxyErrorThreshold
	}
	now := time.Now().UTC()
	q := `INSERT INTO accounts (id, user_id, proxy_id, profile_id, email, access_token, refresh_token,
token_expiry, channel_id, channel_title, status, last_message,
proxy_error_count, duplication_count, proxy_error_threshold,
comment_count, like_count, daily_usage_date, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`
	_, err := r.Pool.Exec(ctx, q,
		id, a.UserID, a.ProxyID, a.ProfileID, a.Email, a.AccessToken, a.RefreshToken,
		a.TokenExpiry, a.ChannelID, a.ChannelTitle, a.Status, a.LastMessage,
		a.ProxyErrorCount, a.DuplicationCount, a.ProxyErrorThreshold,
		a.CommentCount, a.LikeCount, now, now, now)
	if err != nil {
		return "", fmt.Errorf("op=account.create: %w", err)
	}
	return id, nil
}

// Get loads one account.
func (r *AccountRepo) Get(ctx domain.Context, id string) (domain.Account, error) {
	row := r.Pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=$1`, id)
	a, err := scanAccount(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Account{}, fmt.Errorf("op=account.get: %w", domain.ErrNotFound)
		}
		return domain.Account{}, fmt.Errorf("op=account.get: %w", err)
	}
	return a, nil
}

// ListByIDs loads the given accounts, preserving only rows that exist.
func (r *AccountRepo) ListByIDs(ctx domain.Context, ids []string) ([]domain.Account, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.Pool.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ANY($1) ORDER BY created_at`, ids)
	if err != nil {
		return nil, fmt.Errorf("op=account.list_ids: %w", err)
	}
	return collectAccounts(rows)
}

// ListActiveByUser returns the user's active accounts.
func (r *AccountRepo) ListActiveByUser(ctx domain.Context, userID string) ([]domain.Account, error) {
	rows, err := r.Pool.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE user_id=$1 AND status='active' ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("op=account.list_active: %w", err)
	}
	return collectAccounts(rows)
}

func collectAccounts(rows pgx.Rows) ([]domain.Account, error) {
	defer rows.Close()
	var out []domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("op=account.scan: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=account.rows: %w", err)
	}
	return out, nil
}

// Update rewrites the mutable identity fields.
func (r *AccountRepo) Update(ctx domain.Context, a domain.Account) error {
	q := `UPDATE accounts SET proxy_id=$2, profile_id=$3, email=$4, refresh_token=$5,
proxy_error_threshold=$6, updated_at=$7 WHERE id=$1`
	tag, err := r.Pool.Exec(ctx, q, a.ID, a.ProxyID, a.ProfileID, a.Email, a.RefreshToken,
		a.ProxyErrorThreshold, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=account.update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=account.update: %w", domain.ErrNotFound)
	}
	return nil
}

// Delete removes an account.
func (r *AccountRepo) Delete(ctx domain.Context, id string) error {
	tag, err := r.Pool.Exec(ctx, `DELETE FROM accounts WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("op=account.delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=account.delete: %w", domain.ErrNotFound)
	}
	return nil
}

// SetStatus flips the account state and records why.
func (r *AccountRepo) SetStatus(ctx domain.Context, id string, status domain.AccountStatus, lastMessage string) error {
	_, err := r.Pool.Exec(ctx, `UPDATE accounts SET status=$2, last_message=$3, updated_at=$4 WHERE id=$1`,
		id, status, lastMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=account.set_status: %w", err)
	}
	return nil
}

// SaveTokens persists a refreshed access token.
func (r *AccountRepo) SaveTokens(ctx domain.Context, id, accessToken string, expiry time.Time) error {
	_, err := r.Pool.Exec(ctx, `UPDATE accounts SET access_token=$2, token_expiry=$3, updated_at=$4 WHERE id=$1`,
		id, accessToken, expiry, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=account.save_tokens: %w", err)
	}
	return nil
}

// SetChannel records the verified channel identity.
func (r *AccountRepo) SetChannel(ctx domain.Context, id, channelID, channelTitle string) error {
	_, err := r.Pool.Exec(ctx, `UPDATE accounts SET channel_id=$2, channel_title=$3, updated_at=$4 WHERE id=$1`,
		id, channelID, channelTitle, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=account.set_channel: %w", err)
	}
	return nil
}

// AssignProxy binds (or with nil unbinds) a proxy and clears the error count.
func (r *AccountRepo) AssignProxy(ctx domain.Context, id string, proxyID *string) error {
	_, err := r.Pool.Exec(ctx, `UPDATE accounts SET proxy_id=$2, proxy_error_count=0, updated_at=$3 WHERE id=$1`,
		id, proxyID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=account.assign_proxy: %w", err)
	}
	return nil
}

// RecordUsage stamps last_used after a dispatch.
func (r *AccountRepo) RecordUsage(ctx domain.Context, id string, at time.Time) error {
	_, err := r.Pool.Exec(ctx, `UPDATE accounts SET last_used=$2, updated_at=$3 WHERE id=$1`, id, at, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=account.record_usage: %w", err)
	}
	return nil
}

// IncrementProxyError bumps the consecutive proxy-failure counter.
func (r *AccountRepo) IncrementProxyError(ctx domain.Context, id string) (int, error) {
	var n int
	q := `UPDATE accounts SET proxy_error_count=proxy_error_count+1, updated_at=$2 WHERE id=$1 RETURNING proxy_error_count`
	if err := r.Pool.QueryRow(ctx, q, id, time.Now().UTC()).Scan(&n); err != nil {
		if err == pgx.ErrNoRows {
			return 0, fmt.Errorf("op=account.increment_proxy_error: %w", domain.ErrNotFound)
		}
		return 0, fmt.Errorf("op=account.increment_proxy_error: %w", err)
	}
	return n, nil
}

// ResetProxyError clears the counter after a successful post.
func (r *AccountRepo) ResetProxyError(ctx domain.Context, id string) error {
	_, err := r.Pool.Exec(ctx, `UPDATE accounts SET proxy_error_count=0, updated_at=$2 WHERE id=$1`, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=account.reset_proxy_error: %w", err)
	}
	return nil
}

// IncrementDuplication counts duplicate-content rejections.
func (r *AccountRepo) IncrementDuplication(ctx domain.Context, id string) error {
	_, err := r.Pool.Exec(ctx, `UPDATE accounts SET duplication_count=duplication_count+1, updated_at=$2 WHERE id=$1`, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=account.increment_duplication: %w", err)
	}
	return nil
}

// IncrementDailyComment bumps the per-day comment counter, rolling the
// counters over when the stored usage date is stale.
func (r *AccountRepo) IncrementDailyComment(ctx domain.Context, id string, day time.Time) error {
	q := `UPDATE accounts SET
	comment_count = CASE WHEN daily_usage_date < $2::date THEN 1 ELSE comment_count + 1 END,
	like_count    = CASE WHEN daily_usage_date < $2::date THEN 0 ELSE like_count END,
	daily_usage_date = GREATEST(daily_usage_date, $2::date),
	updated_at = $3
WHERE id=$1`
	_, err := r.Pool.Exec(ctx, q, id, day, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=account.increment_daily_comment: %w", err)
	}
	return nil
}

// IncrementDailyLike mirrors IncrementDailyComment for likes.
func (r *AccountRepo) IncrementDailyLike(ctx domain.Context, id string, day time.Time) error {
	q := `UPDATE accounts SET
	like_count    = CASE WHEN daily_usage_date < $2::date THEN 1 ELSE like_count + 1 END,
	comment_count = CASE WHEN daily_usage_date < $2::date THEN 0 ELSE comment_count END,
	daily_usage_date = GREATEST(daily_usage_date, $2::date),
	updated_at = $3
WHERE id=$1`
	_, err := r.Pool.Exec(ctx, q, id, day, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=account.increment_daily_like: %w", err)
	}
	return nil
}

// ReactivateAll returns inactive and limited accounts to active with a
// clean proxy error count (daily reset).
func (r *AccountRepo) ReactivateAll(ctx domain.Context) (int64, error) {
	tracer := otel.Tracer("repo.accounts")
	ctx, span := tracer.Start(ctx, "accounts.ReactivateAll")
	defer span.End()

	q := `UPDATE accounts SET status='active', proxy_error_count=0, last_message='', updated_at=$1
WHERE status IN ('inactive', 'limited')`
	tag, err := r.Pool.Exec(ctx, q, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("op=account.reactivate_all: %w", err)
	}
	return tag.RowsAffected(), nil
}

var _ domain.AccountRepository = (*AccountRepo)(nil)
