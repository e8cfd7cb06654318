package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/commentflow/internal/domain"
)

// ScheduleRepo persists schedules, their account links and counters.
type ScheduleRepo struct{ Pool PgxPool }

// NewScheduleRepo constructs a ScheduleRepo with the given pool.
func NewScheduleRepo(p PgxPool) *ScheduleRepo { return &ScheduleRepo{Pool: p} }

const scheduleColumns = `id, user_id, name, status, schedule_type, start_date, end_date,
cron_expression, interval_value, interval_unit, interval_is_random, interval_min, interval_max,
comment_templates, target_videos, target_channels, account_selection,
rotation_enabled, currently_active, last_rotated_at,
use_ai, include_emojis, min_delay, max_delay, between_accounts_ms,
limit_value, limit_is_random, limit_min, limit_max,
sleep_delay_minutes, sleep_delay_start_time, last_sleep_trigger_count, last_used_account_id,
next_run_at, last_processed_at,
total_comments, posted_comments, failed_comments, error_count, error_message,
created_at, updated_at`

var linkTables = map[string]string{
	"selected":          "schedule_selected_accounts",
	"principal":         "schedule_principal_accounts",
	"secondary":         "schedule_secondary_accounts",
	"rotated_principal": "schedule_rotated_principal_accounts",
	"rotated_secondary": "schedule_rotated_secondary_accounts",
}

func scanSchedule(row pgx.Row) (domain.Schedule, error) {
	var s domain.Schedule
	var videosRaw []byte
	err := row.Scan(
		&s.ID, &s.UserID, &s.Name, &s.Status, &s.Type, &s.StartDate, &s.EndDate,
		&s.CronExpression, &s.Interval.Value, &s.Interval.Unit, &s.Interval.IsRandom, &s.Interval.Min, &s.Interval.Max,
		&s.CommentTemplates, &videosRaw, &s.TargetChannels, &s.AccountSelection,
		&s.RotationEnabled, &s.CurrentlyActive, &s.LastRotatedAt,
		&s.UseAI, &s.IncludeEmojis, &s.MinDelay, &s.MaxDelay, &s.BetweenAccountsMS,
		&s.LimitComments.Value, &s.LimitComments.IsRandom, &s.LimitComments.Min, &s.LimitComments.Max,
		&s.SleepDelayMinutes, &s.SleepDelayStartTime, &s.LastSleepTriggerCount, &s.LastUsedAccountID,
		&s.NextRunAt, &s.LastProcessedAt,
		&s.TotalComments, &s.PostedComments, &s.FailedComments, &s.ErrorCount, &s.ErrorMessage,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return domain.Schedule{}, err
	}
	if len(videosRaw) > 0 {
		if err := json.Unmarshal(videosRaw, &s.TargetVideos); err != nil {
			return domain.Schedule{}, fmt.Errorf("target_videos: %w", err)
		}
	}
	return s, nil
}

func replaceLinks(ctx domain.Context, tx pgx.Tx, table, scheduleID string, accountIDs []string) error {
	if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE schedule_id=$1`, table), scheduleID); err != nil {
		return err
	}
	for _, aid := range accountIDs {
		q := fmt.Sprintf(`INSERT INTO %s (schedule_id, account_id) VALUES ($1,$2) ON CONFLICT DO NOTHING`, table)
		if _, err := tx.Exec(ctx, q, scheduleID, aid); err != nil {
			return err
		}
	}
	return nil
}

func (r *ScheduleRepo) loadLinks(ctx domain.Context, id string) (map[string][]string, error) {
	out := make(map[string][]string, len(linkTables))
	for role, table := range linkTables {
		rows, err := r.Pool.Query(ctx, fmt.Sprintf(`SELECT account_id FROM %s WHERE schedule_id=$1`, table), id)
		if err != nil {
			return nil, err
		}
		ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return nil, err
		}
		out[role] = ids
	}
	return out, nil
}

func attachLinks(s *domain.Schedule, links map[string][]string) {
	s.SelectedAccounts = links["selected"]
	s.PrincipalAccounts = links["principal"]
	s.SecondaryAccounts = links["secondary"]
	s.RotatedPrincipal = links["rotated_principal"]
	s.RotatedSecondary = links["rotated_secondary"]
}

// Create inserts a schedule with its account links and returns its id.
func (r *ScheduleRepo) Create(ctx domain.Context, s domain.Schedule) (string, error) {
	tracer := otel.Tracer("repo.schedules")
	ctx, span := tracer.Start(ctx, "schedules.Create")
	defer span.End()

	id := s.ID
	if id == "" {
		id = uuid.New().String()
	}
	videos, err := json.Marshal(s.TargetVideos)
	if err != nil {
		return "", fmt.Errorf("op=schedule.create: %w", err)
	}
	now := time.Now().UTC()

	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", fmt.Errorf("op=schedule.create: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	q := `INSERT INTO schedules (id, user_id, name, status, schedule_type, start_date, end_date,
cron_expression, interval_value, interval_unit, interval_is_random, interval_min, interval_max,
comment_templates, target_videos, target_channels, account_selection,
rotation_enabled, currently_active, last_rotated_at,
use_ai, include_emojis, min_delay, max_delay, between_accounts_ms,
limit_value, limit_is_random, limit_min, limit_max,
sleep_delay_minutes, sleep_delay_start_time, last_sleep_trigger_count, last_used_account_id,
next_run_at, last_processed_at,
total_comments, posted_comments, failed_comments, error_count, error_message,
created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,
$26,$27,$28,$29,$30,$31,$32,$33,$34,$35,$36,$37,$38,$39,$40,$41,$42)`
	_, err = tx.Exec(ctx, q,
		id, s.UserID, s.Name, s.Status, s.Type, s.StartDate, s.EndDate,
		s.CronExpression, s.Interval.Value, s.Interval.Unit, s.Interval.IsRandom, s.Interval.Min, s.Interval.Max,
		s.CommentTemplates, videos, s.TargetChannels, s.AccountSelection,
		s.RotationEnabled, s.CurrentlyActive, s.LastRotatedAt,
		s.UseAI, s.IncludeEmojis, s.MinDelay, s.MaxDelay, s.BetweenAccountsMS,
		s.LimitComments.Value, s.LimitComments.IsRandom, s.LimitComments.Min, s.LimitComments.Max,
		s.SleepDelayMinutes, s.SleepDelayStartTime, s.LastSleepTriggerCount, s.LastUsedAccountID,
		s.NextRunAt, s.LastProcessedAt,
		s.TotalComments, s.PostedComments, s.FailedComments, s.ErrorCount, s.ErrorMessage,
		now, now)
	if err != nil {
		return "", fmt.Errorf("op=schedule.create: %w", err)
	}
	for role, ids := range map[string][]string{
		"selected": s.SelectedAccounts, "principal": s.PrincipalAccounts, "secondary": s.SecondaryAccounts,
		"rotated_principal": s.RotatedPrincipal, "rotated_secondary": s.RotatedSecondary,
	} {
		if err := replaceLinks(ctx, tx, linkTables[role], id, ids); err != nil {
			return "", fmt.Errorf("op=schedule.create links: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("op=schedule.create: %w", err)
	}
	return id, nil
}

// Get loads a schedule with its account links.
func (r *ScheduleRepo) Get(ctx domain.Context, id string) (domain.Schedule, error) {
	tracer := otel.Tracer("repo.schedules")
	ctx, span := tracer.Start(ctx, "schedules.Get")
	defer span.End()

	row := r.Pool.QueryRow(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE id=$1`, id)
	s, err := scanSchedule(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Schedule{}, fmt.Errorf("op=schedule.get: %w", domain.ErrNotFound)
		}
		return domain.Schedule{}, fmt.Errorf("op=schedule.get: %w", err)
	}
	links, err := r.loadLinks(ctx, id)
	if err != nil {
		return domain.Schedule{}, fmt.Errorf("op=schedule.get links: %w", err)
	}
	attachLinks(&s, links)
	return s, nil
}

// ListByUser pages a user's schedules, newest first.
func (r *ScheduleRepo) ListByUser(ctx domain.Context, userID string, offset, limit int) ([]domain.Schedule, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.Pool.Query(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE user_id=$1 ORDER BY created_at DESC OFFSET $2 LIMIT $3`, userID, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("op=schedule.list_user: %w", err)
	}
	return r.collect(ctx, rows)
}

// ListActive returns every active schedule; the driver walks this at boot.
func (r *ScheduleRepo) ListActive(ctx domain.Context) ([]domain.Schedule, error) {
	rows, err := r.Pool.Query(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE status='active' ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("op=schedule.list_active: %w", err)
	}
	return r.collect(ctx, rows)
}

func (r *ScheduleRepo) collect(ctx domain.Context, rows pgx.Rows) ([]domain.Schedule, error) {
	defer rows.Close()
	var out []domain.Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("op=schedule.scan: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=schedule.rows: %w", err)
	}
	for i := range out {
		links, err := r.loadLinks(ctx, out[i].ID)
		if err != nil {
			return nil, fmt.Errorf("op=schedule.links: %w", err)
		}
		attachLinks(&out[i], links)
	}
	return out, nil
}

// Update rewrites the mutable schedule fields and account links.
func (r *ScheduleRepo) Update(ctx domain.Context, s domain.Schedule) error {
	tracer := otel.Tracer("repo.schedules")
	ctx, span := tracer.Start(ctx, "schedules.Update")
	defer span.End()

	videos, err := json.Marshal(s.TargetVideos)
	if err != nil {
		return fmt.Errorf("op=schedule.update: %w", err)
	}
	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("op=schedule.update: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	q := `UPDATE schedules SET name=$2, status=$3, schedule_type=$4, start_date=$5, end_date=$6,
cron_expression=$7, interval_value=$8, interval_unit=$9, interval_is_random=$10, interval_min=$11, interval_max=$12,
comment_templates=$13, target_videos=$14, target_channels=$15, account_selection=$16,
rotation_enabled=$17, currently_active=$18,
use_ai=$19, include_emojis=$20, min_delay=$21, max_delay=$22, between_accounts_ms=$23,
limit_value=$24, limit_is_random=$25, limit_min=$26, limit_max=$27, updated_at=$28
WHERE id=$1`
	tag, err := tx.Exec(ctx, q,
		s.ID, s.Name, s.Status, s.Type, s.StartDate, s.EndDate,
		s.CronExpression, s.Interval.Value, s.Interval.Unit, s.Interval.IsRandom, s.Interval.Min, s.Interval.Max,
		s.CommentTemplates, videos, s.TargetChannels, s.AccountSelection,
		s.RotationEnabled, s.CurrentlyActive,
		s.UseAI, s.IncludeEmojis, s.MinDelay, s.MaxDelay, s.BetweenAccountsMS,
		s.LimitComments.Value, s.LimitComments.IsRandom, s.LimitComments.Min, s.LimitComments.Max,
		time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=schedule.update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=schedule.update: %w", domain.ErrNotFound)
	}
	for role, ids := range map[string][]string{
		"selected": s.SelectedAccounts, "principal": s.PrincipalAccounts, "secondary": s.SecondaryAccounts,
	} {
		if err := replaceLinks(ctx, tx, linkTables[role], s.ID, ids); err != nil {
			return fmt.Errorf("op=schedule.update links: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("op=schedule.update: %w", err)
	}
	return nil
}

// Delete removes a schedule; link tables cascade.
func (r *ScheduleRepo) Delete(ctx domain.Context, id string) error {
	tag, err := r.Pool.Exec(ctx, `DELETE FROM schedules WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("op=schedule.delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=schedule.delete: %w", domain.ErrNotFound)
	}
	return nil
}

// UpdateStatus sets the lifecycle status and optional error message.
func (r *ScheduleRepo) UpdateStatus(ctx domain.Context, id string, status domain.ScheduleStatus, errMsg *string) error {
	msg := ""
	if errMsg != nil {
		msg = *errMsg
	}
	_, err := r.Pool.Exec(ctx, `UPDATE schedules SET status=$2, error_message=$3, updated_at=$4 WHERE id=$1`, id, status, msg, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=schedule.update_status: %w", err)
	}
	return nil
}

// SetNextRunAt persists the next firing time (nil clears it).
func (r *ScheduleRepo) SetNextRunAt(ctx domain.Context, id string, at *time.Time) error {
	_, err := r.Pool.Exec(ctx, `UPDATE schedules SET next_run_at=$2, updated_at=$3 WHERE id=$1`, id, at, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=schedule.set_next_run: %w", err)
	}
	return nil
}

// SetLastProcessedAt stamps a finished batch.
func (r *ScheduleRepo) SetLastProcessedAt(ctx domain.Context, id string, at time.Time) error {
	_, err := r.Pool.Exec(ctx, `UPDATE schedules SET last_processed_at=$2, updated_at=$3 WHERE id=$1`, id, at, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=schedule.set_last_processed: %w", err)
	}
	return nil
}

// SetLastUsedAccount records the globally-last dispatched account.
func (r *ScheduleRepo) SetLastUsedAccount(ctx domain.Context, id, accountID string) error {
	_, err := r.Pool.Exec(ctx, `UPDATE schedules SET last_used_account_id=$2, updated_at=$3 WHERE id=$1`, id, accountID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=schedule.set_last_account: %w", err)
	}
	return nil
}

// SaveIntervalValue persists a freshly drawn random interval.
func (r *ScheduleRepo) SaveIntervalValue(ctx domain.Context, id string, value int) error {
	_, err := r.Pool.Exec(ctx, `UPDATE schedules SET interval_value=$2, updated_at=$3 WHERE id=$1`, id, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=schedule.save_interval: %w", err)
	}
	return nil
}

// SaveCommentLimitValue persists a freshly drawn sleep threshold.
func (r *ScheduleRepo) SaveCommentLimitValue(ctx domain.Context, id string, value int) error {
	_, err := r.Pool.Exec(ctx, `UPDATE schedules SET limit_value=$2, updated_at=$3 WHERE id=$1`, id, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=schedule.save_limit: %w", err)
	}
	return nil
}

// AppendCommentTemplate grows the template pool with generated text; a
// text already in the pool is left alone.
func (r *ScheduleRepo) AppendCommentTemplate(ctx domain.Context, id, text string) error {
	q := `UPDATE schedules SET comment_templates=array_append(comment_templates, $2), updated_at=$3
WHERE id=$1 AND NOT ($2 = ANY(comment_templates))`
	_, err := r.Pool.Exec(ctx, q, id, text, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=schedule.append_template: %w", err)
	}
	return nil
}

// SaveSleepState persists the sleep window and the idempotency guard.
// last_sleep_trigger_count only moves forward.
func (r *ScheduleRepo) SaveSleepState(ctx domain.Context, id string, minutes int, startedAt *time.Time, triggerCount int) error {
	q := `UPDATE schedules SET sleep_delay_minutes=$2, sleep_delay_start_time=$3,
last_sleep_trigger_count=GREATEST(last_sleep_trigger_count, $4), updated_at=$5 WHERE id=$1`
	_, err := r.Pool.Exec(ctx, q, id, minutes, startedAt, triggerCount, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=schedule.save_sleep: %w", err)
	}
	return nil
}

// SaveRotationState persists the post-rotation pools atomically.
func (r *ScheduleRepo) SaveRotationState(ctx domain.Context, id string, selected, rotatedPrincipal, rotatedSecondary []string, active domain.ActivePool, at time.Time) error {
	tracer := otel.Tracer("repo.schedules")
	ctx, span := tracer.Start(ctx, "schedules.SaveRotationState")
	defer span.End()

	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("op=schedule.save_rotation: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `UPDATE schedules SET currently_active=$2, last_rotated_at=$3, updated_at=$4 WHERE id=$1`, id, active, at, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=schedule.save_rotation: %w", err)
	}
	for role, ids := range map[string][]string{
		"selected": selected, "rotated_principal": rotatedPrincipal, "rotated_secondary": rotatedSecondary,
	} {
		if err := replaceLinks(ctx, tx, linkTables[role], id, ids); err != nil {
			return fmt.Errorf("op=schedule.save_rotation links: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("op=schedule.save_rotation: %w", err)
	}
	return nil
}

// IncrementCounters bumps the progress counters.
func (r *ScheduleRepo) IncrementCounters(ctx domain.Context, id string, total, posted, failed int) error {
	q := `UPDATE schedules SET total_comments=total_comments+$2, posted_comments=posted_comments+$3,
failed_comments=failed_comments+$4, updated_at=$5 WHERE id=$1`
	_, err := r.Pool.Exec(ctx, q, id, total, posted, failed, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=schedule.increment_counters: %w", err)
	}
	return nil
}

// IncrementErrorCount bumps the handler-error counter and returns it.
func (r *ScheduleRepo) IncrementErrorCount(ctx domain.Context, id string, errMsg string) (int, error) {
	var n int
	q := `UPDATE schedules SET error_count=error_count+1, error_message=$2, updated_at=$3 WHERE id=$1 RETURNING error_count`
	if err := r.Pool.QueryRow(ctx, q, id, errMsg, time.Now().UTC()).Scan(&n); err != nil {
		if err == pgx.ErrNoRows {
			return 0, fmt.Errorf("op=schedule.increment_errors: %w", domain.ErrNotFound)
		}
		return 0, fmt.Errorf("op=schedule.increment_errors: %w", err)
	}
	return n, nil
}

// ReconcileCounters rewrites the counters from the comment rows when they
// drifted; returns whether a write happened.
func (r *ScheduleRepo) ReconcileCounters(ctx domain.Context, id string) (bool, error) {
	tracer := otel.Tracer("repo.schedules")
	ctx, span := tracer.Start(ctx, "schedules.ReconcileCounters")
	defer span.End()

	q := `WITH agg AS (
	SELECT count(*) AS total,
	       count(*) FILTER (WHERE status='posted') AS posted,
	       count(*) FILTER (WHERE status='failed') AS failed
	FROM comments WHERE schedule_id=$1
)
UPDATE schedules s
SET total_comments=agg.total, posted_comments=agg.posted, failed_comments=agg.failed, updated_at=now()
FROM agg
WHERE s.id=$1 AND (s.total_comments IS DISTINCT FROM agg.total
	OR s.posted_comments IS DISTINCT FROM agg.posted
	OR s.failed_comments IS DISTINCT FROM agg.failed)`
	tag, err := r.Pool.Exec(ctx, q, id)
	if err != nil {
		return false, fmt.Errorf("op=schedule.reconcile: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ReactivateErrored flips error and requires_review schedules back to
// active (daily reset); paused and completed are never touched.
func (r *ScheduleRepo) ReactivateErrored(ctx domain.Context) (int64, error) {
	q := `UPDATE schedules SET status='active', error_count=0, error_message='', updated_at=$1
WHERE status IN ('error', 'requires_review')`
	tag, err := r.Pool.Exec(ctx, q, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("op=schedule.reactivate: %w", err)
	}
	return tag.RowsAffected(), nil
}

var _ domain.ScheduleRepository = (*ScheduleRepo)(nil)
