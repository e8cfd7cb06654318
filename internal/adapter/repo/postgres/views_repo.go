package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fairyhunter13/commentflow/internal/domain"
)

// ViewScheduleRepo persists view plans.
type ViewScheduleRepo struct{ Pool PgxPool }

// NewViewScheduleRepo constructs a ViewScheduleRepo with the given pool.
func NewViewScheduleRepo(p PgxPool) *ViewScheduleRepo { return &ViewScheduleRepo{Pool: p} }

const viewColumns = `id, user_id, name, status, target_videos,
interval_value, interval_unit, interval_is_random, interval_min, interval_max,
probability, min_watch_time, max_watch_time, auto_like, next_run_at, created_at, updated_at`

func scanViewSchedule(row pgx.Row) (domain.ViewSchedule, error) {
	var v domain.ViewSchedule
	var videosRaw []byte
	err := row.Scan(
		&v.ID, &v.UserID, &v.Name, &v.Status, &videosRaw,
		&v.Interval.Value, &v.Interval.Unit, &v.Interval.IsRandom, &v.Interval.Min, &v.Interval.Max,
		&v.Probability, &v.MinWatchTime, &v.MaxWatchTime, &v.AutoLike, &v.NextRunAt, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		return domain.ViewSchedule{}, err
	}
	if len(videosRaw) > 0 {
		if err := json.Unmarshal(videosRaw, &v.TargetVideos); err != nil {
			return domain.ViewSchedule{}, fmt.Errorf("target_videos: %w", err)
		}
	}
	return v, nil
}

// Create inserts a view plan and returns its id.
func (r *ViewScheduleRepo) Create(ctx domain.Context, v domain.ViewSchedule) (string, error) {
	id := v.ID
	if id == "" {
		id = uuid.New().String()
	}
	if v.Status == "" {
		v.Status = domain.ScheduleActive
	}
	videos, err := json.Marshal(v.TargetVideos)
	if err != nil {
		return "", fmt.Errorf("op=view.create: %w", err)
	}
	now := time.Now().UTC()
	q := `INSERT INTO view_schedules (id, user_id, name, status, target_videos,
interval_value, interval_unit, interval_is_random, interval_min, interval_max,
probability, min_watch_time, max_watch_time, auto_like, next_run_at, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`
	_, err = r.Pool.Exec(ctx, q, id, v.UserID, v.Name, v.Status, videos,
		v.Interval.Value, v.Interval.Unit, v.Interval.IsRandom, v.Interval.Min, v.Interval.Max,
		v.Probability, v.MinWatchTime, v.MaxWatchTime, v.AutoLike, v.NextRunAt, now, now)
	if err != nil {
		return "", fmt.Errorf("op=view.create: %w", err)
	}
	return id, nil
}

// Get loads one view plan.
func (r *ViewScheduleRepo) Get(ctx domain.Context, id string) (domain.ViewSchedule, error) {
	row := r.Pool.QueryRow(ctx, `SELECT `+viewColumns+` FROM view_schedules WHERE id=$1`, id)
	v, err := scanViewSchedule(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.ViewSchedule{}, fmt.Errorf("op=view.get: %w", domain.ErrNotFound)
		}
		return domain.ViewSchedule{}, fmt.Errorf("op=view.get: %w", err)
	}
	return v, nil
}

// ListByUser returns the user's view plans.
func (r *ViewScheduleRepo) ListByUser(ctx domain.Context, userID string) ([]domain.ViewSchedule, error) {
	return r.list(ctx, `SELECT `+viewColumns+` FROM view_schedules WHERE user_id=$1 ORDER BY created_at`, userID)
}

// ListActive returns every active view plan.
func (r *ViewScheduleRepo) ListActive(ctx domain.Context) ([]domain.ViewSchedule, error) {
	return r.list(ctx, `SELECT `+viewColumns+` FROM view_schedules WHERE status='active' ORDER BY created_at`)
}

func (r *ViewScheduleRepo) list(ctx domain.Context, q string, args ...any) ([]domain.ViewSchedule, error) {
	rows, err := r.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("op=view.list: %w", err)
	}
	defer rows.Close()
	var out []domain.ViewSchedule
	for rows.Next() {
		v, err := scanViewSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("op=view.scan: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=view.rows: %w", err)
	}
	return out, nil
}

// Update rewrites the mutable plan fields.
func (r *ViewScheduleRepo) Update(ctx domain.Context, v domain.ViewSchedule) error {
	videos, err := json.Marshal(v.TargetVideos)
	if err != nil {
		return fmt.Errorf("op=view.update: %w", err)
	}
	q := `UPDATE view_schedules SET name=$2, status=$3, target_videos=$4,
interval_value=$5, interval_unit=$6, interval_is_random=$7, interval_min=$8, interval_max=$9,
probability=$10, min_watch_time=$11, max_watch_time=$12, auto_like=$13, updated_at=$14 WHERE id=$1`
	tag, err := r.Pool.Exec(ctx, q, v.ID, v.Name, v.Status, videos,
		v.Interval.Value, v.Interval.Unit, v.Interval.IsRandom, v.Interval.Min, v.Interval.Max,
		v.Probability, v.MinWatchTime, v.MaxWatchTime, v.AutoLike, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=view.update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=view.update: %w", domain.ErrNotFound)
	}
	return nil
}

// Delete removes a view plan.
func (r *ViewScheduleRepo) Delete(ctx domain.Context, id string) error {
	tag, err := r.Pool.Exec(ctx, `DELETE FROM view_schedules WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("op=view.delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=view.delete: %w", domain.ErrNotFound)
	}
	return nil
}

// SetNextRunAt persists the next firing time (nil clears it).
func (r *ViewScheduleRepo) SetNextRunAt(ctx domain.Context, id string, at *time.Time) error {
	_, err := r.Pool.Exec(ctx, `UPDATE view_schedules SET next_run_at=$2, updated_at=$3 WHERE id=$1`, id, at, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=view.set_next_run: %w", err)
	}
	return nil
}

// UpdateStatus sets the plan lifecycle status.
func (r *ViewScheduleRepo) UpdateStatus(ctx domain.Context, id string, status domain.ScheduleStatus) error {
	_, err := r.Pool.Exec(ctx, `UPDATE view_schedules SET status=$2, updated_at=$3 WHERE id=$1`, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=view.update_status: %w", err)
	}
	return nil
}

var _ domain.ViewScheduleRepository = (*ViewScheduleRepo)(nil)
