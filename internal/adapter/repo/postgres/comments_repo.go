package postgres

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/commentflow/internal/domain"
)

// CommentRepo persists posting attempt records. IDs are ULIDs so a
// schedule's comments sort by creation time lexicographically.
type CommentRepo struct{ Pool PgxPool }

// NewCommentRepo constructs a CommentRepo with the given pool.
func NewCommentRepo(p PgxPool) *CommentRepo { return &CommentRepo{Pool: p} }

const commentColumns = `id, user_id, schedule_id, account_id, video_id, parent_id, content,
status, scheduled_for, posted_at, error_message, retry_count, external_id,
last_previous_account_id, created_at, updated_at`

func newCommentID(now time.Time) string {
	return ulid.MustNew(ulid.Timestamp(now), rand.Reader).String()
}

func scanComment(row pgx.Row) (domain.Comment, error) {
	var c domain.Comment
	err := row.Scan(
		&c.ID, &c.UserID, &c.ScheduleID, &c.AccountID, &c.VideoID, &c.ParentID, &c.Content,
		&c.Status, &c.ScheduledFor, &c.PostedAt, &c.ErrorMessage, &c.RetryCount, &c.ExternalID,
		&c.LastPreviousAccountID, &c.CreatedAt, &c.UpdatedAt,
	)
	return c, err
}

// Create inserts an attempt record and returns its id.
func (r *CommentRepo) Create(ctx domain.Context, c domain.Comment) (string, error) {
	tracer := otel.Tracer("repo.comments")
	ctx, span := tracer.Start(ctx, "comments.Create")
	defer span.End()

	now := time.Now().UTC()
	id := c.ID
	if id == "" {
		id = newCommentID(now)
	}
	if c.Status == "" {
		c.Status = domain.CommentPending
	}
	q := `INSERT INTO comments (id, user_id, schedule_id, account_id, video_id, parent_id, content,
status, scheduled_for, error_message, retry_count, external_id, last_previous_account_id, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`
	_, err := r.Pool.Exec(ctx, q,
		id, c.UserID, c.ScheduleID, c.AccountID, c.VideoID, c.ParentID, c.Content,
		c.Status, c.ScheduledFor, c.ErrorMessage, c.RetryCount, c.ExternalID, c.LastPreviousAccountID, now, now)
	if err != nil {
		return "", fmt.Errorf("op=comment.create: %w", err)
	}
	return id, nil
}

// Get loads one attempt record.
func (r *CommentRepo) Get(ctx domain.Context, id string) (domain.Comment, error) {
	row := r.Pool.QueryRow(ctx, `SELECT `+commentColumns+` FROM comments WHERE id=$1`, id)
	c, err := scanComment(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Comment{}, fmt.Errorf("op=comment.get: %w", domain.ErrNotFound)
		}
		return domain.Comment{}, fmt.Errorf("op=comment.get: %w", err)
	}
	return c, nil
}

// ListBySchedule pages a schedule's attempts, newest first.
func (r *CommentRepo) ListBySchedule(ctx domain.Context, scheduleID string, offset, limit int) ([]domain.Comment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.Pool.Query(ctx, `SELECT `+commentColumns+` FROM comments WHERE schedule_id=$1 ORDER BY id DESC OFFSET $2 LIMIT $3`,
		scheduleID, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("op=comment.list: %w", err)
	}
	defer rows.Close()
	var out []domain.Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("op=comment.scan: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=comment.rows: %w", err)
	}
	return out, nil
}

// MarkPosted records a successful publish.
func (r *CommentRepo) MarkPosted(ctx domain.Context, id, externalID string, at time.Time) error {
	q := `UPDATE comments SET status='posted', external_id=$2, posted_at=$3, error_message='', updated_at=$4 WHERE id=$1`
	tag, err := r.Pool.Exec(ctx, q, id, externalID, at, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=comment.mark_posted: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=comment.mark_posted: %w", domain.ErrNotFound)
	}
	return nil
}

// MarkFailed records a terminal failure.
func (r *CommentRepo) MarkFailed(ctx domain.Context, id, errMsg string) error {
	q := `UPDATE comments SET status='failed', error_message=$2, updated_at=$3 WHERE id=$1`
	tag, err := r.Pool.Exec(ctx, q, id, errMsg, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=comment.mark_failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=comment.mark_failed: %w", domain.ErrNotFound)
	}
	return nil
}

// IncrementRetry counts one retried attempt.
func (r *CommentRepo) IncrementRetry(ctx domain.Context, id string) error {
	_, err := r.Pool.Exec(ctx, `UPDATE comments SET retry_count=retry_count+1, updated_at=$2 WHERE id=$1`, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=comment.increment_retry: %w", err)
	}
	return nil
}

// CountByStatus aggregates a schedule's attempts by status.
func (r *CommentRepo) CountByStatus(ctx domain.Context, scheduleID string) (map[domain.CommentStatus]int, error) {
	rows, err := r.Pool.Query(ctx, `SELECT status, count(*) FROM comments WHERE schedule_id=$1 GROUP BY status`, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("op=comment.count: %w", err)
	}
	defer rows.Close()
	out := make(map[domain.CommentStatus]int)
	for rows.Next() {
		var st domain.CommentStatus
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, fmt.Errorf("op=comment.count scan: %w", err)
		}
		out[st] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=comment.count rows: %w", err)
	}
	return out, nil
}

// ResetFailed flips a schedule's failed attempts back to pending and
// returns them so the caller can re-enqueue post jobs.
func (r *CommentRepo) ResetFailed(ctx domain.Context, scheduleID string) ([]domain.Comment, error) {
	tracer := otel.Tracer("repo.comments")
	ctx, span := tracer.Start(ctx, "comments.ResetFailed")
	defer span.End()

	q := `UPDATE comments SET status='pending', error_message='', retry_count=0, updated_at=$2
WHERE schedule_id=$1 AND status='failed'
RETURNING ` + commentColumns
	rows, err := r.Pool.Query(ctx, q, scheduleID, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("op=comment.reset_failed: %w", err)
	}
	defer rows.Close()
	var out []domain.Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("op=comment.reset_failed scan: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=comment.reset_failed rows: %w", err)
	}
	return out, nil
}

var _ domain.CommentRepository = (*CommentRepo)(nil)
