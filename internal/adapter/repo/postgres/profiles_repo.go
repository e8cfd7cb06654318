package postgres

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/commentflow/internal/domain"
)

// ProfileRepo persists upstream API credentials and quota accounting.
type ProfileRepo struct{ Pool PgxPool }

// NewProfileRepo constructs a ProfileRepo with the given pool.
func NewProfileRepo(p PgxPool) *ProfileRepo { return &ProfileRepo{Pool: p} }

const profileColumns = `id, user_id, name, client_id, client_secret, redirect_uri, api_key,
used_quota, limit_quota, status, exceeded_at, is_active, created_at, updated_at`

func scanProfile(row pgx.Row) (domain.APIProfile, error) {
	var p domain.APIProfile
	err := row.Scan(
		&p.ID, &p.UserID, &p.Name, &p.ClientID, &p.ClientSecret, &p.RedirectURI, &p.APIKey,
		&p.UsedQuota, &p.LimitQuota, &p.Status, &p.ExceededAt, &p.IsActive, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}

// Create inserts a profile and returns its id.
func (r *ProfileRepo) Create(ctx domain.Context, p domain.APIProfile) (string, error) {
	id := p.ID
	if id == "" {
		id = uuid.New().String()
	}
	if p.Status == "" {
		p.Status = domain.ProfileNotExceeded
	}
	now := time.Now().UTC()
	q := `INSERT INTO api_profiles (id, user_id, name, client_id, client_secret, redirect_uri, api_key,
used_quota, limit_quota, status, is_active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`
	_, err := r.Pool.Exec(ctx, q, id, p.UserID, p.Name, p.ClientID, p.ClientSecret, p.RedirectURI, p.APIKey,
		p.UsedQuota, p.LimitQuota, p.Status, p.IsActive, now, now)
	if err != nil {
		return "", fmt.Errorf("op=profile.create: %w", err)
	}
	return id, nil
}

// Get loads one profile.
func (r *ProfileRepo) Get(ctx domain.Context, id string) (domain.APIProfile, error) {
	row := r.Pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM api_profiles WHERE id=$1`, id)
	p, err := scanProfile(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.APIProfile{}, fmt.Errorf("op=profile.get: %w", domain.ErrNotFound)
		}
		return domain.APIProfile{}, fmt.Errorf("op=profile.get: %w", err)
	}
	return p, nil
}

// ListByUser returns every profile the user owns.
func (r *ProfileRepo) ListByUser(ctx domain.Context, userID string) ([]domain.APIProfile, error) {
	rows, err := r.Pool.Query(ctx, `SELECT `+profileColumns+` FROM api_profiles WHERE user_id=$1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("op=profile.list: %w", err)
	}
	defer rows.Close()
	var out []domain.APIProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("op=profile.scan: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=profile.rows: %w", err)
	}
	return out, nil
}

// Update rewrites the credential fields.
func (r *ProfileRepo) Update(ctx domain.Context, p domain.APIProfile) error {
	q := `UPDATE api_profiles SET name=$2, client_id=$3, client_secret=$4, redirect_uri=$5, api_key=$6,
limit_quota=$7, updated_at=$8 WHERE id=$1`
	tag, err := r.Pool.Exec(ctx, q, p.ID, p.Name, p.ClientID, p.ClientSecret, p.RedirectURI, p.APIKey,
		p.LimitQuota, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=profile.update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=profile.update: %w", domain.ErrNotFound)
	}
	return nil
}

// Delete removes a profile.
func (r *ProfileRepo) Delete(ctx domain.Context, id string) error {
	tag, err := r.Pool.Exec(ctx, `DELETE FROM api_profiles WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("op=profile.delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=profile.delete: %w", domain.ErrNotFound)
	}
	return nil
}

// Activate makes one profile the active one and deactivates the owner's
// others in the same transaction.
func (r *ProfileRepo) Activate(ctx domain.Context, id string) error {
	tracer := otel.Tracer("repo.profiles")
	ctx, span := tracer.Start(ctx, "profiles.Activate")
	defer span.End()

	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("op=profile.activate: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var userID string
	if err := tx.QueryRow(ctx, `SELECT user_id FROM api_profiles WHERE id=$1 FOR UPDATE`, id).Scan(&userID); err != nil {
		if err == pgx.ErrNoRows {
			return fmt.Errorf("op=profile.activate: %w", domain.ErrNotFound)
		}
		return fmt.Errorf("op=profile.activate: %w", err)
	}
	now := time.Now().UTC()
	if _, err := tx.Exec(ctx, `UPDATE api_profiles SET is_active=FALSE, updated_at=$2 WHERE user_id=$1 AND is_active`, userID, now); err != nil {
		return fmt.Errorf("op=profile.activate: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE api_profiles SET is_active=TRUE, updated_at=$2 WHERE id=$1`, id, now); err != nil {
		return fmt.Errorf("op=profile.activate: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("op=profile.activate: %w", err)
	}
	return nil
}

// AddUsedQuota accumulates spent quota units.
func (r *ProfileRepo) AddUsedQuota(ctx domain.Context, id string, units int64) error {
	_, err := r.Pool.Exec(ctx, `UPDATE api_profiles SET used_quota=used_quota+$2, updated_at=$3 WHERE id=$1`,
		id, units, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=profile.add_quota: %w", err)
	}
	return nil
}

// MarkExceeded records an upstream quota rejection.
func (r *ProfileRepo) MarkExceeded(ctx domain.Context, id string, at time.Time) error {
	_, err := r.Pool.Exec(ctx, `UPDATE api_profiles SET status='exceeded', exceeded_at=$2, updated_at=$3 WHERE id=$1`,
		id, at, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=profile.mark_exceeded: %w", err)
	}
	return nil
}

// ResetAll clears quota usage and exceeded state for every profile
// (daily reset at the upstream quota boundary).
func (r *ProfileRepo) ResetAll(ctx domain.Context) (int64, error) {
	q := `UPDATE api_profiles SET used_quota=0, status='not_exceeded', exceeded_at=NULL, updated_at=$1
WHERE used_quota > 0 OR status='exceeded'`
	tag, err := r.Pool.Exec(ctx, q, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("op=profile.reset_all: %w", err)
	}
	return tag.RowsAffected(), nil
}

var _ domain.ProfileRepository = (*ProfileRepo)(nil)
