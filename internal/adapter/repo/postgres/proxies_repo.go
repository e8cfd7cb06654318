package postgres

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fairyhunter13/commentflow/internal/domain"
)

// ProxyRepo persists egress endpoints.
type ProxyRepo struct{ Pool PgxPool }

// NewProxyRepo constructs a ProxyRepo with the given pool.
func NewProxyRepo(p PgxPool) *ProxyRepo { return &ProxyRepo{Pool: p} }

const proxyColumns = `id, user_id, host, port, username, password, protocol, status,
last_checked, connection_speed, created_at, updated_at`

func scanProxy(row pgx.Row) (domain.Proxy, error) {
	var p domain.Proxy
	err := row.Scan(
		&p.ID, &p.UserID, &p.Host, &p.Port, &p.Username, &p.Password, &p.Protocol, &p.Status,
		&p.LastChecked, &p.ConnectionSpeed, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}

// Create inserts a proxy and returns its id.
func (r *ProxyRepo) Create(ctx domain.Context, p domain.Proxy) (string, error) {
	id := p.ID
	if id == "" {
		id = uuid.New().String()
	}
	if p.Protocol == "" {
		p.Protocol = domain.ProxyHTTP
	}
	if p.Status == "" {
		p.Status = domain.ProxyActive
	}
	now := time.Now().UTC()
	q := `INSERT INTO proxies (id, user_id, host, port, username, password, protocol, status, connection_speed, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`
	_, err := r.Pool.Exec(ctx, q, id, p.UserID, p.Host, p.Port, p.Username, p.Password, p.Protocol, p.Status, p.ConnectionSpeed, now, now)
	if err != nil {
		return "", fmt.Errorf("op=proxy.create: %w", err)
	}
	return id, nil
}

// Get loads one proxy.
func (r *ProxyRepo) Get(ctx domain.Context, id string) (domain.Proxy, error) {
	row := r.Pool.QueryRow(ctx, `SELECT `+proxyColumns+` FROM proxies WHERE id=$1`, id)
	p, err := scanProxy(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Proxy{}, fmt.Errorf("op=proxy.get: %w", domain.ErrNotFound)
		}
		return domain.Proxy{}, fmt.Errorf("op=proxy.get: %w", err)
	}
	return p, nil
}

// ListByUser returns every proxy the user owns.
func (r *ProxyRepo) ListByUser(ctx domain.Context, userID string) ([]domain.Proxy, error) {
	return r.list(ctx, `SELECT `+proxyColumns+` FROM proxies WHERE user_id=$1 ORDER BY created_at`, userID)
}

// ListActiveByUser returns the user's active proxies, fastest first.
func (r *ProxyRepo) ListActiveByUser(ctx domain.Context, userID string) ([]domain.Proxy, error) {
	return r.list(ctx, `SELECT `+proxyColumns+` FROM proxies WHERE user_id=$1 AND status='active' ORDER BY connection_speed`, userID)
}

func (r *ProxyRepo) list(ctx domain.Context, q string, args ...any) ([]domain.Proxy, error) {
	rows, err := r.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("op=proxy.list: %w", err)
	}
	defer rows.Close()
	var out []domain.Proxy
	for rows.Next() {
		p, err := scanProxy(rows)
		if err != nil {
			return nil, fmt.Errorf("op=proxy.scan: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=proxy.rows: %w", err)
	}
	return out, nil
}

// Update rewrites the endpoint fields.
func (r *ProxyRepo) Update(ctx domain.Context, p domain.Proxy) error {
	q := `UPDATE proxies SET host=$2, port=$3, username=$4, password=$5, protocol=$6, updated_at=$7 WHERE id=$1`
	tag, err := r.Pool.Exec(ctx, q, p.ID, p.Host, p.Port, p.Username, p.Password, p.Protocol, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=proxy.update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=proxy.update: %w", domain.ErrNotFound)
	}
	return nil
}

// Delete removes a proxy; accounts bound to it fall back to direct egress.
func (r *ProxyRepo) Delete(ctx domain.Context, id string) error {
	tag, err := r.Pool.Exec(ctx, `DELETE FROM proxies WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("op=proxy.delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=proxy.delete: %w", domain.ErrNotFound)
	}
	return nil
}

// SetStatus records a health check outcome.
func (r *ProxyRepo) SetStatus(ctx domain.Context, id string, status domain.ProxyStatus, checkedAt time.Time, speedMS int64) error {
	q := `UPDATE proxies SET status=$2, last_checked=$3, connection_speed=$4, updated_at=$5 WHERE id=$1`
	_, err := r.Pool.Exec(ctx, q, id, status, checkedAt, speedMS, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=proxy.set_status: %w", err)
	}
	return nil
}

var _ domain.ProxyRepository = (*ProxyRepo)(nil)
