package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fairyhunter13/commentflow/internal/domain"
)

type proxyRequest struct {
	UserID   string `json:"user_id" validate:"required"`
	Host     string `json:"host" validate:"required,hostname|ip"`
	Port     int    `json:"port" validate:"required,min=1,max=65535"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Protocol string `json:"protocol,omitempty" validate:"omitempty,oneof=http https socks5"`
}

type proxyResponse struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	Host            string     `json:"host"`
	Port            int        `json:"port"`
	Username        string     `json:"username,omitempty"`
	Protocol        string     `json:"protocol"`
	Status          string     `json:"status"`
	LastChecked     *time.Time `json:"last_checked,omitempty"`
	ConnectionSpeed int64      `json:"connection_speed_ms"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func proxyFromDomain(p domain.Proxy) proxyResponse {
	return proxyResponse{
		ID: p.ID, UserID: p.UserID, Host: p.Host, Port: p.Port, Username: p.Username,
		Protocol: string(p.Protocol), Status: string(p.Status), LastChecked: p.LastChecked,
		ConnectionSpeed: p.ConnectionSpeed, CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt,
	}
}

// CreateProxyHandler registers an egress endpoint. It starts inactive until
// checked.
func (s *Server) CreateProxyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req proxyRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		proto := domain.ProxyProtocol(req.Protocol)
		if proto == "" {
			proto = domain.ProxyHTTP
		}
		id, err := s.ProxyRepo.Create(r.Context(), domain.Proxy{
			UserID:   req.UserID,
			Host:     req.Host,
			Port:     req.Port,
			Username: req.Username,
			Password: req.Password,
			Protocol: proto,
			Status:   domain.ProxyInactive,
		})
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		p, err := s.ProxyRepo.Get(r.Context(), id)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusCreated, proxyFromDomain(p))
	}
}

// ListProxiesHandler returns a user's proxies.
func (s *Server) ListProxiesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := requireUserID(w, r)
		if !ok {
			return
		}
		items, err := s.ProxyRepo.ListByUser(r.Context(), uid)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		out := make([]proxyResponse, 0, len(items))
		for _, p := range items {
			out = append(out, proxyFromDomain(p))
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"items": out})
	}
}

// GetProxyHandler returns one proxy.
func (s *Server) GetProxyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := s.ProxyRepo.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, proxyFromDomain(p))
	}
}

// DeleteProxyHandler removes a proxy.
func (s *Server) DeleteProxyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.ProxyRepo.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeError(w, r, err, nil)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// CheckProxyHandler probes the proxy and persists the verdict.
func (s *Server) CheckProxyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := s.Proxies.Check(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, proxyFromDomain(p))
	}
}
