package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fairyhunter13/commentflow/internal/domain"
)

type profileRequest struct {
	UserID       string `json:"user_id" validate:"required"`
	Name         string `json:"name" validate:"required,max=200"`
	ClientID     string `json:"client_id" validate:"required"`
	ClientSecret string `json:"client_secret" validate:"required"`
	RedirectURI  string `json:"redirect_uri,omitempty" validate:"omitempty,url"`
	APIKey       string `json:"api_key,omitempty"`
	LimitQuota   int64  `json:"limit_quota,omitempty" validate:"min=0"`
}

// profileResponse omits the client secret.
type profileResponse struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	Name       string     `json:"name"`
	ClientID   string     `json:"client_id"`
	UsedQuota  int64      `json:"used_quota"`
	LimitQuota int64      `json:"limit_quota"`
	Status     string     `json:"status"`
	ExceededAt *time.Time `json:"exceeded_at,omitempty"`
	IsActive   bool       `json:"is_active"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func profileFromDomain(p domain.APIProfile) profileResponse {
	return profileResponse{
		ID: p.ID, UserID: p.UserID, Name: p.Name, ClientID: p.ClientID,
		UsedQuota: p.UsedQuota, LimitQuota: p.LimitQuota, Status: string(p.Status),
		ExceededAt: p.ExceededAt, IsActive: p.IsActive,
		CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt,
	}
}

// CreateProfileHandler registers a set of upstream API credentials.
func (s *Server) CreateProfileHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req profileRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		id, err := s.ProfileRepo.Create(r.Context(), domain.APIProfile{
			UserID:       req.UserID,
			Name:         req.Name,
			ClientID:     req.ClientID,
			ClientSecret: req.ClientSecret,
			RedirectURI:  req.RedirectURI,
			APIKey:       req.APIKey,
			LimitQuota:   req.LimitQuota,
			Status:       domain.ProfileNotExceeded,
		})
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		p, err := s.ProfileRepo.Get(r.Context(), id)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusCreated, profileFromDomain(p))
	}
}

// ListProfilesHandler returns a user's API profiles.
func (s *Server) ListProfilesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := requireUserID(w, r)
		if !ok {
			return
		}
		items, err := s.ProfileRepo.ListByUser(r.Context(), uid)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		out := make([]profileResponse, 0, len(items))
		for _, p := range items {
			out = append(out, profileFromDomain(p))
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"items": out})
	}
}

// GetProfileHandler returns one profile.
func (s *Server) GetProfileHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := s.ProfileRepo.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, profileFromDomain(p))
	}
}

// DeleteProfileHandler removes a profile.
func (s *Server) DeleteProfileHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.ProfileRepo.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeError(w, r, err, nil)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ActivateProfileHandler makes one profile active and deactivates its
// siblings atomically.
func (s *Server) ActivateProfileHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := s.ProfileRepo.Activate(r.Context(), id); err != nil {
			writeError(w, r, err, nil)
			return
		}
		p, err := s.ProfileRepo.Get(r.Context(), id)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, profileFromDomain(p))
	}
}
