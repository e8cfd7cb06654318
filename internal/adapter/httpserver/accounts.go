package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fairyhunter13/commentflow/internal/domain"
)

type accountRequest struct {
	UserID       string  `json:"user_id" validate:"required"`
	ProfileID    string  `json:"profile_id" validate:"required"`
	Email        string  `json:"email" validate:"required,email"`
	RefreshToken string  `json:"refresh_token" validate:"required"`
	ProxyID      *string `json:"proxy_id,omitempty"`
}

// accountResponse deliberately omits token material.
type accountResponse struct {
	ID               string     `json:"id"`
	UserID           string     `json:"user_id"`
	ProfileID        string     `json:"profile_id"`
	ProxyID          *string    `json:"proxy_id,omitempty"`
	Email            string     `json:"email"`
	ChannelID        string     `json:"channel_id,omitempty"`
	ChannelTitle     string     `json:"channel_title,omitempty"`
	Status           string     `json:"status"`
	LastUsed         *time.Time `json:"last_used,omitempty"`
	LastMessage      string     `json:"last_message,omitempty"`
	ProxyErrorCount  int        `json:"proxy_error_count"`
	DuplicationCount int        `json:"duplication_count"`
	CommentCount     int        `json:"comment_count"`
	LikeCount        int        `json:"like_count"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func accountFromDomain(a domain.Account) accountResponse {
	return accountResponse{
		ID: a.ID, UserID: a.UserID, ProfileID: a.ProfileID, ProxyID: a.ProxyID,
		Email: a.Email, ChannelID: a.ChannelID, ChannelTitle: a.ChannelTitle,
		Status: string(a.Status), LastUsed: a.LastUsed, LastMessage: a.LastMessage,
		ProxyErrorCount: a.ProxyErrorCount, DuplicationCount: a.DuplicationCount,
		CommentCount: a.CommentCount, LikeCount: a.LikeCount,
		CreatedAt: a.CreatedAt, UpdatedAt: a.UpdatedAt,
	}
}

// CreateAccountHandler registers a posting identity. The account stays
// inactive until verified.
func (s *Server) CreateAccountHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req accountRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		id, err := s.AccountRepo.Create(r.Context(), domain.Account{
			UserID:       req.UserID,
			ProfileID:    req.ProfileID,
			Email:        req.Email,
			RefreshToken: req.RefreshToken,
			ProxyID:      req.ProxyID,
			Status:       domain.AccountInactive,
		})
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		a, err := s.AccountRepo.Get(r.Context(), id)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusCreated, accountFromDomain(a))
	}
}

// ListAccountsHandler returns a user's active accounts.
func (s *Server) ListAccountsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := requireUserID(w, r)
		if !ok {
			return
		}
		items, err := s.AccountRepo.ListActiveByUser(r.Context(), uid)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		out := make([]accountResponse, 0, len(items))
		for _, a := range items {
			out = append(out, accountFromDomain(a))
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"items": out})
	}
}

// GetAccountHandler returns one account.
func (s *Server) GetAccountHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := s.AccountRepo.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, accountFromDomain(a))
	}
}

// DeleteAccountHandler removes an account.
func (s *Server) DeleteAccountHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.AccountRepo.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeError(w, r, err, nil)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// VerifyAccountHandler refreshes the token, resolves the channel upstream
// and activates the account.
func (s *Server) VerifyAccountHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, err := s.Accounts.Verify(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"channel_id":  info.ChannelID,
			"title":       info.Title,
			"subscribers": info.Subscribers,
			"video_count": info.VideoCount,
		})
	}
}

// AssignProxyHandler binds an account to a proxy (or clears the binding).
func (s *Server) AssignProxyHandler() http.HandlerFunc {
	type req struct {
		ProxyID *string `json:"proxy_id"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var body req
		if !decodeJSON(w, r, &body) {
			return
		}
		id := chi.URLParam(r, "id")
		if err := s.AccountRepo.AssignProxy(r.Context(), id, body.ProxyID); err != nil {
			writeError(w, r, err, nil)
			return
		}
		a, err := s.AccountRepo.Get(r.Context(), id)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, accountFromDomain(a))
	}
}
