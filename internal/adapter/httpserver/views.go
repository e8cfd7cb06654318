package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fairyhunter13/commentflow/internal/domain"
)

type viewPlanRequest struct {
	UserID       string            `json:"user_id" validate:"required"`
	Name         string            `json:"name" validate:"required,max=200"`
	TargetVideos []targetVideoJSON `json:"target_videos" validate:"required,min=1,dive"`
	Interval     intervalJSON      `json:"interval"`
	Probability  int               `json:"probability" validate:"min=0,max=100"`
	MinWatchTime int               `json:"min_watch_time" validate:"min=0"`
	MaxWatchTime int               `json:"max_watch_time" validate:"min=0"`
	AutoLike     bool              `json:"auto_like,omitempty"`
}

type viewPlanResponse struct {
	ID           string            `json:"id"`
	UserID       string            `json:"user_id"`
	Name         string            `json:"name"`
	Status       string            `json:"status"`
	TargetVideos []targetVideoJSON `json:"target_videos"`
	Interval     intervalJSON      `json:"interval"`
	Probability  int               `json:"probability"`
	MinWatchTime int               `json:"min_watch_time"`
	MaxWatchTime int               `json:"max_watch_time"`
	AutoLike     bool              `json:"auto_like"`
	NextRunAt    *time.Time        `json:"next_run_at,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

func viewPlanFromDomain(v domain.ViewSchedule) viewPlanResponse {
	videos := make([]targetVideoJSON, 0, len(v.TargetVideos))
	for _, t := range v.TargetVideos {
		videos = append(videos, targetVideoJSON{VideoID: t.VideoID, Title: t.Title})
	}
	return viewPlanResponse{
		ID: v.ID, UserID: v.UserID, Name: v.Name, Status: string(v.Status),
		TargetVideos: videos, Interval: intervalFromDomain(v.Interval),
		Probability: v.Probability, MinWatchTime: v.MinWatchTime, MaxWatchTime: v.MaxWatchTime,
		AutoLike: v.AutoLike, NextRunAt: v.NextRunAt, CreatedAt: v.CreatedAt, UpdatedAt: v.UpdatedAt,
	}
}

// CreateViewPlanHandler creates and activates a view plan.
func (s *Server) CreateViewPlanHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req viewPlanRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		videos := make([]domain.TargetVideo, 0, len(req.TargetVideos))
		for _, v := range req.TargetVideos {
			videos = append(videos, domain.TargetVideo{VideoID: v.VideoID, Title: v.Title})
		}
		created, err := s.ViewPlans.Create(r.Context(), domain.ViewSchedule{
			UserID:       req.UserID,
			Name:         req.Name,
			Status:       domain.ScheduleActive,
			TargetVideos: videos,
			Interval:     req.Interval.toDomain(),
			Probability:  req.Probability,
			MinWatchTime: req.MinWatchTime,
			MaxWatchTime: req.MaxWatchTime,
			AutoLike:     req.AutoLike,
		})
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusCreated, viewPlanFromDomain(created))
	}
}

// ListViewPlansHandler returns a user's view plans.
func (s *Server) ListViewPlansHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := requireUserID(w, r)
		if !ok {
			return
		}
		items, err := s.ViewRepo.ListByUser(r.Context(), uid)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		out := make([]viewPlanResponse, 0, len(items))
		for _, v := range items {
			out = append(out, viewPlanFromDomain(v))
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"items": out})
	}
}

// GetViewPlanHandler returns one view plan.
func (s *Server) GetViewPlanHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := s.ViewRepo.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, viewPlanFromDomain(v))
	}
}

// DeleteViewPlanHandler removes a view plan and cancels its session.
func (s *Server) DeleteViewPlanHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.ViewPlans.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeError(w, r, err, nil)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) viewPlanAction(fn func(ctx domain.Context, id string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := fn(r.Context(), id); err != nil {
			writeError(w, r, err, nil)
			return
		}
		v, err := s.ViewRepo.Get(r.Context(), id)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, viewPlanFromDomain(v))
	}
}

// PauseViewPlanHandler pauses an active view plan.
func (s *Server) PauseViewPlanHandler() http.HandlerFunc {
	return s.viewPlanAction(s.ViewPlans.Pause)
}

// ResumeViewPlanHandler resumes a paused view plan.
func (s *Server) ResumeViewPlanHandler() http.HandlerFunc {
	return s.viewPlanAction(s.ViewPlans.Resume)
}
