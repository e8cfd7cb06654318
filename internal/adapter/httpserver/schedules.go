package httpserver

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fairyhunter13/commentflow/internal/domain"
)

type intervalJSON struct {
	Value    int    `json:"value"`
	Unit     string `json:"unit,omitempty" validate:"omitempty,oneof=minutes hours days"`
	IsRandom bool   `json:"is_random,omitempty"`
	Min      int    `json:"min,omitempty"`
	Max      int    `json:"max,omitempty"`
}

func (iv intervalJSON) toDomain() domain.Interval {
	return domain.Interval{Value: iv.Value, Unit: domain.IntervalUnit(iv.Unit), IsRandom: iv.IsRandom, Min: iv.Min, Max: iv.Max}
}

func intervalFromDomain(iv domain.Interval) intervalJSON {
	return intervalJSON{Value: iv.Value, Unit: string(iv.Unit), IsRandom: iv.IsRandom, Min: iv.Min, Max: iv.Max}
}

type limitJSON struct {
	Value    int  `json:"value"`
	IsRandom bool `json:"is_random,omitempty"`
	Min      int  `json:"min,omitempty"`
	Max      int  `json:"max,omitempty"`
}

type targetVideoJSON struct {
	VideoID string `json:"video_id" validate:"required"`
	Title   string `json:"title,omitempty"`
}

type scheduleRequest struct {
	UserID            string            `json:"user_id" validate:"required"`
	Name              string            `json:"name" validate:"required,max=200"`
	Type              string            `json:"type" validate:"required,oneof=immediate once recurring interval"`
	StartDate         *time.Time        `json:"start_date,omitempty"`
	EndDate           *time.Time        `json:"end_date,omitempty"`
	CronExpression    string            `json:"cron_expression,omitempty"`
	Interval          intervalJSON      `json:"interval"`
	CommentTemplates  []string          `json:"comment_templates,omitempty"`
	TargetVideos      []targetVideoJSON `json:"target_videos" validate:"required,min=1,dive"`
	TargetChannels    []string          `json:"target_channels,omitempty"`
	AccountSelection  string            `json:"account_selection,omitempty" validate:"omitempty,oneof=specific random round_robin"`
	SelectedAccounts  []string          `json:"selected_accounts,omitempty"`
	PrincipalAccounts []string          `json:"principal_accounts,omitempty"`
	SecondaryAccounts []string          `json:"secondary_accounts,omitempty"`
	RotationEnabled   bool              `json:"rotation_enabled,omitempty"`
	UseAI             bool              `json:"use_ai,omitempty"`
	IncludeEmojis     bool              `json:"include_emojis,omitempty"`
	MinDelay          int               `json:"min_delay,omitempty" validate:"min=0"`
	MaxDelay          int               `json:"max_delay,omitempty" validate:"min=0"`
	BetweenAccountsMS int               `json:"between_accounts_ms,omitempty" validate:"min=0"`
	LimitComments     limitJSON         `json:"limit_comments"`
}

func (req scheduleRequest) toDomain() domain.Schedule {
	videos := make([]domain.TargetVideo, 0, len(req.TargetVideos))
	for _, v := range req.TargetVideos {
		videos = append(videos, domain.TargetVideo{VideoID: v.VideoID, Title: v.Title})
	}
	sel := domain.AccountSelection(req.AccountSelection)
	if sel == "" {
		sel = domain.SelectionSpecific
	}
	return domain.Schedule{
		UserID:            req.UserID,
		Name:              req.Name,
		Type:              domain.ScheduleType(req.Type),
		StartDate:         req.StartDate,
		EndDate:           req.EndDate,
		CronExpression:    req.CronExpression,
		Interval:          req.Interval.toDomain(),
		CommentTemplates:  req.CommentTemplates,
		TargetVideos:      videos,
		TargetChannels:    req.TargetChannels,
		AccountSelection:  sel,
		SelectedAccounts:  req.SelectedAccounts,
		PrincipalAccounts: req.PrincipalAccounts,
		SecondaryAccounts: req.SecondaryAccounts,
		RotationEnabled:   req.RotationEnabled,
		UseAI:             req.UseAI,
		IncludeEmojis:     req.IncludeEmojis,
		MinDelay:          req.MinDelay,
		MaxDelay:          req.MaxDelay,
		BetweenAccountsMS: req.BetweenAccountsMS,
		LimitComments: domain.CommentLimit{
			Value: req.LimitComments.Value, IsRandom: req.LimitComments.IsRandom,
			Min: req.LimitComments.Min, Max: req.LimitComments.Max,
		},
	}
}

type scheduleResponse struct {
	ID                string            `json:"id"`
	UserID            string            `json:"user_id"`
	Name              string            `json:"name"`
	Status            string            `json:"status"`
	Type              string            `json:"type"`
	StartDate         *time.Time        `json:"start_date,omitempty"`
	EndDate           *time.Time        `json:"end_date,omitempty"`
	CronExpression    string            `json:"cron_expression,omitempty"`
	Interval          intervalJSON      `json:"interval"`
	CommentTemplates  []string          `json:"comment_templates,omitempty"`
	TargetVideos      []targetVideoJSON `json:"target_videos"`
	AccountSelection  string            `json:"account_selection"`
	SelectedAccounts  []string          `json:"selected_accounts,omitempty"`
	PrincipalAccounts []string          `json:"principal_accounts,omitempty"`
	SecondaryAccounts []string          `json:"secondary_accounts,omitempty"`
	RotationEnabled   bool              `json:"rotation_enabled"`
	CurrentlyActive   string            `json:"currently_active,omitempty"`
	LastRotatedAt     *time.Time        `json:"last_rotated_at,omitempty"`
	UseAI             bool              `json:"use_ai"`
	IncludeEmojis     bool              `json:"include_emojis"`
	MinDelay          int               `json:"min_delay"`
	MaxDelay          int               `json:"max_delay"`
	BetweenAccountsMS int               `json:"between_accounts_ms"`
	LimitComments     limitJSON         `json:"limit_comments"`
	NextRunAt         *time.Time        `json:"next_run_at,omitempty"`
	LastProcessedAt   *time.Time        `json:"last_processed_at,omitempty"`
	TotalComments     int               `json:"total_comments"`
	PostedComments    int               `json:"posted_comments"`
	FailedComments    int               `json:"failed_comments"`
	ErrorCount        int               `json:"error_count"`
	ErrorMessage      string            `json:"error_message,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

func scheduleFromDomain(s domain.Schedule) scheduleResponse {
	videos := make([]targetVideoJSON, 0, len(s.TargetVideos))
	for _, v := range s.TargetVideos {
		videos = append(videos, targetVideoJSON{VideoID: v.VideoID, Title: v.Title})
	}
	return scheduleResponse{
		ID:                s.ID,
		UserID:            s.UserID,
		Name:              s.Name,
		Status:            string(s.Status),
		Type:              string(s.Type),
		StartDate:         s.StartDate,
		EndDate:           s.EndDate,
		CronExpression:    s.CronExpression,
		Interval:          intervalFromDomain(s.Interval),
		CommentTemplates:  s.CommentTemplates,
		TargetVideos:      videos,
		AccountSelection:  string(s.AccountSelection),
		SelectedAccounts:  s.SelectedAccounts,
		PrincipalAccounts: s.PrincipalAccounts,
		SecondaryAccounts: s.SecondaryAccounts,
		RotationEnabled:   s.RotationEnabled,
		CurrentlyActive:   string(s.CurrentlyActive),
		LastRotatedAt:     s.LastRotatedAt,
		UseAI:             s.UseAI,
		IncludeEmojis:     s.IncludeEmojis,
		MinDelay:          s.MinDelay,
		MaxDelay:          s.MaxDelay,
		BetweenAccountsMS: s.BetweenAccountsMS,
		LimitComments: limitJSON{
			Value: s.LimitComments.Value, IsRandom: s.LimitComments.IsRandom,
			Min: s.LimitComments.Min, Max: s.LimitComments.Max,
		},
		NextRunAt:       s.NextRunAt,
		LastProcessedAt: s.LastProcessedAt,
		TotalComments:   s.TotalComments,
		PostedComments:  s.PostedComments,
		FailedComments:  s.FailedComments,
		ErrorCount:      s.ErrorCount,
		ErrorMessage:    s.ErrorMessage,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
}

// CreateScheduleHandler creates and activates a posting schedule.
func (s *Server) CreateScheduleHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req scheduleRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		created, err := s.Schedules.Create(r.Context(), req.toDomain())
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusCreated, scheduleFromDomain(created))
	}
}

// ListSchedulesHandler pages a user's schedules.
func (s *Server) ListSchedulesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := requireUserID(w, r)
		if !ok {
			return
		}
		offset, limit := pagination(r)
		items, err := s.Schedules.List(r.Context(), uid, offset, limit)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		out := make([]scheduleResponse, 0, len(items))
		for _, it := range items {
			out = append(out, scheduleFromDomain(it))
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"items": out})
	}
}

// GetScheduleHandler returns one schedule.
func (s *Server) GetScheduleHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sched, err := s.Schedules.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, scheduleFromDomain(sched))
	}
}

// UpdateScheduleHandler rewrites a schedule's definition.
func (s *Server) UpdateScheduleHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req scheduleRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		sched := req.toDomain()
		sched.ID = chi.URLParam(r, "id")
		updated, err := s.Schedules.Update(r.Context(), sched)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, scheduleFromDomain(updated))
	}
}

// DeleteScheduleHandler removes a schedule and cancels its job.
func (s *Server) DeleteScheduleHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.Schedules.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeError(w, r, err, nil)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// scheduleAction wraps the lifecycle transition handlers.
func (s *Server) scheduleAction(fn func(ctx domain.Context, id string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := fn(r.Context(), id); err != nil {
			writeError(w, r, err, nil)
			return
		}
		sched, err := s.Schedules.Get(r.Context(), id)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, scheduleFromDomain(sched))
	}
}

// PauseScheduleHandler pauses an active schedule.
func (s *Server) PauseScheduleHandler() http.HandlerFunc {
	return s.scheduleAction(s.Schedules.Pause)
}

// ResumeScheduleHandler resumes a paused or parked schedule.
func (s *Server) ResumeScheduleHandler() http.HandlerFunc {
	return s.scheduleAction(s.Schedules.Resume)
}

// CompleteScheduleHandler ends a schedule early.
func (s *Server) CompleteScheduleHandler() http.HandlerFunc {
	return s.scheduleAction(s.Schedules.Complete)
}

// RetryFailedHandler re-queues a schedule's failed comments.
func (s *Server) RetryFailedHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := s.Schedules.RetryFailed(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"requeued": n})
	}
}

type commentResponse struct {
	ID           string     `json:"id"`
	ScheduleID   string     `json:"schedule_id"`
	AccountID    string     `json:"account_id"`
	VideoID      string     `json:"video_id"`
	ParentID     string     `json:"parent_id,omitempty"`
	Content      string     `json:"content"`
	Status       string     `json:"status"`
	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`
	PostedAt     *time.Time `json:"posted_at,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	RetryCount   int        `json:"retry_count"`
	ExternalID   string     `json:"external_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// ListCommentsHandler pages a schedule's attempt records with status counts.
func (s *Server) ListCommentsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			writeError(w, r, fmt.Errorf("%w: id missing", domain.ErrInvalidArgument), nil)
			return
		}
		offset, limit := pagination(r)
		items, err := s.CommentRepo.ListBySchedule(r.Context(), id, offset, limit)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		counts, err := s.CommentRepo.CountByStatus(r.Context(), id)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		out := make([]commentResponse, 0, len(items))
		for _, c := range items {
			out = append(out, commentResponse{
				ID: c.ID, ScheduleID: c.ScheduleID, AccountID: c.AccountID, VideoID: c.VideoID,
				ParentID: c.ParentID, Content: c.Content, Status: string(c.Status),
				ScheduledFor: c.ScheduledFor, PostedAt: c.PostedAt, ErrorMessage: c.ErrorMessage,
				RetryCount: c.RetryCount, ExternalID: c.ExternalID, CreatedAt: c.CreatedAt,
			})
		}
		byStatus := map[string]int{}
		for st, n := range counts {
			byStatus[string(st)] = n
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"items": out, "counts": byStatus})
	}
}
