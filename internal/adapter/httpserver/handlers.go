package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/commentflow/internal/config"
	"github.com/fairyhunter13/commentflow/internal/domain"
	"github.com/fairyhunter13/commentflow/internal/usecase"
)

// Server aggregates handler dependencies.
type Server struct {
	Cfg config.Config

	Schedules *usecase.ScheduleService
	Accounts  *usecase.AccountService
	Proxies   *usecase.ProxyService
	ViewPlans *usecase.ViewPlanService

	AccountRepo domain.AccountRepository
	ProxyRepo   domain.ProxyRepository
	ProfileRepo domain.ProfileRepository
	CommentRepo domain.CommentRepository
	ViewRepo    domain.ViewScheduleRepository

	DBCheck     func(ctx context.Context) error
	RedisCheck  func(ctx context.Context) error
	ViewerCheck func(ctx context.Context) error
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

// decodeJSON decodes and validates a request body into dst. On failure it
// writes the error response and returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid json: %v", domain.ErrInvalidArgument, err), nil)
		return false
	}
	if err := getValidator().Struct(dst); err != nil {
		verrs := map[string]string{}
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			for _, fe := range ve {
				verrs[strings.ToLower(fe.Field())] = fe.Tag()
			}
		}
		writeError(w, r, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument), verrs)
		return false
	}
	return true
}

// pagination reads page/limit query params with sane bounds.
func pagination(r *http.Request) (offset, limit int) {
	page := 1
	limit = 20
	if v := r.URL.Query().Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			page = n
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	return (page - 1) * limit, limit
}

// requireUserID reads the user_id query param shared by the list endpoints.
func requireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	uid := r.URL.Query().Get("user_id")
	if uid == "" {
		writeError(w, r, fmt.Errorf("%w: user_id query param required", domain.ErrInvalidArgument), nil)
		return "", false
	}
	return uid, true
}

// ReadyzHandler probes the DB, Redis and the viewer service.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details,omitempty"`
	}
	run := func(ctx context.Context, name string, fn func(ctx context.Context) error) check {
		if fn == nil {
			return check{Name: name, OK: false, Details: "not configured"}
		}
		if err := fn(ctx); err != nil {
			return check{Name: name, OK: false, Details: err.Error()}
		}
		return check{Name: name, OK: true}
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		checks := []check{
			run(ctx, "db", s.DBCheck),
			run(ctx, "redis", s.RedisCheck),
			run(ctx, "viewer", s.ViewerCheck),
		}
		ok := true
		for _, c := range checks {
			if !c.OK {
				ok = false
				break
			}
		}
		st := http.StatusOK
		if !ok {
			st = http.StatusServiceUnavailable
		}
		writeJSON(w, st, map[string]interface{}{"checks": checks})
	}
}
