package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/rep4rep/steam-commenter/internal/httputil"
	"github.com/rep4rep/steam-commenter/internal/model"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// ProfileReader is the read side of the profile service used by the status API.
type ProfileReader interface {
	List(ctx context.Context) ([]model.Account, error)
	CommentAvailability(ctx context.Context) ([]model.CommentAvailability, error)
	AccountAvailability(ctx context.Context, username string) (*model.CommentAvailability, error)
}

type StatusHandler struct {
	db       Pinger
	profiles ProfileReader
	now      func() time.Time
}

func NewStatusHandler(db Pinger, profiles ProfileReader) *StatusHandler {
	return &StatusHandler{
		db:       db,
		profiles: profiles,
		now:      time.Now,
	}
}

func (h *StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		log.Error().Err(err).Msg("health check: database ping failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Routes mounts the authenticated /v1 routes.
func (h *StatusHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/profiles", h.ListProfiles)
	r.Get("/availability", h.ListAvailability)
	r.Get("/profiles/{username}/availability", h.GetAvailability)
	return r
}

func (h *StatusHandler) ListProfiles(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.profiles.List(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	now := h.now()
	items := make([]map[string]any, 0, len(accounts))
	for _, acc := range accounts {
		items = append(items, formatProfile(acc, now))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"total": len(items),
	})
}

func (h *StatusHandler) ListAvailability(w http.ResponseWriter, r *http.Request) {
	rows, err := h.profiles.CommentAvailability(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	total := 0
	for _, row := range rows {
		total += row.Available
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":          rows,
		"totalAvailable": total,
	})
}

func (h *StatusHandler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	row, err := h.profiles.AccountAvailability(r.Context(), username)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}
