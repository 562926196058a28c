package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/d-j-kendall/aws-sqs-consumer/internal/auth"
	"github.com/d-j-kendall/aws-sqs-consumer/internal/manager"
	"github.com/d-j-kendall/aws-sqs-consumer/internal/metrics"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

type ConcurrencyConfig struct {
	Endpoint string `json:"endpoint"`
	Workers  int    `json:"workers"`
}

func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	// Public
	r.Get("/healthz", a.Health)
	r.Handle("/metrics", metrics.Handler())
	r.Get("/listeners", a.ListListeners)

	// Secured
	r.Group(func(r chi.Router) {
		r.Use(a.Auth.Middleware)

		r.Put("/listeners/concurrency", a.UpdateConcurrency)
		r.Get("/messages", a.ListMessages)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("API: failed to encode response")
	}
}

// @Summary Liveness probe
// @Success 200 {object} map[string]string
// @Router /healthz [get]
func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// @Summary List registered listeners
// @Tags Listeners
// @Produce json
// @Router /listeners [get]
func (a *API) ListListeners(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": a.Listeners.Listeners(),
	})
}

// @Summary Update worker pool concurrency of a listener
// @Tags Listeners
// @Security ApiKeyAuth
// @Param body body ConcurrencyConfig true "Concurrency config"
// @Success 204
// @Router /listeners/concurrency [put]
func (a *API) UpdateConcurrency(w http.ResponseWriter, r *http.Request) {
	var body ConcurrencyConfig
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}

	err := a.Listeners.SetWorkerCount(body.Endpoint, body.Workers)
	switch {
	case errors.Is(err, manager.ErrListenerNotFound):
		http.Error(w, "listener not found", http.StatusNotFound)
		return
	case errors.Is(err, manager.ErrInvalidWorkerCount):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	log.Info().
		Str("operator", auth.OperatorFrom(r.Context())).
		Str("endpoint", body.Endpoint).
		Int("workers", body.Workers).
		Msg("API: updated listener concurrency")
	w.WriteHeader(http.StatusNoContent)
}

// @Summary List journaled messages
// @Tags Messages
// @Security ApiKeyAuth
// @Produce json
// @Param endpoint query string false "Queue endpoint"
// @Param cursor query string false "Pagination cursor"
// @Param limit query int false "Page size"
// @Router /messages [get]
func (a *API) ListMessages(w http.ResponseWriter, r *http.Request) {
	if a.Store == nil {
		http.Error(w, "message journal is not configured", http.StatusNotFound)
		return
	}

	q := r.URL.Query()
	limit := defaultPageSize
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, maxPageSize)
	}

	messages, nextCursor, err := a.Store.ListMessagesPaginated(r.Context(), q.Get("endpoint"), q.Get("cursor"), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":        messages,
		"next_cursor": nextCursor,
	})
}
