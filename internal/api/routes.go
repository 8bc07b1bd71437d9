package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"offline-sync-service/internal/backend"
	"offline-sync-service/internal/config"
	"offline-sync-service/internal/metrics"
	"offline-sync-service/internal/sync"
)

type Handler struct {
	manager *sync.Manager
	monitor *backend.Monitor
	cfg     config.ServerConfig
}

func NewHandler(manager *sync.Manager, monitor *backend.Monitor, cfg config.ServerConfig) *Handler {
	return &Handler{
		manager: manager,
		monitor: monitor,
		cfg:     cfg,
	}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(CorsMiddleware(h.cfg.CorsOrigins))

	r.Get("/health", h.HealthCheck)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(h.AuthMiddleware)

		r.Get("/cache/{key}", h.ReadKey)
		r.Put("/cache/{key}", h.WriteKey)
		r.Delete("/cache/{key}", h.DeleteKey)

		r.Post("/sync/drain", h.TriggerDrain)
		r.Get("/sync/status/{key}", h.GetKeyStatus)
		r.Get("/sync/queue", h.GetQueue)
		r.Post("/sync/retry/{key}", h.RetryKey)
		r.Get("/sync/history", h.GetHistory)

		r.Post("/connectivity", h.SetConnectivity)
	})

	return r
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handler) ReadKey(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var ttl time.Duration
	if raw := r.URL.Query().Get("ttl"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			http.Error(w, "invalid ttl", http.StatusBadRequest)
			return
		}
		ttl = d
	}

	result, err := h.manager.Read(r.Context(), key, ttl)
	if errors.Is(err, backend.ErrUnavailable) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"error":  "unavailable, no cached data",
			"detail": err.Error(),
		})
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	if result.Data == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"source": result.Source,
		})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) WriteKey(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var ttl time.Duration
	if raw := r.URL.Query().Get("ttl"); raw != "" {
		d, perr := time.ParseDuration(raw)
		if perr != nil {
			http.Error(w, "invalid ttl", http.StatusBadRequest)
			return
		}
		ttl = d
	}

	entry, err := h.manager.Write(r.Context(), key, payload, ttl)
	if err != nil {
		var verr *backend.ValidationError
		var cerr *backend.CorruptionError
		switch {
		case errors.As(err, &verr), errors.As(err, &cerr):
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": err.Error()})
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "saved locally, pending sync",
		"version": entry.Version,
	})
}

func (h *Handler) DeleteKey(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	removed, err := h.manager.Delete(r.Context(), key)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !removed {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": true})
}

func (h *Handler) TriggerDrain(w http.ResponseWriter, r *http.Request) {
	result := h.manager.DrainNow(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"run_id": result.RunID,
		"synced": result.Synced,
		"failed": result.Failed,
		"errors": result.ErrorMessages(),
	})
}

func (h *Handler) GetKeyStatus(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	writeJSON(w, http.StatusOK, h.manager.Status(key))
}

func (h *Handler) GetQueue(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.manager.QueueEntries())
}

func (h *Handler) RetryKey(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if !h.manager.RetryKey(key) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "requeued"})
}

func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	history := h.manager.History()
	out := make([]map[string]any, 0, len(history))
	for _, res := range history {
		out = append(out, map[string]any{
			"run_id":       res.RunID,
			"synced":       res.Synced,
			"failed":       res.Failed,
			"errors":       res.ErrorMessages(),
			"started_at":   res.StartedAt,
			"completed_at": res.CompletedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// SetConnectivity is the host's connectivity signal. Flipping offline->online
// triggers an automatic drain through the manager's watcher.
func (h *Handler) SetConnectivity(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Online bool `json:"online"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.monitor.SetOnline(body.Online)
	writeJSON(w, http.StatusOK, map[string]any{"online": body.Online})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// CorsMiddleware allows the configured origins. An empty list or a "*"
// entry allows any origin.
func CorsMiddleware(origins []string) func(http.Handler) http.Handler {
	allowAll := len(origins) == 0
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			switch {
			case allowAll:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case allowed[origin]:
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-CSRF-Token")

			if r.Method == "OPTIONS" {
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.cfg.AuthToken != "" {
			if r.Header.Get("Authorization") != "Bearer "+h.cfg.AuthToken {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
