package swgate

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const maxPushPayload = 64 << 10

func (s *Service) controlRoutes(r chi.Router) {
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/state", s.handleState)
	r.Post("/activate", s.handleActivate)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	r.Post("/push", s.handlePush)

	r.Get("/notifications", s.handleListNotifications)
	r.Post("/notifications/{tag}/click", s.handleClick)
	r.Delete("/notifications/{tag}", s.handleDismiss)

	r.Get("/clients", s.handleListClients)
	r.Post("/clients", s.handleRegisterClient)
	r.Delete("/clients/{id}", s.handleRemoveClient)
}

type stateResponse struct {
	State             string   `json:"state"`
	Generation        string   `json:"generation"`
	NavigationPreload bool     `json:"navigationPreload"`
	Caches            []string `json:"caches"`
}

func (s *Service) handleState(w http.ResponseWriter, r *http.Request) {
	names, err := s.caches.Keys(r.Context())
	if err != nil {
		s.log.Warn("list caches", zap.Error(err))
		http.Error(w, "storage unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stateResponse{
		State:             s.worker.State().String(),
		Generation:        s.worker.Config().Generation,
		NavigationPreload: s.worker.PreloadEnabled(),
		Caches:            names,
	})
}

func (s *Service) handleActivate(w http.ResponseWriter, r *http.Request) {
	if s.worker.State() == StateActivated {
		writeJSON(w, http.StatusOK, map[string]string{"state": StateActivated.String()})
		return
	}
	if err := s.worker.Activate(r.Context()); err != nil {
		s.log.Warn("activate", zap.Error(err))
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": s.worker.State().String()})
}

// handlePush accepts a delivery from the push sender. The body is read so the
// connection can be reused, then dropped.
func (s *Service) handlePush(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxPushPayload))
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if err := s.worker.Push(r.Context(), payload); err != nil {
		s.log.Error("push event", zap.Error(err))
		http.Error(w, "push failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusAccepted, s.tray.List())
}

func (s *Service) handleListNotifications(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.tray.List())
}

func (s *Service) handleClick(w http.ResponseWriter, r *http.Request) {
	tag := chi.URLParam(r, "tag")
	n, ok := s.tray.Get(tag)
	if !ok {
		http.Error(w, ErrNotificationNotFound.Error(), http.StatusNotFound)
		return
	}
	if err := s.worker.Click(r.Context(), n); err != nil {
		s.log.Error("notificationclick event", zap.String("tag", tag), zap.Error(err))
		http.Error(w, "click failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, s.clients.List())
}

func (s *Service) handleDismiss(w http.ResponseWriter, r *http.Request) {
	tag := chi.URLParam(r, "tag")
	if _, ok := s.tray.Get(tag); !ok {
		http.Error(w, ErrNotificationNotFound.Error(), http.StatusNotFound)
		return
	}
	_ = s.tray.Close(r.Context(), tag)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleListClients(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.clients.List())
}

type registerClientRequest struct {
	URL string `json:"url"`
}

func (s *Service) handleRegisterClient(w http.ResponseWriter, r *http.Request) {
	var body registerClientRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&body); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if !strings.HasPrefix(body.URL, "/") {
		http.Error(w, "url must be an absolute path", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusCreated, s.clients.Register(body.URL))
}

func (s *Service) handleRemoveClient(w http.ResponseWriter, r *http.Request) {
	if err := s.clients.Remove(chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, ErrClientNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
