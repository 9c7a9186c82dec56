// Package server exposes a small admin HTTP API over the listers running in
// this process, plus the Prometheus metrics endpoint.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/originwatch/originwatch/pkg/lister"
)

type Server struct {
	logger  *zap.Logger
	listers map[string]*lister.Lister
	mu      sync.RWMutex
}

type ListerInfo struct {
	Name     string       `json:"name"`
	Instance string       `json:"instance"`
	URL      string       `json:"url"`
	State    lister.State `json:"state"`
	Stats    lister.Stats `json:"stats"`
}

func New(logger *zap.Logger) *Server {
	return &Server{
		logger:  logger,
		listers: make(map[string]*lister.Lister),
	}
}

func key(name, instance string) string {
	return name + "/" + instance
}

func (s *Server) RegisterLister(l *lister.Lister) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.listers[key(l.Name, l.Instance)] = l
	s.logger.Info("lister registered",
		zap.String("lister", l.Name),
		zap.String("instance", l.Instance),
		zap.String("state", string(l.State.Current())))
}

func (s *Server) UnregisterLister(name, instance string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.listers[key(name, instance)]; exists {
		delete(s.listers, key(name, instance))
		s.logger.Info("lister unregistered",
			zap.String("lister", name),
			zap.String("instance", instance))
	}
}

func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Route("/api/v1/listers", func(r chi.Router) {
		r.Get("/", s.listListers)
		r.Get("/{name}/{instance}", s.getLister)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}

func info(l *lister.Lister) ListerInfo {
	return ListerInfo{
		Name:     l.Name,
		Instance: l.Instance,
		URL:      l.URL,
		State:    l.State.Current(),
		Stats:    l.Stats(),
	}
}

func (s *Server) listListers(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	listers := make([]ListerInfo, 0, len(s.listers))
	for _, l := range s.listers {
		listers = append(listers, info(l))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"listers": listers,
		"count":   len(listers),
	})
}

func (s *Server) getLister(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	instance := chi.URLParam(r, "instance")

	s.mu.RLock()
	l, exists := s.listers[key(name, instance)]
	s.mu.RUnlock()

	if !exists {
		http.Error(w, "lister not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(info(l))
}

func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: s.Routes(),
	}

	s.logger.Info("starting admin server", zap.String("addr", addr))

	go func() {
		<-ctx.Done()
		s.logger.Info("shutting down admin server")
		srv.Shutdown(context.Background())
	}()

	return srv.ListenAndServe()
}
