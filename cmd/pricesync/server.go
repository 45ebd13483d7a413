package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/rickgao/pricesync/internal/engine"
	"github.com/rickgao/pricesync/internal/metrics"
	"github.com/rickgao/pricesync/internal/model"
	"github.com/rickgao/pricesync/internal/version"
)

// syncEngine is the engine surface served over HTTP.
type syncEngine interface {
	Views() []model.AssetView
	View(id string) (model.AssetView, bool)
	Status() model.SyncStatus
	AddAsset(ctx context.Context, asset model.AssetRecord) (model.AssetRecord, error)
	RemoveAsset(ctx context.Context, id string) error
}

// searcher looks up candidate assets to track.
type searcher interface {
	Search(ctx context.Context, query string, limit int) ([]model.AssetRecord, error)
}

type server struct {
	engine syncEngine
	search searcher
	logger *slog.Logger
}

// newHandler creates the HTTP handler for the daemon.
func newHandler(eng syncEngine, search searcher, metricsPath string, logger *slog.Logger) http.Handler {
	s := &server{
		engine: eng,
		search: search,
		logger: logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /assets", s.handleListAssets)
	mux.HandleFunc("POST /assets", s.handleAddAsset)
	mux.HandleFunc("GET /assets/{id}", s.handleGetAsset)
	mux.HandleFunc("DELETE /assets/{id}", s.handleRemoveAsset)
	mux.HandleFunc("GET /search", s.handleSearch)
	if metricsPath != "" {
		mux.Handle("GET "+metricsPath, metrics.Handler())
	}
	return mux
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.engine.Status()

	health := struct {
		Status     string         `json:"status"`
		Version    string         `json:"version"`
		Components map[string]any `json:"components"`
	}{
		Status:     "healthy",
		Version:    version.String(),
		Components: make(map[string]any),
	}

	feed := map[string]any{"state": st.ConnectionState}
	if st.LastError != "" {
		feed["error"] = st.LastError
	}
	health.Components["feed"] = feed
	if !st.Connected {
		health.Status = "degraded"
	}

	if st.StorageDegraded {
		health.Status = "degraded"
		health.Components["storage"] = "unavailable"
	} else {
		health.Components["storage"] = "ok"
	}

	health.Components["tracked_assets"] = st.Tracked

	writeJSON(w, http.StatusOK, health)
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Status())
}

func (s *server) handleListAssets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Views())
}

func (s *server) handleGetAsset(w http.ResponseWriter, r *http.Request) {
	v, ok := s.engine.View(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "asset not tracked")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *server) handleAddAsset(w http.ResponseWriter, r *http.Request) {
	var asset model.AssetRecord
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&asset); err != nil {
		writeError(w, http.StatusBadRequest, "invalid asset body")
		return
	}

	added, err := s.engine.AddAsset(r.Context(), asset)
	switch {
	case errors.Is(err, engine.ErrInvalidAsset):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, engine.ErrDuplicateAsset):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		s.logger.Error("add asset failed", "asset", asset.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "add asset failed")
	default:
		writeJSON(w, http.StatusCreated, added)
	}
}

func (s *server) handleRemoveAsset(w http.ResponseWriter, r *http.Request) {
	err := s.engine.RemoveAsset(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, engine.ErrUnknownAsset):
		writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		s.logger.Error("remove asset failed", "error", err)
		writeError(w, http.StatusInternalServerError, "remove asset failed")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	// Zero leaves the limit to the search client.
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	results, err := s.search.Search(ctx, r.URL.Query().Get("q"), limit)
	if err != nil {
		s.logger.Warn("catalog search failed", "error", err)
		writeError(w, http.StatusBadGateway, "catalog search failed")
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
