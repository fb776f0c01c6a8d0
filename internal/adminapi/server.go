// Package adminapi implements the minimal HTTP asset-administration surface:
// upload/list/inspect/remove operate on the same Asset Manager the duplex
// sessions stream from. A gorilla/mux router with permissive CORS
// middleware, and JSON responses written with encoding/json directly
// rather than a framework.
package adminapi

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/streamxr/core/internal/assets"
	"github.com/streamxr/core/internal/hub"
)

// Server exposes the asset admin endpoints over HTTP.
type Server struct {
	assets *assets.Manager
	hub    *hub.Hub
}

// New creates a Server bound to the shared Asset Manager and Hub — uploads
// and removals broadcast asset_uploaded/asset_removed to every live session.
func New(a *assets.Manager, h *hub.Hub) *Server {
	return &Server{assets: a, hub: h}
}

// Router builds the gorilla/mux router for this server.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()

	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			if req.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, req)
		})
	})

	r.HandleFunc("/api/assets/upload", s.handleUpload).Methods(http.MethodPost)
	r.HandleFunc("/api/assets", s.handleList).Methods(http.MethodGet)
	r.HandleFunc("/api/assets/{assetId}", s.handleInfo).Methods(http.MethodGet)
	r.HandleFunc("/api/assets/{assetId}", s.handleRemove).Methods(http.MethodDelete)

	return r
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	assetID := r.URL.Query().Get("assetId")
	if assetID == "" {
		http.Error(w, "assetId query parameter required", http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := s.assets.Upload(r.Context(), assetID, data)
	if err != nil {
		slog.Error("asset upload failed", "asset_id", assetID, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if s.hub != nil {
		s.hub.BroadcastAll(map[string]any{
			"type":      "asset_uploaded",
			"assetId":   result.AssetID,
			"lodLevels": result.LODLevels,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"assetId":   result.AssetID,
		"lodLevels": result.LODLevels,
		"sizes":     result.Sizes,
	})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	listing := s.assets.List()
	items := make([]map[string]any, 0, len(listing))
	for _, l := range listing {
		items = append(items, listingToJSON(l))
	}
	writeJSON(w, http.StatusOK, map[string]any{"assets": items})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	assetID := mux.Vars(r)["assetId"]
	info, ok := s.assets.Info(assetID)
	if !ok {
		http.Error(w, "asset not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, listingToJSON(info))
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	assetID := mux.Vars(r)["assetId"]
	if !s.assets.Remove(assetID) {
		http.Error(w, "asset not found", http.StatusNotFound)
		return
	}

	if s.hub != nil {
		s.hub.BroadcastAll(map[string]any{"type": "asset_removed", "assetId": assetID})
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "assetId": assetID})
}

func listingToJSON(l assets.Listing) map[string]any {
	lods := make([]string, 0, len(l.LODs))
	for _, lod := range l.LODs {
		lods = append(lods, string(lod))
	}
	return map[string]any{"id": l.AssetID, "lods": lods, "hasNeRF": l.HasNeRF}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
