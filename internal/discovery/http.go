package discovery

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"go.flowcatalyst.tech/internal/httpapi"
)

// Handler exposes the discovery contract as chi routes.
type Handler struct {
	manager *Manager
}

// NewHandler wraps manager in an HTTP handler.
func NewHandler(manager *Manager) *Handler {
	return &Handler{manager: manager}
}

// Routes returns the router for the discovery contract.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/peers", h.AddPeer)
	r.Delete("/peers/{tag}/{id}", h.RemovePeer)
	return r
}

type addPeerRequest struct {
	SocketTag string `json:"socket_tag"`
	PeerID    string `json:"peer_id"`
	Endpoint  string `json:"endpoint"`
}

// AddPeer handles POST /discovery/peers.
func (h *Handler) AddPeer(w http.ResponseWriter, r *http.Request) {
	var req addPeerRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteBadRequest(w, "invalid request body")
		return
	}
	if req.SocketTag == "" || req.PeerID == "" || req.Endpoint == "" {
		httpapi.WriteBadRequest(w, "socket_tag, peer_id and endpoint are required")
		return
	}

	if !h.manager.AddPeer(req.SocketTag, req.PeerID, req.Endpoint) {
		httpapi.WriteError(w, http.StatusServiceUnavailable, "backlog_full", "discovery reconciliation backlog is full")
		return
	}
	httpapi.WriteJSON(w, http.StatusAccepted, nil)
}

// RemovePeer handles DELETE /discovery/peers/{tag}/{id}.
func (h *Handler) RemovePeer(w http.ResponseWriter, r *http.Request) {
	tag := chi.URLParam(r, "tag")
	id := chi.URLParam(r, "id")
	if tag == "" || id == "" {
		httpapi.WriteBadRequest(w, "tag and id are required")
		return
	}

	if !h.manager.RemovePeer(tag, id) {
		httpapi.WriteError(w, http.StatusServiceUnavailable, "backlog_full", "discovery reconciliation backlog is full")
		return
	}
	httpapi.WriteJSON(w, http.StatusAccepted, nil)
}
