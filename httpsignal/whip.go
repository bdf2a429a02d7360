// Package httpsignal implements the HTTP subsystem of spec.md §4.4/§6.1:
// WHIP ingestion (POST offer, 201 + answer + Location), a resource
// registry backing WHIP DELETE, and WebSocket upgrade for the out-of-band
// signaling path. The regex-router/incremental-parser state machine spec.md
// §4.4 describes for the core's own event loop is out of scope here: once a
// request has been fully read, standard net/http already exposes exactly
// the RECV_HEADER/RECV_BODY states the core would otherwise hand-roll, so
// WHIP's own HTTP surface builds on it instead of re-deriving the parser.
package httpsignal

import (
	"crypto/rand"
	"encoding/hex"
	"io"
	"net/http"
	"sync"

	"github.com/nexusrtc/rtcd/log"
)

// Negotiator produces an SDP answer (plus, as a side effect, the
// MediaStreamConfig set spec.md §4.9 attaches to the connection) from a
// raw offer body.
type Negotiator interface {
	Negotiate(offer []byte) (answer []byte, resourceID string, err error)
}

// Terminator tears a previously negotiated resource down, backing WHIP's
// DELETE method.
type Terminator interface {
	Terminate(resourceID string) error
}

// Handler is the WHIP HTTP endpoint of spec.md §6.1: "POST /<whip_path>
// with Content-Type: application/sdp ... response is 201 Created ...
// Location header pointing at a resource for DELETE".
type Handler struct {
	Path       string
	Negotiator Negotiator
	Terminator Terminator
	Log        log.Logger

	mu        sync.Mutex
	resources map[string]struct{}
}

// NewHandler creates a Handler bound to path, the configured whip_path.
func NewHandler(path string, negotiator Negotiator, terminator Terminator, logger log.Logger) *Handler {
	if logger == nil {
		logger = log.Nil{}
	}
	return &Handler{
		Path:       path,
		Negotiator: negotiator,
		Terminator: terminator,
		Log:        logger.WithFields(log.Field{Key: "component", Value: "whip"}),
		resources:  make(map[string]struct{}),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handleOffer(w, r)
	case http.MethodDelete:
		h.handleDelete(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleOffer(w http.ResponseWriter, r *http.Request) {
	if ct := r.Header.Get("Content-Type"); ct != "application/sdp" {
		http.Error(w, "expected Content-Type: application/sdp", http.StatusUnsupportedMediaType)
		return
	}

	offer, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "failed to read offer body", http.StatusBadRequest)
		return
	}

	answer, resourceID, err := h.Negotiator.Negotiate(offer)
	if err != nil {
		h.Log.Error("whip negotiation failed: " + err.Error())
		http.Error(w, "negotiation failed", http.StatusBadRequest)
		return
	}

	h.mu.Lock()
	h.resources[resourceID] = struct{}{}
	h.mu.Unlock()

	w.Header().Set("Content-Type", "application/sdp")
	w.Header().Set("Location", h.Path+"/"+resourceID)
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(answer)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	resourceID := resourceIDFromPath(r.URL.Path, h.Path)

	h.mu.Lock()
	_, known := h.resources[resourceID]
	delete(h.resources, resourceID)
	h.mu.Unlock()

	if !known {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if h.Terminator != nil {
		if err := h.Terminator.Terminate(resourceID); err != nil {
			h.Log.Error("whip resource terminate failed: " + err.Error())
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func resourceIDFromPath(requestPath, base string) string {
	if len(requestPath) <= len(base)+1 {
		return ""
	}
	return requestPath[len(base)+1:]
}

// NewResourceID mints an unguessable WHIP resource id, used by Negotiator
// implementations when registering a newly answered connection.
func NewResourceID() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
