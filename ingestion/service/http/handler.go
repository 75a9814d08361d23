package http

import (
	"encoding/json"
	"errors"
	"log"
	"mime"
	"net/http"
	"time"

	"truecanvas/blockchain/networks"
	core "truecanvas/ingestion/service/core"
	"truecanvas/storage/store"
)

// SubmissionHandler serves the ingestion HTTP API
type SubmissionHandler struct {
	svc          *core.Service
	logger       *log.Logger
	maxBodyBytes int64
}

// NewSubmissionHandler creates a handler; maxBodyBytes <= 0 disables the body limit
func NewSubmissionHandler(s *core.Service, l *log.Logger, maxBodyBytes int64) *SubmissionHandler {
	return &SubmissionHandler{svc: s, logger: l, maxBodyBytes: maxBodyBytes}
}

// Register mounts every route on mux
func (h *SubmissionHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/submissions", h.Submit)
	mux.HandleFunc("GET /v1/submissions/{id}", h.GetSubmission)
	mux.HandleFunc("GET /v1/networks", h.Networks)
	mux.HandleFunc("GET /health", h.HealthCheck)
}

type submitRequest struct {
	Image           string `json:"image"`
	Logs            string `json:"logs"`
	ClientImageHash string `json:"client_image_hash,omitempty"`
}

// Submit handles POST /v1/submissions
func (h *SubmissionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	if mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mt != "application/json" {
		h.respondError(w, "Content-Type must be application/json", http.StatusUnsupportedMediaType)
		return
	}
	if h.maxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	}
	defer r.Body.Close()

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.respondError(w, "Request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		h.logger.Printf("HTTP Handler: Failed to parse JSON request: %v", err)
		h.respondError(w, "Bad Request: Invalid JSON format", http.StatusBadRequest)
		return
	}

	result, err := h.svc.Submit(r.Context(), &core.SubmissionInput{
		Image:           req.Image,
		Logs:            req.Logs,
		ClientImageHash: req.ClientImageHash,
	})
	if err != nil {
		if core.IsInvalidInput(err) {
			h.respondError(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Printf("HTTP Handler: Submission failed: %v", err)
		h.respondError(w, "submission could not be accepted", http.StatusInternalServerError)
		return
	}

	h.respondJSON(w, map[string]interface{}{
		"request_id":                result.RequestID,
		"image_hash":                result.ImageHash,
		"server_received_timestamp": result.ServerReceivedTimestamp.Format(time.RFC3339Nano),
		"status":                    "ACCEPTED",
	}, http.StatusAccepted)
}

// GetSubmission handles GET /v1/submissions/{id}
func (h *SubmissionHandler) GetSubmission(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sub, err := h.svc.GetSubmission(r.Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		h.respondError(w, "submission "+id+" not found", http.StatusNotFound)
	case err != nil:
		h.logger.Printf("HTTP Handler: Lookup of %s failed: %v", id, err)
		h.respondError(w, "lookup failed", http.StatusInternalServerError)
	default:
		h.respondJSON(w, sub, http.StatusOK)
	}
}

// Networks handles GET /v1/networks
func (h *SubmissionHandler) Networks(w http.ResponseWriter, r *http.Request) {
	chains, registry := h.svc.Networks()
	h.respondJSON(w, struct {
		RegistryChainID uint64                     `json:"registry_chain_id"`
		Chains          []networks.ChainDescriptor `json:"chains"`
	}{registry, chains}, http.StatusOK)
}

// HealthCheck handles GET /health requests
func (h *SubmissionHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339Nano),
		"service":   "ingestion",
	}, http.StatusOK)
}

func (h *SubmissionHandler) respondJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Printf("HTTP Handler: Failed to encode JSON response: %v", err)
	}
}

func (h *SubmissionHandler) respondError(w http.ResponseWriter, message string, statusCode int) {
	h.respondJSON(w, map[string]interface{}{
		"error":   message,
		"status":  statusCode,
		"message": http.StatusText(statusCode),
	}, statusCode)
}
