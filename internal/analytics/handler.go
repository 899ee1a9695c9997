package analytics

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/internal/projection"
	apperrors "github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/pkg/logger"
)

const maxProjectionBody = 1 << 20

type Handler struct {
	service         *Service
	defaultMinVotes int
	logger          *slog.Logger
}

func NewHandler(service *Service) *Handler {
	return &Handler{
		service:         service,
		defaultMinVotes: service.opts.Matrix.MinVotesPerLegislator,
		logger:          slog.Default().With("component", "analytics-handler"),
	}
}

// Register mounts every endpoint on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/recompute", h.Recompute)
	mux.HandleFunc("GET /api/v1/coordinates", h.Coordinates)
	mux.HandleFunc("GET /api/v1/coordinates/live", h.LiveCoordinates)
	mux.HandleFunc("POST /api/v1/projection", h.Project)
	mux.HandleFunc("GET /api/v1/artifacts/{key}", h.Artifact)
	mux.HandleFunc("GET /api/v1/parties/agreement", h.PartyAgreement)
	mux.HandleFunc("GET /api/v1/parties/cohesion", h.PartyCohesion)
	mux.HandleFunc("GET /api/v1/snapshots/current", h.CurrentSnapshot)
}

// Recompute runs a batch synchronously and returns its report.
func (h *Handler) Recompute(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.Recompute(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

func (h *Handler) Coordinates(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.Coordinates(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

// LiveCoordinates accepts an optional min_votes query parameter.
func (h *Handler) LiveCoordinates(w http.ResponseWriter, r *http.Request) {
	minVotes := h.defaultMinVotes
	if v := r.URL.Query().Get("min_votes"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			h.writeError(w, http.StatusBadRequest, "min_votes must be a non-negative integer")
			return
		}
		minVotes = parsed
	}
	res, err := h.service.LiveCoordinates(r.Context(), minVotes)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

// ProjectionRequest is the body of POST /api/v1/projection.
type ProjectionRequest struct {
	Responses []projection.Response `json:"responses"`
}

func (h *Handler) Project(w http.ResponseWriter, r *http.Request) {
	var req ProjectionRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxProjectionBody)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	res, err := h.service.Project(r.Context(), req.Responses)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

func (h *Handler) Artifact(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Artifact(r.Context(), r.PathValue("key"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

func (h *Handler) PartyAgreement(w http.ResponseWriter, r *http.Request) {
	entries, snapshotID, err := h.service.PartyAgreement(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"snapshotId": snapshotID,
		"entries":    entries,
		"count":      len(entries),
	})
}

func (h *Handler) PartyCohesion(w http.ResponseWriter, r *http.Request) {
	entries, snapshotID, err := h.service.PartyCohesion(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"snapshotId": snapshotID,
		"entries":    entries,
		"count":      len(entries),
	})
}

func (h *Handler) CurrentSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.CurrentSnapshot(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, snap)
}

// fail maps err to a status. Server-side failures are logged and their
// detail withheld from the client.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed",
			"component", "analytics-handler",
			"path", r.URL.Path,
			"error", err,
		)
		message := "internal error"
		if errors.Is(err, apperrors.ErrUnavailable) || errors.Is(err, apperrors.ErrTimeout) {
			message = "service temporarily unavailable"
		}
		h.writeError(w, status, message)
		return
	}
	h.writeError(w, status, err.Error())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
