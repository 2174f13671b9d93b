package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ruteri/workstation-provisioning/api"
	"github.com/ruteri/workstation-provisioning/interfaces"
	"github.com/ruteri/workstation-provisioning/metrics"
)

// maxBodySize is the maximum allowed request body size (64KB).
const maxBodySize = 64 * 1024

// DomainResolver looks up the configuration of a domain slug.
type DomainResolver func(name string) (interfaces.DomainConfig, error)

// Handler exposes a NameRegistry over HTTP. Hostname templates are resolved
// on the server, so every client renders names the same way.
type Handler struct {
	registry interfaces.NameRegistry
	domains  DomainResolver
	log      *slog.Logger
}

// NewHandler creates a new registry handler.
//
// Parameters:
//   - registry: backing NameRegistry, usually the retrying Postgres or Sheets registry
//   - domains: resolves the {domain} path segment
//   - log: structured logger
func NewHandler(registry interfaces.NameRegistry, domains DomainResolver, log *slog.Logger) *Handler {
	return &Handler{
		registry: registry,
		domains:  domains,
		log:      log,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post(api.ReservationsPath, h.HandleReserveName)
	r.Post(api.MarkJoinedPath, h.HandleMarkJoined)
}

// HandleReserveName reserves the next sequence of a domain.
//
// URL format: POST /api/v1/domains/{domain}/reservations
//
// Request body: api.ReserveNameRequest
//
// Response: interfaces.Reservation
func (h *Handler) HandleReserveName(w http.ResponseWriter, r *http.Request) {
	domain, err := h.domains(chi.URLParam(r, "domain"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req api.ReserveNameRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if strings.TrimSpace(req.AssignedUser) == "" {
		h.writeError(w, invalidRequest("assigned_user is required"))
		return
	}

	start := time.Now()
	reservation, err := h.registry.ReserveName(r.Context(), domain, req.AssignedUser)
	metrics.RequestDurationSeconds.WithLabelValues("reserve").Observe(time.Since(start).Seconds())
	metrics.ReservationsTotal.WithLabelValues(domain.Key(), metrics.Result(err)).Inc()
	if err != nil {
		h.log.Error("Reservation failed", "err", err,
			slog.String("domain", domain.Name),
			slog.String("assignedUser", req.AssignedUser))
		h.writeError(w, err)
		return
	}

	h.log.Info("Reserved name",
		slog.String("domain", reservation.Domain),
		slog.Int("sequence", reservation.Sequence),
		slog.String("hostname", reservation.Hostname))

	writeJSON(w, http.StatusOK, reservation)
}

// HandleMarkJoined flips a reserved row to Joined.
//
// URL format: POST /api/v1/domains/{domain}/reservations/{sequence}/joined
//
// Request body: api.MarkJoinedRequest
//
// Response: 204 No Content
func (h *Handler) HandleMarkJoined(w http.ResponseWriter, r *http.Request) {
	domain, err := h.domains(chi.URLParam(r, "domain"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	sequence, err := strconv.Atoi(chi.URLParam(r, "sequence"))
	if err != nil || sequence <= 0 {
		h.writeError(w, invalidRequest("sequence must be a positive integer"))
		return
	}

	var req api.MarkJoinedRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	start := time.Now()
	err = h.registry.MarkJoined(r.Context(), domain, sequence, req.Notes)
	metrics.RequestDurationSeconds.WithLabelValues("mark_joined").Observe(time.Since(start).Seconds())
	metrics.MarkJoinedTotal.WithLabelValues(domain.Key(), metrics.Result(err)).Inc()
	if err != nil {
		h.log.Error("Mark joined failed", "err", err,
			slog.String("domain", domain.Name),
			slog.Int("sequence", sequence))
		h.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

func invalidRequest(format string, args ...any) error {
	return &requestError{msg: fmt.Sprintf(format, args...)}
}

func decodeBody(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		return invalidRequest("failed to read request body")
	}
	if len(body) > maxBodySize {
		return invalidRequest("request body too large")
	}
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return invalidRequest("invalid JSON body: %v", err)
	}
	return nil
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: reqErr.msg, Code: api.CodeInvalidRequest})
		return
	}

	code, status := api.ErrorToCode(err)
	writeJSON(w, status, api.ErrorResponse{Error: err.Error(), Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
