package audit

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	id "govengine/pkg/domain"
	dErrors "govengine/pkg/domain-errors"
	platformaudit "govengine/pkg/platform/audit"
	"govengine/pkg/platform/httputil"
	"govengine/pkg/requestcontext"
)

// Reader is the audit read path used by the handler.
type Reader interface {
	Recent(ctx context.Context, limit int) ([]EventView, error)
	ForInstance(ctx context.Context, instanceID id.InstanceID, limit int) ([]EventView, error)
	Verify(ctx context.Context) (platformaudit.VerifyReport, error)
}

type Handler struct {
	reader Reader
	logger *slog.Logger
}

func NewHandler(reader Reader, logger *slog.Logger) *Handler {
	return &Handler{reader: reader, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/admin/audit", h.HandleRecent)
	r.Get("/admin/audit/verify", h.HandleVerify)
	r.Get("/admin/audit/instances/{id}", h.HandleInstance)
}

func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeBadRequest, "limit must be an integer")
	}
	return n, nil
}

func (h *Handler) HandleRecent(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	events, err := h.reader.Recent(r.Context(), limit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"events": events})
}

// HandleInstance lists the newest events of one instance stream. An id
// with no events yields an empty list.
func (h *Handler) HandleInstance(w http.ResponseWriter, r *http.Request) {
	instanceID, err := id.ParseInstanceID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	events, err := h.reader.ForInstance(r.Context(), instanceID, limit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"events": events})
}

type verifyResponse struct {
	OK      bool                  `json:"ok"`
	Events  int                   `json:"events"`
	Streams int                   `json:"streams"`
	Breaks  []platformaudit.Break `json:"breaks"`
}

// HandleVerify always answers 200 when the walk completes; a broken chain
// is a finding, not a request failure.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	report, err := h.reader.Verify(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if !report.OK() {
		h.logger.ErrorContext(ctx, "audit chain verification found breaks",
			"request_id", requestcontext.RequestID(ctx),
			"breaks", len(report.Breaks),
			"first_stream", report.Breaks[0].Stream,
		)
	}
	httputil.WriteJSON(w, http.StatusOK, verifyResponse{
		OK:      report.OK(),
		Events:  report.Events,
		Streams: report.Streams,
		Breaks:  report.Breaks,
	})
}
