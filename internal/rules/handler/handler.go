package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"govengine/internal/rules/impl"
	"govengine/internal/rules/models"
	dErrors "govengine/pkg/domain-errors"
	"govengine/pkg/platform/httputil"
	"govengine/pkg/requestcontext"
)

// Engine is the rule read and evaluation path.
type Engine interface {
	Rules() []models.Rule
	UseCases() []models.UseCase
	EvaluateUseCase(ctx context.Context, useCaseID string, payload impl.Payload) models.UseCaseEvaluation
}

type Handler struct {
	engine Engine
	logger *slog.Logger
}

func New(engine Engine, logger *slog.Logger) *Handler {
	return &Handler{engine: engine, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/admin/rules", h.HandleListRules)
	r.Get("/admin/use-cases", h.HandleListUseCases)
	r.Post("/admin/use-cases/{id}/evaluate", h.HandleEvaluate)
}

func (h *Handler) HandleListRules(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"rules": h.engine.Rules()})
}

func (h *Handler) HandleListUseCases(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"use_cases": h.engine.UseCases()})
}

// HandleEvaluate answers 200 for both outcomes; a FAIL is a governance
// finding, not a request error. An unknown use case is a FAIL too.
func (h *Handler) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	useCaseID := chi.URLParam(r, "id")
	if useCaseID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "use case id is required"))
		return
	}
	req, ok := httputil.DecodeAndPrepare[EvaluateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result := h.engine.EvaluateUseCase(ctx, useCaseID, impl.Payload(req.Payload))
	if result.Result == models.OutcomeFail {
		h.logger.InfoContext(ctx, "use case evaluation failed",
			"request_id", requestID,
			"actor", requestcontext.Actor(ctx),
			"use_case_id", useCaseID,
		)
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}
