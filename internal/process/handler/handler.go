package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"govengine/internal/process/catalog"
	"govengine/internal/process/models"
	"govengine/internal/process/service"
	id "govengine/pkg/domain"
	dErrors "govengine/pkg/domain-errors"
	"govengine/pkg/platform/httputil"
	"govengine/pkg/requestcontext"
)

// Service is the process engine as seen by HTTP.
type Service interface {
	BootstrapCatalog(ctx context.Context, c *catalog.Catalog, actor string) (*service.BootstrapResult, error)
	ListTemplates(ctx context.Context) ([]models.StoredTemplate, error)
	CreateInstance(ctx context.Context, req *models.CreateInstanceRequest, actor string) (*models.Instance, error)
	SubmitArtifact(ctx context.Context, instanceID id.InstanceID, req *models.SubmitArtifactRequest, actor string) (*service.SubmitResult, error)
	GetInstance(ctx context.Context, instanceID id.InstanceID) (*models.InstanceDetail, error)
	ListInstances(ctx context.Context, req models.ListInstancesRequest) ([]models.Instance, error)
}

// CatalogSource yields the validated governed catalog.
type CatalogSource interface {
	Load(ctx context.Context) (*catalog.Catalog, error)
	Invalidate()
}

type Handler struct {
	service Service
	catalog CatalogSource
	logger  *slog.Logger
}

func New(service Service, catalog CatalogSource, logger *slog.Logger) *Handler {
	return &Handler{service: service, catalog: catalog, logger: logger}
}

// Register mounts process routes. The caller applies admin and actor
// middleware.
func (h *Handler) Register(r chi.Router) {
	r.Post("/admin/process/bootstrap", h.HandleBootstrap)
	r.Get("/admin/process/templates", h.HandleListTemplates)
	r.Post("/admin/process/instances", h.HandleCreateInstance)
	r.Get("/admin/process/instances", h.HandleListInstances)
	r.Get("/admin/process/instances/{id}", h.HandleGetInstance)
	r.Post("/admin/process/instances/{id}/artifacts", h.HandleSubmitArtifact)
}

type bootstrapResponse struct {
	Upserted           int                         `json:"upserted"`
	VersionRegressions []service.VersionRegression `json:"version_regressions,omitempty"`
}

// HandleBootstrap rereads the governed document and upserts its templates.
// The cache is dropped first so edits since the last bootstrap are seen.
func (h *Handler) HandleBootstrap(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := requestcontext.Actor(ctx)

	h.catalog.Invalidate()
	c, err := h.catalog.Load(ctx)
	if err != nil {
		h.logger.WarnContext(ctx, "process catalog rejected",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	result, err := h.service.BootstrapCatalog(ctx, c, actor)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "process catalog bootstrapped",
		"request_id", requestcontext.RequestID(ctx),
		"actor", actor,
		"upserted", result.Upserted,
	)
	httputil.WriteJSON(w, http.StatusOK, bootstrapResponse{
		Upserted:           result.Upserted,
		VersionRegressions: result.VersionRegressions,
	})
}

func (h *Handler) HandleListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.service.ListTemplates(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"templates": templates})
}

func (h *Handler) HandleCreateInstance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.CreateInstanceRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	inst, err := h.service.CreateInstance(ctx, req, requestcontext.Actor(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]string{"instance_id": inst.ID.String()})
}

func (h *Handler) HandleListInstances(w http.ResponseWriter, r *http.Request) {
	req := models.ListInstancesRequest{Q: r.URL.Query().Get("q")}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be an integer"))
			return
		}
		req.Limit = limit
	}
	instances, err := h.service.ListInstances(r.Context(), req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"instances": instances})
}

func (h *Handler) HandleGetInstance(w http.ResponseWriter, r *http.Request) {
	instanceID, err := id.ParseInstanceID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	detail, err := h.service.GetInstance(r.Context(), instanceID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toDetailResponse(detail))
}

func (h *Handler) HandleSubmitArtifact(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	instanceID, err := id.ParseInstanceID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.SubmitArtifactRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	result, err := h.service.SubmitArtifact(ctx, instanceID, req, requestcontext.Actor(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, result)
}
