package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"govengine/internal/process/metrics"
	"govengine/internal/process/models"
	id "govengine/pkg/domain"
	dErrors "govengine/pkg/domain-errors"
	audit "govengine/pkg/platform/audit"
	"govengine/pkg/platform/sentinel"
	"govengine/pkg/requestcontext"
)

//go:generate mockgen -destination=mocks/mocks.go -package=mocks govengine/internal/process/service AuditPublisher,AuditReader

type TemplateStore interface {
	UpsertTemplate(ctx context.Context, tpl models.StoredTemplate) error
	FindTemplate(ctx context.Context, key string) (*models.StoredTemplate, error)
	FindTemplates(ctx context.Context, keys []string) (map[string]models.StoredTemplate, error)
	ListTemplates(ctx context.Context) ([]models.StoredTemplate, error)
}

type InstanceStore interface {
	CreateInstance(ctx context.Context, inst *models.Instance, steps []models.StepProgress) error
	FindInstance(ctx context.Context, instanceID id.InstanceID) (*models.Instance, error)
	FindInstanceForUpdate(ctx context.Context, instanceID id.InstanceID) (*models.Instance, error)
	UpdateInstance(ctx context.Context, inst *models.Instance) error
	ListInstances(ctx context.Context, q string, limit int) ([]models.Instance, error)
	ListStepProgress(ctx context.Context, instanceID id.InstanceID) ([]models.StepProgress, error)
	MarkStepDone(ctx context.Context, instanceID id.InstanceID, stepID string, at time.Time) error
	AddArtifact(ctx context.Context, artifact *models.Artifact) error
	ListArtifacts(ctx context.Context, instanceID id.InstanceID, stepID string) ([]models.Artifact, error)
}

// AuditPublisher records an event durably. A failed Emit fails the
// operation that caused it.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) (audit.Event, error)
}

type AuditReader interface {
	ListByInstance(ctx context.Context, instanceID id.InstanceID, limit int) ([]audit.Event, error)
}

// TxRunner provides the transactional boundary for a mutation and its audit
// events. Implementations wrap a database transaction or, in memory, a
// sharded lock with an undo journal.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

const instanceEventLimit = 200

// Service is the catalog bootstrap path and the process instance engine.
type Service struct {
	templates TemplateStore
	instances InstanceStore
	tx        TxRunner
	publisher AuditPublisher
	events    AuditReader
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithAuditReader enables instance events in GetInstance.
func WithAuditReader(r AuditReader) Option {
	return func(s *Service) {
		s.events = r
	}
}

func New(templates TemplateStore, instances InstanceStore, tx TxRunner, publisher AuditPublisher, opts ...Option) *Service {
	s := &Service{
		templates: templates,
		instances: instances,
		tx:        tx,
		publisher: publisher,
		tracer:    otel.Tracer("govengine/process"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func normalizeActor(actor string) (string, error) {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return "", dErrors.New(dErrors.CodeValidation, "actor is required")
	}
	if utf8.RuneCountInString(actor) > models.MaxActorLength {
		return "", dErrors.New(dErrors.CodeValidation, "actor must be 200 characters or less")
	}
	return actor, nil
}

// emit appends an event inside the caller's transaction.
func (s *Service) emit(ctx context.Context, event audit.Event) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = requestcontext.Now(ctx)
	}
	if _, err := s.publisher.Emit(ctx, event); err != nil {
		if dErrors.GetCode(err) != dErrors.CodeInternal {
			return err
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record audit event")
	}
	s.logInfo(ctx, string(event.Type), "instance_id", event.InstanceID.String())
	return nil
}

// storeError maps store sentinels to coded errors. Coded errors pass through.
func storeError(err error, notFound, internal string) error {
	var coded *dErrors.Error
	switch {
	case errors.As(err, &coded):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, notFound)
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.New(dErrors.CodeInvalidState, "process instance is closed")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, internal)
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, internal)
	}
}

// finish logs and counts a failed operation and marks the span.
func (s *Service) finish(ctx context.Context, span trace.Span, operation string, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, operation+" failed")

	code := dErrors.GetCode(err)
	args := []any{"operation", operation, "code", string(code), "error", err}
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		args = append(args, "request_id", requestID)
	}
	if code == dErrors.CodeInternal || code == dErrors.CodeTimeout {
		if s.logger != nil {
			s.logger.ErrorContext(ctx, "process operation failed", args...)
		}
		return
	}
	s.metrics.IncrementRejected(operation, string(code))
	if s.logger != nil {
		s.logger.WarnContext(ctx, "process operation rejected", args...)
	}
}

func (s *Service) logInfo(ctx context.Context, msg string, args ...any) {
	if s.logger == nil {
		return
	}
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		args = append(args, "request_id", requestID)
	}
	s.logger.InfoContext(ctx, msg, args...)
}
