package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"govengine/internal/process/models"
	id "govengine/pkg/domain"
	"govengine/pkg/platform/sentinel"
	txcontext "govengine/pkg/platform/tx"
)

const (
	// closedGuardSQLState is raised by the process_instances trigger when a
	// closed row is updated.
	closedGuardSQLState = "GA002"
	uniqueViolation     = "23505"
)

// PostgresStore persists templates, instances, step progress and artifacts.
type PostgresStore struct {
	db *sql.DB
}

func New(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) execer(ctx context.Context) txcontext.Executor {
	return txcontext.ExecutorFor(ctx, s.db)
}

func (s *PostgresStore) UpsertTemplate(ctx context.Context, tpl models.StoredTemplate) error {
	steps, err := json.Marshal(tpl.Steps)
	if err != nil {
		return fmt.Errorf("marshal template steps: %w", err)
	}
	_, err = s.execer(ctx).ExecContext(ctx, `
		INSERT INTO process_templates (template_key, version, title, catalog_version, steps, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (template_key) DO UPDATE SET
			version = EXCLUDED.version,
			title = EXCLUDED.title,
			catalog_version = EXCLUDED.catalog_version,
			steps = EXCLUDED.steps,
			updated_at = EXCLUDED.updated_at
	`, tpl.Key, tpl.Version, tpl.Title, tpl.CatalogVersion, steps, tpl.CreatedAt, tpl.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert template: %w", err)
	}
	return nil
}

const templateColumns = `
	SELECT template_key, version, title, catalog_version, steps, created_at, updated_at
	FROM process_templates
`

func (s *PostgresStore) FindTemplate(ctx context.Context, key string) (*models.StoredTemplate, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, templateColumns+` WHERE template_key = $1`, key)
	if err != nil {
		return nil, fmt.Errorf("find template: %w", err)
	}
	templates, err := scanTemplates(rows)
	if err != nil {
		return nil, err
	}
	if len(templates) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return &templates[0], nil
}

func (s *PostgresStore) FindTemplates(ctx context.Context, keys []string) (map[string]models.StoredTemplate, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, templateColumns+` WHERE template_key = ANY($1)`, pq.Array(keys))
	if err != nil {
		return nil, fmt.Errorf("find templates: %w", err)
	}
	templates, err := scanTemplates(rows)
	if err != nil {
		return nil, err
	}
	out := make(map[string]models.StoredTemplate, len(templates))
	for _, tpl := range templates {
		out[tpl.Key] = tpl
	}
	return out, nil
}

func (s *PostgresStore) ListTemplates(ctx context.Context) ([]models.StoredTemplate, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, templateColumns+` ORDER BY template_key`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return scanTemplates(rows)
}

func scanTemplates(rows *sql.Rows) ([]models.StoredTemplate, error) {
	defer rows.Close()
	var out []models.StoredTemplate
	for rows.Next() {
		var (
			tpl   models.StoredTemplate
			steps []byte
		)
		if err := rows.Scan(&tpl.Key, &tpl.Version, &tpl.Title, &tpl.CatalogVersion, &steps, &tpl.CreatedAt, &tpl.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		if err := json.Unmarshal(steps, &tpl.Steps); err != nil {
			return nil, fmt.Errorf("decode template steps: %w", err)
		}
		out = append(out, tpl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate templates: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) CreateInstance(ctx context.Context, inst *models.Instance, steps []models.StepProgress) error {
	snapshot, err := json.Marshal(inst.Snapshot)
	if err != nil {
		return fmt.Errorf("marshal template snapshot: %w", err)
	}
	exec := s.execer(ctx)
	_, err = exec.ExecContext(ctx, `
		INSERT INTO process_instances (
			id, template_key, template_version, template_snapshot, title, status,
			current_step_id, created_by, created_at, updated_at, closed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		uuid.UUID(inst.ID), inst.TemplateKey, inst.TemplateVersion, snapshot, inst.Title, string(inst.Status),
		inst.CurrentStepID, inst.CreatedBy, inst.CreatedAt, inst.UpdatedAt, inst.ClosedAt,
	)
	if err != nil {
		if isSQLState(err, uniqueViolation) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert instance: %w", err)
	}
	for _, step := range steps {
		_, err := exec.ExecContext(ctx, `
			INSERT INTO process_instance_steps (instance_id, step_id, title, position, status, done_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, uuid.UUID(inst.ID), step.StepID, step.Title, step.Position, string(step.Status), step.DoneAt)
		if err != nil {
			return fmt.Errorf("insert instance step: %w", err)
		}
	}
	return nil
}

const instanceColumns = `
	SELECT id, template_key, template_version, template_snapshot, title, status,
		   current_step_id, created_by, created_at, updated_at, closed_at
	FROM process_instances
`

func (s *PostgresStore) FindInstance(ctx context.Context, instanceID id.InstanceID) (*models.Instance, error) {
	return s.findInstance(ctx, instanceColumns+` WHERE id = $1`, instanceID)
}

// FindInstanceForUpdate locks the instance row until the surrounding
// transaction ends, serializing concurrent submissions.
func (s *PostgresStore) FindInstanceForUpdate(ctx context.Context, instanceID id.InstanceID) (*models.Instance, error) {
	return s.findInstance(ctx, instanceColumns+` WHERE id = $1 FOR UPDATE`, instanceID)
}

func (s *PostgresStore) findInstance(ctx context.Context, query string, instanceID id.InstanceID) (*models.Instance, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, query, uuid.UUID(instanceID))
	if err != nil {
		return nil, fmt.Errorf("find instance: %w", err)
	}
	instances, err := scanInstances(rows)
	if err != nil {
		return nil, err
	}
	if len(instances) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return &instances[0], nil
}

func (s *PostgresStore) UpdateInstance(ctx context.Context, inst *models.Instance) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE process_instances
		SET status = $2, current_step_id = $3, updated_at = $4, closed_at = $5
		WHERE id = $1
	`, uuid.UUID(inst.ID), string(inst.Status), inst.CurrentStepID, inst.UpdatedAt, inst.ClosedAt)
	if err != nil {
		if isSQLState(err, closedGuardSQLState) {
			return sentinel.ErrInvalidState
		}
		return fmt.Errorf("update instance: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update instance rows affected: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListInstances(ctx context.Context, q string, limit int) ([]models.Instance, error) {
	query := instanceColumns
	args := []any{limit}
	if q != "" {
		query += ` WHERE title ILIKE $2 OR template_key ILIKE $2`
		args = append(args, "%"+escapeLike(q)+"%")
	}
	query += ` ORDER BY updated_at DESC, id DESC LIMIT $1`
	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	return scanInstances(rows)
}

func scanInstances(rows *sql.Rows) ([]models.Instance, error) {
	defer rows.Close()
	var out []models.Instance
	for rows.Next() {
		var (
			inst     models.Instance
			rawID    uuid.UUID
			status   string
			snapshot []byte
			closedAt sql.NullTime
		)
		if err := rows.Scan(
			&rawID, &inst.TemplateKey, &inst.TemplateVersion, &snapshot, &inst.Title, &status,
			&inst.CurrentStepID, &inst.CreatedBy, &inst.CreatedAt, &inst.UpdatedAt, &closedAt,
		); err != nil {
			return nil, fmt.Errorf("scan instance: %w", err)
		}
		if err := json.Unmarshal(snapshot, &inst.Snapshot); err != nil {
			return nil, fmt.Errorf("decode template snapshot: %w", err)
		}
		inst.ID = id.InstanceID(rawID)
		inst.Status = models.Status(status)
		if closedAt.Valid {
			at := closedAt.Time
			inst.ClosedAt = &at
		}
		out = append(out, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate instances: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ListStepProgress(ctx context.Context, instanceID id.InstanceID) ([]models.StepProgress, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT step_id, title, position, status, done_at
		FROM process_instance_steps
		WHERE instance_id = $1
		ORDER BY position
	`, uuid.UUID(instanceID))
	if err != nil {
		return nil, fmt.Errorf("list instance steps: %w", err)
	}
	defer rows.Close()
	var out []models.StepProgress
	for rows.Next() {
		var (
			step   models.StepProgress
			status string
			doneAt sql.NullTime
		)
		if err := rows.Scan(&step.StepID, &step.Title, &step.Position, &status, &doneAt); err != nil {
			return nil, fmt.Errorf("scan instance step: %w", err)
		}
		step.InstanceID = instanceID
		step.Status = models.StepStatus(status)
		if doneAt.Valid {
			at := doneAt.Time
			step.DoneAt = &at
		}
		out = append(out, step)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate instance steps: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) MarkStepDone(ctx context.Context, instanceID id.InstanceID, stepID string, at time.Time) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE process_instance_steps
		SET status = 'done', done_at = $3
		WHERE instance_id = $1 AND step_id = $2
	`, uuid.UUID(instanceID), stepID, at)
	if err != nil {
		return fmt.Errorf("mark step done: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark step done rows affected: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) AddArtifact(ctx context.Context, artifact *models.Artifact) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO process_artifacts (
			id, instance_id, step_id, artifact_type, counts_toward_closure,
			title, ref_url, ref_text, sha256, submitted_by, submitted_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		uuid.UUID(artifact.ID), uuid.UUID(artifact.InstanceID), artifact.StepID, artifact.ArtifactType,
		artifact.CountsTowardClosure, nullString(artifact.Title), nullString(artifact.RefURL),
		nullString(artifact.RefText), nullString(artifact.SHA256), artifact.SubmittedBy, artifact.SubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("insert artifact: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListArtifacts(ctx context.Context, instanceID id.InstanceID, stepID string) ([]models.Artifact, error) {
	query := `
		SELECT id, step_id, artifact_type, counts_toward_closure, title, ref_url,
			   ref_text, sha256, submitted_by, submitted_at
		FROM process_artifacts
		WHERE instance_id = $1`
	args := []any{uuid.UUID(instanceID)}
	if stepID != "" {
		query += ` AND step_id = $2`
		args = append(args, stepID)
	}
	query += ` ORDER BY submitted_at DESC, id DESC`

	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()
	var out []models.Artifact
	for rows.Next() {
		var (
			a                              models.Artifact
			rawID                          uuid.UUID
			title, refURL, refText, digest sql.NullString
		)
		if err := rows.Scan(&rawID, &a.StepID, &a.ArtifactType, &a.CountsTowardClosure, &title, &refURL,
			&refText, &digest, &a.SubmittedBy, &a.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		a.ID = id.ArtifactID(rawID)
		a.InstanceID = instanceID
		a.Title, a.RefURL, a.RefText, a.SHA256 = title.String, refURL.String, refText.String, digest.String
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate artifacts: %w", err)
	}
	return out, nil
}

func isSQLState(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

func escapeLike(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '%' || r == '_' || r == '\\' {
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
