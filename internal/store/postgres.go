package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/infrawatch/infrawatch/internal/model"
)

// PostgreSQL error codes mapped to store sentinels.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// DB is the subset of *pgxpool.Pool used by Postgres.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
}

const (
	serviceColumns    = `id, name, description, repository_url, team_id, environment, aws_region, status, health_check, created_at, updated_at`
	deploymentColumns = `id, service_id, version, environment, status, commit_sha, deployed_by, started_at, finished_at`
	resourceColumns   = `id, service_id, resource_type, resource_id, name, region, status, configuration, created_at, updated_at`
	teamColumns       = `id, name, description, email, slack_url, created_at, updated_at`
)

// Postgres implements Store on PostgreSQL.
type Postgres struct {
	db     DB
	logger *slog.Logger
}

// NewPostgres creates a store over db, usually a *pgxpool.Pool.
func NewPostgres(db DB, logger *slog.Logger) *Postgres {
	if logger == nil {
		logger = slog.Default()
	}
	return &Postgres{db: db, logger: logger}
}

// Ping checks the database connection.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.Ping(ctx)
}

// -----------------------------------------------------------------------------
// Services
// -----------------------------------------------------------------------------

// ListServices returns services, newest first.
func (p *Postgres) ListServices(ctx context.Context, page model.Page) ([]model.Service, error) {
	sql := `SELECT ` + serviceColumns + ` FROM services ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	return queryAll[model.Service](ctx, p.db, "list services", sql, page.Limit, page.Offset)
}

// GetService returns one service.
func (p *Postgres) GetService(ctx context.Context, id uuid.UUID) (model.Service, error) {
	sql := `SELECT ` + serviceColumns + ` FROM services WHERE id = $1`
	return queryOne[model.Service](ctx, p.db, "get service", sql, id)
}

// CreateService inserts svc. ID, status and timestamps are assigned here.
func (p *Postgres) CreateService(ctx context.Context, svc model.Service) (model.Service, error) {
	if svc.Status == "" {
		svc.Status = model.ServiceUnknown
	}
	sql := `INSERT INTO services (id, name, description, repository_url, team_id, environment, aws_region, status, health_check)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + serviceColumns
	return queryOne[model.Service](ctx, p.db, "create service", sql,
		uuid.New(), svc.Name, svc.Description, svc.RepositoryURL, svc.TeamID,
		svc.Environment, svc.AWSRegion, svc.Status, svc.HealthCheck)
}

// UpdateService applies patch to the service with id.
func (p *Postgres) UpdateService(ctx context.Context, id uuid.UUID, patch ServicePatch) (model.Service, error) {
	sql := `UPDATE services SET
			name = COALESCE($2, name),
			description = COALESCE($3, description),
			repository_url = COALESCE($4, repository_url),
			team_id = COALESCE($5, team_id),
			environment = COALESCE($6, environment),
			aws_region = COALESCE($7, aws_region),
			status = COALESCE($8, status),
			health_check = COALESCE($9::jsonb, health_check),
			updated_at = now()
		WHERE id = $1
		RETURNING ` + serviceColumns
	return queryOne[model.Service](ctx, p.db, "update service", sql, id,
		patch.Name, patch.Description, patch.RepositoryURL, patch.TeamID,
		patch.Environment, patch.AWSRegion, patch.Status, patch.HealthCheck)
}

// DeleteService removes a service. Its deployments go with it.
func (p *Postgres) DeleteService(ctx context.Context, id uuid.UUID) error {
	return p.deleteByID(ctx, "services", id)
}

// -----------------------------------------------------------------------------
// Deployments
// -----------------------------------------------------------------------------

// ListDeployments returns deployments matching f, newest first.
func (p *Postgres) ListDeployments(ctx context.Context, f DeploymentFilter) ([]model.Deployment, error) {
	var w where
	if f.ServiceID != nil {
		w.add("service_id", *f.ServiceID)
	}
	if f.Status != nil {
		w.add("status", *f.Status)
	}
	sql, args := w.build(`SELECT `+deploymentColumns+` FROM deployments`, "started_at DESC", f.Page)
	return queryAll[model.Deployment](ctx, p.db, "list deployments", sql, args...)
}

// GetDeployment returns one deployment.
func (p *Postgres) GetDeployment(ctx context.Context, id uuid.UUID) (model.Deployment, error) {
	sql := `SELECT ` + deploymentColumns + ` FROM deployments WHERE id = $1`
	return queryOne[model.Deployment](ctx, p.db, "get deployment", sql, id)
}

// CreateDeployment records a deployment. A missing service is ErrNotFound.
func (p *Postgres) CreateDeployment(ctx context.Context, d model.Deployment) (model.Deployment, error) {
	if d.Status == "" {
		d.Status = model.DeploymentPending
	}
	sql := `INSERT INTO deployments (id, service_id, version, environment, status, commit_sha, deployed_by, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), CASE WHEN $8 THEN now() END)
		RETURNING ` + deploymentColumns
	return queryOne[model.Deployment](ctx, p.db, "create deployment", sql,
		uuid.New(), d.ServiceID, d.Version, d.Environment, d.Status,
		d.CommitSHA, d.DeployedBy, d.Status.IsTerminal())
}

// -----------------------------------------------------------------------------
// Infrastructure resources
// -----------------------------------------------------------------------------

// ListResources returns resources matching f, newest first.
func (p *Postgres) ListResources(ctx context.Context, f ResourceFilter) ([]model.InfrastructureResource, error) {
	var w where
	if f.ServiceID != nil {
		w.add("service_id", *f.ServiceID)
	}
	if f.ResourceType != nil {
		w.add("resource_type", *f.ResourceType)
	}
	if f.Region != nil {
		w.add("region", *f.Region)
	}
	sql, args := w.build(`SELECT `+resourceColumns+` FROM infrastructure_resources`, "created_at DESC", f.Page)
	return queryAll[model.InfrastructureResource](ctx, p.db, "list resources", sql, args...)
}

// GetResource returns one resource.
func (p *Postgres) GetResource(ctx context.Context, id uuid.UUID) (model.InfrastructureResource, error) {
	sql := `SELECT ` + resourceColumns + ` FROM infrastructure_resources WHERE id = $1`
	return queryOne[model.InfrastructureResource](ctx, p.db, "get resource", sql, id)
}

// CreateResource registers a resource. The AWS resource ID is unique per type.
func (p *Postgres) CreateResource(ctx context.Context, r model.InfrastructureResource) (model.InfrastructureResource, error) {
	if r.Status == "" {
		r.Status = "unknown"
	}
	if r.Configuration == nil {
		r.Configuration = map[string]any{}
	}
	sql := `INSERT INTO infrastructure_resources (id, service_id, resource_type, resource_id, name, region, status, configuration)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + resourceColumns
	return queryOne[model.InfrastructureResource](ctx, p.db, "create resource", sql,
		uuid.New(), r.ServiceID, r.ResourceType, r.ResourceID, r.Name, r.Region, r.Status, r.Configuration)
}

// DeleteResource removes a resource.
func (p *Postgres) DeleteResource(ctx context.Context, id uuid.UUID) error {
	return p.deleteByID(ctx, "infrastructure_resources", id)
}

// -----------------------------------------------------------------------------
// Teams
// -----------------------------------------------------------------------------

// ListTeams returns teams ordered by name.
func (p *Postgres) ListTeams(ctx context.Context, page model.Page) ([]model.Team, error) {
	sql := `SELECT ` + teamColumns + ` FROM teams ORDER BY name LIMIT $1 OFFSET $2`
	return queryAll[model.Team](ctx, p.db, "list teams", sql, page.Limit, page.Offset)
}

// GetTeam returns one team.
func (p *Postgres) GetTeam(ctx context.Context, id uuid.UUID) (model.Team, error) {
	sql := `SELECT ` + teamColumns + ` FROM teams WHERE id = $1`
	return queryOne[model.Team](ctx, p.db, "get team", sql, id)
}

// CreateTeam inserts a team. Team names are unique.
func (p *Postgres) CreateTeam(ctx context.Context, t model.Team) (model.Team, error) {
	sql := `INSERT INTO teams (id, name, description, email, slack_url)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + teamColumns
	return queryOne[model.Team](ctx, p.db, "create team", sql,
		uuid.New(), t.Name, t.Description, t.Email, t.SlackURL)
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func (p *Postgres) deleteByID(ctx context.Context, table string, id uuid.UUID) error {
	tag, err := p.db.Exec(ctx, `DELETE FROM `+table+` WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete from %s: %w", table, mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	p.logger.Debug("row deleted", "table", table, "id", id)
	return nil
}

func queryAll[T any](ctx context.Context, db DB, op, sql string, args ...any) ([]T, error) {
	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapError(err))
	}
	out, err := pgx.CollectRows(rows, pgx.RowToStructByName[T])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapError(err))
	}
	return out, nil
}

func queryOne[T any](ctx context.Context, db DB, op, sql string, args ...any) (T, error) {
	var zero T
	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return zero, fmt.Errorf("%s: %w", op, mapError(err))
	}
	out, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[T])
	if err != nil {
		return zero, fmt.Errorf("%s: %w", op, mapError(err))
	}
	return out, nil
}

// mapError translates driver errors into store sentinels.
func mapError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
		case codeForeignKeyViolation:
			return fmt.Errorf("%w: %s", ErrNotFound, pgErr.ConstraintName)
		}
	}
	return err
}

// where accumulates equality filters as positional parameters.
type where struct {
	clauses []string
	args    []any
}

func (w *where) add(column string, value any) {
	w.args = append(w.args, value)
	w.clauses = append(w.clauses, fmt.Sprintf("%s = $%d", column, len(w.args)))
}

func (w *where) build(base, orderBy string, page model.Page) (string, []any) {
	var b strings.Builder
	b.WriteString(base)
	if len(w.clauses) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(w.clauses, " AND "))
	}
	args := append(w.args, page.Limit, page.Offset)
	fmt.Fprintf(&b, " ORDER BY %s LIMIT $%d OFFSET $%d", orderBy, len(args)-1, len(args))
	return b.String(), args
}
