// Package store persists the REST API's entities.
//
// Postgres is the production implementation. Memory backs tests and the
// serve command's --in-memory mode.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/infrawatch/infrawatch/internal/model"
)

var (
	// ErrNotFound is returned when an entity, or an entity it references,
	// does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a write violates a uniqueness constraint.
	ErrConflict = errors.New("already exists")
)

// Store is the persistence contract of the REST API.
type Store interface {
	Ping(ctx context.Context) error

	ListServices(ctx context.Context, page model.Page) ([]model.Service, error)
	GetService(ctx context.Context, id uuid.UUID) (model.Service, error)
	CreateService(ctx context.Context, svc model.Service) (model.Service, error)
	UpdateService(ctx context.Context, id uuid.UUID, patch ServicePatch) (model.Service, error)
	DeleteService(ctx context.Context, id uuid.UUID) error

	ListDeployments(ctx context.Context, f DeploymentFilter) ([]model.Deployment, error)
	GetDeployment(ctx context.Context, id uuid.UUID) (model.Deployment, error)
	CreateDeployment(ctx context.Context, d model.Deployment) (model.Deployment, error)

	ListResources(ctx context.Context, f ResourceFilter) ([]model.InfrastructureResource, error)
	GetResource(ctx context.Context, id uuid.UUID) (model.InfrastructureResource, error)
	CreateResource(ctx context.Context, r model.InfrastructureResource) (model.InfrastructureResource, error)
	DeleteResource(ctx context.Context, id uuid.UUID) error

	ListTeams(ctx context.Context, page model.Page) ([]model.Team, error)
	GetTeam(ctx context.Context, id uuid.UUID) (model.Team, error)
	CreateTeam(ctx context.Context, t model.Team) (model.Team, error)
}

// ServicePatch holds the fields of a partial service update. Nil fields are
// left unchanged.
type ServicePatch struct {
	Name          *string
	Description   *string
	RepositoryURL *string
	TeamID        *uuid.UUID
	Environment   *model.Environment
	AWSRegion     *string
	Status        *model.ServiceStatus
	HealthCheck   *model.HealthCheck
}

// DeploymentFilter narrows ListDeployments.
type DeploymentFilter struct {
	model.Page
	ServiceID *uuid.UUID
	Status    *model.DeploymentStatus
}

// ResourceFilter narrows ListResources.
type ResourceFilter struct {
	model.Page
	ServiceID    *uuid.UUID
	ResourceType *model.ResourceType
	Region       *string
}

// apply copies the non-nil fields of p onto svc.
func (p ServicePatch) apply(svc *model.Service) {
	if p.Name != nil {
		svc.Name = *p.Name
	}
	if p.Description != nil {
		svc.Description = p.Description
	}
	if p.RepositoryURL != nil {
		svc.RepositoryURL = p.RepositoryURL
	}
	if p.TeamID != nil {
		svc.TeamID = p.TeamID
	}
	if p.Environment != nil {
		svc.Environment = *p.Environment
	}
	if p.AWSRegion != nil {
		svc.AWSRegion = *p.AWSRegion
	}
	if p.Status != nil {
		svc.Status = *p.Status
	}
	if p.HealthCheck != nil {
		svc.HealthCheck = p.HealthCheck
	}
}

var (
	_ Store = (*Postgres)(nil)
	_ Store = (*Memory)(nil)
)
