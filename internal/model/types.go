package model

import (
	"time"

	"github.com/google/uuid"
)

// Environment is the deployment stage a service or deployment targets.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// ServiceStatus is the last observed health of a service.
type ServiceStatus string

const (
	ServiceHealthy  ServiceStatus = "healthy"
	ServiceDegraded ServiceStatus = "degraded"
	ServiceDown     ServiceStatus = "down"
	ServiceUnknown  ServiceStatus = "unknown"
)

// DeploymentStatus tracks a rollout from creation to completion.
type DeploymentStatus string

const (
	DeploymentPending    DeploymentStatus = "pending"
	DeploymentInProgress DeploymentStatus = "in_progress"
	DeploymentSucceeded  DeploymentStatus = "succeeded"
	DeploymentFailed     DeploymentStatus = "failed"
	DeploymentRolledBack DeploymentStatus = "rolled_back"
)

// IsTerminal reports whether no further status changes are expected.
func (s DeploymentStatus) IsTerminal() bool {
	return s == DeploymentSucceeded || s == DeploymentFailed || s == DeploymentRolledBack
}

// ResourceType is the AWS service backing an infrastructure resource.
type ResourceType string

const (
	ResourceEC2        ResourceType = "ec2"
	ResourceRDS        ResourceType = "rds"
	ResourceLambda     ResourceType = "lambda"
	ResourceS3         ResourceType = "s3"
	ResourceECS        ResourceType = "ecs"
	ResourceEKS        ResourceType = "eks"
	ResourceELB        ResourceType = "elb"
	ResourceDynamoDB   ResourceType = "dynamodb"
	ResourceSQS        ResourceType = "sqs"
	ResourceSNS        ResourceType = "sns"
	ResourceCloudFront ResourceType = "cloudfront"
)

// -----------------------------------------------------------------------------
// Relational Types
// -----------------------------------------------------------------------------

// Team owns services and receives their alerts.
type Team struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description *string   `json:"description,omitempty" db:"description"`
	Email       string    `json:"email" db:"email"`
	SlackURL    *string   `json:"slack_url,omitempty" db:"slack_url"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// Service is a monitored application.
type Service struct {
	ID            uuid.UUID     `json:"id" db:"id"`
	Name          string        `json:"name" db:"name"`
	Description   *string       `json:"description,omitempty" db:"description"`
	RepositoryURL *string       `json:"repository_url,omitempty" db:"repository_url"`
	TeamID        *uuid.UUID    `json:"team_id,omitempty" db:"team_id"`
	Environment   Environment   `json:"environment" db:"environment"`
	AWSRegion     string        `json:"aws_region" db:"aws_region"`
	Status        ServiceStatus `json:"status" db:"status"`
	HealthCheck   *HealthCheck  `json:"health_check,omitempty" db:"health_check"` // JSONB
	CreatedAt     time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at" db:"updated_at"`
}

// HealthCheck is the HTTP probe configured for a service.
type HealthCheck struct {
	Path            string `json:"path"`
	IntervalSeconds int    `json:"interval_seconds"`
	ExpectedStatus  int    `json:"expected_status"`
}

// Health check defaults applied when the request omits them.
const (
	DefaultHealthCheckInterval = 60
	DefaultHealthCheckStatus   = 200
)

// Deployment is a single rollout of a service version.
type Deployment struct {
	ID          uuid.UUID        `json:"id" db:"id"`
	ServiceID   uuid.UUID        `json:"service_id" db:"service_id"`
	Version     string           `json:"version" db:"version"`
	Environment Environment      `json:"environment" db:"environment"`
	Status      DeploymentStatus `json:"status" db:"status"`
	CommitSHA   *string          `json:"commit_sha,omitempty" db:"commit_sha"`
	DeployedBy  *string          `json:"deployed_by,omitempty" db:"deployed_by"`
	StartedAt   time.Time        `json:"started_at" db:"started_at"`
	FinishedAt  *time.Time       `json:"finished_at,omitempty" db:"finished_at"`
}

// InfrastructureResource is an AWS resource attached to a service.
type InfrastructureResource struct {
	ID            uuid.UUID      `json:"id" db:"id"`
	ServiceID     *uuid.UUID     `json:"service_id,omitempty" db:"service_id"`
	ResourceType  ResourceType   `json:"resource_type" db:"resource_type"`
	ResourceID    string         `json:"resource_id" db:"resource_id"` // AWS identifier or ARN
	Name          string         `json:"name" db:"name"`
	Region        string         `json:"region" db:"region"`
	Status        string         `json:"status" db:"status"`
	Configuration map[string]any `json:"configuration,omitempty" db:"configuration"` // JSONB
	CreatedAt     time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at" db:"updated_at"`
}

// -----------------------------------------------------------------------------
// Query Types
// -----------------------------------------------------------------------------

// Page selects a window of a list result.
type Page struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// DefaultPageLimit is used when a list request omits limit.
const DefaultPageLimit = 20

// PageOf builds a Page from optional values, applying DefaultPageLimit.
func PageOf(limit, offset *int) Page {
	p := Page{Limit: DefaultPageLimit}
	if limit != nil {
		p.Limit = *limit
	}
	if offset != nil {
		p.Offset = *offset
	}
	return p
}
