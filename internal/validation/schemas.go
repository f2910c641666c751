package validation

// Schemas for the REST API. Field order is significant: violations are
// reported in declaration order.

// HealthCheckInput configures the HTTP probe run against a service.
type HealthCheckInput struct {
	Path            string `json:"path" validate:"required,startswith=/,max=200"`
	IntervalSeconds *int   `json:"interval_seconds,omitempty" validate:"omitempty,min=10,max=3600"`
	ExpectedStatus  *int   `json:"expected_status,omitempty" validate:"omitempty,min=100,max=599"`
}

// CreateServiceRequest is the body of POST /services.
type CreateServiceRequest struct {
	Name          string            `json:"name" validate:"required,min=1,max=100"`
	Description   *string           `json:"description,omitempty" validate:"omitempty,max=500"`
	RepositoryURL *string           `json:"repository_url,omitempty" validate:"omitempty,url"`
	TeamID        *string           `json:"team_id,omitempty" validate:"omitempty,uuid"`
	Environment   string            `json:"environment" validate:"required,oneof=development staging production"`
	AWSRegion     string            `json:"aws_region" validate:"required,awsregion"`
	HealthCheck   *HealthCheckInput `json:"health_check,omitempty" validate:"omitempty"`
}

// UpdateServiceRequest is the body of PUT /services/{id}. Every field is optional.
type UpdateServiceRequest struct {
	Name          *string           `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
	Description   *string           `json:"description,omitempty" validate:"omitempty,max=500"`
	RepositoryURL *string           `json:"repository_url,omitempty" validate:"omitempty,url"`
	TeamID        *string           `json:"team_id,omitempty" validate:"omitempty,uuid"`
	Environment   *string           `json:"environment,omitempty" validate:"omitempty,oneof=development staging production"`
	AWSRegion     *string           `json:"aws_region,omitempty" validate:"omitempty,awsregion"`
	Status        *string           `json:"status,omitempty" validate:"omitempty,oneof=healthy degraded down unknown"`
	HealthCheck   *HealthCheckInput `json:"health_check,omitempty" validate:"omitempty"`
}

// Empty reports whether the update changes nothing.
func (u UpdateServiceRequest) Empty() bool {
	return u.Name == nil && u.Description == nil && u.RepositoryURL == nil && u.TeamID == nil &&
		u.Environment == nil && u.AWSRegion == nil && u.Status == nil && u.HealthCheck == nil
}

// CreateDeploymentRequest is the body of POST /deployments.
type CreateDeploymentRequest struct {
	ServiceID   string  `json:"service_id" validate:"required,uuid"`
	Version     string  `json:"version" validate:"required,min=1,max=50"`
	Environment string  `json:"environment" validate:"required,oneof=development staging production"`
	Status      *string `json:"status,omitempty" validate:"omitempty,oneof=pending in_progress succeeded failed rolled_back"`
	CommitSHA   *string `json:"commit_sha,omitempty" validate:"omitempty,commitsha"`
	DeployedBy  *string `json:"deployed_by,omitempty" validate:"omitempty,max=100"`
}

// CreateResourceRequest is the body of POST /resources.
type CreateResourceRequest struct {
	ServiceID     *string        `json:"service_id,omitempty" validate:"omitempty,uuid"`
	ResourceType  string         `json:"resource_type" validate:"required,oneof=ec2 rds lambda s3 ecs eks elb dynamodb sqs sns cloudfront"`
	ResourceID    string         `json:"resource_id" validate:"required,min=1,max=255"`
	Name          string         `json:"name" validate:"required,min=1,max=100"`
	Region        string         `json:"region" validate:"required,awsregion"`
	Status        *string        `json:"status,omitempty" validate:"omitempty,max=50"`
	Configuration map[string]any `json:"configuration,omitempty"`
}

// CreateTeamRequest is the body of POST /teams.
type CreateTeamRequest struct {
	Name        string  `json:"name" validate:"required,min=1,max=100"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=500"`
	Email       string  `json:"email" validate:"required,email"`
	SlackURL    *string `json:"slack_url,omitempty" validate:"omitempty,url"`
}

// PaginationQuery is accepted by every list endpoint.
type PaginationQuery struct {
	Limit  *int `json:"limit,omitempty" validate:"omitempty,min=1,max=100"`
	Offset *int `json:"offset,omitempty" validate:"omitempty,min=0"`
}

// DeploymentListQuery filters GET /deployments.
type DeploymentListQuery struct {
	Limit     *int    `json:"limit,omitempty" validate:"omitempty,min=1,max=100"`
	Offset    *int    `json:"offset,omitempty" validate:"omitempty,min=0"`
	ServiceID *string `json:"service_id,omitempty" validate:"omitempty,uuid"`
	Status    *string `json:"status,omitempty" validate:"omitempty,oneof=pending in_progress succeeded failed rolled_back"`
}

// ResourceListQuery filters GET /resources.
type ResourceListQuery struct {
	Limit        *int    `json:"limit,omitempty" validate:"omitempty,min=1,max=100"`
	Offset       *int    `json:"offset,omitempty" validate:"omitempty,min=0"`
	ServiceID    *string `json:"service_id,omitempty" validate:"omitempty,uuid"`
	ResourceType *string `json:"resource_type,omitempty" validate:"omitempty,oneof=ec2 rds lambda s3 ecs eks elb dynamodb sqs sns cloudfront"`
	Region       *string `json:"region,omitempty" validate:"omitempty,awsregion"`
}

// IDParams validates the {id} path parameter.
type IDParams struct {
	ID string `json:"id" validate:"required,uuid"`
}
