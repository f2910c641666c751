package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/infrawatch/infrawatch/internal/model"
	"github.com/infrawatch/infrawatch/internal/validation"
)

// ListServices fetches a page of services.
func (c *Client) ListServices(ctx context.Context, opts ListOptions) (*ListResult[model.Service], error) {
	env, err := get[[]model.Service](ctx, c, "/services", opts.query())
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	return listResult(env), nil
}

// GetService fetches a single service by ID.
func (c *Client) GetService(ctx context.Context, id string) (*model.Service, error) {
	env, err := get[model.Service](ctx, c, "/services/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, fmt.Errorf("get service %s: %w", id, err)
	}
	return &env.Data, nil
}

// CreateService registers a service.
func (c *Client) CreateService(ctx context.Context, req validation.CreateServiceRequest) (*model.Service, error) {
	svc, err := send[model.Service](ctx, c, http.MethodPost, "/services", req)
	if err != nil {
		return nil, fmt.Errorf("create service: %w", err)
	}
	return &svc, nil
}

// ListDeployments fetches a page of deployments.
func (c *Client) ListDeployments(ctx context.Context, opts DeploymentListOptions) (*ListResult[model.Deployment], error) {
	q := opts.query()
	if opts.ServiceID != "" {
		q.Set("service_id", opts.ServiceID)
	}
	if opts.Status != "" {
		q.Set("status", opts.Status)
	}

	env, err := get[[]model.Deployment](ctx, c, "/deployments", q)
	if err != nil {
		return nil, fmt.Errorf("list deployments: %w", err)
	}
	return listResult(env), nil
}

// ListResources fetches a page of infrastructure resources.
func (c *Client) ListResources(ctx context.Context, opts ResourceListOptions) (*ListResult[model.InfrastructureResource], error) {
	q := opts.query()
	if opts.ServiceID != "" {
		q.Set("service_id", opts.ServiceID)
	}
	if opts.ResourceType != "" {
		q.Set("resource_type", opts.ResourceType)
	}
	if opts.Region != "" {
		q.Set("region", opts.Region)
	}

	env, err := get[[]model.InfrastructureResource](ctx, c, "/resources", q)
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	return listResult(env), nil
}

// ListTeams fetches a page of teams.
func (c *Client) ListTeams(ctx context.Context, opts ListOptions) (*ListResult[model.Team], error) {
	env, err := get[[]model.Team](ctx, c, "/teams", opts.query())
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	return listResult(env), nil
}

func listResult[T any](env envelope[[]T]) *ListResult[T] {
	res := &ListResult[T]{Items: env.Data}
	if env.Pagination != nil {
		res.Pagination = *env.Pagination
	}
	return res
}
