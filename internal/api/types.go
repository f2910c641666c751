package api

import (
	"net/url"
	"strconv"
)

// Pagination describes the window of a list response.
type Pagination struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Count  int `json:"count"`
}

// ListResult is one page of a list endpoint.
type ListResult[T any] struct {
	Items      []T
	Pagination Pagination
}

// ListOptions pages a list call. Zero values use server defaults.
type ListOptions struct {
	Limit  int
	Offset int
}

func (o ListOptions) query() url.Values {
	q := url.Values{}
	if o.Limit > 0 {
		q.Set("limit", strconv.Itoa(o.Limit))
	}
	if o.Offset > 0 {
		q.Set("offset", strconv.Itoa(o.Offset))
	}
	return q
}

// DeploymentListOptions filters ListDeployments.
type DeploymentListOptions struct {
	ListOptions
	ServiceID string
	Status    string
}

// ResourceListOptions filters ListResources.
type ResourceListOptions struct {
	ListOptions
	ServiceID    string
	ResourceType string
	Region       string
}
