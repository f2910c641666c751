package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/infrawatch/infrawatch/internal/model"
)

func strPtr(s string) *string { return &s }

func seedService(t *testing.T, m *Memory, name string) model.Service {
	t.Helper()
	svc, err := m.CreateService(context.Background(), model.Service{
		Name:        name,
		Environment: model.EnvProduction,
		AWSRegion:   "us-east-1",
	})
	require.NoError(t, err)
	return svc
}

func TestMemory_ServiceLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	svc := seedService(t, m, "checkout")
	assert.NotEqual(t, uuid.Nil, svc.ID)
	assert.Equal(t, model.ServiceUnknown, svc.Status)
	assert.False(t, svc.CreatedAt.IsZero())

	got, err := m.GetService(ctx, svc.ID)
	require.NoError(t, err)
	assert.Equal(t, svc, got)

	status := model.ServiceDegraded
	updated, err := m.UpdateService(ctx, svc.ID, ServicePatch{Status: &status, Description: strPtr("payments")})
	require.NoError(t, err)
	assert.Equal(t, model.ServiceDegraded, updated.Status)
	assert.Equal(t, "payments", *updated.Description)
	assert.Equal(t, "checkout", updated.Name)
	assert.True(t, updated.UpdatedAt.After(svc.UpdatedAt))

	require.NoError(t, m.DeleteService(ctx, svc.ID))
	_, err = m.GetService(ctx, svc.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, m.DeleteService(ctx, svc.ID), ErrNotFound)
}

func TestMemory_ServiceConstraints(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	first := seedService(t, m, "checkout")
	second := seedService(t, m, "search")

	_, err := m.CreateService(ctx, model.Service{Name: "checkout"})
	assert.ErrorIs(t, err, ErrConflict)

	_, err = m.UpdateService(ctx, second.ID, ServicePatch{Name: strPtr(first.Name)})
	assert.ErrorIs(t, err, ErrConflict)

	missingTeam := uuid.New()
	_, err = m.CreateService(ctx, model.Service{Name: "billing", TeamID: &missingTeam})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = m.UpdateService(ctx, uuid.New(), ServicePatch{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_ListServicesNewestFirst(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for i := range 5 {
		seedService(t, m, fmt.Sprintf("svc-%d", i))
	}

	all, err := m.ListServices(ctx, model.Page{Limit: 10})
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "svc-4", all[0].Name)
	assert.Equal(t, "svc-0", all[4].Name)

	page, err := m.ListServices(ctx, model.Page{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "svc-3", page[0].Name)
	assert.Equal(t, "svc-2", page[1].Name)

	empty, err := m.ListServices(ctx, model.Page{Limit: 10, Offset: 50})
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.NotNil(t, empty)
}

func TestMemory_Deployments(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	svc := seedService(t, m, "checkout")
	other := seedService(t, m, "search")

	_, err := m.CreateDeployment(ctx, model.Deployment{ServiceID: uuid.New(), Version: "v1"})
	assert.ErrorIs(t, err, ErrNotFound)

	pending, err := m.CreateDeployment(ctx, model.Deployment{ServiceID: svc.ID, Version: "v1", Environment: model.EnvStaging})
	require.NoError(t, err)
	assert.Equal(t, model.DeploymentPending, pending.Status)
	assert.Nil(t, pending.FinishedAt)

	done, err := m.CreateDeployment(ctx, model.Deployment{ServiceID: svc.ID, Version: "v2", Status: model.DeploymentSucceeded})
	require.NoError(t, err)
	require.NotNil(t, done.FinishedAt)

	_, err = m.CreateDeployment(ctx, model.Deployment{ServiceID: other.ID, Version: "v9"})
	require.NoError(t, err)

	got, err := m.ListDeployments(ctx, DeploymentFilter{Page: model.Page{Limit: 10}, ServiceID: &svc.ID})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "v2", got[0].Version)

	status := model.DeploymentPending
	got, err = m.ListDeployments(ctx, DeploymentFilter{Page: model.Page{Limit: 10}, ServiceID: &svc.ID, Status: &status})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, pending.ID, got[0].ID)

	require.NoError(t, m.DeleteService(ctx, svc.ID))
	_, err = m.GetDeployment(ctx, done.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_Resources(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	svc := seedService(t, m, "checkout")

	r, err := m.CreateResource(ctx, model.InfrastructureResource{
		ServiceID:    &svc.ID,
		ResourceType: model.ResourceEC2,
		ResourceID:   "i-0abc",
		Name:         "web-1",
		Region:       "us-east-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "unknown", r.Status)
	assert.NotNil(t, r.Configuration)

	_, err = m.CreateResource(ctx, model.InfrastructureResource{ResourceType: model.ResourceEC2, ResourceID: "i-0abc"})
	assert.ErrorIs(t, err, ErrConflict)

	_, err = m.CreateResource(ctx, model.InfrastructureResource{ResourceType: model.ResourceS3, ResourceID: "i-0abc", Region: "eu-west-1"})
	require.NoError(t, err)

	region := "eu-west-1"
	got, err := m.ListResources(ctx, ResourceFilter{Page: model.Page{Limit: 10}, Region: &region})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.ResourceS3, got[0].ResourceType)

	got, err = m.ListResources(ctx, ResourceFilter{Page: model.Page{Limit: 10}, ServiceID: &svc.ID})
	require.NoError(t, err)
	require.Len(t, got, 1)

	require.NoError(t, m.DeleteService(ctx, svc.ID))
	detached, err := m.GetResource(ctx, r.ID)
	require.NoError(t, err)
	assert.Nil(t, detached.ServiceID)

	require.NoError(t, m.DeleteResource(ctx, r.ID))
	assert.ErrorIs(t, m.DeleteResource(ctx, r.ID), ErrNotFound)
}

func TestMemory_Teams(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	platform, err := m.CreateTeam(ctx, model.Team{Name: "Platform", Email: "platform@example.com"})
	require.NoError(t, err)
	_, err = m.CreateTeam(ctx, model.Team{Name: "Billing", Email: "billing@example.com"})
	require.NoError(t, err)

	_, err = m.CreateTeam(ctx, model.Team{Name: "Platform", Email: "other@example.com"})
	assert.ErrorIs(t, err, ErrConflict)

	teams, err := m.ListTeams(ctx, model.Page{Limit: 10})
	require.NoError(t, err)
	require.Len(t, teams, 2)
	assert.Equal(t, "Billing", teams[0].Name)

	svc, err := m.CreateService(ctx, model.Service{Name: "api", TeamID: &platform.ID})
	require.NoError(t, err)
	assert.Equal(t, platform.ID, *svc.TeamID)
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		in   error
		want error
	}{
		{"no rows", pgx.ErrNoRows, ErrNotFound},
		{"unique violation", &pgconn.PgError{Code: "23505", ConstraintName: "services_name_key"}, ErrConflict},
		{"foreign key violation", &pgconn.PgError{Code: "23503", ConstraintName: "deployments_service_id_fkey"}, ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, mapError(tt.in), tt.want)
		})
	}

	other := &pgconn.PgError{Code: "42P01"}
	got := mapError(other)
	assert.False(t, errors.Is(got, ErrNotFound) || errors.Is(got, ErrConflict))
	assert.Equal(t, other, got)
}

func TestWhereBuild(t *testing.T) {
	var w where
	w.add("service_id", "abc")
	w.add("status", "pending")

	sql, args := w.build("SELECT * FROM deployments", "started_at DESC", model.Page{Limit: 20, Offset: 40})
	assert.Equal(t,
		"SELECT * FROM deployments WHERE service_id = $1 AND status = $2 ORDER BY started_at DESC LIMIT $3 OFFSET $4",
		sql)
	assert.Equal(t, []any{"abc", "pending", 20, 40}, args)

	var empty where
	sql, args = empty.build("SELECT * FROM teams", "name", model.Page{Limit: 5})
	assert.True(t, strings.HasSuffix(sql, "FROM teams ORDER BY name LIMIT $1 OFFSET $2"))
	assert.Equal(t, []any{5, 0}, args)
}
