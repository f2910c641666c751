package store

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/infrawatch/infrawatch/internal/model"
)

// Memory is an in-process Store with the same constraints as the Postgres
// schema: unique service and team names, unique resource IDs per type and
// checked references.
type Memory struct {
	mu          sync.RWMutex
	now         func() time.Time
	last        time.Time
	services    map[uuid.UUID]model.Service
	deployments map[uuid.UUID]model.Deployment
	resources   map[uuid.UUID]model.InfrastructureResource
	teams       map[uuid.UUID]model.Team
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		now:         func() time.Time { return time.Now().UTC() },
		services:    make(map[uuid.UUID]model.Service),
		deployments: make(map[uuid.UUID]model.Deployment),
		resources:   make(map[uuid.UUID]model.InfrastructureResource),
		teams:       make(map[uuid.UUID]model.Team),
	}
}

// Ping always succeeds.
func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) ListServices(_ context.Context, page model.Page) ([]model.Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := slices.Collect(maps.Values(m.services))
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return paginate(all, page), nil
}

func (m *Memory) GetService(_ context.Context, id uuid.UUID) (model.Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	svc, ok := m.services[id]
	if !ok {
		return model.Service{}, ErrNotFound
	}
	return svc, nil
}

func (m *Memory) CreateService(_ context.Context, svc model.Service) (model.Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkService(uuid.Nil, svc); err != nil {
		return model.Service{}, err
	}
	if svc.Status == "" {
		svc.Status = model.ServiceUnknown
	}
	svc.ID = uuid.New()
	svc.CreatedAt = m.next()
	svc.UpdatedAt = svc.CreatedAt
	m.services[svc.ID] = svc
	return svc, nil
}

func (m *Memory) UpdateService(_ context.Context, id uuid.UUID, patch ServicePatch) (model.Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	svc, ok := m.services[id]
	if !ok {
		return model.Service{}, ErrNotFound
	}
	patch.apply(&svc)
	if err := m.checkService(id, svc); err != nil {
		return model.Service{}, err
	}
	svc.UpdatedAt = m.next()
	m.services[id] = svc
	return svc, nil
}

func (m *Memory) DeleteService(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.services[id]; !ok {
		return ErrNotFound
	}
	delete(m.services, id)
	for did, d := range m.deployments {
		if d.ServiceID == id {
			delete(m.deployments, did)
		}
	}
	for rid, r := range m.resources {
		if r.ServiceID != nil && *r.ServiceID == id {
			r.ServiceID = nil
			m.resources[rid] = r
		}
	}
	return nil
}

func (m *Memory) ListDeployments(_ context.Context, f DeploymentFilter) ([]model.Deployment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.Deployment
	for _, d := range m.deployments {
		if f.ServiceID != nil && d.ServiceID != *f.ServiceID {
			continue
		}
		if f.Status != nil && d.Status != *f.Status {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return paginate(out, f.Page), nil
}

func (m *Memory) GetDeployment(_ context.Context, id uuid.UUID) (model.Deployment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.deployments[id]
	if !ok {
		return model.Deployment{}, ErrNotFound
	}
	return d, nil
}

func (m *Memory) CreateDeployment(_ context.Context, d model.Deployment) (model.Deployment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.services[d.ServiceID]; !ok {
		return model.Deployment{}, fmt.Errorf("%w: service %s", ErrNotFound, d.ServiceID)
	}
	if d.Status == "" {
		d.Status = model.DeploymentPending
	}
	d.ID = uuid.New()
	d.StartedAt = m.next()
	if d.Status.IsTerminal() {
		finished := d.StartedAt
		d.FinishedAt = &finished
	}
	m.deployments[d.ID] = d
	return d, nil
}

func (m *Memory) ListResources(_ context.Context, f ResourceFilter) ([]model.InfrastructureResource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.InfrastructureResource
	for _, r := range m.resources {
		if f.ServiceID != nil && (r.ServiceID == nil || *r.ServiceID != *f.ServiceID) {
			continue
		}
		if f.ResourceType != nil && r.ResourceType != *f.ResourceType {
			continue
		}
		if f.Region != nil && r.Region != *f.Region {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, f.Page), nil
}

func (m *Memory) GetResource(_ context.Context, id uuid.UUID) (model.InfrastructureResource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.resources[id]
	if !ok {
		return model.InfrastructureResource{}, ErrNotFound
	}
	return r, nil
}

func (m *Memory) CreateResource(_ context.Context, r model.InfrastructureResource) (model.InfrastructureResource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r.ServiceID != nil {
		if _, ok := m.services[*r.ServiceID]; !ok {
			return model.InfrastructureResource{}, fmt.Errorf("%w: service %s", ErrNotFound, *r.ServiceID)
		}
	}
	for _, existing := range m.resources {
		if existing.ResourceType == r.ResourceType && existing.ResourceID == r.ResourceID {
			return model.InfrastructureResource{}, fmt.Errorf("%w: resource %s/%s", ErrConflict, r.ResourceType, r.ResourceID)
		}
	}
	if r.Status == "" {
		r.Status = "unknown"
	}
	if r.Configuration == nil {
		r.Configuration = map[string]any{}
	}
	r.ID = uuid.New()
	r.CreatedAt = m.next()
	r.UpdatedAt = r.CreatedAt
	m.resources[r.ID] = r
	return r, nil
}

func (m *Memory) DeleteResource(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.resources[id]; !ok {
		return ErrNotFound
	}
	delete(m.resources, id)
	return nil
}

func (m *Memory) ListTeams(_ context.Context, page model.Page) ([]model.Team, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := slices.Collect(maps.Values(m.teams))
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return paginate(all, page), nil
}

func (m *Memory) GetTeam(_ context.Context, id uuid.UUID) (model.Team, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.teams[id]
	if !ok {
		return model.Team{}, ErrNotFound
	}
	return t, nil
}

func (m *Memory) CreateTeam(_ context.Context, t model.Team) (model.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.teams {
		if existing.Name == t.Name {
			return model.Team{}, fmt.Errorf("%w: team %q", ErrConflict, t.Name)
		}
	}
	t.ID = uuid.New()
	t.CreatedAt = m.next()
	t.UpdatedAt = t.CreatedAt
	m.teams[t.ID] = t
	return t, nil
}

// checkService enforces name uniqueness and the team reference. self is the
// ID being updated, or uuid.Nil on create.
func (m *Memory) checkService(self uuid.UUID, svc model.Service) error {
	for id, existing := range m.services {
		if id != self && existing.Name == svc.Name {
			return fmt.Errorf("%w: service %q", ErrConflict, svc.Name)
		}
	}
	if svc.TeamID != nil {
		if _, ok := m.teams[*svc.TeamID]; !ok {
			return fmt.Errorf("%w: team %s", ErrNotFound, *svc.TeamID)
		}
	}
	return nil
}

// next returns a timestamp strictly after the previous one so that
// newest-first ordering is stable.
func (m *Memory) next() time.Time {
	t := m.now()
	if !t.After(m.last) {
		t = m.last.Add(time.Microsecond)
	}
	m.last = t
	return t
}

func paginate[T any](items []T, page model.Page) []T {
	if page.Offset >= len(items) {
		return []T{}
	}
	items = items[page.Offset:]
	if page.Limit > 0 && page.Limit < len(items) {
		items = items[:page.Limit]
	}
	return items
}
