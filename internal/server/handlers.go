package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/infrawatch/infrawatch/internal/auth"
	"github.com/infrawatch/infrawatch/internal/events"
	"github.com/infrawatch/infrawatch/internal/model"
	"github.com/infrawatch/infrawatch/internal/store"
	"github.com/infrawatch/infrawatch/internal/validation"
	"github.com/infrawatch/infrawatch/internal/version"
)

// -----------------------------------------------------------------------------
// Health
// -----------------------------------------------------------------------------

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	health := struct {
		Status     string         `json:"status"`
		Version    string         `json:"version"`
		Components map[string]any `json:"components"`
	}{
		Status:     "healthy",
		Version:    version.Current().Version,
		Components: make(map[string]any),
	}

	if err := s.store.Ping(ctx); err != nil {
		health.Status = "unhealthy"
		health.Components["database"] = map[string]string{
			"status": "disconnected",
			"error":  err.Error(),
		}
	} else {
		health.Components["database"] = "connected"
	}

	w.Header().Set("Content-Type", "application/json")
	if health.Status == "unhealthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(health)
}

// -----------------------------------------------------------------------------
// Services
// -----------------------------------------------------------------------------

func (s *Server) listServices(w http.ResponseWriter, r *http.Request) {
	q, _ := validation.QueryFrom[validation.PaginationQuery](r)
	page := model.PageOf(q.Limit, q.Offset)

	items, err := s.store.ListServices(r.Context(), page)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeList(w, items, page)
}

func (s *Server) getService(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	svc, err := s.store.GetService(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, svc)
}

func (s *Server) createService(w http.ResponseWriter, r *http.Request) {
	req, _ := validation.BodyFrom[validation.CreateServiceRequest](r)

	teamID, err := optionalUUID(req.TeamID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	svc, err := s.store.CreateService(r.Context(), model.Service{
		Name:          req.Name,
		Description:   req.Description,
		RepositoryURL: req.RepositoryURL,
		TeamID:        teamID,
		Environment:   model.Environment(req.Environment),
		AWSRegion:     req.AWSRegion,
		HealthCheck:   healthCheck(req.HealthCheck),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.logger.Info("service created", "id", svc.ID, "name", svc.Name)
	s.publish(events.NewEvent(events.ServiceCreated, svc.ID.String(), svc))
	writeData(w, http.StatusCreated, svc)
}

func (s *Server) updateService(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	req, _ := validation.BodyFrom[validation.UpdateServiceRequest](r)
	if req.Empty() {
		validation.WriteError(w, &validation.Error{Fields: []validation.FieldError{
			{Message: "At least one field must be provided"},
		}})
		return
	}

	teamID, err := optionalUUID(req.TeamID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	patch := store.ServicePatch{
		Name:          req.Name,
		Description:   req.Description,
		RepositoryURL: req.RepositoryURL,
		TeamID:        teamID,
		AWSRegion:     req.AWSRegion,
		HealthCheck:   healthCheck(req.HealthCheck),
	}
	if req.Environment != nil {
		env := model.Environment(*req.Environment)
		patch.Environment = &env
	}
	if req.Status != nil {
		status := model.ServiceStatus(*req.Status)
		patch.Status = &status
	}

	svc, err := s.store.UpdateService(r.Context(), id, patch)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.publish(events.NewEvent(events.ServiceUpdated, svc.ID.String(), svc))
	writeData(w, http.StatusOK, svc)
}

func (s *Server) deleteService(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.store.DeleteService(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.logger.Info("service deleted", "id", id)
	s.publish(events.NewEvent(events.ServiceDeleted, id.String(), nil))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listServiceDeployments(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, err := s.store.GetService(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}

	q, _ := validation.QueryFrom[validation.PaginationQuery](r)
	page := model.PageOf(q.Limit, q.Offset)

	items, err := s.store.ListDeployments(r.Context(), store.DeploymentFilter{Page: page, ServiceID: &id})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeList(w, items, page)
}

// -----------------------------------------------------------------------------
// Deployments
// -----------------------------------------------------------------------------

func (s *Server) listDeployments(w http.ResponseWriter, r *http.Request) {
	q, _ := validation.QueryFrom[validation.DeploymentListQuery](r)
	f := store.DeploymentFilter{Page: model.PageOf(q.Limit, q.Offset)}

	serviceID, err := optionalUUID(q.ServiceID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	f.ServiceID = serviceID
	if q.Status != nil {
		status := model.DeploymentStatus(*q.Status)
		f.Status = &status
	}

	items, err := s.store.ListDeployments(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeList(w, items, f.Page)
}

func (s *Server) getDeployment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	d, err := s.store.GetDeployment(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, d)
}

func (s *Server) createDeployment(w http.ResponseWriter, r *http.Request) {
	req, _ := validation.BodyFrom[validation.CreateDeploymentRequest](r)

	serviceID, err := uuid.Parse(req.ServiceID)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("parse service_id: %w", err))
		return
	}

	d := model.Deployment{
		ServiceID:   serviceID,
		Version:     req.Version,
		Environment: model.Environment(req.Environment),
		CommitSHA:   req.CommitSHA,
		DeployedBy:  req.DeployedBy,
	}
	if req.Status != nil {
		d.Status = model.DeploymentStatus(*req.Status)
	}
	if d.DeployedBy == nil {
		if claims, ok := auth.ClaimsFrom(r.Context()); ok && claims.Subject != "" {
			d.DeployedBy = &claims.Subject
		}
	}

	d, err = s.store.CreateDeployment(r.Context(), d)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.logger.Info("deployment recorded",
		"id", d.ID,
		"service_id", d.ServiceID,
		"version", d.Version,
		"status", d.Status,
	)
	s.publish(events.NewEvent(events.DeploymentCreated, d.ID.String(), d))
	writeData(w, http.StatusCreated, d)
}

// -----------------------------------------------------------------------------
// Infrastructure resources
// -----------------------------------------------------------------------------

func (s *Server) listResources(w http.ResponseWriter, r *http.Request) {
	q, _ := validation.QueryFrom[validation.ResourceListQuery](r)
	f := store.ResourceFilter{Page: model.PageOf(q.Limit, q.Offset), Region: q.Region}

	serviceID, err := optionalUUID(q.ServiceID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	f.ServiceID = serviceID
	if q.ResourceType != nil {
		rt := model.ResourceType(*q.ResourceType)
		f.ResourceType = &rt
	}

	items, err := s.store.ListResources(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeList(w, items, f.Page)
}

func (s *Server) getResource(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.store.GetResource(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

func (s *Server) createResource(w http.ResponseWriter, r *http.Request) {
	req, _ := validation.BodyFrom[validation.CreateResourceRequest](r)

	serviceID, err := optionalUUID(req.ServiceID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res := model.InfrastructureResource{
		ServiceID:     serviceID,
		ResourceType:  model.ResourceType(req.ResourceType),
		ResourceID:    req.ResourceID,
		Name:          req.Name,
		Region:        req.Region,
		Configuration: req.Configuration,
	}
	if req.Status != nil {
		res.Status = *req.Status
	}

	res, err = s.store.CreateResource(r.Context(), res)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.publish(events.NewEvent(events.ResourceCreated, res.ID.String(), res))
	writeData(w, http.StatusCreated, res)
}

func (s *Server) deleteResource(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.store.DeleteResource(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.publish(events.NewEvent(events.ResourceDeleted, id.String(), nil))
	w.WriteHeader(http.StatusNoContent)
}

// -----------------------------------------------------------------------------
// Teams
// -----------------------------------------------------------------------------

func (s *Server) listTeams(w http.ResponseWriter, r *http.Request) {
	q, _ := validation.QueryFrom[validation.PaginationQuery](r)
	page := model.PageOf(q.Limit, q.Offset)

	items, err := s.store.ListTeams(r.Context(), page)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeList(w, items, page)
}

func (s *Server) getTeam(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	t, err := s.store.GetTeam(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, t)
}

func (s *Server) createTeam(w http.ResponseWriter, r *http.Request) {
	req, _ := validation.BodyFrom[validation.CreateTeamRequest](r)

	t, err := s.store.CreateTeam(r.Context(), model.Team{
		Name:        req.Name,
		Description: req.Description,
		Email:       req.Email,
		SlackURL:    req.SlackURL,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.publish(events.NewEvent(events.TeamCreated, t.ID.String(), t))
	writeData(w, http.StatusCreated, t)
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

// pathID returns the {id} validated by the Params middleware.
func pathID(r *http.Request) (uuid.UUID, error) {
	p, ok := validation.ParamsFrom[validation.IDParams](r)
	if !ok {
		return uuid.Nil, fmt.Errorf("path id not validated")
	}
	return uuid.Parse(p.ID)
}

func optionalUUID(s *string) (*uuid.UUID, error) {
	if s == nil {
		return nil, nil
	}
	id, err := uuid.Parse(*s)
	if err != nil {
		return nil, fmt.Errorf("parse uuid: %w", err)
	}
	return &id, nil
}

// healthCheck fills probe defaults.
func healthCheck(in *validation.HealthCheckInput) *model.HealthCheck {
	if in == nil {
		return nil
	}
	hc := &model.HealthCheck{
		Path:            in.Path,
		IntervalSeconds: model.DefaultHealthCheckInterval,
		ExpectedStatus:  model.DefaultHealthCheckStatus,
	}
	if in.IntervalSeconds != nil {
		hc.IntervalSeconds = *in.IntervalSeconds
	}
	if in.ExpectedStatus != nil {
		hc.ExpectedStatus = *in.ExpectedStatus
	}
	return hc
}
