// Package model defines the domain types served by the infrawatch REST API.
//
// All types mirror the PostgreSQL tables services, deployments,
// infrastructure_resources and teams.
//
// Conventions:
//   - IDs: uuid.UUID, generated by the API on create
//   - Timestamps: time.Time in UTC
//   - Enumerations: typed string constants, checked by the validation schemas
package model
