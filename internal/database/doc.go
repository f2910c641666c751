// Package database provides the PostgreSQL connection pool behind the REST API.
//
// The pool holds the services, deployments, infrastructure_resources and teams
// tables. Schema creation is handled outside this repository.
package database
