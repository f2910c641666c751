// Package api is a client for the infrawatch REST API.
//
// Every call authenticates with a bearer token. Reads are retried with
// jittered exponential backoff on 5xx and 429 responses; writes are not
// retried.
package api
