// Package validation checks inbound request bodies, query strings and path
// parameters against statically declared schemas before handlers run.
//
// A schema is a struct type. Field names come from `json` tags and constraints
// from `validate` tags (github.com/go-playground/validator/v10). Query and path
// values are coerced from strings with github.com/go-viper/mapstructure/v2, so
// `?limit=10` arrives in a handler as an int.
//
// A request that violates its schema is answered with HTTP 400 and
//
//	{"success": false, "error": "Validation failed", "details": "name: Required, aws_region: Invalid AWS region"}
//
// where details lists every violation as "<dot.path>: <message>" in field
// declaration order. Any other failure is handed to the caller's error handler.
package validation
