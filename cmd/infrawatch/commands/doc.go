// Package commands implements the infrawatch CLI.
//
//	infrawatch serve --config config.yaml
//	infrawatch watch
//	infrawatch token issue --subject alice@example.com
//	infrawatch get services --limit 50
//	infrawatch version
package commands
