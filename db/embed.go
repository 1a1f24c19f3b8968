// Package db embeds the orderdesk PostgreSQL schema.
package db

import _ "embed"

// Schema creates stores, catalog, customers, coupons, orders and API keys.
// Every statement is safe to re-run.
//
//go:embed migrations/001_schema.sql
var Schema string
