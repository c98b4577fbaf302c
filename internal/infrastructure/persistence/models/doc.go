// Package models contains the GORM persistence models behind the domain
// repositories. Domain types carry no ORM tags; each model converts with
// ToDomain and FromDomain.
//
// Models avoid database-specific column defaults so the same definitions
// run on PostgreSQL and on in-memory SQLite in tests. The PostgreSQL schema
// itself is owned by the SQL migrations.
//
//   - sync.go: sync queue records, entity configs, ERP connections
//   - connector.go: API connectors, staging, pull and export logs
//   - webhook.go: webhooks, delivery logs, retry schedule
//   - hub.go: documents and master parameters
package models
