// Package storage provides storage implementations for schedule persistence.
//
// This package includes:
//   - GormStorage: A GORM-based implementation of core.Storage
//   - Open: builds a GormStorage for SQLite or PostgreSQL from a Config
//   - PoolConfig and PoolOption for connection pool tuning
//
// Every instant is written in UTC. Executions carry a unique index on
// (schedule_id, run_at), so a schedule can never hold two executions for the
// same instant.
//
// Most users should import the root package github.com/jdziat/device-schedules
// which provides NewGormStorage() to create storage instances.
package storage
