// Package store implements Postgres-backed persistence for every
// component needing durable state (users, alerts, notifications,
// workflow definitions/executions, portfolios, audit log, compliance
// rows). Grounded on the teacher's infrastructure/database package's
// repository shape, re-targeted from Supabase PostgREST HTTP calls to
// direct SQL via jmoiron/sqlx + lib/pq, since spec.md section 6
// specifies a relational store with foreign-key cascades rather than an
// HTTP-fronted PostgREST API.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/stockassistant/orchestrator/internal/config"
)

// DB wraps a sqlx connection pool.
type DB struct {
	*sqlx.DB
}

// Open connects to Postgres using cfg's pool settings.
func Open(cfg config.DatabaseConfig) (*DB, error) {
	db, err := sqlx.Connect("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)
	}

	return &DB{DB: db}, nil
}

// HealthCheck verifies connectivity, used by the HTTP readiness probe.
func (d *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return d.PingContext(ctx)
}

// Repositories bundles every table-scoped repository the composition
// root wires into the rest of the system.
type Repositories struct {
	Users         *UserRepository
	Alerts        *AlertRepository
	Notifications *NotificationRepository
	Workflows     *WorkflowRepository
	Executions    *ExecutionRepository
	Portfolios    *PortfolioRepository
	AuditLog      *AuditLogRepository
	Compliance    *ComplianceRepository
}

// NewRepositories builds every repository over a shared *DB.
func NewRepositories(db *DB) *Repositories {
	return &Repositories{
		Users:         &UserRepository{db: db},
		Alerts:        &AlertRepository{db: db},
		Notifications: &NotificationRepository{db: db},
		Workflows:     &WorkflowRepository{db: db},
		Executions:    &ExecutionRepository{db: db},
		Portfolios:    &PortfolioRepository{db: db},
		AuditLog:      &AuditLogRepository{db: db},
		Compliance:    &ComplianceRepository{db: db},
	}
}
