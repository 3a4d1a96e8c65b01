// Package models holds the orchestrator's persisted data shapes, shared
// between internal/store (persistence) and every component that reads or
// writes them. Field sets mirror
// original_source/us-stock-assistant/backend/app/models.py's SQLAlchemy
// tables, translated to plain Go structs with jmoiron/sqlx `db` tags.
package models

import "time"

// User is an account holder. Password storage lives behind internal/auth;
// this struct only carries the hash, never a plaintext password.
type User struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// AlertCondition is one of the two predicate directions C6 evaluates.
type AlertCondition string

const (
	ConditionAbove AlertCondition = "above"
	ConditionBelow AlertCondition = "below"
)

// Alert is a user's standing price-threshold watch (C6).
type Alert struct {
	ID                     string         `db:"id" json:"id"`
	UserID                 string         `db:"user_id" json:"user_id"`
	Ticker                 string         `db:"ticker" json:"ticker"`
	Condition              AlertCondition `db:"condition" json:"condition"`
	TargetPrice            float64        `db:"target_price" json:"target_price"`
	NotificationChannels   []string       `db:"-" json:"notification_channels"`
	NotificationChannelsDB string         `db:"notification_channels" json:"-"`
	IsActive               bool           `db:"is_active" json:"is_active"`
	CreatedAt              time.Time      `db:"created_at" json:"created_at"`
	TriggeredAt            *time.Time     `db:"triggered_at" json:"triggered_at,omitempty"`
}

// Notification is an event delivered to a user through one or more
// channels; in-app delivery goes out over the Real-Time Hub (C10).
type Notification struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Type      string    `db:"type" json:"type"`
	Title     string    `db:"title" json:"title"`
	Message   string    `db:"message" json:"message"`
	Data      []byte    `db:"data" json:"data,omitempty"`
	IsRead    bool      `db:"is_read" json:"is_read"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ExecutionMode selects how the Workflow Engine (C8) walks a definition's
// node graph.
type ExecutionMode string

const (
	ExecutionSequential ExecutionMode = "sequential"
	ExecutionParallel   ExecutionMode = "parallel"
)

// WorkflowDefinition is a user-owned, named DAG of agent invocations,
// optionally recurring on a cron schedule via C9.
type WorkflowDefinition struct {
	ID            string        `db:"id" json:"id"`
	UserID        string        `db:"user_id" json:"user_id"`
	Name          string        `db:"name" json:"name"`
	WorkflowType  string        `db:"workflow_type" json:"workflow_type"`
	Definition    []byte        `db:"definition" json:"definition"`
	ExecutionMode ExecutionMode `db:"execution_mode" json:"execution_mode"`
	Schedule      *string       `db:"schedule" json:"schedule,omitempty"`
	IsActive      bool          `db:"is_active" json:"is_active"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updated_at"`
}

// ExecutionStatus is a WorkflowExecution's lifecycle state.
type ExecutionStatus string

const (
	StatusPending   ExecutionStatus = "pending"
	StatusRunning   ExecutionStatus = "running"
	StatusCompleted ExecutionStatus = "completed"
	StatusFailed    ExecutionStatus = "failed"
	StatusCancelled ExecutionStatus = "cancelled"
)

// WorkflowExecution is one run of a WorkflowDefinition.
type WorkflowExecution struct {
	ID            string          `db:"id" json:"id"`
	WorkflowID    string          `db:"workflow_id" json:"workflow_id"`
	Status        ExecutionStatus `db:"status" json:"status"`
	Progress      int             `db:"progress" json:"progress"`
	CurrentNode   *string         `db:"current_node" json:"current_node,omitempty"`
	Results       []byte          `db:"results" json:"results,omitempty"`
	Errors        []byte          `db:"errors" json:"errors,omitempty"`
	ExecutionTime *int            `db:"execution_time" json:"execution_time_ms,omitempty"`
	StartedAt     *time.Time      `db:"started_at" json:"started_at,omitempty"`
	CompletedAt   *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// Portfolio is a user's single tracked holdings container. (expansion:
// supplemented from original_source's Portfolio/StockPosition tables,
// read by the rebalancing agent.)
type Portfolio struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// StockPosition is one holding within a Portfolio.
type StockPosition struct {
	ID            string    `db:"id" json:"id"`
	PortfolioID   string    `db:"portfolio_id" json:"portfolio_id"`
	Ticker        string    `db:"ticker" json:"ticker"`
	Quantity      float64   `db:"quantity" json:"quantity"`
	PurchasePrice float64   `db:"purchase_price" json:"purchase_price"`
	PurchaseDate  time.Time `db:"purchase_date" json:"purchase_date"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// AuditLogEntry is an append-only record of a sensitive user action.
// (expansion: supplemented from original_source's AuditLog table.)
type AuditLogEntry struct {
	ID           string    `db:"id" json:"id"`
	UserID       *string   `db:"user_id" json:"user_id,omitempty"`
	Action       string    `db:"action" json:"action"`
	ResourceType string    `db:"resource_type" json:"resource_type"`
	ResourceID   *string   `db:"resource_id" json:"resource_id,omitempty"`
	Details      []byte    `db:"details" json:"details,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// PolicyType distinguishes the two acceptable policy acceptance rows.
type PolicyType string

const (
	PolicyPrivacy PolicyType = "privacy_policy"
	PolicyTerms   PolicyType = "terms_of_service"
)

// PolicyAcceptance records that a user accepted a versioned policy
// document. (expansion: schema-completeness row, no business logic.)
type PolicyAcceptance struct {
	ID            string     `db:"id" json:"id"`
	UserID        string     `db:"user_id" json:"user_id"`
	PolicyType    PolicyType `db:"policy_type" json:"policy_type"`
	PolicyVersion string     `db:"policy_version" json:"policy_version"`
	AcceptedAt    time.Time  `db:"accepted_at" json:"accepted_at"`
}

// DeletionStatus is a DataDeletionRequest's lifecycle state.
type DeletionStatus string

const (
	DeletionPending   DeletionStatus = "pending"
	DeletionCompleted DeletionStatus = "completed"
	DeletionCancelled DeletionStatus = "cancelled"
)

// DataDeletionRequest tracks a pending account-deletion request.
// (expansion: schema-completeness row, no business logic.)
type DataDeletionRequest struct {
	ID                     string         `db:"id" json:"id"`
	UserID                 *string        `db:"user_id" json:"user_id,omitempty"`
	UserEmail              string         `db:"user_email" json:"user_email"`
	RequestedAt            time.Time      `db:"requested_at" json:"requested_at"`
	ScheduledDeletionDate  time.Time      `db:"scheduled_deletion_date" json:"scheduled_deletion_date"`
	Status                 DeletionStatus `db:"status" json:"status"`
	CompletedAt            *time.Time     `db:"completed_at" json:"completed_at,omitempty"`
}
