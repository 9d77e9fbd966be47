package stores

import (
	"context"
	"time"

	"github.com/cloudcycle/cloudcycle/pkg/engine"
)

// ResourceRecord is the last persisted snapshot of a descriptor within a run.
type ResourceRecord struct {
	RunID     string        `json:"run_id"`
	Kind      engine.Kind   `json:"kind"`
	ID        string        `json:"id"`
	State     engine.State  `json:"state"`
	Handle    engine.Handle `json:"handle"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// ResultRecord is a persisted operation result.
type ResultRecord struct {
	RunID        string        `json:"run_id"`
	Seq          int           `json:"seq"`
	Step         string        `json:"step"`
	Success      bool          `json:"success"`
	Detail       string        `json:"detail,omitempty"`
	Error        string        `json:"error,omitempty"`
	ResourceKind engine.Kind   `json:"resource_kind,omitempty"`
	ResourceID   string        `json:"resource_id,omitempty"`
	At           time.Time     `json:"at"`
	Duration     time.Duration `json:"duration"`
}

// EventRecord is a persisted lifecycle event.
type EventRecord struct {
	ID         string                 `json:"id"`
	RunID      string                 `json:"run_id,omitempty"`
	Type       string                 `json:"type"`
	Level      string                 `json:"level"`
	Source     string                 `json:"source,omitempty"`
	ResourceID string                 `json:"resource_id,omitempty"`
	Message    string                 `json:"message"`
	Data       map[string]interface{} `json:"data,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

// Reader is the read side of the run ledger.
type Reader interface {
	GetRun(ctx context.Context, id string) (*engine.RunRecord, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*engine.RunRecord, error)
	ListResources(ctx context.Context, runID string) ([]*ResourceRecord, error)
	ListResults(ctx context.Context, runID string) ([]*ResultRecord, error)
	ListEvents(ctx context.Context, runID string, limit int) ([]*EventRecord, error)
	HealthCheck(ctx context.Context) error
}

// Store is the full run ledger.
type Store interface {
	engine.Ledger
	Reader

	Init(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error

	AppendEvent(ctx context.Context, event *EventRecord) error
	DeleteRun(ctx context.Context, id string) error
}
