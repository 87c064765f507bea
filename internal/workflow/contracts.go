package workflow

import (
	"context"
	"time"
)

// StageMessage is the transport format for one stage execution request.
// A message for a stage only ever exists because every parent of that stage
// already succeeded.
type StageMessage struct {
	RunID       string    `json:"run_id"`
	Workflow    string    `json:"workflow"`
	Stage       string    `json:"stage"`
	ReportID    string    `json:"report_id"`
	Attempt     int       `json:"attempt"`
	RequestedAt time.Time `json:"requested_at"`
}

// Producer sends stage executions to a queue backend.
type Producer interface {
	Enqueue(ctx context.Context, message StageMessage) error
}

// Consumer receives stage executions and runs handlers.
type Consumer interface {
	Consume(ctx context.Context, handler func(context.Context, StageMessage) error) error
}
