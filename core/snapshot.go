package core

import "time"

// Snapshot is the immutable terminal record of a lifecycle context.
type Snapshot struct {
	ID          string         `json:"id"`
	Reason      string         `json:"reason"`
	Status      Status         `json:"status"`
	Usage       UsageInfo      `json:"usage"`
	Generations int            `json:"generations"`
	Errors      []string       `json:"errors,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	FinishedAt  time.Time      `json:"finished_at"`
}
