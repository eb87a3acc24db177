package testutil

import (
	"context"
	"sync"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
)

// NewNode returns a snowflake node for tests.
func NewNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("failed to create snowflake node: %v", err)
	}
	return node
}

// Enqueuer records enqueued tasks instead of sending them to redis.
type Enqueuer struct {
	mu    sync.Mutex
	Tasks []*asynq.Task
	Err   error
}

func (e *Enqueuer) Enqueue(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Err != nil {
		return nil, e.Err
	}
	e.Tasks = append(e.Tasks, task)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

// Types lists the recorded task types in enqueue order.
func (e *Enqueuer) Types() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.Tasks))
	for _, t := range e.Tasks {
		out = append(out, t.Type())
	}
	return out
}
