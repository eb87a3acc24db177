package task

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"taskmarket-ledger/pkg/config"
	"taskmarket-ledger/pkg/taskname"
)

func TestServerConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.Worker.ShutdownTimeout = 5 * time.Second

	got := serverConfig(cfg)
	require.Equal(t, 10, got.Concurrency)
	require.Equal(t, 5*time.Second, got.ShutdownTimeout)
	require.Greater(t, got.Queues[taskname.QueueCritical], got.Queues[taskname.QueueDefault])
	require.Greater(t, got.Queues[taskname.QueueDefault], got.Queues[taskname.QueueLow])
	require.NotNil(t, got.ErrorHandler)

	cfg.Worker.Concurrency = 3
	require.Equal(t, 3, serverConfig(cfg).Concurrency)
}
