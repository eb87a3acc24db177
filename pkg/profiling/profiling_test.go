package profiling

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"

	"taskmarket-ledger/pkg/config"
)

func TestStartDisabledWithoutAddr(t *testing.T) {
	lc := fxtest.NewLifecycle(t)
	p, err := Start(lc, &config.Config{})
	require.NoError(t, err)
	require.Nil(t, p)
}

func TestProfilerConfigTags(t *testing.T) {
	cfg := &config.Config{AppName: "taskmarket-ledger", AppEnv: "staging", AppVersion: "1.4.0"}
	cfg.Pyroscope.Addr = "http://pyroscope:4040"

	pc := profilerConfig(cfg)
	require.Equal(t, "taskmarket-ledger", pc.ApplicationName)
	require.Equal(t, "http://pyroscope:4040", pc.ServerAddress)
	require.Equal(t, "1.4.0", pc.Tags["version"])
}
