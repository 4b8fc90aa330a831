package fileloader

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/taskfarm/internal/config"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "taskfarm.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeFile(t, `
processes: 8
policy: static
sequence:
  end: 10
workload:
  profile: every-third-slow
  slow_delay: 250ms
storage:
  driver: postgres
  dsn: postgres://localhost/taskfarm
`)

	cfg, err := NewFileLoader(path).Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Processes)
	assert.Equal(t, "static", cfg.Policy)
	assert.Equal(t, 10.0, cfg.Sequence.End)
	assert.Equal(t, 1.0, cfg.Sequence.Step, "unset keys keep defaults")
	assert.Equal(t, "every-third-slow", cfg.Workload.Profile)
	assert.Equal(t, 250*time.Millisecond, cfg.Workload.SlowDelay)
	assert.Equal(t, 100*time.Millisecond, cfg.Workload.FastDelay)
	assert.Equal(t, config.StoragePostgres, cfg.Storage.Driver)
	require.NoError(t, cfg.Validate())
}

func TestLoadErrors(t *testing.T) {
	_, err := NewFileLoader(filepath.Join(t.TempDir(), "missing.yaml")).Load(context.Background())
	assert.Error(t, err)

	_, err = NewFileLoader(writeFile(t, "processes: [")).Load(context.Background())
	assert.Error(t, err)
}
