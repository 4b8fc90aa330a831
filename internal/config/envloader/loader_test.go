package envloader

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

func TestLoadDefaults(t *testing.T) {
	cfg, err := New().Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, config.Default(), *cfg)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("TASKFARM_PROCESSES", "6")
	t.Setenv("TASKFARM_POLICY", "static")
	t.Setenv("TASKFARM_TRANSPORT_LISTEN_ADDR", "127.0.0.1:7000")
	t.Setenv("TASKFARM_TRANSPORT_SEND_RATE", "12.5")
	t.Setenv("TASKFARM_WORKLOAD_FAST_DELAY", "5ms")
	t.Setenv("TASKFARM_STORAGE_DRIVER", "postgres")
	t.Setenv("TASKFARM_EVENTS_DRIVER", "kafka")
	t.Setenv("TASKFARM_EVENTS_BROKERS", "kafka-0:9092,kafka-1:9092")

	cfg, err := New().Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 6, cfg.Processes)
	assert.Equal(t, "static", cfg.Policy)
	assert.Equal(t, "127.0.0.1:7000", cfg.Transport.ListenAddr)
	assert.Equal(t, 12.5, cfg.Transport.SendRate)
	assert.Equal(t, 5*time.Millisecond, cfg.Workload.FastDelay)
	assert.Equal(t, config.StoragePostgres, cfg.Storage.Driver)
	assert.Equal(t, config.EventsKafka, cfg.Events.Driver)
	assert.Equal(t, []string{"kafka-0:9092", "kafka-1:9092"}, cfg.Events.Brokers)
}

func TestFileThenEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taskfarm.yaml")
	require.NoError(t, os.WriteFile(path, []byte("processes: 9\nqueue_order: fifo\n"), 0o600))
	t.Setenv("TASKFARM_PROCESSES", "3")

	cfg, err := New(WithFile(path)).Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Processes, "environment wins over the file")
	assert.Equal(t, "fifo", cfg.QueueOrder)
	assert.Equal(t, "first-slow", cfg.Workload.Profile)
}
