package cron

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/saiset-co/kodespace/cache"
	"github.com/saiset-co/kodespace/config"
	"github.com/saiset-co/kodespace/logger"
	"github.com/saiset-co/kodespace/metrics"
	"github.com/saiset-co/kodespace/ratelimit"
	"github.com/saiset-co/kodespace/types"
)

func newTestManager(t *testing.T) (*Manager, *metrics.PrometheusMetrics) {
	t.Helper()

	log := logger.NewZapWrapper(zap.NewNop())
	m, err := metrics.NewPrometheusMetrics(context.Background(), log, &types.MetricsConfig{Namespace: "test"})
	require.NoError(t, err)

	manager, err := NewManager(context.Background(), config.NewFromConfig(config.NewLoader().Defaults()), log, m)
	require.NoError(t, err)
	return manager, m
}

func TestNewManager_InvalidTimezone(t *testing.T) {
	cfg := config.NewLoader().Defaults()
	cfg.Cron.Timezone = "Mars/Olympus"

	_, err := NewManager(context.Background(), config.NewFromConfig(cfg), logger.NewZapWrapper(zap.NewNop()), nil)
	assert.ErrorIs(t, err, types.ErrInvalidParameter)
}

func TestManager_Add(t *testing.T) {
	noop := func(ctx context.Context) error { return nil }

	tests := []struct {
		name    string
		jobName string
		spec    string
		job     types.JobFunc
		wantErr error
	}{
		{name: "every", jobName: "a", spec: "@every 1m", job: noop},
		{name: "five fields", jobName: "b", spec: "*/5 * * * *", job: noop},
		{name: "with seconds", jobName: "c", spec: "30 */5 * * * *", job: noop},
		{name: "empty name", jobName: "", spec: "@every 1m", job: noop, wantErr: types.ErrCronJobNameIsEmpty},
		{name: "nil job", jobName: "d", spec: "@every 1m", wantErr: types.ErrCronJobIsNil},
		{name: "bad spec", jobName: "e", spec: "every minute", job: noop, wantErr: types.ErrCronExpressionInvalid},
	}

	manager, _ := newTestManager(t)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := manager.Add(tt.jobName, tt.spec, tt.job)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}

	assert.ErrorIs(t, manager.Add("a", "@every 1m", noop), types.ErrCronJobExists)

	jobs := manager.Jobs()
	require.Len(t, jobs, 3)
	assert.Equal(t, "a", jobs[0].Name)
	assert.Equal(t, "c", jobs[2].Name)
}

func TestManager_Remove(t *testing.T) {
	manager, _ := newTestManager(t)

	require.NoError(t, manager.Add("job", "@every 1m", func(ctx context.Context) error { return nil }))
	require.NoError(t, manager.Remove("job"))

	assert.Empty(t, manager.Jobs())
	assert.ErrorIs(t, manager.Remove("job"), types.ErrCronJobNotFound)
	assert.ErrorIs(t, manager.Trigger("job"), types.ErrCronJobNotFound)
}

func TestManager_TriggerRecordsRun(t *testing.T) {
	manager, m := newTestManager(t)

	fail := errors.New("boom")
	var calls atomic.Int32

	require.NoError(t, manager.Add("flaky", "@every 1h", func(ctx context.Context) error {
		if calls.Add(1) == 1 {
			return fail
		}
		return nil
	}))

	assert.ErrorIs(t, manager.Trigger("flaky"), fail)
	entry := manager.Jobs()[0]
	assert.Equal(t, int64(1), entry.RunCount)
	assert.Equal(t, "boom", entry.LastError)
	assert.False(t, entry.LastRun.IsZero())

	require.NoError(t, manager.Trigger("flaky"))
	entry = manager.Jobs()[0]
	assert.Equal(t, int64(2), entry.RunCount)
	assert.Empty(t, entry.LastError)

	labels := map[string]string{"job_name": "flaky", "result": "error"}
	assert.Equal(t, float64(1), m.Counter("cron_job_executions_total", labels).Get())
	labels["result"] = "success"
	assert.Equal(t, float64(1), m.Counter("cron_job_executions_total", labels).Get())
}

func TestManager_TriggerRecoversPanic(t *testing.T) {
	manager, _ := newTestManager(t)

	require.NoError(t, manager.Add("panics", "@every 1h", func(ctx context.Context) error {
		panic("unexpected")
	}))

	err := manager.Trigger("panics")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected")
	assert.Contains(t, manager.Jobs()[0].LastError, "unexpected")
}

func TestManager_Lifecycle(t *testing.T) {
	defer goleak.VerifyNone(t)

	manager, m := newTestManager(t)

	ran := make(chan struct{}, 1)
	require.NoError(t, manager.Add("tick", "@every 1s", func(ctx context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	}))

	require.NoError(t, manager.Start())
	assert.True(t, manager.IsRunning())
	assert.ErrorIs(t, manager.Start(), types.ErrCronIsRunning)
	assert.Equal(t, float64(1), m.Gauge("cron_scheduler_running", nil).Get())

	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("scheduled job did not run")
	}

	require.NoError(t, manager.Stop())
	assert.False(t, manager.IsRunning())
	assert.ErrorIs(t, manager.Stop(), types.ErrServerNotRunning)
	assert.ErrorIs(t, manager.Trigger("tick"), types.ErrCronSchedulerStopped)
}

func TestManager_StopCancelsRunningJob(t *testing.T) {
	manager, _ := newTestManager(t)

	started := make(chan struct{})
	result := make(chan error, 1)
	require.NoError(t, manager.Add("long", "@every 1h", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}))
	require.NoError(t, manager.Start())

	go func() { result <- manager.Trigger("long") }()
	<-started

	require.NoError(t, manager.Stop())
	assert.ErrorIs(t, <-result, context.Canceled)
}

func TestLimiterCleanupJob(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }

	log := logger.NewZapWrapper(zap.NewNop())
	limiter := ratelimit.NewFixedWindow(log, ratelimit.WithClock(clock))

	limiter.Check("a", 10, time.Second)
	limiter.Check("b", 10, time.Minute)
	require.Equal(t, 2, limiter.Len())

	now = now.Add(2 * time.Second)
	require.NoError(t, NewLimiterCleanupJob(limiter, log)(context.Background()))
	assert.Equal(t, 1, limiter.Len())
}

func TestCacheStatsJob(t *testing.T) {
	log := logger.NewZapWrapper(zap.NewNop())
	m, err := metrics.NewPrometheusMetrics(context.Background(), log, &types.MetricsConfig{Namespace: "test"})
	require.NoError(t, err)

	registry, err := cache.NewRegistry(context.Background(), log, nil)
	require.NoError(t, err)

	registry.App().Set("k", "v", time.Minute)
	registry.App().Get("k")
	registry.App().Get("missing")

	require.NoError(t, NewCacheStatsJob(registry, log, m)(context.Background()))

	labels := map[string]string{"cache": cache.AppCache}
	assert.Equal(t, float64(1), m.Gauge("cache_entries", labels).Get())
	assert.InDelta(t, 0.5, m.Gauge("cache_hit_rate", labels).Get(), 0.001)
}
