package cron

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/saiset-co/kodespace/types"
)

var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

type Manager struct {
	ctx             context.Context
	cancel          context.CancelFunc
	logger          types.Logger
	metrics         types.MetricsManager
	cron            *cron.Cron
	jobs            map[string]*types.JobEntry
	funcs           map[string]types.JobFunc
	mu              sync.RWMutex
	state           atomic.Value
	running         sync.WaitGroup
	shutdownTimeout time.Duration
	jobTimeout      time.Duration
}

func NewManager(ctx context.Context, config types.ConfigManager, logger types.Logger, metrics types.MetricsManager) (*Manager, error) {
	timezone := time.UTC
	if cronConfig := config.GetConfig().Cron; cronConfig != nil && cronConfig.Timezone != "" {
		location, err := time.LoadLocation(cronConfig.Timezone)
		if err != nil {
			return nil, types.Errorf(types.ErrInvalidParameter, "cron timezone %q: %v", cronConfig.Timezone, err)
		}
		timezone = location
	}

	managerCtx, cancel := context.WithCancel(ctx)

	manager := &Manager{
		ctx:     managerCtx,
		cancel:  cancel,
		logger:  logger,
		metrics: metrics,
		cron: cron.New(
			cron.WithLocation(timezone),
			cron.WithParser(parser),
			cron.WithChain(cron.Recover(cronLogger{logger: logger})),
		),
		jobs:            make(map[string]*types.JobEntry),
		funcs:           make(map[string]types.JobFunc),
		shutdownTimeout: 10 * time.Second,
		jobTimeout:      5 * time.Minute,
	}

	manager.state.Store(types.StateStopped)

	return manager, nil
}

func (m *Manager) Add(jobName, spec string, job types.JobFunc) error {
	if jobName == "" {
		return types.ErrCronJobNameIsEmpty
	}

	if job == nil {
		return types.ErrCronJobIsNil
	}

	if _, err := parser.Parse(spec); err != nil {
		return types.Errorf(types.ErrCronExpressionInvalid, "%s: %v", spec, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.jobs[jobName]; exists {
		return types.Errorf(types.ErrCronJobExists, "job: %s", jobName)
	}

	entryID, err := m.cron.AddFunc(spec, func() { m.run(jobName) })
	if err != nil {
		return types.WrapError(err, "failed to add cron job")
	}

	m.jobs[jobName] = &types.JobEntry{
		ID:      entryID,
		Name:    jobName,
		Spec:    spec,
		AddedAt: time.Now(),
		NextRun: m.cron.Entry(entryID).Next,
	}
	m.funcs[jobName] = job

	m.logger.Info("Cron job added", zap.String("job_name", jobName), zap.String("spec", spec))

	return nil
}

func (m *Manager) Remove(jobName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.jobs[jobName]
	if !exists {
		return types.Errorf(types.ErrCronJobNotFound, "job: %s", jobName)
	}

	m.cron.Remove(entry.ID)
	delete(m.jobs, jobName)
	delete(m.funcs, jobName)

	return nil
}

// Trigger runs a job immediately, outside its schedule, and waits for it.
func (m *Manager) Trigger(jobName string) error {
	m.mu.RLock()
	_, exists := m.funcs[jobName]
	m.mu.RUnlock()

	if !exists {
		return types.Errorf(types.ErrCronJobNotFound, "job: %s", jobName)
	}

	return m.run(jobName)
}

func (m *Manager) Jobs() []types.JobEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]types.JobEntry, 0, len(m.jobs))
	for _, entry := range m.jobs {
		jobs = append(jobs, *entry)
	}

	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Name < jobs[j].Name })
	return jobs
}

func (m *Manager) Start() error {
	if !m.transitionState(types.StateStopped, types.StateStarting) {
		return types.ErrCronIsRunning
	}

	m.cron.Start()
	m.setState(types.StateRunning)
	m.setSchedulerStatus(1)

	m.logger.Info("Cron manager started", zap.Int("jobs", len(m.Jobs())))
	return nil
}

// Stop cancels running jobs and waits for them up to the shutdown timeout.
func (m *Manager) Stop() error {
	if !m.transitionState(types.StateRunning, types.StateStopping) {
		return types.ErrServerNotRunning
	}

	defer m.setState(types.StateStopped)

	m.cancel()
	stopCtx := m.cron.Stop()

	done := make(chan struct{})
	go func() {
		m.running.Wait()
		close(done)
	}()

	timeout := time.NewTimer(m.shutdownTimeout)
	defer timeout.Stop()

	for _, wait := range []<-chan struct{}{stopCtx.Done(), done} {
		select {
		case <-wait:
		case <-timeout.C:
			m.logger.Warn("Cron manager stop timeout, some jobs may not have finished")
			return types.ErrCronSchedulerStopped
		}
	}

	m.setSchedulerStatus(0)
	m.logger.Info("Cron scheduler stopped gracefully")

	return nil
}

func (m *Manager) IsRunning() bool {
	return m.getState() == types.StateRunning
}

func (m *Manager) getState() types.State {
	return m.state.Load().(types.State)
}

func (m *Manager) setState(newState types.State) {
	m.state.Store(newState)
}

func (m *Manager) transitionState(from, to types.State) bool {
	return m.state.CompareAndSwap(from, to)
}

func (m *Manager) run(jobName string) (err error) {
	if m.ctx.Err() != nil {
		return types.ErrCronSchedulerStopped
	}

	m.mu.RLock()
	job := m.funcs[jobName]
	m.mu.RUnlock()

	if job == nil {
		return types.Errorf(types.ErrCronJobNotFound, "job: %s", jobName)
	}

	m.running.Add(1)
	defer m.running.Done()

	ctx, cancel := context.WithTimeout(m.ctx, m.jobTimeout)
	defer cancel()

	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panic: %v", r)
		}

		duration := time.Since(start)
		m.finish(jobName, start, duration, err)

		if err != nil {
			m.logger.Error("Cron job failed",
				zap.String("job_name", jobName),
				zap.Duration("duration", duration),
				zap.Error(err))
		} else {
			m.logger.Debug("Cron job completed",
				zap.String("job_name", jobName),
				zap.Duration("duration", duration))
		}
	}()

	return job(ctx)
}

func (m *Manager) finish(jobName string, start time.Time, duration time.Duration, err error) {
	m.mu.Lock()
	if entry, exists := m.jobs[jobName]; exists {
		entry.LastRun = start
		entry.LastDuration = duration
		entry.RunCount++
		entry.LastError = ""
		if err != nil {
			entry.LastError = err.Error()
		}
		entry.NextRun = m.cron.Entry(entry.ID).Next
	}
	m.mu.Unlock()

	if m.metrics == nil {
		return
	}

	result := "success"
	if err != nil {
		result = "error"
	}

	m.metrics.Counter("cron_job_executions_total", map[string]string{
		"job_name": jobName,
		"result":   result,
	}).Inc()

	m.metrics.Histogram("cron_job_duration_seconds",
		[]float64{0.001, 0.01, 0.1, 1, 10, 60},
		map[string]string{"job_name": jobName},
	).Observe(duration.Seconds())
}

func (m *Manager) setSchedulerStatus(value float64) {
	if m.metrics == nil {
		return
	}
	m.metrics.Gauge("cron_scheduler_running", nil).Set(value)
}

type cronLogger struct {
	logger types.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, fields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(fields(keysAndValues), zap.Error(err))...)
}

func fields(keysAndValues []interface{}) []zap.Field {
	result := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		result = append(result, zap.Any(fmt.Sprint(keysAndValues[i]), keysAndValues[i+1]))
	}
	return result
}
