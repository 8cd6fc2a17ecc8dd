package types

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
)

type CronManager interface {
	LifecycleManager
	Add(jobName, spec string, job JobFunc) error
	Remove(jobName string) error
	Trigger(jobName string) error
	Jobs() []JobEntry
}

// JobFunc receives a context cancelled on shutdown or job timeout.
type JobFunc func(ctx context.Context) error

type JobEntry struct {
	ID           cron.EntryID
	Name         string
	Spec         string
	AddedAt      time.Time
	LastRun      time.Time
	NextRun      time.Time
	LastDuration time.Duration
	LastError    string
	RunCount     int64
}
