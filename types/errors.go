package types

import (
	"errors"
	"fmt"
)

var (
	ErrConfigNotFound       = errors.New("config not found")
	ErrConfigParseFailed    = errors.New("config parse failed")
	ErrConfigIsNil          = errors.New("config is nil")
	ErrConfigValidateFailed = errors.New("config validate failed")
)

var (
	ErrServerNotRunning     = errors.New("server not running")
	ErrServerAlreadyRunning = errors.New("server already running")
	ErrServerStartFailed    = errors.New("server start failed")
	ErrServerStopFailed     = errors.New("server stop failed")
	ErrRouteInvalid         = errors.New("route invalid")
	ErrHandlerIsNil         = errors.New("handler is nil")
)

var (
	ErrMiddlewareExists = errors.New("middleware already registered")
	ErrMiddlewareIsNil  = errors.New("middleware is nil")
)

var (
	ErrCacheAlreadyRunning   = errors.New("cache already running")
	ErrCacheNotRunning       = errors.New("cache not running")
	ErrCacheConnectionFailed = errors.New("cache connection failed")
	ErrCacheTypeUnknown      = errors.New("cache type unknown")
	ErrCacheIsDisabled       = errors.New("cache is disabled")
)

var (
	ErrRateLimitAlgorithmUnknown = errors.New("rate limit algorithm unknown")
)

var (
	ErrCronJobNotFound       = errors.New("cron job not found")
	ErrCronIsRunning         = errors.New("cron is running")
	ErrCronSchedulerStopped  = errors.New("cron scheduler stopped")
	ErrCronJobExists         = errors.New("cron job exists")
	ErrCronExpressionInvalid = errors.New("cron expression invalid")
	ErrCronJobNameIsEmpty    = errors.New("cron job name is empty")
	ErrCronJobIsNil          = errors.New("cron job is nil")
)

var (
	ErrMetricsAlreadyRunning = errors.New("metrics already running")
	ErrMetricsNotRunning     = errors.New("metrics not running")
)

var (
	ErrHealthCheckTimeout = errors.New("health check timeout")
)

var (
	ErrLogFileIsEmpty      = errors.New("log file is empty")
	ErrLoggerConfigInvalid = errors.New("logger config invalid")
)

var (
	ErrStorageTypeUnknown      = errors.New("storage type unknown")
	ErrStorageConnectionFailed = errors.New("storage connection failed")
	ErrRecordNotFound          = errors.New("record not found")
)

var (
	ErrTLSConfigInvalid = errors.New("tls config invalid")
)

var (
	ErrServiceIsRunning    = errors.New("service is running")
	ErrServiceIsNotRunning = errors.New("service is not running")
)

var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrInvalidState     = errors.New("invalid state")
)

func Errorf(baseErr error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", baseErr, fmt.Sprintf(format, args...))
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
