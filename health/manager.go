package health

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saiset-co/kodespace/apierrors"
	"github.com/saiset-co/kodespace/types"
	"github.com/saiset-co/kodespace/utils"
)

// Manager runs registered checkers in parallel and serves /health and
// /version.
type Manager struct {
	ctx          context.Context
	cancel       context.CancelFunc
	config       types.ConfigManager
	logger       types.Logger
	router       types.HTTPRouter
	checkers     map[string]types.HealthChecker
	startTime    time.Time
	mu           sync.RWMutex
	state        atomic.Value
	checkTimeout time.Duration
}

func NewManager(ctx context.Context, config types.ConfigManager, logger types.Logger, router types.HTTPRouter) (*Manager, error) {
	managerCtx, cancel := context.WithCancel(ctx)

	checkTimeout := 5 * time.Second
	if healthConfig := config.GetConfig().Health; healthConfig != nil && healthConfig.Timeout > 0 {
		checkTimeout = healthConfig.Timeout
	}

	manager := &Manager{
		ctx:          managerCtx,
		cancel:       cancel,
		config:       config,
		logger:       logger,
		router:       router,
		checkers:     make(map[string]types.HealthChecker),
		checkTimeout: checkTimeout,
	}

	manager.state.Store(types.StateStopped)

	return manager, nil
}

func (hm *Manager) RegisterChecker(name string, checker types.HealthChecker) {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	hm.checkers[name] = checker
}

func (hm *Manager) Check(ctx context.Context) types.HealthReport {
	hm.mu.RLock()
	checkers := make(map[string]types.HealthChecker, len(hm.checkers))
	for name, checker := range hm.checkers {
		checkers[name] = checker
	}
	hm.mu.RUnlock()

	checkCtx, cancel := context.WithTimeout(ctx, hm.checkTimeout)
	defer cancel()

	var g errgroup.Group
	results := make(map[string]types.HealthCheck, len(checkers))
	var resultMu sync.Mutex

	for name, checker := range checkers {
		g.Go(func() error {
			result := hm.executeCheck(checkCtx, name, checker)

			resultMu.Lock()
			results[name] = result
			resultMu.Unlock()
			return nil
		})
	}

	_ = g.Wait()

	return hm.buildReport(results)
}

func (hm *Manager) Start() error {
	if !hm.transitionState(types.StateStopped, types.StateStarting) {
		return types.ErrServerAlreadyRunning
	}

	hm.startTime = time.Now()
	hm.registerRoutes()
	hm.setState(types.StateRunning)

	hm.logger.Info("Health manager started")
	return nil
}

func (hm *Manager) Stop() error {
	if !hm.transitionState(types.StateRunning, types.StateStopping) {
		return types.ErrServerNotRunning
	}

	hm.cancel()
	hm.setState(types.StateStopped)

	hm.logger.Info("Health manager stopped gracefully")
	return nil
}

func (hm *Manager) IsRunning() bool {
	return hm.getState() == types.StateRunning
}

func (hm *Manager) getState() types.State {
	return hm.state.Load().(types.State)
}

func (hm *Manager) setState(newState types.State) {
	hm.state.Store(newState)
}

func (hm *Manager) transitionState(from, to types.State) bool {
	return hm.state.CompareAndSwap(from, to)
}

func (hm *Manager) registerRoutes() {
	config := &types.RouteConfig{
		DisabledMiddlewares: []string{"rate_limit", "cache", "compression"},
	}

	hm.router.Add(fasthttp.MethodGet, "/version", hm.handleVersion, config)
	hm.router.Add(fasthttp.MethodGet, "/health", hm.handleHealth, config)
}

func (hm *Manager) handleVersion(ctx *fasthttp.RequestCtx) error {
	if !hm.IsRunning() {
		return apierrors.NewAppError(apierrors.CodeExternalServiceError, "Health manager is not running", http.StatusServiceUnavailable, nil)
	}

	body, err := utils.Marshal(types.VersionInfo{
		Version:   hm.config.GetConfig().Version,
		BuildInfo: getBuildInfo(),
	})
	if err != nil {
		return apierrors.NewInternalError(err)
	}

	utils.WriteJSON(ctx, fasthttp.StatusOK, body)
	return nil
}

// handleHealth replies 503 when any check is unhealthy so load balancers
// can act on the status alone.
func (hm *Manager) handleHealth(ctx *fasthttp.RequestCtx) error {
	if !hm.IsRunning() {
		return apierrors.NewAppError(apierrors.CodeExternalServiceError, "Health manager is not running", http.StatusServiceUnavailable, nil)
	}

	report := hm.Check(hm.ctx)

	body, err := utils.Marshal(report)
	if err != nil {
		return apierrors.NewInternalError(err)
	}

	status := fasthttp.StatusOK
	if report.Status == types.StatusUnhealthy {
		status = fasthttp.StatusServiceUnavailable
	}

	utils.SetNoCacheHeaders(ctx)
	utils.WriteJSON(ctx, status, body)
	return nil
}

func (hm *Manager) executeCheck(ctx context.Context, name string, checker types.HealthChecker) types.HealthCheck {
	start := time.Now()

	resultChan := make(chan types.HealthCheck, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultChan <- types.HealthCheck{
					Status:  types.StatusUnhealthy,
					Message: fmt.Sprintf("Health check panicked: %v", r),
				}
			}
		}()

		resultChan <- checker(ctx)
	}()

	var result types.HealthCheck
	select {
	case result = <-resultChan:
	case <-ctx.Done():
		result = types.HealthCheck{
			Status:  types.StatusUnhealthy,
			Message: types.ErrHealthCheckTimeout.Error(),
		}
		hm.logger.Warn("Health check timeout", zap.String("check", name))
	}

	result.Name = name
	result.LastCheck = time.Now()
	result.Duration = time.Since(start)

	return result
}

func (hm *Manager) buildReport(results map[string]types.HealthCheck) types.HealthReport {
	config := hm.config.GetConfig()

	summary := types.HealthSummary{
		Total: len(results),
	}

	overallStatus := types.StatusHealthy
	for _, result := range results {
		switch result.Status {
		case types.StatusHealthy:
			summary.Healthy++
		case types.StatusUnhealthy:
			summary.Unhealthy++
			overallStatus = types.StatusUnhealthy
		default:
			summary.Unknown++
			if overallStatus == types.StatusHealthy {
				overallStatus = types.StatusUnknown
			}
		}
	}

	report := types.HealthReport{
		Status:    overallStatus,
		Timestamp: time.Now(),
		Uptime:    time.Since(hm.startTime),
		Service: types.ServiceInfo{
			Name:    config.Name,
			Version: config.Version,
		},
		Checks:  results,
		Summary: summary,
	}

	if config.Server != nil && config.Server.HTTP != nil {
		report.Service.Host = config.Server.HTTP.Host
		report.Service.Port = config.Server.HTTP.Port
	}

	return report
}
