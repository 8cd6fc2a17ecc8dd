package metrics

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/kodespace/types"
)

const DefaultPath = "/metrics"

type PrometheusMetrics struct {
	ctx        context.Context
	logger     types.Logger
	config     *types.MetricsConfig
	registry   *prometheus.Registry
	handler    http.Handler
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
	mu         sync.RWMutex
	running    int32
}

func NewPrometheusMetrics(ctx context.Context, logger types.Logger, config *types.MetricsConfig) (*PrometheusMetrics, error) {
	promConfig := &types.MetricsConfig{
		Enabled:   true,
		Namespace: "kodespace",
		Labels:    make(map[string]string),
		Path:      DefaultPath,
	}

	if config != nil {
		if config.Namespace != "" {
			promConfig.Namespace = config.Namespace
		}
		if config.Path != "" {
			promConfig.Path = config.Path
		}
		if config.Labels != nil {
			promConfig.Labels = config.Labels
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	metrics := &PrometheusMetrics{
		ctx:        ctx,
		logger:     logger,
		config:     promConfig,
		registry:   registry,
		handler:    promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}

	logger.Info("Prometheus metrics initialized",
		zap.String("namespace", promConfig.Namespace),
		zap.String("path", promConfig.Path),
	)

	return metrics, nil
}

func (p *PrometheusMetrics) Start() error {
	if !atomic.CompareAndSwapInt32(&p.running, 0, 1) {
		return types.ErrMetricsAlreadyRunning
	}

	p.logger.Info("Prometheus metrics started")
	return nil
}

func (p *PrometheusMetrics) Stop() error {
	if !atomic.CompareAndSwapInt32(&p.running, 1, 0) {
		return types.ErrMetricsNotRunning
	}

	p.logger.Info("Prometheus metrics stopped")
	return nil
}

func (p *PrometheusMetrics) IsRunning() bool {
	return atomic.LoadInt32(&p.running) == 1
}

func (p *PrometheusMetrics) Registry() *prometheus.Registry {
	return p.registry
}

// Counter returns the counter series for labels, registering the metric on
// first use. Every call for one name must use the same label keys.
func (p *PrometheusMetrics) Counter(name string, labels map[string]string) types.Counter {
	p.mu.Lock()
	defer p.mu.Unlock()

	counter, exists := p.counters[name]
	if !exists {
		counter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   p.config.Namespace,
				Name:        name,
				Help:        helpText("Counter", name),
				ConstLabels: p.config.Labels,
			},
			labelNames(labels),
		)

		p.registry.MustRegister(counter)
		p.counters[name] = counter
		p.logger.Debug("Prometheus counter created", zap.String("name", name))
	}

	return &PrometheusCounter{logger: p.logger, counter: counter, labels: labels}
}

func (p *PrometheusMetrics) Gauge(name string, labels map[string]string) types.Gauge {
	p.mu.Lock()
	defer p.mu.Unlock()

	gauge, exists := p.gauges[name]
	if !exists {
		gauge = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace:   p.config.Namespace,
				Name:        name,
				Help:        helpText("Gauge", name),
				ConstLabels: p.config.Labels,
			},
			labelNames(labels),
		)

		p.registry.MustRegister(gauge)
		p.gauges[name] = gauge
		p.logger.Debug("Prometheus gauge created", zap.String("name", name))
	}

	return &PrometheusGauge{logger: p.logger, gauge: gauge, labels: labels}
}

func (p *PrometheusMetrics) Histogram(name string, buckets []float64, labels map[string]string) types.Histogram {
	p.mu.Lock()
	defer p.mu.Unlock()

	histogram, exists := p.histograms[name]
	if !exists {
		if len(buckets) == 0 {
			buckets = prometheus.DefBuckets
		}

		histogram = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   p.config.Namespace,
				Name:        name,
				Help:        helpText("Histogram", name),
				Buckets:     buckets,
				ConstLabels: p.config.Labels,
			},
			labelNames(labels),
		)

		p.registry.MustRegister(histogram)
		p.histograms[name] = histogram
		p.logger.Debug("Prometheus histogram created", zap.String("name", name))
	}

	return &PrometheusHistogram{logger: p.logger, histogram: histogram, labels: labels}
}

func (p *PrometheusMetrics) GetStats() types.MetricsStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return types.MetricsStats{
		TotalMetrics:     len(p.counters) + len(p.gauges) + len(p.histograms),
		CounterMetrics:   len(p.counters),
		GaugeMetrics:     len(p.gauges),
		HistogramMetrics: len(p.histograms),
		LastUpdate:       time.Now(),
	}
}

func (p *PrometheusMetrics) RegisterRoutes(router types.HTTPRouter) {
	router.GET(p.config.Path, p.handleMetrics).
		WithoutMiddlewares("logging", "cache", "compression", "rate_limit").
		WithTimeout(5 * time.Second)
}

func (p *PrometheusMetrics) handleMetrics(ctx *fasthttp.RequestCtx) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, string(ctx.RequestURI()), nil)
	if err != nil {
		return types.WrapError(err, "failed to build metrics request")
	}

	req.Header.Set("Accept", string(ctx.Request.Header.Peek("Accept")))

	p.handler.ServeHTTP(types.NewFastResponseWriter(ctx), req)
	return nil
}

func helpText(kind, name string) string {
	return kind + " metric " + strings.ReplaceAll(name, "_", " ")
}

func labelNames(labels map[string]string) []string {
	names := make([]string, 0, len(labels))
	for name := range labels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type PrometheusCounter struct {
	logger  types.Logger
	counter *prometheus.CounterVec
	labels  map[string]string
}

func (c *PrometheusCounter) series() (prometheus.Counter, bool) {
	counter, err := c.counter.GetMetricWith(c.labels)
	if err != nil {
		c.logger.Error("Invalid counter labels", zap.Error(err))
		return nil, false
	}
	return counter, true
}

func (c *PrometheusCounter) Inc() {
	if counter, ok := c.series(); ok {
		counter.Inc()
	}
}

func (c *PrometheusCounter) Add(value float64) {
	if counter, ok := c.series(); ok {
		counter.Add(value)
	}
}

func (c *PrometheusCounter) Get() float64 {
	counter, ok := c.series()
	if !ok {
		return 0
	}

	metric := &dto.Metric{}
	if err := counter.Write(metric); err != nil {
		c.logger.Error("Failed to read counter", zap.Error(err))
		return 0
	}
	return metric.GetCounter().GetValue()
}

type PrometheusGauge struct {
	logger types.Logger
	gauge  *prometheus.GaugeVec
	labels map[string]string
}

func (g *PrometheusGauge) series() (prometheus.Gauge, bool) {
	gauge, err := g.gauge.GetMetricWith(g.labels)
	if err != nil {
		g.logger.Error("Invalid gauge labels", zap.Error(err))
		return nil, false
	}
	return gauge, true
}

func (g *PrometheusGauge) Set(value float64) {
	if gauge, ok := g.series(); ok {
		gauge.Set(value)
	}
}

func (g *PrometheusGauge) Inc() {
	if gauge, ok := g.series(); ok {
		gauge.Inc()
	}
}

func (g *PrometheusGauge) Dec() {
	if gauge, ok := g.series(); ok {
		gauge.Dec()
	}
}

func (g *PrometheusGauge) Add(value float64) {
	if gauge, ok := g.series(); ok {
		gauge.Add(value)
	}
}

func (g *PrometheusGauge) Get() float64 {
	gauge, ok := g.series()
	if !ok {
		return 0
	}

	metric := &dto.Metric{}
	if err := gauge.Write(metric); err != nil {
		g.logger.Error("Failed to read gauge", zap.Error(err))
		return 0
	}
	return metric.GetGauge().GetValue()
}

type PrometheusHistogram struct {
	logger    types.Logger
	histogram *prometheus.HistogramVec
	labels    map[string]string
}

func (h *PrometheusHistogram) series() (prometheus.Observer, bool) {
	observer, err := h.histogram.GetMetricWith(h.labels)
	if err != nil {
		h.logger.Error("Invalid histogram labels", zap.Error(err))
		return nil, false
	}
	return observer, true
}

func (h *PrometheusHistogram) Observe(value float64) {
	if observer, ok := h.series(); ok {
		observer.Observe(value)
	}
}

func (h *PrometheusHistogram) ObserveDuration(start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

func (h *PrometheusHistogram) read() *dto.Histogram {
	observer, ok := h.series()
	if !ok {
		return nil
	}

	metric, ok := observer.(prometheus.Metric)
	if !ok {
		return nil
	}

	out := &dto.Metric{}
	if err := metric.Write(out); err != nil {
		return nil
	}
	return out.GetHistogram()
}

func (h *PrometheusHistogram) GetCount() uint64 {
	return h.read().GetSampleCount()
}

func (h *PrometheusHistogram) GetSum() float64 {
	return h.read().GetSampleSum()
}
