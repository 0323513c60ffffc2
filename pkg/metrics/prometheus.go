package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	log = logrus.WithField(
		"module", "prometheus",
	)
	MetricLoopInterval = 15 * time.Second
)

// PrometheusMetrics is the central metrics exporter of the tool.
// Each package composes its own MetricsModule and registers it here.
type PrometheusMetrics struct {
	ctx            context.Context
	IP             string
	Port           int
	MetricsModules []*MetricsModule
}

func NewPrometheusMetrics(ctx context.Context, ip string, port int) *PrometheusMetrics {
	return &PrometheusMetrics{
		ctx:            ctx,
		IP:             ip,
		Port:           port,
		MetricsModules: make([]*MetricsModule, 0),
	}
}

func (p *PrometheusMetrics) AddMeticsModule(mod *MetricsModule) {
	if mod == nil {
		return
	}
	p.MetricsModules = append(p.MetricsModules, mod)
}

// Start initializes all the registered metrics and exposes them over
// the /metrics endpoint, updating them periodically in the background.
func (p *PrometheusMetrics) Start() {
	log.Infof("exposing prometheus metrics at %s:%d/metrics", p.IP, p.Port)
	for _, mod := range p.MetricsModules {
		if err := mod.Init(); err != nil {
			log.Errorf("unable to init metrics module %s: %s", mod.Name(), err)
		}
	}

	http.Handle("/metrics", promhttp.Handler())
	go func() {
		err := http.ListenAndServe(fmt.Sprintf("%s:%d", p.IP, p.Port), nil)
		if err != nil {
			log.Errorf("prometheus exporter died: %s", err)
		}
	}()

	go func() {
		ticker := time.NewTicker(MetricLoopInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				for _, mod := range p.MetricsModules {
					mod.UpdateSummary()
				}
			case <-p.ctx.Done():
				return
			}
		}
	}()
}
