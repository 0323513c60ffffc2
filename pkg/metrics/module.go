package metrics

import (
	"github.com/pkg/errors"
)

// MetricsModule groups the individual metrics of a single package.
type MetricsModule struct {
	name    string
	details string
	metrics []*IndvMetrics
}

func NewMetricsModule(name string, details string) *MetricsModule {
	return &MetricsModule{
		name:    name,
		details: details,
		metrics: make([]*IndvMetrics, 0),
	}
}

func (m *MetricsModule) Name() string {
	return m.name
}

func (m *MetricsModule) AddIndvMetric(indv *IndvMetrics) {
	if indv == nil {
		return
	}
	m.metrics = append(m.metrics, indv)
}

func (m *MetricsModule) Init() error {
	for _, indv := range m.metrics {
		if err := indv.initFn(); err != nil {
			return errors.Wrapf(err, "unable to init metric %s", indv.name)
		}
	}
	return nil
}

func (m *MetricsModule) UpdateSummary() {
	for _, indv := range m.metrics {
		if _, err := indv.updateFn(); err != nil {
			log.Errorf("unable to update metric %s: %s", indv.name, err)
		}
	}
}

// IndvMetrics wraps a single prometheus metric with its registration
// and update routines.
type IndvMetrics struct {
	name     string
	initFn   func() error
	updateFn func() (interface{}, error)
}

func NewIndvMetrics(name string, initFn func() error, updateFn func() (interface{}, error)) (*IndvMetrics, error) {
	if initFn == nil || updateFn == nil {
		return nil, errors.Errorf("init or update routine missing for metric %s", name)
	}
	return &IndvMetrics{
		name:     name,
		initFn:   initFn,
		updateFn: updateFn,
	}, nil
}
