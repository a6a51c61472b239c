package creature

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/annel0/voxel-creatures/internal/pathfind"
)

const metricsNamespace = "creatures"

// Metrics - метрики симуляции существ
type Metrics struct {
	pathRequests   *prometheus.CounterVec
	pathExpansions prometheus.Histogram
	unstuck        prometheus.Counter
	rescues        prometheus.Counter
	deaths         prometheus.Counter
	attacks        prometheus.Counter
	liveEntities   prometheus.Gauge
	tickDuration   prometheus.Histogram
}

// NewMetrics создаёт метрики и регистрирует их в reg. При reg == nil метрики не регистрируются.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		pathRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "path_requests_total",
			Help:      "Число запросов к планировщику маршрутов.",
		}, []string{"result"}),
		pathExpansions: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "path_expansions",
			Help:      "Число раскрытых узлов за один поиск.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 200, 500},
		}),
		unstuck: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "unstuck_total",
			Help:      "Сколько раз тело выталкивалось из твёрдого блока.",
		}),
		rescues: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "rescues_total",
			Help:      "Сколько раз существо возвращалось после выпадения из мира.",
		}),
		deaths: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "deaths_total",
			Help:      "Число погибших существ.",
		}),
		attacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "attacks_total",
			Help:      "Число атак хищников.",
		}),
		liveEntities: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "live_entities",
			Help:      "Число существ в арене.",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "tick_duration_seconds",
			Help:      "Длительность тика симуляции.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.pathRequests,
			m.pathExpansions,
			m.unstuck,
			m.rescues,
			m.deaths,
			m.attacks,
			m.liveEntities,
			m.tickDuration,
		)
	}
	return m
}

func (m *Metrics) observePath(res pathfind.Result) {
	result := "found"
	if !res.Found {
		result = "failed"
	}
	m.pathRequests.WithLabelValues(result).Inc()
	m.pathExpansions.Observe(float64(res.Expansions))
}
