package intercept

import "github.com/prometheus/client_golang/prometheus"

func (i *Interceptor) initMetrics() {
	i.metrics = metrics{
		query: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "query_total",
			Help: "Total resolve calls, partitioned by cache result.",
		}, []string{"result"}),
		reclaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reclaimed_total",
			Help: "Handles physically reclaimed through the real release call.",
		}),
		stranded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stranded_total",
			Help: "Handles dequeued for reclamation while still borrowed and dropped.",
		}),
		logicErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "logic_errors_total",
			Help: "Release or count queries on handles that were never borrowed.",
		}),
		queueLen: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "defer_queue_length",
			Help: "Current length of the deferred reclamation queue.",
		}, func() float64 {
			return float64(i.QueueLen())
		}),
		cacheSize: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "cache_size",
			Help: "Current number of cached resolve results.",
		}, func() float64 {
			return float64(i.CacheLen())
		}),
	}
}

// RegisterMetricsTo registers the interceptor's metrics to r.
func (i *Interceptor) RegisterMetricsTo(r prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		i.metrics.query,
		i.metrics.reclaimed,
		i.metrics.stranded,
		i.metrics.logicErrors,
		i.metrics.queueLen,
		i.metrics.cacheSize,
	} {
		if err := r.Register(c); err != nil {
			return err
		}
	}
	return nil
}
