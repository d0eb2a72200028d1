package quasar

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "quasar"

// Drop reasons recorded by the dropped publications counter
const (
	dropInvalidContents = "invalid_contents"
	dropDuplicate       = "duplicate"
	dropInvalidTTL      = "invalid_ttl"
	dropInvalidOrigin   = "invalid_origin"
	dropExpired         = "expired"
)

type metrics struct {
	published       prometheus.Counter
	publishFailures prometheus.Counter
	delivered       prometheus.Counter
	relayed         *prometheus.CounterVec
	dropped         *prometheus.CounterVec
	exchanges       *prometheus.CounterVec
	subscriptions   prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		published: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "publications_published_total",
			Help:      "Publications originated by this node.",
		}),
		publishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "publish_failures_total",
			Help:      "Publish calls that reached no contact.",
		}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "publications_delivered_total",
			Help:      "Publications handed to a local subscription handler.",
		}),
		relayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "publications_relayed_total",
			Help:      "Publication relays by decision and outcome.",
		}, []string{"decision", "result"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "publications_dropped_total",
			Help:      "Inbound publications not processed, by reason.",
		}, []string{"reason"}),
		exchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "filter_exchanges_total",
			Help:      "Topic filter pulls and pushes by outcome.",
		}, []string{"direction", "result"}),
		subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "subscriptions",
			Help:      "Topics with a registered handler.",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.published, m.publishFailures, m.delivered, m.relayed, m.dropped, m.exchanges, m.subscriptions,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func result(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
