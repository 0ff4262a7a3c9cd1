package library

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "ebook"

// Metrics holds the server's Prometheus collectors. A nil *Metrics records
// nothing.
type Metrics struct {
	SessionsActive   prometheus.Gauge
	SessionsTotal    prometheus.Counter
	MessagesReceived *prometheus.CounterVec
	MessagesDropped  *prometheus.CounterVec
	PostsStored      prometheus.Gauge
	PostsUploaded    prometheus.Counter
	UploadsRejected  *prometheus.CounterVec
	PostsPushed      prometheus.Counter
	StreamItems      *prometheus.CounterVec
	ChatInvites      *prometheus.CounterVec
}

// NewMetrics registers the server collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Subsystem: "server", Name: "sessions_active",
			Help: "Reader sessions currently connected.",
		}),
		SessionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "server", Name: "sessions_total",
			Help: "Reader sessions accepted.",
		}),
		MessagesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "server", Name: "messages_received_total",
			Help: "Messages received from readers by type.",
		}, []string{"type"}),
		MessagesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "server", Name: "messages_dropped_total",
			Help: "Messages ignored by reason.",
		}, []string{"reason"}),
		PostsStored: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Subsystem: "posts", Name: "stored",
			Help: "Posts held by the server.",
		}),
		PostsUploaded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "posts", Name: "uploaded_total",
			Help: "Posts accepted from readers.",
		}),
		UploadsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "posts", Name: "rejected_total",
			Help: "Uploads rejected by reason.",
		}, []string{"reason"}),
		PostsPushed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "posts", Name: "pushed_total",
			Help: "Posts queued to push-mode readers.",
		}),
		StreamItems: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "stream", Name: "items_sent_total",
			Help: "Stream items sent by stream name.",
		}, []string{"stream"}),
		ChatInvites: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "chat", Name: "invites_total",
			Help: "Chat invitations by outcome.",
		}, []string{"result"}),
	}
}

func (m *Metrics) sessionOpened() {
	if m == nil {
		return
	}
	m.SessionsActive.Inc()
	m.SessionsTotal.Inc()
}

func (m *Metrics) sessionClosed() {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
}

func (m *Metrics) received(typ string) {
	if m == nil {
		return
	}
	m.MessagesReceived.WithLabelValues(typ).Inc()
}

func (m *Metrics) dropped(reason string) {
	if m == nil {
		return
	}
	m.MessagesDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) uploaded(stored int) {
	if m == nil {
		return
	}
	m.PostsUploaded.Inc()
	m.PostsStored.Set(float64(stored))
}

func (m *Metrics) rejected(reason string) {
	if m == nil {
		return
	}
	m.UploadsRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) pushed(n int) {
	if m == nil {
		return
	}
	m.PostsPushed.Add(float64(n))
}

func (m *Metrics) streamed(stream string, n int) {
	if m == nil {
		return
	}
	m.StreamItems.WithLabelValues(stream).Add(float64(n))
}

func (m *Metrics) invite(result string) {
	if m == nil {
		return
	}
	m.ChatInvites.WithLabelValues(result).Inc()
}
