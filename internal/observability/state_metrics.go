package observability

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tbourn/chatverse/internal/store"
)

// StateMetrics mirrors client state into Prometheus. It follows the store
// broker and never touches the stores directly.
type StateMetrics struct {
	Credits prometheus.Gauge
	Unread  prometheus.Gauge
	Events  *prometheus.CounterVec
	Sends   *prometheus.CounterVec

	broker *store.Broker
}

// NewStateMetrics registers the state collectors on reg.
func NewStateMetrics(reg prometheus.Registerer, broker *store.Broker) (*StateMetrics, error) {
	m := &StateMetrics{
		Credits: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chatverse_credit_balance",
			Help: "Current credit balance.",
		}),
		Unread: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chatverse_notifications_unread",
			Help: "Unread notifications in the feed.",
		}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatverse_store_events_total",
			Help: "State change events published by the stores.",
		}, []string{"kind"}),
		Sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatverse_sends_total",
			Help: "Message send attempts by outcome.",
		}, []string{"outcome"}),
		broker: broker,
	}
	dropped := prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "chatverse_store_events_dropped_total",
		Help: "Events skipped because a subscriber was not keeping up.",
	}, func() float64 { return float64(broker.Dropped()) })
	subs := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "chatverse_store_subscribers",
		Help: "Active store event subscribers.",
	}, func() float64 { return float64(broker.Subscribers()) })

	for _, c := range []prometheus.Collector{m.Credits, m.Unread, m.Events, m.Sends, dropped, subs} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RecordSend counts one send outcome.
func (m *StateMetrics) RecordSend(outcome string) {
	m.Sends.WithLabelValues(outcome).Inc()
}

// Seed sets the gauges from current snapshots before Run starts following
// events.
func (m *StateMetrics) Seed(rooms store.RoomState, feed store.FeedState) {
	m.Credits.Set(float64(rooms.Credits))
	m.Unread.Set(float64(feed.UnreadCount))
}

// Run consumes broker events until ctx is done.
func (m *StateMetrics) Run(ctx context.Context) error {
	events, cancel := m.broker.Subscribe(256)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			m.Observe(ev)
		}
	}
}

// Observe applies one event.
func (m *StateMetrics) Observe(ev store.Event) {
	m.Events.WithLabelValues(string(ev.Kind)).Inc()
	switch p := ev.Payload.(type) {
	case store.RoomState:
		if ev.Kind == store.EventCredits || ev.Kind == store.EventSent {
			m.Credits.Set(float64(p.Credits))
		}
	case store.FeedState:
		m.Unread.Set(float64(p.UnreadCount))
	}
}
