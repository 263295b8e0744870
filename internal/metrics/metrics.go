package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for identity resolution.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	IdentifyRequests *prometheus.CounterVec
	IdentifyDuration prometheus.Histogram
	ContactsCreated  *prometheus.CounterVec
	ContactsDemoted  prometheus.Counter
	ContactsRelinked prometheus.Counter
	EventsDropped    prometheus.Counter
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		IdentifyRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "identity_identify_requests_total",
			Help: "Identify calls by outcome (created_primary, linked_secondary, merged, unchanged, failed)",
		}, []string{"outcome"}),
		IdentifyDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "identity_identify_duration_seconds",
			Help:    "Duration of identify calls including the storage transaction",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		ContactsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "identity_contacts_created_total",
			Help: "Contacts created, by link precedence",
		}, []string{"precedence"}),
		ContactsDemoted: factory.NewCounter(prometheus.CounterOpts{
			Name: "identity_contacts_demoted_total",
			Help: "Primary contacts demoted to secondary by a merge",
		}),
		ContactsRelinked: factory.NewCounter(prometheus.CounterOpts{
			Name: "identity_contacts_relinked_total",
			Help: "Secondary contacts re-pointed at a surviving primary after a merge",
		}),
		EventsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "identity_link_events_dropped_total",
			Help: "Link events that could not be published",
		}),
	}
}

// ObserveIdentify records the outcome and duration of an identify call.
// Call with time.Now() taken at the start of the call.
func (m *Metrics) ObserveIdentify(outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.IdentifyRequests.WithLabelValues(outcome).Inc()
	m.IdentifyDuration.Observe(time.Since(start).Seconds())
}

// IncrementContactsCreated counts a newly stored contact.
func (m *Metrics) IncrementContactsCreated(precedence string) {
	if m == nil {
		return
	}
	m.ContactsCreated.WithLabelValues(precedence).Inc()
}

// AddMerged counts the contacts touched by a merge.
func (m *Metrics) AddMerged(demoted, relinked int) {
	if m == nil {
		return
	}
	m.ContactsDemoted.Add(float64(demoted))
	m.ContactsRelinked.Add(float64(relinked))
}

// IncrementEventsDropped counts a link event that failed to publish.
func (m *Metrics) IncrementEventsDropped() {
	if m == nil {
		return
	}
	m.EventsDropped.Inc()
}
