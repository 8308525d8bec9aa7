package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder receives engine observations. Implementations must be safe for
// concurrent use.
type Recorder interface {
	ScheduleEvent(eventType string)
	LimitRejected()
	LimitNotification(kind string)
	NotificationAttempt(channel, status string)
	Escalation(outcome string, latency time.Duration)
	SLABreach()
	KitVerification(status string)
}

type Nop struct{}

func (Nop) ScheduleEvent(string)               {}
func (Nop) LimitRejected()                     {}
func (Nop) LimitNotification(string)           {}
func (Nop) NotificationAttempt(string, string) {}
func (Nop) Escalation(string, time.Duration)   {}
func (Nop) SLABreach()                         {}
func (Nop) KitVerification(string)             {}

type PromRecorder struct {
	scheduleEvents     *prometheus.CounterVec
	limitRejections    prometheus.Counter
	limitNotifications *prometheus.CounterVec
	attempts           *prometheus.CounterVec
	escalations        *prometheus.CounterVec
	escalationLatency  prometheus.Histogram
	slaBreaches        prometheus.Counter
	verifications      *prometheus.CounterVec
}

// NewPromRecorder registers the engine collectors on reg. A nil registerer
// defaults to the global Prometheus registerer; collectors that are already
// registered are reused.
func NewPromRecorder(reg prometheus.Registerer) (*PromRecorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &PromRecorder{
		scheduleEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tophand",
			Name:      "schedule_events_total",
			Help:      "Schedule events placed on day plans",
		}, []string{"event_type"}),
		limitRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tophand",
			Name:      "job_limit_rejections_total",
			Help:      "Job events rejected because the technician reached the daily cap",
		}),
		limitNotifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tophand",
			Name:      "job_limit_notifications_total",
			Help:      "Approaching/at-limit notifications emitted",
		}, []string{"type"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tophand",
			Name:      "notification_attempts_total",
			Help:      "Notification delivery attempts by channel and status",
		}, []string{"channel", "status"}),
		escalations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tophand",
			Name:      "escalations_total",
			Help:      "Resolved notification escalations by outcome",
		}, []string{"outcome"}),
		escalationLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tophand",
			Name:      "escalation_latency_seconds",
			Help:      "Time from first attempt to escalation resolution",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30, 60},
		}),
		slaBreaches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tophand",
			Name:      "override_sla_breaches_total",
			Help:      "Override notifications that resolved after their SLA budget",
		}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tophand",
			Name:      "kit_verifications_total",
			Help:      "Kit verifications by resulting status",
		}, []string{"status"}),
	}

	var err error
	if r.scheduleEvents, err = register(reg, r.scheduleEvents); err != nil {
		return nil, err
	}
	if r.limitRejections, err = register(reg, r.limitRejections); err != nil {
		return nil, err
	}
	if r.limitNotifications, err = register(reg, r.limitNotifications); err != nil {
		return nil, err
	}
	if r.attempts, err = register(reg, r.attempts); err != nil {
		return nil, err
	}
	if r.escalations, err = register(reg, r.escalations); err != nil {
		return nil, err
	}
	if r.escalationLatency, err = register(reg, r.escalationLatency); err != nil {
		return nil, err
	}
	if r.slaBreaches, err = register(reg, r.slaBreaches); err != nil {
		return nil, err
	}
	if r.verifications, err = register(reg, r.verifications); err != nil {
		return nil, err
	}
	return r, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (r *PromRecorder) ScheduleEvent(eventType string) {
	r.scheduleEvents.WithLabelValues(eventType).Inc()
}

func (r *PromRecorder) LimitRejected() { r.limitRejections.Inc() }

func (r *PromRecorder) LimitNotification(kind string) {
	r.limitNotifications.WithLabelValues(kind).Inc()
}

func (r *PromRecorder) NotificationAttempt(channel, status string) {
	r.attempts.WithLabelValues(channel, status).Inc()
}

func (r *PromRecorder) Escalation(outcome string, latency time.Duration) {
	r.escalations.WithLabelValues(outcome).Inc()
	r.escalationLatency.Observe(latency.Seconds())
}

func (r *PromRecorder) SLABreach() { r.slaBreaches.Inc() }

func (r *PromRecorder) KitVerification(status string) {
	r.verifications.WithLabelValues(status).Inc()
}
