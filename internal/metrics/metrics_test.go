package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r, err := NewPromRecorder(reg)
	require.NoError(t, err)

	r.ScheduleEvent("job")
	r.ScheduleEvent("job")
	r.ScheduleEvent("break")
	r.LimitRejected()
	r.NotificationAttempt("sms", "failed")
	r.NotificationAttempt("push", "delivered")
	r.Escalation("delivered", 1500*time.Millisecond)
	r.SLABreach()

	assert.Equal(t, 2.0, testutil.ToFloat64(r.scheduleEvents.WithLabelValues("job")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.scheduleEvents.WithLabelValues("break")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.limitRejections))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.attempts.WithLabelValues("sms", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.escalations.WithLabelValues("delivered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.slaBreaches))
	assert.Equal(t, 1, testutil.CollectAndCount(r.escalationLatency))
}

func TestPromRecorderReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewPromRecorder(reg)
	require.NoError(t, err)
	second, err := NewPromRecorder(reg)
	require.NoError(t, err)

	first.KitVerification("partial")
	second.KitVerification("partial")
	assert.Equal(t, 2.0, testutil.ToFloat64(first.verifications.WithLabelValues("partial")))
}
