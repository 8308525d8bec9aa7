package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tophand/backend/internal/db"
	"github.com/tophand/backend/internal/models"
	"github.com/tophand/backend/internal/notify"
)

type sentNotification struct {
	recipient string
	n         models.Notification
}

type recordingNotifier struct {
	mu     sync.Mutex
	sent   []sentNotification
	result *notify.Result
}

func (r *recordingNotifier) Escalate(ctx context.Context, recipientID string, n models.Notification) notify.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentNotification{recipient: recipientID, n: n})
	if r.result != nil {
		return *r.result
	}
	return notify.Result{
		Outcome: notify.StateDelivered,
		Method:  "push",
		Status:  models.AttemptDelivered,
		Attempts: []models.NotificationAttempt{
			{Method: "push", Status: models.AttemptDelivered, Timestamp: time.Now().UTC()},
		},
		Latency: 150 * time.Millisecond,
	}
}

func (r *recordingNotifier) byType(t string) []sentNotification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []sentNotification
	for _, s := range r.sent {
		if s.n.Type == t {
			out = append(out, s)
		}
	}
	return out
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func newScheduling(store *db.MemoryStore, notifier Notifier) *SchedulingCoordinator {
	return NewSchedulingCoordinator(store, NewLimitPolicy(store, DefaultJobLimit), notifier, store, zerolog.Nop(), nil)
}

func jobEvent(jobID string) models.ScheduleEvent {
	id := jobID
	return models.ScheduleEvent{EventType: models.EventJob, JobID: &id, DurationMinutes: 60, Address: "12 Main St"}
}

var testDay = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func auditActions(store *db.MemoryStore) []string {
	var out []string
	for _, e := range store.AuditEntries() {
		out = append(out, e.Action)
	}
	return out
}
